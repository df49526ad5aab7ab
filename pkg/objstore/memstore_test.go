package objstore_test

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/korefi/commons-go/pkg/objstore"
)

const testBucket = "bkt"

func newStore() *objstore.MemStore {
	return objstore.NewMemStore(testBucket)
}

func ref(key string) objstore.ObjectRef {
	return objstore.ObjectRef{Bucket: testBucket, Key: key}
}

func TestPutGetRoundtrip(t *testing.T) {
	s := newStore()
	ctx := context.Background()

	payload := []byte("invoice body")
	require.NoError(t, s.PutBytes(ctx, ref("reports/acme/a"), payload,
		objstore.WithContentType("application/pdf"),
		objstore.WithMetadata(map[string]string{"tenant": "acme"})))

	got, err := s.GetBytes(ctx, ref("reports/acme/a"))
	require.NoError(t, err)
	assert.Equal(t, payload, got)

	ct, ok := s.ContentType(ref("reports/acme/a"))
	require.True(t, ok)
	assert.Equal(t, "application/pdf", ct)

	md, ok := s.Metadata(ref("reports/acme/a"))
	require.True(t, ok)
	assert.Equal(t, map[string]string{"tenant": "acme"}, md)
}

func TestGetMissingIsNotFound(t *testing.T) {
	s := newStore()

	got, err := s.GetBytes(context.Background(), ref("nope"))
	require.Error(t, err)
	assert.Nil(t, got)
	assert.True(t, objstore.IsNotFound(err))
}

func TestPutToMissingBucket(t *testing.T) {
	s := newStore()

	err := s.PutBytes(context.Background(),
		objstore.ObjectRef{Bucket: "ghost", Key: "k"}, []byte("x"))
	require.Error(t, err)
	assert.Equal(t, objstore.CodeBucketMissing, objstore.CodeOf(err))
}

func TestPutRejectsBadRef(t *testing.T) {
	s := newStore()
	ctx := context.Background()

	for _, bad := range []objstore.ObjectRef{
		{Bucket: "", Key: "k"},
		{Bucket: testBucket, Key: ""},
		{Bucket: testBucket, Key: "/leading"},
		{Bucket: testBucket, Key: `back\slash`},
	} {
		err := s.PutBytes(ctx, bad, []byte("x"))
		require.Error(t, err)
		assert.True(t, objstore.IsInvalidArgument(err), "ref %+v", bad)
	}
}

func TestExists(t *testing.T) {
	s := newStore()
	ctx := context.Background()

	ok, err := s.Exists(ctx, ref("a"))
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, s.PutBytes(ctx, ref("a"), []byte("x")))

	ok, err = s.Exists(ctx, ref("a"))
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestDeleteIdempotent(t *testing.T) {
	s := newStore()
	ctx := context.Background()

	require.NoError(t, s.PutBytes(ctx, ref("a"), []byte("x")))
	require.NoError(t, s.Delete(ctx, ref("a")))
	require.NoError(t, s.Delete(ctx, ref("a")))

	ok, err := s.Exists(ctx, ref("a"))
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestListPrefix(t *testing.T) {
	s := newStore()
	ctx := context.Background()

	keys := []string{
		"reports/acme/invoice/2024/03/07/INV-1",
		"reports/acme/invoice/2024/03/07/INV-2",
		"reports/acme/payout/2024/03/07/P-1",
		"exports/acme/invoice/2024/03/07/INV-1",
	}
	for _, k := range keys {
		require.NoError(t, s.PutBytes(ctx, ref(k), []byte(k)))
	}

	refs, next, err := s.ListPrefix(ctx, testBucket, "reports/acme/", "")
	require.NoError(t, err)
	assert.Empty(t, next)
	require.Len(t, refs, 3)
	for _, r := range refs {
		assert.Contains(t, r.Key, "reports/acme/")
	}

	refs, _, err = s.ListPrefix(ctx, testBucket, "reports/acme/invoice/", "")
	require.NoError(t, err)
	assert.Len(t, refs, 2)

	refs, _, err = s.ListPrefix(ctx, testBucket, "archive/", "")
	require.NoError(t, err)
	assert.Empty(t, refs)
}

func TestListPrefixPagination(t *testing.T) {
	s := newStore()
	ctx := context.Background()

	// Resume a listing from a continuation token mid-range.
	for _, k := range []string{"p/a", "p/b", "p/c", "p/d"} {
		require.NoError(t, s.PutBytes(ctx, ref(k), []byte("x")))
	}

	refs, _, err := s.ListPrefix(ctx, testBucket, "p/", "p/b")
	require.NoError(t, err)
	require.Len(t, refs, 2)
	assert.Equal(t, "p/c", refs[0].Key)
	assert.Equal(t, "p/d", refs[1].Key)
}

func TestPresignBounds(t *testing.T) {
	s := newStore()

	_, err := s.PresignGet(ref("a"), 0)
	require.Error(t, err)
	assert.True(t, objstore.IsInvalidArgument(err))

	_, err = s.PresignGet(ref("a"), objstore.MaxPresignExpiry+time.Second)
	require.Error(t, err)
	assert.True(t, objstore.IsInvalidArgument(err))

	url, err := s.PresignGet(ref("a"), objstore.MaxPresignExpiry)
	require.NoError(t, err)
	assert.Contains(t, url, "verb=GET")

	url, err = s.PresignPut(ref("a"), 15*time.Minute)
	require.NoError(t, err)
	assert.Contains(t, url, "verb=PUT")
}

func TestFileRoundtrip(t *testing.T) {
	s := newStore()
	ctx := context.Background()
	dir := t.TempDir()

	src := filepath.Join(dir, "src.json")
	require.NoError(t, os.WriteFile(src, []byte(`{"ok":true}`), 0644))

	require.NoError(t, s.PutFile(ctx, ref("staged/src.json"), src))

	dest := filepath.Join(dir, "dest.json")
	require.NoError(t, s.GetToFile(ctx, ref("staged/src.json"), dest))

	data, err := os.ReadFile(dest)
	require.NoError(t, err)
	assert.Equal(t, []byte(`{"ok":true}`), data)

	// No temp debris left next to the destination.
	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Len(t, entries, 2)
}

func TestPutFileMissingSource(t *testing.T) {
	s := newStore()

	err := s.PutFile(context.Background(), ref("k"), filepath.Join(t.TempDir(), "absent"))
	require.Error(t, err)
	assert.Equal(t, objstore.CodeLocalIO, objstore.CodeOf(err))
}

func TestGetToFileMissingObject(t *testing.T) {
	s := newStore()
	dir := t.TempDir()

	err := s.GetToFile(context.Background(), ref("absent"), filepath.Join(dir, "out"))
	require.Error(t, err)
	assert.True(t, objstore.IsNotFound(err))

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestPutJSON(t *testing.T) {
	s := newStore()
	ctx := context.Background()

	require.NoError(t, objstore.PutJSON(ctx, s, ref("reports/summary"),
		map[string]int{"total": 3}))

	data, err := s.GetBytes(ctx, ref("reports/summary"))
	require.NoError(t, err)
	assert.JSONEq(t, `{"total":3}`, string(data))

	ct, ok := s.ContentType(ref("reports/summary"))
	require.True(t, ok)
	assert.Equal(t, "application/json", ct)
}

func TestPutJSONUnmarshalable(t *testing.T) {
	s := newStore()

	err := objstore.PutJSON(context.Background(), s, ref("k"), func() {})
	require.Error(t, err)
	assert.True(t, objstore.IsInvalidArgument(err))
}
