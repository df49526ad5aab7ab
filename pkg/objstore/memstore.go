package objstore

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"
)

// memStorePageSize bounds ListPrefix pages so pagination is exercised the
// same way it is against a real backend.
const memStorePageSize = 1000

type memObject struct {
	data        []byte
	contentType string
	metadata    map[string]string
}

// MemStore is an in-memory Store for tests. Buckets must be created
// explicitly with CreateBucket, mirroring the fact that a real store does
// not conjure buckets on first write.
type MemStore struct {
	mu      sync.RWMutex
	buckets map[string]map[string]memObject
}

var _ Store = (*MemStore)(nil)

func NewMemStore(buckets ...string) *MemStore {
	m := &MemStore{buckets: make(map[string]map[string]memObject)}
	for _, b := range buckets {
		m.buckets[b] = make(map[string]memObject)
	}
	return m
}

func (m *MemStore) CreateBucket(name string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.buckets[name]; !ok {
		m.buckets[name] = make(map[string]memObject)
	}
}

func (m *MemStore) PutBytes(ctx context.Context, ref ObjectRef, data []byte, opts ...PutOption) error {
	if err := ref.Validate(); err != nil {
		return err
	}
	o := NewPutOptions(opts...)

	m.mu.Lock()
	defer m.mu.Unlock()
	objects, ok := m.buckets[ref.Bucket]
	if !ok {
		return Errorf(CodeBucketMissing, "bucket %q does not exist", ref.Bucket)
	}
	stored := memObject{
		data:        append([]byte(nil), data...),
		contentType: o.ContentType,
	}
	if len(o.Metadata) > 0 {
		stored.metadata = make(map[string]string, len(o.Metadata))
		for k, v := range o.Metadata {
			stored.metadata[k] = v
		}
	}
	objects[ref.Key] = stored
	return nil
}

func (m *MemStore) PutFile(ctx context.Context, ref ObjectRef, localPath string, opts ...PutOption) error {
	data, err := os.ReadFile(localPath)
	if err != nil {
		return WrapErr(CodeLocalIO, err, "read "+localPath)
	}
	return m.PutBytes(ctx, ref, data, opts...)
}

func (m *MemStore) GetBytes(ctx context.Context, ref ObjectRef) ([]byte, error) {
	if err := ref.Validate(); err != nil {
		return nil, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	obj, ok := m.lookup(ref)
	if !ok {
		return nil, Errorf(CodeNotFound, "object %s not found", ref)
	}
	return append([]byte(nil), obj.data...), nil
}

func (m *MemStore) GetToFile(ctx context.Context, ref ObjectRef, destPath string) error {
	data, err := m.GetBytes(ctx, ref)
	if err != nil {
		return err
	}
	tmp, err := os.CreateTemp(filepath.Dir(destPath), "."+filepath.Base(destPath)+".*")
	if err != nil {
		return WrapErr(CodeLocalIO, err, "create temp file for "+destPath)
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return WrapErr(CodeLocalIO, err, "write "+tmpName)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return WrapErr(CodeLocalIO, err, "close "+tmpName)
	}
	if err := os.Rename(tmpName, destPath); err != nil {
		os.Remove(tmpName)
		return WrapErr(CodeLocalIO, err, "rename to "+destPath)
	}
	return nil
}

func (m *MemStore) Exists(ctx context.Context, ref ObjectRef) (bool, error) {
	if err := ref.Validate(); err != nil {
		return false, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	_, ok := m.lookup(ref)
	return ok, nil
}

func (m *MemStore) ListPrefix(ctx context.Context, bucket, prefix, token string) ([]ObjectRef, string, error) {
	if bucket == "" {
		return nil, "", Errorf(CodeInvalidArgument, "bucket must not be empty")
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	objects, ok := m.buckets[bucket]
	if !ok {
		return nil, "", Errorf(CodeBucketMissing, "bucket %q does not exist", bucket)
	}

	keys := make([]string, 0, len(objects))
	for k := range objects {
		if strings.HasPrefix(k, prefix) {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)

	// The continuation token is the last key of the previous page.
	start := 0
	if token != "" {
		start = sort.SearchStrings(keys, token)
		if start < len(keys) && keys[start] == token {
			start++
		}
	}

	refs := make([]ObjectRef, 0, memStorePageSize)
	next := ""
	for i := start; i < len(keys); i++ {
		if len(refs) == memStorePageSize {
			next = keys[i-1]
			break
		}
		refs = append(refs, ObjectRef{Bucket: bucket, Key: keys[i]})
	}
	return refs, next, nil
}

func (m *MemStore) Delete(ctx context.Context, ref ObjectRef) error {
	if err := ref.Validate(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if objects, ok := m.buckets[ref.Bucket]; ok {
		delete(objects, ref.Key)
	}
	return nil
}

func (m *MemStore) PresignGet(ref ObjectRef, expiry time.Duration) (string, error) {
	return m.presign(ref, "GET", expiry)
}

func (m *MemStore) PresignPut(ref ObjectRef, expiry time.Duration) (string, error) {
	return m.presign(ref, "PUT", expiry)
}

func (m *MemStore) presign(ref ObjectRef, verb string, expiry time.Duration) (string, error) {
	if err := ref.Validate(); err != nil {
		return "", err
	}
	if err := CheckPresignExpiry(expiry); err != nil {
		return "", err
	}
	return fmt.Sprintf("https://memstore.invalid/%s/%s?verb=%s&expires=%d",
		ref.Bucket, ref.Key, verb, int64(expiry.Seconds())), nil
}

// ContentType reports the stored content type of ref, for test assertions.
func (m *MemStore) ContentType(ref ObjectRef) (string, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	obj, ok := m.lookup(ref)
	return obj.contentType, ok
}

// Metadata reports the stored metadata of ref, for test assertions.
func (m *MemStore) Metadata(ref ObjectRef) (map[string]string, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	obj, ok := m.lookup(ref)
	return obj.metadata, ok
}

// lookup must be called with at least a read lock held.
func (m *MemStore) lookup(ref ObjectRef) (memObject, bool) {
	objects, ok := m.buckets[ref.Bucket]
	if !ok {
		return memObject{}, false
	}
	obj, ok := objects[ref.Key]
	return obj, ok
}
