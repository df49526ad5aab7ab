// Package artifact builds canonical object keys and local staging paths
// for tenant-scoped artifacts.
//
// The key scheme is contractual because services scan buckets by prefix:
//
//	{domain}/{tenant_id}/{entity_type}/{yyyy}/{mm}/{dd}/{entity_id}[__{suffix}]
//
// Generation is pure: identical inputs produce byte-identical keys across
// processes and machines. There is no clock read other than the supplied
// timestamp, which is always interpreted in UTC.
package artifact

import (
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/korefi/commons-go/pkg/objstore"
)

// suffixSep joins the entity ID and suffix so the terminal segment stays a
// single filename-shaped token. The suffix is opaque; it may itself
// contain the separator.
const suffixSep = "__"

// Context is the input to key and path generation.
type Context struct {
	// TenantID scopes the artifact. Lowercased in the key.
	TenantID string

	// Domain is the categorical tag, e.g. "reports", "exports", "uploads".
	Domain string

	// EntityType names the artifact kind in snake case, e.g. "invoice".
	EntityType string

	// EntityID is an opaque identifier. Casing is preserved.
	EntityID string

	// Timestamp supplies the yyyy/mm/dd partition, evaluated in UTC.
	Timestamp time.Time

	// Suffix is an optional filename component (extension and/or label).
	// Casing is preserved.
	Suffix string
}

// Key returns the canonical object key for c.
func Key(c Context) (string, error) {
	segs, err := segments(c)
	if err != nil {
		return "", err
	}
	return strings.Join(segs, "/"), nil
}

// Ref returns the ObjectRef addressing c's artifact in bucket.
func Ref(c Context, bucket string) (objstore.ObjectRef, error) {
	if bucket == "" {
		return objstore.ObjectRef{}, objstore.Errorf(objstore.CodeInvalidArgument,
			"bucket must not be empty")
	}
	key, err := Key(c)
	if err != nil {
		return objstore.ObjectRef{}, err
	}
	return objstore.ObjectRef{Bucket: bucket, Key: key}, nil
}

// LocalPath returns the staging path for c under base, using the OS path
// separator. The path mirrors Key(c) byte for byte up to separator
// substitution. LocalPath never touches the filesystem; directory creation
// is the caller's job.
func LocalPath(c Context, base string) (string, error) {
	if base == "" {
		return "", objstore.Errorf(objstore.CodeInvalidArgument,
			"base directory must not be empty")
	}
	segs, err := segments(c)
	if err != nil {
		return "", err
	}
	return filepath.Join(append([]string{base}, segs...)...), nil
}

func segments(c Context) ([]string, error) {
	if err := checkField("domain", c.Domain); err != nil {
		return nil, err
	}
	if err := checkField("tenant_id", c.TenantID); err != nil {
		return nil, err
	}
	if err := checkField("entity_type", c.EntityType); err != nil {
		return nil, err
	}
	if err := checkField("entity_id", c.EntityID); err != nil {
		return nil, err
	}
	if c.Suffix != "" {
		if err := checkField("suffix", c.Suffix); err != nil {
			return nil, err
		}
	}
	if c.Timestamp.IsZero() {
		return nil, objstore.Errorf(objstore.CodeInvalidArgument,
			"timestamp must be set")
	}

	ts := c.Timestamp.UTC()
	leaf := c.EntityID
	if c.Suffix != "" {
		leaf += suffixSep + c.Suffix
	}
	return []string{
		strings.ToLower(c.Domain),
		strings.ToLower(c.TenantID),
		strings.ToLower(c.EntityType),
		fmt.Sprintf("%04d", ts.Year()),
		fmt.Sprintf("%02d", int(ts.Month())),
		fmt.Sprintf("%02d", ts.Day()),
		leaf,
	}, nil
}

// checkField rejects empty values, path separators, and non-printable
// ASCII. Invalid characters for the host filesystem beyond these are not
// normalized.
func checkField(name, value string) error {
	if value == "" {
		return objstore.Errorf(objstore.CodeInvalidArgument,
			"%s must not be empty", name)
	}
	for i := 0; i < len(value); i++ {
		b := value[i]
		if b == '/' || b == '\\' || b < 0x20 || b == 0x7f {
			return objstore.Errorf(objstore.CodeInvalidArgument,
				"%s contains forbidden byte 0x%02x at position %d", name, b, i)
		}
	}
	return nil
}
