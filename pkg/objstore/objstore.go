// Package objstore defines a simple and standardized way of interacting
// with cloud object storage such as AWS S3 and S3-compatible services.
//
// The interface is intentionally minimal: byte and file upload/download,
// existence checks, prefix listing, idempotent delete, and presigned URLs.
// Multipart-specific controls, versioning, and access policies are left to
// the backing SDK. Consistency guarantees are whatever the backend
// provides; callers must not assume read-after-write for overwrites.
//
// Errors are encoded as a tagged Error value rather than a type hierarchy
// so that callers only need one check (CodeOf) to classify a failure.
package objstore

import (
	"context"
	"strings"
	"time"
)

// MaxPresignExpiry is the longest lifetime a presigned URL may have,
// matching the S3 SigV4 ceiling of seven days.
const MaxPresignExpiry = 7 * 24 * time.Hour

// ObjectRef identifies one stored object as a (bucket, key) pair. It is an
// immutable value; build one directly or derive it from an
// artifact.Context.
type ObjectRef struct {
	Bucket string
	Key    string
}

// Validate checks the structural invariants: both fields non-empty, and the
// key neither starting with the separator nor containing a backslash.
func (r ObjectRef) Validate() error {
	if r.Bucket == "" {
		return Errorf(CodeInvalidArgument, "bucket must not be empty")
	}
	if r.Key == "" {
		return Errorf(CodeInvalidArgument, "key must not be empty")
	}
	if strings.HasPrefix(r.Key, "/") {
		return Errorf(CodeInvalidArgument, "key %q must not start with '/'", r.Key)
	}
	if strings.ContainsRune(r.Key, '\\') {
		return Errorf(CodeInvalidArgument, "key %q must use '/' as the only separator", r.Key)
	}
	return nil
}

func (r ObjectRef) String() string {
	return "s3://" + r.Bucket + "/" + r.Key
}

// PutOptions carries the optional parameters of an upload.
type PutOptions struct {
	ContentType string
	Metadata    map[string]string
}

type PutOption func(*PutOptions)

func WithContentType(ct string) PutOption {
	return func(o *PutOptions) { o.ContentType = ct }
}

func WithMetadata(md map[string]string) PutOption {
	return func(o *PutOptions) { o.Metadata = md }
}

// NewPutOptions folds a set of PutOption funcs into a PutOptions value.
// Implementations of Store call this; users normally don't.
func NewPutOptions(opts ...PutOption) PutOptions {
	var o PutOptions
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

// Store is the object storage contract. All methods are safe for
// concurrent use and block until the operation completes; the context is
// forwarded to the backend as a deadline/cancellation signal. Every error
// returned carries an objstore Code.
type Store interface {
	// PutBytes persists data under ref atomically.
	PutBytes(ctx context.Context, ref ObjectRef, data []byte, opts ...PutOption) error

	// PutFile streams the file at localPath to ref.
	PutFile(ctx context.Context, ref ObjectRef, localPath string, opts ...PutOption) error

	// GetBytes fetches the full object. A missing key reports CodeNotFound,
	// never an empty buffer.
	GetBytes(ctx context.Context, ref ObjectRef) ([]byte, error)

	// GetToFile downloads ref to destPath, writing through a temp file and
	// renaming so the destination is never observed half-written.
	GetToFile(ctx context.Context, ref ObjectRef, destPath string) error

	// Exists reports whether ref currently resolves to an object.
	Exists(ctx context.Context, ref ObjectRef) (bool, error)

	// ListPrefix returns the objects in bucket whose keys begin with prefix.
	// Pass the returned continuation token to fetch the next page; an empty
	// token means the listing is complete.
	ListPrefix(ctx context.Context, bucket, prefix, token string) ([]ObjectRef, string, error)

	// Delete removes ref. Deleting a missing object succeeds.
	Delete(ctx context.Context, ref ObjectRef) error

	// PresignGet returns a time-limited URL granting read access to ref
	// without credentials. expiry must be in (0, MaxPresignExpiry].
	PresignGet(ref ObjectRef, expiry time.Duration) (string, error)

	// PresignPut is PresignGet for uploads.
	PresignPut(ref ObjectRef, expiry time.Duration) (string, error)
}

// CheckPresignExpiry enforces the presign expiry bounds shared by all
// implementations.
func CheckPresignExpiry(expiry time.Duration) error {
	if expiry <= 0 || expiry > MaxPresignExpiry {
		return Errorf(CodeInvalidArgument,
			"presign expiry %v out of range (0, %v]", expiry, MaxPresignExpiry)
	}
	return nil
}
