// AWS S3 implementation of the objstore.Store interface.
package s3store

import (
	"bytes"
	"context"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/session"
	"github.com/aws/aws-sdk-go/service/s3"
	"github.com/aws/aws-sdk-go/service/s3/s3iface"
	"github.com/aws/aws-sdk-go/service/s3/s3manager"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"github.com/spf13/viper"

	"github.com/korefi/commons-go/pkg/objstore"
)

// Config holds the connection parameters. Credentials are resolved through
// the SDK's standard chain (env, shared config, instance role); the store
// keeps no credential state of its own.
type Config struct {
	// Region is required.
	Region string

	// Endpoint overrides the S3 endpoint, for MinIO/LocalStack style
	// S3-compatible services.
	Endpoint string

	// DefaultBucket, when set, lets callers address objects by bare key
	// through Ref.
	DefaultBucket string

	// ForcePathStyle is usually needed together with Endpoint.
	ForcePathStyle bool

	// MaxRetries overrides the SDK's own retry count when > 0. The store
	// itself never retries.
	MaxRetries int
}

// Store implements objstore.Store against S3. One shared instance per
// process is the intended pattern; it is safe for concurrent use.
type Store struct {
	log        logrus.FieldLogger
	cfg        Config
	svc        s3iface.S3API
	uploader   *s3manager.Uploader
	downloader *s3manager.Downloader
}

var _ objstore.Store = (*Store)(nil)

func New(logger logrus.FieldLogger, cfg Config) (*Store, error) {
	if logger == nil {
		logger = logrus.New()
	}
	if cfg.Region == "" {
		return nil, objstore.Errorf(objstore.CodeInvalidArgument, "region is required")
	}

	awsCfg := aws.NewConfig().WithRegion(cfg.Region)
	if cfg.Endpoint != "" {
		awsCfg = awsCfg.WithEndpoint(cfg.Endpoint)
	}
	if cfg.ForcePathStyle {
		awsCfg = awsCfg.WithS3ForcePathStyle(true)
	}
	if cfg.MaxRetries > 0 {
		awsCfg = awsCfg.WithMaxRetries(cfg.MaxRetries)
	}

	sess, err := session.NewSession(awsCfg)
	if err != nil {
		return nil, errors.Wrap(err, "Failed to create AWS session")
	}
	svc := s3.New(sess)

	return &Store{
		log:        logger.WithField("module", "objstore.s3"),
		cfg:        cfg,
		svc:        svc,
		uploader:   s3manager.NewUploaderWithClient(svc),
		downloader: s3manager.NewDownloaderWithClient(svc),
	}, nil
}

// NewFromConfig builds a Store from a viper sub-tree with the keys
// "region", "endpoint", "default_bucket", "force_path_style" and
// "max_retries". The region falls back to AWS_DEFAULT_REGION.
func NewFromConfig(logger logrus.FieldLogger, v *viper.Viper) (*Store, error) {
	if v == nil {
		v = viper.New()
	}
	v.SetDefault("force_path_style", false)
	v.BindEnv("region", "AWS_DEFAULT_REGION")

	return New(logger, Config{
		Region:         v.GetString("region"),
		Endpoint:       v.GetString("endpoint"),
		DefaultBucket:  v.GetString("default_bucket"),
		ForcePathStyle: v.GetBool("force_path_style"),
		MaxRetries:     v.GetInt("max_retries"),
	})
}

// Ref addresses key in the configured DefaultBucket.
func (s *Store) Ref(key string) objstore.ObjectRef {
	return objstore.ObjectRef{Bucket: s.cfg.DefaultBucket, Key: key}
}

func (s *Store) PutBytes(ctx context.Context, ref objstore.ObjectRef, data []byte, opts ...objstore.PutOption) error {
	if err := ref.Validate(); err != nil {
		return err
	}
	o := objstore.NewPutOptions(opts...)

	in := &s3.PutObjectInput{
		Bucket: aws.String(ref.Bucket),
		Key:    aws.String(ref.Key),
		Body:   bytes.NewReader(data),
	}
	if o.ContentType != "" {
		in.ContentType = aws.String(o.ContentType)
	}
	if len(o.Metadata) > 0 {
		in.Metadata = aws.StringMap(o.Metadata)
	}

	if _, err := s.svc.PutObjectWithContext(ctx, in); err != nil {
		return wrapAWS(err, "put "+ref.String())
	}
	s.log.WithField("key", ref.Key).WithField("bytes", len(data)).Debug("uploaded object")
	return nil
}

func (s *Store) PutFile(ctx context.Context, ref objstore.ObjectRef, localPath string, opts ...objstore.PutOption) error {
	if err := ref.Validate(); err != nil {
		return err
	}
	o := objstore.NewPutOptions(opts...)

	f, err := os.Open(localPath)
	if err != nil {
		return objstore.WrapErr(objstore.CodeLocalIO, err, "open "+localPath)
	}
	defer f.Close()

	in := &s3manager.UploadInput{
		Bucket: aws.String(ref.Bucket),
		Key:    aws.String(ref.Key),
		Body:   f,
	}
	if o.ContentType != "" {
		in.ContentType = aws.String(o.ContentType)
	}
	if len(o.Metadata) > 0 {
		in.Metadata = aws.StringMap(o.Metadata)
	}

	if _, err := s.uploader.UploadWithContext(ctx, in); err != nil {
		return wrapAWS(err, "upload "+localPath+" to "+ref.String())
	}
	s.log.WithField("key", ref.Key).WithField("file", localPath).Debug("uploaded file")
	return nil
}

func (s *Store) GetBytes(ctx context.Context, ref objstore.ObjectRef) ([]byte, error) {
	if err := ref.Validate(); err != nil {
		return nil, err
	}
	out, err := s.svc.GetObjectWithContext(ctx, &s3.GetObjectInput{
		Bucket: aws.String(ref.Bucket),
		Key:    aws.String(ref.Key),
	})
	if err != nil {
		return nil, wrapAWS(err, "get "+ref.String())
	}
	defer out.Body.Close()

	data, err := io.ReadAll(out.Body)
	if err != nil {
		return nil, wrapAWS(err, "read body of "+ref.String())
	}
	return data, nil
}

func (s *Store) GetToFile(ctx context.Context, ref objstore.ObjectRef, destPath string) error {
	if err := ref.Validate(); err != nil {
		return err
	}

	// Download into a temp file next to the destination, then rename, so
	// readers never observe a half-written file.
	tmp, err := os.CreateTemp(filepath.Dir(destPath), "."+filepath.Base(destPath)+".*")
	if err != nil {
		return objstore.WrapErr(objstore.CodeLocalIO, err, "create temp file for "+destPath)
	}
	tmpName := tmp.Name()

	_, err = s.downloader.DownloadWithContext(ctx, tmp, &s3.GetObjectInput{
		Bucket: aws.String(ref.Bucket),
		Key:    aws.String(ref.Key),
	})
	if err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return wrapAWS(err, "download "+ref.String())
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return objstore.WrapErr(objstore.CodeLocalIO, err, "close "+tmpName)
	}
	if err := os.Rename(tmpName, destPath); err != nil {
		os.Remove(tmpName)
		return objstore.WrapErr(objstore.CodeLocalIO, err, "rename to "+destPath)
	}
	s.log.WithField("key", ref.Key).WithField("dest", destPath).Debug("downloaded object")
	return nil
}

func (s *Store) Exists(ctx context.Context, ref objstore.ObjectRef) (bool, error) {
	if err := ref.Validate(); err != nil {
		return false, err
	}
	_, err := s.svc.HeadObjectWithContext(ctx, &s3.HeadObjectInput{
		Bucket: aws.String(ref.Bucket),
		Key:    aws.String(ref.Key),
	})
	if err != nil {
		// HeadObject reports a bare 404 for both a missing key and a
		// missing bucket; either way the object does not exist.
		if isNotFound(err) {
			return false, nil
		}
		return false, wrapAWS(err, "head "+ref.String())
	}
	return true, nil
}

func (s *Store) ListPrefix(ctx context.Context, bucket, prefix, token string) ([]objstore.ObjectRef, string, error) {
	if bucket == "" {
		return nil, "", objstore.Errorf(objstore.CodeInvalidArgument, "bucket must not be empty")
	}
	in := &s3.ListObjectsV2Input{
		Bucket: aws.String(bucket),
		Prefix: aws.String(prefix),
	}
	if token != "" {
		in.ContinuationToken = aws.String(token)
	}

	out, err := s.svc.ListObjectsV2WithContext(ctx, in)
	if err != nil {
		return nil, "", wrapAWS(err, "list "+bucket+"/"+prefix)
	}

	refs := make([]objstore.ObjectRef, 0, len(out.Contents))
	for _, obj := range out.Contents {
		refs = append(refs, objstore.ObjectRef{Bucket: bucket, Key: aws.StringValue(obj.Key)})
	}
	next := ""
	if aws.BoolValue(out.IsTruncated) {
		next = aws.StringValue(out.NextContinuationToken)
	}
	return refs, next, nil
}

func (s *Store) Delete(ctx context.Context, ref objstore.ObjectRef) error {
	if err := ref.Validate(); err != nil {
		return err
	}
	// S3 DeleteObject succeeds for missing keys, which gives us idempotence
	// for free.
	if _, err := s.svc.DeleteObjectWithContext(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(ref.Bucket),
		Key:    aws.String(ref.Key),
	}); err != nil {
		return wrapAWS(err, "delete "+ref.String())
	}
	s.log.WithField("key", ref.Key).Debug("deleted object")
	return nil
}

func (s *Store) PresignGet(ref objstore.ObjectRef, expiry time.Duration) (string, error) {
	if err := ref.Validate(); err != nil {
		return "", err
	}
	if err := objstore.CheckPresignExpiry(expiry); err != nil {
		return "", err
	}
	req, _ := s.svc.GetObjectRequest(&s3.GetObjectInput{
		Bucket: aws.String(ref.Bucket),
		Key:    aws.String(ref.Key),
	})
	url, err := req.Presign(expiry)
	if err != nil {
		return "", wrapAWS(err, "presign get "+ref.String())
	}
	return url, nil
}

func (s *Store) PresignPut(ref objstore.ObjectRef, expiry time.Duration) (string, error) {
	if err := ref.Validate(); err != nil {
		return "", err
	}
	if err := objstore.CheckPresignExpiry(expiry); err != nil {
		return "", err
	}
	req, _ := s.svc.PutObjectRequest(&s3.PutObjectInput{
		Bucket: aws.String(ref.Bucket),
		Key:    aws.String(ref.Key),
	})
	url, err := req.Presign(expiry)
	if err != nil {
		return "", wrapAWS(err, "presign put "+ref.String())
	}
	return url, nil
}
