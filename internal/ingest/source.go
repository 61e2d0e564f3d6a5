package ingest

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/klauspost/compress/gzip"
	"github.com/klauspost/compress/zstd"
	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
	"github.com/pierrec/lz4/v4"
)

// ErrObjectNotFound is returned when the bucket or key does not exist.
var ErrObjectNotFound = errors.New("object not found")

// ObjectGetter fetches objects from a bucket store.
type ObjectGetter interface {
	GetObject(ctx context.Context, bucket, key string) (io.ReadCloser, error)
}

// S3Options configures the bucket store. Credentials are read from the named
// environment variables so they never live in the config file.
type S3Options struct {
	Endpoint     string
	AccessKeyEnv string
	SecretKeyEnv string
	Secure       bool
	Region       string
}

// MinioStore reads dictionaries from an S3-compatible store.
type MinioStore struct {
	client *minio.Client
}

// NewMinioStore connects a minio client. No request is made until an object
// is fetched.
func NewMinioStore(opts S3Options) (*MinioStore, error) {
	if opts.Endpoint == "" {
		return nil, fmt.Errorf("s3 endpoint not configured")
	}
	client, err := minio.New(opts.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(os.Getenv(opts.AccessKeyEnv), os.Getenv(opts.SecretKeyEnv), ""),
		Secure: opts.Secure,
		Region: opts.Region,
	})
	if err != nil {
		return nil, fmt.Errorf("creating s3 client: %w", err)
	}
	return &MinioStore{client: client}, nil
}

// GetObject opens bucket/key. The object is stat'ed first so a missing key
// fails here rather than on the first read.
func (s *MinioStore) GetObject(ctx context.Context, bucket, key string) (io.ReadCloser, error) {
	obj, err := s.client.GetObject(ctx, bucket, key, minio.GetObjectOptions{})
	if err != nil {
		return nil, err
	}
	if _, err := obj.Stat(); err != nil {
		obj.Close()
		errResp := minio.ToErrorResponse(err)
		if errResp.Code == "NoSuchKey" || errResp.Code == "NoSuchBucket" || errResp.Code == "NotFound" {
			return nil, fmt.Errorf("%s/%s: %w", bucket, key, ErrObjectNotFound)
		}
		return nil, err
	}
	return obj, nil
}

func openFile(path string) (io.ReadCloser, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening dictionary: %w", err)
	}
	return f, nil
}

// decompress wraps raw according to the extension of name. Unknown
// extensions are read as plain text. Closing the result closes raw.
func decompress(raw io.ReadCloser, name string) (io.ReadCloser, error) {
	switch strings.ToLower(filepath.Ext(name)) {
	case ".gz", ".gzip":
		zr, err := gzip.NewReader(raw)
		if err != nil {
			return nil, err
		}
		return &stackedCloser{Reader: zr, closers: []func() error{zr.Close, raw.Close}}, nil
	case ".zst", ".zstd":
		dec, err := zstd.NewReader(raw)
		if err != nil {
			return nil, err
		}
		return &stackedCloser{Reader: dec, closers: []func() error{
			func() error { dec.Close(); return nil },
			raw.Close,
		}}, nil
	case ".lz4":
		return &stackedCloser{Reader: lz4.NewReader(raw), closers: []func() error{raw.Close}}, nil
	default:
		return raw, nil
	}
}

type stackedCloser struct {
	io.Reader
	closers []func() error
}

func (s *stackedCloser) Close() error {
	var first error
	for _, c := range s.closers {
		if err := c(); err != nil && first == nil {
			first = err
		}
	}
	return first
}
