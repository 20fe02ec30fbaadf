package storage

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
)

// S3Storage talks to any S3-compatible bucketing solution.
//
// The current API does not allow for streamed uploads or downloads: the
// entire body must be held in memory before transmission can start. Both
// directions could be streamed; doing so has been left to the future.
type S3Storage struct {
	client *minio.Client
	bucket string
}

// S3Config identifies a bucket and the credentials to reach it.
type S3Config struct {
	Name            string `yaml:"name"`
	EndpointURL     string `yaml:"endpoint_url"`
	Region          string `yaml:"region"`
	AccessKeyID     string `yaml:"access_key_id"`
	AccessKeySecret string `yaml:"access_key_secret"`
}

// NewS3Storage constructs a client for the configured bucket.
func NewS3Storage(cfg S3Config) (*S3Storage, error) {
	endpoint := cfg.EndpointURL
	secure := true
	if rest, ok := strings.CutPrefix(endpoint, "http://"); ok {
		endpoint, secure = rest, false
	} else if rest, ok := strings.CutPrefix(endpoint, "https://"); ok {
		endpoint = rest
	}
	client, err := minio.New(endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKeyID, cfg.AccessKeySecret, ""),
		Secure: secure,
		Region: cfg.Region,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to construct bucket client: %w", err)
	}
	return &S3Storage{client: client, bucket: cfg.Name}, nil
}

func (s *S3Storage) pullObject(ctx context.Context, path string) ([]byte, *minio.ObjectInfo, error) {
	obj, err := s.client.GetObject(ctx, s.bucket, path, minio.GetObjectOptions{})
	if err != nil {
		return nil, nil, fmt.Errorf("failed to request object %s: %w", path, err)
	}
	defer obj.Close()
	data, err := io.ReadAll(obj)
	if err != nil {
		if minio.ToErrorResponse(err).Code == "NoSuchKey" {
			return nil, nil, ErrNotFound
		}
		return nil, nil, fmt.Errorf("failed to retrieve object %s: %w", path, err)
	}
	info, err := obj.Stat()
	if err != nil {
		return data, nil, nil
	}
	return data, &info, nil
}

func (s *S3Storage) putObject(ctx context.Context, path string, data []byte, meta Metadata) error {
	opts := minio.PutObjectOptions{
		ContentType:     meta.ContentType,
		ContentEncoding: meta.ContentEncoding,
		CacheControl:    meta.CacheControl,
		UserMetadata:    meta.KV,
	}
	if meta.Sha256 != nil {
		// Recorded as the bucket's base64 checksum field.
		opts.Checksum = minio.ChecksumSHA256
	}
	_, err := s.client.PutObject(ctx, s.bucket, path, bytes.NewReader(data), int64(len(data)), opts)
	if err != nil {
		return fmt.Errorf("failed to put object %s: %w", path, err)
	}
	return nil
}

func (s *S3Storage) deleteObject(ctx context.Context, path string) error {
	if err := s.client.RemoveObject(ctx, s.bucket, path, minio.RemoveObjectOptions{}); err != nil {
		return fmt.Errorf("failed to delete object %s: %w", path, err)
	}
	return nil
}

func (s *S3Storage) roundtrip(ctx context.Context, path string) error {
	if err := s.putObject(ctx, path, []byte("ok"), Metadata{ContentType: "text/plain"}); err != nil {
		return err
	}
	data, _, err := s.pullObject(ctx, path)
	if err != nil {
		return err
	}
	if !bytes.Equal(data, []byte("ok")) {
		return fmt.Errorf("bucket %s returned wrong data", s.bucket)
	}
	return nil
}

// PullFile implements MetadataStorage.
func (s *S3Storage) PullFile(ctx context.Context, path string) ([]byte, error) {
	data, _, err := s.pullObject(ctx, path)
	return data, err
}

// PutFile implements MetadataStorage.
func (s *S3Storage) PutFile(ctx context.Context, path string, fileBytes []byte, meta Metadata) error {
	return s.putObject(ctx, path, fileBytes, meta)
}

// CreateOrAppendFile implements MetadataStorage by read-concat-write.
// Callers hold the per-crate lock, so no other writer can interleave.
func (s *S3Storage) CreateOrAppendFile(ctx context.Context, path string, fileBytes []byte, metaOnCreate Metadata) error {
	all, _, err := s.pullObject(ctx, path)
	switch {
	case err == nil:
	case IsNotFound(err):
		all = nil
	default:
		return err
	}
	all = append(all, fileBytes...)
	return s.putObject(ctx, path, all, metaOnCreate)
}

// DeleteFile implements MetadataStorage.
func (s *S3Storage) DeleteFile(ctx context.Context, path string) error {
	return s.deleteObject(ctx, path)
}

// PullCrate implements Storage.
func (s *S3Storage) PullCrate(ctx context.Context, name, version string) (*Pulled, error) {
	data, info, err := s.pullObject(ctx, CratePath(name, version))
	if err != nil {
		return nil, err
	}
	pulled := &Pulled{Data: data}
	if info != nil && !info.LastModified.IsZero() {
		mt := info.LastModified.UTC()
		pulled.LastModified = &mt
	}
	return pulled, nil
}

// PutCrate implements Storage.
func (s *S3Storage) PutCrate(ctx context.Context, name, version string, crateBytes []byte, sha256 [32]byte) error {
	return s.putObject(ctx, CratePath(name, version), crateBytes, Metadata{
		ContentType:     "application/x-tar",
		ContentLength:   len(crateBytes),
		CacheControl:    "public,immutable",
		ContentEncoding: "gzip",
		Sha256:          &sha256,
	})
}

// DeleteCrate implements Storage. S3 deletes of missing keys succeed, which
// keeps the compensator for failed publishes idempotent.
func (s *S3Storage) DeleteCrate(ctx context.Context, name, version string) error {
	return s.deleteObject(ctx, CratePath(name, version))
}

// Healthcheck implements Storage and MetadataStorage by writing and reading
// back a probe object.
func (s *S3Storage) Healthcheck(ctx context.Context) error {
	return s.roundtrip(ctx, ".healthcheck")
}
