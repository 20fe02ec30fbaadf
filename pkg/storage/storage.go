package storage

import (
	"context"
	"fmt"
	"time"
)

// Storage is the durable byte-addressed store for crate tarballs.
//
// Keys are derived from (name, version) as `{name}-{version}.crate`.
type Storage interface {
	// PullCrate retrieves the tarball for a crate version.
	PullCrate(ctx context.Context, name, version string) (*Pulled, error)
	// PutCrate stores the tarball for a crate version along with its
	// SHA-256 checksum.
	PutCrate(ctx context.Context, name, version string, crateBytes []byte, sha256 [32]byte) error
	// DeleteCrate removes the tarball for a crate version. It is called to
	// undo a put after a failed index transaction; deleting a missing key is
	// not an error.
	DeleteCrate(ctx context.Context, name, version string) error

	Healthcheck(ctx context.Context) error
}

// Pulled is the result of a successful PullCrate.
type Pulled struct {
	Data         []byte
	LastModified *time.Time
}

// Metadata describes a blob stored through a MetadataStorage.
type Metadata struct {
	ContentType     string
	ContentLength   int
	CacheControl    string
	ContentEncoding string
	Sha256          *[32]byte
	KV              map[string]string
}

// MetadataStorage is a blob store with richer metadata, used by index
// backends that persist per-crate files.
type MetadataStorage interface {
	PullFile(ctx context.Context, path string) ([]byte, error)
	PutFile(ctx context.Context, path string, fileBytes []byte, meta Metadata) error
	// CreateOrAppendFile appends to an existing file, or creates it with the
	// given metadata. Callers are expected to hold the per-crate lock.
	CreateOrAppendFile(ctx context.Context, path string, fileBytes []byte, metaOnCreate Metadata) error
	DeleteFile(ctx context.Context, path string) error

	Healthcheck(ctx context.Context) error
}

// CratePath derives the storage key for a crate tarball.
func CratePath(name, version string) string {
	return fmt.Sprintf("%s-%s.crate", name, version)
}
