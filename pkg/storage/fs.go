package storage

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// FsStorage stores blobs under a root directory on the local filesystem.
//
// It implements both Storage (crate tarballs) and MetadataStorage (per-crate
// index files). Writes go through a temp file in the destination directory
// followed by a rename, so readers always see a previously committed
// complete file.
type FsStorage struct {
	root string
}

// NewFsStorage creates the root directory if needed and returns a store
// rooted at it.
func NewFsStorage(root string) (*FsStorage, error) {
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve storage root: %w", err)
	}
	if err := os.MkdirAll(abs, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create storage root %s: %w", abs, err)
	}
	return &FsStorage{root: abs}, nil
}

// absPath joins a relative path with the root, rejecting anything that would
// escape it.
func (s *FsStorage) absPath(path string) (string, error) {
	joined := filepath.Join(s.root, filepath.FromSlash(path))
	if joined != s.root && !strings.HasPrefix(joined, s.root+string(filepath.Separator)) {
		return "", fmt.Errorf("path %q escapes storage root", path)
	}
	return joined, nil
}

func (s *FsStorage) writeAtomic(path string, data []byte) error {
	abs, err := s.absPath(path)
	if err != nil {
		return err
	}
	parent := filepath.Dir(abs)
	if err := os.MkdirAll(parent, 0o755); err != nil {
		return fmt.Errorf("failed to create directory %s: %w", parent, err)
	}
	tmp, err := os.CreateTemp(parent, ".tmp-*")
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}
	defer os.Remove(tmp.Name())
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to write temp file: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to sync temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("failed to close temp file: %w", err)
	}
	if err := os.Rename(tmp.Name(), abs); err != nil {
		return fmt.Errorf("failed to persist %s: %w", path, err)
	}
	return nil
}

// PullFile implements MetadataStorage.
func (s *FsStorage) PullFile(ctx context.Context, path string) ([]byte, error) {
	abs, err := s.absPath(path)
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(abs)
	if os.IsNotExist(err) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", path, err)
	}
	return data, nil
}

// PutFile implements MetadataStorage.
func (s *FsStorage) PutFile(ctx context.Context, path string, fileBytes []byte, _ Metadata) error {
	return s.writeAtomic(path, fileBytes)
}

// CreateOrAppendFile implements MetadataStorage. The concatenated result is
// written back atomically; callers hold the per-crate lock, so the
// read-concat-write sequence cannot interleave with another writer.
func (s *FsStorage) CreateOrAppendFile(ctx context.Context, path string, fileBytes []byte, metaOnCreate Metadata) error {
	existing, err := s.PullFile(ctx, path)
	switch {
	case err == nil:
	case IsNotFound(err):
		existing = nil
	default:
		return err
	}
	all := make([]byte, 0, len(existing)+len(fileBytes))
	all = append(all, existing...)
	all = append(all, fileBytes...)
	return s.PutFile(ctx, path, all, metaOnCreate)
}

// DeleteFile implements MetadataStorage.
func (s *FsStorage) DeleteFile(ctx context.Context, path string) error {
	abs, err := s.absPath(path)
	if err != nil {
		return err
	}
	if err := os.Remove(abs); err != nil {
		if os.IsNotExist(err) {
			return ErrNotFound
		}
		return fmt.Errorf("failed to delete %s: %w", path, err)
	}
	return nil
}

// PullCrate implements Storage.
func (s *FsStorage) PullCrate(ctx context.Context, name, version string) (*Pulled, error) {
	path := CratePath(name, version)
	abs, err := s.absPath(path)
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(abs)
	if os.IsNotExist(err) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read crate %s: %w", path, err)
	}
	pulled := &Pulled{Data: data}
	if st, err := os.Stat(abs); err == nil {
		mt := st.ModTime().UTC()
		pulled.LastModified = &mt
	}
	return pulled, nil
}

// PutCrate implements Storage. The checksum is recorded raw in a sidecar
// next to the tarball.
func (s *FsStorage) PutCrate(ctx context.Context, name, version string, crateBytes []byte, sha256 [32]byte) error {
	path := CratePath(name, version)
	if err := s.writeAtomic(path, crateBytes); err != nil {
		return err
	}
	return s.writeAtomic(path+".sha256", sha256[:])
}

// DeleteCrate implements Storage. A missing key is not reported as fatal:
// the delete is a compensator for failed publishes.
func (s *FsStorage) DeleteCrate(ctx context.Context, name, version string) error {
	path := CratePath(name, version)
	abs, err := s.absPath(path)
	if err != nil {
		return err
	}
	if err := os.Remove(abs); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to delete crate %s: %w", path, err)
	}
	if err := os.Remove(abs + ".sha256"); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to delete crate checksum %s: %w", path, err)
	}
	return nil
}

// Healthcheck implements Storage and MetadataStorage.
func (s *FsStorage) Healthcheck(ctx context.Context) error {
	st, err := os.Stat(s.root)
	if err != nil {
		return fmt.Errorf("storage root inaccessible: %w", err)
	}
	if !st.IsDir() {
		return fmt.Errorf("storage root %s is not a directory", s.root)
	}
	return nil
}
