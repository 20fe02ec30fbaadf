// Package fsindex implements the index provider on top of a metadata blob
// store, one newline-delimited JSON file per crate.
//
// Each non-empty line of a crate's file is a version record, optionally
// followed on the last line by a publish record preserving the full
// publish-time manifest. Files are replaced atomically on write, so readers
// always observe a previously committed complete file.
package fsindex

import (
	"context"
	"encoding/hex"
	"errors"
	"fmt"

	"github.com/freighter-registry/freighter/pkg/index"
	"github.com/freighter-registry/freighter/pkg/log"
	"github.com/freighter-registry/freighter/pkg/storage"
	"github.com/freighter-registry/freighter/pkg/types"
)

// Index is a file-backed index provider.
type Index struct {
	fs    storage.MetadataStorage
	locks *index.AccessLocks
}

// New returns an index persisting per-crate metadata files through fs.
func New(fs storage.MetadataStorage) *Index {
	return &Index{
		fs:    fs,
		locks: index.NewAccessLocks(),
	}
}

// accessCrate resolves a crate name to its metadata file and lock handle.
// The caller must release the returned handle.
func (i *Index) accessCrate(crateName string) (*index.LockHandle, string, error) {
	lc := types.CanonicalName(crateName)
	relPath := types.IndexPath(lc)
	if relPath == "" {
		return nil, "", index.ErrNameNotAllowed
	}
	return i.locks.Acquire(lc), relPath, nil
}

// Healthcheck implements index.Provider.
func (i *Index) Healthcheck(ctx context.Context) error {
	return i.fs.Healthcheck(ctx)
}

// GetSparseEntry implements index.Provider.
func (i *Index) GetSparseEntry(ctx context.Context, crateName string) (*types.SparseEntries, error) {
	lock, relPath, err := i.accessCrate(crateName)
	if err != nil {
		return nil, err
	}
	defer lock.Release()

	lock.RLock()
	defer lock.RUnlock()

	versions, _, err := i.readMeta(ctx, relPath)
	if err != nil {
		return nil, err
	}
	return &types.SparseEntries{Entries: versions}, nil
}

// ConfirmExistence implements index.Provider.
func (i *Index) ConfirmExistence(ctx context.Context, crateName, version string) (*types.VersionExists, error) {
	lock, relPath, err := i.accessCrate(crateName)
	if err != nil {
		return nil, err
	}
	defer lock.Release()

	lock.RLock()
	defer lock.RUnlock()

	versions, _, err := i.readMeta(ctx, relPath)
	if err != nil {
		return nil, err
	}
	// Last occurrence wins if duplicates are ever present.
	for n := len(versions) - 1; n >= 0; n-- {
		if versions[n].Vers == version {
			var cksum [32]byte
			raw, err := hex.DecodeString(versions[n].Cksum)
			if err != nil || len(raw) != 32 {
				return nil, fmt.Errorf("malformed checksum for %s-%s", crateName, version)
			}
			copy(cksum[:], raw)
			return &types.VersionExists{
				Yanked:          versions[n].Yanked,
				TarballChecksum: cksum,
			}, nil
		}
	}
	return nil, index.ErrNotFound
}

// YankCrate implements index.Provider.
func (i *Index) YankCrate(ctx context.Context, crateName, version string) error {
	return i.setYanked(ctx, crateName, version, true)
}

// UnyankCrate implements index.Provider.
func (i *Index) UnyankCrate(ctx context.Context, crateName, version string) error {
	return i.setYanked(ctx, crateName, version, false)
}

func (i *Index) setYanked(ctx context.Context, crateName, version string, yank bool) error {
	lock, relPath, err := i.accessCrate(crateName)
	if err != nil {
		return err
	}
	defer lock.Release()

	lock.Lock()
	defer lock.Unlock()

	versions, publish, err := i.readMeta(ctx, relPath)
	if err != nil {
		return err
	}
	found := false
	for n := len(versions) - 1; n >= 0; n-- {
		if versions[n].Vers == version {
			versions[n].Yanked = yank
			found = true
			break
		}
	}
	if !found {
		return index.ErrNotFound
	}
	return i.writeMeta(ctx, relPath, versions, publish)
}

// Publish implements index.Provider.
//
// The endStep continuation runs after uniqueness has been verified and
// before the metadata file is replaced, so an index entry always implies a
// completed storage put.
func (i *Index) Publish(ctx context.Context, p *types.Publish, tarballChecksum [32]byte, endStep index.EndStep) (*types.CompletedPublication, error) {
	release := types.ReleaseFromPublish(p, hex.EncodeToString(tarballChecksum[:]))

	lock, relPath, err := i.accessCrate(release.Name)
	if err != nil {
		return nil, err
	}
	defer lock.Release()

	lock.Lock()
	defer lock.Unlock()

	existing, _, err := i.readMeta(ctx, relPath)
	switch {
	case err == nil, errors.Is(err, index.ErrNotFound):
	default:
		return nil, err
	}
	for _, v := range existing {
		if v.Vers == release.Vers {
			return nil, &index.ConflictError{Msg: fmt.Sprintf("%s-%s already exists", p.Name, p.Vers)}
		}
	}

	if err := endStep(ctx); err != nil {
		return nil, err
	}

	if err := i.writeMeta(ctx, relPath, append(existing, release), p); err != nil {
		return nil, err
	}
	return &types.CompletedPublication{}, nil
}

// Search implements index.Provider. The file layout cannot enumerate crates
// efficiently, so searching is unsupported.
func (i *Index) Search(ctx context.Context, query string, limit int) (*types.SearchResults, error) {
	return nil, index.ErrUnsupported
}

// List implements index.Provider. Unsupported, as for Search.
func (i *Index) List(ctx context.Context, q *types.ListQuery) (*types.ListAll, error) {
	return nil, index.ErrUnsupported
}

func (i *Index) readMeta(ctx context.Context, relPath string) ([]types.CrateVersion, *types.Publish, error) {
	data, err := i.fs.PullFile(ctx, relPath)
	if err != nil {
		return nil, nil, index.FromStorage(err)
	}
	versions, publish, err := deserializeMeta(data)
	if err != nil {
		log.WithComponent("fsindex").Error().Str("path", relPath).Err(err).Msg("invalid index file format")
		return nil, nil, err
	}
	return versions, publish, nil
}

func (i *Index) writeMeta(ctx context.Context, relPath string, versions []types.CrateVersion, publish *types.Publish) error {
	data, err := serializeMeta(versions, publish)
	if err != nil {
		return err
	}
	meta := storage.Metadata{
		ContentType:   "application/json",
		ContentLength: len(data),
	}
	if err := i.fs.PutFile(ctx, relPath, data, meta); err != nil {
		return fmt.Errorf("failed to write crate metadata %s: %w", relPath, err)
	}
	return nil
}
