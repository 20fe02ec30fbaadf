package storage

import (
	"context"
	"crypto/sha256"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestStorage(t *testing.T) (*FsStorage, string) {
	t.Helper()
	root := t.TempDir()
	fs, err := NewFsStorage(root)
	require.NoError(t, err)
	return fs, root
}

func TestCratePath(t *testing.T) {
	assert.Equal(t, "acme-1.0.0.crate", CratePath("acme", "1.0.0"))
}

func TestCrateRoundTrip(t *testing.T) {
	fs, _ := newTestStorage(t)
	ctx := context.Background()

	data := []byte("tarball bytes")
	checksum := sha256.Sum256(data)
	require.NoError(t, fs.PutCrate(ctx, "acme", "1.0.0", data, checksum))

	pulled, err := fs.PullCrate(ctx, "acme", "1.0.0")
	require.NoError(t, err)
	assert.Equal(t, data, pulled.Data)
	assert.NotNil(t, pulled.LastModified)
}

func TestPutCrateRecordsChecksum(t *testing.T) {
	fs, root := newTestStorage(t)
	ctx := context.Background()

	data := []byte("tarball bytes")
	checksum := sha256.Sum256(data)
	require.NoError(t, fs.PutCrate(ctx, "acme", "1.0.0", data, checksum))

	recorded, err := os.ReadFile(filepath.Join(root, "acme-1.0.0.crate.sha256"))
	require.NoError(t, err)
	assert.Equal(t, checksum[:], recorded)
}

func TestPullMissingCrate(t *testing.T) {
	fs, _ := newTestStorage(t)

	_, err := fs.PullCrate(context.Background(), "ghost", "1.0.0")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestDeleteCrateIsIdempotent(t *testing.T) {
	fs, _ := newTestStorage(t)
	ctx := context.Background()

	data := []byte("tarball bytes")
	checksum := sha256.Sum256(data)
	require.NoError(t, fs.PutCrate(ctx, "acme", "1.0.0", data, checksum))

	require.NoError(t, fs.DeleteCrate(ctx, "acme", "1.0.0"))
	// The compensator may run against an already-deleted key.
	require.NoError(t, fs.DeleteCrate(ctx, "acme", "1.0.0"))

	_, err := fs.PullCrate(ctx, "acme", "1.0.0")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestFileRoundTrip(t *testing.T) {
	fs, _ := newTestStorage(t)
	ctx := context.Background()

	require.NoError(t, fs.PutFile(ctx, "se/rd/serde", []byte("line1\n"), Metadata{ContentType: "application/json"}))
	data, err := fs.PullFile(ctx, "se/rd/serde")
	require.NoError(t, err)
	assert.Equal(t, []byte("line1\n"), data)

	require.NoError(t, fs.DeleteFile(ctx, "se/rd/serde"))
	_, err = fs.PullFile(ctx, "se/rd/serde")
	assert.ErrorIs(t, err, ErrNotFound)
	assert.ErrorIs(t, fs.DeleteFile(ctx, "se/rd/serde"), ErrNotFound)
}

func TestCreateOrAppendFile(t *testing.T) {
	fs, _ := newTestStorage(t)
	ctx := context.Background()

	require.NoError(t, fs.CreateOrAppendFile(ctx, "2/ab", []byte("one\n"), Metadata{}))
	require.NoError(t, fs.CreateOrAppendFile(ctx, "2/ab", []byte("two\n"), Metadata{}))

	data, err := fs.PullFile(ctx, "2/ab")
	require.NoError(t, err)
	assert.Equal(t, []byte("one\ntwo\n"), data)
}

func TestPathTraversalRejected(t *testing.T) {
	fs, root := newTestStorage(t)
	ctx := context.Background()

	outside := filepath.Join(filepath.Dir(root), "escape")
	for _, path := range []string{"../escape", "a/../../escape", "../../../../tmp/escape"} {
		err := fs.PutFile(ctx, path, []byte("nope"), Metadata{})
		assert.Error(t, err, "path %q", path)
		_, err = fs.PullFile(ctx, path)
		assert.Error(t, err, "path %q", path)
	}
	_, err := os.Stat(outside)
	assert.True(t, os.IsNotExist(err), "a traversal escaped the storage root")
}

func TestHealthcheck(t *testing.T) {
	fs, root := newTestStorage(t)
	assert.NoError(t, fs.Healthcheck(context.Background()))

	require.NoError(t, os.RemoveAll(root))
	assert.Error(t, fs.Healthcheck(context.Background()))
}
