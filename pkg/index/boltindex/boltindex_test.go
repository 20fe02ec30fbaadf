package boltindex

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/freighter-registry/freighter/pkg/index"
	"github.com/freighter-registry/freighter/pkg/types"
)

func newTestIndex(t *testing.T) *Index {
	t.Helper()
	idx, err := New(t.TempDir())
	require.NoError(t, err)
	t.Cleanup(func() { idx.Close() })
	return idx
}

func publishReq(name, vers string) *types.Publish {
	return &types.Publish{
		Name:     name,
		Vers:     vers,
		Deps:     []types.PublishDependency{},
		Features: map[string][]string{},
	}
}

func noopEndStep(ctx context.Context) error { return nil }

func mustPublish(t *testing.T, idx *Index, p *types.Publish, checksum [32]byte) {
	t.Helper()
	_, err := idx.Publish(context.Background(), p, checksum, noopEndStep)
	require.NoError(t, err)
}

func TestPublishAndSparseEntry(t *testing.T) {
	idx := newTestIndex(t)
	checksum := sha256.Sum256([]byte("tarball"))

	p := publishReq("acme", "1.0.0")
	p.Deps = []types.PublishDependency{{
		Name:       "serde",
		VersionReq: "^1",
		Features:   []string{"derive"},
		Kind:       types.DependencyKindNormal,
	}}
	p.Features = map[string][]string{"default": {"serde"}}
	mustPublish(t, idx, p, checksum)

	entries, err := idx.GetSparseEntry(context.Background(), "acme")
	require.NoError(t, err)
	require.Len(t, entries.Entries, 1)

	entry := entries.Entries[0]
	assert.Equal(t, "acme", entry.Name)
	assert.Equal(t, "1.0.0", entry.Vers)
	assert.Equal(t, hex.EncodeToString(checksum[:]), entry.Cksum)
	require.Len(t, entry.Deps, 1)
	assert.Equal(t, "serde", entry.Deps[0].Name)
	assert.Equal(t, []string{"derive"}, entry.Deps[0].Features)
	assert.Equal(t, []string{"serde"}, entry.Features["default"])
	assert.NotNil(t, entries.LastModified)
}

func TestPublishConflictRollsBack(t *testing.T) {
	idx := newTestIndex(t)
	checksum := sha256.Sum256([]byte("tarball"))
	mustPublish(t, idx, publishReq("acme", "1.0.0"), checksum)

	endStepRan := false
	_, err := idx.Publish(context.Background(), publishReq("acme", "1.0.0"), checksum, func(ctx context.Context) error {
		endStepRan = true
		return nil
	})

	_, ok := index.AsConflict(err)
	require.True(t, ok, "expected a conflict, got %v", err)
	assert.False(t, endStepRan)

	entries, err := idx.GetSparseEntry(context.Background(), "acme")
	require.NoError(t, err)
	assert.Len(t, entries.Entries, 1)
}

func TestPublishEndStepFailureRollsBackTransaction(t *testing.T) {
	idx := newTestIndex(t)
	checksum := sha256.Sum256([]byte("tarball"))

	boom := fmt.Errorf("upload exploded")
	_, err := idx.Publish(context.Background(), publishReq("acme", "1.0.0"), checksum, func(ctx context.Context) error {
		return boom
	})
	require.ErrorIs(t, err, boom)

	// The version insert and fan-out were rolled back with the transaction.
	_, err = idx.GetSparseEntry(context.Background(), "acme")
	assert.ErrorIs(t, err, index.ErrNotFound)

	// The crate is publishable again afterwards.
	mustPublish(t, idx, publishReq("acme", "1.0.0"), checksum)
}

func TestPublicationOrderPreserved(t *testing.T) {
	idx := newTestIndex(t)
	checksum := sha256.Sum256([]byte("tarball"))

	for _, vers := range []string{"1.0.0", "1.1.0", "1.0.1"} {
		mustPublish(t, idx, publishReq("acme", vers), checksum)
	}

	entries, err := idx.GetSparseEntry(context.Background(), "acme")
	require.NoError(t, err)
	require.Len(t, entries.Entries, 3)
	assert.Equal(t, "1.0.0", entries.Entries[0].Vers)
	assert.Equal(t, "1.1.0", entries.Entries[1].Vers)
	assert.Equal(t, "1.0.1", entries.Entries[2].Vers)
}

func TestYankFlipsOnlyTheFlag(t *testing.T) {
	idx := newTestIndex(t)
	checksum := sha256.Sum256([]byte("tarball"))
	mustPublish(t, idx, publishReq("acme", "1.0.0"), checksum)

	before, err := idx.GetSparseEntry(context.Background(), "acme")
	require.NoError(t, err)

	require.NoError(t, idx.YankCrate(context.Background(), "acme", "1.0.0"))

	after, err := idx.GetSparseEntry(context.Background(), "acme")
	require.NoError(t, err)
	require.Len(t, after.Entries, 1)
	assert.True(t, after.Entries[0].Yanked)

	yanked := after.Entries[0]
	yanked.Yanked = false
	assert.Equal(t, before.Entries[0], yanked)

	exists, err := idx.ConfirmExistence(context.Background(), "acme", "1.0.0")
	require.NoError(t, err)
	assert.True(t, exists.Yanked)
	assert.Equal(t, checksum, exists.TarballChecksum)
}

func TestSearchRankingAndTotal(t *testing.T) {
	idx := newTestIndex(t)
	checksum := sha256.Sum256([]byte("tarball"))

	for _, name := range []string{"serde", "serde-json", "not-serde", "tokio"} {
		mustPublish(t, idx, publishReq(name, "1.0.0"), checksum)
	}
	mustPublish(t, idx, publishReq("serde", "1.2.0"), checksum)

	results, err := idx.Search(context.Background(), "serde", 2)
	require.NoError(t, err)
	// Total reports the full match count, not the truncated size.
	assert.Equal(t, 3, results.Meta.Total)
	require.Len(t, results.Crates, 2)
	assert.Equal(t, "serde", results.Crates[0].Name)
	assert.Equal(t, "1.2.0", results.Crates[0].MaxVersion)
	assert.Equal(t, "serde-json", results.Crates[1].Name)

	// Stable for identical inputs.
	again, err := idx.Search(context.Background(), "serde", 2)
	require.NoError(t, err)
	assert.Equal(t, results, again)
}

func TestListAllCrates(t *testing.T) {
	idx := newTestIndex(t)
	checksum := sha256.Sum256([]byte("tarball"))

	desc := "a crate"
	p := publishReq("acme", "1.0.0")
	p.Description = &desc
	p.Keywords = []string{"example"}
	mustPublish(t, idx, p, checksum)
	mustPublish(t, idx, publishReq("acme", "1.1.0"), checksum)
	mustPublish(t, idx, publishReq("zoo", "0.1.0"), checksum)

	all, err := idx.List(context.Background(), &types.ListQuery{})
	require.NoError(t, err)
	require.Len(t, all.Results, 2)
	assert.Equal(t, "acme", all.Results[0].Name)
	require.Len(t, all.Results[0].Versions, 2)
	assert.Equal(t, "1.0.0", all.Results[0].Versions[0].Version)
	assert.Equal(t, "zoo", all.Results[1].Name)

	perPage := 1
	page := 2
	paged, err := idx.List(context.Background(), &types.ListQuery{PerPage: &perPage, Page: &page})
	require.NoError(t, err)
	require.Len(t, paged.Results, 1)
	assert.Equal(t, "zoo", paged.Results[0].Name)
}

func TestCrateNameNotAllowed(t *testing.T) {
	idx := newTestIndex(t)
	checksum := sha256.Sum256([]byte("tarball"))

	_, err := idx.GetSparseEntry(context.Background(), "foo.bar")
	assert.ErrorIs(t, err, index.ErrNameNotAllowed)

	_, err = idx.Publish(context.Background(), publishReq("foo/bar", "1.0.0"), checksum, noopEndStep)
	assert.ErrorIs(t, err, index.ErrNameNotAllowed)
}
