// Package boltindex implements the index provider on an embedded BoltDB
// database, with crates, versions, dependencies, and features fanned out
// into their own buckets.
//
// BoltDB gives the publication the transaction the relational layout needs:
// the version insert, the dependency and feature fan-out, and the end-step
// continuation all run inside one Update transaction, and any failure rolls
// the whole publication back.
package boltindex

import (
	"context"
	"encoding/binary"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/Masterminds/semver/v3"
	"github.com/freighter-registry/freighter/pkg/index"
	"github.com/freighter-registry/freighter/pkg/metrics"
	"github.com/freighter-registry/freighter/pkg/types"
	bolt "go.etcd.io/bbolt"
)

var (
	// Bucket names
	bucketCrates      = []byte("crates")
	bucketVersions    = []byte("versions")
	bucketVersionKeys = []byte("version_keys")
	bucketDeps        = []byte("dependencies")
	bucketFeatures    = []byte("features")
)

// Index is a BoltDB-backed index provider.
type Index struct {
	db *bolt.DB
}

// crateRow is the per-crate record in the crates bucket, keyed by canonical
// name.
type crateRow struct {
	Name          string    `json:"name"`
	Description   *string   `json:"description"`
	Documentation *string   `json:"documentation"`
	Homepage      *string   `json:"homepage"`
	Repository    *string   `json:"repository"`
	Keywords      []string  `json:"keywords"`
	Categories    []string  `json:"categories"`
	CreatedAt     time.Time `json:"created_at"`
	UpdatedAt     time.Time `json:"updated_at"`
}

// versionRow is one version in a crate's versions sub-bucket, keyed by
// insertion sequence. Dependencies and features live in their own buckets.
type versionRow struct {
	Vers   string  `json:"vers"`
	Cksum  string  `json:"cksum"`
	Yanked bool    `json:"yanked"`
	Links  *string `json:"links,omitempty"`
	V      uint32  `json:"v"`
}

// New opens (creating if necessary) the index database under dataDir.
func New(dataDir string) (*Index, error) {
	dbPath := filepath.Join(dataDir, "index.db")

	db, err := bolt.Open(dbPath, 0o600, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to open index database: %w", err)
	}

	err = db.Update(func(tx *bolt.Tx) error {
		for _, bucket := range [][]byte{bucketCrates, bucketVersions, bucketVersionKeys, bucketDeps, bucketFeatures} {
			if _, err := tx.CreateBucketIfNotExists(bucket); err != nil {
				return fmt.Errorf("failed to create bucket %s: %w", bucket, err)
			}
		}
		return nil
	})
	if err != nil {
		db.Close()
		return nil, err
	}

	return &Index{db: db}, nil
}

// Close closes the database.
func (i *Index) Close() error {
	return i.db.Close()
}

// Healthcheck implements index.Provider.
func (i *Index) Healthcheck(ctx context.Context) error {
	return i.db.View(func(tx *bolt.Tx) error {
		if tx.Bucket(bucketCrates) == nil {
			return fmt.Errorf("index database missing crates bucket")
		}
		return nil
	})
}

func canonical(crateName string) (string, error) {
	lc := types.CanonicalName(crateName)
	if !types.ValidName(lc) {
		return "", index.ErrNameNotAllowed
	}
	return lc, nil
}

// versionKey is the uniqueness key for a (crate, vers) pair.
func versionKey(lcName, vers string) []byte {
	return []byte(lcName + "\x00" + vers)
}

func seqKey(seq uint64) []byte {
	var k [8]byte
	binary.BigEndian.PutUint64(k[:], seq)
	return k[:]
}

// GetSparseEntry implements index.Provider.
func (i *Index) GetSparseEntry(ctx context.Context, crateName string) (*types.SparseEntries, error) {
	lc, err := canonical(crateName)
	if err != nil {
		return nil, err
	}

	var entries []types.CrateVersion
	var lastModified *time.Time

	err = i.db.View(func(tx *bolt.Tx) error {
		raw := tx.Bucket(bucketCrates).Get([]byte(lc))
		if raw == nil {
			return index.ErrNotFound
		}
		var crate crateRow
		if err := json.Unmarshal(raw, &crate); err != nil {
			return fmt.Errorf("failed to decode crate row %s: %w", lc, err)
		}
		mt := crate.UpdatedAt
		lastModified = &mt

		versions := tx.Bucket(bucketVersions).Bucket([]byte(lc))
		if versions == nil {
			return index.ErrNotFound
		}
		return versions.ForEach(func(k, v []byte) error {
			var row versionRow
			if err := json.Unmarshal(v, &row); err != nil {
				return fmt.Errorf("failed to decode version row: %w", err)
			}
			entry, err := i.assembleVersion(tx, lc, crate.Name, row)
			if err != nil {
				return err
			}
			entries = append(entries, entry)
			return nil
		})
	})
	if err != nil {
		return nil, err
	}
	return &types.SparseEntries{Entries: entries, LastModified: lastModified}, nil
}

// assembleVersion joins a version row with its dependency and feature rows.
func (i *Index) assembleVersion(tx *bolt.Tx, lcName, name string, row versionRow) (types.CrateVersion, error) {
	entry := types.CrateVersion{
		Name:      name,
		Vers:      row.Vers,
		Deps:      []types.Dependency{},
		Cksum:     row.Cksum,
		Features:  map[string][]string{},
		Yanked:    row.Yanked,
		Links:     row.Links,
		V:         row.V,
		Features2: map[string][]string{},
	}

	if deps := tx.Bucket(bucketDeps).Bucket(versionKey(lcName, row.Vers)); deps != nil {
		err := deps.ForEach(func(k, v []byte) error {
			var d types.Dependency
			if err := json.Unmarshal(v, &d); err != nil {
				return fmt.Errorf("failed to decode dependency row: %w", err)
			}
			entry.Deps = append(entry.Deps, d)
			return nil
		})
		if err != nil {
			return entry, err
		}
	}

	if features := tx.Bucket(bucketFeatures).Bucket(versionKey(lcName, row.Vers)); features != nil {
		err := features.ForEach(func(k, v []byte) error {
			var actions []string
			if err := json.Unmarshal(v, &actions); err != nil {
				return fmt.Errorf("failed to decode feature row: %w", err)
			}
			entry.Features[string(k)] = actions
			return nil
		})
		if err != nil {
			return entry, err
		}
	}

	return entry, nil
}

// ConfirmExistence implements index.Provider.
func (i *Index) ConfirmExistence(ctx context.Context, crateName, version string) (*types.VersionExists, error) {
	lc, err := canonical(crateName)
	if err != nil {
		return nil, err
	}

	var exists types.VersionExists
	err = i.db.View(func(tx *bolt.Tx) error {
		row, _, err := findVersion(tx, lc, version)
		if err != nil {
			return err
		}
		raw, err := hex.DecodeString(row.Cksum)
		if err != nil || len(raw) != 32 {
			return fmt.Errorf("malformed checksum for %s-%s", crateName, version)
		}
		exists.Yanked = row.Yanked
		copy(exists.TarballChecksum[:], raw)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &exists, nil
}

func findVersion(tx *bolt.Tx, lcName, version string) (versionRow, []byte, error) {
	var row versionRow
	seq := tx.Bucket(bucketVersionKeys).Get(versionKey(lcName, version))
	if seq == nil {
		return row, nil, index.ErrNotFound
	}
	versions := tx.Bucket(bucketVersions).Bucket([]byte(lcName))
	if versions == nil {
		return row, nil, index.ErrNotFound
	}
	raw := versions.Get(seq)
	if raw == nil {
		return row, nil, index.ErrNotFound
	}
	if err := json.Unmarshal(raw, &row); err != nil {
		return row, nil, fmt.Errorf("failed to decode version row: %w", err)
	}
	return row, seq, nil
}

// YankCrate implements index.Provider.
func (i *Index) YankCrate(ctx context.Context, crateName, version string) error {
	return i.setYanked(crateName, version, true)
}

// UnyankCrate implements index.Provider.
func (i *Index) UnyankCrate(ctx context.Context, crateName, version string) error {
	return i.setYanked(crateName, version, false)
}

// setYanked flips only the yanked flag; every other field of the row is
// rewritten unchanged.
func (i *Index) setYanked(crateName, version string, yank bool) error {
	lc, err := canonical(crateName)
	if err != nil {
		return err
	}
	return i.db.Update(func(tx *bolt.Tx) error {
		row, seq, err := findVersion(tx, lc, version)
		if err != nil {
			return err
		}
		row.Yanked = yank
		data, err := json.Marshal(&row)
		if err != nil {
			return fmt.Errorf("failed to encode version row: %w", err)
		}
		return tx.Bucket(bucketVersions).Bucket([]byte(lc)).Put(seq, data)
	})
}

// Publish implements index.Provider.
//
// Everything runs in one write transaction: crate upsert, the uniqueness
// check on (crate, vers), the version insert, the dependency and feature
// fan-out, and the endStep continuation. An endStep failure aborts the
// transaction, so a committed version row always implies a completed
// storage put.
func (i *Index) Publish(ctx context.Context, p *types.Publish, tarballChecksum [32]byte, endStep index.EndStep) (*types.CompletedPublication, error) {
	lc, err := canonical(p.Name)
	if err != nil {
		return nil, err
	}
	release := types.ReleaseFromPublish(p, hex.EncodeToString(tarballChecksum[:]))
	now := time.Now().UTC()

	err = i.db.Update(func(tx *bolt.Tx) error {
		timer := metrics.NewTimer()
		if err := upsertCrate(tx, lc, p, now); err != nil {
			return err
		}
		timer.ObserveDurationVec(metrics.PublishComponentDuration, "crate")

		timer = metrics.NewTimer()
		versionKeys := tx.Bucket(bucketVersionKeys)
		if versionKeys.Get(versionKey(lc, release.Vers)) != nil {
			return &index.ConflictError{Msg: fmt.Sprintf("%s-%s already exists", p.Name, p.Vers)}
		}

		versions, err := tx.Bucket(bucketVersions).CreateBucketIfNotExists([]byte(lc))
		if err != nil {
			return fmt.Errorf("failed to create versions bucket: %w", err)
		}
		seq, err := versions.NextSequence()
		if err != nil {
			return fmt.Errorf("failed to allocate version sequence: %w", err)
		}
		row := versionRow{
			Vers:   release.Vers,
			Cksum:  release.Cksum,
			Yanked: false,
			Links:  release.Links,
			V:      release.V,
		}
		data, err := json.Marshal(&row)
		if err != nil {
			return fmt.Errorf("failed to encode version row: %w", err)
		}
		if err := versions.Put(seqKey(seq), data); err != nil {
			return fmt.Errorf("failed to insert version row: %w", err)
		}
		if err := versionKeys.Put(versionKey(lc, release.Vers), seqKey(seq)); err != nil {
			return fmt.Errorf("failed to insert version key: %w", err)
		}
		timer.ObserveDurationVec(metrics.PublishComponentDuration, "version")

		timer = metrics.NewTimer()
		if err := fanOut(tx, lc, release); err != nil {
			return err
		}
		timer.ObserveDurationVec(metrics.PublishComponentDuration, "fanout")

		timer = metrics.NewTimer()
		err = endStep(ctx)
		timer.ObserveDurationVec(metrics.PublishComponentDuration, "end_step")
		return err
	})
	if err != nil {
		return nil, err
	}
	return &types.CompletedPublication{}, nil
}

func upsertCrate(tx *bolt.Tx, lcName string, p *types.Publish, now time.Time) error {
	crates := tx.Bucket(bucketCrates)
	var crate crateRow
	if raw := crates.Get([]byte(lcName)); raw != nil {
		if err := json.Unmarshal(raw, &crate); err != nil {
			return fmt.Errorf("failed to decode crate row %s: %w", lcName, err)
		}
	} else {
		crate.Name = p.Name
		crate.CreatedAt = now
	}
	crate.Description = p.Description
	crate.Documentation = p.Documentation
	crate.Homepage = p.Homepage
	crate.Repository = p.Repository
	crate.Keywords = p.Keywords
	crate.Categories = p.Categories
	crate.UpdatedAt = now

	data, err := json.Marshal(&crate)
	if err != nil {
		return fmt.Errorf("failed to encode crate row: %w", err)
	}
	return crates.Put([]byte(lcName), data)
}

func fanOut(tx *bolt.Tx, lcName string, release types.CrateVersion) error {
	deps, err := tx.Bucket(bucketDeps).CreateBucketIfNotExists(versionKey(lcName, release.Vers))
	if err != nil {
		return fmt.Errorf("failed to create dependencies bucket: %w", err)
	}
	for n := range release.Deps {
		data, err := json.Marshal(&release.Deps[n])
		if err != nil {
			return fmt.Errorf("failed to encode dependency row: %w", err)
		}
		seq, err := deps.NextSequence()
		if err != nil {
			return fmt.Errorf("failed to allocate dependency sequence: %w", err)
		}
		if err := deps.Put(seqKey(seq), data); err != nil {
			return fmt.Errorf("failed to insert dependency row: %w", err)
		}
	}

	features, err := tx.Bucket(bucketFeatures).CreateBucketIfNotExists(versionKey(lcName, release.Vers))
	if err != nil {
		return fmt.Errorf("failed to create features bucket: %w", err)
	}
	for name, actions := range release.Features {
		data, err := json.Marshal(actions)
		if err != nil {
			return fmt.Errorf("failed to encode feature row: %w", err)
		}
		if err := features.Put([]byte(name), data); err != nil {
			return fmt.Errorf("failed to insert feature row: %w", err)
		}
	}
	return nil
}

// Search implements index.Provider. Matching is case-insensitive substring
// on crate name; exact matches rank first, then prefix matches, then the
// rest, each group ordered by name for stable output. Meta.Total reports the
// full match count, not the truncated size.
func (i *Index) Search(ctx context.Context, query string, limit int) (*types.SearchResults, error) {
	q := strings.ToLower(query)

	type hit struct {
		crate crateRow
		lc    string
		rank  int
	}
	var hits []hit

	err := i.db.View(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketCrates).ForEach(func(k, v []byte) error {
			lc := string(k)
			if !strings.Contains(lc, q) {
				return nil
			}
			var crate crateRow
			if err := json.Unmarshal(v, &crate); err != nil {
				return fmt.Errorf("failed to decode crate row %s: %w", lc, err)
			}
			rank := 2
			switch {
			case lc == q:
				rank = 0
			case strings.HasPrefix(lc, q):
				rank = 1
			}
			hits = append(hits, hit{crate: crate, lc: lc, rank: rank})
			return nil
		})
	})
	if err != nil {
		return nil, err
	}

	sort.Slice(hits, func(a, b int) bool {
		if hits[a].rank != hits[b].rank {
			return hits[a].rank < hits[b].rank
		}
		return hits[a].lc < hits[b].lc
	})

	results := &types.SearchResults{
		Crates: []types.SearchResultsEntry{},
		Meta:   types.SearchResultsMeta{Total: len(hits)},
	}
	for _, h := range hits {
		if len(results.Crates) >= limit {
			break
		}
		maxVersion, err := i.maxVersion(h.lc)
		if err != nil {
			return nil, err
		}
		var description string
		if h.crate.Description != nil {
			description = *h.crate.Description
		}
		results.Crates = append(results.Crates, types.SearchResultsEntry{
			Name:        h.crate.Name,
			MaxVersion:  maxVersion,
			Description: description,
		})
	}
	return results, nil
}

// maxVersion returns the highest semver among a crate's versions.
func (i *Index) maxVersion(lcName string) (string, error) {
	var best *semver.Version
	var bestRaw string
	err := i.db.View(func(tx *bolt.Tx) error {
		versions := tx.Bucket(bucketVersions).Bucket([]byte(lcName))
		if versions == nil {
			return nil
		}
		return versions.ForEach(func(k, v []byte) error {
			var row versionRow
			if err := json.Unmarshal(v, &row); err != nil {
				return fmt.Errorf("failed to decode version row: %w", err)
			}
			parsed, err := semver.StrictNewVersion(row.Vers)
			if err != nil {
				return nil
			}
			if best == nil || parsed.GreaterThan(best) {
				best = parsed
				bestRaw = row.Vers
			}
			return nil
		})
	})
	return bestRaw, err
}

// List implements index.Provider.
func (i *Index) List(ctx context.Context, q *types.ListQuery) (*types.ListAll, error) {
	var names []string
	err := i.db.View(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketCrates).ForEach(func(k, v []byte) error {
			names = append(names, string(k))
			return nil
		})
	})
	if err != nil {
		return nil, err
	}
	// Bucket iteration is already key-ordered; apply pagination over it.
	if q != nil && q.PerPage != nil {
		perPage := *q.PerPage
		page := 0
		if q.Page != nil && *q.Page > 0 {
			page = *q.Page - 1
		}
		start := page * perPage
		if start > len(names) {
			start = len(names)
		}
		end := start + perPage
		if end > len(names) {
			end = len(names)
		}
		names = names[start:end]
	}

	all := &types.ListAll{Results: []types.ListAllCrateEntry{}}
	for _, lc := range names {
		entry, err := i.listEntry(lc)
		if err != nil {
			return nil, err
		}
		all.Results = append(all.Results, entry)
	}
	return all, nil
}

func (i *Index) listEntry(lcName string) (types.ListAllCrateEntry, error) {
	var entry types.ListAllCrateEntry
	err := i.db.View(func(tx *bolt.Tx) error {
		raw := tx.Bucket(bucketCrates).Get([]byte(lcName))
		if raw == nil {
			return index.ErrNotFound
		}
		var crate crateRow
		if err := json.Unmarshal(raw, &crate); err != nil {
			return fmt.Errorf("failed to decode crate row %s: %w", lcName, err)
		}
		var description string
		if crate.Description != nil {
			description = *crate.Description
		}
		entry = types.ListAllCrateEntry{
			Name:          crate.Name,
			Versions:      []types.ListAllCrateVersion{},
			Description:   description,
			CreatedAt:     crate.CreatedAt,
			UpdatedAt:     crate.UpdatedAt,
			Homepage:      crate.Homepage,
			Repository:    crate.Repository,
			Documentation: crate.Documentation,
			Keywords:      crate.Keywords,
			Categories:    crate.Categories,
		}
		versions := tx.Bucket(bucketVersions).Bucket([]byte(lcName))
		if versions == nil {
			return nil
		}
		return versions.ForEach(func(k, v []byte) error {
			var row versionRow
			if err := json.Unmarshal(v, &row); err != nil {
				return fmt.Errorf("failed to decode version row: %w", err)
			}
			entry.Versions = append(entry.Versions, types.ListAllCrateVersion{Version: row.Vers})
			return nil
		})
	})
	return entry, err
}
