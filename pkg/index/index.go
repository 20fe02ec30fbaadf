package index

import (
	"context"

	"github.com/freighter-registry/freighter/pkg/types"
)

// EndStep is a single-shot continuation passed into Publish. It runs exactly
// once, after the index has validated version uniqueness and before any
// durable commit has occurred. If it fails, the publication must be rolled
// back and its error propagated unchanged.
type EndStep func(ctx context.Context) error

// Provider is a client for a backing index database or storage medium.
//
// Operations performed through a Provider must be atomic. On a version
// conflict, Publish returns a *ConflictError.
//
// The index does not authenticate user actions; callers authenticate before
// an operation is performed.
type Provider interface {
	Healthcheck(ctx context.Context) error

	// GetSparseEntry returns the sparse index entry for a crate: its version
	// records in publication order, plus an optional last-modified hint.
	// Returns ErrNotFound if the crate is absent and ErrNameNotAllowed if
	// the name is invalid.
	GetSparseEntry(ctx context.Context, crateName string) (*types.SparseEntries, error)

	// ConfirmExistence confirms that a (name, version) pair exists and
	// returns its yank status and tarball checksum.
	ConfirmExistence(ctx context.Context, crateName, version string) (*types.VersionExists, error)

	// YankCrate marks a crate version as yanked.
	YankCrate(ctx context.Context, crateName, version string) error
	// UnyankCrate clears the yanked flag of a crate version.
	UnyankCrate(ctx context.Context, crateName, version string) error

	// Search returns up to limit crates satisfying a query string. The
	// syntax and semantics of the search are up to the implementation;
	// results must be stable for identical inputs. Backends may not support
	// searching.
	Search(ctx context.Context, query string, limit int) (*types.SearchResults, error)

	// Publish adds a new crate version.
	//
	// endStep uploads the tarball. It runs after uniqueness has been
	// verified but before the index commits; its failure aborts the
	// publication with the error propagated verbatim.
	Publish(ctx context.Context, p *types.Publish, tarballChecksum [32]byte, endStep EndStep) (*types.CompletedPublication, error)

	// List enumerates crates in the index. Without pagination, all crates
	// are returned. Backends may not support listing.
	List(ctx context.Context, q *types.ListQuery) (*types.ListAll, error)
}
