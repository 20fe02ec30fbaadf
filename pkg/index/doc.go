/*
Package index defines the index provider contract and the per-crate lock
registry shared by its implementations.

The index is the authority on per-crate version metadata: reads for the
sparse protocol, appends on publish, yank-flag mutation, and enumeration.
Implementations must keep publication atomic with respect to the tarball
upload: Publish receives an end-step continuation that runs exactly once,
after version uniqueness has been verified and before the index commits.
This ordering preserves the committed-write invariant — any index entry
implies a prior completed storage put — even under crashes between the
upload and the commit. The converse is not required; storage may briefly
hold an orphan that the publish compensator removes.

Two implementations live in subpackages: fsindex persists one
newline-delimited JSON file per crate through a metadata blob store, and
boltindex fans crates, versions, dependencies, and features out into BoltDB
buckets with transactional publishes.
*/
package index
