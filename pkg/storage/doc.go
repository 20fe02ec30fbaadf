/*
Package storage provides the durable byte stores behind the registry: the
crate tarball store and the richer metadata blob store used by file-backed
index implementations.

Two capability contracts:

Storage holds crate tarballs keyed `{name}-{version}.crate`. Puts record
the tarball's SHA-256 and the HTTP metadata cargo expects on download
(content-type application/x-tar, gzip content-encoding, a long immutable
cache directive). Deleting a missing key is not an error: the delete is the
compensator for failed publishes and must stay idempotent.

MetadataStorage adds per-file metadata (content type, cache control,
checksum, user key/values) plus CreateOrAppendFile, which callers invoke
under the per-crate lock.

Both contracts are implemented twice: FsStorage on a local directory with
write-temp-and-rename discipline and path-traversal rejection, and S3Storage
on any S3-compatible bucket.
*/
package storage
