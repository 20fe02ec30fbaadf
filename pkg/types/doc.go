/*
Package types defines the registry's data model: the version records served
by the sparse index, the publish request document, dependency records in both
of their wire forms, and the response shapes of the crates.io-compatible API.

Two conventions are worth calling out:

Naming inversion. A renamed dependency is expressed differently in the two
wire forms. Publish requests carry the original package name in `name` and
the local alias in `explicit_name_in_toml`; index records carry the alias in
`name` (as dependents see it) and the original name in `package`.
ReleaseFromPublish and PublishFromRelease map between the two.

Canonical names. Crate names are matched case-insensitively: the lowercase
form is the key for locking and storage, while the case used at first publish
is preserved inside version records. A canonical name is valid when it
matches ^[a-z0-9_-]{1,64}$, and IndexPath derives the sparse-index file
layout from it (1/, 2/, 3/<c>/, <ab>/<cd>/).
*/
package types
