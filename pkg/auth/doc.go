/*
Package auth decides whether a bearer token may perform a specific crate or
global action.

The Provider contract covers account registration, crate ownership
(list/add/remove), publish and yank authorization, and the read-side gates
used when the registry requires auth for index fetches, downloads, and
config. Tokens travel as the raw Authorization header value (cargo does not
use a Bearer envelope); backends may additionally read cookies.

Four backends:

  - FsAuth keeps accounts and crate owners in a single owners.json document.
    Tokens render as fr1_<base64url payload> and are persisted only as
    HMAC-SHA224 under a process-local pepper.
  - AccessAuth validates identity-provider JWTs (RS256) against a cached
    JWKS, with service-token rules for CI publishes.
  - YesAuth approves everything; for tests.
  - NoAuth is the placeholder when no backend is selected.

Errors follow a fixed taxonomy; uncategorized failures surface only a
six-hex fingerprint of the underlying message.
*/
package auth
