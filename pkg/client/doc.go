/*
Package client implements a reverse client for sparse Cargo registries.

It speaks the same protocol the server exposes: registry config discovery
with dl-template marker expansion, sparse index fetches, downloads, the
length-prefixed publish frame, yank/unyank, and ownership management. The
end-to-end tests drive the server through it.
*/
package client
