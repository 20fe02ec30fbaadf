package auth

import (
	"context"
	"errors"
	"net/http"

	"github.com/freighter-registry/freighter/pkg/types"
)

// Provider decides whether a bearer token is allowed to perform a specific
// crate or global action, and issues tokens for backends with local
// accounts.
//
// Every operation takes the raw bearer token as extracted from the request.
type Provider interface {
	Healthcheck(ctx context.Context) error

	// Register creates a new user, returning a token if successful. Backends
	// without local accounts return ErrUnimplemented.
	Register(ctx context.Context, username string) (string, error)

	// RegisterSupported reports whether self-registration works on this
	// backend. If not, the returned error carries an HTML message explaining
	// how tokens are obtained instead.
	RegisterSupported() error

	// ListOwners lists the owners of a crate.
	ListOwners(ctx context.Context, token, crateName string) ([]types.ListedOwner, error)
	// AddOwners adds owners to a crate.
	AddOwners(ctx context.Context, token string, users []string, crateName string) error
	// RemoveOwners removes owners from a crate. It must refuse to leave a
	// crate with zero owners.
	RemoveOwners(ctx context.Context, token string, users []string, crateName string) error

	// Publish verifies that a user may publish new versions of a crate. If
	// the crate has never been published to the registry, the user becomes
	// the sole initial owner.
	Publish(ctx context.Context, token, crateName string) error

	// AuthYank verifies that a user may yank or unyank versions of a crate.
	AuthYank(ctx context.Context, token, crateName string) error

	// AuthIndexFetch verifies that a user may look at the index entry for a
	// crate. Only meaningful when the registry requires auth for reads.
	AuthIndexFetch(ctx context.Context, token, crateName string) error
	// AuthCrateDownload verifies that a user may download a crate.
	AuthCrateDownload(ctx context.Context, token, crateName string) error
	// AuthViewFullIndex verifies that a user may view the full index; used
	// for both searching and listing all crates.
	AuthViewFullIndex(ctx context.Context, token string) error
	// AuthConfig gates the fetch of config.json, when the server is
	// configured to require auth.
	AuthConfig(ctx context.Context, token string) error

	// TokenFromRequest extracts the bearer token from a request. An empty
	// string means no token was presented. Backends may override the default
	// header extraction to also read cookies.
	TokenFromRequest(r *http.Request) (string, error)
}

// UnsupportedRegistrationError explains, as HTML, how tokens are obtained on
// backends without self-registration.
type UnsupportedRegistrationError struct {
	HTML string
}

func (e *UnsupportedRegistrationError) Error() string {
	return "auth: registration is not supported by this backend"
}

// ErrNonASCIIToken rejects Authorization values outside printable ASCII.
var ErrNonASCIIToken = errors.New("auth: authorization header is not printable ASCII")

// DefaultTokenFromRequest reads the raw `Authorization` header value. Cargo
// sends the bare token, not a `Bearer` envelope.
func DefaultTokenFromRequest(r *http.Request) (string, error) {
	value := r.Header.Get("Authorization")
	if value == "" {
		return "", nil
	}
	for i := 0; i < len(value); i++ {
		if value[i] < 0x20 || value[i] > 0x7e {
			return "", ErrNonASCIIToken
		}
	}
	return value, nil
}
