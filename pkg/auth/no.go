package auth

import (
	"context"
	"net/http"

	"github.com/freighter-registry/freighter/pkg/types"
)

// NoAuth is a useless (but safe) placeholder used when no backend is
// selected: every operation is unimplemented.
type NoAuth struct{}

// NewNoAuth returns the deny-everything backend.
func NewNoAuth() *NoAuth {
	return &NoAuth{}
}

// Healthcheck implements Provider.
func (*NoAuth) Healthcheck(ctx context.Context) error { return nil }

// Register implements Provider.
func (*NoAuth) Register(ctx context.Context, _ string) (string, error) {
	return "", ErrUnimplemented
}

// RegisterSupported implements Provider.
func (*NoAuth) RegisterSupported() error {
	return &UnsupportedRegistrationError{HTML: "This registry has no auth backend configured"}
}

// ListOwners implements Provider.
func (*NoAuth) ListOwners(ctx context.Context, _, _ string) ([]types.ListedOwner, error) {
	return nil, ErrUnimplemented
}

// AddOwners implements Provider.
func (*NoAuth) AddOwners(ctx context.Context, _ string, _ []string, _ string) error {
	return ErrUnimplemented
}

// RemoveOwners implements Provider.
func (*NoAuth) RemoveOwners(ctx context.Context, _ string, _ []string, _ string) error {
	return ErrUnimplemented
}

// Publish implements Provider.
func (*NoAuth) Publish(ctx context.Context, _, _ string) error { return ErrUnimplemented }

// AuthYank implements Provider.
func (*NoAuth) AuthYank(ctx context.Context, _, _ string) error { return ErrUnimplemented }

// AuthConfig implements Provider.
func (*NoAuth) AuthConfig(ctx context.Context, _ string) error { return ErrUnimplemented }

// AuthIndexFetch implements Provider.
func (*NoAuth) AuthIndexFetch(ctx context.Context, _, _ string) error { return ErrUnimplemented }

// AuthCrateDownload implements Provider.
func (*NoAuth) AuthCrateDownload(ctx context.Context, _, _ string) error { return ErrUnimplemented }

// AuthViewFullIndex implements Provider.
func (*NoAuth) AuthViewFullIndex(ctx context.Context, _ string) error { return ErrUnimplemented }

// TokenFromRequest implements Provider.
func (*NoAuth) TokenFromRequest(r *http.Request) (string, error) {
	return DefaultTokenFromRequest(r)
}
