package auth

import (
	"context"
	"crypto/rand"
	"fmt"
	"math/big"
	"net/http"

	"github.com/freighter-registry/freighter/pkg/types"
)

// YesAuth says "yes" to every request for authorization.
//
// This is exactly as insecure as it sounds, and is meant primarily for
// testing purposes.
type YesAuth struct{}

// NewYesAuth returns the always-allow backend.
func NewYesAuth() *YesAuth {
	return &YesAuth{}
}

// Healthcheck implements Provider.
func (*YesAuth) Healthcheck(ctx context.Context) error { return nil }

// Register implements Provider, handing out a random 32-character token.
func (*YesAuth) Register(ctx context.Context, _ string) (string, error) {
	const alphanumeric = "ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz0123456789"
	token := make([]byte, 32)
	for i := range token {
		n, err := rand.Int(rand.Reader, big.NewInt(int64(len(alphanumeric))))
		if err != nil {
			return "", serviceErr(fmt.Errorf("failed to generate token: %w", err))
		}
		token[i] = alphanumeric[n.Int64()]
	}
	return string(token), nil
}

// RegisterSupported implements Provider.
func (*YesAuth) RegisterSupported() error { return nil }

// ListOwners implements Provider.
func (*YesAuth) ListOwners(ctx context.Context, _, _ string) ([]types.ListedOwner, error) {
	return []types.ListedOwner{}, nil
}

// AddOwners implements Provider.
func (*YesAuth) AddOwners(ctx context.Context, _ string, _ []string, _ string) error { return nil }

// RemoveOwners implements Provider.
func (*YesAuth) RemoveOwners(ctx context.Context, _ string, _ []string, _ string) error { return nil }

// Publish implements Provider.
func (*YesAuth) Publish(ctx context.Context, _, _ string) error { return nil }

// AuthYank implements Provider.
func (*YesAuth) AuthYank(ctx context.Context, _, _ string) error { return nil }

// AuthConfig implements Provider.
func (*YesAuth) AuthConfig(ctx context.Context, _ string) error { return nil }

// AuthIndexFetch implements Provider.
func (*YesAuth) AuthIndexFetch(ctx context.Context, _, _ string) error { return nil }

// AuthCrateDownload implements Provider.
func (*YesAuth) AuthCrateDownload(ctx context.Context, _, _ string) error { return nil }

// AuthViewFullIndex implements Provider.
func (*YesAuth) AuthViewFullIndex(ctx context.Context, _ string) error { return nil }

// TokenFromRequest implements Provider.
func (*YesAuth) TokenFromRequest(r *http.Request) (string, error) {
	return DefaultTokenFromRequest(r)
}
