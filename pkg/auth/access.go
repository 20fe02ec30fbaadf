package auth

import (
	"context"
	"crypto/rsa"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"math/big"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/freighter-registry/freighter/pkg/log"
	"github.com/golang-jwt/jwt/v4"
)

// refreshDuration is how long a successful JWKS fetch stays fresh. The
// identity provider serves the keys with a 4 h max-age.
const refreshDuration = time.Hour

// failedRefreshRetry throttles fetch attempts after a failure.
const failedRefreshRetry = time.Second

// Access validates RS256 JWTs issued by a Cloudflare Access-style identity
// provider, with signing keys fetched from the team's JWKS endpoint.
type Access struct {
	jwksURL  string
	audience string
	client   *http.Client

	mu sync.RWMutex
	ks keySet
}

// keySet is the allowed keys plus the instant after which they should be
// re-fetched.
type keySet struct {
	nextFetch time.Time
	keys      map[string]*rsa.PublicKey
}

// accessClaims are the claims the registry inspects.
type accessClaims struct {
	CommonName string `json:"common_name"`
	jwt.RegisteredClaims
}

// UserID is the identity carried by a verified token.
type UserID string

// IsServiceToken reports whether the identity is a service token rather
// than a human user. It is checked to match the sub claim when the token is
// validated.
func (u UserID) IsServiceToken() bool {
	return strings.HasSuffix(string(u), ".access")
}

// NewAccess derives the JWKS URL from the team base URL, which must start
// with `https://`.
func NewAccess(teamBaseURL, audience string) (*Access, error) {
	if len(teamBaseURL) < 13 || !strings.HasPrefix(teamBaseURL, "https://") || audience == "" {
		return nil, fmt.Errorf("invalid access config")
	}
	return &Access{
		jwksURL:  strings.TrimRight(teamBaseURL, "/") + "/cdn-cgi/access/certs",
		audience: audience,
		client:   &http.Client{Timeout: 10 * time.Second},
		ks:       keySet{nextFetch: time.Now()},
	}, nil
}

// Refresh downloads new keys if the cached set is stale. A failed fetch
// keeps any previously known keys and throttles the next attempt.
func (a *Access) Refresh(ctx context.Context) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	now := time.Now()
	if a.ks.nextFetch.After(now) {
		if len(a.ks.keys) == 0 {
			return fmt.Errorf("no usable keys")
		}
		return nil
	}

	// In case of failure below, retry at most once per second.
	a.ks.nextFetch = now.Add(failedRefreshRetry)

	keys, err := a.fetchKeys(ctx)
	if err != nil {
		log.WithComponent("auth").Error().Str("url", a.jwksURL).Err(err).Msg("jwks fetch failed")
		return err
	}
	if len(keys) == 0 {
		log.WithComponent("auth").Error().Str("url", a.jwksURL).Msg("no usable keys")
		return fmt.Errorf("no usable keys")
	}
	a.ks.keys = keys
	a.ks.nextFetch = time.Now().Add(refreshDuration)
	return nil
}

func (a *Access) fetchKeys(ctx context.Context) (map[string]*rsa.PublicKey, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, a.jwksURL, nil)
	if err != nil {
		return nil, err
	}
	resp, err := a.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("jwks endpoint returned %s", resp.Status)
	}

	var set struct {
		Keys []struct {
			Kty string `json:"kty"`
			Use string `json:"use"`
			Kid string `json:"kid"`
			N   string `json:"n"`
			E   string `json:"e"`
		} `json:"keys"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&set); err != nil {
		return nil, err
	}

	keys := make(map[string]*rsa.PublicKey)
	for _, k := range set.Keys {
		if k.Use != "sig" || k.Kty != "RSA" || k.Kid == "" {
			continue
		}
		key, err := rsaKeyFromJWK(k.N, k.E)
		if err != nil {
			log.WithComponent("auth").Error().Str("kid", k.Kid).Err(err).Msg("unusable jwk")
			continue
		}
		keys[k.Kid] = key
	}
	return keys, nil
}

func rsaKeyFromJWK(n, e string) (*rsa.PublicKey, error) {
	nb, err := base64.RawURLEncoding.DecodeString(n)
	if err != nil {
		return nil, fmt.Errorf("bad modulus: %w", err)
	}
	eb, err := base64.RawURLEncoding.DecodeString(e)
	if err != nil {
		return nil, fmt.Errorf("bad exponent: %w", err)
	}
	return &rsa.PublicKey{
		N: new(big.Int).SetBytes(nb),
		E: int(new(big.Int).SetBytes(eb).Int64()),
	}, nil
}

// ValidatedUserID verifies a token and returns the identity it carries.
func (a *Access) ValidatedUserID(ctx context.Context, token string) (UserID, error) {
	var unverified accessClaims
	t, _, err := jwt.NewParser().ParseUnverified(token, &unverified)
	if err != nil {
		log.WithComponent("auth").Warn().Err(err).Msg("bad token")
		return "", ErrInvalidCredentials
	}
	kid, _ := t.Header["kid"].(string)
	if kid == "" {
		return "", ErrInvalidCredentials
	}

	// Readers refresh on a stale view, then re-check: another racer may have
	// refreshed in between.
	var key *rsa.PublicKey
	for {
		a.mu.RLock()
		if a.ks.nextFetch.Before(time.Now()) {
			a.mu.RUnlock()
			if err := a.Refresh(ctx); err != nil {
				return "", serviceErr(err)
			}
			continue
		}
		key = a.ks.keys[kid]
		a.mu.RUnlock()
		break
	}
	if key == nil {
		log.WithComponent("auth").Warn().Str("kid", kid).Msg("token for an unknown key")
		return "", ErrInvalidCredentials
	}

	var claims accessClaims
	parser := jwt.NewParser(jwt.WithValidMethods([]string{"RS256"}))
	if _, err := parser.ParseWithClaims(token, &claims, func(*jwt.Token) (interface{}, error) {
		return key, nil
	}); err != nil {
		log.WithComponent("auth").Warn().Err(err).Msg("unauthorized token")
		return "", ErrUnauthorized
	}
	if !claims.VerifyAudience(a.audience, true) {
		log.WithComponent("auth").Warn().Msg("token audience mismatch")
		return "", ErrUnauthorized
	}

	sub := claims.Subject
	subWasEmpty := sub == ""
	id := sub
	if id == "" {
		id = claims.CommonName
	}
	if id == "" {
		return "", serviceErr(fmt.Errorf("empty claims.sub"))
	}

	userID := UserID(id)
	// A service token gets an empty string in sub and its identity in
	// common_name; user tokens are the inverse.
	if userID.IsServiceToken() != subWasEmpty {
		return "", serviceErr(fmt.Errorf("claims.sub doesn't match claims.common_name service token pattern"))
	}
	return userID, nil
}
