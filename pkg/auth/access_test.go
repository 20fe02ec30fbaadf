package auth

import (
	"context"
	"crypto/rand"
	"crypto/rsa"
	"encoding/base64"
	"encoding/json"
	"math/big"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type jwksServer struct {
	key      *rsa.PrivateKey
	kid      string
	failures int
	requests int
	srv      *httptest.Server
}

func newJwksServer(t *testing.T) *jwksServer {
	t.Helper()
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)

	j := &jwksServer{key: key, kid: "test-key"}
	j.srv = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		j.requests++
		if j.failures > 0 {
			j.failures--
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		pub := key.Public().(*rsa.PublicKey)
		_ = json.NewEncoder(w).Encode(map[string]any{
			"keys": []map[string]string{{
				"kty": "RSA",
				"use": "sig",
				"kid": j.kid,
				"n":   base64.RawURLEncoding.EncodeToString(pub.N.Bytes()),
				"e":   base64.RawURLEncoding.EncodeToString(big.NewInt(int64(pub.E)).Bytes()),
			}},
		})
	}))
	t.Cleanup(j.srv.Close)
	return j
}

func (j *jwksServer) access(audience string) *Access {
	return &Access{
		jwksURL:  j.srv.URL,
		audience: audience,
		client:   j.srv.Client(),
		ks:       keySet{nextFetch: time.Now()},
	}
}

func (j *jwksServer) sign(t *testing.T, kid string, claims accessClaims) string {
	t.Helper()
	token := jwt.NewWithClaims(jwt.SigningMethodRS256, claims)
	token.Header["kid"] = kid
	signed, err := token.SignedString(j.key)
	require.NoError(t, err)
	return signed
}

func TestValidatedUserID(t *testing.T) {
	j := newJwksServer(t)
	a := j.access("aud")

	token := j.sign(t, j.kid, accessClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:  "alice@example.com",
			Audience: jwt.ClaimStrings{"aud"},
		},
	})

	id, err := a.ValidatedUserID(context.Background(), token)
	require.NoError(t, err)
	assert.Equal(t, UserID("alice@example.com"), id)
	assert.False(t, id.IsServiceToken())
}

func TestValidatedServiceToken(t *testing.T) {
	j := newJwksServer(t)
	a := j.access("aud")

	// Service tokens carry an empty sub and their identity in common_name.
	token := j.sign(t, j.kid, accessClaims{
		CommonName: "ci.access",
		RegisteredClaims: jwt.RegisteredClaims{
			Audience: jwt.ClaimStrings{"aud"},
		},
	})

	id, err := a.ValidatedUserID(context.Background(), token)
	require.NoError(t, err)
	assert.True(t, id.IsServiceToken())
}

func TestServiceTokenPatternMismatch(t *testing.T) {
	j := newJwksServer(t)
	a := j.access("aud")

	// A .access identity arriving in sub contradicts the service-token
	// convention and is rejected.
	token := j.sign(t, j.kid, accessClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:  "ci.access",
			Audience: jwt.ClaimStrings{"aud"},
		},
	})

	_, err := a.ValidatedUserID(context.Background(), token)
	var se *ServiceError
	assert.ErrorAs(t, err, &se)
}

func TestAudienceMismatchRejected(t *testing.T) {
	j := newJwksServer(t)
	a := j.access("expected-aud")

	token := j.sign(t, j.kid, accessClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:  "alice@example.com",
			Audience: jwt.ClaimStrings{"other-aud"},
		},
	})

	_, err := a.ValidatedUserID(context.Background(), token)
	assert.ErrorIs(t, err, ErrUnauthorized)
}

func TestUnknownKeyRejected(t *testing.T) {
	j := newJwksServer(t)
	a := j.access("aud")

	token := j.sign(t, "unknown-kid", accessClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:  "alice@example.com",
			Audience: jwt.ClaimStrings{"aud"},
		},
	})

	_, err := a.ValidatedUserID(context.Background(), token)
	assert.ErrorIs(t, err, ErrInvalidCredentials)
}

func TestGarbageTokenRejected(t *testing.T) {
	j := newJwksServer(t)
	a := j.access("aud")

	_, err := a.ValidatedUserID(context.Background(), "not-a-jwt")
	assert.ErrorIs(t, err, ErrInvalidCredentials)
}

func TestRefreshKeepsKeysOnFailure(t *testing.T) {
	j := newJwksServer(t)
	a := j.access("aud")

	require.NoError(t, a.Refresh(context.Background()))
	assert.Len(t, a.ks.keys, 1)

	// Force staleness, then make the endpoint fail: the previous key set
	// must be retained.
	a.mu.Lock()
	a.ks.nextFetch = time.Now().Add(-time.Minute)
	a.mu.Unlock()
	j.failures = 1

	assert.Error(t, a.Refresh(context.Background()))
	assert.Len(t, a.ks.keys, 1)

	// Within the throttle window a refresh does not hit the endpoint again.
	before := j.requests
	require.NoError(t, a.Refresh(context.Background()))
	assert.Equal(t, before, j.requests)
}

func TestRefreshExtendsNextFetchOnSuccess(t *testing.T) {
	j := newJwksServer(t)
	a := j.access("aud")

	require.NoError(t, a.Refresh(context.Background()))
	assert.Greater(t, a.ks.nextFetch, time.Now().Add(refreshDuration-time.Minute))
}
