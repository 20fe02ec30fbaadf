package auth

import (
	"context"
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"sort"

	"github.com/freighter-registry/freighter/pkg/log"
	"github.com/freighter-registry/freighter/pkg/types"
)

const tokenPrefix = "fr1_"

// PepperLen is the length of the token-hashing pepper in bytes
// (24 base64 chars in config).
const PepperLen = 18

// bareTokenLen is the length of the random token payload in bytes
// (28 base64 chars when rendered).
const bareTokenLen = 21

// FsAuth keeps accounts and crate ownership in a single JSON document on
// disk. Tokens are never persisted in clear form: the stored identity is
// HMAC-SHA224(pepper, bare_token), so disclosure of the owners file does not
// enable offline brute-force of the short tokens. Changing the pepper
// invalidates all outstanding tokens.
type FsAuth struct {
	ownersFilePath string
	pepper         [PepperLen]byte

	st ownersCell
}

// FsAuthConfig locates the owners file and supplies the pepper.
type FsAuthConfig struct {
	AuthPath string
	Pepper   [PepperLen]byte
}

// NewFsAuth creates the auth directory if needed.
func NewFsAuth(cfg FsAuthConfig) (*FsAuth, error) {
	if err := os.MkdirAll(cfg.AuthPath, 0o700); err != nil {
		return nil, serviceErr(fmt.Errorf("failed to create auth root at %s: %w", cfg.AuthPath, err))
	}
	return &FsAuth{
		ownersFilePath: filepath.Join(cfg.AuthPath, "owners.json"),
		pepper:         cfg.Pepper,
	}, nil
}

func (a *FsAuth) randomToken() ([bareTokenLen]byte, error) {
	var token [bareTokenLen]byte
	if _, err := rand.Read(token[:]); err != nil {
		return token, serviceErr(fmt.Errorf("failed to generate token: %w", err))
	}
	return token, nil
}

func (a *FsAuth) tokenToString(bare [bareTokenLen]byte) string {
	return tokenPrefix + base64.RawURLEncoding.EncodeToString(bare[:])
}

// tokenFromString recovers the stored hash identity of a rendered token.
func (a *FsAuth) tokenFromString(tokenStr string) (string, error) {
	if len(tokenStr) < len(tokenPrefix) || tokenStr[:len(tokenPrefix)] != tokenPrefix {
		return "", ErrInvalidCredentials
	}
	raw, err := base64.RawURLEncoding.DecodeString(tokenStr[len(tokenPrefix):])
	if err != nil || len(raw) != bareTokenLen {
		return "", ErrInvalidCredentials
	}
	var bare [bareTokenLen]byte
	copy(bare[:], raw)
	return a.hashToken(bare), nil
}

// hashToken derives the persisted identity of a bare token. HMAC-SHA224
// (FIPS 180-4) under the process pepper; plain equality on hashes is fine
// because the attacker controls only the pre-image and the hash is
// randomized by a secret.
func (a *FsAuth) hashToken(bare [bareTokenLen]byte) string {
	mac := hmac.New(sha256.New224, a.pepper[:])
	mac.Write(bare[:])
	return base64.RawURLEncoding.EncodeToString(mac.Sum(nil))
}

func (a *FsAuth) loadOwnersFile() (*owners, error) {
	data, err := os.ReadFile(a.ownersFilePath)
	if os.IsNotExist(err) {
		return &owners{
			TokenOwners: map[string]string{},
			CrateOwners: map[string][]string{},
			ownerTokens: map[string]string{},
		}, nil
	}
	if err != nil {
		return nil, serviceErr(fmt.Errorf("failed to read owners: %w", err))
	}
	var o owners
	if err := json.Unmarshal(data, &o); err != nil {
		return nil, serviceErr(fmt.Errorf("failed to parse owners: %w", err))
	}
	if o.TokenOwners == nil {
		o.TokenOwners = map[string]string{}
	}
	if o.CrateOwners == nil {
		o.CrateOwners = map[string][]string{}
	}
	// Rebuild the reverse lookup index.
	o.ownerTokens = make(map[string]string, len(o.TokenOwners))
	for hash, login := range o.TokenOwners {
		o.ownerTokens[login] = hash
	}
	return &o, nil
}

// syncOwners persists the owners document via write-temp-and-rename.
func (a *FsAuth) syncOwners(o *owners) error {
	data, err := json.Marshal(o)
	if err != nil {
		return serviceErr(fmt.Errorf("failed to serialize owners: %w", err))
	}
	dir := filepath.Dir(a.ownersFilePath)
	tmp, err := os.CreateTemp(dir, ".owners-*")
	if err != nil {
		return serviceErr(fmt.Errorf("failed to create temp owners file: %w", err))
	}
	defer os.Remove(tmp.Name())
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return serviceErr(fmt.Errorf("failed to write owners: %w", err))
	}
	if err := tmp.Close(); err != nil {
		return serviceErr(fmt.Errorf("failed to close owners file: %w", err))
	}
	if err := os.Rename(tmp.Name(), a.ownersFilePath); err != nil {
		return serviceErr(fmt.Errorf("failed to save owners: %w", err))
	}
	return nil
}

func (a *FsAuth) ensureValidToken(tokenStr string) error {
	hash, err := a.tokenFromString(tokenStr)
	if err != nil {
		return err
	}
	return a.st.read(a.loadOwnersFile, func(o *owners) error {
		_, err := o.loginForToken(hash)
		return err
	})
}

// Healthcheck implements Provider.
func (a *FsAuth) Healthcheck(ctx context.Context) error {
	return a.st.read(a.loadOwnersFile, func(*owners) error { return nil })
}

// Register implements Provider.
func (a *FsAuth) Register(ctx context.Context, username string) (string, error) {
	bare, err := a.randomToken()
	if err != nil {
		return "", err
	}
	hash := a.hashToken(bare)
	tokenStr := a.tokenToString(bare)

	err = a.st.write(a.loadOwnersFile, func(o *owners) error {
		if err := o.register(username, hash); err != nil {
			return err
		}
		return a.syncOwners(o)
	})
	if err != nil {
		return "", err
	}
	log.WithComponent("auth").Info().Str("username", username).Msg("registered user")
	return tokenStr, nil
}

// RegisterSupported implements Provider.
func (a *FsAuth) RegisterSupported() error {
	return nil
}

// ListOwners implements Provider. The owner list is public.
func (a *FsAuth) ListOwners(ctx context.Context, _ string, crateName string) ([]types.ListedOwner, error) {
	var listed []types.ListedOwner
	err := a.st.read(a.loadOwnersFile, func(o *owners) error {
		logins, ok := o.CrateOwners[crateName]
		if !ok {
			return ErrCrateNotFound
		}
		for _, login := range logins {
			listed = append(listed, types.ListedOwner{Login: login})
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return listed, nil
}

// AddOwners implements Provider.
func (a *FsAuth) AddOwners(ctx context.Context, tokenStr string, users []string, crateName string) error {
	hash, err := a.tokenFromString(tokenStr)
	if err != nil {
		return err
	}
	return a.st.write(a.loadOwnersFile, func(o *owners) error {
		if err := o.ensureAuthorizedForCrate(hash, crateName); err != nil {
			return err
		}
		logins, ok := o.CrateOwners[crateName]
		if !ok {
			return ErrCrateNotFound
		}
		for _, login := range users {
			logins = insertLogin(logins, login)
		}
		o.CrateOwners[crateName] = logins
		return a.syncOwners(o)
	})
}

// RemoveOwners implements Provider. Removal that would leave a crate with
// zero owners is refused.
func (a *FsAuth) RemoveOwners(ctx context.Context, tokenStr string, users []string, crateName string) error {
	hash, err := a.tokenFromString(tokenStr)
	if err != nil {
		return err
	}
	return a.st.write(a.loadOwnersFile, func(o *owners) error {
		if err := o.ensureAuthorizedForCrate(hash, crateName); err != nil {
			return err
		}
		logins, ok := o.CrateOwners[crateName]
		if !ok {
			return ErrCrateNotFound
		}
		for _, login := range users {
			if len(logins) <= 1 {
				o.CrateOwners[crateName] = logins
				if err := a.syncOwners(o); err != nil {
					return err
				}
				return ErrForbidden // can't remove all owners
			}
			logins = removeLogin(logins, login)
		}
		o.CrateOwners[crateName] = logins
		return a.syncOwners(o)
	})
}

// Publish implements Provider. A crate that does not exist yet is claimed by
// the publishing token's owner.
func (a *FsAuth) Publish(ctx context.Context, tokenStr, crateName string) error {
	hash, err := a.tokenFromString(tokenStr)
	if err != nil {
		return err
	}
	return a.st.write(a.loadOwnersFile, func(o *owners) error {
		if _, ok := o.CrateOwners[crateName]; !ok {
			login, err := o.loginForToken(hash)
			if err != nil {
				return err
			}
			o.CrateOwners[crateName] = []string{login}
			if err := a.syncOwners(o); err != nil {
				return err
			}
		}
		return o.ensureAuthorizedForCrate(hash, crateName)
	})
}

// AuthYank implements Provider.
func (a *FsAuth) AuthYank(ctx context.Context, tokenStr, crateName string) error {
	hash, err := a.tokenFromString(tokenStr)
	if err != nil {
		return err
	}
	return a.st.read(a.loadOwnersFile, func(o *owners) error {
		return o.ensureAuthorizedForCrate(hash, crateName)
	})
}

// AuthConfig implements Provider.
func (a *FsAuth) AuthConfig(ctx context.Context, tokenStr string) error {
	return a.ensureValidToken(tokenStr)
}

// AuthIndexFetch implements Provider. All valid users can read crates.
func (a *FsAuth) AuthIndexFetch(ctx context.Context, tokenStr, _ string) error {
	return a.ensureValidToken(tokenStr)
}

// AuthCrateDownload implements Provider. All valid users can read crates.
func (a *FsAuth) AuthCrateDownload(ctx context.Context, tokenStr, _ string) error {
	return a.ensureValidToken(tokenStr)
}

// AuthViewFullIndex implements Provider.
func (a *FsAuth) AuthViewFullIndex(ctx context.Context, tokenStr string) error {
	return a.ensureValidToken(tokenStr)
}

// TokenFromRequest implements Provider.
func (a *FsAuth) TokenFromRequest(r *http.Request) (string, error) {
	return DefaultTokenFromRequest(r)
}

// owners is the persisted shape of the owners document.
type owners struct {
	TokenOwners map[string]string   `json:"token_owners"`
	CrateOwners map[string][]string `json:"crate_owners"`

	// Reverse lookup index, rebuilt on load.
	ownerTokens map[string]string
}

func (o *owners) register(login, hash string) error {
	if _, taken := o.ownerTokens[login]; taken {
		return ErrForbidden
	}
	o.ownerTokens[login] = hash
	o.TokenOwners[hash] = login
	return nil
}

func (o *owners) loginForToken(hash string) (string, error) {
	login, ok := o.TokenOwners[hash]
	if !ok {
		return "", ErrInvalidCredentials
	}
	return login, nil
}

func (o *owners) ensureAuthorizedForCrate(hash, crateName string) error {
	logins, ok := o.CrateOwners[crateName]
	if !ok {
		return ErrCrateNotFound
	}
	login, err := o.loginForToken(hash)
	if err != nil {
		return err
	}
	for _, l := range logins {
		if l == login {
			return nil
		}
	}
	return ErrForbidden
}

func insertLogin(logins []string, login string) []string {
	for _, l := range logins {
		if l == login {
			return logins
		}
	}
	logins = append(logins, login)
	sort.Strings(logins)
	return logins
}

func removeLogin(logins []string, login string) []string {
	for n, l := range logins {
		if l == login {
			return append(logins[:n], logins[n+1:]...)
		}
	}
	return logins
}
