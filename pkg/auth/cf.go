package auth

import (
	"context"
	"net/http"
	"strings"

	"github.com/freighter-registry/freighter/pkg/types"
)

// AccessAuth is registry auth based on an identity provider's JWTs.
//
// Service tokens cannot be validated directly. To use one, log in with it to
// an Access-protected URL and obtain the JWT from the `CF_Authorization`
// cookie; that temporary cookie is the only way to auth with this backend.
// For a personal account, `cloudflared access token` yields the JWT.
type AccessAuth struct {
	teamBaseURL      string
	access           *Access
	publishAccessIDs map[string]struct{}
}

// AccessAuthConfig configures the identity-provider backend.
type AccessAuthConfig struct {
	// `https://<team name>.cloudflareaccess.com`
	TeamBaseURL string
	// Long hash from the provider's overview tab.
	Audience string
	// Service-token IDs ("xxx.access") allowed to publish crates.
	PublishAccessIDs map[string]struct{}
}

// NewAccessAuth validates the configuration and builds the JWT verifier.
func NewAccessAuth(cfg AccessAuthConfig) (*AccessAuth, error) {
	access, err := NewAccess(cfg.TeamBaseURL, cfg.Audience)
	if err != nil {
		return nil, serviceErr(err)
	}
	return &AccessAuth{
		teamBaseURL:      cfg.TeamBaseURL,
		access:           access,
		publishAccessIDs: cfg.PublishAccessIDs,
	}, nil
}

// Healthcheck implements Provider.
func (a *AccessAuth) Healthcheck(ctx context.Context) error {
	return a.access.Refresh(ctx)
}

// Register implements Provider.
func (a *AccessAuth) Register(ctx context.Context, _ string) (string, error) {
	return "", ErrUnimplemented
}

// RegisterSupported implements Provider.
func (a *AccessAuth) RegisterSupported() error {
	return &UnsupportedRegistrationError{HTML: `<h1>Registration is only via <code>cloudflared</code></h1>
<style>var{color:red}</style>
<p>Run:</p>
<pre>
cloudflared access login <var>hostname of the registry</var> | fgrep . | cargo login --registry=<var>name of the registry</var>
</pre>`}
}

// ListOwners implements Provider. Every team member is an owner.
func (a *AccessAuth) ListOwners(ctx context.Context, token, _ string) ([]types.ListedOwner, error) {
	if _, err := a.access.ValidatedUserID(ctx, token); err != nil {
		return nil, err
	}
	return []types.ListedOwner{{Login: a.teamBaseURL}}, nil
}

// AddOwners implements Provider. Everyone is an owner already, so this is
// technically a no-op.
func (a *AccessAuth) AddOwners(ctx context.Context, token string, _ []string, _ string) error {
	_, err := a.access.ValidatedUserID(ctx, token)
	return err
}

// RemoveOwners implements Provider.
func (a *AccessAuth) RemoveOwners(ctx context.Context, token string, _ []string, _ string) error {
	if _, err := a.access.ValidatedUserID(ctx, token); err != nil {
		return err
	}
	return ErrUnimplemented
}

// Publish implements Provider. Only CI, using an allow-listed service token,
// may publish.
func (a *AccessAuth) Publish(ctx context.Context, token, _ string) error {
	id, err := a.access.ValidatedUserID(ctx, token)
	if err != nil {
		return err
	}
	if id.IsServiceToken() {
		if _, ok := a.publishAccessIDs[string(id)]; ok {
			return nil
		}
	}
	return ErrForbidden
}

// AuthYank implements Provider.
func (a *AccessAuth) AuthYank(ctx context.Context, token, _ string) error {
	_, err := a.access.ValidatedUserID(ctx, token)
	return err
}

// AuthConfig implements Provider.
func (a *AccessAuth) AuthConfig(ctx context.Context, token string) error {
	_, err := a.access.ValidatedUserID(ctx, token)
	return err
}

// AuthIndexFetch implements Provider.
func (a *AccessAuth) AuthIndexFetch(ctx context.Context, token, _ string) error {
	_, err := a.access.ValidatedUserID(ctx, token)
	return err
}

// AuthCrateDownload implements Provider.
func (a *AccessAuth) AuthCrateDownload(ctx context.Context, token, _ string) error {
	_, err := a.access.ValidatedUserID(ctx, token)
	return err
}

// AuthViewFullIndex implements Provider.
func (a *AccessAuth) AuthViewFullIndex(ctx context.Context, token string) error {
	_, err := a.access.ValidatedUserID(ctx, token)
	return err
}

// TokenFromRequest implements Provider. Besides the Authorization header,
// the JWT may arrive in the CF_Authorization cookie.
func (a *AccessAuth) TokenFromRequest(r *http.Request) (string, error) {
	token, err := DefaultTokenFromRequest(r)
	if err != nil {
		return "", err
	}
	if token != "" {
		return strings.TrimPrefix(token, "CF_Authorization="), nil
	}
	if c, err := r.Cookie("CF_Authorization"); err == nil {
		return c.Value, nil
	}
	return "", nil
}
