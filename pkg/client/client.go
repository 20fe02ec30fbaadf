// Package client is a reverse client for a sparse Cargo registry, used by
// the end-to-end tests and operational tooling.
package client

import (
	"bufio"
	"bytes"
	"context"
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"github.com/freighter-registry/freighter/pkg/types"
)

// Errors mapped from response status codes.
var (
	ErrConflict     = errors.New("client: conflict")
	ErrNotFound     = errors.New("client: not found")
	ErrUnauthorized = errors.New("client: unauthorized")
	ErrForbidden    = errors.New("client: forbidden")
)

// Client talks to one registry through its index endpoint.
type Client struct {
	http     *http.Client
	endpoint string
	config   types.RegistryConfig
	token    string
}

// New fetches the registry config from the index endpoint and returns a
// client bound to it. token may be empty for registries that do not require
// auth on reads.
func New(ctx context.Context, indexEndpoint, token string) (*Client, error) {
	c := &Client{
		http:     &http.Client{},
		endpoint: strings.TrimSuffix(indexEndpoint, "/"),
		token:    token,
	}

	resp, err := c.get(ctx, c.endpoint+"/config.json")
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if err := statusErr(resp); err != nil {
		return nil, err
	}
	if err := json.NewDecoder(resp.Body).Decode(&c.config); err != nil {
		return nil, fmt.Errorf("failed to decode registry config: %w", err)
	}

	dl := c.config.DL
	if !hasDownloadMarker(dl) {
		dl += "/{crate}/{version}/download"
	}
	c.config.DL = dl
	return c, nil
}

// SetToken replaces the bearer token used on subsequent requests.
func (c *Client) SetToken(token string) {
	c.token = token
}

// Config returns the registry config fetched at construction.
func (c *Client) Config() types.RegistryConfig {
	return c.config
}

// Register creates an account and stores the returned token on the client.
func (c *Client) Register(ctx context.Context, username string) (string, error) {
	form := url.Values{"username": {username}}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		c.config.API+"/api/v1/crates/account", strings.NewReader(form.Encode()))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	resp, err := c.http.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()
	if err := statusErr(resp); err != nil {
		return "", err
	}
	token, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", err
	}
	c.token = string(token)
	return c.token, nil
}

// FetchIndex reads and parses the sparse entry for a crate.
func (c *Client) FetchIndex(ctx context.Context, name string) ([]types.CrateVersion, error) {
	u := fmt.Sprintf("%s/%s/%s", c.endpoint, types.DownloadPrefix(name), name)
	resp, err := c.get(ctx, u)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if err := statusErr(resp); err != nil {
		return nil, err
	}

	var crates []types.CrateVersion
	scanner := bufio.NewScanner(resp.Body)
	scanner.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)
	for scanner.Scan() {
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}
		var v types.CrateVersion
		if err := json.Unmarshal(line, &v); err != nil {
			return nil, fmt.Errorf("failed to parse sparse entry: %w", err)
		}
		crates = append(crates, v)
	}
	return crates, scanner.Err()
}

// DownloadCrate fetches the tarball for a crate version through the dl
// template.
func (c *Client) DownloadCrate(ctx context.Context, name, version string) ([]byte, error) {
	resp, err := c.get(ctx, applyMarkers(c.config.DL, name, version, ""))
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if err := statusErr(resp); err != nil {
		return nil, err
	}
	return io.ReadAll(resp.Body)
}

// Publish submits a crate: the metadata document and the tarball framed as
// length-prefixed segments.
func (c *Client) Publish(ctx context.Context, p *types.Publish, tarball []byte) (*types.CompletedPublication, error) {
	serialized, err := json.Marshal(p)
	if err != nil {
		return nil, err
	}

	buf := make([]byte, 0, 8+len(serialized)+len(tarball))
	buf = binary.LittleEndian.AppendUint32(buf, uint32(len(serialized)))
	buf = append(buf, serialized...)
	buf = binary.LittleEndian.AppendUint32(buf, uint32(len(tarball)))
	buf = append(buf, tarball...)

	req, err := http.NewRequestWithContext(ctx, http.MethodPut,
		c.config.API+"/api/v1/crates/new", bytes.NewReader(buf))
	if err != nil {
		return nil, err
	}
	c.attachAuth(req)
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if err := statusErr(resp); err != nil {
		return nil, err
	}

	var completed types.CompletedPublication
	if err := json.NewDecoder(resp.Body).Decode(&completed); err != nil {
		return nil, fmt.Errorf("failed to decode publish response: %w", err)
	}
	return &completed, nil
}

// Yank marks a version as yanked.
func (c *Client) Yank(ctx context.Context, name, version string) error {
	return c.yankRequest(ctx, http.MethodDelete, name, version, "yank")
}

// Unyank clears a version's yanked flag.
func (c *Client) Unyank(ctx context.Context, name, version string) error {
	return c.yankRequest(ctx, http.MethodPut, name, version, "unyank")
}

func (c *Client) yankRequest(ctx context.Context, method, name, version, op string) error {
	u := fmt.Sprintf("%s/api/v1/crates/%s/%s/%s", c.config.API, name, version, op)
	req, err := http.NewRequestWithContext(ctx, method, u, nil)
	if err != nil {
		return err
	}
	c.attachAuth(req)
	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	return statusErr(resp)
}

// ListOwners fetches the owners of a crate.
func (c *Client) ListOwners(ctx context.Context, name string) ([]types.ListedOwner, error) {
	u := fmt.Sprintf("%s/api/v1/crates/%s/owners", c.config.API, name)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, err
	}
	c.attachAuth(req)
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if err := statusErr(resp); err != nil {
		return nil, err
	}
	var list types.OwnerList
	if err := json.NewDecoder(resp.Body).Decode(&list); err != nil {
		return nil, err
	}
	return list.Users, nil
}

// AddOwners adds owners to a crate.
func (c *Client) AddOwners(ctx context.Context, name string, users []string) error {
	return c.changeOwners(ctx, http.MethodPut, name, users)
}

// RemoveOwners removes owners from a crate.
func (c *Client) RemoveOwners(ctx context.Context, name string, users []string) error {
	return c.changeOwners(ctx, http.MethodDelete, name, users)
}

func (c *Client) changeOwners(ctx context.Context, method, name string, users []string) error {
	body, err := json.Marshal(map[string][]string{"users": users})
	if err != nil {
		return err
	}
	u := fmt.Sprintf("%s/api/v1/crates/%s/owners", c.config.API, name)
	req, err := http.NewRequestWithContext(ctx, method, u, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	c.attachAuth(req)
	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	return statusErr(resp)
}

// Search queries the registry.
func (c *Client) Search(ctx context.Context, query string, perPage int) (*types.SearchResults, error) {
	u := fmt.Sprintf("%s/api/v1/crates/?q=%s&per_page=%d", c.config.API, url.QueryEscape(query), perPage)
	resp, err := c.get(ctx, u)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if err := statusErr(resp); err != nil {
		return nil, err
	}
	var results types.SearchResults
	if err := json.NewDecoder(resp.Body).Decode(&results); err != nil {
		return nil, err
	}
	return &results, nil
}

func (c *Client) get(ctx context.Context, url string) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	c.attachAuth(req)
	return c.http.Do(req)
}

// attachAuth sets the raw token; cargo does not use a Bearer envelope.
func (c *Client) attachAuth(req *http.Request) {
	if c.token != "" {
		req.Header.Set("Authorization", c.token)
	}
}

func statusErr(resp *http.Response) error {
	switch {
	case resp.StatusCode < 400:
		return nil
	case resp.StatusCode == http.StatusConflict:
		return ErrConflict
	case resp.StatusCode == http.StatusNotFound:
		return ErrNotFound
	case resp.StatusCode == http.StatusUnauthorized:
		return ErrUnauthorized
	case resp.StatusCode == http.StatusForbidden:
		return ErrForbidden
	default:
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("client: unexpected status %s: %s", resp.Status, body)
	}
}

var downloadMarkers = []string{"{crate}", "{version}", "{prefix}", "{lowerprefix}", "{sha256-checksum}"}

func hasDownloadMarker(dl string) bool {
	for _, marker := range downloadMarkers {
		if strings.Contains(dl, marker) {
			return true
		}
	}
	return false
}

func applyMarkers(tpl, name, version, shasum string) string {
	prefix := types.DownloadPrefix(name)
	r := strings.NewReplacer(
		"{crate}", name,
		"{version}", version,
		"{prefix}", prefix,
		"{lowerprefix}", strings.ToLower(prefix),
		"{sha256-checksum}", shasum,
	)
	return r.Replace(tpl)
}
