package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "freighter.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

const validConfig = `
service:
  address: "127.0.0.1:3000"
  download_endpoint: "http://127.0.0.1:3000/downloads"
  api_endpoint: "http://127.0.0.1:3000"
  metrics_address: "127.0.0.1:9100"
  auth_required: false
index:
  backend: fs
  path: /var/lib/freighter/index
storage:
  backend: fs
  path: /var/lib/freighter/crates
auth:
  backend: fs
  auth_path: /var/lib/freighter/auth
  auth_tokens_pepper: "AAECAwQFBgcICQoLDA0ODxAR"
`

func TestLoadValidConfig(t *testing.T) {
	cfg, err := Load(writeConfig(t, validConfig))
	require.NoError(t, err)

	assert.Equal(t, "127.0.0.1:3000", cfg.Service.Address)
	assert.False(t, cfg.Service.AuthRequired)
	// Defaults applied where the file is silent.
	assert.True(t, cfg.Service.AllowRegistration)
	assert.Equal(t, 16<<20, cfg.Service.CrateSizeLimit)

	pepper, err := cfg.Pepper()
	require.NoError(t, err)
	assert.Equal(t, byte(0x11), pepper[17])
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	assert.Error(t, err)
}

func TestUnknownBackendsRejected(t *testing.T) {
	cfg := `
service:
  address: "127.0.0.1:3000"
index:
  backend: carrier-pigeon
  path: /tmp/x
storage:
  backend: fs
  path: /tmp/y
auth:
  backend: "yes"
`
	_, err := Load(writeConfig(t, cfg))
	assert.ErrorContains(t, err, "index backend")
}

func TestPepperValidation(t *testing.T) {
	short := `
service:
  address: "127.0.0.1:3000"
index:
  backend: fs
  path: /tmp/x
storage:
  backend: fs
  path: /tmp/y
auth:
  backend: fs
  auth_path: /tmp/z
  auth_tokens_pepper: "dG9vc2hvcnQ="
`
	_, err := Load(writeConfig(t, short))
	assert.ErrorContains(t, err, "18 bytes")
}

func TestEnvDefaultsForBucketCredentials(t *testing.T) {
	cfg := `
service:
  address: "127.0.0.1:3000"
index:
  backend: s3
  s3:
    name: index-bucket
    endpoint_url: "https://s3.example.net"
    region: auto
storage:
  backend: s3
  s3:
    name: crate-bucket
    endpoint_url: "https://s3.example.net"
    region: auto
auth:
  backend: "yes"
`
	t.Setenv("FREIGHTER_STORE_BUCKET_KEY_ID", "store-id")
	t.Setenv("FREIGHTER_STORE_BUCKET_KEY_SECRET", "store-secret")
	t.Setenv("FREIGHTER_INDEX_BUCKET_KEY_ID", "index-id")
	t.Setenv("FREIGHTER_INDEX_BUCKET_KEY_SECRET", "index-secret")

	loaded, err := Load(writeConfig(t, cfg))
	require.NoError(t, err)
	assert.Equal(t, "store-id", loaded.Storage.S3.AccessKeyID)
	assert.Equal(t, "store-secret", loaded.Storage.S3.AccessKeySecret)
	assert.Equal(t, "index-id", loaded.Index.S3.AccessKeyID)
	assert.Equal(t, "index-secret", loaded.Index.S3.AccessKeySecret)
}

func TestEnvDefaultsForAccessBackend(t *testing.T) {
	cfg := `
service:
  address: "127.0.0.1:3000"
index:
  backend: fs
  path: /tmp/x
storage:
  backend: fs
  path: /tmp/y
auth:
  backend: access
`
	t.Setenv("FREIGHTER_AUTH_TEAM_BASE_URL", "https://team.cloudflareaccess.com")
	t.Setenv("FREIGHTER_AUTH_AUDIENCE", "aud-hash")
	t.Setenv("FREIGHTER_AUTH_PUBLISH_ACCESS_IDS", "a.access,b.access;c.access:d.access")

	loaded, err := Load(writeConfig(t, cfg))
	require.NoError(t, err)
	assert.Equal(t, "https://team.cloudflareaccess.com", loaded.Auth.AuthTeamBaseURL)
	assert.Equal(t, "aud-hash", loaded.Auth.AuthAudience)
	assert.Equal(t, []string{"a.access", "b.access", "c.access", "d.access"}, loaded.Auth.AuthPublishAccessIDs)
}
