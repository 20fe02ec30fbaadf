// Package config loads the registry's YAML configuration file and applies
// environment-variable defaults for credentials that should stay out of the
// file.
package config

import (
	"encoding/base64"
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/freighter-registry/freighter/pkg/server"
	"github.com/freighter-registry/freighter/pkg/storage"
)

// Backend names accepted in the index, storage, and auth sections.
const (
	IndexBackendFs   = "fs"
	IndexBackendBolt = "bolt"
	IndexBackendS3   = "s3"

	StorageBackendFs = "fs"
	StorageBackendS3 = "s3"

	AuthBackendFs     = "fs"
	AuthBackendAccess = "access"
	AuthBackendYes    = "yes"
	AuthBackendNone   = "none"
)

// Config is the full configuration document.
type Config struct {
	Service server.ServiceConfig `yaml:"service"`
	Index   IndexConfig          `yaml:"index"`
	Storage StorageConfig        `yaml:"storage"`
	Auth    AuthConfig           `yaml:"auth"`
}

// IndexConfig selects and configures the index backend.
type IndexConfig struct {
	Backend string `yaml:"backend"`
	// Path is the metadata root for the fs backend, or the database
	// directory for the bolt backend.
	Path string `yaml:"path"`
	// S3 holds the metadata bucket for the s3 index backend.
	S3 storage.S3Config `yaml:"s3"`
}

// StorageConfig selects and configures the crate tarball store.
type StorageConfig struct {
	Backend string           `yaml:"backend"`
	Path    string           `yaml:"path"`
	S3      storage.S3Config `yaml:"s3"`
}

// AuthConfig selects and configures the auth backend.
type AuthConfig struct {
	Backend string `yaml:"backend"`

	// Fs backend
	AuthPath string `yaml:"auth_path"`
	// AuthTokensPepper is 24 base64 chars decoding to 18 bytes.
	AuthTokensPepper string `yaml:"auth_tokens_pepper"`

	// Access backend
	AuthTeamBaseURL      string   `yaml:"auth_team_base_url"`
	AuthAudience         string   `yaml:"auth_audience"`
	AuthPublishAccessIDs []string `yaml:"auth_publish_access_ids"`
}

// Load reads and validates a configuration file.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file from disk, is it present?: %w", err)
	}

	cfg := Config{
		Service: server.ServiceConfig{
			AllowRegistration: true,
			AuthRequired:      true,
			CrateSizeLimit:    16 << 20,
		},
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to deserialize config file, please make sure its in the right format: %w", err)
	}

	cfg.applyEnvDefaults()
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// applyEnvDefaults fills credentials and identity-provider settings from the
// environment when the file leaves them out.
func (c *Config) applyEnvDefaults() {
	if c.Storage.S3.AccessKeyID == "" {
		c.Storage.S3.AccessKeyID = os.Getenv("FREIGHTER_STORE_BUCKET_KEY_ID")
	}
	if c.Storage.S3.AccessKeySecret == "" {
		c.Storage.S3.AccessKeySecret = os.Getenv("FREIGHTER_STORE_BUCKET_KEY_SECRET")
	}
	if c.Index.S3.AccessKeyID == "" {
		c.Index.S3.AccessKeyID = os.Getenv("FREIGHTER_INDEX_BUCKET_KEY_ID")
	}
	if c.Index.S3.AccessKeySecret == "" {
		c.Index.S3.AccessKeySecret = os.Getenv("FREIGHTER_INDEX_BUCKET_KEY_SECRET")
	}
	if c.Auth.AuthTeamBaseURL == "" {
		c.Auth.AuthTeamBaseURL = os.Getenv("FREIGHTER_AUTH_TEAM_BASE_URL")
	}
	if c.Auth.AuthAudience == "" {
		c.Auth.AuthAudience = os.Getenv("FREIGHTER_AUTH_AUDIENCE")
	}
	if len(c.Auth.AuthPublishAccessIDs) == 0 {
		if ids := os.Getenv("FREIGHTER_AUTH_PUBLISH_ACCESS_IDS"); ids != "" {
			c.Auth.AuthPublishAccessIDs = strings.FieldsFunc(ids, func(r rune) bool {
				return r == ',' || r == ':' || r == ';'
			})
		}
	}
}

func (c *Config) validate() error {
	if c.Service.Address == "" {
		return fmt.Errorf("service.address is required")
	}
	switch c.Index.Backend {
	case IndexBackendFs, IndexBackendBolt:
		if c.Index.Path == "" {
			return fmt.Errorf("index.path is required for the %s backend", c.Index.Backend)
		}
	case IndexBackendS3:
		if c.Index.S3.Name == "" {
			return fmt.Errorf("index.s3.name is required for the s3 backend")
		}
	default:
		return fmt.Errorf("unknown index backend %q", c.Index.Backend)
	}
	switch c.Storage.Backend {
	case StorageBackendFs:
		if c.Storage.Path == "" {
			return fmt.Errorf("storage.path is required for the fs backend")
		}
	case StorageBackendS3:
		if c.Storage.S3.Name == "" {
			return fmt.Errorf("storage.s3.name is required for the s3 backend")
		}
	default:
		return fmt.Errorf("unknown storage backend %q", c.Storage.Backend)
	}
	switch c.Auth.Backend {
	case AuthBackendFs:
		if c.Auth.AuthPath == "" {
			return fmt.Errorf("auth.auth_path is required for the fs backend")
		}
		if _, err := c.Pepper(); err != nil {
			return err
		}
	case AuthBackendAccess:
		if c.Auth.AuthTeamBaseURL == "" {
			return fmt.Errorf("auth_team_base_url not found in config or environment")
		}
		if c.Auth.AuthAudience == "" {
			return fmt.Errorf("auth_audience not found in config or environment")
		}
		if len(c.Auth.AuthPublishAccessIDs) == 0 {
			return fmt.Errorf("auth_publish_access_ids not found in config or environment")
		}
	case AuthBackendYes, AuthBackendNone:
	default:
		return fmt.Errorf("unknown auth backend %q", c.Auth.Backend)
	}
	return nil
}

// Pepper decodes the token-hashing pepper for the fs auth backend.
func (c *Config) Pepper() ([18]byte, error) {
	var pepper [18]byte
	raw, err := base64.StdEncoding.DecodeString(c.Auth.AuthTokensPepper)
	if err != nil {
		return pepper, fmt.Errorf("auth.auth_tokens_pepper is not valid base64: %w", err)
	}
	if len(raw) != len(pepper) {
		return pepper, fmt.Errorf("auth.auth_tokens_pepper must decode to %d bytes", len(pepper))
	}
	copy(pepper[:], raw)
	return pepper, nil
}
