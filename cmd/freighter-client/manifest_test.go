package main

import (
	"archive/tar"
	"bytes"
	"compress/gzip"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/freighter-registry/freighter/pkg/types"
)

func crateTarball(t *testing.T, dir, cargoToml string) []byte {
	t.Helper()
	var buf bytes.Buffer
	gz := gzip.NewWriter(&buf)
	tw := tar.NewWriter(gz)

	content := []byte(cargoToml)
	require.NoError(t, tw.WriteHeader(&tar.Header{
		Name: dir + "/Cargo.toml",
		Mode: 0o644,
		Size: int64(len(content)),
	}))
	_, err := tw.Write(content)
	require.NoError(t, err)
	require.NoError(t, tw.Close())
	require.NoError(t, gz.Close())
	return buf.Bytes()
}

const exampleManifest = `
[package]
name = "example"
version = "1.2.3"
description = "An example"
repository = "https://example.net/example"

[dependencies]
serde = { version = "1.0", features = ["derive"] }
log = "0.4"
rt = { version = "1.0", package = "tokio", optional = true, default-features = false }

[build-dependencies]
cc = "1.0"

[target.'cfg(windows)'.dependencies]
winapi = "0.3"

[features]
default = ["serde/derive"]
async = ["dep:rt"]
`

func TestPublishFromManifest(t *testing.T) {
	tarball := crateTarball(t, "example-1.2.3", exampleManifest)

	p, err := publishFromManifest(tarball)
	require.NoError(t, err)

	assert.Equal(t, "example", p.Name)
	assert.Equal(t, "1.2.3", p.Vers)
	require.NotNil(t, p.Description)
	assert.Equal(t, "An example", *p.Description)
	require.NotNil(t, p.Repository)

	byName := map[string]types.PublishDependency{}
	for _, d := range p.Deps {
		byName[d.Name] = d
	}
	require.Len(t, byName, 5)

	serde := byName["serde"]
	assert.Equal(t, "1.0", serde.VersionReq)
	assert.Equal(t, []string{"derive"}, serde.Features)
	assert.Equal(t, types.DependencyKindNormal, serde.Kind)
	assert.True(t, serde.DefaultFeatures)

	// The renamed dependency carries the original package name, with the
	// alias in explicit_name_in_toml.
	tokio := byName["tokio"]
	require.NotNil(t, tokio.ExplicitNameInToml)
	assert.Equal(t, "rt", *tokio.ExplicitNameInToml)
	assert.True(t, tokio.Optional)
	assert.False(t, tokio.DefaultFeatures)

	assert.Equal(t, types.DependencyKindBuild, byName["cc"].Kind)

	winapi := byName["winapi"]
	require.NotNil(t, winapi.Target)
	assert.Equal(t, "cfg(windows)", *winapi.Target)

	assert.Equal(t, []string{"dep:rt"}, p.Features["async"])
}

func TestManifestMissingFromTarball(t *testing.T) {
	var buf bytes.Buffer
	gz := gzip.NewWriter(&buf)
	tw := tar.NewWriter(gz)
	require.NoError(t, tw.Close())
	require.NoError(t, gz.Close())

	_, err := publishFromManifest(buf.Bytes())
	assert.ErrorContains(t, err, "Cargo.toml")
}

func TestManifestNotGzip(t *testing.T) {
	_, err := publishFromManifest([]byte("plain bytes"))
	assert.ErrorContains(t, err, "gzip")
}
