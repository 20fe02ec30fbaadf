package types

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEnsureCorrectMetadataDropsDanglingActions(t *testing.T) {
	entries := []CrateVersion{{
		Name: "example",
		Vers: "1.0.0",
		Deps: []Dependency{{Name: "serde", Req: "^1", Kind: DependencyKindNormal}},
		Features: map[string][]string{
			"default": {"serde", "dep:tracing"},
		},
	}}

	EnsureCorrectMetadata(entries)

	// serde is a real dependency and survives; dep:tracing referenced a dev
	// dependency that is not in the index and is dropped.
	assert.Equal(t, []string{"serde"}, entries[0].Features["default"])
	// The dropped action's name becomes a defined-but-empty feature.
	assert.Contains(t, entries[0].Features, "tracing")
	assert.Empty(t, entries[0].Features["tracing"])
}

func TestEnsureCorrectMetadataKeepsFeatureReferences(t *testing.T) {
	entries := []CrateVersion{{
		Name: "example",
		Vers: "1.0.0",
		Features: map[string][]string{
			"std":     {},
			"default": {"std"},
		},
	}}

	EnsureCorrectMetadata(entries)

	assert.Equal(t, []string{"std"}, entries[0].Features["default"])
	assert.Len(t, entries[0].Features, 2)
}

func TestEnsureCorrectMetadataWeakDependencySyntax(t *testing.T) {
	entries := []CrateVersion{{
		Name: "example",
		Vers: "1.0.0",
		Deps: []Dependency{{Name: "log", Req: "^0.4", Kind: DependencyKindNormal, Optional: true}},
		Features2: map[string][]string{
			"logging": {"log?/std", "gone?/std"},
		},
	}}

	EnsureCorrectMetadata(entries)

	// log is present, the weak reference stays; gone is not a dependency.
	assert.Equal(t, []string{"log?/std"}, entries[0].Features2["logging"])
	assert.Contains(t, entries[0].Features, "gone")
}

func TestNormalizeMergesFeatures2(t *testing.T) {
	v := CrateVersion{
		Name:     "example",
		Vers:     "1.0.0",
		Features: map[string][]string{"a": {}},
		Features2: map[string][]string{
			"b": {"z", "y"},
		},
	}

	v.Normalize()

	assert.Empty(t, v.Features2)
	assert.Equal(t, []string{"y", "z"}, v.Features["b"])
}

func TestNormalizeSortsDependencies(t *testing.T) {
	v := CrateVersion{
		Name: "example",
		Vers: "1.0.0",
		Deps: []Dependency{
			{Name: "b", Req: "^1", Kind: DependencyKindNormal, Features: []string{"y", "x"}},
			{Name: "a", Req: "^1", Kind: DependencyKindNormal},
		},
	}

	v.Normalize()

	assert.Equal(t, "a", v.Deps[0].Name)
	assert.Equal(t, "b", v.Deps[1].Name)
	assert.Equal(t, []string{"x", "y"}, v.Deps[1].Features)
}

func TestCrateVersionSchemaVersionDefault(t *testing.T) {
	var v CrateVersion
	require.NoError(t, json.Unmarshal([]byte(`{"name":"a","vers":"1.0.0","cksum":"00"}`), &v))
	assert.Equal(t, uint32(1), v.V)

	require.NoError(t, json.Unmarshal([]byte(`{"name":"a","vers":"1.0.0","cksum":"00","v":2}`), &v))
	assert.Equal(t, uint32(2), v.V)
}
