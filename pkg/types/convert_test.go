package types

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func strPtr(s string) *string { return &s }

func TestReleaseFromPublishRenamedDependency(t *testing.T) {
	p := Publish{
		Name: "example",
		Vers: "1.0.0",
		Deps: []PublishDependency{{
			// The publish form carries the original package name; the index
			// form carries the alias seen by dependents.
			Name:               "tokio",
			VersionReq:         "^1",
			Kind:               DependencyKindNormal,
			ExplicitNameInToml: strPtr("async-runtime"),
		}},
	}

	release := ReleaseFromPublish(&p, "aa")

	require.Len(t, release.Deps, 1)
	assert.Equal(t, "async-runtime", release.Deps[0].Name)
	require.NotNil(t, release.Deps[0].Package)
	assert.Equal(t, "tokio", *release.Deps[0].Package)
	assert.Equal(t, "aa", release.Cksum)
	assert.False(t, release.Yanked)
	assert.Equal(t, uint32(2), release.V)
}

func TestReleaseFromPublishPlainDependency(t *testing.T) {
	p := Publish{
		Name: "example",
		Vers: "1.0.0",
		Deps: []PublishDependency{{Name: "serde", VersionReq: "^1"}},
	}

	release := ReleaseFromPublish(&p, "aa")

	require.Len(t, release.Deps, 1)
	assert.Equal(t, "serde", release.Deps[0].Name)
	assert.Nil(t, release.Deps[0].Package)
	// An unset kind defaults to normal.
	assert.Equal(t, DependencyKindNormal, release.Deps[0].Kind)
}

func TestPublishFromReleaseRoundTrip(t *testing.T) {
	p := Publish{
		Name: "example",
		Vers: "2.0.0",
		Deps: []PublishDependency{{
			Name:               "tokio",
			VersionReq:         "^1",
			Kind:               DependencyKindDev,
			ExplicitNameInToml: strPtr("rt"),
		}},
		Features: map[string][]string{"default": {}},
	}

	back := PublishFromRelease(ReleaseFromPublish(&p, "aa"))

	require.Len(t, back.Deps, 1)
	assert.Equal(t, "tokio", back.Deps[0].Name)
	require.NotNil(t, back.Deps[0].ExplicitNameInToml)
	assert.Equal(t, "rt", *back.Deps[0].ExplicitNameInToml)
	assert.Equal(t, p.Name, back.Name)
	assert.Equal(t, p.Vers, back.Vers)
}
