package main

import (
	"archive/tar"
	"bytes"
	"compress/gzip"
	"fmt"
	"io"
	"strings"

	"github.com/BurntSushi/toml"

	"github.com/freighter-registry/freighter/pkg/types"
)

const cratesIoIndex = "https://github.com/rust-lang/crates.io-index"

// manifest is the subset of Cargo.toml needed to build a publish request.
type manifest struct {
	Package           manifestPackage           `toml:"package"`
	Dependencies      map[string]any            `toml:"dependencies"`
	BuildDependencies map[string]any            `toml:"build-dependencies"`
	Target            map[string]manifestTarget `toml:"target"`
	Features          map[string][]string       `toml:"features"`
}

type manifestPackage struct {
	Name          string `toml:"name"`
	Version       string `toml:"version"`
	Description   string `toml:"description"`
	Documentation string `toml:"documentation"`
	Homepage      string `toml:"homepage"`
	Repository    string `toml:"repository"`
	Links         string `toml:"links"`
}

type manifestTarget struct {
	Dependencies      map[string]any `toml:"dependencies"`
	BuildDependencies map[string]any `toml:"build-dependencies"`
}

// publishFromManifest builds the publish metadata for a crate tarball from
// the Cargo.toml it contains.
func publishFromManifest(tarball []byte) (*types.Publish, error) {
	m, err := manifestFromTarball(tarball)
	if err != nil {
		return nil, err
	}

	var deps []types.PublishDependency
	deps = appendDeps(deps, m.Dependencies, types.DependencyKindNormal, nil)
	deps = appendDeps(deps, m.BuildDependencies, types.DependencyKindBuild, nil)
	for target, tdeps := range m.Target {
		deps = appendDeps(deps, tdeps.Dependencies, types.DependencyKindNormal, &target)
		deps = appendDeps(deps, tdeps.BuildDependencies, types.DependencyKindBuild, &target)
	}

	features := m.Features
	if features == nil {
		features = map[string][]string{}
	}

	p := &types.Publish{
		Name:          m.Package.Name,
		Vers:          m.Package.Version,
		Deps:          deps,
		Features:      features,
		Authors:       []string{},
		Description:   optional(m.Package.Description),
		Documentation: optional(m.Package.Documentation),
		Homepage:      optional(m.Package.Homepage),
		Keywords:      []string{},
		Categories:    []string{},
		Repository:    optional(m.Package.Repository),
		Links:         optional(m.Package.Links),
	}
	if p.Name == "" || p.Vers == "" {
		return nil, fmt.Errorf("manifest is missing package name or version")
	}
	return p, nil
}

// appendDeps converts one dependency table. The toml key is the name the
// crate uses locally; a `package` entry means the dependency is renamed and
// the publish form carries the original name with the alias in
// explicit_name_in_toml.
func appendDeps(out []types.PublishDependency, table map[string]any, kind types.DependencyKind, target *string) []types.PublishDependency {
	for key, raw := range table {
		d := parseDep(raw)
		name := key
		var explicit *string
		if d.pkg != "" {
			name = d.pkg
			alias := key
			explicit = &alias
		}
		registry := optional(cratesIoIndex)
		if d.registry != "" && d.registry != "crates-io" {
			registry = nil
		}
		out = append(out, types.PublishDependency{
			Name:               name,
			VersionReq:         d.req,
			Features:           d.features,
			Optional:           d.optional,
			DefaultFeatures:    d.defaultFeatures,
			Target:             target,
			Kind:               kind,
			Registry:           registry,
			ExplicitNameInToml: explicit,
		})
	}
	return out
}

type parsedDep struct {
	req             string
	features        []string
	optional        bool
	defaultFeatures bool
	pkg             string
	registry        string
}

// parseDep handles both dependency forms: a bare requirement string, or a
// detail table.
func parseDep(raw any) parsedDep {
	d := parsedDep{defaultFeatures: true, features: []string{}}
	switch v := raw.(type) {
	case string:
		d.req = v
	case map[string]any:
		if req, ok := v["version"].(string); ok {
			d.req = req
		}
		if features, ok := v["features"].([]any); ok {
			for _, f := range features {
				if s, ok := f.(string); ok {
					d.features = append(d.features, s)
				}
			}
		}
		if optional, ok := v["optional"].(bool); ok {
			d.optional = optional
		}
		if def, ok := v["default-features"].(bool); ok {
			d.defaultFeatures = def
		}
		if pkg, ok := v["package"].(string); ok {
			d.pkg = pkg
		}
		if registry, ok := v["registry"].(string); ok {
			d.registry = registry
		}
	}
	return d
}

// manifestFromTarball finds and parses <crate>-<version>/Cargo.toml inside
// a gzip-compressed crate tarball.
func manifestFromTarball(tarball []byte) (*manifest, error) {
	gz, err := gzip.NewReader(bytes.NewReader(tarball))
	if err != nil {
		return nil, fmt.Errorf("not a gzip tarball: %w", err)
	}
	defer gz.Close()

	tr := tar.NewReader(gz)
	for {
		hdr, err := tr.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("failed to read tarball: %w", err)
		}
		parts := strings.Split(strings.Trim(hdr.Name, "/"), "/")
		if len(parts) == 2 && parts[1] == "Cargo.toml" {
			data, err := io.ReadAll(tr)
			if err != nil {
				return nil, fmt.Errorf("failed to read manifest: %w", err)
			}
			var m manifest
			if err := toml.Unmarshal(data, &m); err != nil {
				return nil, fmt.Errorf("failed to parse manifest: %w", err)
			}
			return &m, nil
		}
	}
	return nil, fmt.Errorf("can't find Cargo.toml")
}

func optional(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
