package types

// ReleaseFromPublish builds the index record for a publication.
//
// The dependency naming convention is inverted between the two forms: a
// renamed publish dependency carries the original package name in Name and
// the local alias in ExplicitNameInToml, while the index record carries the
// alias in Name and the original name in Package.
func ReleaseFromPublish(p *Publish, cksum string) CrateVersion {
	deps := make([]Dependency, 0, len(p.Deps))
	for _, d := range p.Deps {
		alias := d.Name
		var pkg *string
		if d.ExplicitNameInToml != nil {
			alias = *d.ExplicitNameInToml
			orig := d.Name
			pkg = &orig
		}
		kind := d.Kind
		if kind == "" {
			kind = DependencyKindNormal
		}
		deps = append(deps, Dependency{
			Name:            alias,
			Req:             d.VersionReq,
			Features:        d.Features,
			Optional:        d.Optional,
			DefaultFeatures: d.DefaultFeatures,
			Target:          d.Target,
			Kind:            kind,
			Registry:        d.Registry,
			Package:         pkg,
		})
	}
	return CrateVersion{
		Name:      p.Name,
		Vers:      p.Vers,
		Deps:      deps,
		Cksum:     cksum,
		Features:  p.Features,
		Yanked:    false,
		Links:     p.Links,
		V:         2,
		Features2: map[string][]string{},
	}
}

// PublishFromRelease reconstructs a publish request from an index record.
// Publisher-only fields (authors, description, and so on) are not present in
// the index and come back empty.
func PublishFromRelease(v CrateVersion) Publish {
	deps := make([]PublishDependency, 0, len(v.Deps))
	for _, d := range v.Deps {
		name := d.Name
		var explicit *string
		if d.Package != nil {
			name = *d.Package
			alias := d.Name
			explicit = &alias
		}
		deps = append(deps, PublishDependency{
			Name:               name,
			VersionReq:         d.Req,
			Features:           d.Features,
			Optional:           d.Optional,
			DefaultFeatures:    d.DefaultFeatures,
			Target:             d.Target,
			Kind:               d.Kind,
			Registry:           d.Registry,
			ExplicitNameInToml: explicit,
		})
	}
	return Publish{
		Name:     v.Name,
		Vers:     v.Vers,
		Deps:     deps,
		Features: v.Features,
		Authors:  []string{},
		Keywords: []string{},
		Categories: []string{},
		Links:    v.Links,
	}
}
