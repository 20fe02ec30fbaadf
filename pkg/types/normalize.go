package types

import (
	"sort"
	"strings"
)

// EnsureCorrectMetadata corrects two legacy pathologies in stored entries
// before they are served to clients. Older publishes may reference
// dev-dependencies from feature actions even though dev-dependencies are not
// part of the published metadata; cargo rejects such entries.
//
//   - Feature actions that reference a dependency absent from the record are
//     removed.
//   - If a removed action names a feature some other entry may still expect,
//     an empty feature with that name is introduced so downstream resolvers
//     see a defined-but-empty feature.
//
// The stored form is never mutated; correction happens on emit.
func EnsureCorrectMetadata(entries []CrateVersion) {
	for i := range entries {
		e := &entries[i]

		validFeatures := make(map[string]struct{}, len(e.Features)+len(e.Features2))
		for k := range e.Features {
			validFeatures[k] = struct{}{}
		}
		for k := range e.Features2 {
			validFeatures[k] = struct{}{}
		}

		var missing []string
		fixActions := func(actions []string) []string {
			kept := actions[:0]
			for _, action := range actions {
				if _, ok := validFeatures[action]; ok {
					kept = append(kept, action)
					continue
				}
				dep := strings.TrimPrefix(action, "dep:")
				if i := strings.IndexAny(dep, "?/"); i >= 0 {
					dep = dep[:i]
				}
				if hasDep(e.Deps, dep) {
					kept = append(kept, action)
					continue
				}
				if _, ok := validFeatures[dep]; !ok {
					missing = append(missing, dep)
				}
			}
			return kept
		}

		for k, v := range e.Features {
			e.Features[k] = fixActions(v)
		}
		for k, v := range e.Features2 {
			e.Features2[k] = fixActions(v)
		}

		// Make the features exist in case other crates refer to them too.
		for _, f := range missing {
			if e.Features == nil {
				e.Features = map[string][]string{}
			}
			if _, ok := e.Features[f]; !ok {
				e.Features[f] = []string{}
			}
		}
	}
}

func hasDep(deps []Dependency, name string) bool {
	for _, d := range deps {
		if d.Name == name {
			return true
		}
	}
	return false
}

// Normalize rewrites a record such that any two functionally equivalent
// records become identical: features2 is merged into features, feature lists
// and dependency lists are sorted.
func (c *CrateVersion) Normalize() {
	for k, v := range c.Features2 {
		sort.Strings(v)
		if c.Features == nil {
			c.Features = map[string][]string{}
		}
		c.Features[k] = v
	}
	c.Features2 = map[string][]string{}

	for i := range c.Deps {
		sort.Strings(c.Deps[i].Features)
	}
	sort.SliceStable(c.Deps, func(i, j int) bool {
		a, b := &c.Deps[i], &c.Deps[j]
		if x := strings.Compare(deref(a.Registry), deref(b.Registry)); x != 0 {
			return x < 0
		}
		if a.Name != b.Name {
			return a.Name < b.Name
		}
		if x := strings.Compare(deref(a.Package), deref(b.Package)); x != 0 {
			return x < 0
		}
		if a.Req != b.Req {
			return a.Req < b.Req
		}
		if a.Kind != b.Kind {
			return a.Kind < b.Kind
		}
		return deref(a.Target) < deref(b.Target)
	})
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
