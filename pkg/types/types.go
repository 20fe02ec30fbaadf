package types

import (
	"encoding/json"
	"time"
)

// DependencyKind classifies how a dependency is used by the depending crate.
type DependencyKind string

const (
	DependencyKindNormal DependencyKind = "normal"
	DependencyKindDev    DependencyKind = "dev"
	DependencyKindBuild  DependencyKind = "build"
)

// CrateVersion is a single line of a sparse index entry, describing one
// published version of a crate.
type CrateVersion struct {
	// Name of the package. Must only contain alphanumeric, `-`, or `_`
	// characters.
	Name string `json:"name"`
	// The version of the package this row is describing. Must be a valid
	// Semantic Versioning 2.0.0 version number.
	Vers string `json:"vers"`
	// Direct dependencies of the package.
	Deps []Dependency `json:"deps"`
	// Lowercase hex SHA-256 checksum of the `.crate` file.
	Cksum string `json:"cksum"`
	// Features defined for the package. Each feature maps to an array of
	// features or dependencies it enables.
	Features map[string][]string `json:"features"`
	// Whether this version has been yanked.
	Yanked bool `json:"yanked"`
	// The `links` string value from the package's manifest, if any.
	Links *string `json:"links,omitempty"`
	// Schema version of this entry. Absent means 1. Must be at least 2 when
	// Features2 is non-empty.
	V uint32 `json:"v"`
	// Features with new, extended syntax: namespaced features (`dep:`) and
	// weak dependencies (`pkg?/feat`). Kept apart from Features so that old
	// cargo versions do not choke on the new syntax.
	Features2 map[string][]string `json:"features2,omitempty"`
}

// UnmarshalJSON applies the schema-version default of 1 for entries that
// predate the `v` field.
func (c *CrateVersion) UnmarshalJSON(data []byte) error {
	type alias CrateVersion
	c.V = 1
	return json.Unmarshal(data, (*alias)(c))
}

// Dependency is a dependency as recorded in the index.
type Dependency struct {
	// Name of the dependency as seen by dependents. If the dependency is
	// renamed from the original package name, this is the new name and the
	// original name is stored in Package.
	Name string `json:"name"`
	// The semver requirement for this dependency.
	Req string `json:"req"`
	// Features enabled for this dependency.
	Features []string `json:"features"`
	// Whether this is an optional dependency.
	Optional bool `json:"optional"`
	// Whether default features are enabled.
	DefaultFeatures bool `json:"default_features"`
	// The target platform for the dependency, such as "cfg(windows)".
	// Nil if not a target dependency.
	Target *string `json:"target,omitempty"`
	// The dependency kind: "normal", "dev", or "build".
	Kind DependencyKind `json:"kind"`
	// The URL of the registry index this dependency comes from. Absent means
	// the current registry.
	Registry *string `json:"registry,omitempty"`
	// If the dependency is renamed, the original package name.
	Package *string `json:"package,omitempty"`
}

// Publish is the metadata document submitted with a crate publication.
// It is a superset of CrateVersion carrying publisher-only fields.
type Publish struct {
	Name string              `json:"name"`
	Vers string              `json:"vers"`
	Deps []PublishDependency `json:"deps"`
	// Features defined for the package.
	Features map[string][]string `json:"features"`
	// Authors of the package. May be empty.
	Authors []string `json:"authors"`
	// Description field from the manifest.
	Description *string `json:"description"`
	// URL of the package's documentation.
	Documentation *string `json:"documentation"`
	// URL of the package's home page.
	Homepage *string `json:"homepage"`
	// Content of the README file.
	Readme *string `json:"readme"`
	// Relative path to a README file in the crate.
	ReadmeFile *string `json:"readme_file"`
	// Keywords for the package.
	Keywords []string `json:"keywords"`
	// Categories for the package.
	Categories []string `json:"categories"`
	// License of the package.
	License *string `json:"license"`
	// Relative path to a license file in the crate.
	LicenseFile *string `json:"license_file"`
	// URL of the package's source repository.
	Repository *string `json:"repository"`
	// Optional object of "status" badges.
	Badges map[string]map[string]string `json:"badges,omitempty"`
	// The `links` string value from the package's manifest.
	Links *string `json:"links"`
}

// PublishDependency is a dependency as submitted with a publication.
// Note the naming is inverted with respect to Dependency: Name holds the
// original package name, and ExplicitNameInToml the rename, if any.
type PublishDependency struct {
	// Name of the dependency. If the dependency is renamed, this is the
	// original package name and the new name is in ExplicitNameInToml.
	Name string `json:"name"`
	// The semver requirement for this dependency.
	VersionReq string `json:"version_req"`
	// Features enabled for this dependency.
	Features []string `json:"features"`
	// Whether this is an optional dependency.
	Optional bool `json:"optional"`
	// Whether default features are enabled.
	DefaultFeatures bool `json:"default_features"`
	// The target platform for the dependency.
	Target *string `json:"target"`
	// The dependency kind: "normal", "dev", or "build".
	Kind DependencyKind `json:"kind"`
	// The URL of the registry index this dependency comes from.
	Registry *string `json:"registry"`
	// If the dependency is renamed, the new package name.
	ExplicitNameInToml *string `json:"explicit_name_in_toml"`
}

// SparseEntries is the result of a sparse index read: the ordered version
// records for one crate plus an optional caching hint.
type SparseEntries struct {
	Entries      []CrateVersion
	LastModified *time.Time
}

// VersionExists reports the state of a confirmed (name, version) pair.
type VersionExists struct {
	Yanked bool
	// SHA-256 of the stored tarball.
	TarballChecksum [32]byte
}

// RegistryConfig is the body of `/index/config.json`.
type RegistryConfig struct {
	DL           string `json:"dl"`
	API          string `json:"api"`
	AuthRequired bool   `json:"auth-required"`
}

// CompletedPublication is the success response of a publish.
type CompletedPublication struct {
	// Warnings to display to the user, if any.
	Warnings *PublicationWarnings `json:"warnings"`
}

// PublicationWarnings lists non-fatal problems with a publication.
type PublicationWarnings struct {
	// Categories that are invalid and were ignored.
	InvalidCategories []string `json:"invalid_categories"`
	// Badge names that are invalid and were ignored.
	InvalidBadges []string `json:"invalid_badges"`
	// Arbitrary warnings to display to the user.
	Other []string `json:"other"`
}

// YankResult is the body of a yank or unyank response.
type YankResult struct {
	OK bool `json:"ok"`
}

// SearchQuery is the query-string form of a search request.
type SearchQuery struct {
	// The search query string.
	Q string
	// Number of results, default 10, max 100.
	PerPage *int
}

// ListQuery is pagination for the all-crates listing. When both fields are
// nil, all crates are returned.
type ListQuery struct {
	PerPage *int
	Page    *int
}

// SearchResults is the body of a search response.
type SearchResults struct {
	Crates []SearchResultsEntry `json:"crates"`
	Meta   SearchResultsMeta    `json:"meta"`
}

// SearchResultsMeta carries the total number of matches available on the
// server, not the truncated page size.
type SearchResultsMeta struct {
	Total int `json:"total"`
}

// SearchResultsEntry is one search hit.
type SearchResultsEntry struct {
	Name string `json:"name"`
	// The highest version available.
	MaxVersion  string `json:"max_version"`
	Description string `json:"description"`
}

// ListAll is the body of the all-crates listing.
type ListAll struct {
	Results []ListAllCrateEntry `json:"results"`
}

// ListAllCrateEntry describes one crate in the all-crates listing.
type ListAllCrateEntry struct {
	Name          string                `json:"name"`
	Versions      []ListAllCrateVersion `json:"versions"`
	Description   string                `json:"description"`
	CreatedAt     time.Time             `json:"created_at"`
	UpdatedAt     time.Time             `json:"updated_at"`
	Homepage      *string               `json:"homepage"`
	Repository    *string               `json:"repository"`
	Documentation *string               `json:"documentation"`
	Keywords      []string              `json:"keywords"`
	Categories    []string              `json:"categories"`
}

// ListAllCrateVersion is one version in the all-crates listing.
type ListAllCrateVersion struct {
	Version string `json:"version"`
}

// OwnerList is the body of a list-owners response.
type OwnerList struct {
	Users []ListedOwner `json:"users"`
}

// ListedOwner is one owner of a crate.
type ListedOwner struct {
	ID    uint32  `json:"id"`
	Login string  `json:"login"`
	Name  *string `json:"name"`
}

// ChangedOwnership is the body of an add-owners or remove-owners response.
type ChangedOwnership struct {
	// Always true on success.
	OK bool `json:"ok"`
	// A string to be displayed to the user.
	Msg string `json:"msg"`
}

// ChangedOwnershipWithMsg builds a successful ownership-change response.
func ChangedOwnershipWithMsg(msg string) ChangedOwnership {
	return ChangedOwnership{OK: true, Msg: msg}
}
