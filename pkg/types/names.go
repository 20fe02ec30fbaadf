package types

import "strings"

// MaxNameLen is the longest crate name the registry accepts, in bytes.
const MaxNameLen = 64

// CanonicalName lowercases a crate name into its canonical key form.
// The canonical form is used for locking and storage; the original case is
// preserved inside version records.
func CanonicalName(name string) string {
	return strings.ToLower(name)
}

// ValidName reports whether an already-canonical crate name matches
// ^[a-z0-9_-]{1,64}$.
func ValidName(lcName string) bool {
	if len(lcName) == 0 || len(lcName) > MaxNameLen {
		return false
	}
	for i := 0; i < len(lcName); i++ {
		if !validNameByte(lcName[i]) {
			return false
		}
	}
	return true
}

func validNameByte(c byte) bool {
	return (c >= 'a' && c <= 'z') || (c >= '0' && c <= '9') || c == '-' || c == '_'
}

// IndexPath derives the sparse-index file path for an already-canonical crate
// name. Returns "" if the name is not allowed.
//
//	len >= 4  ->  <first2>/<next2>/<name>
//	len == 3  ->  3/<first1>/<name>
//	len == 2  ->  2/<name>
//	len == 1  ->  1/<name>
func IndexPath(lcName string) string {
	if !ValidName(lcName) {
		return ""
	}
	var b strings.Builder
	b.Grow(len(lcName) + 5)
	switch len(lcName) {
	case 1:
		b.WriteByte('1')
	case 2:
		b.WriteByte('2')
	case 3:
		b.WriteString("3/")
		b.WriteString(lcName[:1])
	default:
		b.WriteString(lcName[:2])
		b.WriteByte('/')
		b.WriteString(lcName[2:4])
	}
	b.WriteByte('/')
	b.WriteString(lcName)
	return b.String()
}

// DownloadPrefix implements the crate prefix transformation of the download
// URL scheme: {prefix} in a registry dl template.
func DownloadPrefix(name string) string {
	switch len(name) {
	case 0:
		return ""
	case 1:
		return "1"
	case 2:
		return "2"
	case 3:
		return "3/" + name[:1]
	default:
		return name[:2] + "/" + name[2:4]
	}
}
