// Package routepath normalizes site route paths into a single canonical form:
// exactly one leading slash, no repeated slashes, and no trailing slash (except
// for the root path "/").
package routepath

import (
	"strings"
	"unicode"
)

// Root is the canonical index path.
const Root = "/"

// Path is a normalized route path. The zero value is not normalized; use New.
type Path string

// New normalizes s and returns it as a Path.
func New(s string) Path {
	return Path(Normalize(s))
}

func (p Path) String() string {
	return string(p)
}

// Normalize returns the canonical form of s. Leading and trailing slashes and
// whitespace are stripped together, so Normalize is idempotent.
func Normalize(s string) string {
	var b strings.Builder
	b.Grow(len(s) + 1)
	b.WriteByte('/')
	s = strings.TrimFunc(s, isEdge)
	prevSlash := false
	for i := 0; i < len(s); i++ {
		c := s[i]
		if c == '/' {
			if prevSlash {
				continue
			}
			prevSlash = true
		} else {
			prevSlash = false
		}
		b.WriteByte(c)
	}
	return b.String()
}

func isEdge(r rune) bool {
	return r == '/' || unicode.IsSpace(r)
}

// Equal reports whether a and b normalize to the same path.
func Equal(a, b string) bool {
	return Normalize(a) == Normalize(b)
}

// Join normalizes p, prefixes it with prefix, and normalizes the result.
func Join(prefix, p string) string {
	return Normalize(prefix + Normalize(p))
}

// Segments splits a path into its non-empty segments. The root path has none.
func Segments(p string) []string {
	n := Normalize(p)
	if n == Root {
		return nil
	}
	return strings.Split(n[1:], "/")
}
