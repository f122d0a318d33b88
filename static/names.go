package static

import "regexp"

var (
	nameSeparators = regexp.MustCompile(`[@.\-]`)
	nameInvalid    = regexp.MustCompile(`[^A-Za-z0-9_]`)
)

// SanitizeName turns a plugin or template name into a valid identifier
// fragment.
func SanitizeName(name string) string {
	return nameInvalid.ReplaceAllString(nameSeparators.ReplaceAllString(name, "_"), "")
}
