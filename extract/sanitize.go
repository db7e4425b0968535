package extract

import "regexp"

var (
	reservedChars = regexp.MustCompile(`[<>:"/\\|?*]`)
	whitespaceRun = regexp.MustCompile(`[\s\v\x{85}\p{Z}]+`)
)

// Sanitize turns an arbitrary folder, message or attachment name into a
// safe file name. Reserved characters become "_", whitespace runs collapse
// to a single "_", and empty or dot-only names become "unknown".
// Whitespace includes vertical tab and the Unicode space separators.
func Sanitize(name string) string {
	if name == "" {
		return "unknown"
	}
	s := reservedChars.ReplaceAllString(name, "_")
	s = whitespaceRun.ReplaceAllString(s, "_")
	if s == "." || s == ".." {
		return "unknown"
	}
	return s
}
