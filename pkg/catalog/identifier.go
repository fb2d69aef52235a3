package catalog

import "regexp"

// identifierPattern is the regular language spec.md §3 requires of both
// upstream and tool names: [a-zA-Z_][a-zA-Z0-9_]*. A name outside this
// language cannot appear as a TypeScript namespace or function identifier.
var identifierPattern = regexp.MustCompile(`^[a-zA-Z_][a-zA-Z0-9_]*$`)

// ValidIdentifier reports whether name is legal as an upstream or tool name.
func ValidIdentifier(name string) bool {
	return identifierPattern.MatchString(name)
}
