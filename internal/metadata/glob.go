package metadata

import "path"

// globMatch wraps path.Match for the ignore-rule glob matching in checks.go.
func globMatch(pattern, value string) (bool, error) {
	return path.Match(pattern, value)
}
