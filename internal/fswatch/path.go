package fswatch

import (
	"path/filepath"
	"strings"
)

func hasPathPrefix(name, base string) bool {
	rel, err := filepath.Rel(base, name)
	if err != nil {
		return false
	}
	return rel == "." || !strings.HasPrefix(rel, "..")
}

func relPath(base, name string) string {
	rel, err := filepath.Rel(base, name)
	if err != nil {
		return name
	}
	return rel
}
