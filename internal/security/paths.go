// Package security keeps job output paths inside their output directory.
package security

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/banshee-data/gridfiles/internal/griderr"
)

// ResolveWithin joins a relative path onto dir and returns the result. An
// absolute path is accepted as is. Either way the result must not escape
// dir; symlinked parents that exist on disk are followed before checking.
func ResolveWithin(dir, path string) (string, error) {
	if path == "" {
		return "", fmt.Errorf("%w: empty output path", griderr.ErrConfiguration)
	}
	joined := path
	if !filepath.IsAbs(path) {
		joined = filepath.Join(dir, path)
	}
	joined = filepath.Clean(joined)

	absPath, err := filepath.Abs(joined)
	if err != nil {
		return "", fmt.Errorf("%w: resolve %s: %v", griderr.ErrConfiguration, path, err)
	}
	absDir, err := filepath.Abs(dir)
	if err != nil {
		return "", fmt.Errorf("%w: resolve %s: %v", griderr.ErrConfiguration, dir, err)
	}

	rel, err := filepath.Rel(canonical(absDir), canonical(absPath))
	if err != nil || escapes(rel) {
		return "", fmt.Errorf("%w: output %s escapes %s", griderr.ErrConfiguration, path, dir)
	}
	return joined, nil
}

// canonical resolves symlinks in the longest existing prefix of p.
func canonical(p string) string {
	check := p
	for {
		if resolved, err := filepath.EvalSymlinks(check); err == nil {
			rest, _ := filepath.Rel(check, p)
			return filepath.Join(resolved, rest)
		}
		parent := filepath.Dir(check)
		if parent == check {
			return p
		}
		check = parent
	}
}

func escapes(rel string) bool {
	return rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) || filepath.IsAbs(rel)
}
