package crawler

import (
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"
)

// PathMapper maps canonical URLs of the origin onto files below the
// target directory. Directories are created as a side effect.
type PathMapper struct {
	origin    Origin
	prefixLen int
	targetDir string
	sep       string
}

// NewPathMapper creates a mapper rooted at targetDir. The separator
// style is fixed here from targetDir.
func NewPathMapper(origin Origin, targetDir string) *PathMapper {
	sep := "/"
	if strings.Contains(targetDir, `\`) {
		sep = `\`
	}
	return &PathMapper{
		origin:    origin,
		prefixLen: len(origin.Prefix()),
		targetDir: strings.TrimRight(targetDir, sep),
		sep:       sep,
	}
}

// TargetDir returns the root every mapped path lives under
func (m *PathMapper) TargetDir() string {
	return m.targetDir
}

// Map returns the local file for canonicalURL with ext appended. The
// parent directory exists when Map returns successfully.
func (m *PathMapper) Map(canonicalURL, ext string) (string, error) {
	if !strings.HasPrefix(canonicalURL, m.origin.Prefix()) {
		return "", fmt.Errorf("%q is outside %s", canonicalURL, m.origin.Prefix())
	}

	rest := canonicalURL[m.prefixLen:]
	if rest != "" && rest[0] != '/' && rest[0] != '?' {
		// shares the prefix but names another host, e.g. example.com.evil
		return "", fmt.Errorf("%q is outside %s", canonicalURL, m.origin.Prefix())
	}

	rel := strings.Trim(strings.ReplaceAll(rest, "/", m.sep), m.sep)
	for _, segment := range strings.Split(rel, m.sep) {
		if segment == ".." || segment == "." {
			return "", fmt.Errorf("%q escapes the target directory", canonicalURL)
		}
	}

	dir, base := m.targetDir, rel
	if i := strings.LastIndex(rel, m.sep); i >= 0 {
		dir = m.targetDir + m.sep + rel[:i]
		base = rel[i+1:]
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("failed to create %s: %w", dir, err)
	}

	if base == "" {
		base = "index"
	}
	return dir + m.sep + base + ext, nil
}

// localRef returns the URL-escaped relative reference from a page living
// in fromDir to the file at target
func localRef(fromDir, target string) (string, error) {
	rel, err := filepath.Rel(fromDir, target)
	if err != nil {
		return "", err
	}
	return (&url.URL{Path: filepath.ToSlash(rel)}).String(), nil
}
