// Package display implements file-backed display surfaces. Each surface is a
// text file under <sessionDir>/display that the survey host renders; updates
// replace the whole file.
package display

import (
	"os"
	"path/filepath"
)

// Surface is a single display surface. A nil *Surface represents a surface
// that was absent at start; all updates on it are silent no-ops, matching the
// contract that a missing display element is tolerated, not an error.
type Surface struct {
	path string
}

// Open returns the named surface, or nil when the session has no display
// directory.
func Open(sessionDir, name string) *Surface {
	dir := filepath.Join(sessionDir, "display")
	fi, err := os.Stat(dir)
	if err != nil || !fi.IsDir() {
		return nil
	}
	return &Surface{path: filepath.Join(dir, name+".txt")}
}

// Set replaces the surface's text.
func (s *Surface) Set(text string) error {
	if s == nil {
		return nil
	}
	return os.WriteFile(s.path, []byte(text), 0644)
}

// Read returns the surface's current text, or "" when absent.
func (s *Surface) Read() string {
	if s == nil {
		return ""
	}
	content, err := os.ReadFile(s.path)
	if err != nil {
		return ""
	}
	return string(content)
}
