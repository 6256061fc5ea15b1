package utils

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
)

// EnsureDir ensures the provided directory exists.
func EnsureDir(dir string) error {
	return os.MkdirAll(dir, 0o755)
}

// SafeWriteFile writes data to a temp file and atomically renames it into place.
func SafeWriteFile(path string, data []byte) error {
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("write temp file: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		_ = os.Remove(tmp)
		return fmt.Errorf("atomic rename: %w", err)
	}
	return nil
}

// PrettyJSON marshals a value as indented JSON.
func PrettyJSON(v any) ([]byte, error) {
	b, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("marshal json: %w", err)
	}
	return b, nil
}

// DefaultTemplateDirs is the template search path, in priority order.
var DefaultTemplateDirs = []string{".", "templates", "src/templates"}

// FindTemplate returns the first readable regular file named name inside dirs.
// An empty dirs slice searches DefaultTemplateDirs.
func FindTemplate(dirs []string, name string) (string, bool) {
	if name == "" {
		return "", false
	}
	if len(dirs) == 0 {
		dirs = DefaultTemplateDirs
	}
	for _, dir := range dirs {
		candidate := filepath.Join(dir, name)
		info, err := os.Stat(candidate)
		if err != nil || info.IsDir() {
			continue
		}
		return candidate, true
	}
	return "", false
}

// WriteArtifact writes data under dir (created if missing) and returns the final path.
func WriteArtifact(dir, name string, data []byte) (string, error) {
	if dir == "" {
		dir = "."
	}
	path := name
	if !filepath.IsAbs(name) {
		path = filepath.Join(dir, name)
	}
	if err := EnsureDir(filepath.Dir(path)); err != nil {
		return "", fmt.Errorf("create output dir: %w", err)
	}
	if err := SafeWriteFile(path, data); err != nil {
		return "", err
	}
	return path, nil
}
