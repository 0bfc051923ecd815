package botconfig

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
)

// EnsureFromExample makes sure path exists and is writable. When it cannot be
// opened read/write, the bundled "<path>.example" is renamed into place.
// It reports whether the template was used.
func EnsureFromExample(path string) (bool, error) {
	f, err := os.OpenFile(path, os.O_RDWR, 0)
	if err == nil {
		_ = f.Close()
		return false, nil
	}

	example := ExamplePath(path)
	if renameErr := os.Rename(example, path); renameErr != nil {
		if errors.Is(renameErr, os.ErrNotExist) {
			return false, fmt.Errorf("%s: %w", path, ErrNoTemplate)
		}
		return false, fmt.Errorf("install %s: %w", filepath.Base(example), renameErr)
	}
	return true, nil
}

// SeedJSON writes "{}" to path unless it can already be opened read/write.
// It reports whether the file was written.
func SeedJSON(path string) (bool, error) {
	f, err := os.OpenFile(path, os.O_RDWR, 0)
	if err == nil {
		_ = f.Close()
		return false, nil
	}

	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return false, fmt.Errorf("create %s: %w", filepath.Dir(path), err)
	}
	if err := os.WriteFile(path, []byte("{}"), 0644); err != nil {
		return false, fmt.Errorf("seed %s: %w", path, err)
	}
	return true, nil
}
