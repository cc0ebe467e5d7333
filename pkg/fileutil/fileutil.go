// Package fileutil provides case-insensitive file lookup over the real file
// system and any fs.FS (embedded assets, test fixtures).
package fileutil

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"strings"
)

// ErrFileNotFound is returned when no entry matches the requested name.
var ErrFileNotFound = errors.New("file not found")

// FindFileCaseInsensitive searches dir for filename ignoring case.
// MIDI files copied from old instruments and SoundFont bundles often differ
// only in case from the name a user types.
//
// Example:
//
//	path, err := FindFileCaseInsensitive("/songs", "Etude.MID")
//	// finds "etude.mid", "ETUDE.MID", ...
func FindFileCaseInsensitive(dir, filename string) (string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return "", fmt.Errorf("%w: failed to read directory %s: %v", ErrFileNotFound, dir, err)
	}

	searchName := strings.ToLower(filename)
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		if strings.ToLower(entry.Name()) == searchName {
			return filepath.Join(dir, entry.Name()), nil
		}
	}

	return "", fmt.Errorf("%w: %s (searched in %s)", ErrFileNotFound, filename, dir)
}

// FindFileCaseInsensitiveFS is FindFileCaseInsensitive for an fs.FS.
// Returned paths use forward slashes.
func FindFileCaseInsensitiveFS(fsys fs.FS, dir, filename string) (string, error) {
	entries, err := fs.ReadDir(fsys, dir)
	if err != nil {
		return "", fmt.Errorf("%w: failed to read directory %s: %v", ErrFileNotFound, dir, err)
	}

	searchName := strings.ToLower(filename)
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		if strings.ToLower(entry.Name()) == searchName {
			return path.Join(dir, entry.Name()), nil
		}
	}

	return "", fmt.Errorf("%w: %s (searched in %s)", ErrFileNotFound, filename, dir)
}

// Locate returns the first candidate name that exists in fsys.
// Empty candidates are skipped.
func Locate(fsys FileSystem, candidates ...string) (string, error) {
	tried := make([]string, 0, len(candidates))
	for _, name := range candidates {
		if name == "" {
			continue
		}
		if fsys.Exists(name) {
			return name, nil
		}
		tried = append(tried, name)
	}
	return "", fmt.Errorf("%w: tried %s", ErrFileNotFound, strings.Join(tried, ", "))
}
