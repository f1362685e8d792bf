// Package storage defines the notebook file-system abstraction.
package storage

import "time"

// Entry describes one immediate child of a directory.
type Entry struct {
	Name    string
	IsDir   bool
	ModTime time.Time
}

// Provider is the interface for notebook file operations. All paths are
// relative to the notebook root.
type Provider interface {
	// ListDir returns the immediate entries of dir (non-recursive).
	ListDir(dir string) ([]Entry, error)
	// Read returns the raw bytes of the file at path.
	Read(path string) ([]byte, error)
	// Write atomically writes content to path, creating parent dirs.
	Write(path string, content []byte) error
	// Delete removes the file at path.
	Delete(path string) error
	// Move renames oldPath to newPath.
	Move(oldPath, newPath string) error
	// Stat reports whether path exists and its modification time.
	Stat(path string) (Entry, error)
	// MkdirAll creates dir and any missing parents.
	MkdirAll(dir string) error
}
