package storage

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/davidcpage/research-notebook/internal/apperr"
)

// FS implements Provider backed by the local file system.
type FS struct {
	root string // absolute path to the notebook directory
}

// NewFS creates a new FS provider rooted at the given directory.
// The directory must already exist.
func NewFS(root string) (*FS, error) {
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("storage: resolve root: %w", err)
	}
	info, err := os.Stat(abs)
	if err != nil {
		return nil, wrapFSErr("stat root", abs, err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("storage: root is not a directory: %s", abs)
	}
	return &FS{root: abs}, nil
}

// Root returns the absolute notebook root path.
func (f *FS) Root() string { return f.root }

// safePath resolves a relative path against the notebook root and
// rejects any result that escapes it (directory traversal).
func (f *FS) safePath(rel string) (string, error) {
	if rel == "" || rel == "." {
		return f.root, nil
	}
	cleaned := filepath.Clean(rel)
	if filepath.IsAbs(cleaned) {
		return "", fmt.Errorf("storage: absolute paths not allowed: %s", rel)
	}
	joined := filepath.Join(f.root, cleaned)
	abs, err := filepath.Abs(joined)
	if err != nil {
		return "", fmt.Errorf("storage: resolve path: %w", err)
	}
	if !strings.HasPrefix(abs, f.root+string(os.PathSeparator)) && abs != f.root {
		return "", fmt.Errorf("storage: path escapes notebook root: %s", rel)
	}
	return abs, nil
}

// ListDir returns the immediate entries of dir.
func (f *FS) ListDir(dir string) ([]Entry, error) {
	abs, err := f.safePath(dir)
	if err != nil {
		return nil, err
	}
	entries, err := os.ReadDir(abs)
	if err != nil {
		return nil, wrapFSErr("list", dir, err)
	}
	out := make([]Entry, 0, len(entries))
	for _, e := range entries {
		info, err := e.Info()
		if err != nil {
			continue
		}
		out = append(out, Entry{Name: e.Name(), IsDir: e.IsDir(), ModTime: info.ModTime()})
	}
	return out, nil
}

// Read returns the raw bytes of a notebook file.
func (f *FS) Read(path string) ([]byte, error) {
	abs, err := f.safePath(path)
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(abs)
	if err != nil {
		return nil, wrapFSErr("read", path, err)
	}
	return data, nil
}

// Write atomically writes content: tmp file → fsync → rename.
func (f *FS) Write(path string, content []byte) error {
	abs, err := f.safePath(path)
	if err != nil {
		return err
	}
	dir := filepath.Dir(abs)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return wrapFSErr("mkdir", path, err)
	}

	tmp, err := os.CreateTemp(dir, ".notebook-tmp-*")
	if err != nil {
		return wrapFSErr("create temp", path, err)
	}
	tmpName := tmp.Name()

	// Clean up on any failure path.
	success := false
	defer func() {
		if !success {
			_ = tmp.Close()
			_ = os.Remove(tmpName)
		}
	}()

	if _, err := tmp.Write(content); err != nil {
		return wrapFSErr("write temp", path, err)
	}
	if err := tmp.Sync(); err != nil {
		return wrapFSErr("fsync", path, err)
	}
	if err := tmp.Close(); err != nil {
		return wrapFSErr("close temp", path, err)
	}
	if err := os.Rename(tmpName, abs); err != nil {
		return wrapFSErr("rename", path, err)
	}
	success = true
	return nil
}

// Delete removes a file from the notebook.
func (f *FS) Delete(path string) error {
	abs, err := f.safePath(path)
	if err != nil {
		return err
	}
	if err := os.Remove(abs); err != nil {
		return wrapFSErr("delete", path, err)
	}
	return nil
}

// Move renames a file within the notebook.
func (f *FS) Move(oldPath, newPath string) error {
	absOld, err := f.safePath(oldPath)
	if err != nil {
		return err
	}
	absNew, err := f.safePath(newPath)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(absNew), 0o755); err != nil {
		return wrapFSErr("mkdir for move", newPath, err)
	}
	if err := os.Rename(absOld, absNew); err != nil {
		return wrapFSErr("move", oldPath, err)
	}
	return nil
}

// Stat reports whether path exists.
func (f *FS) Stat(path string) (Entry, error) {
	abs, err := f.safePath(path)
	if err != nil {
		return Entry{}, err
	}
	info, err := os.Stat(abs)
	if err != nil {
		return Entry{}, wrapFSErr("stat", path, err)
	}
	return Entry{Name: info.Name(), IsDir: info.IsDir(), ModTime: info.ModTime()}, nil
}

// MkdirAll creates dir and any missing parents.
func (f *FS) MkdirAll(dir string) error {
	abs, err := f.safePath(dir)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(abs, 0o755); err != nil {
		return wrapFSErr("mkdir", dir, err)
	}
	return nil
}

// wrapFSErr keeps os.ErrNotExist visible through errors.Is and maps
// denied access onto the engine's permission sentinel, which callers
// treat as fatal to the session.
func wrapFSErr(op, path string, err error) error {
	if errors.Is(err, os.ErrPermission) {
		return fmt.Errorf("storage: %s %s: %w: %w", op, path, apperr.ErrPermission, err)
	}
	return fmt.Errorf("storage: %s %s: %w", op, path, err)
}
