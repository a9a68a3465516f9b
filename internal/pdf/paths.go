package pdf

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

// Directory confines document access to one configured folder
type Directory struct {
	root string
}

// NewDirectory creates a directory guard for root
func NewDirectory(root string) (*Directory, error) {
	if root == "" {
		return nil, fmt.Errorf("configured directory cannot be empty")
	}
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve directory: %w", err)
	}
	return &Directory{root: filepath.Clean(abs)}, nil
}

// Root returns the absolute directory path
func (d *Directory) Root() string {
	return d.root
}

// Resolve turns a relative or absolute document path into an absolute path
// inside the directory. Symlinks are followed before the check.
func (d *Directory) Resolve(path string) (string, error) {
	if path == "" {
		return "", newAcquisitionError(KindInvalidFile, path, "path cannot be empty")
	}
	if !filepath.IsAbs(path) {
		path = filepath.Join(d.root, path)
	}
	clean := filepath.Clean(path)

	target := clean
	if resolved, err := filepath.EvalSymlinks(clean); err == nil {
		target = resolved
	}
	realRoot := d.root
	if resolved, err := filepath.EvalSymlinks(d.root); err == nil {
		realRoot = resolved
	}

	if !within(clean, d.root, realRoot) || !within(target, d.root, realRoot) {
		return "", newAcquisitionError(KindOutsideDirectory, path, "path is outside configured directory %s", d.root)
	}
	return clean, nil
}

func within(path string, roots ...string) bool {
	for _, root := range roots {
		if path == root || strings.HasPrefix(path, root+string(filepath.Separator)) {
			return true
		}
	}
	return false
}

// Documents lists the .pdf and .txt files directly inside the directory,
// sorted by name
func (d *Directory) Documents() ([]string, error) {
	entries, err := os.ReadDir(d.root)
	if err != nil {
		return nil, fmt.Errorf("cannot read directory %s: %w", d.root, err)
	}

	var docs []string
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		switch strings.ToLower(filepath.Ext(entry.Name())) {
		case extPDF, extText:
			docs = append(docs, filepath.Join(d.root, entry.Name()))
		}
	}
	sort.Strings(docs)
	return docs, nil
}
