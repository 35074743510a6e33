// Package manifest finds and decodes YAML and JSON manifest files.
package manifest

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// Extensions lists the file extensions treated as manifests. JSON documents are valid YAML and
// are decoded by the same parser.
var Extensions = []string{".yaml", ".yml", ".json"}

// File is a manifest found on disk.
type File struct {
	Path string
	// Name is the file name without its extension.
	Name string
}

// IsManifest reports whether path has a manifest extension.
func IsManifest(path string) bool {
	ext := strings.ToLower(filepath.Ext(path))
	for _, e := range Extensions {
		if ext == e {
			return true
		}
	}
	return false
}

// Files walks dir recursively and returns its manifests in lexical path order. A missing
// directory returns an error wrapping fs.ErrNotExist.
func Files(dir string) ([]File, error) {
	info, err := os.Stat(dir)
	if err != nil {
		return nil, fmt.Errorf("failed to read manifest directory %s: %w", dir, err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("manifest path %s is not a directory", dir)
	}

	var files []File
	err = filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() || !IsManifest(path) {
			return nil
		}
		base := filepath.Base(path)
		files = append(files, File{
			Path: path,
			Name: strings.TrimSuffix(base, filepath.Ext(base)),
		})
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to walk manifest directory %s: %w", dir, err)
	}
	return files, nil
}

// Decode reads the manifest at path into out. Unknown top-level fields are rejected. An empty
// file leaves out untouched.
func Decode(path string, out any) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read manifest %s: %w", path, err)
	}
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(out); err != nil && !errors.Is(err, io.EOF) {
		return fmt.Errorf("failed to parse manifest %s: %w", path, err)
	}
	return nil
}
