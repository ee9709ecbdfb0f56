// Package manifest reads kaffee.toml, the per-project configuration file
// describing where classfiles live and how the runtime should be tuned.
package manifest

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/BurntSushi/toml"
)

// Filename is the manifest file name looked for in a project directory.
const Filename = "kaffee.toml"

var ErrNotFound = errors.New("no kaffee.toml found")

// Project identifies the program the manifest belongs to.
type Project struct {
	Name    string `toml:"name"`
	Version string `toml:"version"`
}

// Runtime tunes the VM.
type Runtime struct {
	GCThreshold int    `toml:"gc_threshold"`
	MaxObjects  int    `toml:"max_objects"`
	Verbosity   int    `toml:"verbosity"`
	Store       string `toml:"store"`
}

// Manifest is a parsed kaffee.toml.
type Manifest struct {
	Project   Project  `toml:"project"`
	Runtime   Runtime  `toml:"runtime"`
	Classpath []string `toml:"classpath"`

	// Dir is the directory the manifest was loaded from. Classpath entries
	// are resolved relative to it.
	Dir string `toml:"-"`
}

// Load parses the manifest at path.
func Load(path string) (*Manifest, error) {
	var m Manifest
	if _, err := toml.DecodeFile(path, &m); err != nil {
		return nil, fmt.Errorf("reading %s: %w", path, err)
	}
	m.Dir = filepath.Dir(path)
	if len(m.Classpath) == 0 {
		m.Classpath = []string{"."}
	}
	return &m, nil
}

// Find walks from dir upward looking for a kaffee.toml and loads the first
// one it meets.
func Find(dir string) (*Manifest, error) {
	current, err := filepath.Abs(dir)
	if err != nil {
		return nil, err
	}
	for {
		candidate := filepath.Join(current, Filename)
		if _, err := os.Stat(candidate); err == nil {
			return Load(candidate)
		}
		parent := filepath.Dir(current)
		if parent == current {
			return nil, fmt.Errorf("%w: searched from %s upward", ErrNotFound, dir)
		}
		current = parent
	}
}

// ClassfilePath resolves a class name to a .class file path, trying each
// classpath entry in order.
func (m *Manifest) ClassfilePath(className string) (string, error) {
	for _, entry := range m.Classpath {
		root := entry
		if !filepath.IsAbs(root) {
			root = filepath.Join(m.Dir, root)
		}
		candidate := filepath.Join(root, filepath.FromSlash(className)+".class")
		if _, err := os.Stat(candidate); err == nil {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("class %s not found on classpath", className)
}
