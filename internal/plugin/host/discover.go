package host

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/fsnotify/fsnotify"
	"gopkg.in/yaml.v3"

	"github.com/kruss/chipmunk/internal/logger"
)

// Plugin kinds and sandbox flavors accepted by the manifest.
const (
	KindParser = "parser"
	KindSource = "source"

	FlavorWasm = "wasm"
	FlavorWasi = "wasi"
)

// ManifestEntry describes one plugin binary.
type ManifestEntry struct {
	Name   string `yaml:"name"`
	Kind   string `yaml:"kind"`            // parser | source
	Flavor string `yaml:"flavor"`          // wasm | wasi
	Path   string `yaml:"path"`            // plugin binary
	Mount  string `yaml:"mount,omitempty"` // host dir preopened as "/" (wasi only)
}

// Manifest is the YAML plugin configuration file.
type Manifest struct {
	Plugins []ManifestEntry `yaml:"plugins"`
}

// LoadManifest reads and validates a plugin manifest.
func LoadManifest(path string) (*Manifest, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read manifest: %w", err)
	}
	var m Manifest
	if err := yaml.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("parse manifest: %w", err)
	}
	seen := make(map[string]bool, len(m.Plugins))
	for i, p := range m.Plugins {
		if p.Name == "" || p.Path == "" {
			return nil, fmt.Errorf("manifest entry %d: name and path are required", i)
		}
		if seen[p.Name] {
			return nil, fmt.Errorf("manifest entry %d: duplicate name %q", i, p.Name)
		}
		seen[p.Name] = true
		if p.Kind != KindParser && p.Kind != KindSource {
			return nil, fmt.Errorf("manifest entry %q: unknown kind %q", p.Name, p.Kind)
		}
		if p.Flavor != FlavorWasm && p.Flavor != FlavorWasi {
			return nil, fmt.Errorf("manifest entry %q: unknown flavor %q", p.Name, p.Flavor)
		}
		if p.Flavor == FlavorWasi && p.Mount == "" {
			return nil, fmt.Errorf("manifest entry %q: wasi flavor requires a mount dir", p.Name)
		}
	}
	return &m, nil
}

// Find returns the entry named name, or nil.
func (m *Manifest) Find(name string) *ManifestEntry {
	for i := range m.Plugins {
		if m.Plugins[i].Name == name {
			return &m.Plugins[i]
		}
	}
	return nil
}

// Register reads each manifest entry's binary and adds the matching
// factory to the runtime.
func (r *Runtime) Register(m *Manifest) error {
	for _, p := range m.Plugins {
		binary, err := os.ReadFile(p.Path)
		if err != nil {
			return fmt.Errorf("read plugin %q: %w", p.Name, err)
		}
		switch p.Flavor {
		case FlavorWasi:
			r.AddFactory(p.Name, NewWasiFactory(binary, p.Mount))
		default:
			r.AddFactory(p.Name, NewWasmFactory(binary))
		}
	}
	return nil
}

// Watch registers a pure-sandbox factory for every .wasm file appearing
// in dir, named after the file without extension. Registration only:
// running guests are never touched. Watch returns once the watcher is
// installed; done stops it.
func (r *Runtime) Watch(dir string, done <-chan struct{}) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create watcher: %w", err)
	}
	if err := watcher.Add(dir); err != nil {
		_ = watcher.Close()
		return fmt.Errorf("watch %s: %w", dir, err)
	}

	go func() {
		defer watcher.Close()
		for {
			select {
			case <-done:
				return
			case event, ok := <-watcher.Events:
				if !ok {
					return
				}
				if !event.Op.Has(fsnotify.Create) && !event.Op.Has(fsnotify.Write) {
					continue
				}
				if filepath.Ext(event.Name) != ".wasm" {
					continue
				}
				binary, err := os.ReadFile(event.Name)
				if err != nil {
					logger.Warn("read discovered plugin", "path", event.Name, "err", err)
					continue
				}
				name := strings.TrimSuffix(filepath.Base(event.Name), ".wasm")
				r.AddFactory(name, NewWasmFactory(binary))
			case err, ok := <-watcher.Errors:
				if !ok {
					return
				}
				logger.Warn("plugin watcher", "err", err)
			}
		}
	}()
	return nil
}
