// Package manifest handles phpenv.toml project configuration.
package manifest

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"github.com/BurntSushi/toml"
	"github.com/chazu/phpenv/env"
	"github.com/chazu/phpenv/modcache"
)

// FileName is the manifest file looked up in project directories.
const FileName = "phpenv.toml"

// Manifest represents a phpenv.toml project configuration.
type Manifest struct {
	Project Project        `toml:"project"`
	Runtime Runtime        `toml:"runtime"`
	Ini     map[string]any `toml:"ini"`
	Cache   CacheConfig    `toml:"cache"`

	// Dir is the directory containing the phpenv.toml file (set at load time).
	Dir string `toml:"-"`

	errorMask env.Severity
}

// Project contains project metadata.
type Project struct {
	Name    string `toml:"name"`
	Version string `toml:"version"`
}

// Runtime configures how contexts start.
type Runtime struct {
	IncludePaths   []string `toml:"include-paths"`
	ErrorReporting string   `toml:"error-reporting"`
}

// CacheConfig configures the compiled module cache.
type CacheConfig struct {
	Path    string `toml:"path"`
	Enabled bool   `toml:"enabled"`
}

// Load parses a phpenv.toml file from the given directory.
func Load(dir string) (*Manifest, error) {
	path := filepath.Join(dir, FileName)
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("cannot read %s: %w", path, err)
	}

	// Defaults
	m := Manifest{
		Cache:     CacheConfig{Path: filepath.Join(".phpenv", "modules.db"), Enabled: true},
		errorMask: env.DefaultErrorFlags,
	}
	if err := toml.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("parse error in %s: %w", path, err)
	}

	m.Dir, err = filepath.Abs(dir)
	if err != nil {
		return nil, fmt.Errorf("cannot resolve path %s: %w", dir, err)
	}

	if m.Runtime.ErrorReporting != "" {
		m.errorMask, err = env.ParseSeverityMask(m.Runtime.ErrorReporting)
		if err != nil {
			return nil, fmt.Errorf("%s: error-reporting: %w", path, err)
		}
	}

	return &m, nil
}

// FindAndLoad walks up from startDir to find a phpenv.toml file,
// then loads and returns the manifest. Returns nil if no manifest is found.
func FindAndLoad(startDir string) (*Manifest, error) {
	dir, err := filepath.Abs(startDir)
	if err != nil {
		return nil, err
	}

	for {
		path := filepath.Join(dir, FileName)
		if _, err := os.Stat(path); err == nil {
			return Load(dir)
		}

		parent := filepath.Dir(dir)
		if parent == dir {
			// Reached root
			return nil, nil
		}
		dir = parent
	}
}

// IncludePathList returns the configured include paths, relative entries
// resolved against the manifest directory.
func (m *Manifest) IncludePathList() []string {
	var paths []string
	for _, p := range m.Runtime.IncludePaths {
		if !filepath.IsAbs(p) {
			p = filepath.Join(m.Dir, p)
		}
		paths = append(paths, p)
	}
	return paths
}

// ErrorMask returns the parsed error-reporting mask.
func (m *Manifest) ErrorMask() env.Severity {
	return m.errorMask
}

// Defaults returns the [ini] table as configuration defaults.
func (m *Manifest) Defaults() map[string]string {
	defaults := make(map[string]string, len(m.Ini))
	for k, v := range m.Ini {
		defaults[k] = env.Stringify(v)
	}
	return defaults
}

// DefaultKeys returns the [ini] keys in sorted order.
func (m *Manifest) DefaultKeys() []string {
	keys := make([]string, 0, len(m.Ini))
	for k := range m.Ini {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// ScopeOptions returns the scope options this manifest describes. The
// module cache is opened separately with OpenCache.
func (m *Manifest) ScopeOptions() []env.ScopeOption {
	opts := []env.ScopeOption{
		env.WithDefaults(m.Defaults()),
		env.WithScopeErrorFlags(m.errorMask),
	}
	if paths := m.IncludePathList(); len(paths) > 0 {
		opts = append(opts, env.WithIncludePaths(paths...))
	}
	return opts
}

// CachePath returns the absolute path of the module cache database.
func (m *Manifest) CachePath() string {
	if filepath.IsAbs(m.Cache.Path) {
		return m.Cache.Path
	}
	return filepath.Join(m.Dir, m.Cache.Path)
}

// OpenCache opens the module cache, or returns nil when it is disabled.
func (m *Manifest) OpenCache() (*modcache.Store, error) {
	if !m.Cache.Enabled {
		return nil, nil
	}
	return modcache.Open(m.CachePath())
}
