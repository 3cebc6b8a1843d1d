package env

import (
	"path/filepath"
	"strings"
	"sync"
)

// ---------------------------------------------------------------------------
// Configuration change handlers (process-wide)
// ---------------------------------------------------------------------------

// ConfigChangeHandler observes a configuration key. ok is false when the
// key has no visible value after the change.
type ConfigChangeHandler func(c *Context, value string, ok bool)

var (
	configHandlersMu sync.RWMutex
	configHandlers   = map[string]ConfigChangeHandler{
		"include_path": includePathChanged,
	}
)

// RegisterConfigChangeHandler installs h for key in every context. A nil
// handler removes the registration.
func RegisterConfigChangeHandler(key string, h ConfigChangeHandler) {
	configHandlersMu.Lock()
	defer configHandlersMu.Unlock()
	if h == nil {
		delete(configHandlers, key)
		return
	}
	configHandlers[key] = h
}

func configHandler(key string) ConfigChangeHandler {
	configHandlersMu.RLock()
	defer configHandlersMu.RUnlock()
	return configHandlers[key]
}

func includePathChanged(c *Context, value string, ok bool) {
	if !ok || value == "" {
		c.SetIncludePaths(nil)
		return
	}
	c.SetIncludePaths(filepath.SplitList(value))
}

// ---------------------------------------------------------------------------
// Per-context configuration
// ---------------------------------------------------------------------------

// LookupConfig returns the visible value of key: the context override,
// then the scope default.
func (c *Context) LookupConfig(key string) (string, bool) {
	if v, ok := c.config[key]; ok {
		return v, true
	}
	return c.scope.Default(key)
}

// GetConfig returns the visible value of key, or def.
func (c *Context) GetConfig(key, def string) string {
	if v, ok := c.LookupConfig(key); ok {
		return v
	}
	return def
}

// SetConfig stores the string form of value for key. The key's change
// handler runs before the value is stored. It returns the previous
// visible value.
func (c *Context) SetConfig(key string, value Value) (prev string, had bool) {
	prev, had = c.LookupConfig(key)
	s := Stringify(value)
	if h := configHandler(key); h != nil {
		h(c, s, true)
	}
	c.config[key] = s
	return prev, had
}

// RestoreConfig drops the context override of key and notifies the
// change handler with the value now visible.
func (c *Context) RestoreConfig(key string) {
	delete(c.config, key)
	if h := configHandler(key); h != nil {
		v, ok := c.LookupConfig(key)
		h(c, v, ok)
	}
}

// ConfigValues returns the visible configuration in the section named by
// prefix: "session" lists the "session.*" keys, and an empty prefix lists
// every key. With includingGlobal false only context overrides are listed.
func (c *Context) ConfigValues(prefix string, includingGlobal bool) map[string]string {
	if prefix != "" {
		prefix += "."
	}
	out := make(map[string]string)
	if includingGlobal {
		for k, v := range c.scope.Defaults() {
			if strings.HasPrefix(k, prefix) {
				out[k] = v
			}
		}
	}
	for k, v := range c.config {
		if strings.HasPrefix(k, prefix) {
			out[k] = v
		}
	}
	return out
}

// ---------------------------------------------------------------------------
// Include paths
// ---------------------------------------------------------------------------

// AddIncludePath adds dir to the include search list.
func (c *Context) AddIncludePath(dir string) {
	if _, ok := c.includePaths[dir]; ok {
		return
	}
	c.includePaths[dir] = struct{}{}
	c.includeOrder = append(c.includeOrder, dir)
}

// SetIncludePaths replaces the include search list.
func (c *Context) SetIncludePaths(dirs []string) {
	c.includePaths = make(map[string]struct{}, len(dirs))
	c.includeOrder = c.includeOrder[:0]
	for _, d := range dirs {
		if d != "" {
			c.AddIncludePath(d)
		}
	}
}

// IncludePaths returns the include search list in search order.
func (c *Context) IncludePaths() []string {
	return append([]string(nil), c.includeOrder...)
}

// includePathString renders the search list for diagnostics.
func (c *Context) includePathString() string {
	if len(c.includeOrder) == 0 {
		return "."
	}
	paths := c.IncludePaths()
	return strings.Join(paths, string(filepath.ListSeparator))
}
