package env

import (
	"errors"
	"os"
	"path/filepath"
)

type includeKind int

const (
	kindInclude includeKind = iota
	kindIncludeOnce
	kindRequire
	kindRequireOnce
)

func (k includeKind) String() string {
	switch k {
	case kindIncludeOnce:
		return "include_once"
	case kindRequire:
		return "require"
	case kindRequireOnce:
		return "require_once"
	}
	return "include"
}

func (k includeKind) once() bool {
	return k == kindIncludeOnce || k == kindRequireOnce
}

func (k includeKind) required() bool {
	return k == kindRequire || k == kindRequireOnce
}

// Include executes a file. A missing file raises a warning and yields
// false.
func (c *Context) Include(path string, locals Locals, trace TraceInfo) Value {
	return c.include(kindInclude, path, locals, trace)
}

// IncludeOnce is Include, but yields true without executing when the
// file was already imported into this context.
func (c *Context) IncludeOnce(path string, locals Locals, trace TraceInfo) Value {
	return c.include(kindIncludeOnce, path, locals, trace)
}

// Require executes a file. A missing file is fatal.
func (c *Context) Require(path string, locals Locals, trace TraceInfo) Value {
	return c.include(kindRequire, path, locals, trace)
}

// RequireOnce is Require, but yields true without executing when the
// file was already imported into this context.
func (c *Context) RequireOnce(path string, locals Locals, trace TraceInfo) Value {
	return c.include(kindRequireOnce, path, locals, trace)
}

func (c *Context) include(kind includeKind, path string, locals Locals, trace TraceInfo) Value {
	resolved, ok := c.FindInIncludePaths(path)
	if !ok {
		return c.includeFailed(kind, path, trace)
	}
	if kind.once() && c.IsLoadedModule(resolved) {
		return true
	}
	m := c.fetchCachedModule(kind, resolved, trace)
	if m == nil {
		return c.includeFailed(kind, path, trace)
	}
	if locals == nil {
		locals = c.globals
	}

	c.PushCall(trace, nil, []Value{path}, kind.String(), "", "")
	defer c.PopCall()
	return m.Include(c, locals)
}

func (c *Context) includeFailed(kind includeKind, path string, trace TraceInfo) Value {
	if kind.required() {
		c.Error(trace, msgRequireFailed, kind, path, c.includePathString())
	} else {
		c.Warning(trace, msgIncludeFailed, kind, path, c.includePathString())
	}
	return false
}

// fetchCachedModule returns the module for a resolved file, importing it
// into the scope and this context if needed. It returns nil when the file
// cannot be read; a compile failure is fatal.
func (c *Context) fetchCachedModule(kind includeKind, resolved string, trace TraceInfo) *ModuleEntity {
	if m := c.modules[resolved]; m != nil {
		return m
	}
	if m := c.scope.FindModule(resolved); m != nil {
		c.RegisterModule(m)
		return m
	}
	code, err := os.ReadFile(resolved)
	if err != nil {
		log.Debugf("context %d: %s %s: %s", c.id, kind, resolved, err.Error())
		return nil
	}
	m, err := c.ImportModule(Source{Name: resolved, Path: resolved, Code: code})
	if err != nil {
		sev := EParse
		if errors.Is(err, ErrNoCompiler) {
			sev = ECoreError
		}
		c.Raise(sev, trace, msgModuleCompileFailed, kind, err)
		return nil
	}
	return m
}

// FindInIncludePaths resolves path to an existing regular file: as given
// first, then joined with each include path in order. The result is
// absolute.
func (c *Context) FindInIncludePaths(path string) (string, bool) {
	if path == "" {
		return "", false
	}
	if p, ok := regularFile(path); ok {
		return p, true
	}
	if filepath.IsAbs(path) {
		return "", false
	}
	for _, dir := range c.includeOrder {
		if p, ok := regularFile(filepath.Join(dir, path)); ok {
			return p, true
		}
	}
	return "", false
}

func regularFile(path string) (string, bool) {
	fi, err := os.Stat(path)
	if err != nil || !fi.Mode().IsRegular() {
		return "", false
	}
	abs, err := filepath.Abs(path)
	if err != nil {
		return "", false
	}
	return abs, true
}
