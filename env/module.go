package env

import (
	"crypto/sha256"
	"errors"
	"fmt"

	"github.com/google/uuid"
)

var (
	// ErrNoCompiler is returned when a module must be compiled but the
	// scope has no compiler.
	ErrNoCompiler = errors.New("no compiler configured")

	// ErrModuleNotFound is returned for an unknown module index.
	ErrModuleNotFound = errors.New("module not found")
)

// Source is one unit of code to import. Name is the logical name the
// compiled module is cached under; an empty name is never cached.
type Source struct {
	Name string
	Path string
	Code []byte
}

// Digest returns the sha256 of the source code.
func (s Source) Digest() []byte {
	sum := sha256.Sum256(s.Code)
	return sum[:]
}

// Compiler turns source into a module.
type Compiler interface {
	Compile(c *Context, src Source) (*ModuleEntity, error)
}

// CompilerFunc adapts a function to Compiler.
type CompilerFunc func(c *Context, src Source) (*ModuleEntity, error)

// Compile calls f.
func (f CompilerFunc) Compile(c *Context, src Source) (*ModuleEntity, error) {
	return f(c, src)
}

// Dumper is implemented by compilers with a precompiled form. Only
// compilers implementing it use the module cache.
type Dumper interface {
	Dump(m *ModuleEntity) ([]byte, error)
	Undump(c *Context, src Source, data []byte) (*ModuleEntity, error)
}

// ModuleCache persists precompiled modules keyed by logical name. An
// entry whose digest differs from the source digest is a miss.
type ModuleCache interface {
	Get(name string, digest []byte) ([]byte, bool, error)
	Put(name string, digest, payload []byte) error
}

// ---------------------------------------------------------------------------
// Scope-level compile-or-load
// ---------------------------------------------------------------------------

// importModule returns the module for src, compiling it at most once per
// logical name. One lock covers lookup, cache, compile and publication,
// so unrelated compilations under a scope are serialized.
func (s *Scope) importModule(c *Context, src Source) (*ModuleEntity, error) {
	s.moduleMu.Lock()
	defer s.moduleMu.Unlock()

	if src.Name != "" {
		if m := s.modules[src.Name]; m != nil {
			return m, nil
		}
	}

	m, err := s.loadPrecompiled(c, src)
	if err != nil {
		return nil, err
	}
	if m == nil {
		if s.compiler == nil {
			return nil, ErrNoCompiler
		}
		m, err = s.compiler.Compile(c, src)
		if err != nil {
			return nil, err
		}
		log.Debugf("compiled module %q", src.Name)
		s.storePrecompiled(src, m)
	}

	if m.Name == "" {
		m.Name = src.Name
	}
	if m.InternalName == "" {
		m.InternalName = uuid.NewString()
	}
	s.publish(m)
	return m, nil
}

func (s *Scope) loadPrecompiled(c *Context, src Source) (*ModuleEntity, error) {
	d, ok := s.compiler.(Dumper)
	if !ok || s.cache == nil || src.Name == "" {
		return nil, nil
	}
	data, hit, err := s.cache.Get(src.Name, src.Digest())
	if err != nil {
		log.Warningf("module cache: get %q: %s", src.Name, err.Error())
		return nil, nil
	}
	if !hit {
		return nil, nil
	}
	m, err := d.Undump(c, src, data)
	if err != nil {
		return nil, fmt.Errorf("undump %s: %w", src.Name, err)
	}
	log.Debugf("loaded module %q from cache", src.Name)
	return m, nil
}

func (s *Scope) storePrecompiled(src Source, m *ModuleEntity) {
	d, ok := s.compiler.(Dumper)
	if !ok || s.cache == nil || src.Name == "" {
		return
	}
	data, err := d.Dump(m)
	if err == nil {
		err = s.cache.Put(src.Name, src.Digest(), data)
	}
	if err != nil {
		log.Warningf("module cache: put %q: %s", src.Name, err.Error())
	}
}

// publish records m and its static declarations. Name conflicts keep the
// existing entity; contexts report them when registering the module.
func (s *Scope) publish(m *ModuleEntity) {
	if m.Name != "" {
		s.modules[m.Name] = m
	}
	s.moduleIndex[m.InternalName] = m
	for _, e := range m.Classes {
		if e.Static {
			s.classes.putIfAbsent(e.LowerName(), e)
		}
	}
	for _, f := range m.Functions {
		if f.Static {
			s.functions.putIfAbsent(f.LowerName(), f)
		}
	}
	for _, k := range m.Constants {
		s.constants.putIfAbsent(k)
	}
}

// FindModule returns the module cached under name, or nil.
func (s *Scope) FindModule(name string) *ModuleEntity {
	s.moduleMu.Lock()
	defer s.moduleMu.Unlock()
	return s.modules[name]
}

// ModuleByIndex returns the module with the given internal name, or nil.
func (s *Scope) ModuleByIndex(internalName string) *ModuleEntity {
	s.moduleMu.Lock()
	defer s.moduleMu.Unlock()
	return s.moduleIndex[internalName]
}

// ---------------------------------------------------------------------------
// Context-level import
// ---------------------------------------------------------------------------

// ImportModule compiles or reuses the module for src and registers it in
// the context the first time.
func (c *Context) ImportModule(src Source) (*ModuleEntity, error) {
	if src.Name != "" {
		if m := c.modules[src.Name]; m != nil {
			return m, nil
		}
	}
	m, err := c.scope.importModule(c, src)
	if err != nil {
		return nil, err
	}
	c.RegisterModule(m)
	return m, nil
}

// ModuleByIndex resolves a module by internal name.
func (c *Context) ModuleByIndex(internalName string) *ModuleEntity {
	if m := c.moduleIndex[internalName]; m != nil {
		return m
	}
	return c.scope.ModuleByIndex(internalName)
}

// DefineFunction declares a conditional function compiled into a module.
// Redeclaring a name is fatal.
func (c *Context) DefineFunction(trace TraceInfo, moduleIndex string, index int) error {
	m := c.ModuleByIndex(moduleIndex)
	if m == nil {
		return fmt.Errorf("define function: %s: %w", moduleIndex, ErrModuleNotFound)
	}
	f := m.FindFunction(index)
	if f == nil {
		return fmt.Errorf("define function: %s[%d]: %w", moduleIndex, index, ErrModuleNotFound)
	}
	if !c.declareFunction(f) {
		c.Error(trace, msgCannotRedeclareFunction, f.Name)
	}
	return nil
}
