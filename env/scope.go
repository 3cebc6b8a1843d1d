package env

import (
	"errors"
	"fmt"
	"strings"
	"sync"
)

// ErrAlreadyRegistered is returned when a scope declaration clashes with
// an existing entity.
var ErrAlreadyRegistered = errors.New("already registered")

// Extension hooks into every context created on a scope.
type Extension interface {
	Name() string
	OnLoad(c *Context)
}

// Scope is the compiled state shared by sibling contexts. All methods are
// safe for concurrent use.
type Scope struct {
	ids      *IDAllocator
	compiler Compiler
	cache    ModuleCache

	defaultsMu sync.RWMutex
	defaults   map[string]string

	includePaths []string
	errorFlags   Severity
	extensions   []Extension

	classes   *table[*ClassEntity]
	functions *table[*FunctionEntity]
	constants *constantTable

	moduleMu    sync.Mutex
	modules     map[string]*ModuleEntity
	moduleIndex map[string]*ModuleEntity
}

// ScopeOption configures a Scope.
type ScopeOption func(*Scope)

// WithCompiler sets the compiler used by module import.
func WithCompiler(c Compiler) ScopeOption {
	return func(s *Scope) { s.compiler = c }
}

// WithModuleCache sets the precompiled module store.
func WithModuleCache(mc ModuleCache) ScopeOption {
	return func(s *Scope) { s.cache = mc }
}

// WithDefaults merges configuration defaults.
func WithDefaults(values map[string]string) ScopeOption {
	return func(s *Scope) {
		for k, v := range values {
			s.defaults[k] = v
		}
	}
}

// WithIncludePaths sets the include paths new contexts start with.
func WithIncludePaths(paths ...string) ScopeOption {
	return func(s *Scope) { s.includePaths = append([]string(nil), paths...) }
}

// WithScopeErrorFlags sets the error mask new contexts start with.
func WithScopeErrorFlags(mask Severity) ScopeOption {
	return func(s *Scope) { s.errorFlags = mask }
}

// WithExtension adds an extension.
func WithExtension(e Extension) ScopeOption {
	return func(s *Scope) { s.extensions = append(s.extensions, e) }
}

// WithIDAllocator shares an id allocator between scopes.
func WithIDAllocator(a *IDAllocator) ScopeOption {
	return func(s *Scope) { s.ids = a }
}

// NewScope creates an empty scope.
func NewScope(opts ...ScopeOption) *Scope {
	s := &Scope{
		ids:         &IDAllocator{},
		defaults:    make(map[string]string),
		errorFlags:  DefaultErrorFlags,
		classes:     newTable[*ClassEntity](),
		functions:   newTable[*FunctionEntity](),
		constants:   newConstantTable(),
		modules:     make(map[string]*ModuleEntity),
		moduleIndex: make(map[string]*ModuleEntity),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// IDs returns the scope's context id allocator.
func (s *Scope) IDs() *IDAllocator {
	return s.ids
}

// SetDefault sets a configuration default.
func (s *Scope) SetDefault(key string, value Value) {
	s.defaultsMu.Lock()
	s.defaults[key] = Stringify(value)
	s.defaultsMu.Unlock()
}

// Default returns a configuration default.
func (s *Scope) Default(key string) (string, bool) {
	s.defaultsMu.RLock()
	defer s.defaultsMu.RUnlock()
	v, ok := s.defaults[key]
	return v, ok
}

// Defaults returns a copy of the configuration defaults.
func (s *Scope) Defaults() map[string]string {
	s.defaultsMu.RLock()
	defer s.defaultsMu.RUnlock()
	out := make(map[string]string, len(s.defaults))
	for k, v := range s.defaults {
		out[k] = v
	}
	return out
}

// DeclareClass adds a class visible to every context.
func (s *Scope) DeclareClass(e *ClassEntity) error {
	e.Static = true
	if cur, loaded := s.classes.putIfAbsent(e.LowerName(), e); loaded && cur != e {
		return fmt.Errorf("class %s: %w", e.Name, ErrAlreadyRegistered)
	}
	return nil
}

// DeclareFunction adds a function visible to every context.
func (s *Scope) DeclareFunction(f *FunctionEntity) error {
	f.Static = true
	if cur, loaded := s.functions.putIfAbsent(f.LowerName(), f); loaded && cur != f {
		return fmt.Errorf("function %s: %w", f.Name, ErrAlreadyRegistered)
	}
	return nil
}

// DeclareConstant adds a constant visible to every context.
func (s *Scope) DeclareConstant(k *ConstantEntity) error {
	if cur, loaded := s.constants.putIfAbsent(k); loaded && cur != k {
		return fmt.Errorf("constant %s: %w", k.Name, ErrAlreadyRegistered)
	}
	return nil
}

// FindClass returns a static class declared in the scope, or nil.
func (s *Scope) FindClass(name string) *ClassEntity {
	e, _ := s.classes.get(strings.ToLower(normalizeName(name)))
	return e
}
