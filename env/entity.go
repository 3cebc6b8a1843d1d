package env

import (
	"strings"
	"sync/atomic"
)

// ---------------------------------------------------------------------------
// Reflection entities
// ---------------------------------------------------------------------------

// ClassEntity describes a compiled class. Entities are owned by the Scope;
// contexts only hold references to them.
type ClassEntity struct {
	Name   string
	Parent *ClassEntity
	Static bool // declared at module top level, visible scope-wide
	Trace  TraceInfo

	// Destructor is the class's own __destruct method, if declared.
	Destructor *MethodEntity

	// Methods keyed by lower-cased name.
	Methods map[string]*MethodEntity

	// InitContext runs once per context when the class enters that
	// context's class map (static property initialisation and the like).
	InitContext func(c *Context) error

	// Instantiate creates a new instance. When nil, a BaseObject is used.
	Instantiate func(c *Context, class *ClassEntity, args []Value) Object
}

// NewClass creates a class entity with an optional parent.
func NewClass(name string, parent *ClassEntity) *ClassEntity {
	return &ClassEntity{
		Name:    name,
		Parent:  parent,
		Static:  true,
		Methods: make(map[string]*MethodEntity),
	}
}

// LowerName returns the case-folded lookup key.
func (e *ClassEntity) LowerName() string {
	return strings.ToLower(e.Name)
}

// AddMethod attaches a method to the class. A method named __destruct
// becomes the class destructor.
func (e *ClassEntity) AddMethod(m *MethodEntity) *ClassEntity {
	if e.Methods == nil {
		e.Methods = make(map[string]*MethodEntity)
	}
	m.Class = e
	lower := strings.ToLower(m.Name)
	e.Methods[lower] = m
	if lower == "__destruct" {
		e.Destructor = m
	}
	return e
}

// FindMethod looks a method up by name, walking the parent chain.
func (e *ClassEntity) FindMethod(name string) *MethodEntity {
	lower := strings.ToLower(name)
	for c := e; c != nil; c = c.Parent {
		if m, ok := c.Methods[lower]; ok {
			return m
		}
	}
	return nil
}

// DestructorMethod returns the destructor declared by the class or the
// nearest ancestor, or nil.
func (e *ClassEntity) DestructorMethod() *MethodEntity {
	for c := e; c != nil; c = c.Parent {
		if c.Destructor != nil {
			return c.Destructor
		}
	}
	return nil
}

// IsSubclassOf returns true if e is other or derives from it.
func (e *ClassEntity) IsSubclassOf(other *ClassEntity) bool {
	if other == nil {
		return false
	}
	for c := e; c != nil; c = c.Parent {
		if c == other {
			return true
		}
	}
	return false
}

// isSubclassOfLower matches by lower-cased name instead of identity.
func (e *ClassEntity) isSubclassOfLower(lower string) bool {
	for c := e; c != nil; c = c.Parent {
		if c.LowerName() == lower {
			return true
		}
	}
	return false
}

// MethodEntity is a compiled method.
type MethodEntity struct {
	Name   string
	Class  *ClassEntity
	Trace  TraceInfo
	Invoke func(c *Context, self Object, args []Value) Value
}

// FunctionEntity is a compiled top-level function.
type FunctionEntity struct {
	Name   string
	Static bool
	Trace  TraceInfo
	Invoke func(c *Context, args []Value) Value
}

// LowerName returns the case-folded lookup key.
func (f *FunctionEntity) LowerName() string {
	return strings.ToLower(f.Name)
}

// ConstantEntity is a named constant. Case-insensitive constants match any
// casing of their name.
type ConstantEntity struct {
	Name          string
	Value         Value
	CaseSensitive bool
	Trace         TraceInfo
}

// LowerName returns the case-folded lookup key.
func (k *ConstantEntity) LowerName() string {
	return strings.ToLower(k.Name)
}

// ---------------------------------------------------------------------------
// Modules
// ---------------------------------------------------------------------------

// ModuleEntity is one compiled source unit.
type ModuleEntity struct {
	// Name is the logical name the module is cached under (a resolved path
	// for included files). Empty for anonymous modules.
	Name string

	// InternalName is unique within the scope; compiled code refers to
	// the module's closures and conditional functions through it.
	InternalName string

	Classes   []*ClassEntity
	Functions []*FunctionEntity
	Constants []*ConstantEntity

	// Body is the module's top-level code.
	Body func(c *Context, locals Locals) Value
}

// Include executes the module body against the given locals. A body that
// yields nothing evaluates to 1.
func (m *ModuleEntity) Include(c *Context, locals Locals) Value {
	if m.Body == nil {
		return 1
	}
	if r := m.Body(c, locals); r != nil {
		return r
	}
	return 1
}

// FindFunction returns the function at index, or nil.
func (m *ModuleEntity) FindFunction(index int) *FunctionEntity {
	if index < 0 || index >= len(m.Functions) {
		return nil
	}
	return m.Functions[index]
}

// ---------------------------------------------------------------------------
// Host object model
// ---------------------------------------------------------------------------

// Object is a script object as seen by the context. Implementations must
// be comparable (pointer types) because the lifecycle tracker keys on them.
type Object interface {
	Reflection() *ClassEntity
	IsFinalized() bool
	MarkFinalized()
}

// Closure is implemented by closure objects. A closure bound to an object
// resolves late static binding through that object's class.
type Closure interface {
	Object
	BoundThis() Object
}

// BaseObject is a minimal Object implementation for embedders and tests.
type BaseObject struct {
	Class     *ClassEntity
	Props     map[string]Value
	finalized atomic.Bool
}

// NewObject creates an instance of class with no properties set.
func NewObject(class *ClassEntity) *BaseObject {
	return &BaseObject{Class: class, Props: make(map[string]Value)}
}

// Reflection returns the object's class.
func (o *BaseObject) Reflection() *ClassEntity { return o.Class }

// IsFinalized reports whether the destructor has been scheduled.
func (o *BaseObject) IsFinalized() bool { return o.finalized.Load() }

// MarkFinalized marks the object as destructed.
func (o *BaseObject) MarkFinalized() { o.finalized.Store(true) }

// BoundClosure is a closure object optionally bound to $this.
type BoundClosure struct {
	BaseObject
	This Object
}

// BoundThis returns the object the closure is bound to, or nil.
func (c *BoundClosure) BoundThis() Object { return c.This }
