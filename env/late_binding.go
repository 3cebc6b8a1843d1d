package env

import (
	"fmt"
	"strings"
)

// ---------------------------------------------------------------------------
// Late static binding and magic class names
// ---------------------------------------------------------------------------

// LateStatic returns the late-static class name of the current frame, or
// the empty string outside class scope.
func (c *Context) LateStatic() string {
	f := c.stack.Peek(0)
	if f == nil || f.Class == "" {
		return ""
	}
	if f.StaticClass != "" {
		return f.StaticClass
	}
	return f.Class
}

// LateObject returns the object the current frame was invoked on.
func (c *Context) LateObject() Object {
	if f := c.stack.Peek(0); f != nil {
		return f.Object
	}
	return nil
}

// LateStaticClass resolves `static`. When the frame's object is a closure
// bound to an object, the bound object's own class wins over the lexical
// declaration.
func (c *Context) LateStaticClass() *ClassEntity {
	f := c.stack.Peek(0)
	if f == nil || f.Class == "" {
		return nil
	}
	if f.staticClassEntity != nil {
		return f.staticClassEntity
	}
	if cl, ok := f.Object.(Closure); ok {
		if this := cl.BoundThis(); this != nil {
			return this.Reflection()
		}
		return nil
	}
	name := f.StaticClass
	if name == "" {
		name = f.Class
	}
	f.staticClassEntity = c.FetchClass(name, false)
	return f.staticClassEntity
}

// ContextClass returns the declaring class of the nearest frame, or nil.
// It never consults closure bindings.
func (c *Context) ContextClass() *ClassEntity {
	return c.contextClassAt(0)
}

func (c *Context) contextClassAt(depth int) *ClassEntity {
	f := c.stack.Peek(depth)
	if f == nil || f.Class == "" {
		return nil
	}
	if f.classEntity != nil {
		return f.classEntity
	}
	e := c.FetchClass(f.Class, false)
	if e == nil {
		panic(fmt.Errorf("%w: cannot find '%s' in the current environment", ErrIllegalState, f.Class))
	}
	f.classEntity = e
	return e
}

// FetchMagicClass resolves `self` and `static`. Every other name, `parent`
// included, yields nil; parent goes through ParentClass.
func (c *Context) FetchMagicClass(name string) *ClassEntity {
	switch strings.ToLower(name) {
	case "self":
		if e := c.ContextClass(); e != nil {
			return e
		}
		return c.selfFallbackClass()
	case "static":
		return c.LateStaticClass()
	}
	return nil
}

// selfFallbackClass resolves the top frame's late-static class for a
// frame that has no declaring class. Closure bindings are not consulted.
func (c *Context) selfFallbackClass() *ClassEntity {
	f := c.stack.Peek(0)
	if f == nil || f.StaticClass == "" {
		return nil
	}
	if f.staticClassEntity == nil {
		f.staticClassEntity = c.FetchClass(f.StaticClass, false)
	}
	return f.staticClassEntity
}

// LastClassOnStack returns the class of the nearest frame that has one.
// A bound closure on that frame resolves to its bound object's class.
func (c *Context) LastClassOnStack() *ClassEntity {
	for i := 0; i < c.stack.Depth(); i++ {
		f := c.stack.Peek(i)
		if f == nil || f.Class == "" {
			continue
		}
		if cl, ok := f.Object.(Closure); ok {
			if this := cl.BoundThis(); this != nil {
				return this.Reflection()
			}
			return nil
		}
		if f.classEntity != nil {
			return f.classEntity
		}
		e := c.FetchClass(f.Class, false)
		if e == nil {
			panic(fmt.Errorf("%w: cannot find '%s' in the current environment", ErrIllegalState, f.Class))
		}
		f.classEntity = e
		return e
	}
	return nil
}

// ParentClass resolves `parent` from the active class scope. A missing
// scope or parent is a fatal error.
func (c *Context) ParentClass(trace TraceInfo) *ClassEntity {
	scope := c.LastClassOnStack()
	if scope == nil {
		c.Error(trace, msgParentNoScope)
		return nil
	}
	if scope.Parent == nil {
		c.Error(trace, msgParentNoParent)
		return nil
	}
	return scope.Parent
}

// ParentOf resolves the parent of a named class, autoloading it if needed.
func (c *Context) ParentOf(trace TraceInfo, className string) *ClassEntity {
	e := c.FetchClass(className, true)
	if e == nil {
		c.Error(trace, msgClassNotFound, className)
		return nil
	}
	if e.Parent == nil {
		c.Error(trace, msgParentNoParent)
		return nil
	}
	return e.Parent
}
