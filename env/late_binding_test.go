package env

import (
	"strings"
	"testing"
)

func lateBindingContext(t *testing.T) (*Context, *ClassEntity, *ClassEntity, *ClassEntity) {
	t.Helper()
	base := NewClass("Base", nil)
	child := NewClass("Child", base)
	other := NewClass("Other", nil)
	c, _ := newTestContext(t)
	for _, e := range []*ClassEntity{base, child, other} {
		if err := c.Scope().DeclareClass(e); err != nil {
			t.Fatal(err)
		}
	}
	return c, base, child, other
}

func TestSelfAndStaticResolution(t *testing.T) {
	c, base, child, _ := lateBindingContext(t)

	c.PushCall(at(1), nil, nil, "create", "Base", "Child")
	defer c.PopCall()

	if got := c.FetchMagicClass("self"); got != base {
		t.Errorf("self = %v, want Base", got)
	}
	if got := c.FetchMagicClass("STATIC"); got != child {
		t.Errorf("static = %v, want Child", got)
	}
	if got := c.FetchMagicClass("parent"); got != nil {
		t.Error("parent must not resolve through the magic lookup")
	}
	if c.LateStatic() != "Child" {
		t.Errorf("LateStatic = %q", c.LateStatic())
	}
}

func TestSelfFallsBackToStaticClass(t *testing.T) {
	c, _, child, other := lateBindingContext(t)

	c.PushCall(at(1), nil, nil, "fn", "", "Child")
	if got := c.FetchMagicClass("self"); got != child {
		t.Errorf("self = %v, want Child", got)
	}
	c.PopCall()

	closure := &BoundClosure{This: NewObject(other)}
	closure.Class = NewClass("Closure", nil)
	c.PushCall(at(2), closure, nil, "{closure}", "", "Child")
	defer c.PopCall()
	if got := c.FetchMagicClass("self"); got != child {
		t.Errorf("self = %v, want Child (never the closure binding)", got)
	}
}

func TestSelfWithoutAnyClass(t *testing.T) {
	c, _, _, _ := lateBindingContext(t)
	c.PushCall(at(1), nil, nil, "fn", "", "")
	defer c.PopCall()
	if got := c.FetchMagicClass("self"); got != nil {
		t.Errorf("self = %v, want nil", got)
	}
}

func TestStaticFollowsBoundClosure(t *testing.T) {
	c, base, _, other := lateBindingContext(t)
	closure := &BoundClosure{This: NewObject(other)}
	closure.Class = NewClass("Closure", nil)

	c.PushCall(at(2), closure, nil, "{closure}", "Base", "")
	defer c.PopCall()

	if got := c.LateStaticClass(); got != other {
		t.Errorf("static = %v, want Other", got)
	}
	if got := c.FetchMagicClass("self"); got != base {
		t.Errorf("self = %v, want Base (never the closure binding)", got)
	}
}

func TestStaticUnboundClosure(t *testing.T) {
	c, _, _, _ := lateBindingContext(t)
	closure := &BoundClosure{}
	closure.Class = NewClass("Closure", nil)

	c.PushCall(at(2), closure, nil, "{closure}", "Base", "")
	defer c.PopCall()

	if got := c.LateStaticClass(); got != nil {
		t.Errorf("static of unbound closure = %v, want nil", got)
	}
}

func TestNoClassScope(t *testing.T) {
	c, _, _, _ := lateBindingContext(t)
	c.PushCall(at(1), nil, nil, "main", "", "")
	defer c.PopCall()

	if c.FetchMagicClass("self") != nil || c.FetchMagicClass("static") != nil {
		t.Error("self/static outside class scope should be nil")
	}
}

func TestParentClass(t *testing.T) {
	c, base, _, _ := lateBindingContext(t)

	c.PushCall(at(1), nil, nil, "m", "Child", "")
	if got := c.ParentClass(at(1)); got != base {
		t.Errorf("parent = %v, want Base", got)
	}
	c.PopCall()

	fe := fatalOf(t, catchPanic(func() { c.ParentClass(at(4)) }))
	if fe.Message != msgParentNoScope {
		t.Errorf("message = %q", fe.Message)
	}

	c.PushCall(at(1), nil, nil, "m", "Base", "")
	fe = fatalOf(t, catchPanic(func() { c.ParentClass(at(5)) }))
	if fe.Message != msgParentNoParent {
		t.Errorf("message = %q", fe.Message)
	}
	c.PopCall()
}

func TestParentOf(t *testing.T) {
	c, base, _, _ := lateBindingContext(t)
	if got := c.ParentOf(at(1), "child"); got != base {
		t.Errorf("ParentOf(child) = %v", got)
	}
	fe := fatalOf(t, catchPanic(func() { c.ParentOf(at(2), "Missing") }))
	if !strings.Contains(fe.Message, "Missing") {
		t.Errorf("message = %q", fe.Message)
	}
}
