package env

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"testing"
)

// ---------------------------------------------------------------------------
// Identity
// ---------------------------------------------------------------------------

func TestContextIDsAreReused(t *testing.T) {
	scope := NewScope()
	a := New(scope, nil)
	b := New(scope, nil)
	if a.ID() == b.ID() {
		t.Fatal("live contexts must have distinct ids")
	}
	id := b.ID()
	b.Close()
	b.Close()
	c := New(scope, nil)
	if c.ID() != id {
		t.Errorf("id = %d, want reused %d", c.ID(), id)
	}
	if scope.IDs().InUse() != 2 {
		t.Errorf("InUse = %d, want 2", scope.IDs().InUse())
	}
}

func TestSharedAllocatorAcrossScopes(t *testing.T) {
	ids := &IDAllocator{}
	a := New(NewScope(WithIDAllocator(ids)), nil)
	b := New(NewScope(WithIDAllocator(ids)), nil)
	if a.ID() == b.ID() {
		t.Error("contexts sharing an allocator must not share ids")
	}
}

func TestFromContext(t *testing.T) {
	c, _ := newTestContext(t)
	ctx := WithContext(context.Background(), c)
	if FromContext(ctx) != c {
		t.Error("FromContext should return the bound context")
	}
	if FromContext(context.Background()) != nil {
		t.Error("unbound context.Context should yield nil")
	}
}

func TestGlobalsAndStatics(t *testing.T) {
	c, _ := newTestContext(t)
	c.SetGlobal("x", 1)
	g := c.Globals()
	if self, ok := g["GLOBALS"].(Locals); !ok || self["x"] != 1 {
		t.Error("GLOBALS should reference the global table")
	}

	cell := c.Static("counter", 0)
	cell.Value = 5
	if c.Static("counter", 0).Value != 5 {
		t.Error("Static should return the existing cell")
	}
}

func TestUserValues(t *testing.T) {
	c, _ := newTestContext(t)
	c.SetUserValue("request", "r1")
	if v, ok := c.UserValue("request"); !ok || v != "r1" {
		t.Errorf("UserValue = %v, %v", v, ok)
	}
	c.RemoveUserValue("request")
	if _, ok := c.UserValue("request"); ok {
		t.Error("value should be removed")
	}
}

func TestShellExec(t *testing.T) {
	c, _ := newTestContext(t)
	if c.ShellExec("ls") != nil {
		t.Error("no handler should yield nil")
	}

	var out bytes.Buffer
	c = New(NewScope(), &out, WithShellExec(func(_ *Context, cmd string) (string, error) {
		if cmd == "fail" {
			return "", errors.New("denied")
		}
		return "ran " + cmd, nil
	}))
	if got := c.ShellExec("ls"); got != "ran ls" {
		t.Errorf("ShellExec = %v", got)
	}
	if c.ShellExec("fail") != nil || !strings.Contains(out.String(), "denied") {
		t.Errorf("failure output = %q", out.String())
	}
}

type recordingExtension struct{ loaded []uint64 }

func (e *recordingExtension) Name() string      { return "recording" }
func (e *recordingExtension) OnLoad(c *Context) { e.loaded = append(e.loaded, c.ID()) }

func TestExtensionsLoadPerContext(t *testing.T) {
	ext := &recordingExtension{}
	scope := NewScope(WithExtension(ext))
	New(scope, nil)
	New(scope, nil)
	if len(ext.loaded) != 2 {
		t.Errorf("OnLoad calls = %d, want 2", len(ext.loaded))
	}
}

// ---------------------------------------------------------------------------
// Child contexts
// ---------------------------------------------------------------------------

func TestNewChildCopiesParent(t *testing.T) {
	var out bytes.Buffer
	parent := New(NewScope(), &out)
	inits := 0
	local := NewClass("Local", nil)
	local.Static = false
	local.InitContext = func(*Context) error { inits++; return nil }
	parent.RegisterClass(local)
	parent.RegisterFunction(&FunctionEntity{Name: "helper"})
	parent.DefineConstant("MODE", "dev", true)
	parent.SetConfig("precision", 10)
	parent.AddIncludePath("/srv/lib")

	child := NewChild(parent)

	if child.FetchClass("local", false) != local {
		t.Error("child should see the parent's classes")
	}
	if inits != 2 {
		t.Errorf("init hook runs = %d, want 2", inits)
	}
	if child.FetchFunction("helper") == nil {
		t.Error("child should see the parent's functions")
	}
	if v, ok := child.FetchConstant("MODE"); !ok || v != "dev" {
		t.Error("child should see the parent's constants")
	}
	if child.GetConfig("precision", "") != "10" {
		t.Error("child should copy configuration")
	}
	if paths := child.IncludePaths(); len(paths) != 1 || paths[0] != "/srv/lib" {
		t.Errorf("IncludePaths = %v", paths)
	}
	if child.ID() == parent.ID() {
		t.Error("child needs its own id")
	}

	child.Echo("from child")
	child.FlushAll()
	if out.String() != "from child" {
		t.Errorf("child should share the parent's sink, got %q", out.String())
	}
}

func TestNewChildInitFailure(t *testing.T) {
	parent, _ := newTestContext(t)
	fail := false
	e := NewClass("Flaky", nil)
	e.InitContext = func(*Context) error {
		if fail {
			return errors.New("init failed")
		}
		return nil
	}
	parent.RegisterClass(e)
	fail = true

	fatalOf(t, catchPanic(func() { NewChild(parent) }))
}

// ---------------------------------------------------------------------------
// Shutdown
// ---------------------------------------------------------------------------

func TestShutdownFunctionsRunInOrder(t *testing.T) {
	c, out := newTestContext(t)
	c.RegisterShutdownFunction(func(c *Context) { c.Echo("1") })
	c.RegisterShutdownFunction(func(c *Context) {
		c.Echo("2")
		c.RegisterShutdownFunction(func(c *Context) { c.Echo("3") })
	})
	c.PushOutputBuffer(nil, 0, false)

	c.Shutdown()

	if out.String() != "123" {
		t.Errorf("output = %q, want 123", out.String())
	}
}

func TestFailingShutdownFunctionStopsTheRest(t *testing.T) {
	c, out := newTestContext(t)
	c.RegisterClass(classWithDestructor("Foo", func(c *Context, _ Object) { c.Echo("[bye]") }))
	c.NewObject(at(1), "Foo")
	c.RegisterShutdownFunction(func(c *Context) { c.Error(at(2), "shutdown failed") })
	c.RegisterShutdownFunction(func(c *Context) { c.Echo("unreachable") })

	c.Shutdown()

	s := out.String()
	if strings.Contains(s, "unreachable") {
		t.Error("callbacks after a failure must not run")
	}
	if !strings.Contains(s, "Fatal error: shutdown failed") || !strings.Contains(s, "[bye]") {
		t.Errorf("output = %q", s)
	}
	if c.LastMessage() != nil {
		t.Error("last diagnostic should be cleared")
	}
}

func TestExitInShutdownFinalizesFirst(t *testing.T) {
	var out bytes.Buffer
	status := -1
	c := New(NewScope(), &out, WithExit(func(s int) {
		status = s
		out.WriteString("<exit>")
	}))
	c.RegisterClass(classWithDestructor("Foo", func(c *Context, _ Object) { c.Echo("[bye]") }))
	c.NewObject(at(1), "Foo")
	c.RegisterShutdownFunction(func(c *Context) { c.Die(2) })

	c.Final()

	if status != 2 {
		t.Errorf("status = %d, want 2", status)
	}
	if out.String() != "[bye]<exit>" {
		t.Errorf("output = %q", out.String())
	}
}
