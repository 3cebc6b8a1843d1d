package env

import (
	"bytes"
	"errors"
	"sync"
	"sync/atomic"
	"testing"

	"golang.org/x/sync/errgroup"
)

// countingCompiler builds a module exporting one class named after the
// source name, counting compilations.
type countingCompiler struct {
	calls atomic.Int32
}

func (cc *countingCompiler) Compile(c *Context, src Source) (*ModuleEntity, error) {
	cc.calls.Add(1)
	if bytes.Equal(src.Code, []byte("syntax error")) {
		return nil, errors.New("unexpected end of file")
	}
	return &ModuleEntity{
		Classes:   []*ClassEntity{NewClass("Lib", nil)},
		Functions: []*FunctionEntity{{Name: "conditional"}},
	}, nil
}

// dumpingCompiler adds a precompiled form to countingCompiler.
type dumpingCompiler struct {
	countingCompiler
	undumps atomic.Int32
}

func (dc *dumpingCompiler) Dump(m *ModuleEntity) ([]byte, error) {
	return []byte("precompiled:" + m.Classes[0].Name), nil
}

func (dc *dumpingCompiler) Undump(c *Context, src Source, data []byte) (*ModuleEntity, error) {
	dc.undumps.Add(1)
	name := string(bytes.TrimPrefix(data, []byte("precompiled:")))
	return &ModuleEntity{Classes: []*ClassEntity{NewClass(name, nil)}}, nil
}

type memoryCache struct {
	mu      sync.Mutex
	entries map[string][2][]byte
	puts    int
}

func newMemoryCache() *memoryCache {
	return &memoryCache{entries: make(map[string][2][]byte)}
}

func (mc *memoryCache) Get(name string, digest []byte) ([]byte, bool, error) {
	mc.mu.Lock()
	defer mc.mu.Unlock()
	e, ok := mc.entries[name]
	if !ok || !bytes.Equal(e[0], digest) {
		return nil, false, nil
	}
	return e[1], true, nil
}

func (mc *memoryCache) Put(name string, digest, payload []byte) error {
	mc.mu.Lock()
	defer mc.mu.Unlock()
	mc.entries[name] = [2][]byte{digest, payload}
	mc.puts++
	return nil
}

// ---------------------------------------------------------------------------
// Import
// ---------------------------------------------------------------------------

func TestImportModuleCompilesOnceAcrossContexts(t *testing.T) {
	cc := &countingCompiler{}
	scope := NewScope(WithCompiler(cc))
	src := Source{Name: "lib.php", Code: []byte("<?php class Lib {}")}

	const workers = 8
	modules := make([]*ModuleEntity, workers)
	var g errgroup.Group
	for i := 0; i < workers; i++ {
		i := i
		g.Go(func() error {
			c := New(scope, nil)
			defer c.Close()
			m, err := c.ImportModule(src)
			modules[i] = m
			if err == nil && c.FetchClass("Lib", false) == nil {
				err = errors.New("class not visible after import")
			}
			return err
		})
	}
	if err := g.Wait(); err != nil {
		t.Fatal(err)
	}

	if n := cc.calls.Load(); n != 1 {
		t.Errorf("compilations = %d, want 1", n)
	}
	for i := 1; i < workers; i++ {
		if modules[i] != modules[0] {
			t.Fatal("every context should observe the same module")
		}
	}
	if scope.FindModule("lib.php") != modules[0] {
		t.Error("scope should cache the module by name")
	}
}

func TestImportModuleAssignsInternalName(t *testing.T) {
	c, _ := newTestContext(t, WithCompiler(&countingCompiler{}))
	m, err := c.ImportModule(Source{Name: "a.php"})
	if err != nil {
		t.Fatal(err)
	}
	if len(m.InternalName) != 36 {
		t.Errorf("InternalName = %q, want a uuid", m.InternalName)
	}
	if c.ModuleByIndex(m.InternalName) != m || c.Scope().ModuleByIndex(m.InternalName) != m {
		t.Error("module should be reachable by internal name")
	}
	if m.Name != "a.php" {
		t.Errorf("Name = %q", m.Name)
	}
}

func TestImportModuleWithoutCompiler(t *testing.T) {
	c, _ := newTestContext(t)
	if _, err := c.ImportModule(Source{Name: "x.php"}); !errors.Is(err, ErrNoCompiler) {
		t.Errorf("err = %v, want ErrNoCompiler", err)
	}
}

func TestImportModuleUsesCache(t *testing.T) {
	cache := newMemoryCache()
	src := Source{Name: "lib.php", Code: []byte("v1")}

	first := &dumpingCompiler{}
	a := New(NewScope(WithCompiler(first), WithModuleCache(cache)), nil)
	if _, err := a.ImportModule(src); err != nil {
		t.Fatal(err)
	}
	if first.calls.Load() != 1 || cache.puts != 1 {
		t.Fatalf("calls = %d, puts = %d", first.calls.Load(), cache.puts)
	}

	second := &dumpingCompiler{}
	b := New(NewScope(WithCompiler(second), WithModuleCache(cache)), nil)
	m, err := b.ImportModule(src)
	if err != nil {
		t.Fatal(err)
	}
	if second.calls.Load() != 0 || second.undumps.Load() != 1 {
		t.Errorf("calls = %d, undumps = %d; want 0, 1", second.calls.Load(), second.undumps.Load())
	}
	if m.Classes[0].Name != "Lib" || b.FetchClass("Lib", false) == nil {
		t.Error("undumped module should register its classes")
	}

	third := &dumpingCompiler{}
	c := New(NewScope(WithCompiler(third), WithModuleCache(cache)), nil)
	if _, err := c.ImportModule(Source{Name: "lib.php", Code: []byte("v2")}); err != nil {
		t.Fatal(err)
	}
	if third.calls.Load() != 1 {
		t.Error("changed source should miss the cache")
	}
}

func TestDefineFunction(t *testing.T) {
	c, _ := newTestContext(t, WithCompiler(&countingCompiler{}))
	m, err := c.ImportModule(Source{Name: "cond.php"})
	if err != nil {
		t.Fatal(err)
	}
	if c.FetchFunction("conditional") != nil {
		t.Fatal("non-static function should not be declared on import")
	}

	if err := c.DefineFunction(at(1), m.InternalName, 0); err != nil {
		t.Fatal(err)
	}
	if c.FetchFunction("conditional") == nil {
		t.Error("function should be declared")
	}

	c.RegisterFunction(&FunctionEntity{Name: "taken"})
	m.Functions = append(m.Functions, &FunctionEntity{Name: "Taken"})
	fatalOf(t, catchPanic(func() { _ = c.DefineFunction(at(2), m.InternalName, 1) }))

	if err := c.DefineFunction(at(3), m.InternalName, 9); !errors.Is(err, ErrModuleNotFound) {
		t.Errorf("bad index err = %v", err)
	}
	if err := c.DefineFunction(at(3), "nope", 0); !errors.Is(err, ErrModuleNotFound) {
		t.Errorf("bad module err = %v", err)
	}
}
