package env

import (
	"sort"
	"strings"
	"sync"
)

// ---------------------------------------------------------------------------
// Shared tables (scope-owned, one lock per kind)
// ---------------------------------------------------------------------------

type table[T comparable] struct {
	mu    sync.RWMutex
	items map[string]T
}

func newTable[T comparable]() *table[T] {
	return &table[T]{items: make(map[string]T)}
}

func (t *table[T]) get(key string) (T, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	v, ok := t.items[key]
	return v, ok
}

// putIfAbsent stores v unless key is taken, returning the stored value
// and whether it was already present.
func (t *table[T]) putIfAbsent(key string, v T) (T, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if cur, ok := t.items[key]; ok {
		return cur, true
	}
	t.items[key] = v
	return v, false
}

func (t *table[T]) snapshot() map[string]T {
	t.mu.RLock()
	defer t.mu.RUnlock()
	out := make(map[string]T, len(t.items))
	for k, v := range t.items {
		out[k] = v
	}
	return out
}

// constantSet indexes case-sensitive constants by exact name and the rest
// by folded name.
type constantSet struct {
	exact  map[string]*ConstantEntity
	folded map[string]*ConstantEntity
}

func newConstantSet() *constantSet {
	return &constantSet{
		exact:  make(map[string]*ConstantEntity),
		folded: make(map[string]*ConstantEntity),
	}
}

func (s *constantSet) find(name string) *ConstantEntity {
	if k := s.exact[name]; k != nil {
		return k
	}
	return s.folded[strings.ToLower(name)]
}

func (s *constantSet) add(k *ConstantEntity) {
	if k.CaseSensitive {
		s.exact[k.Name] = k
	} else {
		s.folded[k.LowerName()] = k
	}
}

func (s *constantSet) all() []*ConstantEntity {
	out := make([]*ConstantEntity, 0, len(s.exact)+len(s.folded))
	for _, k := range s.exact {
		out = append(out, k)
	}
	for _, k := range s.folded {
		out = append(out, k)
	}
	return out
}

type constantTable struct {
	mu  sync.RWMutex
	set *constantSet
}

func newConstantTable() *constantTable {
	return &constantTable{set: newConstantSet()}
}

func (t *constantTable) find(name string) *ConstantEntity {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.set.find(name)
}

func (t *constantTable) putIfAbsent(k *ConstantEntity) (*ConstantEntity, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if cur := t.set.find(k.Name); cur != nil {
		return cur, true
	}
	t.set.add(k)
	return k, false
}

func (t *constantTable) all() []*ConstantEntity {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.set.all()
}

// normalizeName strips a leading namespace separator.
func normalizeName(name string) string {
	return strings.TrimPrefix(name, `\`)
}

// ---------------------------------------------------------------------------
// Class registry
// ---------------------------------------------------------------------------

// FetchClass resolves a class: context map, then the scope's static
// declarations, then (when requested) the autoloaders.
func (c *Context) FetchClass(name string, autoload bool) *ClassEntity {
	name = normalizeName(name)
	lower := strings.ToLower(name)
	if e := c.classMap[lower]; e != nil {
		return e
	}
	if e, ok := c.scope.classes.get(lower); ok && e.Static {
		c.initClass(e)
		return e
	}
	if autoload {
		return c.autoloadCall(name, lower)
	}
	return nil
}

// initClass pulls e into the context and runs its per-context hook.
func (c *Context) initClass(e *ClassEntity) {
	lower := e.LowerName()
	c.classMap[lower] = e
	if e.InitContext == nil {
		return
	}
	if err := e.InitContext(c); err != nil {
		delete(c.classMap, lower)
		c.Raise(ECoreError, e.Trace, msgClassInitFailed, e.Name, err)
	}
}

// RegisterClass declares e in this context, and in the scope when e is
// static. Redeclaring a name is fatal.
func (c *Context) RegisterClass(e *ClassEntity) {
	if !c.declareClass(e) {
		c.Error(e.Trace, msgCannotRedeclareClass, e.Name)
	}
}

func (c *Context) declareClass(e *ClassEntity) bool {
	lower := e.LowerName()
	if cur := c.FetchClass(e.Name, false); cur != nil {
		return cur == e
	}
	if e.Static {
		if cur, loaded := c.scope.classes.putIfAbsent(lower, e); loaded && cur != e {
			return false
		}
	}
	c.initClass(e)
	return true
}

// IsLoadedClass reports whether name is in the context's class map.
func (c *Context) IsLoadedClass(name string) bool {
	_, ok := c.classMap[strings.ToLower(normalizeName(name))]
	return ok
}

// Classes returns the classes loaded into the context, by name.
func (c *Context) Classes() []*ClassEntity {
	out := make([]*ClassEntity, 0, len(c.classMap))
	for _, e := range c.classMap {
		out = append(out, e)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// NewObject instantiates the named class, autoloading it if needed, and
// registers the instance for finalization.
func (c *Context) NewObject(trace TraceInfo, className string, args ...Value) Object {
	class := c.FetchClass(className, true)
	if class == nil {
		c.Error(trace, msgClassNotFound, className)
		return nil
	}
	var obj Object
	if class.Instantiate != nil {
		obj = class.Instantiate(c, class, args)
	} else {
		obj = NewObject(class)
	}
	c.RegisterForFinalization(obj)
	return obj
}

// ---------------------------------------------------------------------------
// Function registry
// ---------------------------------------------------------------------------

// FetchFunction resolves a function from the context, then the scope.
func (c *Context) FetchFunction(name string) *FunctionEntity {
	lower := strings.ToLower(normalizeName(name))
	if f := c.functionMap[lower]; f != nil {
		return f
	}
	if f, ok := c.scope.functions.get(lower); ok {
		c.functionMap[lower] = f
		return f
	}
	return nil
}

// RegisterFunction declares f. Redeclaring a name is fatal.
func (c *Context) RegisterFunction(f *FunctionEntity) {
	if !c.declareFunction(f) {
		c.Error(f.Trace, msgCannotRedeclareFunction, f.Name)
	}
}

func (c *Context) declareFunction(f *FunctionEntity) bool {
	lower := f.LowerName()
	if cur := c.FetchFunction(f.Name); cur != nil {
		return cur == f
	}
	if f.Static {
		if cur, loaded := c.scope.functions.putIfAbsent(lower, f); loaded && cur != f {
			return false
		}
	}
	c.functionMap[lower] = f
	return true
}

// IsLoadedFunction reports whether name resolves to a function.
func (c *Context) IsLoadedFunction(name string) bool {
	return c.FetchFunction(name) != nil
}

// Functions returns the functions visible in the context, by name.
func (c *Context) Functions() []*FunctionEntity {
	for k, f := range c.scope.functions.snapshot() {
		if _, ok := c.functionMap[k]; !ok {
			c.functionMap[k] = f
		}
	}
	out := make([]*FunctionEntity, 0, len(c.functionMap))
	for _, f := range c.functionMap {
		out = append(out, f)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// ---------------------------------------------------------------------------
// Constant registry
// ---------------------------------------------------------------------------

// FindConstant resolves a constant entity from the context, then the
// scope. Case-insensitive constants match any casing.
func (c *Context) FindConstant(name string) *ConstantEntity {
	name = normalizeName(name)
	if k := c.constants.find(name); k != nil {
		return k
	}
	if k := c.scope.constants.find(name); k != nil {
		c.constants.add(k)
		return k
	}
	return nil
}

// FetchConstant returns a constant's value.
func (c *Context) FetchConstant(name string) (Value, bool) {
	if k := c.FindConstant(name); k != nil {
		return k.Value, true
	}
	return nil, false
}

// ConstantOrNotice returns a constant's value. An undefined constant
// raises a notice and evaluates to its bare name.
func (c *Context) ConstantOrNotice(name string, trace TraceInfo) Value {
	if v, ok := c.FetchConstant(name); ok {
		return v
	}
	bare := name
	if i := strings.LastIndexByte(name, '\\'); i >= 0 {
		bare = name[i+1:]
	}
	c.Notice(trace, msgUndefinedConstant, bare, bare)
	return bare
}

// DefineConstant defines a context-local constant. An existing name
// raises a notice and returns false.
func (c *Context) DefineConstant(name string, value Value, caseSensitive bool) bool {
	name = normalizeName(name)
	if c.FindConstant(name) != nil {
		c.Notice(c.Trace(), msgCannotRedeclareConstant, name)
		return false
	}
	c.constants.add(&ConstantEntity{Name: name, Value: value, CaseSensitive: caseSensitive, Trace: c.Trace()})
	return true
}

// RegisterConstant declares k in the context and scope. Redeclaring a name
// is fatal.
func (c *Context) RegisterConstant(k *ConstantEntity) {
	if !c.declareConstant(k) {
		c.Error(k.Trace, msgCannotRedeclareConstant, k.Name)
	}
}

func (c *Context) declareConstant(k *ConstantEntity) bool {
	if cur := c.FindConstant(k.Name); cur != nil {
		return cur == k
	}
	if cur, loaded := c.scope.constants.putIfAbsent(k); loaded && cur != k {
		return false
	}
	c.constants.add(k)
	return true
}

// IsLoadedConstant reports whether name resolves to a constant.
func (c *Context) IsLoadedConstant(name string) bool {
	return c.FindConstant(name) != nil
}

// ---------------------------------------------------------------------------
// Module registration
// ---------------------------------------------------------------------------

// RegisterModule declares every static entity of m in the context. A
// conflicting name raises a warning and registration continues with the
// next entity.
func (c *Context) RegisterModule(m *ModuleEntity) {
	for _, e := range m.Classes {
		if e.Static && !c.declareClass(e) {
			c.Warning(e.Trace, msgCannotRedeclareClass, e.Name)
		}
	}
	for _, f := range m.Functions {
		if f.Static && !c.declareFunction(f) {
			c.Warning(f.Trace, msgCannotRedeclareFunction, f.Name)
		}
	}
	for _, k := range m.Constants {
		if !c.declareConstant(k) {
			c.Warning(k.Trace, msgCannotRedeclareConstant, k.Name)
		}
	}
	if m.Name != "" {
		c.modules[m.Name] = m
	}
	c.moduleIndex[m.InternalName] = m
}

// IsLoadedModule reports whether the module named name was registered in
// the context.
func (c *Context) IsLoadedModule(name string) bool {
	_, ok := c.modules[name]
	return ok
}
