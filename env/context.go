package env

import (
	"context"
	"errors"
	"io"
	"os"
)

// ShellExecHandler runs a shell command on behalf of a script.
type ShellExecHandler func(c *Context, cmd string) (string, error)

// Context is one script execution. A context is not safe for concurrent
// use; hand it between goroutines only with external synchronization.
type Context struct {
	id     uint64
	scope  *Scope
	closed bool

	stack   *CallStack
	outputs []*OutputBuffer

	config       map[string]string
	includePaths map[string]struct{}
	includeOrder []string

	globals Locals
	statics map[string]*Cell

	classMap    map[string]*ClassEntity
	functionMap map[string]*FunctionEntity
	constants   *constantSet
	modules     map[string]*ModuleEntity
	moduleIndex map[string]*ModuleEntity

	autoloaders       []*Autoloader
	defaultAutoloader *Autoloader
	autoloading       map[string]struct{}

	errorFlags           Severity
	silentFlags          []Severity
	errorHandler         *ErrorHandler
	previousErrorHandler *ErrorHandler
	exceptionHandler     ExceptionHandler
	reportHandler        ErrorReportHandler
	lastMessage          *Message

	shellExec     ShellExecHandler
	shutdownFuncs []func(c *Context)
	userValues    map[string]any
	tracker       *Tracker
	exit          func(status int)
}

// Option configures a Context.
type Option func(*Context)

// WithExit replaces the process exit used by the termination signal.
func WithExit(exit func(status int)) Option {
	return func(c *Context) { c.exit = exit }
}

// WithErrorFlags sets the initial error mask.
func WithErrorFlags(mask Severity) Option {
	return func(c *Context) { c.errorFlags = mask }
}

// WithShellExec installs the shell command runner.
func WithShellExec(h ShellExecHandler) Option {
	return func(c *Context) { c.shellExec = h }
}

// New creates a context on scope writing to out. A nil out discards
// output.
func New(scope *Scope, out io.Writer, opts ...Option) *Context {
	c := &Context{
		id:           scope.ids.Acquire(),
		scope:        scope,
		stack:        NewCallStack(),
		outputs:      []*OutputBuffer{newRootBuffer(out)},
		config:       make(map[string]string),
		includePaths: make(map[string]struct{}),
		globals:      make(Locals),
		statics:      make(map[string]*Cell),
		classMap:     make(map[string]*ClassEntity),
		functionMap:  scope.functions.snapshot(),
		constants:    newConstantSet(),
		modules:      make(map[string]*ModuleEntity),
		moduleIndex:  make(map[string]*ModuleEntity),
		autoloading:  make(map[string]struct{}),
		errorFlags:   scope.errorFlags,
		userValues:   make(map[string]any),
		tracker:      newTracker(),
		exit:         os.Exit,
	}
	c.reportHandler = DefaultErrorReportHandler()
	c.globals["GLOBALS"] = c.globals
	for _, k := range scope.constants.all() {
		c.constants.add(k)
	}
	if v, ok := scope.Default("include_path"); ok {
		includePathChanged(c, v, true)
	}
	for _, p := range scope.includePaths {
		c.AddIncludePath(p)
	}
	if f := c.FetchFunction(DefaultAutoloadFunction); f != nil {
		c.defaultAutoloader = functionAutoloader(f)
	}
	for _, opt := range opts {
		opt(c)
	}
	for _, e := range scope.extensions {
		e.OnLoad(c)
	}
	log.Debugf("context %d: created", c.id)
	return c
}

// NewChild creates a context sharing parent's scope and sink, with a copy
// of its configuration, registries and include paths. Class init hooks
// run again for the child.
func NewChild(parent *Context, opts ...Option) *Context {
	c := New(parent.scope, parent.DefaultBuffer().out, opts...)
	for k, v := range parent.config {
		c.config[k] = v
	}
	c.SetIncludePaths(parent.includeOrder)
	for k, f := range parent.functionMap {
		c.functionMap[k] = f
	}
	for _, k := range parent.constants.all() {
		c.constants.add(k)
	}
	for k, m := range parent.modules {
		c.modules[k] = m
	}
	for k, m := range parent.moduleIndex {
		c.moduleIndex[k] = m
	}
	for _, e := range parent.Classes() {
		c.initClass(e)
	}
	log.Debugf("context %d: derived from %d", c.id, parent.id)
	return c
}

// ID returns the context id. Ids are reused after Close.
func (c *Context) ID() uint64 {
	return c.id
}

// Scope returns the shared scope.
func (c *Context) Scope() *Scope {
	return c.scope
}

// ---------------------------------------------------------------------------
// Current context (task-scoped)
// ---------------------------------------------------------------------------

type contextKey struct{}

// WithContext returns a copy of ctx carrying c.
func WithContext(ctx context.Context, c *Context) context.Context {
	return context.WithValue(ctx, contextKey{}, c)
}

// FromContext returns the context carried by ctx, or nil.
func FromContext(ctx context.Context) *Context {
	c, _ := ctx.Value(contextKey{}).(*Context)
	return c
}

// ---------------------------------------------------------------------------
// Shutdown
// ---------------------------------------------------------------------------

// RegisterShutdownFunction queues fn to run during Final.
func (c *Context) RegisterShutdownFunction(fn func(c *Context)) {
	c.shutdownFuncs = append(c.shutdownFuncs, fn)
}

// Final runs the shutdown functions in order, finalizes pending objects
// and flushes every buffer. The first failing shutdown function stops
// the rest.
func (c *Context) Final() {
	for i := 0; i < len(c.shutdownFuncs); i++ {
		fn := c.shutdownFuncs[i]
		err := c.Guard(func() { fn(c) })
		if err == nil {
			continue
		}
		var exit *ExitSignal
		if errors.As(err, &exit) {
			c.finalizeObjects()
		}
		c.CatchUncaught(err)
		break
	}
	c.finalizeObjects()
	c.FlushAll()
	c.lastMessage = nil
	log.Debugf("context %d: finalized", c.id)
}

func (c *Context) finalizeObjects() {
	if err := c.Guard(c.FinalizeObjects); err != nil {
		log.Warningf("context %d: destructor pass interrupted: %s", c.id, err.Error())
		c.CatchUncaught(err)
	}
}

// Close returns the context id to the allocator. Closing twice is a
// no-op.
func (c *Context) Close() {
	if c.closed {
		return
	}
	c.closed = true
	c.scope.ids.Release(c.id)
}

// Shutdown runs Final then Close.
func (c *Context) Shutdown() {
	defer c.Close()
	c.Final()
}

// ---------------------------------------------------------------------------
// Globals, statics and user values
// ---------------------------------------------------------------------------

// Globals returns the global variable table. It contains itself under
// GLOBALS.
func (c *Context) Globals() Locals {
	return c.globals
}

// Global returns a global variable.
func (c *Context) Global(name string) (Value, bool) {
	v, ok := c.globals[name]
	return v, ok
}

// SetGlobal sets a global variable.
func (c *Context) SetGlobal(name string, v Value) {
	c.globals[name] = v
}

// Static returns the static cell for name, creating it with init.
func (c *Context) Static(name string, init Value) *Cell {
	if cell, ok := c.statics[name]; ok {
		return cell
	}
	cell := &Cell{Value: init}
	c.statics[name] = cell
	return cell
}

// SetUserValue attaches an embedder value to the context.
func (c *Context) SetUserValue(key string, v any) {
	c.userValues[key] = v
}

// UserValue returns an embedder value.
func (c *Context) UserValue(key string) (any, bool) {
	v, ok := c.userValues[key]
	return v, ok
}

// RemoveUserValue deletes an embedder value.
func (c *Context) RemoveUserValue(key string) {
	delete(c.userValues, key)
}

// ShellExec runs cmd through the installed handler. Without a handler, or
// when the command fails, it yields nil.
func (c *Context) ShellExec(cmd string) Value {
	if c.shellExec == nil {
		return nil
	}
	out, err := c.shellExec(c, cmd)
	if err != nil {
		c.Warning(c.Trace(), "shell_exec(): %v", err)
		return nil
	}
	return out
}
