package env

import (
	"errors"
	"fmt"
)

// ErrIllegalState marks programming errors such as unbalanced call stack
// pops. These are never routed through the diagnostic pipeline.
var ErrIllegalState = errors.New("illegal state")

// ---------------------------------------------------------------------------
// TraceInfo: source location of a frame or diagnostic
// ---------------------------------------------------------------------------

// TraceInfo is a source position. Line and Position are 1-based.
type TraceInfo struct {
	File     string
	Line     int
	Position int
}

// UnknownTrace is reported when no frame is active.
var UnknownTrace = TraceInfo{File: "Unknown"}

// IsUnknown reports whether t carries no location.
func (t TraceInfo) IsUnknown() bool {
	return t == UnknownTrace || (t.File == "" && t.Line == 0)
}

func (t TraceInfo) String() string {
	return fmt.Sprintf("%s on line %d, position %d", t.File, t.Line, t.Position)
}

// ---------------------------------------------------------------------------
// Frame: one active invocation
// ---------------------------------------------------------------------------

// Frame records one invocation. Object and Args are borrowed from the
// caller and must not be retained past the pop.
type Frame struct {
	Trace       TraceInfo
	Object      Object
	Args        []Value
	Function    string
	Class       string // declaring class
	StaticClass string // late-static class, when it differs from Class
	Internal    bool   // native frame, hidden from the short trace

	classEntity       *ClassEntity
	staticClassEntity *ClassEntity
}

// Name returns the qualified callable name, e.g. Foo->bar or Foo::baz.
func (f *Frame) Name() string {
	if f.Class == "" {
		return f.Function
	}
	if f.Object != nil {
		return f.Class + "->" + f.Function
	}
	return f.Class + "::" + f.Function
}

func (f *Frame) String() string {
	return fmt.Sprintf("%s() called at [%s:%d]", f.Name(), f.Trace.File, f.Trace.Line)
}

// snapshot returns an independent copy of the frame.
func (f *Frame) snapshot() Frame {
	cp := *f
	if f.Args != nil {
		cp.Args = append([]Value(nil), f.Args...)
	}
	return cp
}

// ---------------------------------------------------------------------------
// CallStack
// ---------------------------------------------------------------------------

const callStackInitSize = 255

// CallStack is a LIFO sequence of frames. It belongs to one context and is
// not safe for concurrent use.
type CallStack struct {
	frames []*Frame
	top    int
}

// NewCallStack creates an empty call stack.
func NewCallStack() *CallStack {
	return &CallStack{frames: make([]*Frame, callStackInitSize)}
}

// Push adds a frame on top.
func (s *CallStack) Push(f *Frame) {
	if s.top >= len(s.frames) {
		// Grow the frame stack by doubling
		grown := make([]*Frame, len(s.frames)*2)
		copy(grown, s.frames)
		s.frames = grown
	}
	s.frames[s.top] = f
	s.top++
}

// Pop removes and clears the top frame. Popping an empty stack panics
// with ErrIllegalState.
func (s *CallStack) Pop() *Frame {
	if s.top <= 0 {
		panic(fmt.Errorf("%w: pop on empty call stack", ErrIllegalState))
	}
	s.top--
	f := s.frames[s.top]
	s.frames[s.top] = nil
	return f
}

// Peek returns the frame depth entries below the top, or nil.
func (s *CallStack) Peek(depth int) *Frame {
	if depth < 0 || s.top-depth <= 0 {
		return nil
	}
	return s.frames[s.top-depth-1]
}

// Depth returns the number of active frames.
func (s *CallStack) Depth() int {
	return s.top
}

// Capacity returns the current slot capacity.
func (s *CallStack) Capacity() int {
	return len(s.frames)
}

// Snapshot copies all active frames, bottom first. Later pushes and pops
// do not affect the result.
func (s *CallStack) Snapshot() []Frame {
	out := make([]Frame, s.top)
	for i := 0; i < s.top; i++ {
		out[i] = s.frames[i].snapshot()
	}
	return out
}

// CurrentTrace returns the top frame's trace, or UnknownTrace.
func (s *CallStack) CurrentTrace() TraceInfo {
	if f := s.Peek(0); f != nil {
		return f.Trace
	}
	return UnknownTrace
}

// ---------------------------------------------------------------------------
// Context call stack operations
// ---------------------------------------------------------------------------

// PushFrame pushes a prepared frame.
func (c *Context) PushFrame(f *Frame) {
	c.stack.Push(f)
}

// PushCall pushes a frame for an invocation.
func (c *Context) PushCall(trace TraceInfo, self Object, args []Value, function, class, staticClass string) {
	c.stack.Push(&Frame{
		Trace:       trace,
		Object:      self,
		Args:        args,
		Function:    function,
		Class:       class,
		StaticClass: staticClass,
	})
}

// PushMethodCall pushes a frame for a method invoked on self.
func (c *Context) PushMethodCall(trace TraceInfo, self Object, method string, args ...Value) {
	c.PushCall(trace, self, args, method, self.Reflection().Name, "")
}

// PopCall removes the top frame.
func (c *Context) PopCall() {
	c.stack.Pop()
}

// PeekCall returns the frame depth entries below the top, or nil.
func (c *Context) PeekCall(depth int) *Frame {
	return c.stack.Peek(depth)
}

// CallStackDepth returns the number of active frames.
func (c *Context) CallStackDepth() int {
	return c.stack.Depth()
}

// CallStackSnapshot returns a copy of the active frames, bottom first.
func (c *Context) CallStackSnapshot() []Frame {
	return c.stack.Snapshot()
}

// Trace returns the current source position.
func (c *Context) Trace() TraceInfo {
	return c.stack.CurrentTrace()
}
