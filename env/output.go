package env

import (
	"bytes"
	"errors"
	"io"
)

// ErrBufferNotErasable is returned when cleaning a buffer created without
// the erase flag.
var ErrBufferNotErasable = errors.New("output buffer is not erasable")

// OutputMode tells an OutputHandler why it is being called. Start is
// or-ed into the first call.
type OutputMode int

const (
	OutputWrite OutputMode = 0
	OutputStart OutputMode = 1 << (iota - 1)
	OutputClean
	OutputFlush
	OutputFinal
)

// OutputHandler transforms a chunk on its way to the parent buffer.
type OutputHandler func(chunk []byte, mode OutputMode) []byte

// ---------------------------------------------------------------------------
// OutputBuffer
// ---------------------------------------------------------------------------

// OutputBuffer is one level of the output stack. The root buffer writes
// straight to the context's sink; user buffers accumulate until flushed
// into their parent.
type OutputBuffer struct {
	Level     int
	ChunkSize int
	Handler   OutputHandler
	Erase     bool

	root    bool
	parent  *OutputBuffer
	out     io.Writer
	buf     bytes.Buffer
	started bool
	closed  bool
}

func newRootBuffer(out io.Writer) *OutputBuffer {
	if out == nil {
		out = io.Discard
	}
	return &OutputBuffer{root: true, out: out}
}

// IsRoot reports whether b is the context's root sink.
func (b *OutputBuffer) IsRoot() bool { return b.root }

// IsClosed reports whether Close has run.
func (b *OutputBuffer) IsClosed() bool { return b.closed }

// Write appends p. A chunked buffer flushes once it holds ChunkSize bytes.
func (b *OutputBuffer) Write(p []byte) (int, error) {
	if b.root {
		return b.out.Write(p)
	}
	b.buf.Write(p)
	if b.ChunkSize > 0 && b.buf.Len() >= b.ChunkSize {
		if err := b.emit(OutputWrite); err != nil {
			return len(p), err
		}
	}
	return len(p), nil
}

// Flush passes the buffered bytes through the handler into the parent.
// Flushing the root flushes the sink if it supports it.
func (b *OutputBuffer) Flush() error {
	if b.root {
		if f, ok := b.out.(interface{ Flush() error }); ok {
			return f.Flush()
		}
		return nil
	}
	return b.emit(OutputFlush)
}

func (b *OutputBuffer) emit(mode OutputMode) error {
	data := append([]byte(nil), b.buf.Bytes()...)
	b.buf.Reset()
	if b.Handler != nil {
		if !b.started {
			mode |= OutputStart
			b.started = true
		}
		data = b.Handler(data, mode)
	}
	if len(data) == 0 {
		return nil
	}
	_, err := b.parent.Write(data)
	return err
}

// Contents returns a copy of the unflushed bytes.
func (b *OutputBuffer) Contents() []byte {
	return append([]byte(nil), b.buf.Bytes()...)
}

// Len returns the number of unflushed bytes.
func (b *OutputBuffer) Len() int {
	return b.buf.Len()
}

// Clean discards the unflushed bytes of an erasable buffer.
func (b *OutputBuffer) Clean() error {
	if b.root || !b.Erase {
		return ErrBufferNotErasable
	}
	if b.Handler != nil {
		mode := OutputClean
		if !b.started {
			mode |= OutputStart
			b.started = true
		}
		b.Handler(b.Contents(), mode)
	}
	b.buf.Reset()
	return nil
}

// Close flushes the remaining bytes with the final mode. Closing twice is
// a no-op.
func (b *OutputBuffer) Close() error {
	if b.closed {
		return nil
	}
	b.closed = true
	if b.root {
		return b.Flush()
	}
	return b.emit(OutputFinal)
}

// ---------------------------------------------------------------------------
// Context output stack
// ---------------------------------------------------------------------------

// PushOutputBuffer starts a new buffer on top of the stack.
func (c *Context) PushOutputBuffer(handler OutputHandler, chunkSize int, erase bool) *OutputBuffer {
	b := &OutputBuffer{
		Level:     len(c.outputs),
		ChunkSize: chunkSize,
		Handler:   handler,
		Erase:     erase,
		parent:    c.outputs[len(c.outputs)-1],
	}
	c.outputs = append(c.outputs, b)
	return b
}

// PopOutputBuffer closes and removes the top buffer. It returns nil when
// only the root is left.
func (c *Context) PopOutputBuffer() *OutputBuffer {
	n := len(c.outputs)
	if n <= 1 {
		return nil
	}
	top := c.outputs[n-1]
	c.outputs = c.outputs[:n-1]
	if err := top.Close(); err != nil {
		log.Warningf("context %d: output buffer %d: %s", c.id, top.Level, err.Error())
	}
	return top
}

// DiscardOutputBuffer removes the top buffer without flushing it. Only
// erasable buffers can be discarded.
func (c *Context) DiscardOutputBuffer() bool {
	n := len(c.outputs)
	if n <= 1 {
		return false
	}
	top := c.outputs[n-1]
	if top.Clean() != nil {
		return false
	}
	top.closed = true
	c.outputs = c.outputs[:n-1]
	return true
}

// PeekOutputBuffer returns the top buffer, which is the root when no user
// buffer is active.
func (c *Context) PeekOutputBuffer() *OutputBuffer {
	return c.outputs[len(c.outputs)-1]
}

// OutputBuffers returns the stack, root first.
func (c *Context) OutputBuffers() []*OutputBuffer {
	return append([]*OutputBuffer(nil), c.outputs...)
}

// DefaultBuffer returns the root buffer.
func (c *Context) DefaultBuffer() *OutputBuffer {
	return c.outputs[0]
}

// Echo writes the string form of v to the top buffer.
func (c *Context) Echo(v Value) {
	c.EchoBytes([]byte(Stringify(v)))
}

// EchoBytes writes b to the top buffer.
func (c *Context) EchoBytes(b []byte) {
	if _, err := c.PeekOutputBuffer().Write(b); err != nil {
		log.Warningf("context %d: echo: %s", c.id, err.Error())
	}
}

// Write implements io.Writer over the top buffer.
func (c *Context) Write(p []byte) (int, error) {
	return c.PeekOutputBuffer().Write(p)
}

// FlushAll pops every user buffer, then closes the root.
func (c *Context) FlushAll() {
	for c.PopOutputBuffer() != nil {
	}
	if err := c.DefaultBuffer().Close(); err != nil {
		log.Warningf("context %d: flush: %s", c.id, err.Error())
	}
}
