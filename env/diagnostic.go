package env

import (
	"fmt"
)

// ---------------------------------------------------------------------------
// Messages and fatal errors
// ---------------------------------------------------------------------------

// Message is a recoverable diagnostic.
type Message struct {
	Severity Severity
	Frame    Frame
	Template string
	Args     []any
}

// Text returns the formatted message.
func (m *Message) Text() string {
	if len(m.Args) == 0 {
		return m.Template
	}
	return fmt.Sprintf(m.Template, m.Args...)
}

// DebugMessage returns the message the default report handler prints.
func (m *Message) DebugMessage() string {
	return fmt.Sprintf("%s: %s in %s on line %d, position %d",
		m.Severity.TypeName(), m.Text(), m.Frame.Trace.File, m.Frame.Trace.Line, m.Frame.Trace.Position)
}

func (m *Message) String() string {
	return m.DebugMessage()
}

// FatalError is the panic payload of a fatal diagnostic.
type FatalError struct {
	Severity Severity
	Message  string
	Trace    TraceInfo
	Frames   []Frame // bottom first, captured at raise time
}

func (e *FatalError) Error() string {
	return fmt.Sprintf("%s: %s in %s on line %d, position %d",
		e.Severity.TypeName(), e.Message, e.Trace.File, e.Trace.Line, e.Trace.Position)
}

// ---------------------------------------------------------------------------
// Handler capabilities
// ---------------------------------------------------------------------------

// ErrorHandler is a user error handler. Handle reports whether the message
// was fully handled; an unhandled message falls through to the report
// handler. A zero Mask accepts every severity.
type ErrorHandler struct {
	Mask   Severity
	Handle func(c *Context, m *Message) bool
}

func (h *ErrorHandler) accepts(s Severity) bool {
	return h != nil && h.Handle != nil && (h.Mask == 0 || h.Mask&s != 0)
}

// ErrorReportHandler writes diagnostics that nobody else handled.
type ErrorReportHandler struct {
	OnError func(c *Context, m *Message)
	OnFatal func(c *Context, e *FatalError)
}

// ExceptionHandler receives uncaught script exceptions and other
// propagating failures.
type ExceptionHandler func(c *Context, err error)

// DefaultErrorReportHandler echoes diagnostics to the active buffer.
func DefaultErrorReportHandler() ErrorReportHandler {
	return ErrorReportHandler{
		OnError: func(c *Context, m *Message) {
			c.Echo(m.DebugMessage())
			c.Echo("\n")
		},
		OnFatal: func(c *Context, e *FatalError) {
			c.Echo("\n")
			c.Echo(e.Severity.TypeName() + ": " + e.Message)
			if !e.Trace.IsUnknown() {
				c.Echo(fmt.Sprintf(" in %s on line %d, position %d", e.Trace.File, e.Trace.Line, e.Trace.Position))
			}
		},
	}
}

// SetErrorHandler installs h and returns the handler it replaces. The
// replaced handler is kept for RestoreErrorHandler.
func (c *Context) SetErrorHandler(h *ErrorHandler) *ErrorHandler {
	prev := c.errorHandler
	c.previousErrorHandler = prev
	c.errorHandler = h
	return prev
}

// RestoreErrorHandler reinstates the handler replaced by the last
// SetErrorHandler call.
func (c *Context) RestoreErrorHandler() {
	c.errorHandler = c.previousErrorHandler
	c.previousErrorHandler = nil
}

// ErrorHandler returns the installed user error handler, or nil.
func (c *Context) ErrorHandler() *ErrorHandler {
	return c.errorHandler
}

// SetExceptionHandler installs h and returns the handler it replaces.
func (c *Context) SetExceptionHandler(h ExceptionHandler) ExceptionHandler {
	prev := c.exceptionHandler
	c.exceptionHandler = h
	return prev
}

// SetErrorReportHandler replaces the report handler. Nil callbacks keep
// the defaults.
func (c *Context) SetErrorReportHandler(h ErrorReportHandler) {
	def := DefaultErrorReportHandler()
	if h.OnError == nil {
		h.OnError = def.OnError
	}
	if h.OnFatal == nil {
		h.OnFatal = def.OnFatal
	}
	c.reportHandler = h
}

// ---------------------------------------------------------------------------
// Routing
// ---------------------------------------------------------------------------

// Raise routes a diagnostic. Recoverable severities return after
// reporting; fatal ones panic with a *FatalError unless a user handler
// accepts a handleable severity.
func (c *Context) Raise(sev Severity, trace TraceInfo, template string, args ...any) {
	msg := &Message{Severity: sev, Frame: c.frameAt(trace), Template: template, Args: args}
	if sev.IsFatal() {
		if sev.IsHandleable() && c.errorHandler.accepts(sev) {
			c.TriggerMessage(msg)
			return
		}
		c.triggerError(&FatalError{
			Severity: sev,
			Message:  msg.Text(),
			Trace:    trace,
			Frames:   c.stack.Snapshot(),
		})
		return
	}
	c.TriggerMessage(msg)
}

// TriggerMessage records msg as the last diagnostic, offers it to the
// user handler, then to the report handler when its category is enabled.
func (c *Context) TriggerMessage(msg *Message) {
	c.lastMessage = msg
	if c.errorHandler.accepts(msg.Severity) && c.errorHandler.Handle(c, msg) {
		return
	}
	if c.errorFlags.Enabled(msg.Severity) {
		c.reportHandler.OnError(c, msg)
	}
}

func (c *Context) triggerError(e *FatalError) {
	c.lastMessage = &Message{
		Severity: e.Severity,
		Frame:    Frame{Trace: e.Trace},
		Template: "%s",
		Args:     []any{e.Message},
	}
	panic(e)
}

func (c *Context) frameAt(trace TraceInfo) Frame {
	if top := c.stack.Peek(0); top != nil {
		f := top.snapshot()
		f.Trace = trace
		return f
	}
	return Frame{Trace: trace}
}

// Warning raises E_WARNING.
func (c *Context) Warning(trace TraceInfo, template string, args ...any) {
	c.Raise(EWarning, trace, template, args...)
}

// Notice raises E_NOTICE.
func (c *Context) Notice(trace TraceInfo, template string, args ...any) {
	c.Raise(ENotice, trace, template, args...)
}

// Deprecated raises E_DEPRECATED.
func (c *Context) Deprecated(trace TraceInfo, template string, args ...any) {
	c.Raise(EDeprecated, trace, template, args...)
}

// Error raises E_ERROR. It does not return.
func (c *Context) Error(trace TraceInfo, template string, args ...any) {
	c.Raise(EError, trace, template, args...)
}

// LastMessage returns the most recent diagnostic, or nil.
func (c *Context) LastMessage() *Message {
	return c.lastMessage
}

// ClearLastMessage forgets the most recent diagnostic.
func (c *Context) ClearLastMessage() {
	c.lastMessage = nil
}

// ---------------------------------------------------------------------------
// Error mask and silencing
// ---------------------------------------------------------------------------

// SetErrorFlags sets the enabled category mask.
func (c *Context) SetErrorFlags(mask Severity) {
	c.errorFlags = mask
}

// ErrorFlags returns the enabled category mask.
func (c *Context) ErrorFlags() Severity {
	return c.errorFlags
}

// IsHandleErrors reports whether s is currently enabled.
func (c *Context) IsHandleErrors(s Severity) bool {
	return c.errorFlags.Enabled(s)
}

// PushSilent saves the mask and disables every category.
func (c *Context) PushSilent() {
	c.silentFlags = append(c.silentFlags, c.errorFlags)
	c.errorFlags = 0
}

// PopSilent restores the most recently saved mask.
func (c *Context) PopSilent() {
	n := len(c.silentFlags)
	if n == 0 {
		return
	}
	c.errorFlags = c.silentFlags[n-1]
	c.silentFlags = c.silentFlags[:n-1]
}

// ClearSilent drops every nesting level and restores the mask saved by
// the outermost PushSilent. Outside any silencing it does nothing.
func (c *Context) ClearSilent() {
	if len(c.silentFlags) == 0 {
		return
	}
	c.errorFlags = c.silentFlags[0]
	c.silentFlags = c.silentFlags[:0]
}

// SilentDepth returns the current silencing nesting.
func (c *Context) SilentDepth() int {
	return len(c.silentFlags)
}
