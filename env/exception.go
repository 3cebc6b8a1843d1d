package env

import (
	"errors"
	"fmt"
	"strings"
)

// ---------------------------------------------------------------------------
// Script exceptions and control signals (carried by panic/recover)
// ---------------------------------------------------------------------------

// ScriptException is panicked when a script throws.
type ScriptException struct {
	Class    *ClassEntity
	Message  string
	Trace    TraceInfo
	Frames   []Frame
	Payload  Object // the thrown object, when thrown from script
	Previous error
}

func (e *ScriptException) Error() string {
	name := "Exception"
	if e.Class != nil {
		name = e.Class.Name
	}
	return fmt.Sprintf("Uncaught exception '%s' with message '%s'", name, e.Message)
}

func (e *ScriptException) Unwrap() error {
	return e.Previous
}

// FinallySignal propagates a pending finally block. It is absorbed at the
// top level without reaching any handler.
type FinallySignal struct{}

func (FinallySignal) Error() string { return "finally" }

// ExitSignal terminates the script with Status after a flush.
type ExitSignal struct {
	Status  int
	Payload Value
}

func (e *ExitSignal) Error() string {
	return fmt.Sprintf("exit(%d)", e.Status)
}

// Throw raises a script exception of the named class. Silencing is cleared
// first so handlers run with the real mask.
func (c *Context) Throw(trace TraceInfo, className, template string, args ...any) {
	class := c.FetchClass(className, true)
	if class == nil {
		c.Error(trace, msgClassNotFound, className)
		return
	}
	msg := template
	if len(args) > 0 {
		msg = fmt.Sprintf(template, args...)
	}
	c.ThrowException(&ScriptException{
		Class:   class,
		Message: msg,
		Trace:   trace,
		Frames:  c.stack.Snapshot(),
	})
}

// ThrowException raises ex after clearing silencing.
func (c *Context) ThrowException(ex *ScriptException) {
	c.ClearSilent()
	panic(ex)
}

// ThrowValue throws a script value. Only objects deriving from Exception
// may be thrown.
func (c *Context) ThrowValue(trace TraceInfo, v Value) {
	obj, ok := v.(Object)
	if !ok || obj == nil {
		c.Error(trace, msgThrowNonObject)
		return
	}
	class := obj.Reflection()
	if class == nil || !(class.isSubclassOfLower("exception") || class.isSubclassOfLower("throwable")) {
		c.Error(trace, msgThrowNotException)
		return
	}
	ex := &ScriptException{
		Class:   class,
		Trace:   trace,
		Frames:  c.stack.Snapshot(),
		Payload: obj,
	}
	if b, ok := obj.(*BaseObject); ok {
		ex.Message = Stringify(b.Props["message"])
	}
	c.ThrowException(ex)
}

// CatchMatches reports whether err is a script exception whose class is
// className or derives from it.
func CatchMatches(err error, className string) bool {
	var ex *ScriptException
	if !errors.As(err, &ex) || ex.Class == nil {
		return false
	}
	return ex.Class.isSubclassOfLower(strings.ToLower(className))
}

// Die terminates the script. A numeric value becomes the exit status;
// anything else is echoed and the status is 0.
func (c *Context) Die(v Value) {
	status, ok := asExitStatus(v)
	if !ok && v != nil {
		c.Echo(v)
	}
	panic(&ExitSignal{Status: status, Payload: v})
}
