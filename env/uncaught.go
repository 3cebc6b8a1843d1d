package env

import (
	"errors"
	"runtime"
	"strconv"
)

// ---------------------------------------------------------------------------
// Uncaught failure boundaries
// ---------------------------------------------------------------------------

// Guard runs fn and converts a control-transfer panic into an error.
// Illegal-state errors, runtime errors and non-error panics propagate.
func (c *Context) Guard(fn func()) (err error) {
	defer func() {
		if r := recover(); r != nil {
			e, ok := recoverable(r)
			if !ok {
				panic(r)
			}
			err = e
		}
	}()
	fn()
	return nil
}

func recoverable(r any) (error, bool) {
	e, ok := r.(error)
	if !ok {
		return nil, false
	}
	if errors.Is(e, ErrIllegalState) {
		return nil, false
	}
	var rt runtime.Error
	if errors.As(e, &rt) {
		return nil, false
	}
	return e, true
}

// Execute runs fn inside Guard and classifies any failure.
func (c *Context) Execute(fn func()) error {
	err := c.Guard(fn)
	if err != nil && !c.CatchUncaught(err) {
		return err
	}
	return nil
}

// HandleUncaught is the deferred uncaught-failure hook for a goroutine
// running this context:
//
//	defer c.HandleUncaught()
func (c *Context) HandleUncaught() {
	if r := recover(); r != nil {
		CatchThrowable(c, r)
	}
}

// CatchThrowable classifies a recovered panic value on c. Values that are
// not control transfers are re-panicked.
func CatchThrowable(c *Context, r any) {
	e, ok := recoverable(r)
	if !ok || !c.CatchUncaught(e) {
		panic(r)
	}
}

// Go runs fn on a new goroutine with the uncaught hook installed. The
// returned channel is closed when fn finishes. The context must not be
// used by the caller until then.
func (c *Context) Go(fn func(c *Context)) <-chan struct{} {
	done := make(chan struct{})
	go func() {
		defer close(done)
		defer c.HandleUncaught()
		fn(c)
	}()
	return done
}

// CatchUncaught classifies a failure that reached the top level and
// reports whether it was handled:
//
//   - a finally signal is absorbed;
//   - an exit signal flushes every buffer and exits with its status;
//   - a fatal error is reported with its stack trace;
//   - anything else goes to the exception handler, and a failure raised by
//     the handler is classified again.
func (c *Context) CatchUncaught(err error) bool {
	if err == nil {
		return false
	}
	var (
		fin   FinallySignal
		exit  *ExitSignal
		fatal *FatalError
	)
	switch {
	case errors.As(err, &fin):
		return true
	case errors.As(err, &exit):
		c.FlushAll()
		c.exit(exit.Status)
		return true
	case errors.As(err, &fatal):
		c.reportFatal(fatal)
		return true
	case errors.Is(err, ErrIllegalState):
		return false
	}

	handler := c.exceptionHandler
	if handler == nil {
		handler = defaultExceptionHandler
	}
	herr := c.Guard(func() { handler(c, err) })
	if herr == nil {
		return true
	}
	if c.exceptionHandler == nil {
		return false
	}
	log.Debugf("context %d: exception handler raised: %s", c.id, herr.Error())

	// The user handler's own failure is classified with the default one.
	saved := c.exceptionHandler
	c.exceptionHandler = nil
	defer func() { c.exceptionHandler = saved }()
	return c.CatchUncaught(herr)
}

// defaultExceptionHandler reports an uncaught failure as a fatal error.
func defaultExceptionHandler(c *Context, err error) {
	fatal := &FatalError{Severity: EError, Message: err.Error(), Trace: c.Trace()}
	var ex *ScriptException
	if errors.As(err, &ex) {
		fatal.Trace = ex.Trace
		fatal.Frames = ex.Frames
	}
	c.reportFatal(fatal)
}

// reportFatal prints a fatal error then its stack trace in two passes:
// script frames numbered, then every frame with script frames marked.
func (c *Context) reportFatal(e *FatalError) {
	c.reportHandler.OnFatal(c, e)

	i := 0
	for k := len(e.Frames) - 1; k >= 0; k-- {
		f := &e.Frames[k]
		if !f.Internal {
			c.Echo("\n\t #" + strconv.Itoa(i) + " " + f.String())
			i++
		}
	}

	c.Echo("\n")

	for k := len(e.Frames) - 1; k >= 0; k-- {
		f := &e.Frames[k]
		marker := "->"
		if f.Internal {
			marker = ""
		}
		c.Echo("\n\t " + marker + " " + f.String())
	}
}
