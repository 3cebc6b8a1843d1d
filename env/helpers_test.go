package env

import (
	"bytes"
	"testing"
)

func at(line int) TraceInfo {
	return TraceInfo{File: "test.php", Line: line, Position: 1}
}

func newTestContext(t *testing.T, opts ...ScopeOption) (*Context, *bytes.Buffer) {
	t.Helper()
	var out bytes.Buffer
	c := New(NewScope(opts...), &out, WithExit(func(status int) {
		t.Errorf("unexpected exit(%d)", status)
	}))
	return c, &out
}

// catchPanic returns whatever fn panicked with, or nil.
func catchPanic(fn func()) (r any) {
	defer func() { r = recover() }()
	fn()
	return nil
}

func fatalOf(t *testing.T, r any) *FatalError {
	t.Helper()
	fe, ok := r.(*FatalError)
	if !ok {
		t.Fatalf("expected *FatalError panic, got %T (%v)", r, r)
	}
	return fe
}

// countReports installs a report handler counting non-fatal reports.
func countReports(c *Context) *int {
	n := new(int)
	c.SetErrorReportHandler(ErrorReportHandler{
		OnError: func(*Context, *Message) { *n++ },
	})
	return n
}
