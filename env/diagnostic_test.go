package env

import (
	"testing"
)

// ---------------------------------------------------------------------------
// Silencing
// ---------------------------------------------------------------------------

func TestNestedSilencingRestoresMask(t *testing.T) {
	c, _ := newTestContext(t)
	c.SetErrorFlags(EAll)

	c.PushSilent()
	c.PushSilent()
	if c.ErrorFlags() != 0 {
		t.Errorf("silenced mask = %v, want 0", c.ErrorFlags())
	}
	c.PopSilent()
	c.PopSilent()
	if c.ErrorFlags() != EAll {
		t.Errorf("mask = %v, want E_ALL", c.ErrorFlags())
	}
}

func TestClearSilentRestoresOutermostMask(t *testing.T) {
	c, _ := newTestContext(t)
	c.SetErrorFlags(EAll)

	c.PushSilent()
	c.SetErrorFlags(EWarning)
	c.PushSilent()
	c.PushSilent()
	c.ClearSilent()

	if c.ErrorFlags() != EAll {
		t.Errorf("mask = %v, want E_ALL", c.ErrorFlags())
	}
	if c.SilentDepth() != 0 {
		t.Errorf("SilentDepth = %d, want 0", c.SilentDepth())
	}
}

func TestSilencingOutsideNestingIsNoop(t *testing.T) {
	c, _ := newTestContext(t)
	c.SetErrorFlags(ENotice)
	c.PopSilent()
	c.ClearSilent()
	if c.ErrorFlags() != ENotice {
		t.Errorf("mask = %v, want E_NOTICE", c.ErrorFlags())
	}
}

// ---------------------------------------------------------------------------
// Routing
// ---------------------------------------------------------------------------

func TestDisabledWarningSkipsReportHandler(t *testing.T) {
	c, _ := newTestContext(t)
	reports := countReports(c)
	c.SetErrorFlags(DefaultErrorFlags &^ EWarning)

	c.Warning(at(1), "quiet")

	if *reports != 0 {
		t.Errorf("reports = %d, want 0", *reports)
	}
	if m := c.LastMessage(); m == nil || m.Severity != EWarning || m.Text() != "quiet" {
		t.Errorf("LastMessage = %v", m)
	}
}

func TestEnabledWarningReachesReportHandlerOnce(t *testing.T) {
	c, _ := newTestContext(t)
	reports := countReports(c)

	c.Warning(at(1), "loud")

	if *reports != 1 {
		t.Errorf("reports = %d, want 1", *reports)
	}
}

func TestDefaultReportHandlerOutput(t *testing.T) {
	c, out := newTestContext(t)
	c.Warning(TraceInfo{File: "x.php", Line: 3, Position: 9}, "Division by %s", "zero")

	want := "Warning: Division by zero in x.php on line 3, position 9\n"
	if out.String() != want {
		t.Errorf("output = %q, want %q", out.String(), want)
	}
}

func TestUserHandlerSuppressesReport(t *testing.T) {
	c, _ := newTestContext(t)
	reports := countReports(c)
	calls := 0
	c.SetErrorHandler(&ErrorHandler{Handle: func(_ *Context, m *Message) bool {
		calls++
		return true
	}})

	c.Warning(at(1), "handled")

	if calls != 1 || *reports != 0 {
		t.Errorf("calls = %d, reports = %d; want 1, 0", calls, *reports)
	}
}

func TestUserHandlerDeclines(t *testing.T) {
	c, _ := newTestContext(t)
	reports := countReports(c)
	c.SetErrorHandler(&ErrorHandler{Handle: func(*Context, *Message) bool { return false }})

	c.Warning(at(1), "declined")

	if *reports != 1 {
		t.Errorf("reports = %d, want 1", *reports)
	}
}

func TestUserHandlerMask(t *testing.T) {
	c, _ := newTestContext(t)
	reports := countReports(c)
	calls := 0
	c.SetErrorHandler(&ErrorHandler{Mask: ENotice, Handle: func(*Context, *Message) bool {
		calls++
		return true
	}})

	c.Warning(at(1), "not for the handler")

	if calls != 0 || *reports != 1 {
		t.Errorf("calls = %d, reports = %d; want 0, 1", calls, *reports)
	}
}

func TestRestoreErrorHandler(t *testing.T) {
	c, _ := newTestContext(t)
	first := &ErrorHandler{Handle: func(*Context, *Message) bool { return true }}
	second := &ErrorHandler{Handle: func(*Context, *Message) bool { return true }}
	c.SetErrorHandler(first)
	if prev := c.SetErrorHandler(second); prev != first {
		t.Error("SetErrorHandler should return the replaced handler")
	}
	c.RestoreErrorHandler()
	if c.ErrorHandler() != first {
		t.Error("RestoreErrorHandler should reinstate the replaced handler")
	}
}

func TestFatalErrorUnwinds(t *testing.T) {
	c, _ := newTestContext(t)
	reports := countReports(c)
	c.PushCall(at(1), nil, nil, "main", "", "")

	fe := fatalOf(t, catchPanic(func() { c.Error(at(5), "bad %s", "thing") }))

	if fe.Severity != EError || fe.Message != "bad thing" || fe.Trace != at(5) {
		t.Errorf("fatal = %+v", fe)
	}
	if len(fe.Frames) != 1 || fe.Frames[0].Function != "main" {
		t.Errorf("frames = %+v", fe.Frames)
	}
	if c.LastMessage() == nil || c.LastMessage().Text() != "bad thing" {
		t.Errorf("LastMessage = %v", c.LastMessage())
	}
	if *reports != 0 {
		t.Error("fatal errors are not reported through OnError")
	}
}

func TestRecoverableErrorOfferedToHandler(t *testing.T) {
	c, _ := newTestContext(t)
	var got *Message
	c.SetErrorHandler(&ErrorHandler{Mask: ERecoverableError, Handle: func(_ *Context, m *Message) bool {
		got = m
		return true
	}})

	if r := catchPanic(func() { c.Raise(ERecoverableError, at(2), "argument mismatch") }); r != nil {
		t.Fatalf("handled recoverable error should not unwind, got %v", r)
	}
	if got == nil || got.Text() != "argument mismatch" {
		t.Errorf("handler message = %v", got)
	}

	c.SetErrorHandler(nil)
	fe := fatalOf(t, catchPanic(func() { c.Raise(ERecoverableError, at(3), "again") }))
	if fe.Severity != ERecoverableError {
		t.Errorf("severity = %v", fe.Severity)
	}
}

func TestNonHandleableFatalIgnoresHandler(t *testing.T) {
	c, _ := newTestContext(t)
	c.SetErrorHandler(&ErrorHandler{Handle: func(*Context, *Message) bool {
		t.Error("handler must not see E_ERROR")
		return true
	}})
	fatalOf(t, catchPanic(func() { c.Error(at(1), "fatal") }))
}

// ---------------------------------------------------------------------------
// Severity
// ---------------------------------------------------------------------------

func TestSeverityBands(t *testing.T) {
	for _, s := range []Severity{EError, EParse, ECoreError, ECompileError, ERecoverableError} {
		if !s.IsFatal() {
			t.Errorf("%v should be fatal", s)
		}
	}
	for _, s := range []Severity{EWarning, ENotice, EStrict, EDeprecated, EUserError, EUserWarning, EUserNotice} {
		if s.IsFatal() {
			t.Errorf("%v should be recoverable", s)
		}
	}
	if DefaultErrorFlags.Enabled(ENotice) || !DefaultErrorFlags.Enabled(EWarning) {
		t.Error("default mask should enable warnings but not notices")
	}
}

func TestParseSeverityMask(t *testing.T) {
	tests := []struct {
		expr string
		want Severity
	}{
		{"E_ALL", EAll},
		{"32767", EAll},
		{"E_ALL & ~E_NOTICE", EAll &^ ENotice},
		{"e_warning | E_NOTICE", EWarning | ENotice},
		{"E_ALL ^ E_DEPRECATED", EAll &^ EDeprecated},
	}
	for _, tt := range tests {
		got, err := ParseSeverityMask(tt.expr)
		if err != nil {
			t.Errorf("ParseSeverityMask(%q): %v", tt.expr, err)
			continue
		}
		if got != tt.want {
			t.Errorf("ParseSeverityMask(%q) = %d, want %d", tt.expr, got, tt.want)
		}
	}

	for _, bad := range []string{"", "E_BOGUS", "E_ALL &", "E_ALL + 1"} {
		if _, err := ParseSeverityMask(bad); err == nil {
			t.Errorf("ParseSeverityMask(%q) should fail", bad)
		}
	}
}
