package env

import (
	"fmt"
	"strconv"
	"strings"
	"unicode"
)

// Severity is a diagnostic category. Values match the language's E_*
// constants so masks can be exchanged with scripts unchanged.
type Severity int

const (
	EError Severity = 1 << iota
	EWarning
	EParse
	ENotice
	ECoreError
	ECoreWarning
	ECompileError
	ECompileWarning
	EUserError
	EUserWarning
	EUserNotice
	EStrict
	ERecoverableError
	EDeprecated
	EUserDeprecated

	EAll Severity = 32767
)

// DefaultErrorFlags is the mask a context starts with.
const DefaultErrorFlags = EAll &^ (ENotice | EStrict | EDeprecated)

var severityNames = map[Severity]string{
	EError:            "E_ERROR",
	EWarning:          "E_WARNING",
	EParse:            "E_PARSE",
	ENotice:           "E_NOTICE",
	ECoreError:        "E_CORE_ERROR",
	ECoreWarning:      "E_CORE_WARNING",
	ECompileError:     "E_COMPILE_ERROR",
	ECompileWarning:   "E_COMPILE_WARNING",
	EUserError:        "E_USER_ERROR",
	EUserWarning:      "E_USER_WARNING",
	EUserNotice:       "E_USER_NOTICE",
	EStrict:           "E_STRICT",
	ERecoverableError: "E_RECOVERABLE_ERROR",
	EDeprecated:       "E_DEPRECATED",
	EUserDeprecated:   "E_USER_DEPRECATED",
	EAll:              "E_ALL",
}

// IsFatal reports whether the severity unwinds.
func (s Severity) IsFatal() bool {
	switch s {
	case EError, EParse, ECoreError, ECompileError, ERecoverableError:
		return true
	}
	return false
}

// IsHandleable reports whether a fatal severity may be offered to a user
// error handler instead of unwinding.
func (s Severity) IsHandleable() bool {
	return s == ERecoverableError
}

// TypeName is the label used in user-visible reports.
func (s Severity) TypeName() string {
	switch s {
	case EError, ECoreError, ECompileError, EUserError:
		return "Fatal error"
	case EWarning, ECoreWarning, ECompileWarning, EUserWarning:
		return "Warning"
	case EParse:
		return "Parse error"
	case ENotice, EUserNotice:
		return "Notice"
	case EStrict:
		return "Strict Standards"
	case ERecoverableError:
		return "Catchable fatal error"
	case EDeprecated, EUserDeprecated:
		return "Deprecated"
	}
	return "Unknown error"
}

func (s Severity) String() string {
	if n, ok := severityNames[s]; ok {
		return n
	}
	return strconv.Itoa(int(s))
}

// Enabled reports whether category is set in the mask s.
func (s Severity) Enabled(category Severity) bool {
	return s&category != 0
}

// ParseSeverityMask evaluates an error_reporting expression such as
// "E_ALL & ~E_NOTICE" or "32767". Binary operators | & ^ are applied left
// to right; ~ binds to the following operand.
func ParseSeverityMask(expr string) (Severity, error) {
	p := maskParser{src: expr}
	v, err := p.operand()
	if err != nil {
		return 0, err
	}
	for {
		p.skipSpace()
		if p.pos >= len(p.src) {
			return v, nil
		}
		op := p.src[p.pos]
		if op != '|' && op != '&' && op != '^' {
			return 0, fmt.Errorf("severity mask %q: unexpected %q", expr, op)
		}
		p.pos++
		rhs, err := p.operand()
		if err != nil {
			return 0, err
		}
		switch op {
		case '|':
			v |= rhs
		case '&':
			v &= rhs
		case '^':
			v ^= rhs
		}
	}
}

type maskParser struct {
	src string
	pos int
}

func (p *maskParser) skipSpace() {
	for p.pos < len(p.src) && unicode.IsSpace(rune(p.src[p.pos])) {
		p.pos++
	}
}

func (p *maskParser) operand() (Severity, error) {
	p.skipSpace()
	if p.pos >= len(p.src) {
		return 0, fmt.Errorf("severity mask %q: missing operand", p.src)
	}
	if p.src[p.pos] == '~' {
		p.pos++
		v, err := p.operand()
		return EAll &^ v, err
	}
	start := p.pos
	for p.pos < len(p.src) {
		ch := rune(p.src[p.pos])
		if !unicode.IsLetter(ch) && !unicode.IsDigit(ch) && ch != '_' {
			break
		}
		p.pos++
	}
	tok := p.src[start:p.pos]
	if tok == "" {
		return 0, fmt.Errorf("severity mask %q: unexpected %q at %d", p.src, p.src[p.pos], p.pos)
	}
	if n, err := strconv.Atoi(tok); err == nil {
		return Severity(n), nil
	}
	upper := strings.ToUpper(tok)
	for s, name := range severityNames {
		if name == upper {
			return s, nil
		}
	}
	return 0, fmt.Errorf("severity mask %q: unknown constant %s", p.src, tok)
}
