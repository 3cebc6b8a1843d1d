package env

import (
	"fmt"
	"strconv"
)

// ---------------------------------------------------------------------------
// Values
// ---------------------------------------------------------------------------

// Value is a boxed dynamic value. Its representation belongs to the
// embedder; this package only needs to stringify and type-check it.
type Value = any

// Locals is a variable table handed to included modules.
type Locals map[string]Value

// Cell is a mutable slot shared by reference (function statics).
type Cell struct {
	Value Value
}

// Stringify coerces a value to its string form the way the language does:
// nil is empty, true is "1", false is empty.
func Stringify(v Value) string {
	switch x := v.(type) {
	case nil:
		return ""
	case string:
		return x
	case []byte:
		return string(x)
	case bool:
		if x {
			return "1"
		}
		return ""
	case int:
		return strconv.Itoa(x)
	case int32:
		return strconv.FormatInt(int64(x), 10)
	case int64:
		return strconv.FormatInt(x, 10)
	case uint:
		return strconv.FormatUint(uint64(x), 10)
	case uint64:
		return strconv.FormatUint(x, 10)
	case float32:
		return strconv.FormatFloat(float64(x), 'G', 14, 32)
	case float64:
		return strconv.FormatFloat(x, 'G', 14, 64)
	case fmt.Stringer:
		return x.String()
	case error:
		return x.Error()
	default:
		return fmt.Sprint(x)
	}
}

// asExitStatus reports whether v is numeric, and its integer value.
func asExitStatus(v Value) (int, bool) {
	switch x := v.(type) {
	case int:
		return x, true
	case int32:
		return int(x), true
	case int64:
		return int(x), true
	case uint:
		return int(x), true
	case uint64:
		return int(x), true
	case float32:
		return int(x), true
	case float64:
		return int(x), true
	}
	return 0, false
}

// IsFalse reports whether v is the false-equivalent include result.
func IsFalse(v Value) bool {
	b, ok := v.(bool)
	return ok && !b
}
