// Package reflectx holds the small amount of reflection the bus needs:
// naming handler functions for failure reports.
package reflectx

import (
	"reflect"
	"runtime"
	"strings"
)

// FunctionName returns a readable name for a function value, suitable for
// identifying a handler in logs and failure events. For methods the "-fm"
// suffix the runtime appends to bound methods is stripped. Non-function
// values yield the empty string.
func FunctionName(fn any) string {
	if fn == nil {
		return ""
	}

	val := reflect.ValueOf(fn)
	if val.Kind() != reflect.Func {
		return ""
	}

	rf := runtime.FuncForPC(val.Pointer())
	if rf == nil {
		return val.Type().String()
	}

	name := strings.TrimSuffix(rf.Name(), "-fm")
	if idx := strings.LastIndex(name, "/"); idx >= 0 {
		name = name[idx+1:]
	}
	return name
}
