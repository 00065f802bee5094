// Package caller provides a single debug helper for dumping the call
// stack behind a failed operation, for attaching to an audit entry.
package caller

import (
	"fmt"
	"runtime"
)

// Dump renders the call stack starting at the given skip depth as a
// newline-joined string, most-recent frame first.
func Dump(start int) string {
	i := start
	s := ""
	for {
		_, f, l, ok := runtime.Caller(i)
		if !ok {
			break
		}
		i++
		if s == "" {
			s = fmt.Sprintf("%s:%d", f, l)
		} else {
			s += fmt.Sprintf("\n\t<-%s:%d", f, l)
		}
	}
	return s
}
