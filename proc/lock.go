package proc

import (
	"reflect"
)

// WithTwoProcesses locks a and b's address spaces in a canonical
// order and runs fn while both are held, then unlocks in reverse.
// Ordering by the stable address of each Process record (rather than
// by pid, which wraps, or by call order, which is whatever order the
// two syscall arguments happened to name) is what sysproc.c's comment
// on map_shared_pages requires to avoid deadlock when two processes
// call map_shared_pages on each other concurrently: both must pick the
// same ordering independent of which side issued which call.
//
// a and b may be the same process (mapping within one address space),
// in which case only one lock is taken.
func WithTwoProcesses(a, b *Process, fn func() error) error {
	if a == b {
		a.AS.Lock()
		defer a.AS.Unlock()
		return fn()
	}

	first, second := a, b
	if addrOf(a) > addrOf(b) {
		first, second = b, a
	}
	first.AS.Lock()
	defer first.AS.Unlock()
	second.AS.Lock()
	defer second.AS.Unlock()
	return fn()
}

func addrOf(p *Process) uintptr {
	return reflect.ValueOf(p).Pointer()
}
