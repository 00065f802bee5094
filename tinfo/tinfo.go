// Package tinfo tracks the small amount of per-process state needed to
// implement cooperative cancellation: a killed flag that sleep loops
// recheck at well-defined points, never anything that interrupts a
// syscall already in progress.
package tinfo

import "sync"

// Note is the cancellation state for one process.
type Note struct {
	mu     sync.Mutex
	killed bool
}

// Kill marks the process as killed. Idempotent.
func (n *Note) Kill() {
	n.mu.Lock()
	n.killed = true
	n.mu.Unlock()
}

// Killed reports whether Kill has been called.
func (n *Note) Killed() bool {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.killed
}
