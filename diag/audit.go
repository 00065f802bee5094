// Package diag provides the observability surface this subsystem
// exposes outside of the syscall boundary itself: a bounded audit
// trail of map/unmap activity, human-readable usage reports, and a
// pprof profile of outstanding borrowed mappings. None of it changes
// kernel behavior; it exists for the same reason the teacher carries a
// stats package and a dtrace-style tracer even though neither is
// load-bearing for correctness.
package diag

import (
	"sync"
	"time"

	"tinyos/circbuf"
	"tinyos/defs"
)

// Op identifies which operation an AuditEvent records.
type Op int

const (
	OpMap Op = iota
	OpUnmap
)

func (o Op) String() string {
	if o == OpMap {
		return "map"
	}
	return "unmap"
}

// AuditEvent is one recorded map_shared_pages or unmap_shared_pages
// call, successful or not. Trace is a developer-facing call stack,
// populated only when Errno is non-zero: the integrity-failure path is
// exactly where a stack trace earns its cost, and the log would be
// unreadable if every successful call carried one too.
type AuditEvent struct {
	When   time.Time
	Op     Op
	SrcPid defs.Pid_t
	DstPid defs.Pid_t
	VA     uint64
	NPages int
	Errno  defs.Err_t
	Trace  string
}

// Audit is a bounded, thread-safe log of recent shared-mapping
// activity, backed by circbuf so memory use never grows past its
// configured capacity regardless of how long the kernel runs.
type Audit struct {
	mu  sync.Mutex
	ring *circbuf.Circbuf[AuditEvent]
}

// NewAudit returns an audit log retaining up to capacity events.
func NewAudit(capacity int) *Audit {
	return &Audit{ring: circbuf.New[AuditEvent](capacity)}
}

// Record appends an event to the log.
func (a *Audit) Record(ev AuditEvent) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.ring.Push(ev)
}

// Recent returns every event currently retained, oldest first.
func (a *Audit) Recent() []AuditEvent {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.ring.Snapshot()
}
