// Package limits tracks the small set of system- and process-wide
// resource limits this kernel enforces.
package limits

import "sync/atomic"

// Sysatomic_t is a numeric limit that can be updated atomically.
type Sysatomic_t int64

// Syslimit_t tracks system-wide resource limits.
type Syslimit_t struct {
	// Sysprocs bounds the total number of live processes.
	Sysprocs int
	// Frames bounds the total number of physical frames handed out by
	// the frame pool.
	Frames Sysatomic_t
}

// Syslimit describes the configured system-wide limits.
var Syslimit = Syslimit_t{
	Sysprocs: 1 << 10,
	Frames:   1 << 18,
}

// Ulimit_t is the per-process resource limit block. NoVMA bounds the
// number of outstanding borrowed regions installed by map_shared_pages
// that a single address space may hold (heap growth does not count
// against it), guarding against a runaway mapper
// loop exhausting the destination's virtual range long before physical
// memory runs out.
type Ulimit_t struct {
	Pages  int
	NoVMA  int
	NoProc int
}

// DefaultUlimit is the limit block assigned to a newly created process.
var DefaultUlimit = Ulimit_t{
	Pages:  (1 << 27) / (1 << 12), // 128MB worth of pages
	NoVMA:  1 << 8,
	NoProc: 1 << 10,
}

func (s *Sysatomic_t) Add(n int64) int64 {
	return atomic.AddInt64((*int64)(s), n)
}

func (s *Sysatomic_t) Load() int64 {
	return atomic.LoadInt64((*int64)(s))
}
