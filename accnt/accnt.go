// Package accnt accumulates per-process accounting information. The
// teacher repo accounts CPU time; this subsystem instead accounts
// shared-memory activity, since that is the resource this kernel
// actually manages.
package accnt

import (
	"sync"
	"sync/atomic"
)

// Usage tracks one process's shared-memory activity. All counters are
// updated atomically so shmem can bump them without holding the
// address-space lock any longer than necessary. Writers do not take
// the mutex, so Snapshot loads each counter atomically but the copy
// is not guaranteed to be a single point-in-time view.
type Usage struct {
	mu sync.Mutex

	BorrowedPages  int64 // pages currently mapped into this process as a borrower
	OwnedPages     int64 // pages this process owns (heap + shared-source pages)
	SharedBytesOut int64 // cumulative bytes exposed to other processes via map_shared_pages
	SharedBytesIn  int64 // cumulative bytes mapped in from other processes
}

// MapOut records that size bytes starting in this process were mapped
// into another process's address space.
func (u *Usage) MapOut(size int64) {
	atomic.AddInt64(&u.SharedBytesOut, size)
}

// MapIn records that size bytes were mapped in from another process,
// adding delta to the borrowed-page counter (delta may be negative on
// unmap).
func (u *Usage) MapIn(size int64, deltaPages int64) {
	atomic.AddInt64(&u.SharedBytesIn, size)
	atomic.AddInt64(&u.BorrowedPages, deltaPages)
}

// SetOwnedPages overwrites the owned-page counter, used after sbrk.
func (u *Usage) SetOwnedPages(n int64) {
	atomic.StoreInt64(&u.OwnedPages, n)
}

// Snapshot returns a consistent copy of the counters for reporting.
func (u *Usage) Snapshot() Usage {
	u.mu.Lock()
	defer u.mu.Unlock()
	return Usage{
		BorrowedPages:  atomic.LoadInt64(&u.BorrowedPages),
		OwnedPages:     atomic.LoadInt64(&u.OwnedPages),
		SharedBytesOut: atomic.LoadInt64(&u.SharedBytesOut),
		SharedBytesIn:  atomic.LoadInt64(&u.SharedBytesIn),
	}
}
