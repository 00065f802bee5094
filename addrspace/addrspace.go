// Package addrspace implements the address-space component (C2):
// the per-process page table plus heap-top bookkeeping that
// map_shared_pages installs into and unmap_shared_pages tears down
// from. It is grounded on the teacher's Vm_t (biscuit/src/vm/as.go),
// generalized from a full virtual-memory manager down to the slice of
// behavior this subsystem actually needs: a lockable page table, a
// heap top, and a VMA budget.
package addrspace

import (
	"fmt"
	"sync"

	"tinyos/defs"
	"tinyos/limits"
	"tinyos/mem"
	"tinyos/pagetable"
)

// ShareRecord describes one outstanding borrowed range installed by
// map_shared_pages, as reported by a diagnostic stat query. It is kept
// here rather than reconstructed from the page table at query time
// because a PTE carries a frame number but not the pid that shared it.
type ShareRecord struct {
	Owner defs.Pid_t
	VA    uint64
	Size  uint64
}

// AddressSpace is one process's page table and heap-top state. The
// mutex plays the role of the teacher's per-Vm_t pmap lock: it must be
// held across any read-modify-write sequence that walks and then
// mutates the page table, which is why the mapper takes both
// processes' locks via proc.WithTwoProcesses rather than locking here
// implicitly per call.
type AddressSpace struct {
	mu sync.Mutex

	Table *pagetable.Table
	Sz    uint64 // heap top in bytes; all owning mappings live below it

	pool  *mem.Pool
	limit limits.Ulimit_t
	nvma  int

	shares []ShareRecord
}

// New returns an empty address space backed by pool, whose mappings
// are subject to limit.
func New(pool *mem.Pool, limit limits.Ulimit_t) *AddressSpace {
	return &AddressSpace{Table: pagetable.New(), pool: pool, limit: limit}
}

// Lock acquires the address space's pmap lock.
func (a *AddressSpace) Lock() { a.mu.Lock() }

// Unlock releases the address space's pmap lock.
func (a *AddressSpace) Unlock() { a.mu.Unlock() }

// Lockassert panics if the pmap lock is not held, mirroring the
// teacher's Lockassert_pmap debug assertion. Since sync.Mutex exposes
// no "is locked by me" query, this performs a non-blocking TryLock:
// if it succeeds, nobody held the lock, which is the bug this assert
// exists to catch.
func (a *AddressSpace) Lockassert() {
	if a.mu.TryLock() {
		a.mu.Unlock()
		panic("addrspace: pmap lock not held")
	}
}

// GrowBy extends the heap top by npages freshly allocated, zeroed,
// owning frames, installed read-write and non-executable. Callers must
// hold the lock.
func (a *AddressSpace) GrowBy(npages int) error {
	a.Lockassert()
	pas := make([]mem.Pa_t, 0, npages)
	for i := 0; i < npages; i++ {
		pa, _, ok := a.pool.AllocFrame()
		if !ok {
			for _, p := range pas {
				a.pool.FreeFrame(p)
			}
			return fmt.Errorf("addrspace: out of frames growing heap")
		}
		pas = append(pas, pa)
	}
	va := a.Sz
	if err := pagetable.Mappages(a.Table, va, pas, pagetable.PTE_U|pagetable.PTE_W); err != nil {
		for _, p := range pas {
			a.pool.FreeFrame(p)
		}
		return err
	}
	a.Sz = va + uint64(npages)*mem.PAGE
	return nil
}

// ShrinkTo lowers the heap top to newsz, unmapping and freeing every
// owning page above it. newsz must be page-aligned and not exceed Sz.
// Callers must hold the lock.
func (a *AddressSpace) ShrinkTo(newsz uint64) error {
	a.Lockassert()
	if newsz > a.Sz {
		return fmt.Errorf("addrspace: ShrinkTo grows the heap (%d > %d)", newsz, a.Sz)
	}
	if newsz%mem.PAGE != 0 {
		return fmt.Errorf("addrspace: ShrinkTo size not page aligned")
	}
	n := int((a.Sz - newsz) / mem.PAGE)
	pagetable.UvmUnmap(a.Table, newsz, n, a.pool.FreeFrame)
	a.Sz = newsz
	return nil
}

// ReserveVMA consumes one slot of the VMA budget, returning false if
// the process's ulimit.NoVMA would be exceeded. Every installed shared
// mapping consumes one VMA, regardless of how many pages it spans.
func (a *AddressSpace) ReserveVMA() bool {
	a.Lockassert()
	if a.nvma >= a.limit.NoVMA {
		return false
	}
	a.nvma++
	return true
}

// ReleaseVMA returns one slot of the VMA budget.
func (a *AddressSpace) ReleaseVMA() {
	a.Lockassert()
	if a.nvma > 0 {
		a.nvma--
	}
}

// InstallPageAt splices a single PTE at an exact virtual address,
// used by fork to reconstruct a child's address space page-by-page
// from the parent's, preserving each page's original va and its
// owning-vs-borrowed status. Unlike GrowBy/InstallBorrowedRange it
// does not touch Sz; the caller sets Sz once the whole copy is done.
// Callers must hold the lock.
func (a *AddressSpace) InstallPageAt(va uint64, pa mem.Pa_t, writable, borrowed bool) error {
	a.Lockassert()
	flags := pagetable.PTE_U
	if writable {
		flags |= pagetable.PTE_W
	}
	if borrowed {
		flags |= pagetable.PTE_BORROWED
	}
	return pagetable.Mappages(a.Table, va, []mem.Pa_t{pa}, flags)
}

// InstallBorrowedRange splices npages contiguous borrowed PTEs,
// pointing at pas, starting at the current heap top, then bumps the
// heap top past them -- the destination-side half of map_shared_pages.
// It never allocates from the pool; pas are frames already owned by
// another address space. On failure the table is left unmodified and
// Sz is unchanged. owner records which process's frames these are, for
// the ShareRecord a stat query later reports. Callers must hold the
// lock.
func (a *AddressSpace) InstallBorrowedRange(owner defs.Pid_t, pas []mem.Pa_t, writable bool) (uint64, error) {
	a.Lockassert()
	flags := pagetable.PTE_U | pagetable.PTE_BORROWED
	if writable {
		flags |= pagetable.PTE_W
	}
	va := a.Sz
	if err := pagetable.Mappages(a.Table, va, pas, flags); err != nil {
		return 0, err
	}
	size := uint64(len(pas)) * mem.PAGE
	a.Sz = va + size
	a.shares = append(a.shares, ShareRecord{Owner: owner, VA: va, Size: size})
	return va, nil
}

// Shares returns a snapshot of every outstanding borrowed range
// installed by map_shared_pages and not yet removed by
// unmap_shared_pages. Callers must hold the lock.
func (a *AddressSpace) Shares() []ShareRecord {
	a.Lockassert()
	out := make([]ShareRecord, len(a.shares))
	copy(out, a.shares)
	return out
}

// ForgetShare removes the ShareRecord installed at va by a prior
// InstallBorrowedRange, called once unmap_shared_pages has cleared the
// matching PTEs. It is a no-op if no record starts at va -- unmapping
// a sub-range of a larger share leaves the stale record in place
// rather than trying to split it, since nothing in this subsystem
// currently unmaps anything but the exact range it was given. Callers
// must hold the lock.
func (a *AddressSpace) ForgetShare(va uint64) {
	a.Lockassert()
	for i, s := range a.shares {
		if s.VA == va {
			a.shares = append(a.shares[:i], a.shares[i+1:]...)
			return
		}
	}
}
