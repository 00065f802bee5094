package addrspace

import (
	"tinyos/mem"
	"tinyos/pagetable"
)

// Teardown walks every page below the heap top and, for each present
// entry, frees the underlying frame iff this address space owns it --
// borrowed entries are cleared without freeing, since the frame
// belongs to whichever process still owns it. This is the visitor
// spec.md §4.4 and §6 (process exit) both require. Unlike
// unmap_shared_pages, which accepts only borrowed pages and never
// frees, Teardown covers the whole address space and frees every
// owning frame.
//
// Teardown does not itself resolve what happens to processes still
// borrowing from this one; spec.md §9 leaves "owner exits before
// borrower" resolved as a dangling borrowed PTE: it keeps pointing at
// a Pa_t the pool may have recycled, and a read through it still
// succeeds. Teardown does nothing to prevent this.
func (a *AddressSpace) Teardown(pool *mem.Pool) {
	a.Lockassert()
	npages := int(a.Sz / mem.PAGE)
	if npages > 0 {
		pagetable.UvmUnmap(a.Table, 0, npages, pool.FreeFrame)
	}
	a.Sz = 0
	a.nvma = 0
}
