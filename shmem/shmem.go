// Package shmem implements map_shared_pages (C3) and
// unmap_shared_pages (C4), the two operations this subsystem exists
// to provide. It is grounded on sysproc.c's sys_mapshared/sys_unshare
// pair and on the teacher's Vmadd_shareanon (biscuit/src/vm/as.go),
// generalized from "share anonymous memory with a child at fork" to
// "share an arbitrary range with an arbitrary already-running
// process" on demand.
package shmem

import (
	"time"

	"tinyos/caller"
	"tinyos/defs"
	"tinyos/diag"
	"tinyos/mem"
	"tinyos/pagetable"
	"tinyos/proc"
)

// MapSharedPages installs npages of src's memory starting at srcVA
// into dst's address space, above dst's current heap top, and reports
// where they landed. srcVA need not be page-aligned: the containing
// page is the unit actually shared, and the intra-page offset is
// added back into the returned address so dst sees the same byte at
// the same relative position src does. The mapping is always installed
// as borrowed in dst: dst never becomes the owner, and src keeps
// owning the frames exactly as before the call. writable requests
// write access for dst's mapping but can only narrow what src itself
// allows: a read-only source page is never widened to writable no
// matter what the caller asks for. src's own permissions are never
// changed.
//
// Both address spaces are locked in the canonical order
// proc.WithTwoProcesses enforces, so two processes calling
// MapSharedPages on each other concurrently cannot deadlock. The
// entire operation either fully succeeds or leaves both address
// spaces exactly as it found them: it never allocates a physical
// frame and never blocks, satisfying the budget and blocking
// constraints the syscall is specified under.
func MapSharedPages(k *proc.Kernel, srcPid, dstPid defs.Pid_t, srcVA uint64, npages int, writable bool) (dstVA uint64, errno defs.Err_t) {
	defer func() {
		if k.Audit != nil {
			ev := diag.AuditEvent{When: time.Now(), Op: diag.OpMap, SrcPid: srcPid, DstPid: dstPid, VA: dstVA, NPages: npages, Errno: errno}
			if errno != 0 {
				ev.Trace = caller.Dump(2)
			}
			k.Audit.Record(ev)
		}
	}()
	if npages <= 0 {
		return 0, -defs.EINVAL
	}
	pageVA := srcVA &^ (mem.PAGE - 1)
	offset := srcVA - pageVA

	src, ok := k.Procs.Find(srcPid)
	if !ok {
		return 0, -defs.ESRCH
	}
	dst, ok := k.Procs.Find(dstPid)
	if !ok {
		return 0, -defs.ESRCH
	}

	err := proc.WithTwoProcesses(src, dst, func() error {
		pas, srcWritable, e := collectFrames(src, pageVA, npages)
		if e != 0 {
			errno = e
			return errAbort
		}
		if !dst.AS.ReserveVMA() {
			errno = -defs.ENOMEM
			return errAbort
		}
		// Mirror src's permissions, never widen them: a read-only source
		// page stays read-only in dst regardless of what the caller asked
		// for, per §4.3's "permissions that are a subset of the source's".
		va, ierr := dst.AS.InstallBorrowedRange(srcPid, pas, writable && srcWritable)
		if ierr != nil {
			dst.AS.ReleaseVMA()
			errno = -defs.ENOMEM
			return errAbort
		}
		dstVA = va + offset

		size := int64(npages) * mem.PAGE
		src.Usage.MapOut(size)
		dst.Usage.MapIn(size, int64(npages))
		return nil
	})
	if err != nil && err != errAbort {
		return 0, -defs.EINVAL
	}
	if errno != 0 {
		return 0, errno
	}
	return dstVA, 0
}

// errAbort signals a clean, already-handled failure out of the
// WithTwoProcesses closure; it carries no information of its own, the
// errno out-parameter does.
var errAbort = &abortError{}

type abortError struct{}

func (*abortError) Error() string { return "shmem: aborted" }

// collectFrames reads npages contiguous, present leaf PTEs from src's
// page table starting at va and returns their frames together with the
// permission bits §4.3 step 2 requires recording: writable is false if
// any page in the range is read-only, so the caller can never widen a
// read-only source page when it installs the borrowed mapping. It
// performs no mutation: if any page in the range is not mapped or not
// user-accessible, it returns EFAULT and leaves src's page table
// untouched, exactly as a hardware page fault would report a bad
// address rather than silently skipping it.
func collectFrames(src *proc.Process, va uint64, npages int) (pas []mem.Pa_t, writable bool, errno defs.Err_t) {
	if uint64(npages)*mem.PAGE+va > src.AS.Sz {
		return nil, false, -defs.EFAULT
	}
	pas = make([]mem.Pa_t, 0, npages)
	writable = true
	for i := 0; i < npages; i++ {
		slot, err := pagetable.Walk(src.AS.Table, va+uint64(i)*mem.PAGE, false)
		if err != nil || *slot&pagetable.PTE_P == 0 || *slot&pagetable.PTE_U == 0 {
			return nil, false, -defs.EFAULT
		}
		pte := pagetable.Decode(*slot)
		writable = writable && pte.Writable
		pas = append(pas, pte.Frame)
	}
	return pas, writable, 0
}

// UnmapSharedPages removes npages starting at dstVA from dst's address
// space. Every page in the range must currently be a borrowed mapping;
// attempting to unmap a page dst owns outright (its own heap, or a
// range it never had shared into it) is rejected with EINVAL rather
// than silently freeing memory dst does not own the right to free.
//
// If the unmapped range sits exactly at the top of dst's heap, the
// heap top is shrunk back below it, mirroring GrowBy/ShrinkTo's LIFO
// discipline; otherwise the range is cleared in place, leaving a hole
// that a later map_shared_pages or sbrk cannot reuse without first
// shrinking past it. This asymmetry -- LIFO-only shrink, no general
// allocator over holes -- is carried over unchanged from the
// specification's own sbrk discipline rather than invented here.
func UnmapSharedPages(k *proc.Kernel, dstPid defs.Pid_t, dstVA uint64, npages int) (errno defs.Err_t) {
	defer func() {
		if k.Audit != nil {
			ev := diag.AuditEvent{When: time.Now(), Op: diag.OpUnmap, DstPid: dstPid, VA: dstVA, NPages: npages, Errno: errno}
			if errno != 0 {
				ev.Trace = caller.Dump(2)
			}
			k.Audit.Record(ev)
		}
	}()
	if npages <= 0 || dstVA%mem.PAGE != 0 {
		return -defs.EINVAL
	}
	dst, ok := k.Procs.Find(dstPid)
	if !ok {
		return -defs.ESRCH
	}

	dst.AS.Lock()
	defer dst.AS.Unlock()

	if dstVA+uint64(npages)*mem.PAGE > dst.AS.Sz {
		return -defs.EINVAL
	}
	for i := 0; i < npages; i++ {
		slot, err := pagetable.Walk(dst.AS.Table, dstVA+uint64(i)*mem.PAGE, false)
		if err != nil || *slot&pagetable.PTE_P == 0 || !pagetable.IsBorrowed(*slot) {
			return -defs.EINVAL
		}
	}

	pagetable.UvmUnmap(dst.AS.Table, dstVA, npages, nil)
	dst.AS.ReleaseVMA()
	dst.AS.ForgetShare(dstVA)

	top := dstVA + uint64(npages)*mem.PAGE
	if top == dst.AS.Sz {
		dst.AS.Sz = dstVA
	}

	dst.Usage.MapIn(0, -int64(npages))
	return 0
}
