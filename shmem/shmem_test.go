package shmem

import (
	"sync"
	"testing"
	"time"

	"tinyos/clock"
	"tinyos/defs"
	"tinyos/mem"
	"tinyos/pagetable"
	"tinyos/proc"
)

func timeAfter() <-chan time.Time { return time.After(2 * time.Second) }

func newTestKernel(t *testing.T, frames int) *proc.Kernel {
	t.Helper()
	pool, err := mem.NewPool(frames)
	if err != nil {
		t.Fatalf("NewPool: %v", err)
	}
	t.Cleanup(func() { pool.Close() })
	return proc.NewKernel(pool, clock.New())
}

func growAndWrite(t *testing.T, p *proc.Process, pool *mem.Pool, npages int, fill byte) {
	t.Helper()
	p.AS.Lock()
	defer p.AS.Unlock()
	if err := p.AS.GrowBy(npages); err != nil {
		t.Fatalf("GrowBy: %v", err)
	}
	for i := 0; i < npages; i++ {
		slot, err := pagetable.Walk(p.AS.Table, uint64(i)*mem.PAGE, false)
		if err != nil {
			t.Fatalf("walk: %v", err)
		}
		pool.Deref(pagetable.FrameOf(*slot)).Bytes()[0] = fill
	}
}

// Scenario: same physical frame observed through both address spaces
// after map_shared_pages, and a write through one is visible through
// the other -- the core testable property this whole subsystem exists
// to provide.
func TestMapSharedPagesSameUnderlyingFrame(t *testing.T) {
	k := newTestKernel(t, 16)
	src, _ := k.Procs.Create("src", 0)
	dst, _ := k.Procs.Create("dst", 0)
	growAndWrite(t, src, k.Pool, 2, 0x11)

	dstVA, errno := MapSharedPages(k, src.Pid, dst.Pid, 0, 2, true)
	if errno != 0 {
		t.Fatalf("MapSharedPages: %v", errno)
	}

	dst.AS.Lock()
	slot, err := pagetable.Walk(dst.AS.Table, dstVA, false)
	if err != nil {
		t.Fatalf("walk dst: %v", err)
	}
	frame := pagetable.FrameOf(*slot)
	if !pagetable.IsBorrowed(*slot) {
		t.Fatal("dst's mapping must be borrowed")
	}
	k.Pool.Deref(frame).Bytes()[1] = 0x22
	dst.AS.Unlock()

	src.AS.Lock()
	srcSlot, _ := pagetable.Walk(src.AS.Table, 0, false)
	srcFrame := pagetable.FrameOf(*srcSlot)
	if srcFrame != frame {
		t.Fatalf("src and dst disagree on the underlying frame: %d vs %d", srcFrame, frame)
	}
	if k.Pool.Deref(srcFrame).Bytes()[1] != 0x22 {
		t.Fatal("write through dst's mapping not visible through src")
	}
	src.AS.Unlock()
}

// Scenario: unmap_shared_pages never frees the underlying frame, since
// the unmapper never owned it.
func TestUnmapNeverFreesBorrowedFrame(t *testing.T) {
	k := newTestKernel(t, 16)
	src, _ := k.Procs.Create("src", 0)
	dst, _ := k.Procs.Create("dst", 0)
	growAndWrite(t, src, k.Pool, 1, 0x99)

	dstVA, errno := MapSharedPages(k, src.Pid, dst.Pid, 0, 1, true)
	if errno != 0 {
		t.Fatalf("MapSharedPages: %v", errno)
	}
	before := k.Pool.FreeCount()
	if errno := UnmapSharedPages(k, dst.Pid, dstVA, 1); errno != 0 {
		t.Fatalf("UnmapSharedPages: %v", errno)
	}
	if k.Pool.FreeCount() != before {
		t.Fatalf("unmap changed the free count: before=%d after=%d", before, k.Pool.FreeCount())
	}

	src.AS.Lock()
	slot, err := pagetable.Walk(src.AS.Table, 0, false)
	if err != nil || *slot&pagetable.PTE_P == 0 {
		t.Fatal("unmap on dst side must not disturb src's own mapping")
	}
	src.AS.Unlock()
}

// Scenario: unmapping a range that sits at the top of dst's heap
// shrinks Sz back down to the range's start.
func TestUnmapLIFOShrinksHeapTop(t *testing.T) {
	k := newTestKernel(t, 16)
	src, _ := k.Procs.Create("src", 0)
	dst, _ := k.Procs.Create("dst", 0)
	growAndWrite(t, src, k.Pool, 2, 0x01)

	dstVA, errno := MapSharedPages(k, src.Pid, dst.Pid, 0, 2, false)
	if errno != 0 {
		t.Fatalf("MapSharedPages: %v", errno)
	}
	if errno := UnmapSharedPages(k, dst.Pid, dstVA, 2); errno != 0 {
		t.Fatalf("UnmapSharedPages: %v", errno)
	}
	if dst.AS.Sz != dstVA {
		t.Fatalf("Sz after LIFO unmap = %d, want %d", dst.AS.Sz, dstVA)
	}
}

// Scenario: unmap_shared_pages refuses to touch a range dst owns
// outright rather than borrows.
func TestUnmapRejectsOwnedRange(t *testing.T) {
	k := newTestKernel(t, 8)
	dst, _ := k.Procs.Create("dst", 0)
	growAndWrite(t, dst, k.Pool, 1, 0x00)

	if errno := UnmapSharedPages(k, dst.Pid, 0, 1); errno != -defs.EINVAL {
		t.Fatalf("UnmapSharedPages on an owned page = %v, want EINVAL", errno)
	}
}

// Scenario: mapping an unmapped source range fails without touching
// either address space.
func TestMapSharedPagesRejectsUnmappedSource(t *testing.T) {
	k := newTestKernel(t, 8)
	src, _ := k.Procs.Create("src", 0)
	dst, _ := k.Procs.Create("dst", 0)

	szBefore := dst.AS.Sz
	if _, errno := MapSharedPages(k, src.Pid, dst.Pid, 0, 1, true); errno != -defs.EFAULT {
		t.Fatalf("MapSharedPages on unmapped src = %v, want EFAULT", errno)
	}
	if dst.AS.Sz != szBefore {
		t.Fatal("failed map must not grow dst's heap")
	}
}

// Scenario: a non-page-aligned srcVA still lands on the right byte in
// dst, per spec.md §4.3 step 5 -- the containing page is what gets
// shared, and the intra-page offset is carried into the returned
// address rather than silently rounded away.
func TestMapSharedPagesPreservesIntraPageOffset(t *testing.T) {
	k := newTestKernel(t, 16)
	src, _ := k.Procs.Create("src", 0)
	dst, _ := k.Procs.Create("dst", 0)
	growAndWrite(t, src, k.Pool, 1, 0x00)

	src.AS.Lock()
	slot, _ := pagetable.Walk(src.AS.Table, 0, false)
	k.Pool.Deref(pagetable.FrameOf(*slot)).Bytes()[200] = 0x5A
	src.AS.Unlock()

	dstVA, errno := MapSharedPages(k, src.Pid, dst.Pid, 200, 1, true)
	if errno != 0 {
		t.Fatalf("MapSharedPages: %v", errno)
	}
	if dstVA%mem.PAGE != 200 {
		t.Fatalf("dstVA = %d, want offset 200 within its page", dstVA%mem.PAGE)
	}

	dst.AS.Lock()
	dstSlot, err := pagetable.Walk(dst.AS.Table, dstVA&^(mem.PAGE-1), false)
	if err != nil {
		t.Fatalf("walk dst: %v", err)
	}
	if got := k.Pool.Deref(pagetable.FrameOf(*dstSlot)).Bytes()[200]; got != 0x5A {
		t.Fatalf("byte at shared offset = %#x, want 0x5a", got)
	}
	dst.AS.Unlock()
}

// Scenario: the owner-exits-first Open Question is resolved as a
// documented hazard, not a crash. Tearing down src while dst still
// borrows one of its frames returns the frame to the pool; dst's
// mapping is left dangling on purpose (no refcounting, per spec.md's
// Non-goals), so a subsequent read through it must not panic even
// though the data it observes is no longer src's.
func TestDanglingReadAfterOwnerTeardownDoesNotPanic(t *testing.T) {
	k := newTestKernel(t, 8)
	src, _ := k.Procs.Create("src", 0)
	dst, _ := k.Procs.Create("dst", 0)
	growAndWrite(t, src, k.Pool, 1, 0x7A)

	dstVA, errno := MapSharedPages(k, src.Pid, dst.Pid, 0, 1, false)
	if errno != 0 {
		t.Fatalf("MapSharedPages: %v", errno)
	}

	src.AS.Lock()
	src.AS.Teardown(k.Pool)
	src.AS.Unlock()

	dst.AS.Lock()
	defer dst.AS.Unlock()
	slot, err := pagetable.Walk(dst.AS.Table, dstVA, false)
	if err != nil || *slot&pagetable.PTE_P == 0 {
		t.Fatal("dst's borrowed PTE must survive src's teardown unchanged")
	}
	frame := pagetable.FrameOf(*slot)
	_ = k.Pool.Deref(frame).Bytes()[0] // must not panic: the frame is back on the free list, not unmapped
}

// Scenario: a failed call gets a caller trace attached to its audit
// entry; a successful one doesn't need one.
func TestAuditRecordsTraceOnlyOnFailure(t *testing.T) {
	k := newTestKernel(t, 8)
	k.EnableAudit(8)
	src, _ := k.Procs.Create("src", 0)
	dst, _ := k.Procs.Create("dst", 0)
	growAndWrite(t, src, k.Pool, 1, 0x01)

	if _, errno := MapSharedPages(k, src.Pid, dst.Pid, 0, 1, true); errno != 0 {
		t.Fatalf("MapSharedPages: %v", errno)
	}
	if _, errno := MapSharedPages(k, src.Pid, dst.Pid, mem.PAGE, 1, true); errno == 0 {
		t.Fatal("expected the second map, reading past src's heap, to fail")
	}

	events := k.Audit.Recent()
	if len(events) != 2 {
		t.Fatalf("got %d audit events, want 2", len(events))
	}
	if events[0].Trace != "" {
		t.Fatal("successful call should not carry a trace")
	}
	if events[1].Trace == "" {
		t.Fatal("failed call should carry a trace")
	}
}

// Scenario: a read-only source page must never be widened to writable
// in dst, even when the caller asks for writable=true -- §4.3's
// "permissions that are a subset of the source's" post-condition.
func TestMapSharedPagesNeverWidensReadOnlySource(t *testing.T) {
	k := newTestKernel(t, 8)
	src, _ := k.Procs.Create("src", 0)
	dst, _ := k.Procs.Create("dst", 0)

	pa, _, ok := k.Pool.AllocFrame()
	if !ok {
		t.Fatal("AllocFrame")
	}
	src.AS.Lock()
	if err := src.AS.InstallPageAt(0, pa, false, false); err != nil {
		t.Fatalf("InstallPageAt: %v", err)
	}
	src.AS.Sz = mem.PAGE
	src.AS.Unlock()

	dstVA, errno := MapSharedPages(k, src.Pid, dst.Pid, 0, 1, true)
	if errno != 0 {
		t.Fatalf("MapSharedPages: %v", errno)
	}

	dst.AS.Lock()
	defer dst.AS.Unlock()
	slot, err := pagetable.Walk(dst.AS.Table, dstVA, false)
	if err != nil {
		t.Fatalf("walk dst: %v", err)
	}
	if *slot&pagetable.PTE_W != 0 {
		t.Fatal("dst's mapping must stay read-only when src's page is read-only")
	}
}

// Scenario: a source page lacking PTE_U (not user-accessible) is
// treated the same as unmapped -- §4.3 step 2's accessibility check.
func TestMapSharedPagesRejectsNonUserSource(t *testing.T) {
	k := newTestKernel(t, 8)
	src, _ := k.Procs.Create("src", 0)
	dst, _ := k.Procs.Create("dst", 0)

	pa, _, ok := k.Pool.AllocFrame()
	if !ok {
		t.Fatal("AllocFrame")
	}
	src.AS.Lock()
	if err := pagetable.Mappages(src.AS.Table, 0, []mem.Pa_t{pa}, pagetable.PTE_W); err != nil {
		t.Fatalf("Mappages: %v", err)
	}
	src.AS.Sz = mem.PAGE
	src.AS.Unlock()

	if _, errno := MapSharedPages(k, src.Pid, dst.Pid, 0, 1, true); errno != -defs.EFAULT {
		t.Fatalf("MapSharedPages on a non-user page = %v, want EFAULT", errno)
	}
}

// Scenario: two processes mapping into each other concurrently must
// not deadlock, regardless of call order -- the reason for canonical
// lock ordering by process identity rather than by call argument
// position.
func TestConcurrentCrossMappingDoesNotDeadlock(t *testing.T) {
	k := newTestKernel(t, 64)
	a, _ := k.Procs.Create("a", 0)
	b, _ := k.Procs.Create("b", 0)
	growAndWrite(t, a, k.Pool, 1, 0xAA)
	growAndWrite(t, b, k.Pool, 1, 0xBB)

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		MapSharedPages(k, a.Pid, b.Pid, 0, 1, true)
	}()
	go func() {
		defer wg.Done()
		MapSharedPages(k, b.Pid, a.Pid, 0, 1, true)
	}()
	done := make(chan struct{})
	go func() { wg.Wait(); close(done) }()
	select {
	case <-done:
	case <-timeAfter():
		t.Fatal("concurrent cross mapping deadlocked")
	}
}
