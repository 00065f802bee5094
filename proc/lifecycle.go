package proc

import (
	"errors"

	"tinyos/addrspace"
	"tinyos/clock"
	"tinyos/defs"
	"tinyos/diag"
	"tinyos/limits"
	"tinyos/mem"
	"tinyos/pagetable"
	"tinyos/util"
)

var errOutOfFrames = errors.New("proc: out of frames copying address space on fork")

// Kernel bundles the collaborators the lifecycle operations need: the
// process table, the shared frame pool and a tick source. It is the
// thing kcall holds a reference to and dispatches syscalls against.
// Audit is nil unless a caller opts in with EnableAudit; when nil,
// shmem records nothing, keeping the audit trail entirely optional.
type Kernel struct {
	Procs *Table
	Pool  *mem.Pool
	Clock *clock.Clock
	Audit *diag.Audit
}

// EnableAudit attaches a bounded audit log to the kernel, retaining up
// to capacity recent map/unmap events.
func (k *Kernel) EnableAudit(capacity int) {
	k.Audit = diag.NewAudit(capacity)
}

// NewKernel wires a fresh process table, frame pool and clock together.
func NewKernel(pool *mem.Pool, clk *clock.Clock) *Kernel {
	return &Kernel{Procs: NewTable(pool, limits.DefaultUlimit), Pool: pool, Clock: clk}
}

// Fork duplicates parent into a new child process: every owning page
// below parent's heap top is copied into a freshly allocated frame,
// and every borrowed page is re-installed in the child as a new
// borrowed PTE over the very same frame the parent borrows -- the
// fork semantics SPEC_FULL.md's syscall section spells out, grounded
// on sysproc.c's sys_fork deferring entirely to the VM layer's copy.
func (k *Kernel) Fork(parent *Process) (defs.Pid_t, defs.Err_t) {
	child, errno := k.Procs.Create(parent.Name.String(), parent.Pid)
	if errno != 0 {
		return 0, errno
	}

	parent.AS.Lock()
	child.AS.Lock()
	err := copyAddressSpace(parent.AS, child.AS, k.Pool)
	child.AS.Unlock()
	parent.AS.Unlock()
	if err != nil {
		k.Procs.Remove(child.Pid)
		return 0, -defs.ENOMEM
	}
	return child.Pid, 0
}

// copyAddressSpace walks every page below parentAS.Sz and reproduces
// it in childAS: owning pages get a fresh frame and a byte-for-byte
// copy, borrowed pages get a new PTE over the same frame. Both locks
// are assumed held by the caller.
func copyAddressSpace(parentAS, childAS *addrspace.AddressSpace, pool *mem.Pool) error {
	npages := int(parentAS.Sz / mem.PAGE)
	for i := 0; i < npages; i++ {
		va := uint64(i) * mem.PAGE
		slot, err := pagetable.Walk(parentAS.Table, va, false)
		if err != nil || *slot&pagetable.PTE_P == 0 {
			continue
		}
		pte := pagetable.Decode(*slot)
		if pte.Borrowed {
			if err := childAS.InstallPageAt(va, pte.Frame, pte.Writable, true); err != nil {
				return err
			}
			continue
		}
		newPa, newFrame, ok := pool.AllocFrame()
		if !ok {
			return errOutOfFrames
		}
		copy(newFrame.Bytes(), pool.Deref(pte.Frame).Bytes())
		if err := childAS.InstallPageAt(va, newPa, pte.Writable, false); err != nil {
			pool.FreeFrame(newPa)
			return err
		}
	}
	childAS.Sz = parentAS.Sz
	return nil
}

// Exit tears down p's address space and wakes anyone blocked in Wait
// for it. It does not remove p from the table: Wait does that once a
// parent has reaped the exit status, matching the teacher's
// exit-then-wait-reaps two-step.
func (k *Kernel) Exit(p *Process, status int) {
	p.AS.Lock()
	p.AS.Teardown(k.Pool)
	p.AS.Unlock()

	p.exitStatus = status
	p.exited = true
	close(p.waitCh)
}

// Wait blocks until the child identified by pid has exited, then
// reaps it from the table and returns its exit status.
func (k *Kernel) Wait(pid defs.Pid_t) (int, defs.Err_t) {
	child, ok := k.Procs.Find(pid)
	if !ok {
		return 0, -defs.ESRCH
	}
	<-child.waitCh
	status := child.exitStatus
	k.Procs.Remove(pid)
	return status, 0
}

// Kill marks the target process's cancellation note, to be observed
// the next time it reaches a cooperative check point (e.g. Sleep).
func (k *Kernel) Kill(pid defs.Pid_t) defs.Err_t {
	p, ok := k.Procs.Find(pid)
	if !ok {
		return -defs.ESRCH
	}
	p.Note.Kill()
	return 0
}

// Sleep blocks the calling process for n ticks, or until it is killed.
func (k *Kernel) Sleep(p *Process, n uint64) defs.Err_t {
	return k.Clock.Sleep(n, p.Note.Killed)
}

// Uptime returns the number of ticks elapsed since boot.
func (k *Kernel) Uptime() uint64 {
	return k.Clock.Uptime()
}

// Getpid returns p's own pid.
func (k *Kernel) Getpid(p *Process) defs.Pid_t {
	return p.Pid
}

// Sbrk grows or shrinks p's heap by n bytes (n may be negative),
// returning the heap top as it was before the adjustment, matching
// the teacher's sbrk(2) return convention.
func (k *Kernel) Sbrk(p *Process, n int) (uint64, defs.Err_t) {
	p.AS.Lock()
	defer p.AS.Unlock()

	old := p.AS.Sz
	switch {
	case n > 0:
		npages := util.Roundup(n, mem.PAGE) / mem.PAGE
		if err := p.AS.GrowBy(npages); err != nil {
			return 0, -defs.ENOMEM
		}
	case n < 0:
		shrink := uint64(-n)
		if shrink > old {
			return 0, -defs.EINVAL
		}
		newsz := util.Rounddown(old-shrink, uint64(mem.PAGE))
		if err := p.AS.ShrinkTo(newsz); err != nil {
			return 0, -defs.EINVAL
		}
	}
	p.Usage.SetOwnedPages(int64(p.AS.Sz / mem.PAGE))
	return old, 0
}
