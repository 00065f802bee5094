// Package kcall is the syscall boundary: the thin dispatch layer that
// binds a calling process's identity to the kernel and forwards to
// shmem or proc. Every operation here is a direct pass-through; none
// of the real logic lives in this package, mirroring the teacher's own
// sysproc.go being a thin shim over vm.Vm_t and proc.Proc_t. Errors
// are reported as defs.Err_t directly rather than folded into a
// sentinel -1 return; any C-style "-1 and errno" translation belongs
// to whatever trap handler would sit above this package, not to it.
package kcall

import (
	"tinyos/defs"
	"tinyos/proc"
	"tinyos/shmem"
	"tinyos/stat"
)

// Syscalls bundles a kernel reference with the calling process's
// identity, the way the teacher threads *Proc_t through every sys_*
// call via (&p.Sys).
type Syscalls struct {
	K  *proc.Kernel
	Me *proc.Process
}

// SysMapSharedPages maps npages from srcPid's address space, starting
// at srcVA, into the caller's own address space, returning the
// destination virtual address. Go returns the error out of band as a
// defs.Err_t rather than folding failure into a sentinel -1 return.
func (s *Syscalls) SysMapSharedPages(srcPid defs.Pid_t, srcVA uint64, npages int, writable bool) (uint64, defs.Err_t) {
	return shmem.MapSharedPages(s.K, srcPid, s.Me.Pid, srcVA, npages, writable)
}

// SysUnmapSharedPages removes npages starting at dstVA from the
// caller's own address space.
func (s *Syscalls) SysUnmapSharedPages(dstVA uint64, npages int) defs.Err_t {
	return shmem.UnmapSharedPages(s.K, s.Me.Pid, dstVA, npages)
}

// SysListShares reports every borrowed range currently installed in
// the caller's own address space, the diagnostic stat query
// stat.ShareStat_t exists for -- one entry per outstanding
// map_shared_pages call not yet undone by unmap_shared_pages.
func (s *Syscalls) SysListShares() []stat.ShareStat_t {
	s.Me.AS.Lock()
	records := s.Me.AS.Shares()
	s.Me.AS.Unlock()

	out := make([]stat.ShareStat_t, len(records))
	for i, r := range records {
		out[i].Wowner(uint64(r.Owner))
		out[i].Wmappee(uint64(s.Me.Pid))
		out[i].Wva(r.VA)
		out[i].Wsize(r.Size)
	}
	return out
}

// SysGetppid realizes C7 at the syscall boundary.
func (s *Syscalls) SysGetppid() defs.Pid_t {
	return s.Me.Getppid()
}

// SysGetpid returns the caller's own pid.
func (s *Syscalls) SysGetpid() defs.Pid_t {
	return s.K.Getpid(s.Me)
}

// SysFork creates a child of the caller.
func (s *Syscalls) SysFork() (defs.Pid_t, defs.Err_t) {
	return s.K.Fork(s.Me)
}

// SysExit tears down the caller with the given status.
func (s *Syscalls) SysExit(status int) {
	s.K.Exit(s.Me, status)
}

// SysWait blocks for the named child's exit and reaps it.
func (s *Syscalls) SysWait(pid defs.Pid_t) (int, defs.Err_t) {
	return s.K.Wait(pid)
}

// SysKill marks pid for cancellation.
func (s *Syscalls) SysKill(pid defs.Pid_t) defs.Err_t {
	return s.K.Kill(pid)
}

// SysSleep blocks the caller for n ticks or until killed.
func (s *Syscalls) SysSleep(n uint64) defs.Err_t {
	return s.K.Sleep(s.Me, n)
}

// SysUptime returns ticks elapsed since boot.
func (s *Syscalls) SysUptime() uint64 {
	return s.K.Uptime()
}

// SysSbrk grows or shrinks the caller's heap by n bytes.
func (s *Syscalls) SysSbrk(n int) (uint64, defs.Err_t) {
	return s.K.Sbrk(s.Me, n)
}
