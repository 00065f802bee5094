// Package proc implements the process-table collaborator (C6's
// partner) and the process lifecycle operations spec.md's ambient
// stack names: fork/exit/wait/kill/sleep/uptime/getpid/sbrk, plus
// getppid (C7). It is grounded on the teacher's proc_t-and-allprocs
// shape, realized through hashtable.Table instead of a raw slice.
package proc

import (
	"tinyos/accnt"
	"tinyos/addrspace"
	"tinyos/defs"
	"tinyos/tinfo"
	"tinyos/ustr"
)

// Process is one schedulable unit: an address space, a name, and the
// bookkeeping needed for wait()/kill()/accounting.
type Process struct {
	Pid  defs.Pid_t
	PPid defs.Pid_t
	Name ustr.Ustr

	AS    *addrspace.AddressSpace
	Note  tinfo.Note
	Usage accnt.Usage

	exitStatus int
	exited     bool
	waitCh     chan struct{}
}

// newProcess constructs a process with its address space and wait
// channel ready; Pid is assigned by Table.Create.
func newProcess(name string, as *addrspace.AddressSpace) *Process {
	return &Process{
		Name:   ustr.MkUstr(name),
		AS:     as,
		waitCh: make(chan struct{}),
	}
}

// Getppid returns the parent pid, realizing C7: a pure accessor over
// process-table state, requiring no lock beyond the field being
// write-once in Table.Create.
func (p *Process) Getppid() defs.Pid_t {
	return p.PPid
}
