package proc

import (
	"sync"

	"tinyos/addrspace"
	"tinyos/defs"
	"tinyos/hashtable"
	"tinyos/limits"
	"tinyos/mem"
)

// Table is the system-wide process table, grounded on the
// justanotherdot-biscuit fork's allprocs/proclock/pid_cur globals:
// a lock guarding pid assignment plus a lookup structure, here a
// hashtable.Table instead of a raw map so lookups stay lock-striped
// per bucket rather than serialized behind one table-wide mutex.
type Table struct {
	mu      sync.Mutex
	procs   *hashtable.Table[int, *Process]
	nextPid int

	pool  *mem.Pool
	limit limits.Ulimit_t
}

// NewTable returns an empty process table whose processes allocate
// frames from pool and inherit limit as their default ulimit.
func NewTable(pool *mem.Pool, limit limits.Ulimit_t) *Table {
	return &Table{
		procs:   hashtable.NewInt[*Process](64),
		nextPid: 1,
		pool:    pool,
		limit:   limit,
	}
}

// Create allocates a new process with a fresh address space and pid,
// parented under ppid, and inserts it into the table.
func (t *Table) Create(name string, ppid defs.Pid_t) (*Process, defs.Err_t) {
	t.mu.Lock()
	if t.nextPid >= limits.Syslimit.Sysprocs {
		t.mu.Unlock()
		return nil, -defs.ENOMEM
	}
	pid := defs.Pid_t(t.nextPid)
	t.nextPid++
	t.mu.Unlock()

	p := newProcess(name, addrspace.New(t.pool, t.limit))
	p.Pid = pid
	p.PPid = ppid
	t.procs.Set(int(pid), p)
	return p, 0
}

// Find looks up a process by pid.
func (t *Table) Find(pid defs.Pid_t) (*Process, bool) {
	return t.procs.Get(int(pid))
}

// Remove deletes a process from the table, called once its exit has
// been reaped by Wait.
func (t *Table) Remove(pid defs.Pid_t) {
	t.procs.Del(int(pid))
}

// Children returns every live process whose PPid is pid.
func (t *Table) Children(pid defs.Pid_t) []*Process {
	var out []*Process
	for _, pair := range t.procs.Elems() {
		if pair.Val.PPid == pid {
			out = append(out, pair.Val)
		}
	}
	return out
}
