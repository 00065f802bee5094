// Package integration drives end-to-end scenarios against the whole
// stack (proc, shmem, kcall) from a small line-oriented script
// language, the way the teacher's own test fixtures script a sequence
// of syscalls rather than calling package internals directly. Scripts
// are stored as golang.org/x/tools/txtar archives so a scenario and
// its expected-output commentary travel together in one fixture file.
package integration

import (
	"fmt"
	"strconv"
	"strings"

	"tinyos/clock"
	"tinyos/kcall"
	"tinyos/mem"
	"tinyos/proc"
)

// Runner executes a scripted scenario against a fresh kernel.
type Runner struct {
	K       *proc.Kernel
	procs   map[string]*proc.Process
	symVA   map[string]uint64
	symDst  map[string]string // sym -> name of the process the mapping was installed in
	Reports []string
}

// NewRunner builds a kernel backed by a pool of the given frame count.
func NewRunner(frames int) (*Runner, error) {
	pool, err := mem.NewPool(frames)
	if err != nil {
		return nil, err
	}
	k := proc.NewKernel(pool, clock.New())
	k.EnableAudit(64)
	return &Runner{K: k, procs: map[string]*proc.Process{}, symVA: map[string]uint64{}, symDst: map[string]string{}}, nil
}

// Close releases the runner's frame pool.
func (r *Runner) Close() error {
	return r.K.Pool.Close()
}

func (r *Runner) syscalls(name string) (*kcall.Syscalls, error) {
	p, ok := r.procs[name]
	if !ok {
		return nil, fmt.Errorf("integration: unknown process %q", name)
	}
	return &kcall.Syscalls{K: r.K, Me: p}, nil
}

// Run executes every non-blank, non-comment line of script in order.
func (r *Runner) Run(script string) error {
	for lineno, line := range strings.Split(script, "\n") {
		line = strings.TrimSpace(line)
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		if err := r.step(strings.Fields(line)); err != nil {
			return fmt.Errorf("integration: line %d (%q): %w", lineno+1, line, err)
		}
	}
	return nil
}

func (r *Runner) step(f []string) error {
	switch f[0] {
	case "create":
		p, errno := r.K.Procs.Create(f[1], 0)
		if errno != 0 {
			return fmt.Errorf("create: %v", errno)
		}
		r.procs[f[1]] = p
		return nil

	case "fork":
		sys, err := r.syscalls(f[1])
		if err != nil {
			return err
		}
		childPid, errno := sys.SysFork()
		if errno != 0 {
			return fmt.Errorf("fork: %v", errno)
		}
		child, _ := r.K.Procs.Find(childPid)
		r.procs[f[3]] = child // f == [fork parent as childname]
		return nil

	case "sbrk":
		sys, err := r.syscalls(f[1])
		if err != nil {
			return err
		}
		n, _ := strconv.Atoi(f[2])
		if _, errno := sys.SysSbrk(n); errno != 0 {
			return fmt.Errorf("sbrk: %v", errno)
		}
		return nil

	case "poke":
		p, ok := r.procs[f[1]]
		if !ok {
			return fmt.Errorf("poke: unknown process %q", f[1])
		}
		page, _ := strconv.Atoi(f[2])
		val, _ := strconv.ParseUint(f[3], 0, 8)
		return pokeOwning(r.K, p, uint64(page)*mem.PAGE, byte(val))

	case "map":
		// map <src> <dst> <srcPage> <npages> <rw|ro> as <sym>
		dstSys, err := r.syscalls(f[2]) // dst issues the syscall: it's the caller receiving the mapping
		if err != nil {
			return err
		}
		src, ok := r.procs[f[1]]
		if !ok {
			return fmt.Errorf("map: unknown process %q", f[1])
		}
		srcPage, _ := strconv.Atoi(f[3])
		npages, _ := strconv.Atoi(f[4])
		writable := f[5] == "rw"
		va, errno := dstSys.SysMapSharedPages(src.Pid, uint64(srcPage)*mem.PAGE, npages, writable)
		if errno != 0 {
			return fmt.Errorf("map: %v", errno)
		}
		if len(f) >= 8 && f[6] == "as" {
			r.symVA[f[7]] = va
			r.symDst[f[7]] = f[2]
		}
		return nil

	case "unmap":
		// unmap <dst> <sym> <npages>
		sys, err := r.syscalls(f[1])
		if err != nil {
			return err
		}
		va, ok := r.symVA[f[2]]
		if !ok {
			return fmt.Errorf("unmap: unknown symbol %q", f[2])
		}
		npages, _ := strconv.Atoi(f[3])
		if errno := sys.SysUnmapSharedPages(va, npages); errno != 0 {
			return fmt.Errorf("unmap: %v", errno)
		}
		return nil

	case "expect":
		// expect <dst> <sym> <pageOffset> <byteVal>
		p, ok := r.procs[f[1]]
		if !ok {
			return fmt.Errorf("expect: unknown process %q", f[1])
		}
		va, ok := r.symVA[f[2]]
		if !ok {
			return fmt.Errorf("expect: unknown symbol %q", f[2])
		}
		off, _ := strconv.Atoi(f[3])
		want, _ := strconv.ParseUint(f[4], 0, 8)
		got, err := readOwning(r.K, p, va+uint64(off)*mem.PAGE)
		if err != nil {
			return err
		}
		if got != byte(want) {
			return fmt.Errorf("expect: got %#x want %#x", got, want)
		}
		return nil

	case "exit":
		p, ok := r.procs[f[1]]
		if !ok {
			return fmt.Errorf("exit: unknown process %q", f[1])
		}
		status, _ := strconv.Atoi(f[2])
		r.K.Exit(p, status)
		return nil

	case "wait":
		sys, err := r.syscalls(f[1])
		if err != nil {
			return err
		}
		child, ok := r.procs[f[2]]
		if !ok {
			return fmt.Errorf("wait: unknown process %q", f[2])
		}
		if _, errno := sys.SysWait(child.Pid); errno != 0 {
			return fmt.Errorf("wait: %v", errno)
		}
		return nil

	case "report":
		r.Reports = append(r.Reports, r.report())
		return nil

	default:
		return fmt.Errorf("unknown command %q", f[0])
	}
}

func (r *Runner) report() string {
	var b strings.Builder
	for name, p := range r.procs {
		u := p.Usage.Snapshot()
		fmt.Fprintf(&b, "%s: owned=%d borrowed=%d\n", name, u.OwnedPages, u.BorrowedPages)
	}
	return b.String()
}
