// Package mem implements the physical-frame allocator collaborator:
// alloc_frame/free_frame from spec.md's out-of-scope list, realized
// concretely so the rest of the subsystem has real memory to work
// with. Frames are backed by real anonymous shared OS pages
// (golang.org/x/sys/unix.Mmap with MAP_SHARED) so that two frame
// handles referencing the same underlying page are, provably, the same
// physical memory -- exactly the property map_shared_pages must
// establish between a source and destination PTE.
package mem

import (
	"fmt"
	"sync"

	"golang.org/x/sys/unix"
)

// PGSHIFT is the base-2 exponent of the page size.
const PGSHIFT = 12

// PAGE is the size of a single frame in bytes.
const PAGE = 1 << PGSHIFT

// Pa_t is a frame identifier: an index into the pool's frame table,
// not a raw pointer. This is the "index-into-arena instead of pointer
// arithmetic on raw PTE memory" re-architecture from spec.md §9.
type Pa_t uint64

// Frame is one page-sized block of physical memory.
type Frame struct {
	bytes []byte
}

// Bytes returns the frame's backing storage. Writes through one
// Frame's Bytes and reads through another Frame's Bytes observe the
// same memory iff both Frame values were obtained from the same Pa_t.
func (f *Frame) Bytes() []byte { return f.bytes }

type slot struct {
	frame     *Frame
	allocated bool
}

// Pool is the frame allocator. It deliberately does not refcount
// frames across sharers (spec.md's Non-goals rule that out); a frame
// is either on the free list or allocated to exactly one owner, and
// the "owning vs. borrowed" distinction lives in the PTE, not here.
type Pool struct {
	mu    sync.Mutex
	slots []slot
	free  []Pa_t
}

// NewPool allocates a pool of n frames, each backed by a real
// anonymous shared mmap region.
func NewPool(n int) (*Pool, error) {
	p := &Pool{slots: make([]slot, n), free: make([]Pa_t, 0, n)}
	for i := 0; i < n; i++ {
		b, err := unix.Mmap(-1, 0, PAGE, unix.PROT_READ|unix.PROT_WRITE,
			unix.MAP_SHARED|unix.MAP_ANON)
		if err != nil {
			p.Close()
			return nil, fmt.Errorf("mem: mmap frame %d: %w", i, err)
		}
		p.slots[i] = slot{frame: &Frame{bytes: b}}
		p.free = append(p.free, Pa_t(i))
	}
	return p, nil
}

// Close unmaps every frame the pool owns. Call only after every
// address space using the pool has torn down.
func (p *Pool) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	var first error
	for i := range p.slots {
		if p.slots[i].frame == nil {
			continue
		}
		if err := unix.Munmap(p.slots[i].frame.bytes); err != nil && first == nil {
			first = err
		}
		p.slots[i].frame = nil
	}
	return first
}

// AllocFrame returns a fresh, zeroed frame, or ok=false if the pool is
// exhausted. It never blocks, per spec.md §5's "must not call the page
// allocator in a way that could block".
func (p *Pool) AllocFrame() (Pa_t, *Frame, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if len(p.free) == 0 {
		return 0, nil, false
	}
	n := len(p.free) - 1
	pa := p.free[n]
	p.free = p.free[:n]
	s := &p.slots[pa]
	if s.allocated {
		panic("mem: free list held an allocated frame")
	}
	s.allocated = true
	for i := range s.frame.bytes {
		s.frame.bytes[i] = 0
	}
	return pa, s.frame, true
}

// FreeFrame returns pa to the free list. It panics on a double free,
// which is exactly the universal invariant spec.md §8 requires callers
// to never trigger: "the frame allocator's free list contains each
// frame at most once."
func (p *Pool) FreeFrame(pa Pa_t) {
	p.mu.Lock()
	defer p.mu.Unlock()
	s := &p.slots[pa]
	if !s.allocated {
		panic(fmt.Sprintf("mem: double free of frame %d", pa))
	}
	s.allocated = false
	p.free = append(p.free, pa)
}

// Deref returns the Frame for a physical address, for use by the page
// table walker and by test code reading/writing "physical" memory.
func (p *Pool) Deref(pa Pa_t) *Frame {
	return p.slots[pa].frame
}

// FreeCount reports the number of frames currently on the free list,
// used by tests asserting that map_shared_pages never allocates.
func (p *Pool) FreeCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.free)
}
