package pagetable

import (
	"errors"

	"tinyos/mem"
)

// ErrNoEntry is returned by Walk when alloc is false and no leaf entry
// exists yet for the requested address.
var ErrNoEntry = errors.New("pagetable: no entry and alloc not requested")

// levels is the depth of the radix tree: 4 levels of 9 bits each,
// matching the x86-64 PML4/PDPT/PD/PT layout the teacher's Pmap_t
// walks, after the 12-bit page offset.
const levels = 4
const bitsPerLevel = 9
const entriesPerLevel = 1 << bitsPerLevel

// node is one level of the radix tree. Intermediate nodes use children;
// the bottom level uses ptes. A node never mixes the two roles.
type node struct {
	children [entriesPerLevel]*node
	ptes     [entriesPerLevel]uint64
}

// Table is a 4-level page table, structurally the same tree as the
// teacher's recursive Pmap_t chain but expressed as linked Go nodes
// instead of physical frames, since intermediate page-table pages are
// kernel-private bookkeeping, not data subject to the owning/borrowed
// distinction this subsystem tracks.
type Table struct {
	root *node
}

// New returns an empty page table.
func New() *Table {
	return &Table{root: &node{}}
}

func indices(va uint64) [levels]int {
	vpn := va >> mem.PGSHIFT
	var idx [levels]int
	for l := 0; l < levels; l++ {
		shift := uint(bitsPerLevel * (levels - 1 - l))
		idx[l] = int((vpn >> shift) & (entriesPerLevel - 1))
	}
	return idx
}

// Walk returns a pointer to the raw leaf PTE word for va, allocating
// intermediate levels on demand when alloc is true. The returned
// pointer aliases the table's storage; callers read and write it
// directly, exactly as the teacher's walk returns *Pa_t into a Pmap_t.
func Walk(t *Table, va uint64, alloc bool) (*uint64, error) {
	idx := indices(va)
	n := t.root
	for l := 0; l < levels-1; l++ {
		child := n.children[idx[l]]
		if child == nil {
			if !alloc {
				return nil, ErrNoEntry
			}
			child = &node{}
			n.children[idx[l]] = child
		}
		n = child
	}
	return &n.ptes[idx[levels-1]], nil
}

// Mappages installs n contiguous leaf PTEs starting at va, one per
// frame in pas, with the given flag bits (PTE_P is added automatically).
// If an intermediate allocation fails partway through, Mappages rolls
// back every PTE it already installed and returns the error, leaving
// the table exactly as it found it -- the same all-or-nothing splice
// contract map_shared_pages itself must provide.
func Mappages(t *Table, va uint64, pas []mem.Pa_t, flags uint64) error {
	installed := make([]uint64, 0, len(pas))
	for i, pa := range pas {
		slot, err := Walk(t, va+uint64(i)*mem.PAGE, true)
		if err != nil {
			for j := range installed {
				p, _ := Walk(t, installed[j], false)
				*p = 0
			}
			return err
		}
		*slot = (uint64(pa) << pteFlagBits) | flags | PTE_P
		installed = append(installed, va+uint64(i)*mem.PAGE)
	}
	return nil
}

// UvmUnmap clears n contiguous leaf PTEs starting at va. For each
// present, non-borrowed entry it calls free on the underlying frame;
// borrowed entries are cleared but never freed, which is exactly the
// owning/borrowed dispatch spec.md §4.4 requires of teardown.
func UvmUnmap(t *Table, va uint64, n int, free func(mem.Pa_t)) {
	for i := 0; i < n; i++ {
		slot, err := Walk(t, va+uint64(i)*mem.PAGE, false)
		if err != nil {
			continue
		}
		raw := *slot
		if raw&PTE_P == 0 {
			continue
		}
		*slot = 0
		if free != nil && !IsBorrowed(raw) {
			free(FrameOf(raw))
		}
	}
}
