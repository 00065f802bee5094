package integration

import (
	"fmt"

	"tinyos/pagetable"
	"tinyos/proc"
)

// pokeOwning writes val to the first byte of the frame backing va in
// p's address space, used by scenario scripts to seed data before a
// map_shared_pages call.
func pokeOwning(k *proc.Kernel, p *proc.Process, va uint64, val byte) error {
	p.AS.Lock()
	defer p.AS.Unlock()
	slot, err := pagetable.Walk(p.AS.Table, va, false)
	if err != nil || *slot&pagetable.PTE_P == 0 {
		return fmt.Errorf("poke: %#x not mapped", va)
	}
	k.Pool.Deref(pagetable.FrameOf(*slot)).Bytes()[0] = val
	return nil
}

// readOwning reads the first byte of the frame backing va in p's
// address space, whether p owns it or merely borrows it.
func readOwning(k *proc.Kernel, p *proc.Process, va uint64) (byte, error) {
	p.AS.Lock()
	defer p.AS.Unlock()
	slot, err := pagetable.Walk(p.AS.Table, va, false)
	if err != nil || *slot&pagetable.PTE_P == 0 {
		return 0, fmt.Errorf("peek: %#x not mapped", va)
	}
	return k.Pool.Deref(pagetable.FrameOf(*slot)).Bytes()[0], nil
}
