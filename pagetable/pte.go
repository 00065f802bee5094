// Package pagetable implements the page-table walk/splice protocol:
// the PTE descriptor (C1) and the low-level walker spec.md names as an
// out-of-scope external collaborator (walk/mappages/uvmunmap), realized
// here as a concrete 4-level radix structure so the rest of the
// subsystem has something real to splice into.
package pagetable

import "tinyos/mem"

// Leaf PTE bit layout. PTE_BORROWED occupies the first bit of the
// software-reserved range (bits 9-11 on x86-64, immediately above the
// hardware-interpreted PTE_G at bit 8), disjoint from every
// hardware-interpreted bit below it and from the address bits above
// PGSHIFT -- this is the invariant §4.1 requires of the chosen bit.
const (
	PTE_P        uint64 = 1 << 0 // present
	PTE_W        uint64 = 1 << 1 // writable
	PTE_U        uint64 = 1 << 2 // user-accessible
	PTE_X        uint64 = 1 << 3 // executable
	PTE_G        uint64 = 1 << 8 // global
	PTE_BORROWED uint64 = 1 << 9 // software: frame not owned by this address space

	pteFlagBits = 12 // low 12 bits of the word are offset/flags, not address
)

// PTE is the decoded view of one leaf page-table entry.
type PTE struct {
	Frame      mem.Pa_t
	Present    bool
	User       bool
	Readable   bool
	Writable   bool
	Executable bool
	Borrowed   bool
}

// Decode interprets a raw hardware PTE word.
func Decode(raw uint64) PTE {
	return PTE{
		Frame:      mem.Pa_t(raw >> pteFlagBits),
		Present:    raw&PTE_P != 0,
		User:       raw&PTE_U != 0,
		Readable:   raw&PTE_P != 0,
		Writable:   raw&PTE_W != 0,
		Executable: raw&PTE_X != 0,
		Borrowed:   raw&PTE_BORROWED != 0,
	}
}

// Encode packs a PTE back into its raw hardware word.
func Encode(p PTE) uint64 {
	var raw uint64
	raw |= uint64(p.Frame) << pteFlagBits
	if p.Present {
		raw |= PTE_P
	}
	if p.User {
		raw |= PTE_U
	}
	if p.Writable {
		raw |= PTE_W
	}
	if p.Executable {
		raw |= PTE_X
	}
	if p.Borrowed {
		raw |= PTE_BORROWED
	}
	return raw
}

// IsBorrowed reads the software-reserved borrowed bit directly from a
// raw word, without a full Decode.
func IsBorrowed(raw uint64) bool {
	return raw&PTE_BORROWED != 0
}

// SetBorrowed returns raw with the borrowed bit set.
func SetBorrowed(raw uint64) uint64 {
	return raw | PTE_BORROWED
}

// ClearBorrowed returns raw with the borrowed bit cleared.
func ClearBorrowed(raw uint64) uint64 {
	return raw &^ PTE_BORROWED
}

// FrameOf extracts the frame identifier from a raw word.
func FrameOf(raw uint64) mem.Pa_t {
	return mem.Pa_t(raw >> pteFlagBits)
}
