// Package stat provides diagnostic stat-like structures. ShareStat_t
// mirrors the teacher's Stat_t field/setter/Bytes convention, applied
// to a shared-memory region instead of a file.
package stat

import "unsafe"

// ShareStat_t describes one outstanding shared mapping, as reported by
// a diagnostic query over the syscall layer.
type ShareStat_t struct {
	_owner  uint64 // owning pid
	_mappee uint64 // borrowing pid
	_va     uint64 // mappee-side virtual address
	_size   uint64 // size in bytes
}

func (st *ShareStat_t) Wowner(v uint64)  { st._owner = v }
func (st *ShareStat_t) Wmappee(v uint64) { st._mappee = v }
func (st *ShareStat_t) Wva(v uint64)     { st._va = v }
func (st *ShareStat_t) Wsize(v uint64)   { st._size = v }

func (st *ShareStat_t) Owner() uint64  { return st._owner }
func (st *ShareStat_t) Mappee() uint64 { return st._mappee }
func (st *ShareStat_t) Va() uint64     { return st._va }
func (st *ShareStat_t) Size() uint64   { return st._size }

// Bytes exposes the raw bytes of the structure, as the teacher's
// Stat_t does for copying to user space.
func (st *ShareStat_t) Bytes() []uint8 {
	const sz = unsafe.Sizeof(*st)
	sl := (*[sz]uint8)(unsafe.Pointer(&st._owner))
	return sl[:]
}
