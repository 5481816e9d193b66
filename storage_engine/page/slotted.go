package page

import "github.com/shadowash0215/daemonsql/storage_engine/dberrors"

// Slotted page binary layout: the slot directory grows forward from the
// header end, tuple bodies grow backward from the page end.
//
//	0   4  prevPageID       int32
//	4   4  nextPageID       int32
//	8   2  freeSpacePointer uint16 — lowest offset currently used by tuple data
//	10  2  tupleCount       uint16 — total slot entries (live + tombstoned + empty)
//	12     slot directory, growing forward, SlotHeaderSize bytes each
const (
	slottedOffPrevPageID = 0
	slottedOffNextPageID = 4
	slottedOffFreePtr    = 8
	slottedOffTupleCount = 10

	// SlottedHeaderSize is the fixed page header size.
	SlottedHeaderSize = 12

	// SlotHeaderSize is one slot directory entry: offset(2) + size(2) + flags(1).
	SlotHeaderSize = 5

	slotFlagTombstone = 1 << 0
)

// RowID identifies a physical tuple location: (page id, slot number).
type RowID struct {
	PageID ID
	Slot   uint16
}

// InitSlottedPage stamps a fresh header into raw.
func InitSlottedPage(raw *Raw, prev ID) {
	raw.Zero()
	raw.PutInt32(slottedOffPrevPageID, int32(prev))
	raw.PutInt32(slottedOffNextPageID, int32(InvalidID))
	raw.PutUint16(slottedOffFreePtr, uint16(Size))
	raw.PutUint16(slottedOffTupleCount, 0)
}

func PrevPageID(raw *Raw) ID    { return ID(raw.Int32(slottedOffPrevPageID)) }
func SetPrevPageID(raw *Raw, id ID) { raw.PutInt32(slottedOffPrevPageID, int32(id)) }
func NextPageID(raw *Raw) ID    { return ID(raw.Int32(slottedOffNextPageID)) }
func SetNextPageID(raw *Raw, id ID) { raw.PutInt32(slottedOffNextPageID, int32(id)) }

func freeSpacePointer(raw *Raw) uint16     { return raw.Uint16(slottedOffFreePtr) }
func setFreeSpacePointer(raw *Raw, v uint16) { raw.PutUint16(slottedOffFreePtr, v) }

func TupleCount(raw *Raw) uint16 { return raw.Uint16(slottedOffTupleCount) }
func setTupleCount(raw *Raw, v uint16) { raw.PutUint16(slottedOffTupleCount, v) }

func slotOffset(i uint16) int { return SlottedHeaderSize + int(i)*SlotHeaderSize }

func readSlot(raw *Raw, i uint16) (offset, size uint16, tombstone bool) {
	base := slotOffset(i)
	offset = raw.Uint16(base)
	size = raw.Uint16(base + 2)
	tombstone = raw.buf[base+4]&slotFlagTombstone != 0
	return
}

func writeSlot(raw *Raw, i uint16, offset, size uint16, tombstone bool) {
	base := slotOffset(i)
	raw.PutUint16(base, offset)
	raw.PutUint16(base+2, size)
	flags := byte(0)
	if tombstone {
		flags |= slotFlagTombstone
	}
	raw.buf[base+4] = flags
}

// FreeSpace returns the number of unused bytes strictly between the slot
// directory's end and the lowest tuple body's start.
func FreeSpace(raw *Raw) int {
	slotDirEnd := slotOffset(TupleCount(raw))
	return int(freeSpacePointer(raw)) - slotDirEnd
}

// InsertTuple appends data to the page, reusing an empty (ApplyDelete'd)
// slot's directory entry when one exists; tombstoned slots are not reused.
// Returns the slot number, or an error if there is not enough contiguous
// free space.
func InsertTuple(raw *Raw, data []byte) (uint16, error) {
	need := len(data)
	count := TupleCount(raw)

	reuse := count
	for i := uint16(0); i < count; i++ {
		_, size, tombstone := readSlot(raw, i)
		if size == 0 && !tombstone {
			reuse = i
			break
		}
	}

	extraForNewSlot := 0
	if reuse == count {
		extraForNewSlot = SlotHeaderSize
	}
	if FreeSpace(raw) < need+extraForNewSlot {
		return 0, dberrors.New(dberrors.Failed, "slotted page: need %d bytes, have %d", need+extraForNewSlot, FreeSpace(raw))
	}

	newFree := freeSpacePointer(raw) - uint16(need)
	raw.PutBytes(int(newFree), data)
	setFreeSpacePointer(raw, newFree)
	writeSlot(raw, reuse, newFree, uint16(need), false)

	if reuse == count {
		setTupleCount(raw, count+1)
	}
	return reuse, nil
}

// GetTuple returns a copy of the live tuple at slot, or NotExist if the
// slot is empty or tombstoned.
func GetTuple(raw *Raw, slot uint16) ([]byte, error) {
	if slot >= TupleCount(raw) {
		return nil, dberrors.New(dberrors.NotExist, "slot %d out of range", slot)
	}
	offset, size, tombstone := readSlot(raw, slot)
	if size == 0 || tombstone {
		return nil, dberrors.New(dberrors.NotExist, "slot %d not live", slot)
	}
	out := make([]byte, size)
	copy(out, raw.Slice(int(offset), int(size)))
	return out, nil
}

// MarkDelete tombstones a live slot in place.
func MarkDelete(raw *Raw, slot uint16) error {
	if slot >= TupleCount(raw) {
		return dberrors.New(dberrors.NotExist, "slot %d out of range", slot)
	}
	offset, size, tombstone := readSlot(raw, slot)
	if size == 0 || tombstone {
		return dberrors.New(dberrors.NotExist, "slot %d not live", slot)
	}
	writeSlot(raw, slot, offset, size, true)
	return nil
}

// RollbackDelete un-tombstones a previously MarkDelete'd slot.
func RollbackDelete(raw *Raw, slot uint16) error {
	if slot >= TupleCount(raw) {
		return dberrors.New(dberrors.NotExist, "slot %d out of range", slot)
	}
	offset, size, tombstone := readSlot(raw, slot)
	if !tombstone {
		return dberrors.New(dberrors.Failed, "slot %d is not marked deleted", slot)
	}
	writeSlot(raw, slot, offset, size, false)
	return nil
}

// ApplyDelete finalizes a MarkDelete'd slot, freeing its directory entry
// for reuse. The tuple bytes themselves are not reclaimed here:
// InsertTuple always takes new space from the free-space pointer, and only
// an UpdateTuple that needs the room packs the page's tuple bodies.
func ApplyDelete(raw *Raw, slot uint16) error {
	if slot >= TupleCount(raw) {
		return dberrors.New(dberrors.NotExist, "slot %d out of range", slot)
	}
	_, size, tombstone := readSlot(raw, slot)
	if size == 0 || !tombstone {
		return dberrors.New(dberrors.Failed, "slot %d is not marked deleted", slot)
	}
	writeSlot(raw, slot, 0, 0, false)
	return nil
}

// UpdateTuple overwrites the tuple at slot in place if newData fits within
// the slot's currently allocated size, or within that size plus the page's
// free space (in which case the tuple is relocated into the free-space
// region and the slot's offset/size updated). Otherwise it returns false
// and the caller must delete-and-reinsert on a page with enough room.
func UpdateTuple(raw *Raw, slot uint16, newData []byte) (bool, error) {
	if slot >= TupleCount(raw) {
		return false, dberrors.New(dberrors.NotExist, "slot %d out of range", slot)
	}
	offset, size, tombstone := readSlot(raw, slot)
	if size == 0 || tombstone {
		return false, dberrors.New(dberrors.NotExist, "slot %d not live", slot)
	}
	need := uint16(len(newData))
	if need <= size {
		raw.PutBytes(int(offset), newData)
		writeSlot(raw, slot, offset, need, false)
		return true, nil
	}
	if int(need-size) > FreeSpace(raw) {
		return false, nil
	}
	if int(need) > FreeSpace(raw) {
		// Reclaim dead bytes: pack every other slot's body against the page end.
		var packed [Size]byte
		end := Size
		for i := uint16(0); i < TupleCount(raw); i++ {
			off, sz, tomb := readSlot(raw, i)
			if i != slot && sz > 0 {
				end -= int(sz)
				copy(packed[end:], raw.Slice(int(off), int(sz)))
				writeSlot(raw, i, uint16(end), sz, tomb)
			}
		}
		copy(raw.buf[end:], packed[end:])
		setFreeSpacePointer(raw, uint16(end))
	}
	newOffset := freeSpacePointer(raw) - need
	raw.PutBytes(int(newOffset), newData)
	setFreeSpacePointer(raw, newOffset)
	writeSlot(raw, slot, newOffset, need, false)
	return true, nil
}

// GetFirstTupleRid returns the slot of the first live tuple, or NotExist
// if the page has none.
func GetFirstTupleRid(raw *Raw) (uint16, error) {
	count := TupleCount(raw)
	for i := uint16(0); i < count; i++ {
		_, size, tombstone := readSlot(raw, i)
		if size > 0 && !tombstone {
			return i, nil
		}
	}
	return 0, dberrors.New(dberrors.NotExist, "no live tuples on page")
}

// GetNextTupleRid returns the slot of the first live tuple after cur, or
// NotExist if none remain on this page.
func GetNextTupleRid(raw *Raw, cur uint16) (uint16, error) {
	count := TupleCount(raw)
	for i := cur + 1; i < count; i++ {
		_, size, tombstone := readSlot(raw, i)
		if size > 0 && !tombstone {
			return i, nil
		}
	}
	return 0, dberrors.New(dberrors.NotExist, "no more live tuples on page")
}
