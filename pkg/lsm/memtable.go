package lsm

import "bytes"

// Entry is the on-disk record shape SSTable, BloomFilter and BlockCache
// operate on: an opaque key/value pair plus a tombstone flag and the
// timestamp the serialized format reserves room for. TableMemory never
// produces or consumes Entry directly — a RecordPolicy implementation
// such as LedgerRecordPolicy translates its own record type to and from
// Entry at flush time, via EncodeEntry/DecodeEntry.
type Entry struct {
	Key       []byte
	Value     []byte
	Timestamp int64
	Deleted   bool // Tombstone for deletions
}

// EntryCompare compares two entries by key, ascending.
func EntryCompare(a, b *Entry) int {
	return bytes.Compare(a.Key, b.Key)
}
