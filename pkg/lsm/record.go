package lsm

import (
	"bytes"
	"encoding/binary"

	"github.com/dd0wney/cluso-ledger/pkg/pools"
)

// RecordPolicy is the external collaborator a TableMemory is
// parameterized over: it fixes the key type K, the record type V, the
// key extraction function, the key's total order, the buffer's
// capacity (a value fixed when the policy is constructed, not a
// compile-time constant), and a tombstone constructor. TableMemory never
// interprets a key or record beyond calling into this interface.
type RecordPolicy[K any, V any] interface {
	// KeyOf extracts the ordering key from a record.
	KeyOf(v V) K

	// Compare defines a total order on K: negative if a < b, zero if
	// a == b, positive if a > b. Must be monotone, antisymmetric and
	// transitive.
	Compare(a, b K) int

	// TombstoneFrom builds a deletion marker for the given key. Consumed
	// by callers above the memtable (the write pipeline), never by
	// TableMemory itself.
	TombstoneFrom(k K) V

	// Capacity is the fixed maximum number of records a TableMemory
	// built with this policy may hold before it must be frozen.
	Capacity() int
}

// AccountID identifies a ledger account.
type AccountID [16]byte

// LedgerKey orders LedgerEntry records first by account, then by the
// account's own monotonic sequence number, so that successive updates to
// the same account land adjacent to one another once sorted.
type LedgerKey struct {
	Account  AccountID
	Sequence uint64
}

// LedgerEntry is a single posting against a ledger account: a signed
// amount in minor units (negative for a debit), or a tombstone marking
// the account/sequence pair as deleted.
type LedgerEntry struct {
	Account   AccountID
	Sequence  uint64
	Amount    int64
	Tombstone bool
}

// LedgerRecordPolicy implements RecordPolicy[LedgerKey, LedgerEntry] for
// a memtable of fixed capacity.
type LedgerRecordPolicy struct {
	capacity int
}

// NewLedgerRecordPolicy returns a policy fixing the memtable's capacity.
func NewLedgerRecordPolicy(capacity int) LedgerRecordPolicy {
	if capacity <= 0 {
		panic("lsm: ledger record policy requires a positive capacity")
	}
	return LedgerRecordPolicy{capacity: capacity}
}

func (p LedgerRecordPolicy) KeyOf(v LedgerEntry) LedgerKey {
	return LedgerKey{Account: v.Account, Sequence: v.Sequence}
}

func (p LedgerRecordPolicy) Compare(a, b LedgerKey) int {
	if c := bytes.Compare(a.Account[:], b.Account[:]); c != 0 {
		return c
	}
	switch {
	case a.Sequence < b.Sequence:
		return -1
	case a.Sequence > b.Sequence:
		return 1
	default:
		return 0
	}
}

func (p LedgerRecordPolicy) TombstoneFrom(k LedgerKey) LedgerEntry {
	return LedgerEntry{Account: k.Account, Sequence: k.Sequence, Tombstone: true}
}

func (p LedgerRecordPolicy) Capacity() int {
	return p.capacity
}

// EncodeKey serializes a LedgerKey into the sortable byte encoding
// SSTable, BloomFilter and BlockCache operate on: account bytes followed
// by the big-endian sequence, so the byte order matches LedgerKey's own
// total order.
func EncodeKey(k LedgerKey) []byte {
	buf := pools.GetBytesSized(16 + 8)
	copy(buf, k.Account[:])
	binary.BigEndian.PutUint64(buf[16:], k.Sequence)
	return buf
}

// EncodeEntry serializes a LedgerEntry's amount into the value bytes
// stored alongside its key in an SSTable.
func EncodeEntry(e LedgerEntry) *Entry {
	var value []byte
	if !e.Tombstone {
		value = pools.GetBytesSized(8)
		binary.BigEndian.PutUint64(value, uint64(e.Amount))
	}
	return &Entry{
		Key:     EncodeKey(LedgerKey{Account: e.Account, Sequence: e.Sequence}),
		Value:   value,
		Deleted: e.Tombstone,
	}
}

// DecodeEntry reconstructs a LedgerEntry from an on-disk Entry.
func DecodeEntry(e *Entry) (LedgerEntry, bool) {
	if len(e.Key) != 16+8 {
		return LedgerEntry{}, false
	}
	var account AccountID
	copy(account[:], e.Key[:16])
	sequence := binary.BigEndian.Uint64(e.Key[16:])

	entry := LedgerEntry{Account: account, Sequence: sequence, Tombstone: e.Deleted}
	if !e.Deleted {
		if len(e.Value) != 8 {
			return LedgerEntry{}, false
		}
		entry.Amount = int64(binary.BigEndian.Uint64(e.Value))
	}
	return entry, true
}
