package bbv

import (
	"encoding/binary"
	"fmt"
	"sync/atomic"

	"github.com/cespare/xxhash/v2"
)

// Counter is a lightweight execution counter. The host bumps it inline on
// every block execution; no engine code runs for the bump itself.
type Counter struct {
	v atomic.Uint64
}

// Add increments the counter by delta.
func (c *Counter) Add(delta uint64) {
	c.v.Add(delta)
}

// Load returns the current value.
func (c *Counter) Load() uint64 {
	return c.v.Load()
}

// swap atomically replaces the value, returning the old one. Increments
// racing with a swap land in the new value and are attributed to the next
// interval.
func (c *Counter) swap(val uint64) uint64 {
	return c.v.Swap(val)
}

// Attachment asks the host to add Delta to Counter on every execution of
// the block it was issued for.
type Attachment struct {
	Counter *Counter
	Delta   uint64
}

// BlockHandle identifies a tracked block to the engine. It is an opaque
// slot index; handles are dense, stable, and never reused.
type BlockHandle int

const (
	// HandleIgnored is returned for blocks the engine does not track.
	HandleIgnored BlockHandle = -1

	// HandleCheckpoint is returned for blocks inside the checkpoint region,
	// which are counted only as boundary markers.
	HandleCheckpoint BlockHandle = -2
)

// BlockRecord holds the identity and counters of one discovered block.
type BlockRecord struct {
	// StartAddr is the virtual address of the first instruction.
	StartAddr uint64

	// SequenceID is the externally visible block id, assigned in discovery
	// order starting at 1. Never reused.
	SequenceID uint64

	// InstCount is the static instruction count, fixed at discovery.
	InstCount uint64

	// TransCount counts how many times the block has been (re-)translated.
	TransCount uint64

	exec Counter
}

// blockKey derives the identity key from a block's start address and
// instruction count. Two blocks at the same address with different lengths
// must not collide, so both fields feed the hash.
func blockKey(addr, instCount uint64) uint64 {
	var b [16]byte
	binary.LittleEndian.PutUint64(b[:8], addr)
	binary.LittleEndian.PutUint64(b[8:], instCount)
	return xxhash.Sum64(b[:])
}

// registry is the single authoritative block table: an identity-keyed index
// over a dense slice of records. All mutation happens under the engine
// mutex; only the per-record exec counters are touched outside it.
type registry struct {
	slots   map[uint64]BlockHandle
	records []*BlockRecord
	nextSeq uint64
}

func newRegistry() *registry {
	return &registry{
		slots: make(map[uint64]BlockHandle),
	}
}

// register returns the record for (addr, instCount), creating it on first
// sight. The boolean reports whether the record is new. A repeated
// registration only bumps TransCount.
func (r *registry) register(addr, instCount uint64) (BlockHandle, *BlockRecord, bool) {
	key := blockKey(addr, instCount)

	if h, ok := r.slots[key]; ok {
		rec := r.records[h]
		if rec.StartAddr != addr || rec.InstCount != instCount {
			panic(fmt.Sprintf(
				"block table corrupted: key %#x maps (%#x, %d) but holds (%#x, %d)",
				key, addr, instCount, rec.StartAddr, rec.InstCount))
		}
		rec.TransCount++
		return h, rec, false
	}

	r.nextSeq++
	rec := &BlockRecord{
		StartAddr:  addr,
		SequenceID: r.nextSeq,
		InstCount:  instCount,
		TransCount: 1,
	}
	h := BlockHandle(len(r.records))
	r.records = append(r.records, rec)
	r.slots[key] = h
	return h, rec, true
}

// forEachNonZero visits every record whose execution count is nonzero and
// resets that count to zero. The swap is atomic per record: increments that
// race with the visit are counted in the next interval, never dropped.
func (r *registry) forEachNonZero(visit func(seqID, instCount, execCount uint64)) {
	for _, rec := range r.records {
		n := rec.exec.swap(0)
		if n > 0 {
			visit(rec.SequenceID, rec.InstCount, n)
		}
	}
}

// size returns the number of distinct tracked blocks.
func (r *registry) size() int {
	return len(r.records)
}
