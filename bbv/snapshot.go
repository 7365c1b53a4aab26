package bbv

import (
	"bytes"
	"sort"
	"strconv"

	"github.com/go-kit/log/level"
)

// intervalEntry is one block's contribution to an interval: the externally
// visible id and the dynamic instructions it retired.
type intervalEntry struct {
	id     uint64
	weight uint64
}

// collectLocked drains the counter table into a ranked entry list. Each
// record's execution count is reset exactly once; truncation later affects
// only what is reported, not what was reset.
func (e *Engine) collectLocked() []intervalEntry {
	entries := e.scratch[:0]
	e.reg.forEachNonZero(func(seqID, instCount, execCount uint64) {
		entries = append(entries, intervalEntry{
			id:     seqID,
			weight: execCount * instCount,
		})
	})
	e.scratch = entries

	sort.Slice(entries, func(i, j int) bool {
		if entries[i].weight != entries[j].weight {
			return entries[i].weight > entries[j].weight
		}
		return entries[i].id < entries[j].id
	})

	return entries
}

// formatRecord renders one BBV line: the literal "T" followed by one
// " :<id>:<weight>" field per entry, newline-terminated.
func formatRecord(buf *bytes.Buffer, entries []intervalEntry) {
	buf.Reset()
	buf.WriteByte('T')
	for _, ent := range entries {
		buf.WriteString(" :")
		buf.WriteString(strconv.FormatUint(ent.id, 10))
		buf.WriteByte(':')
		buf.WriteString(strconv.FormatUint(ent.weight, 10))
	}
	buf.WriteByte('\n')
}

// emitIntervalLocked snapshots the counter table, writes one BBV record,
// and leaves every execution count at zero. An interval with no activity
// writes nothing.
func (e *Engine) emitIntervalLocked() {
	entries := e.collectLocked()
	if len(entries) == 0 {
		return
	}

	if k := e.cfg.MaxBlocksPerInterval; k > 0 && len(entries) > k {
		entries = entries[:k]
	}

	formatRecord(&e.buf, entries)
	if err := e.out.Append(e.buf.Bytes()); err != nil && e.writeErr == nil {
		e.writeErr = err
		level.Error(e.logger).Log("msg", "failed to write BBV record", "err", err)
	}

	e.intervals++
	if e.metrics != nil {
		e.metrics.intervalsEmitted.Inc()
		e.metrics.bytesWritten.Add(float64(e.buf.Len()))
	}
	level.Debug(e.logger).Log(
		"msg", "interval emitted",
		"blocks", len(entries),
		"bytes", e.buf.Len(),
	)
}

// discardIntervalLocked zeroes every execution count without emitting a
// record. Used for the warm-up interval before the first checkpoint hit.
func (e *Engine) discardIntervalLocked() {
	e.reg.forEachNonZero(func(uint64, uint64, uint64) {})
	if e.metrics != nil {
		e.metrics.intervalsDiscarded.Inc()
	}
}
