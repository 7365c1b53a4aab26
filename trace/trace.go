// Package trace defines a line-oriented block-execution trace format and a
// replay driver that feeds a recorded execution through the profiling
// engine. A trace stands in for a live instrumentation host: simulators can
// record block discoveries and executions now and profile them later.
//
// The format is text, optionally gzip-compressed (".gz" suffix):
//
//	# comment
//	B <addr> <insns>      block discovery; blocks are indexed from 0
//	X <index> [count]     the block executes count times (default 1)
package trace

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/klauspost/compress/gzip"
)

// Host receives replayed trace events. Execution callbacks reference blocks
// by their 0-based discovery index.
type Host interface {
	BlockDiscovered(addr, instCount uint64)
	BlockExecuted(index int, count uint64)
}

// Reader replays a block-execution trace.
type Reader struct {
	scanner *bufio.Scanner
	closers []io.Closer
	blocks  int
}

// NewReader reads a trace from an uncompressed stream.
func NewReader(r io.Reader) *Reader {
	return &Reader{scanner: bufio.NewScanner(r)}
}

// Open reads a trace file, transparently decompressing ".gz" traces.
func Open(path string) (*Reader, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open trace file: %w", err)
	}

	r := &Reader{closers: []io.Closer{f}}
	var src io.Reader = f

	if strings.HasSuffix(path, ".gz") {
		gz, err := gzip.NewReader(f)
		if err != nil {
			_ = f.Close()
			return nil, fmt.Errorf("failed to open compressed trace: %w", err)
		}
		r.closers = append(r.closers, gz)
		src = gz
	}

	r.scanner = bufio.NewScanner(src)
	return r, nil
}

// Replay streams every event to the host in trace order. Malformed lines
// abort the replay with an error naming the line number.
func (r *Reader) Replay(h Host) error {
	lineNo := 0
	for r.scanner.Scan() {
		lineNo++
		line := strings.TrimSpace(r.scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}

		fields := strings.Fields(line)
		switch fields[0] {
		case "B":
			if len(fields) != 3 {
				return fmt.Errorf("line %d: block record needs address and instruction count", lineNo)
			}
			addr, err := strconv.ParseUint(fields[1], 0, 64)
			if err != nil {
				return fmt.Errorf("line %d: invalid block address %q", lineNo, fields[1])
			}
			insns, err := strconv.ParseUint(fields[2], 0, 64)
			if err != nil || insns == 0 {
				return fmt.Errorf("line %d: invalid instruction count %q", lineNo, fields[2])
			}
			h.BlockDiscovered(addr, insns)
			r.blocks++

		case "X":
			if len(fields) < 2 || len(fields) > 3 {
				return fmt.Errorf("line %d: execution record needs a block index", lineNo)
			}
			index, err := strconv.Atoi(fields[1])
			if err != nil || index < 0 || index >= r.blocks {
				return fmt.Errorf("line %d: unknown block index %q", lineNo, fields[1])
			}
			count := uint64(1)
			if len(fields) == 3 {
				count, err = strconv.ParseUint(fields[2], 0, 64)
				if err != nil || count == 0 {
					return fmt.Errorf("line %d: invalid execution count %q", lineNo, fields[2])
				}
			}
			h.BlockExecuted(index, count)

		default:
			return fmt.Errorf("line %d: unknown record type %q", lineNo, fields[0])
		}
	}

	if err := r.scanner.Err(); err != nil {
		return fmt.Errorf("failed to read trace: %w", err)
	}
	return nil
}

// Close releases the underlying file, if any.
func (r *Reader) Close() error {
	var firstErr error
	for i := len(r.closers) - 1; i >= 0; i-- {
		if err := r.closers[i].Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}
