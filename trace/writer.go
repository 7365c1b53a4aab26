package trace

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/klauspost/compress/gzip"
)

// Writer records a block-execution trace.
type Writer struct {
	w       *bufio.Writer
	closers []io.Closer
	blocks  int
}

// NewWriter writes an uncompressed trace to w.
func NewWriter(w io.Writer) *Writer {
	return &Writer{w: bufio.NewWriter(w)}
}

// Create writes a trace file, gzip-compressing it when the path ends in
// ".gz".
func Create(path string) (*Writer, error) {
	f, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("failed to create trace file: %w", err)
	}

	w := &Writer{closers: []io.Closer{f}}
	var dst io.Writer = f

	if strings.HasSuffix(path, ".gz") {
		gz := gzip.NewWriter(f)
		w.closers = append(w.closers, gz)
		dst = gz
	}

	w.w = bufio.NewWriter(dst)
	return w, nil
}

// Block records a discovery and returns the block's index.
func (w *Writer) Block(addr, instCount uint64) int {
	fmt.Fprintf(w.w, "B 0x%x %d\n", addr, instCount)
	index := w.blocks
	w.blocks++
	return index
}

// Exec records count executions of the block at index.
func (w *Writer) Exec(index int, count uint64) {
	if count == 1 {
		fmt.Fprintf(w.w, "X %d\n", index)
		return
	}
	fmt.Fprintf(w.w, "X %d %d\n", index, count)
}

// Close flushes buffered records and closes the underlying file, if any.
func (w *Writer) Close() error {
	if err := w.w.Flush(); err != nil {
		return fmt.Errorf("failed to flush trace: %w", err)
	}
	var firstErr error
	for i := len(w.closers) - 1; i >= 0; i-- {
		if err := w.closers[i].Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}
