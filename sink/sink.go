// Package sink provides append-only output sinks for BBV record streams.
package sink

import (
	"fmt"
	"os"

	"github.com/klauspost/compress/gzip"
)

// Sink is an append-only byte stream. The snapshot pipeline owns the sink
// exclusively: records are appended whole, and Close is called exactly once
// after the final flush.
type Sink interface {
	// Append writes one complete record to the stream.
	Append(record []byte) error

	// Close flushes any buffered data and releases the sink.
	Close() error
}

// GzipSink writes records as a single gzip-compressed stream in a file.
type GzipSink struct {
	file   *os.File
	writer *gzip.Writer
	closed bool
}

// NewGzipSink creates the output file and wraps it in a gzip stream.
// The file is truncated if it already exists.
func NewGzipSink(path string) (*GzipSink, error) {
	f, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open output file: %w", err)
	}

	return &GzipSink{
		file:   f,
		writer: gzip.NewWriter(f),
	}, nil
}

// Append compresses and writes one record.
func (s *GzipSink) Append(record []byte) error {
	if s.closed {
		return fmt.Errorf("append to closed sink")
	}
	if _, err := s.writer.Write(record); err != nil {
		return fmt.Errorf("failed to write record: %w", err)
	}
	return nil
}

// Close terminates the gzip stream and closes the underlying file. It is
// safe to call more than once; only the first call has an effect.
func (s *GzipSink) Close() error {
	if s.closed {
		return nil
	}
	s.closed = true

	if err := s.writer.Close(); err != nil {
		_ = s.file.Close()
		return fmt.Errorf("failed to finish gzip stream: %w", err)
	}
	if err := s.file.Close(); err != nil {
		return fmt.Errorf("failed to close output file: %w", err)
	}
	return nil
}
