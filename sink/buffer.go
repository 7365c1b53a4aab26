package sink

// Buffer is an in-memory sink that keeps every appended record. It is
// intended for tests and for callers that post-process records themselves.
type Buffer struct {
	records [][]byte
	closed  bool
}

// NewBuffer returns an empty in-memory sink.
func NewBuffer() *Buffer {
	return &Buffer{}
}

// Append stores a copy of the record.
func (b *Buffer) Append(record []byte) error {
	cp := make([]byte, len(record))
	copy(cp, record)
	b.records = append(b.records, cp)
	return nil
}

// Close marks the buffer closed.
func (b *Buffer) Close() error {
	b.closed = true
	return nil
}

// Records returns the appended records in order.
func (b *Buffer) Records() [][]byte {
	return b.records
}

// Lines returns the appended records as strings.
func (b *Buffer) Lines() []string {
	lines := make([]string, len(b.records))
	for i, r := range b.records {
		lines[i] = string(r)
	}
	return lines
}

// Closed reports whether Close has been called.
func (b *Buffer) Closed() bool {
	return b.closed
}
