package trace_test

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/sarchlab/bbvtrace/bbv"
	"github.com/sarchlab/bbvtrace/sink"
	"github.com/sarchlab/bbvtrace/trace"
)

// recordingHost captures replayed events as strings for comparison.
type recordingHost struct {
	events []string
}

func (h *recordingHost) BlockDiscovered(addr, instCount uint64) {
	h.events = append(h.events, fmt.Sprintf("B %#x %d", addr, instCount))
}

func (h *recordingHost) BlockExecuted(index int, count uint64) {
	h.events = append(h.events, fmt.Sprintf("X %d %d", index, count))
}

var _ = Describe("Reader", func() {
	replay := func(input string) (*recordingHost, error) {
		h := &recordingHost{}
		err := trace.NewReader(strings.NewReader(input)).Replay(h)
		return h, err
	}

	It("should stream discovery and execution events in order", func() {
		h, err := replay("B 0x400000 4\nB 0x400010 8\nX 0 3\nX 1\nX 0\n")

		Expect(err).NotTo(HaveOccurred())
		Expect(h.events).To(Equal([]string{
			"B 0x400000 4",
			"B 0x400010 8",
			"X 0 3",
			"X 1 1",
			"X 0 1",
		}))
	})

	It("should skip comments and blank lines", func() {
		h, err := replay("# header\n\nB 0x1000 2\n  \nX 0\n")

		Expect(err).NotTo(HaveOccurred())
		Expect(h.events).To(HaveLen(2))
	})

	It("should reject an execution of an undiscovered block", func() {
		_, err := replay("B 0x1000 2\nX 1\n")

		Expect(err).To(MatchError(ContainSubstring("line 2")))
		Expect(err.Error()).To(ContainSubstring("unknown block index"))
	})

	It("should reject a malformed block record", func() {
		_, err := replay("B 0x1000\n")

		Expect(err).To(MatchError(ContainSubstring("line 1")))
	})

	It("should reject a zero instruction count", func() {
		_, err := replay("B 0x1000 0\n")

		Expect(err).To(MatchError(ContainSubstring("instruction count")))
	})

	It("should reject unknown record types", func() {
		_, err := replay("Q 1 2\n")

		Expect(err).To(MatchError(ContainSubstring("unknown record type")))
	})
})

var _ = Describe("Writer", func() {
	It("should round-trip through a Reader", func() {
		var buf bytes.Buffer
		w := trace.NewWriter(&buf)

		b0 := w.Block(0x400000, 4)
		b1 := w.Block(0x400010, 8)
		w.Exec(b0, 10)
		w.Exec(b1, 1)
		Expect(w.Close()).To(Succeed())

		h := &recordingHost{}
		err := trace.NewReader(&buf).Replay(h)
		Expect(err).NotTo(HaveOccurred())
		Expect(h.events).To(Equal([]string{
			"B 0x400000 4",
			"B 0x400010 8",
			"X 0 10",
			"X 1 1",
		}))
	})

	It("should round-trip a compressed trace file", func() {
		tempDir, err := os.MkdirTemp("", "bbv-trace-test")
		Expect(err).NotTo(HaveOccurred())
		defer func() { _ = os.RemoveAll(tempDir) }()

		path := filepath.Join(tempDir, "run.trace.gz")
		w, err := trace.Create(path)
		Expect(err).NotTo(HaveOccurred())
		w.Block(0x1000, 2)
		w.Exec(0, 5)
		Expect(w.Close()).To(Succeed())

		r, err := trace.Open(path)
		Expect(err).NotTo(HaveOccurred())
		defer func() { _ = r.Close() }()

		h := &recordingHost{}
		Expect(r.Replay(h)).To(Succeed())
		Expect(h.events).To(Equal([]string{"B 0x1000 2", "X 0 5"}))
	})
})

var _ = Describe("Driver", func() {
	It("should drive a fixed-window engine through a replay", func() {
		out := sink.NewBuffer()
		cfg := bbv.DefaultConfig()
		cfg.IntervalSize = 1000

		engine, err := bbv.NewStarted(cfg, bbv.WithSink(out))
		Expect(err).NotTo(HaveOccurred())

		input := "B 0x400000 10\nX 0 150\n"
		err = trace.NewReader(strings.NewReader(input)).Replay(trace.NewDriver(engine))
		Expect(err).NotTo(HaveOccurred())
		Expect(engine.Shutdown()).To(Succeed())

		Expect(out.Lines()).To(Equal([]string{
			"T :1:1000\n",
			"T :1:500\n",
		}))
	})

	It("should honor the checkpoint policy during a replay", func() {
		out := sink.NewBuffer()
		cfg := bbv.DefaultConfig()
		cfg.Policy = bbv.PolicyCheckpoint
		cfg.CheckpointStart = 0x1000
		cfg.CheckpointLength = 0x10
		cfg.MemStart = 0x1000

		engine, err := bbv.NewStarted(cfg, bbv.WithSink(out))
		Expect(err).NotTo(HaveOccurred())

		input := strings.Join([]string{
			"B 0x400 10", // user
			"B 0x1000 2", // checkpoint marker
			"X 0 5",
			"X 1", // first hit: discard warm-up
			"X 0 3",
			"X 1", // emit
			"X 0 2",
		}, "\n") + "\n"
		err = trace.NewReader(strings.NewReader(input)).Replay(trace.NewDriver(engine))
		Expect(err).NotTo(HaveOccurred())
		Expect(engine.Shutdown()).To(Succeed())

		Expect(out.Lines()).To(Equal([]string{
			"T :1:30\n",
			"T :1:20\n",
		}))
	})
})
