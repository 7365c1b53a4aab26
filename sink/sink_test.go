package sink_test

import (
	"io"
	"os"
	"path/filepath"

	"github.com/klauspost/compress/gzip"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/sarchlab/bbvtrace/sink"
)

var _ = Describe("GzipSink", func() {
	var tempDir string

	BeforeEach(func() {
		var err error
		tempDir, err = os.MkdirTemp("", "bbv-sink-test")
		Expect(err).NotTo(HaveOccurred())
	})

	AfterEach(func() {
		_ = os.RemoveAll(tempDir)
	})

	readBack := func(path string) string {
		f, err := os.Open(path)
		Expect(err).NotTo(HaveOccurred())
		defer func() { _ = f.Close() }()

		gz, err := gzip.NewReader(f)
		Expect(err).NotTo(HaveOccurred())
		data, err := io.ReadAll(gz)
		Expect(err).NotTo(HaveOccurred())
		return string(data)
	}

	It("should write appended records as one gzip stream", func() {
		path := filepath.Join(tempDir, "out_bbv.gz")

		s, err := sink.NewGzipSink(path)
		Expect(err).NotTo(HaveOccurred())
		Expect(s.Append([]byte("T :1:100\n"))).To(Succeed())
		Expect(s.Append([]byte("T :2:50 :1:10\n"))).To(Succeed())
		Expect(s.Close()).To(Succeed())

		Expect(readBack(path)).To(Equal("T :1:100\nT :2:50 :1:10\n"))
	})

	It("should tolerate repeated Close calls", func() {
		path := filepath.Join(tempDir, "out_bbv.gz")

		s, err := sink.NewGzipSink(path)
		Expect(err).NotTo(HaveOccurred())
		Expect(s.Close()).To(Succeed())
		Expect(s.Close()).To(Succeed())
	})

	It("should reject appends after Close", func() {
		path := filepath.Join(tempDir, "out_bbv.gz")

		s, err := sink.NewGzipSink(path)
		Expect(err).NotTo(HaveOccurred())
		Expect(s.Close()).To(Succeed())

		Expect(s.Append([]byte("T\n"))).To(MatchError(ContainSubstring("closed")))
	})

	It("should fail when the output directory does not exist", func() {
		_, err := sink.NewGzipSink(filepath.Join(tempDir, "missing", "out_bbv.gz"))
		Expect(err).To(HaveOccurred())
		Expect(err.Error()).To(ContainSubstring("failed to open"))
	})
})

var _ = Describe("Buffer", func() {
	It("should record appended records in order", func() {
		b := sink.NewBuffer()

		Expect(b.Append([]byte("T :1:1\n"))).To(Succeed())
		Expect(b.Append([]byte("T :2:2\n"))).To(Succeed())

		Expect(b.Lines()).To(Equal([]string{"T :1:1\n", "T :2:2\n"}))
	})

	It("should copy records rather than alias them", func() {
		b := sink.NewBuffer()
		record := []byte("T :1:1\n")

		Expect(b.Append(record)).To(Succeed())
		record[0] = 'X'

		Expect(b.Lines()).To(Equal([]string{"T :1:1\n"}))
	})
})
