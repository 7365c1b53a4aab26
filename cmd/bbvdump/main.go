// Package main provides the entry point for bbvdump.
// bbvdump decompresses a BBV stream and prints its records, optionally with
// per-interval statistics.
package main

import (
	"bufio"
	"flag"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/klauspost/compress/gzip"
)

var stats = flag.Bool("stats", false, "Print per-interval block counts and total weight")

func main() {
	flag.Parse()

	if flag.NArg() < 1 {
		fmt.Fprintf(os.Stderr, "Usage: bbvdump [options] <bbv.gz file>\n")
		fmt.Fprintf(os.Stderr, "\nOptions:\n")
		flag.PrintDefaults()
		os.Exit(1)
	}

	if err := dump(flag.Arg(0)); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func dump(path string) error {
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("failed to open BBV file: %w", err)
	}
	defer func() { _ = f.Close() }()

	gz, err := gzip.NewReader(f)
	if err != nil {
		return fmt.Errorf("not a gzip stream: %w", err)
	}
	defer func() { _ = gz.Close() }()

	scanner := bufio.NewScanner(gz)
	scanner.Buffer(make([]byte, 0, 1024*1024), 64*1024*1024)

	intervalNo := 0
	for scanner.Scan() {
		line := scanner.Text()
		intervalNo++

		if !*stats {
			fmt.Println(line)
			continue
		}

		blocks, total, err := intervalStats(line)
		if err != nil {
			return fmt.Errorf("interval %d: %w", intervalNo, err)
		}
		fmt.Printf("interval %d: %d blocks, %d instructions\n", intervalNo, blocks, total)
	}
	if err := scanner.Err(); err != nil {
		return fmt.Errorf("failed to read BBV stream: %w", err)
	}

	return nil
}

// intervalStats parses one "T :<id>:<weight> ..." record.
func intervalStats(line string) (blocks int, total uint64, err error) {
	fields := strings.Fields(line)
	if len(fields) == 0 || fields[0] != "T" {
		return 0, 0, fmt.Errorf("malformed record: %q", line)
	}

	for _, field := range fields[1:] {
		parts := strings.Split(field, ":")
		if len(parts) != 3 || parts[0] != "" {
			return 0, 0, fmt.Errorf("malformed field: %q", field)
		}
		weight, err := strconv.ParseUint(parts[2], 10, 64)
		if err != nil {
			return 0, 0, fmt.Errorf("malformed weight: %q", field)
		}
		blocks++
		total += weight
	}

	return blocks, total, nil
}
