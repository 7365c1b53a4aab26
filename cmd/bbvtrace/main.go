// Package main provides the entry point for bbvtrace.
// bbvtrace replays a block-execution trace through the BBV profiling engine
// and writes the resulting Basic Block Vector stream for SimPoint analysis.
package main

import (
	"flag"
	"fmt"
	"os"
	"strconv"

	"github.com/go-kit/log"
	"github.com/go-kit/log/level"

	"github.com/sarchlab/bbvtrace/bbv"
	"github.com/sarchlab/bbvtrace/loader"
	"github.com/sarchlab/bbvtrace/trace"
)

var (
	configPath = flag.String("config", "", "Path to JSON configuration file")
	interval   = flag.Uint64("interval", 0, "Fixed-window interval size in instructions")
	ckptStart  = flag.String("ckpt-start", "", "Checkpoint region start address (enables checkpoint policy)")
	ckptLen    = flag.String("ckpt-len", "", "Checkpoint region length in bytes")
	ckptSym    = flag.String("ckpt-sym", "", "Checkpoint function symbol name (requires -elf)")
	elfPath    = flag.String("elf", "", "Guest ELF binary for symbol resolution")
	memStart   = flag.String("mem-start", "", "User/kernel address threshold (checkpoint policy)")
	outName    = flag.String("name", "", "Benchmark name; output goes to <name>_bbv.gz")
	outPath    = flag.String("o", "", "Exact output file path (overrides -name)")
	maxBlocks  = flag.Int("max-blocks", 0, "Truncate each record to the K highest-weight blocks (0 = unbounded)")
	verbose    = flag.Bool("v", false, "Verbose output")
	debugLog   = flag.Bool("debug", false, "Log every emitted interval to stderr")
)

func main() {
	flag.Parse()

	if flag.NArg() < 1 {
		fmt.Fprintf(os.Stderr, "Usage: bbvtrace [options] <trace file>\n")
		fmt.Fprintf(os.Stderr, "\nOptions:\n")
		flag.PrintDefaults()
		os.Exit(1)
	}

	tracePath := flag.Arg(0)

	cfg, err := buildConfig()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	logger := log.NewNopLogger()
	if *debugLog {
		logger = level.NewFilter(
			log.NewLogfmtLogger(log.NewSyncWriter(os.Stderr)),
			level.AllowDebug(),
		)
	}

	engine, err := bbv.NewStarted(cfg, bbv.WithLogger(logger))
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	reader, err := trace.Open(tracePath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	replayErr := reader.Replay(trace.NewDriver(engine))
	_ = reader.Close()

	if err := engine.Shutdown(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	if replayErr != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", replayErr)
		os.Exit(1)
	}

	if *verbose {
		fmt.Printf("Trace: %s\n", tracePath)
		fmt.Printf("Blocks: %d\n", engine.NumBlocks())
		fmt.Printf("Intervals: %d\n", engine.Intervals())
	}
}

// buildConfig merges the config file and command-line flags into the engine
// configuration. Any inconsistency is a configuration error; nothing is
// started before it is resolved.
func buildConfig() (bbv.Config, error) {
	cfg := bbv.DefaultConfig()

	if *configPath != "" {
		var err error
		cfg, err = bbv.LoadConfig(*configPath)
		if err != nil {
			return cfg, err
		}
	}

	if *interval != 0 {
		cfg.IntervalSize = *interval
	}
	if *outName != "" {
		cfg.OutputName = *outName
	}
	if *outPath != "" {
		cfg.OutputPath = *outPath
	}
	if *maxBlocks != 0 {
		cfg.MaxBlocksPerInterval = *maxBlocks
	}

	if *ckptSym != "" {
		if *elfPath == "" {
			return cfg, fmt.Errorf("-ckpt-sym requires -elf")
		}
		sym, err := loader.FindSymbol(*elfPath, *ckptSym)
		if err != nil {
			return cfg, err
		}
		cfg.Policy = bbv.PolicyCheckpoint
		cfg.CheckpointStart = sym.Addr
		cfg.CheckpointLength = sym.Size
	}

	if *ckptStart != "" {
		addr, err := parseAddr(*ckptStart, "checkpoint start")
		if err != nil {
			return cfg, err
		}
		cfg.Policy = bbv.PolicyCheckpoint
		cfg.CheckpointStart = addr
	}
	if *ckptLen != "" {
		length, err := parseAddr(*ckptLen, "checkpoint length")
		if err != nil {
			return cfg, err
		}
		cfg.CheckpointLength = length
	}
	if *memStart != "" {
		addr, err := parseAddr(*memStart, "memory threshold")
		if err != nil {
			return cfg, err
		}
		cfg.MemStart = addr
	}

	return cfg, nil
}

// parseAddr accepts decimal, hex (0x), and octal (0) address notation.
func parseAddr(s, what string) (uint64, error) {
	v, err := strconv.ParseUint(s, 0, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %q", what, s)
	}
	return v, nil
}
