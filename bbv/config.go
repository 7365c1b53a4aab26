package bbv

import (
	"encoding/json"
	"fmt"
	"os"
)

// Policy selects how interval boundaries are detected.
type Policy string

const (
	// PolicyFixedWindow fires a boundary every IntervalSize executed
	// instructions.
	PolicyFixedWindow Policy = "window"

	// PolicyCheckpoint fires a boundary whenever a block inside the
	// configured checkpoint region executes.
	PolicyCheckpoint Policy = "checkpoint"
)

// DefaultIntervalSize is the fixed-window threshold (100M instructions).
const DefaultIntervalSize = 100000000

// Config holds the profiling engine configuration.
type Config struct {
	// Policy selects the interval boundary policy. Default: PolicyFixedWindow.
	Policy Policy `json:"policy"`

	// IntervalSize is the instruction-count threshold for the fixed-window
	// policy. Default: 100,000,000 instructions.
	IntervalSize uint64 `json:"interval_size"`

	// CheckpointStart is the first address of the checkpoint region.
	// Required for the checkpoint policy.
	CheckpointStart uint64 `json:"checkpoint_start"`

	// CheckpointLength is the length in bytes of the checkpoint region.
	// Required for the checkpoint policy.
	CheckpointLength uint64 `json:"checkpoint_length"`

	// MemStart is the address threshold separating user code from
	// kernel/monitor code under the checkpoint policy. Blocks below it are
	// tracked; blocks at or above it, outside the checkpoint region, are
	// ignored. Required for the checkpoint policy.
	MemStart uint64 `json:"mem_start"`

	// OutputName is the benchmark name; the output file is
	// "<OutputName>_bbv.gz". Default: "trace".
	OutputName string `json:"output_name"`

	// OutputPath, when set, is the exact output file path and overrides
	// OutputName.
	OutputPath string `json:"output_path,omitempty"`

	// MaxBlocksPerInterval truncates each emitted record to the K
	// highest-weight blocks. Zero means unbounded.
	MaxBlocksPerInterval int `json:"max_blocks_per_interval"`
}

// DefaultConfig returns a fixed-window configuration with the standard
// 100M-instruction interval.
func DefaultConfig() Config {
	return Config{
		Policy:       PolicyFixedWindow,
		IntervalSize: DefaultIntervalSize,
		OutputName:   "trace",
	}
}

// LoadConfig reads a JSON configuration file. Fields absent from the file
// keep their default values.
func LoadConfig(path string) (Config, error) {
	cfg := DefaultConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("failed to read config file: %w", err)
	}

	if err := json.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("failed to parse config file: %w", err)
	}

	return cfg, nil
}

// Validate checks that the configuration is complete for the selected
// policy. It is called before any instrumentation is installed; a failure
// here means the engine refuses to start.
func (c Config) Validate() error {
	switch c.Policy {
	case PolicyFixedWindow:
		if c.IntervalSize == 0 {
			return fmt.Errorf("interval size must be nonzero")
		}
	case PolicyCheckpoint:
		if c.CheckpointStart == 0 {
			return fmt.Errorf("checkpoint start address is required")
		}
		if c.CheckpointLength == 0 {
			return fmt.Errorf("checkpoint region length is required")
		}
		if c.MemStart == 0 {
			return fmt.Errorf("user/kernel memory threshold is required")
		}
	default:
		return fmt.Errorf("unknown policy %q", c.Policy)
	}

	if c.MaxBlocksPerInterval < 0 {
		return fmt.Errorf("max blocks per interval must not be negative")
	}
	if c.OutputPath == "" && c.OutputName == "" {
		return fmt.Errorf("output name or path is required")
	}

	return nil
}

// outputFilePath resolves the destination of the compressed BBV stream.
func (c Config) outputFilePath() string {
	if c.OutputPath != "" {
		return c.OutputPath
	}
	return c.OutputName + "_bbv.gz"
}

// blockClass is the checkpoint-policy classification of a block address.
type blockClass int

const (
	classUser blockClass = iota
	classCheckpoint
	classIgnored
)

// classify places a block address under the configured policy. The
// fixed-window policy tracks every block.
func (c Config) classify(addr uint64) blockClass {
	if c.Policy != PolicyCheckpoint {
		return classUser
	}
	if addr >= c.CheckpointStart && addr < c.CheckpointStart+c.CheckpointLength {
		return classCheckpoint
	}
	if addr >= c.MemStart {
		return classIgnored
	}
	return classUser
}
