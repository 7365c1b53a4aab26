package trace

import (
	"github.com/sarchlab/bbvtrace/bbv"
)

// Driver binds a trace replay to a profiling engine: it registers each
// discovered block, bumps the engine's inline counters for every execution,
// and runs the per-execution boundary check — the same sequence a live
// instrumentation host performs.
type Driver struct {
	engine *bbv.Engine
	blocks []driverBlock
}

type driverBlock struct {
	handle      bbv.BlockHandle
	attachments []bbv.Attachment
}

// NewDriver creates a driver feeding the given engine. The engine must be
// started.
func NewDriver(engine *bbv.Engine) *Driver {
	return &Driver{engine: engine}
}

// BlockDiscovered implements Host.
func (d *Driver) BlockDiscovered(addr, instCount uint64) {
	handle, attachments := d.engine.RegisterBlock(addr, instCount)
	d.blocks = append(d.blocks, driverBlock{
		handle:      handle,
		attachments: attachments,
	})
}

// BlockExecuted implements Host. Each execution bumps the block's inline
// counters and runs the boundary check individually, so interval boundaries
// land exactly where they would during live execution.
func (d *Driver) BlockExecuted(index int, count uint64) {
	b := d.blocks[index]
	for i := uint64(0); i < count; i++ {
		for _, att := range b.attachments {
			att.Counter.Add(att.Delta)
		}
		d.engine.BlockExecuted(b.handle)
	}
}
