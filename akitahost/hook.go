// Package akitahost attaches the BBV profiling engine to Akita-based
// simulators. Components report executed translation blocks through the
// standard Akita hook mechanism; any hook item that implements Block is
// registered and counted.
package akitahost

import (
	"sync"

	"github.com/sarchlab/akita/v4/sim"

	"github.com/sarchlab/bbvtrace/bbv"
)

// Block describes one executed translation block. Simulator components
// implement it on the items they pass to their hooks.
type Block interface {
	// Address is the virtual address of the block's first instruction.
	Address() uint64

	// InstCount is the block's static instruction count.
	InstCount() uint64
}

type blockIdentity struct {
	addr      uint64
	instCount uint64
}

type hookBlock struct {
	handle      bbv.BlockHandle
	attachments []bbv.Attachment
}

// Hook forwards block executions observed on a hookable component to a
// profiling engine. Register it with sim.Hookable.AcceptHook.
type Hook struct {
	engine *bbv.Engine

	mu     sync.RWMutex
	blocks map[blockIdentity]*hookBlock
}

var _ sim.Hook = (*Hook)(nil)

// NewHook creates a hook feeding the given engine. The engine must be
// started before the simulation runs.
func NewHook(engine *bbv.Engine) *Hook {
	return &Hook{
		engine: engine,
		blocks: make(map[blockIdentity]*hookBlock),
	}
}

// Func implements sim.Hook. Items that do not describe a block are ignored,
// so the hook can share a hook position with unrelated instrumentation.
func (h *Hook) Func(ctx sim.HookCtx) {
	blk, ok := ctx.Item.(Block)
	if !ok {
		return
	}

	b := h.lookup(blockIdentity{
		addr:      blk.Address(),
		instCount: blk.InstCount(),
	})

	for _, att := range b.attachments {
		att.Counter.Add(att.Delta)
	}
	h.engine.BlockExecuted(b.handle)
}

// lookup returns the cached registration for an identity, registering the
// block with the engine on first sight.
func (h *Hook) lookup(id blockIdentity) *hookBlock {
	h.mu.RLock()
	b, ok := h.blocks[id]
	h.mu.RUnlock()
	if ok {
		return b
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	if b, ok := h.blocks[id]; ok {
		return b
	}

	handle, attachments := h.engine.RegisterBlock(id.addr, id.instCount)
	b = &hookBlock{
		handle:      handle,
		attachments: attachments,
	}
	h.blocks[id] = b
	return b
}
