package engine

import (
	"sync/atomic"

	"epicenter/pkg/quant"
)

// priceCell is one symbol's slot: latest price plus a tick sequence so the
// loop can tell "new tick at the same price" from "no tick at all".
type priceCell struct {
	px  atomic.Int64
	seq atomic.Uint64
}

// PriceBoard is the handoff between the stream goroutine and the decision
// loop: one cell per symbol, last write wins. The cell map is built once at
// construction and never mutated, so reads need no lock. A capacity-1 wake
// channel coalesces any number of ticks into at most one pending wakeup.
type PriceBoard struct {
	cells map[string]*priceCell
	wake  chan struct{}
}

// NewPriceBoard allocates cells for a fixed symbol universe.
func NewPriceBoard(symbols []string) *PriceBoard {
	cells := make(map[string]*priceCell, len(symbols))
	for _, s := range symbols {
		cells[s] = &priceCell{}
	}
	return &PriceBoard{cells: cells, wake: make(chan struct{}, 1)}
}

// SetPrice publishes the latest price for a symbol and bumps its tick
// sequence. Symbols outside the universe are dropped; the cell map never
// grows after construction.
func (b *PriceBoard) SetPrice(symbol string, px quant.PriceMicros) {
	cell, ok := b.cells[symbol]
	if !ok {
		return
	}
	cell.px.Store(int64(px))
	cell.seq.Add(1)

	select {
	case b.wake <- struct{}{}:
	default:
	}
}

// Price returns the last published price. ok is false for symbols outside
// the universe; a zero price means no tick has arrived yet.
func (b *PriceBoard) Price(symbol string) (quant.PriceMicros, bool) {
	cell, ok := b.cells[symbol]
	if !ok {
		return 0, false
	}
	return quant.PriceMicros(cell.px.Load()), true
}

// Tick returns the last published price together with its sequence number.
// The sequence advances on every publish, including repeats of the same
// price. Price and sequence are read independently; a torn pair only means
// the consumer sees the newer tick one wake early or late.
func (b *PriceBoard) Tick(symbol string) (quant.PriceMicros, uint64, bool) {
	cell, ok := b.cells[symbol]
	if !ok {
		return 0, 0, false
	}
	return quant.PriceMicros(cell.px.Load()), cell.seq.Load(), true
}

// Wake signals that at least one price changed since the last receive.
func (b *PriceBoard) Wake() <-chan struct{} {
	return b.wake
}
