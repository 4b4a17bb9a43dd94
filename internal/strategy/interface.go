package strategy

import (
	"epicenter/pkg/quant"
)

// Vote is one strategy's opinion on the current market.
type Vote string

const (
	VoteBuy  Vote = "BUY"
	VoteSell Vote = "SELL"
	VoteHold Vote = "HOLD"
)

// Strategy is a per-symbol signal generator over bounded price history.
type Strategy interface {
	// OnPrice records a new observed price into bounded history.
	// Amortized O(1); oldest sample evicted once capacity is reached.
	OnPrice(px quant.PriceMicros)

	// Signal derives a vote from current history. Pure read: calling it any
	// number of times without an intervening OnPrice yields the same vote.
	Signal() Vote
}

// window is a fixed-capacity ring buffer of prices in arrival order.
// Zero-alloc after construction.
type window struct {
	buf   []quant.PriceMicros
	head  int // next write position; oldest element when full
	count int
}

func newWindow(capacity int) window {
	if capacity <= 0 {
		panic("strategy: window capacity must be positive")
	}
	return window{buf: make([]quant.PriceMicros, capacity)}
}

func (w *window) push(px quant.PriceMicros) {
	w.buf[w.head] = px
	w.head = (w.head + 1) % len(w.buf)
	if w.count < len(w.buf) {
		w.count++
	}
}

func (w *window) len() int { return w.count }

// at returns the i-th retained price, oldest first.
func (w *window) at(i int) quant.PriceMicros {
	if w.count < len(w.buf) {
		return w.buf[i]
	}
	return w.buf[(w.head+i)%len(w.buf)]
}

func (w *window) last() quant.PriceMicros {
	idx := w.head - 1
	if idx < 0 {
		idx = len(w.buf) - 1
	}
	return w.buf[idx]
}
