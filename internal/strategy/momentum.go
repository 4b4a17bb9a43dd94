package strategy

import (
	"epicenter/pkg/quant"
)

// Momentum votes on a fast/slow EMA crossover. It retains max(fast, slow)
// prices and holds until the slow period has filled.
type Momentum struct {
	fast int
	slow int
	win  window
}

// NewMomentum creates a momentum strategy. fast must be shorter than slow.
func NewMomentum(fast, slow int) *Momentum {
	if fast <= 0 || slow <= 0 {
		panic("strategy: momentum periods must be positive")
	}
	if fast >= slow {
		panic("strategy: momentum fast period must be less than slow")
	}
	return &Momentum{fast: fast, slow: slow, win: newWindow(slow)}
}

func (m *Momentum) OnPrice(px quant.PriceMicros) {
	m.win.push(px)
}

func (m *Momentum) Signal() Vote {
	if m.win.len() < m.slow {
		return VoteHold
	}

	fast := m.ema(m.fast)
	slow := m.ema(m.slow)

	switch {
	case fast > slow:
		return VoteBuy
	case fast < slow:
		return VoteSell
	default:
		return VoteHold
	}
}

// ema computes an exponential moving average over the retained window with
// smoothing 2/(period+1), seeded by the oldest retained price.
func (m *Momentum) ema(period int) float64 {
	alpha := 2.0 / (float64(period) + 1.0)
	ema := float64(m.win.at(0))
	for i := 1; i < m.win.len(); i++ {
		ema = alpha*float64(m.win.at(i)) + (1-alpha)*ema
	}
	return ema
}
