package strategy

import (
	"math"

	"epicenter/pkg/quant"
)

// meanRevMinSamples is the warmup floor: no votes until this many prices.
const meanRevMinSamples = 5

// devEpsilon floors the standard deviation so a flat window cannot divide
// by zero.
const devEpsilon = 1e-12

// MeanReversion votes on the z-score of the latest price against a rolling
// window: far below the mean is a BUY, far above is a SELL.
type MeanReversion struct {
	threshold float64
	win       window
}

// NewMeanReversion creates a mean-reversion strategy over the given window
// size with the given z-score threshold.
func NewMeanReversion(windowSize int, zThreshold float64) *MeanReversion {
	if windowSize < meanRevMinSamples {
		panic("strategy: mean-reversion window too small")
	}
	if zThreshold <= 0 {
		panic("strategy: z threshold must be positive")
	}
	return &MeanReversion{threshold: zThreshold, win: newWindow(windowSize)}
}

func (m *MeanReversion) OnPrice(px quant.PriceMicros) {
	m.win.push(px)
}

func (m *MeanReversion) Signal() Vote {
	n := m.win.len()
	if n < meanRevMinSamples {
		return VoteHold
	}

	var sum float64
	for i := 0; i < n; i++ {
		sum += float64(m.win.at(i))
	}
	mean := sum / float64(n)

	var sq float64
	for i := 0; i < n; i++ {
		d := float64(m.win.at(i)) - mean
		sq += d * d
	}
	dev := math.Sqrt(sq / float64(n)) // population std dev
	if dev < devEpsilon {
		dev = devEpsilon
	}

	z := (float64(m.win.last()) - mean) / dev
	switch {
	case z <= -m.threshold:
		return VoteBuy
	case z >= m.threshold:
		return VoteSell
	default:
		return VoteHold
	}
}
