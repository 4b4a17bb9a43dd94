package strategy

import (
	"epicenter/internal/domain"
)

// Aggregate combines the current votes of all strategies attached to one
// symbol into a single decision by strict majority. HOLD votes are not
// counted; exact ties and all-HOLD resolve to no action. Applied freshly
// every cycle, never cached.
func Aggregate(votes []Vote) (domain.Side, bool) {
	var buys, sells int
	for _, v := range votes {
		switch v {
		case VoteBuy:
			buys++
		case VoteSell:
			sells++
		}
	}

	switch {
	case buys > sells && buys > 0:
		return domain.SideBuy, true
	case sells > buys && sells > 0:
		return domain.SideSell, true
	default:
		return "", false
	}
}
