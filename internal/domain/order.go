package domain

import (
	"epicenter/pkg/quant"
)

// Side is an order direction.
type Side string

const (
	SideBuy  Side = "BUY"
	SideSell Side = "SELL"
)

// Order is a sized market order ready for routing. Base and quote assets
// come from the symbol's trading rule so bookkeeping never has to guess
// the split.
type Order struct {
	Symbol     string
	BaseAsset  string
	QuoteAsset string
	Side       Side
	Qty        quant.QtySats
	Price      quant.PriceMicros // last observed price, for simulation and logs
}

// OrderResult is what the router reports back after a successful route.
type OrderResult struct {
	OrderID  int64
	Symbol   string
	Side     Side
	Qty      quant.QtySats
	Price    quant.PriceMicros
	DryRun   bool
	PnLEst   quant.PriceMicros // estimated portfolio delta in the reference asset (simulation only)
	UnixMill int64
}
