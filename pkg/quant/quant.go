package quant

import (
	"fmt"
	"math"
	"math/bits"

	"github.com/shopspring/decimal"
)

// PriceMicros represents price multiplied by 1,000,000 (10^6).
// E.g., 1.23 USDT = 1,230,000 PriceMicros.
type PriceMicros int64

// QtySats represents quantity multiplied by 100,000,000 (10^8).
// E.g., 1.0 BTC = 100,000,000 QtySats.
type QtySats int64

const (
	PriceScale = 1_000_000
	QtyScale   = 100_000_000
)

// ToPriceMicros converts a float64 (from external API) to PriceMicros.
// Only used at the boundary; internal logic stays in fixed point.
func ToPriceMicros(f float64) PriceMicros {
	return PriceMicros(math.Round(f * PriceScale))
}

// ToQtySats converts a float64 to QtySats.
func ToQtySats(f float64) QtySats {
	return QtySats(math.Round(f * QtyScale))
}

// Float returns the price as a float64. Boundary use only.
func (p PriceMicros) Float() float64 { return float64(p) / PriceScale }

// Float returns the quantity as a float64. Boundary use only.
func (q QtySats) Float() float64 { return float64(q) / QtyScale }

func (p PriceMicros) String() string {
	return fmt.Sprintf("%.6f", float64(p)/PriceScale)
}

func (q QtySats) String() string {
	return fmt.Sprintf("%.8f", float64(q)/QtyScale)
}

// ParsePriceMicros parses a numeric wire string ("1.23") into PriceMicros.
// Uses decimal arithmetic so exchange strings like "0.00000100" survive intact.
func ParsePriceMicros(s string) (PriceMicros, error) {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return 0, fmt.Errorf("parse price %q: %w", s, err)
	}
	return PriceMicros(d.Shift(6).IntPart()), nil
}

// ParseQtySats parses a numeric wire string into QtySats.
func ParseQtySats(s string) (QtySats, error) {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return 0, fmt.Errorf("parse qty %q: %w", s, err)
	}
	return QtySats(d.Shift(8).IntPart()), nil
}

// WireString formats a quantity for the exchange API, trimming
// trailing zeros ("0.01000000" -> "0.01") the way order endpoints expect.
func (q QtySats) WireString() string {
	return decimal.New(int64(q), -8).String()
}

// Notional returns quantity*price expressed in quote-asset micros.
// Panics on int64 overflow: a notional that large means corrupted inputs,
// and trading on it must not continue.
func Notional(q QtySats, p PriceMicros) PriceMicros {
	return PriceMicros(mulDiv(int64(q), int64(p), QtyScale))
}

// QuoteToQty converts a quote-asset amount into base quantity at the given
// price: qty = quote/price, in fixed point.
func QuoteToQty(quote PriceMicros, p PriceMicros) QtySats {
	if p <= 0 {
		return 0
	}
	return QtySats(mulDiv(int64(quote), QtyScale, int64(p)))
}

// QuoteToQtyCeil is QuoteToQty with ceiling division: the smallest quantity
// whose notional at price p is at least quote.
func QuoteToQtyCeil(quote PriceMicros, p PriceMicros) QtySats {
	if p <= 0 {
		return 0
	}
	q := QtySats(mulDiv(int64(quote), QtyScale, int64(p)))
	for Notional(q, p) < quote {
		q++
	}
	return q
}

// FloorToStep floors q down to an integer multiple of step.
// Integer-domain arithmetic: no float drift. step <= 0 leaves q unchanged.
func FloorToStep(q, step QtySats) QtySats {
	if step <= 0 {
		return q
	}
	return q - q%step
}

// CeilToStep rounds q up to the next integer multiple of step.
func CeilToStep(q, step QtySats) QtySats {
	if step <= 0 {
		return q
	}
	if rem := q % step; rem != 0 {
		return q + (step - rem)
	}
	return q
}

// mulDiv computes a*b/div through a 128-bit intermediate so that large
// notionals (whole coins at six-figure prices) do not overflow int64.
// Inputs are amounts and prices, never negative. Panics if the final
// quotient itself exceeds int64: a value that large means corrupted inputs,
// and trading on it must not continue.
func mulDiv(a, b, div int64) int64 {
	if a < 0 || b < 0 || div <= 0 {
		panic(fmt.Sprintf("quant: mulDiv domain violation (%d, %d, %d)", a, b, div))
	}
	hi, lo := bits.Mul64(uint64(a), uint64(b))
	if hi >= uint64(div) {
		panic(fmt.Sprintf("quant: quotient overflow in %d*%d/%d", a, b, div))
	}
	quo, _ := bits.Div64(hi, lo, uint64(div))
	if quo > math.MaxInt64 {
		panic(fmt.Sprintf("quant: quotient overflow in %d*%d/%d", a, b, div))
	}
	return int64(quo)
}
