package engine

import (
	"testing"

	"epicenter/pkg/quant"
)

func TestPriceBoard_LastWriteWins(t *testing.T) {
	b := NewPriceBoard([]string{"BTCUSDT", "ETHUSDT"})

	b.SetPrice("BTCUSDT", 100)
	b.SetPrice("BTCUSDT", 200)
	b.SetPrice("BTCUSDT", 150)

	px, ok := b.Price("BTCUSDT")
	if !ok || px != 150 {
		t.Errorf("Price = (%d, %v), want (150, true)", px, ok)
	}

	px, ok = b.Price("ETHUSDT")
	if !ok || px != 0 {
		t.Errorf("untouched symbol = (%d, %v), want (0, true)", px, ok)
	}
}

func TestPriceBoard_UnknownSymbolDropped(t *testing.T) {
	b := NewPriceBoard([]string{"BTCUSDT"})

	b.SetPrice("DOGEUSDT", 42)
	if _, ok := b.Price("DOGEUSDT"); ok {
		t.Error("unknown symbol must not appear on the board")
	}

	select {
	case <-b.Wake():
		t.Error("dropped tick must not wake the loop")
	default:
	}
}

func TestPriceBoard_TickSequenceAdvancesOnSamePrice(t *testing.T) {
	b := NewPriceBoard([]string{"BTCUSDT"})

	b.SetPrice("BTCUSDT", 100)
	_, seq1, ok := b.Tick("BTCUSDT")
	if !ok || seq1 == 0 {
		t.Fatalf("Tick = (seq %d, %v) after first publish", seq1, ok)
	}

	// Same price again is still a new tick.
	b.SetPrice("BTCUSDT", 100)
	px, seq2, _ := b.Tick("BTCUSDT")
	if px != 100 {
		t.Errorf("px = %d, want 100", px)
	}
	if seq2 <= seq1 {
		t.Errorf("sequence did not advance on repeated price: %d -> %d", seq1, seq2)
	}

	if _, _, ok := b.Tick("DOGEUSDT"); ok {
		t.Error("unknown symbol must not report ticks")
	}
}

func TestPriceBoard_WakeCoalesces(t *testing.T) {
	b := NewPriceBoard([]string{"BTCUSDT"})

	for i := 0; i < 100; i++ {
		b.SetPrice("BTCUSDT", quant.PriceMicros(i+1))
	}

	// Any burst collapses to exactly one pending wakeup.
	select {
	case <-b.Wake():
	default:
		t.Fatal("expected a pending wakeup")
	}
	select {
	case <-b.Wake():
		t.Error("expected at most one pending wakeup")
	default:
	}
}
