package binance

import (
	"net/url"
	"strconv"
	"strings"
	"testing"
	"time"
)

func TestSignature_KnownVector(t *testing.T) {
	// Standard HMAC-SHA256 test vector, hex encoding.
	s := NewSigner("key")
	got := s.signature("The quick brown fox jumps over the lazy dog")
	want := "f7bc83f430538424b13298e6aa6fb143ef4d59a14946175997479dbc2d1a3cd8"

	if got != want {
		t.Errorf("signature mismatch:\n got %s\nwant %s", got, want)
	}
}

func TestSign_QueryShape(t *testing.T) {
	s := NewSigner("secret")

	params := url.Values{}
	params.Set("symbol", "BNBBTC")
	params.Set("side", "BUY")
	params.Set("type", "MARKET")
	params.Set("quantity", "0.5")

	query := s.Sign(params)

	// Signature must be the trailing parameter so it covers everything
	// before it.
	idx := strings.LastIndex(query, "&signature=")
	if idx < 0 {
		t.Fatalf("no trailing signature in %q", query)
	}
	payload, sig := query[:idx], query[idx+len("&signature="):]

	if len(sig) != 64 {
		t.Errorf("expected 64 hex chars, got %d", len(sig))
	}
	if s.signature(payload) != sig {
		t.Error("signature does not verify against its own payload")
	}
	for _, key := range []string{"symbol=BNBBTC", "side=BUY", "type=MARKET", "quantity=0.5", "timestamp="} {
		if !strings.Contains(payload, key) {
			t.Errorf("payload missing %q: %s", key, payload)
		}
	}
}

func TestTimestamp_Monotonic(t *testing.T) {
	s := NewSigner("secret")

	prev := int64(0)
	for i := 0; i < 1000; i++ {
		ts := s.timestamp()
		if ts <= prev {
			t.Fatalf("timestamp went backwards: %d after %d", ts, prev)
		}
		prev = ts
	}

	// Nonces must stay close to wall time even after a same-millisecond burst.
	if drift := prev - time.Now().UnixMilli(); drift > 1100 {
		t.Errorf("nonce drifted %dms ahead of wall clock", drift)
	}
}

func TestSign_TimestampIsNumeric(t *testing.T) {
	s := NewSigner("secret")
	query := s.Sign(url.Values{"symbol": {"ETHBTC"}})

	parsed, err := url.ParseQuery(query)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := strconv.ParseInt(parsed.Get("timestamp"), 10, 64); err != nil {
		t.Errorf("timestamp not numeric: %q", parsed.Get("timestamp"))
	}
}
