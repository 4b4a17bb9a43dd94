package binance

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"net/url"
	"strconv"
	"sync"
	"time"
)

// Signer authenticates order requests: HMAC-SHA256 over the canonical
// query string, hex-encoded, with a millisecond timestamp nonce.
// The secret is held as []byte so it can be wiped on shutdown.
type Signer struct {
	secret []byte

	mu     sync.Mutex
	lastTs int64
}

// NewSigner creates a signer for the given API secret.
func NewSigner(secret string) *Signer {
	return &Signer{secret: []byte(secret)}
}

// Wipe clears the secret from memory.
func (s *Signer) Wipe() {
	if s == nil {
		return
	}
	for i := range s.secret {
		s.secret[i] = 0
	}
}

// Sign stamps params with a strictly increasing timestamp and appends the
// signature over the encoded query. The returned string is the final query
// to send; the signature covers exactly the bytes that precede it.
func (s *Signer) Sign(params url.Values) string {
	params.Set("timestamp", strconv.FormatInt(s.timestamp(), 10))
	query := params.Encode()
	return query + "&signature=" + s.signature(query)
}

// timestamp returns current millis, bumped past the previous nonce if two
// orders land in the same millisecond.
func (s *Signer) timestamp() int64 {
	s.mu.Lock()
	defer s.mu.Unlock()

	ts := time.Now().UnixMilli()
	if ts <= s.lastTs {
		ts = s.lastTs + 1
	}
	s.lastTs = ts
	return ts
}

func (s *Signer) signature(payload string) string {
	mac := hmac.New(sha256.New, s.secret)
	mac.Write([]byte(payload))
	return hex.EncodeToString(mac.Sum(nil))
}
