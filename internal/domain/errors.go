package domain

import (
	"errors"
	"fmt"
)

// ErrKind classifies a failure so the engine loop can pick a retry policy
// by kind instead of treating every error the same way.
type ErrKind int

const (
	// ErrTransient covers timeouts and connectivity failures. The affected
	// symbol skips its cycle and retries on the next wake.
	ErrTransient ErrKind = iota + 1
	// ErrConstraint means no viable quantity satisfies the exchange rules at
	// the current price/balance. A skipped opportunity, not an error.
	ErrConstraint
	// ErrAuth means the exchange rejected the request signature. Retrying
	// will not help; repeated occurrences must escalate.
	ErrAuth
	// ErrConfig is fatal at startup: missing credentials, empty universe.
	ErrConfig
)

func (k ErrKind) String() string {
	switch k {
	case ErrTransient:
		return "TRANSIENT"
	case ErrConstraint:
		return "CONSTRAINT"
	case ErrAuth:
		return "AUTH"
	case ErrConfig:
		return "CONFIG"
	default:
		return "UNKNOWN"
	}
}

// TradeError is an error tagged with a kind and the operation that failed.
type TradeError struct {
	Kind ErrKind
	Op   string
	Err  error
}

func (e *TradeError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("%s: %s", e.Op, e.Kind)
	}
	return fmt.Sprintf("%s: %s: %v", e.Op, e.Kind, e.Err)
}

func (e *TradeError) Unwrap() error { return e.Err }

// NewTradeError wraps err with a kind tag.
func NewTradeError(kind ErrKind, op string, err error) *TradeError {
	return &TradeError{Kind: kind, Op: op, Err: err}
}

// KindOf extracts the kind from an error chain. Untagged errors are treated
// as transient: the loop-local skip-and-retry policy is the safe default.
func KindOf(err error) ErrKind {
	var te *TradeError
	if errors.As(err, &te) {
		return te.Kind
	}
	return ErrTransient
}
