package rebalance

import (
	"errors"
	"fmt"
)

// Kind classifies a per-asset failure so the caller can decide how loudly to
// report it.
type Kind int

const (
	// KindSkip is a policy or validation skip: nothing to trade this cycle.
	KindSkip Kind = iota + 1
	// KindTransport is a failed lookup against the exchange.
	KindTransport
	// KindInternal is a programming error, including recovered panics.
	KindInternal
)

func (k Kind) String() string {
	switch k {
	case KindSkip:
		return "skip"
	case KindTransport:
		return "transport"
	case KindInternal:
		return "internal"
	default:
		return "unknown"
	}
}

type Error struct {
	Kind   Kind
	Op     string
	Symbol string
	Err    error
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s %s (%s): %v", e.Symbol, e.Op, e.Kind, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// KindOf reports the kind of err. Errors not produced by the engine count as
// internal.
func KindOf(err error) Kind {
	if err == nil {
		return 0
	}
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindInternal
}
