package execution

import "errors"

var (
	// ErrInvalidOrder is a malformed request: non-positive shares, an
	// unknown side or an empty symbol. Not retryable.
	ErrInvalidOrder = errors.New("invalid order")

	// ErrInsufficientFunds rejects a BUY costing more than available cash.
	ErrInsufficientFunds = errors.New("insufficient funds")

	// ErrInsufficientShares rejects a SELL of more shares than held.
	ErrInsufficientShares = errors.New("insufficient shares")
)

// Reason maps an execution error to a short label for metrics and logs.
func Reason(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrInvalidOrder):
		return "invalid_order"
	case errors.Is(err, ErrInsufficientFunds):
		return "insufficient_funds"
	case errors.Is(err, ErrInsufficientShares):
		return "insufficient_shares"
	}
	var r interface{ RuleName() string }
	if errors.As(err, &r) {
		return "guardrail_" + r.RuleName()
	}
	return "other"
}
