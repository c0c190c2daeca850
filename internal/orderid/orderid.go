// Package orderid mints and parses participant-scoped order ids.
//
// An order id is "{trader_id}-{nonce}". Scoring recovers the trader from
// the text before the first separator, so trader ids may not contain it.
package orderid

import (
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
)

const Separator = "-"

var (
	ErrNoPrefix  = errors.New("order id has no participant prefix")
	ErrBadTrader = errors.New("bad trader id")
)

// Mint returns a fresh order id owned by traderID.
func Mint(traderID string) (string, error) {
	if err := ValidateTrader(traderID); err != nil {
		return "", err
	}
	return traderID + Separator + uuid.NewString(), nil
}

// ValidateTrader checks that traderID can be used as an order id prefix.
func ValidateTrader(traderID string) error {
	if traderID == "" {
		return fmt.Errorf("%w: empty", ErrBadTrader)
	}
	if strings.Contains(traderID, Separator) {
		return fmt.Errorf("%w: %q contains %q", ErrBadTrader, traderID, Separator)
	}
	return nil
}

// Trader returns the participant prefix of orderID.
func Trader(orderID string) (string, error) {
	prefix, nonce, ok := strings.Cut(orderID, Separator)
	if !ok || prefix == "" || nonce == "" {
		return "", fmt.Errorf("%w: %q", ErrNoPrefix, orderID)
	}
	return prefix, nil
}
