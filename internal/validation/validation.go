// Package validation holds the pure precondition checks shared by the
// contract entry points. Each returns the matching status error or nil.
package validation

import (
	"ticket-escrow/internal/status"
	"ticket-escrow/models"

	"github.com/shopspring/decimal"
)

// MaxFeeBps is 100% expressed in basis points.
const MaxFeeBps = 10_000

func Address(addr models.Address) error {
	if !addr.Valid() {
		return status.ErrInvalidAddress
	}
	return nil
}

// PositiveAmount rejects zero, negative and fractional amounts.
func PositiveAmount(amount decimal.Decimal) error {
	if !amount.IsPositive() || !amount.IsInteger() {
		return status.ErrInvalidAmount
	}
	return nil
}

func PositiveCapacity(capacity uint32) error {
	if capacity == 0 {
		return status.ErrCapacityExceeded
	}
	return nil
}

func TimeRange(start, end uint64) error {
	if start >= end {
		return status.ErrInvalidTimeRange
	}
	return nil
}

func NonEmpty(s string) error {
	if len(s) == 0 {
		return status.ErrEmptyString
	}
	return nil
}

func FeeBps(bps uint32) error {
	if bps > MaxFeeBps {
		return status.ErrInvalidPlatformFee
	}
	return nil
}

func Threshold(threshold uint32, signers int) error {
	if threshold == 0 || int(threshold) > signers {
		return status.ErrInvalidThreshold
	}
	return nil
}
