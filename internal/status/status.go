package status

import (
	"errors"
	"fmt"
)

// Code is the stable numeric discriminant reported to callers.
type Code uint32

// Error is a contract failure. Two errors are equal under errors.Is when
// their codes match, so wrapped errors still compare against the sentinels.
type Error struct {
	Code    Code
	Name    string
	Message string
}

func (e *Error) Error() string {
	return fmt.Sprintf("contract: %s (code %d)", e.Message, e.Code)
}

func (e *Error) Is(target error) bool {
	var t *Error
	if !errors.As(target, &t) {
		return false
	}
	return t.Code == e.Code
}

func newError(code Code, name, msg string) *Error {
	return &Error{Code: code, Name: name, Message: msg}
}

var (
	ErrNotInitialized          = newError(1, "NotInitialized", "contract not initialized")
	ErrAlreadyInitialized      = newError(2, "AlreadyInitialized", "contract already initialized")
	ErrUnauthorized            = newError(3, "Unauthorized", "caller is not authorized")
	ErrEventNotFound           = newError(4, "EventNotFound", "event not found")
	ErrTicketNotFound          = newError(5, "TicketNotFound", "ticket not found")
	ErrEventSoldOut            = newError(6, "EventSoldOut", "event sold out")
	ErrTicketAlreadyUsed       = newError(7, "TicketAlreadyUsed", "ticket already used")
	ErrInvalidStatusTransition = newError(8, "InvalidStatusTransition", "invalid status transition")
	ErrInsufficientFunds       = newError(9, "InsufficientFunds", "payment below ticket price")
	ErrRefundNotAllowed        = newError(10, "RefundNotAllowed", "refund not allowed")
	ErrEventNotCancelled       = newError(11, "EventNotCancelled", "event not cancelled")
	ErrEscrowAlreadyReleased   = newError(12, "EscrowAlreadyReleased", "escrow already released")
	ErrInvalidAmount           = newError(13, "InvalidAmount", "amount must be a positive integer")
	ErrCapacityExceeded        = newError(14, "CapacityExceeded", "capacity must be greater than zero")
	ErrInvalidTimeRange        = newError(15, "InvalidTimeRange", "start time must be before end time")
	ErrEmptyString             = newError(16, "EmptyString", "string field cannot be empty")
	ErrInvalidAddress          = newError(17, "InvalidAddress", "invalid address")
	ErrInsufficientEscrow      = newError(18, "InsufficientEscrow", "insufficient escrow balance")
	ErrInvalidPlatformFee      = newError(19, "InvalidPlatformFee", "platform fee must be at most 10000 bps")
	ErrNoPlatformFees          = newError(20, "NoPlatformFees", "no platform fees to withdraw")
	ErrInvalidThreshold        = newError(21, "InvalidThreshold", "threshold must be within 1 and the number of signers")
	ErrEscrowConfigNotFound    = newError(22, "EscrowConfigNotFound", "escrow signer configuration not found")
	ErrThresholdNotMet         = newError(23, "ThresholdNotMet", "approval threshold not met")
	ErrEscrowPolicyMismatch    = newError(24, "EscrowPolicyMismatch", "escrow is governed by a different release policy")
)

var all = []*Error{
	ErrNotInitialized, ErrAlreadyInitialized, ErrUnauthorized, ErrEventNotFound,
	ErrTicketNotFound, ErrEventSoldOut, ErrTicketAlreadyUsed, ErrInvalidStatusTransition,
	ErrInsufficientFunds, ErrRefundNotAllowed, ErrEventNotCancelled, ErrEscrowAlreadyReleased,
	ErrInvalidAmount, ErrCapacityExceeded, ErrInvalidTimeRange, ErrEmptyString,
	ErrInvalidAddress, ErrInsufficientEscrow, ErrInvalidPlatformFee, ErrNoPlatformFees,
	ErrInvalidThreshold, ErrEscrowConfigNotFound, ErrThresholdNotMet, ErrEscrowPolicyMismatch,
}

// FromCode returns the sentinel for a numeric code.
func FromCode(code Code) (*Error, bool) {
	for _, e := range all {
		if e.Code == code {
			return e, true
		}
	}
	return nil, false
}

// CodeOf extracts the contract code from err. Non-contract errors report false.
func CodeOf(err error) (Code, bool) {
	var e *Error
	if errors.As(err, &e) {
		return e.Code, true
	}
	return 0, false
}

// Wrap annotates a sentinel with detail while keeping its code.
func Wrap(sentinel *Error, format string, args ...any) error {
	return fmt.Errorf("%s: %w", fmt.Sprintf(format, args...), sentinel)
}
