package models

import "github.com/shopspring/decimal"

// ReleasePolicy selects who may release an event's escrow.
type ReleasePolicy uint8

const (
	// ReleaseByOrganizer lets the organizer release alone once the event completes.
	ReleaseByOrganizer ReleasePolicy = iota
	// ReleaseByMultisig requires a threshold of configured signers to approve.
	ReleaseByMultisig
)

func (p ReleasePolicy) String() string {
	if p == ReleaseByMultisig {
		return "multisig"
	}
	return "organizer"
}

func (p ReleasePolicy) MarshalText() ([]byte, error) {
	return []byte(p.String()), nil
}

// EscrowAccount is the per-event ledger of funds held pending release or refund.
type EscrowAccount struct {
	EventID  uint64          `json:"event_id" cbor:"1,keyasint"`
	Balance  decimal.Decimal `json:"balance" cbor:"2,keyasint"`
	Released bool            `json:"released" cbor:"3,keyasint"`
	Policy   ReleasePolicy   `json:"policy" cbor:"4,keyasint"`
}

type EscrowConfig struct {
	EventID   uint64    `json:"event_id" cbor:"1,keyasint"`
	Signers   []Address `json:"signers" cbor:"2,keyasint"`
	Threshold uint32    `json:"threshold" cbor:"3,keyasint"`
}

// IsSigner reports membership in the configured signer set.
func (c *EscrowConfig) IsSigner(addr Address) bool {
	for _, s := range c.Signers {
		if s == addr {
			return true
		}
	}
	return false
}

// DistinctSigners returns the signer set without duplicates, in order.
func (c *EscrowConfig) DistinctSigners() []Address {
	seen := make(map[Address]struct{}, len(c.Signers))
	out := make([]Address, 0, len(c.Signers))
	for _, s := range c.Signers {
		if _, dup := seen[s]; dup {
			continue
		}
		seen[s] = struct{}{}
		out = append(out, s)
	}
	return out
}

// FeeState is the instance-wide platform fee configuration and accumulator.
type FeeState struct {
	FeeBps  uint32          `json:"fee_bps"`
	Balance decimal.Decimal `json:"balance"`
}
