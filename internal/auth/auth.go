// Package auth is the per-call authorization primitive. A call carries the
// set of addresses that signed it; RequireAuth fails for any other address.
package auth

import (
	"context"
	"slices"

	"ticket-escrow/internal/status"
	"ticket-escrow/models"
)

type signersKey struct{}

// WithSigners returns a context authorizing the given addresses.
func WithSigners(ctx context.Context, addrs ...models.Address) context.Context {
	merged := append(slices.Clone(Signers(ctx)), addrs...)
	return context.WithValue(ctx, signersKey{}, merged)
}

func Signers(ctx context.Context) []models.Address {
	addrs, _ := ctx.Value(signersKey{}).([]models.Address)
	return addrs
}

// Authorizer decides whether addr authorized the current call.
type Authorizer interface {
	RequireAuth(ctx context.Context, addr models.Address) error
}

// ContextAuthorizer trusts the signer set attached with WithSigners.
type ContextAuthorizer struct{}

func (ContextAuthorizer) RequireAuth(ctx context.Context, addr models.Address) error {
	if addr != "" && slices.Contains(Signers(ctx), addr) {
		return nil
	}
	return status.Wrap(status.ErrUnauthorized, "missing authorization from %q", addr)
}

// AllowAll authorizes every address. Only for tests and local simulation.
type AllowAll struct{}

func (AllowAll) RequireAuth(context.Context, models.Address) error {
	return nil
}
