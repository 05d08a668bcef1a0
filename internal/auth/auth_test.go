package auth

import (
	"bytes"
	"context"
	"crypto/ed25519"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"ticket-escrow/internal/status"
	"ticket-escrow/models"

	"github.com/go-redis/redismock/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestContextAuthorizer(t *testing.T) {
	ctx := WithSigners(context.Background(), "alice")
	ctx = WithSigners(ctx, "bob")
	a := ContextAuthorizer{}

	assert.NoError(t, a.RequireAuth(ctx, "alice"))
	assert.NoError(t, a.RequireAuth(ctx, "bob"))
	assert.ErrorIs(t, a.RequireAuth(ctx, "mallory"), status.ErrUnauthorized)
	assert.ErrorIs(t, a.RequireAuth(ctx, ""), status.ErrUnauthorized)
	assert.ErrorIs(t, a.RequireAuth(context.Background(), "alice"), status.ErrUnauthorized)
}

func TestWithSigners_DoesNotAliasParent(t *testing.T) {
	parent := WithSigners(context.Background(), "alice")
	_ = WithSigners(parent, "bob")

	assert.Equal(t, []models.Address{"alice"}, Signers(parent))
}

func TestAllowAll(t *testing.T) {
	assert.NoError(t, AllowAll{}.RequireAuth(context.Background(), "anyone"))
}

func newSignedRequest(t *testing.T, body []byte, ts int64, keys ...ed25519.PrivateKey) *http.Request {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, "/api/contract/events", bytes.NewReader(body))
	for _, k := range keys {
		SignRequest(req, body, ts, k)
	}
	return req
}

func TestVerifier_Verify(t *testing.T) {
	_, alice, err := ed25519.GenerateKey(nil)
	require.NoError(t, err)
	_, bob, err := ed25519.GenerateKey(nil)
	require.NoError(t, err)

	now := time.Unix(1_700_000_000, 0)
	v := &Verifier{MaxSkew: time.Minute, Now: func() time.Time { return now }, Nonces: NewMemoryNonces()}
	body := []byte(`{"name":"Test Event"}`)

	t.Run("two valid signers", func(t *testing.T) {
		req := newSignedRequest(t, body, now.Unix(), alice, bob)
		signers, err := v.Verify(req, body)
		require.NoError(t, err)
		require.Len(t, signers, 2)
		assert.Equal(t, models.AddressFromPublicKey(alice.Public().(ed25519.PublicKey)), signers[0])
	})

	t.Run("unsigned request", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/api/contract/events/1", nil)
		signers, err := v.Verify(req, nil)
		require.NoError(t, err)
		assert.Empty(t, signers)
	})

	t.Run("tampered body", func(t *testing.T) {
		req := newSignedRequest(t, body, now.Unix(), alice)
		_, err := v.Verify(req, []byte(`{"name":"Other"}`))
		assert.Error(t, err)
	})

	t.Run("stale timestamp", func(t *testing.T) {
		req := newSignedRequest(t, body, now.Add(-2*time.Minute).Unix(), alice)
		_, err := v.Verify(req, body)
		assert.Error(t, err)
		assert.Contains(t, err.Error(), "skew")
	})

	t.Run("replayed request", func(t *testing.T) {
		req := newSignedRequest(t, body, now.Unix(), alice)
		_, err := v.Verify(req, body)
		require.NoError(t, err)

		replay := httptest.NewRequest(http.MethodPost, "/api/contract/events", bytes.NewReader(body))
		replay.Header = req.Header.Clone()
		_, err = v.Verify(replay, body)
		assert.ErrorIs(t, err, ErrReplayed)
	})

	t.Run("nonce is signed", func(t *testing.T) {
		req := newSignedRequest(t, body, now.Unix(), alice)
		req.Header.Set(HeaderNonce, "0000000000000000")
		_, err := v.Verify(req, body)
		assert.Error(t, err)
		assert.Contains(t, err.Error(), "bad signature")
	})

	t.Run("missing nonce", func(t *testing.T) {
		req := newSignedRequest(t, body, now.Unix(), alice)
		req.Header.Del(HeaderNonce)
		_, err := v.Verify(req, body)
		assert.Error(t, err)
		assert.Contains(t, err.Error(), "nonce")
	})

	t.Run("missing signature", func(t *testing.T) {
		req := newSignedRequest(t, body, now.Unix(), alice)
		req.Header.Add(HeaderAddress, models.AddressFromPublicKey(bob.Public().(ed25519.PublicKey)).String())
		_, err := v.Verify(req, body)
		assert.Error(t, err)
	})
}

func TestSignRequest_SharesNonceAcrossSigners(t *testing.T) {
	_, alice, err := ed25519.GenerateKey(nil)
	require.NoError(t, err)
	_, bob, err := ed25519.GenerateKey(nil)
	require.NoError(t, err)

	req := newSignedRequest(t, nil, 1_700_000_000, alice, bob)
	assert.Len(t, req.Header.Values(HeaderNonce), 1)
	assert.Len(t, req.Header.Get(HeaderNonce), 32)

	other := newSignedRequest(t, nil, 1_700_000_000, alice)
	assert.NotEqual(t, req.Header.Get(HeaderNonce), other.Header.Get(HeaderNonce))
}

func TestMemoryNonces_Expire(t *testing.T) {
	ctx := context.Background()
	now := time.Unix(1_700_000_000, 0)
	n := NewMemoryNonces()
	n.now = func() time.Time { return now }

	fresh, err := n.Claim(ctx, "alice", "n1", time.Minute)
	require.NoError(t, err)
	assert.True(t, fresh)

	fresh, err = n.Claim(ctx, "alice", "n1", time.Minute)
	require.NoError(t, err)
	assert.False(t, fresh)

	fresh, err = n.Claim(ctx, "bob", "n1", time.Minute)
	require.NoError(t, err)
	assert.True(t, fresh, "nonces are scoped per signer")

	now = now.Add(time.Minute)
	fresh, err = n.Claim(ctx, "alice", "n1", time.Minute)
	require.NoError(t, err)
	assert.True(t, fresh)
}

func TestRedisNonces_Claim(t *testing.T) {
	ctx := context.Background()
	db, mock := redismock.NewClientMock()
	n := NewRedisNonces(db, "main")

	mock.ExpectSetNX("nonce:main:alice:abc123", 1, 10*time.Minute).SetVal(true)
	mock.ExpectSetNX("nonce:main:alice:abc123", 1, 10*time.Minute).SetVal(false)
	mock.ExpectSetNX("nonce:main:alice:def456", 1, 10*time.Minute).SetErr(errors.New("connection refused"))

	fresh, err := n.Claim(ctx, "alice", "abc123", 10*time.Minute)
	require.NoError(t, err)
	assert.True(t, fresh)

	fresh, err = n.Claim(ctx, "alice", "abc123", 10*time.Minute)
	require.NoError(t, err)
	assert.False(t, fresh)

	_, err = n.Claim(ctx, "alice", "def456", 10*time.Minute)
	assert.Error(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestVerifier_NonceStoreErrorRejects(t *testing.T) {
	_, alice, err := ed25519.GenerateKey(nil)
	require.NoError(t, err)
	db, mock := redismock.NewClientMock()
	mock.Regexp().ExpectSetNX(`nonce:main:.*`, 1, 2*time.Minute).SetErr(errors.New("connection refused"))

	now := time.Unix(1_700_000_000, 0)
	v := NewVerifier(time.Minute, NewRedisNonces(db, "main"))
	v.Now = func() time.Time { return now }

	_, err = v.Verify(newSignedRequest(t, nil, now.Unix(), alice), nil)
	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrReplayed)
}
