package auth

import (
	"crypto/ed25519"
	"encoding/hex"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"ticket-escrow/models"
	"ticket-escrow/utils"

	"golang.org/x/crypto/blake2b"
)

const (
	HeaderAddress   = "X-Auth-Address"
	HeaderSignature = "X-Auth-Signature"
	HeaderTimestamp = "X-Auth-Timestamp"
	HeaderNonce     = "X-Auth-Nonce"
)

const (
	minNonceLen = 8
	maxNonceLen = 128
)

// ErrReplayed is returned for a signed request whose nonce was already used.
var ErrReplayed = errors.New("auth: request nonce already used")

// Digest is the message every signer of a request signs.
func Digest(method, path string, timestamp int64, nonce string, body []byte) []byte {
	h, _ := blake2b.New256(nil)
	fmt.Fprintf(h, "%s\n%s\n%d\n%s\n", method, path, timestamp, nonce)
	h.Write(body)
	return h.Sum(nil)
}

// SignRequest adds one signer's headers to r. The timestamp and nonce
// headers are shared by every signer of a request; the first signer picks a
// random nonce if none is set.
func SignRequest(r *http.Request, body []byte, timestamp int64, key ed25519.PrivateKey) {
	r.Header.Set(HeaderTimestamp, strconv.FormatInt(timestamp, 10))
	nonce := r.Header.Get(HeaderNonce)
	if nonce == "" {
		var err error
		if nonce, err = utils.GenerateCode(16); err != nil {
			panic(err)
		}
		r.Header.Set(HeaderNonce, nonce)
	}
	sig := ed25519.Sign(key, Digest(r.Method, r.URL.Path, timestamp, nonce, body))
	r.Header.Add(HeaderAddress, models.AddressFromPublicKey(key.Public().(ed25519.PublicKey)).String())
	r.Header.Add(HeaderSignature, hex.EncodeToString(sig))
}

// Verifier checks signed request headers. Each (address, nonce) pair is
// accepted once; Nonces must remember it at least as long as a timestamp
// stays inside MaxSkew.
type Verifier struct {
	MaxSkew time.Duration
	Now     func() time.Time
	Nonces  NonceStore
}

// NewVerifier returns a Verifier backed by nonces, or by an in-process
// store when nonces is nil.
func NewVerifier(maxSkew time.Duration, nonces NonceStore) *Verifier {
	if nonces == nil {
		nonces = NewMemoryNonces()
	}
	return &Verifier{MaxSkew: maxSkew, Now: time.Now, Nonces: nonces}
}

// Verify returns the addresses whose signatures over the request check out.
// A request without signatures verifies to an empty set; any bad signature
// rejects the whole request, and so does a nonce seen before.
func (v *Verifier) Verify(r *http.Request, body []byte) ([]models.Address, error) {
	addrs := r.Header.Values(HeaderAddress)
	sigs := r.Header.Values(HeaderSignature)
	if len(addrs) == 0 && len(sigs) == 0 {
		return nil, nil
	}
	if len(addrs) != len(sigs) {
		return nil, fmt.Errorf("auth: %d addresses but %d signatures", len(addrs), len(sigs))
	}

	ts, err := strconv.ParseInt(r.Header.Get(HeaderTimestamp), 10, 64)
	if err != nil {
		return nil, fmt.Errorf("auth: invalid timestamp: %w", err)
	}
	now := v.Now()
	if skew := now.Sub(time.Unix(ts, 0)); skew > v.MaxSkew || skew < -v.MaxSkew {
		return nil, fmt.Errorf("auth: timestamp outside allowed skew of %s", v.MaxSkew)
	}
	nonce := r.Header.Get(HeaderNonce)
	if len(nonce) < minNonceLen || len(nonce) > maxNonceLen {
		return nil, fmt.Errorf("auth: nonce must be %d to %d characters", minNonceLen, maxNonceLen)
	}

	digest := Digest(r.Method, r.URL.Path, ts, nonce, body)
	signers := make([]models.Address, 0, len(addrs))
	for i, a := range addrs {
		addr := models.Address(a)
		pub, ok := addr.PublicKey()
		if !ok {
			return nil, fmt.Errorf("auth: malformed address %q", a)
		}
		sig, err := hex.DecodeString(sigs[i])
		if err != nil || !ed25519.Verify(pub, digest, sig) {
			return nil, fmt.Errorf("auth: bad signature for %s", addr)
		}
		signers = append(signers, addr)
	}

	// A timestamp at the far edge of the window stays valid for 2*MaxSkew.
	ttl := 2 * v.MaxSkew
	for _, addr := range signers {
		fresh, err := v.Nonces.Claim(r.Context(), addr, nonce, ttl)
		if err != nil {
			return nil, fmt.Errorf("auth: claim nonce: %w", err)
		}
		if !fresh {
			return nil, fmt.Errorf("%w for %s", ErrReplayed, addr)
		}
	}
	return signers, nil
}
