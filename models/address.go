package models

import (
	"crypto/ed25519"
	"encoding/hex"
	"strings"
)

// Address identifies an account: the lowercase hex encoding of an ed25519
// public key.
type Address string

const addressHexLen = ed25519.PublicKeySize * 2

func AddressFromPublicKey(pub ed25519.PublicKey) Address {
	return Address(hex.EncodeToString(pub))
}

// PublicKey decodes the address. ok is false for malformed addresses.
func (a Address) PublicKey() (ed25519.PublicKey, bool) {
	if len(a) != addressHexLen || strings.ToLower(string(a)) != string(a) {
		return nil, false
	}
	raw, err := hex.DecodeString(string(a))
	if err != nil {
		return nil, false
	}
	return ed25519.PublicKey(raw), true
}

func (a Address) Valid() bool {
	_, ok := a.PublicKey()
	return ok
}

func (a Address) String() string {
	return string(a)
}
