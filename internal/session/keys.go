package session

import (
	"crypto/sha256"
	"io"

	"golang.org/x/crypto/hkdf"
)

// DeriveKey expands the application secret into an n-byte key for one
// purpose. Different info strings yield independent keys, so the single
// SESSION_SECRET can back cookie signing, cookie encryption and CSRF.
func DeriveKey(secret, info string, n int) []byte {
	key := make([]byte, n)
	r := hkdf.New(sha256.New, []byte(secret), nil, []byte(info))
	if _, err := io.ReadFull(r, key); err != nil {
		// hkdf only fails when more than 255*HashLen bytes are requested.
		panic("session: derive key: " + err.Error())
	}
	return key
}

// KeyPairs returns the hash and block keys for securecookie codecs.
func KeyPairs(secret string) [][]byte {
	return [][]byte{
		DeriveKey(secret, "moard session hash", 64),
		DeriveKey(secret, "moard session block", 32),
	}
}
