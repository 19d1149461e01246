package crypto

import (
	"crypto/subtle"

	"github.com/zeebo/blake3"
)

const codeHashContext = "cypressresort 2026 otp code hash v1"

// CodeHasher computes keyed hashes of one-time codes so a leaked store
// cannot be brute-forced without the server pepper.
type CodeHasher struct {
	key [32]byte
}

// NewCodeHasher derives a 32-byte BLAKE3 key from pepper.
func NewCodeHasher(pepper []byte) *CodeHasher {
	h := &CodeHasher{}
	blake3.DeriveKey(codeHashContext, pepper, h.key[:])
	return h
}

// Hash binds the code to its challenge and email.
func (h *CodeHasher) Hash(challengeID, email, code string) []byte {
	// NewKeyed only fails for a key that is not 32 bytes.
	hasher, err := blake3.NewKeyed(h.key[:])
	if err != nil {
		panic("crypto: BLAKE3 keyed hash initialization failed: " + err.Error())
	}
	hasher.Write([]byte(challengeID + "|" + email + "|" + code))
	return hasher.Sum(nil)
}

// Verify compares the hash of code against stored in constant time.
func (h *CodeHasher) Verify(stored []byte, challengeID, email, code string) bool {
	return subtle.ConstantTimeCompare(stored, h.Hash(challengeID, email, code)) == 1
}
