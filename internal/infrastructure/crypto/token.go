package crypto

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"fmt"
	"math/big"
)

// CodeDigits is the length of an emailed one-time code.
const CodeDigits = 6

var codeSpace = big.NewInt(1_000_000)

// TokenGenerator provides cryptographically secure token generation.
type TokenGenerator struct{}

// NewTokenGenerator creates a new token generator.
func NewTokenGenerator() *TokenGenerator {
	return &TokenGenerator{}
}

// GenerateToken generates a cryptographically secure random token.
// Returns the token as a URL-safe base64 string.
func (g *TokenGenerator) GenerateToken(length int) (string, error) {
	bytes := make([]byte, length)
	if _, err := rand.Read(bytes); err != nil {
		return "", fmt.Errorf("failed to generate random bytes: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(bytes), nil
}

// GenerateChallengeRef generates the opaque challenge reference (256 bits).
func (g *TokenGenerator) GenerateChallengeRef() (string, error) {
	return g.GenerateToken(32)
}

// GenerateCode returns a zero-padded decimal code drawn uniformly from [0, 10^6).
func (g *TokenGenerator) GenerateCode() (string, error) {
	n, err := rand.Int(rand.Reader, codeSpace)
	if err != nil {
		return "", fmt.Errorf("failed to generate code: %w", err)
	}
	return fmt.Sprintf("%0*d", CodeDigits, n.Int64()), nil
}

// HashToken creates a SHA-256 hash of a token for secure storage.
// Session tokens and challenge references are only stored as hashes.
func (g *TokenGenerator) HashToken(token string) string {
	hash := sha256.Sum256([]byte(token))
	return hex.EncodeToString(hash[:])
}

// IsWellFormedCode reports whether code is exactly CodeDigits ASCII digits.
func IsWellFormedCode(code string) bool {
	if len(code) != CodeDigits {
		return false
	}
	for i := 0; i < len(code); i++ {
		if code[i] < '0' || code[i] > '9' {
			return false
		}
	}
	return true
}
