package auth

import (
	"crypto/rand"
	"encoding/base64"
	"sync"
)

// NewOpaqueToken returns 32 random bytes encoded as URL-safe base64. Callers
// persist only a Hasher digest of it.
func NewOpaqueToken() (string, error) {
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(buf), nil
}

var (
	decoyOnce sync.Once
	decoyHash string
)

// BurnVerify runs a verification against a throwaway hash so a lookup miss
// costs the same as a password mismatch.
func BurnVerify(h Hasher, secret string) {
	decoyOnce.Do(func() {
		decoyHash, _ = h.Hash("decoy-secret-never-matches")
	})
	_ = h.Verify(decoyHash, secret)
}
