package common

import (
	"crypto/rand"
	"encoding/hex"
)

// MakeRandHexString returns size bytes of crypto/rand output, hex encoded
// (lower case, 2*size characters).
func MakeRandHexString(size int) (string, error) {
	b := make([]byte, size)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return hex.EncodeToString(b), nil
}
