package auth

import (
	"crypto/sha256"
	"encoding/hex"
)

// fingerprintLength is how many hex characters of the token hash go into logs
const fingerprintLength = 12

// fingerprint identifies a token in logs without revealing it
func fingerprint(token string) string {
	if token == "" {
		return ""
	}
	hash := sha256.Sum256([]byte(token))
	return hex.EncodeToString(hash[:])[:fingerprintLength]
}
