package auth

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"strings"
)

// KeyPrefix marks raw API keys so they are recognisable in logs and headers.
const KeyPrefix = "ck_"

// GenerateKey returns a new raw API key and its storage hash.
func GenerateKey() (raw, hash string, err error) {
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		return "", "", err
	}
	raw = KeyPrefix + hex.EncodeToString(buf)
	return raw, HashKey(raw), nil
}

// HashKey returns the hex SHA-256 of a raw key.
func HashKey(raw string) string {
	sum := sha256.Sum256([]byte(strings.TrimSpace(raw)))
	return hex.EncodeToString(sum[:])
}
