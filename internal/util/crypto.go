package util

import (
	"crypto/rand"
	"crypto/subtle"
	"encoding/hex"
	"strings"
)

const tokenBytes = 32

// GenerateToken returns 64 hex characters, which fits the bot API's rules
// for webhook secret tokens.
func GenerateToken() (string, error) {
	bytes := make([]byte, tokenBytes)
	if _, err := rand.Read(bytes); err != nil {
		return "", err
	}
	return hex.EncodeToString(bytes), nil
}

func ConstantTimeEqual(a, b string) bool {
	return subtle.ConstantTimeCompare([]byte(a), []byte(b)) == 1
}

// MaskToken keeps the bot id part of a "<id>:<secret>" token for logs.
func MaskToken(token string) string {
	if id, _, ok := strings.Cut(token, ":"); ok && id != "" {
		return id + ":****"
	}
	return "****"
}
