package apikey

import (
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"
)

// Prefix of the keys applications use to push release notes into the portal.
const Prefix = "pk_app"

// GenerateKey creates a new API key with the given prefix.
// Format: {prefix}_{48_hex_chars}
func GenerateKey(prefix, secret string) (key string, hash string, err error) {
	bytes := make([]byte, 24)
	if _, err := rand.Read(bytes); err != nil {
		return "", "", err
	}
	fullKey := fmt.Sprintf("%s_%s", prefix, hex.EncodeToString(bytes))
	return fullKey, HashKey(fullKey, secret), nil
}

// HashKey hashes the full API key for storage using HMAC-SHA256.
func HashKey(key, secret string) string {
	h := hmac.New(sha256.New, []byte(secret))
	h.Write([]byte(key))
	return hex.EncodeToString(h.Sum(nil))
}

// Verify reports whether key has the expected prefix and hashes to hash.
func Verify(key, expectedPrefix, hash, secret string) bool {
	if !strings.HasPrefix(key, expectedPrefix+"_") {
		return false
	}
	return hmac.Equal([]byte(HashKey(key, secret)), []byte(hash))
}

// Mask keeps the prefix and the last four characters of key.
func Mask(key string) string {
	i := strings.LastIndex(key, "_")
	if i < 0 || len(key)-i-1 <= 4 {
		return key
	}
	return key[:i+1] + strings.Repeat("*", 8) + key[len(key)-4:]
}
