package utils

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"fmt"
	"strconv"
	"time"
)

const opaqueRandomBytes = 16

// NewOpaqueID builds prefix + base36 millis + "_" + 16 hex chars of
// sha256(random || millis) + the random bytes in hex. It is a lookup key
// only and encodes nothing about what it refers to.
func NewOpaqueID(prefix string, now time.Time) (string, error) {
	random := make([]byte, opaqueRandomBytes)
	if _, err := rand.Read(random); err != nil {
		return "", fmt.Errorf("failed to read random bytes: %w", err)
	}

	stamp := strconv.FormatInt(now.UnixMilli(), 36)
	sum := sha256.Sum256(append(append([]byte{}, random...), stamp...))

	return prefix + stamp + "_" + hex.EncodeToString(sum[:])[:16] + hex.EncodeToString(random), nil
}

func EncodeString(input string) string {
	return base64.StdEncoding.EncodeToString([]byte(input))
}

func DecodeString(encoded string) (string, error) {
	decoded, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return "", err
	}
	return string(decoded), nil
}
