package utils

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"
)

// HashQuery returns a stable cache key for query text. Case and whitespace
// differences map to the same key.
func HashQuery(input string) string {
	normalized := strings.ToLower(strings.Join(strings.Fields(input), " "))
	sum := sha256.Sum256([]byte(normalized))
	return hex.EncodeToString(sum[:])
}
