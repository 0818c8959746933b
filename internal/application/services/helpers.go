package services

import (
	"crypto/sha256"
	"encoding/json"
	"fmt"
)

// ComputeHash fingerprints a request payload for idempotency-key
// comparison: same key with a different hash is a client error.
func ComputeHash(v any) string {
	sum := sha256.Sum256(fmt.Appendf(nil, "%+v", v))
	return fmt.Sprintf("%x", sum)
}

// snapshot renders an entity for an audit before/after record.
func snapshot(v any) []byte {
	b, err := json.Marshal(v)
	if err != nil {
		return fmt.Appendf(nil, "%+v", v)
	}
	return b
}
