package cache

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
)

// RegistryHash computes a deterministic fingerprint of a registry
// document: the JSON is decoded and re-encoded (which sorts object
// keys), hashed with SHA-256, and truncated to the first 16 hex
// characters. Equal documents hash equally regardless of key order or
// whitespace in the input.
func RegistryHash(registryJSON []byte) (string, error) {
	var v any
	if err := json.Unmarshal(registryJSON, &v); err != nil {
		return "", fmt.Errorf("failed to parse registry for hashing: %w", err)
	}
	canonical, err := json.Marshal(v)
	if err != nil {
		return "", err
	}
	sum := sha256.Sum256(canonical)
	return hex.EncodeToString(sum[:])[:16], nil
}
