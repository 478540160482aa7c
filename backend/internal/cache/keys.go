package cache

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
)

// FeedKey builds a versioned key for a filtered list read. Equal filters map
// to the same key; bumping the namespace orphans every key built before.
func FeedKey(namespace string, version int64, filter interface{}) (string, error) {
	raw, err := json.Marshal(filter)
	if err != nil {
		return "", fmt.Errorf("failed to encode feed filter: %w", err)
	}
	sum := sha256.Sum256(raw)
	return fmt.Sprintf("feed:%s:v%d:%s", namespace, version, hex.EncodeToString(sum[:12])), nil
}
