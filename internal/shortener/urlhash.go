package shortener

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"
)

// HashURL computes the dedup index key for a target URL. The URL is hashed
// exactly as submitted: fragments, trailing slashes and letter case all
// select different targets.
func HashURL(rawURL string) URLHash {
	h := sha256.Sum256([]byte(rawURL))

	return URLHash(strings.ToUpper(hex.EncodeToString(h[:])))
}
