package domain

import (
	"crypto/sha256"
	"encoding/hex"
)

// fingerprintDomain separates field fingerprints from any other hash the
// store may compute. Bump the suffix if the canonical form ever changes.
const fingerprintDomain = "verstore/fields/v1"

// FingerprintLength is the length of every ContentHash.
const FingerprintLength = sha256.Size * 2

// Fingerprint returns the content hash of a field set.
// Format: hex(SHA256(domain + 0x00 + CanonicalFields(f))).
func Fingerprint(f Fields) string {
	h := sha256.New()
	h.Write([]byte(fingerprintDomain))
	h.Write([]byte{0x00})
	h.Write(CanonicalFields(f))
	return hex.EncodeToString(h.Sum(nil))
}
