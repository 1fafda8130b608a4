package hasher

import (
	"crypto/md5"
	"crypto/sha1"
	"crypto/sha256"
	"crypto/sha512"
	"encoding/hex"
	"fmt"
	"hash"
	"strings"
)

// HashAlgorithms is a list of supported hashing algorithms.
var HashAlgorithms = []string{"md5", "sha1", "sha256", "sha512"}

// fingerprintLen is the number of hex characters kept in a fingerprint.
const fingerprintLen = 12

// IsValidHashAlgo checks if the provided algorithm string is supported.
func IsValidHashAlgo(algo string) bool {
	for _, validAlgo := range HashAlgorithms {
		if strings.ToLower(algo) == validAlgo {
			return true
		}
	}
	return false
}

// GenerateHash returns the hex digest of value using the specified algorithm.
func GenerateHash(value, algo string) (string, error) {
	var h hash.Hash
	switch strings.ToLower(algo) {
	case "md5":
		h = md5.New()
	case "sha1":
		h = sha1.New()
	case "sha256":
		h = sha256.New()
	case "sha512":
		h = sha512.New()
	default:
		return "", fmt.Errorf("unsupported hash algorithm: %s", algo)
	}

	h.Write([]byte(value))
	return hex.EncodeToString(h.Sum(nil)), nil
}

// Fingerprint identifies a token without revealing it, e.g. "sha256:9f86d081884c".
// Two stores hold the same session when their fingerprints match.
func Fingerprint(token, algo string) (string, error) {
	if token == "" {
		return "", nil
	}
	sum, err := GenerateHash(token, algo)
	if err != nil {
		return "", err
	}
	return strings.ToLower(algo) + ":" + sum[:fingerprintLen], nil
}
