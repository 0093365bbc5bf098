package utils

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"
)

// HashAlgorithm represents the hashing algorithm to use
type HashAlgorithm string

const (
	SHA256 HashAlgorithm = "sha256"
)

// Hasher provides extensible hashing functionality
type Hasher struct {
	algorithm HashAlgorithm
}

// NewHasher creates a new hasher with the specified algorithm
func NewHasher(algorithm HashAlgorithm) *Hasher {
	return &Hasher{algorithm: algorithm}
}

// DefaultHasher returns a hasher with the default algorithm
func DefaultHasher() *Hasher {
	return NewHasher(SHA256)
}

// Hash computes a hash of the input data
func (h *Hasher) Hash(data []byte) string {
	switch h.algorithm {
	case SHA256:
		sum := sha256.Sum256(data)
		return hex.EncodeToString(sum[:])
	default:
		sum := sha256.Sum256(data)
		return hex.EncodeToString(sum[:])
	}
}

// HashString computes a hash of a string
func (h *Hasher) HashString(s string) string {
	return h.Hash([]byte(s))
}

// HashFields computes a hash from multiple fields joined with a delimiter
// for consistent output
func (h *Hasher) HashFields(fields ...string) string {
	return h.HashString(strings.Join(fields, "|"))
}

// extensionNamespace keeps extension IDs disjoint from any other hashed
// identifier in the system.
const extensionNamespace = "extension"

// ExtensionIdentifier derives stable extension IDs from package names.
// Reinstalling the same package yields the same ID.
type ExtensionIdentifier struct {
	hasher *Hasher
}

// NewExtensionIdentifier creates an extension identifier
func NewExtensionIdentifier(hasher *Hasher) *ExtensionIdentifier {
	if hasher == nil {
		hasher = DefaultHasher()
	}
	return &ExtensionIdentifier{hasher: hasher}
}

// DeriveID generates the deterministic ID for a package name.
func (ei *ExtensionIdentifier) DeriveID(name string) string {
	return ei.hasher.HashFields(extensionNamespace, name)
}

// ShortID returns an 8-character form for display and logs.
func (ei *ExtensionIdentifier) ShortID(fullID string) string {
	if len(fullID) < 8 {
		return fullID
	}
	return fullID[:8]
}

// VerifyID checks that an ID matches the expected package name.
func (ei *ExtensionIdentifier) VerifyID(id, name string) bool {
	return id == ei.DeriveID(name)
}
