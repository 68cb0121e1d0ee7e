package models

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
)

// IDSize is the width of a content identifier in bytes (SHA-256)
const IDSize = 32

// ID is a content identifier: the SHA-256 hash naming a stored object
type ID [IDSize]byte

// ParseID parses a lowercase or uppercase 64-character hex string into an ID
func ParseID(s string) (ID, error) {
	var id ID
	if len(s) != hex.EncodedLen(IDSize) {
		return id, fmt.Errorf("invalid id %q: expected %d hex characters, got %d", s, hex.EncodedLen(IDSize), len(s))
	}
	if _, err := hex.Decode(id[:], []byte(s)); err != nil {
		return id, fmt.Errorf("invalid id %q: %w", s, err)
	}
	return id, nil
}

// HashID returns the ID of the given content
func HashID(data []byte) ID {
	return ID(sha256.Sum256(data))
}

// RandomID returns a random ID
func RandomID() ID {
	var id ID
	_, _ = rand.Read(id[:]) // never fails
	return id
}

// Hex returns the lowercase hex rendering of the ID
func (id ID) Hex() string {
	return hex.EncodeToString(id[:])
}

// String implements fmt.Stringer
func (id ID) String() string {
	return id.Hex()
}

// Short returns the first 8 hex characters, used for display
func (id ID) Short() string {
	return id.Hex()[:8]
}

// IsZero reports whether the ID is the zero value
func (id ID) IsZero() bool {
	return id == ID{}
}

// MarshalText implements encoding.TextMarshaler
func (id ID) MarshalText() ([]byte, error) {
	return []byte(id.Hex()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler
func (id *ID) UnmarshalText(text []byte) error {
	parsed, err := ParseID(string(text))
	if err != nil {
		return err
	}
	*id = parsed
	return nil
}
