// Package roomid derives the canonical identifier for a two-party
// conversation. The derivation is symmetric in its arguments, so both
// participants compute the same room id without coordination.
package roomid

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"strings"

	"github.com/google/uuid"
)

// Width is the fixed length each normalized participant id occupies inside
// a room id. A room id is always exactly 2*Width characters.
const Width = 32

var ErrInvalidIdentifier = errors.New("roomid: identifier empty after normalization")

// Derive computes the room id for the conversation between a and b.
// Both ids are stripped of separator characters, encoded to a fixed width
// and concatenated in lexicographic order, so Derive(a, b) == Derive(b, a)
// and the output length is constant regardless of input length.
func Derive(a, b string) (string, error) {
	na, err := encode(a)
	if err != nil {
		return "", err
	}
	nb, err := encode(b)
	if err != nil {
		return "", err
	}
	if nb < na {
		na, nb = nb, na
	}
	return na + nb, nil
}

// Peer recovers the other participant's normalized id from a room id.
// When the recovered half decodes as a UUID it is returned in canonical
// dashed form, matching the shape the id had before normalization.
func Peer(roomID, selfID string) (string, error) {
	if len(roomID) != 2*Width {
		return "", ErrInvalidIdentifier
	}
	self, err := encode(selfID)
	if err != nil {
		return "", err
	}
	first, second := roomID[:Width], roomID[Width:]

	var other string
	switch self {
	case first:
		other = second
	case second:
		other = first
	default:
		return "", ErrInvalidIdentifier
	}
	return prettify(other), nil
}

// encode normalizes an identifier and fits it into exactly Width
// characters: shorter ids are left-padded with zeros, longer ids are
// hashed down. Collisions are therefore impossible for ids that fit the
// width (the common case, e.g. 32-hex UUIDs) and cryptographically
// unlikely beyond it.
func encode(id string) (string, error) {
	n := normalize(id)
	if n == "" {
		return "", ErrInvalidIdentifier
	}
	if len(n) > Width {
		sum := sha256.Sum256([]byte(n))
		return hex.EncodeToString(sum[:Width/2]), nil
	}
	return strings.Repeat("0", Width-len(n)) + n, nil
}

// normalize strips separator characters and lowercases, keeping only
// alphanumerics.
func normalize(id string) string {
	var b strings.Builder
	b.Grow(len(id))
	for _, r := range strings.ToLower(id) {
		if r >= 'a' && r <= 'z' || r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	return b.String()
}

// prettify restores the dashed UUID form for halves that decode as RFC
// 4122 UUIDs. Anything else, including short hex identifiers that only
// look like 16 bytes because of the zero padding, is returned as stored
// minus that padding.
func prettify(half string) string {
	if raw, err := hex.DecodeString(half); err == nil && len(raw) == 16 {
		if u, err := uuid.FromBytes(raw); err == nil && u.Variant() == uuid.RFC4122 {
			return u.String()
		}
	}
	return strings.TrimLeft(half, "0")
}
