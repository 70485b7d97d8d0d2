// Package lobbycode maps 64-bit session identifiers to short human-typeable
// codes used for out-of-band session discovery.
package lobbycode

import (
	"errors"
	"fmt"
	"strings"
)

// Alphabet excludes the easily-confused characters 0/O, 1/I/L, leaving 31
// symbols.
const alphabet = "ABCDEFGHJKMNPQRSTUVWXYZ23456789"

// Length is the canonical code length.
const Length = 12

// Capacity is the number of distinct ids a 12-character code can carry:
// 31^12. Encode is only bijective below this bound, so session id
// generators must draw from [0, Capacity).
const Capacity uint64 = 787662783788549761

// legacyLength is the old 6-character form, still accepted on decode. Six
// digits only cover 30 bits, so legacy codes are lossy for the full id space.
const legacyLength = 6

var ErrInvalidCode = errors.New("invalid lobby code")

// Encode renders id as a fixed-length, zero-padded base-31 code,
// most-significant digit first. Ids at or above Capacity alias lower ones:
// Encode(id) == Encode(id % Capacity).
func Encode(id uint64) string {
	var code [Length]byte
	remaining := id
	for i := Length - 1; i >= 0; i-- {
		code[i] = alphabet[remaining%uint64(len(alphabet))]
		remaining /= uint64(len(alphabet))
	}
	return string(code[:])
}

// Decode parses a 12-character code (or a legacy 6-character one) back into
// a session id. Input is case-insensitive.
func Decode(code string) (uint64, error) {
	if code == "" {
		return 0, fmt.Errorf("%w: empty", ErrInvalidCode)
	}
	if len(code) != Length && len(code) != legacyLength {
		return 0, fmt.Errorf("%w: length %d, want %d or %d", ErrInvalidCode, len(code), Length, legacyLength)
	}

	code = strings.ToUpper(code)
	var id uint64
	for _, c := range code {
		idx := strings.IndexRune(alphabet, c)
		if idx < 0 {
			return 0, fmt.Errorf("%w: character %q", ErrInvalidCode, c)
		}
		id = id*uint64(len(alphabet)) + uint64(idx)
	}
	return id, nil
}

// IsValid reports whether code has an accepted length and every character is
// in the alphabet after uppercasing.
func IsValid(code string) bool {
	if len(code) != Length && len(code) != legacyLength {
		return false
	}
	for _, c := range strings.ToUpper(code) {
		if !strings.ContainsRune(alphabet, c) {
			return false
		}
	}
	return true
}

// Normalize uppercases a code for storage and comparison. It does not
// validate.
func Normalize(code string) string {
	return strings.ToUpper(code)
}
