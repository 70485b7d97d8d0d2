package lobbycode

import (
	"math"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEncode_FixedLengthUppercase(t *testing.T) {
	for _, id := range []uint64{0, 1, 31, 32, 12345678, math.MaxUint64} {
		code := Encode(id)
		assert.Len(t, code, Length)
		assert.Equal(t, strings.ToUpper(code), code)
		assert.True(t, IsValid(code), "Encode output must validate: %q", code)
	}
}

func TestRoundTrip(t *testing.T) {
	// Bijective over [0, Capacity); ids past the bound alias lower ones and
	// are covered separately.
	ids := []uint64{
		0, 1, 29, 30, 31, 32, 33,
		1 << 16, 1 << 32, 1 << 59,
		109775241099511, // typical matchmaking lobby id magnitude
		Capacity - 1,
	}
	for _, id := range ids {
		got, err := Decode(Encode(id))
		require.NoError(t, err)
		assert.Equal(t, id, got)
	}
}

func TestEncode_AliasesBeyondCapacity(t *testing.T) {
	assert.Equal(t, Encode(0), Encode(Capacity))
	assert.Equal(t, Encode(1), Encode(Capacity+1))

	got, err := Decode(Encode(math.MaxUint64))
	require.NoError(t, err)
	assert.Equal(t, math.MaxUint64%Capacity, got)
}

func TestDecode_CaseInsensitive(t *testing.T) {
	code := Encode(987654321)
	got, err := Decode(strings.ToLower(code))
	require.NoError(t, err)
	assert.Equal(t, uint64(987654321), got)
}

func TestDecode_LegacySixCharForm(t *testing.T) {
	// "AAAAAB" is 1 in base 31 with this alphabet.
	got, err := Decode("AAAAAB")
	require.NoError(t, err)
	assert.Equal(t, uint64(1), got)

	got, err = Decode("aaaaab")
	require.NoError(t, err)
	assert.Equal(t, uint64(1), got)
}

func TestDecode_Invalid(t *testing.T) {
	for _, code := range []string{
		"",
		"ABC",             // wrong length
		"ABCDEFG",         // 7 chars
		"ABCDEFGHJKMNP",   // 13 chars
		"ABCD0BCDEFGH",    // 0 not in alphabet
		"OOOOOO",          // O not in alphabet
		"ABCD23FGH1KM",    // 1 not in alphabet
		"ABCDEFGHJKM ",    // space
	} {
		_, err := Decode(code)
		assert.ErrorIs(t, err, ErrInvalidCode, "code %q", code)
		assert.False(t, IsValid(code), "code %q", code)
	}
}

func TestIsValid(t *testing.T) {
	assert.True(t, IsValid("ABCD23FGHJKM"))
	assert.True(t, IsValid("abcd23fghjkm")) // case-insensitive
	assert.True(t, IsValid("AAAAAB"))       // legacy length
	assert.False(t, IsValid("ABCD23FGHJK")) // 11 chars
	assert.False(t, IsValid("ABCD23FGHIKM")) // I excluded
	assert.False(t, IsValid("ABCD23FGHLKM")) // L excluded
}

func TestNormalize(t *testing.T) {
	assert.Equal(t, "ABCD23FGHJKM", Normalize("abcd23fghjkm"))
}
