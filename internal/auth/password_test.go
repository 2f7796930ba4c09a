package auth

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
)

func TestHasher(t *testing.T) {
	h := NewHasher(bcrypt.MinCost)

	hash, err := h.Hash("hunter2")
	require.NoError(t, err)
	assert.NotEqual(t, "hunter2", hash)
	assert.True(t, h.Check(hash, "hunter2"))
	assert.False(t, h.Check(hash, "hunter3"))
	assert.False(t, h.Check("", "hunter2"))
}

func TestHasherReject(t *testing.T) {
	h := NewHasher(bcrypt.MinCost)

	assert.False(t, h.Reject("hunter2"))
	assert.False(t, h.Reject("memkeeper-unknown-user"))

	v, ok := rejectHashes.Load(h.Cost)
	require.True(t, ok)
	cost, err := bcrypt.Cost(v.([]byte))
	require.NoError(t, err)
	assert.Equal(t, h.Cost, cost)
}

func TestNewHasher_OutOfRangeCost(t *testing.T) {
	assert.Equal(t, bcrypt.DefaultCost, NewHasher(0).Cost)
	assert.Equal(t, bcrypt.DefaultCost, NewHasher(99).Cost)
	assert.Equal(t, 12, NewHasher(12).Cost)
}

func TestNormalizeUsername(t *testing.T) {
	tests := []struct {
		in      string
		want    string
		wantErr bool
	}{
		{"ann", "ann", false},
		{"  ann  ", "ann", false},
		{"ab", "", true},
		{"   ", "", true},
		{strings.Repeat("x", 50), strings.Repeat("x", 50), false},
		{strings.Repeat("x", 51), "", true},
		{"ñañ", "ñañ", false},
	}
	for _, tt := range tests {
		got, err := NormalizeUsername(tt.in)
		if tt.wantErr {
			assert.ErrorIs(t, err, ErrInvalidUsername, "input %q", tt.in)
			continue
		}
		require.NoError(t, err, "input %q", tt.in)
		assert.Equal(t, tt.want, got)
	}
}

func TestValidatePassword(t *testing.T) {
	assert.NoError(t, ValidatePassword("abcd"))
	assert.ErrorIs(t, ValidatePassword("abc"), ErrInvalidPassword)
	assert.NoError(t, ValidatePassword(strings.Repeat("p", 72)))
	assert.ErrorIs(t, ValidatePassword(strings.Repeat("p", 73)), ErrInvalidPassword)
}

func TestValidatePIN(t *testing.T) {
	for _, pin := range []string{"1234", "00000000", "987654"} {
		assert.NoError(t, ValidatePIN(pin), pin)
	}
	for _, pin := range []string{"", "123", "123456789", "12a4", " 1234", "１２３４"} {
		assert.ErrorIs(t, ValidatePIN(pin), ErrInvalidPIN, pin)
	}
}
