package auth_test

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	auth "github.com/goliatone/go-credauth"
)

func TestBcryptHasher(t *testing.T) {
	hasher := auth.NewBcryptHasher(bcrypt.MinCost)
	assert.Equal(t, bcrypt.MinCost, hasher.Cost())

	digest, err := hasher.Hash("securePassword123!")
	require.NoError(t, err)
	assert.NotEqual(t, "securePassword123!", digest)

	other, err := hasher.Hash("securePassword123!")
	require.NoError(t, err)
	assert.NotEqual(t, digest, other, "every digest carries its own salt")

	tests := []struct {
		name   string
		secret string
		digest string
		want   bool
	}{
		{name: "matching secret", secret: "securePassword123!", digest: digest, want: true},
		{name: "wrong secret", secret: "securePassword123?", digest: digest, want: false},
		{name: "empty secret", secret: "", digest: digest, want: false},
		{name: "empty digest", secret: "securePassword123!", digest: "", want: false},
		{name: "malformed digest", secret: "securePassword123!", digest: "not-a-bcrypt-digest", want: false},
		{name: "oversized secret", secret: strings.Repeat("x", 100), digest: digest, want: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, hasher.Verify(tt.secret, tt.digest))
		})
	}
}

func TestBcryptHasher_RejectsEmptySecret(t *testing.T) {
	_, err := auth.NewBcryptHasher(bcrypt.MinCost).Hash("")
	assertCode(t, err, auth.ErrNoEmptyString)
}

func TestNewBcryptHasher_OutOfRangeCost(t *testing.T) {
	hasher := auth.NewBcryptHasher(bcrypt.MaxCost + 1)
	assert.GreaterOrEqual(t, hasher.Cost(), bcrypt.MinCost)
	assert.LessOrEqual(t, hasher.Cost(), bcrypt.MaxCost)
}
