package auth_test

import (
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	goerrors "github.com/goliatone/go-errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	auth "github.com/goliatone/go-credauth"
)

func TestNewAccessTokenService_RequiresKey(t *testing.T) {
	_, err := auth.NewAccessTokenService(auth.DefaultOptions())
	assert.Error(t, err)
}

func TestAccessTokenService_MintAndVerify(t *testing.T) {
	f := newFixture(t)

	raw, expires, err := f.access.Mint("4f9d2c1e-0000-4000-8000-000000000001")
	require.NoError(t, err)
	assert.NotEmpty(t, raw)
	assert.True(t, expires.Equal(testEpoch.Add(auth.DefaultAccessTokenTTL)))

	claims, err := f.access.Verify(raw)
	require.NoError(t, err)
	assert.Equal(t, "4f9d2c1e-0000-4000-8000-000000000001", claims.AccountID())
	assert.Equal(t, claims.AccountID(), claims.Subject())
	assert.Equal(t, "credauth-test", claims.Issuer)
	assert.True(t, claims.Expires().Equal(expires))
	assert.True(t, claims.IssuedAt().Equal(testEpoch))
}

func TestAccessTokenService_VerifyRejections(t *testing.T) {
	f := newFixture(t)

	valid, _, err := f.access.Mint("account-1")
	require.NoError(t, err)

	other, err := auth.NewAccessTokenService(auth.Options{
		SigningKey: "another-signing-key-0123456789abc",
		Issuer:     "credauth-test",
	}, auth.WithAccessTokenClock(f.clock.Now))
	require.NoError(t, err)
	foreign, _, err := other.Mint("account-1")
	require.NoError(t, err)

	none := jwt.NewWithClaims(jwt.SigningMethodNone, jwt.MapClaims{
		"sub": "account-1",
		"uid": "account-1",
		"typ": "access",
		"iss": "credauth-test",
		"exp": testEpoch.Add(time.Hour).Unix(),
	})
	unsigned, err := none.SignedString(jwt.UnsafeAllowNoneSignatureType)
	require.NoError(t, err)

	tests := []struct {
		name string
		raw  string
		want *goerrors.Error
	}{
		{name: "missing", raw: "", want: auth.ErrAccessMissing},
		{name: "blank", raw: "   ", want: auth.ErrAccessMissing},
		{name: "garbage", raw: "not.a.jwt", want: auth.ErrAccessInvalid},
		{name: "wrong key", raw: foreign, want: auth.ErrAccessInvalid},
		{name: "alg none", raw: unsigned, want: auth.ErrAccessInvalid},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := f.access.Verify(tt.raw)
			assertCode(t, err, tt.want)
		})
	}

	t.Run("expired", func(t *testing.T) {
		f.clock.Advance(auth.DefaultAccessTokenTTL + time.Second)
		_, err := f.access.Verify(valid)
		assertCode(t, err, auth.ErrAccessExpired)
		assert.Equal(t, auth.MsgAccessExpired, publicMessage(err))
	})
}
