package auth_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"

	auth "github.com/goliatone/go-credauth"
)

func TestAccountContext(t *testing.T) {
	_, ok := auth.FromContext(context.Background())
	assert.False(t, ok)

	_, ok = auth.FromContext(auth.WithContext(context.Background(), nil))
	assert.False(t, ok, "a nil account is not stored")

	account := &auth.Account{Username: "alice"}
	got, ok := auth.FromContext(auth.WithContext(context.Background(), account))
	assert.True(t, ok)
	assert.Same(t, account, got)
}
