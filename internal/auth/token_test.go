package auth

import (
	"context"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xenking/foodcart/internal/domain/user"
)

func newTestTokens(t *testing.T) *Tokens {
	t.Helper()
	tokens, err := NewTokens("test-secret", "foodcart", time.Hour)
	require.NoError(t, err)
	return tokens
}

func TestTokens_IssueParse(t *testing.T) {
	tokens := newTestTokens(t)

	raw, err := tokens.Issue(user.User{ID: "u1", Name: "Asha", Email: "asha@example.com", Role: user.RoleAdmin})
	require.NoError(t, err)

	id, err := tokens.Parse(raw)
	require.NoError(t, err)
	assert.Equal(t, Identity{UserID: "u1", Name: "Asha", Email: "asha@example.com", Role: user.RoleAdmin}, id)
	assert.True(t, id.IsAdmin())
}

func TestTokens_ParseRejects(t *testing.T) {
	tokens := newTestTokens(t)
	valid, err := tokens.Issue(user.User{ID: "u1", Role: user.RoleCustomer})
	require.NoError(t, err)

	other, err := NewTokens("other-secret", "foodcart", time.Hour)
	require.NoError(t, err)
	foreign, err := other.Issue(user.User{ID: "u1", Role: user.RoleCustomer})
	require.NoError(t, err)

	expiredIssuer := newTestTokens(t)
	expiredIssuer.now = func() time.Time { return time.Now().Add(-2 * time.Hour) }
	expired, err := expiredIssuer.Issue(user.User{ID: "u1", Role: user.RoleCustomer})
	require.NoError(t, err)

	none, err := jwt.NewWithClaims(jwt.SigningMethodNone, Claims{
		Role:             user.RoleAdmin,
		RegisteredClaims: jwt.RegisteredClaims{Subject: "u1", Issuer: "foodcart"},
	}).SignedString(jwt.UnsafeAllowNoneSignatureType)
	require.NoError(t, err)

	tests := []struct {
		name string
		raw  string
	}{
		{name: "garbage", raw: "not-a-token"},
		{name: "wrong secret", raw: foreign},
		{name: "expired", raw: expired},
		{name: "alg none", raw: none},
		{name: "truncated", raw: valid[:len(valid)-4]},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := tokens.Parse(tt.raw)
			require.ErrorIs(t, err, ErrUnauthenticated)
		})
	}
}

func TestTokens_IssueValidates(t *testing.T) {
	tokens := newTestTokens(t)

	_, err := tokens.Issue(user.User{Role: user.RoleCustomer})
	require.Error(t, err)

	_, err = tokens.Issue(user.User{ID: "u1", Role: "owner"})
	require.Error(t, err)

	_, err = NewTokens("", "foodcart", time.Hour)
	require.Error(t, err)
}

func TestBearerToken(t *testing.T) {
	tests := []struct {
		header string
		want   string
		ok     bool
	}{
		{header: "Bearer abc", want: "abc", ok: true},
		{header: "bearer  abc ", want: "abc", ok: true},
		{header: "Basic abc"},
		{header: "Bearer"},
		{header: ""},
	}
	for _, tt := range tests {
		got, ok := BearerToken(tt.header)
		assert.Equal(t, tt.ok, ok, tt.header)
		assert.Equal(t, tt.want, got, tt.header)
	}
}

func TestIdentityContext(t *testing.T) {
	_, ok := FromContext(context.Background())
	assert.False(t, ok)

	ctx := WithIdentity(context.Background(), Identity{UserID: "u1", Role: user.RoleCustomer})
	id, ok := FromContext(ctx)
	require.True(t, ok)
	assert.Equal(t, "u1", id.UserID)
	assert.False(t, id.IsAdmin())
}
