package auth

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHashAndCheckPassword(t *testing.T) {
	pwd := "s3cr3t-password"
	hash, err := HashPassword(pwd)
	if err != nil {
		t.Fatalf("HashPassword failed: %v", err)
	}

	if err := CheckPassword(hash, pwd); err != nil {
		t.Fatalf("CheckPassword failed when password should match: %v", err)
	}

	if err := CheckPassword(hash, "wrong"); err == nil {
		t.Fatal("CheckPassword succeeded when it should have failed")
	}
}

func TestJWTManager_GenerateAndVerify(t *testing.T) {
	m := NewJWTManager("test-secret", 5*time.Minute)

	token, expiresAt, err := m.GenerateToken("64b7f0c2a1b2c3d4e5f60718", "test@example.com")
	require.NoError(t, err)
	assert.WithinDuration(t, time.Now().Add(5*time.Minute), expiresAt, 5*time.Second)

	claims, err := m.VerifyToken(token)
	require.NoError(t, err)
	assert.Equal(t, "64b7f0c2a1b2c3d4e5f60718", claims.UserID)
	assert.Equal(t, "test@example.com", claims.Email)
}

func TestJWTManager_NormalizeEmailClaim(t *testing.T) {
	m := NewJWTManager("test-secret", 5*time.Minute)

	token, _, err := m.GenerateToken("u1", "User.Case@Example.COM")
	require.NoError(t, err)

	claims, err := m.VerifyToken(token)
	require.NoError(t, err)
	if claims.Email != "user.case@example.com" {
		t.Fatalf("expected normalized email in claims, got %s", claims.Email)
	}
}

func TestJWTManager_Rotation(t *testing.T) {
	keys := map[string]string{"k1": "secret-one", "k2": "secret-two"}
	m := NewJWTManagerFromKeys(keys, "k2", 5*time.Minute)

	tkn2, _, err := m.GenerateToken("u1", "rot@example.com")
	require.NoError(t, err)
	_, err = m.VerifyToken(tkn2)
	require.NoError(t, err)

	// a token issued while k1 was active
	mOld := NewJWTManagerFromKeys(keys, "k1", 5*time.Minute)
	tkn1, _, err := mOld.GenerateToken("u1", "rot@example.com")
	require.NoError(t, err)
	_, err = m.VerifyToken(tkn1)
	require.NoError(t, err, "older key must still verify")

	// once k1 is retired its tokens stop verifying
	retired := NewJWTManagerFromKeys(map[string]string{"k2": "secret-two"}, "k2", 5*time.Minute)
	_, err = retired.VerifyToken(tkn1)
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestJWTManager_RejectsBadTokens(t *testing.T) {
	m := NewJWTManager("test-secret", time.Minute)

	_, err := m.VerifyToken("not-a-token")
	assert.ErrorIs(t, err, ErrInvalidToken)

	other := NewJWTManager("other-secret", time.Minute)
	tok, _, err := other.GenerateToken("u1", "a@example.com")
	require.NoError(t, err)
	_, err = m.VerifyToken(tok)
	assert.ErrorIs(t, err, ErrInvalidToken)

	// expired
	m.now = func() time.Time { return time.Now().Add(-time.Hour) }
	old, _, err := m.GenerateToken("u1", "a@example.com")
	require.NoError(t, err)
	m.now = time.Now
	_, err = m.VerifyToken(old)
	assert.True(t, errors.Is(err, ErrInvalidToken))

	// "none" algorithm
	unsigned := jwt.NewWithClaims(jwt.SigningMethodNone, &Claims{UserID: "u1"})
	s, err := unsigned.SignedString(jwt.UnsafeAllowNoneSignatureType)
	require.NoError(t, err)
	_, err = m.VerifyToken(s)
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestParseKeys(t *testing.T) {
	keys, err := ParseKeys("k1:one, k2:two,")
	require.NoError(t, err)
	assert.Equal(t, map[string]string{"k1": "one", "k2": "two"}, keys)

	_, err = ParseKeys("broken")
	assert.Error(t, err)
	_, err = ParseKeys("")
	assert.Error(t, err)
}

func TestBearerToken(t *testing.T) {
	assert.Equal(t, "abc", BearerToken("Bearer abc"))
	assert.Equal(t, "abc", BearerToken("bearer   abc "))
	assert.Equal(t, "", BearerToken("Basic abc"))
	assert.Equal(t, "", BearerToken(""))
}

func TestContextRoundTrip(t *testing.T) {
	_, ok := FromContext(context.Background())
	assert.False(t, ok)

	ctx := NewContext(context.Background(), &Claims{UserID: "u1"})
	c, ok := FromContext(ctx)
	require.True(t, ok)
	assert.Equal(t, "u1", c.UserID)
}
