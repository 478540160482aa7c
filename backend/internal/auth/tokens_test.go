package auth

import (
	"testing"
	"time"

	apperrors "circlenet/backend/pkg/errors"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestTokens(t *testing.T) *TokenManager {
	t.Helper()
	m, err := NewTokenManager("test-secret", "circlenet-test", 15*time.Minute, time.Hour)
	require.NoError(t, err)
	return m
}

func TestNewTokenManager_RequiresSecret(t *testing.T) {
	_, err := NewTokenManager("", "x", time.Minute, time.Hour)
	assert.True(t, apperrors.IsErrorType(err, apperrors.ErrorTypeConfig))
}

func TestTokenManager_IssueAndValidate(t *testing.T) {
	m := newTestTokens(t)

	pair, err := m.Issue("user-1", "alice")
	require.NoError(t, err)
	assert.Equal(t, "Bearer", pair.TokenType)

	claims, err := m.Validate("Bearer "+pair.AccessToken, TokenAccess)
	require.NoError(t, err)
	assert.Equal(t, "user-1", claims.UserID)
	assert.Equal(t, "alice", claims.Username)
	assert.Equal(t, "circlenet-test", claims.Issuer)

	_, err = m.Validate(pair.RefreshToken, TokenRefresh)
	assert.NoError(t, err)
}

func TestTokenManager_RejectsWrongType(t *testing.T) {
	m := newTestTokens(t)
	pair, err := m.Issue("user-1", "alice")
	require.NoError(t, err)

	_, err = m.Validate(pair.AccessToken, TokenRefresh)
	assert.True(t, apperrors.IsErrorType(err, apperrors.ErrorTypeUnauthorized))
}

func TestTokenManager_RejectsExpired(t *testing.T) {
	m := newTestTokens(t)
	m.now = func() time.Time { return time.Now().Add(-2 * time.Hour) }
	pair, err := m.Issue("user-1", "alice")
	require.NoError(t, err)

	m.now = time.Now
	_, err = m.Validate(pair.AccessToken, TokenAccess)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "expired")
}

func TestTokenManager_RejectsForeignSignature(t *testing.T) {
	m := newTestTokens(t)
	other, err := NewTokenManager("other-secret", "circlenet-test", time.Minute, time.Hour)
	require.NoError(t, err)
	pair, err := other.Issue("user-1", "alice")
	require.NoError(t, err)

	_, err = m.Validate(pair.AccessToken, TokenAccess)
	assert.True(t, apperrors.IsErrorType(err, apperrors.ErrorTypeUnauthorized))
}

func TestTokenManager_RejectsNoneAlgorithm(t *testing.T) {
	m := newTestTokens(t)
	token := jwt.NewWithClaims(jwt.SigningMethodNone, Claims{UserID: "user-1", TokenType: TokenAccess})
	unsigned, err := token.SignedString(jwt.UnsafeAllowNoneSignatureType)
	require.NoError(t, err)

	_, err = m.Validate(unsigned, TokenAccess)
	assert.Error(t, err)
}

func TestTokenManager_MissingToken(t *testing.T) {
	_, err := newTestTokens(t).Validate("Bearer ", TokenAccess)
	assert.True(t, apperrors.IsErrorType(err, apperrors.ErrorTypeUnauthorized))
}
