package jwttoken

import (
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	id "biblioteca/pkg/domain"
	dErrors "biblioteca/pkg/domain-errors"
)

var accountID = id.NewAccountID()

func Test_IssueAndValidate(t *testing.T) {
	svc := NewJWTService("test-signing-key", time.Hour)

	issued, err := svc.Issue(accountID, "jperez")
	require.NoError(t, err)
	require.NotEmpty(t, issued.AccessToken)
	assert.Equal(t, "Bearer", issued.TokenType)
	assert.WithinDuration(t, time.Now().Add(time.Hour), issued.ExpiresAt, time.Minute)

	claims, err := svc.ValidateToken(issued.AccessToken)
	require.NoError(t, err)
	assert.Equal(t, accountID.String(), claims.AccountID)
	assert.Equal(t, "jperez", claims.Handle)

	got, err := svc.ValidateAccount(issued.AccessToken)
	require.NoError(t, err)
	assert.Equal(t, accountID, got)
}

func Test_ValidateToken_InvalidToken(t *testing.T) {
	svc := NewJWTService("test-signing-key", time.Hour)
	_, err := svc.ValidateToken("invalid-token-string")
	require.True(t, dErrors.HasCode(err, dErrors.CodeUnauthorized))
	assert.Equal(t, "invalid token", dErrors.MessageOf(err))
}

func Test_ValidateToken_ExpiredToken(t *testing.T) {
	svc := NewJWTService("test-signing-key", time.Hour)
	svc.now = func() time.Time { return time.Now().Add(-2 * time.Hour) }
	issued, err := svc.Issue(accountID, "jperez")
	require.NoError(t, err)

	svc.now = time.Now
	_, err = svc.ValidateToken(issued.AccessToken)
	require.True(t, dErrors.HasCode(err, dErrors.CodeUnauthorized))
	assert.Equal(t, "token has expired", dErrors.MessageOf(err))
}

func Test_ValidateToken_WrongKey(t *testing.T) {
	issued, err := NewJWTService("key-a", time.Hour).Issue(accountID, "jperez")
	require.NoError(t, err)

	_, err = NewJWTService("key-b", time.Hour).ValidateToken(issued.AccessToken)
	assert.True(t, dErrors.HasCode(err, dErrors.CodeUnauthorized))
}

func Test_ValidateToken_RejectsNoneAlgorithm(t *testing.T) {
	token := jwt.NewWithClaims(jwt.SigningMethodNone, Claims{AccountID: accountID.String()})
	signed, err := token.SignedString(jwt.UnsafeAllowNoneSignatureType)
	require.NoError(t, err)

	_, err = NewJWTService("key", time.Hour).ValidateToken(signed)
	assert.True(t, dErrors.HasCode(err, dErrors.CodeUnauthorized))
}

func Test_ValidateAccount_BadSubject(t *testing.T) {
	svc := NewJWTService("test-signing-key", time.Hour)
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, Claims{
		AccountID: "not-a-uuid",
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    defaultIssuer,
			Audience:  []string{defaultAudience},
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		},
	})
	signed, err := token.SignedString([]byte("test-signing-key"))
	require.NoError(t, err)

	_, err = svc.ValidateAccount(signed)
	assert.True(t, dErrors.HasCode(err, dErrors.CodeUnauthorized))
}
