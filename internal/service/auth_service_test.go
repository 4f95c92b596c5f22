package service

import (
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/velora-agency/creator-vault-api/internal/models"
	appErrors "github.com/velora-agency/creator-vault-api/pkg/errors"
)

const testSecret = "test-secret"

func signToken(t *testing.T, claims *models.JWTClaims, secret string) string {
	t.Helper()
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
	require.NoError(t, err)
	return token
}

func validClaims() *models.JWTClaims {
	return &models.JWTClaims{
		UserID:    "user-1",
		Role:      models.RoleCreator,
		CreatorID: "creator-1",
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
			IssuedAt:  jwt.NewNumericDate(time.Now()),
		},
	}
}

func TestAuthValidateToken(t *testing.T) {
	svc := NewAuthService(zap.NewNop(), AuthConfig{Secret: testSecret})

	claims, err := svc.ValidateToken(signToken(t, validClaims(), testSecret))
	require.NoError(t, err)
	require.Equal(t, "user-1", claims.UserID)
	require.Equal(t, "creator-1", claims.CreatorID)
}

func TestAuthValidateTokenWrongSecret(t *testing.T) {
	svc := NewAuthService(zap.NewNop(), AuthConfig{Secret: testSecret})

	_, err := svc.ValidateToken(signToken(t, validClaims(), "other-secret"))
	require.Error(t, err)
	require.Equal(t, appErrors.ErrUnauthorized.Code, appErrors.FromError(err).Code)
}

func TestAuthValidateTokenExpired(t *testing.T) {
	svc := NewAuthService(zap.NewNop(), AuthConfig{Secret: testSecret})

	claims := validClaims()
	claims.ExpiresAt = jwt.NewNumericDate(time.Now().Add(-time.Minute))
	_, err := svc.ValidateToken(signToken(t, claims, testSecret))
	require.Error(t, err)
	require.Contains(t, err.Error(), "expired")
}

func TestAuthValidateTokenCreatorWithoutCreatorID(t *testing.T) {
	svc := NewAuthService(zap.NewNop(), AuthConfig{Secret: testSecret})

	claims := validClaims()
	claims.CreatorID = ""
	_, err := svc.ValidateToken(signToken(t, claims, testSecret))
	require.Error(t, err)
}

func TestAuthValidateTokenRejectsUnsignedAlg(t *testing.T) {
	svc := NewAuthService(zap.NewNop(), AuthConfig{Secret: testSecret})

	token, err := jwt.NewWithClaims(jwt.SigningMethodNone, validClaims()).SignedString(jwt.UnsafeAllowNoneSignatureType)
	require.NoError(t, err)
	_, err = svc.ValidateToken(token)
	require.Error(t, err)
}
