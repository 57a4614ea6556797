package auth

import (
	"context"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/phrazzld/owl-api/internal/config"
	"github.com/phrazzld/owl-api/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testSecret = "test-secret-that-is-long-enough-for-testing"

var fixedTime = time.Date(2025, 1, 1, 12, 0, 0, 0, time.UTC)

func fixedClock() time.Time { return fixedTime }

func TestGenerateAndValidate(t *testing.T) {
	t.Parallel()

	svc := newHMACService(testSecret, time.Hour, fixedClock)
	p := domain.Principal{ID: "user-123", Email: "a@example.com", Role: domain.RoleAdmin}

	token, err := svc.GenerateToken(context.Background(), p)
	require.NoError(t, err)

	claims, err := svc.ValidateToken(context.Background(), token)
	require.NoError(t, err)
	assert.Equal(t, p, claims.Principal())
	assert.Equal(t, fixedTime.Unix(), claims.IssuedAt.Unix())
	assert.Equal(t, fixedTime.Add(time.Hour).Unix(), claims.ExpiresAt.Unix())
	assert.NotEmpty(t, claims.ID)

	_, err = svc.GenerateToken(context.Background(), domain.Principal{})
	assert.ErrorIs(t, err, ErrMissingSubject)
}

func signRaw(t *testing.T, method jwt.SigningMethod, key any, claims jwt.Claims) string {
	t.Helper()
	s, err := jwt.NewWithClaims(method, claims).SignedString(key)
	require.NoError(t, err)
	return s
}

func TestValidateToken(t *testing.T) {
	t.Parallel()

	svc := newHMACService(testSecret, time.Hour, fixedClock)
	valid := func(c jwtCustomClaims) jwtCustomClaims {
		if c.Subject == "" {
			c.Subject = "user-1"
		}
		c.IssuedAt = jwt.NewNumericDate(fixedTime)
		if c.ExpiresAt == nil {
			c.ExpiresAt = jwt.NewNumericDate(fixedTime.Add(time.Hour))
		}
		return c
	}

	tests := []struct {
		name     string
		token    string
		wantErr  error
		wantRole domain.Role
	}{
		{
			name:     "role from user metadata",
			token:    signRaw(t, jwt.SigningMethodHS256, []byte(testSecret), valid(jwtCustomClaims{UserMetadata: map[string]any{"role": "super_admin"}})),
			wantRole: domain.RoleSuperAdmin,
		},
		{
			name: "app metadata wins",
			token: signRaw(t, jwt.SigningMethodHS256, []byte(testSecret), valid(jwtCustomClaims{
				AppMetadata:  map[string]any{"role": "user"},
				UserMetadata: map[string]any{"role": "admin"},
			})),
			wantRole: domain.RoleUser,
		},
		{
			name:     "no role defaults to user",
			token:    signRaw(t, jwt.SigningMethodHS256, []byte(testSecret), valid(jwtCustomClaims{})),
			wantRole: domain.RoleUser,
		},
		{
			name:    "wrong secret",
			token:   signRaw(t, jwt.SigningMethodHS256, []byte("another-secret-that-is-long-enough!!"), valid(jwtCustomClaims{})),
			wantErr: ErrInvalidToken,
		},
		{
			name: "expired beyond leeway",
			token: signRaw(t, jwt.SigningMethodHS256, []byte(testSecret), valid(jwtCustomClaims{
				RegisteredClaims: jwt.RegisteredClaims{ExpiresAt: jwt.NewNumericDate(fixedTime.Add(-time.Hour))},
			})),
			wantErr: ErrExpiredToken,
		},
		{
			name: "not yet valid",
			token: signRaw(t, jwt.SigningMethodHS256, []byte(testSecret), valid(jwtCustomClaims{
				RegisteredClaims: jwt.RegisteredClaims{NotBefore: jwt.NewNumericDate(fixedTime.Add(time.Hour))},
			})),
			wantErr: ErrTokenNotYetValid,
		},
		{
			name:    "unsigned",
			token:   signRaw(t, jwt.SigningMethodNone, jwt.UnsafeAllowNoneSignatureType, valid(jwtCustomClaims{})),
			wantErr: ErrInvalidToken,
		},
		{
			name:    "malformed",
			token:   "not.a.jwt",
			wantErr: ErrInvalidToken,
		},
		{
			name:    "empty",
			token:   "",
			wantErr: ErrMissingToken,
		},
		{
			name: "no expiry",
			token: signRaw(t, jwt.SigningMethodHS256, []byte(testSecret), jwtCustomClaims{
				RegisteredClaims: jwt.RegisteredClaims{Subject: "user-1"},
			}),
			wantErr: ErrInvalidToken,
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			claims, err := svc.ValidateToken(context.Background(), tc.token)
			if tc.wantErr != nil {
				assert.ErrorIs(t, err, tc.wantErr)
				assert.Nil(t, claims)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, "user-1", claims.Subject)
			assert.Equal(t, tc.wantRole, claims.Role)
		})
	}
}

func TestNewJWTServiceRejectsShortSecret(t *testing.T) {
	t.Parallel()

	_, err := NewJWTService(config.AuthConfig{JWTSecret: "short", TokenLifetimeMinutes: 60})
	assert.Error(t, err)

	svc, err := NewJWTService(config.AuthConfig{JWTSecret: testSecret, TokenLifetimeMinutes: 60})
	require.NoError(t, err)
	assert.NotNil(t, svc)
}
