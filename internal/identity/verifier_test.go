package identity

import (
	"context"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"

	"github.com/hit-sharq/kasikeu-boys-high-school/internal/identity/mocks"
)

func TestHMACVerifier(t *testing.T) {
	t.Parallel()

	secret := []byte("test-secret-with-enough-entropy")
	cfg := ClaimsConfig{
		Issuer:            testIssuer,
		AuthorizedParties: []string{"https://school.example"},
		Leeway:            5 * time.Second,
	}

	withClaim := func(key string, value any) jwt.MapClaims {
		c := validClaims("user_123")
		c[key] = value
		return c
	}
	without := func(key string) jwt.MapClaims {
		c := validClaims("user_123")
		delete(c, key)
		return c
	}

	tests := []struct {
		name    string
		token   string
		want    string
		wantErr bool
	}{
		{
			name:  "valid token",
			token: signHS256(t, secret, validClaims("user_123")),
			want:  "user_123",
		},
		{
			name:  "authorized party accepted",
			token: signHS256(t, secret, withClaim("azp", "https://school.example")),
			want:  "user_123",
		},
		{
			name:  "expired within leeway",
			token: signHS256(t, secret, withClaim("exp", time.Now().Add(-2*time.Second).Unix())),
			want:  "user_123",
		},
		{
			name:    "expired beyond leeway",
			token:   signHS256(t, secret, withClaim("exp", time.Now().Add(-time.Minute).Unix())),
			wantErr: true,
		},
		{
			name:    "missing exp",
			token:   signHS256(t, secret, without("exp")),
			wantErr: true,
		},
		{
			name:    "not yet valid",
			token:   signHS256(t, secret, withClaim("nbf", time.Now().Add(time.Hour).Unix())),
			wantErr: true,
		},
		{
			name:    "wrong issuer",
			token:   signHS256(t, secret, withClaim("iss", "https://evil.example")),
			wantErr: true,
		},
		{
			name:    "unauthorized party",
			token:   signHS256(t, secret, withClaim("azp", "https://evil.example")),
			wantErr: true,
		},
		{
			name:    "missing subject",
			token:   signHS256(t, secret, without("sub")),
			wantErr: true,
		},
		{
			name:    "wrong secret",
			token:   signHS256(t, []byte("another-secret"), validClaims("user_123")),
			wantErr: true,
		},
		{
			name:    "asymmetric token rejected",
			token:   signRS256(t, testKeyOnce(), testKID, validClaims("user_123")),
			wantErr: true,
		},
		{
			name:    "garbage",
			token:   "not.a.jwt",
			wantErr: true,
		},
	}

	verifier, err := NewHMACVerifier(secret, cfg)
	require.NoError(t, err)

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			sub, err := verifier.Verify(context.Background(), tt.token)
			if tt.wantErr {
				require.ErrorIs(t, err, ErrInvalidToken)
				assert.Empty(t, sub)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, sub)
		})
	}
}

func TestNewHMACVerifier_EmptySecret(t *testing.T) {
	t.Parallel()

	_, err := NewHMACVerifier(nil, ClaimsConfig{})
	require.Error(t, err)
}

func TestJWKSVerifier(t *testing.T) {
	t.Parallel()

	key := testKeyOnce()

	t.Run("looks up the kid from the header", func(t *testing.T) {
		t.Parallel()
		ctrl := gomock.NewController(t)
		keys := mocks.NewMockKeySource(ctrl)
		keys.EXPECT().Key(gomock.Any(), testKID).Return(&key.PublicKey, nil)

		sub, err := NewJWKSVerifier(keys, ClaimsConfig{Issuer: testIssuer}).
			Verify(context.Background(), signRS256(t, key, testKID, validClaims("user_abc")))
		require.NoError(t, err)
		assert.Equal(t, "user_abc", sub)
	})

	t.Run("unknown key is an invalid token", func(t *testing.T) {
		t.Parallel()
		ctrl := gomock.NewController(t)
		keys := mocks.NewMockKeySource(ctrl)
		keys.EXPECT().Key(gomock.Any(), "unknown").Return(nil, ErrKeyNotFound)

		_, err := NewJWKSVerifier(keys, ClaimsConfig{}).
			Verify(context.Background(), signRS256(t, key, "unknown", validClaims("user_abc")))
		require.ErrorIs(t, err, ErrInvalidToken)
		require.ErrorIs(t, err, ErrKeyNotFound)
	})

	t.Run("unavailable provider is not an invalid token", func(t *testing.T) {
		t.Parallel()
		ctrl := gomock.NewController(t)
		keys := mocks.NewMockKeySource(ctrl)
		keys.EXPECT().Key(gomock.Any(), testKID).Return(nil, ErrProviderUnavailable)

		_, err := NewJWKSVerifier(keys, ClaimsConfig{}).
			Verify(context.Background(), signRS256(t, key, testKID, validClaims("user_abc")))
		require.ErrorIs(t, err, ErrProviderUnavailable)
		assert.NotErrorIs(t, err, ErrInvalidToken)
	})

	t.Run("signature from another key fails", func(t *testing.T) {
		t.Parallel()
		ctrl := gomock.NewController(t)
		keys := mocks.NewMockKeySource(ctrl)
		keys.EXPECT().Key(gomock.Any(), testKID).Return(&rotatedKeyOnce().PublicKey, nil)

		_, err := NewJWKSVerifier(keys, ClaimsConfig{}).
			Verify(context.Background(), signRS256(t, key, testKID, validClaims("user_abc")))
		require.ErrorIs(t, err, ErrInvalidToken)
	})

	t.Run("hmac token never reaches the key source", func(t *testing.T) {
		t.Parallel()
		ctrl := gomock.NewController(t)
		keys := mocks.NewMockKeySource(ctrl)

		_, err := NewJWKSVerifier(keys, ClaimsConfig{}).
			Verify(context.Background(), signHS256(t, []byte("secret"), validClaims("user_abc")))
		require.ErrorIs(t, err, ErrInvalidToken)
	})
}
