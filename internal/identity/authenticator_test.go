package identity

import (
	"context"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testSecret = "0123456789abcdef0123456789abcdef"

func newTestAuthenticator(now time.Time) *Authenticator {
	a := NewAuthenticator(Config{
		SecretKey:     testSecret,
		Issuer:        "task-garden",
		TokenDuration: time.Hour,
	})
	a.now = func() time.Time { return now }
	return a
}

func TestAuthenticator_RoundTrip(t *testing.T) {
	a := newTestAuthenticator(time.Now())

	token, err := a.IssueToken("u-alice")
	require.NoError(t, err)

	userID, err := a.ValidateToken(context.Background(), token)
	require.NoError(t, err)
	assert.Equal(t, "u-alice", userID)
}

func TestAuthenticator_IssueToken_EmptySubject(t *testing.T) {
	a := newTestAuthenticator(time.Now())

	_, err := a.IssueToken("")
	assert.ErrorIs(t, err, ErrEmptySubject)
}

func TestAuthenticator_DefaultDuration(t *testing.T) {
	a := NewAuthenticator(Config{SecretKey: testSecret})
	assert.Equal(t, 24*time.Hour, a.duration)
}

func TestAuthenticator_ValidateToken_Expired(t *testing.T) {
	issuedAt := time.Now().Add(-2 * time.Hour)
	token, err := newTestAuthenticator(issuedAt).IssueToken("u-alice")
	require.NoError(t, err)

	_, err = newTestAuthenticator(time.Now()).ValidateToken(context.Background(), token)
	assert.ErrorIs(t, err, ErrTokenExpired)
}

func TestAuthenticator_ValidateToken_Rejects(t *testing.T) {
	now := time.Now()
	a := newTestAuthenticator(now)

	sign := func(method jwt.SigningMethod, key interface{}, claims jwt.RegisteredClaims) string {
		s, err := jwt.NewWithClaims(method, claims).SignedString(key)
		require.NoError(t, err)
		return s
	}
	valid := jwt.RegisteredClaims{
		Subject:   "u-alice",
		Issuer:    "task-garden",
		ExpiresAt: jwt.NewNumericDate(now.Add(time.Hour)),
	}

	otherIssuer := valid
	otherIssuer.Issuer = "someone-else"

	noSubject := valid
	noSubject.Subject = ""

	tests := []struct {
		name    string
		token   string
		wantErr error
	}{
		{
			name:    "garbage",
			token:   "not-a-token",
			wantErr: ErrInvalidToken,
		},
		{
			name:    "wrong secret",
			token:   sign(jwt.SigningMethodHS256, []byte("another-secret-another-secret"), valid),
			wantErr: ErrInvalidToken,
		},
		{
			name:    "wrong algorithm",
			token:   sign(jwt.SigningMethodHS512, []byte(testSecret), valid),
			wantErr: ErrInvalidToken,
		},
		{
			name:    "unsigned",
			token:   sign(jwt.SigningMethodNone, jwt.UnsafeAllowNoneSignatureType, valid),
			wantErr: ErrInvalidToken,
		},
		{
			name:    "wrong issuer",
			token:   sign(jwt.SigningMethodHS256, []byte(testSecret), otherIssuer),
			wantErr: ErrInvalidToken,
		},
		{
			name:    "empty subject",
			token:   sign(jwt.SigningMethodHS256, []byte(testSecret), noSubject),
			wantErr: ErrEmptySubject,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := a.ValidateToken(context.Background(), tt.token)
			assert.ErrorIs(t, err, tt.wantErr)
		})
	}
}
