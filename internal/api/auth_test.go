package api

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang-jwt/jwt"
	"github.com/npezzotti/synapse/internal/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testSigningKey = []byte("test-signing-key")

func signToken(t *testing.T, method jwt.SigningMethod, key interface{}, claims jwt.MapClaims) string {
	t.Helper()
	token, err := jwt.NewWithClaims(method, claims).SignedString(key)
	require.NoError(t, err, "failed to sign token")
	return token
}

func TestUserId(t *testing.T) {
	tcases := []struct {
		name     string
		ctx      context.Context
		userId   string
		expected bool
	}{
		{
			name:     "no user ID",
			ctx:      context.Background(),
			expected: false,
		},
		{
			name:     "empty user ID",
			ctx:      WithUserId(context.Background(), ""),
			expected: false,
		},
		{
			name:     "user ID set",
			ctx:      WithUserId(context.Background(), "alice"),
			userId:   "alice",
			expected: true,
		},
	}

	for _, tc := range tcases {
		t.Run(tc.name, func(t *testing.T) {
			userId, ok := UserId(tc.ctx)
			assert.Equal(t, tc.expected, ok, "expected UserId to return %v", tc.expected)
			assert.Equal(t, tc.userId, userId)
		})
	}
}

func Test_tokenFromRequest(t *testing.T) {
	tcases := []struct {
		name     string
		build    func(r *http.Request)
		expected string
		wantErr  bool
	}{
		{
			name:     "bearer header",
			build:    func(r *http.Request) { r.Header.Set("Authorization", "Bearer abc") },
			expected: "abc",
		},
		{
			name:     "lowercase scheme",
			build:    func(r *http.Request) { r.Header.Set("Authorization", "bearer abc") },
			expected: "abc",
		},
		{
			name:    "malformed header",
			build:   func(r *http.Request) { r.Header.Set("Authorization", "Basic abc") },
			wantErr: true,
		},
		{
			name: "query parameter",
			build: func(r *http.Request) {
				q := r.URL.Query()
				q.Set("token", "from-query")
				r.URL.RawQuery = q.Encode()
			},
			expected: "from-query",
		},
		{
			name:     "cookie",
			build:    func(r *http.Request) { r.AddCookie(&http.Cookie{Name: tokenCookieKey, Value: "from-cookie"}) },
			expected: "from-cookie",
		},
		{
			name: "header wins over cookie",
			build: func(r *http.Request) {
				r.Header.Set("Authorization", "Bearer from-header")
				r.AddCookie(&http.Cookie{Name: tokenCookieKey, Value: "from-cookie"})
			},
			expected: "from-header",
		},
		{
			name:    "no token",
			build:   func(r *http.Request) {},
			wantErr: true,
		},
	}

	for _, tc := range tcases {
		t.Run(tc.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/ws", nil)
			tc.build(req)

			token, err := tokenFromRequest(req)
			if tc.wantErr {
				assert.Error(t, err)
				return
			}
			assert.NoError(t, err)
			assert.Equal(t, tc.expected, token)
		})
	}
}

func Test_extractUserIdFromToken(t *testing.T) {
	app := &SynapseApp{log: testutil.TestLogger(t), signingKey: testSigningKey}
	exp := time.Now().Add(time.Hour).Unix()

	tcases := []struct {
		name     string
		token    string
		expected string
		wantErr  bool
	}{
		{
			name:     "id claim",
			token:    signToken(t, jwt.SigningMethodHS256, testSigningKey, jwt.MapClaims{"id": "alice", "exp": exp}),
			expected: "alice",
		},
		{
			name:     "numeric id claim",
			token:    signToken(t, jwt.SigningMethodHS256, testSigningKey, jwt.MapClaims{"id": 42, "exp": exp}),
			expected: "42",
		},
		{
			name:     "subject fallback",
			token:    signToken(t, jwt.SigningMethodHS256, testSigningKey, jwt.MapClaims{"sub": "bob", "exp": exp}),
			expected: "bob",
		},
		{
			name:    "no identity claim",
			token:   signToken(t, jwt.SigningMethodHS256, testSigningKey, jwt.MapClaims{"exp": exp}),
			wantErr: true,
		},
		{
			name:    "expired",
			token:   signToken(t, jwt.SigningMethodHS256, testSigningKey, jwt.MapClaims{"id": "alice", "exp": time.Now().Add(-time.Hour).Unix()}),
			wantErr: true,
		},
		{
			name:    "wrong key",
			token:   signToken(t, jwt.SigningMethodHS256, []byte("other-key"), jwt.MapClaims{"id": "alice", "exp": exp}),
			wantErr: true,
		},
		{
			name:    "other hmac algorithm",
			token:   signToken(t, jwt.SigningMethodHS512, testSigningKey, jwt.MapClaims{"id": "alice", "exp": exp}),
			wantErr: true,
		},
		{
			name:    "unsigned",
			token:   signToken(t, jwt.SigningMethodNone, jwt.UnsafeAllowNoneSignatureType, jwt.MapClaims{"id": "alice", "exp": exp}),
			wantErr: true,
		},
		{
			name:    "garbage",
			token:   "invalid-token",
			wantErr: true,
		},
	}

	for _, tc := range tcases {
		t.Run(tc.name, func(t *testing.T) {
			userId, err := app.extractUserIdFromToken(tc.token)
			if tc.wantErr {
				assert.Error(t, err)
				return
			}
			assert.NoError(t, err)
			assert.Equal(t, tc.expected, userId)
		})
	}
}
