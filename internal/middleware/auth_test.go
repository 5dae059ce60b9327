package middleware

import (
	"net/http"
	"net/http/httptest"
	"strconv"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testSecret = "test-secret"

func signToken(t *testing.T, secret string, claims jwt.MapClaims) string {
	t.Helper()
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
	require.NoError(t, err)
	return token
}

func echoUser(w http.ResponseWriter, r *http.Request) {
	userID, _ := UserIDFromContext(r.Context())
	w.Write([]byte(userID))
}

func TestAuthMiddleware(t *testing.T) {
	viper.Set("jwt.secret_key", testSecret)
	t.Cleanup(viper.Reset)

	handler := AuthMiddleware(http.HandlerFunc(echoUser))

	tests := []struct {
		name       string
		header     string
		wantStatus int
		wantBody   string
	}{
		{
			name:       "valid token",
			header:     "Bearer " + signToken(t, testSecret, jwt.MapClaims{"user_id": "100", "exp": time.Now().Add(time.Hour).Unix()}),
			wantStatus: http.StatusOK,
			wantBody:   "100",
		},
		{name: "missing header", header: "", wantStatus: http.StatusUnauthorized},
		{name: "wrong scheme", header: "Basic abc", wantStatus: http.StatusUnauthorized},
		{
			name:       "wrong secret",
			header:     "Bearer " + signToken(t, "other", jwt.MapClaims{"user_id": "100"}),
			wantStatus: http.StatusUnauthorized,
		},
		{
			name:       "expired",
			header:     "Bearer " + signToken(t, testSecret, jwt.MapClaims{"user_id": "100", "exp": time.Now().Add(-time.Hour).Unix()}),
			wantStatus: http.StatusUnauthorized,
		},
		{
			name:       "no user id",
			header:     "Bearer " + signToken(t, testSecret, jwt.MapClaims{"role": "admin"}),
			wantStatus: http.StatusUnauthorized,
		},
		{
			name:       "numeric user id",
			header:     "Bearer " + signToken(t, testSecret, jwt.MapClaims{"user_id": int64(123456789012345678)}),
			wantStatus: http.StatusOK,
			wantBody:   "123456789012345678",
		},
		{
			name:       "fractional user id",
			header:     "Bearer " + signToken(t, testSecret, jwt.MapClaims{"user_id": 12.5}),
			wantStatus: http.StatusUnauthorized,
		},
		{
			name:       "blank user id",
			header:     "Bearer " + signToken(t, testSecret, jwt.MapClaims{"user_id": "  "}),
			wantStatus: http.StatusUnauthorized,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/", nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			w := httptest.NewRecorder()
			handler.ServeHTTP(w, req)

			assert.Equal(t, tt.wantStatus, w.Code)
			if tt.wantBody != "" {
				assert.Equal(t, tt.wantBody, w.Body.String())
			}
		})
	}
}

func TestAuthMiddleware_AdjacentNumericIDsStayDistinct(t *testing.T) {
	viper.Set("jwt.secret_key", testSecret)
	t.Cleanup(viper.Reset)

	handler := AuthMiddleware(http.HandlerFunc(echoUser))

	seen := map[string]bool{}
	for _, id := range []int64{123456789012345678, 123456789012345679} {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.Header.Set("Authorization", "Bearer "+signToken(t, testSecret, jwt.MapClaims{"user_id": id}))
		w := httptest.NewRecorder()
		handler.ServeHTTP(w, req)

		require.Equal(t, http.StatusOK, w.Code)
		assert.Equal(t, strconv.FormatInt(id, 10), w.Body.String())
		seen[w.Body.String()] = true
	}
	assert.Len(t, seen, 2)
}

func TestRequireAdmin(t *testing.T) {
	handler := RequireAdmin("0")(http.HandlerFunc(echoUser))

	tests := []struct {
		name       string
		userID     string
		role       string
		wantStatus int
	}{
		{name: "admin role", userID: "100", role: RoleAdmin, wantStatus: http.StatusOK},
		{name: "admin account", userID: "0", wantStatus: http.StatusOK},
		{name: "citizen", userID: "100", wantStatus: http.StatusForbidden},
		{name: "anonymous", wantStatus: http.StatusForbidden},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/", nil)
			req = req.WithContext(WithUser(req.Context(), tt.userID, tt.role))
			w := httptest.NewRecorder()
			handler.ServeHTTP(w, req)
			assert.Equal(t, tt.wantStatus, w.Code)
		})
	}
}
