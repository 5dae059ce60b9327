package middleware

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/golang-jwt/jwt/v5"
	"github.com/spf13/viper"
)

type contextKey string

const (
	userIDKey contextKey = "userID"
	roleKey   contextKey = "role"

	// RoleAdmin is the role claim carried by administrators' tokens.
	RoleAdmin = "admin"
)

var (
	errMissingSubject = errors.New("token has no user_id claim")
	errInvalidSubject = errors.New("token user_id claim is not an integer or string")
)

// AuthMiddleware authenticates the caller from a bearer JWT signed with
// jwt.secret_key and stores its user id and role in the request context.
func AuthMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		authHeader := r.Header.Get("Authorization")
		if authHeader == "" {
			http.Error(w, "Authorization header required", http.StatusUnauthorized)
			return
		}

		parts := strings.Split(authHeader, " ")
		if len(parts) != 2 || parts[0] != "Bearer" {
			http.Error(w, "Invalid authorization header format", http.StatusUnauthorized)
			return
		}

		userID, role, err := validateToken(parts[1])
		if err != nil {
			http.Error(w, "Invalid token", http.StatusUnauthorized)
			return
		}

		ctx := context.WithValue(r.Context(), userIDKey, userID)
		ctx = context.WithValue(ctx, roleKey, role)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// RequireAdmin only lets through callers with the admin role or the
// administrative account itself.
func RequireAdmin(adminID string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !IsAdmin(r.Context(), adminID) {
				http.Error(w, "Admin privileges required", http.StatusForbidden)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// IsAdmin reports whether the authenticated caller is an administrator.
func IsAdmin(ctx context.Context, adminID string) bool {
	if role, _ := ctx.Value(roleKey).(string); role == RoleAdmin {
		return true
	}
	userID, ok := UserIDFromContext(ctx)
	return ok && adminID != "" && userID == adminID
}

// UserIDFromContext returns the authenticated caller's account id.
func UserIDFromContext(ctx context.Context) (string, bool) {
	userID, ok := ctx.Value(userIDKey).(string)
	return userID, ok && userID != ""
}

// WithUser returns a context carrying an authenticated caller.
func WithUser(ctx context.Context, userID, role string) context.Context {
	ctx = context.WithValue(ctx, userIDKey, userID)
	return context.WithValue(ctx, roleKey, role)
}

func validateToken(tokenString string) (string, string, error) {
	token, err := jwt.Parse(tokenString, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", token.Header["alg"])
		}
		return []byte(viper.GetString("jwt.secret_key")), nil
	}, jwt.WithJSONNumber())
	if err != nil {
		return "", "", err
	}
	if !token.Valid {
		return "", "", jwt.ErrTokenInvalidClaims
	}

	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok {
		return "", "", jwt.ErrTokenInvalidClaims
	}

	id, err := subjectID(claims["user_id"])
	if err != nil {
		return "", "", err
	}

	role, _ := claims["role"].(string)
	return id, role, nil
}

// subjectID returns the exact account id carried by a user_id claim.
// Numeric claims must be integers; their digits are kept as sent.
func subjectID(claim any) (string, error) {
	switch v := claim.(type) {
	case nil:
		return "", errMissingSubject
	case string:
		if v = strings.TrimSpace(v); v == "" {
			return "", errMissingSubject
		}
		return v, nil
	case json.Number:
		n, err := strconv.ParseInt(v.String(), 10, 64)
		if err != nil {
			return "", errInvalidSubject
		}
		return strconv.FormatInt(n, 10), nil
	default:
		return "", errInvalidSubject
	}
}
