// Package adminauth guards the key-registry admin surface with JWT bearer
// tokens. Only operators rotating or revoking attestation keys pass through.
package adminauth

import (
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// Claims are the JWT claims expected on admin tokens.
type Claims struct {
	Role string `json:"role"`
	jwt.RegisteredClaims
}

// Validator creates and validates admin JWTs with an HMAC signing key.
type Validator struct {
	signingKey []byte
	issuer     string
}

func NewValidator(signingKey, issuer string) *Validator {
	return &Validator{signingKey: []byte(signingKey), issuer: issuer}
}

// GenerateToken mints a short-lived admin token. Used by operator tooling and
// tests; the server itself only validates.
func (v *Validator) GenerateToken(subject string, ttl time.Duration) (string, error) {
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, Claims{
		Role: "admin",
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   subject,
			Issuer:    v.issuer,
			IssuedAt:  jwt.NewNumericDate(time.Now()),
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(ttl)),
		},
	})
	return token.SignedString(v.signingKey)
}

// ValidateToken parses and verifies an admin token, requiring the admin role.
func (v *Validator) ValidateToken(tokenString string) (*Claims, error) {
	parsed, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(token *jwt.Token) (any, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, jwt.ErrTokenUnverifiable
		}
		return v.signingKey, nil
	})
	if err != nil {
		return nil, err
	}
	claims, ok := parsed.Claims.(*Claims)
	if !ok || !parsed.Valid {
		return nil, jwt.ErrTokenInvalidClaims
	}
	if claims.Role != "admin" {
		return nil, errors.New("token lacks admin role")
	}
	return claims, nil
}

// RequireAdmin rejects requests without a valid admin bearer token.
func RequireAdmin(validator *Validator, logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			const bearerPrefix = "Bearer "
			authHeader := r.Header.Get("Authorization")
			if !strings.HasPrefix(authHeader, bearerPrefix) {
				writeJSONError(w, http.StatusUnauthorized, "unauthorized", "missing bearer token")
				return
			}
			if _, err := validator.ValidateToken(strings.TrimPrefix(authHeader, bearerPrefix)); err != nil {
				logger.WarnContext(r.Context(), "admin auth rejected", "error", err)
				writeJSONError(w, http.StatusUnauthorized, "unauthorized", "invalid admin token")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func writeJSONError(w http.ResponseWriter, status int, errCode, errDesc string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write([]byte(`{"error":"` + errCode + `","error_description":"` + errDesc + `"}`))
}
