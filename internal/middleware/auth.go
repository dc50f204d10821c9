package middleware

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

type contextKey string

const ServiceNameKey contextKey = "service_name"

// ServiceAuth gates the pipeline API for collaborator services (segmenter,
// review tooling). Tokens are HS256-signed with a shared secret and carry
// the calling service's name. This is service-to-service auth, not user
// auth.
type ServiceAuth struct {
	Secret []byte
}

func NewServiceAuth(secret string) *ServiceAuth {
	return &ServiceAuth{Secret: []byte(secret)}
}

// GenerateToken issues a short-lived token for a collaborator service.
// Used by operational tooling and tests.
func (s *ServiceAuth) GenerateToken(serviceName string) (string, error) {
	claims := jwt.MapClaims{
		"svc": serviceName,
		"exp": time.Now().Add(1 * time.Hour).Unix(),
		"iat": time.Now().Unix(),
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(s.Secret)
}

// Middleware validates the bearer token and attaches the service name to
// the request context.
func (s *ServiceAuth) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		authHeader := r.Header.Get("Authorization")
		if authHeader == "" {
			writeError(w, http.StatusUnauthorized, "UNAUTHORIZED", "Missing authorization header", r)
			return
		}

		parts := strings.SplitN(authHeader, " ", 2)
		if len(parts) != 2 || parts[0] != "Bearer" {
			writeError(w, http.StatusUnauthorized, "UNAUTHORIZED", "Invalid authorization format", r)
			return
		}

		token, err := jwt.Parse(parts[1], func(token *jwt.Token) (interface{}, error) {
			if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
				return nil, jwt.ErrSignatureInvalid
			}
			return s.Secret, nil
		})

		if err != nil {
			if strings.Contains(err.Error(), "expired") {
				writeError(w, http.StatusUnauthorized, "TOKEN_EXPIRED", "Token has expired", r)
			} else {
				writeError(w, http.StatusUnauthorized, "UNAUTHORIZED", "Invalid token", r)
			}
			return
		}

		claims, ok := token.Claims.(jwt.MapClaims)
		if !ok || !token.Valid {
			writeError(w, http.StatusUnauthorized, "UNAUTHORIZED", "Invalid token claims", r)
			return
		}

		serviceName, ok := claims["svc"].(string)
		if !ok || serviceName == "" {
			writeError(w, http.StatusUnauthorized, "UNAUTHORIZED", "Missing service name in token", r)
			return
		}

		ctx := context.WithValue(r.Context(), ServiceNameKey, serviceName)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// GetServiceName extracts the calling service's name from the context.
func GetServiceName(ctx context.Context) string {
	name, _ := ctx.Value(ServiceNameKey).(string)
	return name
}

func writeError(w http.ResponseWriter, status int, code, message string, r *http.Request) {
	requestID := r.Header.Get("X-Request-ID")
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]interface{}{
		"error": map[string]interface{}{
			"code":       code,
			"message":    message,
			"request_id": requestID,
		},
	})
}
