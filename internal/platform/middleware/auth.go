// Package middleware holds the HTTP middleware chain: bearer-token
// authentication, request correlation IDs, request-scoped time, and request
// metrics. Handlers read everything through requestcontext and never touch
// tokens or headers.
package middleware

import (
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/golang-jwt/jwt/v5"

	id "swiftclaim/pkg/domain"
	dErrors "swiftclaim/pkg/domain-errors"
	"swiftclaim/pkg/platform/httputil"
	"swiftclaim/pkg/requestcontext"
)

// TokenClaims are the claims swiftclaim expects in a bearer token. The
// identity provider issues the subject as a UUID and the role as a custom
// claim.
type TokenClaims struct {
	Role string `json:"role"`
	jwt.RegisteredClaims
}

// Verifier validates bearer tokens with the shared signing key.
type Verifier struct {
	key []byte
}

func NewVerifier(signingKey string) *Verifier {
	return &Verifier{key: []byte(signingKey)}
}

// Verify parses and validates a token, returning the actor and role.
func (v *Verifier) Verify(token string) (id.UserID, string, error) {
	var claims TokenClaims
	_, err := jwt.ParseWithClaims(token, &claims, func(*jwt.Token) (any, error) {
		return v.key, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	if err != nil {
		return id.UserID{}, "", err
	}
	userID, err := id.ParseUserID(claims.Subject)
	if err != nil {
		return id.UserID{}, "", errors.New("token subject is not a user id")
	}
	if claims.Role != requestcontext.RolePolicyholder && claims.Role != requestcontext.RoleInsurer {
		return id.UserID{}, "", errors.New("token carries an unknown role")
	}
	return userID, claims.Role, nil
}

// RequireAuth rejects requests without a valid bearer token and injects the
// actor identity and role into the request context.
func RequireAuth(verifier *Verifier, logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()
			token, ok := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer ")
			if !ok || token == "" {
				httputil.WriteError(w, dErrors.New(dErrors.CodeUnauthorized, "missing bearer token"))
				return
			}
			userID, role, err := verifier.Verify(token)
			if err != nil {
				logger.WarnContext(ctx, "token rejected",
					"request_id", requestcontext.RequestID(ctx),
					"error", err,
				)
				httputil.WriteError(w, dErrors.New(dErrors.CodeUnauthorized, "invalid or expired token"))
				return
			}
			ctx = requestcontext.WithUserID(ctx, userID)
			ctx = requestcontext.WithRole(ctx, role)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}
