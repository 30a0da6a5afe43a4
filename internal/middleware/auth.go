package middleware

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"go-auth-service/internal/logger"
	"go-auth-service/internal/model"
	"go-auth-service/pkg/apierror"
	"go-auth-service/pkg/errutil"
)

type tokenValidator interface {
	ValidateAccessToken(ctx context.Context, token string) (*model.AuthClaims, error)
}

type contextKey string

const authClaimsContextKey contextKey = "auth_claims"

type AuthMiddleware struct {
	validator tokenValidator
}

func NewAuthMiddleware(validator tokenValidator) *AuthMiddleware {
	return &AuthMiddleware{validator: validator}
}

func (m *AuthMiddleware) RequireAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		header := strings.TrimSpace(r.Header.Get("Authorization"))
		if header == "" || !strings.HasPrefix(strings.ToLower(header), "bearer ") {
			writeAPIError(w, apierror.Unauthorized("authentication credentials were not provided"))
			return
		}

		token := strings.TrimSpace(header[7:])
		claims, err := m.validator.ValidateAccessToken(r.Context(), token)
		if err != nil {
			var apiErr *apierror.APIError
			if !errors.As(err, &apiErr) {
				errutil.LogError(slog.Default(), "access token check failed", err, "path", logger.RequestPath(r))
				apiErr = apierror.New(apierror.CodeInternal, "Unexpected server error", "", http.StatusInternalServerError)
			}
			writeAPIError(w, apiErr)
			return
		}

		ctx := context.WithValue(r.Context(), authClaimsContextKey, claims)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func ClaimsFromContext(ctx context.Context) (*model.AuthClaims, bool) {
	claims, ok := ctx.Value(authClaimsContextKey).(*model.AuthClaims)
	return claims, ok
}

// ContextWithClaims is used by tests that exercise handlers behind RequireAuth.
func ContextWithClaims(ctx context.Context, claims *model.AuthClaims) context.Context {
	return context.WithValue(ctx, authClaimsContextKey, claims)
}

func writeAPIError(w http.ResponseWriter, apiErr *apierror.APIError) {
	if apiErr.HTTPStatus == http.StatusUnauthorized {
		w.Header().Set("WWW-Authenticate", `Bearer realm="api"`)
	}
	writeErrorEnvelope(w, apiErr.HTTPStatus, apiErr.Code, apiErr.Message)
}
