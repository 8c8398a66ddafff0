package middleware

import (
	"context"
	"net/http"

	"github.com/tempizhere/redirector/internal/auth"
	"github.com/tempizhere/redirector/internal/models"
	"go.uber.org/zap"
)

// OwnerMiddleware определяет владельца по токену Bearer.
// Запрос без токена обрабатывается как анонимный, запрос с недействительным токеном отклоняется.
func OwnerMiddleware(secret string, logger *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if secret == "" {
				next.ServeHTTP(w, r)
				return
			}

			token, err := auth.BearerToken(r.Header.Get("Authorization"))
			if err != nil {
				next.ServeHTTP(w, r)
				return
			}

			owner, err := auth.ParseOwner(secret, token)
			if err != nil {
				logger.Warn("Invalid JWT token", zap.String("uri", r.RequestURI), zap.Error(err))
				http.Error(w, "Unauthorized", http.StatusUnauthorized)
				return
			}

			next.ServeHTTP(w, r.WithContext(WithOwner(r.Context(), owner)))
		})
	}
}

// WithOwner сохраняет владельца в контексте
func WithOwner(ctx context.Context, owner *models.Owner) context.Context {
	return context.WithValue(ctx, ownerKey, owner)
}

// GetOwner извлекает владельца из контекста; nil означает анонимный запрос
func GetOwner(ctx context.Context) *models.Owner {
	owner, _ := ctx.Value(ownerKey).(*models.Owner)
	return owner
}
