package middleware

import (
	"net/http"

	"github.com/nokasa/pickup-backend/api/responses"
	"github.com/nokasa/pickup-backend/pkg/auth"
	"github.com/nokasa/pickup-backend/pkg/config"
	pkgerrors "github.com/nokasa/pickup-backend/pkg/errors"
	"github.com/nokasa/pickup-backend/pkg/logger"
)

// Auth validates a bearer token and seeds the request context with the principal.
func Auth(cfg config.JWTConfig, logg *logger.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token, ok := auth.ExtractBearer(r.Header.Get("Authorization"))
			if !ok {
				responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeUnauthorized, "Missing authorization"))
				return
			}

			principal, err := auth.VerifyToken(cfg, token)
			if err != nil {
				responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeUnauthorized, err, "Invalid token"))
				return
			}

			ctx := WithPrincipal(r.Context(), principal)
			if logg != nil {
				ctx = logg.WithEntity(ctx, principal.EntityID, string(principal.EntityType))
			}
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}
