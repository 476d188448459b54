package middleware

import (
	"net/http"

	"github.com/nokasa/pickup-backend/api/responses"
	"github.com/nokasa/pickup-backend/pkg/enums"
	pkgerrors "github.com/nokasa/pickup-backend/pkg/errors"
	"github.com/nokasa/pickup-backend/pkg/logger"
)

// RequireEntityType admits only principals of the listed types. Ownership is
// still checked by the services.
func RequireEntityType(logg *logger.Logger, allowed ...enums.EntityType) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			p, ok := PrincipalFromContext(r.Context())
			if !ok {
				responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeUnauthorized, "Missing authorization"))
				return
			}
			for _, t := range allowed {
				if p.EntityType == t {
					next.ServeHTTP(w, r)
					return
				}
			}
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeForbidden, "Invalid user type"))
		})
	}
}
