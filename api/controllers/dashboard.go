package controllers

import (
	"net/http"
	"strings"

	"github.com/nokasa/pickup-backend/api/responses"
	"github.com/nokasa/pickup-backend/internal/dashboard"
	pkgerrors "github.com/nokasa/pickup-backend/pkg/errors"
	"github.com/nokasa/pickup-backend/pkg/logger"
)

// Homepage serves the vendor or agent home screen.
func Homepage(svc dashboard.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "dashboard service unavailable"))
			return
		}
		principal, err := principalFrom(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		query := r.URL.Query()
		home, err := svc.Home(r.Context(), principal, dashboard.Query{
			OrderType: strings.ToLower(strings.TrimSpace(query.Get("orderType"))),
			Sort:      strings.TrimSpace(query.Get("sort")),
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, home)
	}
}
