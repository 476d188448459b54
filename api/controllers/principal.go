package controllers

import (
	"net/http"

	"github.com/nokasa/pickup-backend/api/middleware"
	"github.com/nokasa/pickup-backend/pkg/auth"
	pkgerrors "github.com/nokasa/pickup-backend/pkg/errors"
)

func principalFrom(r *http.Request) (auth.Principal, error) {
	principal, ok := middleware.PrincipalFromContext(r.Context())
	if !ok {
		return auth.Principal{}, pkgerrors.New(pkgerrors.CodeUnauthorized, "authentication required")
	}
	return principal, nil
}
