package httpapi

import (
	"net/http"

	serrors "github.com/sobshdev/altenia/infrastructure/errors"
	"github.com/sobshdev/altenia/infrastructure/httputil"
)

// writeServiceErr maps a *serrors.ServiceError (the error type every
// service-layer method returns) to its HTTP status, falling back to 500 for
// anything else so a missed case never leaks a stack trace to the client.
func writeServiceErr(w http.ResponseWriter, r *http.Request, d *Deps, err error) {
	if d.Logger != nil {
		d.Logger.WithContext(r.Context()).WithError(err).Warn("request failed")
	}
	if svcErr := serrors.GetServiceError(err); svcErr != nil {
		httputil.WriteErrorResponse(w, r, svcErr.HTTPStatus, string(svcErr.Code), svcErr.Message, svcErr.Details)
		return
	}
	httputil.InternalError(w, "internal server error")
}
