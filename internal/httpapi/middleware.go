package httpapi

import (
	"net/http"
	"strings"

	"github.com/sobshdev/altenia/infrastructure/httputil"
	"github.com/sobshdev/altenia/infrastructure/logging"
	"github.com/sobshdev/altenia/internal/domain/project"
)

// bearerToken extracts a raw bearer token from the Authorization header, or
// from the "token" query parameter as a fallback for the SSE log stream,
// which cannot set request headers from an EventSource client.
func bearerToken(r *http.Request) string {
	if auth := r.Header.Get("Authorization"); strings.HasPrefix(auth, "Bearer ") {
		return strings.TrimPrefix(auth, "Bearer ")
	}
	return r.URL.Query().Get("token")
}

// requireUser parses the bearer access token and attaches the authenticated
// user ID to the request context for downstream handlers, mirroring the
// teacher's authMiddleware JWT branch but without a database session lookup
// since refresh-token sessions are validated only on /refresh.
func requireUser(d *Deps) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token := bearerToken(r)
			if token == "" {
				httputil.Unauthorized(w, "missing bearer token")
				return
			}
			claims, err := d.Tokens.ParseAccessToken(token)
			if err != nil {
				httputil.Unauthorized(w, "invalid or expired token")
				return
			}
			ctx := logging.WithUserID(r.Context(), claims.UserID)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// requireAPIKey authenticates an ingest request, preferring the X-API-Key
// header and falling back to an "alt_pk_"-prefixed bearer token, matching
// the teacher's API-key-then-JWT precedence in authMiddleware.
func requireAPIKey(d *Deps) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			raw := r.Header.Get("X-API-Key")
			if raw == "" {
				if auth := r.Header.Get("Authorization"); strings.HasPrefix(auth, "Bearer "+project.KeyPrefix) {
					raw = strings.TrimPrefix(auth, "Bearer ")
				}
			}
			if raw == "" {
				httputil.Unauthorized(w, "missing API key")
				return
			}
			proj, _, err := d.Project.ValidateApiKey(r.Context(), raw)
			if err != nil {
				httputil.Unauthorized(w, "invalid API key")
				return
			}
			ctx := logging.WithProjectID(r.Context(), string(proj.ID))
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}
