package httpapi

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"time"

	"github.com/gorilla/mux"

	"github.com/sobshdev/altenia/infrastructure/httputil"
	"github.com/sobshdev/altenia/infrastructure/logging"
	"github.com/sobshdev/altenia/infrastructure/middleware"
	"github.com/sobshdev/altenia/internal/domain/identity"
	"github.com/sobshdev/altenia/internal/service/auth"
)

type registerRequest struct {
	Email       string `json:"email"`
	Password    string `json:"password"`
	DisplayName string `json:"display_name"`
	DeviceID    string `json:"device_fingerprint"`
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
	DeviceID string `json:"device_fingerprint"`
}

type refreshRequest struct {
	RefreshToken string `json:"refresh_token"`
	DeviceID     string `json:"device_fingerprint"`
}

type tokenResponse struct {
	AccessToken  string    `json:"access_token"`
	RefreshToken string    `json:"refresh_token,omitempty"`
	ExpiresAt    time.Time `json:"expires_at"`
	OrgID        string    `json:"org_id,omitempty"`
	OrgRole      string    `json:"org_role,omitempty"`
}

func toTokenResponse(t *auth.TokenPair) tokenResponse {
	return tokenResponse{
		AccessToken:  t.AccessToken,
		RefreshToken: t.RefreshToken,
		ExpiresAt:    t.ExpiresAt,
		OrgID:        t.OrgID,
		OrgRole:      t.OrgRole,
	}
}

type userResponse struct {
	ID          string    `json:"id"`
	Email       string    `json:"email"`
	DisplayName string    `json:"display_name"`
	CreatedAt   time.Time `json:"created_at"`
}

func toUserResponse(u *identity.User) userResponse {
	return userResponse{ID: string(u.ID), Email: u.Email, DisplayName: u.DisplayName, CreatedAt: u.CreatedAt}
}

type authResponse struct {
	User   userResponse  `json:"user"`
	Tokens tokenResponse `json:"tokens"`
}

func registerAuthRoutes(api *mux.Router, d *Deps, loginLimiter *middleware.RateLimiter) {
	auth := api.PathPrefix("/auth").Subrouter()
	if loginLimiter != nil {
		login := auth.PathPrefix("").Subrouter()
		login.Use(loginKeyedLimiter(loginLimiter))
		login.HandleFunc("/login", loginHandler(d)).Methods(http.MethodPost)
		login.HandleFunc("/register", registerHandler(d)).Methods(http.MethodPost)
	} else {
		auth.HandleFunc("/login", loginHandler(d)).Methods(http.MethodPost)
		auth.HandleFunc("/register", registerHandler(d)).Methods(http.MethodPost)
	}
	auth.HandleFunc("/refresh", refreshHandler(d)).Methods(http.MethodPost)
	auth.HandleFunc("/logout", requireUser(d)(http.HandlerFunc(logoutHandler(d))).ServeHTTP).Methods(http.MethodPost)
	auth.HandleFunc("/me", requireUser(d)(http.HandlerFunc(meHandler(d))).ServeHTTP).Methods(http.MethodGet)
}

// loginKeyedLimiter keys the dedicated login-endpoint limiter by IP+email
// instead of the general per-user/per-IP key, since brute-force attempts
// against a single account must be rate-limited even from rotating IPs.
func loginKeyedLimiter(limiter *middleware.RateLimiter) mux.MiddlewareFunc {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			var body struct {
				Email string `json:"email"`
			}
			if r.Body != nil {
				raw, _ := io.ReadAll(r.Body)
				r.Body.Close()
				_ = json.Unmarshal(raw, &body)
				r.Body = io.NopCloser(bytes.NewReader(raw))
			}
			key := httputil.ClientIP(r) + "|" + body.Email
			if !limiter.Allow(key) {
				httputil.WriteErrorResponse(w, r, http.StatusTooManyRequests, "RATE_LIMIT_EXCEEDED", "too many login attempts", nil)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func registerHandler(d *Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req registerRequest
		if !httputil.DecodeJSON(w, r, &req) {
			return
		}
		user, tokens, err := d.Auth.Register(r.Context(), req.Email, req.Password, req.DisplayName, req.DeviceID)
		if err != nil {
			writeServiceErr(w, r, d, err)
			return
		}
		httputil.RespondCreated(w, authResponse{
			User:   toUserResponse(user),
			Tokens: toTokenResponse(tokens),
		})
	}
}

func loginHandler(d *Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req loginRequest
		if !httputil.DecodeJSON(w, r, &req) {
			return
		}
		user, tokens, err := d.Auth.Login(r.Context(), req.Email, req.Password, req.DeviceID)
		if err != nil {
			writeServiceErr(w, r, d, err)
			return
		}
		httputil.WriteJSON(w, http.StatusOK, authResponse{
			User:   toUserResponse(user),
			Tokens: toTokenResponse(tokens),
		})
	}
}

func refreshHandler(d *Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req refreshRequest
		if !httputil.DecodeJSON(w, r, &req) {
			return
		}
		tokens, err := d.Auth.Refresh(r.Context(), req.RefreshToken, req.DeviceID)
		if err != nil {
			writeServiceErr(w, r, d, err)
			return
		}
		httputil.WriteJSON(w, http.StatusOK, toTokenResponse(tokens))
	}
}

func logoutHandler(d *Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userID := logging.GetUserID(r.Context())
		if err := d.Auth.Logout(r.Context(), identity.UserID(userID)); err != nil {
			writeServiceErr(w, r, d, err)
			return
		}
		httputil.RespondNoContent(w)
	}
}

func meHandler(d *Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userID := identity.UserID(logging.GetUserID(r.Context()))
		user, err := d.Auth.GetUser(r.Context(), userID)
		if err != nil {
			writeServiceErr(w, r, d, err)
			return
		}
		orgs, err := d.Tenancy.ListMyOrgs(r.Context(), userID)
		if err != nil {
			writeServiceErr(w, r, d, err)
			return
		}
		httputil.WriteJSON(w, http.StatusOK, map[string]interface{}{
			"user": toUserResponse(user),
			"orgs": orgs,
		})
	}
}
