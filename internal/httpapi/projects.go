package httpapi

import (
	"net/http"
	"time"

	"github.com/gorilla/mux"

	"github.com/sobshdev/altenia/infrastructure/httputil"
	"github.com/sobshdev/altenia/internal/domain/project"
	"github.com/sobshdev/altenia/internal/domain/tenancy"
)

type projectResponse struct {
	ID          string    `json:"id"`
	OrgID       string    `json:"org_id"`
	Name        string    `json:"name"`
	Slug        string    `json:"slug"`
	Description string    `json:"description"`
	Retention   retention `json:"retention"`
	CreatedAt   time.Time `json:"created_at"`
}

type retention struct {
	Logs    int `json:"logs"`
	Metrics int `json:"metrics"`
	Traces  int `json:"traces"`
}

func toProjectResponse(p *project.Project) projectResponse {
	return projectResponse{
		ID:          string(p.ID),
		OrgID:       string(p.OrgID),
		Name:        p.Name,
		Slug:        p.Slug,
		Description: p.Description,
		Retention:   retention{Logs: p.Retention.Logs, Metrics: p.Retention.Metrics, Traces: p.Retention.Traces},
		CreatedAt:   p.CreatedAt,
	}
}

type apiKeyResponse struct {
	ID         string     `json:"id"`
	Name       string     `json:"name"`
	Prefix     string     `json:"prefix"`
	RawKey     string     `json:"raw_key,omitempty"`
	CreatedAt  time.Time  `json:"created_at"`
	LastUsedAt *time.Time `json:"last_used_at,omitempty"`
	RevokedAt  *time.Time `json:"revoked_at,omitempty"`
}

func toApiKeyResponse(k *project.ApiKey) apiKeyResponse {
	return apiKeyResponse{
		ID:         string(k.ID),
		Name:       k.Name,
		Prefix:     k.Prefix,
		RawKey:     k.RawKey,
		CreatedAt:  k.CreatedAt,
		LastUsedAt: k.LastUsedAt,
		RevokedAt:  k.RevokedAt,
	}
}

func registerProjectRoutes(api *mux.Router, d *Deps) {
	orgProjects := api.PathPrefix("/orgs/{orgId}/projects").Subrouter()
	orgProjects.Use(requireUser(d))
	orgProjects.HandleFunc("", listProjectsHandler(d)).Methods(http.MethodGet)
	orgProjects.HandleFunc("", createProjectHandler(d)).Methods(http.MethodPost)

	projects := api.PathPrefix("/projects").Subrouter()
	projects.Use(requireUser(d))
	projects.HandleFunc("/{id}", getProjectHandler(d)).Methods(http.MethodGet)
	projects.HandleFunc("/{id}", updateProjectHandler(d)).Methods(http.MethodPatch)
	projects.HandleFunc("/{id}", deleteProjectHandler(d)).Methods(http.MethodDelete)
	projects.HandleFunc("/{id}/api-keys", listApiKeysHandler(d)).Methods(http.MethodGet)
	projects.HandleFunc("/{id}/api-keys", createApiKeyHandler(d)).Methods(http.MethodPost)
	projects.HandleFunc("/{id}/api-keys/{keyId}", revokeApiKeyHandler(d)).Methods(http.MethodDelete)
}

// membershipForProject fetches a project and confirms the caller belongs to
// its owning organization, since project.Service itself is org-agnostic.
func membershipForProject(d *Deps, r *http.Request, id project.ID) (*project.Project, error) {
	p, err := d.Project.Get(r.Context(), id)
	if err != nil {
		return nil, err
	}
	if _, err := d.Tenancy.GetOrg(r.Context(), p.OrgID, actorID(r)); err != nil {
		return nil, err
	}
	return p, nil
}

func listProjectsHandler(d *Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		orgID := tenancy.OrgID(mux.Vars(r)["orgId"])
		if _, err := d.Tenancy.GetOrg(r.Context(), orgID, actorID(r)); err != nil {
			writeServiceErr(w, r, d, err)
			return
		}
		list, err := d.Project.ListByOrg(r.Context(), orgID)
		if err != nil {
			writeServiceErr(w, r, d, err)
			return
		}
		out := make([]projectResponse, len(list))
		for i, p := range list {
			out[i] = toProjectResponse(p)
		}
		httputil.WriteJSON(w, http.StatusOK, out)
	}
}

func createProjectHandler(d *Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		orgID := tenancy.OrgID(mux.Vars(r)["orgId"])
		if _, err := d.Tenancy.GetOrg(r.Context(), orgID, actorID(r)); err != nil {
			writeServiceErr(w, r, d, err)
			return
		}
		var req struct {
			Name        string    `json:"name"`
			Description string    `json:"description"`
			Retention   retention `json:"retention"`
		}
		if !httputil.DecodeJSON(w, r, &req) {
			return
		}
		p, err := d.Project.Create(r.Context(), orgID, req.Name, req.Description, project.RetentionDays{
			Logs: req.Retention.Logs, Metrics: req.Retention.Metrics, Traces: req.Retention.Traces,
		})
		if err != nil {
			writeServiceErr(w, r, d, err)
			return
		}
		httputil.RespondCreated(w, toProjectResponse(p))
	}
}

func getProjectHandler(d *Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := project.ID(mux.Vars(r)["id"])
		p, err := membershipForProject(d, r, id)
		if err != nil {
			writeServiceErr(w, r, d, err)
			return
		}
		httputil.WriteJSON(w, http.StatusOK, toProjectResponse(p))
	}
}

func updateProjectHandler(d *Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := project.ID(mux.Vars(r)["id"])
		if _, err := membershipForProject(d, r, id); err != nil {
			writeServiceErr(w, r, d, err)
			return
		}
		var req struct {
			Name        string    `json:"name"`
			Description string    `json:"description"`
			Retention   retention `json:"retention"`
		}
		if !httputil.DecodeJSON(w, r, &req) {
			return
		}
		p, err := d.Project.Update(r.Context(), id, req.Name, req.Description, project.RetentionDays{
			Logs: req.Retention.Logs, Metrics: req.Retention.Metrics, Traces: req.Retention.Traces,
		})
		if err != nil {
			writeServiceErr(w, r, d, err)
			return
		}
		httputil.WriteJSON(w, http.StatusOK, toProjectResponse(p))
	}
}

func deleteProjectHandler(d *Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := project.ID(mux.Vars(r)["id"])
		if _, err := membershipForProject(d, r, id); err != nil {
			writeServiceErr(w, r, d, err)
			return
		}
		if err := d.Project.Delete(r.Context(), id); err != nil {
			writeServiceErr(w, r, d, err)
			return
		}
		httputil.RespondNoContent(w)
	}
}

func listApiKeysHandler(d *Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := project.ID(mux.Vars(r)["id"])
		if _, err := membershipForProject(d, r, id); err != nil {
			writeServiceErr(w, r, d, err)
			return
		}
		keys, err := d.Project.ListApiKeys(r.Context(), id)
		if err != nil {
			writeServiceErr(w, r, d, err)
			return
		}
		out := make([]apiKeyResponse, len(keys))
		for i, k := range keys {
			out[i] = toApiKeyResponse(k)
		}
		httputil.WriteJSON(w, http.StatusOK, out)
	}
}

func createApiKeyHandler(d *Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := project.ID(mux.Vars(r)["id"])
		if _, err := membershipForProject(d, r, id); err != nil {
			writeServiceErr(w, r, d, err)
			return
		}
		var req struct {
			Name string `json:"name"`
		}
		if !httputil.DecodeJSON(w, r, &req) {
			return
		}
		key, err := d.Project.IssueApiKey(r.Context(), id, req.Name)
		if err != nil {
			writeServiceErr(w, r, d, err)
			return
		}
		httputil.RespondCreated(w, toApiKeyResponse(key))
	}
}

func revokeApiKeyHandler(d *Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		vars := mux.Vars(r)
		id := project.ID(vars["id"])
		if _, err := membershipForProject(d, r, id); err != nil {
			writeServiceErr(w, r, d, err)
			return
		}
		if err := d.Project.RevokeApiKey(r.Context(), project.ApiKeyID(vars["keyId"])); err != nil {
			writeServiceErr(w, r, d, err)
			return
		}
		httputil.RespondNoContent(w)
	}
}
