package httpapi

import (
	"net/http"

	"github.com/gorilla/mux"

	"github.com/sobshdev/altenia/infrastructure/httputil"
	"github.com/sobshdev/altenia/infrastructure/logging"
	"github.com/sobshdev/altenia/internal/domain/identity"
	"github.com/sobshdev/altenia/internal/domain/preset"
	"github.com/sobshdev/altenia/internal/domain/project"
)

func registerPresetRoutes(api *mux.Router, d *Deps) {
	presets := api.PathPrefix("/projects/{projectId}/presets").Subrouter()
	presets.Use(requireUser(d))
	presets.HandleFunc("", listPresetsHandler(d)).Methods(http.MethodGet)
	presets.HandleFunc("", createPresetHandler(d)).Methods(http.MethodPost)
	presets.HandleFunc("/default", getDefaultPresetHandler(d)).Methods(http.MethodGet)
	presets.HandleFunc("/{id}", updatePresetHandler(d)).Methods(http.MethodPatch)
	presets.HandleFunc("/{id}", deletePresetHandler(d)).Methods(http.MethodDelete)
}

func presetUserID(r *http.Request) identity.UserID {
	return identity.UserID(logging.GetUserID(r.Context()))
}

func listPresetsHandler(d *Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		projectID := project.ID(mux.Vars(r)["projectId"])
		if _, err := membershipForProject(d, r, projectID); err != nil {
			writeServiceErr(w, r, d, err)
			return
		}
		list, err := d.Preset.ListByScope(r.Context(), projectID, presetUserID(r))
		if err != nil {
			writeServiceErr(w, r, d, err)
			return
		}
		httputil.WriteJSON(w, http.StatusOK, list)
	}
}

func getDefaultPresetHandler(d *Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		projectID := project.ID(mux.Vars(r)["projectId"])
		if _, err := membershipForProject(d, r, projectID); err != nil {
			writeServiceErr(w, r, d, err)
			return
		}
		p, err := d.Preset.GetDefault(r.Context(), projectID, presetUserID(r))
		if err != nil {
			writeServiceErr(w, r, d, err)
			return
		}
		httputil.WriteJSON(w, http.StatusOK, p)
	}
}

func createPresetHandler(d *Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		projectID := project.ID(mux.Vars(r)["projectId"])
		if _, err := membershipForProject(d, r, projectID); err != nil {
			writeServiceErr(w, r, d, err)
			return
		}
		var req struct {
			Name      string        `json:"name"`
			Filter    preset.Filter `json:"filter"`
			IsDefault bool          `json:"is_default"`
		}
		if !httputil.DecodeJSON(w, r, &req) {
			return
		}
		p, err := d.Preset.Create(r.Context(), projectID, presetUserID(r), req.Name, req.Filter, req.IsDefault)
		if err != nil {
			writeServiceErr(w, r, d, err)
			return
		}
		httputil.RespondCreated(w, p)
	}
}

func updatePresetHandler(d *Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		projectID := project.ID(mux.Vars(r)["projectId"])
		if _, err := membershipForProject(d, r, projectID); err != nil {
			writeServiceErr(w, r, d, err)
			return
		}
		id := preset.ID(mux.Vars(r)["id"])
		var req struct {
			Name      string        `json:"name"`
			Filter    preset.Filter `json:"filter"`
			IsDefault bool          `json:"is_default"`
		}
		if !httputil.DecodeJSON(w, r, &req) {
			return
		}
		p, err := d.Preset.Update(r.Context(), id, req.Name, req.Filter, req.IsDefault)
		if err != nil {
			writeServiceErr(w, r, d, err)
			return
		}
		httputil.WriteJSON(w, http.StatusOK, p)
	}
}

func deletePresetHandler(d *Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		projectID := project.ID(mux.Vars(r)["projectId"])
		if _, err := membershipForProject(d, r, projectID); err != nil {
			writeServiceErr(w, r, d, err)
			return
		}
		if err := d.Preset.Delete(r.Context(), preset.ID(mux.Vars(r)["id"])); err != nil {
			writeServiceErr(w, r, d, err)
			return
		}
		httputil.RespondNoContent(w)
	}
}
