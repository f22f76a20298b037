package httpapi

import (
	"net/http"

	"github.com/gorilla/mux"

	"github.com/sobshdev/altenia/infrastructure/httputil"
	"github.com/sobshdev/altenia/internal/domain/alerting"
	"github.com/sobshdev/altenia/internal/domain/project"
	"github.com/sobshdev/altenia/internal/domain/telemetry"
)

func registerAlertingRoutes(api *mux.Router, d *Deps) {
	scoped := api.PathPrefix("/projects/{projectId}").Subrouter()
	scoped.Use(requireUser(d))

	scoped.HandleFunc("/alert-channels", listChannelsHandler(d)).Methods(http.MethodGet)
	scoped.HandleFunc("/alert-channels", createChannelHandler(d)).Methods(http.MethodPost)
	scoped.HandleFunc("/alert-channels/{id}", getChannelHandler(d)).Methods(http.MethodGet)
	scoped.HandleFunc("/alert-channels/{id}", updateChannelHandler(d)).Methods(http.MethodPatch)
	scoped.HandleFunc("/alert-channels/{id}", deleteChannelHandler(d)).Methods(http.MethodDelete)

	scoped.HandleFunc("/alert-rules", listRulesHandler(d)).Methods(http.MethodGet)
	scoped.HandleFunc("/alert-rules", createRuleHandler(d)).Methods(http.MethodPost)
	scoped.HandleFunc("/alert-rules/{id}", getRuleHandler(d)).Methods(http.MethodGet)
	scoped.HandleFunc("/alert-rules/{id}", updateRuleHandler(d)).Methods(http.MethodPatch)
	scoped.HandleFunc("/alert-rules/{id}", deleteRuleHandler(d)).Methods(http.MethodDelete)

	scoped.HandleFunc("/alerts", listAlertsHandler(d)).Methods(http.MethodGet)
}

func alertingProjectID(r *http.Request) project.ID {
	return project.ID(mux.Vars(r)["projectId"])
}

type channelRequest struct {
	Name    string            `json:"name"`
	Type    string            `json:"type"`
	URL     string            `json:"url"`
	Secret  string            `json:"secret"`
	Headers map[string]string `json:"headers"`
	Enabled bool              `json:"enabled"`
}

func listChannelsHandler(d *Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		projectID := alertingProjectID(r)
		if _, err := membershipForProject(d, r, projectID); err != nil {
			writeServiceErr(w, r, d, err)
			return
		}
		list, err := d.Alerting.ListChannels(r.Context(), projectID)
		if err != nil {
			writeServiceErr(w, r, d, err)
			return
		}
		httputil.WriteJSON(w, http.StatusOK, list)
	}
}

func createChannelHandler(d *Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		projectID := alertingProjectID(r)
		if _, err := membershipForProject(d, r, projectID); err != nil {
			writeServiceErr(w, r, d, err)
			return
		}
		var req channelRequest
		if !httputil.DecodeJSON(w, r, &req) {
			return
		}
		c, err := d.Alerting.CreateChannel(r.Context(), projectID, req.Name, alerting.ChannelType(req.Type), req.URL, req.Secret, req.Headers)
		if err != nil {
			writeServiceErr(w, r, d, err)
			return
		}
		httputil.RespondCreated(w, c)
	}
}

func getChannelHandler(d *Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		projectID := alertingProjectID(r)
		if _, err := membershipForProject(d, r, projectID); err != nil {
			writeServiceErr(w, r, d, err)
			return
		}
		c, err := d.Alerting.GetChannel(r.Context(), alerting.ChannelID(mux.Vars(r)["id"]))
		if err != nil {
			writeServiceErr(w, r, d, err)
			return
		}
		httputil.WriteJSON(w, http.StatusOK, c)
	}
}

func updateChannelHandler(d *Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		projectID := alertingProjectID(r)
		if _, err := membershipForProject(d, r, projectID); err != nil {
			writeServiceErr(w, r, d, err)
			return
		}
		var req channelRequest
		if !httputil.DecodeJSON(w, r, &req) {
			return
		}
		c, err := d.Alerting.UpdateChannel(r.Context(), alerting.ChannelID(mux.Vars(r)["id"]), req.Name, req.URL, req.Headers, req.Enabled)
		if err != nil {
			writeServiceErr(w, r, d, err)
			return
		}
		httputil.WriteJSON(w, http.StatusOK, c)
	}
}

func deleteChannelHandler(d *Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		projectID := alertingProjectID(r)
		if _, err := membershipForProject(d, r, projectID); err != nil {
			writeServiceErr(w, r, d, err)
			return
		}
		if err := d.Alerting.DeleteChannel(r.Context(), alerting.ChannelID(mux.Vars(r)["id"])); err != nil {
			writeServiceErr(w, r, d, err)
			return
		}
		httputil.RespondNoContent(w)
	}
}

type ruleRequest struct {
	Name          string              `json:"name"`
	Kind          string              `json:"kind"`
	Operator      string              `json:"operator"`
	Threshold     float64             `json:"threshold"`
	WindowSeconds int                 `json:"window_seconds"`
	Pattern       string              `json:"pattern"`
	Levels        []telemetry.LogLevel `json:"levels"`
	Source        string              `json:"source"`
	ChannelIDs    []string            `json:"channel_ids"`
	Enabled       bool                `json:"enabled"`
}

func toChannelIDs(raw []string) []alerting.ChannelID {
	out := make([]alerting.ChannelID, len(raw))
	for i, s := range raw {
		out[i] = alerting.ChannelID(s)
	}
	return out
}

func listRulesHandler(d *Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		projectID := alertingProjectID(r)
		if _, err := membershipForProject(d, r, projectID); err != nil {
			writeServiceErr(w, r, d, err)
			return
		}
		list, err := d.Alerting.ListRules(r.Context(), projectID)
		if err != nil {
			writeServiceErr(w, r, d, err)
			return
		}
		httputil.WriteJSON(w, http.StatusOK, list)
	}
}

func createRuleHandler(d *Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		projectID := alertingProjectID(r)
		if _, err := membershipForProject(d, r, projectID); err != nil {
			writeServiceErr(w, r, d, err)
			return
		}
		var req ruleRequest
		if !httputil.DecodeJSON(w, r, &req) {
			return
		}
		rule, err := d.Alerting.CreateRule(r.Context(), projectID, req.Name, alerting.RuleKind(req.Kind), alerting.Operator(req.Operator),
			req.Threshold, req.WindowSeconds, req.Pattern, req.Levels, req.Source, toChannelIDs(req.ChannelIDs))
		if err != nil {
			writeServiceErr(w, r, d, err)
			return
		}
		httputil.RespondCreated(w, rule)
	}
}

func getRuleHandler(d *Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		projectID := alertingProjectID(r)
		if _, err := membershipForProject(d, r, projectID); err != nil {
			writeServiceErr(w, r, d, err)
			return
		}
		rule, err := d.Alerting.GetRule(r.Context(), alerting.RuleID(mux.Vars(r)["id"]))
		if err != nil {
			writeServiceErr(w, r, d, err)
			return
		}
		httputil.WriteJSON(w, http.StatusOK, rule)
	}
}

func updateRuleHandler(d *Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		projectID := alertingProjectID(r)
		if _, err := membershipForProject(d, r, projectID); err != nil {
			writeServiceErr(w, r, d, err)
			return
		}
		var req ruleRequest
		if !httputil.DecodeJSON(w, r, &req) {
			return
		}
		rule, err := d.Alerting.UpdateRule(r.Context(), alerting.RuleID(mux.Vars(r)["id"]), req.Name, alerting.Operator(req.Operator),
			req.Threshold, req.WindowSeconds, req.Pattern, req.Levels, req.Source, toChannelIDs(req.ChannelIDs), req.Enabled)
		if err != nil {
			writeServiceErr(w, r, d, err)
			return
		}
		httputil.WriteJSON(w, http.StatusOK, rule)
	}
}

func deleteRuleHandler(d *Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		projectID := alertingProjectID(r)
		if _, err := membershipForProject(d, r, projectID); err != nil {
			writeServiceErr(w, r, d, err)
			return
		}
		if err := d.Alerting.DeleteRule(r.Context(), alerting.RuleID(mux.Vars(r)["id"])); err != nil {
			writeServiceErr(w, r, d, err)
			return
		}
		httputil.RespondNoContent(w)
	}
}

func listAlertsHandler(d *Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		projectID := alertingProjectID(r)
		if _, err := membershipForProject(d, r, projectID); err != nil {
			writeServiceErr(w, r, d, err)
			return
		}
		state := alerting.State(httputil.QueryString(r, "state", ""))
		_, limit := httputil.PaginationParams(r, 100, 500)
		list, err := d.Alerting.ListAlerts(r.Context(), projectID, state, limit)
		if err != nil {
			writeServiceErr(w, r, d, err)
			return
		}
		httputil.WriteJSON(w, http.StatusOK, list)
	}
}
