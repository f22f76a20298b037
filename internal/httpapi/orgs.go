package httpapi

import (
	"net/http"
	"time"

	"github.com/gorilla/mux"

	"github.com/sobshdev/altenia/infrastructure/httputil"
	"github.com/sobshdev/altenia/infrastructure/logging"
	"github.com/sobshdev/altenia/internal/domain/identity"
	"github.com/sobshdev/altenia/internal/domain/tenancy"
)

type orgResponse struct {
	ID         string    `json:"id"`
	Name       string    `json:"name"`
	Slug       string    `json:"slug"`
	IsPersonal bool      `json:"is_personal"`
	CreatedAt  time.Time `json:"created_at"`
}

func toOrgResponse(o *tenancy.Organization) orgResponse {
	return orgResponse{ID: string(o.ID), Name: o.Name, Slug: o.Slug, IsPersonal: o.IsPersonal, CreatedAt: o.CreatedAt}
}

type memberResponse struct {
	UserID   string    `json:"user_id"`
	Role     string    `json:"role"`
	JoinedAt time.Time `json:"joined_at"`
}

func toMemberResponse(m *tenancy.Member) memberResponse {
	return memberResponse{UserID: string(m.UserID), Role: string(m.Role), JoinedAt: m.JoinedAt}
}

func registerOrgRoutes(api *mux.Router, d *Deps) {
	orgs := api.PathPrefix("/orgs").Subrouter()
	orgs.Use(requireUser(d))

	orgs.HandleFunc("", listOrgsHandler(d)).Methods(http.MethodGet)
	orgs.HandleFunc("", createOrgHandler(d)).Methods(http.MethodPost)
	orgs.HandleFunc("/{id}", getOrgHandler(d)).Methods(http.MethodGet)
	orgs.HandleFunc("/{id}", updateOrgHandler(d)).Methods(http.MethodPatch)
	orgs.HandleFunc("/{id}", deleteOrgHandler(d)).Methods(http.MethodDelete)
	orgs.HandleFunc("/{id}/leave", leaveOrgHandler(d)).Methods(http.MethodPost)
	orgs.HandleFunc("/{id}/transfer", transferOrgHandler(d)).Methods(http.MethodPost)
	orgs.HandleFunc("/{id}/switch", switchOrgHandler(d)).Methods(http.MethodPost)

	orgs.HandleFunc("/{id}/members", listMembersHandler(d)).Methods(http.MethodGet)
	orgs.HandleFunc("/{id}/members/{userId}", changeRoleHandler(d)).Methods(http.MethodPatch)
	orgs.HandleFunc("/{id}/members/{userId}", removeMemberHandler(d)).Methods(http.MethodDelete)

	orgs.HandleFunc("/{id}/invites", listInvitesHandler(d)).Methods(http.MethodGet)
	orgs.HandleFunc("/{id}/invites", createInviteHandler(d)).Methods(http.MethodPost)
	orgs.HandleFunc("/{id}/invites/{inviteId}", revokeInviteHandler(d)).Methods(http.MethodDelete)
	orgs.HandleFunc("/{id}/activity", listActivityHandler(d)).Methods(http.MethodGet)

	api.Handle("/invites/accept", requireUser(d)(http.HandlerFunc(acceptInviteHandler(d)))).Methods(http.MethodPost)
}

func actorID(r *http.Request) identity.UserID {
	return identity.UserID(logging.GetUserID(r.Context()))
}

func listOrgsHandler(d *Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		orgsList, err := d.Tenancy.ListMyOrgs(r.Context(), actorID(r))
		if err != nil {
			writeServiceErr(w, r, d, err)
			return
		}
		out := make([]orgResponse, len(orgsList))
		for i, o := range orgsList {
			out[i] = toOrgResponse(o)
		}
		httputil.WriteJSON(w, http.StatusOK, out)
	}
}

func createOrgHandler(d *Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			Name string `json:"name"`
		}
		if !httputil.DecodeJSON(w, r, &req) {
			return
		}
		org, err := d.Tenancy.CreateOrg(r.Context(), req.Name, actorID(r))
		if err != nil {
			writeServiceErr(w, r, d, err)
			return
		}
		httputil.RespondCreated(w, toOrgResponse(org))
	}
}

func getOrgHandler(d *Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := mux.Vars(r)["id"]
		org, err := d.Tenancy.GetOrg(r.Context(), tenancy.OrgID(id), actorID(r))
		if err != nil {
			writeServiceErr(w, r, d, err)
			return
		}
		httputil.WriteJSON(w, http.StatusOK, toOrgResponse(org))
	}
}

func updateOrgHandler(d *Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := mux.Vars(r)["id"]
		var req struct {
			Name string `json:"name"`
		}
		if !httputil.DecodeJSON(w, r, &req) {
			return
		}
		org, err := d.Tenancy.UpdateOrg(r.Context(), tenancy.OrgID(id), actorID(r), req.Name)
		if err != nil {
			writeServiceErr(w, r, d, err)
			return
		}
		httputil.WriteJSON(w, http.StatusOK, toOrgResponse(org))
	}
}

func deleteOrgHandler(d *Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := mux.Vars(r)["id"]
		if err := d.Tenancy.DeleteOrg(r.Context(), tenancy.OrgID(id), actorID(r)); err != nil {
			writeServiceErr(w, r, d, err)
			return
		}
		httputil.RespondNoContent(w)
	}
}

func leaveOrgHandler(d *Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := mux.Vars(r)["id"]
		if err := d.Tenancy.LeaveOrg(r.Context(), tenancy.OrgID(id), actorID(r)); err != nil {
			writeServiceErr(w, r, d, err)
			return
		}
		httputil.RespondNoContent(w)
	}
}

func transferOrgHandler(d *Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := mux.Vars(r)["id"]
		var req struct {
			TargetUserID string `json:"target_user_id"`
		}
		if !httputil.DecodeJSON(w, r, &req) {
			return
		}
		if err := d.Tenancy.TransferOwnership(r.Context(), tenancy.OrgID(id), actorID(r), identity.UserID(req.TargetUserID)); err != nil {
			writeServiceErr(w, r, d, err)
			return
		}
		httputil.RespondNoContent(w)
	}
}

// switchOrgHandler verifies the caller belongs to the target org, stamps it
// as their most-recently-accessed org, and re-issues a token pair
// reflecting the new context.
func switchOrgHandler(d *Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := mux.Vars(r)["id"]
		var req struct {
			DeviceID string `json:"device_fingerprint"`
		}
		if !httputil.DecodeJSONOptional(w, r, &req) {
			return
		}
		org, role, err := d.Tenancy.SwitchOrg(r.Context(), tenancy.OrgID(id), actorID(r))
		if err != nil {
			writeServiceErr(w, r, d, err)
			return
		}
		tokens, err := d.Auth.IssueTokensFor(r.Context(), actorID(r), req.DeviceID, string(org.ID), string(role))
		if err != nil {
			writeServiceErr(w, r, d, err)
			return
		}
		httputil.WriteJSON(w, http.StatusOK, toTokenResponse(tokens))
	}
}

func listMembersHandler(d *Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := mux.Vars(r)["id"]
		members, err := d.Tenancy.ListMembers(r.Context(), tenancy.OrgID(id), actorID(r))
		if err != nil {
			writeServiceErr(w, r, d, err)
			return
		}
		out := make([]memberResponse, len(members))
		for i, m := range members {
			out[i] = toMemberResponse(m)
		}
		httputil.WriteJSON(w, http.StatusOK, out)
	}
}

func changeRoleHandler(d *Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		vars := mux.Vars(r)
		var req struct {
			Role string `json:"role"`
		}
		if !httputil.DecodeJSON(w, r, &req) {
			return
		}
		err := d.Tenancy.ChangeRole(r.Context(), tenancy.OrgID(vars["id"]), actorID(r), identity.UserID(vars["userId"]), tenancy.Role(req.Role))
		if err != nil {
			writeServiceErr(w, r, d, err)
			return
		}
		httputil.RespondNoContent(w)
	}
}

func removeMemberHandler(d *Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		vars := mux.Vars(r)
		err := d.Tenancy.RemoveMember(r.Context(), tenancy.OrgID(vars["id"]), actorID(r), identity.UserID(vars["userId"]))
		if err != nil {
			writeServiceErr(w, r, d, err)
			return
		}
		httputil.RespondNoContent(w)
	}
}

func listInvitesHandler(d *Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := mux.Vars(r)["id"]
		invites, err := d.Tenancy.ListInvites(r.Context(), tenancy.OrgID(id), actorID(r))
		if err != nil {
			writeServiceErr(w, r, d, err)
			return
		}
		httputil.WriteJSON(w, http.StatusOK, invites)
	}
}

func createInviteHandler(d *Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := mux.Vars(r)["id"]
		var req struct {
			Email string `json:"email"`
			Role  string `json:"role"`
		}
		if !httputil.DecodeJSON(w, r, &req) {
			return
		}
		inv, err := d.Tenancy.InviteMember(r.Context(), tenancy.OrgID(id), actorID(r), req.Email, tenancy.Role(req.Role))
		if err != nil {
			writeServiceErr(w, r, d, err)
			return
		}
		httputil.RespondCreated(w, inv)
	}
}

func revokeInviteHandler(d *Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		vars := mux.Vars(r)
		err := d.Tenancy.RevokeInvite(r.Context(), tenancy.OrgID(vars["id"]), actorID(r), tenancy.InviteID(vars["inviteId"]))
		if err != nil {
			writeServiceErr(w, r, d, err)
			return
		}
		httputil.RespondNoContent(w)
	}
}

func acceptInviteHandler(d *Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			Token string `json:"token"`
		}
		if !httputil.DecodeJSON(w, r, &req) {
			return
		}
		org, err := d.Tenancy.AcceptInvite(r.Context(), req.Token, actorID(r))
		if err != nil {
			writeServiceErr(w, r, d, err)
			return
		}
		httputil.WriteJSON(w, http.StatusOK, toOrgResponse(org))
	}
}

func listActivityHandler(d *Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := mux.Vars(r)["id"]
		_, limit := httputil.PaginationParams(r, 50, 200)
		entries, err := d.Tenancy.ListActivity(r.Context(), tenancy.OrgID(id), actorID(r), limit)
		if err != nil {
			writeServiceErr(w, r, d, err)
			return
		}
		httputil.WriteJSON(w, http.StatusOK, entries)
	}
}
