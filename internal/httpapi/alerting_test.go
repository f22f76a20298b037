package httpapi

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gorilla/mux"
	"github.com/stretchr/testify/require"

	"github.com/sobshdev/altenia/internal/domain/alerting"
)

func TestCreateChannelAndRuleHandler(t *testing.T) {
	d := testDeps(t)
	org, owner := newOrgWithOwner(t, d, "teal")
	proj := newProjectInOrg(t, d, org.ID, "web")

	chBody, _ := json.Marshal(channelRequest{Name: "ops-webhook", Type: string(alerting.ChannelWebhook), URL: "https://example.com/hook", Enabled: true})
	chReq := httptest.NewRequest(http.MethodPost, "/api/projects/"+string(proj.ID)+"/alert-channels", bytes.NewReader(chBody))
	chReq = chReq.WithContext(withUser(owner))
	chReq = mux.SetURLVars(chReq, map[string]string{"projectId": string(proj.ID)})
	chRR := httptest.NewRecorder()

	createChannelHandler(d).ServeHTTP(chRR, chReq)
	require.Equal(t, http.StatusCreated, chRR.Code)

	var channel alerting.Channel
	require.NoError(t, json.Unmarshal(chRR.Body.Bytes(), &channel))

	ruleBody, _ := json.Marshal(ruleRequest{
		Name: "high error rate", Kind: string(alerting.RuleErrorRate), Operator: string(alerting.OpGreaterThan),
		Threshold: 0.5, WindowSeconds: 300, ChannelIDs: []string{string(channel.ID)}, Enabled: true,
	})
	ruleReq := httptest.NewRequest(http.MethodPost, "/api/projects/"+string(proj.ID)+"/alert-rules", bytes.NewReader(ruleBody))
	ruleReq = ruleReq.WithContext(withUser(owner))
	ruleReq = mux.SetURLVars(ruleReq, map[string]string{"projectId": string(proj.ID)})
	ruleRR := httptest.NewRecorder()

	createRuleHandler(d).ServeHTTP(ruleRR, ruleReq)
	require.Equal(t, http.StatusCreated, ruleRR.Code)

	var rule alerting.Rule
	require.NoError(t, json.Unmarshal(ruleRR.Body.Bytes(), &rule))
	require.Equal(t, "high error rate", rule.Name)
	require.Len(t, rule.ChannelIDs, 1)
}

func TestListAlertsHandler_EmptyByDefault(t *testing.T) {
	d := testDeps(t)
	org, owner := newOrgWithOwner(t, d, "teal")
	proj := newProjectInOrg(t, d, org.ID, "web")

	req := httptest.NewRequest(http.MethodGet, "/api/projects/"+string(proj.ID)+"/alerts", nil)
	req = req.WithContext(withUser(owner))
	req = mux.SetURLVars(req, map[string]string{"projectId": string(proj.ID)})
	rr := httptest.NewRecorder()

	listAlertsHandler(d).ServeHTTP(rr, req)

	require.Equal(t, http.StatusOK, rr.Code)
	var alerts []alerting.Alert
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &alerts))
	require.Empty(t, alerts)
}

func TestDeleteChannelHandler_NonMemberForbidden(t *testing.T) {
	d := testDeps(t)
	org, owner := newOrgWithOwner(t, d, "teal")
	proj := newProjectInOrg(t, d, org.ID, "web")

	channel, err := d.Alerting.CreateChannel(withUser(owner), proj.ID, "ops", alerting.ChannelWebhook, "https://example.com", "", nil)
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodDelete, "/api/projects/"+string(proj.ID)+"/alert-channels/"+string(channel.ID), nil)
	req = req.WithContext(withUser("stranger"))
	req = mux.SetURLVars(req, map[string]string{"projectId": string(proj.ID), "id": string(channel.ID)})
	rr := httptest.NewRecorder()

	deleteChannelHandler(d).ServeHTTP(rr, req)

	require.NotEqual(t, http.StatusNoContent, rr.Code)
}
