package handlers_test

import (
	"net/http"
	"testing"

	"github.com/dom/learnhub-api/internal/domain"
	"github.com/dom/learnhub-api/internal/testutil"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAdminHandler_RequiresAdmin(t *testing.T) {
	ts := testutil.NewTestServer(t)

	target, _ := testutil.NewUserBuilder().Build(t, ts.DB.DB)
	_, learner := testutil.NewUserBuilder().BuildAndAuthenticate(t, ts)

	tests := []struct {
		name   string
		method string
		path   string
		body   interface{}
	}{
		{name: "update status", method: http.MethodPatch, path: "/admin/users/" + target.ID.String() + "/status", body: map[string]string{"status": "INACTIVE"}},
		{name: "list sessions", method: http.MethodGet, path: "/admin/users/" + target.ID.String() + "/sessions"},
		{name: "revoke session", method: http.MethodDelete, path: "/admin/sessions/" + uuid.NewString()},
		{name: "audit logs", method: http.MethodGet, path: "/admin/audit-logs"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp := testutil.Do(t, tt.method, ts.APIURL(tt.path), tt.body, learner.AccessToken)
			testutil.AssertErrorResponse(t, resp, http.StatusForbidden, "FORBIDDEN")

			resp = testutil.Do(t, tt.method, ts.APIURL(tt.path), tt.body, "")
			testutil.AssertStatusCode(t, resp, http.StatusUnauthorized)
		})
	}

	stored, err := ts.DB.Store.Repos().User.GetByID(t.Context(), target.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.UserStatusActive, stored.Status)
}

func TestAdminHandler_UpdateUserStatus(t *testing.T) {
	ts := testutil.NewTestServer(t)

	admin, adminAuth := testutil.NewUserBuilder().AsAdmin().BuildAndAuthenticate(t, ts)
	target, targetAuth := testutil.NewUserBuilder().BuildAndAuthenticate(t, ts)

	tests := []struct {
		name           string
		userID         string
		body           map[string]string
		expectedStatus int
		expectedCode   string
	}{
		{name: "unknown status", userID: target.ID.String(), body: map[string]string{"status": "BANNED"}, expectedStatus: http.StatusBadRequest, expectedCode: "INVALID_STATUS"},
		{name: "missing status", userID: target.ID.String(), body: map[string]string{}, expectedStatus: http.StatusBadRequest, expectedCode: "VALIDATION_FAILED"},
		{name: "unknown user", userID: uuid.NewString(), body: map[string]string{"status": "INACTIVE"}, expectedStatus: http.StatusNotFound, expectedCode: "NOT_FOUND"},
		{name: "deactivate", userID: target.ID.String(), body: map[string]string{"status": "INACTIVE", "reason": "chargeback"}, expectedStatus: http.StatusOK},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp := testutil.Do(t, http.MethodPatch, ts.APIURL("/admin/users/"+tt.userID+"/status"), tt.body, adminAuth.AccessToken)
			if tt.expectedCode != "" {
				testutil.AssertErrorResponse(t, resp, tt.expectedStatus, tt.expectedCode)
				return
			}

			testutil.AssertStatusCode(t, resp, tt.expectedStatus)
			var change struct {
				OldStatus       string   `json:"oldStatus"`
				NewStatus       string   `json:"newStatus"`
				RevokedSessions []string `json:"revokedSessions"`
			}
			testutil.AssertJSONResponse(t, resp, &change)
			assert.Equal(t, "ACTIVE", change.OldStatus)
			assert.Equal(t, "INACTIVE", change.NewStatus)
			assert.Equal(t, []string{targetAuth.SessionID}, change.RevokedSessions)
		})
	}

	resp := testutil.Do(t, http.MethodGet, ts.APIURL("/auth/me"), nil, targetAuth.AccessToken)
	testutil.AssertErrorResponse(t, resp, http.StatusUnauthorized, "SESSION_REVOKED")

	events := ts.Audit.EventsOfType(domain.AuditUserStatusChanged)
	require.Len(t, events, 1)
	assert.Equal(t, admin.ID.String(), events[0].ActorID)
	assert.Equal(t, "chargeback", events[0].Metadata["reason"])
}

func TestAdminHandler_Sessions(t *testing.T) {
	ts := testutil.NewTestServer(t)

	_, adminAuth := testutil.NewUserBuilder().AsAdmin().BuildAndAuthenticate(t, ts)
	target, targetAuth := testutil.NewUserBuilder().BuildAndAuthenticate(t, ts)

	resp := testutil.Do(t, http.MethodGet, ts.APIURL("/admin/users/"+target.ID.String()+"/sessions"), nil, adminAuth.AccessToken)
	testutil.AssertStatusCode(t, resp, http.StatusOK)
	var sessions []struct {
		ID string `json:"id"`
	}
	testutil.AssertJSONResponse(t, resp, &sessions)
	require.Len(t, sessions, 1)
	assert.Equal(t, targetAuth.SessionID, sessions[0].ID)

	resp = testutil.Do(t, http.MethodGet, ts.APIURL("/admin/users/"+uuid.NewString()+"/sessions"), nil, adminAuth.AccessToken)
	testutil.AssertErrorResponse(t, resp, http.StatusNotFound, "NOT_FOUND")

	resp = testutil.Do(t, http.MethodDelete, ts.APIURL("/admin/sessions/"+targetAuth.SessionID), nil, adminAuth.AccessToken)
	testutil.AssertStatusCode(t, resp, http.StatusNoContent)

	// Revocation is idempotent.
	resp = testutil.Do(t, http.MethodDelete, ts.APIURL("/admin/sessions/"+targetAuth.SessionID), nil, adminAuth.AccessToken)
	testutil.AssertStatusCode(t, resp, http.StatusNoContent)

	resp = testutil.Do(t, http.MethodGet, ts.APIURL("/auth/me"), nil, targetAuth.AccessToken)
	testutil.AssertErrorResponse(t, resp, http.StatusUnauthorized, "SESSION_REVOKED")
}

func TestAdminHandler_AuditLogs(t *testing.T) {
	ts := testutil.NewTestServer(t)

	_, adminAuth := testutil.NewUserBuilder().AsAdmin().BuildAndAuthenticate(t, ts)

	resp := testutil.Do(t, http.MethodGet, ts.APIURL("/admin/audit-logs?limit=0"), nil, adminAuth.AccessToken)
	testutil.AssertErrorResponse(t, resp, http.StatusBadRequest, "VALIDATION_FAILED")

	resp = testutil.Do(t, http.MethodGet, ts.APIURL("/admin/audit-logs?limit=10&targetId=someone"), nil, adminAuth.AccessToken)
	testutil.AssertStatusCode(t, resp, http.StatusOK)
	var entries []map[string]interface{}
	testutil.AssertJSONResponse(t, resp, &entries)
	assert.Empty(t, entries)
}
