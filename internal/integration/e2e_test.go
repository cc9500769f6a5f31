package integration

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/super0605/naxum-api/internal/app"
	"github.com/super0605/naxum-api/internal/auth"
	"github.com/super0605/naxum-api/internal/config"
	"github.com/super0605/naxum-api/internal/invites"
	"github.com/super0605/naxum-api/internal/tasks"
	"github.com/super0605/naxum-api/internal/team"
)

type errorResponse struct {
	Message string `json:"message"`
}

type sessionResponse struct {
	User  *auth.User `json:"user"`
	Token string     `json:"token"`
}

type createInviteResponse struct {
	Invitation *invites.Invitation `json:"invitation"`
	InviteURL  string              `json:"inviteUrl"`
}

func testConfig() *config.Config {
	return &config.Config{
		Env:               "dev",
		HTTPAddr:          ":0",
		BaseURL:           "https://naxum.example.com",
		DBDSN:             "unused",
		JWTSecret:         "integration-test-secret",
		LogLevel:          "error",
		LoginRateLimitRPM: 120,
		SessionDays:       7,
		InviteTTLDays:     7,
	}
}

func doJSON(t *testing.T, srvURL, method, path, token string, body any, wantStatus int, out any) {
	t.Helper()

	var reqBody io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(t, err)
		reqBody = bytes.NewReader(raw)
	}

	req, err := http.NewRequest(method, srvURL+path, reqBody)
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	require.Equal(t, wantStatus, resp.StatusCode, "unexpected status for %s %s: %s", method, path, string(raw))

	if out != nil {
		require.NoError(t, json.Unmarshal(raw, out), "bad response body for %s %s: %s", method, path, string(raw))
	}
}

func registerUser(t *testing.T, srvURL, email, phoneNumber, name, role, inviteToken string) *sessionResponse {
	t.Helper()

	var session sessionResponse
	doJSON(t, srvURL, http.MethodPost, "/auth/register", "", map[string]any{
		"email":       email,
		"phone":       phoneNumber,
		"password":    "password123",
		"name":        name,
		"role":        role,
		"inviteToken": inviteToken,
	}, http.StatusCreated, &session)

	require.NotNil(t, session.User)
	require.NotEmpty(t, session.Token)
	return &session
}

func TestE2E_RegisterInviteJoinTaskStats(t *testing.T) {
	pool, cleanup := newTestDB(t)
	t.Cleanup(cleanup)

	srv := httptest.NewServer(app.NewRouter(pool, testConfig()))
	t.Cleanup(srv.Close)

	leader := registerUser(t, srv.URL, "leader@example.com", "+1 (303) 555-0199", "Dana Leader", "LEADER", "")
	require.Equal(t, auth.RoleLeader, leader.User.Role)
	require.Nil(t, leader.User.InvitedByUserID)

	// Duplicate email is rejected with the flat error shape.
	var dupErr errorResponse
	doJSON(t, srv.URL, http.MethodPost, "/auth/register", "", map[string]any{
		"email":    "leader@example.com",
		"phone":    "+1 555 000 1111",
		"password": "password123",
		"name":     "Imposter",
		"role":     "LEADER",
	}, http.StatusConflict, &dupErr)
	require.NotEmpty(t, dupErr.Message)

	// Leader invites a contact. The invite URL embeds the token the
	// invitee redeems at registration.
	var created createInviteResponse
	doJSON(t, srv.URL, http.MethodPost, "/invitations", leader.Token, map[string]any{
		"inviteePhone": "+1-202-555-0101",
		"inviteeName":  "Morgan",
	}, http.StatusCreated, &created)
	require.Equal(t, invites.StatusPending, created.Invitation.Status)
	require.True(t, strings.HasPrefix(created.Invitation.Token, "nxi_"))
	require.Contains(t, created.InviteURL, created.Invitation.Token)

	// Re-inviting the same phone while a pending invitation exists
	// returns the existing row instead of a duplicate.
	var again createInviteResponse
	doJSON(t, srv.URL, http.MethodPost, "/invitations", leader.Token, map[string]any{
		"inviteePhone": "+1 (202) 555-0101",
	}, http.StatusOK, &again)
	require.Equal(t, created.Invitation.ID, again.Invitation.ID)

	// Contact sync sees the pending invitation.
	var statuses struct {
		Statuses []invites.ContactStatus `json:"statuses"`
	}
	doJSON(t, srv.URL, http.MethodPost, "/invitations/check-status", leader.Token, map[string]any{
		"phoneNumbers": []string{"202-555-0101", "+1 999 555 0000"},
	}, http.StatusOK, &statuses)
	require.Len(t, statuses.Statuses, 2)
	require.Equal(t, string(invites.StatusPending), statuses.Statuses[0].Status)
	require.False(t, statuses.Statuses[0].CanInvite)
	require.Equal(t, invites.ContactNotInvited, statuses.Statuses[1].Status)
	require.True(t, statuses.Statuses[1].CanInvite)

	// The invitee registers with a differently formatted phone; suffix
	// matching redeems the token and links them under the leader.
	member := registerUser(t, srv.URL, "morgan@example.com", "2025550101", "Morgan Member", "MEMBER", created.Invitation.Token)
	require.NotNil(t, member.User.InvitedByUserID)
	require.Equal(t, leader.User.ID, *member.User.InvitedByUserID)

	// The redeemed invitation shows as accepted in the leader's list.
	var sent struct {
		Invitations []invites.Invitation `json:"invitations"`
	}
	doJSON(t, srv.URL, http.MethodGet, "/invitations", leader.Token, nil, http.StatusOK, &sent)
	require.Len(t, sent.Invitations, 1)
	require.Equal(t, invites.StatusAccepted, sent.Invitations[0].Status)

	// Contact sync now reports the phone as a member.
	doJSON(t, srv.URL, http.MethodPost, "/invitations/check-status", leader.Token, map[string]any{
		"phoneNumbers": []string{"+1-202-555-0101"},
	}, http.StatusOK, &statuses)
	require.Len(t, statuses.Statuses, 1)
	require.Equal(t, invites.ContactMember, statuses.Statuses[0].Status)
	require.False(t, statuses.Statuses[0].CanInvite)

	// Hierarchy: leader root with the new member as its only child.
	var tree struct {
		Tree *team.TeamNode `json:"tree"`
	}
	doJSON(t, srv.URL, http.MethodGet, "/team/hierarchy", leader.Token, nil, http.StatusOK, &tree)
	require.Equal(t, leader.User.ID, tree.Tree.ID)
	require.Len(t, tree.Tree.Children, 1)
	require.Equal(t, member.User.ID, tree.Tree.Children[0].ID)

	var members struct {
		Members []team.TeamMember `json:"members"`
	}
	doJSON(t, srv.URL, http.MethodGet, "/team/members", leader.Token, nil, http.StatusOK, &members)
	require.Len(t, members.Members, 1)
	require.Equal(t, member.User.ID, members.Members[0].ID)

	// Stats before any tasks exist: rate is zero, not a division error.
	var stats struct {
		Stats *team.TeamStats `json:"stats"`
	}
	doJSON(t, srv.URL, http.MethodGet, "/team/stats", leader.Token, nil, http.StatusOK, &stats)
	require.Equal(t, 1, stats.Stats.TotalTeamSize)
	require.Equal(t, 0, stats.Stats.ActiveMembers)
	require.Equal(t, 0, stats.Stats.CompletionRate)

	// Leader assigns a task to the member.
	var taskResp struct {
		Task *tasks.Task `json:"task"`
	}
	doJSON(t, srv.URL, http.MethodPost, "/tasks", leader.Token, map[string]any{
		"assignedToUserId": member.User.ID,
		"title":            "Call three prospects",
	}, http.StatusCreated, &taskResp)
	require.Equal(t, tasks.StatusOpen, taskResp.Task.Status)
	require.Equal(t, member.User.ID, taskResp.Task.AssignedToUserID)
	require.NotNil(t, taskResp.Task.AssignedTo)
	require.Equal(t, "Morgan Member", taskResp.Task.AssignedTo.Name)

	// Same title for the same assignee is a conflict.
	var taskDup errorResponse
	doJSON(t, srv.URL, http.MethodPost, "/tasks", leader.Token, map[string]any{
		"assignedToUserId": member.User.ID,
		"title":            "Call three prospects",
	}, http.StatusConflict, &taskDup)
	require.NotEmpty(t, taskDup.Message)

	// Member sees their own task and completes it.
	var list struct {
		Tasks []tasks.Task `json:"tasks"`
	}
	doJSON(t, srv.URL, http.MethodGet, "/tasks", member.Token, nil, http.StatusOK, &list)
	require.Len(t, list.Tasks, 1)

	doJSON(t, srv.URL, http.MethodPatch, "/tasks/"+taskResp.Task.ID.String()+"/complete", member.Token, nil, http.StatusOK, &taskResp)
	require.Equal(t, tasks.StatusCompleted, taskResp.Task.Status)
	require.NotNil(t, taskResp.Task.CompletedAt)

	// A second completion is rejected.
	var completeErr errorResponse
	doJSON(t, srv.URL, http.MethodPatch, "/tasks/"+taskResp.Task.ID.String()+"/complete", member.Token, nil, http.StatusConflict, &completeErr)
	require.NotEmpty(t, completeErr.Message)

	// Stats reflect the completion.
	doJSON(t, srv.URL, http.MethodGet, "/team/stats", leader.Token, nil, http.StatusOK, &stats)
	require.Equal(t, 1, stats.Stats.TotalTeamSize)
	require.Equal(t, 1, stats.Stats.ActiveMembers)
	require.Equal(t, 100, stats.Stats.CompletionRate)

	var byMember struct {
		Data []team.MemberCompletion `json:"data"`
	}
	doJSON(t, srv.URL, http.MethodGet, "/tasks/by-member", leader.Token, nil, http.StatusOK, &byMember)
	require.Len(t, byMember.Data, 1)
	require.Equal(t, member.User.ID, byMember.Data[0].MemberID)
	require.Equal(t, 1, byMember.Data[0].Total)
	require.Equal(t, 1, byMember.Data[0].Completed)
	require.Equal(t, 100, byMember.Data[0].CompletionRate)
}

func TestE2E_InvitationRespondLifecycle(t *testing.T) {
	pool, cleanup := newTestDB(t)
	t.Cleanup(cleanup)

	srv := httptest.NewServer(app.NewRouter(pool, testConfig()))
	t.Cleanup(srv.Close)

	leader := registerUser(t, srv.URL, "lead@example.com", "+1 415 555 0100", "Lead", "LEADER", "")

	var created createInviteResponse
	doJSON(t, srv.URL, http.MethodPost, "/invitations", leader.Token, map[string]any{
		"inviteePhone": "+1 415 555 0177",
	}, http.StatusCreated, &created)

	// The invitee registered without redeeming the token, so the
	// invitation stays pending and shows up in their inbox.
	invitee := registerUser(t, srv.URL, "casey@example.com", "4155550177", "Casey", "MEMBER", "")
	require.Nil(t, invitee.User.InvitedByUserID)

	var received struct {
		Invitations []invites.Invitation `json:"invitations"`
	}
	doJSON(t, srv.URL, http.MethodGet, "/invitations/my", invitee.Token, nil, http.StatusOK, &received)
	require.Len(t, received.Invitations, 1)
	require.Equal(t, created.Invitation.ID, received.Invitations[0].ID)

	// A third party cannot respond to someone else's invitation.
	outsider := registerUser(t, srv.URL, "rando@example.com", "+1 646 555 0123", "Rando", "MEMBER", "")
	var forbiddenErr errorResponse
	doJSON(t, srv.URL, http.MethodPost, "/invitations/"+created.Invitation.ID.String()+"/decline", outsider.Token, nil, http.StatusForbidden, &forbiddenErr)
	require.NotEmpty(t, forbiddenErr.Message)

	// Declining in-app links nothing but records the terminal state.
	var declined struct {
		Invitation *invites.Invitation `json:"invitation"`
	}
	doJSON(t, srv.URL, http.MethodPost, "/invitations/"+created.Invitation.ID.String()+"/decline", invitee.Token, nil, http.StatusOK, &declined)
	require.Equal(t, invites.StatusDeclined, declined.Invitation.Status)

	// Terminal states are immutable: a late accept is a conflict.
	var conflictErr errorResponse
	doJSON(t, srv.URL, http.MethodPost, "/invitations/"+created.Invitation.ID.String()+"/accept", invitee.Token, nil, http.StatusConflict, &conflictErr)
	require.NotEmpty(t, conflictErr.Message)

	// Unknown id maps to not found.
	var notFoundErr errorResponse
	doJSON(t, srv.URL, http.MethodPost, "/invitations/"+uuid.NewString()+"/accept", invitee.Token, nil, http.StatusNotFound, &notFoundErr)
	require.NotEmpty(t, notFoundErr.Message)

	// The invitee registered, so their phone now belongs to a member
	// and cannot be re-invited even after the decline.
	var alreadyMember errorResponse
	doJSON(t, srv.URL, http.MethodPost, "/invitations", leader.Token, map[string]any{
		"inviteePhone": "+1 415 555 0177",
	}, http.StatusConflict, &alreadyMember)
	require.NotEmpty(t, alreadyMember.Message)
}

func TestE2E_AuthAndLoginFlows(t *testing.T) {
	pool, cleanup := newTestDB(t)
	t.Cleanup(cleanup)

	srv := httptest.NewServer(app.NewRouter(pool, testConfig()))
	t.Cleanup(srv.Close)

	registered := registerUser(t, srv.URL, "pat@example.com", "+1 212 555 0110", "Pat", "LEADER", "")

	var session sessionResponse
	doJSON(t, srv.URL, http.MethodPost, "/auth/login", "", map[string]any{
		"email":    "pat@example.com",
		"password": "password123",
	}, http.StatusOK, &session)
	require.Equal(t, registered.User.ID, session.User.ID)
	require.NotEmpty(t, session.Token)

	// Wrong password and unknown email produce the same generic error.
	var badPass, badEmail errorResponse
	doJSON(t, srv.URL, http.MethodPost, "/auth/login", "", map[string]any{
		"email":    "pat@example.com",
		"password": "wrong-password",
	}, http.StatusUnauthorized, &badPass)
	doJSON(t, srv.URL, http.MethodPost, "/auth/login", "", map[string]any{
		"email":    "nobody@example.com",
		"password": "password123",
	}, http.StatusUnauthorized, &badEmail)
	require.Equal(t, badPass.Message, badEmail.Message)

	var me struct {
		User *auth.User `json:"user"`
	}
	doJSON(t, srv.URL, http.MethodGet, "/auth/me", session.Token, nil, http.StatusOK, &me)
	require.Equal(t, registered.User.ID, me.User.ID)

	// Protected routes reject missing and malformed tokens.
	var unauth errorResponse
	doJSON(t, srv.URL, http.MethodGet, "/auth/me", "", nil, http.StatusUnauthorized, &unauth)
	doJSON(t, srv.URL, http.MethodGet, "/auth/me", "not-a-jwt", nil, http.StatusUnauthorized, &unauth)

	// Members cannot send invitations.
	member := registerUser(t, srv.URL, "mem@example.com", "+1 718 555 0155", "Mem", "MEMBER", "")
	var forbidden errorResponse
	doJSON(t, srv.URL, http.MethodPost, "/invitations", member.Token, map[string]any{
		"inviteePhone": "+1 718 555 0166",
	}, http.StatusForbidden, &forbidden)
	require.NotEmpty(t, forbidden.Message)
}
