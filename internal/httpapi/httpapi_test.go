package httpapi

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/iohzrd/echora/internal/auth"
	"github.com/iohzrd/echora/internal/imageproxy"
	"github.com/iohzrd/echora/internal/media"
	"github.com/iohzrd/echora/internal/message"
	"github.com/iohzrd/echora/internal/moderation"
	"github.com/iohzrd/echora/internal/sfu"
	"github.com/iohzrd/echora/internal/state"
	"github.com/iohzrd/echora/internal/store"
)

type noopPreviewer struct{}

func (noopPreviewer) FetchAsync(uuid.UUID, uuid.UUID, string) {}

func alwaysAllow(string) error { return nil }

func startTestServer(t *testing.T) (*store.Store, *auth.Issuer, string) {
	t.Helper()
	st, err := store.New(":memory:")
	if err != nil {
		t.Fatalf("store.New: %v", err)
	}
	t.Cleanup(func() { st.Close() })

	hub := state.New()
	issuer := auth.NewIssuer("test-secret")
	webAuthn, err := auth.NewWebAuthn("localhost", "http://localhost", "Echora Test")
	if err != nil {
		t.Fatalf("auth.NewWebAuthn: %v", err)
	}
	pipeline := message.New(st, noopPreviewer{})
	sfuSvc := sfu.NewService(hub, "")
	moderationSvc := moderation.New(st, hub, sfuSvc)

	objects, err := media.NewLocalDisk(t.TempDir())
	if err != nil {
		t.Fatalf("media.NewLocalDisk: %v", err)
	}
	mediaSvc := media.New(objects, st)
	proxy := imageproxy.NewHandler("test-secret", alwaysAllow)

	e := echo.New()
	New(Deps{
		Store: st, Hub: hub, Issuer: issuer, WebAuthn: webAuthn,
		Pipeline: pipeline, Moderation: moderationSvc, Media: mediaSvc,
		SFU: sfuSvc, ImageProxy: proxy, HMACSecret: "test-secret",
	}).Register(e)

	srv := httptest.NewServer(e)
	t.Cleanup(srv.Close)
	return st, issuer, srv.URL
}

func createTestUser(t *testing.T, st *store.Store, username string, role store.Role) *store.User {
	t.Helper()
	id, _ := uuid.NewV7()
	u := &store.User{
		ID: id, Username: username, Email: username + "@example.com",
		PasswordHash: "x", Role: role, CreatedAt: time.Now().Unix(),
	}
	if err := st.CreateUser(t.Context(), u); err != nil {
		t.Fatalf("CreateUser: %v", err)
	}
	return u
}

func createTestChannel(t *testing.T, st *store.Store) uuid.UUID {
	t.Helper()
	id, _ := uuid.NewV7()
	ch := &store.Channel{ID: id, Name: "general", ChannelType: store.ChannelText, CreatedAt: time.Now().Unix()}
	if err := st.CreateChannel(t.Context(), ch); err != nil {
		t.Fatalf("CreateChannel: %v", err)
	}
	return id
}

func authedRequest(t *testing.T, issuer *auth.Issuer, user *store.User, method, url string, body any) *http.Request {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshal body: %v", err)
		}
		reader = bytes.NewReader(raw)
	} else {
		reader = bytes.NewReader(nil)
	}
	req, err := http.NewRequest(method, url, reader)
	if err != nil {
		t.Fatalf("new request: %v", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if user != nil {
		token, err := issuer.Create(user.ID, user.Username, user.Role)
		if err != nil {
			t.Fatalf("issuer.Create: %v", err)
		}
		req.Header.Set("Authorization", "Bearer "+token)
	}
	return req
}

func decodeJSON(t *testing.T, resp *http.Response, out any) {
	t.Helper()
	defer resp.Body.Close()
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		t.Fatalf("decode response body: %v", err)
	}
}

func TestRegisterThenLoginRoundTrip(t *testing.T) {
	_, _, baseURL := startTestServer(t)
	client := http.DefaultClient

	regBody := registerRequest{Username: "alice", Email: "alice@example.com", Password: "hunter2pass"}
	req := authedRequest(t, nil, nil, http.MethodPost, baseURL+"/api/auth/register", regBody)
	resp, err := client.Do(req)
	if err != nil {
		t.Fatalf("register request: %v", err)
	}
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("register: expected 201, got %d", resp.StatusCode)
	}
	var reg authResponse
	decodeJSON(t, resp, &reg)
	if reg.Token == "" {
		t.Fatal("expected a token from registration")
	}
	if reg.User.Role != store.RoleOwner {
		t.Errorf("first registered user should be owner, got %s", reg.User.Role)
	}

	loginBody := loginRequest{Username: "alice", Password: "hunter2pass"}
	req = authedRequest(t, nil, nil, http.MethodPost, baseURL+"/api/auth/login", loginBody)
	resp, err = client.Do(req)
	if err != nil {
		t.Fatalf("login request: %v", err)
	}
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("login: expected 200, got %d", resp.StatusCode)
	}
	var login authResponse
	decodeJSON(t, resp, &login)
	if login.Token == "" {
		t.Fatal("expected a token from login")
	}
}

func TestLoginRejectsWrongPassword(t *testing.T) {
	st, _, baseURL := startTestServer(t)
	createTestUserWithPassword(t, st, "bob", "correct-password")

	req := authedRequest(t, nil, nil, http.MethodPost, baseURL+"/api/auth/login",
		loginRequest{Username: "bob", Password: "wrong-password"})
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("login request: %v", err)
	}
	if resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("expected 401 for bad password, got %d", resp.StatusCode)
	}
}

func TestRegisterInviteOnlyRejectsUnknownCode(t *testing.T) {
	st, _, baseURL := startTestServer(t)
	createTestUser(t, st, "owner", store.RoleOwner)
	if err := st.SetSetting(t.Context(), "registration_mode", "invite_only", time.Now().Unix()); err != nil {
		t.Fatalf("SetSetting: %v", err)
	}

	req := authedRequest(t, nil, nil, http.MethodPost, baseURL+"/api/auth/register",
		registerRequest{Username: "newbie", Email: "newbie@example.com", Password: "hunter2pass", InviteCode: "does-not-exist"})
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("register request: %v", err)
	}
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("expected 400 for an unknown invite code, got %d", resp.StatusCode)
	}

	if _, err := st.GetUserByUsername(t.Context(), "newbie"); err == nil {
		t.Fatal("user row must not be created when the invite code is invalid")
	}
}

func TestRegisterInviteOnlyRejectsSecondUseOfOneUseCode(t *testing.T) {
	st, _, baseURL := startTestServer(t)
	createTestUser(t, st, "owner", store.RoleOwner)
	if err := st.SetSetting(t.Context(), "registration_mode", "invite_only", time.Now().Unix()); err != nil {
		t.Fatalf("SetSetting: %v", err)
	}

	inviteID, _ := uuid.NewV7()
	maxUses := int64(1)
	inv := &store.Invite{ID: inviteID, Code: "ONEUSE42", MaxUses: &maxUses, CreatedAt: time.Now().Unix()}
	if err := st.CreateInvite(t.Context(), inv); err != nil {
		t.Fatalf("CreateInvite: %v", err)
	}

	req := authedRequest(t, nil, nil, http.MethodPost, baseURL+"/api/auth/register",
		registerRequest{Username: "first", Email: "first@example.com", Password: "hunter2pass", InviteCode: "ONEUSE42"})
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("register request: %v", err)
	}
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("expected 201 for the first use of a fresh invite, got %d", resp.StatusCode)
	}

	req = authedRequest(t, nil, nil, http.MethodPost, baseURL+"/api/auth/register",
		registerRequest{Username: "second", Email: "second@example.com", Password: "hunter2pass", InviteCode: "ONEUSE42"})
	resp, err = http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("register request: %v", err)
	}
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("expected 400 for the second use of a 1-use invite, got %d", resp.StatusCode)
	}
	if _, err := st.GetUserByUsername(t.Context(), "second"); err == nil {
		t.Fatal("the second registration must not leave a user row behind")
	}
}

func createTestUserWithPassword(t *testing.T, st *store.Store, username, password string) *store.User {
	t.Helper()
	hash, err := auth.HashPassword(password)
	if err != nil {
		t.Fatalf("HashPassword: %v", err)
	}
	id, _ := uuid.NewV7()
	u := &store.User{
		ID: id, Username: username, Email: username + "@example.com",
		PasswordHash: hash, Role: store.RoleMember, CreatedAt: time.Now().Unix(),
	}
	if err := st.CreateUser(t.Context(), u); err != nil {
		t.Fatalf("CreateUser: %v", err)
	}
	return u
}

func TestCreateMessageRequiresAuth(t *testing.T) {
	st, _, baseURL := startTestServer(t)
	channelID := createTestChannel(t, st)

	req := authedRequest(t, nil, nil, http.MethodPost,
		baseURL+"/api/channels/"+channelID.String()+"/messages",
		createMessageRequest{Content: "hello"})
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("request: %v", err)
	}
	if resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("expected 401 without a token, got %d", resp.StatusCode)
	}
}

func TestCreateAndListMessages(t *testing.T) {
	st, issuer, baseURL := startTestServer(t)
	channelID := createTestChannel(t, st)
	alice := createTestUser(t, st, "alice", store.RoleMember)

	req := authedRequest(t, issuer, alice, http.MethodPost,
		baseURL+"/api/channels/"+channelID.String()+"/messages",
		createMessageRequest{Content: "hello world"})
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("create message: %v", err)
	}
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("expected 201, got %d", resp.StatusCode)
	}
	var created store.Message
	decodeJSON(t, resp, &created)
	if created.Content != "hello world" {
		t.Errorf("content: got %q", created.Content)
	}

	req = authedRequest(t, issuer, alice, http.MethodGet,
		baseURL+"/api/channels/"+channelID.String()+"/messages", nil)
	resp, err = http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("list messages: %v", err)
	}
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}
	var listed []store.Message
	decodeJSON(t, resp, &listed)
	if len(listed) != 1 {
		t.Fatalf("expected 1 message, got %d", len(listed))
	}
}

func TestDeleteMessageForbiddenForNonAuthorMember(t *testing.T) {
	st, issuer, baseURL := startTestServer(t)
	channelID := createTestChannel(t, st)
	alice := createTestUser(t, st, "alice", store.RoleMember)
	bob := createTestUser(t, st, "bob", store.RoleMember)

	req := authedRequest(t, issuer, alice, http.MethodPost,
		baseURL+"/api/channels/"+channelID.String()+"/messages",
		createMessageRequest{Content: "alice's message"})
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("create message: %v", err)
	}
	var created store.Message
	decodeJSON(t, resp, &created)

	req = authedRequest(t, issuer, bob, http.MethodDelete,
		baseURL+"/api/channels/"+channelID.String()+"/messages/"+created.ID.String(), nil)
	resp, err = http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("delete message: %v", err)
	}
	if resp.StatusCode != http.StatusForbidden {
		t.Fatalf("expected 403 for a non-author, non-moderator deleter, got %d", resp.StatusCode)
	}
}

func TestChangeRoleRequiresAdmin(t *testing.T) {
	st, issuer, baseURL := startTestServer(t)
	member := createTestUser(t, st, "member", store.RoleMember)
	target := createTestUser(t, st, "target", store.RoleMember)

	req := authedRequest(t, issuer, member, http.MethodPut,
		baseURL+"/api/admin/role/"+target.ID.String(),
		changeRoleRequest{Role: store.RoleModerator})
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("change role: %v", err)
	}
	if resp.StatusCode != http.StatusForbidden {
		t.Fatalf("expected 403 for a non-admin caller, got %d", resp.StatusCode)
	}

	admin := createTestUser(t, st, "admin", store.RoleAdmin)
	req = authedRequest(t, issuer, admin, http.MethodPut,
		baseURL+"/api/admin/role/"+target.ID.String(),
		changeRoleRequest{Role: store.RoleModerator})
	resp, err = http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("change role as admin: %v", err)
	}
	if resp.StatusCode != http.StatusNoContent {
		t.Fatalf("expected 204 for an admin caller, got %d", resp.StatusCode)
	}
}

func TestValidateInviteNeverFourOhFoursOnUnknownCode(t *testing.T) {
	_, _, baseURL := startTestServer(t)
	resp, err := http.Get(baseURL + "/api/invites/does-not-exist/validate")
	if err != nil {
		t.Fatalf("validate invite: %v", err)
	}
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200 with {valid:false}, got %d", resp.StatusCode)
	}
	var out map[string]bool
	decodeJSON(t, resp, &out)
	if out["valid"] {
		t.Error("expected valid:false for an unknown invite code")
	}
}

func TestHealthCheck(t *testing.T) {
	_, _, baseURL := startTestServer(t)
	resp, err := http.Get(baseURL + "/health")
	if err != nil {
		t.Fatalf("health request: %v", err)
	}
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}
}
