package httpserver_test

import (
	"bytes"
	"encoding/base64"
	"io"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/goccy/go-json"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aaronBIOO/QuickChat/internal/config"
	"github.com/aaronBIOO/QuickChat/internal/delivery"
	"github.com/aaronBIOO/QuickChat/internal/domain"
	"github.com/aaronBIOO/QuickChat/internal/httpserver"
	"github.com/aaronBIOO/QuickChat/internal/identity"
	"github.com/aaronBIOO/QuickChat/internal/media"
	"github.com/aaronBIOO/QuickChat/internal/presence"
	"github.com/aaronBIOO/QuickChat/internal/security"
	"github.com/aaronBIOO/QuickChat/internal/service"
	"github.com/aaronBIOO/QuickChat/internal/store/sqlite"
)

const pngBase64 = "iVBORw0KGgoAAAANSUhEUgAAAAEAAAABCAYAAAAfFcSJAAAADUlEQVR42mNkYPhfDwAChwGA60e6kgAAAABJRU5ErkJggg=="

type testServer struct {
	srv      *httptest.Server
	webhooks *identity.WebhookVerifier
	users    *sqlite.UserRepo
	registry *presence.Registry
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	dir := t.TempDir()

	db, err := sqlite.Open(filepath.Join(dir, "chat.db"))
	require.NoError(t, err)
	require.NoError(t, sqlite.Migrate(db))
	t.Cleanup(func() { db.Close() })

	cfg := &config.Config{
		AppName:      "QuickChat API",
		CORSOrigins:  []string{"http://localhost:5173"},
		MaxBodyBytes: 1 << 20,
		Auth: config.AuthConfig{
			Mode:       config.AuthModeJWT,
			JWTSecret:  "test-secret",
			TokenTTL:   time.Hour,
			CookieName: "token",
		},
	}

	userRepo := sqlite.NewUserRepo(db)
	msgRepo := sqlite.NewMessageRepo(db)
	tokens := security.NewTokenService(cfg.Auth.JWTSecret, cfg.Auth.TokenTTL)
	enc, err := security.NewEncryptor([]byte("test-encryption-key"), nil)
	require.NoError(t, err)

	srv := httptest.NewUnstartedServer(nil)
	baseURL := "http://" + srv.Listener.Addr().String()
	files := media.NewLocal(filepath.Join(dir, "uploads"), baseURL, media.DefaultMaxBytes)

	registry := presence.NewRegistry(nil)
	dispatcher := delivery.NewDispatcher(registry)
	userSvc := service.NewUserService(userRepo, msgRepo, registry, files, false)
	msgSvc := service.NewMessageService(msgRepo, userRepo, enc, files, dispatcher)
	authSvc := service.NewAuthService(userRepo, tokens, security.NewPasswordHasher(4))

	webhooks, err := identity.NewWebhookVerifier("whsec_" + base64.StdEncoding.EncodeToString([]byte("webhook-signing-key")))
	require.NoError(t, err)

	srv.Config.Handler = httpserver.NewRouter(httpserver.Deps{
		Config:   cfg,
		Verifier: identity.NewJWTVerifier(tokens, cfg.Auth.CookieName),
		Auth:     authSvc,
		Users:    userSvc,
		Messages: msgSvc,
		Webhooks: webhooks,
		Files:    files,
	})
	srv.Start()
	t.Cleanup(srv.Close)

	return &testServer{srv: srv, webhooks: webhooks, users: userRepo, registry: registry}
}

type apiResponse struct {
	Success        bool              `json:"success"`
	Message        json.RawMessage   `json:"message"`
	Token          string            `json:"token"`
	User           *domain.User      `json:"user"`
	Users          []peer            `json:"users"`
	UnseenMessages map[string]int    `json:"unseenMessages"`
	Messages       []*domain.Message `json:"messages"`
	NewMessage     *domain.Message   `json:"newMessage"`
}

type peer struct {
	ID     string `json:"id"`
	Online bool   `json:"online"`
}

func (ts *testServer) do(t *testing.T, method, path, token string, body any) (int, apiResponse, *http.Response) {
	t.Helper()
	var rdr io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		require.NoError(t, err)
		rdr = bytes.NewReader(b)
	}
	req, err := http.NewRequest(method, ts.srv.URL+path, rdr)
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	resp, err := ts.srv.Client().Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	var out apiResponse
	raw, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	if strings.HasPrefix(resp.Header.Get("Content-Type"), "application/json") {
		require.NoError(t, json.Unmarshal(raw, &out), string(raw))
	}
	return resp.StatusCode, out, resp
}

func (ts *testServer) signup(t *testing.T, email, name string) (string, *domain.User) {
	t.Helper()
	status, out, _ := ts.do(t, http.MethodPost, "/api/auth/signup", "", map[string]string{
		"email": email, "fullName": name, "password": "secret123", "bio": "hello",
	})
	require.Equal(t, http.StatusCreated, status)
	require.True(t, out.Success)
	return out.Token, out.User
}

func TestStatusAndHealth(t *testing.T) {
	ts := newTestServer(t)

	resp, err := ts.srv.Client().Get(ts.srv.URL + "/api/status")
	require.NoError(t, err)
	b, _ := io.ReadAll(resp.Body)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "Server is live", string(b))

	resp, err = ts.srv.Client().Get(ts.srv.URL + "/health")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	resp, err = ts.srv.Client().Get(ts.srv.URL + "/metrics")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestAuthFlow(t *testing.T) {
	ts := newTestServer(t)

	status, out, resp := ts.do(t, http.MethodPost, "/api/auth/signup", "", map[string]string{
		"email": "ada@example.com", "fullName": "Ada", "password": "secret123", "bio": "math",
	})
	require.Equal(t, http.StatusCreated, status)
	assert.NotEmpty(t, out.Token)
	assert.Equal(t, "ada@example.com", out.User.Email)

	var cookie *http.Cookie
	for _, c := range resp.Cookies() {
		if c.Name == "token" {
			cookie = c
		}
	}
	require.NotNil(t, cookie)
	assert.True(t, cookie.HttpOnly)

	// cookie alone authenticates
	req, _ := http.NewRequest(http.MethodGet, ts.srv.URL+"/api/auth/check", nil)
	req.AddCookie(&http.Cookie{Name: "token", Value: cookie.Value})
	r, err := ts.srv.Client().Do(req)
	require.NoError(t, err)
	r.Body.Close()
	assert.Equal(t, http.StatusOK, r.StatusCode)

	status, _, _ = ts.do(t, http.MethodPost, "/api/auth/signup", "", map[string]string{
		"email": "ada@example.com", "fullName": "Ada", "password": "secret123", "bio": "math",
	})
	assert.Equal(t, http.StatusConflict, status)

	status, out, _ = ts.do(t, http.MethodPost, "/api/auth/login", "", map[string]string{"email": "ada@example.com", "password": "secret123"})
	assert.Equal(t, http.StatusOK, status)
	assert.NotEmpty(t, out.Token)

	status, out, _ = ts.do(t, http.MethodPost, "/api/auth/login", "", map[string]string{"email": "ada@example.com", "password": "nope-nope"})
	assert.Equal(t, http.StatusUnauthorized, status)
	assert.False(t, out.Success)

	status, _, _ = ts.do(t, http.MethodGet, "/api/auth/check", "", nil)
	assert.Equal(t, http.StatusUnauthorized, status)

	status, _, _ = ts.do(t, http.MethodGet, "/api/auth/check", "garbage", nil)
	assert.Equal(t, http.StatusUnauthorized, status)

	status, _, resp = ts.do(t, http.MethodPost, "/api/auth/logout", "", nil)
	assert.Equal(t, http.StatusOK, status)
	for _, c := range resp.Cookies() {
		if c.Name == "token" {
			assert.Empty(t, c.Value)
		}
	}
}

func TestMessagingFlow(t *testing.T) {
	ts := newTestServer(t)
	aliceTok, alice := ts.signup(t, "alice@example.com", "Alice")
	bobTok, bob := ts.signup(t, "bob@example.com", "Bob")

	status, out, _ := ts.do(t, http.MethodPost, "/api/messages/send/"+bob.ID, aliceTok, map[string]string{"text": "hi bob"})
	require.Equal(t, http.StatusCreated, status)
	require.NotNil(t, out.NewMessage)
	assert.Equal(t, "hi bob", out.NewMessage.Text)
	assert.Equal(t, alice.ID, out.NewMessage.SenderID)
	first := out.NewMessage

	status, out, _ = ts.do(t, http.MethodPost, "/api/messages/send/"+bob.ID, aliceTok, map[string]string{"image": "data:image/png;base64," + pngBase64})
	require.Equal(t, http.StatusCreated, status)
	assert.Empty(t, out.NewMessage.Text)
	require.NotEmpty(t, out.NewMessage.Image)

	img, err := ts.srv.Client().Get(out.NewMessage.Image)
	require.NoError(t, err)
	img.Body.Close()
	assert.Equal(t, http.StatusOK, img.StatusCode)
	assert.Equal(t, "image/png", img.Header.Get("Content-Type"))

	// bob sees two unseen from alice
	status, out, _ = ts.do(t, http.MethodGet, "/api/messages/users", bobTok, nil)
	require.Equal(t, http.StatusOK, status)
	require.Len(t, out.Users, 1)
	assert.Equal(t, alice.ID, out.Users[0].ID)
	assert.False(t, out.Users[0].Online)
	assert.Equal(t, 2, out.UnseenMessages[alice.ID])

	// sender cannot mark its own message
	status, _, _ = ts.do(t, http.MethodPut, "/api/messages/mark/"+first.ID, aliceTok, nil)
	assert.Equal(t, http.StatusForbidden, status)

	status, out, _ = ts.do(t, http.MethodPut, "/api/messages/mark/"+first.ID, bobTok, nil)
	require.Equal(t, http.StatusOK, status)
	var marked domain.Message
	require.NoError(t, json.Unmarshal(out.Message, &marked))
	assert.True(t, marked.Seen)

	status, _, _ = ts.do(t, http.MethodPut, "/api/messages/mark/"+first.ID, bobTok, nil)
	assert.Equal(t, http.StatusOK, status, "marking again is a no-op")

	status, out, _ = ts.do(t, http.MethodGet, "/api/messages/users", bobTok, nil)
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, 1, out.UnseenMessages[alice.ID])

	// opening the conversation clears the rest
	status, out, _ = ts.do(t, http.MethodGet, "/api/messages/"+alice.ID, bobTok, nil)
	require.Equal(t, http.StatusOK, status)
	require.Len(t, out.Messages, 2)
	assert.Equal(t, "hi bob", out.Messages[0].Text)
	assert.True(t, out.Messages[1].Seen)

	status, out, _ = ts.do(t, http.MethodGet, "/api/messages/users", bobTok, nil)
	require.Equal(t, http.StatusOK, status)
	assert.Zero(t, out.UnseenMessages[alice.ID])

	status, out, _ = ts.do(t, http.MethodGet, "/api/messages/"+bob.ID, aliceTok, nil)
	require.Equal(t, http.StatusOK, status)
	assert.Len(t, out.Messages, 2, "history is symmetric")
}

func TestMessagingErrors(t *testing.T) {
	ts := newTestServer(t)
	aliceTok, _ := ts.signup(t, "alice@example.com", "Alice")
	_, bob := ts.signup(t, "bob@example.com", "Bob")

	status, out, _ := ts.do(t, http.MethodPost, "/api/messages/send/"+bob.ID, aliceTok, map[string]string{})
	assert.Equal(t, http.StatusBadRequest, status)
	assert.False(t, out.Success)

	status, _, _ = ts.do(t, http.MethodPost, "/api/messages/send/nobody", aliceTok, map[string]string{"text": "hi"})
	assert.Equal(t, http.StatusNotFound, status)

	status, _, _ = ts.do(t, http.MethodPost, "/api/messages/send/"+bob.ID, aliceTok, map[string]string{"image": "not-an-image"})
	assert.Equal(t, http.StatusBadRequest, status)

	status, _, _ = ts.do(t, http.MethodGet, "/api/messages/nobody", aliceTok, nil)
	assert.Equal(t, http.StatusNotFound, status)

	status, _, _ = ts.do(t, http.MethodPut, "/api/messages/mark/missing", aliceTok, nil)
	assert.Equal(t, http.StatusNotFound, status)

	status, _, _ = ts.do(t, http.MethodGet, "/api/messages/users", "", nil)
	assert.Equal(t, http.StatusUnauthorized, status)
}

func TestUpdateProfile(t *testing.T) {
	ts := newTestServer(t)
	tok, _ := ts.signup(t, "ada@example.com", "Ada")

	status, out, _ := ts.do(t, http.MethodPut, "/api/auth/update-profile", tok, map[string]string{
		"fullName":   "Ada Lovelace",
		"profilePic": pngBase64,
	})
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, "Ada Lovelace", out.User.FullName)
	assert.Equal(t, "hello", out.User.Bio)
	assert.Contains(t, out.User.ProfilePic, media.PathPrefix)

	status, _, _ = ts.do(t, http.MethodPut, "/api/auth/update-profile", tok, map[string]string{"profilePic": "bm90IGFuIGltYWdl"})
	assert.Equal(t, http.StatusBadRequest, status)

	status, out, _ = ts.do(t, http.MethodGet, "/api/auth/check", tok, nil)
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, "Ada Lovelace", out.User.FullName, "failed upload left the profile untouched")
}

func TestIdentityWebhook(t *testing.T) {
	ts := newTestServer(t)

	body := []byte(`{"type":"user.created","data":{"id":"user_2x","email_addresses":[{"email_address":"grace@example.com"}],"first_name":"Grace","last_name":"Hopper","image_url":"https://img.example/g.png"}}`)
	post := func(headers map[string]string) int {
		req, err := http.NewRequest(http.MethodPost, ts.srv.URL+"/api/webhooks/identity", bytes.NewReader(body))
		require.NoError(t, err)
		for k, v := range headers {
			req.Header.Set(k, v)
		}
		resp, err := ts.srv.Client().Do(req)
		require.NoError(t, err)
		resp.Body.Close()
		return resp.StatusCode
	}

	ts1, sig, err := ts.webhooks.Sign("msg_1", time.Now(), body)
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, post(map[string]string{
		identity.HeaderWebhookID:        "msg_1",
		identity.HeaderWebhookTimestamp: ts1,
		identity.HeaderWebhookSignature: sig,
	}))

	u, err := ts.users.GetByID(t.Context(), "user_2x")
	require.NoError(t, err)
	assert.Equal(t, "Grace Hopper", u.FullName)
	assert.Equal(t, "grace@example.com", u.Email)
	assert.Equal(t, identity.DefaultBio, u.Bio)

	assert.Equal(t, http.StatusBadRequest, post(map[string]string{
		identity.HeaderWebhookID:        "msg_1",
		identity.HeaderWebhookTimestamp: ts1,
		identity.HeaderWebhookSignature: "v1,AAAA",
	}))
	assert.Equal(t, http.StatusBadRequest, post(nil))
}

func TestUserDirectory(t *testing.T) {
	ts := newTestServer(t)
	aliceTok, _ := ts.signup(t, "alice@example.com", "Alice")
	_, bob := ts.signup(t, "bob@example.com", "Bob")

	req, err := http.NewRequest(http.MethodGet, ts.srv.URL+"/api/users/"+bob.ID, nil)
	require.NoError(t, err)
	req.Header.Set("Authorization", "Bearer "+aliceTok)
	resp, err := ts.srv.Client().Do(req)
	require.NoError(t, err)
	var got struct {
		Success bool `json:"success"`
		User    peer `json:"user"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&got))
	resp.Body.Close()
	assert.True(t, got.Success)
	assert.Equal(t, bob.ID, got.User.ID)
	assert.False(t, got.User.Online)

	status, _, _ := ts.do(t, http.MethodGet, "/api/users/nobody", aliceTok, nil)
	assert.Equal(t, http.StatusNotFound, status)

	req, err = http.NewRequest(http.MethodGet, ts.srv.URL+"/api/users/online", nil)
	require.NoError(t, err)
	req.Header.Set("Authorization", "Bearer "+aliceTok)
	resp, err = ts.srv.Client().Do(req)
	require.NoError(t, err)
	var online struct {
		Success bool     `json:"success"`
		Users   []string `json:"users"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&online))
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.True(t, online.Success)
	assert.Empty(t, online.Users)

	status, _, _ = ts.do(t, http.MethodGet, "/api/users/online", "", nil)
	assert.Equal(t, http.StatusUnauthorized, status)
}
