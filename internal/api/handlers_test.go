package api

import (
	"bytes"
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/legacyosint/osint-chatbot/internal/auth"
	"github.com/legacyosint/osint-chatbot/internal/config"
	"github.com/legacyosint/osint-chatbot/internal/service/assistant"
	"github.com/legacyosint/osint-chatbot/internal/service/chat"
	"github.com/legacyosint/osint-chatbot/internal/storage"
)

// mockTurner answers every turn with a canned reply and records calls.
type mockTurner struct {
	result *chat.TurnResult
	err    error
	calls  int
}

func (m *mockTurner) Respond(_ context.Context, userID, sessionID int64, text string, image []byte) (*chat.TurnResult, error) {
	m.calls++
	if m.err != nil {
		return nil, m.err
	}
	if m.result != nil {
		return m.result, nil
	}
	return &chat.TurnResult{Reply: "mock reply", Persisted: true}, nil
}

func newTestServer(t *testing.T) (*gin.Engine, *sql.DB, *mockTurner) {
	t.Helper()
	gin.SetMode(gin.TestMode)

	cfg := &config.Config{
		Databases: map[string]config.DatabaseConfig{
			"sqlite3": {DSN: ":memory:"},
		},
	}
	db, err := storage.Open("sqlite3", cfg)
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	if err := storage.Migrate(db, "sqlite3"); err != nil {
		t.Fatalf("migrate db: %v", err)
	}
	asst := assistant.NewService(db)
	authSvc := auth.NewService(db, nil, time.Hour)
	turner := &mockTurner{}
	handler := NewHandler(asst, authSvc, turner, nil)

	router := gin.New()
	handler.RegisterRoutes(router)
	return router, db, turner
}

func doJSONRequest(t *testing.T, router *gin.Engine, method, path string, body interface{}, headers map[string]string) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("encode body: %v", err)
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	return rec
}

func decodeJSON(t *testing.T, data []byte, v interface{}) {
	t.Helper()
	if err := json.Unmarshal(data, v); err != nil {
		t.Fatalf("decode json: %v", err)
	}
}

func assertStatus(t *testing.T, rec *httptest.ResponseRecorder, want int) {
	t.Helper()
	if rec.Code != want {
		t.Fatalf("unexpected status %d, body: %s", rec.Code, rec.Body.String())
	}
}

func registerAndLogin(t *testing.T, router *gin.Engine) (int64, map[string]string) {
	t.Helper()
	username := fmt.Sprintf("tester_%d", time.Now().UnixNano())
	password := "pass123"
	regResp := doJSONRequest(t, router, http.MethodPost, "/api/users/register", map[string]string{
		"username": username,
		"password": password,
	}, nil)
	assertStatus(t, regResp, http.StatusCreated)
	var regBody struct {
		ID int64 `json:"id"`
	}
	decodeJSON(t, regResp.Body.Bytes(), &regBody)

	loginResp := doJSONRequest(t, router, http.MethodPost, "/api/users/login", map[string]string{
		"username": username,
		"password": password,
	}, nil)
	assertStatus(t, loginResp, http.StatusOK)
	var loginBody struct {
		AuthToken string `json:"auth_token"`
	}
	decodeJSON(t, loginResp.Body.Bytes(), &loginBody)
	if loginBody.AuthToken == "" {
		t.Fatalf("expected auth token after login")
	}
	return regBody.ID, map[string]string{"Authorization": "Bearer " + loginBody.AuthToken}
}

func createSessionViaAPI(t *testing.T, router *gin.Engine, userID int64, headers map[string]string) int64 {
	t.Helper()
	resp := doJSONRequest(t, router, http.MethodPost,
		fmt.Sprintf("/api/users/%d/sessions", userID),
		map[string]string{}, headers)
	assertStatus(t, resp, http.StatusCreated)
	var body struct {
		Session struct {
			ID int64 `json:"id"`
		} `json:"session"`
	}
	decodeJSON(t, resp.Body.Bytes(), &body)
	if body.Session.ID <= 0 {
		t.Fatalf("expected positive session id")
	}
	return body.Session.ID
}

func postChat(t *testing.T, router *gin.Engine, userID, sessionID int64, message string, headers map[string]string) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	writer := multipart.NewWriter(&buf)
	if err := writer.WriteField("session_id", fmt.Sprintf("%d", sessionID)); err != nil {
		t.Fatalf("write session_id: %v", err)
	}
	if err := writer.WriteField("message", message); err != nil {
		t.Fatalf("write message: %v", err)
	}
	if err := writer.Close(); err != nil {
		t.Fatalf("close multipart writer: %v", err)
	}
	req := httptest.NewRequest(http.MethodPost, fmt.Sprintf("/api/users/%d/chat", userID), &buf)
	req.Header.Set("Content-Type", writer.FormDataContentType())
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	return rec
}

func TestSessionLifecycle(t *testing.T) {
	router, db, _ := newTestServer(t)
	defer db.Close()

	userID, headers := registerAndLogin(t, router)
	sessionID := createSessionViaAPI(t, router, userID, headers)

	listResp := doJSONRequest(t, router, http.MethodGet,
		fmt.Sprintf("/api/users/%d/sessions", userID), nil, headers)
	assertStatus(t, listResp, http.StatusOK)
	var listBody struct {
		Sessions []struct {
			ID    int64  `json:"id"`
			Title string `json:"title"`
		} `json:"sessions"`
	}
	decodeJSON(t, listResp.Body.Bytes(), &listBody)
	if len(listBody.Sessions) != 1 || listBody.Sessions[0].ID != sessionID {
		t.Fatalf("unexpected session list: %+v", listBody.Sessions)
	}
	if listBody.Sessions[0].Title != assistant.DefaultSessionTitle {
		t.Fatalf("unexpected default title %q", listBody.Sessions[0].Title)
	}

	renameResp := doJSONRequest(t, router, http.MethodPut,
		fmt.Sprintf("/api/users/%d/sessions/%d", userID, sessionID),
		map[string]string{"title": "Harbor Traffic Review"}, headers)
	assertStatus(t, renameResp, http.StatusNoContent)

	deleteResp := doJSONRequest(t, router, http.MethodDelete,
		fmt.Sprintf("/api/users/%d/sessions/%d", userID, sessionID), nil, headers)
	assertStatus(t, deleteResp, http.StatusNoContent)

	historyResp := doJSONRequest(t, router, http.MethodGet,
		fmt.Sprintf("/api/users/%d/sessions/%d/history", userID, sessionID), nil, headers)
	assertStatus(t, historyResp, http.StatusNotFound)
}

func TestChatTurnReturnsReplyAndTitle(t *testing.T) {
	router, db, turner := newTestServer(t)
	defer db.Close()
	turner.result = &chat.TurnResult{Reply: "analysis complete", Title: "Subdomain Enumeration Strategy Review", Persisted: true}

	userID, headers := registerAndLogin(t, router)
	sessionID := createSessionViaAPI(t, router, userID, headers)

	resp := postChat(t, router, userID, sessionID, "enumerate subdomains", headers)
	assertStatus(t, resp, http.StatusOK)
	var body struct {
		Reply string `json:"reply"`
		Title string `json:"title"`
	}
	decodeJSON(t, resp.Body.Bytes(), &body)
	if body.Reply != "analysis complete" {
		t.Fatalf("unexpected reply %q", body.Reply)
	}
	if body.Title != "Subdomain Enumeration Strategy Review" {
		t.Fatalf("unexpected title %q", body.Title)
	}
	if turner.calls != 1 {
		t.Fatalf("expected 1 turn, got %d", turner.calls)
	}
}

func TestChatErrorMapping(t *testing.T) {
	cases := []struct {
		name   string
		err    error
		status int
	}{
		{"access denied", assistant.ErrAccessDenied, http.StatusNotFound},
		{"empty input", chat.ErrEmptyInput, http.StatusBadRequest},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			router, db, turner := newTestServer(t)
			defer db.Close()
			turner.err = tc.err

			userID, headers := registerAndLogin(t, router)
			sessionID := createSessionViaAPI(t, router, userID, headers)

			resp := postChat(t, router, userID, sessionID, "anything", headers)
			assertStatus(t, resp, tc.status)
		})
	}
}

func TestRoutesRejectForeignUser(t *testing.T) {
	router, db, turner := newTestServer(t)
	defer db.Close()

	victimID, _ := registerAndLogin(t, router)
	_, attackerHeaders := registerAndLogin(t, router)

	resp := doJSONRequest(t, router, http.MethodGet,
		fmt.Sprintf("/api/users/%d/sessions", victimID), nil, attackerHeaders)
	assertStatus(t, resp, http.StatusForbidden)

	chatResp := postChat(t, router, victimID, 1, "hi", attackerHeaders)
	assertStatus(t, chatResp, http.StatusForbidden)
	if turner.calls != 0 {
		t.Fatalf("foreign user reached the chat core")
	}
}

func TestRoutesRequireAuth(t *testing.T) {
	router, db, _ := newTestServer(t)
	defer db.Close()

	resp := doJSONRequest(t, router, http.MethodGet, "/api/users/1/sessions", nil, nil)
	assertStatus(t, resp, http.StatusUnauthorized)
}

func TestLogoutRevokesToken(t *testing.T) {
	router, db, _ := newTestServer(t)
	defer db.Close()

	userID, headers := registerAndLogin(t, router)
	logoutResp := doJSONRequest(t, router, http.MethodPost,
		fmt.Sprintf("/api/users/%d/logout", userID), nil, headers)
	assertStatus(t, logoutResp, http.StatusNoContent)

	afterResp := doJSONRequest(t, router, http.MethodGet,
		fmt.Sprintf("/api/users/%d/sessions", userID), nil, headers)
	assertStatus(t, afterResp, http.StatusUnauthorized)
}

func TestDeleteUserRemovesData(t *testing.T) {
	router, db, _ := newTestServer(t)
	defer db.Close()

	userID, headers := registerAndLogin(t, router)
	createSessionViaAPI(t, router, userID, headers)

	deleteResp := doJSONRequest(t, router, http.MethodDelete,
		fmt.Sprintf("/api/users/%d", userID), nil, headers)
	assertStatus(t, deleteResp, http.StatusNoContent)

	var count int
	if err := db.QueryRow(`SELECT COUNT(*) FROM sessions WHERE user_id = ?`, userID).Scan(&count); err != nil {
		t.Fatalf("count sessions: %v", err)
	}
	if count != 0 {
		t.Fatalf("expected sessions removed with user, found %d", count)
	}
}
