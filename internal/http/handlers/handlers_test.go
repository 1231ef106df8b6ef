package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
	"github.com/rs/zerolog"

	"github.com/supportdesk/backend/internal/db"
	"github.com/supportdesk/backend/internal/http/middleware"
	"github.com/supportdesk/backend/internal/models"
	"github.com/supportdesk/backend/internal/service"
)

type testServer struct {
	router *gin.Engine
	svc    *service.Services
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	gin.SetMode(gin.TestMode)
	repo := db.NewMemory(nil)
	svc := service.New(repo, service.Options{}, zerolog.Nop())
	h := &Handler{Services: svc, Store: repo, Validator: validator.New(), Logger: zerolog.Nop()}

	r := gin.New()
	r.GET("/healthz", h.Healthz)
	r.GET("/api/auth", h.Me)
	r.POST("/api/auth", h.Auth)
	s := r.Group("/api", middleware.Session(svc.Sessions))
	s.GET("/chats", h.ChatsList)
	s.POST("/chats", h.ChatsAction)
	u := s.Group("/users", middleware.RequireSession())
	u.GET("", h.UsersList)
	u.POST("", h.UsersCreate)
	u.PUT("", h.UsersUpdate)
	return &testServer{router: r, svc: svc}
}

func (s *testServer) do(t *testing.T, method, path, token string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("encode body: %v", err)
		}
	}
	req, _ := http.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set(middleware.SessionHeader, token)
	}
	w := httptest.NewRecorder()
	s.router.ServeHTTP(w, req)
	return w
}

// login provisions an account and returns a session token for it.
func (s *testServer) login(t *testing.T, username string, role models.Role) (string, models.User) {
	t.Helper()
	ctx := context.Background()
	u, err := s.svc.Directory.Provision(ctx, service.NewUser{Username: username, Password: "secret-pass", FullName: username, Role: role})
	if err != nil {
		t.Fatalf("provision %s: %v", username, err)
	}
	w := s.do(t, http.MethodPost, "/api/auth", "", gin.H{"action": "login", "username": username, "password": "secret-pass"})
	if w.Code != http.StatusOK {
		t.Fatalf("login %s: %d %s", username, w.Code, w.Body.String())
	}
	var resp LoginResponse
	decode(t, w, &resp)
	return resp.SessionToken, u
}

func decode(t *testing.T, w *httptest.ResponseRecorder, v any) {
	t.Helper()
	if err := json.Unmarshal(w.Body.Bytes(), v); err != nil {
		t.Fatalf("decode %q: %v", w.Body.String(), err)
	}
}

func errorCode(t *testing.T, w *httptest.ResponseRecorder) string {
	t.Helper()
	var body ErrorBody
	decode(t, w, &body)
	return body.Error.Code
}

func TestAuthActions(t *testing.T) {
	s := newTestServer(t)
	token, u := s.login(t, "anna", models.RoleOperator)

	w := s.do(t, http.MethodPost, "/api/auth", token, gin.H{"action": "verify"})
	var verify VerifyResponse
	decode(t, w, &verify)
	if w.Code != http.StatusOK || !verify.Valid || verify.User == nil || verify.User.ID != u.ID {
		t.Fatalf("verify: %d %s", w.Code, w.Body.String())
	}

	w = s.do(t, http.MethodPost, "/api/auth", token, gin.H{"action": "update_status", "status": "jira"})
	if w.Code != http.StatusOK {
		t.Fatalf("update_status: %d %s", w.Code, w.Body.String())
	}
	w = s.do(t, http.MethodGet, "/api/auth", token, nil)
	var me struct {
		User models.User `json:"user"`
	}
	decode(t, w, &me)
	if me.User.Status != models.UserJira {
		t.Fatalf("expected status jira, got %q", me.User.Status)
	}

	w = s.do(t, http.MethodPost, "/api/auth", token, gin.H{"action": "get_operators"})
	if w.Code != http.StatusOK {
		t.Fatalf("get_operators: %d %s", w.Code, w.Body.String())
	}

	w = s.do(t, http.MethodPost, "/api/auth", token, gin.H{"action": "logout"})
	if w.Code != http.StatusOK {
		t.Fatalf("logout: %d", w.Code)
	}
	w = s.do(t, http.MethodPost, "/api/auth", token, gin.H{"action": "verify"})
	verify = VerifyResponse{}
	decode(t, w, &verify)
	if w.Code != http.StatusOK || verify.Valid {
		t.Fatalf("verify after logout: %d %s", w.Code, w.Body.String())
	}

	w = s.do(t, http.MethodPost, "/api/auth", "", gin.H{"action": "login", "username": "anna", "password": "wrong-pass"})
	if w.Code != http.StatusUnauthorized || errorCode(t, w) != "INVALID_CREDENTIALS" {
		t.Fatalf("bad login: %d %s", w.Code, w.Body.String())
	}
	w = s.do(t, http.MethodPost, "/api/auth", "", gin.H{"action": "dance"})
	if w.Code != http.StatusBadRequest || errorCode(t, w) != "INVALID_ACTION" {
		t.Fatalf("unknown action: %d %s", w.Code, w.Body.String())
	}
}

func TestChatLifecycleOverHTTP(t *testing.T) {
	s := newTestServer(t)
	op7, _ := s.login(t, "op7", models.RoleOperator)
	op9, _ := s.login(t, "op9", models.RoleOperator)
	qc, _ := s.login(t, "qc3", models.RoleOKK)

	w := s.do(t, http.MethodPost, "/api/chats", "", gin.H{"action": "create_chat", "client_name": "Ivan", "client_email": ""})
	if w.Code != http.StatusCreated {
		t.Fatalf("create_chat: %d %s", w.Code, w.Body.String())
	}
	var chat models.Chat
	decode(t, w, &chat)

	if w := s.do(t, http.MethodGet, "/api/chats", "", nil); w.Code != http.StatusForbidden {
		t.Fatalf("guest list: expected 403, got %d", w.Code)
	}
	if w := s.do(t, http.MethodGet, "/api/chats", "not-a-token", nil); w.Code != http.StatusUnauthorized {
		t.Fatalf("bad token: expected 401, got %d", w.Code)
	}

	w = s.do(t, http.MethodPost, "/api/chats", op7, gin.H{"action": "send_message", "chat_id": chat.ID, "sender_type": "operator", "message_text": "Hello"})
	if w.Code != http.StatusCreated {
		t.Fatalf("claim: %d %s", w.Code, w.Body.String())
	}
	w = s.do(t, http.MethodPost, "/api/chats", op9, gin.H{"action": "send_message", "chat_id": chat.ID, "sender_type": "operator", "message_text": "Mine"})
	if w.Code != http.StatusConflict || errorCode(t, w) != "ALREADY_CLAIMED" {
		t.Fatalf("second claim: %d %s", w.Code, w.Body.String())
	}

	w = s.do(t, http.MethodGet, "/api/chats?status=active", op9, nil)
	var active []models.ChatSummary
	decode(t, w, &active)
	if len(active) != 1 || active[0].AssignedOperatorName == nil || *active[0].AssignedOperatorName != "op7" {
		t.Fatalf("active list: %s", w.Body.String())
	}

	w = s.do(t, http.MethodPost, "/api/chats", op7, gin.H{"action": "close_chat", "chat_id": chat.ID})
	if w.Code != http.StatusOK {
		t.Fatalf("close: %d %s", w.Code, w.Body.String())
	}
	w = s.do(t, http.MethodPost, "/api/chats", "", gin.H{"action": "send_message", "chat_id": chat.ID, "message_text": "hello?"})
	if w.Code != http.StatusConflict || errorCode(t, w) != "ALREADY_CLOSED" {
		t.Fatalf("send to closed: %d %s", w.Code, w.Body.String())
	}

	w = s.do(t, http.MethodPost, "/api/chats", op7, gin.H{"action": "escalate_chat", "chat_id": chat.ID, "to_operator_id": 1})
	if w.Code != http.StatusConflict || errorCode(t, w) != "ALREADY_CLOSED" {
		t.Fatalf("escalate closed: %d %s", w.Code, w.Body.String())
	}
	w = s.do(t, http.MethodPost, "/api/chats", qc, gin.H{"action": "get_messages", "chat_id": chat.ID})
	var msgs []models.Message
	decode(t, w, &msgs)
	if len(msgs) != 3 || msgs[2].SenderType != models.SenderSystem {
		t.Fatalf("expected welcome, reply and close audit, got %s", w.Body.String())
	}

	for _, score := range []int{150, -1} {
		w = s.do(t, http.MethodPost, "/api/chats", qc, gin.H{"action": "add_qc_rating", "chat_id": chat.ID, "operator_id": msgs[1].SenderID, "score": score})
		if w.Code != http.StatusBadRequest || errorCode(t, w) != "OUT_OF_RANGE_SCORE" {
			t.Fatalf("score %d: %d %s", score, w.Code, w.Body.String())
		}
	}
	w = s.do(t, http.MethodPost, "/api/chats", qc, gin.H{"action": "add_qc_rating", "chat_id": chat.ID, "operator_id": msgs[1].SenderID, "score": 85, "comment": "good"})
	if w.Code != http.StatusCreated {
		t.Fatalf("rate: %d %s", w.Code, w.Body.String())
	}

	w = s.do(t, http.MethodPost, "/api/chats", op7, gin.H{"action": "get_qc_ratings"})
	var ratings []models.QCRating
	decode(t, w, &ratings)
	if len(ratings) != 1 || ratings[0].Score != 85 || ratings[0].ClientName != "Ivan" {
		t.Fatalf("ratings: %s", w.Body.String())
	}
}

func TestChatActionValidation(t *testing.T) {
	s := newTestServer(t)
	op, _ := s.login(t, "op", models.RoleOperator)

	cases := []struct {
		name string
		body gin.H
		code string
	}{
		{"missing action", gin.H{}, "VALIDATION_ERROR"},
		{"unknown action", gin.H{"action": "explode"}, "INVALID_ACTION"},
		{"missing chat id", gin.H{"action": "get_messages"}, "EMPTY_FIELD"},
		{"bad email", gin.H{"action": "create_chat", "client_name": "x", "client_email": "nope"}, "VALIDATION_ERROR"},
		{"empty note", gin.H{"action": "add_note", "chat_id": 1, "note_text": ""}, "EMPTY_FIELD"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			w := s.do(t, http.MethodPost, "/api/chats", op, tc.body)
			if w.Code != http.StatusBadRequest || errorCode(t, w) != tc.code {
				t.Fatalf("expected 400 %s, got %d %s", tc.code, w.Code, w.Body.String())
			}
		})
	}
	w := s.do(t, http.MethodPost, "/api/chats", op, gin.H{"action": "get_messages", "chat_id": 42})
	if w.Code != http.StatusNotFound || errorCode(t, w) != "UNKNOWN_CHAT" {
		t.Fatalf("unknown chat: %d %s", w.Code, w.Body.String())
	}
}

func TestUsersAdminOnly(t *testing.T) {
	s := newTestServer(t)
	admin, _ := s.login(t, "root", models.RoleAdmin)
	op, _ := s.login(t, "op", models.RoleOperator)

	if w := s.do(t, http.MethodGet, "/api/users", "", nil); w.Code != http.StatusUnauthorized {
		t.Fatalf("guest: expected 401, got %d", w.Code)
	}
	if w := s.do(t, http.MethodGet, "/api/users", op, nil); w.Code != http.StatusForbidden {
		t.Fatalf("operator: expected 403, got %d", w.Code)
	}

	w := s.do(t, http.MethodPost, "/api/users", admin, gin.H{"username": "maria", "password": "secret-pass", "full_name": "Maria", "role": "okk"})
	if w.Code != http.StatusCreated {
		t.Fatalf("create: %d %s", w.Code, w.Body.String())
	}
	var created models.User
	decode(t, w, &created)
	if bytes.Contains(w.Body.Bytes(), []byte("password")) {
		t.Fatalf("password hash leaked: %s", w.Body.String())
	}

	w = s.do(t, http.MethodPost, "/api/users", admin, gin.H{"username": "maria", "password": "secret-pass", "full_name": "Maria", "role": "okk"})
	if w.Code != http.StatusConflict || errorCode(t, w) != "DUPLICATE_USERNAME" {
		t.Fatalf("duplicate: %d %s", w.Code, w.Body.String())
	}
	w = s.do(t, http.MethodPost, "/api/users", admin, gin.H{"username": "x", "password": "secret-pass", "full_name": "X", "role": "boss"})
	if w.Code != http.StatusBadRequest {
		t.Fatalf("bad role: %d %s", w.Code, w.Body.String())
	}

	w = s.do(t, http.MethodPut, "/api/users", admin, gin.H{"id": created.ID, "is_active": false})
	var updated models.User
	decode(t, w, &updated)
	if w.Code != http.StatusOK || updated.IsActive {
		t.Fatalf("update: %d %s", w.Code, w.Body.String())
	}

	w = s.do(t, http.MethodGet, "/api/users", admin, nil)
	var users []models.User
	decode(t, w, &users)
	if len(users) != 3 {
		t.Fatalf("expected 3 users, got %d", len(users))
	}
}
