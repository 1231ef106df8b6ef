package client

import (
	"context"
	"errors"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"github.com/supportdesk/backend/internal/config"
	"github.com/supportdesk/backend/internal/db"
	"github.com/supportdesk/backend/internal/errs"
	httpapi "github.com/supportdesk/backend/internal/http"
	"github.com/supportdesk/backend/internal/models"
	"github.com/supportdesk/backend/internal/service"
)

func newServer(t *testing.T) (*httptest.Server, *service.Services) {
	t.Helper()
	gin.SetMode(gin.TestMode)
	repo := db.NewMemory(nil)
	svc := service.New(repo, service.Options{}, zerolog.Nop())
	srv := httptest.NewServer(httpapi.Router(config.Config{}, svc, repo, zerolog.Nop()))
	t.Cleanup(srv.Close)
	return srv, svc
}

func TestClientLoginAndChats(t *testing.T) {
	srv, svc := newServer(t)
	ctx := context.Background()
	if _, err := svc.Directory.Provision(ctx, service.NewUser{Username: "op", Password: "secret-pass", FullName: "Operator", Role: models.RoleOperator}); err != nil {
		t.Fatalf("provision: %v", err)
	}

	c := New(srv.URL + "/")
	if _, err := c.Login(ctx, "op", "wrong-pass"); !errors.Is(err, errs.ErrInvalidCredentials) {
		t.Fatalf("expected INVALID_CREDENTIALS, got %v", err)
	}
	u, err := c.Login(ctx, "op", "secret-pass")
	if err != nil {
		t.Fatalf("login: %v", err)
	}
	if c.Token == "" || u.Username != "op" {
		t.Fatalf("unexpected login result %+v token=%q", u, c.Token)
	}

	guest := New(srv.URL)
	var chat models.Chat
	if err := guest.do(ctx, "POST", "/api/chats", map[string]any{"action": "create_chat", "client_name": "Ivan"}, &chat); err != nil {
		t.Fatalf("create chat: %v", err)
	}

	waiting, err := c.ListChats(ctx, "waiting")
	if err != nil || len(waiting) != 1 || waiting[0].ID != chat.ID {
		t.Fatalf("unexpected waiting list %+v %v", waiting, err)
	}
	if _, err := c.SendMessage(ctx, chat.ID, models.SenderOperator, "hello"); err != nil {
		t.Fatalf("send: %v", err)
	}
	msgs, err := c.Messages(ctx, chat.ID)
	if err != nil || len(msgs) != 2 {
		t.Fatalf("expected welcome plus reply, got %+v %v", msgs, err)
	}

	if err := c.Logout(ctx); err != nil {
		t.Fatalf("logout: %v", err)
	}
	c.Token = "stale"
	if _, err := c.ListChats(ctx, ""); !errs.SessionLost(err) {
		t.Fatalf("expected session loss with a stale token, got %v", err)
	}
}
