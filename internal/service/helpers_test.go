package service

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/supportdesk/backend/internal/authz"
	"github.com/supportdesk/backend/internal/db"
	"github.com/supportdesk/backend/internal/events"
	"github.com/supportdesk/backend/internal/models"
)

type recorder struct {
	mu     sync.Mutex
	events []events.Event
}

func (r *recorder) Publish(_ context.Context, e events.Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, e)
}

func (r *recorder) types() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, len(r.events))
	for i, e := range r.events {
		out[i] = e.Type
	}
	return out
}

type fixture struct {
	repo   *db.Memory
	svc    *Services
	events *recorder
	now    time.Time
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{events: &recorder{}, now: time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC)}
	var mu sync.Mutex
	clock := func() time.Time {
		mu.Lock()
		defer mu.Unlock()
		f.now = f.now.Add(time.Millisecond)
		return f.now
	}
	f.repo = db.NewMemory(clock)
	f.svc = New(f.repo, Options{Events: f.events, Now: clock, SessionTTL: time.Hour}, zerolog.Nop())
	return f
}

// user stores an account directly, skipping bcrypt.
func (f *fixture) user(t *testing.T, username string, role models.Role) authz.Principal {
	t.Helper()
	u := models.User{Username: username, FullName: username, Role: role, IsActive: true, PasswordHash: "-"}
	if err := f.repo.CreateUser(context.Background(), &u); err != nil {
		t.Fatalf("create user %s: %v", username, err)
	}
	return authz.Principal{UserID: u.ID, Role: role}
}

func (f *fixture) chat(t *testing.T, name string) models.Chat {
	t.Helper()
	c, err := f.svc.Chats.CreateChat(context.Background(), authz.Guest, name, nil)
	if err != nil {
		t.Fatalf("create chat: %v", err)
	}
	return c
}

func ptr[T any](v T) *T { return &v }
