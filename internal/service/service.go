// Package service holds the ticket lifecycle, assignment, rating and session
// logic. Every exported method takes the caller's authz.Principal and checks
// a capability before it reads or writes anything.
package service

import (
	"context"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/supportdesk/backend/internal/db"
	"github.com/supportdesk/backend/internal/events"
	"github.com/supportdesk/backend/internal/ratelimit"
)

const DefaultSessionTTL = 7 * 24 * time.Hour

type Options struct {
	SessionTTL time.Duration
	Limiter    ratelimit.Limiter
	Events     events.Publisher
	Now        db.Clock
}

type Services struct {
	Sessions   *SessionService
	Chats      *ChatService
	Assignment *AssignmentService
	Ratings    *RatingService
	Directory  *DirectoryService
}

func New(repo db.Repository, opts Options, logger zerolog.Logger) *Services {
	if opts.SessionTTL <= 0 {
		opts.SessionTTL = DefaultSessionTTL
	}
	if opts.Limiter == nil {
		opts.Limiter = ratelimit.Nop{}
	}
	if opts.Events == nil {
		opts.Events = events.Nop{}
	}
	if opts.Now == nil {
		opts.Now = db.UTCNow
	}
	return &Services{
		Sessions: &SessionService{
			Repo: repo, Limiter: opts.Limiter, TTL: opts.SessionTTL, Now: opts.Now,
			Logger: logger.With().Str("component", "sessions").Logger(),
		},
		Chats: &ChatService{
			Repo: repo, Events: opts.Events,
			Logger: logger.With().Str("component", "chats").Logger(),
		},
		Assignment: &AssignmentService{
			Repo: repo, Events: opts.Events,
			Logger: logger.With().Str("component", "assignment").Logger(),
		},
		Ratings: &RatingService{
			Repo: repo, Events: opts.Events,
			Logger: logger.With().Str("component", "ratings").Logger(),
		},
		Directory: &DirectoryService{
			Repo:   repo,
			Logger: logger.With().Str("component", "directory").Logger(),
		},
	}
}

func publish(ctx context.Context, p events.Publisher, e events.Event) {
	if p == nil {
		return
	}
	p.Publish(ctx, e)
}

// optional trims s and maps blank values to nil.
func optional(s *string) *string {
	if s == nil {
		return nil
	}
	v := strings.TrimSpace(*s)
	if v == "" {
		return nil
	}
	return &v
}
