package service

import (
	"context"
	"fmt"
	"strings"

	"github.com/rs/zerolog"

	"github.com/supportdesk/backend/internal/authz"
	"github.com/supportdesk/backend/internal/db"
	"github.com/supportdesk/backend/internal/errs"
	"github.com/supportdesk/backend/internal/events"
	"github.com/supportdesk/backend/internal/models"
)

type AssignmentService struct {
	Repo   db.Repository
	Events events.Publisher
	Logger zerolog.Logger
}

// EscalationEligible reports whether u can take over a chat.
func EscalationEligible(u models.User) bool {
	return u.IsActive && (u.Role == models.RoleOperator || u.Role == models.RoleAdmin)
}

// holder is the assignee a conditional write must still see. Admins act
// over any assignment; everyone else only over their own or unassigned chats.
func holder(p authz.Principal) *int64 {
	if p.Role == models.RoleAdmin {
		return nil
	}
	id := p.UserID
	return &id
}

// Escalate hands the chat to another operator, or clears the assignee of a
// waiting chat when to is nil.
func (s *AssignmentService) Escalate(ctx context.Context, p authz.Principal, chatID int64, to *int64) (models.Chat, error) {
	if err := authz.Require(p, authz.ChatEscalate); err != nil {
		return models.Chat{}, err
	}
	if to != nil && *to == 0 {
		to = nil
	}
	if to != nil {
		target, err := s.Repo.GetUser(ctx, *to)
		if err != nil {
			return models.Chat{}, err
		}
		if !EscalationEligible(target) {
			return models.Chat{}, errs.Assignment(fmt.Sprintf("user %d cannot take chats", target.ID))
		}
	}

	chat, err := s.Repo.Assign(ctx, chatID, to, holder(p))
	if err != nil {
		return models.Chat{}, err
	}
	ev := s.Logger.Info().Int64("chat_id", chatID).Int64("by", p.UserID)
	if to != nil {
		ev = ev.Int64("to", *to)
	}
	ev.Msg("chat escalated")
	publish(ctx, s.Events, events.ForChat(events.ChatEscalated, chat, p.UserID))
	return chat, nil
}

// Close moves the chat to its terminal state and records who closed it in
// the message log.
func (s *AssignmentService) Close(ctx context.Context, p authz.Principal, chatID int64) (models.Chat, error) {
	if err := authz.Require(p, authz.ChatClose); err != nil {
		return models.Chat{}, err
	}
	closedBy := fmt.Sprintf("user #%d", p.UserID)
	if u, err := s.Repo.GetUser(ctx, p.UserID); err == nil {
		closedBy = u.FullName
	}

	chat, err := s.Repo.CloseChat(ctx, chatID, holder(p), "Chat closed by "+closedBy)
	if err != nil {
		return models.Chat{}, err
	}
	s.Logger.Info().Int64("chat_id", chatID).Int64("by", p.UserID).Msg("chat closed")
	publish(ctx, s.Events, events.ForChat(events.ChatClosed, chat, p.UserID))
	return chat, nil
}

func (s *AssignmentService) AddNote(ctx context.Context, p authz.Principal, chatID int64, operatorID *int64, text string) (models.Note, error) {
	if err := authz.Require(p, authz.NoteAdd); err != nil {
		return models.Note{}, err
	}
	id, err := authz.Self(p, operatorID)
	if err != nil {
		return models.Note{}, err
	}
	text = strings.TrimSpace(text)
	if text == "" {
		return models.Note{}, errs.Empty("note_text")
	}
	note := models.Note{ChatID: chatID, OperatorID: id, Text: text}
	if err := s.Repo.AddNote(ctx, &note); err != nil {
		return models.Note{}, err
	}
	return note, nil
}

func (s *AssignmentService) ListNotes(ctx context.Context, p authz.Principal, chatID int64) ([]models.Note, error) {
	if err := authz.Require(p, authz.NoteList); err != nil {
		return nil, err
	}
	return s.Repo.ListNotes(ctx, chatID)
}
