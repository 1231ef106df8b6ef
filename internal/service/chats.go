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

type ChatService struct {
	Repo   db.Repository
	Events events.Publisher
	Logger zerolog.Logger
}

func welcomeText(clientName string) string {
	return fmt.Sprintf("Welcome, %s! An operator will join shortly.", clientName)
}

func (s *ChatService) CreateChat(ctx context.Context, p authz.Principal, clientName string, clientEmail *string) (models.Chat, error) {
	if err := authz.Require(p, authz.ChatCreate); err != nil {
		return models.Chat{}, err
	}
	clientName = strings.TrimSpace(clientName)
	if clientName == "" {
		return models.Chat{}, errs.Empty("client_name")
	}
	chat := models.Chat{ClientName: clientName, ClientEmail: optional(clientEmail)}
	if err := s.Repo.CreateChat(ctx, &chat, welcomeText(clientName)); err != nil {
		return models.Chat{}, err
	}
	s.Logger.Info().Int64("chat_id", chat.ID).Msg("chat created")
	publish(ctx, s.Events, events.ForChat(events.ChatCreated, chat, p.UserID))
	return chat, nil
}

// ParseStatusFilter accepts "", "all" or one of the chat statuses.
func ParseStatusFilter(raw string) (models.ChatStatus, error) {
	raw = strings.ToLower(strings.TrimSpace(raw))
	if raw == "" || raw == "all" {
		return "", nil
	}
	st := models.ChatStatus(raw)
	if !st.Valid() {
		return "", errs.Invalid("status", fmt.Sprintf("unknown status %q", raw))
	}
	return st, nil
}

func (s *ChatService) ListChats(ctx context.Context, p authz.Principal, status string) ([]models.ChatSummary, error) {
	if err := authz.Require(p, authz.ChatList); err != nil {
		return nil, err
	}
	st, err := ParseStatusFilter(status)
	if err != nil {
		return nil, err
	}
	return s.Repo.ListChats(ctx, st)
}

func (s *ChatService) GetMessages(ctx context.Context, p authz.Principal, chatID int64) ([]models.Message, error) {
	if err := authz.Require(p, authz.ChatReadMessages); err != nil {
		return nil, err
	}
	return s.Repo.ListMessages(ctx, chatID)
}

// SendMessage appends to the chat log. An operator's first reply to a
// waiting chat claims it; when two operators race for the same chat exactly
// one claim succeeds and the other gets ALREADY_CLAIMED.
func (s *ChatService) SendMessage(ctx context.Context, p authz.Principal, chatID int64, senderType models.SenderType, senderID *int64, text string) (models.Message, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return models.Message{}, errs.Empty("message_text")
	}
	if senderType == "" {
		senderType = models.SenderClient
		if p.Can(authz.MessageSendOperator) {
			senderType = models.SenderOperator
		}
	}
	if !senderType.Valid() {
		return models.Message{}, errs.Invalid("sender_type", fmt.Sprintf("unknown sender type %q", senderType))
	}

	msg := models.Message{ChatID: chatID, SenderType: senderType, Text: text}
	switch senderType {
	case models.SenderClient:
		if err := authz.Require(p, authz.MessageSendClient); err != nil {
			return models.Message{}, err
		}
		if !p.IsGuest() {
			id, err := authz.Self(p, senderID)
			if err != nil {
				return models.Message{}, err
			}
			msg.SenderID = &id
		}
	case models.SenderOperator:
		if err := authz.Require(p, authz.MessageSendOperator); err != nil {
			return models.Message{}, err
		}
		id, err := authz.Self(p, senderID)
		if err != nil {
			return models.Message{}, err
		}
		msg.SenderID = &id
	default:
		return models.Message{}, errs.Invalid("sender_type", fmt.Sprintf("cannot send as %q", senderType))
	}

	chat, claimed, err := s.Repo.AppendMessage(ctx, &msg)
	if err != nil {
		return models.Message{}, err
	}
	if claimed {
		s.Logger.Info().Int64("chat_id", chatID).Int64("operator_id", *msg.SenderID).Msg("chat claimed")
		publish(ctx, s.Events, events.ForChat(events.ChatClaimed, chat, p.UserID))
	}
	return msg, nil
}

func (s *ChatService) MarkRead(ctx context.Context, p authz.Principal, chatID int64) (int64, error) {
	if err := authz.Require(p, authz.ChatMarkRead); err != nil {
		return 0, err
	}
	return s.Repo.MarkRead(ctx, chatID)
}
