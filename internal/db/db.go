package db

import (
	"context"
	"time"

	"github.com/supportdesk/backend/internal/models"
)

// Repository is the persistence contract shared by the Postgres Store and
// the in-memory Memory repository. Each method is a single atomic
// operation; conditional methods re-check the chat status at write time and
// report a classified errs.Error when the condition no longer holds.
type Repository interface {
	Ping(ctx context.Context) error

	CreateUser(ctx context.Context, u *models.User) error
	GetUser(ctx context.Context, id int64) (models.User, error)
	GetUserByUsername(ctx context.Context, username string) (models.User, error)
	ListUsers(ctx context.Context) ([]models.User, error)
	ListStaff(ctx context.Context) ([]models.User, error)
	UpdateUser(ctx context.Context, id int64, patch models.UserPatch) (models.User, error)
	SetUserStatus(ctx context.Context, id int64, status models.UserStatus) (models.User, error)

	CreateSession(ctx context.Context, s models.Session) error
	GetSession(ctx context.Context, token string) (models.Session, error)
	DeleteSession(ctx context.Context, token string) error

	CreateChat(ctx context.Context, chat *models.Chat, welcome string) error
	GetChat(ctx context.Context, id int64) (models.Chat, error)
	ListChats(ctx context.Context, status models.ChatStatus) ([]models.ChatSummary, error)
	ListMessages(ctx context.Context, chatID int64) ([]models.Message, error)
	// AppendMessage stores msg. For operator messages it first claims a
	// waiting chat for msg.SenderID with a compare-and-set on status, and
	// refuses to append when another operator holds the chat. claimed
	// reports whether this call performed the waiting -> active transition.
	AppendMessage(ctx context.Context, msg *models.Message) (chat models.Chat, claimed bool, err error)
	MarkRead(ctx context.Context, chatID int64) (int64, error)
	// Assign and CloseChat accept an optional holder: when set, the write
	// only succeeds if the chat is unassigned or assigned to the holder.
	Assign(ctx context.Context, chatID int64, to, holder *int64) (models.Chat, error)
	CloseChat(ctx context.Context, chatID int64, holder *int64, auditText string) (models.Chat, error)

	AddNote(ctx context.Context, note *models.Note) error
	ListNotes(ctx context.Context, chatID int64) ([]models.Note, error)

	AddRating(ctx context.Context, r *models.QCRating) error
	ListRatings(ctx context.Context, operatorID *int64) ([]models.QCRating, error)
}

// Clock is injected into the in-memory repository and the services.
type Clock func() time.Time

func UTCNow() time.Time { return time.Now().UTC() }
