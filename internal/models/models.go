package models

import "time"

type Role string

const (
	RoleClient   Role = "client"
	RoleOperator Role = "operator"
	RoleOKK      Role = "okk"
	RoleAdmin    Role = "admin"
)

func (r Role) Valid() bool {
	switch r {
	case RoleClient, RoleOperator, RoleOKK, RoleAdmin:
		return true
	}
	return false
}

// Staff reports whether the role belongs to support staff rather than customers.
func (r Role) Staff() bool {
	return r == RoleOperator || r == RoleOKK || r == RoleAdmin
}

type UserStatus string

const (
	UserOnline  UserStatus = "online"
	UserJira    UserStatus = "jira"
	UserBreak   UserStatus = "break"
	UserOffline UserStatus = "offline"
)

func (s UserStatus) Valid() bool {
	switch s {
	case UserOnline, UserJira, UserBreak, UserOffline:
		return true
	}
	return false
}

type User struct {
	ID           int64      `json:"id"`
	Username     string     `json:"username"`
	PasswordHash string     `json:"-"`
	FullName     string     `json:"full_name"`
	Role         Role       `json:"role"`
	Status       UserStatus `json:"status"`
	Department   string     `json:"department"`
	IsActive     bool       `json:"is_active"`
	CreatedAt    time.Time  `json:"created_at"`
	UpdatedAt    time.Time  `json:"updated_at"`
}

// UserPatch carries the mutable account fields. Role is deliberately absent.
type UserPatch struct {
	Username     *string
	FullName     *string
	Department   *string
	IsActive     *bool
	PasswordHash *string
}

type Session struct {
	Token     string    `json:"-"`
	UserID    int64     `json:"user_id"`
	CreatedAt time.Time `json:"created_at"`
	ExpiresAt time.Time `json:"expires_at"`
}

func (s Session) Expired(now time.Time) bool {
	return !now.Before(s.ExpiresAt)
}

type ChatStatus string

const (
	ChatWaiting ChatStatus = "waiting"
	ChatActive  ChatStatus = "active"
	ChatClosed  ChatStatus = "closed"
)

func (s ChatStatus) Valid() bool {
	return s.rank() > 0
}

func (s ChatStatus) rank() int {
	switch s {
	case ChatWaiting:
		return 1
	case ChatActive:
		return 2
	case ChatClosed:
		return 3
	}
	return 0
}

// CanTransition encodes the ticket state machine: waiting -> active,
// active -> active (reassignment), active -> closed and waiting -> closed.
// closed is terminal.
func (s ChatStatus) CanTransition(to ChatStatus) bool {
	if !s.Valid() || !to.Valid() || s == ChatClosed {
		return false
	}
	if s == ChatActive && to == ChatActive {
		return true
	}
	return to.rank() > s.rank()
}

type Chat struct {
	ID                 int64      `json:"id"`
	ClientName         string     `json:"client_name"`
	ClientEmail        *string    `json:"client_email"`
	Status             ChatStatus `json:"status"`
	AssignedOperatorID *int64     `json:"assigned_operator_id"`
	CreatedAt          time.Time  `json:"created_at"`
	UpdatedAt          time.Time  `json:"updated_at"`
	ClosedAt           *time.Time `json:"closed_at,omitempty"`
}

// AssignedTo reports whether the chat is currently assigned to the operator.
func (c Chat) AssignedTo(operatorID int64) bool {
	return c.AssignedOperatorID != nil && *c.AssignedOperatorID == operatorID
}

type ChatSummary struct {
	Chat
	AssignedOperatorName *string    `json:"assigned_operator_name"`
	UnreadCount          int        `json:"unread_count"`
	LastMessage          *string    `json:"last_message"`
	LastMessageTime      *time.Time `json:"last_message_time"`
}

type SenderType string

const (
	SenderClient   SenderType = "client"
	SenderOperator SenderType = "operator"
	SenderSystem   SenderType = "system"
)

func (s SenderType) Valid() bool {
	return s == SenderClient || s == SenderOperator || s == SenderSystem
}

type Message struct {
	ID         int64      `json:"id"`
	ChatID     int64      `json:"chat_id"`
	SenderType SenderType `json:"sender_type"`
	SenderID   *int64     `json:"sender_id"`
	SenderName *string    `json:"sender_name,omitempty"`
	Text       string     `json:"message_text"`
	IsRead     bool       `json:"is_read"`
	CreatedAt  time.Time  `json:"created_at"`
}

type Note struct {
	ID           int64     `json:"id"`
	ChatID       int64     `json:"chat_id"`
	OperatorID   int64     `json:"operator_id"`
	OperatorName *string   `json:"operator_name,omitempty"`
	Text         string    `json:"note_text"`
	CreatedAt    time.Time `json:"created_at"`
}

const (
	MinScore = 0
	MaxScore = 100
)

type QCRating struct {
	ID         int64     `json:"id"`
	ChatID     int64     `json:"chat_id"`
	OperatorID int64     `json:"operator_id"`
	QCUserID   int64     `json:"qc_user_id"`
	Score      int       `json:"score"`
	Comment    *string   `json:"comment"`
	CreatedAt  time.Time `json:"created_at"`
	ClientName string    `json:"client_name,omitempty"`
	QCUserName string    `json:"qc_user_name,omitempty"`
}
