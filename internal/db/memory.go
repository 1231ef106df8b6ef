package db

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/supportdesk/backend/internal/errs"
	"github.com/supportdesk/backend/internal/models"
)

// Memory is a process-local Repository used when no DATABASE_URL is
// configured and by the service and handler tests. A single mutex
// serialises every operation, which gives each method the same atomicity
// the Postgres store gets from its transactions.
type Memory struct {
	mu  sync.Mutex
	now Clock

	users    map[int64]models.User
	sessions map[string]models.Session
	chats    map[int64]models.Chat
	messages []models.Message
	notes    []models.Note
	ratings  []models.QCRating

	lastUser, lastChat, lastMessage, lastNote, lastRating int64
}

var _ Repository = (*Memory)(nil)

func NewMemory(now Clock) *Memory {
	if now == nil {
		now = UTCNow
	}
	return &Memory{
		now:      now,
		users:    map[int64]models.User{},
		sessions: map[string]models.Session{},
		chats:    map[int64]models.Chat{},
	}
}

func (m *Memory) Ping(context.Context) error { return nil }

func (m *Memory) CreateUser(_ context.Context, u *models.User) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, taken := m.userByName(u.Username); taken {
		return errs.ErrDuplicateUsername
	}
	m.lastUser++
	t := m.now()
	u.ID, u.CreatedAt, u.UpdatedAt = m.lastUser, t, t
	if u.Status == "" {
		u.Status = models.UserOffline
	}
	m.users[u.ID] = *u
	return nil
}

func (m *Memory) userByName(username string) (models.User, bool) {
	for _, u := range m.users {
		if u.Username == username {
			return u, true
		}
	}
	return models.User{}, false
}

func (m *Memory) GetUser(_ context.Context, id int64) (models.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.users[id]
	if !ok {
		return models.User{}, errs.ErrUnknownUser
	}
	return u, nil
}

func (m *Memory) GetUserByUsername(_ context.Context, username string) (models.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.userByName(username)
	if !ok {
		return models.User{}, errs.ErrUnknownUser
	}
	return u, nil
}

func (m *Memory) ListUsers(context.Context) ([]models.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]models.User, 0, len(m.users))
	for _, u := range m.users {
		out = append(out, u)
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.After(out[j].CreatedAt)
		}
		return out[i].ID > out[j].ID
	})
	return out, nil
}

func (m *Memory) ListStaff(context.Context) ([]models.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := []models.User{}
	for _, u := range m.users {
		if u.IsActive && u.Role.Staff() {
			out = append(out, u)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if c := strings.Compare(out[i].FullName, out[j].FullName); c != 0 {
			return c < 0
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

func (m *Memory) UpdateUser(_ context.Context, id int64, patch models.UserPatch) (models.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.users[id]
	if !ok {
		return models.User{}, errs.ErrUnknownUser
	}
	if patch.Username != nil && *patch.Username != u.Username {
		if _, taken := m.userByName(*patch.Username); taken {
			return models.User{}, errs.ErrDuplicateUsername
		}
		u.Username = *patch.Username
	}
	if patch.FullName != nil {
		u.FullName = *patch.FullName
	}
	if patch.Department != nil {
		u.Department = *patch.Department
	}
	if patch.IsActive != nil {
		u.IsActive = *patch.IsActive
	}
	if patch.PasswordHash != nil {
		u.PasswordHash = *patch.PasswordHash
	}
	u.UpdatedAt = m.now()
	m.users[id] = u
	return u, nil
}

func (m *Memory) SetUserStatus(_ context.Context, id int64, status models.UserStatus) (models.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.users[id]
	if !ok {
		return models.User{}, errs.ErrUnknownUser
	}
	u.Status = status
	u.UpdatedAt = m.now()
	m.users[id] = u
	return u, nil
}

func (m *Memory) CreateSession(_ context.Context, s models.Session) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sessions[s.Token] = s
	return nil
}

func (m *Memory) GetSession(_ context.Context, token string) (models.Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sessions[token]
	if !ok {
		return models.Session{}, errs.ErrUnauthenticated
	}
	return s, nil
}

func (m *Memory) DeleteSession(_ context.Context, token string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.sessions, token)
	return nil
}

func (m *Memory) CreateChat(_ context.Context, chat *models.Chat, welcome string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.lastChat++
	t := m.now()
	*chat = models.Chat{
		ID:          m.lastChat,
		ClientName:  chat.ClientName,
		ClientEmail: chat.ClientEmail,
		Status:      models.ChatWaiting,
		CreatedAt:   t,
		UpdatedAt:   t,
	}
	m.chats[chat.ID] = *chat
	if welcome != "" {
		m.appendLocked(&models.Message{ChatID: chat.ID, SenderType: models.SenderSystem, Text: welcome})
	}
	return nil
}

func (m *Memory) GetChat(_ context.Context, id int64) (models.Chat, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.chats[id]
	if !ok {
		return models.Chat{}, errs.ErrUnknownChat
	}
	return c, nil
}

func (m *Memory) ListChats(_ context.Context, status models.ChatStatus) ([]models.ChatSummary, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := []models.ChatSummary{}
	for _, c := range m.chats {
		if status != "" && c.Status != status {
			continue
		}
		cs := models.ChatSummary{Chat: c}
		if c.AssignedOperatorID != nil {
			if u, ok := m.users[*c.AssignedOperatorID]; ok {
				name := u.FullName
				cs.AssignedOperatorName = &name
			}
		}
		var last *models.Message
		for i, msg := range m.messages {
			if msg.ChatID != c.ID {
				continue
			}
			if msg.SenderType == models.SenderClient && !msg.IsRead {
				cs.UnreadCount++
			}
			if last == nil || createdBefore(last.CreatedAt, last.ID, msg.CreatedAt, msg.ID) {
				last = &m.messages[i]
			}
		}
		if last != nil {
			text, at := last.Text, last.CreatedAt
			cs.LastMessage, cs.LastMessageTime = &text, &at
		}
		out = append(out, cs)
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].UpdatedAt.Equal(out[j].UpdatedAt) {
			return out[i].UpdatedAt.After(out[j].UpdatedAt)
		}
		return out[i].ID > out[j].ID
	})
	return out, nil
}

func (m *Memory) ListMessages(_ context.Context, chatID int64) ([]models.Message, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.chats[chatID]; !ok {
		return nil, errs.ErrUnknownChat
	}
	out := []models.Message{}
	for _, msg := range m.messages {
		if msg.ChatID != chatID {
			continue
		}
		if msg.SenderID != nil {
			if u, ok := m.users[*msg.SenderID]; ok {
				name := u.FullName
				msg.SenderName = &name
			}
		}
		out = append(out, msg)
	}
	sort.SliceStable(out, func(i, j int) bool {
		return createdBefore(out[i].CreatedAt, out[i].ID, out[j].CreatedAt, out[j].ID)
	})
	return out, nil
}

func (m *Memory) AppendMessage(_ context.Context, msg *models.Message) (models.Chat, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.chats[msg.ChatID]
	if !ok {
		return models.Chat{}, false, errs.ErrUnknownChat
	}
	if err := sendGuard(c, msg); err != nil {
		return models.Chat{}, false, err
	}
	claimed := msg.SenderType == models.SenderOperator && c.Status == models.ChatWaiting
	if claimed {
		id := *msg.SenderID
		c.Status = models.ChatActive
		c.AssignedOperatorID = &id
	}
	c.UpdatedAt = bump(c.UpdatedAt, m.now())
	m.chats[c.ID] = c
	m.appendLocked(msg)
	return c, claimed, nil
}

func (m *Memory) appendLocked(msg *models.Message) {
	m.lastMessage++
	msg.ID = m.lastMessage
	msg.IsRead = false
	msg.CreatedAt = m.now()
	m.messages = append(m.messages, *msg)
}

func (m *Memory) MarkRead(_ context.Context, chatID int64) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.chats[chatID]; !ok {
		return 0, errs.ErrUnknownChat
	}
	var n int64
	for i := range m.messages {
		msg := &m.messages[i]
		if msg.ChatID == chatID && msg.SenderType == models.SenderClient && !msg.IsRead {
			msg.IsRead = true
			n++
		}
	}
	return n, nil
}

func (m *Memory) Assign(_ context.Context, chatID int64, to, holder *int64) (models.Chat, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.chats[chatID]
	if !ok {
		return models.Chat{}, errs.ErrUnknownChat
	}
	if err := assignGuard(c, to, holder); err != nil {
		return models.Chat{}, err
	}
	if to != nil {
		id := *to
		c.AssignedOperatorID = &id
		c.Status = models.ChatActive
	} else {
		c.AssignedOperatorID = nil
	}
	c.UpdatedAt = bump(c.UpdatedAt, m.now())
	m.chats[chatID] = c
	return c, nil
}

func (m *Memory) CloseChat(_ context.Context, chatID int64, holder *int64, auditText string) (models.Chat, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.chats[chatID]
	if !ok {
		return models.Chat{}, errs.ErrUnknownChat
	}
	if err := closeGuard(c, holder); err != nil {
		return models.Chat{}, err
	}
	t := m.now()
	c.Status = models.ChatClosed
	c.ClosedAt = &t
	c.UpdatedAt = bump(c.UpdatedAt, t)
	m.chats[chatID] = c
	m.appendLocked(&models.Message{ChatID: chatID, SenderType: models.SenderSystem, Text: auditText})
	return c, nil
}

func (m *Memory) AddNote(_ context.Context, note *models.Note) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.chats[note.ChatID]; !ok {
		return errs.ErrUnknownChat
	}
	m.lastNote++
	note.ID = m.lastNote
	note.CreatedAt = m.now()
	m.notes = append(m.notes, *note)
	return nil
}

func (m *Memory) ListNotes(_ context.Context, chatID int64) ([]models.Note, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.chats[chatID]; !ok {
		return nil, errs.ErrUnknownChat
	}
	out := []models.Note{}
	for _, n := range m.notes {
		if n.ChatID != chatID {
			continue
		}
		if u, ok := m.users[n.OperatorID]; ok {
			name := u.FullName
			n.OperatorName = &name
		}
		out = append(out, n)
	}
	sort.SliceStable(out, func(i, j int) bool {
		return createdBefore(out[i].CreatedAt, out[i].ID, out[j].CreatedAt, out[j].ID)
	})
	return out, nil
}

func (m *Memory) AddRating(_ context.Context, r *models.QCRating) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.chats[r.ChatID]
	if !ok {
		return errs.ErrUnknownChat
	}
	if err := ratingGuard(c, r.OperatorID); err != nil {
		return err
	}
	m.lastRating++
	r.ID = m.lastRating
	r.CreatedAt = m.now()
	r.ClientName = c.ClientName
	m.ratings = append(m.ratings, *r)
	return nil
}

func (m *Memory) ListRatings(_ context.Context, operatorID *int64) ([]models.QCRating, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := []models.QCRating{}
	for _, r := range m.ratings {
		if operatorID != nil && r.OperatorID != *operatorID {
			continue
		}
		if u, ok := m.users[r.QCUserID]; ok {
			r.QCUserName = u.FullName
		}
		out = append(out, r)
	}
	// Newest first.
	sort.SliceStable(out, func(i, j int) bool {
		return createdBefore(out[j].CreatedAt, out[j].ID, out[i].CreatedAt, out[i].ID)
	})
	return out, nil
}

// bump never moves updated_at backwards, matching GREATEST in the store.
func bump(prev, now time.Time) time.Time {
	if now.Before(prev) {
		return prev
	}
	return now
}

// createdBefore orders log rows by (created_at, id), the same key the SQL
// queries use, so ties on the clock fall back to insertion order.
func createdBefore(at time.Time, id int64, otherAt time.Time, otherID int64) bool {
	if !at.Equal(otherAt) {
		return at.Before(otherAt)
	}
	return id < otherID
}
