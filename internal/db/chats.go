package db

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/supportdesk/backend/internal/errs"
	"github.com/supportdesk/backend/internal/models"
)

const chatColumns = `id, client_name, client_email, status, assigned_operator_id, created_at, updated_at, closed_at`

func scanChat(row pgx.Row) (models.Chat, error) {
	var c models.Chat
	err := row.Scan(&c.ID, &c.ClientName, &c.ClientEmail, &c.Status, &c.AssignedOperatorID, &c.CreatedAt, &c.UpdatedAt, &c.ClosedAt)
	return c, err
}

type querier interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

func getChat(ctx context.Context, q querier, id int64, lock string) (models.Chat, error) {
	c, err := scanChat(q.QueryRow(ctx, `SELECT `+chatColumns+` FROM chats WHERE id = $1 `+lock, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return models.Chat{}, errs.ErrUnknownChat
		}
		return models.Chat{}, err
	}
	return c, nil
}

// explainMiss reloads the chat after a conditional UPDATE matched no row and
// asks guard why. A nil guard result means the row changed back under us,
// which the state machine does not allow, so it is reported as a conflict.
func explainMiss(ctx context.Context, tx pgx.Tx, id int64, guard func(models.Chat) error) error {
	c, err := getChat(ctx, tx, id, "")
	if err != nil {
		return err
	}
	if err := guard(c); err != nil {
		return err
	}
	return fmt.Errorf("chat %d changed concurrently: %w", id, errs.ErrAlreadyClaimed)
}

func (s *Store) chatExists(ctx context.Context, q querier, id int64) error {
	var ok bool
	if err := q.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM chats WHERE id = $1)`, id).Scan(&ok); err != nil {
		return err
	}
	if !ok {
		return errs.ErrUnknownChat
	}
	return nil
}

func (s *Store) CreateChat(ctx context.Context, chat *models.Chat, welcome string) error {
	return s.WithTx(ctx, func(tx pgx.Tx) error {
		row := tx.QueryRow(ctx, `
			INSERT INTO chats (client_name, client_email, status)
			VALUES ($1, $2, 'waiting')
			RETURNING `+chatColumns, chat.ClientName, chat.ClientEmail)
		c, err := scanChat(row)
		if err != nil {
			return fmt.Errorf("insert chat: %w", err)
		}
		*chat = c
		if welcome == "" {
			return nil
		}
		_, err = tx.Exec(ctx, `
			INSERT INTO messages (chat_id, sender_type, message_text) VALUES ($1, 'system', $2)
		`, c.ID, welcome)
		if err != nil {
			return fmt.Errorf("insert welcome message: %w", err)
		}
		return nil
	})
}

func (s *Store) GetChat(ctx context.Context, id int64) (models.Chat, error) {
	return getChat(ctx, s.Pool, id, "")
}

func (s *Store) ListChats(ctx context.Context, status models.ChatStatus) ([]models.ChatSummary, error) {
	query := `SELECT c.id, c.client_name, c.client_email, c.status, c.assigned_operator_id,
			c.created_at, c.updated_at, c.closed_at,
			u.full_name,
			(SELECT COUNT(*) FROM messages WHERE chat_id = c.id AND is_read = false AND sender_type = 'client'),
			lm.message_text, lm.created_at
		FROM chats c
		LEFT JOIN users u ON u.id = c.assigned_operator_id
		LEFT JOIN LATERAL (
			SELECT message_text, created_at FROM messages
			WHERE chat_id = c.id ORDER BY created_at DESC, id DESC LIMIT 1
		) lm ON true`
	var args []any
	if status != "" {
		args = append(args, status)
		query += " WHERE c.status = $1"
	}
	query += " ORDER BY c.updated_at DESC, c.id DESC"

	rows, err := s.Pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []models.ChatSummary{}
	for rows.Next() {
		var cs models.ChatSummary
		if err := rows.Scan(
			&cs.ID, &cs.ClientName, &cs.ClientEmail, &cs.Status, &cs.AssignedOperatorID,
			&cs.CreatedAt, &cs.UpdatedAt, &cs.ClosedAt,
			&cs.AssignedOperatorName, &cs.UnreadCount, &cs.LastMessage, &cs.LastMessageTime,
		); err != nil {
			return nil, err
		}
		out = append(out, cs)
	}
	return out, rows.Err()
}

func (s *Store) ListMessages(ctx context.Context, chatID int64) ([]models.Message, error) {
	if err := s.chatExists(ctx, s.Pool, chatID); err != nil {
		return nil, err
	}
	rows, err := s.Pool.Query(ctx, `
		SELECT m.id, m.chat_id, m.sender_type, m.sender_id, u.full_name, m.message_text, m.is_read, m.created_at
		FROM messages m
		LEFT JOIN users u ON u.id = m.sender_id
		WHERE m.chat_id = $1
		ORDER BY m.created_at ASC, m.id ASC
	`, chatID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []models.Message{}
	for rows.Next() {
		var m models.Message
		if err := rows.Scan(&m.ID, &m.ChatID, &m.SenderType, &m.SenderID, &m.SenderName, &m.Text, &m.IsRead, &m.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, m)
	}
	return out, rows.Err()
}

func (s *Store) AppendMessage(ctx context.Context, msg *models.Message) (models.Chat, bool, error) {
	var (
		chat    models.Chat
		claimed bool
	)
	err := s.WithTx(ctx, func(tx pgx.Tx) error {
		var holder *int64
		if msg.SenderType == models.SenderOperator {
			holder = msg.SenderID
			// Claim: only matches while the chat is still waiting. A
			// concurrent claimant blocks on the row lock and then sees
			// status = 'active', so its UPDATE matches nothing.
			tag, err := tx.Exec(ctx, `
				UPDATE chats SET status = 'active', assigned_operator_id = $2, updated_at = GREATEST(updated_at, clock_timestamp())
				WHERE id = $1 AND status = 'waiting'
			`, msg.ChatID, msg.SenderID)
			if err != nil {
				return fmt.Errorf("claim chat: %w", err)
			}
			claimed = tag.RowsAffected() == 1
		}

		// Holds the row lock until commit, so a close cannot land between
		// this check and the insert below.
		c, err := scanChat(tx.QueryRow(ctx, `
			UPDATE chats SET updated_at = GREATEST(updated_at, clock_timestamp())
			WHERE id = $1 AND status <> 'closed' AND ($2::bigint IS NULL OR assigned_operator_id = $2)
			RETURNING `+chatColumns, msg.ChatID, holder))
		if errors.Is(err, pgx.ErrNoRows) {
			return explainMiss(ctx, tx, msg.ChatID, func(c models.Chat) error { return sendGuard(c, msg) })
		}
		if err != nil {
			return fmt.Errorf("touch chat: %w", err)
		}

		err = tx.QueryRow(ctx, `
			INSERT INTO messages (chat_id, sender_type, sender_id, message_text)
			VALUES ($1, $2, $3, $4)
			RETURNING id, is_read, created_at
		`, msg.ChatID, msg.SenderType, msg.SenderID, msg.Text).Scan(&msg.ID, &msg.IsRead, &msg.CreatedAt)
		if err != nil {
			return fmt.Errorf("insert message: %w", err)
		}
		chat = c
		return nil
	})
	if err != nil {
		return models.Chat{}, false, err
	}
	return chat, claimed, nil
}

func (s *Store) MarkRead(ctx context.Context, chatID int64) (int64, error) {
	tag, err := s.Pool.Exec(ctx, `
		UPDATE messages SET is_read = true
		WHERE chat_id = $1 AND sender_type = 'client' AND is_read = false
	`, chatID)
	if err != nil {
		return 0, err
	}
	if tag.RowsAffected() == 0 {
		if err := s.chatExists(ctx, s.Pool, chatID); err != nil {
			return 0, err
		}
	}
	return tag.RowsAffected(), nil
}

func (s *Store) Assign(ctx context.Context, chatID int64, to, holder *int64) (models.Chat, error) {
	var chat models.Chat
	err := s.WithTx(ctx, func(tx pgx.Tx) error {
		c, err := scanChat(tx.QueryRow(ctx, `
			UPDATE chats
			SET assigned_operator_id = $2,
				status = CASE WHEN $2::bigint IS NULL THEN status ELSE 'active' END,
				updated_at = GREATEST(updated_at, clock_timestamp())
			WHERE id = $1
				AND status <> 'closed'
				AND ($2::bigint IS NOT NULL OR status = 'waiting')
				AND ($3::bigint IS NULL OR assigned_operator_id IS NULL OR assigned_operator_id = $3)
			RETURNING `+chatColumns, chatID, to, holder))
		if errors.Is(err, pgx.ErrNoRows) {
			return explainMiss(ctx, tx, chatID, func(c models.Chat) error { return assignGuard(c, to, holder) })
		}
		if err != nil {
			return fmt.Errorf("assign chat: %w", err)
		}
		chat = c
		return nil
	})
	return chat, err
}

func (s *Store) CloseChat(ctx context.Context, chatID int64, holder *int64, auditText string) (models.Chat, error) {
	var chat models.Chat
	err := s.WithTx(ctx, func(tx pgx.Tx) error {
		c, err := scanChat(tx.QueryRow(ctx, `
			UPDATE chats SET status = 'closed', closed_at = clock_timestamp(), updated_at = GREATEST(updated_at, clock_timestamp())
			WHERE id = $1
				AND status <> 'closed'
				AND ($2::bigint IS NULL OR assigned_operator_id IS NULL OR assigned_operator_id = $2)
			RETURNING `+chatColumns, chatID, holder))
		if errors.Is(err, pgx.ErrNoRows) {
			return explainMiss(ctx, tx, chatID, func(c models.Chat) error { return closeGuard(c, holder) })
		}
		if err != nil {
			return fmt.Errorf("close chat: %w", err)
		}
		if _, err := tx.Exec(ctx, `
			INSERT INTO messages (chat_id, sender_type, message_text) VALUES ($1, 'system', $2)
		`, chatID, auditText); err != nil {
			return fmt.Errorf("insert close audit message: %w", err)
		}
		chat = c
		return nil
	})
	return chat, err
}

func (s *Store) AddNote(ctx context.Context, note *models.Note) error {
	return s.WithTx(ctx, func(tx pgx.Tx) error {
		if err := s.chatExists(ctx, tx, note.ChatID); err != nil {
			return err
		}
		return tx.QueryRow(ctx, `
			INSERT INTO notes (chat_id, operator_id, note_text) VALUES ($1, $2, $3)
			RETURNING id, created_at
		`, note.ChatID, note.OperatorID, note.Text).Scan(&note.ID, &note.CreatedAt)
	})
}

func (s *Store) ListNotes(ctx context.Context, chatID int64) ([]models.Note, error) {
	if err := s.chatExists(ctx, s.Pool, chatID); err != nil {
		return nil, err
	}
	rows, err := s.Pool.Query(ctx, `
		SELECT n.id, n.chat_id, n.operator_id, u.full_name, n.note_text, n.created_at
		FROM notes n
		LEFT JOIN users u ON u.id = n.operator_id
		WHERE n.chat_id = $1
		ORDER BY n.created_at ASC, n.id ASC
	`, chatID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []models.Note{}
	for rows.Next() {
		var n models.Note
		if err := rows.Scan(&n.ID, &n.ChatID, &n.OperatorID, &n.OperatorName, &n.Text, &n.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, n)
	}
	return out, rows.Err()
}
