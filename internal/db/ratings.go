package db

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/supportdesk/backend/internal/models"
)

func (s *Store) AddRating(ctx context.Context, r *models.QCRating) error {
	return s.WithTx(ctx, func(tx pgx.Tx) error {
		// closed is terminal and the assignee is frozen with it, so a shared
		// lock is enough to keep the check valid until the insert commits.
		c, err := getChat(ctx, tx, r.ChatID, "FOR SHARE")
		if err != nil {
			return err
		}
		if err := ratingGuard(c, r.OperatorID); err != nil {
			return err
		}
		err = tx.QueryRow(ctx, `
			INSERT INTO qc_ratings (chat_id, operator_id, qc_user_id, score, comment)
			VALUES ($1, $2, $3, $4, $5)
			RETURNING id, created_at
		`, r.ChatID, r.OperatorID, r.QCUserID, r.Score, r.Comment).Scan(&r.ID, &r.CreatedAt)
		if err != nil {
			return fmt.Errorf("insert rating: %w", err)
		}
		r.ClientName = c.ClientName
		return nil
	})
}

func (s *Store) ListRatings(ctx context.Context, operatorID *int64) ([]models.QCRating, error) {
	query := `SELECT r.id, r.chat_id, r.operator_id, r.qc_user_id, r.score, r.comment, r.created_at,
			c.client_name, COALESCE(u.full_name, '')
		FROM qc_ratings r
		JOIN chats c ON c.id = r.chat_id
		LEFT JOIN users u ON u.id = r.qc_user_id`
	var args []any
	if operatorID != nil {
		args = append(args, *operatorID)
		query += " WHERE r.operator_id = $1"
	}
	query += " ORDER BY r.created_at DESC, r.id DESC"

	rows, err := s.Pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []models.QCRating{}
	for rows.Next() {
		var r models.QCRating
		if err := rows.Scan(&r.ID, &r.ChatID, &r.OperatorID, &r.QCUserID, &r.Score, &r.Comment, &r.CreatedAt, &r.ClientName, &r.QCUserName); err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}
