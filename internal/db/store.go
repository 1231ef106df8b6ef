package db

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/supportdesk/backend/internal/errs"
	"github.com/supportdesk/backend/internal/models"
)

const uniqueViolation = "23505"

type Store struct {
	Pool *pgxpool.Pool
}

var _ Repository = (*Store)(nil)

func New(ctx context.Context, databaseURL string) (*Store, error) {
	cfg, err := pgxpool.ParseConfig(databaseURL)
	if err != nil {
		return nil, err
	}
	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, err
	}
	return &Store{Pool: pool}, nil
}

func (s *Store) Close() {
	s.Pool.Close()
}

func (s *Store) Ping(ctx context.Context) error {
	return s.Pool.Ping(ctx)
}

func (s *Store) WithTx(ctx context.Context, fn func(tx pgx.Tx) error) error {
	tx, err := s.Pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return err
	}
	defer func() {
		_ = tx.Rollback(ctx)
	}()
	if err := fn(tx); err != nil {
		return err
	}
	return tx.Commit(ctx)
}

const userColumns = `id, username, password_hash, full_name, role, status, department, is_active, created_at, updated_at`

func scanUser(row pgx.Row) (models.User, error) {
	var u models.User
	err := row.Scan(&u.ID, &u.Username, &u.PasswordHash, &u.FullName, &u.Role, &u.Status, &u.Department, &u.IsActive, &u.CreatedAt, &u.UpdatedAt)
	return u, err
}

func collectUsers(rows pgx.Rows) ([]models.User, error) {
	defer rows.Close()
	out := []models.User{}
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, u)
	}
	return out, rows.Err()
}

func userErr(err error) error {
	if errors.Is(err, pgx.ErrNoRows) {
		return errs.ErrUnknownUser
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
		return errs.ErrDuplicateUsername
	}
	return err
}

func (s *Store) CreateUser(ctx context.Context, u *models.User) error {
	row := s.Pool.QueryRow(ctx, `
		INSERT INTO users (username, password_hash, full_name, role, status, department, is_active)
		VALUES ($1,$2,$3,$4,$5,$6,$7)
		RETURNING id, created_at, updated_at
	`, u.Username, u.PasswordHash, u.FullName, u.Role, u.Status, u.Department, u.IsActive)
	if err := row.Scan(&u.ID, &u.CreatedAt, &u.UpdatedAt); err != nil {
		return fmt.Errorf("insert user: %w", userErr(err))
	}
	return nil
}

func (s *Store) GetUser(ctx context.Context, id int64) (models.User, error) {
	u, err := scanUser(s.Pool.QueryRow(ctx, `SELECT `+userColumns+` FROM users WHERE id = $1`, id))
	if err != nil {
		return models.User{}, userErr(err)
	}
	return u, nil
}

func (s *Store) GetUserByUsername(ctx context.Context, username string) (models.User, error) {
	u, err := scanUser(s.Pool.QueryRow(ctx, `SELECT `+userColumns+` FROM users WHERE username = $1`, username))
	if err != nil {
		return models.User{}, userErr(err)
	}
	return u, nil
}

func (s *Store) ListUsers(ctx context.Context) ([]models.User, error) {
	rows, err := s.Pool.Query(ctx, `SELECT `+userColumns+` FROM users ORDER BY created_at DESC, id DESC`)
	if err != nil {
		return nil, err
	}
	return collectUsers(rows)
}

func (s *Store) ListStaff(ctx context.Context) ([]models.User, error) {
	rows, err := s.Pool.Query(ctx, `
		SELECT `+userColumns+` FROM users
		WHERE is_active = true AND role IN ('operator', 'okk', 'admin')
		ORDER BY full_name ASC, id ASC
	`)
	if err != nil {
		return nil, err
	}
	return collectUsers(rows)
}

func (s *Store) UpdateUser(ctx context.Context, id int64, patch models.UserPatch) (models.User, error) {
	var (
		sets []string
		args []any
	)
	add := func(column string, value any) {
		args = append(args, value)
		sets = append(sets, fmt.Sprintf("%s = $%d", column, len(args)))
	}
	if patch.Username != nil {
		add("username", *patch.Username)
	}
	if patch.FullName != nil {
		add("full_name", *patch.FullName)
	}
	if patch.Department != nil {
		add("department", *patch.Department)
	}
	if patch.IsActive != nil {
		add("is_active", *patch.IsActive)
	}
	if patch.PasswordHash != nil {
		add("password_hash", *patch.PasswordHash)
	}
	sets = append(sets, "updated_at = now()")
	args = append(args, id)

	query := "UPDATE users SET " + strings.Join(sets, ", ") +
		fmt.Sprintf(" WHERE id = $%d RETURNING ", len(args)) + userColumns
	u, err := scanUser(s.Pool.QueryRow(ctx, query, args...))
	if err != nil {
		return models.User{}, fmt.Errorf("update user %d: %w", id, userErr(err))
	}
	return u, nil
}

func (s *Store) SetUserStatus(ctx context.Context, id int64, status models.UserStatus) (models.User, error) {
	u, err := scanUser(s.Pool.QueryRow(ctx, `
		UPDATE users SET status = $1, updated_at = now() WHERE id = $2 RETURNING `+userColumns, status, id))
	if err != nil {
		return models.User{}, userErr(err)
	}
	return u, nil
}

func (s *Store) CreateSession(ctx context.Context, sess models.Session) error {
	_, err := s.Pool.Exec(ctx, `
		INSERT INTO sessions (token, user_id, created_at, expires_at) VALUES ($1,$2,$3,$4)
	`, sess.Token, sess.UserID, sess.CreatedAt, sess.ExpiresAt)
	if err != nil {
		return fmt.Errorf("insert session: %w", err)
	}
	return nil
}

func (s *Store) GetSession(ctx context.Context, token string) (models.Session, error) {
	var sess models.Session
	err := s.Pool.QueryRow(ctx, `
		SELECT token, user_id, created_at, expires_at FROM sessions WHERE token = $1
	`, token).Scan(&sess.Token, &sess.UserID, &sess.CreatedAt, &sess.ExpiresAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return models.Session{}, errs.ErrUnauthenticated
		}
		return models.Session{}, err
	}
	return sess, nil
}

func (s *Store) DeleteSession(ctx context.Context, token string) error {
	_, err := s.Pool.Exec(ctx, `DELETE FROM sessions WHERE token = $1`, token)
	return err
}
