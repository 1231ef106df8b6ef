package service

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/crypto/bcrypt"

	"github.com/supportdesk/backend/internal/authz"
	"github.com/supportdesk/backend/internal/db"
	"github.com/supportdesk/backend/internal/errs"
	"github.com/supportdesk/backend/internal/models"
	"github.com/supportdesk/backend/internal/ratelimit"
)

const tokenBytes = 32

type SessionService struct {
	Repo    db.Repository
	Limiter ratelimit.Limiter
	TTL     time.Duration
	Now     db.Clock
	Logger  zerolog.Logger
}

// Login checks credentials and issues a new session token. clientKey
// identifies the caller for throttling, usually the remote IP.
func (s *SessionService) Login(ctx context.Context, username, password, clientKey string) (string, models.User, error) {
	username = strings.TrimSpace(username)
	if username == "" {
		return "", models.User{}, errs.Empty("username")
	}
	if password == "" {
		return "", models.User{}, errs.Empty("password")
	}

	if s.Limiter != nil {
		ok, err := s.Limiter.Allow(ctx, clientKey)
		switch {
		case err != nil:
			s.Logger.Warn().Err(err).Msg("login limiter unavailable, allowing attempt")
		case !ok:
			s.Logger.Info().Str("client", clientKey).Msg("login throttled")
			return "", models.User{}, errs.ErrRateLimited
		}
	}

	u, err := s.Repo.GetUserByUsername(ctx, username)
	if err != nil {
		if errors.Is(err, errs.ErrUnknownUser) {
			return "", models.User{}, errs.ErrInvalidCredentials
		}
		return "", models.User{}, err
	}
	if !u.IsActive {
		return "", models.User{}, errs.ErrInvalidCredentials
	}
	if err := bcrypt.CompareHashAndPassword([]byte(u.PasswordHash), []byte(password)); err != nil {
		return "", models.User{}, errs.ErrInvalidCredentials
	}

	token, err := newToken()
	if err != nil {
		return "", models.User{}, err
	}
	now := s.Now()
	if err := s.Repo.CreateSession(ctx, models.Session{
		Token:     token,
		UserID:    u.ID,
		CreatedAt: now,
		ExpiresAt: now.Add(s.TTL),
	}); err != nil {
		return "", models.User{}, err
	}
	s.Logger.Info().Int64("user_id", u.ID).Str("role", string(u.Role)).Msg("login")
	return token, u, nil
}

// Authenticate resolves token to the caller. Unknown tokens and inactive
// accounts are Unauthenticated, stale tokens ExpiredSession.
func (s *SessionService) Authenticate(ctx context.Context, token string) (authz.Principal, models.User, error) {
	if token == "" {
		return authz.Guest, models.User{}, errs.ErrUnauthenticated
	}
	sess, err := s.Repo.GetSession(ctx, token)
	if err != nil {
		return authz.Guest, models.User{}, err
	}
	if sess.Expired(s.Now()) {
		return authz.Guest, models.User{}, errs.ErrExpiredSession
	}
	u, err := s.Repo.GetUser(ctx, sess.UserID)
	if err != nil {
		if errors.Is(err, errs.ErrUnknownUser) {
			return authz.Guest, models.User{}, errs.ErrUnauthenticated
		}
		return authz.Guest, models.User{}, err
	}
	if !u.IsActive {
		return authz.Guest, models.User{}, errs.ErrUnauthenticated
	}
	return authz.Principal{UserID: u.ID, Role: u.Role}, u, nil
}

// Verify never fails: any problem with the token reads as not valid.
func (s *SessionService) Verify(ctx context.Context, token string) (models.User, bool) {
	_, u, err := s.Authenticate(ctx, token)
	if err != nil {
		if errs.KindOf(err) == errs.KindInternal {
			s.Logger.Warn().Err(err).Msg("verify failed")
		}
		return models.User{}, false
	}
	return u, true
}

func (s *SessionService) Logout(ctx context.Context, token string) error {
	if token == "" {
		return nil
	}
	return s.Repo.DeleteSession(ctx, token)
}

func (s *SessionService) UpdateStatus(ctx context.Context, token string, status models.UserStatus) (models.User, error) {
	p, _, err := s.Authenticate(ctx, token)
	if err != nil {
		return models.User{}, err
	}
	if !status.Valid() {
		return models.User{}, errs.Invalid("status", fmt.Sprintf("unknown status %q", status))
	}
	u, err := s.Repo.SetUserStatus(ctx, p.UserID, status)
	if err != nil {
		return models.User{}, err
	}
	s.Logger.Info().Int64("user_id", u.ID).Str("status", string(status)).Msg("status updated")
	return u, nil
}

// Staff lists active operators, QC reviewers and admins by name.
func (s *SessionService) Staff(ctx context.Context, p authz.Principal) ([]models.User, error) {
	if err := authz.Require(p, authz.StaffList); err != nil {
		return nil, err
	}
	return s.Repo.ListStaff(ctx)
}

func newToken() (string, error) {
	b := make([]byte, tokenBytes)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("generate token: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(b), nil
}
