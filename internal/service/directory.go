package service

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/rs/zerolog"
	"golang.org/x/crypto/bcrypt"

	"github.com/supportdesk/backend/internal/authz"
	"github.com/supportdesk/backend/internal/db"
	"github.com/supportdesk/backend/internal/errs"
	"github.com/supportdesk/backend/internal/models"
)

const (
	minPasswordLen = 6
	// bcrypt rejects longer inputs.
	maxPasswordBytes = 72
)

type DirectoryService struct {
	Repo   db.Repository
	Logger zerolog.Logger
}

type NewUser struct {
	Username   string
	Password   string
	FullName   string
	Role       models.Role
	Department string
}

type UserUpdate struct {
	Username   *string
	FullName   *string
	Department *string
	IsActive   *bool
	Password   *string
}

func (s *DirectoryService) List(ctx context.Context, p authz.Principal) ([]models.User, error) {
	if err := authz.Require(p, authz.UsersManage); err != nil {
		return nil, err
	}
	return s.Repo.ListUsers(ctx)
}

func (s *DirectoryService) Create(ctx context.Context, p authz.Principal, in NewUser) (models.User, error) {
	if err := authz.Require(p, authz.UsersManage); err != nil {
		return models.User{}, err
	}
	return s.Provision(ctx, in)
}

// Provision creates an account without a capability check. It backs the
// admin API and the "user create" command used to bootstrap the first admin.
func (s *DirectoryService) Provision(ctx context.Context, in NewUser) (models.User, error) {
	u := models.User{
		Username:   strings.TrimSpace(in.Username),
		FullName:   strings.TrimSpace(in.FullName),
		Role:       in.Role,
		Status:     models.UserOffline,
		Department: strings.TrimSpace(in.Department),
		IsActive:   true,
	}
	switch {
	case u.Username == "":
		return models.User{}, errs.Empty("username")
	case u.FullName == "":
		return models.User{}, errs.Empty("full_name")
	case !u.Role.Valid():
		return models.User{}, errs.Invalid("role", fmt.Sprintf("unknown role %q", in.Role))
	}
	hash, err := hashPassword(in.Password)
	if err != nil {
		return models.User{}, err
	}
	u.PasswordHash = hash

	if err := s.Repo.CreateUser(ctx, &u); err != nil {
		return models.User{}, err
	}
	s.Logger.Info().Int64("user_id", u.ID).Str("role", string(u.Role)).Msg("user created")
	return u, nil
}

// EnsureAdmin creates an admin account unless the username is already taken.
// serve uses it to seed the in-memory repository, which "user create" cannot
// reach. created is false when the account already existed.
func (s *DirectoryService) EnsureAdmin(ctx context.Context, username, password string) (u models.User, created bool, err error) {
	username = strings.TrimSpace(username)
	existing, err := s.Repo.GetUserByUsername(ctx, username)
	if err == nil {
		return existing, false, nil
	}
	if !errors.Is(err, errs.ErrUnknownUser) {
		return models.User{}, false, err
	}
	u, err = s.Provision(ctx, NewUser{Username: username, Password: password, FullName: "Administrator", Role: models.RoleAdmin})
	if err != nil {
		return models.User{}, false, err
	}
	return u, true, nil
}

func (s *DirectoryService) Update(ctx context.Context, p authz.Principal, id int64, in UserUpdate) (models.User, error) {
	if err := authz.Require(p, authz.UsersManage); err != nil {
		return models.User{}, err
	}
	var patch models.UserPatch
	if in.Username != nil {
		v := strings.TrimSpace(*in.Username)
		if v == "" {
			return models.User{}, errs.Empty("username")
		}
		patch.Username = &v
	}
	if in.FullName != nil {
		v := strings.TrimSpace(*in.FullName)
		if v == "" {
			return models.User{}, errs.Empty("full_name")
		}
		patch.FullName = &v
	}
	if in.Department != nil {
		v := strings.TrimSpace(*in.Department)
		patch.Department = &v
	}
	patch.IsActive = in.IsActive
	if in.Password != nil && *in.Password != "" {
		hash, err := hashPassword(*in.Password)
		if err != nil {
			return models.User{}, err
		}
		patch.PasswordHash = &hash
	}

	u, err := s.Repo.UpdateUser(ctx, id, patch)
	if err != nil {
		return models.User{}, err
	}
	s.Logger.Info().Int64("user_id", u.ID).Int64("by", p.UserID).Msg("user updated")
	return u, nil
}

func hashPassword(password string) (string, error) {
	if password == "" {
		return "", errs.Empty("password")
	}
	if len(password) < minPasswordLen {
		return "", errs.Invalid("password", fmt.Sprintf("must be at least %d characters", minPasswordLen))
	}
	if len(password) > maxPasswordBytes {
		return "", errs.Invalid("password", fmt.Sprintf("must be at most %d bytes", maxPasswordBytes))
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return "", fmt.Errorf("hash password: %w", err)
	}
	return string(hash), nil
}
