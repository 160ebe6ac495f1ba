// Package access resolves callers to users and enforces the admin role.
package access

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/rs/zerolog"

	"vehiql/internal/model"
)

// UserRepository is the user storage the access service needs.
type UserRepository interface {
	EnsureUser(ctx context.Context, u *model.User) (*model.User, error)
	ListUsers(ctx context.Context) ([]model.User, error)
	UpdateUserRole(ctx context.Context, id string, role model.Role) (*model.User, error)
}

// Service implements user resolution and role management.
type Service struct {
	users  UserRepository
	admins map[string]bool
	logger zerolog.Logger
}

// NewService creates a new access control service. bootstrapAdmins lists
// external ids or emails that are always granted the ADMIN role.
func NewService(users UserRepository, bootstrapAdmins []string, logger zerolog.Logger) *Service {
	admins := make(map[string]bool, len(bootstrapAdmins))
	for _, a := range bootstrapAdmins {
		if a = strings.ToLower(strings.TrimSpace(a)); a != "" {
			admins[a] = true
		}
	}
	return &Service{
		users:  users,
		admins: admins,
		logger: logger.With().Str("component", "access").Logger(),
	}
}

// Resolve upserts the user behind an identity-provider subject.
func (s *Service) Resolve(ctx context.Context, externalID, email, name string) (*model.User, error) {
	if externalID == "" {
		return nil, &AccessDeniedError{Reason: "unauthorized"}
	}

	bootstrap := s.admins[strings.ToLower(externalID)] || (email != "" && s.admins[strings.ToLower(email)])
	role := model.RoleUser
	if bootstrap {
		role = model.RoleAdmin
	}

	u, err := s.users.EnsureUser(ctx, &model.User{ExternalID: externalID, Email: email, Name: name, Role: role})
	if err != nil {
		return nil, fmt.Errorf("resolve user: %w", err)
	}

	if bootstrap && !u.IsAdmin() {
		u, err = s.users.UpdateUserRole(ctx, u.ID, model.RoleAdmin)
		if err != nil {
			return nil, fmt.Errorf("promote bootstrap admin: %w", err)
		}
		s.logger.Info().Str("user_id", u.ID).Msg("bootstrap admin promoted")
	}
	return u, nil
}

// RequireAdmin fails with AccessDeniedError unless u is an admin.
func (s *Service) RequireAdmin(u *model.User) error {
	if !u.IsAdmin() {
		return &AccessDeniedError{Reason: "admin access required"}
	}
	return nil
}

// ListUsers returns all users to an admin.
func (s *Service) ListUsers(ctx context.Context, actor *model.User) ([]model.User, error) {
	if err := s.RequireAdmin(actor); err != nil {
		return nil, err
	}
	return s.users.ListUsers(ctx)
}

// ChangeRole sets the role of a user.
func (s *Service) ChangeRole(ctx context.Context, actor *model.User, userID, role string) (*model.User, error) {
	if err := s.RequireAdmin(actor); err != nil {
		return nil, err
	}
	r, err := model.ParseRole(role)
	if err != nil {
		return nil, err
	}

	u, err := s.users.UpdateUserRole(ctx, userID, r)
	if err != nil {
		return nil, err
	}

	s.logger.Info().
		Str("user_id", userID).
		Str("role", string(r)).
		Str("changed_by", actor.ID).
		Msg("user role changed")
	return u, nil
}

// AccessDeniedError is returned when user access is denied.
type AccessDeniedError struct {
	Reason string
}

func (e *AccessDeniedError) Error() string {
	return e.Reason
}

// IsAccessDenied checks if error is access denied.
func IsAccessDenied(err error) bool {
	var denied *AccessDeniedError
	return errors.As(err, &denied)
}
