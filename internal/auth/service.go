package auth

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/ormea-systems/maildesk/internal/apperr"
	"github.com/ormea-systems/maildesk/internal/models"
	"github.com/ormea-systems/maildesk/internal/store"
)

// Service provides authentication and user management business logic.
type Service struct {
	users    store.UserStore
	sessions store.SessionStore
	policy   *Policy
	maxAge   time.Duration
}

// NewService creates a new auth service with the given stores and session max age in hours.
func NewService(users store.UserStore, sessions store.SessionStore, policy *Policy, maxAgeHours int) *Service {
	return &Service{
		users:    users,
		sessions: sessions,
		policy:   policy,
		maxAge:   time.Duration(maxAgeHours) * time.Hour,
	}
}

// Register creates a new user account. Only administrators may register
// users.
func (s *Service) Register(ctx context.Context, actor *models.User, email, name, password, role, serviceID string) (*models.User, error) {
	if !s.policy.IsAdmin(actor) {
		return nil, apperr.Forbiddenf("admin access required")
	}
	email = strings.TrimSpace(strings.ToLower(email))
	if email == "" {
		return nil, apperr.Validationf("email is required")
	}
	if strings.TrimSpace(name) == "" {
		return nil, apperr.Validationf("name is required")
	}
	if len(password) < 8 {
		return nil, apperr.Validationf("password must be at least 8 characters")
	}
	if role == "" {
		role = models.RoleUser
	}
	if !models.ValidRole(role) {
		return nil, apperr.Validationf("invalid role %q", role)
	}

	hash, err := HashPassword(password)
	if err != nil {
		return nil, fmt.Errorf("failed to hash password: %w", err)
	}

	user := &models.User{
		ID:           uuid.NewString(),
		Email:        email,
		Name:         strings.TrimSpace(name),
		PasswordHash: hash,
		Role:         role,
		ServiceID:    serviceID,
	}
	if err := s.users.CreateUser(ctx, user); err != nil {
		if errors.Is(err, store.ErrDuplicate) {
			return nil, apperr.Conflictf("a user with email %s already exists", email)
		}
		return nil, fmt.Errorf("failed to create user: %w", err)
	}
	return user, nil
}

// Login authenticates a user by email and password, returning a new session.
func (s *Service) Login(ctx context.Context, email, password string) (*models.Session, *models.User, error) {
	user, err := s.users.GetUserByEmail(ctx, strings.TrimSpace(strings.ToLower(email)))
	if err != nil {
		return nil, nil, apperr.Validationf("invalid email or password")
	}

	if err := CheckPassword(user.PasswordHash, password); err != nil {
		return nil, nil, apperr.Validationf("invalid email or password")
	}

	token, err := GenerateToken()
	if err != nil {
		return nil, nil, fmt.Errorf("failed to generate session token: %w", err)
	}

	session, err := s.sessions.CreateSession(ctx, token, user.ID, time.Now().Add(s.maxAge))
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create session: %w", err)
	}
	return session, user, nil
}

// Logout deletes the session identified by the given token.
func (s *Service) Logout(ctx context.Context, token string) error {
	return s.sessions.DeleteSession(ctx, token)
}

// ValidateSession checks if the given token corresponds to a valid session
// and returns the associated user.
func (s *Service) ValidateSession(ctx context.Context, token string) (*models.User, error) {
	session, err := s.sessions.GetSessionByToken(ctx, token)
	if err != nil {
		return nil, errors.New("invalid session")
	}

	user, err := s.users.GetUserByID(ctx, session.UserID)
	if err != nil {
		return nil, errors.New("user not found")
	}
	return user, nil
}

func (s *Service) ListUsers(ctx context.Context, actor *models.User) ([]models.User, error) {
	if !s.policy.IsAdmin(actor) {
		return nil, apperr.Forbiddenf("admin access required")
	}
	users, err := s.users.ListUsers(ctx)
	if err != nil {
		return nil, fmt.Errorf("listing users: %w", err)
	}
	return users, nil
}

func (s *Service) UpdateRole(ctx context.Context, actor *models.User, userID, role string) error {
	if !s.policy.IsAdmin(actor) {
		return apperr.Forbiddenf("admin access required")
	}
	if !models.ValidRole(role) {
		return apperr.Validationf("invalid role %q", role)
	}
	if err := s.users.UpdateUserRole(ctx, userID, role); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return apperr.NotFoundf("user %s not found", userID)
		}
		return fmt.Errorf("updating user role: %w", err)
	}
	return nil
}

func (s *Service) UpdatePassword(ctx context.Context, actor *models.User, userID, password string) error {
	target, err := s.users.GetUserByID(ctx, userID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return apperr.NotFoundf("user %s not found", userID)
		}
		return fmt.Errorf("loading user: %w", err)
	}
	if !s.policy.CanSetPassword(actor, target) {
		return apperr.Forbiddenf("not allowed to change this user's password")
	}
	if len(password) < 8 {
		return apperr.Validationf("password must be at least 8 characters")
	}

	hash, err := HashPassword(password)
	if err != nil {
		return fmt.Errorf("failed to hash password: %w", err)
	}
	if err := s.users.UpdateUserPassword(ctx, userID, hash); err != nil {
		return fmt.Errorf("updating password: %w", err)
	}
	return nil
}

func (s *Service) DeleteUser(ctx context.Context, actor *models.User, userID string) error {
	target, err := s.users.GetUserByID(ctx, userID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return apperr.NotFoundf("user %s not found", userID)
		}
		return fmt.Errorf("loading user: %w", err)
	}
	if !s.policy.CanDeleteUser(actor, target) {
		return apperr.Forbiddenf("not allowed to delete this user")
	}
	if err := s.users.DeleteUser(ctx, userID); err != nil {
		return fmt.Errorf("deleting user: %w", err)
	}
	return nil
}
