// Package users manages the studio team: who can log in and who may act as manager.
package users

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/crypto/bcrypt"

	"studiobook/internal/model"
	"studiobook/internal/store"
	"studiobook/internal/validation"
)

var (
	ErrInvalidCredentials = errors.New("invalid username or password")
	ErrForbidden          = errors.New("manager role required")
	ErrUsernameTaken      = errors.New("username already exists")
	ErrInvalidInput       = errors.New("invalid input")
)

// NewUser is a manager's request to add a team member.
type NewUser struct {
	Name     string     `json:"name" validate:"required,max=100"`
	Username string     `json:"username" validate:"required,min=3,max=32"`
	Password string     `json:"password" validate:"required,min=6,max=72"`
	Role     model.Role `json:"role" validate:"required,oneof=manager staff"`
}

type Service struct {
	store  store.UserStore
	cost   int
	now    func() time.Time
	logger zerolog.Logger
}

// NewService creates the directory. cost is the bcrypt cost; zero means bcrypt.DefaultCost.
func NewService(st store.UserStore, cost int, logger *zerolog.Logger) *Service {
	if cost <= 0 {
		cost = bcrypt.DefaultCost
	}
	return &Service{
		store:  st,
		cost:   cost,
		now:    time.Now,
		logger: logger.With().Str("component", "users").Logger(),
	}
}

// SeedAdmin creates the default manager when the directory is empty.
// It reports whether a user was created.
func (s *Service) SeedAdmin(ctx context.Context, username, password, name string) (bool, error) {
	existing, err := s.store.ListUsers(ctx)
	if err != nil {
		return false, fmt.Errorf("list users: %w", err)
	}
	if len(existing) > 0 {
		return false, nil
	}

	_, err = s.create(ctx, NewUser{Name: name, Username: username, Password: password, Role: model.RoleManager})
	if errors.Is(err, ErrUsernameTaken) {
		// Another process seeded first.
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("seed admin: %w", err)
	}

	s.logger.Info().Str("username", username).Msg("Default manager created")
	return true, nil
}

// Authenticate returns the user whose credentials match.
func (s *Service) Authenticate(ctx context.Context, username, password string) (model.User, error) {
	if username == "" || password == "" {
		return model.User{}, ErrInvalidCredentials
	}

	u, err := s.store.GetUserByUsername(ctx, username)
	if errors.Is(err, store.ErrNotFound) {
		return model.User{}, ErrInvalidCredentials
	}
	if err != nil {
		return model.User{}, fmt.Errorf("load user: %w", err)
	}

	err = bcrypt.CompareHashAndPassword([]byte(u.PasswordHash), []byte(password))
	if errors.Is(err, bcrypt.ErrMismatchedHashAndPassword) {
		return model.User{}, ErrInvalidCredentials
	}
	if err != nil {
		return model.User{}, fmt.Errorf("verify password: %w", err)
	}

	u.PasswordHash = ""
	return u, nil
}

// Create adds a team member on behalf of actor, who must be a manager.
func (s *Service) Create(ctx context.Context, actor model.User, nu NewUser) (model.User, error) {
	if !actor.IsManager() {
		return model.User{}, ErrForbidden
	}

	u, err := s.create(ctx, nu)
	if err != nil {
		return model.User{}, err
	}

	s.logger.Info().Str("username", u.Username).Str("role", string(u.Role)).Str("by", actor.Username).Msg("User created")
	return u, nil
}

func (s *Service) create(ctx context.Context, nu NewUser) (model.User, error) {
	nu.Name = strings.TrimSpace(nu.Name)
	nu.Username = strings.TrimSpace(nu.Username)
	if err := validation.Struct(&nu); err != nil {
		return model.User{}, fmt.Errorf("%w: %v", ErrInvalidInput, err)
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(nu.Password), s.cost)
	if err != nil {
		return model.User{}, fmt.Errorf("hash password: %w", err)
	}

	u, err := s.store.CreateUser(ctx, model.User{
		Username:     nu.Username,
		PasswordHash: string(hash),
		Role:         nu.Role,
		Name:         nu.Name,
		CreatedAt:    s.now(),
	})
	if errors.Is(err, store.ErrUsernameTaken) {
		return model.User{}, fmt.Errorf("%w: %s", ErrUsernameTaken, nu.Username)
	}
	if err != nil {
		return model.User{}, fmt.Errorf("create user: %w", err)
	}

	u.PasswordHash = ""
	return u, nil
}

// List returns the team without password hashes.
func (s *Service) List(ctx context.Context) ([]model.User, error) {
	users, err := s.store.ListUsers(ctx)
	if err != nil {
		return nil, fmt.Errorf("list users: %w", err)
	}
	for i := range users {
		users[i].PasswordHash = ""
	}
	return users, nil
}
