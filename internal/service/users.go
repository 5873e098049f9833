package service

import (
	"context"
	"fmt"
	"log/slog"
	"net/mail"
	"slices"
	"strings"
	"unicode"

	"github.com/pavelanni/examhall/internal/auth"
	"github.com/pavelanni/examhall/internal/event"
	"github.com/pavelanni/examhall/internal/metrics"
	"github.com/pavelanni/examhall/internal/model"
	"github.com/pavelanni/examhall/internal/store"
)

// NewUser describes an account to create.
type NewUser struct {
	Username string         `json:"username"`
	Password string         `json:"password"`
	Name     string         `json:"name"`
	Email    string         `json:"email"`
	Role     model.UserRole `json:"role"`
}

// UserUpdate changes selected fields of an account. Nil fields are kept.
type UserUpdate struct {
	Name     *string         `json:"name"`
	Email    *string         `json:"email"`
	Password *string         `json:"password"`
	Role     *model.UserRole `json:"role"`
}

func validUsername(name string) error {
	if len(name) < 3 || len(name) > 32 {
		return model.Invalid("username must be 3 to 32 characters")
	}
	for _, r := range name {
		if !(unicode.IsLetter(r) || unicode.IsDigit(r) || r == '_' || r == '-' || r == '.') {
			return model.Invalid("username may contain only letters, digits, '.', '_' and '-'")
		}
	}
	return nil
}

func validEmail(email string) error {
	if email == "" {
		return nil
	}
	if _, err := mail.ParseAddress(email); err != nil {
		return model.Invalid("invalid email %q", email)
	}
	return nil
}

// Signup registers a student account.
func (s *Service) Signup(ctx context.Context, in NewUser) (model.User, error) {
	in.Role = model.UserRoleStudent
	return s.CreateUser(ctx, in)
}

// CreateUser adds an account. A taken username is a conflict.
func (s *Service) CreateUser(ctx context.Context, in NewUser) (model.User, error) {
	in.Username = strings.TrimSpace(in.Username)
	in.Name = strings.TrimSpace(in.Name)
	in.Email = strings.TrimSpace(in.Email)
	if in.Role == "" {
		in.Role = model.UserRoleStudent
	}
	if err := validUsername(in.Username); err != nil {
		return model.User{}, err
	}
	if in.Name == "" {
		return model.User{}, model.Invalid("name is required")
	}
	if !in.Role.Valid() {
		return model.User{}, model.Invalid("unknown role %q", in.Role)
	}
	if err := validEmail(in.Email); err != nil {
		return model.User{}, err
	}
	hash, err := auth.HashPassword(in.Password)
	if err != nil {
		return model.User{}, err
	}

	u := model.User{
		Username:     in.Username,
		PasswordHash: hash,
		Name:         in.Name,
		Role:         in.Role,
		Email:        in.Email,
		CreatedAt:    s.now().UTC(),
	}
	err = s.store.Update(ctx, store.Users, func(snap *store.Snapshot) error {
		if snap.User(u.Username) >= 0 {
			return fmt.Errorf("user %s: %w", u.Username, model.ErrConflict)
		}
		snap.Users = append(snap.Users, u)
		return nil
	})
	if err != nil {
		return model.User{}, err
	}
	slog.Info("created user", "username", u.Username, "role", u.Role)
	s.publish(ctx, event.UserCreated, u.Public())
	return u.Public(), nil
}

// Authenticate verifies credentials. Unknown users and wrong passwords are
// indistinguishable to the caller.
func (s *Service) Authenticate(_ context.Context, username, password string) (model.User, error) {
	var u model.User
	found := false
	_ = s.store.View(func(snap *store.Snapshot) error {
		if i := snap.User(strings.TrimSpace(username)); i >= 0 {
			u, found = snap.Users[i], true
		}
		return nil
	})
	if !found || !auth.CheckPassword(u.PasswordHash, password) {
		metrics.LoginAttempts.WithLabelValues("failure").Inc()
		return model.User{}, fmt.Errorf("invalid credentials: %w", model.ErrUnauthorized)
	}
	metrics.LoginAttempts.WithLabelValues("success").Inc()
	return u.Public(), nil
}

// ListUsers returns all accounts without password hashes.
func (s *Service) ListUsers() []model.User {
	var users []model.User
	_ = s.store.View(func(snap *store.Snapshot) error {
		users = make([]model.User, len(snap.Users))
		for i, u := range snap.Users {
			users[i] = u.Public()
		}
		return nil
	})
	return users
}

// GetUser returns one account without its password hash.
func (s *Service) GetUser(username string) (model.User, error) {
	var u model.User
	err := s.store.View(func(snap *store.Snapshot) error {
		i := snap.User(username)
		if i < 0 {
			return fmt.Errorf("user %s: %w", username, model.ErrNotFound)
		}
		u = snap.Users[i].Public()
		return nil
	})
	return u, err
}

// UpdateUser applies upd to an account. A role cannot change once results
// reference the user, and the reserved administrator stays an admin.
func (s *Service) UpdateUser(ctx context.Context, username string, upd UserUpdate) (model.User, error) {
	var hash string
	if upd.Password != nil {
		var err error
		if hash, err = auth.HashPassword(*upd.Password); err != nil {
			return model.User{}, err
		}
	}
	if upd.Email != nil {
		if err := validEmail(strings.TrimSpace(*upd.Email)); err != nil {
			return model.User{}, err
		}
	}

	var updated model.User
	err := s.store.Update(ctx, store.Users, func(snap *store.Snapshot) error {
		i := snap.User(username)
		if i < 0 {
			return fmt.Errorf("user %s: %w", username, model.ErrNotFound)
		}
		u := &snap.Users[i]
		if upd.Name != nil {
			name := strings.TrimSpace(*upd.Name)
			if name == "" {
				return model.Invalid("name is required")
			}
			u.Name = name
		}
		if upd.Email != nil {
			u.Email = strings.TrimSpace(*upd.Email)
		}
		if hash != "" {
			u.PasswordHash = hash
		}
		if upd.Role != nil && *upd.Role != u.Role {
			switch {
			case !upd.Role.Valid():
				return model.Invalid("unknown role %q", *upd.Role)
			case u.Username == model.ReservedAdmin:
				return fmt.Errorf("change role of %s: %w", u.Username, model.ErrForbidden)
			case snap.ResultsForStudent(u.Username) > 0:
				return model.Invalid("role of %s cannot change once results exist", u.Username)
			}
			u.Role = *upd.Role
		}
		updated = *u
		return nil
	})
	if err != nil {
		return model.User{}, err
	}
	slog.Info("updated user", "username", username)
	s.publish(ctx, event.UserUpdated, updated.Public())
	return updated.Public(), nil
}

// DeleteUser removes an account and reports how many results still reference
// it. Results are kept.
func (s *Service) DeleteUser(ctx context.Context, username string) (int, error) {
	if username == model.ReservedAdmin {
		return 0, fmt.Errorf("delete %s: %w", username, model.ErrForbidden)
	}
	affected := 0
	err := s.store.Update(ctx, store.Users, func(snap *store.Snapshot) error {
		i := snap.User(username)
		if i < 0 {
			return fmt.Errorf("user %s: %w", username, model.ErrNotFound)
		}
		affected = snap.ResultsForStudent(username)
		snap.Users = slices.Delete(snap.Users, i, i+1)
		return nil
	})
	if err != nil {
		return 0, err
	}
	slog.Info("deleted user", "username", username, "results_affected", affected)
	s.publish(ctx, event.UserDeleted, map[string]any{"username": username, "resultsAffected": affected})
	return affected, nil
}

// SeedAdmin creates the reserved administrator account if it does not exist.
// It reports whether an account was created.
func (s *Service) SeedAdmin(ctx context.Context, password string) (bool, error) {
	exists := false
	_ = s.store.View(func(snap *store.Snapshot) error {
		exists = snap.User(model.ReservedAdmin) >= 0
		return nil
	})
	if exists {
		return false, nil
	}
	if password == "" {
		return false, fmt.Errorf("no %s account exists and no admin password was given", model.ReservedAdmin)
	}
	_, err := s.CreateUser(ctx, NewUser{
		Username: model.ReservedAdmin,
		Password: password,
		Name:     "Administrator",
		Role:     model.UserRoleAdmin,
	})
	if err != nil {
		return false, fmt.Errorf("seed admin: %w", err)
	}
	return true, nil
}
