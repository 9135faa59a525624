// Package identity resolves requester ids to display names and roles, and
// authenticates credentials against the file-backed user store.
package identity

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
)

// Role is the permission class attached to a user account.
type Role string

const (
	RoleStudent    Role = "STUDENT"
	RoleAssistant  Role = "ASSISTANT"
	RoleInstructor Role = "INSTRUCTOR"
)

// CanModerate reports whether the role may approve, reject, or cancel other
// users' reservations and administer the room catalog.
func (r Role) CanModerate() bool {
	return r == RoleAssistant || r == RoleInstructor
}

var (
	// ErrNotFound is returned when the user id is unknown.
	ErrNotFound = errors.New("identity: user not found")
	// ErrDuplicate is returned when registering an id that already exists.
	ErrDuplicate = errors.New("identity: user already exists")
	// ErrInvalidCredentials is returned when a password check fails.
	ErrInvalidCredentials = errors.New("identity: invalid credentials")
)

// User is a resolved account.
type User struct {
	ID          string
	DisplayName string
	Role        Role
}

// Directory is the lookup interface the reservation workflow consumes.
type Directory interface {
	Lookup(ctx context.Context, id string) (User, error)
}

// Service is the file-backed identity store. Credentials are argon2id
// hashes; the store file holds one user per line:
// id,passwordHash,displayName,role.
type Service struct {
	mu    sync.RWMutex
	path  string
	users map[string]storedUser
}

type storedUser struct {
	user User
	hash string
}

// Open loads the user store from dir, creating an empty store when absent.
func Open(dir string) (*Service, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("identity: create dir: %w", err)
	}
	s := &Service{
		path:  filepath.Join(dir, "users.txt"),
		users: make(map[string]storedUser),
	}
	if err := s.load(); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *Service) load() error {
	file, err := os.Open(s.path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("identity: open user store: %w", err)
	}
	defer file.Close()

	scanner := bufio.NewScanner(file)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		parts := strings.Split(line, ",")
		if len(parts) < 4 {
			continue
		}
		id := strings.TrimSpace(parts[0])
		s.users[id] = storedUser{
			user: User{
				ID:          id,
				DisplayName: strings.TrimSpace(parts[2]),
				Role:        Role(strings.TrimSpace(parts[3])),
			},
			hash: strings.TrimSpace(parts[1]),
		}
	}
	if err := scanner.Err(); err != nil {
		return fmt.Errorf("identity: read user store: %w", err)
	}
	return nil
}

func (s *Service) persist() error {
	ids := make([]string, 0, len(s.users))
	for id := range s.users {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	var sb strings.Builder
	for _, id := range ids {
		stored := s.users[id]
		fmt.Fprintf(&sb, "%s,%s,%s,%s\n", stored.user.ID, stored.hash, stored.user.DisplayName, stored.user.Role)
	}

	tmp := s.path + ".tmp"
	if err := os.WriteFile(tmp, []byte(sb.String()), 0o600); err != nil {
		return fmt.Errorf("identity: write user store: %w", err)
	}
	if err := os.Rename(tmp, s.path); err != nil {
		return fmt.Errorf("identity: rename user store: %w", err)
	}
	return nil
}

// Register creates a new account with a hashed password.
func (s *Service) Register(ctx context.Context, id, password, displayName string, role Role) error {
	id = strings.TrimSpace(id)
	if id == "" || strings.Contains(id, ",") {
		return fmt.Errorf("identity: invalid user id %q", id)
	}
	if password == "" {
		return fmt.Errorf("identity: empty password")
	}
	if role != RoleStudent && role != RoleAssistant && role != RoleInstructor {
		return fmt.Errorf("identity: unknown role %q", role)
	}

	hash, err := hashPassword(password, defaultHashParams)
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.users[id]; ok {
		return ErrDuplicate
	}
	s.users[id] = storedUser{
		user: User{ID: id, DisplayName: strings.TrimSpace(displayName), Role: role},
		hash: hash,
	}
	return s.persist()
}

// Authenticate verifies the password and returns the account.
func (s *Service) Authenticate(ctx context.Context, id, password string) (User, error) {
	s.mu.RLock()
	stored, ok := s.users[strings.TrimSpace(id)]
	s.mu.RUnlock()
	if !ok {
		return User{}, ErrInvalidCredentials
	}
	if err := verifyPassword(stored.hash, password); err != nil {
		return User{}, err
	}
	return stored.user, nil
}

// Lookup resolves a user id.
func (s *Service) Lookup(ctx context.Context, id string) (User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	stored, ok := s.users[strings.TrimSpace(id)]
	if !ok {
		return User{}, ErrNotFound
	}
	return stored.user, nil
}

// ChangePassword replaces the stored hash after verifying the old password.
func (s *Service) ChangePassword(ctx context.Context, id, oldPassword, newPassword string) error {
	if newPassword == "" {
		return fmt.Errorf("identity: empty password")
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	stored, ok := s.users[strings.TrimSpace(id)]
	if !ok {
		return ErrNotFound
	}
	if err := verifyPassword(stored.hash, oldPassword); err != nil {
		return err
	}
	hash, err := hashPassword(newPassword, defaultHashParams)
	if err != nil {
		return err
	}
	stored.hash = hash
	s.users[stored.user.ID] = stored
	return s.persist()
}

// Delete removes an account.
func (s *Service) Delete(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.users[strings.TrimSpace(id)]; !ok {
		return ErrNotFound
	}
	delete(s.users, strings.TrimSpace(id))
	return s.persist()
}

// List returns every account sorted by id.
func (s *Service) List(ctx context.Context) []User {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]User, 0, len(s.users))
	for _, stored := range s.users {
		out = append(out, stored.user)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}
