// Package session tracks who is using a browser right now. A Store is the
// only writer of the identity and credential a browser holds, and every
// change is mirrored to durable storage before the operation returns.
package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/mail"
	"strings"
	"sync"

	"github.com/phillip-england/hrsuite/internal/apperr"
)

const (
	KeyUser         = "user"
	KeyAccessToken  = "accessToken"
	KeyRefreshToken = "refreshToken"

	minPasswordLength = 6
)

type Role string

const (
	RoleAdmin    Role = "admin"
	RoleEmployee Role = "employee"
)

func (r Role) Valid() bool {
	return r == RoleAdmin || r == RoleEmployee
}

type User struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Email       string `json:"email"`
	Role        Role   `json:"role"`
	Department  string `json:"department,omitempty"`
	Designation string `json:"designation,omitempty"`
}

// UnmarshalJSON accepts both "id" and the API's "_id".
func (u *User) UnmarshalJSON(data []byte) error {
	type plain User
	var aux struct {
		plain
		MongoID string `json:"_id"`
	}
	if err := json.Unmarshal(data, &aux); err != nil {
		return err
	}
	*u = User(aux.plain)
	if u.ID == "" {
		u.ID = aux.MongoID
	}
	return nil
}

type State int

const (
	Anonymous State = iota
	Authenticated
)

func (s State) String() string {
	if s == Authenticated {
		return "authenticated"
	}
	return "anonymous"
}

// Snapshot is a read-only copy of the session at one instant.
type Snapshot struct {
	User       *User
	Credential string
}

func (s Snapshot) Authenticated() bool {
	return s.User != nil && s.Credential != ""
}

func (s Snapshot) Role() Role {
	if s.User == nil {
		return ""
	}
	return s.User.Role
}

// Storage is durable key/value storage scoped to one browser.
type Storage interface {
	Get(ctx context.Context, key string) (string, bool, error)
	Set(ctx context.Context, key, value string) error
	Delete(ctx context.Context, key string) error
}

type LoginResult struct {
	User         User
	AccessToken  string
	RefreshToken string
}

type RegisterInput struct {
	Name     string
	Email    string
	Password string
	Role     Role
}

func (in RegisterInput) Validate() error {
	if strings.TrimSpace(in.Name) == "" || strings.TrimSpace(in.Email) == "" || in.Password == "" {
		return apperr.Validation("Name, email and password are required")
	}
	if _, err := mail.ParseAddress(strings.TrimSpace(in.Email)); err != nil {
		return apperr.Validation("Enter a valid email address")
	}
	if len(in.Password) < minPasswordLength {
		return apperr.Validation(fmt.Sprintf("Password must be at least %d characters", minPasswordLength))
	}
	if !in.Role.Valid() {
		return apperr.Validation("Role must be admin or employee")
	}
	return nil
}

// AuthAPI is the part of the remote API the Store talks to.
type AuthAPI interface {
	Login(ctx context.Context, email, password string) (LoginResult, error)
	Register(ctx context.Context, in RegisterInput) error
	Logout(ctx context.Context, refreshToken string) error
}

type Store struct {
	mu      sync.RWMutex
	storage Storage
	api     AuthAPI
	logger  *slog.Logger

	user       *User
	credential string
}

// Open rehydrates a Store from storage. Half a session (a user without a
// credential or the reverse, or an unreadable user record) is discarded.
func Open(ctx context.Context, storage Storage, api AuthAPI, logger *slog.Logger) (*Store, error) {
	if logger == nil {
		logger = slog.Default()
	}
	s := &Store{storage: storage, api: api, logger: logger}

	rawUser, hasUser, err := storage.Get(ctx, KeyUser)
	if err != nil {
		return nil, fmt.Errorf("read stored user: %w", err)
	}
	credential, hasCredential, err := storage.Get(ctx, KeyAccessToken)
	if err != nil {
		return nil, fmt.Errorf("read stored credential: %w", err)
	}
	if !hasUser && !hasCredential {
		return s, nil
	}

	var user User
	if hasUser {
		if err := json.Unmarshal([]byte(rawUser), &user); err != nil {
			hasUser = false
		}
	}
	if !hasUser || !hasCredential || credential == "" {
		logger.Warn("discarding incomplete stored session", "hasUser", hasUser, "hasCredential", hasCredential)
		if err := s.clearStorage(ctx); err != nil {
			return nil, err
		}
		return s, nil
	}

	s.user = &user
	s.credential = credential
	return s, nil
}

func (s *Store) Snapshot() Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	snap := Snapshot{Credential: s.credential}
	if s.user != nil {
		u := *s.user
		snap.User = &u
	}
	return snap
}

func (s *Store) State() State {
	if s.Snapshot().Authenticated() {
		return Authenticated
	}
	return Anonymous
}

// Credential implements gateway.CredentialSource.
func (s *Store) Credential() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.credential
}

func (s *Store) User() *User {
	return s.Snapshot().User
}

// Login exchanges credentials for a session. Nothing is stored unless the
// API accepts them.
func (s *Store) Login(ctx context.Context, email, password string) (User, error) {
	email = strings.TrimSpace(email)
	if email == "" || password == "" {
		return User{}, apperr.Validation("Email and password are required")
	}

	result, err := s.api.Login(ctx, email, password)
	if err != nil {
		return User{}, err
	}
	if result.AccessToken == "" {
		return User{}, &apperr.Error{Kind: apperr.KindAuth, Message: "Login response did not include a credential"}
	}

	rawUser, err := json.Marshal(result.User)
	if err != nil {
		return User{}, fmt.Errorf("encode user: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.storage.Set(ctx, KeyUser, string(rawUser)); err != nil {
		return User{}, fmt.Errorf("store user: %w", err)
	}
	if err := s.storage.Set(ctx, KeyAccessToken, result.AccessToken); err != nil {
		_ = s.storage.Delete(ctx, KeyUser)
		return User{}, fmt.Errorf("store credential: %w", err)
	}
	if result.RefreshToken != "" {
		if err := s.storage.Set(ctx, KeyRefreshToken, result.RefreshToken); err != nil {
			s.logger.Warn("store refresh token failed", "err", err)
		}
	}

	user := result.User
	s.user = &user
	s.credential = result.AccessToken
	return user, nil
}

// Logout ends the session locally first, then tells the API on a best-effort
// basis. The notification never fails the logout.
func (s *Store) Logout(ctx context.Context) error {
	s.mu.Lock()
	hadCredential := s.credential != ""
	refreshToken, _, readErr := s.storage.Get(ctx, KeyRefreshToken)
	if readErr != nil {
		s.logger.Warn("read refresh token failed", "err", readErr)
	}
	s.user = nil
	s.credential = ""
	clearErr := s.clearStorage(ctx)
	s.mu.Unlock()

	if hadCredential && s.api != nil {
		if err := s.api.Logout(ctx, refreshToken); err != nil {
			s.logger.Info("logout notification failed", "err", err)
		}
	}
	return clearErr
}

// Invalidate drops the session without contacting the API. It is used when
// the API has already rejected the credential.
func (s *Store) Invalidate(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.user = nil
	s.credential = ""
	return s.clearStorage(ctx)
}

// Register creates an account. It never signs the browser in.
func (s *Store) Register(ctx context.Context, in RegisterInput) error {
	in.Name = strings.TrimSpace(in.Name)
	in.Email = strings.TrimSpace(in.Email)
	if err := in.Validate(); err != nil {
		return err
	}
	return s.api.Register(ctx, in)
}

func (s *Store) clearStorage(ctx context.Context) error {
	var errs []error
	for _, key := range []string{KeyUser, KeyAccessToken, KeyRefreshToken} {
		if err := s.storage.Delete(ctx, key); err != nil {
			errs = append(errs, fmt.Errorf("delete %s: %w", key, err))
		}
	}
	return errors.Join(errs...)
}
