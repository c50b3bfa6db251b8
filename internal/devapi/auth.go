package devapi

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"net/http"
	"net/mail"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"
)

const (
	roleAdmin    = "admin"
	roleEmployee = "employee"

	minPasswordLength = 6
)

type user struct {
	ID            string    `json:"_id"`
	Name          string    `json:"name"`
	Email         string    `json:"email"`
	Role          string    `json:"role"`
	Phone         string    `json:"phone,omitempty"`
	Designation   string    `json:"designation,omitempty"`
	Department    string    `json:"department,omitempty"`
	DateOfJoining string    `json:"dateOfJoining,omitempty"`
	CreatedAt     time.Time `json:"createdAt"`
	passwordHash  []byte
}

// Account is a user as submitted for registration or seeding.
type Account struct {
	Name     string `json:"name"`
	Email    string `json:"email"`
	Password string `json:"password"`
	Role     string `json:"role"`
}

func (a Account) Validate() error {
	if strings.TrimSpace(a.Name) == "" || strings.TrimSpace(a.Email) == "" || a.Password == "" {
		return errors.New("name, email and password are required")
	}
	if _, err := mail.ParseAddress(strings.TrimSpace(a.Email)); err != nil {
		return errors.New("invalid email address")
	}
	if len(a.Password) < minPasswordLength {
		return fmt.Errorf("password must be at least %d characters", minPasswordLength)
	}
	if a.Role != roleAdmin && a.Role != roleEmployee {
		return errors.New("role must be admin or employee")
	}
	return nil
}

var errDuplicateEmail = errors.New("User already exists")

// AddAccount creates a user directly and returns its id.
func (s *Server) AddAccount(a Account) (string, error) {
	if a.Role == "" {
		a.Role = roleEmployee
	}
	if err := a.Validate(); err != nil {
		return "", err
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(a.Password), bcrypt.DefaultCost)
	if err != nil {
		return "", fmt.Errorf("hash password: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.userByEmailLocked(a.Email) != nil {
		return "", errDuplicateEmail
	}
	u := &user{
		ID:           uuid.NewString(),
		Name:         strings.TrimSpace(a.Name),
		Email:        strings.ToLower(strings.TrimSpace(a.Email)),
		Role:         a.Role,
		CreatedAt:    s.now(),
		passwordHash: hash,
	}
	s.users[u.ID] = u
	return u.ID, nil
}

// RevokeSessions makes every access token issued so far to the user with
// email invalid, the way an expired or revoked credential behaves.
func (s *Server) RevokeSessions(email string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	u := s.userByEmailLocked(email)
	if u == nil {
		return
	}
	for id, owner := range s.accessTokens {
		if owner == u.ID {
			delete(s.accessTokens, id)
		}
	}
}

func (s *Server) userByEmailLocked(email string) *user {
	email = strings.ToLower(strings.TrimSpace(email))
	for _, u := range s.users {
		if u.Email == email {
			return u
		}
	}
	return nil
}

type claims struct {
	Role string `json:"role"`
	jwt.RegisteredClaims
}

type refreshToken struct {
	userID    string
	expiresAt time.Time
}

func (s *Server) issueAccessToken(u *user, now time.Time) (string, error) {
	id := uuid.NewString()
	s.mu.Lock()
	s.accessTokens[id] = u.ID
	s.mu.Unlock()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims{
		Role: u.Role,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   u.ID,
			ID:        id,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(accessTokenTTL)),
		},
	})
	return token.SignedString(s.cfg.SigningKey)
}

func (s *Server) parseAccessToken(raw string) (*claims, error) {
	var c claims
	_, err := jwt.ParseWithClaims(raw, &c, func(*jwt.Token) (any, error) {
		return s.cfg.SigningKey, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}), jwt.WithTimeFunc(s.clock()))
	if err != nil {
		return nil, err
	}
	return &c, nil
}

func (s *Server) clock() func() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.now
}

type userKey struct{}

func currentUser(r *http.Request) *user {
	u, _ := r.Context().Value(userKey{}).(*user)
	return u
}

func (s *Server) requireAuth(next http.HandlerFunc) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		raw, ok := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer ")
		if !ok || strings.TrimSpace(raw) == "" {
			writeMessage(w, http.StatusUnauthorized, "Not authorized, no token")
			return
		}
		c, err := s.parseAccessToken(strings.TrimSpace(raw))
		if err != nil {
			writeMessage(w, http.StatusUnauthorized, "Not authorized, token failed")
			return
		}

		s.mu.Lock()
		u := s.users[c.Subject]
		owner, live := s.accessTokens[c.ID]
		s.mu.Unlock()
		if u == nil {
			writeMessage(w, http.StatusUnauthorized, "User not found")
			return
		}
		if !live || owner != u.ID {
			writeMessage(w, http.StatusUnauthorized, "Not authorized, token revoked")
			return
		}
		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), userKey{}, u)))
	})
}

func (s *Server) requireAdmin(next http.HandlerFunc) http.Handler {
	return s.requireAuth(func(w http.ResponseWriter, r *http.Request) {
		if currentUser(r).Role != roleAdmin {
			writeMessage(w, http.StatusForbidden, "Access denied: admin only")
			return
		}
		next(w, r)
	})
}

func (s *Server) login(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Email    string `json:"email"`
		Password string `json:"password"`
	}
	if err := decodeJSON(w, r, &body); err != nil {
		writeMessage(w, http.StatusBadRequest, "invalid request body")
		return
	}

	s.mu.Lock()
	u := s.userByEmailLocked(body.Email)
	now := s.now()
	s.mu.Unlock()
	if u == nil || bcrypt.CompareHashAndPassword(u.passwordHash, []byte(body.Password)) != nil {
		writeMessage(w, http.StatusUnauthorized, "Invalid email or password")
		return
	}

	access, err := s.issueAccessToken(u, now)
	if err != nil {
		s.logger.Error("sign access token failed", "err", err)
		writeMessage(w, http.StatusInternalServerError, "unable to sign in")
		return
	}
	refresh := uuid.NewString()
	s.mu.Lock()
	s.refresh[refresh] = refreshToken{userID: u.ID, expiresAt: now.Add(refreshTokenTTL)}
	s.mu.Unlock()

	writeData(w, http.StatusOK, map[string]any{
		"user":         u,
		"accessToken":  access,
		"refreshToken": refresh,
	})
}

func (s *Server) register(w http.ResponseWriter, r *http.Request) {
	var a Account
	if err := decodeJSON(w, r, &a); err != nil {
		writeMessage(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if a.Role == "" {
		a.Role = roleEmployee
	}
	if _, err := s.AddAccount(a); err != nil {
		writeMessage(w, http.StatusBadRequest, err.Error())
		return
	}
	writeJSON(w, http.StatusCreated, map[string]string{"message": "User registered successfully"})
}

func (s *Server) logout(w http.ResponseWriter, r *http.Request) {
	var body struct {
		RefreshToken string `json:"refreshToken"`
	}
	_ = decodeJSON(w, r, &body)
	s.mu.Lock()
	delete(s.refresh, body.RefreshToken)
	s.mu.Unlock()
	writeJSON(w, http.StatusOK, map[string]string{"message": "Logged out successfully"})
}

func randomKey() ([]byte, error) {
	key := make([]byte, 32)
	if _, err := rand.Read(key); err != nil {
		return nil, fmt.Errorf("generate signing key: %w", err)
	}
	return key, nil
}
