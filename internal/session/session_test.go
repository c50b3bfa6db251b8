package session

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"testing"

	"github.com/phillip-england/hrsuite/internal/apperr"
)

type memStorage struct {
	values map[string]string
	writes int
}

func newMemStorage() *memStorage { return &memStorage{values: map[string]string{}} }

func (m *memStorage) Get(_ context.Context, key string) (string, bool, error) {
	v, ok := m.values[key]
	return v, ok, nil
}

func (m *memStorage) Set(_ context.Context, key, value string) error {
	m.writes++
	m.values[key] = value
	return nil
}

func (m *memStorage) Delete(_ context.Context, key string) error {
	delete(m.values, key)
	return nil
}

type fakeAuth struct {
	loginResult LoginResult
	loginErr    error
	logoutErr   error
	registerErr error

	logoutCalls int
	lastRefresh string
	registered  []RegisterInput
}

func (f *fakeAuth) Login(context.Context, string, string) (LoginResult, error) {
	return f.loginResult, f.loginErr
}

func (f *fakeAuth) Register(_ context.Context, in RegisterInput) error {
	f.registered = append(f.registered, in)
	return f.registerErr
}

func (f *fakeAuth) Logout(_ context.Context, refreshToken string) error {
	f.logoutCalls++
	f.lastRefresh = refreshToken
	return f.logoutErr
}

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func adminResult() LoginResult {
	return LoginResult{
		User:         User{ID: "u1", Name: "Ada", Email: "ada@example.com", Role: RoleAdmin},
		AccessToken:  "access-1",
		RefreshToken: "refresh-1",
	}
}

func TestLoginPersistsSessionAndRehydrates(t *testing.T) {
	ctx := context.Background()
	storage := newMemStorage()
	api := &fakeAuth{loginResult: adminResult()}

	store, err := Open(ctx, storage, api, quietLogger())
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	if store.State() != Anonymous {
		t.Fatalf("expected anonymous store, got %v", store.State())
	}

	user, err := store.Login(ctx, " ada@example.com ", "secret1")
	if err != nil {
		t.Fatalf("login: %v", err)
	}
	if user.Role != RoleAdmin || store.Credential() != "access-1" {
		t.Fatalf("unexpected session after login: %+v / %q", user, store.Credential())
	}

	again, err := Open(ctx, storage, api, quietLogger())
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	snap := again.Snapshot()
	if !snap.Authenticated() || snap.User.Email != "ada@example.com" || snap.Credential != "access-1" {
		t.Fatalf("expected rehydrated session, got %+v", snap)
	}

	// Rehydrating twice yields the same state.
	third, err := Open(ctx, storage, api, quietLogger())
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	if third.Snapshot().User.ID != snap.User.ID || third.Credential() != snap.Credential {
		t.Fatalf("rehydration is not stable")
	}
}

func TestRejectedLoginWritesNothing(t *testing.T) {
	ctx := context.Background()
	storage := newMemStorage()
	api := &fakeAuth{loginErr: apperr.FromStatus(http.StatusUnauthorized, "Invalid credentials")}

	store, err := Open(ctx, storage, api, quietLogger())
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	_, err = store.Login(ctx, "ada@example.com", "wrong")
	if !errors.Is(err, apperr.ErrAuth) {
		t.Fatalf("expected auth error, got %v", err)
	}
	if store.State() != Anonymous {
		t.Fatalf("expected store to stay anonymous")
	}
	if storage.writes != 0 || len(storage.values) != 0 {
		t.Fatalf("expected no storage writes, got %d (%v)", storage.writes, storage.values)
	}
}

func TestLoginRequiresEmailAndPassword(t *testing.T) {
	ctx := context.Background()
	store, _ := Open(ctx, newMemStorage(), &fakeAuth{loginResult: adminResult()}, quietLogger())
	if _, err := store.Login(ctx, "  ", "pw"); !errors.Is(err, apperr.ErrValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
	if _, err := store.Login(ctx, "a@b.co", ""); !errors.Is(err, apperr.ErrValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
}

func TestLogoutClearsLocallyEvenWhenNotificationFails(t *testing.T) {
	ctx := context.Background()
	storage := newMemStorage()
	api := &fakeAuth{loginResult: adminResult(), logoutErr: apperr.Network(errors.New("offline"))}

	store, _ := Open(ctx, storage, api, quietLogger())
	if _, err := store.Login(ctx, "ada@example.com", "secret1"); err != nil {
		t.Fatalf("login: %v", err)
	}
	if err := store.Logout(ctx); err != nil {
		t.Fatalf("logout should not surface notification failure: %v", err)
	}
	if store.State() != Anonymous || store.Credential() != "" {
		t.Fatalf("expected anonymous store after logout")
	}
	for _, key := range []string{KeyUser, KeyAccessToken, KeyRefreshToken} {
		if _, ok := storage.values[key]; ok {
			t.Fatalf("expected %s to be removed", key)
		}
	}
	if api.logoutCalls != 1 || api.lastRefresh != "refresh-1" {
		t.Fatalf("expected one notification with refresh token, got %d %q", api.logoutCalls, api.lastRefresh)
	}

	// Logging out while anonymous does not contact the API.
	if err := store.Logout(ctx); err != nil {
		t.Fatalf("second logout: %v", err)
	}
	if api.logoutCalls != 1 {
		t.Fatalf("expected no notification while anonymous, got %d", api.logoutCalls)
	}
}

func TestInvalidateNeverContactsAPI(t *testing.T) {
	ctx := context.Background()
	storage := newMemStorage()
	api := &fakeAuth{loginResult: adminResult()}
	store, _ := Open(ctx, storage, api, quietLogger())
	_, _ = store.Login(ctx, "ada@example.com", "secret1")

	if err := store.Invalidate(ctx); err != nil {
		t.Fatalf("invalidate: %v", err)
	}
	if store.State() != Anonymous || len(storage.values) != 0 {
		t.Fatalf("expected cleared session, got %v", storage.values)
	}
	if api.logoutCalls != 0 {
		t.Fatalf("invalidate must not notify the API")
	}
}

func TestOpenDiscardsIncompleteSession(t *testing.T) {
	ctx := context.Background()
	cases := map[string]map[string]string{
		"user without credential": {KeyUser: `{"id":"u1","name":"Ada","email":"a@b.co","role":"admin"}`},
		"credential without user": {KeyAccessToken: "tok", KeyRefreshToken: "r"},
		"unreadable user":         {KeyUser: `{not json`, KeyAccessToken: "tok"},
	}
	for name, values := range cases {
		storage := newMemStorage()
		for k, v := range values {
			storage.values[k] = v
		}
		store, err := Open(ctx, storage, nil, quietLogger())
		if err != nil {
			t.Fatalf("%s: open: %v", name, err)
		}
		if store.State() != Anonymous {
			t.Fatalf("%s: expected anonymous store", name)
		}
		if len(storage.values) != 0 {
			t.Fatalf("%s: expected leftovers to be removed, got %v", name, storage.values)
		}
	}
}

func TestRegisterValidatesAndDoesNotSignIn(t *testing.T) {
	ctx := context.Background()
	storage := newMemStorage()
	api := &fakeAuth{}
	store, _ := Open(ctx, storage, api, quietLogger())

	bad := []RegisterInput{
		{Name: "", Email: "a@b.co", Password: "secret1", Role: RoleEmployee},
		{Name: "Ada", Email: "not-an-email", Password: "secret1", Role: RoleEmployee},
		{Name: "Ada", Email: "a@b.co", Password: "123", Role: RoleEmployee},
		{Name: "Ada", Email: "a@b.co", Password: "secret1", Role: "owner"},
	}
	for _, in := range bad {
		if err := store.Register(ctx, in); !errors.Is(err, apperr.ErrValidation) {
			t.Fatalf("expected validation error for %+v, got %v", in, err)
		}
	}
	if len(api.registered) != 0 {
		t.Fatalf("invalid input must not reach the API")
	}

	if err := store.Register(ctx, RegisterInput{Name: " Ada ", Email: " a@b.co ", Password: "secret1", Role: RoleEmployee}); err != nil {
		t.Fatalf("register: %v", err)
	}
	if got := api.registered[0]; got.Name != "Ada" || got.Email != "a@b.co" {
		t.Fatalf("expected trimmed input, got %+v", got)
	}
	if store.State() != Anonymous || storage.writes != 0 {
		t.Fatalf("register must not establish a session")
	}
}

func TestUserAcceptsMongoStyleID(t *testing.T) {
	var u User
	if err := u.UnmarshalJSON([]byte(`{"_id":"abc","name":"Ada","role":"employee"}`)); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if u.ID != "abc" || u.Role != RoleEmployee {
		t.Fatalf("unexpected user %+v", u)
	}
}
