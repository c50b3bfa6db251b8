package clientapp

import (
	"context"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/phillip-england/hrsuite/internal/attendance"
	"github.com/phillip-england/hrsuite/internal/gateway"
	"github.com/phillip-england/hrsuite/internal/hrapi"
	"github.com/phillip-england/hrsuite/internal/security"
	"github.com/phillip-england/hrsuite/internal/session"
	"github.com/phillip-england/hrsuite/internal/storage"
)

type browserKey struct{}

// browser is everything one request needs that belongs to the visiting
// browser: its durable storage, its session and the API clients that send
// the session's credential.
type browser struct {
	storage  *storage.Browser
	session  *session.Store
	hr       *hrapi.Client
	workflow *attendance.Workflow
	csrf     string
}

func browserFrom(r *http.Request) *browser {
	b, _ := r.Context().Value(browserKey{}).(*browser)
	return b
}

func snapshotOf(r *http.Request) session.Snapshot {
	if b := browserFrom(r); b != nil {
		return b.session.Snapshot()
	}
	return session.Snapshot{}
}

// attendanceCache is scoped to the signed-in user so a status cached for one
// account is never applied to another on the same browser.
func (b *browser) attendanceCache() *attendance.Cache {
	userID := ""
	if u := b.session.User(); u != nil {
		userID = u.ID
	}
	return attendance.NewCache(b.storage, userID)
}

func (s *server) withBrowser(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := s.browserID(w, r)
		b, err := s.openBrowser(r.Context(), id)
		if err != nil {
			s.logger.Error("open browser storage failed", "err", err)
			http.Error(w, "storage unavailable", http.StatusInternalServerError)
			return
		}
		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), browserKey{}, b)))
	})
}

func (s *server) browserID(w http.ResponseWriter, r *http.Request) string {
	if c, err := r.Cookie(browserCookieName); err == nil {
		if parsed, err := uuid.Parse(c.Value); err == nil {
			return parsed.String()
		}
	}
	id := uuid.NewString()
	http.SetCookie(w, &http.Cookie{
		Name:     browserCookieName,
		Value:    id,
		Path:     "/",
		HttpOnly: true,
		Secure:   s.secureCookies,
		SameSite: http.SameSiteLaxMode,
		Expires:  time.Now().AddDate(1, 0, 0),
	})
	return id
}

func (s *server) openBrowser(ctx context.Context, id string) (*browser, error) {
	store := s.storage.Browser(id)
	b := &browser{storage: store}

	// The gateway is handed a credential source rather than a token, so a
	// login or logout later in this request is seen by subsequent calls.
	gw := gateway.New(s.apiBaseURL, s.apiClient, credentialFunc(func() string {
		if b.session == nil {
			return ""
		}
		return b.session.Credential()
	}))

	sess, err := session.Open(ctx, store, session.NewAuthAPI(gw), s.logger)
	if err != nil {
		return nil, err
	}
	b.session = sess
	b.hr = hrapi.New(gw)
	b.workflow = attendance.NewWorkflow(attendance.NewAPI(gw), s.loc)

	token, ok, err := store.Get(ctx, csrfStorageKey)
	if err != nil {
		return nil, err
	}
	if !ok || token == "" {
		token, err = security.NewToken()
		if err != nil {
			return nil, err
		}
		if err := store.Set(ctx, csrfStorageKey, token); err != nil {
			return nil, err
		}
	}
	b.csrf = token
	return b, nil
}

type credentialFunc func() string

func (f credentialFunc) Credential() string { return f() }

func (s *server) requireCSRF(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			next.ServeHTTP(w, r)
			return
		}
		b := browserFrom(r)
		token := r.Header.Get("X-CSRF-Token")
		if token == "" {
			if isMultipart(r) {
				if err := r.ParseMultipartForm(maxImportBytes); err != nil {
					http.Error(w, "invalid form", http.StatusBadRequest)
					return
				}
			}
			token = r.FormValue(csrfFieldName)
		}
		if b == nil || !security.TokensEqual(token, b.csrf) {
			s.logger.Warn("csrf token mismatch", "path", r.URL.Path)
			http.Error(w, "invalid csrf token", http.StatusForbidden)
			return
		}
		next.ServeHTTP(w, r)
	})
}
