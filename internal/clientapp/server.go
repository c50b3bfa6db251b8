package clientapp

import (
	"bytes"
	"context"
	"embed"
	"errors"
	"fmt"
	"html/template"
	"io/fs"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/gorilla/mux"
	"github.com/phillip-england/hrsuite/internal/apperr"
	"github.com/phillip-england/hrsuite/internal/attendance"
	"github.com/phillip-england/hrsuite/internal/config"
	"github.com/phillip-england/hrsuite/internal/guard"
	"github.com/phillip-england/hrsuite/internal/hrapi"
	"github.com/phillip-england/hrsuite/internal/middleware"
	"github.com/phillip-england/hrsuite/internal/paging"
	"github.com/phillip-england/hrsuite/internal/session"
	"github.com/phillip-england/hrsuite/internal/spreadsheet"
	"github.com/phillip-england/hrsuite/internal/storage"
)

const (
	browserCookieName = "hrsuite_browser"
	csrfFieldName     = "csrf_token"
	csrfStorageKey    = "csrfToken"
)

//go:embed templates/*.html assets/app.css assets/app.js
var templatesFS embed.FS

var pageNames = []string{
	"login.html",
	"register.html",
	"welcome.html",
	"admin_dashboard.html",
	"attendance.html",
	"admin_attendance.html",
	"employees.html",
	"office.html",
	"leaves.html",
	"leaves_manage.html",
}

// Deps are the collaborators of the web client. Tests substitute the HTTP
// client and storage.
type Deps struct {
	APIBaseURL    string
	APIClient     *http.Client
	Storage       *storage.DB
	Logger        *slog.Logger
	Location      *time.Location
	SecureCookies bool
}

type server struct {
	apiBaseURL    string
	apiClient     *http.Client
	storage       *storage.DB
	logger        *slog.Logger
	loc           *time.Location
	secureCookies bool
	pages         map[string]*template.Template
	now           func() time.Time
}

type pageData struct {
	Title   string
	Error   string
	Message string
	CSRF    string
	User    *session.User
	IsAdmin bool
	Path    string

	Email        string
	RegisterForm registerForm

	Status           attendance.Status
	Days             paging.Page[attendance.Day]
	Summary          hrapi.Summary
	Preview          []hrapi.Employee
	PreviewMore      int
	RecentAttendance []attendance.Day

	Employees      paging.Page[hrapi.Employee]
	Search         string
	EmployeeForm   hrapi.EmployeeInput
	EditingID      string
	ImportProblems []spreadsheet.RowError

	Leaves        paging.Page[hrapi.Leave]
	LeaveForm     hrapi.LeaveInput
	LeaveTypes    []hrapi.LeaveType
	LeaveStatuses []hrapi.LeaveStatus
	LeaveFilter   leaveFilterView
	FilterOptions []hrapi.Employee
	ReturnQuery   string
	PagerBase     string

	Office officeForm
}

type pageable interface {
	Window() []int
	Current() int
	TotalPages() int
	HasPrev() bool
	HasNext() bool
	PrevPage() int
	NextPage() int
}

type pagerView struct {
	Base     string
	Pages    []int
	Current  int
	Total    int
	HasPrev  bool
	HasNext  bool
	PrevPage int
	NextPage int
}

type registerForm struct {
	Name  string
	Email string
	Role  string
}

type leaveFilterView struct {
	Status string
	Type   string
	UserID string
}

type officeForm struct {
	Latitude  string
	Longitude string
	Radius    string
	Saved     bool
}

// Run serves the web client until ctx is cancelled.
func Run(ctx context.Context, cfg config.Config, logger *slog.Logger) error {
	db, err := storage.Open(ctx, cfg.StoragePath)
	if err != nil {
		return err
	}
	defer db.Close()

	handler, err := NewHandler(Deps{
		APIBaseURL:    cfg.APIBaseURL,
		APIClient:     &http.Client{Timeout: cfg.APITimeout},
		Storage:       db,
		Logger:        logger,
		Location:      cfg.Location,
		SecureCookies: cfg.SecureCookies,
	})
	if err != nil {
		return err
	}

	httpServer := &http.Server{
		Addr:              cfg.Addr,
		Handler:           handler,
		ReadHeaderTimeout: cfg.ReadTimeout,
		WriteTimeout:      cfg.WriteTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("client listening", "addr", cfg.Addr, "api", cfg.APIBaseURL)
		errCh <- httpServer.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = httpServer.Shutdown(shutdownCtx)
		return ctx.Err()
	case err := <-errCh:
		if err == nil || errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	}
}

// NewHandler builds the routed, middleware-wrapped web client.
func NewHandler(deps Deps) (http.Handler, error) {
	if deps.Storage == nil {
		return nil, errors.New("clientapp: storage is required")
	}
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}
	if deps.APIClient == nil {
		deps.APIClient = &http.Client{Timeout: 8 * time.Second}
	}
	if deps.Location == nil {
		deps.Location = time.Local
	}

	s := &server{
		apiBaseURL:    strings.TrimRight(deps.APIBaseURL, "/"),
		apiClient:     deps.APIClient,
		storage:       deps.Storage,
		logger:        deps.Logger,
		loc:           deps.Location,
		secureCookies: deps.SecureCookies,
		pages:         map[string]*template.Template{},
		now:           time.Now,
	}
	for _, name := range pageNames {
		tmpl, err := template.New(name).Funcs(s.templateFuncs()).ParseFS(templatesFS, "templates/base.html", "templates/"+name)
		if err != nil {
			return nil, fmt.Errorf("parse template %s: %w", name, err)
		}
		s.pages[name] = tmpl
	}

	assets, err := fs.Sub(templatesFS, "assets")
	if err != nil {
		return nil, err
	}

	anon := guard.Anonymous(snapshotOf)
	signedIn := guard.Session(snapshotOf)
	admin := guard.Role(snapshotOf, session.RoleAdmin)

	router := mux.NewRouter()
	router.PathPrefix("/assets/").Handler(http.StripPrefix("/assets/", http.FileServer(http.FS(assets)))).Methods(http.MethodGet)

	app := router.PathPrefix("/").Subrouter()
	app.Use(s.withBrowser, s.requireCSRF)

	app.Handle("/", middleware.Chain(http.HandlerFunc(s.loginPage), anon)).Methods(http.MethodGet)
	app.Handle("/", middleware.Chain(http.HandlerFunc(s.login), anon)).Methods(http.MethodPost)
	app.Handle("/login", middleware.Chain(http.HandlerFunc(s.loginPage), anon)).Methods(http.MethodGet)
	app.Handle("/login", middleware.Chain(http.HandlerFunc(s.login), anon)).Methods(http.MethodPost)
	app.Handle("/register", middleware.Chain(http.HandlerFunc(s.registerPage), anon)).Methods(http.MethodGet)
	app.Handle("/register", middleware.Chain(http.HandlerFunc(s.register), anon)).Methods(http.MethodPost)
	app.Handle("/welcome", middleware.Chain(http.HandlerFunc(s.welcomePage), anon)).Methods(http.MethodGet)
	app.Handle("/logout", middleware.Chain(http.HandlerFunc(s.logout), signedIn)).Methods(http.MethodPost)

	app.Handle("/dashboard", middleware.Chain(http.HandlerFunc(s.dashboardPage), signedIn)).Methods(http.MethodGet)
	app.Handle("/attendance", middleware.Chain(http.HandlerFunc(s.attendancePage), signedIn)).Methods(http.MethodGet)
	app.Handle("/attendance/checkin", middleware.Chain(http.HandlerFunc(s.checkIn), signedIn)).Methods(http.MethodPost)
	app.Handle("/attendance/checkout", middleware.Chain(http.HandlerFunc(s.checkOut), signedIn)).Methods(http.MethodPost)
	app.Handle("/leaves", middleware.Chain(http.HandlerFunc(s.leavesPage), signedIn)).Methods(http.MethodGet)
	app.Handle("/leaves", middleware.Chain(http.HandlerFunc(s.applyLeave), signedIn)).Methods(http.MethodPost)

	app.Handle("/admin/attendance", middleware.Chain(http.HandlerFunc(s.adminAttendancePage), admin)).Methods(http.MethodGet)
	app.Handle("/admin/attendance/export.xlsx", middleware.Chain(http.HandlerFunc(s.exportAttendance), admin)).Methods(http.MethodGet)
	app.Handle("/employees", middleware.Chain(http.HandlerFunc(s.employeesPage), admin)).Methods(http.MethodGet)
	app.Handle("/employees", middleware.Chain(http.HandlerFunc(s.createEmployee), admin)).Methods(http.MethodPost)
	app.Handle("/employees/import", middleware.Chain(http.HandlerFunc(s.importEmployees), admin)).Methods(http.MethodPost)
	app.Handle("/employees/export.xlsx", middleware.Chain(http.HandlerFunc(s.exportEmployees), admin)).Methods(http.MethodGet)
	app.Handle("/employees/{id}", middleware.Chain(http.HandlerFunc(s.updateEmployee), admin)).Methods(http.MethodPost)
	app.Handle("/employees/{id}/delete", middleware.Chain(http.HandlerFunc(s.deleteEmployee), admin)).Methods(http.MethodPost)
	app.Handle("/office-location", middleware.Chain(http.HandlerFunc(s.officePage), admin)).Methods(http.MethodGet)
	app.Handle("/office-location", middleware.Chain(http.HandlerFunc(s.saveOffice), admin)).Methods(http.MethodPost)
	app.Handle("/leaves/manage", middleware.Chain(http.HandlerFunc(s.manageLeavesPage), admin)).Methods(http.MethodGet)
	app.Handle("/leaves/{id}/status", middleware.Chain(http.HandlerFunc(s.setLeaveStatus), admin)).Methods(http.MethodPost)

	// Unknown paths land on the login entry point, which forwards signed-in
	// browsers to the dashboard.
	router.NotFoundHandler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Redirect(w, r, guard.LoginPath, http.StatusFound)
	})

	csp := strings.Join([]string{
		"default-src 'self'",
		"style-src 'self'",
		"img-src 'self' data:",
		"script-src 'self'",
		"connect-src 'self'",
		"frame-ancestors 'none'",
	}, "; ")

	return middleware.Chain(
		router,
		middleware.Recover(s.logger),
		middleware.RequestLogger(s.logger),
		middleware.SecurityHeaders(middleware.SecurityHeadersConfig{ContentSecurityPolicy: csp}),
	), nil
}

func (s *server) templateFuncs() template.FuncMap {
	return template.FuncMap{
		"clock": func(t time.Time) string {
			if t.IsZero() {
				return "-"
			}
			return t.In(s.loc).Format("3:04:05 PM")
		},
		"date": func(t time.Time) string {
			if t.IsZero() {
				return "-"
			}
			return t.In(s.loc).Format("Jan 2, 2006")
		},
		"title": func(v any) string {
			str := fmt.Sprint(v)
			if str == "" {
				return ""
			}
			return strings.ToUpper(str[:1]) + str[1:]
		},
		"yesNo": func(b bool) string {
			if b {
				return "Yes"
			}
			return "No"
		},
		"eq": func(a, b any) bool { return fmt.Sprint(a) == fmt.Sprint(b) },
		"pageLink": func(base string, page int) string {
			if strings.Contains(base, "?") {
				return base + "&page=" + strconv.Itoa(page)
			}
			return base + "?page=" + strconv.Itoa(page)
		},
		"pager": func(base string, p pageable) pagerView {
			return pagerView{
				Base:     base,
				Pages:    p.Window(),
				Current:  p.Current(),
				Total:    p.TotalPages(),
				HasPrev:  p.HasPrev(),
				HasNext:  p.HasNext(),
				PrevPage: p.PrevPage(),
				NextPage: p.NextPage(),
			}
		},
		"distance": func(d *float64) string {
			if d == nil {
				return ""
			}
			return strconv.FormatFloat(*d, 'f', 2, 64) + "m"
		},
	}
}

func (s *server) render(w http.ResponseWriter, r *http.Request, name string, data pageData) {
	b := browserFrom(r)
	if b != nil {
		snap := b.session.Snapshot()
		data.User = snap.User
		data.IsAdmin = snap.Role() == session.RoleAdmin
		data.CSRF = b.csrf
	}
	data.Path = r.URL.Path

	tmpl, ok := s.pages[name]
	if !ok {
		http.Error(w, "template not found", http.StatusInternalServerError)
		s.logger.Error("unknown template", "name", name)
		return
	}
	if err := renderHTMLTemplate(w, tmpl, data); err != nil {
		http.Error(w, "template render failed", http.StatusInternalServerError)
		s.logger.Error("template render failed", "name", name, "err", err)
	}
}

func renderHTMLTemplate(w http.ResponseWriter, tmpl *template.Template, data pageData) error {
	var buf bytes.Buffer
	if err := tmpl.ExecuteTemplate(&buf, "base", data); err != nil {
		return err
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Header().Set("Cache-Control", "no-store")
	_, err := w.Write(buf.Bytes())
	return err
}

// redirectWith redirects to path carrying a one-shot error or message.
func redirectWith(w http.ResponseWriter, r *http.Request, path, key, msg string) {
	target := path
	if msg != "" {
		sep := "?"
		if strings.Contains(path, "?") {
			sep = "&"
		}
		target = path + sep + key + "=" + url.QueryEscape(msg)
	}
	http.Redirect(w, r, target, http.StatusFound)
}

// handleAPIError reports whether err was handled by ending the session. A
// credential the API no longer accepts always signs the browser out.
func (s *server) handleAPIError(w http.ResponseWriter, r *http.Request, err error) bool {
	if !apperr.CredentialRejected(err) {
		return false
	}
	if b := browserFrom(r); b != nil {
		if invErr := b.session.Invalidate(r.Context()); invErr != nil {
			s.logger.Error("invalidate session failed", "err", invErr)
		}
	}
	redirectWith(w, r, guard.LoginPath, "error", "Session expired, please log in again")
	return true
}

// failTo redirects back to path with the user-facing form of err.
func (s *server) failTo(w http.ResponseWriter, r *http.Request, path string, err error, fallback string) {
	if s.handleAPIError(w, r, err) {
		return
	}
	if !isUserError(err) {
		s.logger.Warn("request failed", "path", r.URL.Path, "err", err)
	}
	redirectWith(w, r, path, "error", apperr.UserMessage(err, fallback))
}

func isUserError(err error) bool {
	return errors.Is(err, apperr.ErrValidation) || errors.Is(err, apperr.ErrConflict) || errors.Is(err, apperr.ErrGeolocation)
}

func flash(r *http.Request) (string, string) {
	q := r.URL.Query()
	return q.Get("error"), q.Get("message")
}

func parsePositiveInt(raw string, fallback int) int {
	value, err := strconv.Atoi(strings.TrimSpace(raw))
	if err != nil || value <= 0 {
		return fallback
	}
	return value
}
