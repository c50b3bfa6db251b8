package clientapp

import (
	"errors"
	"net/http"
	"strings"

	"github.com/phillip-england/hrsuite/internal/apperr"
	"github.com/phillip-england/hrsuite/internal/guard"
	"github.com/phillip-england/hrsuite/internal/session"
)

func (s *server) loginPage(w http.ResponseWriter, r *http.Request) {
	errMsg, msg := flash(r)
	s.render(w, r, "login.html", pageData{Title: "Login", Error: errMsg, Message: msg})
}

func (s *server) login(w http.ResponseWriter, r *http.Request) {
	b := browserFrom(r)
	email := strings.TrimSpace(r.FormValue("email"))
	_, err := b.session.Login(r.Context(), email, r.FormValue("password"))
	if err != nil {
		if !errors.Is(err, apperr.ErrAuth) && !isUserError(err) {
			s.logger.Warn("login failed", "err", err)
		}
		s.render(w, r, "login.html", pageData{
			Title: "Login",
			Error: apperr.UserMessage(err, "Login failed"),
			Email: email,
		})
		return
	}
	http.Redirect(w, r, guard.LandingPath, http.StatusFound)
}

func (s *server) registerPage(w http.ResponseWriter, r *http.Request) {
	errMsg, msg := flash(r)
	s.render(w, r, "register.html", pageData{
		Title:        "Register",
		Error:        errMsg,
		Message:      msg,
		RegisterForm: registerForm{Role: string(session.RoleEmployee)},
	})
}

func (s *server) register(w http.ResponseWriter, r *http.Request) {
	b := browserFrom(r)
	form := registerForm{
		Name:  strings.TrimSpace(r.FormValue("name")),
		Email: strings.TrimSpace(r.FormValue("email")),
		Role:  strings.TrimSpace(r.FormValue("role")),
	}
	if form.Role == "" {
		form.Role = string(session.RoleEmployee)
	}
	err := b.session.Register(r.Context(), session.RegisterInput{
		Name:     form.Name,
		Email:    form.Email,
		Password: r.FormValue("password"),
		Role:     session.Role(form.Role),
	})
	if err != nil {
		s.render(w, r, "register.html", pageData{
			Title:        "Register",
			Error:        apperr.UserMessage(err, "Registration failed"),
			RegisterForm: form,
		})
		return
	}
	redirectWith(w, r, "/welcome", "message", "Account created for "+form.Email)
}

func (s *server) welcomePage(w http.ResponseWriter, r *http.Request) {
	errMsg, msg := flash(r)
	s.render(w, r, "welcome.html", pageData{Title: "Welcome", Error: errMsg, Message: msg})
}

func (s *server) logout(w http.ResponseWriter, r *http.Request) {
	b := browserFrom(r)
	if err := b.attendanceCache().Clear(r.Context()); err != nil {
		s.logger.Warn("clear attendance cache failed", "err", err)
	}
	if err := b.session.Logout(r.Context()); err != nil {
		s.logger.Error("logout failed to clear storage", "err", err)
	}
	redirectWith(w, r, guard.LoginPath, "message", "You have been logged out")
}
