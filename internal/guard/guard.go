// Package guard decides whether a browser may see a page.
package guard

import (
	"net/http"

	"github.com/phillip-england/hrsuite/internal/session"
)

const (
	LoginPath   = "/"
	LandingPath = "/dashboard"
)

type Kind int

const (
	// RequireAnonymous guards login, registration and the public landing page.
	RequireAnonymous Kind = iota
	// RequireSession guards every page behind login, optionally by role.
	RequireSession
)

type Rule struct {
	Kind Kind
	Role session.Role
}

type Decision struct {
	Allow    bool
	Redirect string
}

func Decide(snap session.Snapshot, rule Rule) Decision {
	switch rule.Kind {
	case RequireAnonymous:
		if snap.Authenticated() {
			return Decision{Redirect: LandingPath}
		}
		return Decision{Allow: true}
	default:
		if !snap.Authenticated() {
			return Decision{Redirect: LoginPath}
		}
		if rule.Role != "" && snap.Role() != rule.Role {
			return Decision{Redirect: LandingPath}
		}
		return Decision{Allow: true}
	}
}

// SnapshotFunc resolves the session of the browser behind a request.
type SnapshotFunc func(r *http.Request) session.Snapshot

// Middleware enforces rule before next runs, so a rejected request never
// reaches a page's data fetches.
func Middleware(snapshot SnapshotFunc, rule Rule) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			d := Decide(snapshot(r), rule)
			if !d.Allow {
				http.Redirect(w, r, d.Redirect, http.StatusFound)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func Anonymous(snapshot SnapshotFunc) func(http.Handler) http.Handler {
	return Middleware(snapshot, Rule{Kind: RequireAnonymous})
}

func Session(snapshot SnapshotFunc) func(http.Handler) http.Handler {
	return Middleware(snapshot, Rule{Kind: RequireSession})
}

func Role(snapshot SnapshotFunc, role session.Role) func(http.Handler) http.Handler {
	return Middleware(snapshot, Rule{Kind: RequireSession, Role: role})
}
