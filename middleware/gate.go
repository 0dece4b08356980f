package middleware

import (
	"context"
	"net/http"

	habitauth "github.com/habitloop/habitauth"
)

type sessionContextKey struct{}

// SessionFromContext returns the claims injected by [Gate.Handler] for
// requests that passed the gate with a live session. Bypassed requests and
// anonymous public requests carry no claims.
func SessionFromContext(ctx context.Context) (habitauth.SessionClaims, bool) {
	claims, ok := ctx.Value(sessionContextKey{}).(habitauth.SessionClaims)
	return claims, ok
}

// Action is the gate's verdict for a single request.
type Action int

const (
	// ActionBypass passes the request through untouched, cookie unread.
	ActionBypass Action = iota
	// ActionAllow serves the request; claims are present when a session
	// resolved.
	ActionAllow
	// ActionRedirectLogin sends an anonymous request on a protected route to
	// the login page.
	ActionRedirectLogin
	// ActionRedirectHome sends an authenticated request on a public-only
	// page to the home page.
	ActionRedirectHome
)

// Decision is the full outcome of evaluating one request.
type Decision struct {
	Action Action
	// ClearCookie is set when a cookie was presented but did not resolve,
	// so the response should expire it.
	ClearCookie bool
}

// Gate classifies request paths against the configured route tables and
// turns session state into redirects. Construct with [NewGate]; a Gate is
// immutable and safe for concurrent use.
type Gate struct {
	engine *habitauth.Engine
	routes *routeTable

	cookieName string
	loginPath  string
	homePath   string
}

// NewGate builds a gate from the engine's configuration.
func NewGate(engine *habitauth.Engine) *Gate {
	cfg := engine.Config()
	return &Gate{
		engine:     engine,
		routes:     newRouteTable(cfg.Gate),
		cookieName: cfg.Session.CookieName,
		loginPath:  cfg.Gate.LoginPath,
		homePath:   cfg.Gate.HomePath,
	}
}

// Evaluate computes the gate decision for a request path and raw cookie
// value without touching the response. It is a pure function of its inputs
// and the clock: no store access, no I/O.
func (g *Gate) Evaluate(reqPath, cookieValue string) (Decision, habitauth.SessionClaims) {
	class := g.routes.classify(reqPath)
	if class == routeBypass {
		return Decision{Action: ActionBypass}, habitauth.SessionClaims{}
	}

	claims, ok := g.engine.Resolve(cookieValue)
	clearStale := cookieValue != "" && !ok

	switch class {
	case routeProtected:
		if !ok {
			return Decision{Action: ActionRedirectLogin, ClearCookie: clearStale}, habitauth.SessionClaims{}
		}
	case routePublic:
		if ok {
			return Decision{Action: ActionRedirectHome}, claims
		}
	}

	if !ok {
		return Decision{Action: ActionAllow, ClearCookie: clearStale}, habitauth.SessionClaims{}
	}
	return Decision{Action: ActionAllow}, claims
}

// Handler wraps next with the gate. Redirects use 303 See Other so a
// redirected POST lands as a GET.
func (g *Gate) Handler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var cookieValue string
		if c, err := r.Cookie(g.cookieName); err == nil {
			cookieValue = c.Value
		}

		decision, claims := g.Evaluate(r.URL.Path, cookieValue)

		if decision.ClearCookie {
			g.clearCookie(w)
		}

		switch decision.Action {
		case ActionBypass:
			next.ServeHTTP(w, r)
		case ActionRedirectLogin:
			http.Redirect(w, r, g.loginPath, http.StatusSeeOther)
		case ActionRedirectHome:
			http.Redirect(w, r, g.homePath, http.StatusSeeOther)
		default:
			ctx := r.Context()
			if claims.UserID != "" {
				ctx = context.WithValue(ctx, sessionContextKey{}, claims)
			}
			next.ServeHTTP(w, r.WithContext(ctx))
		}
	})
}

// SetSessionCookie writes tok as the session cookie with the engine's
// configured name. HttpOnly and SameSite=Lax; Secure is the caller's call
// because local development runs plain HTTP.
func (g *Gate) SetSessionCookie(w http.ResponseWriter, tok string, secure bool) {
	http.SetCookie(w, &http.Cookie{
		Name:     g.cookieName,
		Value:    tok,
		Path:     "/",
		HttpOnly: true,
		Secure:   secure,
		SameSite: http.SameSiteLaxMode,
	})
}

// ClearSessionCookie expires the session cookie on the response.
func (g *Gate) ClearSessionCookie(w http.ResponseWriter) {
	g.clearCookie(w)
}

func (g *Gate) clearCookie(w http.ResponseWriter) {
	http.SetCookie(w, &http.Cookie{
		Name:     g.cookieName,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	})
}
