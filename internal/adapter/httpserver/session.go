package httpserver

import (
	"errors"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/alecbass/jdp-htmx-chat/internal/domain"
	"github.com/alecbass/jdp-htmx-chat/internal/metrics"
	apperrors "github.com/alecbass/jdp-htmx-chat/internal/platform/errors"
)

const (
	sessionCookieName = "board-session"
	sessionKeyToken   = "token"
	contextKeySession = "session"
)

// resolveSession loads the visitor's session from the token cookie, creating
// a fresh anonymous session when the request carries no valid token. The
// resolved token is always written back onto the response so the client
// resolves to the same session on every later request. If the session store
// is unreachable the whole request fails; nothing downstream runs without a
// session.
func (s *Server) resolveSession(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		ctx := c.Request().Context()

		// A cookie that fails to decode counts as no cookie at all.
		cookie, _ := s.cookieStore.Get(c.Request(), sessionCookieName)

		var session *domain.Session
		if token, ok := cookie.Values[sessionKeyToken].(string); ok && token != "" {
			found, err := s.sessions.Get(ctx, token)
			if err != nil && !errors.Is(err, domain.ErrSessionNotFound) {
				return apperrors.UnavailableError("session store unreachable", err)
			}
			session = found
		}

		if session == nil {
			token := uuid.NewString()
			expiresAt := s.clock.Now().Add(s.config.SessionMaxAge)

			created, err := s.sessions.Create(ctx, token, expiresAt)
			if err != nil {
				return apperrors.UnavailableError("failed to create session", err)
			}
			metrics.SessionsCreatedTotal.Inc()
			session = created
		}

		cookie.Values[sessionKeyToken] = session.Token
		if err := cookie.Save(c.Request(), c.Response()); err != nil {
			return apperrors.InternalError("failed to save session cookie", err)
		}

		c.Set(contextKeySession, session)
		return next(c)
	}
}

// currentSession returns the session the resolver attached, or nil on routes
// that skip resolution.
func currentSession(c echo.Context) *domain.Session {
	session, _ := c.Get(contextKeySession).(*domain.Session)
	return session
}
