package httpserver

import (
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"

	"github.com/alecbass/jdp-htmx-chat/internal/domain"
	apperrors "github.com/alecbass/jdp-htmx-chat/internal/platform/errors"
)

// handleLogin binds a user identity to the visitor's session. Login is
// create-or-reuse: the first login with a name creates the user, later
// logins with the same name reuse it.
func (s *Server) handleLogin(c echo.Context) error {
	ctx := c.Request().Context()
	session := currentSession(c)

	name := strings.TrimSpace(c.FormValue("name"))
	if name == "" {
		return apperrors.ValidationError("name must not be empty")
	}

	user, err := s.users.Upsert(ctx, name)
	if err != nil {
		return apperrors.InternalError("failed to create user", err).WithField("name", name)
	}

	if _, err := s.sessions.SetUser(ctx, session.Token, user.ID); err != nil {
		if errors.Is(err, domain.ErrSessionNotFound) {
			return apperrors.UnavailableError("session vanished during login", err)
		}
		return apperrors.InternalError("failed to bind user to session", err).WithField("user_id", user.ID)
	}

	response := map[string]any{"user_id": user.ID, "name": user.Name}
	if err := c.JSON(http.StatusOK, response); err != nil {
		return fmt.Errorf("failed to send JSON response: %w", err)
	}
	return nil
}
