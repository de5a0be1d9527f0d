package httpserver

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"

	"github.com/alecbass/jdp-htmx-chat/internal/domain"
	"github.com/alecbass/jdp-htmx-chat/internal/metrics"
	apperrors "github.com/alecbass/jdp-htmx-chat/internal/platform/errors"
)

func (s *Server) handleIndex(c echo.Context) error {
	messages, err := s.messages.List(c.Request().Context())
	if err != nil {
		return apperrors.InternalError("failed to load messages", err)
	}

	return s.renderTemplate(c, "index.html", map[string]any{"Messages": messages})
}

func (s *Server) handleListMessages(c echo.Context) error {
	messages, err := s.messages.List(c.Request().Context())
	if err != nil {
		return apperrors.InternalError("failed to load messages", err)
	}

	return s.renderTemplate(c, "messages", map[string]any{"Messages": messages})
}

// handleCreateMessage is the write path: validate, gate on a bound user,
// persist, then fan the rendered message out to every live connection.
// Broadcast happens strictly after a successful persist, and its outcome
// never affects the response.
func (s *Server) handleCreateMessage(c echo.Context) error {
	ctx := c.Request().Context()
	session := currentSession(c)

	text := c.FormValue("message")
	if err := domain.ValidateMessageText(text); err != nil {
		return apperrors.ValidationError("message text must not be empty")
	}

	if !session.Authenticated() {
		return apperrors.UnauthenticatedError("login required to post")
	}

	msg, err := s.messages.Create(ctx, text, *session.UserID)
	if err != nil {
		return apperrors.InternalError("failed to persist message", err)
	}
	metrics.MessagesCreatedTotal.Inc()

	payload, err := s.renderMessage(msg)
	if err != nil {
		return apperrors.InternalError("failed to render message", err).WithField("message_id", msg.ID)
	}

	s.hub.Broadcast(payload)

	if err := c.HTMLBlob(http.StatusCreated, payload); err != nil {
		return fmt.Errorf("failed to send HTML response: %w", err)
	}
	return nil
}

func (s *Server) handleDeleteMessage(c echo.Context) error {
	ctx := c.Request().Context()
	session := currentSession(c)

	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		return apperrors.ValidationError("invalid message ID").WithField("id", c.Param("id"))
	}

	if !session.Authenticated() {
		return apperrors.UnauthenticatedError("login required to delete")
	}

	msg, err := s.messages.GetByID(ctx, id)
	if errors.Is(err, domain.ErrMessageNotFound) {
		return apperrors.NotFoundError("message not found").WithField("message_id", id)
	}
	if err != nil {
		return apperrors.InternalError("failed to load message", err).WithField("message_id", id)
	}

	if !domain.CanDelete(msg, session) {
		return apperrors.PermissionDeniedError("only the author can delete a message").WithField("message_id", id)
	}

	if _, err := s.messages.Delete(ctx, id); err != nil {
		return apperrors.InternalError("failed to delete message", err).WithField("message_id", id)
	}
	metrics.MessagesDeletedTotal.Inc()

	// Deletions are not broadcast; live viewers keep the element until the
	// next full list render.
	return c.NoContent(http.StatusNoContent)
}
