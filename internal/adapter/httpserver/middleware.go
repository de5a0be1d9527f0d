package httpserver

import (
	"errors"
	"fmt"
	"log/slog"

	"github.com/labstack/echo/v4"

	"github.com/alecbass/jdp-htmx-chat/internal/metrics"
	"github.com/alecbass/jdp-htmx-chat/internal/platform/correlation"
	apperrors "github.com/alecbass/jdp-htmx-chat/internal/platform/errors"
)

func correlationMiddleware(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		ctx := correlation.WithID(c.Request().Context(), correlation.NewID())
		c.SetRequest(c.Request().WithContext(ctx))
		return next(c)
	}
}

// ErrorHandlingMiddleware converts structured errors returned by handlers
// into JSON responses, logs them with request context, and counts them.
func ErrorHandlingMiddleware() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			err := next(c)
			if err == nil {
				return nil
			}

			// Echo HTTPErrors (e.g. from the rate limiter) pass through so
			// their status codes survive; still count them.
			var httpErr *echo.HTTPError
			if errors.As(err, &httpErr) {
				metrics.HTTPErrorsTotal.WithLabelValues(string(apperrors.TypeInternal)).Inc()
				return err
			}

			structuredErr := apperrors.AsStructuredError(err)
			metrics.HTTPErrorsTotal.WithLabelValues(string(structuredErr.Type)).Inc()
			logError(c, structuredErr)

			if err := c.JSON(structuredErr.HTTPStatus(), structuredErr.ToResponse()); err != nil {
				return fmt.Errorf("failed to write error response: %w", err)
			}
			return nil
		}
	}
}

func logError(c echo.Context, err *apperrors.Error) {
	attrs := []any{
		"error_type", err.Type,
		"message", err.Message,
		"path", c.Request().URL.Path,
		"method", c.Request().Method,
		"status", err.HTTPStatus(),
	}

	for k, v := range err.Context {
		attrs = append(attrs, k, v)
	}

	if sess := currentSession(c); sess.Authenticated() {
		attrs = append(attrs, "user_id", *sess.UserID)
	}

	switch err.Type {
	case apperrors.TypeValidation:
		slog.Info("Validation error", attrs...)
	case apperrors.TypeUnauthenticated:
		slog.Info("Unauthenticated", attrs...)
	case apperrors.TypeForbidden:
		slog.Warn("Permission denied", attrs...)
	case apperrors.TypeNotFound:
		slog.Info("Not found", attrs...)
	case apperrors.TypeConflict:
		slog.Warn("Conflict", attrs...)
	case apperrors.TypeUnavailable:
		if err.Cause != nil {
			attrs = append(attrs, "cause", err.Cause)
		}
		slog.Error("Backing store unavailable", attrs...)
	case apperrors.TypeInternal:
		if err.Cause != nil {
			attrs = append(attrs, "cause", err.Cause)
		}
		slog.Error("Internal error", attrs...)
	default:
		slog.Error("Unknown error type", attrs...)
	}
}
