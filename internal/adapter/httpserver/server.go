package httpserver

import (
	"bytes"
	"context"
	"fmt"
	"html/template"
	"log/slog"
	"net/http"
	"time"

	"github.com/gorilla/sessions"
	"github.com/gorilla/websocket"
	"github.com/jonboulle/clockwork"
	"github.com/labstack/echo/v4"

	"github.com/alecbass/jdp-htmx-chat/internal/domain"
	"github.com/alecbass/jdp-htmx-chat/internal/platform/config"
	"github.com/alecbass/jdp-htmx-chat/web"
)

// Hub is the broadcast registry the write path pushes rendered updates into.
type Hub interface {
	Register(conn *websocket.Conn) error
	Unregister(conn *websocket.Conn)
	Broadcast(payload []byte)
	ClientCount() int
}

type Server struct {
	echo   *echo.Echo
	config *config.Config
	clock  clockwork.Clock

	sessions domain.SessionRepository
	users    domain.UserRepository
	messages domain.MessageRepository
	hub      Hub

	templates   *template.Template
	cookieStore *sessions.CookieStore

	healthChecks []HealthCheck
	startTime    time.Time
}

func NewServer(
	cfg *config.Config,
	clock clockwork.Clock,
	sessionRepo domain.SessionRepository,
	userRepo domain.UserRepository,
	messageRepo domain.MessageRepository,
	hub Hub,
	healthChecks []HealthCheck,
) (*Server, error) {
	templates, err := template.ParseFS(web.TemplateFiles, "templates/*.html")
	if err != nil {
		return nil, fmt.Errorf("failed to parse templates: %w", err)
	}

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	srv := &Server{
		echo:         e,
		config:       cfg,
		clock:        clock,
		sessions:     sessionRepo,
		users:        userRepo,
		messages:     messageRepo,
		hub:          hub,
		templates:    templates,
		cookieStore:  setupCookieStore(cfg),
		healthChecks: healthChecks,
		startTime:    clock.Now(),
	}

	srv.registerRoutes()

	return srv, nil
}

func (s *Server) Start() error {
	slog.Info("Starting server", "port", s.config.Port)
	if err := s.echo.Start(":" + s.config.Port); err != nil {
		return fmt.Errorf("failed to start server: %w", err)
	}
	return nil
}

func (s *Server) Shutdown(ctx context.Context) error {
	if err := s.echo.Shutdown(ctx); err != nil {
		return fmt.Errorf("failed to shutdown server: %w", err)
	}
	return nil
}

func (s *Server) renderTemplate(c echo.Context, name string, data any) error {
	var buf bytes.Buffer
	if err := s.templates.ExecuteTemplate(&buf, name, data); err != nil {
		slog.Error("Template execution failed", "template", name, "path", c.Request().URL.Path, "error", err)
		if err := c.String(http.StatusInternalServerError, "Failed to render page"); err != nil {
			return fmt.Errorf("failed to send error response: %w", err)
		}
		return nil
	}
	if err := c.HTMLBlob(http.StatusOK, buf.Bytes()); err != nil {
		return fmt.Errorf("failed to send HTML response: %w", err)
	}
	return nil
}

// renderMessage produces the transport payload for one message. It is a pure
// function of the message: the same input always renders the same bytes.
func (s *Server) renderMessage(msg *domain.Message) ([]byte, error) {
	var buf bytes.Buffer
	if err := s.templates.ExecuteTemplate(&buf, "message", msg); err != nil {
		return nil, fmt.Errorf("failed to render message: %w", err)
	}
	return buf.Bytes(), nil
}

func setupCookieStore(cfg *config.Config) *sessions.CookieStore {
	cookieStore := sessions.NewCookieStore([]byte(cfg.SessionSecret))
	cookieStore.Options = &sessions.Options{
		Path:     "/",
		MaxAge:   int(cfg.SessionMaxAge.Seconds()),
		HttpOnly: true,
		Secure:   cfg.AppEnv == "production",
		SameSite: http.SameSiteLaxMode,
	}
	return cookieStore
}
