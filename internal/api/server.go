// Package api exposes the inbox over HTTP and a websocket notification channel.
package api

import (
	"context"
	"errors"
	"net"
	"time"

	"github.com/gofiber/contrib/websocket"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/matheus3301/inbox/internal/bus"
	"github.com/matheus3301/inbox/internal/conversation"
	"github.com/matheus3301/inbox/internal/inbox"
	"github.com/matheus3301/inbox/internal/ingest"
	"github.com/matheus3301/inbox/internal/status"
	"github.com/matheus3301/inbox/internal/store"
	"go.uber.org/zap"
)

// Inbox is the set of operations served over HTTP.
type Inbox interface {
	ListConversations(ctx context.Context) ([]conversation.Summary, error)
	ListMessages(ctx context.Context, conversationID string, page, pageSize int) ([]store.Message, error)
	SendMessage(ctx context.Context, req inbox.SendRequest) (*store.Message, error)
	SetMessageStatus(ctx context.Context, id, status string) (*store.Message, error)
	IngestPayload(ctx context.Context, raw []byte) (ingest.Result, error)
	IngestSampleDir(ctx context.Context, sub string) (ingest.DirResult, error)
	SearchMessages(ctx context.Context, query, conversationID string, limit int) ([]store.SearchResult, error)
	Stats(ctx context.Context) (*inbox.Stats, error)
}

// Server owns the fiber application.
type Server struct {
	app     *fiber.App
	svc     Inbox
	bus     *bus.Bus
	machine *status.Machine
	logger  *zap.Logger
}

// NewServer builds the HTTP application and registers every route.
func NewServer(svc Inbox, b *bus.Bus, machine *status.Machine, logger *zap.Logger) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &Server{svc: svc, bus: b, machine: machine, logger: logger}
	s.app = fiber.New(fiber.Config{
		AppName:               "inboxd",
		DisableStartupMessage: true,
		ErrorHandler:          s.handleError,
	})
	s.app.Use(recover.New())
	s.app.Use(requestLogger(logger))
	s.routes()
	return s
}

func (s *Server) routes() {
	api := s.app.Group("/api")
	api.Get("/health", s.health)
	api.Get("/conversations", s.listConversations)
	api.Get("/messages/:conversationId", s.listMessages)
	api.Post("/messages", s.sendMessage)
	api.Put("/messages/:id/status", s.setMessageStatus)
	api.Post("/webhook/process-payload", s.processPayload)
	api.Post("/load-sample-data", s.loadSampleData)
	api.Get("/search", s.searchMessages)
	api.Get("/debug/messages", s.debugMessages)

	s.app.Use("/ws", func(c *fiber.Ctx) error {
		if websocket.IsWebSocketUpgrade(c) {
			return c.Next()
		}
		return fiber.ErrUpgradeRequired
	})
	s.app.Get("/ws", websocket.New(s.handleWebSocket))
}

// App returns the underlying fiber application, mainly for tests.
func (s *Server) App() *fiber.App {
	return s.app
}

// Serve accepts connections on ln until Shutdown is called.
func (s *Server) Serve(ln net.Listener) error {
	s.logger.Info("http server starting", zap.String("addr", ln.Addr().String()))
	return s.app.Listener(ln)
}

// Shutdown stops accepting connections and waits for in-flight requests.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("http server stopping")
	return s.app.ShutdownWithContext(ctx)
}

func (s *Server) handleError(c *fiber.Ctx, err error) error {
	code := fiber.StatusInternalServerError
	var fe *fiber.Error
	switch {
	case errors.As(err, &fe):
		code = fe.Code
	case errors.Is(err, inbox.ErrInvalidArgument), errors.Is(err, ingest.ErrNoDirectory):
		code = fiber.StatusBadRequest
	}
	if code >= fiber.StatusInternalServerError {
		s.logger.Error("request failed", zap.String("path", c.Path()), zap.Error(err))
	}
	return c.Status(code).JSON(fiber.Map{"error": err.Error()})
}

func requestLogger(logger *zap.Logger) fiber.Handler {
	return func(c *fiber.Ctx) error {
		start := time.Now()
		err := c.Next()
		logger.Debug("request",
			zap.String("method", c.Method()),
			zap.String("path", c.Path()),
			zap.Int("status", c.Response().StatusCode()),
			zap.Duration("elapsed", time.Since(start)),
			zap.Error(err))
		return err
	}
}
