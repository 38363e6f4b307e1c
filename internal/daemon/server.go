package daemon

import (
	"context"
	"net"

	"github.com/gofiber/contrib/websocket"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/crewdesk/relay/internal/chat"
	"github.com/crewdesk/relay/internal/config"
	"github.com/crewdesk/relay/internal/hub"
	"github.com/crewdesk/relay/internal/identity"
	"github.com/crewdesk/relay/internal/router"
	"github.com/crewdesk/relay/internal/upload"
)

// Server is the Fiber app serving the websocket endpoint plus health and
// metrics.
type Server struct {
	app    *fiber.App
	cfg    *config.Config
	logger *zap.Logger
}

// NewServer builds the HTTP surface: GET /ws (upgrade), POST /upload,
// static /uploads, /healthz and /metrics.
func NewServer(cfg *config.Config, verifier identity.Verifier, h *hub.Hub, rt *router.Router, svc *chat.Service, pub *upload.Publisher, logger *zap.Logger) *Server {
	app := fiber.New(fiber.Config{
		DisableStartupMessage: true,
		ReadBufferSize:        8192,
		BodyLimit:             int(cfg.MaxAttachmentSize) + (1 << 20),
	})

	ws := &wsHandler{cfg: cfg, verifier: verifier, router: rt, logger: logger}
	up := &uploadHandler{cfg: cfg, verifier: verifier, svc: svc, pub: pub, logger: logger}

	app.Use("/ws", func(c *fiber.Ctx) error {
		if websocket.IsWebSocketUpgrade(c) {
			return c.Next()
		}
		return fiber.ErrUpgradeRequired
	})
	app.Get("/ws", websocket.New(ws.serve, websocket.Config{
		HandshakeTimeout: cfg.HandshakeTimeout.Duration,
	}))

	app.Post("/upload", up.handle)
	app.Static("/uploads", cfg.UploadDir)

	app.Get("/healthz", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{"status": "ok", "sessions": h.Count()})
	})
	app.Get("/metrics", adaptor.HTTPHandler(promhttp.Handler()))

	return &Server{app: app, cfg: cfg, logger: logger}
}

// Start begins serving. Blocks until shutdown.
func (s *Server) Start() error {
	s.logger.Info("server starting", zap.String("listen", s.cfg.Listen))
	return s.app.Listen(s.cfg.Listen)
}

// Serve accepts connections from an existing listener, for callers that
// bind the port themselves (tests use an ephemeral one).
func (s *Server) Serve(ln net.Listener) error {
	return s.app.Listener(ln)
}

// Stop performs a graceful shutdown.
func (s *Server) Stop(ctx context.Context) error {
	s.logger.Info("server stopping")
	return s.app.ShutdownWithContext(ctx)
}
