// Package daemon wires relayd: configuration, store, identity gate, hub,
// router and the Fiber server, composed as an fx module.
package daemon

import (
	"context"

	"go.uber.org/fx"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/crewdesk/relay/internal/bus"
	"github.com/crewdesk/relay/internal/chat"
	"github.com/crewdesk/relay/internal/config"
	"github.com/crewdesk/relay/internal/hub"
	"github.com/crewdesk/relay/internal/identity"
	"github.com/crewdesk/relay/internal/logging"
	"github.com/crewdesk/relay/internal/router"
	"github.com/crewdesk/relay/internal/store"
	"github.com/crewdesk/relay/internal/upload"
)

// Params holds the resolved startup options passed to the fx module.
type Params struct {
	ConfigPath string
}

// Module returns the fx module for relayd, composing all providers and
// lifecycle hooks.
func Module(p Params) fx.Option {
	return fx.Module("relayd",
		fx.Supply(p),
		fx.Provide(
			provideConfig,
			provideLogger,
			provideBus,
			provideStore,
			provideVerifier,
			provideChatService,
			provideHub,
			provideRouter,
			provideUploadPublisher,
			NewServer,
		),
		fx.Invoke(registerLifecycle),
	)
}

func provideConfig(p Params) (*config.Config, error) {
	return config.Load(p.ConfigPath)
}

func provideLogger(cfg *config.Config) (*zap.Logger, error) {
	return logging.New(cfg.LogPath)
}

func provideBus() *bus.Bus {
	return bus.New()
}

func provideStore(cfg *config.Config, logger *zap.Logger) (*store.DB, error) {
	db, err := store.Open(cfg.DBPath)
	if err != nil {
		return nil, err
	}
	result, err := db.Migrate()
	if err != nil {
		_ = db.Close()
		return nil, err
	}
	if result.Changed {
		logger.Info("migrations applied", zap.Uint("version", result.Version))
	} else {
		logger.Info("migrations up to date", zap.Uint("version", result.Version))
	}
	logger.Info("store initialized", zap.String("path", cfg.DBPath))
	return db, nil
}

func provideVerifier(db *store.DB) identity.Verifier {
	return identity.NewTokenVerifier(db, nil)
}

func provideChatService(cfg *config.Config, db *store.DB, logger *zap.Logger) *chat.Service {
	limits := chat.Limits{
		MaxContentLen:     cfg.MaxContentLen,
		MaxAttachmentSize: cfg.MaxAttachmentSize,
	}
	return chat.NewService(db, limits, logger)
}

func provideHub() *hub.Hub {
	return hub.New()
}

func provideRouter(cfg *config.Config, h *hub.Hub, svc *chat.Service, b *bus.Bus, logger *zap.Logger) *router.Router {
	opts := router.Options{
		EventRate:  rate.Limit(cfg.EventRate),
		EventBurst: cfg.EventBurst,
	}
	return router.New(h, svc, b, opts, logger)
}

func provideUploadPublisher(b *bus.Bus) *upload.Publisher {
	return upload.NewPublisher(b)
}

func registerLifecycle(lc fx.Lifecycle, srv *Server, rt *router.Router, db *store.DB, logger *zap.Logger) {
	lc.Append(fx.Hook{
		OnStart: func(_ context.Context) error {
			rt.StartUploadRelay(context.Background())

			go func() {
				if err := srv.Start(); err != nil {
					logger.Error("server error", zap.Error(err))
				}
			}()
			return nil
		},
		OnStop: func(ctx context.Context) error {
			if err := srv.Stop(ctx); err != nil {
				logger.Warn("shutdown error", zap.Error(err))
			}
			rt.StopUploadRelay()
			if err := db.Close(); err != nil {
				logger.Warn("closing store", zap.Error(err))
			}
			logger.Info("relayd stopped")
			return nil
		},
	})
}
