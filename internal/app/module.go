// Package app composes one running huddle session out of its parts: config,
// logging, the event bus, the per-user lock, the archive, the group service
// client, the channel, and the session controller.
package app

import (
	"context"
	"errors"
	"net/http"
	"time"

	"go.uber.org/fx"
	"go.uber.org/zap"

	"github.com/ajoshi-dev/huddle/internal/archive"
	"github.com/ajoshi-dev/huddle/internal/bus"
	"github.com/ajoshi-dev/huddle/internal/channel"
	"github.com/ajoshi-dev/huddle/internal/config"
	"github.com/ajoshi-dev/huddle/internal/expiry"
	"github.com/ajoshi-dev/huddle/internal/groupapi"
	"github.com/ajoshi-dev/huddle/internal/lock"
	"github.com/ajoshi-dev/huddle/internal/logging"
	"github.com/ajoshi-dev/huddle/internal/metrics"
	"github.com/ajoshi-dev/huddle/internal/session"
)

// Params holds the resolved session identity passed to the fx module.
type Params struct {
	Group      string
	User       string
	JustJoined bool
}

// Module returns the fx module for a client session, composing all providers
// and lifecycle hooks.
func Module(p Params, cfg *config.Config) fx.Option {
	return fx.Module("app",
		fx.Supply(p, cfg),
		fx.Provide(
			provideLogger,
			provideBus,
			provideLock,
			provideArchive,
			provideGroupClient,
			provideChannel,
			provideClock,
			provideController,
		),
		fx.Invoke(registerLifecycle),
	)
}

func provideLogger(p Params) (*zap.Logger, error) {
	return logging.New(config.LogPath(p.User), p.User)
}

func provideBus() *bus.Bus {
	return bus.New()
}

func provideLock(p Params, logger *zap.Logger) (*lock.Guard, error) {
	if err := config.EnsureUserDir(p.User); err != nil {
		return nil, err
	}
	logger.Info("acquiring user lock", zap.String("user", p.User))
	g, err := lock.Acquire(config.UserDir(p.User))
	if err != nil {
		return nil, err
	}
	logger.Info("user lock acquired")
	return g, nil
}

func provideArchive(p Params, cfg *config.Config, logger *zap.Logger) (*archive.DB, error) {
	if !cfg.Archive {
		logger.Info("archive disabled")
		return nil, nil
	}
	dbPath := config.ArchiveDBPath(p.User)
	db, err := archive.Open(dbPath)
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
	logger.Info("archive initialized", zap.String("path", dbPath))
	return db, nil
}

func provideGroupClient(cfg *config.Config, logger *zap.Logger) *groupapi.Client {
	return groupapi.New(cfg.ServerURL, logger)
}

func provideChannel(cfg *config.Config, b *bus.Bus, logger *zap.Logger) *channel.Conn {
	return channel.New(cfg.SocketURL, b, logger)
}

func provideClock(b *bus.Bus) *expiry.Clock {
	return expiry.New(b)
}

func provideController(p Params, client *groupapi.Client, conn *channel.Conn, clock *expiry.Clock, db *archive.DB, b *bus.Bus, logger *zap.Logger) (*session.Controller, error) {
	// A nil *archive.DB must stay a nil interface, not a typed nil.
	var sink session.Sink
	if db != nil {
		sink = db
	}
	return session.New(session.Params{
		Group:      p.Group,
		LocalUser:  p.User,
		JustJoined: p.JustJoined,
	}, client, conn, clock, b, sink, logger)
}

func registerLifecycle(lc fx.Lifecycle, ctrl *session.Controller, cfg *config.Config, db *archive.DB, lk *lock.Guard, logger *zap.Logger) {
	var metricsSrv *http.Server
	if cfg.MetricsAddr != "" {
		mux := http.NewServeMux()
		mux.Handle("/metrics", metrics.Handler())
		metricsSrv = &http.Server{Addr: cfg.MetricsAddr, Handler: mux}
	}

	lc.Append(fx.Hook{
		OnStart: func(_ context.Context) error {
			if metricsSrv != nil {
				go func() {
					logger.Info("metrics listening", zap.String("addr", cfg.MetricsAddr))
					if err := metricsSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
						logger.Error("metrics server error", zap.Error(err))
					}
				}()
			}

			// Start in the background so a slow history load or a connect
			// failure never wedges process startup; the failure surfaces
			// through the session status.
			go func() {
				if err := ctrl.Start(context.Background()); err != nil {
					logger.Error("session start failed", zap.Error(err))
				}
			}()
			return nil
		},
		OnStop: func(ctx context.Context) error {
			ctrl.Stop()
			if metricsSrv != nil {
				shutdownCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
				defer cancel()
				_ = metricsSrv.Shutdown(shutdownCtx)
			}
			if db != nil {
				_ = db.Close()
			}
			if err := lk.Release(); err != nil {
				logger.Warn("error releasing lock", zap.Error(err))
			}
			logger.Info("client stopped")
			return nil
		},
	})
}
