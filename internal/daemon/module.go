package daemon

import (
	"context"
	"os"

	"go.uber.org/fx"
	"go.uber.org/zap"

	"github.com/gbarros/wamux/internal/authstate"
	"github.com/gbarros/wamux/internal/bus"
	"github.com/gbarros/wamux/internal/config"
	"github.com/gbarros/wamux/internal/gateway"
	"github.com/gbarros/wamux/internal/lifecycle"
	"github.com/gbarros/wamux/internal/lock"
	"github.com/gbarros/wamux/internal/logging"
	"github.com/gbarros/wamux/internal/meta"
	"github.com/gbarros/wamux/internal/registry"
	"github.com/gbarros/wamux/internal/session"
	"github.com/gbarros/wamux/internal/wa"
)

// Params holds the resolved startup configuration passed to the fx module.
type Params struct {
	BaseDir    string
	ConfigPath string // optional override; empty = <base>/config.toml
	SocketPath string // optional override for testing; empty = use default
}

// Module returns the fx module for the daemon, composing all providers and
// lifecycle hooks.
func Module(p Params) fx.Option {
	return fx.Module("daemon",
		fx.Supply(p),
		fx.Provide(
			provideConfig,
			provideLogger,
			provideBus,
			provideLock,
			provideMetaDB,
			provideAuthState,
			provideFactory,
			provideRegistry,
			provideSupervisor,
			provideGateway,
			NewServer,
		),
		fx.Invoke(registerLifecycle),
	)
}

func provideConfig(p Params) (*config.Config, error) {
	path := p.ConfigPath
	if path == "" {
		path = session.ConfigPath(p.BaseDir)
	}
	return config.Load(path, p.BaseDir)
}

func provideLogger(cfg *config.Config) (*zap.Logger, error) {
	return logging.New(session.LogPath(cfg.BaseDir), cfg.BaseDir)
}

func provideBus() *bus.Bus {
	return bus.New()
}

func provideLock(cfg *config.Config, logger *zap.Logger) (*lock.Lock, error) {
	if err := os.MkdirAll(cfg.BaseDir, 0700); err != nil {
		return nil, err
	}
	logger.Info("acquiring daemon lock", zap.String("base_dir", cfg.BaseDir))
	l, err := lock.Acquire(session.LockPath(cfg.BaseDir))
	if err != nil {
		return nil, err
	}
	logger.Info("daemon lock acquired")
	return l, nil
}

func provideMetaDB(cfg *config.Config, logger *zap.Logger) (*meta.DB, error) {
	dbPath := session.MetaDBPath(cfg.BaseDir)
	db, err := meta.Open(dbPath)
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
	logger.Info("metadata store initialized", zap.String("path", dbPath))
	return db, nil
}

func provideAuthState(cfg *config.Config) *authstate.FSProvider {
	return authstate.NewFSProvider(cfg.BaseDir)
}

func provideFactory(cfg *config.Config, logger *zap.Logger) *wa.Factory {
	return wa.NewFactory(cfg.BaseDir, cfg.DeviceName, logger)
}

func provideRegistry() *registry.Registry[*lifecycle.Handle] {
	return registry.New[*lifecycle.Handle]()
}

func provideSupervisor(cfg *config.Config, factory *wa.Factory, reg *registry.Registry[*lifecycle.Handle], auth *authstate.FSProvider, db *meta.DB, b *bus.Bus, logger *zap.Logger) *lifecycle.Supervisor {
	baseDir := cfg.BaseDir
	opts := lifecycle.Options{
		ReconnectDelay: cfg.ReconnectDelay(),
		QRPath: func(sessionID string) string {
			return session.QRPath(baseDir, sessionID)
		},
	}
	return lifecycle.NewSupervisor(factory, reg, auth, db, b, opts, logger)
}

func provideGateway(sup *lifecycle.Supervisor, auth *authstate.FSProvider, logger *zap.Logger) *gateway.Gateway {
	return gateway.New(sup, auth, logger)
}

func registerLifecycle(lc fx.Lifecycle, srv *Server, lk *lock.Lock, db *meta.DB, sup *lifecycle.Supervisor, logger *zap.Logger) {
	lc.Append(fx.Hook{
		OnStart: func(_ context.Context) error {
			go func() {
				if err := srv.Start(); err != nil {
					logger.Error("gRPC server error", zap.Error(err))
				}
			}()
			return nil
		},
		OnStop: func(ctx context.Context) error {
			sup.Shutdown()
			srv.Stop(ctx)
			if err := db.Close(); err != nil {
				logger.Warn("error closing metadata store", zap.Error(err))
			}
			if err := lk.Release(); err != nil {
				logger.Warn("error releasing lock", zap.Error(err))
			}
			logger.Info("daemon stopped")
			return nil
		},
	})
}
