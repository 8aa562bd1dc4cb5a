package daemon

import (
	"context"

	"go.uber.org/fx"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/raptchat/rapt/internal/api"
	"github.com/raptchat/rapt/internal/auth"
	"github.com/raptchat/rapt/internal/bus"
	"github.com/raptchat/rapt/internal/config"
	"github.com/raptchat/rapt/internal/device"
	"github.com/raptchat/rapt/internal/lock"
	"github.com/raptchat/rapt/internal/logging"
	"github.com/raptchat/rapt/internal/metrics"
	"github.com/raptchat/rapt/internal/raptapi"
	"github.com/raptchat/rapt/internal/realtime"
	"github.com/raptchat/rapt/internal/session"
	"github.com/raptchat/rapt/internal/status"
	"github.com/raptchat/rapt/internal/store"
	intsync "github.com/raptchat/rapt/internal/sync"
)

// Params holds the resolved session configuration passed to the fx module.
type Params struct {
	SessionName string
	SocketPath  string // optional override for testing; empty = use default
	ConfigPath  string // optional override; empty = ~/.rapt/config.toml
	LogLevel    zapcore.Level
	Quiet       bool
}

// Module returns the fx module for the daemon, composing all providers and lifecycle hooks.
func Module(p Params) fx.Option {
	return fx.Module("daemon",
		fx.Supply(p),
		fx.Provide(
			provideConfig,
			provideLogger,
			provideBus,
			provideStateMachine,
			provideLock,
			provideStore,
			provideMetrics,
			provideAPIClient,
			provideAuth,
			provideDeviceSource,
			provideContactEngine,
			provideChatEngine,
			provideRunner,
			provideService,
			NewServer,
		),
		fx.Invoke(registerLifecycle),
	)
}

func provideConfig(p Params) (*config.Config, error) {
	path := p.ConfigPath
	if path == "" {
		path = session.ConfigPath()
	}
	return config.LoadOrDefault(path)
}

func provideLogger(p Params) (*zap.Logger, error) {
	return logging.New(logging.Options{
		Path:    session.LogPath(p.SessionName),
		Session: p.SessionName,
		Level:   p.LogLevel,
		Quiet:   p.Quiet,
	})
}

func provideBus() *bus.Bus {
	return bus.New()
}

func provideStateMachine(b *bus.Bus) *status.Machine {
	return status.NewMachine(b)
}

func provideLock(p Params, logger *zap.Logger) (*lock.Lock, error) {
	if err := session.EnsureDir(p.SessionName); err != nil {
		return nil, err
	}
	logger.Info("acquiring session lock", zap.String("session", p.SessionName))
	l, err := lock.Acquire(session.Dir(p.SessionName))
	if err != nil {
		return nil, err
	}
	logger.Info("session lock acquired")
	return l, nil
}

// provideStore depends on the lock so the database is never opened by a
// second daemon.
func provideStore(p Params, _ *lock.Lock, logger *zap.Logger) (*store.DB, error) {
	dbPath := session.DBPath(p.SessionName)
	db, err := store.Open(dbPath)
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
	logger.Info("store initialized", zap.String("path", dbPath))
	return db, nil
}

func provideMetrics(b *bus.Bus) *metrics.Metrics {
	m := metrics.New()
	m.WatchBus(b.Dropped, b.Subscribers)
	return m
}

func provideAPIClient(cfg *config.Config) *raptapi.Client {
	return raptapi.New(cfg.APIBaseURL, cfg.ClientID, cfg.ClientSecret,
		raptapi.WithTimeout(cfg.RequestTimeout.Duration))
}

func provideAuth(client *raptapi.Client, db *store.DB, b *bus.Bus, logger *zap.Logger) *auth.Provider {
	return auth.NewProvider(client, db, b, logger.Named("auth"))
}

func provideDeviceSource(cfg *config.Config) device.Source {
	return device.NewFileSource(cfg.DeviceContactsPath)
}

func provideContactEngine(db *store.DB, client *raptapi.Client, provider *auth.Provider, src device.Source, b *bus.Bus, m *metrics.Metrics, logger *zap.Logger) *intsync.ContactEngine {
	return intsync.NewContactEngine(db, client, provider, src, b, m, logger.Named("contacts"))
}

func provideChatEngine(cfg *config.Config, db *store.DB, client *raptapi.Client, provider *auth.Provider, b *bus.Bus, m *metrics.Metrics, logger *zap.Logger) *intsync.ChatEngine {
	return intsync.NewChatEngine(db, client, provider, b, m, logger.Named("chats"), intsync.ChatOptions{
		SocketBaseURL: cfg.SocketBaseURL,
		Dialer:        realtime.WebsocketDialer{},
		PingInterval:  cfg.PingInterval.Duration,
	})
}

func provideRunner(contacts *intsync.ContactEngine, chats *intsync.ChatEngine, machine *status.Machine, b *bus.Bus, logger *zap.Logger) *intsync.Runner {
	return intsync.NewRunner(contacts, chats, machine, b, logger.Named("sync"))
}

func provideService(p Params, machine *status.Machine, provider *auth.Provider, runner *intsync.Runner, contacts *intsync.ContactEngine, chats *intsync.ChatEngine, db *store.DB, b *bus.Bus, logger *zap.Logger) *api.Service {
	return api.NewService(p.SessionName, machine, provider, runner, contacts, chats, db, b, logger.Named("api"))
}

func registerLifecycle(lc fx.Lifecycle, srv *Server, lk *lock.Lock, db *store.DB, runner *intsync.Runner, chats *intsync.ChatEngine, machine *status.Machine, logger *zap.Logger) {
	lc.Append(fx.Hook{
		OnStart: func(_ context.Context) error {
			chats.Start(context.Background())
			runner.Start(context.Background())

			go func() {
				if err := srv.Start(); err != nil {
					logger.Error("gRPC server error", zap.Error(err))
				}
			}()
			srv.StartMetrics()

			cred, err := db.GetCredential()
			if err != nil {
				return err
			}
			if cred == nil {
				logger.Info("no credential found, auth required")
				_ = machine.Transition(status.AuthRequired)
				return nil
			}
			_ = machine.Transition(status.Ready)
			go runner.SyncAll(context.Background())
			return nil
		},
		OnStop: func(ctx context.Context) error {
			runner.Stop()
			chats.Stop()
			srv.Stop(ctx)
			if err := db.Close(); err != nil {
				logger.Warn("error closing store", zap.Error(err))
			}
			if err := lk.Release(); err != nil {
				logger.Warn("error releasing lock", zap.Error(err))
			}
			logger.Info("daemon stopped")
			_ = logger.Sync()
			return nil
		},
	})
}
