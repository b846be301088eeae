package daemon

import (
	"context"
	"errors"
	"time"

	"github.com/matheus3301/inbox/internal/api"
	"github.com/matheus3301/inbox/internal/bus"
	"github.com/matheus3301/inbox/internal/config"
	"github.com/matheus3301/inbox/internal/inbox"
	"github.com/matheus3301/inbox/internal/ingest"
	"github.com/matheus3301/inbox/internal/instance"
	"github.com/matheus3301/inbox/internal/lock"
	"github.com/matheus3301/inbox/internal/logging"
	"github.com/matheus3301/inbox/internal/status"
	"github.com/matheus3301/inbox/internal/store"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

// Params holds the resolved instance configuration passed to the fx module.
type Params struct {
	InstanceName string
	Config       *config.Config
	Listen       string // optional override for testing; empty = use Config.Server.Listen
}

func (p Params) listenAddr() string {
	if p.Listen != "" {
		return p.Listen
	}
	return p.Config.Server.Listen
}

// Module returns the fx module for the daemon, composing all providers and lifecycle hooks.
func Module(p Params) fx.Option {
	if p.Config == nil {
		p.Config = config.Default()
	}
	return fx.Module("daemon",
		fx.Supply(p),
		fx.Provide(
			provideLogger,
			provideBus,
			provideStateMachine,
			provideLock,
			provideStore,
			providePublisher,
			provideEngine,
			provideService,
			provideAPI,
			NewServer,
		),
		fx.Invoke(registerLifecycle),
	)
}

func provideLogger(p Params) (*zap.Logger, error) {
	return logging.New(instance.LogPath(p.InstanceName), p.InstanceName, p.Config.Log.Level)
}

func provideBus() *bus.Bus {
	return bus.New()
}

func provideStateMachine(logger *zap.Logger) *status.Machine {
	return status.NewMachine(func(c status.StatusChange) {
		logger.Info("state changed", zap.String("from", string(c.From)), zap.String("to", string(c.To)))
	})
}

func provideLock(p Params, logger *zap.Logger) (*lock.Lock, error) {
	if err := instance.EnsureDir(p.InstanceName); err != nil {
		return nil, err
	}
	logger.Info("acquiring instance lock", zap.String("instance", p.InstanceName))
	l, err := lock.Acquire(instance.Dir(p.InstanceName), "inboxd")
	if err != nil {
		return nil, err
	}
	logger.Info("instance lock acquired")
	return l, nil
}

// provideStore takes the lock as a dependency so the database is never opened by a
// second daemon for the same instance.
func provideStore(p Params, _ *lock.Lock, machine *status.Machine, logger *zap.Logger) (*store.DB, error) {
	dbPath := instance.DBPath(p.InstanceName)
	db, err := store.Open(dbPath)
	if err != nil {
		_ = machine.Transition(status.Error)
		return nil, err
	}
	_ = machine.Transition(status.Migrating)
	result, err := db.Migrate()
	if err != nil {
		_ = machine.Transition(status.Error)
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

// providePublisher returns the local bus, or a NATS or Redis relay in front of it when
// one is configured. Losing the relay connection degrades the daemon without stopping it.
func providePublisher(lc fx.Lifecycle, p Params, b *bus.Bus, machine *status.Machine, logger *zap.Logger) (bus.Publisher, error) {
	nc, rc := p.Config.NATS, p.Config.Redis
	if nc.URL != "" && rc.URL != "" {
		return nil, errors.New("configure either nats.url or redis.url, not both")
	}
	onConn := bus.WithConnectionHandler(func(connected bool) {
		if connected {
			_ = machine.Transition(status.Ready)
		} else {
			_ = machine.Transition(status.Degraded)
		}
	})

	var (
		pub        bus.Publisher
		closeRelay func() error
	)
	switch {
	case nc.URL != "":
		relay, err := bus.NewNATSRelay(nc.URL, nc.SubjectPrefix, b, logger.Named("nats"), onConn)
		if err != nil {
			return nil, err
		}
		pub, closeRelay = relay, relay.Close
	case rc.URL != "":
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		relay, err := bus.NewRedisRelay(ctx, rc.URL, rc.ChannelPrefix, b, logger.Named("redis"), onConn)
		if err != nil {
			return nil, err
		}
		pub, closeRelay = relay, relay.Close
	default:
		return b, nil
	}

	lc.Append(fx.Hook{
		OnStop: func(context.Context) error {
			return closeRelay()
		},
	})
	return pub, nil
}

func provideEngine(p Params, db *store.DB, pub bus.Publisher, logger *zap.Logger) *ingest.Engine {
	return ingest.NewEngine(db, pub, logger.Named("ingest"),
		ingest.WithBusinessLine(p.Config.Business.DisplayPhoneNumber))
}

func provideService(p Params, db *store.DB, engine *ingest.Engine, logger *zap.Logger) *inbox.Service {
	return inbox.NewService(db, engine, p.Config.Ingest.SampleDir, logger)
}

func provideAPI(svc *inbox.Service, b *bus.Bus, machine *status.Machine, logger *zap.Logger) *api.Server {
	return api.NewServer(svc, b, machine, logger.Named("http"))
}

func registerLifecycle(lc fx.Lifecycle, srv *Server, lk *lock.Lock, db *store.DB, machine *status.Machine, logger *zap.Logger) {
	lc.Append(fx.Hook{
		OnStart: func(_ context.Context) error {
			go func() {
				if err := srv.Start(); err != nil {
					logger.Error("http server error", zap.Error(err))
					_ = machine.Transition(status.Error)
				}
			}()
			return machine.Transition(status.Ready)
		},
		OnStop: func(ctx context.Context) error {
			_ = machine.Transition(status.Stopping)
			var errs []error
			if err := srv.Stop(ctx); err != nil {
				errs = append(errs, err)
			}
			if err := db.Close(); err != nil {
				errs = append(errs, err)
			}
			if err := lk.Release(); err != nil {
				logger.Warn("error releasing lock", zap.Error(err))
			}
			logger.Info("daemon stopped")
			_ = logger.Sync()
			return errors.Join(errs...)
		},
	})
}
