// Command server runs the agent gateway HTTP API.
//
//	@title						Agent Gateway API
//	@version					1.0
//	@description				Credential broker, extension session bridge and provider router for AI providers.
//	@BasePath					/
//	@securityDefinitions.apikey	BearerAuth
//	@in							header
//	@name						Authorization
package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/atlasagent/agent-gateway/internal/api"
	"github.com/atlasagent/agent-gateway/internal/api/handler"
	"github.com/atlasagent/agent-gateway/internal/api/metrics"
	"github.com/atlasagent/agent-gateway/internal/core/domain"
	"github.com/atlasagent/agent-gateway/internal/core/ports"
	"github.com/atlasagent/agent-gateway/internal/core/service"
	"github.com/atlasagent/agent-gateway/internal/infrastructure/config"
	mongodb "github.com/atlasagent/agent-gateway/internal/infrastructure/db/mongo"
	redisdb "github.com/atlasagent/agent-gateway/internal/infrastructure/db/redis"
	"github.com/atlasagent/agent-gateway/internal/infrastructure/db/sqlite"
	"github.com/atlasagent/agent-gateway/internal/infrastructure/llm"
	"github.com/atlasagent/agent-gateway/internal/infrastructure/memory"
	"github.com/atlasagent/agent-gateway/internal/infrastructure/queue"
	"github.com/atlasagent/agent-gateway/internal/infrastructure/secret"
	"github.com/atlasagent/agent-gateway/pkg/logger"
)

const shutdownTimeout = 15 * time.Second

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx); err != nil {
		// run may fail before the logger is initialised.
		l := zerolog.New(os.Stderr).With().Timestamp().Logger()
		l.Fatal().Err(err).Msg("server stopped")
	}
}

// storage is what the selected storage driver provides.
type storage struct {
	users   ports.UserRepository
	archive ports.InteractionArchive
	health  []handler.HealthCheck
	close   func(ctx context.Context) error
}

func run(ctx context.Context) error {
	cfg, err := config.Load(ctx)
	if err != nil {
		return err
	}

	log := logger.Init(logger.Options{
		Level:   cfg.LogLevel,
		Pretty:  cfg.IsDevelopment(),
		Service: "agent-gateway",
	})

	key, err := cfg.SealingKey()
	if err != nil {
		return err
	}
	sealer, err := secret.NewSealer(key)
	if err != nil {
		return err
	}

	store, err := openStorage(ctx, cfg, sealer)
	if err != nil {
		return err
	}
	defer func() {
		closeCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := store.close(closeCtx); err != nil {
			log.Warn().Err(err).Msg("close storage")
		}
	}()

	sessions, sessionHealth, closeSessions, err := openSessionStore(ctx, cfg)
	if err != nil {
		return err
	}
	defer closeSessions()

	registry := service.MustDefaultRegistry()
	recorder := metrics.Recorder{}

	endpoints, missing := llm.ResolveEndpoints(registry.IDs(), cfg.ProviderEndpoints(registry.IDs()))
	for _, id := range missing {
		log.Warn().Str("provider", id).Msg("no upstream endpoint configured, provider disabled")
	}
	clients, err := llm.BuildClients(endpoints, &http.Client{})
	if err != nil {
		return err
	}

	var dispatcher *queue.Dispatcher
	var sink func(rec domain.InteractionRecord)
	if store.archive != nil {
		dispatcher = queue.NewDispatcher(cfg.Archive.Workers, store.archive, recorder, logger.Component("archive"))
		sink = dispatcher.Enqueue
	}
	history := memory.NewInteractionLog(sink)
	if store.archive != nil && cfg.Archive.HistoryPreload > 0 {
		recent, err := store.archive.Recent(ctx, cfg.Archive.HistoryPreload)
		if err != nil {
			log.Warn().Err(err).Msg("history preload failed")
		} else {
			history.Preload(recent)
		}
	}

	auth := service.NewAuthService(store.users, registry, service.AuthConfig{
		JWTSecret:    cfg.JWTSecret,
		TokenTTL:     cfg.JWTTTL,
		KeyAllowList: cfg.Provider.KeyAllowList,
		Metrics:      recorder,
	}, logger.Component("auth"))

	broker := service.NewSessionBroker(auth, registry, sessions, service.BrokerConfig{
		IdleTTL:   cfg.Sessions.IdleTTL,
		Retention: cfg.Sessions.Retention,
		Metrics:   recorder,
	}, logger.Component("sessions"))
	auth.SetSessionRevoker(broker)

	router := service.NewProviderRouter(registry, clients, cfg.Provider.Timeout, recorder, logger.Component("router"))
	global := service.NewGlobalScope(registry, cfg.Secret)
	exec := service.NewExecutionService(router, registry, global, store.users, history, logger.Component("execution"))

	e := api.NewRouter(api.Dependencies{
		Auth:            auth,
		Broker:          broker,
		Exec:            exec,
		Catalog:         registry,
		Health:          append(store.health, sessionHealth...),
		LoginRatePerMin: cfg.LoginRatePerMin,
		Log:             log,
	})

	log.Info().
		Str("port", cfg.Port).
		Str("storage", cfg.StorageDriver).
		Str("sessions", cfg.SessionStore).
		Int("providers", len(clients)).
		Msg("server starting")

	loops := []func(context.Context) error{
		func(ctx context.Context) error { return broker.Run(ctx, cfg.Sessions.SweepInterval) },
	}
	var archive func(context.Context) error
	if dispatcher != nil {
		archive = dispatcher.Run
	}
	return serve(ctx, e, ":"+cfg.Port, loops, archive)
}

// httpServer is the part of *echo.Echo that serve drives.
type httpServer interface {
	Start(address string) error
	Shutdown(ctx context.Context) error
}

// serve runs srv and loops until ctx is done, then drains srv. archive is
// stopped only after the drain returns, so records appended by requests that
// finish during shutdown are still handed to it.
func serve(ctx context.Context, srv httpServer, addr string, loops []func(context.Context) error, archive func(context.Context) error) error {
	archiveCtx, stopArchive := context.WithCancel(context.Background())
	defer stopArchive()

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		if err := srv.Start(addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		<-gctx.Done()
		defer stopArchive()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	for _, loop := range loops {
		g.Go(func() error { return loop(gctx) })
	}

	if archive != nil {
		g.Go(func() error { return archive(archiveCtx) })
	}

	return g.Wait()
}

func openStorage(ctx context.Context, cfg *config.Config, sealer *secret.Sealer) (*storage, error) {
	switch cfg.StorageDriver {
	case config.StorageMongo:
		client, db, err := mongodb.Connect(ctx, mongodb.Config{
			URI:      cfg.Mongo.URI,
			Database: cfg.Mongo.Database,
			AppName:  "agent-gateway",
		})
		if err != nil {
			return nil, err
		}
		if err := mongodb.EnsureIndexes(ctx, db); err != nil {
			_ = client.Disconnect(ctx)
			return nil, err
		}
		return &storage{
			users:   mongodb.NewUserRepository(db, sealer),
			archive: mongodb.NewInteractionArchive(db),
			health: []handler.HealthCheck{{Name: "mongo", Ping: func(ctx context.Context) error {
				return client.Ping(ctx, nil)
			}}},
			close: client.Disconnect,
		}, nil

	case config.StorageSQLite:
		st, err := sqlite.New(ctx, cfg.SQLite.Path)
		if err != nil {
			return nil, err
		}
		return &storage{
			users:   st.Users(sealer),
			archive: st.Interactions(),
			health:  []handler.HealthCheck{{Name: "sqlite", Ping: st.Ping}},
			close:   func(context.Context) error { return st.Close() },
		}, nil

	default:
		return &storage{
			users: memory.NewUserRepository(),
			close: func(context.Context) error { return nil },
		}, nil
	}
}

func openSessionStore(ctx context.Context, cfg *config.Config) (ports.SessionStore, []handler.HealthCheck, func(), error) {
	if cfg.SessionStore != config.SessionsRedis {
		return memory.NewSessionStore(), nil, func() {}, nil
	}

	client, err := redisdb.Connect(ctx, redisdb.Config{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	if err != nil {
		return nil, nil, nil, err
	}
	checks := []handler.HealthCheck{{Name: "redis", Ping: func(ctx context.Context) error {
		return client.Ping(ctx).Err()
	}}}
	store := redisdb.NewSessionStore(client, cfg.Sessions.IdleTTL+cfg.Sessions.Retention)
	return store, checks, func() { _ = client.Close() }, nil
}
