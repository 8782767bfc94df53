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

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/choiseongjun/chat-with-stream/internal/broadcast"
	"github.com/choiseongjun/chat-with-stream/internal/cache"
	"github.com/choiseongjun/chat-with-stream/internal/config"
	"github.com/choiseongjun/chat-with-stream/internal/handler"
	"github.com/choiseongjun/chat-with-stream/internal/hub"
	"github.com/choiseongjun/chat-with-stream/internal/repository"
	"github.com/choiseongjun/chat-with-stream/internal/service"
	"github.com/choiseongjun/chat-with-stream/pkg/database"
	pkglog "github.com/choiseongjun/chat-with-stream/pkg/log"
	"github.com/choiseongjun/chat-with-stream/pkg/pubsub"
)

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		l := pkglog.L()
		l.Fatal().Err(err).Msg("failed to load config")
	}

	// Initialize structured logger
	pkglog.Init(cfg.Log)
	logger := pkglog.L()

	nodeID := uuid.New().String()
	logger = logger.With().Str(pkglog.FieldNodeID, nodeID).Logger()
	pkglog.SetGlobal(logger)

	// Every node needs its own consumer group to see every message
	if cfg.PubSub.Driver == pubsub.DriverKafka {
		cfg.PubSub.Kafka.GroupID = fmt.Sprintf("%s-%s", cfg.PubSub.Kafka.GroupID, nodeID)
	}

	ps, err := pubsub.NewPubSub(cfg.PubSub)
	if err != nil {
		logger.Fatal().Err(err).Str(pkglog.FieldDriver, cfg.PubSub.Driver).Msg("failed to initialize pubsub")
	}
	defer ps.Close()
	logger.Info().Str(pkglog.FieldDriver, cfg.PubSub.Driver).Str(pkglog.FieldChannel, cfg.PubSub.Channel).Msg("pubsub connected")

	repo, err := newRepository(cfg.Store)
	if err != nil {
		logger.Fatal().Err(err).Str(pkglog.FieldDriver, cfg.Store.Driver).Msg("failed to initialize message store")
	}
	defer repo.Close()
	logger.Info().Str(pkglog.FieldDriver, cfg.Store.Driver).Msg("message store connected")

	recent, err := newCache(cfg.Cache)
	if err != nil {
		logger.Fatal().Err(err).Str(pkglog.FieldDriver, cfg.Cache.Driver).Msg("failed to initialize recent cache")
	}
	defer recent.Close()
	logger.Info().Str(pkglog.FieldDriver, cfg.Cache.Driver).Int("retention", cfg.Cache.Retention).Msg("recent cache connected")

	// Initialize Hub
	wsHub := hub.NewHub(hub.NewRegistry())

	broadcaster := broadcast.New(ps, wsHub, broadcast.Options{Channel: cfg.PubSub.Channel})
	chatSvc := service.NewChatService(wsHub, repo, recent, broadcaster, service.Options{
		Retention: cfg.Cache.Retention,
	})

	// Setup HTTP server
	gin.SetMode(gin.ReleaseMode)
	policy := handler.NewCORS(cfg.CORS)
	wsHandler := handler.NewWSHandler(wsHub, chatSvc, cfg.WebSocket, policy)
	httpHandler := handler.NewHTTPHandler(chatSvc, wsHub)

	server := &http.Server{
		Addr:              fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		Handler:           handler.NewRouter(wsHandler, httpHandler, policy),
		ReadHeaderTimeout: 15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		return broadcaster.Run(gctx)
	})

	g.Go(func() error {
		logger.Info().Str("addr", server.Addr).Str("path", cfg.WebSocket.Path).Msg("chat relay listening")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server error: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		<-gctx.Done()
		logger.Info().Msg("shutting down chat relay")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()

		// Hijacked WebSocket connections are not tracked by the server
		wsHub.CloseAll()
		if err := server.Shutdown(shutdownCtx); err != nil {
			logger.Warn().Err(err).Msg("server forced to shutdown")
		}
		return nil
	})

	if err := g.Wait(); err != nil {
		logger.Error().Err(err).Msg("chat relay stopped with error")
		return
	}
	logger.Info().Msg("chat relay stopped")
}

func newRepository(cfg config.StoreConfig) (repository.MessageRepository, error) {
	switch cfg.Driver {
	case config.StoreGorm:
		db, err := database.New(&cfg.Database)
		if err != nil {
			return nil, err
		}
		return repository.NewGormMessageRepository(db)
	case config.StoreCassandra:
		return repository.NewCassandraMessageRepository(cfg.Cassandra)
	default:
		return nil, fmt.Errorf("unsupported store driver: %s", cfg.Driver)
	}
}

func newCache(cfg config.CacheConfig) (cache.RecentCache, error) {
	switch cfg.Driver {
	case config.CacheRedis:
		return cache.NewRedisRecentCache(cfg.Redis, cfg.Prefix)
	case config.CacheMemory:
		return cache.NewMemoryRecentCache(), nil
	default:
		return nil, fmt.Errorf("unsupported cache driver: %s", cfg.Driver)
	}
}
