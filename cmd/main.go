package main

import (
	"context"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/hackhub/presence-service/config"
	"github.com/hackhub/presence-service/internal/engine"
	"github.com/hackhub/presence-service/internal/mq"
	"github.com/hackhub/presence-service/internal/postgres"
	"github.com/hackhub/presence-service/internal/service"
	httpx "github.com/hackhub/presence-service/internal/transport/http"
	"github.com/hackhub/presence-service/internal/transport/ws"
	"github.com/hackhub/presence-service/pkg/auth"
	"github.com/hackhub/presence-service/pkg/logger"
)

func main() {
	// --- config ---
	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("load config: %v", err)
	}

	logLevel := slog.LevelInfo
	if cfg.Logging.Debug {
		logLevel = slog.LevelDebug
	}
	logger.Init(logger.Config{
		Env:       logger.Env(cfg.Logging.Env),
		Service:   cfg.Logging.Service,
		Version:   cfg.Logging.Version,
		Backend:   logger.Backend(cfg.Logging.Backend),
		Level:     logLevel,
		AddSource: cfg.Logging.AddSource,
		Debug:     cfg.Logging.Debug,
	})
	slog.Info("starting presence-service",
		"env", cfg.Logging.Env, "version", cfg.Logging.Version)

	// --- postgres ---
	ctx := context.Background()
	pool, err := postgres.NewPool(ctx, postgres.PoolConfig{
		DSN:             cfg.Postgres.DSN,
		ApplicationName: cfg.Logging.Service,
	})
	if err != nil {
		log.Fatalf("postgres: %v", err)
	}
	defer pool.Close()

	if err := postgres.RunMigrations(ctx, pool); err != nil {
		log.Fatalf("migrations: %v", err)
	}

	// --- repos ---
	roomRepo := postgres.NewRoomRepository(pool)
	memberRepo := postgres.NewMembershipRepository(pool)
	chatRepo := postgres.NewChatRepository(pool)

	// --- services ---
	roomSvc := service.NewRoomService(roomRepo, cfg.Rooms.DefaultCapacity)
	memberSvc := service.NewMembershipService(memberRepo)
	chatSvc := service.NewChatService(chatRepo)

	// --- membership feed (optional) ---
	var feed engine.Feed
	var pub *mq.Publisher
	if cfg.AMQP.URL != "" {
		pub, err = mq.NewPublisher(cfg.AMQP.URL, cfg.AMQP.Queue, slog.Default())
		if err != nil {
			log.Fatalf("amqp: %v", err)
		}
		defer pub.Close()
		feed = pub
	}

	// --- coordinator ---
	coord := engine.NewCoordinator(memberSvc, chatSvc, feed, slog.Default())
	runCtx, stopCoord := context.WithCancel(ctx)
	defer stopCoord()
	go coord.Run(runCtx)

	// --- WS & HTTP ---
	tokens := auth.New(cfg.Auth.JWTSecret)
	wsServer := ws.NewServer(coord, roomSvc, chatSvc, tokens, cfg.WS.HistoryLimit, cfg.WS.SendBufferSize)

	handler := httpx.NewHandler(roomSvc, chatSvc, coord)
	router := httpx.NewRouter(handler, wsServer, tokens, cfg.HTTP.AllowedOrigins)
	httpSrv := &http.Server{
		Addr:        cfg.HTTP.Addr,
		Handler:     router,
		ReadTimeout: 10 * time.Second,
		IdleTimeout: 60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		slog.Info("http listen", "addr", cfg.HTTP.Addr)
		if err := httpSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	// --- graceful shutdown ---
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-sigCh:
		slog.Info("shutdown signal", "sig", sig)
	case err := <-errCh:
		slog.Error("server error", "err", err)
	}

	ctxShutdown, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	_ = httpSrv.Shutdown(ctxShutdown)
	stopCoord()
	slog.Info("stopped")
}
