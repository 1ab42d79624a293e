package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/arena-gg/matchmaking/internal/auth"
	"github.com/arena-gg/matchmaking/internal/config"
	"github.com/arena-gg/matchmaking/internal/database"
	"github.com/arena-gg/matchmaking/internal/events"
	"github.com/arena-gg/matchmaking/internal/gameclient"
	"github.com/arena-gg/matchmaking/internal/gateway"
	"github.com/arena-gg/matchmaking/internal/history"
	"github.com/arena-gg/matchmaking/internal/matchmaking"
	"github.com/arena-gg/matchmaking/internal/migrations"
	"github.com/arena-gg/matchmaking/internal/penalty"
	"github.com/arena-gg/matchmaking/internal/ratelimit"
	"github.com/arena-gg/matchmaking/internal/userclient"
	"github.com/arena-gg/matchmaking/internal/ws"
)

// penaltyRetention is how long expired penalties stay visible to the admin
// surface before the hourly cleanup reaps them.
const penaltyRetention = 24 * time.Hour

func main() {
	cfg := config.Load()

	log.Printf("Arena matchmaking service starting")
	log.Printf("  environment:      %s", cfg.Environment)
	log.Printf("  listen_addr:      %s", cfg.ListenAddr)
	log.Printf("  worker_pool:      %d", cfg.WorkerPoolSize)
	log.Printf("  max_connections:  %d", cfg.MaxConnections)
	log.Printf("  game_service:     %s", cfg.GameServiceURL)
	log.Printf("  user_service:     %s", cfg.UserServiceURL)
	log.Printf("  redis_addr:       %s", cfg.RedisAddr)
	log.Printf("  nats_url:         %s", cfg.NATSURL)
	log.Printf("  tick_rate:        %s", cfg.TickRate)
	log.Printf("  base_tolerance:   %.0f", cfg.BaseTolerance)
	log.Printf("  accept_timeout:   %s", cfg.AcceptTimeout)
	log.Printf("  penalty_duration: %s", cfg.PenaltyDuration)

	// --- Postgres ---
	if err := migrations.Run(cfg.DatabaseURL, "migrations"); err != nil {
		log.Fatalf("failed to run migrations: %v", err)
	}
	db, err := database.Connect(cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("failed to connect to Postgres: %v", err)
	}
	penaltyStore := penalty.NewStore(db)
	historyStore := history.NewStore(db)

	// --- Redis (rate limiting) ---
	rdb := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
	pingCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	if err := rdb.Ping(pingCtx).Err(); err != nil {
		// The limiter fails open, so a missing Redis degrades to no
		// throttling rather than blocking boot.
		log.Printf("redis ping failed, rate limiting degraded: %v", err)
	}
	cancel()
	limiter := ratelimit.NewLimiter(rdb)

	// --- NATS (lifecycle events) ---
	natsCfg := events.DefaultConfig()
	natsCfg.URL = cfg.NATSURL
	bus, err := events.Connect(natsCfg)
	if err != nil {
		// The publisher is nil-safe; matchmaking runs fine without the bus.
		log.Printf("nats connect failed, lifecycle events disabled: %v", err)
	}

	// --- Remote services ---
	games := gameclient.New(cfg.GameServiceURL, 0)
	users := userclient.New(cfg.UserServiceURL, 0, cfg.DefaultElo)
	verifier := auth.NewVerifier(cfg.JWTSecret)

	healthCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	if !games.Health(healthCtx) {
		// Finalization falls back to GAME_ALREADY_EXISTS while the Game
		// service is down, so boot continues; matches just won't confirm.
		log.Printf("game service unreachable at %s, finalization degraded", cfg.GameServiceURL)
	}
	cancel()

	// --- Gateway and engine ---
	serverCfg := ws.ServerConfig{
		ListenAddr:     cfg.ListenAddr,
		WorkerPoolSize: cfg.WorkerPoolSize,
		MaxConnections: cfg.MaxConnections,
		ReadTimeout:    cfg.ReadTimeout,
		WriteTimeout:   cfg.WriteTimeout,
	}

	dispatcher := ws.NewMessageDispatcher(nil)
	server := ws.NewServer(serverCfg, verifier, users, limiter, dispatcher.Dispatch)
	dispatcher.SetServer(server)

	engine := matchmaking.NewService(matchmaking.Config{
		TickRate:          cfg.TickRate,
		BaseTolerance:     cfg.BaseTolerance,
		ExpansionInterval: cfg.ExpansionInterval,
		ExpansionStep:     cfg.ExpansionStep,
		AcceptTimeout:     cfg.AcceptTimeout,
		PenaltyDuration:   cfg.PenaltyDuration,
	}, penaltyStore, historyStore, games, gateway.NewWSNotifier(server), bus)

	handlers := gateway.NewHandlers(engine, limiter)
	handlers.Register(dispatcher)
	server.SetOnDisconnect(handlers.HandleDisconnect)

	gateway.NewAdminHandlers(engine, historyStore, penaltyStore).Register(server)

	engine.Start()

	// Reap long-expired penalties so the table does not grow without bound.
	go func() {
		ticker := time.NewTicker(time.Hour)
		defer ticker.Stop()
		for range ticker.C {
			ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
			n, err := penaltyStore.DeleteExpired(ctx, time.Now().Add(-penaltyRetention))
			cancel()
			if err != nil {
				log.Printf("penalty cleanup failed: %v", err)
			} else if n > 0 {
				log.Printf("penalty cleanup removed %d rows", n)
			}
		}
	}()

	// Graceful shutdown.
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		sig := <-sigCh
		log.Printf("received signal %v, initiating graceful shutdown...", sig)
		engine.Stop()
		bus.Close()
		if err := server.Shutdown(); err != nil {
			log.Printf("shutdown error: %v", err)
		}
		if err := db.Close(); err != nil {
			log.Printf("database close error: %v", err)
		}
		if err := rdb.Close(); err != nil {
			log.Printf("redis close error: %v", err)
		}
		os.Exit(0)
	}()

	if err := server.Start(); err != nil {
		log.Fatalf("server error: %v", err)
	}
}
