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

	redisClient "github.com/go-redis/redis/v8"
	_ "github.com/go-sql-driver/mysql"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"

	"marketplace-auction/internal/api/handlers"
	"marketplace-auction/internal/clock"
	"marketplace-auction/internal/config"
	"marketplace-auction/internal/engine"
	"marketplace-auction/internal/infrastructure/leader"
	"marketplace-auction/internal/infrastructure/mysql"
	"marketplace-auction/internal/infrastructure/redis"
	"marketplace-auction/internal/infrastructure/websocket"
	"marketplace-auction/internal/services"
	"marketplace-auction/pkg/logger"
	"marketplace-auction/pkg/utils"
)

func main() {
	log := logger.New()
	log.Info("starting auction engine")

	cfg, err := config.Load()
	if err != nil {
		log.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	// Redis: events and sweeper leader election.
	rdb := redisClient.NewClient(&redisClient.Options{
		Addr:     cfg.Redis.Address,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	if err := rdb.Ping(ctx).Err(); err != nil {
		log.Error("failed to connect to redis", "error", err)
		os.Exit(1)
	}
	log.Info("connected to redis", "address", cfg.Redis.Address)

	// MySQL: the system of record.
	db, err := utils.InitializeMySQL(ctx, cfg)
	if err != nil {
		log.Error("failed to connect to mysql", "error", err)
		os.Exit(1)
	}
	defer func() {
		if err := db.Close(); err != nil {
			log.Error("failed to close mysql connection", "error", err)
		}
	}()
	log.Info("connected to mysql")

	auctionRepo := mysql.NewMySQLAuctionRepository(db)
	bidLedger := mysql.NewMySQLBidLedger(db)

	eventPublisher := redis.NewRedisEventPublisher(rdb)
	eventSubscriber := redis.NewRedisEventSubscriber(rdb, log)
	leaderElection := leader.NewRedisLeaderElection(rdb, cfg.Leader.TTL)

	eng := engine.NewEngine(
		auctionRepo,
		bidLedger,
		eventPublisher,
		clock.Real{},
		cfg.Engine.MaxBidRetries,
		cfg.Engine.PersistenceTimeout,
		log,
	)

	sweeper := engine.NewSweeper(
		eng,
		auctionRepo,
		leaderElection,
		cfg.Instance.ID,
		cfg.Sweeper.Interval,
		clock.Real{},
		log,
	)

	// Watcher fan-out.
	connManager := websocket.NewConnectionManager(log)
	notifier := websocket.NewWebSocketNotifier(connManager)
	eventListener := services.NewEventListener(notifier, notifier, connManager, log)

	// HTTP transport.
	e := echo.New()
	e.HideBanner = true

	e.Use(middleware.RequestID())
	e.Use(middleware.LoggerWithConfig(middleware.LoggerConfig{
		Format: `{"time":"${time_rfc3339}","id":"${id}","remote_ip":"${remote_ip}","host":"${host}","method":"${method}","uri":"${uri}","status":${status},"error":"${error}","latency":${latency},"latency_human":"${latency_human}"}` + "\n",
	}))
	e.Use(middleware.Recover())

	auctionHandler := handlers.NewAuctionHandler(eng, log)
	auctionHandler.Register(e.Group("/api/v1"))

	wsHandler := handlers.NewWebSocketHandler(eng, connManager, log)
	e.GET("/ws/auctions/:id", wsHandler.HandleConnection)

	e.GET("/health", func(c echo.Context) error {
		return c.JSON(http.StatusOK, map[string]interface{}{
			"status":    "ok",
			"service":   "auction-engine",
			"timestamp": time.Now().UTC().Format(time.RFC3339),
		})
	})

	// Background services.
	go func() {
		if err := sweeper.Start(context.Background()); err != nil {
			log.Error("failed to start sweeper", "error", err)
		}
	}()

	go func() {
		if err := eventListener.Start(context.Background(), eventSubscriber); err != nil && !errors.Is(err, context.Canceled) {
			log.Error("event listener stopped", "error", err)
		}
	}()

	go func() {
		for {
			became, err := leaderElection.BecomeLeader(context.Background(), cfg.Instance.ID)
			if err != nil {
				log.Error("failed to attempt leadership", "error", err)
				time.Sleep(5 * time.Second)
				continue
			}
			if became {
				log.Info("became sweeper leader", "instance_id", cfg.Instance.ID)
			}
			time.Sleep(10 * time.Second)
		}
	}()

	serverAddr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
	go func() {
		log.Info("starting http server", "address", serverAddr)
		if err := e.Start(serverAddr); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("server failed to start", "error", err)
			os.Exit(1)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info("shutting down auction engine...")

	ctx, cancel = context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := sweeper.Stop(); err != nil {
		log.Error("failed to stop sweeper", "error", err)
	}
	if err := leaderElection.ReleaseLeadership(ctx, cfg.Instance.ID); err != nil {
		log.Error("failed to release leadership", "error", err)
	}
	if err := e.Shutdown(ctx); err != nil {
		log.Error("server forced to shutdown", "error", err)
	}

	log.Info("auction engine stopped")
}
