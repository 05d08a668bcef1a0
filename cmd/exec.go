package cmd

import (
	"context"
	"fmt"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"ticket-escrow/config"
	"ticket-escrow/internal/auth"
	"ticket-escrow/internal/contract"
	"ticket-escrow/internal/handlers"
	"ticket-escrow/internal/notify"
	"ticket-escrow/internal/store"
	_ "ticket-escrow/migrations"
	"ticket-escrow/monitoring"
	"ticket-escrow/security"
	"ticket-escrow/utils"

	"github.com/pocketbase/pocketbase"
	"github.com/pocketbase/pocketbase/apis"
	pbcmd "github.com/pocketbase/pocketbase/cmd"
	"github.com/pocketbase/pocketbase/core"
	"github.com/pocketbase/pocketbase/plugins/migratecmd"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	pubnub "github.com/pubnub/go"
	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"
)

func Start() error {
	// Load configuration
	cfg := config.LoadConfig()

	app := pocketbase.NewWithConfig(pocketbase.Config{
		DefaultDev: cfg.Environment == "development",
	})

	// Initialize Redis. Only the in-memory backend may run without it.
	redisClient, err := utils.NewRedisClient(cfg.RedisURL, cfg.RedisPassword, cfg.RedisDB)
	if err != nil {
		if cfg.StoreBackend != "memory" {
			return err
		}
		slog.Warn("Running without Redis", "error", err)
	} else {
		defer redisClient.Close()
	}

	backend, err := newBackend(cfg, app, redisClient)
	if err != nil {
		return err
	}

	// Notification sinks
	publishers := notify.Fanout{notify.Logger{}}
	var stream *notify.RedisStream
	if redisClient != nil {
		stream = notify.NewRedisStream(redisClient, cfg.Namespace)
		publishers = append(publishers, stream)
	}
	if cfg.PubNubEnabled() {
		pnConfig := pubnub.NewConfig()
		pnConfig.PublishKey = cfg.PubNubPublishKey
		pnConfig.SubscribeKey = cfg.PubNubSubscribeKey
		pnConfig.SecretKey = cfg.PubNubSecretKey

		pn := pubnub.NewPubNub(pnConfig)
		publishers = append(publishers, notify.NewPubNubPublisher(pn, cfg.PubNubChannelPrefix))
	}

	var monitor *monitoring.Monitor
	if cfg.EnableMetrics {
		var streams []string
		if stream != nil {
			streams = append(streams, stream.Stream())
		}
		monitor = monitoring.NewMonitor(redisClient, streams...)
	}

	ticketContract := contract.New(contract.Config{
		Backend:       backend,
		Publisher:     publishers,
		Authorizer:    auth.ContextAuthorizer{},
		Monitor:       monitor,
		DefaultFeeBps: cfg.DefaultFeeBps,
	})

	// Request signatures. Nonces live in Redis so replays are caught across
	// instances; without Redis they are remembered in-process.
	var nonces auth.NonceStore
	if redisClient != nil {
		nonces = auth.NewRedisNonces(redisClient, cfg.Namespace)
	}

	// Initialize handlers
	contractHandler := handlers.NewContractHandler(ticketContract, auth.NewVerifier(cfg.AuthMaxSkew, nonces))
	adminHandler := handlers.NewAdminHandler(ticketContract, redisClient, stream)

	// Enable migrations
	migratecmd.MustRegister(app, app.RootCmd, migratecmd.Config{
		Automigrate: true,
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Start background tasks
	go monitor.Run(ctx, cfg.MetricsInterval)

	// Setup graceful shutdown
	go handleShutdown(cancel)

	app.OnServe().BindFunc(func(se *core.ServeEvent) error {
		var middlewares []func(*core.RequestEvent) error
		if redisClient != nil {
			limiter := security.NewRateLimiter(redisClient, cfg.RateLimitRequests, cfg.RateLimitWindow)
			middlewares = append(middlewares, limiter.AntiBot, limiter.ContractRateLimit)
			contractHandler.LimitSigners(limiter)
		}
		contractHandler.Register(se.Router, middlewares...)

		// Admin endpoints
		se.Router.GET("/api/contract/dashboard", adminHandler.GetDashboard)
		se.Router.GET("/api/contract/notifications", adminHandler.GetNotifications)

		// Health check
		se.Router.GET("/health", adminHandler.Health)

		if cfg.EnableMetrics {
			se.Router.GET("/metrics", apis.WrapStdHandler(promhttp.Handler()))
		}

		log.Println("Server routes registered")
		return se.Next()
	})

	serve, err := newServeCommand(app, cfg.Port)
	if err != nil {
		return err
	}
	app.RootCmd.AddCommand(pbcmd.NewSuperuserCommand(app))
	app.RootCmd.AddCommand(serve)

	// Start server
	if err := app.Execute(); err != nil {
		log.Fatal(err)
	}
	return nil
}

// newServeCommand is the PocketBase serve command listening on all
// interfaces at port unless --http overrides it.
func newServeCommand(app core.App, port string) (*cobra.Command, error) {
	serve := pbcmd.NewServeCommand(app, true)
	addr := "0.0.0.0:" + port
	if err := serve.PersistentFlags().Set("http", addr); err != nil {
		return nil, fmt.Errorf("set serve address: %w", err)
	}
	serve.PersistentFlags().Lookup("http").DefValue = addr
	return serve, nil
}

func newBackend(cfg *config.Config, app core.App, redisClient *redis.Client) (store.Backend, error) {
	switch cfg.StoreBackend {
	case "memory":
		slog.Warn("Using in-memory contract state; it is lost on restart")
		return store.NewMemory(), nil
	case "redis":
		return store.NewRedisBackend(redisClient, cfg.Namespace), nil
	case "sqlite":
		return store.NewSQLBackend(app, cfg.Namespace), nil
	default:
		return nil, fmt.Errorf("unknown store backend %q", cfg.StoreBackend)
	}
}

// handleShutdown handles graceful shutdown
func handleShutdown(cancel context.CancelFunc) {
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	<-sigChan
	log.Println("Shutdown signal received, cleaning up...")
	cancel()
}
