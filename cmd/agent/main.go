package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	"github.com/spf13/pflag"
	"go.uber.org/zap"

	"minesim-session-go/internal/api"
	"minesim-session-go/internal/config"
	"minesim-session-go/internal/core"
	"minesim-session-go/internal/db"
	"minesim-session-go/internal/flagstore"
	"minesim-session-go/internal/identity"
	"minesim-session-go/internal/lifecycle"
	"minesim-session-go/internal/logging"
	"minesim-session-go/internal/middleware"
)

func main() {
	configFile := pflag.String("config", "", "YAML config file; overrides CONFIG_FILE")
	envFile := pflag.String("env-file", ".env", "dotenv file loaded outside release mode")
	pflag.Parse()

	// Load .env file. In production, environment variables should be set directly.
	if os.Getenv("GIN_MODE") != "release" {
		if err := godotenv.Load(*envFile); err != nil && !errors.Is(err, os.ErrNotExist) {
			log.Println("Warning: Error loading .env file:", err)
		}
	}
	if *configFile != "" {
		os.Setenv("CONFIG_FILE", *configFile)
	}

	appConfig, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("CRITICAL_ERROR: Failed to load application configuration: %v", err)
	}

	logger, err := logging.New(appConfig.LogLevel, appConfig.LogMode)
	if err != nil {
		log.Fatalf("CRITICAL_ERROR: Failed to initialize Zap logger: %v", err)
	}
	defer logger.Sync()

	// Process-lifetime context; cancelled on SIGINT/SIGTERM.
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	initCtx, cancelInit := context.WithTimeout(ctx, 15*time.Second)
	clients, err := db.InitFirebase(initCtx, appConfig, logger)
	if err != nil {
		cancelInit()
		logger.Fatal("CRITICAL_ERROR: Failed to initialize Firebase Admin SDK", zap.Error(err))
	}
	defer clients.Close()

	flags, closeFlags, err := flagstore.Open(initCtx, appConfig, logger)
	cancelInit()
	if err != nil {
		logger.Fatal("CRITICAL_ERROR: Failed to open flag store", zap.Error(err))
	}
	defer closeFlags()

	profiles, err := db.NewFirestoreProfileRepository(clients.Firestore)
	if err != nil {
		logger.Fatal("CRITICAL_ERROR: Failed to create profile repository", zap.Error(err))
	}

	hub := identity.NewHub()
	sessions := identity.NewSessions(clients.Auth, flags, hub, logger)
	observer := lifecycle.NewObserver(logger)

	tracker := core.NewPresenceTracker(hub, profiles, core.PresenceOptions{
		RetryDelay:        appConfig.PresenceRetryDelay,
		ReconcileInterval: appConfig.PresenceReconcileInterval,
		WriteTimeout:      appConfig.PresenceWriteTimeout,
	}, logger)
	binder := core.NewSessionBinder(tracker, logger)
	binder.Bind(ctx, hub, observer)

	resolver := core.NewStartupResolver(hub, profiles, flags, core.ResolverOptions{
		Timeout:            appConfig.StartupTimeout,
		ProfileReadTimeout: appConfig.ProfileReadTimeout,
	}, logger)
	destinations := api.NewDestinationHolder()

	// Start order is free: Hub replays the current identity to every new subscriber.
	go api.ResolveInto(ctx, resolver, destinations)
	go func() {
		if err := sessions.Restore(ctx); err != nil {
			logger.Warn("Session restoration abandoned", zap.Error(err))
		}
	}()
	go lifecycle.NewSignalSource(observer, logger).Run(ctx)

	if strings.ToLower(appConfig.GinMode) == "release" {
		gin.SetMode(gin.ReleaseMode)
	} else {
		gin.SetMode(gin.DebugMode)
	}
	router := gin.New()
	router.Use(middleware.RequestLogger(logger))
	router.Use(middleware.RecoveryMiddleware(logger))
	if cors := middleware.CORSMiddleware(appConfig.BridgeAllowedOrigin); cors != nil {
		router.Use(cors)
		logger.Info("CORS Middleware enabled", zap.String("allowedOrigin", appConfig.BridgeAllowedOrigin))
	}
	if limit := middleware.RateLimit(appConfig.BridgeRateLimit); limit != nil {
		router.Use(limit)
	}

	api.SetupRoutes(router, middleware.NewAuthMiddleware(clients.Auth, logger), api.Handlers{
		Startup:   api.NewStartupHandler(destinations, logger),
		Lifecycle: api.NewLifecycleHandler(observer, logger),
		Session:   api.NewSessionHandler(sessions, flags, logger),
		Presence:  api.NewPresenceHandler(tracker),
	}, logger)

	httpServer := &http.Server{
		Addr:              "127.0.0.1:" + appConfig.BridgePort,
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		logger.Info("Starting bridge server", zap.String("address", httpServer.Addr), zap.String("ginMode", gin.Mode()))
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal("Failed to start bridge server", zap.Error(err))
		}
	}()

	<-ctx.Done()
	logger.Info("Received shutdown signal")

	shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancelShutdown()

	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Error("Bridge server forced to shutdown", zap.Error(err))
	}

	binder.Close()
	// Last offline write for the signed-in user before exiting.
	tracker.Cleanup(shutdownCtx)
	tracker.Close()

	logger.Info("Agent exiting gracefully")
}
