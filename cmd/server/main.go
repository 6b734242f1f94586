package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/example/subtracker/internal/api"
	"github.com/example/subtracker/internal/app"
	"github.com/example/subtracker/internal/config"
	"github.com/example/subtracker/internal/core"
	"github.com/example/subtracker/internal/db"
	"github.com/example/subtracker/internal/firebase"
	"github.com/example/subtracker/internal/identity"
	"github.com/example/subtracker/internal/middleware"
)

func main() {
	appConfig, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("Failed to load application configuration: %v", err)
	}

	logger, err := app.NewLogger(appConfig.IsRelease())
	if err != nil {
		log.Fatalf("Failed to initialize Zap logger: %v", err)
	}
	defer logger.Sync()

	if err := appConfig.ValidateServer(); err != nil {
		logger.Fatal("Invalid configuration", zap.Error(err))
	}
	location, err := appConfig.Location()
	if err != nil {
		logger.Fatal("Invalid configuration", zap.Error(err))
	}

	rootCtx, cancelRoot := context.WithCancel(context.Background())
	defer cancelRoot()

	initCtx, cancelInit := context.WithTimeout(rootCtx, 15*time.Second)
	defer cancelInit()
	clients, err := firebase.NewClients(initCtx, appConfig)
	if err != nil {
		logger.Fatal("Failed to initialize Firebase Admin SDK", zap.Error(err))
	}
	defer clients.Close()

	provider, err := identity.NewFirebaseIdentity(initCtx, appConfig.FirebaseWebAPIKey, appConfig.ClientURL, clients.Auth, logger)
	if err != nil {
		logger.Fatal("Failed to initialize identity provider", zap.Error(err))
	}

	store, err := newStore(appConfig, clients, logger)
	if err != nil {
		logger.Fatal("Failed to initialize subscription store", zap.Error(err))
	}

	throttleCache, err := app.NewCache(initCtx, appConfig, logger)
	if err != nil {
		logger.Fatal("Failed to connect to Redis", zap.Error(err))
	}
	defer throttleCache.Close()

	clock := core.NewSystemClock()
	sessions := core.NewSessionManager(store, clock, appConfig.SessionIdleTimeout, logger)
	throttle := core.NewThrottle(throttleCache, appConfig.AuthRateLimit, appConfig.AuthRateWindow, logger)
	services := api.Services{
		Auth:          core.NewAuthService(provider, sessions, throttle, logger),
		Subscriptions: core.NewSubscriptionService(store, clock, location, logger),
		Sessions:      sessions,
	}

	sessionsDone := make(chan struct{})
	go func() {
		defer close(sessionsDone)
		sessions.Run(rootCtx)
	}()

	if appConfig.IsRelease() {
		gin.SetMode(gin.ReleaseMode)
	} else {
		gin.SetMode(gin.DebugMode)
	}
	router := gin.New()
	router.Use(middleware.RequestID())
	router.Use(middleware.RequestLogger(logger))
	router.Use(middleware.RecoveryMiddleware(logger))
	if appConfig.ClientURL != "" {
		router.Use(middleware.CORSMiddleware(appConfig.ClientURL))
	} else {
		logger.Warn("CORS middleware skipped: CLIENT_URL is not configured")
	}
	api.SetupRoutes(router, appConfig, logger, services)

	serverAddr := fmt.Sprintf(":%s", appConfig.Port)
	httpServer := &http.Server{
		Addr:              serverAddr,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
		// Open event streams end when rootCtx is cancelled at shutdown.
		BaseContext: func(net.Listener) context.Context { return rootCtx },
	}

	go func() {
		logger.Info("Starting HTTP server", zap.String("address", serverAddr), zap.String("ginMode", gin.Mode()))
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal("Failed to start HTTP server", zap.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	sig := <-quit
	logger.Info("Received shutdown signal", zap.String("signal", sig.String()))

	cancelRoot()
	shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancelShutdown()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Error("Server forced to shutdown", zap.Error(err))
	}
	<-sessionsDone
	logger.Info("Server exiting")
}

func newStore(cfg *config.Config, clients *firebase.Clients, logger *zap.Logger) (db.SubscriptionStore, error) {
	if cfg.StoreDriver == config.StoreDriverMemory {
		logger.Warn("Using the in-memory subscription store; data is lost on restart")
		return db.NewMemoryStore(nil), nil
	}
	notes, err := app.NewNotesCipher(cfg, logger)
	if err != nil {
		return nil, err
	}
	return db.NewFirestoreSubscriptionStore(clients.Firestore, cfg.SubscriptionsCollection, notes, logger), nil
}
