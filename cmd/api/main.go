package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"

	"campusmarket/internal/adapter/api"
	"campusmarket/internal/adapter/api/handler"
	apimiddleware "campusmarket/internal/adapter/api/middleware"
	"campusmarket/internal/adapter/api/router"
	"campusmarket/internal/app"
	"campusmarket/internal/infrastructure/firebase"
	"campusmarket/internal/infrastructure/ratelimit"
	"campusmarket/internal/infrastructure/websocket"
	"campusmarket/internal/usecase"
	"campusmarket/pkg/config"
	"campusmarket/pkg/logger"
	"campusmarket/pkg/response"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}
	logger.Configure(cfg.Environment, os.Stdout)

	ctx := context.Background()

	store, err := app.OpenStore(ctx, cfg)
	if err != nil {
		log.Fatalf("Failed to open %s store: %v", cfg.StoreBackend, err)
	}
	defer store.Close()

	bus, err := app.OpenBus(ctx, cfg)
	if err != nil {
		log.Fatalf("Failed to open %s bus: %v", cfg.BusBackend, err)
	}
	defer bus.Close()

	scope, err := usecase.ParseScopePolicy(cfg.ConversationScope)
	if err != nil {
		log.Fatalf("Invalid conversation scope: %v", err)
	}

	stopCleanup := make(chan struct{})
	defer close(stopCleanup)
	rateLimiter := ratelimit.NewRateLimiter()
	rateLimiter.StartCleanupRoutine(stopCleanup)

	resolver := usecase.NewConversationResolver(store.Conversations, scope, cfg.StoreTimeout, rateLimiter)
	messageUseCase := usecase.NewMessageUseCase(store.Conversations, store.Messages, bus, cfg.StoreTimeout, rateLimiter)

	var verifier apimiddleware.TokenVerifier
	var devTokenHandler *handler.DevTokenHandler
	if cfg.FirebaseProject != "" {
		firebaseApp, err := app.NewFirebaseApp(ctx, cfg)
		if err != nil {
			log.Fatalf("%v", err)
		}
		authClient, err := firebaseApp.Auth(ctx)
		if err != nil {
			log.Fatalf("Failed to initialize Firebase Auth: %v", err)
		}
		verifier = firebase.NewFirebaseAuthClient(authClient)
	} else {
		logger.Warn("FIREBASE_PROJECT_ID not set, verifying HS256 tokens signed with JWT_SECRET")
		tokens := apimiddleware.NewJWTTokens(cfg.JWTSecret, time.Duration(cfg.JWTExpiry)*time.Second)
		verifier = tokens
		devTokenHandler = handler.NewDevTokenHandler(tokens)
	}

	wsManager := websocket.NewManager()

	handler.Setup(
		handler.NewConversationHandler(resolver, messageUseCase),
		handler.NewWebSocketHandler(wsManager, resolver, messageUseCase, bus, cfg.AllowedOrigins),
		handler.NewHealthHandler(store.Backend, cfg.BusBackend),
		devTokenHandler,
	)

	e := echo.New()
	e.HideBanner = true

	e.Use(middleware.Logger())
	e.Use(middleware.Recover())
	e.Use(middleware.CORS())
	e.Use(apimiddleware.RateLimit(rateLimiter))

	e.Validator = api.NewValidator()
	e.HTTPErrorHandler = func(err error, c echo.Context) {
		if c.Response().Committed {
			return
		}
		response.Error(c, err)
	}

	router.Setup(e, apimiddleware.NewAuthMiddleware(verifier), cfg.Environment)

	go func() {
		logger.Info("Starting server on port %s (store=%s, bus=%s, scope=%s)...",
			cfg.ServerPort, store.Backend, cfg.BusBackend, scope)
		if err := e.Start(":" + cfg.ServerPort); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Server stopped: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)
	<-quit

	logger.Info("Shutting down...")
	wsManager.Shutdown()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := e.Shutdown(shutdownCtx); err != nil {
		logger.Error("Shutdown Error: %v", err)
	}
}
