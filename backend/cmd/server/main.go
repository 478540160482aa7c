package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"circlenet/backend/internal/adapter"
	"circlenet/backend/internal/agentic"
	"circlenet/backend/internal/api"
	"circlenet/backend/internal/auth"
	"circlenet/backend/internal/cache"
	"circlenet/backend/internal/community"
	"circlenet/backend/internal/connection"
	"circlenet/backend/internal/graph"
	"circlenet/backend/internal/linkpreview"
	"circlenet/backend/internal/marketplace"
	"circlenet/backend/internal/matrix"
	"circlenet/backend/internal/messaging"
	"circlenet/backend/internal/metrics"
	"circlenet/backend/internal/opportunity"
	"circlenet/backend/internal/profile"
	"circlenet/backend/internal/storage"
	"circlenet/backend/internal/store"
	"circlenet/backend/pkg/config"
	"circlenet/backend/pkg/logger"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

const (
	startupTimeout  = 15 * time.Second
	shutdownTimeout = 5 * time.Second
	previewTimeout  = 5 * time.Second
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	if err := logger.Init(cfg.Env); err != nil {
		panic(fmt.Sprintf("Failed to initialize logger: %v", err))
	}
	defer logger.Sync()

	log := logger.Get()
	log.Info("Starting HTTP API server...", zap.String("env", cfg.Env))

	ctx, cancel := context.WithTimeout(context.Background(), startupTimeout)
	app, err := build(ctx, cfg)
	cancel()
	if err != nil {
		log.Fatal("Failed to initialize dependencies", zap.Error(err))
	}
	defer app.close()

	if cfg.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}
	router := api.NewRouter(app.deps, api.Options{
		Collector:      app.collector,
		RateLimitRPS:   cfg.RateLimitRPS,
		RateLimitBurst: cfg.RateLimitBurst,
		AllowedOrigins: cfg.AllowedOrigins,
	})

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	// Graceful shutdown
	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal("Failed to start server", zap.Error(err))
		}
	}()

	log.Info("Server started", zap.String("port", cfg.Port))

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info("Shutting down server...")

	shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancelShutdown()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error("Server forced to shutdown", zap.Error(err))
	}

	log.Info("Server exited")
}

// application owns every long-lived client the server opens
type application struct {
	deps      api.Deps
	collector *metrics.Collector
	closers   []func()
}

func (a *application) close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
}

func build(ctx context.Context, cfg *config.Config) (*application, error) {
	log := logger.Get()
	app := &application{collector: metrics.NewCollector("circlenet")}
	fail := func(err error) (*application, error) {
		app.close()
		return nil, err
	}

	driver, err := graph.NewDriver(ctx, cfg.Neo4jURI, cfg.Neo4jUser, cfg.Neo4jPassword)
	if err != nil {
		return fail(err)
	}
	repo := graph.NewRepository(driver, app.collector)
	app.closers = append(app.closers, func() { _ = repo.Close(context.Background()) })
	if err := repo.EnsureSchema(ctx); err != nil {
		return fail(err)
	}

	db, err := store.Open(ctx, cfg.DatabaseURL)
	if err != nil {
		return fail(err)
	}
	app.closers = append(app.closers, func() { _ = db.Close() })
	if err := db.Migrate(ctx); err != nil {
		return fail(err)
	}

	redisClient, err := cache.Connect(ctx, cfg.RedisURL, app.collector)
	if err != nil {
		return fail(err)
	}
	app.closers = append(app.closers, func() { _ = redisClient.Close() })

	presigner := storage.NewPresigner(storage.Config{
		Endpoint:  cfg.S3Endpoint,
		Region:    cfg.S3Region,
		Bucket:    cfg.S3Bucket,
		AccessKey: cfg.S3AccessKey,
		SecretKey: cfg.S3SecretKey,
		TTL:       cfg.S3PresignTTL,
	})

	homeserver, err := matrix.NewClient(matrix.Config{
		HomeserverURL:     cfg.MatrixHomeserverURL,
		RegistrationToken: cfg.MatrixRegistrationToken,
	}, app.collector)
	if err != nil {
		return fail(err)
	}

	tokens, err := auth.NewTokenManager(cfg.JWTSecret, cfg.JWTIssuer, cfg.AccessTokenTTL, cfg.RefreshTokenTTL)
	if err != nil {
		return fail(err)
	}

	var mailer auth.Mailer
	if cfg.SMTPHost != "" {
		mailer = auth.NewSMTPMailer(cfg.SMTPHost, cfg.SMTPPort, cfg.SMTPUser, cfg.SMTPPassword, cfg.SMTPFrom)
	} else {
		log.Warn("SMTP_HOST not set, one-time codes are written to the log")
		mailer = auth.NewLogMailer()
	}

	taxonomy, err := connection.LoadTaxonomy()
	if err != nil {
		return fail(err)
	}
	permissions, err := agentic.LoadPermissions()
	if err != nil {
		return fail(err)
	}

	var drafter agentic.Drafter
	if cfg.OpenRouterAPIKey != "" {
		drafter = adapter.NewAnnouncer(adapter.NewLLMAdapter(cfg.LiteLLMURL, cfg.OpenRouterAPIKey, cfg.ModelID))
	} else {
		log.Warn("OPENROUTER_API_KEY not set, announcement drafting is disabled")
	}

	authService := auth.NewService(db, repo, cache.NewOTPStore(redisClient, cfg.OTPTTL, cfg.OTPMaxSendsPerHour), mailer, tokens)
	messagingService := messaging.NewService(repo, db, homeserver,
		linkpreview.NewFetcher(linkpreview.NewGuardedClient(previewTimeout)),
		messaging.Options{BotUserID: cfg.MatrixBotUserID, BotAccessToken: cfg.MatrixBotAccessToken})
	communityService := community.NewService(repo, messagingService)

	app.deps = api.Deps{
		Tokens:        tokens,
		Auth:          authService,
		Profiles:      profile.NewService(repo, presigner),
		Connections:   connection.NewService(repo, taxonomy),
		Communities:   communityService,
		Messaging:     messagingService,
		Agents:        agentic.NewService(repo, communityService, messagingService, drafter, permissions, app.collector),
		Opportunities: opportunity.NewService(repo, redisClient),
		Marketplace:   marketplace.NewService(repo, redisClient),
		Health: map[string]api.Pinger{
			"neo4j":    repo,
			"postgres": db,
			"redis":    redisClient,
		},
	}
	return app, nil
}
