package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/reginaldbaraza-code/TofuOS/internal/ai"
	"github.com/reginaldbaraza-code/TofuOS/internal/app"
	"github.com/reginaldbaraza-code/TofuOS/internal/auth"
	"github.com/reginaldbaraza-code/TofuOS/internal/authpw"
	"github.com/reginaldbaraza-code/TofuOS/internal/blob"
	"github.com/reginaldbaraza-code/TofuOS/internal/config"
	"github.com/reginaldbaraza-code/TofuOS/internal/export"
	"github.com/reginaldbaraza-code/TofuOS/internal/jira"
	"github.com/reginaldbaraza-code/TofuOS/internal/search"
	"github.com/reginaldbaraza-code/TofuOS/internal/session"
	"github.com/reginaldbaraza-code/TofuOS/internal/store"
	"github.com/reginaldbaraza-code/TofuOS/internal/studio"
)

func setupLogging(cfg config.Config) {
	level, err := zerolog.ParseLevel(strings.ToLower(cfg.LogLevel))
	if err != nil || level == zerolog.NoLevel {
		level = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(level)
	zerolog.TimeFieldFormat = time.RFC3339
	if cfg.LogPretty {
		log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.Kitchen})
		return
	}
	log.Logger = zerolog.New(os.Stdout).With().Timestamp().Logger()
}

func main() {
	cfg := config.Load()
	setupLogging(cfg)
	ctx := context.Background()

	db, err := store.Open(ctx, cfg.DatabaseURL)
	if err != nil {
		log.Fatal().Err(err).Msg("database connection failed")
	}
	defer db.Close()

	if err := store.ApplyMigrations(ctx, db, store.Migrations); err != nil {
		log.Fatal().Err(err).Msg("migrations failed")
	}
	dataStore := store.NewPostgresStore(db)

	var backend session.Backend = dataStore
	if strings.TrimSpace(cfg.RedisURL) != "" {
		redisStore, err := session.NewRedisStore(cfg.RedisURL)
		if err != nil {
			log.Fatal().Err(err).Msg("redis connection failed")
		}
		defer redisStore.Close()
		backend = redisStore
		log.Info().Msg("sessions: using redis")
	} else {
		log.Info().Msg("sessions: using postgres")
	}

	var blobs blob.Store
	if strings.TrimSpace(cfg.MinioEndpoint) != "" {
		minioStore, err := blob.NewMinioStore(ctx, blob.MinioConfig{
			Endpoint:  cfg.MinioEndpoint,
			AccessKey: cfg.MinioAccessKey,
			SecretKey: cfg.MinioSecretKey,
			Bucket:    cfg.MinioBucket,
			UseSSL:    cfg.MinioUseSSL,
		})
		if err != nil {
			log.Fatal().Err(err).Msg("object storage unavailable")
		}
		blobs = minioStore
	} else {
		localStore, err := blob.NewLocalStore(cfg.UploadsDir())
		if err != nil {
			log.Fatal().Err(err).Str("dir", cfg.UploadsDir()).Msg("uploads dir")
		}
		blobs = localStore
	}

	if err := os.MkdirAll(cfg.StudioDir(), 0o755); err != nil {
		log.Fatal().Err(err).Str("dir", cfg.StudioDir()).Msg("studio dir")
	}

	var meiliClient *search.Meili
	if strings.TrimSpace(cfg.MeiliURL) != "" {
		meiliClient = search.NewMeili(cfg.MeiliURL, cfg.MeiliMasterKey)
		defer meiliClient.Close()
	}
	searchService := search.NewService(meiliClient, search.NewPgFTS(db))
	go searchService.ReindexAllFromPG(ctx)

	var completer ai.Completer
	if strings.TrimSpace(cfg.AIAPIKey) != "" {
		completer = ai.NewOpenAIClient(ai.ClientConfig{
			APIKey:            cfg.AIAPIKey,
			BaseURL:           cfg.AIBaseURL,
			Model:             cfg.AIModel,
			RequestsPerMinute: cfg.AIRequestsPerMinute,
		})
	} else {
		log.Warn().Msg("AI_API_KEY not set; analyze, chat and studio will answer 503")
	}

	service := app.New(app.Dependencies{
		Store:     dataStore,
		Sessions:  session.NewManager(backend, cfg.SessionTTL),
		Passwords: authpw.NewService(dataStore, cfg.DemoLogin),
		Blobs:     blobs,
		AI:        ai.NewOrchestrator(completer, cfg.AIRetryDelay),
		Jira:      jira.NewClient(nil),
		Search:    searchService,
		Studio:    studio.New(cfg.StudioDir()),
		Export:    export.NewService(),
		Sealer:    auth.NewSealer(cfg.SecretKey),
		DemoLogin: cfg.DemoLogin,
	})
	if err := service.Bootstrap(ctx); err != nil {
		log.Warn().Err(err).Msg("bootstrap failed; will retry on next restart")
	}

	server := &http.Server{
		Addr:              cfg.Addr,
		Handler:           app.NewHTTPServer(service, cfg.CORSOrigin).Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       2 * time.Minute,
		WriteTimeout:      5 * time.Minute,
		IdleTimeout:       60 * time.Second,
	}

	go func() {
		log.Info().Str("addr", cfg.Addr).Msg("tofuOS API listening")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal().Err(err).Msg("server failed")
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("shutdown error")
	}
}
