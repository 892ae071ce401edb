package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"
	"gorm.io/gorm"

	"privacyx/internal/auth"
	"privacyx/internal/config"
	"privacyx/internal/db"
	"privacyx/internal/handlers"
	"privacyx/internal/logging"
	"privacyx/internal/rag"
	"privacyx/internal/store"
	"privacyx/internal/telemetry"
	"privacyx/internal/user"
	"privacyx/services/embed"
	"privacyx/services/llm"
	"privacyx/services/pgvector"
	"privacyx/services/qdrant"
)

func main() {
	logrus.SetFormatter(&logrus.JSONFormatter{})
	logrus.Info("starting server...")

	cfg, err := config.Load()
	if err != nil {
		logrus.WithError(err).Fatal("invalid configuration")
	}

	logCloser := logging.Setup(cfg.App.LogLevel, cfg.App.LogFile)
	defer logCloser.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	shutdownTracer := telemetry.InitTracer(ctx, cfg.Telemetry)
	defer func() {
		if err := shutdownTracer(context.Background()); err != nil {
			logrus.WithError(err).Error("error shutting down tracer")
		}
	}()

	var closers []func() error
	defer func() {
		for i := len(closers) - 1; i >= 0; i-- {
			if err := closers[i](); err != nil {
				logrus.WithError(err).Error("error releasing resource")
			}
		}
	}()

	// setup DB client, only when a postgres backend is selected
	var gormDB *gorm.DB
	if cfg.Store.Credentials == "postgres" || cfg.Index.Provider == "pgvector" {
		logrus.Debug("initializing database client")
		gormDB, err = db.Open(cfg.Store.PostgresDSN)
		if err != nil {
			logrus.WithError(err).Fatal("failed to open database")
		}
		closers = append(closers, func() error { return db.Close(gormDB) })
	}

	credentials, sessions, err := openStores(ctx, cfg, gormDB, &closers)
	if err != nil {
		logrus.WithError(err).Fatal("failed to open credential or session store")
	}

	index, err := openIndex(ctx, cfg, gormDB, &closers)
	if err != nil {
		logrus.WithError(err).Fatal("failed to open vector index")
	}

	embedder, err := embed.NewClient(ctx, cfg.Embedder)
	if err != nil {
		logrus.WithError(err).Fatal("failed to create embedder")
	}
	generator, err := llm.NewClient(ctx, cfg.Generator)
	if err != nil {
		logrus.WithError(err).Fatal("failed to create answer generator")
	}

	// setup services
	logrus.Debug("initializing services")
	userService := user.NewService(credentials, sessions, auth.NewTokenIssuer(cfg.App.JWTSecret, cfg.App.SessionTTL))
	if cfg.App.AdminUsername != "" {
		err := userService.Bootstrap(ctx, user.Credentials{
			Username: cfg.App.AdminUsername,
			Password: cfg.App.AdminPassword,
		})
		if err != nil {
			logrus.WithError(err).Fatal("failed to bootstrap admin account")
		}
	}

	pipeline := &rag.Pipeline{
		Gate:            userService,
		Embedder:        embedder,
		Index:           index,
		Generator:       generator,
		Prompt:          rag.PromptBuilder{Persona: cfg.Generator.Persona},
		TopK:            cfg.Index.TopK,
		EmbedTimeout:    cfg.Embedder.Timeout,
		SearchTimeout:   cfg.Index.Timeout,
		GenerateTimeout: cfg.Generator.Timeout,
	}

	renderer, err := handlers.NewRenderer()
	if err != nil {
		logrus.WithError(err).Fatal("failed to parse templates")
	}
	authHandler := &handlers.AuthHandler{
		Users:        userService,
		Render:       renderer,
		SecureCookie: cfg.App.SecureCookie || cfg.IsProduction(),
	}
	askHandler := &handlers.AskHandler{
		Pipeline:     pipeline,
		Render:       renderer,
		Unauthorized: authHandler.Unauthorized,
	}
	logrus.Info("services initialized successfully")

	srv := &http.Server{
		Addr:              cfg.App.Addr,
		Handler:           handlers.NewRouter(authHandler, askHandler),
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		logrus.WithField("address", cfg.App.Addr).Info("server starting")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logrus.WithError(err).Fatal("server failed to start")
		}
	}()

	<-ctx.Done()
	logrus.Info("shutdown signal received")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logrus.WithError(err).Error("graceful shutdown failed")
	}
	logrus.Info("server stopped")
}

func openStores(ctx context.Context, cfg *config.Config, gormDB *gorm.DB, closers *[]func() error) (store.KV, store.KV, error) {
	var credentials, sessions store.KV

	switch cfg.Store.Credentials {
	case "postgres":
		pg, err := store.NewPostgres(gormDB, "credentials")
		if err != nil {
			return nil, nil, err
		}
		credentials = pg
	default:
		logrus.Warn("credentials are kept in memory and are lost on restart")
		credentials = store.NewMemory(0)
	}

	switch cfg.Store.Sessions {
	case "redis":
		rdb, err := store.NewRedis(ctx, cfg.Store.RedisURL, "privacyx:session:", cfg.App.SessionTTL)
		if err != nil {
			return nil, nil, err
		}
		*closers = append(*closers, rdb.Close)
		sessions = rdb
	default:
		sessions = store.NewMemory(cfg.App.SessionTTL)
	}

	logrus.WithFields(logrus.Fields{
		"credentials": cfg.Store.Credentials,
		"sessions":    cfg.Store.Sessions,
	}).Info("stores initialized")
	return credentials, sessions, nil
}

func openIndex(ctx context.Context, cfg *config.Config, gormDB *gorm.DB, closers *[]func() error) (rag.VectorIndex, error) {
	switch cfg.Index.Provider {
	case "pgvector":
		idx, err := pgvector.NewIndex(gormDB, cfg.Index.Collection)
		if err != nil {
			return nil, err
		}
		return idx, nil
	default:
		idx, err := qdrant.Connect(ctx, cfg.Index)
		if err != nil {
			return nil, err
		}
		*closers = append(*closers, idx.Close)
		return idx, nil
	}
}
