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

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"signalscore/internal/ai"
	forumclient "signalscore/internal/client/forum"
	"signalscore/internal/client/llm"
	"signalscore/internal/config"
	cronrunner "signalscore/internal/cron"
	"signalscore/internal/db"
	"signalscore/internal/engine"
	"signalscore/internal/handler"
	"signalscore/internal/logger"
	"signalscore/internal/platform"
	forumadapter "signalscore/internal/platform/forum"
	gormrepository "signalscore/internal/repository/gorm"
	"signalscore/internal/secrets"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfgPath := os.Getenv("SIG_CONFIG")
	if cfgPath == "" {
		cfgPath = "config/config.yaml"
	}

	bootLog, err := zap.NewProduction()
	if err != nil {
		panic(err)
	}

	var secretStore secrets.Store
	if strings.EqualFold(os.Getenv("SIG_APP_ENV"), "prod") {
		mgr, err := secrets.NewManager(ctx)
		if err != nil {
			bootLog.Warn("secret store unavailable, relying on environment", zap.Error(err))
		} else {
			secretStore = mgr
		}
	}

	resolver := config.NewResolver(cfgPath, secretStore, bootLog)
	cfg, err := resolver.App(ctx)
	if err != nil {
		bootLog.Fatal("config resolution failed", zap.Error(err))
	}

	log, err := logger.New(cfg.Log)
	if err != nil {
		panic(err)
	}
	defer log.Sync()

	dbConn, err := db.Open(cfg.DB)
	if err != nil {
		log.Fatal("db open failed", zap.Error(err))
	}
	defer db.Close(dbConn)

	if err := db.SetTimezone(dbConn, cfg.DB.Timezone); err != nil {
		log.Warn("failed to set timezone", zap.Error(err))
	}
	if err := db.AutoMigrate(dbConn); err != nil {
		log.Fatal("auto-migrate failed", zap.Error(err))
	}

	store := gormrepository.New(dbConn.Gorm)
	if _, err := store.EnsureSignalStrength(ctx, cfg.Engine.DefaultSignal); err != nil {
		log.Warn("failed to ensure default signal", zap.Error(err))
	}

	forumHTTP := &http.Client{Timeout: cfg.Forum.Timeout}
	forum := forumclient.NewClient(forumHTTP, cfg.Forum.BaseURL, cfg.Forum.APIKey, cfg.Forum.APIUsername)
	llmHTTP := &http.Client{Timeout: cfg.LLM.Timeout}
	completions := llm.NewHTTPClient(llmHTTP, cfg.LLM.BaseURL, cfg.LLM.APIKey)

	orchestrator := &ai.Orchestrator{
		Repo:     store,
		LLM:      completions,
		Logger:   log,
		Defaults: cfg.LLM,
	}

	registry := platform.NewRegistry()
	registry.Register(&forumadapter.Adapter{
		Repo:       store,
		Fetcher:    forum,
		AI:         orchestrator,
		Logger:     log,
		FetchLimit: cfg.Forum.FetchLimit,
	})

	eng := &engine.Engine{
		Registry:      registry,
		Repo:          store,
		Logger:        log,
		DefaultSignal: cfg.Engine.DefaultSignal,
	}

	if strings.EqualFold(cfg.App.Env, "dev") {
		gin.SetMode(gin.DebugMode)
	} else {
		gin.SetMode(gin.ReleaseMode)
	}
	router := gin.New()
	router.Use(gin.Recovery())

	healthHandler := &handler.HealthHandler{DB: dbConn.Gorm}
	healthHandler.Register(router)
	runHandler := &handler.RunHandler{Engine: eng, Logger: log}
	runHandler.Register(router)
	scoreHandler := &handler.ScoreHandler{Repo: store}
	scoreHandler.Register(router)

	srv := &http.Server{
		Addr:    cfg.Server.HTTPAddr,
		Handler: router,
	}
	go func() {
		log.Info("http server listening", zap.String("addr", cfg.Server.HTTPAddr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal("http server failed", zap.Error(err))
		}
	}()

	var runner *cronrunner.Runner
	if cfg.Cron.Enabled {
		runner = cronrunner.New(log, ctx)
		if _, err := runner.Add(cfg.Cron.ScoreSweep, eng.Sweep); err != nil {
			log.Fatal("invalid sweep schedule", zap.Error(err))
		}
		runner.Start()
	}

	<-ctx.Done()
	log.Info("shutting down")
	if runner != nil {
		runner.Stop()
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	_ = srv.Shutdown(shutdownCtx)
}
