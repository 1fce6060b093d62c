package main

import (
	"context"
	"errors"
	"io"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"

	"github.com/questor-agent/server/internal/agent/graph"
	"github.com/questor-agent/server/internal/agent/graph/nodes"
	"github.com/questor-agent/server/internal/agent/graph/tools"
	"github.com/questor-agent/server/internal/agent/model"
	"github.com/questor-agent/server/internal/api"
	"github.com/questor-agent/server/internal/classify"
	"github.com/questor-agent/server/internal/conversation"
	"github.com/questor-agent/server/internal/core"
	"github.com/questor-agent/server/internal/geocode"
	"github.com/questor-agent/server/internal/listing"
	"github.com/questor-agent/server/internal/reconcile"
	"github.com/questor-agent/server/internal/session"
	"github.com/questor-agent/server/internal/upload"
	logx "github.com/questor-agent/server/pkg/logger"
	pkgredis "github.com/questor-agent/server/pkg/redis"
	"github.com/questor-agent/server/pkg/supabase"
)

// AppConfig defines all configurable parameters of the service, sourced from
// environment variables (loaded from .env for local runs). Nothing is required;
// missing collaborators degrade at use time.
type AppConfig struct {
	Env         string `envconfig:"APP_ENV" default:"development"`
	LogLevel    string `envconfig:"LOG_LEVEL"`
	Port        string `envconfig:"PORT" default:"8000"`
	CORSOrigins string `envconfig:"CORS_ORIGINS" default:"*"`

	// Infrastructure
	Redis    pkgredis.Config
	Supabase supabase.Config
	Session  session.Config
	Geocoder geocode.Config
	Uploads  upload.Config

	// LLM provider
	Provider model.ProviderConfig

	// Agent configs
	Agent        model.AgentModelConfig
	Classifier   model.ClassifierModelConfig
	FollowUp     model.FollowUpModelConfig
	Conversation model.ConversationConfig

	TaxonomyPath string `envconfig:"TAXONOMY_PATH" default:"taxonomy.json"`
	QuestsTable  string `envconfig:"QUESTS_TABLE" default:"quests"`
}

func main() {
	if err := godotenv.Load(".env"); err != nil && !errors.Is(err, os.ErrNotExist) {
		logx.Warn().Err(err).Msg("Could not load .env file")
	}

	var cfg AppConfig
	if err := envconfig.Process("", &cfg); err != nil {
		logx.Fatal().Err(err).Msg("Failed to process environment config")
	}
	logx.Init(logx.LoggerOpts{Environment: core.ParseEnvironment(cfg.Env), Level: cfg.LogLevel})

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// ====================================================
	// Persistence
	var sb *supabase.Client
	if cfg.Supabase.Enabled() {
		c, err := cfg.Supabase.New(&http.Client{Timeout: cfg.Supabase.Timeout})
		if err != nil {
			logx.Fatal().Err(err).Msg("Failed to initialise Supabase client")
		}
		sb = c
	}

	deps := session.Deps{Supabase: sb}
	rdb, err := cfg.Redis.New(ctx)
	switch {
	case errors.Is(err, pkgredis.ErrNoURL):
	case err != nil:
		logx.Warn().Err(err).Msg("Redis unavailable")
	default:
		defer rdb.Close()
		deps.Redis = rdb
		logx.Info().Msg("Connected to Redis successfully")
	}

	cache := session.NewMemoryCache()
	backend, err := session.NewBackend(cfg.Session, deps, cache)
	if err != nil {
		logx.Fatal().Err(err).Msg("Failed to initialise session backend")
	}
	if c, ok := backend.(io.Closer); ok {
		defer c.Close()
	}
	store := session.NewStore(backend, cache, cfg.Session.Timeout)
	logx.Info().Str("backend", store.Backend()).Msg("Session store ready")

	// ====================================================
	// Agent
	geocoder, err := geocode.New(cfg.Geocoder, &http.Client{Timeout: cfg.Geocoder.Timeout})
	if err != nil {
		logx.Warn().Err(err).Msg("Geocoder disabled")
		geocoder = nil
	}

	taxonomy, err := classify.LoadTaxonomy(cfg.TaxonomyPath)
	if err != nil {
		logx.Fatal().Err(err).Msg("Failed to load taxonomy")
	}

	runner := graph.NewUnavailableRunner()
	var classifier *classify.Classifier
	var followUp reconcile.FollowUp
	if cfg.Provider.Configured() {
		cms, err := nodes.NewChatModels(ctx, nodes.ChatModelConfig{
			Provider:   cfg.Provider,
			Agent:      &cfg.Agent,
			Classifier: &cfg.Classifier,
			FollowUp:   &cfg.FollowUp,
		})
		if err != nil {
			logx.Fatal().Err(err).Msg("Failed to create chat models")
		}

		runner, err = graph.BuildAgentRunner(ctx, graph.Config{
			ChatModel:    cms.Agent,
			ModelName:    cms.AgentModelName,
			Conversation: cfg.Conversation,
			Tools:        tools.Deps{Geocoder: geocoder},
			Timeout:      cfg.Agent.Timeout,
		})
		if err != nil {
			logx.Fatal().Err(err).Msg("Failed to build agent graph")
		}
		classifier = classify.NewClassifier(cms.Classifier, taxonomy, classify.Config{
			ModelName: cms.ClassifierModelName,
			Fallback:  cfg.Conversation.FallbackCategory,
			Timeout:   cfg.Classifier.Timeout,
		})
		followUp = graph.NewFollowUpResponder(cms.FollowUp, cfg.FollowUp)
	} else {
		logx.Warn().Msg("Model provider not configured; /start-quest will report agent unavailable")
	}

	// a nil *Classifier in the interface would not read as "no classifier"
	var cls conversation.Classifier
	if classifier != nil {
		cls = classifier
	}
	svc := conversation.NewService(store, runner, cls, reconcile.New(nil, followUp))

	// ====================================================
	// HTTP
	uploads, err := upload.NewStore(cfg.Uploads)
	if err != nil {
		logx.Fatal().Err(err).Msg("Failed to initialise upload store")
	}
	handler := api.NewHandler(svc, listing.NewPublisher(sb, cfg.QuestsTable), uploads)

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           api.NewRouter(handler, strings.Split(cfg.CORSOrigins, ",")),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      cfg.Agent.Timeout + cfg.Classifier.Timeout + cfg.FollowUp.Timeout + 15*time.Second,
		IdleTimeout:       120 * time.Second,
	}

	go func() {
		logx.Info().Str("addr", srv.Addr).Str("env", cfg.Env).Msg("Server listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logx.Error().Err(err).Msg("Server failed")
			stop()
		}
	}()

	<-ctx.Done()
	stop()
	logx.Info().Msg("Shutting down gracefully...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logx.Error().Err(err).Msg("Server forced to shutdown")
	}
	logx.Info().Msg("Server stopped")
}
