package main

import (
	"context"
	"fmt"

	"suburbiq/internal/config"
	"suburbiq/internal/conversation"
	"suburbiq/internal/handler"
	"suburbiq/internal/observability"
	"suburbiq/internal/plan"
	"suburbiq/internal/repository"
	"suburbiq/internal/schema"
	"suburbiq/internal/service"
	"suburbiq/internal/store"
	"suburbiq/internal/yield"

	"github.com/dgraph-io/badger/v4"
	"github.com/gin-gonic/gin"
	"github.com/jmoiron/sqlx"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"go.uber.org/zap"
)

// app holds the wired query core and everything that needs closing
type app struct {
	assistant  *service.Assistant
	engine     *service.Engine
	contexts   store.ContextStore
	registry   *schema.Registry
	normalizer *plan.Normalizer
	gatherer   prometheus.Gatherer

	db     *sqlx.DB
	badger *badger.DB
}

func buildApp(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*app, error) {
	a := &app{}
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	a.gatherer = reg
	metrics := observability.NewMetrics(reg)

	registry := schema.Default()
	a.registry = registry

	// Initialize data service connection
	db, err := repository.Open(cfg.Data.Driver, cfg.GetDataDSN(), cfg.Data.MaxConnections, cfg.Data.MaxIdleConnections)
	if err != nil {
		return nil, err
	}
	a.db = db
	if cfg.Data.Driver == "sqlite" {
		if err := repository.MigrateSQLite(ctx, db); err != nil {
			a.Close()
			return nil, fmt.Errorf("failed to migrate sqlite: %w", err)
		}
	}
	logger.Info("connected to data service", zap.String("driver", cfg.Data.Driver))

	sqlData := repository.NewSQLDataService(db, repository.NewCompiler(registry), logger, metrics)
	data := service.NewResilientFetcher(sqlData, cfg.Engine, logger, metrics)

	// Session contexts and state averages
	var (
		contexts store.ContextStore
		averages store.AverageCache
	)
	switch cfg.Cache.Backend {
	case "badger":
		bdb, err := store.OpenBadger(cfg.Cache.BadgerPath)
		if err != nil {
			a.Close()
			return nil, err
		}
		a.badger = bdb
		contexts = store.NewBadgerContextStore(bdb, cfg.Cache.ContextTTL)
		averages = store.NewBadgerAverageCache(bdb, cfg.Cache.AverageTTL)
	default:
		contexts = store.NewMemoryContextStore(cfg.Cache.ContextTTL)
		averages = store.NewMemoryAverageCache(cfg.Cache.AverageTTL)
	}
	a.contexts = contexts
	logger.Info("context store ready", zap.String("backend", cfg.Cache.Backend))

	var nearby repository.NearbySource = repository.NewLGANearby(data)
	if cfg.Data.Driver == "postgres" {
		nearby = repository.FallbackNearby{Primary: repository.NewCentroidNearby(db), Secondary: nearby}
	}

	// LLM planner and classifier with rule-based fallbacks
	ai := service.NewAIClient(cfg.OpenAI, logger)
	if !ai.IsEnabled() {
		logger.Warn("LLM is disabled, using rule-based planning and classification",
			zap.String("hint", "set OPENAI_API_KEY to enable"))
	}
	a.normalizer = plan.NewNormalizer(registry)
	planner := service.NewFallbackPlanner(
		service.NewLLMPlanner(ai, a.normalizer, logger),
		service.NewHeuristicPlanner(registry),
		logger,
	)
	classifier := service.NewFallbackClassifier(
		service.NewLLMClassifier(ai, logger),
		conversation.NewHeuristicClassifier(registry),
		logger,
	)

	averager := yield.NewStateAverager(averages, service.LoadStateAverage(data), logger, metrics)
	a.engine = service.NewEngine(data, averager, registry, logger)
	a.assistant = service.NewAssistant(service.AssistantDeps{
		Contexts:    contexts,
		Classifier:  classifier,
		Flow:        conversation.NewFlow(contexts, registry, cfg.Conversation.MinConfidence, logger, metrics),
		Planner:     planner,
		Normalizer:  a.normalizer,
		Directory:   repository.NewSuburbDirectory(data),
		Nearby:      nearby,
		Engine:      a.engine,
		NearbyLimit: cfg.Engine.NearbyLimit,
		Logger:      logger,
		Metrics:     metrics,
	})

	logger.Info("services initialized")
	return a, nil
}

func (a *app) router(cfg *config.Config, logger *zap.Logger) *gin.Engine {
	return handler.NewRouter(handler.RouterConfig{
		AllowedOrigins: cfg.Server.AllowedOrigins,
		Build:          handler.BuildInfo{Version: Version, BuildTime: BuildTime, GitCommit: GitCommit},
		Gatherer:       a.gatherer,
		Chat:           handler.NewChatHandler(a.assistant, logger),
		Execute:        handler.NewExecuteHandler(a.normalizer, a.registry, a.engine),
		Sessions:       handler.NewSessionHandler(a.contexts),
		Logger:         logger,
	})
}

// Close releases the database and the badger store
func (a *app) Close() {
	if a.badger != nil {
		_ = a.badger.Close()
	}
	if a.db != nil {
		_ = a.db.Close()
	}
}
