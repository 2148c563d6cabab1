package app

import (
	"context"
	"fmt"
	"math"

	"calorie-app/internal/category"
	"calorie-app/internal/config"
	"calorie-app/internal/fooddb"
	"calorie-app/internal/llm"
	"calorie-app/internal/nutrition"
	"calorie-app/internal/resolver"
	"calorie-app/internal/usda"
	"calorie-app/internal/websearch"

	"go.uber.org/zap"
)

// App holds the resolution pipeline and the clients it owns.
type App struct {
	Orchestrator *resolver.Orchestrator
	Table        *fooddb.Table
	Cache        *websearch.Cache

	closers []llm.Closer
	logger  *zap.Logger
}

// NewApp builds every tier from cfg. Any configuration problem is returned
// here, before a single query is served.
func NewApp(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*App, error) {
	a := &App{logger: logger}

	table, err := loadTable(cfg)
	if err != nil {
		return nil, err
	}
	a.Table = table

	categories := category.DefaultTable()
	categoryTier, err := category.NewEstimator(categories, category.DefaultConfidence, logger.Named("category"))
	if err != nil {
		return nil, fmt.Errorf("invalid category table: %w", err)
	}

	stages := []resolver.Stage{
		{Tier: fooddb.NewMatcher(table, logger.Named("local"), fooddb.WithThreshold(cfg.MatchThreshold)), Route: resolver.RouteAll},
	}

	if cfg.VerifiedLookupEnabled() {
		client := usda.NewClient(cfg.USDABaseURL, cfg.USDAAPIKey, cfg.ExternalTimeout)
		lookup := usda.NewLookup(client, usda.NewLimiter(cfg.USDARatePerMinute), cfg.ExternalTimeout, logger.Named("usda"))
		stages = append(stages, resolver.Stage{Tier: lookup, Route: resolver.RouteGeneric})
	} else {
		logger.Info("USDA_API_KEY not set, verified lookup disabled")
	}

	provider, err := a.searchProvider(ctx, cfg)
	if err != nil {
		a.Close()
		return nil, err
	}
	if provider != nil {
		a.Cache = websearch.NewCache(cfg.CacheTTL, websearch.DefaultCacheEntries)
		estimator := websearch.NewEstimator(provider, a.Cache, cfg.ExternalTimeout, logger.Named("websearch"))
		estimator.AddServingWeights(table.TypicalWeights())
		stages = append(stages, resolver.Stage{Tier: estimator, Route: resolver.RouteBranded})
	}

	stages = append(stages,
		resolver.Stage{Tier: categoryTier, Route: resolver.RouteAll},
		resolver.Stage{Tier: category.NewGeneric(category.DefaultGenericConfidence), Route: resolver.RouteAll},
	)

	a.Orchestrator = resolver.New(logger.Named("resolver"), websearch.NewDetector(), categories, stages...)
	// Curated matches report score/100, so the band starts at the threshold.
	a.Orchestrator.SetBand(nutrition.SourceLocalDB, resolver.Band{Min: math.Min(1, cfg.MatchThreshold/100), Max: 1})
	return a, nil
}

func loadTable(cfg *config.Config) (*fooddb.Table, error) {
	if cfg.FoodTablePath == "" {
		table, err := fooddb.Default()
		if err != nil {
			return nil, fmt.Errorf("built-in food table: %w", err)
		}
		return table, nil
	}
	return fooddb.LoadFile(cfg.FoodTablePath)
}

func (a *App) searchProvider(ctx context.Context, cfg *config.Config) (websearch.Provider, error) {
	switch cfg.SearchProvider {
	case config.SearchProviderHTML:
		return websearch.NewHTMLProvider(cfg.SearchBaseURL, cfg.ExternalTimeout), nil
	case config.SearchProviderGemini:
		client, err := llm.NewGeminiClient(ctx, cfg)
		if err != nil {
			return nil, err
		}
		a.closers = append(a.closers, client)
		return websearch.NewLLMProvider(client, a.logger.Named("gemini")), nil
	case config.SearchProviderGroq:
		return websearch.NewLLMProvider(llm.NewGroqClient(cfg), a.logger.Named("groq")), nil
	case config.SearchProviderNone:
		a.logger.Info("web search disabled")
		return nil, nil
	default:
		return nil, fmt.Errorf("unknown search provider %q", cfg.SearchProvider)
	}
}

// Resolve runs one query through the pipeline.
func (a *App) Resolve(ctx context.Context, q nutrition.FoodQuery) (nutrition.Result, *resolver.Trace) {
	return a.Orchestrator.Resolve(ctx, q)
}

// TableSize is the number of curated foods loaded.
func (a *App) TableSize() int {
	return a.Table.Len()
}

// CachedEstimates is the number of web search estimates held, zero when web
// search is disabled.
func (a *App) CachedEstimates() int {
	if a.Cache == nil {
		return 0
	}
	return a.Cache.Len()
}

// Close releases the LLM clients.
func (a *App) Close() error {
	var firstErr error
	for _, c := range a.closers {
		if err := c.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}
