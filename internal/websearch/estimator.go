package websearch

import (
	"context"
	"fmt"
	"strings"
	"time"

	"calorie-app/internal/normalize"
	"calorie-app/internal/nutrition"

	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"
)

const (
	// FullConfidence applies when calories and all three macros were read.
	FullConfidence = 0.75
	// PartialConfidence applies when some macros had to be estimated.
	PartialConfidence = 0.55

	DefaultServingGrams = 100
	maxCaloriesPer100g  = 900

	querySuffix = "nutrition facts calories protein carbs fat"
)

// DefaultServingWeights are typical weights in grams of signature items, used
// when a search result gives calories per item without a serving size.
var DefaultServingWeights = map[string]float64{
	"big mac":          219,
	"whopper":          270,
	"quarter pounder":  202,
	"mcchicken":        143,
	"baconator":        283,
	"son of baconator": 224,
	"crunchwrap":       254,
	"mcflurry":         285,
}

// Estimator is the web-search tier.
type Estimator struct {
	provider       Provider
	cache          *Cache
	group          singleflight.Group
	timeout        time.Duration
	servingGrams   float64
	servings       map[string]float64
	fullConfidence float64
	partConfidence float64
	logger         *zap.Logger
}

// NewEstimator creates the tier. timeout bounds each provider call.
func NewEstimator(provider Provider, cache *Cache, timeout time.Duration, logger *zap.Logger) *Estimator {
	e := &Estimator{
		provider:       provider,
		cache:          cache,
		timeout:        timeout,
		servingGrams:   DefaultServingGrams,
		servings:       make(map[string]float64, len(DefaultServingWeights)),
		fullConfidence: FullConfidence,
		partConfidence: PartialConfidence,
		logger:         logger,
	}
	e.AddServingWeights(DefaultServingWeights)
	return e
}

// AddServingWeights registers typical item weights by food name. Names are
// normalized; later registrations replace earlier ones. Call before serving
// queries.
func (e *Estimator) AddServingWeights(weights map[string]float64) {
	for name, grams := range weights {
		if k := normalize.Label(name); k != "" && grams > 0 {
			e.servings[k] = grams
		}
	}
}

// typicalServing returns the weight of the longest registered name found in key.
func (e *Estimator) typicalServing(key string) (float64, bool) {
	best, grams := "", 0.0
	for name, g := range e.servings {
		if len(name) > len(best) && normalize.ContainsPhrase(key, name) {
			best, grams = name, g
		}
	}
	return grams, best != ""
}

// SetConfidences overrides the two confidence levels.
func (e *Estimator) SetConfidences(full, partial float64) {
	e.fullConfidence, e.partConfidence = full, partial
}

func (e *Estimator) Source() nutrition.Source {
	return nutrition.SourceWebSearch
}

// Resolve serves from the cache when it can. Concurrent misses for the same
// key share one provider call.
func (e *Estimator) Resolve(ctx context.Context, q *nutrition.Lookup) (*nutrition.Match, error) {
	if q.Key == "" {
		return nil, fmt.Errorf("%w: empty query", nutrition.ErrNoMatch)
	}

	if entry, ok := e.cache.Get(q.Key); ok {
		e.logger.Debug("web search cache hit", zap.String("query", q.Key))
		return matchFrom(entry, "cache hit"), nil
	}

	v, err, shared := e.group.Do(q.Key, func() (interface{}, error) {
		if entry, ok := e.cache.Get(q.Key); ok {
			return entry, nil
		}
		return e.fetch(ctx, q.Key)
	})
	if err != nil {
		e.logger.Warn("web search estimate failed", zap.String("query", q.Key), zap.Error(err))
		return nil, err
	}

	detail := "fetched"
	if shared {
		detail = "fetched (shared)"
	}
	return matchFrom(v.(CacheEntry), detail), nil
}

func (e *Estimator) fetch(ctx context.Context, key string) (CacheEntry, error) {
	ctx, cancel := context.WithTimeout(ctx, e.timeout)
	defer cancel()

	text, err := e.provider.Search(ctx, key+" "+querySuffix)
	if err != nil {
		return CacheEntry{}, fmt.Errorf("search provider: %w", err)
	}
	if strings.TrimSpace(text) == "" {
		return CacheEntry{}, fmt.Errorf("%w: search returned no text", nutrition.ErrEmptyResult)
	}

	facts, err := Parse(text)
	if err != nil {
		return CacheEntry{}, err
	}

	serving := facts.ServingGrams
	if serving <= 0 {
		var ok bool
		if serving, ok = e.typicalServing(key); !ok {
			serving = e.servingGrams
		}
	}

	profile, complete, err := e.profileFrom(facts, serving)
	if err != nil {
		return CacheEntry{}, err
	}

	confidence := e.fullConfidence
	if !complete {
		confidence = e.partConfidence
	}

	entry := CacheEntry{
		QueryKey:     key,
		Name:         key,
		Result:       profile,
		Confidence:   confidence,
		ServingGrams: serving,
	}
	e.cache.Put(entry)
	e.logger.Debug("web search estimate cached",
		zap.String("query", key),
		zap.Float64("calories_per_100g", profile.CaloriesPer100g),
		zap.Float64("serving_grams", serving),
		zap.Bool("complete", complete))
	return entry, nil
}

// profileFrom converts one serving of serving grams to per-100g values. With
// no macros at all they are estimated from a 20/45/35 protein/carbs/fat
// energy split.
func (e *Estimator) profileFrom(f Facts, serving float64) (nutrition.Profile, bool, error) {
	factor := 100 / serving

	p := nutrition.Profile{CaloriesPer100g: f.Calories * factor}
	if p.CaloriesPer100g > maxCaloriesPer100g {
		return p, false, fmt.Errorf("%w: %.0f kcal per 100 g is not food", nutrition.ErrParse, p.CaloriesPer100g)
	}

	if !f.HasProtein && !f.HasCarbs && !f.HasFat {
		p.ProteinPer100g = p.CaloriesPer100g * 0.20 / 4
		p.CarbsPer100g = p.CaloriesPer100g * 0.45 / 4
		p.FatPer100g = p.CaloriesPer100g * 0.35 / 9
		return p, false, nil
	}

	p.ProteinPer100g = f.Protein * factor
	p.CarbsPer100g = f.Carbs * factor
	p.FatPer100g = f.Fat * factor
	return p, f.Complete(), p.Validate()
}

func matchFrom(e CacheEntry, detail string) *nutrition.Match {
	return &nutrition.Match{
		Name:               e.Name,
		Profile:            e.Result,
		Confidence:         e.Confidence,
		TypicalWeightGrams: e.ServingGrams,
		Detail:             detail,
	}
}
