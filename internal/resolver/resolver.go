// Package resolver runs the nutrition tiers in priority order and turns the
// first hit into a scaled result.
package resolver

import (
	"context"
	"errors"
	"math"
	"time"

	"calorie-app/internal/category"
	"calorie-app/internal/normalize"
	"calorie-app/internal/nutrition"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// DefaultWeightGrams is used when neither the query nor the match has a weight.
const DefaultWeightGrams = 100

// Tier is one strategy in the fallback chain. A nil match or any error is a miss.
type Tier interface {
	Source() nutrition.Source
	Resolve(ctx context.Context, q *nutrition.Lookup) (*nutrition.Match, error)
}

// Route selects which queries a stage runs for.
type Route int

const (
	RouteAll Route = iota
	// RouteGeneric stages run only when no brand was detected.
	RouteGeneric
	// RouteBranded stages run only when a brand was detected.
	RouteBranded
)

// Stage is a tier with its route.
type Stage struct {
	Tier  Tier
	Route Route
}

func (s Stage) runs(branded bool) bool {
	switch s.Route {
	case RouteGeneric:
		return !branded
	case RouteBranded:
		return branded
	default:
		return true
	}
}

// BrandDetector decides the branch once per query.
type BrandDetector interface {
	Detect(raw, key string) (string, bool)
}

// Classifier tags profiles that come back without a category.
type Classifier interface {
	Classify(tokens []string) nutrition.Category
}

// Band is the confidence range a source is allowed to report.
type Band struct {
	Min, Max float64
}

// DefaultBands keep LOCAL_DB above the fallbacks and GENERIC_FALLBACK lowest.
// The LOCAL_DB band overlaps VERIFIED_API and WEB_SEARCH: a curated match is
// worth as much as an API hit only when it scores well. Its floor of 0.7
// matches the default match threshold of 70; callers that change the
// threshold should move the floor with it (SetBand) so a weak match is not
// raised above its score.
func DefaultBands() map[nutrition.Source]Band {
	return map[nutrition.Source]Band{
		nutrition.SourceLocalDB:          {Min: 0.7, Max: 1},
		nutrition.SourceVerifiedAPI:      {Min: 0.75, Max: 0.9},
		nutrition.SourceWebSearch:        {Min: 0.5, Max: 0.75},
		nutrition.SourceCategoryFallback: {Min: 0.3, Max: 0.45},
		nutrition.SourceGenericFallback:  {Min: 0.1, Max: 0.25},
	}
}

// Orchestrator is safe for concurrent use if its tiers are.
type Orchestrator struct {
	stages     []Stage
	detector   BrandDetector
	classifier Classifier
	bands      map[nutrition.Source]Band
	backstop   *category.Generic
	logger     *zap.Logger
}

// New creates an orchestrator over stages in priority order. The detector
// and classifier may be nil.
func New(logger *zap.Logger, detector BrandDetector, classifier Classifier, stages ...Stage) *Orchestrator {
	return &Orchestrator{
		stages:     stages,
		detector:   detector,
		classifier: classifier,
		bands:      DefaultBands(),
		backstop:   category.NewGeneric(category.DefaultGenericConfidence),
		logger:     logger,
	}
}

// SetBand overrides the confidence band of one source.
func (o *Orchestrator) SetBand(src nutrition.Source, b Band) {
	o.bands[src] = b
}

// Resolve always returns a result. Cancellation of ctx is ignored; each
// external tier bounds itself with its own timeout.
func (o *Orchestrator) Resolve(ctx context.Context, q nutrition.FoodQuery) (nutrition.Result, *Trace) {
	ctx = context.WithoutCancel(ctx)
	start := time.Now()

	lookup, brandReason := o.normalize(q)
	trace := &Trace{
		ID:          uuid.NewString(),
		Label:       q.RawLabel,
		Tokens:      lookup.Tokens,
		Branded:     lookup.Branded,
		BrandReason: brandReason,
		StartedAt:   start.UTC(),
	}

	log := o.logger.With(zap.String("trace_id", trace.ID), zap.Strings("tokens", lookup.Tokens))
	log.Debug("resolving food", zap.String("label", q.RawLabel), zap.Bool("branded", lookup.Branded))

	var (
		match *nutrition.Match
		src   nutrition.Source
	)
	for _, stage := range o.stages {
		if !stage.runs(lookup.Branded) {
			continue
		}
		m, attempt := o.try(ctx, stage.Tier, lookup)
		trace.Attempts = append(trace.Attempts, attempt)
		log.Info("tier attempted",
			zap.String("tier", string(attempt.Tier)),
			zap.String("outcome", string(attempt.Outcome)),
			zap.Float64("confidence", attempt.Confidence),
			zap.Duration("elapsed", attempt.Elapsed),
			zap.String("reason", attempt.Reason))
		if m != nil {
			match, src = m, stage.Tier.Source()
			break
		}
	}

	if match == nil {
		match, src = o.backstop.Match(), nutrition.SourceGenericFallback
		trace.Attempts = append(trace.Attempts, Attempt{
			Tier:       src,
			Outcome:    OutcomeHit,
			Confidence: match.Confidence,
			Reason:     "backstop",
		})
		log.Warn("no configured tier answered, using backstop")
	}

	result := o.finish(q, lookup, match, src)
	trace.Elapsed = time.Since(start)
	log.Info("food resolved",
		zap.String("source", string(result.Source)),
		zap.String("matched", result.MatchedName),
		zap.Float64("confidence", result.Confidence),
		zap.Float64("total_calories", result.Calories),
		zap.Duration("elapsed", trace.Elapsed))
	return result, trace
}

// normalize builds the shared lookup and runs the brand detector once.
func (o *Orchestrator) normalize(q nutrition.FoodQuery) (*nutrition.Lookup, string) {
	l := &nutrition.Lookup{Label: q.RawLabel, Tokens: normalize.Tokens(q.RawLabel)}
	for _, c := range q.CandidateLabels {
		if tokens := normalize.Tokens(c); len(tokens) > 0 {
			l.Candidates = append(l.Candidates, tokens)
		}
	}
	if len(l.Tokens) == 0 && len(l.Candidates) > 0 {
		l.Tokens, l.Candidates = l.Candidates[0], l.Candidates[1:]
	}
	l.Key = normalize.Key(l.Tokens)

	var reason string
	if o.detector != nil {
		reason, l.Branded = o.detector.Detect(q.RawLabel, l.Key)
	}
	return l, reason
}

func (o *Orchestrator) try(ctx context.Context, tier Tier, l *nutrition.Lookup) (*nutrition.Match, Attempt) {
	start := time.Now()
	m, err := tier.Resolve(ctx, l)
	a := Attempt{Tier: tier.Source(), Elapsed: time.Since(start)}

	switch {
	case err == nil && m != nil:
		if verr := m.Profile.Validate(); verr != nil {
			a.Outcome, a.Reason = OutcomeError, verr.Error()
			return nil, a
		}
		a.Outcome, a.Reason = OutcomeHit, m.Detail
		a.Confidence = o.clamp(a.Tier, m.Confidence)
		return m, a
	case err == nil, errors.Is(err, nutrition.ErrNoMatch):
		a.Outcome = OutcomeMiss
	default:
		a.Outcome = OutcomeError
	}
	if err != nil {
		a.Reason = err.Error()
	}
	return nil, a
}

// finish is the only place totals are computed.
func (o *Orchestrator) finish(q nutrition.FoodQuery, l *nutrition.Lookup, m *nutrition.Match, src nutrition.Source) nutrition.Result {
	weight := q.EstimatedWeightGrams
	if weight <= 0 || math.IsNaN(weight) || math.IsInf(weight, 0) {
		weight = m.TypicalWeightGrams
		if weight <= 0 {
			weight = DefaultWeightGrams
		}
	}

	profile := m.Profile
	if profile.Category == nutrition.CategoryUnknown && o.classifier != nil {
		profile.Category = o.classifier.Classify(l.Tokens)
	}

	return nutrition.Result{
		MatchedName: m.Name,
		Profile:     profile,
		Confidence:  o.clamp(src, m.Confidence),
		Source:      src,
		WeightGrams: weight,
		Totals:      nutrition.Scale(profile, weight),
	}
}

func (o *Orchestrator) clamp(src nutrition.Source, c float64) float64 {
	b, ok := o.bands[src]
	if !ok {
		return math.Max(0, math.Min(1, c))
	}
	return math.Max(b.Min, math.Min(b.Max, c))
}
