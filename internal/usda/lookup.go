package usda

import (
	"context"
	"fmt"
	"math"
	"strings"
	"time"
	"unicode"

	"calorie-app/internal/nutrition"

	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

const (
	DefaultConfidence = 0.9
	// AmbiguityPenalty is taken off for every other hit that ranks as well as the chosen one.
	AmbiguityPenalty = 0.05
	MinConfidence    = 0.75

	kjPerKcal = 4.184
)

var (
	preferredWords = []string{"fresh", "whole"}
	processedWords = []string{"cooked", "prepared", "with", "frosted", "sweetened", "canned", "frozen", "sauce", "souffle", "leaves", "flour"}
)

// Lookup is the verified-nutrition tier.
type Lookup struct {
	searcher   Searcher
	limiter    *rate.Limiter
	timeout    time.Duration
	confidence float64
	logger     *zap.Logger
}

// NewLookup creates the tier. A nil limiter means no client-side limit.
func NewLookup(searcher Searcher, limiter *rate.Limiter, timeout time.Duration, logger *zap.Logger) *Lookup {
	return &Lookup{
		searcher:   searcher,
		limiter:    limiter,
		timeout:    timeout,
		confidence: DefaultConfidence,
		logger:     logger,
	}
}

// NewLimiter allows perMinute requests with a burst of the same size.
func NewLimiter(perMinute int) *rate.Limiter {
	if perMinute <= 0 {
		return nil
	}
	return rate.NewLimiter(rate.Every(time.Minute/time.Duration(perMinute)), perMinute)
}

func (l *Lookup) Source() nutrition.Source {
	return nutrition.SourceVerifiedAPI
}

// Resolve searches FDC for the query key and maps the best hit. Every failure
// is returned as an error for the orchestrator to record as a miss.
func (l *Lookup) Resolve(ctx context.Context, q *nutrition.Lookup) (*nutrition.Match, error) {
	if q.Key == "" {
		return nil, fmt.Errorf("%w: empty query", nutrition.ErrNoMatch)
	}
	if l.limiter != nil && !l.limiter.Allow() {
		l.logger.Warn("fdc request rejected by rate limiter", zap.String("query", q.Key))
		return nil, nutrition.ErrRateLimited
	}

	ctx, cancel := context.WithTimeout(ctx, l.timeout)
	defer cancel()

	foods, err := l.searcher.Search(ctx, q.Key)
	if err != nil {
		l.logger.Warn("fdc search failed", zap.String("query", q.Key), zap.Error(err))
		return nil, fmt.Errorf("fdc search: %w", err)
	}
	if len(foods) == 0 {
		return nil, fmt.Errorf("%w: fdc has no foods for %q", nutrition.ErrEmptyResult, q.Key)
	}

	best, bestScore, ties, ok := rank(q.Key, foods)
	if !ok {
		l.logger.Debug("no fdc hit names the query", zap.String("query", q.Key), zap.Int("hits", len(foods)))
		return nil, fmt.Errorf("%w: no fdc food matches %q", nutrition.ErrNoMatch, q.Key)
	}
	profile, ok := profileOf(best)
	if !ok {
		return nil, fmt.Errorf("%w: %q has no energy value", nutrition.ErrEmptyResult, best.Description)
	}
	if err := profile.Validate(); err != nil {
		return nil, err
	}

	confidence := math.Max(MinConfidence, l.confidence-AmbiguityPenalty*float64(ties))
	l.logger.Debug("fdc match",
		zap.String("query", q.Key),
		zap.String("description", best.Description),
		zap.Int("fdc_id", best.FdcID),
		zap.Int("relevance", bestScore),
		zap.Int("ambiguous", ties))

	return &nutrition.Match{
		Name:       best.Description,
		Profile:    profile,
		Confidence: confidence,
		Detail:     fmt.Sprintf("fdc %d (%s), relevance %d, %d ambiguous", best.FdcID, best.DataType, bestScore, ties),
	}, nil
}

// rank picks the most relevant hit among those whose description contains
// every query word. Earlier hits win ties; ties counts the other hits with
// the same relevance. ok is false when no hit names the query.
func rank(query string, foods []Food) (Food, int, int, bool) {
	q := strings.Fields(query)
	bestIdx, bestScore := -1, math.MinInt
	scores := make([]int, len(foods))
	for i, f := range foods {
		if !containsAll(words(f.Description), q) {
			scores[i] = math.MinInt
			continue
		}
		scores[i] = relevance(query, f.Description)
		if scores[i] > bestScore {
			bestIdx, bestScore = i, scores[i]
		}
	}
	if bestIdx < 0 {
		return Food{}, 0, 0, false
	}

	ties := 0
	for i, s := range scores {
		if i != bestIdx && s == bestScore {
			ties++
		}
	}
	return foods[bestIdx], bestScore, ties, true
}

// relevance scores a description against the query on whole words: +50 when
// it names every query word, +40 when it starts with them, +30 for raw (or
// +20 for fresh or whole) and -20 for any sign of processing.
func relevance(query, description string) int {
	q := strings.Fields(query)
	d := words(description)
	score := 0
	if containsAll(d, q) {
		score += 50
	}
	if len(q) > 0 && len(d) >= len(q) && startsWith(d, q) {
		score += 40
	}
	if hasAny(d, "raw") {
		score += 30
	} else if hasAny(d, preferredWords...) {
		score += 20
	}
	if hasAny(d, processedWords...) {
		score -= 20
	}
	return score
}

func words(s string) []string {
	return strings.FieldsFunc(strings.ToLower(s), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
}

// sameWord treats regular plurals as the same word: apple/apples,
// tomato/tomatoes, berry/berries.
func sameWord(a, b string) bool {
	if a == b {
		return true
	}
	if len(a) > len(b) {
		a, b = b, a
	}
	switch {
	case b == a+"s", b == a+"es":
		return true
	case strings.HasSuffix(a, "y") && b == a[:len(a)-1]+"ies":
		return true
	}
	return false
}

func containsAll(desc, query []string) bool {
	for _, q := range query {
		found := false
		for _, d := range desc {
			if sameWord(d, q) {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	return true
}

func startsWith(desc, query []string) bool {
	for i, q := range query {
		if !sameWord(desc[i], q) {
			return false
		}
	}
	return true
}

func hasAny(desc []string, targets ...string) bool {
	for _, d := range desc {
		for _, t := range targets {
			if d == t {
				return true
			}
		}
	}
	return false
}

// profileOf reads energy in kcal, converting kJ when that is all there is.
func profileOf(f Food) (nutrition.Profile, bool) {
	var p nutrition.Profile
	var kcal, kj float64
	var hasKcal, hasKJ bool
	for _, n := range f.FoodNutrients {
		switch n.NutrientName {
		case "Energy":
			switch strings.ToLower(n.UnitName) {
			case "kcal":
				kcal, hasKcal = n.Value, true
			case "kj":
				kj, hasKJ = n.Value, true
			}
		case "Protein":
			p.ProteinPer100g = n.Value
		case "Carbohydrate, by difference":
			p.CarbsPer100g = n.Value
		case "Total lipid (fat)":
			p.FatPer100g = n.Value
		}
	}

	switch {
	case hasKcal:
		p.CaloriesPer100g = kcal
	case hasKJ:
		p.CaloriesPer100g = kj / kjPerKcal
	default:
		return p, false
	}
	return p, true
}
