package fooddb

import (
	"context"
	"fmt"
	"math"

	"calorie-app/internal/normalize"
	"calorie-app/internal/nutrition"

	"go.uber.org/zap"
)

// DefaultThreshold is the lowest score the matcher accepts.
const DefaultThreshold = 70

// Weights are the points awarded by each scoring rule.
type Weights struct {
	Exact     float64
	Partial   float64
	Overlap   float64
	Important float64
}

// DefaultWeights returns exact 100, partial 80, overlap 50 and a +20 bonus.
func DefaultWeights() Weights {
	return Weights{Exact: 100, Partial: 80, Overlap: 50, Important: 20}
}

// DefaultImportantTokens are primary ingredient nouns.
var DefaultImportantTokens = []string{
	"chicken", "beef", "pork", "fish", "salmon", "pizza", "burger", "rice", "pasta",
	"roti", "dal", "taco", "burrito", "sandwich", "salad", "noodles", "egg", "eggs",
	"tofu", "paneer", "lentil", "steak", "shrimp",
}

// Matcher scores labels against a Table.
type Matcher struct {
	table     *Table
	threshold float64
	weights   Weights
	important map[string]bool
	logger    *zap.Logger
}

// Option configures a Matcher.
type Option func(*Matcher)

func WithThreshold(threshold float64) Option {
	return func(m *Matcher) { m.threshold = threshold }
}

func WithWeights(w Weights) Option {
	return func(m *Matcher) { m.weights = w }
}

func WithImportantTokens(tokens []string) Option {
	return func(m *Matcher) {
		m.important = make(map[string]bool, len(tokens))
		for _, t := range tokens {
			m.important[t] = true
		}
	}
}

// NewMatcher creates a Matcher over table.
func NewMatcher(table *Table, logger *zap.Logger, opts ...Option) *Matcher {
	m := &Matcher{
		table:     table,
		threshold: DefaultThreshold,
		weights:   DefaultWeights(),
		logger:    logger,
	}
	WithImportantTokens(DefaultImportantTokens)(m)
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Source implements the resolver tier contract.
func (m *Matcher) Source() nutrition.Source {
	return nutrition.SourceLocalDB
}

// Candidate is the best entry found for a token list.
type Candidate struct {
	Entry Entry
	Key   string
	Score float64
}

// Best returns the highest-scoring entry for tokens, or false if no entry
// scores above zero. Ties keep the earlier entry.
func (m *Matcher) Best(tokens []string) (Candidate, bool) {
	var best Candidate
	found := false
	if len(tokens) == 0 {
		return best, false
	}

	query := normalize.Key(tokens)
	for _, e := range m.table.entries {
		for _, k := range e.keys {
			score := m.score(query, tokens, k)
			if score > best.Score {
				best = Candidate{Entry: e.Entry, Key: k.text, Score: score}
				found = true
			}
		}
	}
	return best, found
}

// score applies the first rule that fires: exact, partial, then token overlap.
func (m *Matcher) score(query string, queryTokens []string, k key) float64 {
	if query == k.text {
		return m.weights.Exact
	}
	if normalize.ContainsPhrase(k.text, query) || normalize.ContainsPhrase(query, k.text) {
		return m.weights.Partial
	}

	nameTokens := make(map[string]bool, len(k.tokens))
	for _, t := range k.tokens {
		nameTokens[t] = true
	}

	seen := make(map[string]bool, len(queryTokens))
	shared, bonus := 0, false
	for _, t := range queryTokens {
		if seen[t] {
			continue
		}
		seen[t] = true
		if nameTokens[t] {
			shared++
			if m.important[t] {
				bonus = true
			}
		}
	}
	if shared == 0 {
		return 0
	}

	score := m.weights.Overlap * float64(shared) / float64(len(seen))
	if bonus {
		score += m.weights.Important
	}
	return score
}

// Resolve tries the main tokens, then every candidate label, and keeps the
// highest score. The result is accepted when it reaches the threshold.
func (m *Matcher) Resolve(_ context.Context, l *nutrition.Lookup) (*nutrition.Match, error) {
	var best Candidate
	found := false
	for _, tokens := range append([][]string{l.Tokens}, l.Candidates...) {
		c, ok := m.Best(tokens)
		if ok && c.Score > best.Score {
			best, found = c, true
		}
	}

	if !found {
		return nil, fmt.Errorf("%w: nothing in %d entries shares a token with %q", nutrition.ErrNoMatch, m.table.Len(), l.Key)
	}
	if best.Score < m.threshold {
		m.logger.Debug("local match below threshold",
			zap.String("query", l.Key),
			zap.String("best", best.Key),
			zap.Float64("score", best.Score),
			zap.Float64("threshold", m.threshold))
		return nil, fmt.Errorf("%w: best %q scored %.1f, below %.1f", nutrition.ErrNoMatch, best.Entry.Name, best.Score, m.threshold)
	}

	return &nutrition.Match{
		Name:               best.Entry.Name,
		Profile:            best.Entry.Profile(),
		Confidence:         math.Min(1, best.Score/100),
		TypicalWeightGrams: best.Entry.TypicalWeightGrams,
		Detail:             fmt.Sprintf("score %.1f on %q", best.Score, best.Key),
	}, nil
}
