package category

import (
	"context"

	"calorie-app/internal/nutrition"
)

// DefaultGenericConfidence is the lowest band any result can have.
const DefaultGenericConfidence = 0.2

// GenericProfile is a flat average food: 150 kcal with balanced macros.
var GenericProfile = nutrition.Profile{
	CaloriesPer100g: 150,
	ProteinPer100g:  5,
	CarbsPer100g:    20,
	FatPer100g:      5,
}

// Generic is the last tier. It never misses.
type Generic struct {
	profile    nutrition.Profile
	confidence float64
}

func NewGeneric(confidence float64) *Generic {
	return &Generic{profile: GenericProfile, confidence: confidence}
}

func (g *Generic) Source() nutrition.Source {
	return nutrition.SourceGenericFallback
}

func (g *Generic) Resolve(_ context.Context, _ *nutrition.Lookup) (*nutrition.Match, error) {
	return g.Match(), nil
}

// Match returns the flat estimate directly.
func (g *Generic) Match() *nutrition.Match {
	return &nutrition.Match{
		Name:       "unidentified food (generic estimate)",
		Profile:    g.profile,
		Confidence: g.confidence,
		Detail:     "no tier recognized the food",
	}
}
