package nutrition

import (
	"fmt"
	"math"
)

// Category is the broad food group a profile belongs to.
type Category string

const (
	CategoryUnknown   Category = ""
	CategoryProtein   Category = "protein"
	CategoryGrain     Category = "grain"
	CategoryVegetable Category = "vegetable"
	CategoryFruit     Category = "fruit"
	CategoryMixedDish Category = "mixed_dish"
	CategoryDairy     Category = "dairy"
	CategorySnack     Category = "snack"
	CategoryDessert   Category = "dessert"
	CategoryBeverage  Category = "beverage"
	CategoryFastFood  Category = "fast_food"
)

// Source records which tier produced a result.
type Source string

const (
	SourceLocalDB          Source = "LOCAL_DB"
	SourceVerifiedAPI      Source = "VERIFIED_API"
	SourceWebSearch        Source = "WEB_SEARCH"
	SourceCategoryFallback Source = "CATEGORY_FALLBACK"
	SourceGenericFallback  Source = "GENERIC_FALLBACK"
)

// FoodQuery is what the recognition layer hands to the pipeline.
type FoodQuery struct {
	RawLabel             string   `json:"raw_label"`
	CandidateLabels      []string `json:"candidate_labels,omitempty"`
	EstimatedWeightGrams float64  `json:"estimated_weight_grams"`
}

// Profile is a per-100g nutrition record.
type Profile struct {
	CaloriesPer100g float64  `json:"calories_per_100g"`
	ProteinPer100g  float64  `json:"protein_per_100g"`
	CarbsPer100g    float64  `json:"carbs_per_100g"`
	FatPer100g      float64  `json:"fat_per_100g"`
	Category        Category `json:"category,omitempty"`
}

// Validate reports ErrInvalidProfile when any field is negative or not a number.
func (p Profile) Validate() error {
	fields := []struct {
		name  string
		value float64
	}{
		{"calories_per_100g", p.CaloriesPer100g},
		{"protein_per_100g", p.ProteinPer100g},
		{"carbs_per_100g", p.CarbsPer100g},
		{"fat_per_100g", p.FatPer100g},
	}
	for _, f := range fields {
		if math.IsNaN(f.value) || math.IsInf(f.value, 0) || f.value < 0 {
			return fmt.Errorf("%w: %s=%v", ErrInvalidProfile, f.name, f.value)
		}
	}
	return nil
}

// Match is what a single tier produces before scaling.
type Match struct {
	Name       string
	Profile    Profile
	Confidence float64
	// TypicalWeightGrams is used when the query carries no usable weight.
	TypicalWeightGrams float64
	// Detail is a short human-readable note for the trace (score, data type, cache hit).
	Detail string
}

// Totals holds a profile scaled to a portion weight.
type Totals struct {
	Calories float64 `json:"total_calories"`
	Protein  float64 `json:"total_protein"`
	Carbs    float64 `json:"total_carbs"`
	Fat      float64 `json:"total_fat"`
}

// Scale converts a per-100g profile into totals for the given weight.
func Scale(p Profile, weightGrams float64) Totals {
	factor := weightGrams / 100
	return Totals{
		Calories: p.CaloriesPer100g * factor,
		Protein:  p.ProteinPer100g * factor,
		Carbs:    p.CarbsPer100g * factor,
		Fat:      p.FatPer100g * factor,
	}
}

// Result is the final answer for a FoodQuery.
type Result struct {
	MatchedName string  `json:"matched_name"`
	Profile     Profile `json:"profile"`
	Confidence  float64 `json:"confidence"`
	Source      Source  `json:"source"`
	WeightGrams float64 `json:"weight_grams"`
	Totals
}

// Breakdown is the share of energy contributed by each macro.
type Breakdown struct {
	ProteinCalories float64 `json:"protein_calories"`
	CarbsCalories   float64 `json:"carbs_calories"`
	FatCalories     float64 `json:"fat_calories"`
	ProteinPercent  float64 `json:"protein_percent"`
	CarbsPercent    float64 `json:"carbs_percent"`
	FatPercent      float64 `json:"fat_percent"`
}

// MacroBreakdown uses 4/4/9 kcal per gram for protein, carbs and fat.
func (t Totals) MacroBreakdown() Breakdown {
	b := Breakdown{
		ProteinCalories: t.Protein * 4,
		CarbsCalories:   t.Carbs * 4,
		FatCalories:     t.Fat * 9,
	}
	sum := b.ProteinCalories + b.CarbsCalories + b.FatCalories
	if sum <= 0 {
		return b
	}
	b.ProteinPercent = b.ProteinCalories / sum * 100
	b.CarbsPercent = b.CarbsCalories / sum * 100
	b.FatPercent = b.FatCalories / sum * 100
	return b
}

// Lookup is a FoodQuery after normalization, shared by every tier.
type Lookup struct {
	Label  string
	Tokens []string
	// Key is the canonical query string used for caching and searches.
	Key        string
	Candidates [][]string
	Branded    bool
}
