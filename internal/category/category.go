// Package category estimates nutrition from broad food groups when no
// specific source knows the food.
package category

import (
	"context"
	"fmt"

	"calorie-app/internal/nutrition"

	"go.uber.org/zap"
)

// Group is one category with its detection keywords and representative profile.
type Group struct {
	Category nutrition.Category
	Keywords []string
	Profile  nutrition.Profile
}

// Table is the keyword data for detection. Groups are checked in order,
// so more specific groups go first.
type Table struct {
	Groups []Group
	// Refined profiles for single keywords that are better known than their group.
	Refined map[string]nutrition.Profile

	index map[string]int
}

// DefaultTable returns the built-in keyword lists and profiles.
func DefaultTable() *Table {
	t := &Table{
		Groups: []Group{
			{
				Category: nutrition.CategoryMixedDish,
				Keywords: []string{"pizza", "burger", "sandwich", "taco", "burrito", "curry", "biryani", "lasagna", "casserole", "stew", "wrap", "combo", "meal", "thali"},
				Profile:  nutrition.Profile{CaloriesPer100g: 220, ProteinPer100g: 10, CarbsPer100g: 24, FatPer100g: 9},
			},
			{
				Category: nutrition.CategoryDessert,
				Keywords: []string{"cake", "ice", "cream", "pie", "brownie", "cookie", "cookies", "donut", "doughnut", "pudding", "chocolate", "candy", "muffin", "cupcake", "pastry"},
				Profile:  nutrition.Profile{CaloriesPer100g: 380, ProteinPer100g: 5, CarbsPer100g: 50, FatPer100g: 18},
			},
			{
				Category: nutrition.CategoryProtein,
				Keywords: []string{"chicken", "beef", "pork", "fish", "salmon", "tuna", "shrimp", "steak", "lamb", "turkey", "egg", "eggs", "tofu", "meat", "bacon", "sausage", "lentil", "lentils", "beans"},
				Profile:  nutrition.Profile{CaloriesPer100g: 200, ProteinPer100g: 25, CarbsPer100g: 0, FatPer100g: 10},
			},
			{
				Category: nutrition.CategoryGrain,
				Keywords: []string{"rice", "pasta", "bread", "noodles", "noodle", "roti", "naan", "chapati", "tortilla", "oats", "oatmeal", "cereal", "quinoa", "bagel", "spaghetti", "toast"},
				Profile:  nutrition.Profile{CaloriesPer100g: 150, ProteinPer100g: 4.5, CarbsPer100g: 30, FatPer100g: 1.5},
			},
			{
				Category: nutrition.CategoryDairy,
				Keywords: []string{"milk", "cheese", "yogurt", "yoghurt", "paneer", "butter", "curd"},
				Profile:  nutrition.Profile{CaloriesPer100g: 150, ProteinPer100g: 9, CarbsPer100g: 5, FatPer100g: 10},
			},
			{
				Category: nutrition.CategoryVegetable,
				Keywords: []string{"vegetable", "vegetables", "salad", "broccoli", "carrot", "carrots", "spinach", "lettuce", "tomato", "potato", "cucumber", "cabbage", "peas", "greens"},
				Profile:  nutrition.Profile{CaloriesPer100g: 35, ProteinPer100g: 3, CarbsPer100g: 7, FatPer100g: 0.4},
			},
			{
				Category: nutrition.CategoryFruit,
				Keywords: []string{"fruit", "fruits", "apple", "banana", "orange", "grape", "grapes", "berries", "strawberry", "mango", "pear", "peach", "melon", "pineapple", "kiwi"},
				Profile:  nutrition.Profile{CaloriesPer100g: 60, ProteinPer100g: 0.5, CarbsPer100g: 15, FatPer100g: 0.2},
			},
			{
				Category: nutrition.CategorySnack,
				Keywords: []string{"chips", "crisps", "crackers", "popcorn", "pretzels", "nuts", "fries", "nachos", "bar"},
				Profile:  nutrition.Profile{CaloriesPer100g: 480, ProteinPer100g: 7, CarbsPer100g: 55, FatPer100g: 25},
			},
			{
				Category: nutrition.CategoryBeverage,
				Keywords: []string{"coffee", "tea", "juice", "soda", "smoothie", "latte", "shake", "drink", "cola"},
				Profile:  nutrition.Profile{CaloriesPer100g: 45, ProteinPer100g: 0.5, CarbsPer100g: 10, FatPer100g: 0.5},
			},
		},
		Refined: map[string]nutrition.Profile{
			"chicken":   {CaloriesPer100g: 165, ProteinPer100g: 31, CarbsPer100g: 0, FatPer100g: 3.6},
			"beef":      {CaloriesPer100g: 250, ProteinPer100g: 26, CarbsPer100g: 0, FatPer100g: 15},
			"pork":      {CaloriesPer100g: 242, ProteinPer100g: 27, CarbsPer100g: 0, FatPer100g: 14},
			"fish":      {CaloriesPer100g: 206, ProteinPer100g: 22, CarbsPer100g: 0, FatPer100g: 12},
			"salmon":    {CaloriesPer100g: 208, ProteinPer100g: 20, CarbsPer100g: 0, FatPer100g: 13},
			"rice":      {CaloriesPer100g: 130, ProteinPer100g: 2.7, CarbsPer100g: 28, FatPer100g: 0.3},
			"pasta":     {CaloriesPer100g: 131, ProteinPer100g: 5, CarbsPer100g: 25, FatPer100g: 1.1},
			"bread":     {CaloriesPer100g: 265, ProteinPer100g: 9, CarbsPer100g: 49, FatPer100g: 3.2},
			"noodles":   {CaloriesPer100g: 138, ProteinPer100g: 4.5, CarbsPer100g: 25, FatPer100g: 2.2},
			"pizza":     {CaloriesPer100g: 280, ProteinPer100g: 12, CarbsPer100g: 35, FatPer100g: 12},
			"burger":    {CaloriesPer100g: 320, ProteinPer100g: 18, CarbsPer100g: 28, FatPer100g: 18},
			"sandwich":  {CaloriesPer100g: 250, ProteinPer100g: 12, CarbsPer100g: 30, FatPer100g: 10},
			"taco":      {CaloriesPer100g: 220, ProteinPer100g: 11, CarbsPer100g: 20, FatPer100g: 12},
			"vegetable": {CaloriesPer100g: 35, ProteinPer100g: 3, CarbsPer100g: 7, FatPer100g: 0.4},
			"salad":     {CaloriesPer100g: 20, ProteinPer100g: 1.5, CarbsPer100g: 4, FatPer100g: 0.2},
			"fruit":     {CaloriesPer100g: 60, ProteinPer100g: 0.5, CarbsPer100g: 15, FatPer100g: 0.2},
		},
	}
	if err := t.Validate(); err != nil {
		panic(err)
	}
	return t
}

// Validate checks every profile and builds the keyword index. It must be
// called before Detect on a hand-built table.
func (t *Table) Validate() error {
	t.index = make(map[string]int)
	for i, g := range t.Groups {
		if err := g.Profile.Validate(); err != nil {
			return fmt.Errorf("category %s: %w", g.Category, err)
		}
		for _, kw := range g.Keywords {
			if _, ok := t.index[kw]; !ok {
				t.index[kw] = i
			}
		}
	}
	for kw, p := range t.Refined {
		if err := p.Validate(); err != nil {
			return fmt.Errorf("refined profile %s: %w", kw, err)
		}
	}
	return nil
}

// Detect returns the first group, in table order, that has a keyword among
// tokens, together with the keyword that fired.
func (t *Table) Detect(tokens []string) (Group, string, bool) {
	best, keyword := -1, ""
	for _, tok := range tokens {
		if i, ok := t.index[tok]; ok && (best == -1 || i < best) {
			best, keyword = i, tok
		}
	}
	if best == -1 {
		return Group{}, "", false
	}
	return t.Groups[best], keyword, true
}

// Estimator is the category fallback tier.
type Estimator struct {
	table      *Table
	confidence float64
	logger     *zap.Logger
}

// DefaultConfidence reflects how coarse a category estimate is.
const DefaultConfidence = 0.4

// NewEstimator validates the table and returns the tier.
func NewEstimator(table *Table, confidence float64, logger *zap.Logger) (*Estimator, error) {
	if err := table.Validate(); err != nil {
		return nil, err
	}
	return &Estimator{table: table, confidence: confidence, logger: logger}, nil
}

func (e *Estimator) Source() nutrition.Source {
	return nutrition.SourceCategoryFallback
}

// Resolve returns the profile of the detected category. It misses only when
// no keyword is present, leaving the query to the generic fallback.
func (e *Estimator) Resolve(_ context.Context, l *nutrition.Lookup) (*nutrition.Match, error) {
	tokens := l.Tokens
	for _, c := range l.Candidates {
		tokens = append(tokens[:len(tokens):len(tokens)], c...)
	}

	group, keyword, ok := e.table.Detect(tokens)
	if !ok {
		return nil, fmt.Errorf("%w: no category keyword in %q", nutrition.ErrNoMatch, l.Key)
	}

	profile := group.Profile
	name := string(group.Category)
	if refined, ok := e.table.Refined[keyword]; ok {
		profile = refined
		name = keyword
	}
	profile.Category = group.Category

	e.logger.Debug("category detected",
		zap.String("query", l.Key),
		zap.String("category", string(group.Category)),
		zap.String("keyword", keyword))

	return &nutrition.Match{
		Name:       name + " (estimated)",
		Profile:    profile,
		Confidence: e.confidence,
		Detail:     fmt.Sprintf("keyword %q in %s", keyword, group.Category),
	}, nil
}

// Classify is Detect for callers that only need the category.
func (t *Table) Classify(tokens []string) nutrition.Category {
	g, _, ok := t.Detect(tokens)
	if !ok {
		return nutrition.CategoryUnknown
	}
	return g.Category
}
