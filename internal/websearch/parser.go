package websearch

import (
	"encoding/json"
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"calorie-app/internal/nutrition"
)

const maxServingCalories = 3000

// Facts is what the parser could read about one serving.
type Facts struct {
	Calories     float64
	Protein      float64
	Carbs        float64
	Fat          float64
	ServingGrams float64

	HasProtein bool
	HasCarbs   bool
	HasFat     bool
}

// Complete reports whether all three macros were found.
func (f Facts) Complete() bool {
	return f.HasProtein && f.HasCarbs && f.HasFat
}

const num = `(\d+(?:\.\d+)?)`

var (
	thousands = regexp.MustCompile(`(\d),(\d{3})`)

	caloriePatterns = []*regexp.Regexp{
		regexp.MustCompile(num + `\s*(?:kcal|calories|cals?)\b`),
		regexp.MustCompile(`(?:calories|energy)\s*[:=\-]?\s*` + num),
	}
	proteinPatterns = []*regexp.Regexp{
		regexp.MustCompile(num + `\s*g(?:rams?)?\s+(?:of\s+)?protein`),
		regexp.MustCompile(`protein\s*[:=\-]?\s*` + num + `\s*g`),
	}
	carbPatterns = []*regexp.Regexp{
		regexp.MustCompile(num + `\s*g(?:rams?)?\s+(?:of\s+)?(?:total\s+)?carb(?:s|ohydrates?)?`),
		regexp.MustCompile(`(?:total\s+)?carb(?:s|ohydrates?)?\s*[:=\-]?\s*` + num + `\s*g`),
	}
	fatPatterns = []*regexp.Regexp{
		regexp.MustCompile(num + `\s*g(?:rams?)?\s+(?:of\s+)?(?:total\s+)?fat`),
		regexp.MustCompile(`(?:total\s+)?fat\s*[:=\-]?\s*` + num + `\s*g`),
	}
	servingPatterns = []*regexp.Regexp{
		regexp.MustCompile(`\(\s*` + num + `\s*g(?:rams?)?\s*\)`),
		regexp.MustCompile(`serving(?:\s+size)?\s*[:=\-]?\s*` + num + `\s*g`),
	}
)

type jsonFacts struct {
	Calories     *float64 `json:"calories"`
	Protein      *float64 `json:"protein"`
	Carbs        *float64 `json:"carbs"`
	Fat          *float64 `json:"fat"`
	ServingGrams *float64 `json:"serving_grams"`
}

// Parse reads a calorie figure and any macros from text. A JSON object with
// calories/protein/carbs/fat/serving_grams is used when present, otherwise the
// text is scanned for numbers next to "calories", "protein" and so on.
func Parse(text string) (Facts, error) {
	if f, ok := parseJSON(text); ok {
		return f, validate(f)
	}

	lower := thousands.ReplaceAllString(strings.ToLower(text), "$1$2")

	var f Facts
	var ok bool
	if f.Calories, ok = firstNumber(lower, caloriePatterns); !ok {
		return Facts{}, fmt.Errorf("%w: no calorie figure in text", nutrition.ErrParse)
	}
	f.Protein, f.HasProtein = firstNumber(lower, proteinPatterns)
	f.Carbs, f.HasCarbs = firstNumber(lower, carbPatterns)
	f.Fat, f.HasFat = firstNumber(lower, fatPatterns)
	f.ServingGrams, _ = firstNumber(lower, servingPatterns)
	return f, validate(f)
}

func parseJSON(text string) (Facts, bool) {
	start := strings.Index(text, "{")
	end := strings.LastIndex(text, "}")
	if start == -1 || end <= start {
		return Facts{}, false
	}

	var jf jsonFacts
	if err := json.Unmarshal([]byte(text[start:end+1]), &jf); err != nil || jf.Calories == nil {
		return Facts{}, false
	}

	f := Facts{Calories: *jf.Calories}
	if jf.Protein != nil {
		f.Protein, f.HasProtein = *jf.Protein, true
	}
	if jf.Carbs != nil {
		f.Carbs, f.HasCarbs = *jf.Carbs, true
	}
	if jf.Fat != nil {
		f.Fat, f.HasFat = *jf.Fat, true
	}
	if jf.ServingGrams != nil {
		f.ServingGrams = *jf.ServingGrams
	}
	return f, true
}

func firstNumber(text string, patterns []*regexp.Regexp) (float64, bool) {
	for _, re := range patterns {
		m := re.FindStringSubmatch(text)
		if m == nil {
			continue
		}
		v, err := strconv.ParseFloat(m[1], 64)
		if err == nil {
			return v, true
		}
	}
	return 0, false
}

func validate(f Facts) error {
	if f.Calories <= 0 || f.Calories > maxServingCalories {
		return fmt.Errorf("%w: implausible calorie figure %.0f", nutrition.ErrParse, f.Calories)
	}
	if f.Protein < 0 || f.Carbs < 0 || f.Fat < 0 || f.ServingGrams < 0 {
		return fmt.Errorf("%w: negative value", nutrition.ErrParse)
	}
	return nil
}
