// Package websearch estimates nutrition for branded, restaurant and packaged
// foods from search results, with a short-lived cache in front.
package websearch

import (
	"regexp"
	"strings"

	"calorie-app/internal/normalize"
)

var (
	defaultChains = []string{
		"mcdonalds", "mcdonald", "burger king", "kfc", "taco bell", "subway",
		"pizza hut", "dominos", "starbucks", "dunkin", "wendys", "wendy",
		"chipotle", "five guys", "in-n-out", "jack in the box", "carls jr",
		"carl jr", "hardees", "arbys", "dairy queen", "sonic", "papa johns",
		"little caesars", "popeyes", "chick-fil-a", "panera", "shake shack",
	}
	defaultSignatureItems = []string{
		"big mac", "whopper", "quarter pounder", "mcchicken", "mcnuggets",
		"mcflurry", "baconator", "son of baconator", "frappuccino", "crunchwrap",
		"blizzard", "zinger",
	}
	defaultPackaged = []string{
		"olive garden", "red lobster", "applebees", "oreo", "doritos", "lays",
		"pringles", "pepsi", "coca cola", "coke", "snickers", "kit kat",
		"reeses", "hershey", "hersheys", "twix", "cheerios", "ben jerry",
		"ben jerrys", "haagen dazs", "lean cuisine", "red bull", "cheetos",
		"nutella", "kind bar", "clif bar", "quest bar",
	}
	defaultIndicators = []string{
		"brand", "branded", "restaurant", "chain", "frozen meal", "packaged",
		"fast food", "drive thru",
	}

	// "Ben & Jerry's", "M&M's", trademark marks.
	brandPattern = regexp.MustCompile(`(?i)\b[a-z]+\s*&\s*[a-z]+['’]s\b|[®™]`)
)

// Detector flags queries that name a brand, chain or packaged product.
type Detector struct {
	phrases map[string][]string
}

// NewDetector builds a detector from the built-in lists plus extra phrases.
func NewDetector(extra ...string) *Detector {
	d := &Detector{phrases: make(map[string][]string)}
	d.add("chain", defaultChains)
	d.add("item", defaultSignatureItems)
	d.add("packaged", defaultPackaged)
	d.add("indicator", defaultIndicators)
	d.add("custom", extra)
	return d
}

func (d *Detector) add(kind string, phrases []string) {
	for _, p := range phrases {
		if k := normalize.Label(p); k != "" {
			d.phrases[kind] = append(d.phrases[kind], k)
		}
	}
}

// Detect reports whether the food looks branded. raw is the label as
// received, key its normalized form. The reason names what fired.
func (d *Detector) Detect(raw, key string) (string, bool) {
	for _, kind := range []string{"chain", "item", "packaged", "indicator", "custom"} {
		for _, p := range d.phrases[kind] {
			if normalize.ContainsPhrase(key, p) {
				return kind + ":" + p, true
			}
		}
	}
	if m := brandPattern.FindString(raw); m != "" {
		return "pattern:" + strings.TrimSpace(m), true
	}
	return "", false
}
