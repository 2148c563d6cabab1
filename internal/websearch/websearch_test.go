package websearch

import (
	"context"
	"errors"
	"fmt"
	"math"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"calorie-app/internal/llm"
	"calorie-app/internal/normalize"
	"calorie-app/internal/nutrition"

	"go.uber.org/zap"
)

// --- Mocks ---

type mockProvider struct {
	text  string
	err   error
	delay time.Duration
	calls int32
}

func (m *mockProvider) Search(ctx context.Context, query string) (string, error) {
	atomic.AddInt32(&m.calls, 1)
	if m.delay > 0 {
		select {
		case <-time.After(m.delay):
		case <-ctx.Done():
			return "", ctx.Err()
		}
	}
	return m.text, m.err
}

type mockTextGenerator struct {
	response string
	prompt   string
}

func (m *mockTextGenerator) GenerateContent(ctx context.Context, prompt string) (llm.ContentResponse, error) {
	m.prompt = prompt
	return llm.ContentResponse{Content: m.response, Usage: llm.TokenUsage{Model: "mock"}}, nil
}

func lookup(raw string) *nutrition.Lookup {
	tokens := normalize.Tokens(raw)
	return &nutrition.Lookup{Label: raw, Tokens: tokens, Key: normalize.Key(tokens), Branded: true}
}

const bigMacText = "McDonald's Big Mac (219 g) has 577 calories, 25g protein, 46g carbs and 31g fat."

// --- Tests ---

func TestDetector(t *testing.T) {
	d := NewDetector("trader joes")

	tests := []struct {
		raw  string
		want bool
	}{
		{"Big Mac", true},
		{"McDonald's fries", true},
		{"In-N-Out double double", true},
		{"Ben & Jerry's Cherry Garcia", true},
		{"Doritos nacho cheese", true},
		{"frozen meal lasagna", true},
		{"Trader Joe's orange chicken", true},
		{"apple", false},
		{"grilled chicken with rice", false},
		{"xyzfood123", false},
	}

	for _, tt := range tests {
		t.Run(tt.raw, func(t *testing.T) {
			reason, got := d.Detect(tt.raw, normalize.Label(tt.raw))
			if got != tt.want {
				t.Errorf("Detect(%q) = %v (%s), want %v", tt.raw, got, reason, tt.want)
			}
		})
	}
}

func TestParse(t *testing.T) {
	t.Run("Text", func(t *testing.T) {
		f, err := Parse(bigMacText)
		if err != nil {
			t.Fatalf("Expected no error, got %v", err)
		}
		if f.Calories != 577 || f.Protein != 25 || f.Carbs != 46 || f.Fat != 31 || f.ServingGrams != 219 {
			t.Errorf("Unexpected facts: %+v", f)
		}
		if !f.Complete() {
			t.Error("Expected complete facts")
		}
	})

	t.Run("Labels", func(t *testing.T) {
		f, err := Parse("Nutrition Facts. Serving size: 275 g. Calories: 1,010. Total Fat 66g. Total Carbohydrate 40g. Protein 57g")
		if err != nil {
			t.Fatalf("Expected no error, got %v", err)
		}
		if f.Calories != 1010 || f.Fat != 66 || f.Carbs != 40 || f.Protein != 57 || f.ServingGrams != 275 {
			t.Errorf("Unexpected facts: %+v", f)
		}
	})

	t.Run("CaloriesOnly", func(t *testing.T) {
		f, err := Parse("A Whopper is about 660 kcal.")
		if err != nil {
			t.Fatalf("Expected no error, got %v", err)
		}
		if f.Calories != 660 || f.Complete() || f.HasProtein {
			t.Errorf("Unexpected facts: %+v", f)
		}
	})

	t.Run("JSON", func(t *testing.T) {
		f, err := Parse("```json\n{\"calories\": 540, \"protein\": 25, \"carbs\": 45, \"fat\": 28, \"serving_grams\": 215}\n```")
		if err != nil {
			t.Fatalf("Expected no error, got %v", err)
		}
		if f.Calories != 540 || f.ServingGrams != 215 || !f.Complete() {
			t.Errorf("Unexpected facts: %+v", f)
		}
	})

	t.Run("Failures", func(t *testing.T) {
		for _, text := range []string{"", "no numbers here", "99999 calories", `{"calories": -5}`} {
			if _, err := Parse(text); !errors.Is(err, nutrition.ErrParse) {
				t.Errorf("Parse(%q): expected ErrParse, got %v", text, err)
			}
		}
	})
}

func TestCacheExpiresOnRead(t *testing.T) {
	c := NewCache(15*time.Minute, 10)
	now := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	c.now = func() time.Time { return now }

	c.Put(CacheEntry{QueryKey: "big mac", Result: nutrition.Profile{CaloriesPer100g: 263}})

	now = now.Add(14 * time.Minute)
	if _, ok := c.Get("big mac"); !ok {
		t.Fatal("Expected entry within TTL")
	}

	now = now.Add(time.Minute)
	if _, ok := c.Get("big mac"); ok {
		t.Fatal("Expected entry to expire at 15 minutes")
	}
	if c.Len() != 0 {
		t.Errorf("Expected expired entry to be removed on read, %d left", c.Len())
	}
}

func TestCacheBounded(t *testing.T) {
	c := NewCache(time.Minute, 2)
	now := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	c.now = func() time.Time { return now }

	c.Put(CacheEntry{QueryKey: "a"})
	now = now.Add(time.Second)
	c.Put(CacheEntry{QueryKey: "b"})
	now = now.Add(time.Second)
	c.Put(CacheEntry{QueryKey: "c"})

	if c.Len() != 2 {
		t.Fatalf("Expected 2 entries, got %d", c.Len())
	}
	if _, ok := c.Get("a"); ok {
		t.Error("Expected the oldest entry to be evicted")
	}
}

func TestCacheConcurrentAccess(t *testing.T) {
	c := NewCache(time.Minute, 50)
	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				key := fmt.Sprintf("food-%d", (i+j)%60)
				c.Put(CacheEntry{QueryKey: key})
				c.Get(key)
			}
		}(i)
	}
	wg.Wait()

	if c.Len() > 50 {
		t.Errorf("Cache grew past its bound: %d", c.Len())
	}
}

func TestEstimatorBigMac(t *testing.T) {
	p := &mockProvider{text: bigMacText}
	est := NewEstimator(p, NewCache(DefaultCacheTTL, 0), time.Second, zap.NewNop())

	m, err := est.Resolve(context.Background(), lookup("big mac"))
	if err != nil {
		t.Fatalf("Expected an estimate, got %v", err)
	}

	total := nutrition.Scale(m.Profile, 219).Calories
	if math.Abs(total-577) > 577*0.05 {
		t.Errorf("Expected about 577 kcal for 219 g, got %f", total)
	}
	if m.Confidence != FullConfidence {
		t.Errorf("Expected confidence %f, got %f", FullConfidence, m.Confidence)
	}
}

func TestEstimatorCachesWithinTTL(t *testing.T) {
	p := &mockProvider{text: bigMacText}
	est := NewEstimator(p, NewCache(DefaultCacheTTL, 0), time.Second, zap.NewNop())

	first, err := est.Resolve(context.Background(), lookup("Big Mac"))
	if err != nil {
		t.Fatalf("First resolve failed: %v", err)
	}
	second, err := est.Resolve(context.Background(), lookup("big mac!"))
	if err != nil {
		t.Fatalf("Second resolve failed: %v", err)
	}

	if first.Profile != second.Profile {
		t.Errorf("Expected identical profiles, got %+v and %+v", first.Profile, second.Profile)
	}
	if calls := atomic.LoadInt32(&p.calls); calls != 1 {
		t.Errorf("Expected 1 provider call, got %d", calls)
	}
	if second.Detail != "cache hit" {
		t.Errorf("Expected the second call to be a cache hit, got %q", second.Detail)
	}
}

func TestEstimatorConcurrentMissesShareOneCall(t *testing.T) {
	p := &mockProvider{text: bigMacText, delay: 50 * time.Millisecond}
	est := NewEstimator(p, NewCache(DefaultCacheTTL, 0), time.Second, zap.NewNop())

	var wg sync.WaitGroup
	errs := make(chan error, 10)
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := est.Resolve(context.Background(), lookup("whopper")); err != nil {
				errs <- err
			}
		}()
	}
	wg.Wait()
	close(errs)

	for err := range errs {
		t.Errorf("Unexpected error: %v", err)
	}
	if calls := atomic.LoadInt32(&p.calls); calls != 1 {
		t.Errorf("Expected concurrent misses to share 1 call, got %d", calls)
	}
}

func TestEstimatorCaloriesOnly(t *testing.T) {
	p := &mockProvider{text: "One serving of Doritos has 150 calories"}
	est := NewEstimator(p, NewCache(DefaultCacheTTL, 0), time.Second, zap.NewNop())

	m, err := est.Resolve(context.Background(), lookup("doritos"))
	if err != nil {
		t.Fatalf("Expected an estimate, got %v", err)
	}
	if m.Confidence != PartialConfidence {
		t.Errorf("Expected reduced confidence %f, got %f", PartialConfidence, m.Confidence)
	}
	if m.Profile.CaloriesPer100g != 150 {
		t.Errorf("Expected 150 kcal per 100 g with the default serving, got %f", m.Profile.CaloriesPer100g)
	}
	if m.TypicalWeightGrams != DefaultServingGrams {
		t.Errorf("Expected the default serving as typical weight, got %f", m.TypicalWeightGrams)
	}
	if m.Profile.ProteinPer100g <= 0 || m.Profile.FatPer100g <= 0 {
		t.Errorf("Expected estimated macros, got %+v", m.Profile)
	}
}

func TestEstimatorServingWeight(t *testing.T) {
	tests := []struct {
		name       string
		text       string
		label      string
		weights    map[string]float64
		wantWeight float64
		wantKcal   float64
	}{
		{"parsed serving", bigMacText, "big mac", nil, 219, 577},
		{"calories only, known item", "A McDonald's Big Mac has 577 calories.", "mcdonalds big mac", nil, 219, 577},
		{"registered weight", "One Zesty Wrap has 540 calories.", "zesty wrap", map[string]float64{"Zesty Wrap": 300}, 300, 540},
		{"parsed beats registered", "A Zesty Wrap (250 g) has 540 calories.", "zesty wrap", map[string]float64{"zesty wrap": 300}, 250, 540},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			est := NewEstimator(&mockProvider{text: tt.text}, NewCache(DefaultCacheTTL, 0), time.Second, zap.NewNop())
			est.AddServingWeights(tt.weights)

			m, err := est.Resolve(context.Background(), lookup(tt.label))
			if err != nil {
				t.Fatalf("Expected an estimate, got %v", err)
			}
			if m.TypicalWeightGrams != tt.wantWeight {
				t.Errorf("Expected typical weight %f, got %f", tt.wantWeight, m.TypicalWeightGrams)
			}
			if got := nutrition.Scale(m.Profile, m.TypicalWeightGrams).Calories; math.Abs(got-tt.wantKcal) > 0.5 {
				t.Errorf("Expected one serving to be %f kcal, got %f", tt.wantKcal, got)
			}
		})
	}
}

func TestEstimatorFailuresAreNotCached(t *testing.T) {
	tests := []struct {
		name    string
		p       *mockProvider
		timeout time.Duration
		wantErr error
	}{
		{"ProviderError", &mockProvider{err: errors.New("503")}, time.Second, nil},
		{"Empty", &mockProvider{text: "   "}, time.Second, nutrition.ErrEmptyResult},
		{"Unparseable", &mockProvider{text: "Big Mac is tasty"}, time.Second, nutrition.ErrParse},
		{"Timeout", &mockProvider{text: bigMacText, delay: time.Second}, 20 * time.Millisecond, context.DeadlineExceeded},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cache := NewCache(DefaultCacheTTL, 0)
			est := NewEstimator(tt.p, cache, tt.timeout, zap.NewNop())

			_, err := est.Resolve(context.Background(), lookup("big mac"))
			if err == nil {
				t.Fatal("Expected an error")
			}
			if tt.wantErr != nil && !errors.Is(err, tt.wantErr) {
				t.Errorf("Expected %v, got %v", tt.wantErr, err)
			}
			if cache.Len() != 0 {
				t.Error("Expected failures not to be cached")
			}
		})
	}
}

func TestHTMLProvider(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !strings.Contains(r.URL.Query().Get("q"), "big mac") {
			t.Errorf("Expected query to contain 'big mac', got %q", r.URL.Query().Get("q"))
		}
		fmt.Fprint(w, `
		<html>
			<head><script>var calories = 9999;</script></head>
			<body>
				<div class="ads">Order now: 2000 calories of fun</div>
				<div class="result"><a class="result__snippet">`+bigMacText+`</a></div>
				<footer>Copyright</footer>
			</body>
		</html>`)
	}))
	defer ts.Close()

	p := NewHTMLProvider(ts.URL+"/html/", time.Second)
	text, err := p.Search(context.Background(), "big mac nutrition")
	if err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}
	if strings.Contains(text, "9999") || strings.Contains(text, "2000") {
		t.Error("Failed to remove script or ads")
	}
	if !strings.Contains(text, "577 calories") {
		t.Errorf("Expected snippet text, got %q", text)
	}
}

func TestHTMLProviderFallsBackToBody(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `<html><body><p>Whopper: 660 calories</p><nav>menu</nav></body></html>`)
	}))
	defer ts.Close()

	text, err := NewHTMLProvider(ts.URL, time.Second).Search(context.Background(), "whopper")
	if err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}
	if text != "Whopper: 660 calories" {
		t.Errorf("Unexpected text %q", text)
	}
}

func TestHTMLProviderStatusError(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer ts.Close()

	if _, err := NewHTMLProvider(ts.URL, time.Second).Search(context.Background(), "x"); err == nil {
		t.Error("Expected an error for a 503 response")
	}
}

func TestLLMProvider(t *testing.T) {
	gen := &mockTextGenerator{response: `{"calories": 577, "protein": 25, "carbs": 46, "fat": 31, "serving_grams": 219}`}
	est := NewEstimator(NewLLMProvider(gen, zap.NewNop()), NewCache(DefaultCacheTTL, 0), time.Second, zap.NewNop())

	m, err := est.Resolve(context.Background(), lookup("big mac"))
	if err != nil {
		t.Fatalf("Expected an estimate, got %v", err)
	}
	if !strings.Contains(gen.prompt, "big mac") {
		t.Error("Expected the prompt to name the food")
	}
	if math.Abs(m.Profile.CaloriesPer100g-263.47) > 0.01 {
		t.Errorf("Expected about 263.47 kcal per 100 g, got %f", m.Profile.CaloriesPer100g)
	}
}
