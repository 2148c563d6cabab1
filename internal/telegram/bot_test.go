package telegram

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"calorie-app/internal/metrics"
	"calorie-app/internal/nutrition"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"go.uber.org/zap"
)

func TestParseFoodMessage(t *testing.T) {
	tests := []struct {
		name       string
		text       string
		wantLabel  string
		wantWeight float64
		wantCands  []string
		wantDebug  bool
		wantOK     bool
	}{
		{"label and grams", "big mac 220g", "big mac", 220, nil, false, true},
		{"spaced unit", "roti and dal 350 g", "roti and dal", 350, nil, false, true},
		{"comma before weight", "Caesar salad, 180 grams", "Caesar salad", 180, nil, false, true},
		{"kilograms", "rice 0.5kg", "rice", 500, nil, false, true},
		{"decimal comma", "banana 118,5 g", "banana", 118.5, nil, false, true},
		{"no weight", "apple", "apple", 0, nil, false, true},
		{"alternatives", "curry | chicken curry | dal 300g", "curry", 300, []string{"chicken curry", "dal"}, false, true},
		{"debug", "/debug whopper 270g", "whopper", 270, nil, true, true},
		{"only alternatives", "| banana", "", 0, []string{"banana"}, false, true},
		{"empty", "   ", "", 0, nil, false, false},
		{"unknown command", "/foo bar", "/foo bar", 0, nil, false, false},
		{"debug alone", "/debug", "", 0, nil, true, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req, ok := parseFoodMessage(tt.text)
			if ok != tt.wantOK {
				t.Fatalf("Expected ok=%v, got %v", tt.wantOK, ok)
			}
			if req.Query.RawLabel != tt.wantLabel {
				t.Errorf("Expected label %q, got %q", tt.wantLabel, req.Query.RawLabel)
			}
			if req.Query.EstimatedWeightGrams != tt.wantWeight {
				t.Errorf("Expected weight %f, got %f", tt.wantWeight, req.Query.EstimatedWeightGrams)
			}
			if strings.Join(req.Query.CandidateLabels, ",") != strings.Join(tt.wantCands, ",") {
				t.Errorf("Expected candidates %v, got %v", tt.wantCands, req.Query.CandidateLabels)
			}
			if req.Debug != tt.wantDebug {
				t.Errorf("Expected debug=%v, got %v", tt.wantDebug, req.Debug)
			}
		})
	}
}

func TestFormatResultMarkdown(t *testing.T) {
	r := nutrition.Result{
		MatchedName: "roti_dal",
		Source:      nutrition.SourceLocalDB,
		Confidence:  1,
		WeightGrams: 350,
		Totals:      nutrition.Totals{Calories: 431.9, Protein: 14, Carbs: 70, Fat: 10.5},
	}

	output := formatResultMarkdown("roti and dal", r)

	for _, want := range []string{
		"🍽 roti and dal\n",
		`roti\_dal`,
		"🔥 *432 kcal* for 350 g",
		"• Protein: 14.0 g",
		"• Fat: 10.5 g",
		"curated table (confidence 100%)",
	} {
		if !strings.Contains(output, want) {
			t.Errorf("Missing %q in:\n%s", want, output)
		}
	}
	if strings.Contains(output, "Rough estimate") {
		t.Error("Did not expect a warning for a confident result")
	}

	generic := formatResultMarkdown("xyzfood123", nutrition.Result{
		MatchedName: "food (generic estimate)",
		Source:      nutrition.SourceGenericFallback,
		Confidence:  0.2,
		WeightGrams: 100,
		Totals:      nutrition.Totals{Calories: 150, Protein: 5, Carbs: 20, Fat: 5},
	})
	if !strings.Contains(generic, "generic estimate (confidence 20%)") || !strings.Contains(generic, "Rough estimate") {
		t.Errorf("Unexpected generic output:\n%s", generic)
	}
}

func TestFormatResultMarkdownEscapesUserText(t *testing.T) {
	output := formatResultMarkdown("pad_thai *extra* [spicy]", nutrition.Result{
		MatchedName: "pad_thai",
		Source:      nutrition.SourceLocalDB,
		Confidence:  0.9,
		WeightGrams: 300,
	})

	if !strings.Contains(output, `🍽 pad\_thai \*extra\* \[spicy]`) {
		t.Errorf("Expected the label escaped outside any entity, got:\n%s", output)
	}
	if !strings.Contains(output, `_matched:_ pad\_thai`) {
		t.Errorf("Expected the matched name escaped, got:\n%s", output)
	}
}

// telegramServer answers getMe and records sendMessage calls, rejecting
// Markdown ones the way Telegram rejects unbalanced entities.
type telegramServer struct {
	mu         sync.Mutex
	parseModes []string
	texts      []string
}

func (s *telegramServer) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	switch {
	case strings.HasSuffix(r.URL.Path, "/getMe"):
		w.Write([]byte(`{"ok":true,"result":{"id":1,"is_bot":true,"first_name":"bot","username":"calorie_bot"}}`))
	case strings.HasSuffix(r.URL.Path, "/sendMessage"):
		r.ParseForm()
		s.mu.Lock()
		s.parseModes = append(s.parseModes, r.FormValue("parse_mode"))
		s.texts = append(s.texts, r.FormValue("text"))
		s.mu.Unlock()
		if r.FormValue("parse_mode") != "" {
			w.Write([]byte(`{"ok":false,"error_code":400,"description":"Bad Request: can't parse entities"}`))
			return
		}
		w.Write([]byte(`{"ok":true,"result":{"message_id":1,"date":0,"chat":{"id":7,"type":"private"}}}`))
	default:
		http.NotFound(w, r)
	}
}

func TestSendFallsBackToPlainText(t *testing.T) {
	srv := &telegramServer{}
	ts := httptest.NewServer(srv)
	defer ts.Close()

	api, err := tgbotapi.NewBotAPIWithClient("token", ts.URL+"/bot%s/%s", ts.Client())
	if err != nil {
		t.Fatalf("Failed to create api: %v", err)
	}
	b := &Bot{api: api, logger: zap.NewNop()}

	b.send(7, "🍽 *unbalanced")

	srv.mu.Lock()
	defer srv.mu.Unlock()
	if len(srv.parseModes) != 2 {
		t.Fatalf("Expected a Markdown attempt and a plain retry, got %d sends", len(srv.parseModes))
	}
	if srv.parseModes[0] != tgbotapi.ModeMarkdown || srv.parseModes[1] != "" {
		t.Errorf("Unexpected parse modes %q", srv.parseModes)
	}
	if srv.texts[1] != "🍽 *unbalanced" {
		t.Errorf("Expected the same text to be resent, got %q", srv.texts[1])
	}
}

func TestFormatStatsMarkdown(t *testing.T) {
	usage := []metrics.DailyUsage{{Date: "2026-10-17", Resolutions: 12, Fallbacks: 3, AvgConfidence: 0.71}}
	tiers := []metrics.TierStat{{Tier: nutrition.SourceLocalDB, Attempts: 12, Hits: 8, Errors: 0, AvgElapsedMS: 0.4}}
	health := metrics.Health{TableEntries: 48, CachedEstimates: 3, StoredTraces: 120, HeapMB: 5, Goroutines: 7, DatabaseSize: "1.2 MB"}

	output := formatStatsMarkdown(usage, tiers, health)

	for _, want := range []string{
		"*2026-10-17*: 12 lookups, 3 fallbacks, avg confidence 71%",
		`LOCAL\_DB: 8/12 hits, 0 errors`,
		"• Curated foods: 48",
		"• Cached web estimates: 3",
		"• Stored lookups: 120 (1.2 MB)",
		"• Heap: 5MB, goroutines: 7",
	} {
		if !strings.Contains(output, want) {
			t.Errorf("Missing %q in:\n%s", want, output)
		}
	}

	if empty := formatStatsMarkdown(nil, nil, health); !strings.Contains(empty, "_No data yet_") {
		t.Error("Expected the empty placeholder")
	}
}

func TestIsAllowed(t *testing.T) {
	allowed := []int64{42, 7}
	if !isAllowed(allowed, 7) {
		t.Error("Expected 7 to be allowed")
	}
	if isAllowed(allowed, 8) || isAllowed(nil, 42) {
		t.Error("Expected unknown ids to be rejected")
	}
}
