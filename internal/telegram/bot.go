package telegram

import (
	"context"
	"fmt"
	"net/http"
	"regexp"
	"strconv"
	"strings"
	"time"

	"calorie-app/internal/config"
	"calorie-app/internal/metrics"
	"calorie-app/internal/nutrition"
	"calorie-app/internal/resolver"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"go.uber.org/zap"
)

// Resolver turns a food query into a result and its trace, and reports its
// state for /stats.
type Resolver interface {
	Resolve(ctx context.Context, q nutrition.FoodQuery) (nutrition.Result, *resolver.Trace)
	metrics.PipelineState
}

// Bot wraps the Telegram API and the resolution pipeline.
type Bot struct {
	api          *tgbotapi.BotAPI
	resolver     Resolver
	metricsStore *metrics.Store
	cfg          *config.Config
	logger       *zap.Logger
}

// NewBot initializes the Telegram Bot and sets the Webhook.
func NewBot(cfg *config.Config, res Resolver, metricsStore *metrics.Store, logger *zap.Logger) (*Bot, error) {
	bot, err := tgbotapi.NewBotAPI(cfg.TelegramBotToken)
	if err != nil {
		return nil, fmt.Errorf("failed to init telegram api: %w", err)
	}

	logger.Info("authorized on telegram", zap.String("account", bot.Self.UserName))

	wh, err := tgbotapi.NewWebhook(cfg.TelegramWebhookURL)
	if err != nil {
		return nil, fmt.Errorf("invalid webhook url %s: %w", cfg.TelegramWebhookURL, err)
	}
	resp, err := bot.Request(wh)
	if err != nil {
		return nil, fmt.Errorf("failed to set webhook to %s: %w", cfg.TelegramWebhookURL, err)
	}
	logger.Info("webhook set", zap.String("response", resp.Description))

	return &Bot{
		api:          bot,
		resolver:     res,
		metricsStore: metricsStore,
		cfg:          cfg,
		logger:       logger,
	}, nil
}

// RegisterHandlers registers the webhook and health handlers on mux.
func (b *Bot) RegisterHandlers(mux *http.ServeMux) {
	mux.HandleFunc("/webhook", b.handleWebhook)
	mux.HandleFunc("/health", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("OK"))
	})
}

func (b *Bot) handleWebhook(w http.ResponseWriter, r *http.Request) {
	update, err := b.api.HandleUpdate(r)
	if err != nil {
		b.logger.Warn("error parsing update", zap.Error(err))
		return
	}

	if update.Message == nil || update.Message.From == nil {
		return
	}

	if !isAllowed(b.cfg.TelegramAllowedUserIDs, update.Message.From.ID) {
		b.logger.Warn("unauthorized access attempt",
			zap.Int64("user_id", update.Message.From.ID),
			zap.String("username", update.Message.From.UserName))
		return
	}

	go b.processMessage(update.Message)
}

func isAllowed(allowed []int64, id int64) bool {
	for _, a := range allowed {
		if a == id {
			return true
		}
	}
	return false
}

func (b *Bot) processMessage(msg *tgbotapi.Message) {
	text := strings.TrimSpace(msg.Text)
	switch {
	case text == "/start" || text == "/help":
		b.send(msg.Chat.ID, helpText)
	case strings.HasPrefix(text, "/stats"):
		b.handleStatsCommand(msg.Chat.ID)
	default:
		b.handleFoodRequest(msg.Chat.ID, text)
	}
}

const helpText = "🍽 *Calorie lookup*\n\n" +
	"Send a food and an optional weight, e.g. `big mac 220g` or `roti and dal 350 g`.\n" +
	"Add alternatives after `|`, e.g. `curry | chicken curry`.\n" +
	"Start with `/debug` to see which tiers were tried.\n" +
	"`/stats` shows the last 7 days."

func (b *Bot) handleFoodRequest(chatID int64, text string) {
	req, ok := parseFoodMessage(text)
	if !ok {
		b.send(chatID, helpText)
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	result, trace := b.resolver.Resolve(ctx, req.Query)

	if b.metricsStore != nil {
		if err := b.metricsStore.RecordTrace(ctx, trace, result); err != nil {
			b.logger.Warn("failed to record trace", zap.String("trace_id", trace.ID), zap.Error(err))
		}
	}

	reply := formatResultMarkdown(req.Query.RawLabel, result)
	if req.Debug {
		reply += "\n\n🔎 *Trace*\n```\n" + strings.ReplaceAll(trace.Summary(), "`", "'") + "```"
	}
	b.send(chatID, reply)
}

func (b *Bot) handleStatsCommand(chatID int64) {
	if b.metricsStore == nil {
		b.send(chatID, "❌ History is not enabled.")
		return
	}

	ctx := context.Background()
	usage, err := b.metricsStore.GetDailyUsage(ctx, 7)
	if err != nil {
		b.logger.Error("failed to fetch daily usage", zap.Error(err))
		b.send(chatID, "❌ Error fetching metrics.")
		return
	}
	tiers, err := b.metricsStore.TierStats(ctx, 7)
	if err != nil {
		b.logger.Error("failed to fetch tier stats", zap.Error(err))
		b.send(chatID, "❌ Error fetching metrics.")
		return
	}

	health, err := b.metricsStore.Health(ctx, b.cfg.DatabasePath, b.resolver)
	if err != nil {
		b.logger.Error("failed to collect health", zap.Error(err))
		b.send(chatID, "❌ Error fetching metrics.")
		return
	}

	b.send(chatID, formatStatsMarkdown(usage, tiers, health))
}

// send replies in Markdown. When Telegram rejects the entities the same text
// goes out again without formatting so the user still gets an answer.
func (b *Bot) send(chatID int64, text string) {
	msg := tgbotapi.NewMessage(chatID, text)
	msg.ParseMode = tgbotapi.ModeMarkdown
	_, err := b.api.Send(msg)
	if err == nil {
		return
	}
	b.logger.Warn("markdown reply rejected, resending as plain text", zap.Int64("chat_id", chatID), zap.Error(err))

	msg.ParseMode = ""
	if _, err := b.api.Send(msg); err != nil {
		b.logger.Error("failed to send reply", zap.Int64("chat_id", chatID), zap.Error(err))
	}
}

// foodRequest is one parsed chat message.
type foodRequest struct {
	Query nutrition.FoodQuery
	Debug bool
}

var weightPattern = regexp.MustCompile(`(?i)[,\s]*(\d+(?:[.,]\d+)?)\s*(kg|g|grams?|gr)\s*$`)

// parseFoodMessage reads "label [| alternative ...] [weight]". A leading
// /debug asks for the trace.
func parseFoodMessage(text string) (foodRequest, bool) {
	var req foodRequest
	text = strings.TrimSpace(text)
	if rest, ok := strings.CutPrefix(text, "/debug"); ok {
		req.Debug = true
		text = strings.TrimSpace(rest)
	}

	if m := weightPattern.FindStringSubmatch(text); m != nil {
		w, err := strconv.ParseFloat(strings.Replace(m[1], ",", ".", 1), 64)
		if err == nil && w > 0 {
			if strings.EqualFold(m[2], "kg") {
				w *= 1000
			}
			req.Query.EstimatedWeightGrams = w
			text = strings.TrimSpace(text[:len(text)-len(m[0])])
		}
	}

	parts := strings.Split(text, "|")
	req.Query.RawLabel = strings.TrimSpace(parts[0])
	for _, p := range parts[1:] {
		if p = strings.TrimSpace(p); p != "" {
			req.Query.CandidateLabels = append(req.Query.CandidateLabels, p)
		}
	}

	if req.Query.RawLabel == "" && len(req.Query.CandidateLabels) == 0 {
		return req, false
	}
	return req, !strings.HasPrefix(req.Query.RawLabel, "/")
}

var sourceLabels = map[nutrition.Source]string{
	nutrition.SourceLocalDB:          "curated table",
	nutrition.SourceVerifiedAPI:      "USDA FoodData Central",
	nutrition.SourceWebSearch:        "web search estimate",
	nutrition.SourceCategoryFallback: "category estimate",
	nutrition.SourceGenericFallback:  "generic estimate",
}

func formatResultMarkdown(label string, r nutrition.Result) string {
	var sb strings.Builder
	sb.WriteString("🍽 " + escapeMarkdown(label) + "\n")
	if r.MatchedName != "" && !strings.EqualFold(r.MatchedName, label) {
		sb.WriteString(fmt.Sprintf("_matched:_ %s\n", escapeMarkdown(r.MatchedName)))
	}
	sb.WriteString("\n")

	sb.WriteString(fmt.Sprintf("🔥 *%.0f kcal* for %.0f g\n", r.Calories, r.WeightGrams))
	sb.WriteString(fmt.Sprintf("• Protein: %.1f g\n", r.Protein))
	sb.WriteString(fmt.Sprintf("• Carbs: %.1f g\n", r.Carbs))
	sb.WriteString(fmt.Sprintf("• Fat: %.1f g\n", r.Fat))

	if r.Calories > 0 {
		bd := r.Totals.MacroBreakdown()
		sb.WriteString(fmt.Sprintf("📊 %.0f%% protein / %.0f%% carbs / %.0f%% fat\n", bd.ProteinPercent, bd.CarbsPercent, bd.FatPercent))
	}

	source := sourceLabels[r.Source]
	if source == "" {
		source = string(r.Source)
	}
	sb.WriteString(fmt.Sprintf("\n_Source:_ %s (confidence %.0f%%)", source, r.Confidence*100))
	if r.Confidence < 0.5 {
		sb.WriteString("\n⚠️ Rough estimate, try a more specific name.")
	}
	return sb.String()
}

func formatStatsMarkdown(usage []metrics.DailyUsage, tiers []metrics.TierStat, health metrics.Health) string {
	var sb strings.Builder
	sb.WriteString("📊 *Usage & Health Report*\n\n")

	sb.WriteString("🗓 *Recent Lookups*\n")
	if len(usage) == 0 {
		sb.WriteString("_No data yet_\n")
	}
	for _, d := range usage {
		sb.WriteString(fmt.Sprintf("• *%s*: %d lookups, %d fallbacks, avg confidence %.0f%%\n",
			d.Date, d.Resolutions, d.Fallbacks, d.AvgConfidence*100))
	}

	if len(tiers) > 0 {
		sb.WriteString("\n🪜 *Tiers*\n")
		for _, t := range tiers {
			sb.WriteString(fmt.Sprintf("• %s: %d/%d hits, %d errors, %.0f ms avg\n",
				escapeMarkdown(string(t.Tier)), t.Hits, t.Attempts, t.Errors, t.AvgElapsedMS))
		}
	}

	sb.WriteString("\n🧠 *Resolver*\n")
	sb.WriteString(fmt.Sprintf("• Curated foods: %d\n", health.TableEntries))
	sb.WriteString(fmt.Sprintf("• Cached web estimates: %d\n", health.CachedEstimates))
	sb.WriteString(fmt.Sprintf("• Stored lookups: %d (%s)\n", health.StoredTraces, health.DatabaseSize))
	sb.WriteString(fmt.Sprintf("• Heap: %dMB, goroutines: %d\n", health.HeapMB, health.Goroutines))
	return sb.String()
}

var markdownEscaper = strings.NewReplacer("_", `\_`, "*", `\*`, "`", "\\`", "[", `\[`)

func escapeMarkdown(s string) string {
	return markdownEscaper.Replace(s)
}
