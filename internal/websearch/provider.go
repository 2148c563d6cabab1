package websearch

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"calorie-app/internal/llm"

	"github.com/PuerkitoBio/goquery"
	"go.uber.org/zap"
)

// Provider runs a search and returns the text to parse.
type Provider interface {
	Search(ctx context.Context, query string) (string, error)
}

// HTMLProvider scrapes an HTML search results page.
type HTMLProvider struct {
	baseURL    string
	httpClient *http.Client
	// Selector picks result snippets; the whole body is used when it matches nothing.
	Selector string
}

// NewHTMLProvider creates a provider for a search page that takes the query in q.
func NewHTMLProvider(baseURL string, timeout time.Duration) *HTMLProvider {
	return &HTMLProvider{
		baseURL:    baseURL,
		httpClient: &http.Client{Timeout: timeout},
		Selector:   ".result__snippet, .result__title, .snippet",
	}
}

func (p *HTMLProvider) Search(ctx context.Context, query string) (string, error) {
	u, err := url.Parse(p.baseURL)
	if err != nil {
		return "", fmt.Errorf("invalid search url %q: %w", p.baseURL, err)
	}
	params := u.Query()
	params.Set("q", query)
	u.RawQuery = params.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return "", fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("User-Agent", "Mozilla/5.0 (compatible; calorie-app/1.0)")

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("failed to fetch search results: status %d", resp.StatusCode)
	}

	doc, err := goquery.NewDocumentFromReader(resp.Body)
	if err != nil {
		return "", err
	}

	doc.Find("script, style, nav, footer, iframe, ads, .ads, #ads").Each(func(i int, s *goquery.Selection) {
		s.Remove()
	})

	var parts []string
	doc.Find(p.Selector).Each(func(i int, s *goquery.Selection) {
		if text := strings.TrimSpace(s.Text()); text != "" {
			parts = append(parts, text)
		}
	})
	if len(parts) == 0 {
		return strings.TrimSpace(doc.Find("body").Text()), nil
	}
	return strings.Join(parts, "\n"), nil
}

// LLMProvider asks a language model for nutrition facts as JSON.
type LLMProvider struct {
	textGen llm.TextGenerator
	logger  *zap.Logger
}

func NewLLMProvider(textGen llm.TextGenerator, logger *zap.Logger) *LLMProvider {
	return &LLMProvider{textGen: textGen, logger: logger}
}

func (p *LLMProvider) Search(ctx context.Context, query string) (string, error) {
	prompt := fmt.Sprintf(`
You are a nutrition lookup service. Give the published nutrition facts for one standard serving of:
%s

Return the result strictly as a JSON object with this structure:
{
  "calories": 0,
  "protein": 0,
  "carbs": 0,
  "fat": 0,
  "serving_grams": 0
}
Use grams for macros. Leave a field out if it is unknown.
`, query)

	resp, err := p.textGen.GenerateContent(ctx, prompt)
	if err != nil {
		return "", fmt.Errorf("llm lookup failed: %w", err)
	}
	p.logger.Debug("llm nutrition lookup",
		zap.String("query", query),
		zap.String("model", resp.Usage.Model),
		zap.Int("prompt_tokens", resp.Usage.PromptTokens),
		zap.Int("completion_tokens", resp.Usage.CompletionTokens))
	return resp.Content, nil
}
