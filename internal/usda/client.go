// Package usda looks up basic foods in USDA FoodData Central.
package usda

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

const (
	DefaultBaseURL  = "https://api.nal.usda.gov/fdc/v1"
	defaultPageSize = 5
)

// DataTypes are the FDC datasets with lab-analysed values for basic foods.
var DataTypes = []string{"Foundation", "SR Legacy"}

// FoodNutrient is one nutrient line of a search hit.
type FoodNutrient struct {
	NutrientName string  `json:"nutrientName"`
	UnitName     string  `json:"unitName"`
	Value        float64 `json:"value"`
}

// Food is one search hit. Nutrient values are per 100 g for these data types.
type Food struct {
	FdcID         int            `json:"fdcId"`
	Description   string         `json:"description"`
	DataType      string         `json:"dataType"`
	FoodNutrients []FoodNutrient `json:"foodNutrients"`
}

type searchResponse struct {
	TotalHits int    `json:"totalHits"`
	Foods     []Food `json:"foods"`
}

// Searcher is the part of the FDC API the lookup tier needs.
type Searcher interface {
	Search(ctx context.Context, query string) ([]Food, error)
}

// Client talks to the FDC REST API.
type Client struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
}

// NewClient creates a client. timeout bounds every request.
func NewClient(baseURL, apiKey string, timeout time.Duration) *Client {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		apiKey:  apiKey,
		httpClient: &http.Client{
			Timeout: timeout,
		},
	}
}

// Search runs /foods/search restricted to DataTypes.
func (c *Client) Search(ctx context.Context, query string) ([]Food, error) {
	params := url.Values{}
	params.Set("query", query)
	params.Set("dataType", strings.Join(DataTypes, ","))
	params.Set("pageSize", fmt.Sprintf("%d", defaultPageSize))
	params.Set("api_key", c.apiKey)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/foods/search?"+params.Encode(), nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to send request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("fdc api error: status=%d body=%s", resp.StatusCode, string(body))
	}

	var sr searchResponse
	if err := json.NewDecoder(resp.Body).Decode(&sr); err != nil {
		return nil, fmt.Errorf("failed to decode response: %w", err)
	}
	return sr.Foods, nil
}
