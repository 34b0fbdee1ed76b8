package providers

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// DexTimeout is the per-call budget for DEX aggregator requests.
const DexTimeout = 10 * time.Second

// DexClient fetches trading pairs from a DEX aggregator REST API.
type DexClient struct {
	httpClient *http.Client
	baseURL    string
	network    string
}

// NewDexClient creates a DEX aggregator client for one network.
func NewDexClient(baseURL, network string) *DexClient {
	return &DexClient{
		httpClient: &http.Client{},
		baseURL:    strings.TrimRight(baseURL, "/"),
		network:    network,
	}
}

// PairToken is one side of a trading pair.
type PairToken struct {
	Address string `json:"address"`
	Name    string `json:"name"`
	Symbol  string `json:"symbol"`
}

// Pair is a single DEX trading pool for the token.
type Pair struct {
	PairAddress string    `json:"pairAddress"`
	DexID       string    `json:"dexId"`
	URL         string    `json:"url"`
	BaseToken   PairToken `json:"baseToken"`
	QuoteToken  PairToken `json:"quoteToken"`
	PriceUsd    string    `json:"priceUsd"`
	Liquidity   struct {
		Usd float64 `json:"usd"`
	} `json:"liquidity"`
	PriceChange struct {
		H24 float64 `json:"h24"`
	} `json:"priceChange"`
	Volume struct {
		H24 float64 `json:"h24"`
	} `json:"volume"`
	Txns struct {
		H24 struct {
			Buys  int `json:"buys"`
			Sells int `json:"sells"`
		} `json:"h24"`
	} `json:"txns"`
	PairCreatedAt int64 `json:"pairCreatedAt"`
}

// PairsResult is the outcome of a token-pairs lookup.
type PairsResult struct {
	SourceURL string
	Pairs     []Pair
	Error     string
}

// GetTokenPairs lists the pairs trading the token, normalizing pair and
// token addresses to lowercase.
func (c *DexClient) GetTokenPairs(ctx context.Context, address string) PairsResult {
	reqURL := fmt.Sprintf("%s/token-pairs/v1/%s/%s", c.baseURL, c.network, address)
	out := PairsResult{SourceURL: reqURL}

	ctx, cancel := context.WithTimeout(ctx, DexTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		out.Error = "DEX request could not be created: " + err.Error()
		return out
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		out.Error = "DEX request failed: " + err.Error()
		return out
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		out.Error = fmt.Sprintf("DEX aggregator returned HTTP %d", resp.StatusCode)
		return out
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		out.Error = "DEX response could not be read: " + err.Error()
		return out
	}

	var pairs []Pair
	if err := json.Unmarshal(body, &pairs); err != nil {
		out.Error = "DEX aggregator returned invalid JSON: " + err.Error()
		return out
	}

	for i := range pairs {
		pairs[i].PairAddress = strings.ToLower(pairs[i].PairAddress)
		pairs[i].BaseToken.Address = strings.ToLower(pairs[i].BaseToken.Address)
		pairs[i].QuoteToken.Address = strings.ToLower(pairs[i].QuoteToken.Address)
	}

	out.Pairs = pairs
	return out
}
