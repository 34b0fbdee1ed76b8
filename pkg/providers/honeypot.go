package providers

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

// HoneypotTimeout is the per-call budget for honeypot simulation requests.
// Simulations are slower than plain lookups, so this exceeds the default.
const HoneypotTimeout = 12 * time.Second

// HoneypotClient runs buy/sell/transfer simulations against a honeypot
// detection API.
type HoneypotClient struct {
	httpClient *http.Client
	baseURL    string
	apiKey     string
	chainID    int
}

// NewHoneypotClient creates a honeypot simulation client. apiKey may be
// empty (public tier).
func NewHoneypotClient(baseURL, apiKey string, chainID int) *HoneypotClient {
	return &HoneypotClient{
		httpClient: &http.Client{},
		baseURL:    strings.TrimRight(baseURL, "/"),
		apiKey:     apiKey,
		chainID:    chainID,
	}
}

// SimulationResult is the outcome of a honeypot simulation.
type SimulationResult struct {
	SourceURL         string
	SimulationSuccess bool
	IsHoneypot        bool
	HoneypotReason    string
	BuyTax            float64
	SellTax           float64
	TransferTax       float64
	BuyGas            int64
	SellGas           int64
	PairAddress       string
	PairLiquidityUsd  float64
	Error             string
}

type honeypotResponse struct {
	SimulationSuccess bool `json:"simulationSuccess"`
	HoneypotResult    struct {
		IsHoneypot     bool   `json:"isHoneypot"`
		HoneypotReason string `json:"honeypotReason"`
	} `json:"honeypotResult"`
	SimulationResult struct {
		BuyTax      float64 `json:"buyTax"`
		SellTax     float64 `json:"sellTax"`
		TransferTax float64 `json:"transferTax"`
		BuyGas      string  `json:"buyGas"`
		SellGas     string  `json:"sellGas"`
	} `json:"simulationResult"`
	Pair struct {
		Pair struct {
			Address string `json:"address"`
		} `json:"pair"`
		Liquidity float64 `json:"liquidity"`
	} `json:"pair"`
}

// GetSimulation simulates trading the token and reports the verdict.
func (c *HoneypotClient) GetSimulation(ctx context.Context, address string) SimulationResult {
	values := url.Values{}
	values.Set("address", address)
	values.Set("chainID", fmt.Sprintf("%d", c.chainID))
	reqURL := c.baseURL + "/v2/IsHoneypot?" + values.Encode()
	out := SimulationResult{SourceURL: reqURL}

	ctx, cancel := context.WithTimeout(ctx, HoneypotTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		out.Error = "Honeypot request could not be created: " + err.Error()
		return out
	}
	if c.apiKey != "" {
		req.Header.Set("X-API-KEY", c.apiKey)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		out.Error = "Honeypot request failed: " + err.Error()
		return out
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		out.Error = fmt.Sprintf("Honeypot API returned HTTP %d", resp.StatusCode)
		return out
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		out.Error = "Honeypot response could not be read: " + err.Error()
		return out
	}

	var parsed honeypotResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		out.Error = "Honeypot API returned invalid JSON: " + err.Error()
		return out
	}

	out.SimulationSuccess = parsed.SimulationSuccess
	out.IsHoneypot = parsed.HoneypotResult.IsHoneypot
	out.HoneypotReason = parsed.HoneypotResult.HoneypotReason
	out.BuyTax = parsed.SimulationResult.BuyTax
	out.SellTax = parsed.SimulationResult.SellTax
	out.TransferTax = parsed.SimulationResult.TransferTax
	out.BuyGas = parseGas(parsed.SimulationResult.BuyGas)
	out.SellGas = parseGas(parsed.SimulationResult.SellGas)
	out.PairAddress = strings.ToLower(parsed.Pair.Pair.Address)
	out.PairLiquidityUsd = parsed.Pair.Liquidity
	return out
}

func parseGas(s string) int64 {
	var n int64
	for _, r := range s {
		if r < '0' || r > '9' {
			return 0
		}
		n = n*10 + int64(r-'0')
	}
	return n
}
