package tools

import (
	"context"

	"github.com/tokenscope/tokenscope/pkg/models"
	"github.com/tokenscope/tokenscope/pkg/providers"
)

// maxReportedPairs bounds the pair list persisted into evidence.
const maxReportedPairs = 10

// DexPairsData is the payload of dexscreener_getPairs. BestPair is the pair
// with the deepest USD liquidity; downstream LP analysis keys off it.
type DexPairsData struct {
	Address   string           `json:"address"`
	PairCount int              `json:"pairCount"`
	BestPair  *providers.Pair  `json:"bestPair,omitempty"`
	Pairs     []providers.Pair `json:"pairs"`
}

type dexExecutor struct {
	dex DexAPI
}

func (e *dexExecutor) Execute(ctx context.Context, tokenAddress string, _ *models.EvidenceLedger) models.EvidenceItem {
	const title = "DEX trading pairs"

	result := e.dex.GetTokenPairs(ctx, tokenAddress)
	if result.Error != "" {
		return unavailableItem("dex", ToolDexPairs, title, result.SourceURL, result.Error)
	}

	data := DexPairsData{
		Address:   tokenAddress,
		PairCount: len(result.Pairs),
		Pairs:     result.Pairs,
	}
	if len(data.Pairs) > maxReportedPairs {
		data.Pairs = data.Pairs[:maxReportedPairs]
	}
	if best := bestPair(result.Pairs); best != nil {
		data.BestPair = best
	}
	return okItem("dex", ToolDexPairs, title, result.SourceURL, data)
}

func bestPair(pairs []providers.Pair) *providers.Pair {
	var best *providers.Pair
	for i := range pairs {
		if best == nil || pairs[i].Liquidity.Usd > best.Liquidity.Usd {
			best = &pairs[i]
		}
	}
	return best
}

// HoneypotData is the payload of honeypot_getSimulation.
type HoneypotData struct {
	Address           string  `json:"address"`
	SimulationSuccess bool    `json:"simulationSuccess"`
	IsHoneypot        bool    `json:"isHoneypot"`
	HoneypotReason    string  `json:"honeypotReason,omitempty"`
	BuyTax            float64 `json:"buyTax"`
	SellTax           float64 `json:"sellTax"`
	TransferTax       float64 `json:"transferTax"`
	BuyGas            int64   `json:"buyGas,omitempty"`
	SellGas           int64   `json:"sellGas,omitempty"`
	PairAddress       string  `json:"pairAddress,omitempty"`
	PairLiquidityUsd  float64 `json:"pairLiquidityUsd,omitempty"`
}

type honeypotExecutor struct {
	honeypot HoneypotAPI
}

func (e *honeypotExecutor) Execute(ctx context.Context, tokenAddress string, _ *models.EvidenceLedger) models.EvidenceItem {
	const title = "Honeypot simulation"

	result := e.honeypot.GetSimulation(ctx, tokenAddress)
	if result.Error != "" {
		return unavailableItem("honeypot", ToolHoneypot, title, result.SourceURL, result.Error)
	}

	data := HoneypotData{
		Address:           tokenAddress,
		SimulationSuccess: result.SimulationSuccess,
		IsHoneypot:        result.IsHoneypot,
		HoneypotReason:    result.HoneypotReason,
		BuyTax:            result.BuyTax,
		SellTax:           result.SellTax,
		TransferTax:       result.TransferTax,
		BuyGas:            result.BuyGas,
		SellGas:           result.SellGas,
		PairAddress:       result.PairAddress,
		PairLiquidityUsd:  result.PairLiquidityUsd,
	}
	return okItem("honeypot", ToolHoneypot, title, result.SourceURL, data)
}
