package tools

import (
	"context"

	"github.com/tokenscope/tokenscope/pkg/analysis"
	"github.com/tokenscope/tokenscope/pkg/models"
	"github.com/tokenscope/tokenscope/pkg/providers"
)

// TopHoldersData is the payload of holders_getTopHolders.
type TopHoldersData struct {
	Address string `json:"address"`
	analysis.HolderDistribution
}

type holdersExecutor struct {
	holders HoldersAPI
	opts    providers.FetchOptions
}

// Execute fetches the top holders and computes supply percentages using the
// total supply and decimals collected by rpc_getErc20Metadata. Absolute
// percentages degrade to null when those inputs are missing.
func (e *holdersExecutor) Execute(ctx context.Context, tokenAddress string, prior *models.EvidenceLedger) models.EvidenceItem {
	const title = "Top holders"

	result := e.holders.FetchTopHolders(ctx, tokenAddress, e.opts)
	if result.Error != "" {
		return unavailableItem("holders", ToolTopHolders, title, result.SourceURL, result.Error)
	}

	totalSupply := ""
	var decimals *int
	if metadata, ok := priorData[Erc20MetadataData](prior, ToolErc20Metadata); ok {
		totalSupply = metadata.TotalSupply
		decimals = metadata.Decimals
	}

	dist := analysis.ComputeHolderDistribution(result, totalSupply, decimals)
	return okItem("holders", ToolTopHolders, title, result.SourceURL, TopHoldersData{
		Address:            tokenAddress,
		HolderDistribution: dist,
	})
}
