package tools

import (
	"context"

	"github.com/tokenscope/tokenscope/pkg/analysis"
	"github.com/tokenscope/tokenscope/pkg/models"
)

type lpLockExecutor struct {
	chain ChainCaller
}

// Execute analyzes the LP lock of the best DEX pair. It depends on prior
// dexscreener_getPairs evidence for the pair address and, when available,
// basescan_getContractCreation for the deployer address.
func (e *lpLockExecutor) Execute(ctx context.Context, tokenAddress string, prior *models.EvidenceLedger) models.EvidenceItem {
	const title = "LP lock status"

	pairs, ok := priorData[DexPairsData](prior, ToolDexPairs)
	if !ok || pairs.BestPair == nil {
		return unavailableItem("lp", ToolLPLock, title, "",
			"No DEX pair available; LP lock analysis requires a trading pair")
	}

	deployerAddress := ""
	if creation, ok := priorData[ContractCreationData](prior, ToolContractCreation); ok {
		deployerAddress = creation.DeployerAddress
	}

	status, err := analysis.AnalyzeLPLock(ctx, e.chain, pairs.BestPair.PairAddress, deployerAddress)
	if err != nil {
		return unavailableItem("lp", ToolLPLock, title, e.chain.URL(), err.Error())
	}
	return okItem("lp", ToolLPLock, title, e.chain.URL(), status)
}

// OwnerStatusData is the payload of contract_ownerStatus.
type OwnerStatusData struct {
	Address string `json:"address"`
	analysis.OwnerStatus
}

type ownerExecutor struct {
	chain ChainCaller
}

// Execute checks the owner slot. Without a verified ABI the item still
// reports ok with hasOwnerFunction=false, matching the analyzer contract.
func (e *ownerExecutor) Execute(ctx context.Context, tokenAddress string, prior *models.EvidenceLedger) models.EvidenceItem {
	const title = "Owner status"

	rawABI := ""
	if source, ok := priorData[SourceInfoData](prior, ToolSourceInfo); ok {
		rawABI = source.ABI
	}

	status, err := analysis.CheckOwner(ctx, e.chain, tokenAddress, rawABI)
	if err != nil {
		return unavailableItem("owner", ToolOwnerStatus, title, e.chain.URL(), err.Error())
	}
	return okItem("owner", ToolOwnerStatus, title, e.chain.URL(), OwnerStatusData{
		Address:     tokenAddress,
		OwnerStatus: status,
	})
}

// CapabilityData is the payload of contract_capabilityScan.
type CapabilityData struct {
	Address string `json:"address"`
	analysis.Capabilities
}

type capabilityExecutor struct{}

// Execute derives capability flags from the verified ABI collected by
// basescan_getSourceInfo. Unverified contracts cannot be scanned.
func (e *capabilityExecutor) Execute(_ context.Context, tokenAddress string, prior *models.EvidenceLedger) models.EvidenceItem {
	const title = "Contract capabilities"

	source, ok := priorData[SourceInfoData](prior, ToolSourceInfo)
	if !ok || !source.IsVerified || source.ABI == "" {
		return unavailableItem("caps", ToolCapabilityScan, title, "",
			"Contract source is not verified; capability scan requires an ABI")
	}

	caps, err := analysis.ScanCapabilities(source.ABI, source.IsProxy)
	if err != nil {
		return unavailableItem("caps", ToolCapabilityScan, title, "", err.Error())
	}
	return okItem("caps", ToolCapabilityScan, title, "", CapabilityData{
		Address:      tokenAddress,
		Capabilities: caps,
	})
}
