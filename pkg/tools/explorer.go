package tools

import (
	"context"

	"github.com/tokenscope/tokenscope/pkg/models"
)

// SourceInfoData is the payload of basescan_getSourceInfo. ABI carries the
// raw JSON ABI for downstream capability and owner tools; it is empty when
// the source is unverified.
type SourceInfoData struct {
	Address               string `json:"address"`
	IsVerified            bool   `json:"isVerified"`
	ContractName          string `json:"contractName,omitempty"`
	CompilerVersion       string `json:"compilerVersion,omitempty"`
	IsProxy               bool   `json:"isProxy"`
	ImplementationAddress string `json:"implementationAddress,omitempty"`
	ABI                   string `json:"abi,omitempty"`
}

type sourceInfoExecutor struct {
	explorer ExplorerAPI
}

func (e *sourceInfoExecutor) Execute(ctx context.Context, tokenAddress string, _ *models.EvidenceLedger) models.EvidenceItem {
	const title = "Verified source and ABI"

	result := e.explorer.GetSourceInfo(ctx, tokenAddress)
	if result.Error != "" {
		return unavailableItem("src", ToolSourceInfo, title, result.SourceURL, result.Error)
	}

	data := SourceInfoData{
		Address:               tokenAddress,
		IsVerified:            result.IsVerified,
		ContractName:          result.ContractName,
		CompilerVersion:       result.CompilerVersion,
		IsProxy:               result.IsProxy,
		ImplementationAddress: result.ImplementationAddress,
		ABI:                   result.ABI,
	}
	return okItem("src", ToolSourceInfo, title, result.SourceURL, data)
}

// ContractCreationData is the payload of basescan_getContractCreation.
type ContractCreationData struct {
	Address         string `json:"address"`
	DeployerAddress string `json:"deployerAddress"`
	TxHash          string `json:"txHash"`
}

type creationExecutor struct {
	explorer ExplorerAPI
}

func (e *creationExecutor) Execute(ctx context.Context, tokenAddress string, _ *models.EvidenceLedger) models.EvidenceItem {
	const title = "Contract creation"

	result := e.explorer.GetContractCreation(ctx, tokenAddress)
	if result.Error != "" {
		return unavailableItem("deploy", ToolContractCreation, title, result.SourceURL, result.Error)
	}

	data := ContractCreationData{
		Address:         tokenAddress,
		DeployerAddress: result.DeployerAddress,
		TxHash:          result.TxHash,
	}
	return okItem("deploy", ToolContractCreation, title, result.SourceURL, data)
}
