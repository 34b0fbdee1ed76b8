package tools

import (
	"context"
	"sync"

	"github.com/tokenscope/tokenscope/pkg/analysis"
	"github.com/tokenscope/tokenscope/pkg/models"
)

// BytecodeData is the payload of rpc_getBytecode.
type BytecodeData struct {
	Address           string `json:"address"`
	HasCode           bool   `json:"hasCode"`
	BytecodeSizeBytes int    `json:"bytecodeSizeBytes"`
}

type bytecodeExecutor struct {
	chain ChainCaller
}

func (e *bytecodeExecutor) Execute(ctx context.Context, tokenAddress string, _ *models.EvidenceLedger) models.EvidenceItem {
	const title = "Contract bytecode"

	result := e.chain.GetCode(ctx, tokenAddress)
	if result.Error != "" {
		return unavailableItem("rpc", ToolBytecode, title, result.SourceURL, result.Error)
	}

	data := BytecodeData{Address: tokenAddress}
	if len(result.Result) > 2 {
		data.HasCode = true
		data.BytecodeSizeBytes = (len(result.Result) - 2) / 2
	}
	return okItem("rpc", ToolBytecode, title, result.SourceURL, data)
}

// Erc20MetadataData is the payload of rpc_getErc20Metadata. Fields that
// could not be fetched or decoded are left empty; Decimals is nil when
// unknown. TotalSupply is a decimal string in base units.
type Erc20MetadataData struct {
	Address     string `json:"address"`
	Name        string `json:"name,omitempty"`
	Symbol      string `json:"symbol,omitempty"`
	Decimals    *int   `json:"decimals"`
	TotalSupply string `json:"totalSupply,omitempty"`
}

type metadataExecutor struct {
	chain ChainCaller
}

// Execute fans out the four metadata calls concurrently and merges the
// results. The item is unavailable only when every call failed.
func (e *metadataExecutor) Execute(ctx context.Context, tokenAddress string, _ *models.EvidenceLedger) models.EvidenceItem {
	const title = "ERC-20 metadata"

	var (
		wg                                         sync.WaitGroup
		nameRes, symbolRes, decimalsRes, supplyRes string
		nameErr, symbolErr, decimalsErr, supplyErr string
	)

	fetch := func(selector string, result, errMsg *string) {
		defer wg.Done()
		r := e.chain.Call(ctx, tokenAddress, selector)
		if r.Error != "" {
			*errMsg = r.Error
			return
		}
		*result = r.Result
	}

	wg.Add(4)
	go fetch(analysis.SelectorName, &nameRes, &nameErr)
	go fetch(analysis.SelectorSymbol, &symbolRes, &symbolErr)
	go fetch(analysis.SelectorDecimals, &decimalsRes, &decimalsErr)
	go fetch(analysis.SelectorTotalSupply, &supplyRes, &supplyErr)
	wg.Wait()

	data := Erc20MetadataData{Address: tokenAddress}
	fetchedAny := false

	if nameErr == "" {
		if name, err := analysis.DecodeStringReturn(nameRes); err == nil && name != "" {
			data.Name = name
			fetchedAny = true
		}
	}
	if symbolErr == "" {
		if symbol, err := analysis.DecodeStringReturn(symbolRes); err == nil && symbol != "" {
			data.Symbol = symbol
			fetchedAny = true
		}
	}
	if decimalsErr == "" {
		if n, err := analysis.DecodeUint256(decimalsRes); err == nil && n.IsInt64() {
			decimals := int(n.Int64())
			data.Decimals = &decimals
			fetchedAny = true
		}
	}
	if supplyErr == "" {
		if n, err := analysis.DecodeUint256(supplyRes); err == nil {
			data.TotalSupply = n.String()
			fetchedAny = true
		}
	}

	if !fetchedAny {
		errMsg := firstNonEmpty(nameErr, symbolErr, decimalsErr, supplyErr)
		if errMsg == "" {
			errMsg = "Token did not return decodable ERC-20 metadata"
		}
		return unavailableItem("meta", ToolErc20Metadata, title, e.chain.URL(), errMsg)
	}
	return okItem("meta", ToolErc20Metadata, title, e.chain.URL(), data)
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
