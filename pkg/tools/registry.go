// Package tools implements the closed set of evidence-gathering tools and
// the registry that dispatches them. Each executor turns one provider call
// (or a derived analysis over prior evidence) into an EvidenceItem; failures
// are captured into the item, never thrown past the runner.
package tools

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"time"

	"github.com/tokenscope/tokenscope/pkg/config"
	"github.com/tokenscope/tokenscope/pkg/models"
	"github.com/tokenscope/tokenscope/pkg/providers"
)

// The closed tool set. Plans and evidence items may only reference these.
const (
	ToolBytecode         = "rpc_getBytecode"
	ToolErc20Metadata    = "rpc_getErc20Metadata"
	ToolSourceInfo       = "basescan_getSourceInfo"
	ToolContractCreation = "basescan_getContractCreation"
	ToolDexPairs         = "dexscreener_getPairs"
	ToolHoneypot         = "honeypot_getSimulation"
	ToolLPLock           = "lp_v2_lockStatus"
	ToolOwnerStatus      = "contract_ownerStatus"
	ToolCapabilityScan   = "contract_capabilityScan"
	ToolTopHolders       = "holders_getTopHolders"
)

// AllTools returns the closed tool set in canonical order.
func AllTools() []string {
	return []string{
		ToolBytecode,
		ToolErc20Metadata,
		ToolSourceInfo,
		ToolContractCreation,
		ToolDexPairs,
		ToolHoneypot,
		ToolLPLock,
		ToolOwnerStatus,
		ToolCapabilityScan,
		ToolTopHolders,
	}
}

// ChainCaller is the chain RPC surface the executors need.
type ChainCaller interface {
	URL() string
	GetCode(ctx context.Context, address string) providers.RPCResult
	Call(ctx context.Context, to, data string) providers.RPCResult
}

// ExplorerAPI is the block-explorer surface the executors need.
type ExplorerAPI interface {
	GetSourceInfo(ctx context.Context, address string) providers.SourceInfoResult
	GetContractCreation(ctx context.Context, address string) providers.ContractCreationResult
}

// DexAPI lists trading pairs for a token.
type DexAPI interface {
	GetTokenPairs(ctx context.Context, address string) providers.PairsResult
}

// HoneypotAPI simulates trading the token.
type HoneypotAPI interface {
	GetSimulation(ctx context.Context, address string) providers.SimulationResult
}

// HoldersAPI fetches top holders from the indexed dataset.
type HoldersAPI interface {
	FetchTopHolders(ctx context.Context, tokenAddress string, opts providers.FetchOptions) providers.HoldersResult
}

// Executor runs one tool against a token address. Prior evidence lets
// derived tools reuse earlier results instead of refetching.
type Executor interface {
	Execute(ctx context.Context, tokenAddress string, prior *models.EvidenceLedger) models.EvidenceItem
}

// Deps carries the provider clients the registry wires into executors.
// Conditional-feature clients may be nil; their tools are then unregistered.
type Deps struct {
	Chain    ChainCaller
	Explorer ExplorerAPI
	Dex      DexAPI
	Honeypot HoneypotAPI
	Holders  HoldersAPI
	Config   *config.Config
}

// Registry owns the tool table, built once at process start.
type Registry struct {
	executors map[string]Executor
}

// NewRegistry builds the tool table from the available provider clients.
func NewRegistry(deps Deps) *Registry {
	r := &Registry{executors: make(map[string]Executor)}

	if deps.Chain != nil {
		r.executors[ToolBytecode] = &bytecodeExecutor{chain: deps.Chain}
		r.executors[ToolErc20Metadata] = &metadataExecutor{chain: deps.Chain}
		r.executors[ToolLPLock] = &lpLockExecutor{chain: deps.Chain}
		r.executors[ToolOwnerStatus] = &ownerExecutor{chain: deps.Chain}
	}
	if deps.Explorer != nil {
		r.executors[ToolSourceInfo] = &sourceInfoExecutor{explorer: deps.Explorer}
		r.executors[ToolContractCreation] = &creationExecutor{explorer: deps.Explorer}
	}
	r.executors[ToolCapabilityScan] = &capabilityExecutor{}
	if deps.Dex != nil {
		r.executors[ToolDexPairs] = &dexExecutor{dex: deps.Dex}
	}
	if deps.Honeypot != nil {
		r.executors[ToolHoneypot] = &honeypotExecutor{honeypot: deps.Honeypot}
	}
	if deps.Holders != nil && deps.Config != nil {
		r.executors[ToolTopHolders] = &holdersExecutor{
			holders: deps.Holders,
			opts:    holdersFetchOptions(deps.Config),
		}
	}

	return r
}

// Has reports whether the tool is registered in this configuration.
func (r *Registry) Has(tool string) bool {
	_, ok := r.executors[tool]
	return ok
}

// Execute dispatches the named tool. Unregistered tools produce an
// unavailable item rather than an error.
func (r *Registry) Execute(ctx context.Context, tool, tokenAddress string, prior *models.EvidenceLedger) models.EvidenceItem {
	executor, ok := r.executors[tool]
	if !ok {
		return unavailableItem("tool", tool, tool, "", fmt.Sprintf("Tool %s is not available in this configuration", tool))
	}
	return executor.Execute(ctx, tokenAddress, prior)
}

// topHoldersLimit is how many holders the holders tool requests; top10Pct
// needs at least ten rows.
const topHoldersLimit = 10

func holdersFetchOptions(cfg *config.Config) providers.FetchOptions {
	probeDays := providers.FastModeProbeDays
	if cfg.HoldersMode == config.HoldersModeFull {
		probeDays = providers.FullModeProbeDays
	}
	return providers.FetchOptions{
		Limit:     topHoldersLimit,
		MinRows:   cfg.HoldersMinRows,
		ProbeDays: probeDays,
		ProbeCap:  cfg.HoldersProbeCap,
	}
}

// newEvidenceID mints an evidence id unique within a scan:
// ev_<domainPrefix>_<8-hex> with cryptographic randomness.
func newEvidenceID(prefix string) string {
	buf := make([]byte, 4)
	_, _ = rand.Read(buf)
	return fmt.Sprintf("ev_%s_%s", prefix, hex.EncodeToString(buf))
}

func okItem(prefix, tool, title, sourceURL string, data any) models.EvidenceItem {
	payload, err := json.Marshal(data)
	if err != nil {
		return unavailableItem(prefix, tool, title, sourceURL, "Evidence payload could not be encoded: "+err.Error())
	}
	return models.EvidenceItem{
		ID:        newEvidenceID(prefix),
		Tool:      tool,
		Title:     title,
		SourceURL: sourceURL,
		FetchedAt: time.Now().UTC(),
		Status:    models.EvidenceStatusOK,
		Data:      payload,
	}
}

func unavailableItem(prefix, tool, title, sourceURL, errMsg string) models.EvidenceItem {
	return models.EvidenceItem{
		ID:        newEvidenceID(prefix),
		Tool:      tool,
		Title:     title,
		SourceURL: sourceURL,
		FetchedAt: time.Now().UTC(),
		Status:    models.EvidenceStatusUnavailable,
		Error:     errMsg,
	}
}

// priorData decodes the data payload of an earlier ok item for the named
// tool. Absence, unavailable status, and decode failures all report false.
func priorData[T any](prior *models.EvidenceLedger, tool string) (T, bool) {
	var out T
	if prior == nil {
		return out, false
	}
	item, ok := prior.ByTool(tool)
	if !ok || item.Status != models.EvidenceStatusOK || len(item.Data) == 0 {
		return out, false
	}
	if err := json.Unmarshal(item.Data, &out); err != nil {
		return out, false
	}
	return out, true
}
