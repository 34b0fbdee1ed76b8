// Package pipeline runs a scan end to end: claim the scan row, plan the
// steps, execute the tools into an evidence ledger, assess, and persist the
// terminal state. Every state transition is mirrored into the append-only
// event log; persistence always happens before the matching event.
package pipeline

import (
	"github.com/tokenscope/tokenscope/pkg/models"
	"github.com/tokenscope/tokenscope/pkg/tools"
)

// Step keys used by step-level events and the UI.
const (
	StepValidateTarget = "validate_target"
	StepAgentPlan      = "agent_plan"
	StepBytecode       = "rpc_bytecode"
	StepMetadata       = "rpc_metadata"
	StepSource         = "explorer_source"
	StepCreation       = "explorer_creation"
	StepDexPairs       = "dex_pairs"
	StepHoneypot       = "honeypot_sim"
	StepLPLock         = "lp_lock"
	StepOwner          = "owner_status"
	StepCapabilities   = "capability_scan"
	StepHolders        = "top_holders"
	StepAssessment     = "agent_assessment"
)

// stepKeyForTool maps each tool to its canonical step key, used when the
// planner proposes a step without one.
var stepKeyForTool = map[string]string{
	tools.ToolBytecode:         StepBytecode,
	tools.ToolErc20Metadata:    StepMetadata,
	tools.ToolSourceInfo:       StepSource,
	tools.ToolContractCreation: StepCreation,
	tools.ToolDexPairs:         StepDexPairs,
	tools.ToolHoneypot:         StepHoneypot,
	tools.ToolLPLock:           StepLPLock,
	tools.ToolOwnerStatus:      StepOwner,
	tools.ToolCapabilityScan:   StepCapabilities,
	tools.ToolTopHolders:       StepHolders,
}

// Availability reports which tools the current configuration supports.
type Availability interface {
	Has(tool string) bool
}

// BaselinePlan is the unconditional core plus the steps unlocked by
// configured providers. Ordering is fixed: the core runs first so derived
// steps see their prerequisites.
func BaselinePlan(avail Availability) models.Plan {
	plan := models.Plan{Steps: []models.PlannedStep{
		{StepKey: StepBytecode, Tool: tools.ToolBytecode, Title: "Fetch contract bytecode", Reason: "Confirm the address is a contract"},
		{StepKey: StepMetadata, Tool: tools.ToolErc20Metadata, Title: "Read ERC-20 metadata", Reason: "Identify the token and its supply"},
		{StepKey: StepDexPairs, Tool: tools.ToolDexPairs, Title: "List DEX trading pairs", Reason: "Find where the token trades and how deep"},
		{StepKey: StepHoneypot, Tool: tools.ToolHoneypot, Title: "Simulate a trade", Reason: "Detect honeypot behavior and taxes"},
		{StepKey: StepLPLock, Tool: tools.ToolLPLock, Title: "Check LP lock", Reason: "Determine whether liquidity can be pulled"},
	}}

	if avail.Has(tools.ToolSourceInfo) {
		plan.Steps = append(plan.Steps,
			models.PlannedStep{StepKey: StepSource, Tool: tools.ToolSourceInfo, Title: "Fetch verified source", Reason: "Inspect the contract source and ABI"},
			models.PlannedStep{StepKey: StepCreation, Tool: tools.ToolContractCreation, Title: "Look up contract creation", Reason: "Identify the deployer"},
			models.PlannedStep{StepKey: StepOwner, Tool: tools.ToolOwnerStatus, Title: "Check owner status", Reason: "See whether ownership is renounced"},
			models.PlannedStep{StepKey: StepCapabilities, Tool: tools.ToolCapabilityScan, Title: "Scan contract capabilities", Reason: "Flag mint, pause, blacklist, and fee functions"},
		)
	}
	if avail.Has(tools.ToolTopHolders) {
		plan.Steps = append(plan.Steps,
			models.PlannedStep{StepKey: StepHolders, Tool: tools.ToolTopHolders, Title: "Fetch top holders", Reason: "Measure supply concentration"})
	}
	return plan
}

// MergePlan unions the baseline with planner-proposed steps. Baseline order
// is preserved; proposed steps are appended in planner order, deduplicated
// by tool name, and restricted to available tools. Merging a plan with
// itself is a no-op.
func MergePlan(baseline, proposed models.Plan, avail Availability) models.Plan {
	merged := models.Plan{
		Steps:    append([]models.PlannedStep(nil), baseline.Steps...),
		Fallback: proposed.Fallback,
	}
	for _, step := range proposed.Steps {
		if merged.HasTool(step.Tool) || !avail.Has(step.Tool) {
			continue
		}
		if _, known := stepKeyForTool[step.Tool]; !known {
			continue
		}
		if step.StepKey == "" {
			step.StepKey = stepKeyForTool[step.Tool]
		}
		merged.Steps = append(merged.Steps, step)
	}
	return merged
}
