package pipeline

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tokenscope/tokenscope/pkg/models"
	"github.com/tokenscope/tokenscope/pkg/tools"
)

// toolSet is a canned Availability.
type toolSet map[string]bool

func (s toolSet) Has(tool string) bool { return s[tool] }

func coreTools() toolSet {
	return toolSet{
		tools.ToolBytecode:      true,
		tools.ToolErc20Metadata: true,
		tools.ToolDexPairs:      true,
		tools.ToolHoneypot:      true,
		tools.ToolLPLock:        true,
	}
}

func allToolsSet() toolSet {
	s := toolSet{}
	for _, tool := range tools.AllTools() {
		s[tool] = true
	}
	return s
}

func planTools(p models.Plan) []string {
	out := make([]string, 0, len(p.Steps))
	for _, s := range p.Steps {
		out = append(out, s.Tool)
	}
	return out
}

func TestBaselinePlan(t *testing.T) {
	t.Run("core only without provider credentials", func(t *testing.T) {
		plan := BaselinePlan(coreTools())
		assert.Equal(t, []string{
			tools.ToolBytecode,
			tools.ToolErc20Metadata,
			tools.ToolDexPairs,
			tools.ToolHoneypot,
			tools.ToolLPLock,
		}, planTools(plan))
	})

	t.Run("explorer and holders extend the baseline", func(t *testing.T) {
		plan := BaselinePlan(allToolsSet())
		assert.Equal(t, []string{
			tools.ToolBytecode,
			tools.ToolErc20Metadata,
			tools.ToolDexPairs,
			tools.ToolHoneypot,
			tools.ToolLPLock,
			tools.ToolSourceInfo,
			tools.ToolContractCreation,
			tools.ToolOwnerStatus,
			tools.ToolCapabilityScan,
			tools.ToolTopHolders,
		}, planTools(plan))
	})
}

func TestMergePlan(t *testing.T) {
	avail := coreTools()
	baseline := BaselinePlan(avail)

	t.Run("merging the baseline with itself is the baseline", func(t *testing.T) {
		merged := MergePlan(baseline, baseline, avail)
		assert.Equal(t, planTools(baseline), planTools(merged))
	})

	t.Run("empty proposal yields the baseline", func(t *testing.T) {
		merged := MergePlan(baseline, models.Plan{}, avail)
		assert.Equal(t, planTools(baseline), planTools(merged))
	})

	t.Run("new tools append in planner order", func(t *testing.T) {
		wide := allToolsSet()
		base := BaselinePlan(coreTools())
		proposed := models.Plan{Steps: []models.PlannedStep{
			{StepKey: "holders", Tool: tools.ToolTopHolders, Title: "Holders", Reason: "concentration"},
			{StepKey: "src", Tool: tools.ToolSourceInfo, Title: "Source", Reason: "abi"},
		}}

		merged := MergePlan(base, proposed, wide)
		got := planTools(merged)
		require.Len(t, got, 7)
		assert.Equal(t, tools.ToolTopHolders, got[5])
		assert.Equal(t, tools.ToolSourceInfo, got[6])
	})

	t.Run("unavailable and unknown tools are dropped", func(t *testing.T) {
		proposed := models.Plan{Steps: []models.PlannedStep{
			{StepKey: "holders", Tool: tools.ToolTopHolders, Title: "Holders", Reason: "no token configured"},
			{StepKey: "x", Tool: "made_up_tool", Title: "X", Reason: "nonsense"},
		}}

		merged := MergePlan(baseline, proposed, avail)
		assert.Equal(t, planTools(baseline), planTools(merged))
	})

	t.Run("duplicate tool keeps the baseline step", func(t *testing.T) {
		proposed := models.Plan{Steps: []models.PlannedStep{
			{StepKey: "other_key", Tool: tools.ToolDexPairs, Title: "Pairs again", Reason: "duplicate"},
		}}

		merged := MergePlan(baseline, proposed, avail)
		assert.Equal(t, planTools(baseline), planTools(merged))
	})

	t.Run("missing step key gets the canonical one", func(t *testing.T) {
		wide := allToolsSet()
		proposed := models.Plan{Steps: []models.PlannedStep{
			{Tool: tools.ToolTopHolders, Title: "Holders", Reason: "concentration"},
		}}

		merged := MergePlan(baseline, proposed, wide)
		last := merged.Steps[len(merged.Steps)-1]
		assert.Equal(t, StepHolders, last.StepKey)
	})
}

func TestFallbackAssessment(t *testing.T) {
	ledger := &models.EvidenceLedger{Items: []models.EvidenceItem{
		{ID: "ev_rpc_00000001", Tool: tools.ToolBytecode, Status: models.EvidenceStatusOK},
		{ID: "ev_holders_0000", Tool: tools.ToolTopHolders, Status: models.EvidenceStatusUnavailable},
	}}

	assessment := FallbackAssessment(ledger)

	assert.Equal(t, 55, assessment.OverallScore)
	assert.Equal(t, models.RiskLevelMedium, assessment.RiskLevel)
	assert.Equal(t, models.ConfidenceLow, assessment.Confidence)
	assert.Equal(t, models.CategoryScores{
		ContractSecurity:  50,
		LiquiditySafety:   55,
		HolderHealth:      55,
		MarketActivity:    60,
		TransparencyTrust: 60,
	}, assessment.CategoryScores)

	require.Len(t, assessment.Reasons, 2)
	for _, reason := range assessment.Reasons {
		assert.Equal(t, ledger.IDs(), reason.EvidenceRefs)
	}
	require.NoError(t, assessment.ValidateCitations(ledger))

	require.Len(t, assessment.MissingData, 2)
	assert.Equal(t, "AI assessment output could not be generated", assessment.MissingData[0])
	assert.Contains(t, assessment.MissingData[1], tools.ToolTopHolders)
}
