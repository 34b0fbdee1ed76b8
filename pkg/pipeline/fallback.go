package pipeline

import (
	"fmt"
	"strings"

	"github.com/tokenscope/tokenscope/pkg/models"
)

// FallbackAssessment is the deterministic low-confidence assessment used
// when no model variant produced an acceptable one. It scores conservatively
// toward the middle and cites the entire ledger so citation integrity holds.
func FallbackAssessment(ledger *models.EvidenceLedger) models.Assessment {
	allIDs := ledger.IDs()

	assessment := models.Assessment{
		Summary: "AI assessment is unavailable for this scan. The collected evidence is " +
			"presented as-is with a neutral score; review the individual findings below.",
		OverallScore: 55,
		RiskLevel:    models.RiskLevelMedium,
		Confidence:   models.ConfidenceLow,
		CategoryScores: models.CategoryScores{
			ContractSecurity:  50,
			LiquiditySafety:   55,
			HolderHealth:      55,
			MarketActivity:    60,
			TransparencyTrust: 60,
		},
		Reasons: []models.Reason{
			{
				Title:        "Automated analysis unavailable",
				Detail:       "The AI assessor could not produce a verdict; the neutral score reflects unanalyzed evidence, not measured safety.",
				EvidenceRefs: append([]string(nil), allIDs...),
			},
			{
				Title:        "Evidence collected without interpretation",
				Detail:       fmt.Sprintf("%d evidence items were gathered and persisted for manual review.", len(ledger.Items)),
				EvidenceRefs: append([]string(nil), allIDs...),
			},
		},
		MissingData: []string{"AI assessment output could not be generated"},
	}

	if unavailable := ledger.UnavailableTools(); len(unavailable) > 0 {
		assessment.MissingData = append(assessment.MissingData,
			"Some data sources were unavailable: "+strings.Join(unavailable, ", "))
	}
	return assessment
}
