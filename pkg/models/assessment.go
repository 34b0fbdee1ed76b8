package models

import "strings"

// RiskLevel buckets the overall score.
type RiskLevel string

// Risk levels.
const (
	RiskLevelLow      RiskLevel = "low"
	RiskLevelMedium   RiskLevel = "medium"
	RiskLevelHigh     RiskLevel = "high"
	RiskLevelCritical RiskLevel = "critical"
)

// Confidence expresses how much data backed the assessment.
type Confidence string

// Confidence levels.
const (
	ConfidenceLow    Confidence = "low"
	ConfidenceMedium Confidence = "medium"
	ConfidenceHigh   Confidence = "high"
)

// CategoryScores holds the five fixed scoring categories, each in [0,100].
type CategoryScores struct {
	ContractSecurity  int `json:"contractSecurity"`
	LiquiditySafety   int `json:"liquiditySafety"`
	HolderHealth      int `json:"holderHealth"`
	MarketActivity    int `json:"marketActivity"`
	TransparencyTrust int `json:"transparencyTrust"`
}

// Reason is one finding backing the assessment. Every reason must cite at
// least one evidence item collected during the same scan.
type Reason struct {
	Title        string   `json:"title"`
	Detail       string   `json:"detail"`
	EvidenceRefs []string `json:"evidenceRefs"`
}

// Assessment is the final structured verdict for a scan.
type Assessment struct {
	Summary        string         `json:"summary"`
	OverallScore   int            `json:"overallScore"`
	RiskLevel      RiskLevel      `json:"riskLevel"`
	Confidence     Confidence     `json:"confidence"`
	CategoryScores CategoryScores `json:"categoryScores"`
	Reasons        []Reason       `json:"reasons"`
	MissingData    []string       `json:"missingData"`
}

// HydrateEmptyRefs fills any reason that cites nothing with the full set of
// evidence ids. Validation afterwards still rejects refs that do not resolve.
func (a *Assessment) HydrateEmptyRefs(allIDs []string) {
	for i := range a.Reasons {
		if len(a.Reasons[i].EvidenceRefs) == 0 {
			a.Reasons[i].EvidenceRefs = append([]string(nil), allIDs...)
		}
	}
}

// ValidateCitations checks the structural and referential integrity rules:
// at least one reason, no whitespace-only titles or details, and every
// evidence ref resolving to an item in the ledger.
func (a *Assessment) ValidateCitations(ledger *EvidenceLedger) error {
	if len(a.Reasons) == 0 {
		return &CitationError{Message: "assessment has no reasons"}
	}
	for i, r := range a.Reasons {
		if strings.TrimSpace(r.Title) == "" || strings.TrimSpace(r.Detail) == "" {
			return &CitationError{Message: "reason has empty title or detail", ReasonIndex: i}
		}
		if len(r.EvidenceRefs) == 0 {
			return &CitationError{Message: "reason cites no evidence", ReasonIndex: i}
		}
		for _, ref := range r.EvidenceRefs {
			if !ledger.HasID(ref) {
				return &CitationError{Message: "evidence ref does not resolve: " + ref, ReasonIndex: i}
			}
		}
	}
	return nil
}

// CitationError reports an assessment that failed citation validation.
type CitationError struct {
	Message     string
	ReasonIndex int
}

func (e *CitationError) Error() string { return e.Message }
