package models

// PlannedStep is one step in a scan plan. StepKey is the stable identifier
// used by step-level events and the UI.
type PlannedStep struct {
	StepKey string `json:"stepKey"`
	Tool    string `json:"tool"`
	Title   string `json:"title"`
	Reason  string `json:"reason"`
}

// Plan is an ordered sequence of planned steps.
type Plan struct {
	Steps    []PlannedStep `json:"steps"`
	Fallback bool          `json:"fallback"`
}

// HasTool reports whether the plan already contains a step for the tool.
// Deduplication is by tool name only.
func (p *Plan) HasTool(tool string) bool {
	for _, s := range p.Steps {
		if s.Tool == tool {
			return true
		}
	}
	return false
}
