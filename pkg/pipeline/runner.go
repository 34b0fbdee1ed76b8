package pipeline

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/tokenscope/tokenscope/pkg/models"
	"github.com/tokenscope/tokenscope/pkg/tools"
)

// notAContractMessage terminates a run when the target has no bytecode.
const notAContractMessage = "Address does not contain contract bytecode on Base"

// ScanStore is the scan persistence surface the runner needs.
type ScanStore interface {
	Claim(ctx context.Context, id string) (*models.Scan, error)
	Complete(ctx context.Context, id string, durationMs int64, evidence, assessment json.RawMessage, narrative, modelID string) error
	Fail(ctx context.Context, id string, durationMs int64, evidence json.RawMessage, errMsg string) error
}

// EventAppender appends to the scan's event log.
type EventAppender interface {
	Append(ctx context.Context, scanID string, level models.EventLevel, eventType string, stepKey *string, message string, payload json.RawMessage) (*models.ScanEvent, error)
}

// ToolRunner dispatches tools and reports availability.
type ToolRunner interface {
	Availability
	Execute(ctx context.Context, tool, tokenAddress string, prior *models.EvidenceLedger) models.EvidenceItem
}

// PlanBuilder proposes an ordered tool plan.
type PlanBuilder interface {
	BuildPlan(ctx context.Context, tokenAddress string, allowedTools []string) (models.Plan, error)
}

// AssessmentProducer turns the ledger into an assessment and the model id
// that produced it.
type AssessmentProducer interface {
	Assess(ctx context.Context, tokenAddress string, ledger *models.EvidenceLedger) (models.Assessment, string, error)
}

// Runner executes scan runs. Planner and assessor may be nil when no LLM is
// configured; the deterministic fallbacks cover both.
type Runner struct {
	scans    ScanStore
	events   EventAppender
	registry ToolRunner
	planner  PlanBuilder
	assessor AssessmentProducer
	logger   *slog.Logger
}

// NewRunner creates a pipeline runner.
func NewRunner(scans ScanStore, events EventAppender, registry ToolRunner,
	planner PlanBuilder, assessor AssessmentProducer, logger *slog.Logger) *Runner {

	return &Runner{
		scans:    scans,
		events:   events,
		registry: registry,
		planner:  planner,
		assessor: assessor,
		logger:   logger,
	}
}

// runFailure carries the failing step so the failure branch can emit
// step.failed exactly once.
type runFailure struct {
	stepKey string
	message string
	emitted bool
}

func (f *runFailure) Error() string { return f.message }

// Run claims the scan and drives it to a terminal state. Callers that lose
// the claim race receive services.ErrNotClaimable from the store.
func (r *Runner) Run(ctx context.Context, scanID string) error {
	scan, err := r.scans.Claim(ctx, scanID)
	if err != nil {
		return err
	}

	start := time.Now()
	x := &run{runner: r, scan: scan, ledger: &models.EvidenceLedger{}}

	if err := x.execute(ctx, start); err != nil {
		var failure *runFailure
		if !errors.As(err, &failure) {
			failure = &runFailure{stepKey: x.currentStep, message: err.Error()}
		}
		x.fail(ctx, start, failure)
		return fmt.Errorf("scan %s failed: %s", scanID, failure.message)
	}
	return nil
}

// run is the per-execution state of one scan run.
type run struct {
	runner      *Runner
	scan        *models.Scan
	ledger      *models.EvidenceLedger
	currentStep string
}

func (x *run) execute(ctx context.Context, start time.Time) (err error) {
	defer func() {
		if p := recover(); p != nil {
			err = &runFailure{stepKey: x.currentStep, message: fmt.Sprintf("unexpected failure: %v", p)}
		}
	}()

	addr := x.scan.TokenAddress
	x.emit(ctx, models.EventLevelInfo, models.EventTypeRunStarted, nil,
		"Scan started for "+addr, map[string]any{
			"tokenAddress":   addr,
			"scannerVersion": x.scan.ScannerVersion,
		})

	x.currentStep = StepValidateTarget
	x.emitStep(ctx, models.EventLevelInfo, models.EventTypeStepStarted, StepValidateTarget, "Validating target address", nil)
	if _, ok := models.NormalizeTokenAddress(addr); !ok {
		return &runFailure{stepKey: StepValidateTarget, message: "Invalid token address: " + addr}
	}
	x.emitStep(ctx, models.EventLevelSuccess, models.EventTypeStepCompleted, StepValidateTarget, "Target address validated", nil)

	plan := x.buildPlan(ctx, addr)

	for _, step := range plan.Steps {
		if err := x.runStep(ctx, addr, step); err != nil {
			return err
		}
	}

	return x.assess(ctx, addr, start)
}

// buildPlan runs the agent_plan step: ask the planner, fall back to the
// baseline on any failure, and merge. The merged plan always starts with
// the baseline so derived steps see their prerequisites.
func (x *run) buildPlan(ctx context.Context, addr string) models.Plan {
	x.currentStep = StepAgentPlan
	x.emitStep(ctx, models.EventLevelInfo, models.EventTypeStepStarted, StepAgentPlan, "Planning scan steps", nil)

	baseline := BaselinePlan(x.runner.registry)

	if x.runner.planner == nil {
		x.emitStep(ctx, models.EventLevelWarning, models.EventTypeArtifactPlan, StepAgentPlan,
			"No planner configured; using the baseline plan", map[string]any{"plan": baseline, "fallback": true})
		x.emitStep(ctx, models.EventLevelWarning, models.EventTypeStepCompleted, StepAgentPlan, "Plan ready (baseline)", nil)
		return baseline
	}

	proposed, err := x.runner.planner.BuildPlan(ctx, addr, x.availableTools())
	if err != nil {
		x.emitStep(ctx, models.EventLevelWarning, models.EventTypeLogLine, StepAgentPlan,
			"Planner unavailable: "+err.Error(), nil)
		x.emitStep(ctx, models.EventLevelWarning, models.EventTypeArtifactPlan, StepAgentPlan,
			"Falling back to the baseline plan", map[string]any{"plan": baseline, "fallback": true})
		x.emitStep(ctx, models.EventLevelWarning, models.EventTypeStepCompleted, StepAgentPlan, "Plan ready (baseline)", nil)
		return baseline
	}

	merged := MergePlan(baseline, proposed, x.runner.registry)
	x.emitStep(ctx, models.EventLevelInfo, models.EventTypeArtifactPlan, StepAgentPlan,
		"Plan proposed by the model", map[string]any{"plan": merged, "fallback": false})
	x.emitStep(ctx, models.EventLevelSuccess, models.EventTypeStepCompleted, StepAgentPlan, "Plan ready", nil)
	return merged
}

func (x *run) runStep(ctx context.Context, addr string, step models.PlannedStep) error {
	x.currentStep = step.StepKey
	x.emitStep(ctx, models.EventLevelInfo, models.EventTypeStepStarted, step.StepKey, step.Title,
		map[string]any{"tool": step.Tool, "reason": step.Reason})

	item := x.runner.registry.Execute(ctx, step.Tool, addr, x.ledger)
	x.ledger.Append(item)

	itemLevel := models.EventLevelInfo
	if item.Status == models.EvidenceStatusUnavailable {
		itemLevel = models.EventLevelWarning
	}
	x.emitStep(ctx, itemLevel, models.EventTypeEvidenceItem, step.StepKey, item.Title, item)
	x.emitStep(ctx, models.EventLevelInfo, models.EventTypeLogLine, step.StepKey,
		fmt.Sprintf("%s -> %s", step.Tool, item.Status), nil)

	if step.Tool == tools.ToolBytecode && item.Status == models.EvidenceStatusOK {
		var data tools.BytecodeData
		if err := json.Unmarshal(item.Data, &data); err == nil && !data.HasCode {
			x.emitStep(ctx, models.EventLevelError, models.EventTypeStepFailed, step.StepKey, notAContractMessage, nil)
			return &runFailure{stepKey: step.StepKey, message: notAContractMessage, emitted: true}
		}
	}

	if item.Status == models.EvidenceStatusUnavailable {
		x.emitStep(ctx, models.EventLevelWarning, models.EventTypeStepCompleted, step.StepKey,
			step.Title+" (data unavailable)", nil)
	} else {
		x.emitStep(ctx, models.EventLevelSuccess, models.EventTypeStepCompleted, step.StepKey, step.Title, nil)
	}
	return nil
}

// assess runs the agent_assessment step and persists the terminal complete
// state. Persistence happens before assessment.final and run.completed.
func (x *run) assess(ctx context.Context, addr string, start time.Time) error {
	x.currentStep = StepAssessment
	x.emitStep(ctx, models.EventLevelInfo, models.EventTypeStepStarted, StepAssessment, "Producing risk assessment", nil)

	var assessment models.Assessment
	modelID := ""
	if x.runner.assessor != nil {
		produced, model, err := x.runner.assessor.Assess(ctx, addr, x.ledger)
		if err != nil {
			x.emitStep(ctx, models.EventLevelWarning, models.EventTypeLogLine, StepAssessment,
				"Assessor unavailable: "+err.Error(), nil)
			assessment = FallbackAssessment(x.ledger)
		} else {
			assessment = produced
			modelID = model
		}
	} else {
		assessment = FallbackAssessment(x.ledger)
	}

	evidenceJSON, err := json.Marshal(x.ledger)
	if err != nil {
		return &runFailure{stepKey: StepAssessment, message: "evidence ledger could not be encoded: " + err.Error()}
	}
	assessmentJSON, err := json.Marshal(assessment)
	if err != nil {
		return &runFailure{stepKey: StepAssessment, message: "assessment could not be encoded: " + err.Error()}
	}

	durationMs := time.Since(start).Milliseconds()
	if err := x.runner.scans.Complete(ctx, x.scan.ID, durationMs, evidenceJSON, assessmentJSON,
		assessment.Summary, modelID); err != nil {
		return &runFailure{stepKey: StepAssessment, message: "failed to persist scan: " + err.Error()}
	}

	x.emitStep(ctx, models.EventLevelSuccess, models.EventTypeAssessmentFinal, StepAssessment,
		"Assessment ready", assessment)
	x.emitStep(ctx, models.EventLevelSuccess, models.EventTypeStepCompleted, StepAssessment,
		"Risk assessment produced", nil)
	x.emit(ctx, models.EventLevelSuccess, models.EventTypeRunCompleted, nil,
		"Scan completed", map[string]any{
			"durationMs":   durationMs,
			"overallScore": assessment.OverallScore,
			"riskLevel":    assessment.RiskLevel,
		})
	return nil
}

// fail persists the failed state with the partial ledger, then emits the
// closing events. Persist-then-emit: subscribers that see run.failed can
// trust the row is terminal.
func (x *run) fail(ctx context.Context, start time.Time, failure *runFailure) {
	evidenceJSON, err := json.Marshal(x.ledger)
	if err != nil {
		evidenceJSON = nil
	}
	durationMs := time.Since(start).Milliseconds()
	if err := x.runner.scans.Fail(ctx, x.scan.ID, durationMs, evidenceJSON, failure.message); err != nil {
		x.runner.logger.Error("failed to persist failed scan",
			"scan_id", x.scan.ID, "error", err)
	}

	if !failure.emitted {
		x.emitStep(ctx, models.EventLevelError, models.EventTypeStepFailed, failure.stepKey, failure.message, nil)
	}
	x.emit(ctx, models.EventLevelError, models.EventTypeRunFailed, nil,
		"Scan failed: "+failure.message, map[string]any{"error": failure.message})
}

func (x *run) availableTools() []string {
	var available []string
	for _, tool := range tools.AllTools() {
		if x.runner.registry.Has(tool) {
			available = append(available, tool)
		}
	}
	return available
}

func (x *run) emitStep(ctx context.Context, level models.EventLevel, eventType, stepKey, message string, payload any) {
	x.emit(ctx, level, eventType, &stepKey, message, payload)
}

// emit appends one event. Append failures are logged, not fatal: losing a
// timeline entry must not kill a run that is otherwise progressing.
func (x *run) emit(ctx context.Context, level models.EventLevel, eventType string, stepKey *string, message string, payload any) {
	var raw json.RawMessage
	if payload != nil {
		encoded, err := json.Marshal(payload)
		if err != nil {
			x.runner.logger.Error("failed to encode event payload",
				"scan_id", x.scan.ID, "type", eventType, "error", err)
		} else {
			raw = encoded
		}
	}
	if _, err := x.runner.events.Append(ctx, x.scan.ID, level, eventType, stepKey, message, raw); err != nil {
		x.runner.logger.Error("failed to append event",
			"scan_id", x.scan.ID, "type", eventType, "error", err)
	}
}
