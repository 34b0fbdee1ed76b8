package pipeline

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tokenscope/tokenscope/pkg/models"
	"github.com/tokenscope/tokenscope/pkg/tools"
)

const testToken = "0xf43eb8de897fbc7f2502483b2bef7bb9ea179229"

type fakeStore struct {
	claimErr error

	completed    bool
	failed       bool
	narrative    string
	modelID      string
	assessment   json.RawMessage
	evidence     json.RawMessage
	failMsg      string
	eventsAtFail int
	events       *fakeEvents
}

func (s *fakeStore) Claim(_ context.Context, id string) (*models.Scan, error) {
	if s.claimErr != nil {
		return nil, s.claimErr
	}
	return &models.Scan{
		ID:             id,
		Chain:          "base",
		TokenAddress:   testToken,
		Status:         models.ScanStatusRunning,
		ScannerVersion: "0.4.2",
	}, nil
}

func (s *fakeStore) Complete(_ context.Context, _ string, _ int64, evidence, assessment json.RawMessage, narrative, modelID string) error {
	s.completed = true
	s.evidence = evidence
	s.assessment = assessment
	s.narrative = narrative
	s.modelID = modelID
	return nil
}

func (s *fakeStore) Fail(_ context.Context, _ string, _ int64, evidence json.RawMessage, errMsg string) error {
	s.failed = true
	s.evidence = evidence
	s.failMsg = errMsg
	if s.events != nil {
		s.eventsAtFail = len(s.events.events)
	}
	return nil
}

type fakeEvents struct {
	events []models.ScanEvent
}

func (e *fakeEvents) Append(_ context.Context, scanID string, level models.EventLevel,
	eventType string, stepKey *string, message string, payload json.RawMessage) (*models.ScanEvent, error) {

	event := models.ScanEvent{
		ID:      int64(len(e.events) + 1),
		ScanID:  scanID,
		Seq:     len(e.events) + 1,
		TS:      time.Now(),
		Level:   level,
		Type:    eventType,
		StepKey: stepKey,
		Message: message,
		Payload: payload,
	}
	e.events = append(e.events, event)
	return &event, nil
}

func (e *fakeEvents) ofType(eventType string) []models.ScanEvent {
	var out []models.ScanEvent
	for _, ev := range e.events {
		if ev.Type == eventType {
			out = append(out, ev)
		}
	}
	return out
}

// fakeRegistry serves canned items per tool and records execution order.
type fakeRegistry struct {
	avail    toolSet
	items    map[string]models.EvidenceItem
	executed []string
}

func (r *fakeRegistry) Has(tool string) bool { return r.avail[tool] }

func (r *fakeRegistry) Execute(_ context.Context, tool, _ string, _ *models.EvidenceLedger) models.EvidenceItem {
	r.executed = append(r.executed, tool)
	if item, ok := r.items[tool]; ok {
		return item
	}
	return okToolItem(tool, map[string]any{"hasCode": true})
}

func okToolItem(tool string, data any) models.EvidenceItem {
	payload, _ := json.Marshal(data)
	return models.EvidenceItem{
		ID:     fmt.Sprintf("ev_%s_00000001", tool),
		Tool:   tool,
		Title:  tool,
		Status: models.EvidenceStatusOK,
		Data:   payload,
	}
}

type fakePlanner struct {
	plan models.Plan
	err  error
}

func (p *fakePlanner) BuildPlan(_ context.Context, _ string, _ []string) (models.Plan, error) {
	return p.plan, p.err
}

type fakeAssessor struct {
	assessment models.Assessment
	modelID    string
	err        error
}

func (a *fakeAssessor) Assess(_ context.Context, _ string, ledger *models.EvidenceLedger) (models.Assessment, string, error) {
	if a.err != nil {
		return models.Assessment{}, "", a.err
	}
	out := a.assessment
	out.HydrateEmptyRefs(ledger.IDs())
	return out, a.modelID, nil
}

func validAssessment() models.Assessment {
	return models.Assessment{
		Summary:      "Low risk",
		OverallScore: 22,
		RiskLevel:    models.RiskLevelLow,
		Confidence:   models.ConfidenceHigh,
		CategoryScores: models.CategoryScores{
			ContractSecurity: 20, LiquiditySafety: 20, HolderHealth: 20,
			MarketActivity: 20, TransparencyTrust: 20,
		},
		Reasons: []models.Reason{{Title: "Liquidity locked", Detail: "97% burned"}},
	}
}

func newTestRunner(store *fakeStore, events *fakeEvents, registry *fakeRegistry,
	planner PlanBuilder, assessor AssessmentProducer) *Runner {

	store.events = events
	return NewRunner(store, events, registry, planner, assessor, slog.Default())
}

func TestRunnerHappyPath(t *testing.T) {
	store := &fakeStore{}
	events := &fakeEvents{}
	registry := &fakeRegistry{avail: coreTools()}
	runner := newTestRunner(store, events, registry,
		&fakePlanner{plan: models.Plan{Steps: []models.PlannedStep{}}},
		&fakeAssessor{assessment: validAssessment(), modelID: "llama-3.3-70b"})

	err := runner.Run(context.Background(), "scan-1")
	require.NoError(t, err)

	assert.True(t, store.completed)
	assert.False(t, store.failed)
	assert.Equal(t, "Low risk", store.narrative)
	assert.Equal(t, "llama-3.3-70b", store.modelID)

	// All five baseline tools ran in order.
	assert.Equal(t, []string{
		tools.ToolBytecode, tools.ToolErc20Metadata, tools.ToolDexPairs,
		tools.ToolHoneypot, tools.ToolLPLock,
	}, registry.executed)

	// The persisted ledger holds one item per executed tool.
	var ledger models.EvidenceLedger
	require.NoError(t, json.Unmarshal(store.evidence, &ledger))
	assert.Len(t, ledger.Items, 5)

	// Terminal closure: exactly one run.completed, and it is the last event.
	completed := events.ofType(models.EventTypeRunCompleted)
	require.Len(t, completed, 1)
	assert.Equal(t, completed[0].ID, events.events[len(events.events)-1].ID)
	assert.Empty(t, events.ofType(models.EventTypeRunFailed))

	// One evidence.item per tool plus the final assessment.
	assert.Len(t, events.ofType(models.EventTypeEvidenceItem), 5)
	assert.Len(t, events.ofType(models.EventTypeAssessmentFinal), 1)

	// First event is run.started.
	assert.Equal(t, models.EventTypeRunStarted, events.events[0].Type)
}

func TestRunnerNotAContract(t *testing.T) {
	store := &fakeStore{}
	events := &fakeEvents{}
	registry := &fakeRegistry{
		avail: coreTools(),
		items: map[string]models.EvidenceItem{
			tools.ToolBytecode: okToolItem(tools.ToolBytecode, map[string]any{"hasCode": false}),
		},
	}
	runner := newTestRunner(store, events, registry, nil, nil)

	err := runner.Run(context.Background(), "scan-2")
	require.Error(t, err)
	assert.Contains(t, err.Error(), notAContractMessage)

	assert.True(t, store.failed)
	assert.Equal(t, notAContractMessage, store.failMsg)

	// Only the bytecode step ran.
	assert.Equal(t, []string{tools.ToolBytecode}, registry.executed)

	// step.failed names the bytecode step; run.failed closes the timeline.
	stepFailed := events.ofType(models.EventTypeStepFailed)
	require.Len(t, stepFailed, 1)
	require.NotNil(t, stepFailed[0].StepKey)
	assert.Equal(t, StepBytecode, *stepFailed[0].StepKey)

	runFailed := events.ofType(models.EventTypeRunFailed)
	require.Len(t, runFailed, 1)
	assert.Equal(t, runFailed[0].ID, events.events[len(events.events)-1].ID)

	// Persist-then-emit: the scan row was failed before run.failed went out.
	assert.Equal(t, len(events.events)-1, store.eventsAtFail)

	// The partial ledger still carries the bytecode item.
	var ledger models.EvidenceLedger
	require.NoError(t, json.Unmarshal(store.evidence, &ledger))
	assert.Len(t, ledger.Items, 1)
}

func TestRunnerPlannerDown(t *testing.T) {
	store := &fakeStore{}
	events := &fakeEvents{}
	registry := &fakeRegistry{avail: coreTools()}
	runner := newTestRunner(store, events, registry,
		&fakePlanner{err: errors.New("No output generated")},
		&fakeAssessor{assessment: validAssessment(), modelID: "m"})

	err := runner.Run(context.Background(), "scan-3")
	require.NoError(t, err)

	// artifact.plan carries the fallback flag.
	plans := events.ofType(models.EventTypeArtifactPlan)
	require.Len(t, plans, 1)
	assert.Equal(t, models.EventLevelWarning, plans[0].Level)

	var payload struct {
		Fallback bool        `json:"fallback"`
		Plan     models.Plan `json:"plan"`
	}
	require.NoError(t, json.Unmarshal(plans[0].Payload, &payload))
	assert.True(t, payload.Fallback)
	assert.Len(t, payload.Plan.Steps, 5)

	// The merged plan equals the baseline for the configured providers.
	assert.Equal(t, []string{
		tools.ToolBytecode, tools.ToolErc20Metadata, tools.ToolDexPairs,
		tools.ToolHoneypot, tools.ToolLPLock,
	}, registry.executed)
	assert.True(t, store.completed)
}

func TestRunnerAssessorDown(t *testing.T) {
	store := &fakeStore{}
	events := &fakeEvents{}
	registry := &fakeRegistry{avail: coreTools()}
	runner := newTestRunner(store, events, registry, nil,
		&fakeAssessor{err: errors.New("No output generated")})

	err := runner.Run(context.Background(), "scan-4")
	require.NoError(t, err)
	assert.True(t, store.completed)

	// The deterministic fallback assessment was persisted and emitted.
	var assessment models.Assessment
	require.NoError(t, json.Unmarshal(store.assessment, &assessment))
	assert.Equal(t, 55, assessment.OverallScore)
	assert.Equal(t, models.RiskLevelMedium, assessment.RiskLevel)
	assert.Equal(t, models.ConfidenceLow, assessment.Confidence)
	assert.Empty(t, store.modelID)

	finals := events.ofType(models.EventTypeAssessmentFinal)
	require.Len(t, finals, 1)
	assert.Equal(t, models.EventLevelSuccess, finals[0].Level)
	require.Len(t, events.ofType(models.EventTypeRunCompleted), 1)
}

func TestRunnerClaimLost(t *testing.T) {
	claimErr := errors.New("scan is not claimable")
	store := &fakeStore{claimErr: claimErr}
	events := &fakeEvents{}
	runner := newTestRunner(store, events, &fakeRegistry{avail: coreTools()}, nil, nil)

	err := runner.Run(context.Background(), "scan-5")
	require.ErrorIs(t, err, claimErr)
	assert.Empty(t, events.events)
	assert.False(t, store.failed)
}

func TestRunnerPanicBecomesFailedRun(t *testing.T) {
	store := &fakeStore{}
	events := &fakeEvents{}
	registry := &fakeRegistry{avail: coreTools()}
	runner := newTestRunner(store, events, registry, nil, &panickyAssessor{})

	err := runner.Run(context.Background(), "scan-6")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unexpected failure")
	assert.True(t, store.failed)
	require.Len(t, events.ofType(models.EventTypeRunFailed), 1)
}

type panickyAssessor struct{}

func (p *panickyAssessor) Assess(context.Context, string, *models.EvidenceLedger) (models.Assessment, string, error) {
	panic("assessor blew up")
}
