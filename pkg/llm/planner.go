package llm

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/tokenscope/tokenscope/pkg/models"
)

const plannerSystemPrompt = `You are a token risk scan planner. Given a token address on Base, propose an ordered list of evidence-gathering steps from the allowed tool set. Respond with a JSON object {"steps":[{"stepKey","tool","title","reason"}]} and nothing else. Every tool must come from the allowed set; give each step a short reason.`

// Planner asks the model for an ordered tool plan.
type Planner struct {
	client   *Client
	primary  string
	fallback string
}

// NewPlanner builds a planner over the given client and model ids.
func NewPlanner(client *Client, primaryModel, fallbackModel string) *Planner {
	return &Planner{client: client, primary: primaryModel, fallback: fallbackModel}
}

// BuildPlan requests a plan restricted to the allowed tools. On a no-output
// failure with a distinct fallback model it retries once with the fallback.
// All other failures return an error; the runner substitutes its baseline.
func (p *Planner) BuildPlan(ctx context.Context, tokenAddress string, allowedTools []string) (models.Plan, error) {
	if len(allowedTools) == 0 {
		return models.Plan{}, fmt.Errorf("no tools available for planning")
	}

	user := fmt.Sprintf("Token address: %s\nAllowed tools: %s", tokenAddress, strings.Join(allowedTools, ", "))

	plan, err := p.buildWithModel(ctx, p.primary, user, allowedTools)
	if err != nil && IsNoOutput(err) && p.fallback != "" && p.fallback != p.primary {
		plan, err = p.buildWithModel(ctx, p.fallback, user, allowedTools)
	}
	return plan, err
}

func (p *Planner) buildWithModel(ctx context.Context, model, user string, allowedTools []string) (models.Plan, error) {
	content, err := p.client.Complete(ctx, model, plannerSystemPrompt, user)
	if err != nil {
		return models.Plan{}, err
	}

	raw := []byte(extractJSON(content))
	if err := validateJSON(planSchemaDoc(allowedTools), raw); err != nil {
		return models.Plan{}, fmt.Errorf("planner output rejected by schema: %w", err)
	}

	var plan models.Plan
	if err := json.Unmarshal(raw, &plan); err != nil {
		return models.Plan{}, fmt.Errorf("planner output could not be decoded: %w", err)
	}
	return plan, nil
}
