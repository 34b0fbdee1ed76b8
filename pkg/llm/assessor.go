package llm

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/tokenscope/tokenscope/pkg/models"
)

const assessorSystemPrompt = `You are a token risk assessor. You receive a token address on Base and the full evidence ledger collected for it. Produce a JSON risk assessment with: summary, overallScore (0-100, higher is riskier), riskLevel (low|medium|high|critical), confidence (low|medium|high), categoryScores (contractSecurity, liquiditySafety, holderHealth, marketActivity, transparencyTrust, each 0-100), reasons (each with title, detail, and evidenceRefs citing evidence item ids from the ledger), and missingData. Base every claim on the ledger; cite the supporting evidence ids. Respond with the JSON object and nothing else.`

// Assessor turns the evidence ledger into a structured assessment.
type Assessor struct {
	client   *Client
	primary  string
	fallback string
}

// NewAssessor builds an assessor over the given client and model ids.
func NewAssessor(client *Client, primaryModel, fallbackModel string) *Assessor {
	return &Assessor{client: client, primary: primaryModel, fallback: fallbackModel}
}

// attempt is one (model, payload) cell of the retry strategy table.
type attempt struct {
	model   string
	payload string
}

// Assess tries (primary,full), (primary,compact), (fallback,full),
// (fallback,compact) in order, advancing on no-output and citation failures.
// It returns the accepted assessment and the model id that produced it.
func (a *Assessor) Assess(ctx context.Context, tokenAddress string, ledger *models.EvidenceLedger) (models.Assessment, string, error) {
	fullPayload, err := json.Marshal(ledger)
	if err != nil {
		return models.Assessment{}, "", fmt.Errorf("evidence ledger could not be encoded: %w", err)
	}
	compactPayload, err := json.Marshal(compactLedger(ledger))
	if err != nil {
		return models.Assessment{}, "", fmt.Errorf("compact ledger could not be encoded: %w", err)
	}

	attempts := []attempt{
		{a.primary, string(fullPayload)},
		{a.primary, string(compactPayload)},
	}
	if a.fallback != "" && a.fallback != a.primary {
		attempts = append(attempts,
			attempt{a.fallback, string(fullPayload)},
			attempt{a.fallback, string(compactPayload)},
		)
	}

	schemaDoc, err := assessmentSchemaDoc()
	if err != nil {
		return models.Assessment{}, "", err
	}

	var lastErr error
	for _, try := range attempts {
		assessment, err := a.assessOnce(ctx, try.model, tokenAddress, try.payload, schemaDoc, ledger)
		if err == nil {
			return assessment, try.model, nil
		}

		var citationErr *models.CitationError
		if IsNoOutput(err) || errors.As(err, &citationErr) {
			lastErr = err
			continue
		}
		return models.Assessment{}, "", err
	}
	return models.Assessment{}, "", lastErr
}

func (a *Assessor) assessOnce(ctx context.Context, model, tokenAddress, payload string, schemaDoc any, ledger *models.EvidenceLedger) (models.Assessment, error) {
	user := fmt.Sprintf("Token address: %s\n\nEvidence ledger:\n%s", tokenAddress, payload)

	content, err := a.client.Complete(ctx, model, assessorSystemPrompt, user)
	if err != nil {
		return models.Assessment{}, err
	}

	raw := []byte(extractJSON(content))
	if err := validateJSON(schemaDoc, raw); err != nil {
		return models.Assessment{}, fmt.Errorf("assessor output rejected by schema: %w (%w)", err, ErrNoOutput)
	}

	var assessment models.Assessment
	if err := json.Unmarshal(raw, &assessment); err != nil {
		return models.Assessment{}, fmt.Errorf("assessor output could not be decoded: %w (%w)", err, ErrNoOutput)
	}

	assessment.HydrateEmptyRefs(ledger.IDs())
	if err := assessment.ValidateCitations(ledger); err != nil {
		return models.Assessment{}, err
	}
	return assessment, nil
}
