package providers

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// HoldersTimeout is the per-date-attempt budget for holder queries.
const HoldersTimeout = 10 * time.Second

// Archive probe schedules: how many days back each attempt looks.
var (
	FastModeProbeDays = []int{1, 2, 7}
	FullModeProbeDays = []int{1, 2, 3, 7, 14, 30}
)

// Fetch methods reported on holder results. Supply percentages are only
// absolute for token_holders; balance_updates is a relative ranking.
const (
	FetchMethodTokenHolders   = "token_holders"
	FetchMethodBalanceUpdates = "balance_updates"
)

// HoldersClient queries a time-indexed holder dataset over GraphQL.
type HoldersClient struct {
	httpClient *http.Client
	endpoint   string
	token      string
	network    string
}

// NewHoldersClient creates an indexed-holders client. The bearer token is
// sent on every request and never logged.
func NewHoldersClient(endpoint, token, network string) *HoldersClient {
	return &HoldersClient{
		httpClient: &http.Client{},
		endpoint:   endpoint,
		token:      token,
		network:    network,
	}
}

// RawHolder is one holder row as returned by the dataset. Amount is a
// decimal string: integer token units from token_holders, or a pre-divided
// USD-weighted sum from balance_updates.
type RawHolder struct {
	Address string
	Amount  string
}

// HoldersResult is the outcome of a top-holders fetch.
type HoldersResult struct {
	SourceURL   string
	Holders     []RawHolder
	FetchMethod string
	DateUsed    string
	RateLimited bool
	Error       string
}

// FetchOptions tune the archive probing behavior.
type FetchOptions struct {
	Limit     int
	MinRows   int
	ProbeDays []int
	ProbeCap  int
}

// FetchTopHolders probes the archive dataset over a sequence of past days,
// stopping at the first date with at least MinRows rows. On a quota or
// rate-limit response (HTTP 402/429 or a quota-shaped GraphQL error) the
// fallback is NOT attempted and the result reports the failure. On other
// primary failures it falls back to a USD-weighted balance-updates ranking.
func (c *HoldersClient) FetchTopHolders(ctx context.Context, tokenAddress string, opts FetchOptions) HoldersResult {
	out := HoldersResult{SourceURL: c.endpoint}

	minRows := opts.MinRows
	if opts.Limit > 0 && opts.Limit < minRows {
		minRows = opts.Limit
	}

	probeDays := opts.ProbeDays
	if opts.ProbeCap > 0 && len(probeDays) > opts.ProbeCap {
		probeDays = probeDays[:opts.ProbeCap]
	}

	var lastErr string
	for _, daysBack := range probeDays {
		date := time.Now().AddDate(0, 0, -daysBack).Format("2006-01-02")
		holders, err := c.queryTokenHolders(ctx, tokenAddress, date, opts.Limit)
		if err != nil {
			if isQuotaError(err) {
				out.RateLimited = true
				out.Error = err.Error()
				return out
			}
			lastErr = err.Error()
			continue
		}
		if len(holders) >= minRows {
			out.Holders = holders
			out.FetchMethod = FetchMethodTokenHolders
			out.DateUsed = date
			return out
		}
	}

	// Archive probing exhausted; rank recent balance updates instead.
	holders, err := c.queryBalanceUpdates(ctx, tokenAddress, opts.Limit)
	if err != nil {
		if isQuotaError(err) {
			out.RateLimited = true
			out.Error = err.Error()
			return out
		}
		if lastErr != "" {
			out.Error = lastErr
		} else {
			out.Error = err.Error()
		}
		return out
	}
	if len(holders) == 0 {
		out.Error = "Holder dataset returned no rows"
		return out
	}

	out.Holders = holders
	out.FetchMethod = FetchMethodBalanceUpdates
	return out
}

const tokenHoldersQuery = `query ($date: String!, $token: String!, $limit: Int!) {
  EVM(dataset: archive, network: %s) {
    TokenHolders(
      date: $date
      tokenSmartContract: $token
      limit: {count: $limit}
      orderBy: {descending: Balance_Amount}
      where: {Balance: {Amount: {gt: "0"}}, Holder: {FirstDate: {is: $date}}}
    ) {
      Holder { Address }
      Balance { Amount }
    }
  }
}`

func (c *HoldersClient) queryTokenHolders(ctx context.Context, tokenAddress, date string, limit int) ([]RawHolder, error) {
	variables := map[string]any{"date": date, "token": tokenAddress, "limit": limit}
	data, err := c.execute(ctx, fmt.Sprintf(tokenHoldersQuery, c.network), variables)
	if err != nil {
		return nil, err
	}

	var parsed struct {
		EVM struct {
			TokenHolders []struct {
				Holder  struct{ Address string }
				Balance struct{ Amount string }
			}
		}
	}
	if err := json.Unmarshal(data, &parsed); err != nil {
		return nil, fmt.Errorf("holder dataset returned an unexpected shape: %w", err)
	}

	holders := make([]RawHolder, 0, len(parsed.EVM.TokenHolders))
	for _, row := range parsed.EVM.TokenHolders {
		holders = append(holders, RawHolder{
			Address: strings.ToLower(row.Holder.Address),
			Amount:  row.Balance.Amount,
		})
	}
	return holders, nil
}

const balanceUpdatesQuery = `query ($token: String!, $limit: Int!) {
  EVM(dataset: combined, network: %s) {
    BalanceUpdates(
      limit: {count: $limit}
      orderBy: {descendingByField: "usd"}
      where: {Currency: {SmartContract: {is: $token}}}
    ) {
      BalanceUpdate { Address }
      usd: sum(of: BalanceUpdate_AmountInUSD)
    }
  }
}`

func (c *HoldersClient) queryBalanceUpdates(ctx context.Context, tokenAddress string, limit int) ([]RawHolder, error) {
	variables := map[string]any{"token": tokenAddress, "limit": limit}
	data, err := c.execute(ctx, fmt.Sprintf(balanceUpdatesQuery, c.network), variables)
	if err != nil {
		return nil, err
	}

	var parsed struct {
		EVM struct {
			BalanceUpdates []struct {
				BalanceUpdate struct{ Address string }
				Usd           string `json:"usd"`
			}
		}
	}
	if err := json.Unmarshal(data, &parsed); err != nil {
		return nil, fmt.Errorf("holder dataset returned an unexpected shape: %w", err)
	}

	holders := make([]RawHolder, 0, len(parsed.EVM.BalanceUpdates))
	for _, row := range parsed.EVM.BalanceUpdates {
		holders = append(holders, RawHolder{
			Address: strings.ToLower(row.BalanceUpdate.Address),
			Amount:  row.Usd,
		})
	}
	return holders, nil
}

// graphQLError distinguishes quota failures so the caller can short-circuit.
type graphQLError struct {
	message string
	quota   bool
}

func (e *graphQLError) Error() string { return e.message }

func isQuotaError(err error) bool {
	gqlErr, ok := err.(*graphQLError)
	return ok && gqlErr.quota
}

func (c *HoldersClient) execute(ctx context.Context, query string, variables map[string]any) (json.RawMessage, error) {
	ctx, cancel := context.WithTimeout(ctx, HoldersTimeout)
	defer cancel()

	payload, err := json.Marshal(map[string]any{"query": query, "variables": variables})
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("holder request could not be created: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.token)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, &graphQLError{message: "Bitquery request failed: " + err.Error()}
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusPaymentRequired || resp.StatusCode == http.StatusTooManyRequests {
		return nil, &graphQLError{
			message: fmt.Sprintf("Bitquery request failed with %d", resp.StatusCode),
			quota:   true,
		}
	}
	if resp.StatusCode != http.StatusOK {
		return nil, &graphQLError{message: fmt.Sprintf("Bitquery returned HTTP %d", resp.StatusCode)}
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &graphQLError{message: "Bitquery response could not be read: " + err.Error()}
	}

	var envelope struct {
		Data   json.RawMessage `json:"data"`
		Errors []struct {
			Message string `json:"message"`
		} `json:"errors"`
	}
	if err := json.Unmarshal(body, &envelope); err != nil {
		return nil, &graphQLError{message: "Bitquery returned invalid JSON: " + err.Error()}
	}

	if len(envelope.Errors) > 0 {
		msg := envelope.Errors[0].Message
		return nil, &graphQLError{
			message: "Bitquery error: " + msg,
			quota:   isQuotaMessage(msg),
		}
	}

	return envelope.Data, nil
}

// isQuotaMessage detects quota-shaped GraphQL errors that must not trigger
// the fallback query.
func isQuotaMessage(msg string) bool {
	lower := strings.ToLower(msg)
	return strings.Contains(lower, "quota") ||
		strings.Contains(lower, "payment required") ||
		strings.Contains(lower, "rate limit") ||
		strings.Contains(lower, "429") ||
		strings.Contains(lower, "402")
}
