package providers

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// ExplorerTimeout is the per-call budget for block-explorer requests.
const ExplorerTimeout = 10 * time.Second

// ExplorerClient talks to an Etherscan-style v2 API pinned to one chain id.
type ExplorerClient struct {
	httpClient *http.Client
	baseURL    string
	apiKey     string
	chainID    int
}

// NewExplorerClient creates a block-explorer client. The API key is appended
// to every request and never logged.
func NewExplorerClient(baseURL, apiKey string, chainID int) *ExplorerClient {
	return &ExplorerClient{
		httpClient: &http.Client{},
		baseURL:    strings.TrimRight(baseURL, "/"),
		apiKey:     apiKey,
		chainID:    chainID,
	}
}

// explorerEnvelope is the fixed response envelope of the v2 API. A status of
// "0" with a string result carries the upstream error message.
type explorerEnvelope struct {
	Status  string          `json:"status"`
	Message string          `json:"message"`
	Result  json.RawMessage `json:"result"`
}

// SourceInfoResult carries verified-source metadata for a contract.
type SourceInfoResult struct {
	SourceURL             string
	IsVerified            bool
	ContractName          string
	CompilerVersion       string
	ABI                   string // raw JSON ABI, empty when unverified
	IsProxy               bool
	ImplementationAddress string
	Error                 string
}

type sourceCodeRow struct {
	SourceCode      string `json:"SourceCode"`
	ABI             string `json:"ABI"`
	ContractName    string `json:"ContractName"`
	CompilerVersion string `json:"CompilerVersion"`
	Proxy           string `json:"Proxy"`
	Implementation  string `json:"Implementation"`
}

// GetSourceInfo fetches source code, ABI, and proxy metadata.
func (c *ExplorerClient) GetSourceInfo(ctx context.Context, address string) SourceInfoResult {
	reqURL := c.buildURL("contract", "getsourcecode", address)
	out := SourceInfoResult{SourceURL: redactKey(reqURL)}

	result, errMsg := c.fetch(ctx, reqURL)
	if errMsg != "" {
		out.Error = errMsg
		return out
	}

	var rows []sourceCodeRow
	if err := json.Unmarshal(result, &rows); err != nil {
		out.Error = "Explorer returned an unexpected source payload: " + err.Error()
		return out
	}
	if len(rows) == 0 {
		out.Error = "Explorer returned no source rows"
		return out
	}

	row := rows[0]
	out.ContractName = row.ContractName
	out.CompilerVersion = row.CompilerVersion
	out.IsVerified = row.ABI != "" && row.ABI != "Contract source code not verified"
	if out.IsVerified {
		out.ABI = row.ABI
	}
	out.IsProxy = row.Proxy == "1"
	out.ImplementationAddress = strings.ToLower(row.Implementation)
	return out
}

// ContractCreationResult carries the deployer and creation transaction.
type ContractCreationResult struct {
	SourceURL       string
	DeployerAddress string
	TxHash          string
	Error           string
}

type contractCreationRow struct {
	ContractCreator string `json:"contractCreator"`
	TxHash          string `json:"txHash"`
}

// GetContractCreation fetches the contract-creation row for the address.
func (c *ExplorerClient) GetContractCreation(ctx context.Context, address string) ContractCreationResult {
	reqURL := c.buildURL("contract", "getcontractcreation", address)
	out := ContractCreationResult{SourceURL: redactKey(reqURL)}

	result, errMsg := c.fetch(ctx, reqURL)
	if errMsg != "" {
		out.Error = errMsg
		return out
	}

	var rows []contractCreationRow
	if err := json.Unmarshal(result, &rows); err != nil {
		out.Error = "Explorer returned an unexpected creation payload: " + err.Error()
		return out
	}
	if len(rows) == 0 {
		out.Error = "Explorer returned no creation row"
		return out
	}

	out.DeployerAddress = strings.ToLower(rows[0].ContractCreator)
	out.TxHash = rows[0].TxHash
	return out
}

// fetch performs the GET, decodes the envelope, and maps envelope-level
// errors ("0" status with string result) to an error message.
func (c *ExplorerClient) fetch(ctx context.Context, reqURL string) (json.RawMessage, string) {
	ctx, cancel := context.WithTimeout(ctx, ExplorerTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return nil, "Explorer request could not be created: " + err.Error()
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, "Explorer request failed: " + err.Error()
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Sprintf("Explorer returned HTTP %d", resp.StatusCode)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, "Explorer response could not be read: " + err.Error()
	}

	var envelope explorerEnvelope
	if err := json.Unmarshal(body, &envelope); err != nil {
		return nil, "Explorer returned invalid JSON: " + err.Error()
	}

	if envelope.Status == "0" {
		var upstreamMsg string
		if err := json.Unmarshal(envelope.Result, &upstreamMsg); err == nil && upstreamMsg != "" {
			return nil, "Explorer error: " + upstreamMsg
		}
		return nil, "Explorer error: " + envelope.Message
	}

	return envelope.Result, ""
}

func (c *ExplorerClient) buildURL(module, action, address string) string {
	values := url.Values{}
	values.Set("chainid", fmt.Sprintf("%d", c.chainID))
	values.Set("module", module)
	values.Set("action", action)
	values.Set("address", address)
	if c.apiKey != "" {
		values.Set("apikey", c.apiKey)
	}
	return c.baseURL + "?" + values.Encode()
}

// redactKey strips the apikey query parameter so source URLs are linkable
// without leaking credentials.
func redactKey(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil {
		return rawURL
	}
	q := u.Query()
	if q.Has("apikey") {
		q.Set("apikey", "REDACTED")
		u.RawQuery = q.Encode()
	}
	return u.String()
}
