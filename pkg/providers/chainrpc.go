// Package providers contains the typed adapters over the external data
// sources: chain JSON-RPC, block-explorer REST, DEX aggregator REST, honeypot
// simulation REST, and the indexed-holder GraphQL dataset.
//
// Every client returns a result value instead of an error for upstream
// failures: non-2xx responses, timeouts, and parse failures surface as an
// Error string on the result, together with the exact SourceURL attempted.
// Responses are never cached and secrets are never logged.
package providers

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/rpc"
)

// RPCTimeout is the per-call budget for chain JSON-RPC requests.
const RPCTimeout = 10 * time.Second

// ChainClient is a thin wrapper over the go-ethereum JSON-RPC 2.0 client.
// Only eth_getCode and eth_call are used.
type ChainClient struct {
	rpc *rpc.Client
	url string
}

// NewChainClient dials the chain RPC endpoint. Dialing is lazy for HTTP
// transports; connectivity errors surface on the first call.
func NewChainClient(url string) (*ChainClient, error) {
	client, err := rpc.Dial(url)
	if err != nil {
		return nil, fmt.Errorf("failed to dial chain rpc: %w", err)
	}
	return &ChainClient{rpc: client, url: url}, nil
}

// URL returns the endpoint used for sourceUrl fields.
func (c *ChainClient) URL() string { return c.url }

// Close releases the underlying client.
func (c *ChainClient) Close() { c.rpc.Close() }

// RPCResult is the outcome of a single JSON-RPC call.
type RPCResult struct {
	SourceURL string
	Result    string // 0x-prefixed hex
	Error     string
}

// GetCode runs eth_getCode for the address at the latest block.
func (c *ChainClient) GetCode(ctx context.Context, address string) RPCResult {
	return c.call(ctx, "eth_getCode", address, "latest")
}

// Call runs eth_call with the given to address and calldata at the latest block.
func (c *ChainClient) Call(ctx context.Context, to, data string) RPCResult {
	arg := map[string]string{"to": to, "data": data}
	return c.call(ctx, "eth_call", arg, "latest")
}

func (c *ChainClient) call(ctx context.Context, method string, args ...any) RPCResult {
	ctx, cancel := context.WithTimeout(ctx, RPCTimeout)
	defer cancel()

	out := RPCResult{SourceURL: c.url}

	var result string
	if err := c.rpc.CallContext(ctx, &result, method, args...); err != nil {
		out.Error = formatRPCError(err)
		return out
	}
	out.Result = result
	return out
}

// formatRPCError renders upstream JSON-RPC errors as
// "Chain RPC error (code): message"; transport errors pass through.
func formatRPCError(err error) string {
	var rpcErr rpc.Error
	if errors.As(err, &rpcErr) {
		return fmt.Sprintf("Chain RPC error (%d): %s", rpcErr.ErrorCode(), rpcErr.Error())
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return fmt.Sprintf("Chain RPC timeout after %s", RPCTimeout)
	}
	return "Chain RPC request failed: " + err.Error()
}

// IsHexBlob reports whether s is a 0x-prefixed hex string with at least
// minHexChars hex characters after the prefix.
func IsHexBlob(s string, minHexChars int) bool {
	if !strings.HasPrefix(s, "0x") {
		return false
	}
	return len(s)-2 >= minHexChars
}
