package providers

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testAddress = "0xf43eb8de897fbc7f2502483b2bef7bb9ea179229"

func explorerServer(t *testing.T, handler http.HandlerFunc) (*httptest.Server, *ExplorerClient) {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return srv, NewExplorerClient(srv.URL, "secret-key", 8453)
}

func TestGetSourceInfo(t *testing.T) {
	t.Run("verified contract", func(t *testing.T) {
		var gotQuery map[string]string
		_, client := explorerServer(t, func(w http.ResponseWriter, r *http.Request) {
			gotQuery = map[string]string{
				"chainid": r.URL.Query().Get("chainid"),
				"module":  r.URL.Query().Get("module"),
				"action":  r.URL.Query().Get("action"),
				"apikey":  r.URL.Query().Get("apikey"),
			}
			w.Write([]byte(`{"status":"1","message":"OK","result":[{
				"SourceCode":"contract Pepe {}",
				"ABI":"[{\"type\":\"function\",\"name\":\"transfer\"}]",
				"ContractName":"Pepe",
				"CompilerVersion":"v0.8.19",
				"Proxy":"1",
				"Implementation":"0xABCDEF0000000000000000000000000000000001"
			}]}`))
		})

		result := client.GetSourceInfo(context.Background(), testAddress)
		require.Empty(t, result.Error)

		assert.Equal(t, "8453", gotQuery["chainid"])
		assert.Equal(t, "contract", gotQuery["module"])
		assert.Equal(t, "getsourcecode", gotQuery["action"])
		assert.Equal(t, "secret-key", gotQuery["apikey"])

		assert.True(t, result.IsVerified)
		assert.Equal(t, "Pepe", result.ContractName)
		assert.Equal(t, "v0.8.19", result.CompilerVersion)
		assert.True(t, result.IsProxy)
		assert.Equal(t, "0xabcdef0000000000000000000000000000000001", result.ImplementationAddress)
		assert.Contains(t, result.ABI, "transfer")

		// The API key never appears in the recorded source URL.
		assert.NotContains(t, result.SourceURL, "secret-key")
		assert.Contains(t, result.SourceURL, "apikey=REDACTED")
	})

	t.Run("unverified contract", func(t *testing.T) {
		_, client := explorerServer(t, func(w http.ResponseWriter, _ *http.Request) {
			w.Write([]byte(`{"status":"1","message":"OK","result":[{
				"ABI":"Contract source code not verified",
				"ContractName":"","Proxy":"0","Implementation":""
			}]}`))
		})

		result := client.GetSourceInfo(context.Background(), testAddress)
		require.Empty(t, result.Error)
		assert.False(t, result.IsVerified)
		assert.Empty(t, result.ABI)
		assert.False(t, result.IsProxy)
	})

	t.Run("envelope error carries the upstream message", func(t *testing.T) {
		_, client := explorerServer(t, func(w http.ResponseWriter, _ *http.Request) {
			w.Write([]byte(`{"status":"0","message":"NOTOK","result":"Max rate limit reached"}`))
		})

		result := client.GetSourceInfo(context.Background(), testAddress)
		assert.Equal(t, "Explorer error: Max rate limit reached", result.Error)
	})

	t.Run("non-200 response", func(t *testing.T) {
		_, client := explorerServer(t, func(w http.ResponseWriter, _ *http.Request) {
			w.WriteHeader(http.StatusBadGateway)
		})

		result := client.GetSourceInfo(context.Background(), testAddress)
		assert.Equal(t, "Explorer returned HTTP 502", result.Error)
	})

	t.Run("invalid JSON", func(t *testing.T) {
		_, client := explorerServer(t, func(w http.ResponseWriter, _ *http.Request) {
			w.Write([]byte(`not json`))
		})

		result := client.GetSourceInfo(context.Background(), testAddress)
		assert.Contains(t, result.Error, "Explorer returned invalid JSON")
	})
}

func TestGetContractCreation(t *testing.T) {
	t.Run("deployer and tx hash", func(t *testing.T) {
		_, client := explorerServer(t, func(w http.ResponseWriter, _ *http.Request) {
			w.Write([]byte(`{"status":"1","message":"OK","result":[{
				"contractCreator":"0xDEAD00000000000000000000000000000000BEEF",
				"txHash":"0xabc123"
			}]}`))
		})

		result := client.GetContractCreation(context.Background(), testAddress)
		require.Empty(t, result.Error)
		assert.Equal(t, "0xdead00000000000000000000000000000000beef", result.DeployerAddress)
		assert.Equal(t, "0xabc123", result.TxHash)
	})

	t.Run("empty result set", func(t *testing.T) {
		_, client := explorerServer(t, func(w http.ResponseWriter, _ *http.Request) {
			w.Write([]byte(`{"status":"1","message":"OK","result":[]}`))
		})

		result := client.GetContractCreation(context.Background(), testAddress)
		assert.Equal(t, "Explorer returned no creation row", result.Error)
	})
}
