package providers

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func dexServer(t *testing.T, handler http.HandlerFunc) *DexClient {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return NewDexClient(srv.URL, "base")
}

func TestGetTokenPairs(t *testing.T) {
	t.Run("parses and lowercases pairs", func(t *testing.T) {
		var gotPath string
		client := dexServer(t, func(w http.ResponseWriter, r *http.Request) {
			gotPath = r.URL.Path
			w.Write([]byte(`[{
				"pairAddress":"0xPAIR000000000000000000000000000000000001",
				"dexId":"uniswap",
				"url":"https://dexscreener.com/base/0xpair",
				"baseToken":{"address":"0xTOKEN00000000000000000000000000000000AA","name":"Pepe","symbol":"PEPE"},
				"quoteToken":{"address":"0x4200000000000000000000000000000000000006","name":"Wrapped Ether","symbol":"WETH"},
				"priceUsd":"0.0000012",
				"liquidity":{"usd":84211.5},
				"priceChange":{"h24":-3.4},
				"volume":{"h24":120034.2},
				"txns":{"h24":{"buys":210,"sells":190}},
				"pairCreatedAt":1718000000000
			}]`))
		})

		result := client.GetTokenPairs(context.Background(), testAddress)
		require.Empty(t, result.Error)
		assert.Equal(t, "/token-pairs/v1/base/"+testAddress, gotPath)

		require.Len(t, result.Pairs, 1)
		pair := result.Pairs[0]
		assert.Equal(t, "0xpair000000000000000000000000000000000001", pair.PairAddress)
		assert.Equal(t, "0xtoken00000000000000000000000000000000aa", pair.BaseToken.Address)
		assert.Equal(t, "uniswap", pair.DexID)
		assert.Equal(t, 84211.5, pair.Liquidity.Usd)
		assert.Equal(t, -3.4, pair.PriceChange.H24)
		assert.Equal(t, 210, pair.Txns.H24.Buys)
	})

	t.Run("empty pair list", func(t *testing.T) {
		client := dexServer(t, func(w http.ResponseWriter, _ *http.Request) {
			w.Write([]byte(`[]`))
		})

		result := client.GetTokenPairs(context.Background(), testAddress)
		assert.Empty(t, result.Error)
		assert.Empty(t, result.Pairs)
	})

	t.Run("upstream failure", func(t *testing.T) {
		client := dexServer(t, func(w http.ResponseWriter, _ *http.Request) {
			w.WriteHeader(http.StatusTooManyRequests)
		})

		result := client.GetTokenPairs(context.Background(), testAddress)
		assert.Equal(t, "DEX aggregator returned HTTP 429", result.Error)
	})

	t.Run("invalid JSON", func(t *testing.T) {
		client := dexServer(t, func(w http.ResponseWriter, _ *http.Request) {
			w.Write([]byte(`{"not":"an array"}`))
		})

		result := client.GetTokenPairs(context.Background(), testAddress)
		assert.Contains(t, result.Error, "invalid JSON")
	})
}
