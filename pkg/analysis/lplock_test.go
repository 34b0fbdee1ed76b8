package analysis

import (
	"context"
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tokenscope/tokenscope/pkg/providers"
)

// fakeCaller routes eth_call by calldata prefix.
type fakeCaller struct {
	responses map[string]string
	errs      map[string]string
}

func (f *fakeCaller) Call(_ context.Context, _ string, data string) providers.RPCResult {
	for prefix, errMsg := range f.errs {
		if strings.HasPrefix(data, prefix) {
			return providers.RPCResult{SourceURL: "http://rpc.test", Error: errMsg}
		}
	}
	for prefix, result := range f.responses {
		if strings.HasPrefix(data, prefix) {
			return providers.RPCResult{SourceURL: "http://rpc.test", Result: result}
		}
	}
	return providers.RPCResult{SourceURL: "http://rpc.test", Result: "0x"}
}

func uintWord(n int64) string {
	return fmt.Sprintf("0x%064x", n)
}

// reservesBlob is a valid-looking V2 getReserves() return: three words.
var reservesBlob = "0x" + strings.Repeat("0", 56) + "12345678" +
	strings.Repeat("0", 56) + "87654321" +
	strings.Repeat("0", 56) + "00000001"

const (
	pairAddr     = "0x1111111111111111111111111111111111111111"
	deployerAddr = "0x2222222222222222222222222222222222222222"
)

func TestAnalyzeLPLock(t *testing.T) {
	t.Run("burned supply means locked high confidence", func(t *testing.T) {
		caller := &fakeCaller{responses: map[string]string{
			SelectorGetReserves: reservesBlob,
			SelectorTotalSupply: uintWord(1000),
			EncodeBalanceOf(ZeroAddress):  uintWord(950),
			EncodeBalanceOf(DeadAddress):  uintWord(20),
			EncodeBalanceOf(deployerAddr): uintWord(0),
		}}

		status, err := AnalyzeLPLock(context.Background(), caller, pairAddr, deployerAddr)
		require.NoError(t, err)
		assert.True(t, status.IsV2Pair)
		assert.Equal(t, LockStatusLocked, status.Status)
		assert.Equal(t, ConfidenceHigh, status.Confidence)
		assert.InDelta(t, 97.0, status.BurnedPct, 0.0001)
		assert.Contains(t, status.Reason, "burned")
	})

	t.Run("deployer concentration means unlocked medium confidence", func(t *testing.T) {
		caller := &fakeCaller{responses: map[string]string{
			SelectorGetReserves: reservesBlob,
			SelectorTotalSupply: uintWord(1000),
			EncodeBalanceOf(ZeroAddress):  uintWord(0),
			EncodeBalanceOf(DeadAddress):  uintWord(0),
			EncodeBalanceOf(deployerAddr): uintWord(400),
		}}

		status, err := AnalyzeLPLock(context.Background(), caller, pairAddr, deployerAddr)
		require.NoError(t, err)
		assert.Equal(t, LockStatusUnlocked, status.Status)
		assert.Equal(t, ConfidenceMedium, status.Confidence)
		assert.InDelta(t, 40.0, status.DeployerPct, 0.0001)
	})

	t.Run("neither signal means unknown low confidence", func(t *testing.T) {
		caller := &fakeCaller{responses: map[string]string{
			SelectorGetReserves: reservesBlob,
			SelectorTotalSupply: uintWord(1000),
			EncodeBalanceOf(ZeroAddress):  uintWord(10),
			EncodeBalanceOf(DeadAddress):  uintWord(0),
			EncodeBalanceOf(deployerAddr): uintWord(50),
		}}

		status, err := AnalyzeLPLock(context.Background(), caller, pairAddr, deployerAddr)
		require.NoError(t, err)
		assert.Equal(t, LockStatusUnknown, status.Status)
		assert.Equal(t, ConfidenceLow, status.Confidence)
	})

	t.Run("non-v2 pair short-circuits", func(t *testing.T) {
		caller := &fakeCaller{responses: map[string]string{
			SelectorGetReserves: "0x1234",
		}}

		status, err := AnalyzeLPLock(context.Background(), caller, pairAddr, deployerAddr)
		require.NoError(t, err)
		assert.False(t, status.IsV2Pair)
		assert.Equal(t, LockStatusUnknown, status.Status)
	})

	t.Run("missing deployer still classifies burn", func(t *testing.T) {
		caller := &fakeCaller{responses: map[string]string{
			SelectorGetReserves: reservesBlob,
			SelectorTotalSupply: uintWord(100),
			EncodeBalanceOf(ZeroAddress): uintWord(96),
			EncodeBalanceOf(DeadAddress): uintWord(0),
		}}

		status, err := AnalyzeLPLock(context.Background(), caller, pairAddr, "")
		require.NoError(t, err)
		assert.Equal(t, LockStatusLocked, status.Status)
	})

	t.Run("rpc failure surfaces as error", func(t *testing.T) {
		caller := &fakeCaller{
			responses: map[string]string{SelectorGetReserves: reservesBlob},
			errs:      map[string]string{SelectorTotalSupply: "Chain RPC error (-32000): execution reverted"},
		}

		_, err := AnalyzeLPLock(context.Background(), caller, pairAddr, "")
		require.Error(t, err)
		assert.Contains(t, err.Error(), "totalSupply")
	})

	t.Run("zero lp supply is unknown", func(t *testing.T) {
		caller := &fakeCaller{responses: map[string]string{
			SelectorGetReserves: reservesBlob,
			SelectorTotalSupply: uintWord(0),
		}}

		status, err := AnalyzeLPLock(context.Background(), caller, pairAddr, "")
		require.NoError(t, err)
		assert.Equal(t, LockStatusUnknown, status.Status)
		assert.Contains(t, status.Reason, "zero LP supply")
	})
}
