package analysis

import (
	"context"
	"fmt"
	"math/big"

	"github.com/tokenscope/tokenscope/pkg/providers"
)

// ContractCaller is the subset of the chain client the analyzers need.
type ContractCaller interface {
	Call(ctx context.Context, to, data string) providers.RPCResult
}

// LP lock classifications.
const (
	LockStatusLocked   = "locked"
	LockStatusUnlocked = "unlocked"
	LockStatusUnknown  = "unknown"
)

// Confidence labels shared by the analyzers.
const (
	ConfidenceHigh   = "high"
	ConfidenceMedium = "medium"
	ConfidenceLow    = "low"
)

// Thresholds for the LP lock classification, in percent.
const (
	burnedLockedThreshold     = 95
	deployerUnlockedThreshold = 20
)

// minReservesHexChars is the minimum hex payload of a V2 getReserves()
// return: three words (reserve0, reserve1, blockTimestampLast) plus margin.
const minReservesHexChars = 194 - 2

// LPLockStatus is the inferred liquidity lock state of a pair.
type LPLockStatus struct {
	PairAddress string  `json:"pairAddress"`
	IsV2Pair    bool    `json:"isV2Pair"`
	BurnedPct   float64 `json:"burnedPct"`
	DeployerPct float64 `json:"deployerPct"`
	Status      string  `json:"status"`
	Confidence  string  `json:"confidence"`
	Reason      string  `json:"reason"`
}

// AnalyzeLPLock probes the pair for V2-style reserves and classifies the LP
// token distribution: supply burned to the zero/dead sinks means liquidity
// cannot be withdrawn; a large deployer balance means it can.
// deployerAddress may be empty when the creation lookup was unavailable.
func AnalyzeLPLock(ctx context.Context, caller ContractCaller, pairAddress, deployerAddress string) (LPLockStatus, error) {
	status := LPLockStatus{
		PairAddress: pairAddress,
		Status:      LockStatusUnknown,
		Confidence:  ConfidenceLow,
	}

	reserves := caller.Call(ctx, pairAddress, SelectorGetReserves)
	if reserves.Error != "" {
		return status, fmt.Errorf("getReserves probe failed: %s", reserves.Error)
	}
	if !providers.IsHexBlob(reserves.Result, minReservesHexChars) {
		status.Reason = "Pair does not respond like a V2 pool; lock status cannot be inferred"
		return status, nil
	}
	status.IsV2Pair = true

	totalSupply, err := callUint(ctx, caller, pairAddress, SelectorTotalSupply)
	if err != nil {
		return status, fmt.Errorf("totalSupply call failed: %w", err)
	}
	if totalSupply.Sign() == 0 {
		status.Reason = "Pair reports zero LP supply; lock status cannot be inferred"
		return status, nil
	}

	zeroBalance, err := callUint(ctx, caller, pairAddress, EncodeBalanceOf(ZeroAddress))
	if err != nil {
		return status, fmt.Errorf("balanceOf(zero) call failed: %w", err)
	}
	deadBalance, err := callUint(ctx, caller, pairAddress, EncodeBalanceOf(DeadAddress))
	if err != nil {
		return status, fmt.Errorf("balanceOf(dead) call failed: %w", err)
	}

	burned := new(big.Int).Add(zeroBalance, deadBalance)
	if pct, ok := RatioPct(burned, totalSupply); ok {
		status.BurnedPct = pct
	}

	if deployerAddress != "" {
		deployerBalance, err := callUint(ctx, caller, pairAddress, EncodeBalanceOf(deployerAddress))
		if err != nil {
			return status, fmt.Errorf("balanceOf(deployer) call failed: %w", err)
		}
		if pct, ok := RatioPct(deployerBalance, totalSupply); ok {
			status.DeployerPct = pct
		}
	}

	switch {
	case status.BurnedPct >= burnedLockedThreshold:
		status.Status = LockStatusLocked
		status.Confidence = ConfidenceHigh
		status.Reason = fmt.Sprintf("%.2f%% of LP supply is burned to the zero/dead addresses", status.BurnedPct)
	case deployerAddress != "" && status.DeployerPct >= deployerUnlockedThreshold:
		status.Status = LockStatusUnlocked
		status.Confidence = ConfidenceMedium
		status.Reason = fmt.Sprintf("Deployer still holds %.2f%% of LP supply", status.DeployerPct)
	default:
		status.Status = LockStatusUnknown
		status.Confidence = ConfidenceLow
		status.Reason = "LP supply is neither burned nor concentrated with the deployer; the lock may sit with a locker contract"
	}

	return status, nil
}

func callUint(ctx context.Context, caller ContractCaller, to, data string) (*big.Int, error) {
	result := caller.Call(ctx, to, data)
	if result.Error != "" {
		return nil, fmt.Errorf("%s", result.Error)
	}
	return DecodeUint256(result.Result)
}
