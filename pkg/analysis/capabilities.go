package analysis

import (
	"fmt"
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi"
)

// Capabilities flags risky functions inferred from a verified ABI.
type Capabilities struct {
	MintPossible     bool `json:"mintPossible"`
	CanBlacklist     bool `json:"canBlacklist"`
	CanPause         bool `json:"canPause"`
	CanSetFees       bool `json:"canSetFees"`
	HasTradingToggle bool `json:"hasTradingToggle"`
	UpgradeableProxy bool `json:"upgradeableProxy"`
}

// feeMarkers are the lowercase substrings that indicate fee/tax control.
var feeMarkers = []string{"setfee", "tax", "settax", "setbuy", "setsell"}

// tradingMarkers indicate a trading on/off switch.
var tradingMarkers = []string{"trading", "enabletrading", "disabletrading"}

// ScanCapabilities parses the raw JSON ABI and derives capability flags from
// the lowercased function names. upgradeableProxy comes from the explorer's
// proxy flag, not the ABI.
func ScanCapabilities(rawABI string, upgradeableProxy bool) (Capabilities, error) {
	caps := Capabilities{UpgradeableProxy: upgradeableProxy}

	parsed, err := abi.JSON(strings.NewReader(rawABI))
	if err != nil {
		return caps, fmt.Errorf("failed to parse ABI: %w", err)
	}

	for name := range parsed.Methods {
		lower := strings.ToLower(name)
		if strings.Contains(lower, "mint") {
			caps.MintPossible = true
		}
		if strings.Contains(lower, "blacklist") || strings.Contains(lower, "blocklist") {
			caps.CanBlacklist = true
		}
		if strings.Contains(lower, "pause") || strings.Contains(lower, "unpause") {
			caps.CanPause = true
		}
		for _, marker := range feeMarkers {
			if strings.Contains(lower, marker) {
				caps.CanSetFees = true
				break
			}
		}
		for _, marker := range tradingMarkers {
			if strings.Contains(lower, marker) {
				caps.HasTradingToggle = true
				break
			}
		}
	}

	return caps, nil
}

// HasOwnerFunction reports whether the ABI exposes a zero-argument owner()
// view.
func HasOwnerFunction(rawABI string) bool {
	parsed, err := abi.JSON(strings.NewReader(rawABI))
	if err != nil {
		return false
	}
	method, ok := parsed.Methods["owner"]
	return ok && len(method.Inputs) == 0
}
