package analysis

import (
	"context"
	"fmt"
	"strings"
)

// OwnerStatus is the result of the owner-slot call.
type OwnerStatus struct {
	HasOwnerFunction bool    `json:"hasOwnerFunction"`
	OwnerAddress     *string `json:"ownerAddress"`
	Renounced        bool    `json:"renounced"`
}

// CheckOwner calls owner() when the ABI exposes it and classifies the
// result. Ownership is renounced when the owner is the zero address or the
// dead sentinel. With no usable ABI the status reports hasOwnerFunction
// false and a nil owner.
func CheckOwner(ctx context.Context, caller ContractCaller, tokenAddress, rawABI string) (OwnerStatus, error) {
	status := OwnerStatus{}

	if rawABI == "" || !HasOwnerFunction(rawABI) {
		return status, nil
	}
	status.HasOwnerFunction = true

	result := caller.Call(ctx, tokenAddress, SelectorOwner)
	if result.Error != "" {
		return status, fmt.Errorf("owner() call failed: %s", result.Error)
	}

	owner, err := DecodeAddressReturn(result.Result)
	if err != nil {
		return status, fmt.Errorf("owner() returned an undecodable value: %w", err)
	}

	status.OwnerAddress = &owner
	status.Renounced = owner == ZeroAddress || strings.HasSuffix(owner, "dead")
	return status, nil
}
