// Package analysis contains the derived analyzers that turn raw tool
// responses into findings: LP lock inference, holder supply-percentage math,
// ABI capability scanning, and owner status. All supply arithmetic is done
// on big integers with explicit scale; binary floating point only appears at
// the display edge.
package analysis

import (
	"encoding/hex"
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/common"
)

// ERC-20 and pair selectors used by the analyzers.
const (
	SelectorName        = "0x06fdde03"
	SelectorSymbol      = "0x95d89b41"
	SelectorDecimals    = "0x313ce567"
	SelectorTotalSupply = "0x18160ddd"
	SelectorBalanceOf   = "0x70a08231"
	SelectorGetReserves = "0x0902f1ac"
	SelectorOwner       = "0x8da5cb5b"
)

// Well-known burn sinks.
const (
	ZeroAddress = "0x0000000000000000000000000000000000000000"
	DeadAddress = "0x000000000000000000000000000000000000dead"
)

// EncodeBalanceOf builds balanceOf(address) calldata: the selector followed
// by the address left-padded to 32 bytes.
func EncodeBalanceOf(holder string) string {
	addr := common.HexToAddress(holder)
	padded := common.LeftPadBytes(addr.Bytes(), 32)
	return SelectorBalanceOf + fmt.Sprintf("%x", padded)
}

// DecodeUint256 parses a 0x-prefixed 32-byte call return into a big integer.
func DecodeUint256(hexResult string) (*big.Int, error) {
	trimmed := strings.TrimPrefix(hexResult, "0x")
	if trimmed == "" {
		return nil, fmt.Errorf("empty call result")
	}
	n, ok := new(big.Int).SetString(trimmed, 16)
	if !ok {
		return nil, fmt.Errorf("invalid hex result %q", hexResult)
	}
	return n, nil
}

// DecodeAddressReturn extracts the address from a 32-byte call return by
// taking the last 20 bytes, lowercased.
func DecodeAddressReturn(hexResult string) (string, error) {
	trimmed := strings.TrimPrefix(hexResult, "0x")
	if len(trimmed) < 64 {
		return "", fmt.Errorf("call result too short for an address: %d hex chars", len(trimmed))
	}
	word := trimmed[len(trimmed)-64:]
	return "0x" + strings.ToLower(word[24:]), nil
}

// DecodeStringReturn ABI-decodes a dynamic string return (offset, length,
// bytes). Some older tokens return bytes32-style fixed values instead; those
// are handled by trimming NUL padding.
func DecodeStringReturn(hexResult string) (string, error) {
	trimmed := strings.TrimPrefix(hexResult, "0x")
	raw, err := hex.DecodeString(trimmed)
	if err != nil {
		return "", fmt.Errorf("invalid hex string return: %w", err)
	}
	if len(raw) == 0 {
		return "", nil
	}

	// bytes32-style return: a single word with NUL padding.
	if len(raw) == 32 {
		return strings.TrimRight(string(raw), "\x00"), nil
	}

	if len(raw) < 64 {
		return "", fmt.Errorf("string return too short: %d bytes", len(raw))
	}
	offset := new(big.Int).SetBytes(raw[:32]).Int64()
	if offset < 0 || offset+32 > int64(len(raw)) {
		return "", fmt.Errorf("string return offset out of range")
	}
	length := new(big.Int).SetBytes(raw[offset : offset+32]).Int64()
	start := offset + 32
	if length < 0 || start+length > int64(len(raw)) {
		return "", fmt.Errorf("string return length out of range")
	}
	return string(raw[start : start+length]), nil
}
