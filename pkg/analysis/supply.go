package analysis

import (
	"fmt"
	"math/big"
	"strings"

	"github.com/tokenscope/tokenscope/pkg/providers"
)

// Scale caps for decimal parsing. maxScale bounds intermediate precision to
// prevent blow-up on adversarial inputs; maxDisplayDecimals bounds the
// effective token decimals used for supply conversion.
const (
	maxScale           = 36
	maxDisplayDecimals = 18
)

// HolderShare is one holder with its computed shares. PctOfSupply is nil
// when the absolute share cannot be established (missing supply or decimals,
// a fallback fetch method, or an unparseable amount); RelativeSharePct is
// always defined and is a share of the returned top-N only.
type HolderShare struct {
	Address          string   `json:"address"`
	Amount           string   `json:"amount"`
	PctOfSupply      *float64 `json:"pctOfSupply"`
	RelativeSharePct float64  `json:"relativeSharePct"`
}

// HolderDistribution is the computed top-holder distribution.
type HolderDistribution struct {
	Holders     []HolderShare `json:"holders"`
	Top5Pct     *float64      `json:"top5Pct"`
	Top10Pct    *float64      `json:"top10Pct"`
	FetchMethod string        `json:"fetchMethod"`
	DateUsed    string        `json:"dateUsed,omitempty"`
	HolderCount int           `json:"holderCount"`
}

// decimal is an arbitrary-precision decimal: mantissa * 10^-scale.
type decimal struct {
	mant  *big.Int
	scale int
}

// parseDecimal parses an integer or decimal string into a scaled big
// integer. Fractional digits beyond maxScale are truncated.
func parseDecimal(s string) (decimal, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return decimal{}, fmt.Errorf("empty decimal string")
	}

	intPart, fracPart, hasFrac := strings.Cut(s, ".")
	if hasFrac && len(fracPart) > maxScale {
		fracPart = fracPart[:maxScale]
	}

	mant, ok := new(big.Int).SetString(intPart+fracPart, 10)
	if !ok {
		return decimal{}, fmt.Errorf("invalid decimal %q", s)
	}
	return decimal{mant: mant, scale: len(fracPart)}, nil
}

// alignScales rescales both decimals to a common scale capped at maxScale
// and returns the aligned integer mantissas.
func alignScales(a, b decimal) (*big.Int, *big.Int) {
	scale := a.scale
	if b.scale > scale {
		scale = b.scale
	}
	if scale > maxScale {
		scale = maxScale
	}
	return rescale(a, scale), rescale(b, scale)
}

func rescale(d decimal, scale int) *big.Int {
	diff := scale - d.scale
	switch {
	case diff == 0:
		return new(big.Int).Set(d.mant)
	case diff > 0:
		mul := new(big.Int).Exp(big.NewInt(10), big.NewInt(int64(diff)), nil)
		return new(big.Int).Mul(d.mant, mul)
	default:
		div := new(big.Int).Exp(big.NewInt(10), big.NewInt(int64(-diff)), nil)
		return new(big.Int).Div(d.mant, div)
	}
}

// ComputeHolderDistribution computes per-holder supply percentages.
//
// totalSupply is the raw decimal string in base units; decimals is the token
// decimals when known. Absolute percentages (pctOfSupply, top5Pct, top10Pct)
// are only computed when the fetch method is token_holders AND the supply
// parses AND decimals is known; relativeSharePct is always computed over the
// returned top-N and must be read as relative, not absolute.
func ComputeHolderDistribution(result providers.HoldersResult, totalSupply string, decimals *int) HolderDistribution {
	dist := HolderDistribution{
		FetchMethod: result.FetchMethod,
		DateUsed:    result.DateUsed,
		HolderCount: len(result.Holders),
	}

	amounts := make([]decimal, len(result.Holders))
	parsedOK := make([]bool, len(result.Holders))
	for i, holder := range result.Holders {
		amount, err := parseDecimal(holder.Amount)
		if err != nil {
			amounts[i] = decimal{mant: big.NewInt(0)}
			continue
		}
		amounts[i] = amount
		parsedOK[i] = true
	}

	// Supply in token units: base units scaled down by the effective decimals.
	var supply *decimal
	absoluteOK := result.FetchMethod == providers.FetchMethodTokenHolders && decimals != nil
	if absoluteOK {
		raw, err := parseDecimal(totalSupply)
		if err != nil || raw.mant.Sign() == 0 {
			absoluteOK = false
		} else {
			effective := *decimals
			if effective > maxDisplayDecimals {
				effective = maxDisplayDecimals
			}
			// Scaling base units by decimals is a scale shift, not a division.
			raw.scale += effective
			if raw.scale > maxScale {
				raw.scale = maxScale
			}
			supply = &raw
		}
	}

	// Sum of the returned top-N for the relative signal.
	total := decimal{mant: big.NewInt(0)}
	for _, amount := range amounts {
		alignedTotal, alignedAmount := alignScales(total, amount)
		scale := total.scale
		if amount.scale > scale {
			scale = amount.scale
		}
		if scale > maxScale {
			scale = maxScale
		}
		total = decimal{mant: alignedTotal.Add(alignedTotal, alignedAmount), scale: scale}
	}

	dist.Holders = make([]HolderShare, len(result.Holders))
	var top5, top10 float64
	top5OK, top10OK := absoluteOK, absoluteOK
	for i, holder := range result.Holders {
		share := HolderShare{Address: holder.Address, Amount: holder.Amount}

		if num, den := alignScales(amounts[i], total); total.mant.Sign() > 0 {
			if pct, ok := RatioPct(num, den); ok {
				share.RelativeSharePct = pct
			}
		}

		// An unparseable amount nulls only this holder's absolute share.
		pctOK := false
		if absoluteOK && parsedOK[i] {
			num, den := alignScales(amounts[i], *supply)
			if pct, ok := RatioPct(num, den); ok {
				share.PctOfSupply = &pct
				if i < 5 {
					top5 += pct
				}
				if i < 10 {
					top10 += pct
				}
				pctOK = true
			}
		}
		if !pctOK {
			if i < 5 {
				top5OK = false
			}
			if i < 10 {
				top10OK = false
			}
		}
		dist.Holders[i] = share
	}

	// top5Pct/top10Pct are sums of pctOfSupply; nil when any summed share
	// is nil.
	if top5OK && len(dist.Holders) > 0 {
		dist.Top5Pct = &top5
	}
	if top10OK && len(dist.Holders) > 0 {
		dist.Top10Pct = &top10
	}

	return dist
}
