package llm

import (
	"encoding/json"
	"unicode/utf8"

	"github.com/tokenscope/tokenscope/pkg/models"
)

// Bounds for the compact evidence payload sent on retry attempts.
const (
	compactMaxStringLen = 300
	compactMaxChildren  = 20
	compactMaxDepth     = 2
)

// compactLedger produces a size-bounded rendering of the ledger: strings
// truncated, nesting cut at depth 2, arrays and objects capped.
func compactLedger(ledger *models.EvidenceLedger) map[string]any {
	items := make([]any, 0, len(ledger.Items))
	for _, item := range ledger.Items {
		entry := map[string]any{
			"id":     item.ID,
			"tool":   item.Tool,
			"title":  item.Title,
			"status": string(item.Status),
		}
		if item.Error != "" {
			entry["error"] = truncateString(item.Error)
		}
		if len(item.Data) > 0 {
			var data any
			if err := json.Unmarshal(item.Data, &data); err == nil {
				entry["data"] = compactValue(data, 0)
			}
		}
		items = append(items, entry)
	}
	return map[string]any{"items": items}
}

func compactValue(v any, depth int) any {
	switch val := v.(type) {
	case string:
		return truncateString(val)
	case map[string]any:
		if depth >= compactMaxDepth {
			return "(omitted)"
		}
		out := make(map[string]any, len(val))
		n := 0
		for key, child := range val {
			if n >= compactMaxChildren {
				break
			}
			out[key] = compactValue(child, depth+1)
			n++
		}
		return out
	case []any:
		if depth >= compactMaxDepth {
			return "(omitted)"
		}
		limit := len(val)
		if limit > compactMaxChildren {
			limit = compactMaxChildren
		}
		out := make([]any, 0, limit)
		for _, child := range val[:limit] {
			out = append(out, compactValue(child, depth+1))
		}
		return out
	default:
		return v
	}
}

// truncateString enforces a byte budget without splitting a rune.
func truncateString(s string) string {
	if len(s) <= compactMaxStringLen {
		return s
	}
	cut := compactMaxStringLen
	for cut > 0 && !utf8.RuneStart(s[cut]) {
		cut--
	}
	return s[:cut] + "…"
}
