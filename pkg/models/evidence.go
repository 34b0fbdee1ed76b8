package models

import (
	"encoding/json"
	"time"
)

// EvidenceStatus reports whether a tool produced usable data.
type EvidenceStatus string

// Evidence statuses.
const (
	EvidenceStatusOK          EvidenceStatus = "ok"
	EvidenceStatusUnavailable EvidenceStatus = "unavailable"
)

// EvidenceItem is a single tool invocation's result. Data is tool-specific;
// each tool documents its own payload shape (see pkg/tools).
type EvidenceItem struct {
	ID        string          `json:"id"`
	Tool      string          `json:"tool"`
	Title     string          `json:"title"`
	SourceURL string          `json:"sourceUrl,omitempty"`
	FetchedAt time.Time       `json:"fetchedAt"`
	Status    EvidenceStatus  `json:"status"`
	Data      json.RawMessage `json:"data,omitempty"`
	Error     string          `json:"error,omitempty"`
}

// EvidenceLedger is the ordered collection of evidence gathered during one
// scan run. It is persisted as opaque JSON on the scan row.
type EvidenceLedger struct {
	Items []EvidenceItem `json:"items"`
}

// Append adds an item to the ledger.
func (l *EvidenceLedger) Append(item EvidenceItem) {
	l.Items = append(l.Items, item)
}

// ByTool returns the first item collected by the named tool.
func (l *EvidenceLedger) ByTool(tool string) (EvidenceItem, bool) {
	for _, item := range l.Items {
		if item.Tool == tool {
			return item, true
		}
	}
	return EvidenceItem{}, false
}

// IDs returns every evidence id in ledger order.
func (l *EvidenceLedger) IDs() []string {
	ids := make([]string, 0, len(l.Items))
	for _, item := range l.Items {
		ids = append(ids, item.ID)
	}
	return ids
}

// HasID reports whether the ledger contains an item with the given id.
func (l *EvidenceLedger) HasID(id string) bool {
	for _, item := range l.Items {
		if item.ID == id {
			return true
		}
	}
	return false
}

// UnavailableTools returns the tool names of items that reported no data.
func (l *EvidenceLedger) UnavailableTools() []string {
	var tools []string
	for _, item := range l.Items {
		if item.Status == EvidenceStatusUnavailable {
			tools = append(tools, item.Tool)
		}
	}
	return tools
}
