package services

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"unicode/utf8"

	"github.com/tokenscope/tokenscope/pkg/models"
	"github.com/tokenscope/tokenscope/pkg/tools"
)

// Chat snapshot bounds.
const (
	chatMaxMessages      = 6
	chatMaxContentLen    = 2000
	chatMaxEvidenceItems = 10
	chatPromptBudget     = 24000
)

const chatSystemPrompt = `You are a token risk analyst answering questions about one completed scan.
You are given an evidence snapshot as JSON. Answer ONLY from the snapshot:
never use outside knowledge about the token, and never invent numbers.
Cite the evidence ids (the "id" fields, e.g. ev_dex_1a2b3c4d) that support
each claim. If the snapshot does not contain the answer, say so plainly.
Keep answers short and concrete.`

// ChatLLM is the completion surface the chat service needs.
type ChatLLM interface {
	Complete(ctx context.Context, model, system, user string) (string, error)
}

// ScanReader loads scan rows for snapshot building.
type ScanReader interface {
	GetScan(ctx context.Context, id string) (*models.Scan, error)
}

// ChatService answers questions about a scan from its persisted evidence.
// It holds no conversation state; the caller resends the message history.
type ChatService struct {
	scans ScanReader
	llm   ChatLLM
	model string
}

// NewChatService creates a ChatService.
func NewChatService(scans ScanReader, llm ChatLLM, model string) *ChatService {
	return &ChatService{scans: scans, llm: llm, model: model}
}

// ChatAboutScan builds an evidence snapshot for the scan and asks the LLM to
// answer the latest user message from it. Returns the assistant's reply.
func (s *ChatService) ChatAboutScan(ctx context.Context, scanID string, messages []models.ChatMessage) (*models.ChatMessage, error) {
	if err := validateChatMessages(messages); err != nil {
		return nil, err
	}

	scan, err := s.scans.GetScan(ctx, scanID)
	if err != nil {
		return nil, err
	}

	var ledger models.EvidenceLedger
	if len(scan.Evidence) > 0 {
		if err := json.Unmarshal(scan.Evidence, &ledger); err != nil {
			return nil, fmt.Errorf("failed to decode evidence for scan %s: %w", scanID, err)
		}
	}

	window := lastMessages(messages, chatMaxMessages)
	preferred := preferredTools(latestUserContent(window))
	items := selectEvidence(ledger.Items, preferred, chatMaxEvidenceItems)

	prompt, err := buildChatPrompt(scan, window, items, true)
	if err != nil {
		return nil, err
	}
	if len(prompt) > chatPromptBudget {
		// Second pass: drop tool data and the narrative, keep the item index.
		if prompt, err = buildChatPrompt(scan, window, items, false); err != nil {
			return nil, err
		}
	}

	reply, err := s.llm.Complete(ctx, s.model, chatSystemPrompt, prompt)
	if err != nil {
		return nil, fmt.Errorf("chat completion failed: %w", err)
	}

	return &models.ChatMessage{Role: models.ChatRoleAssistant, Content: reply}, nil
}

func validateChatMessages(messages []models.ChatMessage) error {
	if len(messages) == 0 {
		return NewValidationError("messages", "at least one message is required")
	}
	for i, msg := range messages {
		if msg.Role != models.ChatRoleUser && msg.Role != models.ChatRoleAssistant {
			return NewValidationError("messages", fmt.Sprintf("message %d has invalid role %q", i, msg.Role))
		}
		if strings.TrimSpace(msg.Content) == "" {
			return NewValidationError("messages", fmt.Sprintf("message %d has empty content", i))
		}
	}
	if messages[len(messages)-1].Role != models.ChatRoleUser {
		return NewValidationError("messages", "last message must be from the user")
	}
	return nil
}

func lastMessages(messages []models.ChatMessage, n int) []models.ChatMessage {
	if len(messages) > n {
		messages = messages[len(messages)-n:]
	}
	out := make([]models.ChatMessage, len(messages))
	for i, msg := range messages {
		out[i] = msg
		if len(out[i].Content) > chatMaxContentLen {
			out[i].Content = truncateContent(out[i].Content, chatMaxContentLen)
		}
	}
	return out
}

// truncateContent cuts s to at most n bytes without splitting a rune.
func truncateContent(s string, n int) string {
	if len(s) <= n {
		return s
	}
	for n > 0 && !utf8.RuneStart(s[n]) {
		n--
	}
	return s[:n]
}

func latestUserContent(messages []models.ChatMessage) string {
	for i := len(messages) - 1; i >= 0; i-- {
		if messages[i].Role == models.ChatRoleUser {
			return messages[i].Content
		}
	}
	return ""
}

// chatTopicTools maps question keywords to the tools most likely to hold the
// answer. Order within a topic is the preference order.
var chatTopicTools = []struct {
	keywords []string
	tools    []string
}{
	{[]string{"liquidity", "lock", "lp", "pool", "pair", "burn"},
		[]string{tools.ToolLPLock, tools.ToolDexPairs}},
	{[]string{"honeypot", "sell", "tax", "buy", "trade"},
		[]string{tools.ToolHoneypot, tools.ToolDexPairs}},
	{[]string{"holder", "whale", "concentration", "distribution", "top10"},
		[]string{tools.ToolTopHolders, tools.ToolErc20Metadata}},
	{[]string{"owner", "renounce", "admin", "control"},
		[]string{tools.ToolOwnerStatus, tools.ToolCapabilityScan}},
	{[]string{"mint", "blacklist", "pause", "capability", "upgrade", "proxy"},
		[]string{tools.ToolCapabilityScan, tools.ToolSourceInfo}},
	{[]string{"source", "verified", "code", "contract", "compiler"},
		[]string{tools.ToolSourceInfo, tools.ToolBytecode}},
	{[]string{"deploy", "creator", "creation"},
		[]string{tools.ToolContractCreation}},
	{[]string{"supply", "decimals", "name", "symbol", "metadata"},
		[]string{tools.ToolErc20Metadata}},
}

// preferredTools derives a tool preference order from the question's keywords.
func preferredTools(question string) []string {
	q := strings.ToLower(question)
	var out []string
	seen := map[string]bool{}
	for _, topic := range chatTopicTools {
		for _, kw := range topic.keywords {
			if strings.Contains(q, kw) {
				for _, tool := range topic.tools {
					if !seen[tool] {
						seen[tool] = true
						out = append(out, tool)
					}
				}
				break
			}
		}
	}
	return out
}

// selectEvidence orders items preferred-first (ledger order within a rank)
// and caps the result.
func selectEvidence(items []models.EvidenceItem, preferred []string, limit int) []models.EvidenceItem {
	rank := func(tool string) int {
		for i, p := range preferred {
			if p == tool {
				return i
			}
		}
		return len(preferred)
	}

	out := make([]models.EvidenceItem, len(items))
	copy(out, items)
	sort.SliceStable(out, func(i, j int) bool {
		return rank(out[i].Tool) < rank(out[j].Tool)
	})
	if len(out) > limit {
		out = out[:limit]
	}
	return out
}

type chatSnapshotItem struct {
	ID     string          `json:"id"`
	Tool   string          `json:"tool"`
	Title  string          `json:"title"`
	Status string          `json:"status"`
	Error  string          `json:"error,omitempty"`
	Data   json.RawMessage `json:"data,omitempty"`
}

type chatSnapshot struct {
	ScanID       string             `json:"scanId"`
	TokenAddress string             `json:"tokenAddress"`
	Chain        string             `json:"chain"`
	Status       string             `json:"status"`
	Narrative    string             `json:"narrative,omitempty"`
	Evidence     []chatSnapshotItem `json:"evidence"`
}

func buildChatPrompt(scan *models.Scan, messages []models.ChatMessage,
	items []models.EvidenceItem, includeData bool) (string, error) {

	snapshot := chatSnapshot{
		ScanID:       scan.ID,
		TokenAddress: scan.TokenAddress,
		Chain:        scan.Chain,
		Status:       string(scan.Status),
		Evidence:     make([]chatSnapshotItem, 0, len(items)),
	}
	if includeData && scan.Narrative != nil {
		snapshot.Narrative = *scan.Narrative
	}
	for _, item := range items {
		entry := chatSnapshotItem{
			ID:     item.ID,
			Tool:   item.Tool,
			Title:  item.Title,
			Status: string(item.Status),
			Error:  item.Error,
		}
		if includeData {
			entry.Data = item.Data
		}
		snapshot.Evidence = append(snapshot.Evidence, entry)
	}

	encoded, err := json.Marshal(snapshot)
	if err != nil {
		return "", fmt.Errorf("failed to encode chat snapshot: %w", err)
	}

	var b strings.Builder
	b.WriteString("Evidence snapshot:\n")
	b.Write(encoded)
	b.WriteString("\n\nConversation:\n")
	for _, msg := range messages {
		b.WriteString(string(msg.Role))
		b.WriteString(": ")
		b.WriteString(msg.Content)
		b.WriteString("\n")
	}
	b.WriteString("\nAnswer the last user message.")
	return b.String(), nil
}
