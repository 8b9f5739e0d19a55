package classifier

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"jarvis-moderation/internal/escalation"
)

// Provider-agnostic batch protocol: the model receives a numbered message
// listing and answers in a fixed line format. Any chat-style provider that
// can complete text can sit behind it.

const systemPromptTemplate = `You are a batch content moderation system. Analyze these %d messages for patterns.

Look for:
- COORDINATED ATTACKS: Same/similar messages from multiple users
- SCAM PATTERNS: Crypto, fake giveaways, phishing across messages
- SPAM CAMPAIGNS: Promotional content from multiple accounts
- RAID INDICATORS: Suspicious timing or content correlation

Respond with:
FLAGGED_INDICES: [comma-separated indices of suspicious messages, e.g., 1,3,5 or NONE]
PATTERN: [detected pattern or "none"]
SEVERITY: [low/medium/high/critical]
SUMMARY: [brief analysis]`

var (
	flaggedRegex  = regexp.MustCompile(`(?i)FLAGGED_INDICES:\s*\[?([^\]\n]+)\]?`)
	patternRegex  = regexp.MustCompile(`(?i)PATTERN:\s*(.+)`)
	severityRegex = regexp.MustCompile(`(?i)SEVERITY:\s*(low|medium|high|critical)`)
	summaryRegex  = regexp.MustCompile(`(?i)SUMMARY:\s*(.+)`)
)

var ErrEmptyResponse = errors.New("classifier returned empty response")

// Analysis is the parsed shape of one batch reply.
type Analysis struct {
	FlaggedIndices []int // zero-based into the submitted batch
	Pattern        string
	Severity       escalation.Severity
	Summary        string
}

func BuildBatchPrompt(messages []Message) (system string, user string) {
	system = fmt.Sprintf(systemPromptTemplate, len(messages))

	var b strings.Builder
	for i, msg := range messages {
		if i > 0 {
			b.WriteString("\n\n")
		}
		fmt.Fprintf(&b, "[MSG%d] User: %s (%s) | Age: %dd | Risk: %d%%\nContent: %s",
			i+1, msg.Username, msg.UserID, msg.AccountAgeDays, msg.RiskScore, msg.Content)
	}
	return system, b.String()
}

// ParseBatchResponse extracts the protocol fields from a free-text reply.
// Indices are 1-based on the wire; out-of-range and non-numeric entries are
// discarded rather than failing the batch.
func ParseBatchResponse(response string, batchSize int) (Analysis, error) {
	if strings.TrimSpace(response) == "" {
		return Analysis{}, ErrEmptyResponse
	}

	analysis := Analysis{Pattern: "none", Severity: escalation.SeverityLow, Summary: "Analysis complete"}

	if match := flaggedRegex.FindStringSubmatch(response); match != nil {
		raw := strings.TrimSpace(match[1])
		if !strings.EqualFold(raw, "none") {
			for _, field := range strings.Split(raw, ",") {
				idx, err := strconv.Atoi(strings.TrimSpace(field))
				if err != nil {
					continue
				}
				idx-- // to zero-based
				if idx < 0 || idx >= batchSize {
					continue
				}
				analysis.FlaggedIndices = append(analysis.FlaggedIndices, idx)
			}
		}
	}
	if match := patternRegex.FindStringSubmatch(response); match != nil {
		analysis.Pattern = strings.TrimSpace(match[1])
	}
	if match := severityRegex.FindStringSubmatch(response); match != nil {
		analysis.Severity = escalation.Severity(strings.ToLower(match[1]))
	}
	if match := summaryRegex.FindStringSubmatch(response); match != nil {
		analysis.Summary = strings.TrimSpace(match[1])
	}

	return analysis, nil
}

// GenerateFunc produces a completion for a system/user prompt pair.
type GenerateFunc func(ctx context.Context, system, user string) (string, error)

// ProtocolClassifier adapts any text-generation function to BatchClassifier
// through the batch protocol above.
type ProtocolClassifier struct {
	generate GenerateFunc
}

func NewProtocolClassifier(generate GenerateFunc) *ProtocolClassifier {
	return &ProtocolClassifier{generate: generate}
}

func (c *ProtocolClassifier) ClassifyBatch(ctx context.Context, messages []Message) ([]Result, error) {
	if len(messages) == 0 {
		return nil, nil
	}

	system, user := BuildBatchPrompt(messages)
	response, err := c.generate(ctx, system, user)
	if err != nil {
		return nil, err
	}

	analysis, err := ParseBatchResponse(response, len(messages))
	if err != nil {
		return nil, err
	}

	flagged := make(map[int]bool, len(analysis.FlaggedIndices))
	for _, idx := range analysis.FlaggedIndices {
		flagged[idx] = true
	}

	results := make([]Result, len(messages))
	for i, msg := range messages {
		result := Result{MessageID: msg.MessageID, UserID: msg.UserID, Severity: escalation.SeverityNone}
		if flagged[i] {
			result.Offense = analysis.Pattern
			result.Severity = analysis.Severity
			result.RiskScore = severityScore(analysis.Severity)
		}
		results[i] = result
	}
	return results, nil
}

// severityScore maps a qualitative tier back to a representative score for
// risk-history bookkeeping.
func severityScore(severity escalation.Severity) int {
	switch severity {
	case escalation.SeverityCritical:
		return 90
	case escalation.SeverityHigh:
		return 70
	case escalation.SeverityMedium:
		return 50
	case escalation.SeverityLow:
		return 30
	default:
		return 0
	}
}
