package classifier

import (
	"context"

	"jarvis-moderation/internal/escalation"
)

// Message is the provider-facing view of one queued message.
type Message struct {
	MessageID      string
	UserID         string
	Username       string
	GuildID        string
	Content        string
	AccountAgeDays int
	RiskScore      int
}

// Result is the provider's verdict on one message. An empty Offense means
// the message is clean.
type Result struct {
	MessageID string
	UserID    string
	Offense   string
	RiskScore int
	Severity  escalation.Severity
}

// BatchClassifier is the external AI collaborator. Implementations must
// honor the context deadline; transient errors are retried by the queue.
type BatchClassifier interface {
	ClassifyBatch(ctx context.Context, messages []Message) ([]Result, error)
}
