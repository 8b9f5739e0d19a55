package gate

import (
	"jarvis-moderation/internal/utils"
)

type Path string

const (
	PathRealtime Path = "realtime"
	PathBatched  Path = "batched"
)

const (
	ReasonKnownThreat   = "known_threat"
	ReasonNewAccount    = "new_account"
	ReasonFirstMessage  = "first_message"
	ReasonSuspiciousURL = "suspicious_link"
	ReasonInvite        = "invite_link"
	ReasonMassMention   = "mass_mention"
	ReasonHighRisk      = "high_risk_score"
	ReasonAttachments   = "attachments"
)

type Decision struct {
	Path    Path
	Reasons []string
}

// Context is the per-message metadata the gate rules evaluate. The caller
// (gateway glue) assembles it from Discord state.
type Context struct {
	AccountAgeDays   int
	IsFirstMessage   bool
	HasAttachments   bool
	MentionsEveryone bool
	UserMentions     int
	RiskScore        int
}

// ThreatChecker is the read-only view of the threat database.
type ThreatChecker interface {
	IsKnown(userID string) bool
}

// LinkChecker is the external link-reputation collaborator.
type LinkChecker interface {
	Suspicious(url string) bool
}

type Config struct {
	NewAccountDays    int
	RealtimeRiskScore int
	MentionLimit      int
}

// Gate performs synchronous triage: high-priority messages go to the
// real-time path, everything else is batched. Pure over its inputs and the
// threat database; no side effects.
type Gate struct {
	cfg     Config
	threats ThreatChecker
	links   LinkChecker
}

func New(cfg Config, threats ThreatChecker, links LinkChecker) *Gate {
	if cfg.NewAccountDays <= 0 {
		cfg.NewAccountDays = 7
	}
	if cfg.RealtimeRiskScore <= 0 {
		cfg.RealtimeRiskScore = 50
	}
	if cfg.MentionLimit <= 0 {
		cfg.MentionLimit = 5
	}
	return &Gate{cfg: cfg, threats: threats, links: links}
}

// Classify evaluates the rules in priority order; the first match decides
// the path, later matches only add reasons.
func (g *Gate) Classify(userID, content string, ctx Context) Decision {
	var reasons []string

	if g.threats != nil && g.threats.IsKnown(userID) {
		reasons = append(reasons, ReasonKnownThreat)
	}
	if ctx.AccountAgeDays < g.cfg.NewAccountDays {
		reasons = append(reasons, ReasonNewAccount)
	}
	if ctx.IsFirstMessage {
		reasons = append(reasons, ReasonFirstMessage)
	}
	if utils.HasInvite(content) {
		reasons = append(reasons, ReasonInvite)
	} else if g.hasSuspiciousLink(content) {
		reasons = append(reasons, ReasonSuspiciousURL)
	}
	if ctx.MentionsEveryone || ctx.UserMentions > g.cfg.MentionLimit {
		reasons = append(reasons, ReasonMassMention)
	}
	if ctx.RiskScore >= g.cfg.RealtimeRiskScore {
		reasons = append(reasons, ReasonHighRisk)
	}
	if ctx.HasAttachments {
		reasons = append(reasons, ReasonAttachments)
	}

	if len(reasons) > 0 {
		return Decision{Path: PathRealtime, Reasons: reasons}
	}
	return Decision{Path: PathBatched}
}

func (g *Gate) hasSuspiciousLink(content string) bool {
	if g.links == nil {
		return false
	}
	for _, raw := range utils.ExtractURLs(content) {
		normalized, _, err := utils.NormalizeURL(raw)
		if err != nil {
			continue
		}
		if g.links.Suspicious(normalized) {
			return true
		}
	}
	return false
}
