package escalation

// Stateless escalation policy. Actions and durations depend only on the
// offense count handed in; severity tiers depend only on the numeric score.

type ActionKind string

const (
	ActionNone ActionKind = "none"
	ActionWarn ActionKind = "warn"
	ActionMute ActionKind = "mute"
	ActionKick ActionKind = "kick"
	ActionBan  ActionKind = "ban"
)

type Severity string

const (
	SeverityNone     Severity = "none"
	SeverityLow      Severity = "low"
	SeverityMedium   Severity = "medium"
	SeverityHigh     Severity = "high"
	SeverityCritical Severity = "critical"
)

const (
	muteBaseMinutes = 5
	muteMaxMinutes  = 24 * 60
)

func Action(offenseCount int) ActionKind {
	switch {
	case offenseCount >= 4:
		return ActionBan
	case offenseCount >= 3:
		return ActionKick
	case offenseCount >= 2:
		return ActionMute
	case offenseCount >= 1:
		return ActionWarn
	default:
		return ActionNone
	}
}

// MuteMinutes doubles the base duration per prior offense, capped at 24h.
func MuteMinutes(offenseCount int) int {
	if offenseCount < 1 {
		return 0
	}
	minutes := muteBaseMinutes
	for i := 1; i < offenseCount; i++ {
		minutes *= 2
		if minutes >= muteMaxMinutes {
			return muteMaxMinutes
		}
	}
	return minutes
}

func ClassifySeverity(riskScore int) Severity {
	switch {
	case riskScore >= 80:
		return SeverityCritical
	case riskScore >= 60:
		return SeverityHigh
	case riskScore >= 40:
		return SeverityMedium
	case riskScore >= 20:
		return SeverityLow
	default:
		return SeverityNone
	}
}

// Rank orders severities so stores can enforce monotonic escalation.
func (s Severity) Rank() int {
	switch s {
	case SeverityCritical:
		return 4
	case SeverityHigh:
		return 3
	case SeverityMedium:
		return 2
	case SeverityLow:
		return 1
	default:
		return 0
	}
}

func MaxSeverity(a, b Severity) Severity {
	if b.Rank() > a.Rank() {
		return b
	}
	return a
}

type Factors struct {
	NewAccount     bool
	NoAvatar       bool
	SuspiciousName bool
	RapidMessages  bool
	MentionSpam    bool
}

func CalculateRisk(f Factors) int {
	score := 0
	if f.NewAccount {
		score += 20
	}
	if f.NoAvatar {
		score += 10
	}
	if f.SuspiciousName {
		score += 15
	}
	if f.RapidMessages {
		score += 25
	}
	if f.MentionSpam {
		score += 30
	}
	if score > 100 {
		return 100
	}
	return score
}
