package scam

import (
	"fmt"
	"regexp"
	"strings"
	"time"

	"jarvis-moderation/internal/escalation"
)

var scamUsernamePatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)free\s*nitro`),
	regexp.MustCompile(`(?i)discord\s*(?:mod|admin|staff|support)`),
	regexp.MustCompile(`(?i)giveaway`),
	regexp.MustCompile(`(?i)claim\s*(?:your|free)`),
	regexp.MustCompile(`(?i)steam\s*(?:gift|trade|admin)`),
	regexp.MustCompile(`(?i)cs\s*go\s*(?:skin|trade)`),
	regexp.MustCompile(`(?i)crypto\s*(?:give|airdrop)`),
	regexp.MustCompile(`(?i)nft\s*(?:drop|mint|free)`),
	regexp.MustCompile(`(?i)elon\s*musk`),
	regexp.MustCompile(`(?i)official\s*bot`),
	regexp.MustCompile(`(?i)verify\s*bot`),
}

var (
	mixedScriptPattern = regexp.MustCompile(`[\p{Cyrillic}].*[a-zA-Z]|[a-zA-Z].*[\p{Cyrillic}]`)
	symbolRunPattern   = regexp.MustCompile(`[^\w\s]{3,}`)
)

var impersonationKeywords = []string{
	"discord", "steam", "twitch", "youtube", "twitter", "paypal",
	"support", "admin", "moderator",
}

// Warning is one suspicious trait found on a joining member.
type Warning struct {
	Level   escalation.Severity
	Type    string
	Message string
}

// Member is the detector's view of a freshly joined user.
type Member struct {
	UserID      string
	Username    string
	DisplayName string
	CreatedAt   time.Time
	HasAvatar   bool
}

type Analysis struct {
	Warnings       []Warning
	AccountAgeDays int
	Factors        escalation.Factors
}

func (a Analysis) Suspicious() bool { return len(a.Warnings) > 0 }

type Config struct {
	FlagSameDayAccounts     bool
	FlagThisYearAccounts    bool
	NewAccountThresholdDays int
}

type Clock interface {
	Now() time.Time
}

type realClock struct{}

func (realClock) Now() time.Time { return time.Now() }

// Detector flags alt and scam accounts at join time using account age,
// username patterns and avatar state. Heuristic only; the classifier has
// the final word on message content.
type Detector struct {
	cfg   Config
	clock Clock
}

func New(cfg Config) *Detector {
	return &Detector{cfg: cfg, clock: realClock{}}
}

func (d *Detector) WithClock(clock Clock) {
	d.clock = clock
}

func (d *Detector) Analyze(m Member) Analysis {
	now := d.clock.Now()
	age := now.Sub(m.CreatedAt)
	ageDays := int(age.Hours() / 24)
	ageHours := int(age.Hours())

	analysis := Analysis{AccountAgeDays: ageDays}

	switch {
	case d.cfg.FlagSameDayAccounts && ageDays == 0:
		analysis.add(Warning{
			Level:   escalation.SeverityCritical,
			Type:    "same_day_account",
			Message: fmt.Sprintf("account created %d hours ago", ageHours),
		})
		analysis.Factors.NewAccount = true
	case ageDays <= 2:
		analysis.add(Warning{
			Level:   escalation.SeverityHigh,
			Type:    "very_new_account",
			Message: fmt.Sprintf("account created %d day(s) ago", ageDays),
		})
		analysis.Factors.NewAccount = true
	case d.cfg.FlagThisYearAccounts && m.CreatedAt.Year() == now.Year():
		analysis.add(Warning{
			Level:   escalation.SeverityMedium,
			Type:    "new_this_year",
			Message: fmt.Sprintf("account created this year (%d days old)", ageDays),
		})
		analysis.Factors.NewAccount = true
	case d.cfg.NewAccountThresholdDays > 0 && ageDays < d.cfg.NewAccountThresholdDays:
		analysis.add(Warning{
			Level:   escalation.SeverityLow,
			Type:    "below_threshold",
			Message: fmt.Sprintf("account is %d days old", ageDays),
		})
		analysis.Factors.NewAccount = true
	}

	if w := checkUsername(m.Username); w != nil {
		analysis.add(*w)
		analysis.Factors.SuspiciousName = true
	}
	if m.DisplayName != "" && m.DisplayName != m.Username {
		if w := checkUsername(m.DisplayName); w != nil {
			w.Message = strings.Replace(w.Message, "username", "display name", 1)
			analysis.add(*w)
			analysis.Factors.SuspiciousName = true
		}
	}

	if !m.HasAvatar {
		analysis.add(Warning{
			Level:   escalation.SeverityLow,
			Type:    "default_avatar",
			Message: "default avatar (potential throwaway account)",
		})
		analysis.Factors.NoAvatar = true
	}

	return analysis
}

func (a *Analysis) add(w Warning) {
	a.Warnings = append(a.Warnings, w)
}

// SuspiciousName reports whether the name alone trips any username heuristic.
func SuspiciousName(name string) bool {
	return checkUsername(name) != nil
}

// checkUsername matches a name against known scam patterns, then suspicious
// character shapes, then service impersonation. Strongest verdict wins.
func checkUsername(name string) *Warning {
	for _, pattern := range scamUsernamePatterns {
		if pattern.MatchString(name) {
			return &Warning{
				Level:   escalation.SeverityHigh,
				Type:    "scam_username",
				Message: fmt.Sprintf("username matches scam pattern: %q", name),
			}
		}
	}

	if mixedScriptPattern.MatchString(name) || hasRepeatedRun(name, 5) || symbolRunPattern.MatchString(name) {
		return &Warning{
			Level:   escalation.SeverityMedium,
			Type:    "suspicious_chars",
			Message: fmt.Sprintf("username contains suspicious characters: %q", name),
		}
	}

	lower := strings.ToLower(name)
	if strings.Contains(lower, "fan") || strings.Contains(lower, "lover") {
		return nil
	}
	for _, keyword := range impersonationKeywords {
		if strings.Contains(lower, keyword) {
			return &Warning{
				Level:   escalation.SeverityMedium,
				Type:    "impersonation",
				Message: fmt.Sprintf("possible impersonation attempt: %q", name),
			}
		}
	}
	return nil
}

func hasRepeatedRun(s string, n int) bool {
	var prev rune
	run := 0
	for _, r := range s {
		if r == prev {
			run++
			if run >= n {
				return true
			}
		} else {
			prev = r
			run = 1
		}
	}
	return false
}
