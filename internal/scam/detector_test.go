package scam

import (
	"testing"
	"time"

	"jarvis-moderation/internal/escalation"
)

type fixedClock struct{ now time.Time }

func (f fixedClock) Now() time.Time { return f.now }

func newDetector(cfg Config, now time.Time) *Detector {
	d := New(cfg)
	d.WithClock(fixedClock{now: now})
	return d
}

func hasWarning(a Analysis, warningType string) bool {
	for _, w := range a.Warnings {
		if w.Type == warningType {
			return true
		}
	}
	return false
}

func TestAccountAgeTiers(t *testing.T) {
	now := time.Date(2024, 6, 15, 12, 0, 0, 0, time.UTC)
	full := Config{FlagSameDayAccounts: true, FlagThisYearAccounts: true, NewAccountThresholdDays: 30}
	// The this-year tier shadows the threshold tier, so the threshold case
	// needs it off.
	thresholdOnly := Config{NewAccountThresholdDays: 30}

	cases := []struct {
		name      string
		cfg       Config
		createdAt time.Time
		wantType  string
		wantLevel escalation.Severity
	}{
		{"same day", full, now.Add(-3 * time.Hour), "same_day_account", escalation.SeverityCritical},
		{"two days", full, now.Add(-48 * time.Hour), "very_new_account", escalation.SeverityHigh},
		{"this year", full, time.Date(2024, 1, 10, 0, 0, 0, 0, time.UTC), "new_this_year", escalation.SeverityMedium},
		{"below threshold", thresholdOnly, now.AddDate(0, 0, -10), "below_threshold", escalation.SeverityLow},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			d := newDetector(c.cfg, now)
			a := d.Analyze(Member{UserID: "u1", Username: "regularperson", CreatedAt: c.createdAt, HasAvatar: true})
			if !hasWarning(a, c.wantType) {
				t.Fatalf("expected %s warning, got %+v", c.wantType, a.Warnings)
			}
			for _, w := range a.Warnings {
				if w.Type == c.wantType && w.Level != c.wantLevel {
					t.Fatalf("%s level = %s, want %s", c.wantType, w.Level, c.wantLevel)
				}
			}
			if !a.Factors.NewAccount {
				t.Fatalf("age warning must set the new-account factor")
			}
		})
	}
}

func TestOldAccountClean(t *testing.T) {
	now := time.Date(2024, 6, 15, 12, 0, 0, 0, time.UTC)
	d := newDetector(Config{NewAccountThresholdDays: 30}, now)

	a := d.Analyze(Member{
		UserID:    "u1",
		Username:  "regularperson",
		CreatedAt: time.Date(2020, 3, 1, 0, 0, 0, 0, time.UTC),
		HasAvatar: true,
	})
	if a.Suspicious() {
		t.Fatalf("expected clean analysis, got %+v", a.Warnings)
	}
}

func TestScamUsernamePatterns(t *testing.T) {
	names := []string{
		"Free Nitro Here",
		"Discord Mod Team",
		"giveaway2024",
		"claim your prize",
		"Steam Gift Cards",
		"crypto airdrop",
		"NFT drop official",
		"Elon Musk",
		"official bot",
		"verify bot",
	}
	now := time.Now()
	d := newDetector(Config{}, now)
	for _, name := range names {
		a := d.Analyze(Member{Username: name, CreatedAt: now.AddDate(-2, 0, 0), HasAvatar: true})
		if !hasWarning(a, "scam_username") {
			t.Fatalf("%q should match a scam pattern", name)
		}
		if !a.Factors.SuspiciousName {
			t.Fatalf("%q should set the suspicious-name factor", name)
		}
	}
}

func TestSuspiciousCharacters(t *testing.T) {
	cases := []string{
		"pаypаl",       // Cyrillic а mixed with Latin
		"aaaaaa",       // repeated run
		"user!!!!name", // symbol run
	}
	now := time.Now()
	d := newDetector(Config{}, now)
	for _, name := range cases {
		a := d.Analyze(Member{Username: name, CreatedAt: now.AddDate(-2, 0, 0), HasAvatar: true})
		if !hasWarning(a, "suspicious_chars") {
			t.Fatalf("%q should be flagged for suspicious characters", name)
		}
	}
}

func TestImpersonationExcludesFans(t *testing.T) {
	now := time.Now()
	d := newDetector(Config{}, now)

	a := d.Analyze(Member{Username: "twitch_helper", CreatedAt: now.AddDate(-2, 0, 0), HasAvatar: true})
	if !hasWarning(a, "impersonation") {
		t.Fatalf("service name should flag impersonation")
	}

	a = d.Analyze(Member{Username: "twitchfan99", CreatedAt: now.AddDate(-2, 0, 0), HasAvatar: true})
	if hasWarning(a, "impersonation") {
		t.Fatalf("fan accounts are not impersonation")
	}
}

func TestDisplayNameChecked(t *testing.T) {
	now := time.Now()
	d := newDetector(Config{}, now)

	a := d.Analyze(Member{
		Username:    "regularperson",
		DisplayName: "Free Nitro Giveaway",
		CreatedAt:   now.AddDate(-2, 0, 0),
		HasAvatar:   true,
	})
	if !hasWarning(a, "scam_username") {
		t.Fatalf("display name should be checked too")
	}
}

func TestDefaultAvatar(t *testing.T) {
	now := time.Now()
	d := newDetector(Config{}, now)

	a := d.Analyze(Member{Username: "regularperson", CreatedAt: now.AddDate(-2, 0, 0), HasAvatar: false})
	if !hasWarning(a, "default_avatar") {
		t.Fatalf("missing avatar should warn")
	}
	if !a.Factors.NoAvatar {
		t.Fatalf("missing avatar must set the no-avatar factor")
	}
}
