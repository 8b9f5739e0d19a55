package gate

import "testing"

type fakeThreats struct{ known map[string]bool }

func (f fakeThreats) IsKnown(userID string) bool { return f.known[userID] }

type fakeLinks struct{ bad map[string]bool }

func (f fakeLinks) Suspicious(url string) bool { return f.bad[url] }

func newTestGate(threats ThreatChecker, links LinkChecker) *Gate {
	return New(Config{NewAccountDays: 7, RealtimeRiskScore: 50, MentionLimit: 5}, threats, links)
}

func TestKnownThreatWinsFirst(t *testing.T) {
	g := newTestGate(fakeThreats{known: map[string]bool{"bad": true}}, nil)

	decision := g.Classify("bad", "hello", Context{AccountAgeDays: 100})
	if decision.Path != PathRealtime {
		t.Fatalf("expected realtime, got %s", decision.Path)
	}
	if decision.Reasons[0] != ReasonKnownThreat {
		t.Fatalf("known threat must be the leading reason, got %v", decision.Reasons)
	}
}

func TestNewAccount(t *testing.T) {
	g := newTestGate(fakeThreats{}, nil)
	decision := g.Classify("u1", "hello", Context{AccountAgeDays: 0})
	if decision.Path != PathRealtime || decision.Reasons[0] != ReasonNewAccount {
		t.Fatalf("same-day account must be realtime: %+v", decision)
	}
}

func TestFirstMessage(t *testing.T) {
	g := newTestGate(fakeThreats{}, nil)
	decision := g.Classify("u1", "hello", Context{AccountAgeDays: 100, IsFirstMessage: true})
	if decision.Path != PathRealtime || decision.Reasons[0] != ReasonFirstMessage {
		t.Fatalf("first message must be realtime: %+v", decision)
	}
}

func TestInviteLink(t *testing.T) {
	g := newTestGate(fakeThreats{}, nil)
	decision := g.Classify("u1", "join discord.gg/abc", Context{AccountAgeDays: 100})
	if decision.Path != PathRealtime || decision.Reasons[0] != ReasonInvite {
		t.Fatalf("invite must be realtime: %+v", decision)
	}
}

func TestSuspiciousLink(t *testing.T) {
	links := fakeLinks{bad: map[string]bool{"https://phish.example": true}}
	g := newTestGate(fakeThreats{}, links)

	decision := g.Classify("u1", "see https://phish.example", Context{AccountAgeDays: 100})
	if decision.Path != PathRealtime || decision.Reasons[0] != ReasonSuspiciousURL {
		t.Fatalf("flagged link must be realtime: %+v", decision)
	}

	decision = g.Classify("u1", "see https://fine.example", Context{AccountAgeDays: 100})
	if decision.Path != PathBatched {
		t.Fatalf("clean link must be batched: %+v", decision)
	}
}

func TestSupplementalTriggers(t *testing.T) {
	g := newTestGate(fakeThreats{}, nil)

	if d := g.Classify("u1", "@everyone hi", Context{AccountAgeDays: 100, MentionsEveryone: true}); d.Path != PathRealtime {
		t.Fatalf("mass mention must be realtime: %+v", d)
	}
	if d := g.Classify("u1", "hi", Context{AccountAgeDays: 100, UserMentions: 6}); d.Path != PathRealtime {
		t.Fatalf("mention spam must be realtime: %+v", d)
	}
	if d := g.Classify("u1", "hi", Context{AccountAgeDays: 100, RiskScore: 60}); d.Path != PathRealtime {
		t.Fatalf("high risk must be realtime: %+v", d)
	}
	if d := g.Classify("u1", "hi", Context{AccountAgeDays: 100, HasAttachments: true}); d.Path != PathRealtime {
		t.Fatalf("attachments must be realtime: %+v", d)
	}
}

func TestDefaultBatched(t *testing.T) {
	g := newTestGate(fakeThreats{}, nil)
	decision := g.Classify("u1", "good afternoon", Context{AccountAgeDays: 365})
	if decision.Path != PathBatched || len(decision.Reasons) != 0 {
		t.Fatalf("expected batched with no reasons: %+v", decision)
	}
}

func TestDomainListChecker(t *testing.T) {
	checker := NewDomainListChecker([]string{"trusted.example"}, []string{"phish.example"})

	if !checker.Suspicious("https://phish.example/login") {
		t.Fatalf("blocked domain must be suspicious")
	}
	if checker.Suspicious("https://trusted.example/page") {
		t.Fatalf("allowed domain must not be suspicious")
	}
	if checker.Suspicious("https://unknown.example/") {
		t.Fatalf("unlisted domain must not be suspicious")
	}
}
