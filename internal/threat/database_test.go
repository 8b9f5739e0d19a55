package threat

import (
	"testing"
	"time"

	"jarvis-moderation/internal/escalation"
	"jarvis-moderation/internal/persist"

	"go.uber.org/zap"
)

type fakeClock struct{ now time.Time }

func (f fakeClock) Now() time.Time { return f.now }

func TestReportMarksKnown(t *testing.T) {
	db := NewDatabase(nil, zap.NewNop())
	db.WithClock(fakeClock{now: time.Unix(0, 0)})

	db.Report("baduser1", "spam", "guild1", escalation.SeverityMedium)

	if !db.IsKnown("baduser1") {
		t.Fatalf("expected reported user to be known")
	}
	if db.IsKnown("gooduser") {
		t.Fatalf("unreported user must not be known")
	}
}

func TestReportCountPerReport(t *testing.T) {
	db := NewDatabase(nil, zap.NewNop())
	db.WithClock(fakeClock{now: time.Unix(0, 0)})

	db.Report("baduser", "spam", "guild1", escalation.SeverityLow)
	db.Report("baduser", "spam", "guild2", escalation.SeverityLow)
	db.Report("baduser", "spam", "guild3", escalation.SeverityLow)

	if count := db.ReportCount("baduser"); count != 3 {
		t.Fatalf("expected 3 reports, got %d", count)
	}
	if count := db.ReportCount("unknown"); count != 0 {
		t.Fatalf("expected 0 reports for unknown user, got %d", count)
	}
}

func TestGuildSetIdempotent(t *testing.T) {
	db := NewDatabase(nil, zap.NewNop())
	db.WithClock(fakeClock{now: time.Unix(0, 0)})

	db.Report("u1", "scam", "guild1", escalation.SeverityLow)
	record := db.Report("u1", "scam", "guild1", escalation.SeverityLow)

	if len(record.Guilds) != 1 {
		t.Fatalf("expected guild set of 1, got %v", record.Guilds)
	}
	if record.ReportCount != 2 {
		t.Fatalf("repeat report must still count, got %d", record.ReportCount)
	}
}

func TestSeverityMonotonic(t *testing.T) {
	db := NewDatabase(nil, zap.NewNop())
	db.WithClock(fakeClock{now: time.Unix(0, 0)})

	db.Report("u1", "scam", "guild1", escalation.SeverityHigh)
	record := db.Report("u1", "scam", "guild1", escalation.SeverityLow)

	if record.Severity != escalation.SeverityHigh {
		t.Fatalf("severity must never decrease, got %s", record.Severity)
	}
}

func TestCrossGuildSeverityEscalation(t *testing.T) {
	db := NewDatabase(nil, zap.NewNop())
	db.WithClock(fakeClock{now: time.Unix(0, 0)})

	var record Record
	for _, guild := range []string{"g1", "g2", "g3"} {
		record = db.Report("u1", "scam", guild, escalation.SeverityLow)
	}
	if record.Severity != escalation.SeverityHigh {
		t.Fatalf("3 guilds must force at least high, got %s", record.Severity)
	}

	for _, guild := range []string{"g4", "g5"} {
		record = db.Report("u1", "scam", guild, escalation.SeverityLow)
	}
	if record.Severity != escalation.SeverityCritical {
		t.Fatalf("5 guilds must force critical, got %s", record.Severity)
	}
}

func TestRemove(t *testing.T) {
	db := NewDatabase(nil, zap.NewNop())
	db.Report("u1", "scam", "g1", escalation.SeverityLow)

	if !db.Remove("u1") {
		t.Fatalf("expected removal of existing record")
	}
	if db.IsKnown("u1") {
		t.Fatalf("removed record must not be known")
	}
	if db.Remove("u1") {
		t.Fatalf("second removal must report false")
	}
}

func TestSnapshotRoundTrip(t *testing.T) {
	snapshots, err := persist.New(t.TempDir(), zap.NewNop())
	if err != nil {
		t.Fatalf("persist: %v", err)
	}

	db := NewDatabase(snapshots, zap.NewNop())
	db.WithClock(fakeClock{now: time.Unix(0, 0)})
	db.Report("u1", "scam", "g1", escalation.SeverityMedium)
	db.Report("u1", "scam", "g2", escalation.SeverityMedium)

	reloaded := NewDatabase(snapshots, zap.NewNop())
	reloaded.Load()
	record, ok := reloaded.Get("u1")
	if !ok {
		t.Fatalf("expected record after reload")
	}
	if record.ReportCount != 2 || len(record.Guilds) != 2 {
		t.Fatalf("unexpected reloaded record: %+v", record)
	}
}

func TestStats(t *testing.T) {
	db := NewDatabase(nil, zap.NewNop())
	db.Report("u1", "scam", "g1", escalation.SeverityCritical)
	db.Report("u2", "spam", "g1", escalation.SeverityLow)
	db.Report("u2", "spam", "g2", escalation.SeverityLow)

	stats := db.Stats()
	if stats.Total != 2 {
		t.Fatalf("expected 2 threats, got %d", stats.Total)
	}
	if stats.MultiGuild != 1 {
		t.Fatalf("expected 1 multi-guild threat, got %d", stats.MultiGuild)
	}
	if stats.BySeverity[escalation.SeverityCritical] != 1 {
		t.Fatalf("expected 1 critical threat, got %d", stats.BySeverity[escalation.SeverityCritical])
	}
}
