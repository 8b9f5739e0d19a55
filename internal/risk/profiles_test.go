package risk

import (
	"testing"
	"time"

	"jarvis-moderation/internal/persist"

	"go.uber.org/zap"
)

type fakeClock struct{ now time.Time }

func (f fakeClock) Now() time.Time { return f.now }

func TestRecordScoreBoundsHistory(t *testing.T) {
	store := NewStore(3, nil, zap.NewNop())
	store.WithClock(fakeClock{now: time.Unix(0, 0)})

	for i := 0; i < 5; i++ {
		store.RecordScore("u1", i*10, false)
	}

	profile, ok := store.Profile("u1")
	if !ok {
		t.Fatalf("expected profile")
	}
	if len(profile.Scores) != 3 {
		t.Fatalf("expected 3 retained scores, got %d", len(profile.Scores))
	}
	if profile.Scores[0].Score != 20 || profile.Scores[2].Score != 40 {
		t.Fatalf("expected oldest evicted, got %+v", profile.Scores)
	}
	if profile.TotalMessages != 5 {
		t.Fatalf("expected 5 total messages, got %d", profile.TotalMessages)
	}
}

func TestAggregateRiskFavorsRecent(t *testing.T) {
	store := NewStore(50, nil, zap.NewNop())
	store.WithClock(fakeClock{now: time.Unix(0, 0)})

	store.RecordScore("old-high", 90, false)
	store.RecordScore("old-high", 10, false)

	store.RecordScore("new-high", 10, false)
	store.RecordScore("new-high", 90, false)

	oldHigh := store.AggregateRisk("old-high")
	newHigh := store.AggregateRisk("new-high")
	if newHigh <= oldHigh {
		t.Fatalf("recent high score must outweigh old one: new=%d old=%d", newHigh, oldHigh)
	}
	if store.AggregateRisk("unknown") != 0 {
		t.Fatalf("unknown user must aggregate to 0")
	}
}

func TestFlags(t *testing.T) {
	store := NewStore(50, nil, zap.NewNop())
	store.AddFlag("u1", "scam_username")
	if !store.HasFlag("u1", "scam_username") {
		t.Fatalf("expected flag set")
	}
	if store.HasFlag("u1", "other") || store.HasFlag("u2", "scam_username") {
		t.Fatalf("unexpected flag")
	}
}

func TestSnapshotRoundTrip(t *testing.T) {
	dir := t.TempDir()
	snapshots, err := persist.New(dir, zap.NewNop())
	if err != nil {
		t.Fatalf("persist: %v", err)
	}

	store := NewStore(50, snapshots, zap.NewNop())
	store.WithClock(fakeClock{now: time.Unix(1000, 0)})
	store.RecordScore("u1", 40, true)
	store.RecordScore("u1", 60, false)

	reloaded := NewStore(50, snapshots, zap.NewNop())
	reloaded.Load()
	profile, ok := reloaded.Profile("u1")
	if !ok {
		t.Fatalf("expected profile after reload")
	}
	if len(profile.Scores) != 2 || profile.FlaggedCount != 1 {
		t.Fatalf("unexpected reloaded profile: %+v", profile)
	}
}
