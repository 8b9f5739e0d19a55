package risk

import (
	"sort"
	"sync"
	"time"

	"jarvis-moderation/internal/persist"

	"go.uber.org/zap"
)

const snapshotFile = "user-risk-profiles.json"

type ScorePoint struct {
	Score     int   `json:"score"`
	Timestamp int64 `json:"timestamp"`
	Flagged   bool  `json:"flagged"`
}

type Profile struct {
	UserID        string          `json:"userId"`
	Scores        []ScorePoint    `json:"scores"`
	LastSeen      int64           `json:"lastSeen"`
	TotalMessages int             `json:"totalMessages"`
	FlaggedCount  int             `json:"flaggedCount"`
	Flags         map[string]bool `json:"flags,omitempty"`
}

type Clock interface {
	Now() time.Time
}

type realClock struct{}

func (realClock) Now() time.Time { return time.Now() }

// Store holds per-user rolling risk histories. Score lists are bounded ring
// buffers; profiles are never deleted automatically. All mutation is a
// read-modify-write under the store mutex, which serializes concurrent
// real-time and batch updates to the same profile.
type Store struct {
	mu         sync.Mutex
	maxHistory int
	clock      Clock
	snapshots  *persist.Store
	logger     *zap.Logger
	profiles   map[string]*Profile
}

func NewStore(maxHistory int, snapshots *persist.Store, logger *zap.Logger) *Store {
	if maxHistory <= 0 {
		maxHistory = 50
	}
	return &Store{
		maxHistory: maxHistory,
		clock:      realClock{},
		snapshots:  snapshots,
		logger:     logger,
		profiles:   make(map[string]*Profile),
	}
}

func (s *Store) WithClock(clock Clock) {
	s.clock = clock
}

func (s *Store) Load() {
	s.mu.Lock()
	defer s.mu.Unlock()

	loaded := make(map[string]*Profile)
	if s.snapshots != nil && s.snapshots.Load(snapshotFile, &loaded) {
		for userID, profile := range loaded {
			profile.UserID = userID
		}
		s.profiles = loaded
		s.logger.Info("risk profiles loaded", zap.Int("count", len(loaded)))
	}
}

func (s *Store) RecordScore(userID string, score int, flagged bool) {
	s.mu.Lock()
	profile := s.profileLocked(userID)
	now := s.clock.Now()

	profile.Scores = append(profile.Scores, ScorePoint{Score: score, Timestamp: now.UnixMilli(), Flagged: flagged})
	if len(profile.Scores) > s.maxHistory {
		profile.Scores = profile.Scores[len(profile.Scores)-s.maxHistory:]
	}
	profile.LastSeen = now.UnixMilli()
	profile.TotalMessages++
	if flagged {
		profile.FlaggedCount++
	}
	s.mu.Unlock()

	s.save()
}

func (s *Store) AddFlag(userID, flag string) {
	s.mu.Lock()
	profile := s.profileLocked(userID)
	if profile.Flags == nil {
		profile.Flags = make(map[string]bool)
	}
	profile.Flags[flag] = true
	s.mu.Unlock()

	s.save()
}

func (s *Store) HasFlag(userID, flag string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	profile := s.profiles[userID]
	return profile != nil && profile.Flags[flag]
}

// AggregateRisk is a recency-weighted mean over the retained window: entry i
// of n carries weight i+1, so a recent high score always outweighs an equal
// number of older low ones.
func (s *Store) AggregateRisk(userID string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	profile := s.profiles[userID]
	if profile == nil {
		return 0
	}
	return aggregate(profile.Scores)
}

func (s *Store) Profile(userID string) (Profile, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	profile := s.profiles[userID]
	if profile == nil {
		return Profile{}, false
	}
	return copyProfile(profile), true
}

// Top returns the highest-aggregate profiles for operator tooling.
func (s *Store) Top(limit int) []Profile {
	if limit <= 0 {
		return nil
	}

	type ranked struct {
		profile Profile
		score   int
	}

	s.mu.Lock()
	entries := make([]ranked, 0, len(s.profiles))
	for _, profile := range s.profiles {
		entries = append(entries, ranked{profile: copyProfile(profile), score: aggregate(profile.Scores)})
	}
	s.mu.Unlock()

	sort.Slice(entries, func(i, j int) bool {
		return entries[i].score > entries[j].score
	})
	if len(entries) > limit {
		entries = entries[:limit]
	}

	result := make([]Profile, len(entries))
	for i, entry := range entries {
		result[i] = entry.profile
	}
	return result
}

func (s *Store) profileLocked(userID string) *Profile {
	profile := s.profiles[userID]
	if profile == nil {
		profile = &Profile{UserID: userID}
		s.profiles[userID] = profile
	}
	return profile
}

func (s *Store) save() {
	if s.snapshots == nil {
		return
	}
	s.mu.Lock()
	snapshot := make(map[string]*Profile, len(s.profiles))
	for userID, profile := range s.profiles {
		clone := copyProfile(profile)
		snapshot[userID] = &clone
	}
	s.mu.Unlock()
	_ = s.snapshots.Save(snapshotFile, snapshot)
}

func copyProfile(profile *Profile) Profile {
	clone := *profile
	clone.Scores = append([]ScorePoint(nil), profile.Scores...)
	if profile.Flags != nil {
		clone.Flags = make(map[string]bool, len(profile.Flags))
		for flag, set := range profile.Flags {
			clone.Flags[flag] = set
		}
	}
	return clone
}

func aggregate(scores []ScorePoint) int {
	if len(scores) == 0 {
		return 0
	}
	sum := 0
	weights := 0
	for i, point := range scores {
		weight := i + 1
		sum += point.Score * weight
		weights += weight
	}
	return (sum + weights/2) / weights
}
