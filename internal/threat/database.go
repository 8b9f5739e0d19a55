package threat

import (
	"sort"
	"sync"
	"time"

	"jarvis-moderation/internal/escalation"
	"jarvis-moderation/internal/persist"

	"go.uber.org/zap"
)

const snapshotFile = "global-threat-db.json"

// Record is one user's entry in the cross-guild threat ledger. Guilds is a
// set; Severity never decreases; ReportCount increments on every report,
// including repeats from the same guild.
type Record struct {
	UserID         string              `json:"userId"`
	Reason         string              `json:"reason"`
	ReportedBy     string              `json:"reportedBy"`
	ReportedAt     int64               `json:"reportedAt"`
	LastReportedAt int64               `json:"lastReportedAt"`
	Severity       escalation.Severity `json:"severity"`
	Guilds         []string            `json:"guilds"`
	ReportCount    int                 `json:"reportCount"`
}

type Clock interface {
	Now() time.Time
}

type realClock struct{}

func (realClock) Now() time.Time { return time.Now() }

type Database struct {
	mu        sync.Mutex
	clock     Clock
	snapshots *persist.Store
	logger    *zap.Logger
	records   map[string]*Record
}

func NewDatabase(snapshots *persist.Store, logger *zap.Logger) *Database {
	return &Database{
		clock:     realClock{},
		snapshots: snapshots,
		logger:    logger,
		records:   make(map[string]*Record),
	}
}

func (d *Database) WithClock(clock Clock) {
	d.clock = clock
}

func (d *Database) Load() {
	d.mu.Lock()
	defer d.mu.Unlock()

	loaded := make(map[string]*Record)
	if d.snapshots != nil && d.snapshots.Load(snapshotFile, &loaded) {
		for userID, record := range loaded {
			record.UserID = userID
		}
		d.records = loaded
		d.logger.Info("threat database loaded", zap.Int("threats", len(loaded)))
	}
}

// Report files a threat report from one guild. Repeat reports from the same
// guild do not grow the guild set but still bump the report count. Reports
// from three or more distinct guilds force severity to at least high, five
// or more to critical.
func (d *Database) Report(userID, reason, guildID string, severity escalation.Severity) Record {
	d.mu.Lock()
	now := d.clock.Now().UnixMilli()

	record := d.records[userID]
	if record == nil {
		record = &Record{
			UserID:     userID,
			ReportedBy: guildID,
			ReportedAt: now,
			Severity:   severity,
		}
		d.records[userID] = record
	}

	record.Reason = reason
	record.ReportCount++
	record.LastReportedAt = now
	record.Severity = escalation.MaxSeverity(record.Severity, severity)

	if !containsGuild(record.Guilds, guildID) {
		record.Guilds = append(record.Guilds, guildID)
	}
	if len(record.Guilds) >= 5 {
		record.Severity = escalation.MaxSeverity(record.Severity, escalation.SeverityCritical)
	} else if len(record.Guilds) >= 3 {
		record.Severity = escalation.MaxSeverity(record.Severity, escalation.SeverityHigh)
	}

	result := copyRecord(record)
	d.mu.Unlock()

	d.save()
	return result
}

func (d *Database) IsKnown(userID string) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.records[userID] != nil
}

func (d *Database) ReportCount(userID string) int {
	d.mu.Lock()
	defer d.mu.Unlock()
	record := d.records[userID]
	if record == nil {
		return 0
	}
	return record.ReportCount
}

func (d *Database) Get(userID string) (Record, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	record := d.records[userID]
	if record == nil {
		return Record{}, false
	}
	return copyRecord(record), true
}

// Remove deletes a record after a false-positive review. Threat records are
// never purged automatically.
func (d *Database) Remove(userID string) bool {
	d.mu.Lock()
	_, existed := d.records[userID]
	delete(d.records, userID)
	d.mu.Unlock()

	d.save()
	return existed
}

func (d *Database) Top(limit int) []Record {
	if limit <= 0 {
		return nil
	}
	d.mu.Lock()
	records := make([]Record, 0, len(d.records))
	for _, record := range d.records {
		records = append(records, copyRecord(record))
	}
	d.mu.Unlock()

	sort.Slice(records, func(i, j int) bool {
		return records[i].ReportCount > records[j].ReportCount
	})
	if len(records) > limit {
		records = records[:limit]
	}
	return records
}

type Stats struct {
	Total      int
	BySeverity map[escalation.Severity]int
	MultiGuild int
}

func (d *Database) Stats() Stats {
	d.mu.Lock()
	defer d.mu.Unlock()

	stats := Stats{BySeverity: make(map[escalation.Severity]int)}
	for _, record := range d.records {
		stats.Total++
		stats.BySeverity[record.Severity]++
		if len(record.Guilds) >= 2 {
			stats.MultiGuild++
		}
	}
	return stats
}

func (d *Database) save() {
	if d.snapshots == nil {
		return
	}
	d.mu.Lock()
	snapshot := make(map[string]*Record, len(d.records))
	for userID, record := range d.records {
		clone := copyRecord(record)
		snapshot[userID] = &clone
	}
	d.mu.Unlock()
	_ = d.snapshots.Save(snapshotFile, snapshot)
}

func containsGuild(guilds []string, guildID string) bool {
	for _, id := range guilds {
		if id == guildID {
			return true
		}
	}
	return false
}

func copyRecord(record *Record) Record {
	clone := *record
	clone.Guilds = append([]string(nil), record.Guilds...)
	return clone
}
