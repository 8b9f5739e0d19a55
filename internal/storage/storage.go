package storage

import (
	"context"
	"database/sql"
	"embed"
	"fmt"
	"path"
	"sort"
	"strings"
	"time"

	_ "modernc.org/sqlite"
)

//go:embed migrations/*.sql
var migrations embed.FS

type Store struct {
	db             *sql.DB
	maxAnalysisLog int
	maxOffenses    int
}

func New(dbPath string, maxAnalysisLog, maxOffenses int) (*Store, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, err
	}
	if maxAnalysisLog <= 0 {
		maxAnalysisLog = 100
	}
	if maxOffenses <= 0 {
		maxOffenses = 50
	}
	return &Store{db: db, maxAnalysisLog: maxAnalysisLog, maxOffenses: maxOffenses}, nil
}

func (s *Store) Close() {
	if s.db != nil {
		_ = s.db.Close()
	}
}

func (s *Store) Migrate() error {
	entries, err := migrations.ReadDir("migrations")
	if err != nil {
		return err
	}

	var files []string
	for _, entry := range entries {
		files = append(files, entry.Name())
	}
	sort.Strings(files)

	for _, file := range files {
		content, err := migrations.ReadFile(path.Join("migrations", file))
		if err != nil {
			return err
		}
		if _, err := s.db.Exec(string(content)); err != nil {
			if isIgnorableMigrationError(err) {
				continue
			}
			return fmt.Errorf("migration %s failed: %w", file, err)
		}
	}
	return nil
}

func isIgnorableMigrationError(err error) bool {
	if err == nil {
		return false
	}
	message := err.Error()
	return strings.Contains(message, "duplicate column name") || strings.Contains(message, "already exists")
}

type AnalysisEntry struct {
	ID           int64
	GuildID      string
	UserID       string
	Result       string
	MessageIDs   []string
	MessageCount int
	FlaggedCount int
	CreatedAt    time.Time
}

// AppendAnalysis records a batch outcome and evicts the oldest rows beyond
// the configured cap.
func (s *Store) AppendAnalysis(ctx context.Context, entry AnalysisEntry) error {
	createdAt := entry.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now()
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO analysis_log (guild_id, user_id, result, message_ids, message_count, flagged_count, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`, entry.GuildID, entry.UserID, entry.Result, strings.Join(entry.MessageIDs, ","), entry.MessageCount, entry.FlaggedCount, createdAt.Unix())
	if err != nil {
		return err
	}

	_, err = s.db.ExecContext(ctx, `
		DELETE FROM analysis_log WHERE id NOT IN (
			SELECT id FROM analysis_log ORDER BY id DESC LIMIT ?
		)
	`, s.maxAnalysisLog)
	return err
}

func (s *Store) RecentAnalysis(ctx context.Context, guildID string, limit int) ([]AnalysisEntry, error) {
	if limit <= 0 {
		limit = 50
	}
	query := `
		SELECT id, guild_id, user_id, result, message_ids, message_count, flagged_count, created_at
		FROM analysis_log`
	args := []any{}
	if guildID != "" {
		query += ` WHERE guild_id = ?`
		args = append(args, guildID)
	}
	query += ` ORDER BY id DESC LIMIT ?`
	args = append(args, limit)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var entries []AnalysisEntry
	for rows.Next() {
		var entry AnalysisEntry
		var ids string
		var created int64
		if err := rows.Scan(&entry.ID, &entry.GuildID, &entry.UserID, &entry.Result, &ids, &entry.MessageCount, &entry.FlaggedCount, &created); err != nil {
			return nil, err
		}
		if ids != "" {
			entry.MessageIDs = strings.Split(ids, ",")
		}
		entry.CreatedAt = time.Unix(created, 0)
		entries = append(entries, entry)
	}
	return entries, rows.Err()
}

type Offense struct {
	ID        int64
	UserID    string
	GuildID   string
	Offense   string
	Action    string
	Severity  string
	CreatedAt time.Time
}

func (s *Store) RecordOffense(ctx context.Context, offense Offense) error {
	createdAt := offense.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now()
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO user_offenses (user_id, guild_id, offense, action, severity, created_at)
		VALUES (?, ?, ?, ?, ?, ?)
	`, offense.UserID, offense.GuildID, offense.Offense, offense.Action, offense.Severity, createdAt.Unix())
	if err != nil {
		return err
	}

	// Keep only the most recent offenses per user.
	_, err = s.db.ExecContext(ctx, `
		DELETE FROM user_offenses WHERE user_id = ? AND id NOT IN (
			SELECT id FROM user_offenses WHERE user_id = ? ORDER BY id DESC LIMIT ?
		)
	`, offense.UserID, offense.UserID, s.maxOffenses)
	return err
}

// CountRecentOffenses counts a user's offenses in one guild since the cutoff.
// This is the offense count the escalation policy runs on.
func (s *Store) CountRecentOffenses(ctx context.Context, userID, guildID string, since time.Time) (int, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM user_offenses
		WHERE user_id = ? AND guild_id = ? AND created_at > ?
	`, userID, guildID, since.Unix())

	var count int
	if err := row.Scan(&count); err != nil {
		return 0, err
	}
	return count, nil
}

func (s *Store) ListOffenses(ctx context.Context, userID string, limit int) ([]Offense, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, user_id, guild_id, offense, action, severity, created_at
		FROM user_offenses
		WHERE user_id = ?
		ORDER BY id DESC LIMIT ?
	`, userID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var offenses []Offense
	for rows.Next() {
		var o Offense
		var created int64
		if err := rows.Scan(&o.ID, &o.UserID, &o.GuildID, &o.Offense, &o.Action, &o.Severity, &created); err != nil {
			return nil, err
		}
		o.CreatedAt = time.Unix(created, 0)
		offenses = append(offenses, o)
	}
	return offenses, rows.Err()
}

// ClearOffenses removes a user's offenses, optionally scoped to one guild.
// Used after a ban or a successful appeal.
func (s *Store) ClearOffenses(ctx context.Context, userID, guildID string) error {
	if guildID == "" {
		_, err := s.db.ExecContext(ctx, `DELETE FROM user_offenses WHERE user_id = ?`, userID)
		return err
	}
	_, err := s.db.ExecContext(ctx, `DELETE FROM user_offenses WHERE user_id = ? AND guild_id = ?`, userID, guildID)
	return err
}
