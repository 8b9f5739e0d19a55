package queue

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"jarvis-moderation/internal/classifier"
	"jarvis-moderation/internal/persist"

	"github.com/cenkalti/backoff/v4"
	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

const (
	snapshotFile  = "moderation-queue.json"
	maxContentLen = 500
)

// ErrQueueFull is returned when the bounded queue is at capacity. The caller
// routes the rejected message onto the real-time path instead of dropping it.
var ErrQueueFull = errors.New("moderation queue full")

type Message struct {
	ID        string  `json:"id"`
	GuildID   string  `json:"guildId"`
	ChannelID string  `json:"channelId"`
	MessageID string  `json:"messageId"`
	UserID    string  `json:"userId"`
	Username  string  `json:"username"`
	Content   string  `json:"content"`
	Timestamp int64   `json:"timestamp"`
	Attempts  int     `json:"attempts"`
	Context   Context `json:"context"`
}

type Context struct {
	AccountAgeDays int      `json:"accountAgeDays"`
	MemberAgeDays  int      `json:"memberAgeDays"`
	IsFirstMessage bool     `json:"isFirstMessage"`
	RiskScore      int      `json:"riskScore"`
	RiskFactors    []string `json:"riskFactors,omitempty"`
}

// Sink receives classified batches and terminally failed messages.
type Sink interface {
	HandleBatch(ctx context.Context, batch []Message, results []classifier.Result)
	HandleFailure(ctx context.Context, failed []Message, err error)
}

type Clock interface {
	Now() time.Time
	AfterFunc(d time.Duration, f func()) Timer
}

type Timer interface {
	Stop() bool
}

type realClock struct{}

type realTimer struct{ t *time.Timer }

func (realClock) Now() time.Time { return time.Now() }

func (realClock) AfterFunc(d time.Duration, f func()) Timer {
	return realTimer{t: time.AfterFunc(d, f)}
}

func (t realTimer) Stop() bool { return t.t.Stop() }

type Config struct {
	MaxSize              int
	BatchInterval        time.Duration
	SizeTrigger          int
	MaxRetries           int
	ClassifyTimeout      time.Duration
	RetryAttempts        uint64
	RetryInitialInterval time.Duration
	RetryMaxInterval     time.Duration
	RatePerMinute        float64
	Burst                int
}

func (c *Config) applyDefaults() {
	if c.MaxSize <= 0 {
		c.MaxSize = 200
	}
	if c.BatchInterval <= 0 {
		c.BatchInterval = time.Minute
	}
	if c.SizeTrigger <= 0 {
		c.SizeTrigger = 50
	}
	if c.MaxRetries <= 0 {
		c.MaxRetries = 3
	}
	if c.ClassifyTimeout <= 0 {
		c.ClassifyTimeout = 30 * time.Second
	}
	if c.RetryAttempts == 0 {
		c.RetryAttempts = 2
	}
	if c.RetryInitialInterval <= 0 {
		c.RetryInitialInterval = 500 * time.Millisecond
	}
	if c.RetryMaxInterval <= 0 {
		c.RetryMaxInterval = 5 * time.Second
	}
}

// Manager owns the bounded, disk-backed FIFO of messages awaiting batch
// analysis. A single flush may be in flight at a time; timer-driven and
// size-triggered flushes contend on the isProcessing guard and the loser is
// a no-op.
type Manager struct {
	mu           sync.Mutex
	cfg          Config
	clock        Clock
	pending      []Message
	isProcessing bool
	closed       bool
	timer        Timer
	classifier   classifier.BatchClassifier
	limiter      *rate.Limiter
	sink         Sink
	snapshots    *persist.Store
	logger       *zap.Logger
}

func NewManager(cfg Config, batchClassifier classifier.BatchClassifier, sink Sink, snapshots *persist.Store, logger *zap.Logger) *Manager {
	cfg.applyDefaults()
	var limiter *rate.Limiter
	if cfg.RatePerMinute > 0 {
		burst := cfg.Burst
		if burst <= 0 {
			burst = 1
		}
		limiter = rate.NewLimiter(rate.Limit(cfg.RatePerMinute/60.0), burst)
	}
	return &Manager{
		cfg:        cfg,
		clock:      realClock{},
		classifier: batchClassifier,
		limiter:    limiter,
		sink:       sink,
		snapshots:  snapshots,
		logger:     logger,
	}
}

func (m *Manager) WithClock(clock Clock) {
	m.clock = clock
}

// SetSink installs the batch consumer. Must be called before Start when the
// manager was built without one.
func (m *Manager) SetSink(sink Sink) {
	m.mu.Lock()
	m.sink = sink
	m.mu.Unlock()
}

// BatchSize computes the dynamic batch size from queue depth: drain small
// queues entirely, chip away at larger ones in growing slices.
func BatchSize(queueLength int) int {
	switch {
	case queueLength <= 10:
		return queueLength
	case queueLength <= 50:
		return 10
	case queueLength <= 100:
		return 20
	default:
		return 30
	}
}

// SortByPriority orders messages by heuristic risk descending, then by
// timestamp ascending so older messages win ties.
func SortByPriority(messages []Message) {
	sort.SliceStable(messages, func(i, j int) bool {
		if messages[i].Context.RiskScore != messages[j].Context.RiskScore {
			return messages[i].Context.RiskScore > messages[j].Context.RiskScore
		}
		return messages[i].Timestamp < messages[j].Timestamp
	})
}

type snapshot struct {
	Queue   []Message `json:"queue"`
	SavedAt int64     `json:"savedAt"`
}

// Load restores the persisted queue. Must run before Start; corrupt or
// missing snapshots leave the queue empty.
func (m *Manager) Load() {
	if m.snapshots == nil {
		return
	}
	var snap snapshot
	if !m.snapshots.Load(snapshotFile, &snap) {
		return
	}

	m.mu.Lock()
	m.pending = snap.Queue
	if len(m.pending) > m.cfg.MaxSize {
		m.pending = m.pending[:m.cfg.MaxSize]
	}
	count := len(m.pending)
	m.mu.Unlock()

	m.logger.Info("queued messages restored", zap.Int("count", count))
}

// Start arms the batch timer.
func (m *Manager) Start() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.timer != nil || m.closed {
		return
	}
	m.timer = m.clock.AfterFunc(m.cfg.BatchInterval, m.tick)
}

func (m *Manager) tick() {
	m.Flush(context.Background())

	m.mu.Lock()
	if !m.closed {
		m.timer = m.clock.AfterFunc(m.cfg.BatchInterval, m.tick)
	}
	m.mu.Unlock()
}

// Close stops the timer and writes a final snapshot. Pending messages stay
// on disk for the next start.
func (m *Manager) Close() {
	m.mu.Lock()
	m.closed = true
	if m.timer != nil {
		m.timer.Stop()
		m.timer = nil
	}
	m.mu.Unlock()

	m.save()
}

// Enqueue appends a message to the pending queue. The content is truncated
// and the entry gets an ID when missing. At capacity the message is rejected
// with ErrQueueFull.
func (m *Manager) Enqueue(msg Message) (string, error) {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return "", errors.New("queue closed")
	}
	if len(m.pending) >= m.cfg.MaxSize {
		m.mu.Unlock()
		return "", ErrQueueFull
	}

	if msg.ID == "" {
		msg.ID = uuid.NewString()
	}
	if msg.Timestamp == 0 {
		msg.Timestamp = m.clock.Now().UnixMilli()
	}
	msg.Content = truncate(msg.Content, maxContentLen)

	m.pending = append(m.pending, msg)
	shouldFlush := len(m.pending) >= m.cfg.SizeTrigger && !m.isProcessing
	m.mu.Unlock()

	m.save()
	if shouldFlush {
		go m.Flush(context.Background())
	}
	return msg.ID, nil
}

// Flush drains one dynamically sized batch and submits it to the classifier,
// guild by guild. Only one flush runs at a time; a concurrent trigger is a
// no-op. The snapshot written before the classifier call still contains the
// in-flight batch, so an aborted flush is recoverable on restart.
func (m *Manager) Flush(ctx context.Context) {
	m.mu.Lock()
	if m.isProcessing || m.closed || len(m.pending) == 0 {
		m.mu.Unlock()
		return
	}
	m.isProcessing = true

	size := BatchSize(len(m.pending))
	batch := append([]Message(nil), m.pending[:size]...)
	m.pending = append([]Message(nil), m.pending[size:]...)

	ahead := make([]Message, 0, size+len(m.pending))
	ahead = append(ahead, batch...)
	ahead = append(ahead, m.pending...)
	m.mu.Unlock()

	// The batch is always the oldest messages; priority only orders work
	// inside it so high-risk messages reach the classifier first.
	SortByPriority(batch)

	m.saveSnapshot(ahead)
	m.logger.Info("processing batch", zap.Int("messages", len(batch)))

	var requeue []Message
	for guildID, group := range groupByGuild(batch) {
		results, err := m.classify(ctx, group)
		if err != nil {
			m.logger.Warn("batch classification failed",
				zap.String("guild_id", guildID),
				zap.Int("messages", len(group)),
				zap.Error(err))

			var dropped []Message
			for _, msg := range group {
				msg.Attempts++
				if msg.Attempts > m.cfg.MaxRetries {
					dropped = append(dropped, msg)
				} else {
					requeue = append(requeue, msg)
				}
			}
			if len(dropped) > 0 {
				m.sink.HandleFailure(ctx, dropped, fmt.Errorf("retries exhausted: %w", err))
			}
			continue
		}
		m.sink.HandleBatch(ctx, group, results)
	}

	m.mu.Lock()
	if len(requeue) > 0 {
		m.pending = append(requeue, m.pending...)
	}
	m.isProcessing = false
	m.mu.Unlock()

	m.save()
}

func (m *Manager) classify(ctx context.Context, msgs []Message) ([]classifier.Result, error) {
	if m.limiter != nil {
		if err := m.limiter.Wait(ctx); err != nil {
			return nil, err
		}
	}

	policy := backoff.WithContext(backoff.WithMaxRetries(backoff.NewExponentialBackOff(
		backoff.WithInitialInterval(m.cfg.RetryInitialInterval),
		backoff.WithMaxInterval(m.cfg.RetryMaxInterval),
	), m.cfg.RetryAttempts), ctx)

	var results []classifier.Result
	err := backoff.Retry(func() error {
		cctx, cancel := context.WithTimeout(ctx, m.cfg.ClassifyTimeout)
		defer cancel()

		var err error
		results, err = m.classifier.ClassifyBatch(cctx, toClassifierMessages(msgs))
		return err
	}, policy)
	return results, err
}

type Status struct {
	PendingMessages int
	IsProcessing    bool
	OldestMessage   int64
	NewestMessage   int64
}

func (m *Manager) Status() Status {
	m.mu.Lock()
	defer m.mu.Unlock()

	status := Status{PendingMessages: len(m.pending), IsProcessing: m.isProcessing}
	if len(m.pending) > 0 {
		status.OldestMessage = m.pending[0].Timestamp
		status.NewestMessage = m.pending[len(m.pending)-1].Timestamp
	}
	return status
}

// Pending lists queued messages for operator tooling, newest first,
// optionally filtered by guild.
func (m *Manager) Pending(guildID string, limit int) []Message {
	if limit <= 0 {
		limit = 50
	}
	m.mu.Lock()
	filtered := make([]Message, 0, len(m.pending))
	for _, msg := range m.pending {
		if guildID == "" || msg.GuildID == guildID {
			filtered = append(filtered, msg)
		}
	}
	m.mu.Unlock()

	if len(filtered) > limit {
		filtered = filtered[len(filtered)-limit:]
	}
	for i, j := 0, len(filtered)-1; i < j; i, j = i+1, j-1 {
		filtered[i], filtered[j] = filtered[j], filtered[i]
	}
	return filtered
}

func (m *Manager) save() {
	m.mu.Lock()
	current := append([]Message(nil), m.pending...)
	m.mu.Unlock()
	m.saveSnapshot(current)
}

func (m *Manager) saveSnapshot(messages []Message) {
	if m.snapshots == nil {
		return
	}
	_ = m.snapshots.Save(snapshotFile, snapshot{Queue: messages, SavedAt: m.clock.Now().UnixMilli()})
}

func groupByGuild(batch []Message) map[string][]Message {
	groups := make(map[string][]Message)
	for _, msg := range batch {
		groups[msg.GuildID] = append(groups[msg.GuildID], msg)
	}
	return groups
}

func toClassifierMessages(msgs []Message) []classifier.Message {
	out := make([]classifier.Message, len(msgs))
	for i, msg := range msgs {
		out[i] = classifier.Message{
			MessageID:      msg.MessageID,
			UserID:         msg.UserID,
			Username:       msg.Username,
			GuildID:        msg.GuildID,
			Content:        msg.Content,
			AccountAgeDays: msg.Context.AccountAgeDays,
			RiskScore:      msg.Context.RiskScore,
		}
	}
	return out
}

func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	runes := []rune(s)
	if len(runes) <= max {
		return s
	}
	return string(runes[:max])
}
