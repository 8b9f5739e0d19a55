package pipeline

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"jarvis-moderation/internal/actions"
	"jarvis-moderation/internal/classifier"
	"jarvis-moderation/internal/escalation"
	"jarvis-moderation/internal/gate"
	"jarvis-moderation/internal/queue"
	"jarvis-moderation/internal/risk"
	"jarvis-moderation/internal/storage"
	"jarvis-moderation/internal/threat"
)

// Enqueuer is the batching side of the queue manager.
type Enqueuer interface {
	Enqueue(msg queue.Message) (string, error)
}

// Pipeline routes gated messages to the real-time or batched path and turns
// classifier verdicts into profile updates, threat reports, offense history
// and sanctions. It is the queue manager's Sink.
type Pipeline struct {
	gate       *gate.Gate
	queue      Enqueuer
	classifier classifier.BatchClassifier
	risk       *risk.Store
	threats    *threat.Database
	store      *storage.Store
	executor   actions.Executor
	window     time.Duration
	logger     *zap.Logger
}

func New(g *gate.Gate, q Enqueuer, bc classifier.BatchClassifier, riskStore *risk.Store, threats *threat.Database, store *storage.Store, executor actions.Executor, window time.Duration, logger *zap.Logger) *Pipeline {
	if window <= 0 {
		window = 24 * time.Hour
	}
	return &Pipeline{
		gate:       g,
		queue:      q,
		classifier: bc,
		risk:       riskStore,
		threats:    threats,
		store:      store,
		executor:   executor,
		window:     window,
		logger:     logger,
	}
}

// HandleMessage triages one inbound message. Real-time decisions are
// classified immediately; everything else is queued. A full queue falls back
// to the real-time path so the message is never dropped unseen.
func (p *Pipeline) HandleMessage(ctx context.Context, msg queue.Message, gctx gate.Context) {
	decision := p.gate.Classify(msg.UserID, msg.Content, gctx)

	msg.Context = queue.Context{
		AccountAgeDays: gctx.AccountAgeDays,
		IsFirstMessage: gctx.IsFirstMessage,
		RiskScore:      gctx.RiskScore,
		RiskFactors:    decision.Reasons,
	}

	if decision.Path == gate.PathRealtime {
		p.logger.Debug("real-time classification",
			zap.String("user_id", msg.UserID),
			zap.Strings("reasons", decision.Reasons))
		p.classifyNow(ctx, msg)
		return
	}

	if _, err := p.queue.Enqueue(msg); err != nil {
		if errors.Is(err, queue.ErrQueueFull) {
			p.logger.Warn("queue full, forcing real-time path",
				zap.String("user_id", msg.UserID))
			p.classifyNow(ctx, msg)
			return
		}
		p.logger.Error("enqueue failed", zap.Error(err))
	}
}

func (p *Pipeline) classifyNow(ctx context.Context, msg queue.Message) {
	results, err := p.classifier.ClassifyBatch(ctx, []classifier.Message{{
		MessageID:      msg.MessageID,
		UserID:         msg.UserID,
		Username:       msg.Username,
		GuildID:        msg.GuildID,
		Content:        msg.Content,
		AccountAgeDays: msg.Context.AccountAgeDays,
		RiskScore:      msg.Context.RiskScore,
	}})
	if err != nil {
		p.logger.Error("real-time classification failed",
			zap.String("message_id", msg.MessageID),
			zap.Error(err))
		p.logAnalysis(ctx, []queue.Message{msg}, nil, "realtime failed: "+err.Error())
		return
	}

	for _, res := range results {
		p.applyResult(ctx, msg, res)
	}
	p.logAnalysis(ctx, []queue.Message{msg}, results, "realtime")
}

// HandleBatch consumes a classified batch: one analysis-log entry for the
// batch, then per-message application with failure isolation.
func (p *Pipeline) HandleBatch(ctx context.Context, batch []queue.Message, results []classifier.Result) {
	byID := make(map[string]queue.Message, len(batch))
	for _, msg := range batch {
		byID[msg.MessageID] = msg
	}

	for _, res := range results {
		msg, ok := byID[res.MessageID]
		if !ok {
			p.logger.Warn("result references unknown message",
				zap.String("message_id", res.MessageID))
			continue
		}
		p.applyResult(ctx, msg, res)
	}

	p.logAnalysis(ctx, batch, results, "batch")
}

// HandleFailure records messages whose classification was abandoned after
// retries so the analysis log shows the gap.
func (p *Pipeline) HandleFailure(ctx context.Context, failed []queue.Message, err error) {
	p.logger.Error("batch abandoned",
		zap.Int("messages", len(failed)),
		zap.Error(err))
	p.logAnalysis(ctx, failed, nil, "failed: "+err.Error())
}

// applyResult turns one verdict into state changes and, when the message is
// flagged, an escalated sanction. Errors are logged and swallowed so one bad
// message never blocks the rest of the batch.
func (p *Pipeline) applyResult(ctx context.Context, msg queue.Message, res classifier.Result) {
	flagged := res.Offense != ""
	score := res.RiskScore
	if !flagged && msg.Context.RiskScore > score {
		// A clean verdict scores 0; keep the heuristic context score so an
		// active user's history reflects how they actually looked.
		score = msg.Context.RiskScore
	}
	p.risk.RecordScore(res.UserID, score, flagged)
	if !flagged {
		return
	}

	severity := res.Severity
	if severity == "" {
		severity = escalation.ClassifySeverity(res.RiskScore)
	}

	p.threats.Report(res.UserID, res.Offense, msg.GuildID, severity)

	since := time.Now().Add(-p.window)
	prior, err := p.store.CountRecentOffenses(ctx, res.UserID, msg.GuildID, since)
	if err != nil {
		p.logger.Error("offense lookup failed",
			zap.String("user_id", res.UserID),
			zap.Error(err))
	}
	offenseCount := prior + 1
	action := escalation.Action(offenseCount)

	if err := p.store.RecordOffense(ctx, storage.Offense{
		UserID:   res.UserID,
		GuildID:  msg.GuildID,
		Offense:  res.Offense,
		Action:   string(action),
		Severity: string(severity),
	}); err != nil {
		p.logger.Error("offense record failed",
			zap.String("user_id", res.UserID),
			zap.Error(err))
	}

	p.logger.Info("sanction decided",
		zap.String("user_id", res.UserID),
		zap.String("guild_id", msg.GuildID),
		zap.String("offense", res.Offense),
		zap.String("severity", string(severity)),
		zap.Int("offense_count", offenseCount),
		zap.String("action", string(action)))

	if err := p.execute(ctx, msg.GuildID, res.UserID, action, offenseCount, res.Offense); err != nil {
		p.logger.Error("sanction failed",
			zap.String("user_id", res.UserID),
			zap.String("action", string(action)),
			zap.Error(err))
	}
}

func (p *Pipeline) execute(ctx context.Context, guildID, userID string, action escalation.ActionKind, offenseCount int, reason string) error {
	switch action {
	case escalation.ActionNone:
		return nil
	case escalation.ActionWarn:
		return p.executor.Warn(ctx, guildID, userID, reason)
	case escalation.ActionMute:
		duration := time.Duration(escalation.MuteMinutes(offenseCount)) * time.Minute
		return p.executor.Mute(ctx, guildID, userID, duration, reason)
	case escalation.ActionKick:
		return p.executor.Kick(ctx, guildID, userID, reason)
	case escalation.ActionBan:
		return p.executor.Ban(ctx, guildID, userID, reason)
	default:
		return fmt.Errorf("unknown action %q", action)
	}
}

func (p *Pipeline) logAnalysis(ctx context.Context, batch []queue.Message, results []classifier.Result, outcome string) {
	if len(batch) == 0 {
		return
	}

	ids := make([]string, 0, len(batch))
	for _, msg := range batch {
		ids = append(ids, msg.MessageID)
	}
	flagged := 0
	var offenses []string
	for _, res := range results {
		if res.Offense != "" {
			flagged++
			offenses = append(offenses, res.Offense)
		}
	}
	result := outcome
	if len(offenses) > 0 {
		result += ": " + strings.Join(offenses, "; ")
	}

	entry := storage.AnalysisEntry{
		GuildID:      batch[0].GuildID,
		UserID:       batch[0].UserID,
		Result:       result,
		MessageIDs:   ids,
		MessageCount: len(batch),
		FlaggedCount: flagged,
	}
	if len(batch) > 1 {
		entry.UserID = ""
	}
	if err := p.store.AppendAnalysis(ctx, entry); err != nil {
		p.logger.Error("analysis log write failed", zap.Error(err))
	}
}
