package bot

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"jarvis-moderation/internal/config"
	"jarvis-moderation/internal/escalation"
	"jarvis-moderation/internal/gate"
	"jarvis-moderation/internal/pipeline"
	"jarvis-moderation/internal/queue"
	"jarvis-moderation/internal/risk"
	"jarvis-moderation/internal/scam"
	"jarvis-moderation/internal/storage"
	"jarvis-moderation/internal/threat"
	"jarvis-moderation/internal/utils"

	"github.com/bwmarrin/discordgo"
	"go.uber.org/zap"
)

const (
	rapidWindow = 10 * time.Second
	rapidLimit  = 5
)

// Bot wires Discord gateway events into the moderation pipeline and exposes
// operator slash commands over the queue, risk profiles and the threat
// database.
type Bot struct {
	cfg      config.Config
	logger   *zap.Logger
	session  *discordgo.Session
	pipeline *pipeline.Pipeline
	queue    *queue.Manager
	risk     *risk.Store
	threats  *threat.Database
	store    *storage.Store
	detector *scam.Detector

	mu       sync.Mutex
	seen     map[string]map[string]struct{}
	activity map[string]*utils.SlidingWindow
}

func New(cfg config.Config, logger *zap.Logger, q *queue.Manager, riskStore *risk.Store, threats *threat.Database, store *storage.Store, detector *scam.Detector) (*Bot, error) {
	session, err := discordgo.New("Bot " + cfg.DiscordToken)
	if err != nil {
		return nil, err
	}

	session.Identify.Intents = discordgo.IntentsGuilds |
		discordgo.IntentsGuildMessages |
		discordgo.IntentsGuildMembers |
		discordgo.IntentsMessageContent

	return &Bot{
		cfg:      cfg,
		logger:   logger,
		session:  session,
		queue:    q,
		risk:     riskStore,
		threats:  threats,
		store:    store,
		detector: detector,
		seen:     make(map[string]map[string]struct{}),
		activity: make(map[string]*utils.SlidingWindow),
	}, nil
}

// Session exposes the underlying connection for the action executor.
func (b *Bot) Session() *discordgo.Session {
	return b.session
}

// SetPipeline installs the message pipeline. The executor needs the session,
// which only exists after New, so the pipeline arrives late.
func (b *Bot) SetPipeline(p *pipeline.Pipeline) {
	b.pipeline = p
}

func (b *Bot) Start() error {
	b.session.AddHandler(b.onReady)
	b.session.AddHandler(b.onMessageCreate)
	b.session.AddHandler(b.onGuildMemberAdd)
	b.session.AddHandler(b.onInteractionCreate)

	if err := b.session.Open(); err != nil {
		return err
	}

	return b.registerCommands()
}

func (b *Bot) Close(ctx context.Context) {
	_ = ctx
	if b.session != nil {
		_ = b.session.Close()
	}
}

func (b *Bot) onReady(session *discordgo.Session, event *discordgo.Ready) {
	b.logger.Info("discord ready", zap.String("user", session.State.User.Username))
}

func (b *Bot) onMessageCreate(session *discordgo.Session, msg *discordgo.MessageCreate) {
	if msg.Author == nil || msg.Author.Bot {
		return
	}
	if msg.GuildID == "" || b.pipeline == nil {
		return
	}

	ctx := context.Background()
	now := time.Now()

	ageDays := accountAgeDays(msg.Author.ID, now)
	first := b.markSeen(msg.GuildID, msg.Author.ID)
	rapid := b.trackActivity(msg.GuildID, msg.Author.ID, now) >= rapidLimit

	mentionSpam := msg.MentionEveryone || len(msg.Mentions) > b.cfg.Gate.MentionLimit
	factors := escalation.Factors{
		NewAccount:     ageDays < b.cfg.Gate.NewAccountDays,
		NoAvatar:       msg.Author.Avatar == "",
		SuspiciousName: scam.SuspiciousName(msg.Author.Username),
		RapidMessages:  rapid,
		MentionSpam:    mentionSpam,
	}
	heuristic := escalation.CalculateRisk(factors)
	if stored := b.risk.AggregateRisk(msg.Author.ID); stored > heuristic {
		heuristic = stored
	}

	gctx := gate.Context{
		AccountAgeDays:   ageDays,
		IsFirstMessage:   first,
		HasAttachments:   len(msg.Attachments) > 0,
		MentionsEveryone: msg.MentionEveryone,
		UserMentions:     len(msg.Mentions),
		RiskScore:        heuristic,
	}

	b.pipeline.HandleMessage(ctx, queue.Message{
		GuildID:   msg.GuildID,
		ChannelID: msg.ChannelID,
		MessageID: msg.ID,
		UserID:    msg.Author.ID,
		Username:  msg.Author.Username,
		Content:   msg.Content,
		Timestamp: now.UnixMilli(),
	}, gctx)
}

func (b *Bot) onGuildMemberAdd(session *discordgo.Session, event *discordgo.GuildMemberAdd) {
	if event.GuildID == "" || event.User == nil || !b.cfg.Scam.Enabled {
		return
	}
	_ = session

	createdAt, err := discordgo.SnowflakeTimestamp(event.User.ID)
	if err != nil {
		b.logger.Warn("bad user snowflake", zap.String("user_id", event.User.ID))
		return
	}

	analysis := b.detector.Analyze(scam.Member{
		UserID:      event.User.ID,
		Username:    event.User.Username,
		DisplayName: event.Nick,
		CreatedAt:   createdAt,
		HasAvatar:   event.User.Avatar != "",
	})
	if !analysis.Suspicious() {
		return
	}

	b.risk.AddFlag(event.User.ID, "suspicious_join")
	b.logger.Info("suspicious member joined",
		zap.String("guild_id", event.GuildID),
		zap.String("user_id", event.User.ID),
		zap.Int("warnings", len(analysis.Warnings)))

	b.sendJoinAlert(event, analysis, createdAt)
}

func (b *Bot) sendJoinAlert(event *discordgo.GuildMemberAdd, analysis scam.Analysis, createdAt time.Time) {
	if b.cfg.AlertChannel == "" {
		return
	}

	var lines []string
	for _, w := range analysis.Warnings {
		lines = append(lines, fmt.Sprintf("[%s] %s", strings.ToUpper(string(w.Level)), w.Message))
	}
	embed := &discordgo.MessageEmbed{
		Title:       "New member alert",
		Description: strings.Join(lines, "\n"),
		Color:       0xE67E22,
		Timestamp:   time.Now().Format(time.RFC3339),
		Fields: []*discordgo.MessageEmbedField{
			{Name: "User", Value: fmt.Sprintf("<@%s> (%s)", event.User.ID, event.User.Username), Inline: true},
			{Name: "Account created", Value: createdAt.UTC().Format(time.RFC1123), Inline: true},
			{Name: "Account age", Value: fmt.Sprintf("%d days", analysis.AccountAgeDays), Inline: true},
		},
	}
	if _, err := b.session.ChannelMessageSendEmbed(b.cfg.AlertChannel, embed); err != nil {
		b.logger.Warn("join alert failed", zap.Error(err))
	}
}

// markSeen reports whether this is the first message observed from the user
// in the guild since startup.
func (b *Bot) markSeen(guildID, userID string) bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	users, ok := b.seen[guildID]
	if !ok {
		users = make(map[string]struct{})
		b.seen[guildID] = users
	}
	if _, ok := users[userID]; ok {
		return false
	}
	users[userID] = struct{}{}
	return true
}

func (b *Bot) trackActivity(guildID, userID string, now time.Time) int {
	key := guildID + ":" + userID
	b.mu.Lock()
	defer b.mu.Unlock()

	window, ok := b.activity[key]
	if !ok {
		window = utils.NewSlidingWindow(rapidWindow)
		b.activity[key] = window
	}
	return window.Add(now)
}

func accountAgeDays(userID string, now time.Time) int {
	createdAt, err := discordgo.SnowflakeTimestamp(userID)
	if err != nil {
		return 0
	}
	return int(now.Sub(createdAt).Hours() / 24)
}
