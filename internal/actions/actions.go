package actions

import (
	"context"
	"fmt"
	"time"

	"github.com/bwmarrin/discordgo"
	"go.uber.org/zap"
)

// Executor applies moderation sanctions. Callers decide WHAT happens to a
// user; the executor only knows HOW to make Discord do it.
type Executor interface {
	Warn(ctx context.Context, guildID, userID, reason string) error
	Mute(ctx context.Context, guildID, userID string, duration time.Duration, reason string) error
	Kick(ctx context.Context, guildID, userID, reason string) error
	Ban(ctx context.Context, guildID, userID, reason string) error
}

type session interface {
	GuildMemberTimeout(guildID, userID string, until *time.Time, options ...discordgo.RequestOption) error
	GuildMemberDeleteWithReason(guildID, userID, reason string, options ...discordgo.RequestOption) error
	GuildBanCreateWithReason(guildID, userID, reason string, days int, options ...discordgo.RequestOption) error
	UserChannelCreate(recipientID string, options ...discordgo.RequestOption) (*discordgo.Channel, error)
	ChannelMessageSend(channelID, content string, options ...discordgo.RequestOption) (*discordgo.Message, error)
}

// Discord executes sanctions against the Discord API. When Enabled is false
// every call is logged and skipped, which keeps the rest of the pipeline
// exercisable in audit mode.
type Discord struct {
	session session
	enabled bool
	logger  *zap.Logger
}

func NewDiscord(s *discordgo.Session, enabled bool, logger *zap.Logger) *Discord {
	return &Discord{session: s, enabled: enabled, logger: logger}
}

func (d *Discord) Warn(ctx context.Context, guildID, userID, reason string) error {
	_ = ctx
	if d.audited("warn", guildID, userID, reason) {
		return nil
	}
	channel, err := d.session.UserChannelCreate(userID)
	if err != nil {
		return fmt.Errorf("open dm channel: %w", err)
	}
	content := fmt.Sprintf("You received a moderation warning: %s", reason)
	if _, err := d.session.ChannelMessageSend(channel.ID, content); err != nil {
		return fmt.Errorf("send warning dm: %w", err)
	}
	return nil
}

func (d *Discord) Mute(ctx context.Context, guildID, userID string, duration time.Duration, reason string) error {
	_ = ctx
	if d.audited("mute", guildID, userID, reason) {
		return nil
	}
	until := time.Now().Add(duration)
	if err := d.session.GuildMemberTimeout(guildID, userID, &until); err != nil {
		return fmt.Errorf("timeout member: %w", err)
	}
	return nil
}

func (d *Discord) Kick(ctx context.Context, guildID, userID, reason string) error {
	_ = ctx
	if d.audited("kick", guildID, userID, reason) {
		return nil
	}
	if err := d.session.GuildMemberDeleteWithReason(guildID, userID, reason); err != nil {
		return fmt.Errorf("kick member: %w", err)
	}
	return nil
}

func (d *Discord) Ban(ctx context.Context, guildID, userID, reason string) error {
	_ = ctx
	if d.audited("ban", guildID, userID, reason) {
		return nil
	}
	if err := d.session.GuildBanCreateWithReason(guildID, userID, reason, 0); err != nil {
		return fmt.Errorf("ban member: %w", err)
	}
	return nil
}

func (d *Discord) audited(action, guildID, userID, reason string) bool {
	if d.enabled {
		return false
	}
	d.logger.Info("enforcement disabled, sanction skipped",
		zap.String("action", action),
		zap.String("guild_id", guildID),
		zap.String("user_id", userID),
		zap.String("reason", reason))
	return true
}
