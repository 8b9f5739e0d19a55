package actions

import (
	"context"
	"testing"
	"time"

	"github.com/bwmarrin/discordgo"
	"go.uber.org/zap"
)

type fakeSession struct {
	timeouts []string
	kicks    []string
	bans     []string
	dms      []string
}

func (f *fakeSession) GuildMemberTimeout(guildID, userID string, until *time.Time, options ...discordgo.RequestOption) error {
	f.timeouts = append(f.timeouts, guildID+"/"+userID)
	return nil
}

func (f *fakeSession) GuildMemberDeleteWithReason(guildID, userID, reason string, options ...discordgo.RequestOption) error {
	f.kicks = append(f.kicks, guildID+"/"+userID)
	return nil
}

func (f *fakeSession) GuildBanCreateWithReason(guildID, userID, reason string, days int, options ...discordgo.RequestOption) error {
	f.bans = append(f.bans, guildID+"/"+userID)
	return nil
}

func (f *fakeSession) UserChannelCreate(recipientID string, options ...discordgo.RequestOption) (*discordgo.Channel, error) {
	return &discordgo.Channel{ID: "dm-" + recipientID}, nil
}

func (f *fakeSession) ChannelMessageSend(channelID, content string, options ...discordgo.RequestOption) (*discordgo.Message, error) {
	f.dms = append(f.dms, channelID)
	return &discordgo.Message{}, nil
}

func TestDiscordExecutesSanctions(t *testing.T) {
	fs := &fakeSession{}
	d := &Discord{session: fs, enabled: true, logger: zap.NewNop()}
	ctx := context.Background()

	if err := d.Warn(ctx, "g1", "u1", "spam"); err != nil {
		t.Fatalf("warn: %v", err)
	}
	if err := d.Mute(ctx, "g1", "u1", 5*time.Minute, "spam"); err != nil {
		t.Fatalf("mute: %v", err)
	}
	if err := d.Kick(ctx, "g1", "u1", "spam"); err != nil {
		t.Fatalf("kick: %v", err)
	}
	if err := d.Ban(ctx, "g1", "u1", "spam"); err != nil {
		t.Fatalf("ban: %v", err)
	}

	if len(fs.dms) != 1 || fs.dms[0] != "dm-u1" {
		t.Fatalf("warn dm not sent: %v", fs.dms)
	}
	if len(fs.timeouts) != 1 || len(fs.kicks) != 1 || len(fs.bans) != 1 {
		t.Fatalf("expected one of each sanction: %+v", fs)
	}
}

func TestDiscordAuditModeSkips(t *testing.T) {
	fs := &fakeSession{}
	d := &Discord{session: fs, enabled: false, logger: zap.NewNop()}
	ctx := context.Background()

	_ = d.Warn(ctx, "g1", "u1", "spam")
	_ = d.Mute(ctx, "g1", "u1", 5*time.Minute, "spam")
	_ = d.Kick(ctx, "g1", "u1", "spam")
	_ = d.Ban(ctx, "g1", "u1", "spam")

	if len(fs.dms)+len(fs.timeouts)+len(fs.kicks)+len(fs.bans) != 0 {
		t.Fatalf("audit mode must not touch the session: %+v", fs)
	}
}
