package bot

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/bwmarrin/discordgo"
)

const (
	colorAction = 0x3498DB
	colorError  = 0xE74C3C
)

func (b *Bot) onInteractionCreate(session *discordgo.Session, interaction *discordgo.InteractionCreate) {
	if interaction.Type != discordgo.InteractionApplicationCommand {
		return
	}

	ctx := context.Background()
	data := interaction.ApplicationCommandData()

	if interaction.GuildID == "" {
		b.respondEmbed(session, interaction, b.commandEmbed("Moderation", "This command only works in a server.", colorError, nil), true)
		return
	}

	switch data.Name {
	case "queue":
		b.handleQueueStatus(session, interaction)
	case "riskprofile":
		b.handleRiskProfile(session, interaction, data.Options)
	case "threatinfo":
		b.handleThreatInfo(session, interaction, data.Options)
	case "analysislog":
		b.handleAnalysisLog(ctx, session, interaction, data.Options)
	}
}

func (b *Bot) handleQueueStatus(session *discordgo.Session, interaction *discordgo.InteractionCreate) {
	status := b.queue.Status()
	stats := b.threats.Stats()

	fields := []*discordgo.MessageEmbedField{
		{Name: "Pending", Value: fmt.Sprintf("%d", status.PendingMessages), Inline: true},
		{Name: "Processing", Value: fmt.Sprintf("%t", status.IsProcessing), Inline: true},
		{Name: "Known threats", Value: fmt.Sprintf("%d", stats.Total), Inline: true},
		{Name: "Multi-guild threats", Value: fmt.Sprintf("%d", stats.MultiGuild), Inline: true},
	}
	if status.OldestMessage > 0 {
		age := time.Since(time.UnixMilli(status.OldestMessage)).Round(time.Second)
		fields = append(fields, &discordgo.MessageEmbedField{Name: "Oldest message", Value: age.String(), Inline: true})
	}
	b.respondEmbed(session, interaction, b.commandEmbed("Moderation queue", "Current batching state", colorAction, fields), true)
}

func (b *Bot) handleRiskProfile(session *discordgo.Session, interaction *discordgo.InteractionCreate, options []*discordgo.ApplicationCommandInteractionDataOption) {
	userID := optionUserID(session, options)
	if userID == "" {
		b.respondEmbed(session, interaction, b.commandEmbed("Risk profile", "User option missing.", colorError, nil), true)
		return
	}

	profile, ok := b.risk.Profile(userID)
	if !ok {
		b.respondEmbed(session, interaction, b.commandEmbed("Risk profile", "No profile recorded for this user.", colorAction, nil), true)
		return
	}

	fields := []*discordgo.MessageEmbedField{
		{Name: "User", Value: "<@" + userID + ">", Inline: true},
		{Name: "Aggregate risk", Value: fmt.Sprintf("%d", b.risk.AggregateRisk(userID)), Inline: true},
		{Name: "Messages scored", Value: fmt.Sprintf("%d", profile.TotalMessages), Inline: true},
		{Name: "Flagged", Value: fmt.Sprintf("%d", profile.FlaggedCount), Inline: true},
	}
	if len(profile.Flags) > 0 {
		flags := make([]string, 0, len(profile.Flags))
		for flag := range profile.Flags {
			flags = append(flags, flag)
		}
		fields = append(fields, &discordgo.MessageEmbedField{Name: "Flags", Value: strings.Join(flags, ", "), Inline: false})
	}
	b.respondEmbed(session, interaction, b.commandEmbed("Risk profile", "Recency-weighted message risk", colorAction, fields), true)
}

func (b *Bot) handleThreatInfo(session *discordgo.Session, interaction *discordgo.InteractionCreate, options []*discordgo.ApplicationCommandInteractionDataOption) {
	userID := optionUserID(session, options)
	if userID == "" {
		b.respondEmbed(session, interaction, b.commandEmbed("Threat database", "User option missing.", colorError, nil), true)
		return
	}

	record, ok := b.threats.Get(userID)
	if !ok {
		b.respondEmbed(session, interaction, b.commandEmbed("Threat database", "User is not in the threat database.", colorAction, nil), true)
		return
	}

	fields := []*discordgo.MessageEmbedField{
		{Name: "User", Value: "<@" + userID + ">", Inline: true},
		{Name: "Severity", Value: string(record.Severity), Inline: true},
		{Name: "Reports", Value: fmt.Sprintf("%d", record.ReportCount), Inline: true},
		{Name: "Guilds", Value: fmt.Sprintf("%d", len(record.Guilds)), Inline: true},
		{Name: "Reason", Value: record.Reason, Inline: false},
	}
	b.respondEmbed(session, interaction, b.commandEmbed("Threat database", "Cross-guild reputation record", colorAction, fields), true)
}

func (b *Bot) handleAnalysisLog(ctx context.Context, session *discordgo.Session, interaction *discordgo.InteractionCreate, options []*discordgo.ApplicationCommandInteractionDataOption) {
	limit := 5
	for _, option := range options {
		if option.Name == "limit" {
			limit = int(option.IntValue())
		}
	}

	entries, err := b.store.RecentAnalysis(ctx, interaction.GuildID, limit)
	if err != nil {
		b.respondEmbed(session, interaction, b.commandEmbed("Analysis log", "Lookup failed.", colorError, nil), true)
		return
	}
	if len(entries) == 0 {
		b.respondEmbed(session, interaction, b.commandEmbed("Analysis log", "No analysis recorded yet.", colorAction, nil), true)
		return
	}

	var lines []string
	for _, entry := range entries {
		lines = append(lines, fmt.Sprintf("%s | %d msg, %d flagged: %s",
			entry.CreatedAt.UTC().Format("Jan 2 15:04"),
			entry.MessageCount,
			entry.FlaggedCount,
			entry.Result))
	}
	b.respondEmbed(session, interaction, b.commandEmbed("Analysis log", strings.Join(lines, "\n"), colorAction, nil), true)
}

func optionUserID(session *discordgo.Session, options []*discordgo.ApplicationCommandInteractionDataOption) string {
	for _, option := range options {
		if option.Type == discordgo.ApplicationCommandOptionUser {
			if user := option.UserValue(session); user != nil {
				return user.ID
			}
		}
	}
	return ""
}

func (b *Bot) commandEmbed(title, description string, color int, fields []*discordgo.MessageEmbedField) *discordgo.MessageEmbed {
	return &discordgo.MessageEmbed{
		Title:       title,
		Description: description,
		Color:       color,
		Timestamp:   time.Now().Format(time.RFC3339),
		Fields:      fields,
	}
}

func (b *Bot) respondEmbed(session *discordgo.Session, interaction *discordgo.InteractionCreate, embed *discordgo.MessageEmbed, ephemeral bool) {
	flags := discordgo.MessageFlags(0)
	if ephemeral {
		flags = discordgo.MessageFlagsEphemeral
	}
	_ = session.InteractionRespond(interaction.Interaction, &discordgo.InteractionResponse{
		Type: discordgo.InteractionResponseChannelMessageWithSource,
		Data: &discordgo.InteractionResponseData{
			Embeds: []*discordgo.MessageEmbed{embed},
			Flags:  flags,
		},
	})
}
