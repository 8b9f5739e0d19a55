package bot

import "github.com/bwmarrin/discordgo"

func (b *Bot) registerCommands() error {
	commands := []*discordgo.ApplicationCommand{
		{
			Name:        "queue",
			Description: "Show the moderation queue status",
		},
		{
			Name:        "riskprofile",
			Description: "Show a user's risk profile",
			Options: []*discordgo.ApplicationCommandOption{
				{
					Type:        discordgo.ApplicationCommandOptionUser,
					Name:        "user",
					Description: "User to look up",
					Required:    true,
				},
			},
		},
		{
			Name:        "threatinfo",
			Description: "Look up a user in the threat database",
			Options: []*discordgo.ApplicationCommandOption{
				{
					Type:        discordgo.ApplicationCommandOptionUser,
					Name:        "user",
					Description: "User to look up",
					Required:    true,
				},
			},
		},
		{
			Name:        "analysislog",
			Description: "Show recent batch analysis results",
			Options: []*discordgo.ApplicationCommandOption{
				{
					Type:        discordgo.ApplicationCommandOptionInteger,
					Name:        "limit",
					Description: "Number of entries (default 5)",
					Required:    false,
				},
			},
		},
	}

	for _, command := range commands {
		if _, err := b.session.ApplicationCommandCreate(b.session.State.User.ID, "", command); err != nil {
			return err
		}
	}
	return nil
}
