package commands

import (
	"context"
	"fmt"

	"github.com/disgoorg/disgo/discord"
	"github.com/disgoorg/disgo/handler"
	"github.com/nonagon/questbot/questbot"
	"github.com/nonagon/questbot/questbot/config"
	"github.com/nonagon/questbot/questbot/utils"
)

var ProfileCommand = discord.SlashCommandCreate{
	Name:        "profile",
	Description: "Show a member's guild profile",
	Options: []discord.ApplicationCommandOption{
		discord.ApplicationCommandOptionUser{
			Name:        "member",
			Description: "Member to show (defaults to you)",
		},
	},
}

func ProfileHandler(b *questbot.Bot) handler.CommandHandler {
	return func(event *handler.CommandEvent) error {
		ctx, cancel := context.WithTimeout(context.Background(), config.CommandTimeout)
		defer cancel()

		data := event.SlashCommandInteractionData()
		target := event.User()
		if member, ok := data.OptUser("member"); ok {
			target = member
		}

		u, err := b.Quests.EnsureUser(ctx, *event.GuildID(), target.ID, target.Username)
		if err != nil {
			return utils.EH.CreateError(event, "Error", questErrorMessage(err))
		}

		characters, err := b.Lookup.FindCharacter(ctx, *event.GuildID(), u.ID, "")
		if err != nil {
			return utils.EH.CreateError(event, "Error", questErrorMessage(err))
		}

		role := "Player"
		if u.IsReferee {
			role = "Referee"
		}

		builder := discord.NewEmbedBuilder().
			SetTitle(fmt.Sprintf("%s  `%s`", target.Username, u.ID)).
			SetColor(config.InfoColor).
			AddField("Role", role, true).
			AddField("Joined", utils.DiscordTimestamp(u.JoinedAt), true).
			AddField("Engagement", fmt.Sprintf("%d messages, %d reactions, %d voice minutes",
				u.MessageCount, u.ReactionCount, u.VoiceMinutes), false)

		if len(characters) > 0 {
			field := ""
			for _, c := range characters {
				field += fmt.Sprintf("• **%s** `%s`\n", c.Name, c.ID)
			}
			builder.AddField(fmt.Sprintf("Characters (%d)", len(characters)), field, false)
		}

		if avatar := target.AvatarURL(); avatar != nil {
			builder.SetThumbnail(*avatar)
		}

		return event.CreateMessage(discord.MessageCreate{
			Embeds: []discord.Embed{builder.Build()},
		})
	}
}
