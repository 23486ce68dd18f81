package commands

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"math"
	"strings"

	"github.com/disgoorg/disgo/discord"
	"github.com/disgoorg/disgo/handler"
	"github.com/disgoorg/paginator"
	"github.com/nonagon/questbot/questbot"
	"github.com/nonagon/questbot/questbot/config"
	"github.com/nonagon/questbot/questbot/database/models"
	"github.com/nonagon/questbot/questbot/utils"
)

const leaderboardLimit = 50

var LeaderboardCommand = discord.SlashCommandCreate{
	Name:        "leaderboard",
	Description: "Guild engagement standings",
	Options: []discord.ApplicationCommandOption{
		discord.ApplicationCommandOptionBool{
			Name:        "image",
			Description: "Render the top 10 as an image",
		},
	},
}

func LeaderboardHandler(b *questbot.Bot) handler.CommandHandler {
	return func(event *handler.CommandEvent) error {
		ctx, cancel := context.WithTimeout(context.Background(), config.CommandTimeout)
		defer cancel()

		users, err := b.Store.Users().GetTopByEngagement(ctx, *event.GuildID(), leaderboardLimit)
		if err != nil {
			return utils.EH.CreateError(event, "Error", questErrorMessage(err))
		}
		if len(users) == 0 {
			return utils.EH.CreateInfoEmbed(event, "No engagement recorded yet.")
		}

		if event.SlashCommandInteractionData().Bool("image") {
			return renderLeaderboardImage(ctx, b, event, users)
		}

		totalPages := int(math.Ceil(float64(len(users)) / float64(config.DefaultPageSize)))

		return b.Paginator.Create(event.Respond, paginator.Pages{
			ID:      event.ID().String(),
			Creator: event.User().ID,
			PageFunc: func(page int, embed *discord.EmbedBuilder) {
				startIdx := page * config.DefaultPageSize
				endIdx := min(startIdx+config.DefaultPageSize, len(users))

				var description strings.Builder
				for i, u := range users[startIdx:endIdx] {
					description.WriteString(fmt.Sprintf("**#%d** %s · %d messages, %d reactions, %d voice minutes\n",
						startIdx+i+1, u.Username, u.MessageCount, u.ReactionCount, u.VoiceMinutes))
				}

				embed.SetTitle("🏆 Engagement Leaderboard").
					SetDescription(description.String()).
					SetColor(config.InfoColor).
					SetFooter(fmt.Sprintf("Page %d/%d", page+1, totalPages), "")
			},
			Pages:      totalPages,
			ExpireMode: paginator.ExpireModeAfterLastUsage,
		}, false)
	}
}

func renderLeaderboardImage(ctx context.Context, b *questbot.Bot, event *handler.CommandEvent, users []*models.User) error {
	if err := event.DeferCreateMessage(false); err != nil {
		return fmt.Errorf("failed to defer message: %w", err)
	}

	guildName := "Guild"
	if guild, ok := event.Client().Caches().Guild(*event.GuildID()); ok {
		guildName = guild.Name
	}

	image, err := b.Leaderboard.GenerateLeaderboardImage(ctx, guildName, users)
	if err != nil {
		slog.Error("Leaderboard image generation failed",
			slog.String("type", "cmd"),
			slog.Any("error", err))
		return utils.EH.UpdateInteractionResponse(event, "Error", "Image generation failed, try the text view.")
	}

	_, err = event.UpdateInteractionResponse(discord.MessageUpdate{
		Files: []*discord.File{
			discord.NewFile("leaderboard.png", "", bytes.NewReader(image)),
		},
	})
	return err
}
