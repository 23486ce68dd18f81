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

var SummaryCommand = discord.SlashCommandCreate{
	Name:        "summary",
	Description: "Quest write-ups",
	Options: []discord.ApplicationCommandOption{
		discord.ApplicationCommandOptionSubCommand{
			Name:        "record",
			Description: "Record a write-up for a quest",
			Options: []discord.ApplicationCommandOption{
				discord.ApplicationCommandOptionString{
					Name:        "quest",
					Description: "Quest id",
					Required:    true,
				},
				discord.ApplicationCommandOptionString{
					Name:        "content",
					Description: "What happened on the quest",
					Required:    true,
				},
				discord.ApplicationCommandOptionString{
					Name:        "title",
					Description: "Write-up title",
				},
			},
		},
		discord.ApplicationCommandOptionSubCommand{
			Name:        "list",
			Description: "List write-ups recorded for a quest",
			Options: []discord.ApplicationCommandOption{
				discord.ApplicationCommandOptionString{
					Name:        "quest",
					Description: "Quest id",
					Required:    true,
				},
			},
		},
	},
}

type SummaryHandler struct {
	bot *questbot.Bot
}

func NewSummaryHandler(b *questbot.Bot) *SummaryHandler {
	return &SummaryHandler{bot: b}
}

func (h *SummaryHandler) Register(r handler.Router) {
	r.Route("/summary", func(r handler.Router) {
		r.Command("/record", h.HandleRecord)
		r.Command("/list", h.HandleList)
	})
}

func (h *SummaryHandler) HandleRecord(event *handler.CommandEvent) error {
	ctx, cancel := context.WithTimeout(context.Background(), config.CommandTimeout)
	defer cancel()

	data := event.SlashCommandInteractionData()

	author, err := h.bot.Quests.EnsureUser(ctx, *event.GuildID(), event.User().ID, event.User().Username)
	if err != nil {
		return utils.EH.CreateError(event, "Error", questErrorMessage(err))
	}

	title := data.String("title")
	if title == "" {
		title = "Quest write-up"
	}

	sum, err := h.bot.Quests.RecordSummary(ctx, *event.GuildID(), author, data.String("quest"), title, data.String("content"))
	if err != nil {
		return utils.EH.CreateError(event, "Could not record write-up", questErrorMessage(err))
	}

	return utils.EH.CreateSuccessEmbed(event, fmt.Sprintf(
		"Recorded **%s** `%s` for quest `%s`.", sum.Title, sum.ID, sum.QuestID))
}

func (h *SummaryHandler) HandleList(event *handler.CommandEvent) error {
	ctx, cancel := context.WithTimeout(context.Background(), config.CommandTimeout)
	defer cancel()

	data := event.SlashCommandInteractionData()

	q, err := h.bot.Quests.GetQuest(ctx, *event.GuildID(), data.String("quest"))
	if err != nil {
		return utils.EH.CreateError(event, "Error", questErrorMessage(err))
	}

	summaries, err := h.bot.Store.Summaries().GetByQuest(ctx, *event.GuildID(), q.ID)
	if err != nil {
		return utils.EH.CreateError(event, "Error", questErrorMessage(err))
	}
	if len(summaries) == 0 && len(q.LinkedSummaryIDs) == 0 {
		return utils.EH.CreateInfoEmbed(event, fmt.Sprintf("No write-ups recorded for **%s** yet.", q.Title))
	}

	builder := discord.NewEmbedBuilder().
		SetTitle(fmt.Sprintf("Write-ups for %s", q.Title)).
		SetColor(config.InfoColor)
	for _, s := range summaries {
		content := s.Content
		if len(content) > 512 {
			content = content[:509] + "..."
		}
		builder.AddField(fmt.Sprintf("%s `%s`", s.Title, s.ID), content, false)
	}

	return event.CreateMessage(discord.MessageCreate{
		Embeds: []discord.Embed{builder.Build()},
	})
}
