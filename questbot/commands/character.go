package commands

import (
	"context"
	"fmt"
	"strings"

	"github.com/disgoorg/disgo/discord"
	"github.com/disgoorg/disgo/handler"
	"github.com/nonagon/questbot/questbot"
	"github.com/nonagon/questbot/questbot/config"
	"github.com/nonagon/questbot/questbot/database/models"
	"github.com/nonagon/questbot/questbot/utils"
)

var CharacterCommand = discord.SlashCommandCreate{
	Name:        "character",
	Description: "Manage your characters",
	Options: []discord.ApplicationCommandOption{
		discord.ApplicationCommandOptionSubCommand{
			Name:        "create",
			Description: "Create a new character",
			Options: []discord.ApplicationCommandOption{
				discord.ApplicationCommandOptionString{
					Name:        "name",
					Description: "Character name",
					Required:    true,
				},
				discord.ApplicationCommandOptionString{
					Name:        "class",
					Description: "Character class",
				},
			},
		},
		discord.ApplicationCommandOptionSubCommand{
			Name:        "list",
			Description: "List your characters",
		},
		discord.ApplicationCommandOptionSubCommand{
			Name:        "retire",
			Description: "Retire a character",
			Options: []discord.ApplicationCommandOption{
				discord.ApplicationCommandOptionString{
					Name:        "character",
					Description: "Character name or id",
					Required:    true,
				},
			},
		},
	},
}

type CharacterHandler struct {
	bot *questbot.Bot
}

func NewCharacterHandler(b *questbot.Bot) *CharacterHandler {
	return &CharacterHandler{bot: b}
}

func (h *CharacterHandler) Register(r handler.Router) {
	r.Route("/character", func(r handler.Router) {
		r.Command("/create", h.HandleCreate)
		r.Command("/list", h.HandleList)
		r.Command("/retire", h.HandleRetire)
	})
}

func (h *CharacterHandler) HandleCreate(event *handler.CommandEvent) error {
	ctx, cancel := context.WithTimeout(context.Background(), config.CommandTimeout)
	defer cancel()

	data := event.SlashCommandInteractionData()

	owner, err := h.bot.Quests.EnsureUser(ctx, *event.GuildID(), event.User().ID, event.User().Username)
	if err != nil {
		return utils.EH.CreateError(event, "Error", questErrorMessage(err))
	}

	c, err := h.bot.Quests.CreateCharacter(ctx, *event.GuildID(), owner, data.String("name"), data.String("class"))
	if err != nil {
		return utils.EH.CreateError(event, "Could not create character", questErrorMessage(err))
	}

	h.bot.Lookup.Invalidate(*event.GuildID())

	return utils.EH.CreateSuccessEmbed(event, fmt.Sprintf(
		"Created **%s** `%s`. Sign up for quests with `/quest signup`.", c.Name, c.ID))
}

func (h *CharacterHandler) HandleList(event *handler.CommandEvent) error {
	ctx, cancel := context.WithTimeout(context.Background(), config.CommandTimeout)
	defer cancel()

	owner, err := h.bot.Quests.EnsureUser(ctx, *event.GuildID(), event.User().ID, event.User().Username)
	if err != nil {
		return utils.EH.CreateError(event, "Error", questErrorMessage(err))
	}

	characters, err := h.bot.Lookup.FindCharacter(ctx, *event.GuildID(), owner.ID, "")
	if err != nil {
		return utils.EH.CreateError(event, "Error", questErrorMessage(err))
	}
	if len(characters) == 0 {
		return utils.EH.CreateInfoEmbed(event, "You have no characters yet. Create one with `/character create`.")
	}

	var lines []string
	for _, c := range characters {
		label := c.Name
		if c.Class != "" {
			label = fmt.Sprintf("%s, %s", c.Name, c.Class)
		}
		lines = append(lines, fmt.Sprintf("• **%s** `%s` (level %d)", label, c.ID, c.Level))
	}

	return event.CreateMessage(discord.MessageCreate{
		Embeds: []discord.Embed{discord.NewEmbedBuilder().
			SetTitle(fmt.Sprintf("%s's characters", event.User().Username)).
			SetDescription(strings.Join(lines, "\n")).
			SetColor(config.InfoColor).
			Build()},
	})
}

func (h *CharacterHandler) HandleRetire(event *handler.CommandEvent) error {
	ctx, cancel := context.WithTimeout(context.Background(), config.CommandTimeout)
	defer cancel()

	data := event.SlashCommandInteractionData()

	owner, err := h.bot.Quests.EnsureUser(ctx, *event.GuildID(), event.User().ID, event.User().Username)
	if err != nil {
		return utils.EH.CreateError(event, "Error", questErrorMessage(err))
	}

	matches, err := h.bot.Lookup.FindCharacter(ctx, *event.GuildID(), owner.ID, data.String("character"))
	if err != nil {
		return utils.EH.CreateError(event, "Error", questErrorMessage(err))
	}
	if len(matches) == 0 {
		return utils.EH.CreateError(event, "No such character",
			fmt.Sprintf("No active character of yours matches %q.", data.String("character")))
	}
	target := matches[0]

	err = h.bot.GuildCache.Mutate(ctx, *event.GuildID(), models.KindCharacter, target.ID, func(a models.Aggregate) error {
		a.(*models.Character).Retired = true
		return nil
	})
	if err != nil {
		return utils.EH.CreateError(event, "Could not retire character", questErrorMessage(err))
	}

	h.bot.Lookup.Invalidate(*event.GuildID())

	return utils.EH.CreateSuccessEmbed(event, fmt.Sprintf("**%s** has retired from adventuring.", target.Name))
}
