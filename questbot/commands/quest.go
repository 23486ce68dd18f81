package commands

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/disgoorg/disgo/discord"
	"github.com/disgoorg/disgo/handler"
	"github.com/nonagon/questbot/questbot"
	"github.com/nonagon/questbot/questbot/config"
	"github.com/nonagon/questbot/questbot/database/models"
	"github.com/nonagon/questbot/questbot/quest"
	"github.com/nonagon/questbot/questbot/services"
	"github.com/nonagon/questbot/questbot/utils"
)

var QuestCommand = discord.SlashCommandCreate{
	Name:        "quest",
	Description: "Quest scheduling and signups",
	Options: []discord.ApplicationCommandOption{
		discord.ApplicationCommandOptionSubCommand{
			Name:        "create",
			Description: "Draft a new quest",
			Options: []discord.ApplicationCommandOption{
				discord.ApplicationCommandOptionString{
					Name:        "title",
					Description: "Quest title",
					Required:    true,
				},
				discord.ApplicationCommandOptionString{
					Name:        "description",
					Description: "What the party is getting into",
				},
				discord.ApplicationCommandOptionString{
					Name:        "starting_at",
					Description: "Start time, RFC3339 (e.g. 2026-09-01T19:00:00Z)",
				},
				discord.ApplicationCommandOptionFloat{
					Name:        "duration_hours",
					Description: "Expected duration in hours",
				},
				discord.ApplicationCommandOptionString{
					Name:        "image_url",
					Description: "Cover image URL",
				},
				discord.ApplicationCommandOptionAttachment{
					Name:        "image",
					Description: "Cover image attachment, rehosted so the link never expires",
				},
			},
		},
		discord.ApplicationCommandOptionSubCommand{
			Name:        "announce",
			Description: "Publish a draft quest and open signups",
			Options:     []discord.ApplicationCommandOption{questIDOption()},
		},
		discord.ApplicationCommandOptionSubCommand{
			Name:        "close",
			Description: "Close signups while keeping the quest active",
			Options:     []discord.ApplicationCommandOption{questIDOption()},
		},
		discord.ApplicationCommandOptionSubCommand{
			Name:        "reopen",
			Description: "Reopen signups on a closed quest",
			Options:     []discord.ApplicationCommandOption{questIDOption()},
		},
		discord.ApplicationCommandOptionSubCommand{
			Name:        "signup",
			Description: "Apply to a quest with one of your characters",
			Options: []discord.ApplicationCommandOption{
				questIDOption(),
				discord.ApplicationCommandOptionString{
					Name:        "character",
					Description: "Character name or id",
					Required:    true,
				},
			},
		},
		discord.ApplicationCommandOptionSubCommand{
			Name:        "withdraw",
			Description: "Withdraw your signup from a quest",
			Options:     []discord.ApplicationCommandOption{questIDOption()},
		},
		discord.ApplicationCommandOptionSubCommand{
			Name:        "select",
			Description: "Put an applicant on the quest roster",
			Options: []discord.ApplicationCommandOption{
				questIDOption(),
				discord.ApplicationCommandOptionUser{
					Name:        "member",
					Description: "The applicant to select",
					Required:    true,
				},
			},
		},
		discord.ApplicationCommandOptionSubCommand{
			Name:        "complete",
			Description: "Mark a quest as finished",
			Options:     []discord.ApplicationCommandOption{questIDOption()},
		},
		discord.ApplicationCommandOptionSubCommand{
			Name:        "cancel",
			Description: "Cancel a quest",
			Options:     []discord.ApplicationCommandOption{questIDOption()},
		},
		discord.ApplicationCommandOptionSubCommand{
			Name:        "nudge",
			Description: "Ping the guild about an announced quest",
			Options:     []discord.ApplicationCommandOption{questIDOption()},
		},
		discord.ApplicationCommandOptionSubCommand{
			Name:        "view",
			Description: "Show a quest and its signups",
			Options:     []discord.ApplicationCommandOption{questIDOption()},
		},
	},
}

const maxCoverBytes = 8 << 20

func questIDOption() discord.ApplicationCommandOptionString {
	return discord.ApplicationCommandOptionString{
		Name:        "quest",
		Description: "Quest id or title",
		Required:    true,
	}
}

type QuestHandler struct {
	bot *questbot.Bot
}

func NewQuestHandler(b *questbot.Bot) *QuestHandler {
	return &QuestHandler{bot: b}
}

func (h *QuestHandler) Register(r handler.Router) {
	r.Route("/quest", func(r handler.Router) {
		r.Command("/create", h.HandleCreate)
		r.Command("/announce", h.HandleAnnounce)
		r.Command("/close", h.HandleClose)
		r.Command("/reopen", h.HandleReopen)
		r.Command("/signup", h.HandleSignup)
		r.Command("/withdraw", h.HandleWithdraw)
		r.Command("/select", h.HandleSelect)
		r.Command("/complete", h.HandleComplete)
		r.Command("/cancel", h.HandleCancel)
		r.Command("/nudge", h.HandleNudge)
		r.Command("/view", h.HandleView)
	})
}

func (h *QuestHandler) HandleCreate(event *handler.CommandEvent) error {
	ctx, cancel := context.WithTimeout(context.Background(), config.CommandTimeout)
	defer cancel()

	data := event.SlashCommandInteractionData()

	input := services.QuestInput{
		Title:       data.String("title"),
		Description: data.String("description"),
		ImageURL:    data.String("image_url"),
		ChannelID:   event.ChannelID(),
	}
	input.Raw = renderRawQuest(input.Title, input.Description)

	if v, ok := data.OptFloat("duration_hours"); ok {
		input.DurationHours = v
	}
	if raw, ok := data.OptString("starting_at"); ok {
		startingAt, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			return utils.EH.CreateError(event, "Invalid start time",
				"Use RFC3339, e.g. 2026-09-01T19:00:00Z")
		}
		input.StartingAt = startingAt
	}

	referee, err := h.resolveCaller(ctx, event)
	if err != nil {
		return utils.EH.CreateError(event, "Error", questErrorMessage(err))
	}

	q, err := h.bot.Quests.CreateQuest(ctx, *event.GuildID(), referee, input)
	if err != nil {
		return utils.EH.CreateError(event, "Could not create quest", questErrorMessage(err))
	}

	h.markReferee(ctx, event, referee)
	h.bot.Lookup.Invalidate(*event.GuildID())

	reply := event.CreateMessage(discord.MessageCreate{
		Embeds: []discord.Embed{questEmbed(q, fmt.Sprintf("Quest drafted. Announce it with `/quest announce quest:%s`", q.ID))},
	})

	// Rehost after replying so the interaction window is not spent on the
	// fetch. The cover shows up on announce and view.
	if att, ok := data.OptAttachment("image"); ok {
		if url, upErr := h.rehostCover(ctx, q.ID, att); upErr != nil {
			slog.Warn("Failed to rehost quest cover",
				slog.String("type", "cmd"),
				slog.String("quest_id", q.ID),
				slog.String("error", upErr.Error()))
		} else if mErr := h.bot.Quests.MutateQuest(ctx, *event.GuildID(), q.ID, func(q *models.Quest) error {
			q.ImageURL = url
			return nil
		}); mErr != nil {
			slog.Warn("Failed to attach quest cover",
				slog.String("type", "cmd"),
				slog.String("quest_id", q.ID),
				slog.String("error", mErr.Error()))
		}
	}
	return reply
}

// rehostCover pulls the attachment body and stores it in Spaces. Discord CDN
// attachment links expire, the Spaces URL does not.
func (h *QuestHandler) rehostCover(ctx context.Context, questID string, att discord.Attachment) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, att.URL, nil)
	if err != nil {
		return "", err
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("failed to fetch attachment: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("failed to fetch attachment: status %d", resp.StatusCode)
	}
	data, err := io.ReadAll(io.LimitReader(resp.Body, maxCoverBytes))
	if err != nil {
		return "", err
	}
	contentType := "image/jpeg"
	if att.ContentType != nil {
		contentType = *att.ContentType
	}
	return h.bot.Spaces.UploadQuestImage(ctx, questID, data, contentType)
}

func (h *QuestHandler) HandleAnnounce(event *handler.CommandEvent) error {
	return h.transition(event, "announce", func(q *models.Quest) error {
		if err := h.bot.Lifecycle.Announce(q); err != nil {
			return err
		}
		q.MessageID = 0
		return nil
	}, "Signups are open!")
}

func (h *QuestHandler) HandleClose(event *handler.CommandEvent) error {
	return h.transition(event, "close", func(q *models.Quest) error {
		return h.bot.Lifecycle.CloseSignups(q)
	}, "Signups are closed.")
}

func (h *QuestHandler) HandleReopen(event *handler.CommandEvent) error {
	return h.transition(event, "reopen", func(q *models.Quest) error {
		return h.bot.Lifecycle.Reopen(q)
	}, "Signups are open again.")
}

func (h *QuestHandler) HandleComplete(event *handler.CommandEvent) error {
	return h.transition(event, "complete", func(q *models.Quest) error {
		return h.bot.Lifecycle.MarkCompleted(q)
	}, "Quest completed. Don't forget the write-up: `/summary record`.")
}

func (h *QuestHandler) HandleCancel(event *handler.CommandEvent) error {
	ctx, cancel := context.WithTimeout(context.Background(), config.CommandTimeout)
	defer cancel()

	q, err := h.resolveQuest(ctx, event)
	if err != nil {
		return utils.EH.CreateError(event, "Error", questErrorMessage(err))
	}

	hostedCover := q.ImageURL != "" && q.ImageURL == h.bot.Spaces.QuestImageURL(q.ID)
	err = h.bot.Quests.MutateQuest(ctx, *event.GuildID(), q.ID, func(q *models.Quest) error {
		if opErr := h.bot.Lifecycle.Cancel(q); opErr != nil {
			return opErr
		}
		if hostedCover {
			q.ImageURL = ""
		}
		return nil
	})
	if err != nil {
		return utils.EH.CreateError(event, "Cannot cancel", questErrorMessage(err))
	}

	if hostedCover {
		if delErr := h.bot.Spaces.DeleteQuestImage(ctx, q.ID); delErr != nil {
			slog.Warn("Failed to delete quest cover",
				slog.String("type", "cmd"),
				slog.String("quest_id", q.ID),
				slog.String("error", delErr.Error()))
		}
	}

	updated, err := h.bot.Quests.GetQuest(ctx, *event.GuildID(), q.ID)
	if err != nil {
		return utils.EH.CreateError(event, "Error", questErrorMessage(err))
	}
	return event.CreateMessage(discord.MessageCreate{
		Embeds: []discord.Embed{questEmbed(updated, "Quest cancelled.")},
	})
}

// transition is the shared skeleton for the pure state-machine subcommands:
// resolve the quest, run op through the cache, re-read and render.
func (h *QuestHandler) transition(event *handler.CommandEvent, name string, op func(*models.Quest) error, footer string) error {
	ctx, cancel := context.WithTimeout(context.Background(), config.CommandTimeout)
	defer cancel()

	q, err := h.resolveQuest(ctx, event)
	if err != nil {
		return utils.EH.CreateError(event, "Error", questErrorMessage(err))
	}

	err = h.bot.Quests.MutateQuest(ctx, *event.GuildID(), q.ID, op)
	if err != nil {
		return utils.EH.CreateError(event, "Cannot "+name, questErrorMessage(err))
	}

	updated, err := h.bot.Quests.GetQuest(ctx, *event.GuildID(), q.ID)
	if err != nil {
		return utils.EH.CreateError(event, "Error", questErrorMessage(err))
	}

	return event.CreateMessage(discord.MessageCreate{
		Embeds: []discord.Embed{questEmbed(updated, footer)},
	})
}

func (h *QuestHandler) HandleSignup(event *handler.CommandEvent) error {
	ctx, cancel := context.WithTimeout(context.Background(), config.CommandTimeout)
	defer cancel()

	data := event.SlashCommandInteractionData()

	caller, err := h.resolveCaller(ctx, event)
	if err != nil {
		return utils.EH.CreateError(event, "Error", questErrorMessage(err))
	}

	q, err := h.resolveQuest(ctx, event)
	if err != nil {
		return utils.EH.CreateError(event, "Error", questErrorMessage(err))
	}

	characters, err := h.bot.Lookup.FindCharacter(ctx, *event.GuildID(), caller.ID, data.String("character"))
	if err != nil {
		return utils.EH.CreateError(event, "Error", questErrorMessage(err))
	}
	if len(characters) == 0 {
		return utils.EH.CreateError(event, "No such character",
			fmt.Sprintf("No character of yours matches %q. Create one with `/character create`.", data.String("character")))
	}
	character := characters[0]

	var signup models.Signup
	err = h.bot.Quests.MutateQuest(ctx, *event.GuildID(), q.ID, func(q *models.Quest) error {
		var opErr error
		signup, opErr = h.bot.Lifecycle.SignUp(q, caller.ID, character.ID)
		return opErr
	})
	if err != nil {
		return utils.EH.CreateError(event, "Cannot sign up", questErrorMessage(err))
	}

	return utils.EH.CreateSuccessEmbed(event, fmt.Sprintf(
		"**%s** is signed up for **%s** (applied %s)",
		character.Name, q.Title, utils.DiscordRelativeTimestamp(signup.SignedUpAt)))
}

func (h *QuestHandler) HandleWithdraw(event *handler.CommandEvent) error {
	ctx, cancel := context.WithTimeout(context.Background(), config.CommandTimeout)
	defer cancel()

	caller, err := h.resolveCaller(ctx, event)
	if err != nil {
		return utils.EH.CreateError(event, "Error", questErrorMessage(err))
	}

	q, err := h.resolveQuest(ctx, event)
	if err != nil {
		return utils.EH.CreateError(event, "Error", questErrorMessage(err))
	}

	err = h.bot.Quests.MutateQuest(ctx, *event.GuildID(), q.ID, func(q *models.Quest) error {
		return h.bot.Lifecycle.RemoveSignUp(q, caller.ID)
	})
	if err != nil {
		return utils.EH.CreateError(event, "Cannot withdraw", questErrorMessage(err))
	}

	return utils.EH.CreateSuccessEmbed(event, fmt.Sprintf("You withdrew from **%s**.", q.Title))
}

func (h *QuestHandler) HandleSelect(event *handler.CommandEvent) error {
	ctx, cancel := context.WithTimeout(context.Background(), config.CommandTimeout)
	defer cancel()

	data := event.SlashCommandInteractionData()
	member := data.User("member")

	target, err := h.bot.Quests.EnsureUser(ctx, *event.GuildID(), member.ID, member.Username)
	if err != nil {
		return utils.EH.CreateError(event, "Error", questErrorMessage(err))
	}

	q, err := h.resolveQuest(ctx, event)
	if err != nil {
		return utils.EH.CreateError(event, "Error", questErrorMessage(err))
	}

	err = h.bot.Quests.MutateQuest(ctx, *event.GuildID(), q.ID, func(q *models.Quest) error {
		return h.bot.Lifecycle.SelectSignup(q, target.ID)
	})
	if err != nil {
		return utils.EH.CreateError(event, "Cannot select", questErrorMessage(err))
	}

	return utils.EH.CreateSuccessEmbed(event, fmt.Sprintf(
		"**%s** is on the roster for **%s**.", member.Username, q.Title))
}

func (h *QuestHandler) HandleNudge(event *handler.CommandEvent) error {
	ctx, cancel := context.WithTimeout(context.Background(), config.CommandTimeout)
	defer cancel()

	q, err := h.resolveQuest(ctx, event)
	if err != nil {
		return utils.EH.CreateError(event, "Error", questErrorMessage(err))
	}

	// Nudging only makes sense while the quest is visible to players.
	if q.State != models.QuestAnnounced {
		return utils.EH.CreateError(event, "Cannot nudge",
			fmt.Sprintf("Quest is %s; only announced quests can be nudged.", q.State))
	}

	var nudgedAt time.Time
	err = h.bot.Quests.MutateQuest(ctx, *event.GuildID(), q.ID, func(q *models.Quest) error {
		var opErr error
		nudgedAt, opErr = h.bot.Lifecycle.Nudge(q)
		return opErr
	})
	if err != nil {
		return utils.EH.CreateError(event, "Cannot nudge", questErrorMessage(err))
	}

	return event.CreateMessage(discord.MessageCreate{
		Content: fmt.Sprintf("@here **%s** is still looking for party members! Sign up with `/quest signup quest:%s`", q.Title, q.ID),
		Embeds:  []discord.Embed{questEmbed(q, "Nudged "+utils.DiscordRelativeTimestamp(nudgedAt))},
	})
}

func (h *QuestHandler) HandleView(event *handler.CommandEvent) error {
	ctx, cancel := context.WithTimeout(context.Background(), config.CommandTimeout)
	defer cancel()

	q, err := h.resolveQuest(ctx, event)
	if err != nil {
		return utils.EH.CreateError(event, "Error", questErrorMessage(err))
	}

	return event.CreateMessage(discord.MessageCreate{
		Embeds: []discord.Embed{questEmbed(q, "")},
	})
}

func (h *QuestHandler) resolveCaller(ctx context.Context, event *handler.CommandEvent) (*models.User, error) {
	return h.bot.Quests.EnsureUser(ctx, *event.GuildID(), event.User().ID, event.User().Username)
}

// resolveQuest turns the "quest" option into a single cached quest, trying an
// exact id first and falling back to fuzzy title search.
func (h *QuestHandler) resolveQuest(ctx context.Context, event *handler.CommandEvent) (*models.Quest, error) {
	query := event.SlashCommandInteractionData().String("quest")
	guildID := *event.GuildID()

	if parsed, err := quest.ParseID(models.KindQuest, query); err == nil {
		return h.bot.Quests.GetQuest(ctx, guildID, parsed.String())
	}

	matches, err := h.bot.Lookup.FindQuest(ctx, guildID, query)
	if err != nil {
		return nil, err
	}
	if len(matches) == 0 {
		return nil, fmt.Errorf("quest %q: %w", query, quest.ErrNotFound)
	}
	// The lookup index may lag the cache, so re-read through it.
	return h.bot.Quests.GetQuest(ctx, guildID, matches[0].ID)
}

func (h *QuestHandler) markReferee(ctx context.Context, event *handler.CommandEvent, u *models.User) {
	if u.IsReferee {
		return
	}
	_ = h.bot.Quests.MutateUser(ctx, *event.GuildID(), u.ID, func(u *models.User) error {
		u.IsReferee = true
		return nil
	})
}

func questEmbed(q *models.Quest, footer string) discord.Embed {
	builder := discord.NewEmbedBuilder().
		SetTitle(fmt.Sprintf("%s  `%s`", q.Title, q.ID)).
		SetDescription(q.Description).
		SetColor(utils.QuestStateColor(q.State)).
		AddField("State", utils.FormatQuestState(q.State), true).
		AddField("Duration", utils.FormatDuration(q.DurationHours), true)

	if !q.StartingAt.IsZero() {
		builder.AddField("Starts", utils.DiscordTimestamp(q.StartingAt), true)
	}
	if q.ImageURL != "" {
		builder.SetImage(q.ImageURL)
	}

	if len(q.Signups) > 0 {
		var lines []string
		for _, s := range q.Signups {
			marker := "•"
			if s.Selected {
				marker = "⭐"
			}
			lines = append(lines, fmt.Sprintf("%s %s (%s)", marker, s.UserID, s.CharacterID))
		}
		builder.AddField(fmt.Sprintf("Signups (%d)", len(q.Signups)), strings.Join(lines, "\n"), false)
	}
	if q.SummaryNeeded() {
		builder.AddField("Write-up", "Missing. Record one with `/summary record`.", false)
	}
	if footer != "" {
		builder.SetFooter(footer, "")
	}
	return builder.Build()
}

func renderRawQuest(title, description string) string {
	if description == "" {
		return "# " + title
	}
	return "# " + title + "\n\n" + description
}

// questErrorMessage maps engine errors onto stable player-facing wording.
func questErrorMessage(err error) string {
	switch {
	case errors.Is(err, quest.ErrSignupClosed):
		return "Signups are not open on this quest."
	case errors.Is(err, quest.ErrInvalidTransition):
		return fmt.Sprintf("That operation is not allowed right now (%v).", err)
	case errors.Is(err, quest.ErrNotFound):
		return "Nothing matched that. Check the id and try again."
	case errors.Is(err, quest.ErrCooldownActive):
		return fmt.Sprintf("Too soon: %v.", err)
	case errors.Is(err, quest.ErrIDSpaceExhausted):
		return "Could not allocate an id. Try again in a moment."
	case errors.Is(err, quest.ErrStoreUnavailable):
		return "The database is unavailable. Try again shortly."
	default:
		return err.Error()
	}
}
