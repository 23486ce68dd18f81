package utils

import (
	"fmt"
	"time"

	"github.com/nonagon/questbot/questbot/config"
	"github.com/nonagon/questbot/questbot/database/models"
)

// FormatQuestState returns the display label for a quest state.
func FormatQuestState(state models.QuestState) string {
	switch state {
	case models.QuestDraft:
		return "📝 Draft"
	case models.QuestAnnounced:
		return "📣 Announced"
	case models.QuestSignupClosed:
		return "🔒 Signups Closed"
	case models.QuestCompleted:
		return "✅ Completed"
	case models.QuestCancelled:
		return "🚫 Cancelled"
	default:
		return string(state)
	}
}

// QuestStateColor maps a quest state to its embed color.
func QuestStateColor(state models.QuestState) int {
	switch state {
	case models.QuestDraft:
		return config.StateDraftColor
	case models.QuestAnnounced:
		return config.StateAnnouncedColor
	case models.QuestSignupClosed:
		return config.StateSignupClosedColor
	case models.QuestCompleted:
		return config.StateCompletedColor
	case models.QuestCancelled:
		return config.StateCancelledColor
	default:
		return config.EmbedDefaultColor
	}
}

// FormatDuration renders a quest duration in hours as a compact label.
func FormatDuration(hours float64) string {
	if hours <= 0 {
		return "open-ended"
	}
	d := time.Duration(hours * float64(time.Hour)).Round(time.Minute)
	if d < time.Hour {
		return fmt.Sprintf("%dm", int(d.Minutes()))
	}
	h := int(d.Hours())
	m := int(d.Minutes()) % 60
	if m == 0 {
		return fmt.Sprintf("%dh", h)
	}
	return fmt.Sprintf("%dh %dm", h, m)
}

// DiscordTimestamp renders t as a Discord dynamic timestamp.
func DiscordTimestamp(t time.Time) string {
	return fmt.Sprintf("<t:%d:f>", t.Unix())
}

// DiscordRelativeTimestamp renders t as a Discord relative timestamp.
func DiscordRelativeTimestamp(t time.Time) string {
	return fmt.Sprintf("<t:%d:R>", t.Unix())
}
