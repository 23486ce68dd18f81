package commands

import (
	"github.com/disgoorg/disgo/discord"
)

var Commands = []discord.ApplicationCommandCreate{
	QuestCommand,
	CharacterCommand,
	SummaryCommand,
	ProfileCommand,
	LeaderboardCommand,
	MetricsCommand,
	VersionCommand,
}
