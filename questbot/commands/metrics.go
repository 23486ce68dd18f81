package commands

import (
	"fmt"
	"runtime"
	"time"

	"github.com/disgoorg/disgo/discord"
	"github.com/disgoorg/disgo/handler"
	"github.com/nonagon/questbot/questbot"
)

var MetricsCommand = discord.SlashCommandCreate{
	Name:        "metrics",
	Description: "📊 View bot performance metrics and statistics",
}

func MetricsHandler(b *questbot.Bot) handler.CommandHandler {
	return func(e *handler.CommandEvent) error {
		var m runtime.MemStats
		runtime.ReadMemStats(&m)

		uptime := time.Since(b.StartTime)
		stats := b.Flusher.Stats()

		memoryField := fmt.Sprintf("```\n"+
			"Alloc: %.2f MB\n"+
			"Sys: %.2f MB\n"+
			"NumGC: %d\n"+
			"Goroutines: %d\n"+
			"```",
			float64(m.Alloc)/1024/1024,
			float64(m.Sys)/1024/1024,
			m.NumGC,
			runtime.NumGoroutine(),
		)

		cacheField := fmt.Sprintf("```\n"+
			"Guilds cached: %d\n"+
			"Dirty entries: %d\n"+
			"Flush cycles: %d\n"+
			"Flushed: %d\n"+
			"Flush errors: %d\n"+
			"Last batch: %d (%d ms)\n"+
			"```",
			len(b.GuildCache.Guilds()),
			b.GuildCache.DirtyCount(),
			stats.Cycles,
			stats.Flushed,
			stats.Errors,
			stats.LastBatch,
			stats.LastDurationMS,
		)

		uptimeField := fmt.Sprintf("```\n"+
			"Days: %d\n"+
			"Hours: %d\n"+
			"Minutes: %d\n"+
			"Gateway: %s\n"+
			"```",
			int(uptime.Hours())/24,
			int(uptime.Hours())%24,
			int(uptime.Minutes())%60,
			b.Client.Gateway().Latency().String(),
		)

		embed := discord.NewEmbedBuilder().
			SetTitle("🔧 Bot Performance Metrics").
			SetDescription("Current performance statistics and metrics").
			AddField("💾 Memory Usage", memoryField, false).
			AddField("🗂️ Guild Cache", cacheField, false).
			AddField("⏰ Uptime", uptimeField, false).
			SetColor(0x00FF00).
			SetTimestamp(time.Now()).
			SetFooter("Requested by "+e.User().Username, e.User().EffectiveAvatarURL()).
			Build()

		return e.CreateMessage(discord.MessageCreate{
			Embeds: []discord.Embed{embed},
		})
	}
}
