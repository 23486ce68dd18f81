package services

import (
	"bytes"
	"context"
	"fmt"
	"html/template"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/chromedp/chromedp"
	"github.com/nonagon/questbot/questbot/database/models"
)

type LeaderboardImageService struct {
	logger *slog.Logger
}

type LeaderboardRow struct {
	Rank          int
	Username      string
	MessageCount  int64
	ReactionCount int64
	VoiceMinutes  int64
	Total         int64
}

type LeaderboardData struct {
	GuildName string
	Timestamp string
	Rows      []LeaderboardRow
}

func NewLeaderboardImageService() *LeaderboardImageService {
	service := &LeaderboardImageService{
		logger: slog.With(slog.String("service", "leaderboard_image")),
	}

	service.testChromedpAvailability()

	return service
}

func (s *LeaderboardImageService) testChromedpAvailability() {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	chromedpCtx, cancel := chromedp.NewContext(ctx)
	defer cancel()

	err := chromedp.Run(chromedpCtx, chromedp.Navigate("data:text/html,<html><body>test</body></html>"))
	if err != nil {
		s.logger.Error("chromedp not available - image generation will fail",
			slog.String("error", err.Error()))
	} else {
		s.logger.Info("chromedp is available and working")
	}
}

// GenerateLeaderboardImage renders the guild engagement standings into a
// PNG screenshot.
func (s *LeaderboardImageService) GenerateLeaderboardImage(ctx context.Context, guildName string, users []*models.User) ([]byte, error) {
	start := time.Now()

	if len(users) == 0 {
		return nil, fmt.Errorf("no leaderboard entries provided")
	}

	// Top 10 only, the template is sized for it.
	if len(users) > 10 {
		users = users[:10]
	}

	rows := make([]LeaderboardRow, len(users))
	for i, u := range users {
		rows[i] = LeaderboardRow{
			Rank:          i + 1,
			Username:      u.Username,
			MessageCount:  u.MessageCount,
			ReactionCount: u.ReactionCount,
			VoiceMinutes:  u.VoiceMinutes,
			Total:         u.MessageCount + u.ReactionCount + u.VoiceMinutes,
		}
	}

	data := LeaderboardData{
		GuildName: guildName,
		Timestamp: time.Now().Format("15:04 MST"),
		Rows:      rows,
	}

	htmlContent, err := s.generateHTML(data)
	if err != nil {
		return nil, fmt.Errorf("failed to generate HTML: %w", err)
	}

	chromedpCtx, cancel := chromedp.NewContext(ctx, chromedp.WithLogf(func(string, ...interface{}) {}))
	defer cancel()

	chromedpCtx, cancel = context.WithTimeout(chromedpCtx, 15*time.Second)
	defer cancel()

	var imageBytes []byte

	err = chromedp.Run(chromedpCtx,
		chromedp.Navigate("data:text/html,"+htmlContent),
		chromedp.WaitVisible("#leaderboard-container", chromedp.ByID),
		chromedp.Sleep(500*time.Millisecond),
		chromedp.Screenshot("#leaderboard-container", &imageBytes, chromedp.ByID),
	)

	if err != nil {
		s.logger.Error("Failed to generate image with chromedp",
			slog.String("error", err.Error()),
			slog.Duration("elapsed", time.Since(start)))
		return nil, fmt.Errorf("failed to generate image: %w", err)
	}

	s.logger.Info("Leaderboard image generated",
		slog.String("guild", guildName),
		slog.Int("image_size", len(imageBytes)),
		slog.Duration("elapsed", time.Since(start)))

	return imageBytes, nil
}

func (s *LeaderboardImageService) generateHTML(data LeaderboardData) (string, error) {
	templatePath := filepath.Join("questbot", "templates", "leaderboard.html")

	templateContent, err := os.ReadFile(templatePath)
	if err != nil {
		return "", fmt.Errorf("failed to read template file: %w", err)
	}

	tmpl, err := template.New("leaderboard").Parse(string(templateContent))
	if err != nil {
		return "", fmt.Errorf("failed to parse template: %w", err)
	}

	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, data); err != nil {
		return "", fmt.Errorf("failed to execute template: %w", err)
	}

	// data: URLs choke on raw # and newlines.
	htmlContent := strings.ReplaceAll(buf.String(), "#", "%23")
	htmlContent = strings.ReplaceAll(htmlContent, "\n", "")

	return htmlContent, nil
}
