package notify

import (
	"context"
	"fmt"
	"net/http"
)

// Embed colours.
const (
	discordColorInfo  = 0x3498db
	discordColorAlert = 0xe74c3c
)

// DiscordSender posts embeds to a webhook.
type DiscordSender struct {
	webhookURL string
	client     *http.Client
}

// NewDiscordSender creates a sender for a webhook URL.
func NewDiscordSender(webhookURL string) *DiscordSender {
	return &DiscordSender{webhookURL: webhookURL, client: defaultHTTPClient()}
}

type discordEmbed struct {
	Title       string `json:"title"`
	Description string `json:"description"`
	Color       int    `json:"color"`
}

// Send posts a single embed. Alert titles are coloured red.
func (d *DiscordSender) Send(ctx context.Context, title, message string) error {
	color := discordColorInfo
	if isAlertTitle(title) {
		color = discordColorAlert
	}
	payload := map[string]any{
		"embeds": []discordEmbed{{Title: title, Description: message, Color: color}},
	}
	if err := postJSON(ctx, d.client, d.webhookURL, payload); err != nil {
		return fmt.Errorf("discord: %w", err)
	}
	return nil
}

func (d *DiscordSender) Name() string { return "discord" }
