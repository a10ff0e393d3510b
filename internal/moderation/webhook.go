package moderation

import (
	"bytes"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"time"

	"github.com/bwmarrin/discordgo"
)

// Notifier posts an external notification about a banned-word hit.
type Notifier interface {
	Notify(webhookURL, message, entityName, authorGuid, body string)
}

// DiscordNotifier fires Discord webhook notifications. Delivery is
// best-effort and never blocks the moderation pipeline.
type DiscordNotifier struct {
	httpClient *http.Client
}

func NewDiscordNotifier() *DiscordNotifier {
	return &DiscordNotifier{
		httpClient: &http.Client{Timeout: 10 * time.Second},
	}
}

func (n *DiscordNotifier) Notify(webhookURL, message, entityName, authorGuid, body string) {
	if webhookURL == "" {
		return
	}
	if message == "" {
		message = "Banned word detected"
	}

	params := &discordgo.WebhookParams{
		Embeds: []*discordgo.MessageEmbed{
			{
				Title:       message,
				Color:       0xED4245,
				Description: fmt.Sprintf("Message removed in **%s**", entityName),
				Fields: []*discordgo.MessageEmbedField{
					{Name: "Author", Value: authorGuid, Inline: true},
					{Name: "Message", Value: body},
				},
				Timestamp: time.Now().UTC().Format(time.RFC3339),
			},
		},
	}

	go n.post(webhookURL, params)
}

func (n *DiscordNotifier) post(webhookURL string, params *discordgo.WebhookParams) {
	payload, err := json.Marshal(params)
	if err != nil {
		log.Printf("webhook: marshal: %v", err)
		return
	}
	resp, err := n.httpClient.Post(webhookURL, "application/json", bytes.NewReader(payload))
	if err != nil {
		log.Printf("webhook: post: %v", err)
		return
	}
	resp.Body.Close()
	if resp.StatusCode >= 300 {
		log.Printf("webhook: post: status %d", resp.StatusCode)
	}
}
