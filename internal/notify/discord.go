package notify

import (
	"context"
	"net/http"
	"unicode/utf8"

	"github.com/alanyoungcy/binarymarket/internal/domain"
)

// Discord embed limits.
const (
	discordTitleMax       = 256
	discordDescriptionMax = 4096
)

// Embed colours per market event kind.
var discordColors = map[domain.EventKind]int{
	domain.EventMarketConfigured: 0x5865F2,
	domain.EventMarketActivated:  0x3BA55C,
	domain.EventBetPlaced:        0x4F545C,
	domain.EventLiquidityAdded:   0x00B0F4,
	domain.EventMarketResolved:   0x57F287,
	domain.EventWithdrawal:       0xFEE75C,
}

const discordDefaultColor = 0x99AAB5

// DiscordSender posts market alerts to a Discord webhook as embeds.
type DiscordSender struct {
	webhookURL string
	client     *http.Client
}

// NewDiscordSender creates a DiscordSender for the given webhook URL.
func NewDiscordSender(webhookURL string) *DiscordSender {
	return &DiscordSender{
		webhookURL: webhookURL,
		client:     newHTTPClient(),
	}
}

type discordEmbed struct {
	Title       string `json:"title"`
	Description string `json:"description"`
	Color       int    `json:"color"`
}

type discordMessage struct {
	Username string         `json:"username"`
	Embeds   []discordEmbed `json:"embeds"`
	// An empty parse list stops market text from pinging anyone.
	AllowedMentions struct {
		Parse []string `json:"parse"`
	} `json:"allowed_mentions"`
}

// Send posts an operator message with the neutral colour.
func (d *DiscordSender) Send(ctx context.Context, title, message string) error {
	return d.post(ctx, discordDefaultColor, title, message)
}

// SendKind posts a market event coloured by its kind.
func (d *DiscordSender) SendKind(ctx context.Context, kind domain.EventKind, title, message string) error {
	color, ok := discordColors[kind]
	if !ok {
		color = discordDefaultColor
	}
	return d.post(ctx, color, title, message)
}

func (d *DiscordSender) post(ctx context.Context, color int, title, message string) error {
	msg := discordMessage{
		Username: "marketd",
		Embeds: []discordEmbed{{
			Title:       truncate(title, discordTitleMax),
			Description: truncate(message, discordDescriptionMax),
			Color:       color,
		}},
	}
	msg.AllowedMentions.Parse = []string{}
	return postJSON(ctx, d.client, "discord", d.webhookURL, msg)
}

// Name returns the sender identifier.
func (d *DiscordSender) Name() string {
	return "discord"
}

// truncate cuts s to at most limit runes, marking the cut with an ellipsis.
func truncate(s string, limit int) string {
	if utf8.RuneCountInString(s) <= limit {
		return s
	}
	r := []rune(s)
	return string(r[:limit-1]) + "…"
}
