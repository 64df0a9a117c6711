// Package notify provides best-effort Discord/Telegram notifications for
// pool events, fired from the Coordinator's block-found path.
package notify

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/starkpool/coordinator/internal/util"
)

// WebhookConfig holds webhook configuration.
type WebhookConfig struct {
	DiscordURL   string `mapstructure:"discord_url"`
	TelegramBot  string `mapstructure:"telegram_bot"`
	TelegramChat string `mapstructure:"telegram_chat"`
	Enabled      bool   `mapstructure:"enabled"`
	PoolName     string `mapstructure:"pool_name"`
	PoolURL      string `mapstructure:"pool_url"`
}

const (
	MaxRetries     = 3
	RetryBaseDelay = 2 * time.Second
)

// Notifier handles sending notifications.
type Notifier struct {
	cfg    *WebhookConfig
	client *http.Client
}

// NewNotifier creates a new notifier.
func NewNotifier(cfg *WebhookConfig) *Notifier {
	return &Notifier{
		cfg:    cfg,
		client: &http.Client{Timeout: 10 * time.Second},
	}
}

// BlockFoundEvent carries the details needed to render a block-found
// notification.
type BlockFoundEvent struct {
	Height      uint64
	MinerAddress string
	Difficulty  uint64
}

// PayoutQueuedEvent carries details of a payout batch just queued for
// broadcast.
type PayoutQueuedEvent struct {
	TotalAmount uint64
	MinerCount  int
}

// NotifyBlockFound sends notifications when a block is found.
func (n *Notifier) NotifyBlockFound(ev BlockFoundEvent) {
	if !n.cfg.Enabled {
		return
	}
	if n.cfg.DiscordURL != "" {
		go n.sendDiscordBlockFound(ev)
	}
	if n.cfg.TelegramBot != "" && n.cfg.TelegramChat != "" {
		go n.sendTelegramBlockFound(ev)
	}
}

// NotifyPayoutQueued sends notifications when a payout batch is queued.
func (n *Notifier) NotifyPayoutQueued(ev PayoutQueuedEvent) {
	if !n.cfg.Enabled {
		return
	}
	if n.cfg.DiscordURL != "" {
		go n.sendDiscordPayoutQueued(ev)
	}
	if n.cfg.TelegramBot != "" && n.cfg.TelegramChat != "" {
		go n.sendTelegramPayoutQueued(ev)
	}
}

// DiscordEmbed represents a Discord embed object.
type DiscordEmbed struct {
	Title       string         `json:"title,omitempty"`
	Description string         `json:"description,omitempty"`
	URL         string         `json:"url,omitempty"`
	Color       int            `json:"color,omitempty"`
	Fields      []DiscordField `json:"fields,omitempty"`
	Timestamp   string         `json:"timestamp,omitempty"`
	Footer      *DiscordFooter `json:"footer,omitempty"`
}

type DiscordField struct {
	Name   string `json:"name"`
	Value  string `json:"value"`
	Inline bool   `json:"inline,omitempty"`
}

type DiscordFooter struct {
	Text string `json:"text"`
}

type DiscordMessage struct {
	Content string         `json:"content,omitempty"`
	Embeds  []DiscordEmbed `json:"embeds,omitempty"`
}

func (n *Notifier) sendDiscordBlockFound(ev BlockFoundEvent) {
	embed := DiscordEmbed{
		Title:       "Block Found!",
		Description: fmt.Sprintf("**%s** found a new block!", n.cfg.PoolName),
		Color:       0x00FF00,
		Fields: []DiscordField{
			{Name: "Height", Value: fmt.Sprintf("%d", ev.Height), Inline: true},
			{Name: "Finder", Value: truncateAddress(ev.MinerAddress), Inline: true},
			{Name: "Difficulty", Value: fmt.Sprintf("%d", ev.Difficulty), Inline: true},
		},
		Timestamp: time.Now().UTC().Format(time.RFC3339),
		Footer:    &DiscordFooter{Text: n.cfg.PoolName},
	}
	if n.cfg.PoolURL != "" {
		embed.URL = n.cfg.PoolURL
	}
	n.sendDiscordMessage(DiscordMessage{Embeds: []DiscordEmbed{embed}})
}

func (n *Notifier) sendDiscordPayoutQueued(ev PayoutQueuedEvent) {
	embed := DiscordEmbed{
		Title:       "Payouts Queued",
		Description: fmt.Sprintf("**%s** queued a payout batch", n.cfg.PoolName),
		Color:       0x0099FF,
		Fields: []DiscordField{
			{Name: "Total Amount", Value: fmt.Sprintf("%d", ev.TotalAmount), Inline: true},
			{Name: "Miners", Value: fmt.Sprintf("%d", ev.MinerCount), Inline: true},
		},
		Timestamp: time.Now().UTC().Format(time.RFC3339),
		Footer:    &DiscordFooter{Text: n.cfg.PoolName},
	}
	n.sendDiscordMessage(DiscordMessage{Embeds: []DiscordEmbed{embed}})
}

func (n *Notifier) sendDiscordMessage(msg DiscordMessage) {
	body, err := json.Marshal(msg)
	if err != nil {
		util.Warnf("failed to marshal discord message: %v", err)
		return
	}

	var lastErr error
	for attempt := 0; attempt < MaxRetries; attempt++ {
		if attempt > 0 {
			time.Sleep(RetryBaseDelay * time.Duration(1<<uint(attempt-1)))
		}

		resp, err := n.client.Post(n.cfg.DiscordURL, "application/json", bytes.NewReader(body))
		if err != nil {
			lastErr = err
			continue
		}
		resp.Body.Close()

		if resp.StatusCode < 400 {
			return
		}
		if resp.StatusCode == 429 {
			time.Sleep(5 * time.Second)
			continue
		}
		lastErr = fmt.Errorf("status %d", resp.StatusCode)
	}

	if lastErr != nil {
		util.Warnf("failed to send discord notification after %d attempts: %v", MaxRetries, lastErr)
	}
}

// TelegramMessage represents a Telegram bot message.
type TelegramMessage struct {
	ChatID    string `json:"chat_id"`
	Text      string `json:"text"`
	ParseMode string `json:"parse_mode"`
}

func (n *Notifier) sendTelegramBlockFound(ev BlockFoundEvent) {
	text := fmt.Sprintf(
		"*Block Found!*\n\nHeight: `%d`\nFinder: `%s`\nDifficulty: `%d`",
		ev.Height, truncateAddress(ev.MinerAddress), ev.Difficulty,
	)
	n.sendTelegramMessage(text)
}

func (n *Notifier) sendTelegramPayoutQueued(ev PayoutQueuedEvent) {
	text := fmt.Sprintf(
		"*Payouts Queued*\n\nTotal Amount: `%d`\nMiners: `%d`",
		ev.TotalAmount, ev.MinerCount,
	)
	n.sendTelegramMessage(text)
}

func (n *Notifier) sendTelegramMessage(text string) {
	url := fmt.Sprintf("https://api.telegram.org/bot%s/sendMessage", n.cfg.TelegramBot)
	msg := TelegramMessage{ChatID: n.cfg.TelegramChat, Text: text, ParseMode: "Markdown"}

	body, err := json.Marshal(msg)
	if err != nil {
		util.Warnf("failed to marshal telegram message: %v", err)
		return
	}

	var lastErr error
	for attempt := 0; attempt < MaxRetries; attempt++ {
		if attempt > 0 {
			time.Sleep(RetryBaseDelay * time.Duration(1<<uint(attempt-1)))
		}

		resp, err := n.client.Post(url, "application/json", bytes.NewReader(body))
		if err != nil {
			lastErr = err
			continue
		}
		resp.Body.Close()

		if resp.StatusCode < 400 {
			return
		}
		if resp.StatusCode == 429 {
			time.Sleep(5 * time.Second)
			continue
		}
		lastErr = fmt.Errorf("status %d", resp.StatusCode)
	}

	if lastErr != nil {
		util.Warnf("failed to send telegram notification after %d attempts: %v", MaxRetries, lastErr)
	}
}

func truncateAddress(addr string) string {
	if len(addr) <= 16 {
		return addr
	}
	return addr[:8] + "..." + addr[len(addr)-6:]
}
