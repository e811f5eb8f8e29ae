package notification

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"
)

const (
	colorRed    = 16711680
	colorGreen  = 65280
	colorOrange = 16753920
)

type DiscordMessage struct {
	Embeds []DiscordEmbed `json:"embeds"`
}

type DiscordEmbed struct {
	Title       string `json:"title"`
	Description string `json:"description"`
	Color       int    `json:"color"`
}

// Discord posts run summaries to webhooks. Warnings and errors share the
// error webhook. An empty URL silently drops that kind of message.
type Discord struct {
	errorURL   string
	successURL string
	httpClient *http.Client
}

func NewDiscord(errorURL, successURL string, httpClient *http.Client) *Discord {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 10 * time.Second}
	}
	return &Discord{errorURL: errorURL, successURL: successURL, httpClient: httpClient}
}

func (d *Discord) SendError(errorMessage string) error {
	return d.send(d.errorURL, DiscordEmbed{
		Title:       "🚨 Error Notification",
		Description: fmt.Sprintf("NDVI analysis failed: %s", errorMessage),
		Color:       colorRed,
	})
}

func (d *Discord) SendWarning(warningMessage string) error {
	return d.send(d.errorURL, DiscordEmbed{
		Title:       "⚠️ Warning Notification",
		Description: fmt.Sprintf("NDVI analysis finished with errors.\n\n%s", warningMessage),
		Color:       colorOrange,
	})
}

func (d *Discord) SendSuccess(successMessage string) error {
	return d.send(d.successURL, DiscordEmbed{
		Title:       "✅ Success Notification",
		Description: fmt.Sprintf("NDVI analysis finished.\n\n%s", successMessage),
		Color:       colorGreen,
	})
}

func (d *Discord) send(url string, embed DiscordEmbed) error {
	if url == "" {
		return nil
	}

	payload, err := json.Marshal(DiscordMessage{Embeds: []DiscordEmbed{embed}})
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(context.Background(), http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := d.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusNoContent && resp.StatusCode != http.StatusOK {
		return fmt.Errorf("failed to send Discord notification, status code: %d", resp.StatusCode)
	}

	return nil
}
