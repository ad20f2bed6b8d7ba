// Package whatsapp sends messages through the WhatsApp Cloud API. A failed
// send never aborts a ledger mutation that already committed; callers log
// and continue.
package whatsapp

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"time"
)

const defaultAPIURL = "https://graph.facebook.com/v18.0"

// Button is one interactive reply button (3 max per message).
type Button struct {
	Title string
}

// ListRow is one selectable row of an interactive list (10 max).
type ListRow struct {
	ID          string `json:"id"`
	Title       string `json:"title"`
	Description string `json:"description,omitempty"`
}

type ListSection struct {
	Title string    `json:"title,omitempty"`
	Rows  []ListRow `json:"rows"`
}

type Sender interface {
	SendText(ctx context.Context, to, body string) error
	SendButtons(ctx context.Context, to, body string, buttons []Button) error
	SendList(ctx context.Context, to, body, buttonLabel string, sections []ListSection) error
}

// CloudAPI posts to graph.facebook.com on behalf of one business phone number.
type CloudAPI struct {
	apiURL        string
	phoneNumberID string
	token         string
	httpClient    *http.Client
}

func NewCloudAPI() *CloudAPI {
	apiURL := os.Getenv("WHATSAPP_API_URL")
	if apiURL == "" {
		apiURL = defaultAPIURL
	}
	return &CloudAPI{
		apiURL:        apiURL,
		phoneNumberID: os.Getenv("WHATSAPP_PHONE_NUMBER_ID"),
		token:         os.Getenv("WHATSAPP_TOKEN"),
		httpClient:    &http.Client{Timeout: 15 * time.Second},
	}
}

func (w *CloudAPI) post(ctx context.Context, payload map[string]interface{}) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return err
	}

	url := fmt.Sprintf("%s/%s/messages", w.apiURL, w.phoneNumberID)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", "Bearer "+w.token)
	req.Header.Set("Content-Type", "application/json")

	resp, err := w.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		detail, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("whatsapp: status %d: %s", resp.StatusCode, string(detail))
	}
	return nil
}

func (w *CloudAPI) SendText(ctx context.Context, to, body string) error {
	return w.post(ctx, map[string]interface{}{
		"messaging_product": "whatsapp",
		"to":                to,
		"type":              "text",
		"text":              map[string]string{"body": body},
	})
}

// SendButtons sends up to 3 reply buttons; titles are capped at 20
// characters by the API and truncated here.
func (w *CloudAPI) SendButtons(ctx context.Context, to, body string, buttons []Button) error {
	if len(buttons) > 3 {
		buttons = buttons[:3]
	}
	replies := make([]map[string]interface{}, 0, len(buttons))
	for i, btn := range buttons {
		title := btn.Title
		if runes := []rune(title); len(runes) > 20 {
			title = string(runes[:20])
		}
		replies = append(replies, map[string]interface{}{
			"type": "reply",
			"reply": map[string]string{
				"id":    fmt.Sprintf("btn_%d", i),
				"title": title,
			},
		})
	}

	return w.post(ctx, map[string]interface{}{
		"messaging_product": "whatsapp",
		"recipient_type":    "individual",
		"to":                to,
		"type":              "interactive",
		"interactive": map[string]interface{}{
			"type": "button",
			"body": map[string]string{"text": body},
			"action": map[string]interface{}{
				"buttons": replies,
			},
		},
	})
}

// SendList sends an interactive list; the API allows at most 10 rows across
// all sections.
func (w *CloudAPI) SendList(ctx context.Context, to, body, buttonLabel string, sections []ListSection) error {
	total := 0
	capped := make([]ListSection, 0, len(sections))
	for _, section := range sections {
		if total >= 10 {
			break
		}
		if total+len(section.Rows) > 10 {
			section.Rows = section.Rows[:10-total]
		}
		total += len(section.Rows)
		capped = append(capped, section)
	}

	return w.post(ctx, map[string]interface{}{
		"messaging_product": "whatsapp",
		"recipient_type":    "individual",
		"to":                to,
		"type":              "interactive",
		"interactive": map[string]interface{}{
			"type": "list",
			"body": map[string]string{"text": body},
			"action": map[string]interface{}{
				"button":   buttonLabel,
				"sections": capped,
			},
		},
	})
}
