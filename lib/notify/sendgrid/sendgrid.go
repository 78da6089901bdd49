// Package sendgrid sends reminder emails through the SendGrid v3 mail API.
package sendgrid

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"html/template"
	"io"
	"net/http"
	"time"

	"github.com/ecociel/remind/lib/notify"
)

const DefaultURL = "https://api.sendgrid.com/v3/mail/send"

var ErrNotConfigured = errors.New("sendgrid: api key not configured")

// StatusError is returned when SendGrid answers with anything but 202 Accepted.
type StatusError struct {
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("sendgrid: unexpected status %d: %s", e.StatusCode, e.Body)
}

type Config struct {
	APIKey  string
	URL     string
	From    string
	Timeout time.Duration
}

type Client struct {
	apiKey string
	url    string
	from   string
	http   *http.Client
}

var _ notify.Sender = (*Client)(nil)

func New(cfg Config) *Client {
	url := cfg.URL
	if url == "" {
		url = DefaultURL
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Client{
		apiKey: cfg.APIKey,
		url:    url,
		from:   cfg.From,
		http:   &http.Client{Timeout: timeout},
	}
}

type address struct {
	Email string `json:"email"`
}

type personalization struct {
	To      []address `json:"to"`
	Subject string    `json:"subject"`
}

type content struct {
	Type  string `json:"type"`
	Value string `json:"value"`
}

type mail struct {
	Personalizations []personalization `json:"personalizations"`
	From             address           `json:"from"`
	Content          []content         `json:"content"`
}

var body = template.Must(template.New("reminder").Parse(`<html>
  <body style="font-family: Inter, Arial, sans-serif; background-color: #0b0f17; padding: 24px; color: #e6e6e6;">
    <div style="max-width: 640px; margin: 0 auto; background: #121826; padding: 28px; border-radius: 14px;">
      <h2 style="margin: 12px 0 4px; font-size: 22px; color: #e2e8f0;">I'm reminding you about:</h2>
      <div style="margin: 12px 0 18px; padding: 14px 16px; background: #0b1220; border-radius: 10px;">
        <div style="font-size: 16px; font-weight: 600;">{{.Title}}</div>
        {{- if .Notes}}
        <div style="margin-top: 8px; font-size: 14px; color: #94a3b8;">{{.Notes}}</div>
        {{- end}}
        {{- if .TimeLabel}}
        <div style="margin-top: 8px; font-size: 12px; color: #64748b;">Due {{.TimeLabel}}</div>
        {{- end}}
      </div>
      <p style="color: #64748b; font-size: 12px; margin-top: 22px;">
        You are receiving this because you created a task with a reminder.
      </p>
    </div>
  </body>
</html>
`))

func (c *Client) Send(ctx context.Context, msg notify.Message) error {
	if c.apiKey == "" {
		return ErrNotConfigured
	}

	var html bytes.Buffer
	if err := body.Execute(&html, msg); err != nil {
		return fmt.Errorf("render reminder: %w", err)
	}
	payload, err := json.Marshal(mail{
		Personalizations: []personalization{{
			To:      []address{{Email: msg.To}},
			Subject: "Task Reminder: " + msg.Title,
		}},
		From:    address{Email: c.from},
		Content: []content{{Type: "text/html", Value: html.String()}},
	})
	if err != nil {
		return fmt.Errorf("encode mail: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("new request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("post mail: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusAccepted {
		b, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return &StatusError{StatusCode: resp.StatusCode, Body: string(b)}
	}
	_, _ = io.Copy(io.Discard, resp.Body)
	return nil
}
