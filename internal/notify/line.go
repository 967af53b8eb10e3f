package notify

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"

	"github.com/beekhof/calendar-notifier/internal/report"
)

const (
	// DefaultAPIURL is the LINE Messaging API message endpoint base.
	DefaultAPIURL = "https://api.line.me/v2/bot/message"

	maxTextLength       = 5000
	maxMessagesPerCall  = 5
	defaultRetryCount   = 2
	defaultRetryWait    = time.Second
	defaultRetryMaxWait = 10 * time.Second
)

// LineClient sends text messages through the LINE Messaging API.
type LineClient struct {
	client *resty.Client
}

// LineOption configures a LineClient.
type LineOption func(*resty.Client)

// WithRetryWait sets the backoff bounds between attempts.
func WithRetryWait(wait, maxWait time.Duration) LineOption {
	return func(c *resty.Client) {
		c.SetRetryWaitTime(wait).SetRetryMaxWaitTime(maxWait)
	}
}

// NewLineClient creates a client authenticated with a channel access token.
// An empty apiURL selects DefaultAPIURL.
func NewLineClient(accessToken, apiURL string, opts ...LineOption) *LineClient {
	if apiURL == "" {
		apiURL = DefaultAPIURL
	}

	client := resty.New().
		SetBaseURL(strings.TrimRight(apiURL, "/")).
		SetAuthToken(accessToken).
		SetHeader("Content-Type", "application/json").
		SetTimeout(30 * time.Second).
		SetLogger(restyLogger{}).
		SetRetryCount(defaultRetryCount).
		SetRetryWaitTime(defaultRetryWait).
		SetRetryMaxWaitTime(defaultRetryMaxWait).
		AddRetryCondition(func(r *resty.Response, err error) bool {
			if err != nil {
				return true
			}
			return r.StatusCode() == http.StatusTooManyRequests || r.StatusCode() >= 500
		})

	for _, opt := range opts {
		opt(client)
	}
	return &LineClient{client: client}
}

type textMessage struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

type messageRequest struct {
	To       string        `json:"to,omitempty"`
	Messages []textMessage `json:"messages"`
}

// Broadcast sends text to every user who has added the bot.
func (c *LineClient) Broadcast(ctx context.Context, text string) {
	c.send(ctx, "/broadcast", "", text)
}

// SendToOne pushes text to a single user, group or room.
func (c *LineClient) SendToOne(ctx context.Context, text, recipientID string) {
	if strings.TrimSpace(recipientID) == "" {
		slog.ErrorContext(ctx, "LINE recipient ID is empty, message not sent")
		return
	}
	c.send(ctx, "/push", recipientID, text)
}

func (c *LineClient) send(ctx context.Context, path, to, text string) {
	chunks := report.Split(text, maxTextLength)
	if len(chunks) == 0 {
		return
	}

	for start := 0; start < len(chunks); start += maxMessagesPerCall {
		end := min(start+maxMessagesPerCall, len(chunks))
		req := messageRequest{To: to}
		for _, chunk := range chunks[start:end] {
			req.Messages = append(req.Messages, textMessage{Type: "text", Text: chunk})
		}

		if err := c.post(ctx, path, req); err != nil {
			slog.ErrorContext(ctx, "failed to send LINE message", "endpoint", path, "messages", len(req.Messages), "error", err)
			return
		}
		slog.InfoContext(ctx, "LINE message sent", "endpoint", path, "messages", len(req.Messages))
	}
}

func (c *LineClient) post(ctx context.Context, path string, body messageRequest) error {
	resp, err := c.client.R().
		SetContext(ctx).
		SetBody(body).
		Post(path)
	if err != nil {
		return err
	}
	if resp.IsError() {
		return fmt.Errorf("HTTP %d: %s", resp.StatusCode(), strings.TrimSpace(resp.String()))
	}
	return nil
}

// restyLogger routes resty's own diagnostics through slog.
type restyLogger struct{}

func (restyLogger) Errorf(format string, v ...any) { slog.Error(fmt.Sprintf(format, v...)) }
func (restyLogger) Warnf(format string, v ...any)  { slog.Warn(fmt.Sprintf(format, v...)) }
func (restyLogger) Debugf(format string, v ...any) { slog.Debug(fmt.Sprintf(format, v...)) }
