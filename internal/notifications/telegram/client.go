// Package telegram provides a Telegram Bot API client.
package telegram

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"time"

	"github.com/bissquit/task-garden/internal/notifications"
	"golang.org/x/time/rate"
)

const (
	defaultAPIURL    = "https://api.telegram.org"
	defaultTimeout   = 10 * time.Second
	defaultRateLimit = 1.0 // messages per second to a single chat
	parseMode        = "MarkdownV2"
)

// Config holds telegram client configuration.
type Config struct {
	BotToken  string
	APIURL    string
	Timeout   time.Duration
	RateLimit float64
}

// Client calls the Telegram Bot API. It implements notifications.Transport.
type Client struct {
	config     Config
	httpClient *http.Client
	limiter    *rate.Limiter
	apiURL     string
}

// NewClient creates a new telegram client.
func NewClient(config Config) *Client {
	if config.APIURL == "" {
		config.APIURL = defaultAPIURL
	}
	if config.Timeout == 0 {
		config.Timeout = defaultTimeout
	}
	if config.RateLimit <= 0 {
		config.RateLimit = defaultRateLimit
	}

	slog.Info("telegram client configured",
		"api_url", config.APIURL,
		"rate_limit", config.RateLimit,
		"timeout", config.Timeout,
	)

	return &Client{
		config:     config,
		httpClient: &http.Client{Timeout: config.Timeout},
		limiter:    rate.NewLimiter(rate.Limit(config.RateLimit), 1),
		apiURL:     config.APIURL,
	}
}

type sendMessageRequest struct {
	ChatID                string `json:"chat_id"`
	Text                  string `json:"text"`
	ParseMode             string `json:"parse_mode"`
	DisableWebPagePreview bool   `json:"disable_web_page_preview"`
	DisableNotification   bool   `json:"disable_notification"`
}

type editMessageTextRequest struct {
	ChatID                string `json:"chat_id"`
	MessageID             int64  `json:"message_id"`
	Text                  string `json:"text"`
	ParseMode             string `json:"parse_mode"`
	DisableWebPagePreview bool   `json:"disable_web_page_preview"`
}

type deleteMessageRequest struct {
	ChatID    string `json:"chat_id"`
	MessageID int64  `json:"message_id"`
}

type message struct {
	MessageID int64 `json:"message_id"`
}

type user struct {
	ID        int64  `json:"id"`
	IsBot     bool   `json:"is_bot"`
	FirstName string `json:"first_name"`
	Username  string `json:"username"`
}

type responseParameters struct {
	RetryAfter int `json:"retry_after,omitempty"`
}

type telegramResponse struct {
	OK          bool                `json:"ok"`
	Result      json.RawMessage     `json:"result,omitempty"`
	ErrorCode   int                 `json:"error_code,omitempty"`
	Description string              `json:"description,omitempty"`
	Parameters  *responseParameters `json:"parameters,omitempty"`
}

// SendMessage posts text to a chat and returns the new message id.
func (c *Client) SendMessage(ctx context.Context, chatID, text string) (int64, error) {
	req := sendMessageRequest{
		ChatID:                chatID,
		Text:                  text,
		ParseMode:             parseMode,
		DisableWebPagePreview: true,
		DisableNotification:   false,
	}

	var msg message
	if err := c.call(ctx, "sendMessage", req, &msg); err != nil {
		return 0, err
	}

	slog.Debug("telegram message sent", "chat_id", chatID, "message_id", msg.MessageID)
	return msg.MessageID, nil
}

// EditMessageText replaces the text of an existing message.
func (c *Client) EditMessageText(ctx context.Context, chatID string, messageID int64, text string) error {
	req := editMessageTextRequest{
		ChatID:                chatID,
		MessageID:             messageID,
		Text:                  text,
		ParseMode:             parseMode,
		DisableWebPagePreview: true,
	}
	return c.call(ctx, "editMessageText", req, nil)
}

// DeleteMessage removes a message from a chat.
func (c *Client) DeleteMessage(ctx context.Context, chatID string, messageID int64) error {
	return c.call(ctx, "deleteMessage", deleteMessageRequest{ChatID: chatID, MessageID: messageID}, nil)
}

// GetMe returns the bot identity and doubles as a credential check.
func (c *Client) GetMe(ctx context.Context) (*notifications.BotInfo, error) {
	var u user
	if err := c.call(ctx, "getMe", nil, &u); err != nil {
		return nil, err
	}
	return &notifications.BotInfo{ID: u.ID, Username: u.Username, FirstName: u.FirstName}, nil
}

func (c *Client) call(ctx context.Context, method string, payload, result any) error {
	if err := c.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("rate limit wait: %w", err)
	}

	var body io.Reader
	if payload != nil {
		data, err := json.Marshal(payload)
		if err != nil {
			return fmt.Errorf("marshal request: %w", err)
		}
		body = bytes.NewReader(data)
	}

	endpoint := fmt.Sprintf("%s/bot%s/%s", c.apiURL, c.config.BotToken, method)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, body)
	if err != nil {
		return fmt.Errorf("create request: %w", redact(err))
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return &RetryableError{Message: fmt.Sprintf("send request: %v", redact(err))}
	}
	defer func() { _ = resp.Body.Close() }()

	return handleResponse(resp, result)
}

func handleResponse(resp *http.Response, result any) error {
	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return &RetryableError{Code: resp.StatusCode, Message: fmt.Sprintf("read response: %v", err)}
	}

	var tgResp telegramResponse
	if err := json.Unmarshal(raw, &tgResp); err != nil {
		if resp.StatusCode >= 500 {
			return &RetryableError{Code: resp.StatusCode, Message: string(raw)}
		}
		return fmt.Errorf("decode response (status %d): %w", resp.StatusCode, err)
	}

	if !tgResp.OK {
		code := tgResp.ErrorCode
		if code == 0 {
			code = resp.StatusCode
		}
		return classifyError(code, tgResp.Description, tgResp.Parameters)
	}

	if result != nil && len(tgResp.Result) > 0 {
		if err := json.Unmarshal(tgResp.Result, result); err != nil {
			return fmt.Errorf("decode result: %w", err)
		}
	}
	return nil
}

func classifyError(code int, description string, params *responseParameters) error {
	switch {
	case code == http.StatusTooManyRequests:
		retryAfter := time.Second
		if params != nil && params.RetryAfter > 0 {
			retryAfter = time.Duration(params.RetryAfter) * time.Second
		}
		return &RateLimitError{RetryAfter: retryAfter, Message: description}
	case code == http.StatusUnauthorized:
		return &PermanentError{Code: code, Message: "invalid bot token: " + description}
	case code >= 500:
		return &RetryableError{Code: code, Message: description}
	default:
		return &PermanentError{Code: code, Message: description}
	}
}

// redact strips the request URL, which embeds the bot token, from transport errors.
func redact(err error) error {
	var urlErr *url.Error
	if errors.As(err, &urlErr) {
		return urlErr.Err
	}
	return err
}
