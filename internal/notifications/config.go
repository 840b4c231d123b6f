package notifications

import (
	"regexp"
	"strings"
)

// Configuration errors reported by TransportConfig.
const (
	configErrMissing      = "Telegram bot token or chat ID not configured in environment variables"
	configErrInvalidToken = "Invalid Telegram bot token format"
	configErrInvalidChat  = "Invalid Telegram chat ID format"
)

var (
	botTokenPattern = regexp.MustCompile(`^\d+:[A-Za-z0-9_-]{35}$`)
	chatIDPattern   = regexp.MustCompile(`^-?\d+$`)
)

// TransportConfig is the validated Telegram destination. It is computed once
// at startup and never changes for the life of the process.
type TransportConfig struct {
	BotToken   string
	ChatID     string
	Configured bool
	Error      string
}

// NewTransportConfig validates the bot credential and destination chat.
// Invalid input disables notifications instead of failing.
func NewTransportConfig(botToken, chatID string) TransportConfig {
	botToken = strings.TrimSpace(botToken)
	chatID = strings.TrimSpace(chatID)

	cfg := TransportConfig{BotToken: botToken, ChatID: chatID}

	switch {
	case botToken == "" || chatID == "":
		cfg.Error = configErrMissing
	case !botTokenPattern.MatchString(botToken):
		cfg.Error = configErrInvalidToken
	case !chatIDPattern.MatchString(chatID):
		cfg.Error = configErrInvalidChat
	default:
		cfg.Configured = true
	}

	return cfg
}
