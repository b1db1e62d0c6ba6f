package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

const DefaultTelegramAPI = "https://api.telegram.org"

// Telegram sends through the Bot API. The destination is a chat id.
type Telegram struct {
	Token           string
	BaseURL         string
	Client          *http.Client
	SendTimeout     time.Duration
	ValidateTimeout time.Duration
}

func NewTelegram(token, baseURL string, sendTimeout, validateTimeout time.Duration) *Telegram {
	if baseURL == "" {
		baseURL = DefaultTelegramAPI
	}
	if sendTimeout <= 0 {
		sendTimeout = 10 * time.Second
	}
	if validateTimeout <= 0 {
		validateTimeout = 30 * time.Second
	}
	return &Telegram{
		Token:           token,
		BaseURL:         strings.TrimRight(baseURL, "/"),
		Client:          &http.Client{},
		SendTimeout:     sendTimeout,
		ValidateTimeout: validateTimeout,
	}
}

type telegramMessage struct {
	ChatID                string `json:"chat_id"`
	Text                  string `json:"text"`
	ParseMode             string `json:"parse_mode"`
	DisableWebPagePreview bool   `json:"disable_web_page_preview"`
}

type telegramResponse struct {
	OK          bool   `json:"ok"`
	Description string `json:"description"`
}

var errTelegramDisabled = errors.New("telegram bot token not configured")

// NormalizeChatID restores the minus sign of supergroup ids that users
// commonly paste without it.
func NormalizeChatID(chatID string) string {
	id := strings.TrimSpace(chatID)
	if strings.HasPrefix(id, "100") {
		return "-" + id
	}
	return id
}

func (t *Telegram) Send(ctx context.Context, chatID string, msg Message) error {
	if t.Token == "" {
		return errTelegramDisabled
	}
	text := msg.Text
	if msg.Title != "" {
		text = "*" + msg.Title + "*\n\n" + msg.Text
	}
	body, _ := json.Marshal(telegramMessage{
		ChatID:                NormalizeChatID(chatID),
		Text:                  text,
		ParseMode:             "Markdown",
		DisableWebPagePreview: true,
	})

	ctx, cancel := context.WithTimeout(ctx, t.SendTimeout)
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, t.method("sendMessage"), bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("telegram request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	return t.do(req)
}

// ValidateDestination asks the Bot API whether the bot can see the chat.
func (t *Telegram) ValidateDestination(ctx context.Context, chatID string) error {
	if t.Token == "" {
		return errTelegramDisabled
	}
	if strings.TrimSpace(chatID) == "" {
		return ErrNoDestination
	}
	ctx, cancel := context.WithTimeout(ctx, t.ValidateTimeout)
	defer cancel()

	q := url.Values{"chat_id": {NormalizeChatID(chatID)}}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, t.method("getChat")+"?"+q.Encode(), nil)
	if err != nil {
		return fmt.Errorf("telegram request: %w", err)
	}
	if err := t.do(req); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidDestination, err)
	}
	return nil
}

func (t *Telegram) method(name string) string {
	return t.BaseURL + "/bot" + t.Token + "/" + name
}

func (t *Telegram) do(req *http.Request) error {
	resp, err := t.Client.Do(req)
	if err != nil {
		// the request URL carries the bot token
		var ue *url.Error
		if errors.As(err, &ue) {
			err = ue.Err
		}
		return fmt.Errorf("telegram %s: %w", req.Method, err)
	}
	defer resp.Body.Close()

	raw, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
	var tr telegramResponse
	_ = json.Unmarshal(raw, &tr)
	if resp.StatusCode/100 != 2 || !tr.OK {
		if tr.Description != "" {
			return fmt.Errorf("telegram status %d: %s", resp.StatusCode, tr.Description)
		}
		return fmt.Errorf("telegram status %d", resp.StatusCode)
	}
	return nil
}
