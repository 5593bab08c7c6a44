package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"
)

// TelegramUpdate is one inbound event from the Bot API long poll.
type TelegramUpdate struct {
	UpdateID int64            `json:"update_id"`
	Message  *TelegramMessage `json:"message"`
}

// TelegramMessage carries the subset of message fields the bot consumes.
type TelegramMessage struct {
	MessageID int64        `json:"message_id"`
	Chat      TelegramChat `json:"chat"`
	Text      string       `json:"text"`
}

type TelegramChat struct {
	ID int64 `json:"id"`
}

type telegramResponse struct {
	OK          bool            `json:"ok"`
	Description string          `json:"description"`
	Result      json.RawMessage `json:"result"`
}

// TelegramClient implements the small slice of the Bot API the daemon needs.
type TelegramClient struct {
	baseURL string
	token   string
	http    *http.Client
}

// NewTelegramClient constructs a Bot API client with a timeout sized for
// long polling.
func NewTelegramClient(baseURL, token string) *TelegramClient {
	return &TelegramClient{
		baseURL: strings.TrimRight(baseURL, "/"),
		token:   token,
		http:    &http.Client{Timeout: 70 * time.Second},
	}
}

// GetUpdates long-polls for inbound updates after the given offset. The
// timeout is the server-side hold in seconds.
func (c *TelegramClient) GetUpdates(ctx context.Context, offset int64, timeout int) ([]TelegramUpdate, error) {
	query := url.Values{}
	query.Set("offset", strconv.FormatInt(offset, 10))
	query.Set("timeout", strconv.Itoa(timeout))
	query.Set("allowed_updates", `["message"]`)

	raw, err := c.call(ctx, "getUpdates?"+query.Encode(), nil)
	if err != nil {
		return nil, err
	}
	var updates []TelegramUpdate
	if err := json.Unmarshal(raw, &updates); err != nil {
		return nil, fmt.Errorf("decode updates: %w", err)
	}
	return updates, nil
}

// SendMessage delivers one outbound text message to a chat.
func (c *TelegramClient) SendMessage(ctx context.Context, chatID int64, text string, html bool) error {
	payload := map[string]any{
		"chat_id": chatID,
		"text":    text,
	}
	if html {
		payload["parse_mode"] = "HTML"
	}
	_, err := c.call(ctx, "sendMessage", payload)
	return err
}

func (c *TelegramClient) call(ctx context.Context, method string, payload any) (json.RawMessage, error) {
	if c == nil {
		return nil, fmt.Errorf("telegram client not configured")
	}
	var body *bytes.Reader
	httpMethod := http.MethodGet
	if payload != nil {
		buf, err := json.Marshal(payload)
		if err != nil {
			return nil, err
		}
		body = bytes.NewReader(buf)
		httpMethod = http.MethodPost
	} else {
		body = bytes.NewReader(nil)
	}
	endpoint := fmt.Sprintf("%s/bot%s/%s", c.baseURL, c.token, method)
	req, err := http.NewRequestWithContext(ctx, httpMethod, endpoint, body)
	if err != nil {
		return nil, err
	}
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	var decoded telegramResponse
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		return nil, fmt.Errorf("telegram %s failed: status=%d: %w", methodName(method), resp.StatusCode, err)
	}
	if !decoded.OK {
		return nil, fmt.Errorf("telegram %s failed: status=%d description=%q", methodName(method), resp.StatusCode, decoded.Description)
	}
	return decoded.Result, nil
}

func methodName(method string) string {
	name, _, _ := strings.Cut(method, "?")
	return name
}

// Notifier delivers an issued credential to its user.
type Notifier interface {
	Deliver(ctx context.Context, userID int64, key string, expiry time.Time) error
}

// TelegramNotifier sends issued license keys over the Bot API.
type TelegramNotifier struct {
	client *TelegramClient
}

func NewTelegramNotifier(client *TelegramClient) *TelegramNotifier {
	return &TelegramNotifier{client: client}
}

func (n *TelegramNotifier) Deliver(ctx context.Context, userID int64, key string, expiry time.Time) error {
	text := fmt.Sprintf(
		"✅ Payment confirmed!\n\nYour license key:\n<code>%s</code>\n\nEnter this key in your MT5 EA to activate.\nValid until %s.",
		key, expiry.Format("2006-01-02"))
	return n.client.SendMessage(ctx, userID, text, true)
}
