// Package telegram long-polls the Telegram Bot API and routes updates into
// the conversation orchestrator. It owns all chat-session bookkeeping:
// command parsing, the reply keyboard, and delivery of outbound text.
package telegram

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/ent0n29/dialogd/internal/chat"
	"github.com/ent0n29/dialogd/internal/reliability"
)

// Orchestrator handles conversation events for one user at a time.
type Orchestrator interface {
	HandleMessage(ctx context.Context, userID, text string) (string, error)
	HandleReset(ctx context.Context, userID string) string
}

// NewRequestButton is the reply-keyboard label that resets the conversation.
const NewRequestButton = "New request"

const (
	greetingText = "Hi! I answer with the help of an assistant.\n\n" +
		"Send me any text and I will reply with the conversation so far in mind.\n" +
		"To start a fresh dialogue, press the \"" + NewRequestButton + "\" button or send /start again."
	helpText = "Available actions:\n" +
		"- /start: start a new dialogue and clear the context\n" +
		"- /help: show this help\n" +
		"- any text: I reply with the conversation history in mind\n" +
		"- the \"" + NewRequestButton + "\" button: clear the context and start over"
)

// Config controls poller construction.
type Config struct {
	Token       string
	APIBaseURL  string
	PollTimeout time.Duration
}

type Poller struct {
	token        string
	baseURL      string
	pollTimeout  time.Duration
	client       *http.Client
	orchestrator Orchestrator
}

func NewPoller(cfg Config, orchestrator Orchestrator) *Poller {
	pollTimeout := cfg.PollTimeout
	if pollTimeout <= 0 {
		pollTimeout = 25 * time.Second
	}
	baseURL := strings.TrimRight(strings.TrimSpace(cfg.APIBaseURL), "/")
	if baseURL == "" {
		baseURL = "https://api.telegram.org"
	}
	return &Poller{
		token:       strings.TrimSpace(cfg.Token),
		baseURL:     baseURL,
		pollTimeout: pollTimeout,
		// The long poll holds the connection open for pollTimeout; leave
		// headroom before the client gives up.
		client:       &http.Client{Timeout: pollTimeout + 10*time.Second},
		orchestrator: orchestrator,
	}
}

type update struct {
	UpdateID int64    `json:"update_id"`
	Message  *message `json:"message"`
}

type message struct {
	MessageID int64 `json:"message_id"`
	From      *struct {
		ID int64 `json:"id"`
	} `json:"from"`
	Chat struct {
		ID int64 `json:"id"`
	} `json:"chat"`
	Text string `json:"text"`
}

type apiResponse struct {
	OK          bool            `json:"ok"`
	Result      json.RawMessage `json:"result"`
	Description string          `json:"description"`
}

// Run polls for updates until ctx is canceled. Each update is handled on its
// own goroutine; per-user ordering still holds because the orchestrator
// serializes events behind the user's lock.
func (p *Poller) Run(ctx context.Context) error {
	var offset int64
	attempt := 0

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		updates, err := p.getUpdates(ctx, offset)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			attempt++
			delay := reliability.ExponentialBackoff(attempt, 500*time.Millisecond, 10*time.Second)
			log.Printf("telegram poll failed (attempt %d, retrying in %v): %v", attempt, delay, err)
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(delay):
			}
			continue
		}
		attempt = 0

		for _, u := range updates {
			if u.UpdateID >= offset {
				offset = u.UpdateID + 1
			}
			if u.Message == nil || u.Message.From == nil {
				continue
			}
			msg := *u.Message
			go p.handleMessage(ctx, msg)
		}
	}
}

func (p *Poller) handleMessage(ctx context.Context, msg message) {
	userID := strconv.FormatInt(msg.From.ID, 10)
	text := msg.Text

	var reply string
	switch {
	case text == "/start":
		p.orchestrator.HandleReset(ctx, userID)
		reply = greetingText
	case text == "/help":
		reply = helpText
	case strings.TrimSpace(text) == NewRequestButton:
		reply = p.orchestrator.HandleReset(ctx, userID)
	default:
		var err error
		reply, err = p.orchestrator.HandleMessage(ctx, userID, text)
		if err != nil {
			log.Printf("message exchange failed for user %s: %v", userID, err)
			reply = chat.FailureNotice
		}
	}

	if err := p.sendMessage(ctx, msg.Chat.ID, reply); err != nil {
		log.Printf("telegram send failed for chat %d: %v", msg.Chat.ID, err)
	}
}

func (p *Poller) getUpdates(ctx context.Context, offset int64) ([]update, error) {
	payload := map[string]any{
		"offset":          offset,
		"timeout":         int(p.pollTimeout.Seconds()),
		"allowed_updates": []string{"message"},
	}

	var res apiResponse
	if err := p.call(ctx, "getUpdates", payload, &res); err != nil {
		return nil, err
	}

	var updates []update
	if err := json.Unmarshal(res.Result, &updates); err != nil {
		return nil, fmt.Errorf("decode updates: %w", err)
	}
	return updates, nil
}

func (p *Poller) sendMessage(ctx context.Context, chatID int64, text string) error {
	payload := map[string]any{
		"chat_id": chatID,
		"text":    text,
		"reply_markup": map[string]any{
			"keyboard":        [][]map[string]string{{{"text": NewRequestButton}}},
			"resize_keyboard": true,
		},
	}
	return p.call(ctx, "sendMessage", payload, &apiResponse{})
}

func (p *Poller) call(ctx context.Context, method string, payload any, out *apiResponse) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal %s payload: %w", method, err)
	}

	url := fmt.Sprintf("%s/bot%s/%s", p.baseURL, p.token, method)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("create %s request: %w", method, err)
	}
	req.Header.Set("Content-Type", "application/json")

	res, err := p.client.Do(req)
	if err != nil {
		return fmt.Errorf("send %s request: %w", method, err)
	}
	defer res.Body.Close()

	if res.StatusCode < 200 || res.StatusCode >= 300 {
		detail, _ := io.ReadAll(io.LimitReader(res.Body, 4<<10))
		if !reliability.IsRetryableHTTPStatus(res.StatusCode) {
			return fmt.Errorf("telegram %s status %d (not retryable): %s", method, res.StatusCode, string(detail))
		}
		return fmt.Errorf("telegram %s status %d: %s", method, res.StatusCode, string(detail))
	}

	if err := json.NewDecoder(res.Body).Decode(out); err != nil {
		return fmt.Errorf("decode %s response: %w", method, err)
	}
	if !out.OK {
		return fmt.Errorf("telegram %s rejected: %s", method, out.Description)
	}
	return nil
}
