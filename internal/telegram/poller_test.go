package telegram

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"
)

type fakeOrchestrator struct {
	mu       sync.Mutex
	messages []string
	resets   []string
	fail     bool
}

func (f *fakeOrchestrator) HandleMessage(_ context.Context, userID, text string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.fail {
		return "", errors.New("backend down")
	}
	f.messages = append(f.messages, userID+":"+text)
	return "echo: " + text, nil
}

func (f *fakeOrchestrator) HandleReset(_ context.Context, userID string) string {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.resets = append(f.resets, userID)
	return "cleared"
}

type fakeBotAPI struct {
	mu      sync.Mutex
	updates []update
	sent    []map[string]any
	sentCh  chan struct{}
}

func newFakeBotAPI(updates ...update) *fakeBotAPI {
	return &fakeBotAPI{updates: updates, sentCh: make(chan struct{}, 16)}
}

func (f *fakeBotAPI) handler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch {
		case strings.HasSuffix(r.URL.Path, "/getUpdates"):
			f.mu.Lock()
			batch := f.updates
			f.updates = nil
			f.mu.Unlock()
			if batch == nil {
				// Simulate an empty long poll without spinning the test.
				time.Sleep(10 * time.Millisecond)
				batch = []update{}
			}
			result, _ := json.Marshal(batch)
			_ = json.NewEncoder(w).Encode(apiResponse{OK: true, Result: result})
		case strings.HasSuffix(r.URL.Path, "/sendMessage"):
			var payload map[string]any
			_ = json.NewDecoder(r.Body).Decode(&payload)
			f.mu.Lock()
			f.sent = append(f.sent, payload)
			f.mu.Unlock()
			f.sentCh <- struct{}{}
			result, _ := json.Marshal(map[string]any{})
			_ = json.NewEncoder(w).Encode(apiResponse{OK: true, Result: result})
		default:
			http.NotFound(w, r)
		}
	})
}

func (f *fakeBotAPI) sentTexts() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]string, 0, len(f.sent))
	for _, p := range f.sent {
		if s, ok := p["text"].(string); ok {
			out = append(out, s)
		}
	}
	return out
}

func textUpdate(id, userID, chatID int64, text string) update {
	u := update{UpdateID: id}
	var msg message
	raw := `{"message_id":1,"from":{"id":` + jsonInt(userID) + `},"chat":{"id":` + jsonInt(chatID) + `},"text":` + jsonString(text) + `}`
	_ = json.Unmarshal([]byte(raw), &msg)
	u.Message = &msg
	return u
}

func jsonInt(v int64) string {
	b, _ := json.Marshal(v)
	return string(b)
}

func jsonString(v string) string {
	b, _ := json.Marshal(v)
	return string(b)
}

func runPoller(t *testing.T, api *fakeBotAPI, orch Orchestrator) context.CancelFunc {
	t.Helper()
	ts := httptest.NewServer(api.handler())
	t.Cleanup(ts.Close)

	p := NewPoller(Config{Token: "test-token", APIBaseURL: ts.URL, PollTimeout: time.Second}, orch)
	ctx, cancel := context.WithCancel(context.Background())
	go func() { _ = p.Run(ctx) }()
	t.Cleanup(cancel)
	return cancel
}

func waitSent(t *testing.T, api *fakeBotAPI) {
	t.Helper()
	select {
	case <-api.sentCh:
	case <-time.After(3 * time.Second):
		t.Fatalf("no message delivered in time")
	}
}

func TestPollerRoutesTextToOrchestrator(t *testing.T) {
	orch := &fakeOrchestrator{}
	api := newFakeBotAPI(textUpdate(1, 42, 100, "hi"))
	runPoller(t, api, orch)

	waitSent(t, api)

	orch.mu.Lock()
	defer orch.mu.Unlock()
	if len(orch.messages) != 1 || orch.messages[0] != "42:hi" {
		t.Fatalf("messages = %v, want [42:hi]", orch.messages)
	}
	if got := api.sentTexts(); len(got) != 1 || got[0] != "echo: hi" {
		t.Fatalf("sent = %v, want the orchestrator reply", got)
	}
}

func TestPollerStartCommandResets(t *testing.T) {
	orch := &fakeOrchestrator{}
	api := newFakeBotAPI(textUpdate(1, 7, 100, "/start"))
	runPoller(t, api, orch)

	waitSent(t, api)

	orch.mu.Lock()
	defer orch.mu.Unlock()
	if len(orch.resets) != 1 || orch.resets[0] != "7" {
		t.Fatalf("resets = %v, want [7]", orch.resets)
	}
	if len(orch.messages) != 0 {
		t.Fatalf("messages = %v, want none for /start", orch.messages)
	}
}

func TestPollerNewRequestButtonResets(t *testing.T) {
	orch := &fakeOrchestrator{}
	api := newFakeBotAPI(textUpdate(1, 7, 100, NewRequestButton))
	runPoller(t, api, orch)

	waitSent(t, api)

	orch.mu.Lock()
	defer orch.mu.Unlock()
	if len(orch.resets) != 1 {
		t.Fatalf("resets = %v, want one reset", orch.resets)
	}
	if got := api.sentTexts(); len(got) != 1 || got[0] != "cleared" {
		t.Fatalf("sent = %v, want the reset confirmation", got)
	}
}

func TestPollerBackendFailureSendsNotice(t *testing.T) {
	orch := &fakeOrchestrator{fail: true}
	api := newFakeBotAPI(textUpdate(1, 9, 100, "hi"))
	runPoller(t, api, orch)

	waitSent(t, api)

	got := api.sentTexts()
	if len(got) != 1 || !strings.Contains(got[0], "went wrong") {
		t.Fatalf("sent = %v, want the generic failure notice", got)
	}
}

func TestPollerAttachesReplyKeyboard(t *testing.T) {
	orch := &fakeOrchestrator{}
	api := newFakeBotAPI(textUpdate(1, 42, 100, "hi"))
	runPoller(t, api, orch)

	waitSent(t, api)

	api.mu.Lock()
	defer api.mu.Unlock()
	markup, ok := api.sent[0]["reply_markup"].(map[string]any)
	if !ok {
		t.Fatalf("sendMessage payload missing reply_markup: %v", api.sent[0])
	}
	raw, _ := json.Marshal(markup)
	if !strings.Contains(string(raw), NewRequestButton) {
		t.Fatalf("reply_markup = %s, want the %q button", raw, NewRequestButton)
	}
}
