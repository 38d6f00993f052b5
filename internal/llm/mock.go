package llm

import (
	"context"
	"fmt"
	"strings"

	"github.com/ent0n29/dialogd/internal/history"
)

// MockClient produces deterministic local replies when no backend is configured.
type MockClient struct{}

func NewMockClient() *MockClient { return &MockClient{} }

func (c *MockClient) GenerateReply(ctx context.Context, turns []history.Turn) (string, error) {
	select {
	case <-ctx.Done():
		return "", ctx.Err()
	default:
	}

	var last string
	if len(turns) > 0 {
		last = strings.TrimSpace(turns[len(turns)-1].Content)
	}
	if last == "" {
		return "I am listening.", nil
	}
	return fmt.Sprintf("I heard you: %s", last), nil
}
