package transcript

import (
	"context"
	"time"
)

// Record stores a single archived conversational turn.
type Record struct {
	ID        string    `json:"id"`
	UserID    string    `json:"user_id"`
	Role      string    `json:"role"`
	Content   string    `json:"content"`
	CreatedAt time.Time `json:"created_at"`
}

// Store archives exchanged turns for inspection. The archive is best-effort
// and never authoritative: the bounded in-memory history store owns
// conversation state.
type Store interface {
	SaveTurn(ctx context.Context, record Record) error
	Recent(ctx context.Context, userID string, limit int) ([]Record, error)
	Close() error
}
