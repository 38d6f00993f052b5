package history

import "sync"

// Role tags who produced a turn.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleSystem    Role = "system"
)

// Turn is one role-tagged message in a conversation. Turns are immutable
// once stored; the store only appends or discards them.
type Turn struct {
	Role    Role   `json:"role"`
	Content string `json:"content"`
}

// DefaultMaxTurns bounds a conversation when no explicit limit is configured.
const DefaultMaxTurns = 30

// Store keeps bounded per-user conversation history in process memory.
//
// Store hands out one mutex per user via Lock. Single calls (History, Append,
// Clear) are safe on their own, but a caller doing a compound
// read-then-write — snapshot history, call the backend, append the new
// turns — must hold that user's lock across the whole sequence, or a
// concurrent reset or append could interleave with it.
type Store struct {
	mu       sync.RWMutex
	turns    map[string][]Turn
	locks    map[string]*sync.Mutex
	maxTurns int
}

func NewStore(maxTurns int) *Store {
	if maxTurns <= 0 {
		maxTurns = DefaultMaxTurns
	}
	return &Store{
		turns:    make(map[string][]Turn),
		locks:    make(map[string]*sync.Mutex),
		maxTurns: maxTurns,
	}
}

// Lock returns the mutex serializing conversation updates for userID,
// creating it on first use. Two goroutines racing on a never-seen user must
// both get the same mutex, so creation is double-checked: the cheap read
// path first, then re-check under the write lock before inserting.
func (s *Store) Lock(userID string) *sync.Mutex {
	s.mu.RLock()
	l, ok := s.locks[userID]
	s.mu.RUnlock()
	if ok {
		return l
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if l, ok := s.locks[userID]; ok {
		return l
	}
	l = &sync.Mutex{}
	s.locks[userID] = l
	return l
}

// History returns an independent snapshot of userID's conversation in
// chronological order. Unknown users get an empty slice, not an error.
func (s *Store) History(userID string) []Turn {
	s.mu.RLock()
	defer s.mu.RUnlock()
	arr := s.turns[userID]
	if len(arr) == 0 {
		return nil
	}
	out := make([]Turn, len(arr))
	copy(out, arr)
	return out
}

// Append adds one turn to userID's conversation, then trims the oldest
// turns until the length is back within the configured bound.
func (s *Store) Append(userID string, role Role, content string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	arr := append(s.turns[userID], Turn{Role: role, Content: content})
	if overflow := len(arr) - s.maxTurns; overflow > 0 {
		arr = arr[overflow:]
	}
	s.turns[userID] = arr
}

// Clear discards userID's conversation. Clearing an empty or never-seen
// conversation is a no-op.
func (s *Store) Clear(userID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.turns, userID)
}

// Len reports the current conversation length for userID.
func (s *Store) Len(userID string) int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.turns[userID])
}

// TrackedUsers reports how many users have a lock entry. Lock entries are
// never removed for the life of the process.
func (s *Store) TrackedUsers() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.locks)
}
