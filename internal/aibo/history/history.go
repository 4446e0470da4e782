// Package history persists ordered conversation message sequences keyed by
// conversation key. The store is deliberately not safe against concurrent
// mutation of the same key: exchanges are serialized externally by the
// conversation lock registry. Its only promise is that a read always
// reflects the most recent committed write within the process.
package history

import (
	"database/sql"
	"fmt"
	"time"
)

// Message roles.
const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
	RoleTool      = "tool"
)

// Message is a single turn in a conversation.
type Message struct {
	Role      string
	Content   string
	Timestamp time.Time
	// TotalTokens is the cumulative token usage the AI service reported when
	// this message was produced. Zero means no usage was recorded.
	TotalTokens int
}

// History is the ordered message sequence of one conversation, oldest first.
type History struct {
	Messages []Message
}

// Append adds a message with the current timestamp.
func (h *History) Append(role, content string) {
	h.Messages = append(h.Messages, Message{Role: role, Content: content, Timestamp: time.Now().UTC()})
}

// AppendWithUsage adds a message carrying a reported token-usage value.
func (h *History) AppendWithUsage(role, content string, totalTokens int) {
	h.Messages = append(h.Messages, Message{
		Role:        role,
		Content:     content,
		Timestamp:   time.Now().UTC(),
		TotalTokens: totalTokens,
	})
}

// Len returns the number of messages.
func (h *History) Len() int { return len(h.Messages) }

// LastUsage returns the most recent recorded token-usage value, scanning
// assistant messages from the end. ok is false when no usage was ever
// recorded.
func (h *History) LastUsage() (tokens int, ok bool) {
	for i := len(h.Messages) - 1; i >= 0; i-- {
		m := h.Messages[i]
		if m.Role == RoleAssistant && m.TotalTokens > 0 {
			return m.TotalTokens, true
		}
	}
	return 0, false
}

// Store is the SQLite-backed history store.
type Store struct {
	db *sql.DB
}

// NewStore creates a Store over the given database connection. The
// history_messages table must already exist (store migrations).
func NewStore(db *sql.DB) *Store {
	return &Store{db: db}
}

// Get loads the history for key. A conversation that has never been written
// yields an empty (non-nil) history.
func (s *Store) Get(key string) (*History, error) {
	rows, err := s.db.Query(`
		SELECT role, content, created_at, total_tokens
		FROM history_messages
		WHERE conversation_key = ?
		ORDER BY seq`, key)
	if err != nil {
		return nil, fmt.Errorf("history: query %q: %w", key, err)
	}
	defer rows.Close()

	h := &History{}
	for rows.Next() {
		var (
			m         Message
			createdAt string
			tokens    sql.NullInt64
		)
		if err := rows.Scan(&m.Role, &m.Content, &createdAt, &tokens); err != nil {
			return nil, fmt.Errorf("history: scan row: %w", err)
		}
		t, err := time.Parse(time.RFC3339Nano, createdAt)
		if err != nil {
			return nil, fmt.Errorf("history: parse created_at: %w", err)
		}
		m.Timestamp = t
		if tokens.Valid {
			m.TotalTokens = int(tokens.Int64)
		}
		h.Messages = append(h.Messages, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("history: iterate rows: %w", err)
	}
	return h, nil
}

// Put replaces the stored history for key with h.
func (s *Store) Put(key string, h *History) error {
	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("history: begin put %q: %w", key, err)
	}
	if err := putTx(tx, key, h); err != nil {
		tx.Rollback()
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("history: commit put %q: %w", key, err)
	}
	return nil
}

// Delete removes the entire history for key. Deleting an absent key is not
// an error.
func (s *Store) Delete(key string) error {
	if _, err := s.db.Exec("DELETE FROM history_messages WHERE conversation_key = ?", key); err != nil {
		return fmt.Errorf("history: delete %q: %w", key, err)
	}
	return nil
}

// PopLast removes up to n messages from the tail of the history and returns
// them newest first. Popping more than the history holds empties it without
// error.
func (s *Store) PopLast(key string, n int) ([]Message, error) {
	if n <= 0 {
		return nil, nil
	}
	h, err := s.Get(key)
	if err != nil {
		return nil, err
	}
	if n > len(h.Messages) {
		n = len(h.Messages)
	}
	removed := make([]Message, 0, n)
	for i := 0; i < n; i++ {
		last := len(h.Messages) - 1
		removed = append(removed, h.Messages[last])
		h.Messages = h.Messages[:last]
	}
	if err := s.Put(key, h); err != nil {
		return nil, err
	}
	return removed, nil
}

// Mutation is an explicit load-mutate-commit handle over one conversation's
// history. The caller mutates History() in place and then either Commit()s
// (persisting whatever the handle holds) or walks away, in which case
// nothing is written. Commit is expected to happen while the enclosing
// conversation lock is still held.
type Mutation struct {
	store     *Store
	key       string
	history   *History
	committed bool
}

// Begin loads the current history for key and returns a Mutation over it.
// What is read here reflects the most recent committed Put for the key.
func (s *Store) Begin(key string) (*Mutation, error) {
	h, err := s.Get(key)
	if err != nil {
		return nil, err
	}
	return &Mutation{store: s, key: key, history: h}, nil
}

// History returns the mutable handle. Mutations are not visible to readers
// until Commit.
func (m *Mutation) History() *History { return m.history }

// Commit persists the handle's current contents. A Mutation commits at most
// once; further calls are no-ops.
func (m *Mutation) Commit() error {
	if m.committed {
		return nil
	}
	if err := m.store.Put(m.key, m.history); err != nil {
		return err
	}
	m.committed = true
	return nil
}

// Mutate runs fn against a mutable handle for key and persists the result
// when fn returns nil. When fn returns an error nothing is written.
func (s *Store) Mutate(key string, fn func(h *History) error) error {
	m, err := s.Begin(key)
	if err != nil {
		return err
	}
	if err := fn(m.history); err != nil {
		return err
	}
	return m.Commit()
}

// putTx rewrites the message rows for key inside tx.
func putTx(tx *sql.Tx, key string, h *History) error {
	if _, err := tx.Exec("DELETE FROM history_messages WHERE conversation_key = ?", key); err != nil {
		return fmt.Errorf("history: clear %q: %w", key, err)
	}
	stmt, err := tx.Prepare(`
		INSERT INTO history_messages (conversation_key, seq, role, content, created_at, total_tokens)
		VALUES (?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("history: prepare insert: %w", err)
	}
	defer stmt.Close()

	for i, m := range h.Messages {
		var tokens any
		if m.TotalTokens > 0 {
			tokens = m.TotalTokens
		}
		ts := m.Timestamp
		if ts.IsZero() {
			ts = time.Now().UTC()
		}
		if _, err := stmt.Exec(key, i+1, m.Role, m.Content, ts.Format(time.RFC3339Nano), tokens); err != nil {
			return fmt.Errorf("history: insert message %d for %q: %w", i+1, key, err)
		}
	}
	return nil
}
