// Package convo tracks per-session conversation history so follow-up
// questions like "only for last month" can be resolved against the
// turns that came before. Contexts are append-only and bounded: only
// the most recent turns are retained, and idle sessions expire.
package convo

import (
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
)

// ErrSessionNotFound is returned for unknown or expired session IDs.
var ErrSessionNotFound = errors.New("session not found")

// Turn records one resolved question. FinalSQL is empty when the turn
// ended in a terminal failure.
type Turn struct {
	Question string
	FinalSQL string
	Columns  []string
	RowCount int
	At       time.Time
}

// Context is the retained history of one session. It is safe for
// concurrent use; the pipeline appends only after a turn resolves.
type Context struct {
	mu       sync.Mutex
	id       string
	turns    []Turn
	retain   int
	lastSeen time.Time
}

func (c *Context) ID() string {
	return c.id
}

// Append records a resolved turn, evicting the oldest once the
// retention bound is reached.
func (c *Context) Append(turn Turn) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if turn.At.IsZero() {
		turn.At = time.Now().UTC()
	}
	c.turns = append(c.turns, turn)
	if len(c.turns) > c.retain {
		c.turns = c.turns[len(c.turns)-c.retain:]
	}
	c.lastSeen = time.Now().UTC()
}

// Turns returns a copy of the retained history, oldest first.
func (c *Context) Turns() []Turn {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]Turn, len(c.turns))
	copy(out, c.turns)
	return out
}

// Summary renders the retained turns for prompt construction. The
// rendering is deterministic for a given history.
func (c *Context) Summary() string {
	c.mu.Lock()
	defer c.mu.Unlock()

	if len(c.turns) == 0 {
		return ""
	}
	var b strings.Builder
	for i, turn := range c.turns {
		fmt.Fprintf(&b, "Turn %d question: %s\n", i+1, turn.Question)
		if turn.FinalSQL != "" {
			fmt.Fprintf(&b, "Turn %d SQL: %s\n", i+1, turn.FinalSQL)
			fmt.Fprintf(&b, "Turn %d result: %d rows, columns (%s)\n", i+1, turn.RowCount, strings.Join(turn.Columns, ", "))
		} else {
			fmt.Fprintf(&b, "Turn %d did not produce an answer\n", i+1)
		}
	}
	return strings.TrimRight(b.String(), "\n")
}

func (c *Context) touch(now time.Time) {
	c.mu.Lock()
	c.lastSeen = now
	c.mu.Unlock()
}

func (c *Context) idleSince(now time.Time) time.Duration {
	c.mu.Lock()
	defer c.mu.Unlock()
	return now.Sub(c.lastSeen)
}

// Manager owns the session table. Sessions idle longer than the TTL
// are swept on access, so abandoned sessions do not accumulate.
type Manager struct {
	mu       sync.Mutex
	sessions map[string]*Context
	retain   int
	ttl      time.Duration
	now      func() time.Time
}

func NewManager(retainTurns int, sessionTTL time.Duration) *Manager {
	if retainTurns <= 0 {
		retainTurns = 1
	}
	return &Manager{
		sessions: make(map[string]*Context),
		retain:   retainTurns,
		ttl:      sessionTTL,
		now:      func() time.Time { return time.Now().UTC() },
	}
}

// StartSession creates a new empty context and returns its ID.
func (m *Manager) StartSession() *Context {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.sweepLocked()
	ctx := &Context{
		id:       uuid.New().String(),
		retain:   m.retain,
		lastSeen: m.now(),
	}
	m.sessions[ctx.id] = ctx
	return ctx
}

// Get returns the context for a session and refreshes its idle timer.
func (m *Manager) Get(sessionID string) (*Context, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.sweepLocked()
	ctx, ok := m.sessions[sessionID]
	if !ok {
		return nil, ErrSessionNotFound
	}
	ctx.touch(m.now())
	return ctx, nil
}

// EndSession discards a session. Ending an unknown session is an error
// so the API can report it.
func (m *Manager) EndSession(sessionID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.sessions[sessionID]; !ok {
		return ErrSessionNotFound
	}
	delete(m.sessions, sessionID)
	return nil
}

// Len reports the number of live sessions.
func (m *Manager) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sweepLocked()
	return len(m.sessions)
}

func (m *Manager) sweepLocked() {
	if m.ttl <= 0 {
		return
	}
	now := m.now()
	for id, ctx := range m.sessions {
		if ctx.idleSince(now) > m.ttl {
			delete(m.sessions, id)
		}
	}
}
