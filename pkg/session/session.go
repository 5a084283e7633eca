// Package session provides per-user realtime update handles fed by the domain event stream.
//
// A Manager holds one subscription to the event topic and fans each event out to the open
// sessions of the business it belongs to. Sessions are owned by the Manager; there is no
// process-wide connection state.
package session

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/dukex/parley/pkg/events"
)

const (
	DefaultBufferSize = 64
	DefaultDrainLimit = 100
)

var (
	ErrUserIDRequired     = errors.New("user id is required")
	ErrBusinessIDRequired = errors.New("business id is required")
	ErrNotStarted         = errors.New("session manager is not started")
	ErrAlreadyStarted     = errors.New("session manager is already started")
)

// Update is one domain event delivered to a session.
type Update struct {
	ID         string           `json:"id"`
	Type       events.EventType `json:"type"`
	Key        string           `json:"key"`
	BusinessID string           `json:"businessId"`
	Payload    json.RawMessage  `json:"payload"`
	ReceivedAt time.Time        `json:"receivedAt"`
}

// Session is the realtime handle of one user scoped to one business.
type Session struct {
	UserID     string
	BusinessID string
	OpenedAt   time.Time

	updates chan Update
	dropped atomic.Int64
}

// Updates returns the channel of pending updates. It is closed when the session is closed.
func (s *Session) Updates() <-chan Update {
	return s.updates
}

// Dropped reports how many updates were discarded because the buffer was full.
func (s *Session) Dropped() int64 {
	return s.dropped.Load()
}

// Drain waits up to wait for the first update and then collects whatever else is already
// queued, up to limit updates.
func (s *Session) Drain(ctx context.Context, limit int, wait time.Duration) []Update {
	if limit <= 0 {
		limit = DefaultDrainLimit
	}

	updates := make([]Update, 0)

	timer := time.NewTimer(wait)
	defer timer.Stop()

	select {
	case update, ok := <-s.updates:
		if !ok {
			return updates
		}

		updates = append(updates, update)
	case <-timer.C:
		return updates
	case <-ctx.Done():
		return updates
	}

	for len(updates) < limit {
		select {
		case update, ok := <-s.updates:
			if !ok {
				return updates
			}

			updates = append(updates, update)
		default:
			return updates
		}
	}

	return updates
}

// Manager owns the sessions of this process.
type Manager struct {
	logger     *slog.Logger
	subscriber message.Subscriber
	bufferSize int

	mu       sync.RWMutex
	started  bool
	sessions map[string]*Session
}

func NewManager(logger *slog.Logger, subscriber message.Subscriber, bufferSize int) *Manager {
	if bufferSize <= 0 {
		bufferSize = DefaultBufferSize
	}

	return &Manager{
		logger:     logger.With("module", "session_manager"),
		subscriber: subscriber,
		bufferSize: bufferSize,
		sessions:   make(map[string]*Session),
	}
}

// Start subscribes to the event topic. Delivery stops when ctx is cancelled.
func (m *Manager) Start(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.started {
		return ErrAlreadyStarted
	}

	messages, err := m.subscriber.Subscribe(ctx, events.Topic)
	if err != nil {
		return err
	}

	m.started = true

	go m.dispatch(messages)

	m.logger.Info("Session manager started", "topic", events.Topic)

	return nil
}

func (m *Manager) dispatch(messages <-chan *message.Message) {
	for msg := range messages {
		update := Update{
			ID:         msg.UUID,
			Type:       events.EventType(msg.Metadata.Get(events.EventTypeMetadataKey)),
			Key:        msg.Metadata.Get(events.EventMetadataKey),
			BusinessID: msg.Metadata.Get(events.BusinessIDMetadataKey),
			Payload:    json.RawMessage(msg.Payload),
			ReceivedAt: time.Now().UTC(),
		}

		m.fanOut(update)
		msg.Ack()
	}

	m.logger.Info("Session manager stopped receiving events")
}

func (m *Manager) fanOut(update Update) {
	if update.BusinessID == "" {
		return
	}

	m.mu.RLock()
	defer m.mu.RUnlock()

	for _, session := range m.sessions {
		if session.BusinessID != update.BusinessID {
			continue
		}

		select {
		case session.updates <- update:
		default:
			session.dropped.Add(1)
			m.logger.Warn("Session buffer full, dropping update",
				"user_id", session.UserID,
				"event_type", update.Type,
				"dropped", session.dropped.Load())
		}
	}
}

// Open returns the live session of userID, creating it when there is none. A live session
// opened for another business is closed and replaced.
func (m *Manager) Open(ctx context.Context, userID, businessID string) (*Session, error) {
	if userID == "" {
		return nil, ErrUserIDRequired
	}

	if businessID == "" {
		return nil, ErrBusinessIDRequired
	}

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if !m.started {
		return nil, ErrNotStarted
	}

	if existing, ok := m.sessions[userID]; ok {
		if existing.BusinessID == businessID {
			return existing, nil
		}

		m.closeLocked(userID)
	}

	session := &Session{
		UserID:     userID,
		BusinessID: businessID,
		OpenedAt:   time.Now().UTC(),
		updates:    make(chan Update, m.bufferSize),
	}
	m.sessions[userID] = session

	m.logger.InfoContext(ctx, "Session opened", "user_id", userID, "business_id", businessID)

	return session, nil
}

func (m *Manager) Get(userID string) (*Session, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	session, ok := m.sessions[userID]

	return session, ok
}

// Close tears down the session of userID. It reports whether a session existed.
func (m *Manager) Close(userID string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	return m.closeLocked(userID)
}

func (m *Manager) CloseAll() {
	m.mu.Lock()
	defer m.mu.Unlock()

	for userID := range m.sessions {
		m.closeLocked(userID)
	}
}

// Len returns the number of open sessions.
func (m *Manager) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()

	return len(m.sessions)
}

// closeLocked must be called with mu held for writing; fanOut only sends under the read lock.
func (m *Manager) closeLocked(userID string) bool {
	session, ok := m.sessions[userID]
	if !ok {
		return false
	}

	delete(m.sessions, userID)
	close(session.updates)

	m.logger.Info("Session closed", "user_id", userID, "business_id", session.BusinessID)

	return true
}
