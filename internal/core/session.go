package core

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/example/subtracker/internal/db"
	"github.com/example/subtracker/internal/models"
)

// DashboardView is the filtered list plus its totals.
type DashboardView struct {
	Subscriptions []models.Subscription `json:"subscriptions"`
	Summary       Summary               `json:"summary"`
	Filters       Filters               `json:"filters"`
	Loading       bool                  `json:"loading"`
	Version       uint64                `json:"version"`
	Error         string                `json:"error,omitempty"`
}

// Session is one signed-in user's live projection.
type Session struct {
	UserID     string
	Projection *Projection

	memo SummaryMemo

	mu       sync.Mutex
	lastSeen time.Time
	holds    int

	done      chan struct{}
	closeOnce sync.Once
}

func newSession(userID string, store db.SubscriptionStore, now time.Time, logger *zap.Logger) *Session {
	return &Session{
		UserID:     userID,
		Projection: NewProjection(store, logger),
		lastSeen:   now,
		done:       make(chan struct{}),
	}
}

// Done is closed when the session is closed by sign-out, sweep or shutdown.
func (s *Session) Done() <-chan struct{} {
	return s.done
}

// close signals Done before tearing down the projection, so observers that
// see the cleared state can tell it apart from a real change.
func (s *Session) close() {
	s.closeOnce.Do(func() {
		close(s.done)
		s.Projection.Close()
	})
}

// View renders the current projection state through f.
func (s *Session) View(f Filters) DashboardView {
	return s.ViewOf(s.Projection.State(), f)
}

// ViewOf renders st through f, reusing the cached summary when st has not changed.
func (s *Session) ViewOf(st ProjectionState, f Filters) DashboardView {
	view := DashboardView{
		Subscriptions: ApplyFilters(st.Subscriptions, f),
		Summary:       s.memo.Get(st.Version, st.Subscriptions, f),
		Filters:       f,
		Loading:       st.Loading,
		Version:       st.Version,
	}
	if view.Subscriptions == nil {
		view.Subscriptions = []models.Subscription{}
	}
	if st.Err != nil {
		view.Error = "Failed to load subscriptions."
	}
	return view
}

func (s *Session) touch(now time.Time) {
	s.mu.Lock()
	s.lastSeen = now
	s.mu.Unlock()
}

// idleBefore reports whether the session has no holders and was last used before cutoff.
func (s *Session) idleBefore(cutoff time.Time) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.holds == 0 && s.lastSeen.Before(cutoff)
}

// SessionManager owns the sessions of all signed-in users.
type SessionManager struct {
	store       db.SubscriptionStore
	clock       Clock
	idleTimeout time.Duration
	logger      *zap.Logger

	mu       sync.Mutex
	sessions map[string]*Session
}

// NewSessionManager creates a manager. A zero idleTimeout disables sweeping.
func NewSessionManager(store db.SubscriptionStore, clock Clock, idleTimeout time.Duration, logger *zap.Logger) *SessionManager {
	if clock == nil {
		clock = NewSystemClock()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &SessionManager{
		store:       store,
		clock:       clock,
		idleTimeout: idleTimeout,
		logger:      logger,
		sessions:    make(map[string]*Session),
	}
}

// Open returns the user's session, opening its projection if needed.
func (m *SessionManager) Open(ctx context.Context, userID string) (*Session, error) {
	if userID == "" {
		return nil, ErrUnauthenticated
	}
	m.mu.Lock()
	if sess, ok := m.sessions[userID]; ok {
		m.mu.Unlock()
		sess.touch(m.clock.Now())
		return sess, nil
	}
	sess := newSession(userID, m.store, m.clock.Now(), m.logger)
	m.sessions[userID] = sess
	m.mu.Unlock()

	if err := sess.Projection.SetIdentity(ctx, userID); err != nil {
		m.mu.Lock()
		if m.sessions[userID] == sess {
			delete(m.sessions, userID)
		}
		m.mu.Unlock()
		sess.close()
		return nil, err
	}
	m.logger.Info("Session opened", zap.String("userID", userID))
	return sess, nil
}

// Get returns the user's open session and marks it as used.
func (m *SessionManager) Get(userID string) (*Session, error) {
	m.mu.Lock()
	sess, ok := m.sessions[userID]
	m.mu.Unlock()
	if !ok {
		return nil, ErrSessionNotFound
	}
	sess.touch(m.clock.Now())
	return sess, nil
}

// Close tears down the user's session. Closing a missing session is a no-op.
func (m *SessionManager) Close(userID string) {
	m.mu.Lock()
	sess, ok := m.sessions[userID]
	delete(m.sessions, userID)
	m.mu.Unlock()
	if ok {
		sess.close()
		m.logger.Info("Session closed", zap.String("userID", userID))
	}
}

// Hold keeps sess from being swept while a long-lived reader such as an event
// stream uses it. The returned release marks the session as used.
func (m *SessionManager) Hold(sess *Session) (release func()) {
	sess.mu.Lock()
	sess.holds++
	sess.mu.Unlock()
	var once sync.Once
	return func() {
		once.Do(func() {
			sess.mu.Lock()
			sess.holds--
			sess.lastSeen = m.clock.Now()
			sess.mu.Unlock()
		})
	}
}

// Len returns the number of open sessions.
func (m *SessionManager) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.sessions)
}

// Sweep closes sessions idle for longer than the idle timeout and returns how
// many it closed. Held sessions are never idle.
func (m *SessionManager) Sweep() int {
	if m.idleTimeout <= 0 {
		return 0
	}
	cutoff := m.clock.Now().Add(-m.idleTimeout)

	m.mu.Lock()
	var idle []*Session
	for userID, sess := range m.sessions {
		if sess.idleBefore(cutoff) {
			idle = append(idle, sess)
			delete(m.sessions, userID)
		}
	}
	m.mu.Unlock()

	for _, sess := range idle {
		sess.close()
	}
	if len(idle) > 0 {
		m.logger.Info("Idle sessions swept", zap.Int("count", len(idle)))
	}
	return len(idle)
}

// Run sweeps idle sessions until ctx is done, then closes every session.
func (m *SessionManager) Run(ctx context.Context) {
	defer m.CloseAll()
	if m.idleTimeout <= 0 {
		<-ctx.Done()
		return
	}
	ticker := time.NewTicker(m.idleTimeout / 2)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			m.Sweep()
		}
	}
}

// CloseAll closes every session.
func (m *SessionManager) CloseAll() {
	m.mu.Lock()
	all := m.sessions
	m.sessions = make(map[string]*Session)
	m.mu.Unlock()
	for _, sess := range all {
		sess.close()
	}
}
