package db

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/example/subtracker/internal/models"
)

type memoryEntry struct {
	sub models.Subscription
	seq uint64
}

type memoryListener struct {
	onChange func([]models.Subscription)
	onError  func(error)
}

// MemoryStore is an in-process SubscriptionStore. Change notifications are
// delivered synchronously after each write. It is safe for concurrent use.
type MemoryStore struct {
	now func() time.Time

	mu        sync.RWMutex
	seq       uint64
	users     map[string]map[string]memoryEntry
	listeners map[string]map[int]memoryListener
	nextID    int
	failure   error

	// deliverMu serialises notifications and unsubscription so that no
	// callback runs after Unsubscribe has returned.
	deliverMu sync.Mutex
}

// NewMemoryStore creates an empty store. now supplies createdAt timestamps;
// nil means time.Now.
func NewMemoryStore(now func() time.Time) *MemoryStore {
	if now == nil {
		now = time.Now
	}
	return &MemoryStore{
		now:       now,
		users:     make(map[string]map[string]memoryEntry),
		listeners: make(map[string]map[int]memoryListener),
	}
}

// SetFailure makes every subsequent operation fail with err until it is
// called again with nil. Used to simulate backend outages.
func (s *MemoryStore) SetFailure(err error) {
	s.mu.Lock()
	s.failure = err
	s.mu.Unlock()
}

// EmitError delivers err to every listener of userID.
func (s *MemoryStore) EmitError(userID string, err error) {
	s.deliverMu.Lock()
	defer s.deliverMu.Unlock()

	s.mu.RLock()
	ls := s.listenersLocked(userID)
	s.mu.RUnlock()
	for _, l := range ls {
		if l.onError != nil {
			l.onError(err)
		}
	}
}

// Len returns the number of documents stored for userID.
func (s *MemoryStore) Len(userID string) int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.users[userID])
}

func (s *MemoryStore) Create(ctx context.Context, userID string, fields models.SubscriptionFields) (string, error) {
	_ = ctx
	s.mu.Lock()
	if s.failure != nil {
		err := s.failure
		s.mu.Unlock()
		return "", err
	}
	id := uuid.NewString()
	s.seq++
	s.userLocked(userID)[id] = memoryEntry{
		sub: models.Subscription{
			ID:                 id,
			SubscriptionFields: fields,
			CreatedAt:          s.now().UnixMilli(),
		},
		seq: s.seq,
	}
	s.mu.Unlock()

	s.notify(userID)
	return id, nil
}

func (s *MemoryStore) Write(ctx context.Context, userID, id string, fields models.SubscriptionFields) error {
	_ = ctx
	s.mu.Lock()
	if s.failure != nil {
		err := s.failure
		s.mu.Unlock()
		return err
	}
	docs := s.userLocked(userID)
	entry, ok := docs[id]
	if !ok {
		s.seq++
		entry = memoryEntry{sub: models.Subscription{ID: id}, seq: s.seq}
	}
	entry.sub.SubscriptionFields = fields
	docs[id] = entry
	s.mu.Unlock()

	s.notify(userID)
	return nil
}

func (s *MemoryStore) WriteActive(ctx context.Context, userID, id string, isActive bool) error {
	_ = ctx
	s.mu.Lock()
	if s.failure != nil {
		err := s.failure
		s.mu.Unlock()
		return err
	}
	docs := s.users[userID]
	entry, ok := docs[id]
	if !ok {
		s.mu.Unlock()
		return ErrNotFound
	}
	entry.sub.IsActive = isActive
	docs[id] = entry
	s.mu.Unlock()

	s.notify(userID)
	return nil
}

func (s *MemoryStore) Delete(ctx context.Context, userID, id string) error {
	_ = ctx
	s.mu.Lock()
	if s.failure != nil {
		err := s.failure
		s.mu.Unlock()
		return err
	}
	_, existed := s.users[userID][id]
	delete(s.users[userID], id)
	s.mu.Unlock()

	if existed {
		s.notify(userID)
	}
	return nil
}

func (s *MemoryStore) ReadOnce(ctx context.Context, userID, id string) (*models.Subscription, error) {
	_ = ctx
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.failure != nil {
		return nil, s.failure
	}
	entry, ok := s.users[userID][id]
	if !ok {
		return nil, ErrNotFound
	}
	sub := entry.sub
	return &sub, nil
}

func (s *MemoryStore) Subscribe(ctx context.Context, userID string, onChange func([]models.Subscription), onError func(error)) (Unsubscribe, error) {
	_ = ctx
	s.deliverMu.Lock()
	defer s.deliverMu.Unlock()

	s.mu.Lock()
	if s.failure != nil {
		err := s.failure
		s.mu.Unlock()
		return nil, err
	}
	s.nextID++
	lid := s.nextID
	if s.listeners[userID] == nil {
		s.listeners[userID] = make(map[int]memoryListener)
	}
	s.listeners[userID][lid] = memoryListener{onChange: onChange, onError: onError}
	initial := s.snapshotLocked(userID)
	s.mu.Unlock()

	onChange(initial)

	var once sync.Once
	return func() {
		once.Do(func() {
			s.deliverMu.Lock()
			defer s.deliverMu.Unlock()
			s.mu.Lock()
			delete(s.listeners[userID], lid)
			s.mu.Unlock()
		})
	}, nil
}

func (s *MemoryStore) FindRenewals(ctx context.Context, from, to time.Time) ([]models.DueRenewal, error) {
	_ = ctx
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.failure != nil {
		return nil, s.failure
	}
	lo, hi := from.UnixMilli(), to.UnixMilli()
	var due []models.DueRenewal
	for userID := range s.users {
		for _, sub := range s.snapshotLocked(userID) {
			if sub.IsActive && sub.RenewalDate >= lo && sub.RenewalDate < hi {
				due = append(due, models.DueRenewal{UserID: userID, Subscription: sub})
			}
		}
	}
	sort.Slice(due, func(i, j int) bool { return due[i].Subscription.RenewalDate < due[j].Subscription.RenewalDate })
	return due, nil
}

func (s *MemoryStore) notify(userID string) {
	s.deliverMu.Lock()
	defer s.deliverMu.Unlock()

	s.mu.RLock()
	ls := s.listenersLocked(userID)
	var snapshot []models.Subscription
	if len(ls) > 0 {
		snapshot = s.snapshotLocked(userID)
	}
	s.mu.RUnlock()

	for _, l := range ls {
		l.onChange(append([]models.Subscription(nil), snapshot...))
	}
}

func (s *MemoryStore) userLocked(userID string) map[string]memoryEntry {
	docs, ok := s.users[userID]
	if !ok {
		docs = make(map[string]memoryEntry)
		s.users[userID] = docs
	}
	return docs
}

func (s *MemoryStore) listenersLocked(userID string) []memoryListener {
	ls := make([]memoryListener, 0, len(s.listeners[userID]))
	for _, l := range s.listeners[userID] {
		ls = append(ls, l)
	}
	return ls
}

// snapshotLocked returns userID's documents in insertion order.
func (s *MemoryStore) snapshotLocked(userID string) []models.Subscription {
	entries := make([]memoryEntry, 0, len(s.users[userID]))
	for _, e := range s.users[userID] {
		entries = append(entries, e)
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].seq < entries[j].seq })
	subs := make([]models.Subscription, len(entries))
	for i, e := range entries {
		subs[i] = e.sub
	}
	return subs
}
