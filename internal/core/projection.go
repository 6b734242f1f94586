package core

import (
	"context"
	"sort"
	"sync"

	"go.uber.org/zap"

	"github.com/example/subtracker/internal/db"
	"github.com/example/subtracker/internal/models"
)

// ProjectionState is one published view of a user's subscriptions.
// Subscriptions is shared between observers and must not be modified.
type ProjectionState struct {
	UserID        string
	Subscriptions []models.Subscription
	Loading       bool
	Version       uint64
	Err           error
}

// Projection keeps a live, sorted copy of one user's subscriptions. It holds at
// most one standing store subscription at a time.
type Projection struct {
	store  db.SubscriptionStore
	logger *zap.Logger

	mu           sync.Mutex
	generation   uint64
	state        ProjectionState
	unsubscribe  db.Unsubscribe
	loaded       chan struct{}
	observers    map[int]func(ProjectionState)
	nextObserver int

	// publishMu orders deliveries to observers; lastPublished drops stale states.
	publishMu     sync.Mutex
	lastPublished uint64
}

func NewProjection(store db.SubscriptionStore, logger *zap.Logger) *Projection {
	if logger == nil {
		logger = zap.NewNop()
	}
	loaded := make(chan struct{})
	close(loaded)
	return &Projection{
		store:     store,
		logger:    logger,
		loaded:    loaded,
		observers: make(map[int]func(ProjectionState)),
	}
}

// SetIdentity points the projection at userID. The previous store subscription
// is torn down before the new one is opened. An empty userID clears the list.
// Setting the current identity again is a no-op.
func (p *Projection) SetIdentity(ctx context.Context, userID string) error {
	p.mu.Lock()
	if p.state.UserID == userID && (userID == "" || p.unsubscribe != nil) {
		p.mu.Unlock()
		return nil
	}
	previous := p.unsubscribe
	p.unsubscribe = nil
	p.generation++
	gen := p.generation
	p.state = ProjectionState{
		UserID:  userID,
		Loading: userID != "",
		Version: p.state.Version + 1,
	}
	p.loaded = make(chan struct{})
	if userID == "" {
		close(p.loaded)
	}
	cleared := p.state
	p.mu.Unlock()

	if previous != nil {
		previous()
	}
	p.publish(cleared)
	if userID == "" {
		return nil
	}

	unsubscribe, err := p.store.Subscribe(ctx, userID,
		func(subs []models.Subscription) { p.apply(gen, subs) },
		func(err error) { p.fail(gen, err) },
	)
	if err != nil {
		p.fail(gen, err)
		return err
	}

	p.mu.Lock()
	if gen != p.generation {
		p.mu.Unlock()
		unsubscribe()
		return nil
	}
	p.unsubscribe = unsubscribe
	p.mu.Unlock()
	return nil
}

// Close clears the identity and tears down the store subscription.
func (p *Projection) Close() {
	_ = p.SetIdentity(context.Background(), "")
}

// State returns the latest state.
func (p *Projection) State() ProjectionState {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.state
}

// WaitLoaded blocks until the first snapshot for the current identity has
// arrived (or failed), or ctx is done.
func (p *Projection) WaitLoaded(ctx context.Context) error {
	p.mu.Lock()
	loaded := p.loaded
	p.mu.Unlock()
	select {
	case <-loaded:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Observe registers fn and calls it at once with the current state, then with
// every newer state. fn must not call SetIdentity. The returned func removes fn.
func (p *Projection) Observe(fn func(ProjectionState)) func() {
	p.publishMu.Lock()
	defer p.publishMu.Unlock()

	p.mu.Lock()
	p.nextObserver++
	id := p.nextObserver
	p.observers[id] = fn
	current := p.state
	p.mu.Unlock()

	fn(current)

	var once sync.Once
	return func() {
		once.Do(func() {
			p.mu.Lock()
			delete(p.observers, id)
			p.mu.Unlock()
		})
	}
}

func (p *Projection) apply(gen uint64, subs []models.Subscription) {
	sorted := sortNewestFirst(subs)

	p.mu.Lock()
	if gen != p.generation {
		p.mu.Unlock()
		return
	}
	p.state.Subscriptions = sorted
	p.state.Loading = false
	p.state.Err = nil
	p.state.Version++
	p.markLoadedLocked()
	st := p.state
	p.mu.Unlock()

	p.publish(st)
}

func (p *Projection) fail(gen uint64, err error) {
	p.mu.Lock()
	if gen != p.generation {
		p.mu.Unlock()
		return
	}
	p.state.Loading = false
	p.state.Err = err
	p.state.Version++
	p.markLoadedLocked()
	st := p.state
	p.mu.Unlock()

	p.logger.Warn("Subscription listener reported an error", zap.String("userID", st.UserID), zap.Error(err))
	p.publish(st)
}

func (p *Projection) markLoadedLocked() {
	select {
	case <-p.loaded:
	default:
		close(p.loaded)
	}
}

func (p *Projection) publish(st ProjectionState) {
	p.publishMu.Lock()
	defer p.publishMu.Unlock()
	if st.Version <= p.lastPublished {
		return
	}
	p.lastPublished = st.Version

	p.mu.Lock()
	observers := make([]func(ProjectionState), 0, len(p.observers))
	for _, fn := range p.observers {
		observers = append(observers, fn)
	}
	p.mu.Unlock()

	for _, fn := range observers {
		fn(st)
	}
}

// sortNewestFirst orders by createdAt descending. Records without createdAt
// count as 0; ties keep their input order.
func sortNewestFirst(subs []models.Subscription) []models.Subscription {
	sorted := make([]models.Subscription, len(subs))
	copy(sorted, subs)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].CreatedAt > sorted[j].CreatedAt
	})
	return sorted
}
