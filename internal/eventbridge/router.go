package eventbridge

import (
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

const (
	defaultSubscriberCapacity = 16
	defaultBacklogLimit       = 8
	defaultDedupeWindow       = 1024
)

// RouterOption customizes Router construction.
type RouterOption func(*Router)

// Router delivers wake events to role-specific subscribers with buffering,
// deduplication, and bounded channel semantics. It implements the scheduler's
// Notifier, so a wake is queued for the role's runner even when no runner is
// listening yet.
type Router struct {
	mu          sync.RWMutex
	subscribers map[string]map[*subscriber]struct{}
	backlog     map[string][]WakeEvent
	recentIDs   map[string]struct{}
	recentOrder []string
	sequence    atomic.Int64

	channelSize  int
	backlogLimit int
	dedupeWindow int
	logger       *zap.Logger
	clock        func() time.Time
}

// Subscription represents an active role subscription.
type Subscription struct {
	Events <-chan WakeEvent
	cancel func()
}

// Close terminates the subscription. Wakes still sitting in Events are
// handed back to the role's queue in order, so a caller that stops listening
// without reading them does not lose them.
func (s Subscription) Close() {
	if s.cancel != nil {
		s.cancel()
	}
}

// NewRouter constructs a router with sane defaults.
func NewRouter(opts ...RouterOption) *Router {
	r := &Router{
		subscribers:  map[string]map[*subscriber]struct{}{},
		backlog:      map[string][]WakeEvent{},
		recentIDs:    map[string]struct{}{},
		recentOrder:  make([]string, 0, defaultDedupeWindow),
		channelSize:  defaultSubscriberCapacity,
		backlogLimit: defaultBacklogLimit,
		dedupeWindow: defaultDedupeWindow,
		logger:       zap.NewNop(),
		clock:        time.Now,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(r)
		}
	}
	return r
}

// RouterWithLogger injects a logger for drop/diagnostic messages.
func RouterWithLogger(logger *zap.Logger) RouterOption {
	return func(r *Router) {
		if logger != nil {
			r.logger = logger
		}
	}
}

// RouterWithClock controls wake timestamps.
func RouterWithClock(clock func() time.Time) RouterOption {
	return func(r *Router) {
		if clock != nil {
			r.clock = clock
		}
	}
}

// RouterWithSubscriberCapacity overrides the buffered channel size per subscriber.
func RouterWithSubscriberCapacity(cap int) RouterOption {
	return func(r *Router) {
		if cap > 0 {
			r.channelSize = cap
		}
	}
}

// RouterWithBacklogLimit overrides the backlog size for pre-subscription buffering.
func RouterWithBacklogLimit(limit int) RouterOption {
	return func(r *Router) {
		if limit > 0 {
			r.backlogLimit = limit
		}
	}
}

// RouterWithDedupeWindow controls how many recent event IDs are retained.
func RouterWithDedupeWindow(size int) RouterOption {
	return func(r *Router) {
		if size > 0 {
			r.dedupeWindow = size
		}
	}
}

// Notify builds a wake event for role and routes it. It never blocks.
func (r *Router) Notify(role string) {
	r.Route(WakeEvent{
		Version:     WakeSchemaVersion,
		EventID:     uuid.NewString(),
		Sequence:    r.sequence.Add(1),
		Role:        role,
		TriggeredAt: r.clock().UTC(),
	})
}

// Subscribe registers for wake events addressed to role. Buffered wakes are
// replayed first.
func (r *Router) Subscribe(role string) Subscription {
	key := normalizeRole(role)
	sub := newSubscriber(r.channelSize, r.logger)
	r.mu.Lock()
	if r.subscribers[key] == nil {
		r.subscribers[key] = map[*subscriber]struct{}{}
	}
	r.subscribers[key][sub] = struct{}{}
	for _, event := range r.backlog[key] {
		sub.deliver(event)
	}
	delete(r.backlog, key)
	r.mu.Unlock()
	return Subscription{
		Events: sub.channel(),
		cancel: func() {
			r.removeSubscriber(key, sub)
		},
	}
}

// Pending reports how many wakes are buffered for role with no subscriber.
func (r *Router) Pending(role string) int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.backlog[normalizeRole(role)])
}

// Route delivers the event to subscribers or buffers it when no subscriber exists.
func (r *Router) Route(event WakeEvent) {
	if event.EventID != "" && r.isDuplicate(event.EventID) {
		return
	}
	key := normalizeRole(event.Role)
	if key == "" {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	subs := r.snapshotSubscribers(key)
	if len(subs) == 0 {
		r.bufferLocked(key, event)
		return
	}
	for _, sub := range subs {
		sub.deliver(event)
	}
}

func (r *Router) snapshotSubscribers(key string) []*subscriber {
	live := r.subscribers[key]
	if len(live) == 0 {
		return nil
	}
	items := make([]*subscriber, 0, len(live))
	for sub := range live {
		items = append(items, sub)
	}
	return items
}

func (r *Router) removeSubscriber(key string, sub *subscriber) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if subs := r.subscribers[key]; subs != nil {
		delete(subs, sub)
		if len(subs) == 0 {
			delete(r.subscribers, key)
		}
	}
	unread := sub.close()
	if len(unread) == 0 {
		return
	}
	if others := r.snapshotSubscribers(key); len(others) > 0 {
		for _, event := range unread {
			for _, other := range others {
				other.deliver(event)
			}
		}
		return
	}
	r.requeueLocked(key, unread)
}

// requeueLocked puts unread wakes back at the front of key's backlog.
func (r *Router) requeueLocked(key string, unread []WakeEvent) {
	queue := append(unread, r.backlog[key]...)
	if over := len(queue) - r.backlogLimit; over > 0 {
		queue = queue[over:]
		r.logger.Warn("wake backlog full, dropping oldest", zap.String("role", key), zap.Int("dropped", over))
	}
	r.backlog[key] = queue
	r.logger.Debug("requeued unread wakes", zap.String("role", key), zap.Int("count", len(unread)))
}

func (r *Router) bufferLocked(key string, event WakeEvent) {
	queue := r.backlog[key]
	if len(queue) >= r.backlogLimit {
		queue = queue[1:]
		r.logger.Warn("wake backlog full, dropping oldest", zap.String("role", key), zap.Int("limit", r.backlogLimit))
	}
	r.backlog[key] = append(queue, event)
}

func (r *Router) isDuplicate(eventID string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.recentIDs[eventID]; ok {
		return true
	}
	r.recentIDs[eventID] = struct{}{}
	r.recentOrder = append(r.recentOrder, eventID)
	if len(r.recentOrder) > r.dedupeWindow {
		oldest := r.recentOrder[0]
		r.recentOrder = r.recentOrder[1:]
		delete(r.recentIDs, oldest)
	}
	return false
}

func normalizeRole(role string) string {
	return strings.TrimSpace(role)
}

type subscriber struct {
	ch     chan WakeEvent
	logger *zap.Logger
	mu     sync.Mutex
	closed bool
}

func newSubscriber(capacity int, logger *zap.Logger) *subscriber {
	if capacity <= 0 {
		capacity = defaultSubscriberCapacity
	}
	return &subscriber{
		ch:     make(chan WakeEvent, capacity),
		logger: logger,
	}
}

func (s *subscriber) channel() <-chan WakeEvent {
	return s.ch
}

// deliver enqueues event, replacing the oldest queued wake on overflow.
func (s *subscriber) deliver(event WakeEvent) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	select {
	case s.ch <- event:
		return
	default:
	}
	select {
	case dropped := <-s.ch:
		s.logger.Warn("wake queue overflow", zap.String("role", dropped.Role), zap.String("event_id", dropped.EventID))
	default:
	}
	select {
	case s.ch <- event:
	default:
	}
}

// close stops delivery and returns the wakes nobody received.
func (s *subscriber) close() []WakeEvent {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	var unread []WakeEvent
	for {
		select {
		case event := <-s.ch:
			unread = append(unread, event)
		default:
			close(s.ch)
			return unread
		}
	}
}
