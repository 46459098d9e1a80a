package notification

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/dukex/applyflow/pkg/models"
)

const defaultBuffer = 16

// Broker is an in-process topic-per-user notification hub.
type Broker struct {
	mu      sync.RWMutex
	subs    map[string]map[*Subscription]struct{}
	buffer  int
	dropped atomic.Int64
	logger  *slog.Logger
}

// NewBroker creates a broker whose subscriptions buffer up to buffer notifications.
func NewBroker(buffer int, logger *slog.Logger) *Broker {
	if buffer <= 0 {
		buffer = defaultBuffer
	}

	return &Broker{
		subs:   make(map[string]map[*Subscription]struct{}),
		buffer: buffer,
		logger: logger,
	}
}

// Subscription receives the notifications of one user until Close is called.
type Subscription struct {
	broker *Broker
	userID string
	ch     chan *models.Notification
	once   sync.Once
}

// C returns the delivery channel. It is closed by Close.
func (s *Subscription) C() <-chan *models.Notification {
	return s.ch
}

// Close unregisters the subscription. It is safe to call more than once.
func (s *Subscription) Close() {
	s.once.Do(func() {
		s.broker.unsubscribe(s)
	})
}

// Subscribe registers a listener for userID.
func (b *Broker) Subscribe(userID string) *Subscription {
	sub := &Subscription{
		broker: b,
		userID: userID,
		ch:     make(chan *models.Notification, b.buffer),
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	if b.subs[userID] == nil {
		b.subs[userID] = make(map[*Subscription]struct{})
	}

	b.subs[userID][sub] = struct{}{}

	return sub
}

func (b *Broker) unsubscribe(sub *Subscription) {
	b.mu.Lock()
	defer b.mu.Unlock()

	subs := b.subs[sub.userID]
	delete(subs, sub)

	if len(subs) == 0 {
		delete(b.subs, sub.userID)
	}

	close(sub.ch)
}

// Notify delivers n to every subscriber of its user without blocking. Subscribers with a
// full buffer miss the notification.
func (b *Broker) Notify(ctx context.Context, n *models.Notification) error {
	b.mu.RLock()
	defer b.mu.RUnlock()

	for sub := range b.subs[n.UserID] {
		select {
		case sub.ch <- n:
		default:
			b.dropped.Add(1)
			b.logger.WarnContext(ctx, "Subscriber buffer full, notification dropped",
				"user_id", n.UserID,
				"notification_type", n.Type)
		}
	}

	return nil
}

// Subscribers returns the number of live subscriptions of userID.
func (b *Broker) Subscribers(userID string) int {
	b.mu.RLock()
	defer b.mu.RUnlock()

	return len(b.subs[userID])
}

// Dropped returns how many deliveries were skipped because of full buffers.
func (b *Broker) Dropped() int64 {
	return b.dropped.Load()
}
