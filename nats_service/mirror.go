package nats_service

import (
	"context"
	"sync"
	"time"

	"github.com/karthikraju391/rag-chat-client/conversation"
	"github.com/karthikraju391/rag-chat-client/models"
	"go.uber.org/zap"
)

// Publisher is the part of NatsService the mirror needs.
type Publisher interface {
	PublishEvent(ctx context.Context, ev models.Event) error
}

// Mirror forwards store events to a Publisher from its own goroutine so
// that store operations never wait on the network. Events that do not fit
// in the buffer are dropped and logged.
type Mirror struct {
	pub    Publisher
	log    *zap.Logger
	events chan models.Event

	mu     sync.Mutex
	unsubs []func()
	closed bool

	done chan struct{}
}

func NewMirror(pub Publisher, log *zap.Logger) *Mirror {
	if log == nil {
		log = zap.NewNop()
	}
	m := &Mirror{
		pub:    pub,
		log:    log.Named("mirror"),
		events: make(chan models.Event, 256), // Buffered channel
		done:   make(chan struct{}),
	}
	go m.run()
	return m
}

// Attach mirrors every future event of store.
func (m *Mirror) Attach(store *conversation.Store) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return
	}
	m.unsubs = append(m.unsubs, store.Subscribe(m.enqueue))
}

func (m *Mirror) enqueue(ev models.Event) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return
	}
	select {
	case m.events <- ev:
	default:
		m.log.Warn("mirror buffer full, dropping event",
			zap.String("conversation", ev.ConversationID),
			zap.String("kind", string(ev.Kind)))
	}
}

func (m *Mirror) run() {
	defer close(m.done)
	for ev := range m.events {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		if err := m.pub.PublishEvent(ctx, ev); err != nil {
			m.log.Warn("failed to mirror event", zap.String("conversation", ev.ConversationID), zap.Error(err))
		}
		cancel()
	}
}

// Close detaches from every store and waits until buffered events are
// published.
func (m *Mirror) Close() {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return
	}
	m.closed = true
	unsubs := m.unsubs
	m.unsubs = nil
	close(m.events)
	m.mu.Unlock()

	for _, unsub := range unsubs {
		unsub()
	}
	<-m.done
}
