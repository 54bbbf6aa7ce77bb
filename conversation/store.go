// Package conversation holds the in-memory, append-only message sequence of
// one chat session.
package conversation

import (
	"sync"
	"time"

	"github.com/karthikraju391/rag-chat-client/models"
)

// Observer receives every change, in the order the changes were applied.
type Observer func(models.Event)

// Store is an ordered, append-only list of messages. Entries are never
// changed after Append except for their SourcesExpanded flag. It is safe
// for concurrent use; observers run outside the data lock, one change at a
// time.
type Store struct {
	id string

	mu        sync.Mutex
	messages  []models.Message
	observers []Observer

	// serializes observer delivery so events arrive in apply order
	notifyMu sync.Mutex
}

func NewStore(conversationID string) *Store {
	return &Store{id: conversationID}
}

// ID returns the conversation id.
func (s *Store) ID() string { return s.id }

// Subscribe registers an observer and returns a function that removes it.
// Observers must not call back into the store's mutators.
func (s *Store) Subscribe(fn Observer) (unsubscribe func()) {
	s.mu.Lock()
	s.observers = append(s.observers, fn)
	idx := len(s.observers) - 1
	s.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			s.mu.Lock()
			s.observers[idx] = nil
			s.mu.Unlock()
		})
	}
}

// Watch registers fn like Subscribe, but first calls init with a copy of the
// current messages. No change can land between that copy and the first
// event fn sees. init must not block or call back into the store.
func (s *Store) Watch(fn Observer, init func([]models.Message)) (unsubscribe func()) {
	s.notifyMu.Lock()
	defer s.notifyMu.Unlock()
	init(s.Messages())
	return s.Subscribe(fn)
}

// Append adds msg to the end of the conversation and returns its index.
func (s *Store) Append(msg models.Message) int {
	msg = msg.Clone()
	msg.ConversationID = s.id

	s.notifyMu.Lock()
	defer s.notifyMu.Unlock()

	s.mu.Lock()
	s.messages = append(s.messages, msg)
	idx := len(s.messages) - 1
	observers := s.snapshotObservers()
	s.mu.Unlock()

	out := msg.Clone()
	s.emit(observers, models.Event{Kind: models.EventMessage, Index: idx, Message: &out})
	return idx
}

// Clear empties the conversation in one step.
func (s *Store) Clear() {
	s.notifyMu.Lock()
	defer s.notifyMu.Unlock()

	s.mu.Lock()
	s.messages = nil
	observers := s.snapshotObservers()
	s.mu.Unlock()

	s.emit(observers, models.Event{Kind: models.EventClear, Index: -1})
}

// ToggleSourcesExpanded flips SourcesExpanded on the message at index.
// An out-of-range index is a no-op and reports false.
func (s *Store) ToggleSourcesExpanded(index int) bool {
	s.notifyMu.Lock()
	defer s.notifyMu.Unlock()

	s.mu.Lock()
	if index < 0 || index >= len(s.messages) {
		s.mu.Unlock()
		return false
	}
	s.messages[index].SourcesExpanded = !s.messages[index].SourcesExpanded
	out := s.messages[index].Clone()
	observers := s.snapshotObservers()
	s.mu.Unlock()

	s.emit(observers, models.Event{Kind: models.EventToggle, Index: index, Message: &out})
	return true
}

// Messages returns a copy of the conversation.
func (s *Store) Messages() []models.Message {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]models.Message, len(s.messages))
	for i, m := range s.messages {
		out[i] = m.Clone()
	}
	return out
}

// Get returns the message at index.
func (s *Store) Get(index int) (models.Message, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if index < 0 || index >= len(s.messages) {
		return models.Message{}, false
	}
	return s.messages[index].Clone(), true
}

func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.messages)
}

// must hold s.mu
func (s *Store) snapshotObservers() []Observer {
	out := make([]Observer, 0, len(s.observers))
	for _, fn := range s.observers {
		if fn != nil {
			out = append(out, fn)
		}
	}
	return out
}

func (s *Store) emit(observers []Observer, ev models.Event) {
	if len(observers) == 0 {
		return
	}
	ev.ConversationID = s.id
	ev.At = time.Now().UTC()
	for _, fn := range observers {
		fn(ev)
	}
}
