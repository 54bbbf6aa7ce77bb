// Package session ties a ChatClient, a ConversationStore and the shared
// connectivity state into user turns: it gates submissions, records the
// user and assistant messages, and turns chat failures into assistant
// messages.
package session

import (
	"errors"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/karthikraju391/rag-chat-client/chatclient"
	"github.com/karthikraju391/rag-chat-client/config"
	"github.com/karthikraju391/rag-chat-client/conversation"
	"github.com/karthikraju391/rag-chat-client/health"
	"github.com/karthikraju391/rag-chat-client/models"
	"go.uber.org/zap"
)

// Gate errors. The store is untouched when Ask returns one of these.
var (
	ErrEmptyQuery = errors.New("query is empty")
	ErrOffline    = errors.New("backend is not reachable")
	ErrBusy       = errors.New("a question is already being answered")
	ErrDiscarded  = errors.New("answer arrived after the conversation was cleared")
)

// Sender performs one chat exchange. *chatclient.Client implements it.
type Sender interface {
	Send(query string, topK int, minSimilarity float64) (*chatclient.Response, error)
}

// Connectivity reports the last observed backend state. *health.Monitor
// implements it.
type Connectivity interface {
	State() health.State
}

// Settings are the per-session retrieval parameters.
type Settings struct {
	TopK          int
	MinSimilarity float64
}

// DefaultSettings returns the retrieval defaults of the chat service.
func DefaultSettings() Settings {
	return Settings{TopK: config.DefaultTopK, MinSimilarity: config.DefaultMinSimilarity}
}

// Validate reports whether s is acceptable to the chat service.
func (s Settings) Validate() error {
	if s.TopK < 1 || s.TopK > config.MaxTopK {
		return fmt.Errorf("top_k must be between 1 and %d", config.MaxTopK)
	}
	if s.MinSimilarity < 0 || s.MinSimilarity > 1 {
		return fmt.Errorf("min_similarity must be between 0 and 1")
	}
	return nil
}

// Session runs the turns of one conversation. At most one turn is in flight.
type Session struct {
	sender Sender
	conn   Connectivity
	store  *conversation.Store
	log    *zap.Logger

	sending atomic.Bool

	mu       sync.Mutex
	settings Settings
	seq      uint64 // id of the last turn issued
	latest   uint64 // id of the turn whose answer may still be applied, 0 if none
}

func New(sender Sender, conn Connectivity, store *conversation.Store, settings Settings, log *zap.Logger) *Session {
	if log == nil {
		log = zap.NewNop()
	}
	return &Session{
		sender:   sender,
		conn:     conn,
		store:    store,
		settings: settings,
		log:      log.Named("session").With(zap.String("conversation", store.ID())),
	}
}

// Store returns the conversation backing this session.
func (s *Session) Store() *conversation.Store { return s.store }

// IsSending reports whether a turn is outstanding.
func (s *Session) IsSending() bool { return s.sending.Load() }

// CanSubmit reports whether Ask would pass the connectivity and busy gates.
func (s *Session) CanSubmit() bool {
	return s.conn.State() == health.StateUp && !s.IsSending()
}

func (s *Session) Settings() Settings {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.settings
}

func (s *Session) SetSettings(next Settings) error {
	if err := next.Validate(); err != nil {
		return err
	}
	s.mu.Lock()
	s.settings = next
	s.mu.Unlock()
	return nil
}

// Ask runs one turn. It appends the user message, sends it, and appends
// either the answer with its sources or an assistant message carrying the
// classified error text. The returned message is the assistant message.
//
// Gate failures (ErrEmptyQuery, ErrOffline, ErrBusy) leave the store
// untouched. A chat failure is not an error for Ask: it becomes the
// returned assistant message. ErrDiscarded means Clear ran while the
// turn was outstanding and nothing was appended.
func (s *Session) Ask(query string) (models.Message, error) {
	if strings.TrimSpace(query) == "" {
		return models.Message{}, ErrEmptyQuery
	}
	if s.conn.State() != health.StateUp {
		return models.Message{}, ErrOffline
	}
	if !s.sending.CompareAndSwap(false, true) {
		return models.Message{}, ErrBusy
	}
	defer s.sending.Store(false)

	s.mu.Lock()
	s.seq++
	turn := s.seq
	s.latest = turn
	settings := s.settings
	// under s.mu so a concurrent Clear removes the question with its turn
	s.store.Append(models.NewUserMessage(query))
	s.mu.Unlock()

	s.log.Debug("turn started", zap.Uint64("turn", turn), zap.Int("top_k", settings.TopK))

	resp, err := s.sender.Send(query, settings.TopK, settings.MinSimilarity)

	var reply models.Message
	if err != nil {
		reply = models.NewAssistantMessage(chatclient.UserMessage(err), nil)
	} else {
		reply = models.NewAssistantMessage(resp.Answer, resp.Sources)
	}

	// the check and the append happen under one lock so that a concurrent
	// Clear cannot slip in between them
	s.mu.Lock()
	if s.latest != turn {
		s.mu.Unlock()
		s.log.Info("dropping answer of a superseded turn", zap.Uint64("turn", turn))
		return models.Message{}, ErrDiscarded
	}
	s.latest = 0
	s.store.Append(reply)
	s.mu.Unlock()
	reply.ConversationID = s.store.ID()

	if err != nil {
		s.log.Info("turn failed",
			zap.Uint64("turn", turn),
			zap.String("kind", string(chatclient.KindOf(err))))
	}
	return reply, nil
}

// Clear starts a new conversation. An answer still in flight is dropped
// when it arrives. Store observers must not call back into the session.
func (s *Session) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.latest = 0
	s.store.Clear()
}

// ToggleSources flips the sources-expanded flag of the message at index;
// out-of-range indexes are ignored.
func (s *Session) ToggleSources(index int) bool {
	return s.store.ToggleSourcesExpanded(index)
}
