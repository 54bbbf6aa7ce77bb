package session

import (
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/karthikraju391/rag-chat-client/chatclient"
	"github.com/karthikraju391/rag-chat-client/conversation"
	"github.com/karthikraju391/rag-chat-client/health"
	"github.com/karthikraju391/rag-chat-client/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fixedState struct{ s atomic.Int32 }

func (f *fixedState) State() health.State { return health.State(f.s.Load()) }
func (f *fixedState) set(s health.State)  { f.s.Store(int32(s)) }

func up() *fixedState {
	f := &fixedState{}
	f.set(health.StateUp)
	return f
}

type call struct {
	query         string
	topK          int
	minSimilarity float64
}

type fakeSender struct {
	mu    sync.Mutex
	calls []call
	gate  chan struct{} // when set, Send blocks until it is closed
	reply func(q string) (*chatclient.Response, error)
}

func (f *fakeSender) Send(query string, topK int, minSimilarity float64) (*chatclient.Response, error) {
	f.mu.Lock()
	f.calls = append(f.calls, call{query, topK, minSimilarity})
	gate := f.gate
	f.mu.Unlock()
	if gate != nil {
		<-gate
	}
	if f.reply != nil {
		return f.reply(query)
	}
	return &chatclient.Response{Answer: "answer to " + query, Sources: []models.Source{}}, nil
}

func (f *fakeSender) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.calls)
}

func newSession(sender Sender, conn Connectivity) *Session {
	return New(sender, conn, conversation.NewStore("conv-1"), DefaultSettings(), nil)
}

func TestAsk_Success(t *testing.T) {
	sender := &fakeSender{reply: func(q string) (*chatclient.Response, error) {
		return &chatclient.Response{
			Answer:  "China is growing.",
			Sources: []models.Source{{EntityID: "cn", Label: "China", Type: "Market"}},
		}, nil
	}}
	s := newSession(sender, up())

	reply, err := s.Ask("How is China's toys market performing?")
	require.NoError(t, err)
	assert.Equal(t, models.RoleAssistant, reply.Role)
	assert.Equal(t, "China is growing.", reply.Content)
	assert.Equal(t, "conv-1", reply.ConversationID)

	msgs := s.Store().Messages()
	require.Len(t, msgs, 2)
	assert.Equal(t, models.RoleUser, msgs[0].Role)
	assert.Equal(t, "How is China's toys market performing?", msgs[0].Content)
	assert.Equal(t, "China is growing.", msgs[1].Content)
	assert.Len(t, msgs[1].Sources, 1)
	assert.False(t, msgs[1].SourcesExpanded)

	assert.Equal(t, []call{{"How is China's toys market performing?", 5, 0.05}}, sender.calls)
	assert.False(t, s.IsSending())
}

func TestAsk_SendsRawQueryWithSettings(t *testing.T) {
	sender := &fakeSender{}
	s := newSession(sender, up())
	require.NoError(t, s.SetSettings(Settings{TopK: 9, MinSimilarity: 0.5}))

	_, err := s.Ask("  padded  ")
	require.NoError(t, err)
	assert.Equal(t, []call{{"  padded  ", 9, 0.5}}, sender.calls)
	assert.Equal(t, "  padded  ", s.Store().Messages()[0].Content)
}

func TestAsk_Gates(t *testing.T) {
	tests := []struct {
		name  string
		query string
		state health.State
		want  error
	}{
		{"empty", "", health.StateUp, ErrEmptyQuery},
		{"whitespace", " \n\t ", health.StateUp, ErrEmptyQuery},
		{"unknown connectivity", "q", health.StateUnknown, ErrOffline},
		{"down", "q", health.StateDown, ErrOffline},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			conn := &fixedState{}
			conn.set(tt.state)
			sender := &fakeSender{}
			s := newSession(sender, conn)

			_, err := s.Ask(tt.query)
			assert.ErrorIs(t, err, tt.want)
			assert.Zero(t, s.Store().Len())
			assert.Zero(t, sender.count())
		})
	}
}

func TestAsk_BusyWhileInFlight(t *testing.T) {
	sender := &fakeSender{gate: make(chan struct{})}
	s := newSession(sender, up())

	done := make(chan error, 1)
	go func() {
		_, err := s.Ask("first")
		done <- err
	}()
	require.Eventually(t, func() bool { return sender.count() == 1 }, time.Second, time.Millisecond)
	assert.True(t, s.IsSending())
	assert.False(t, s.CanSubmit())

	_, err := s.Ask("second")
	assert.ErrorIs(t, err, ErrBusy)
	assert.Equal(t, 1, s.Store().Len(), "only the first user message")

	close(sender.gate)
	require.NoError(t, <-done)
	assert.Equal(t, 2, s.Store().Len())
	assert.True(t, s.CanSubmit())
}

func TestAsk_ErrorsBecomeAssistantMessages(t *testing.T) {
	tests := []struct {
		err  error
		want string
	}{
		{&chatclient.Error{Kind: chatclient.KindTimeout, Message: chatclient.MsgTimeout}, "Request timed out. Please try again."},
		{&chatclient.Error{Kind: chatclient.KindNetworkUnreachable, Message: chatclient.MsgNetworkUnreachable}, chatclient.MsgNetworkUnreachable},
		{&chatclient.Error{Kind: chatclient.KindServerError, Message: "index unavailable"}, "index unavailable"},
		{assert.AnError, "An unexpected error occurred."},
	}
	for _, tt := range tests {
		sender := &fakeSender{reply: func(string) (*chatclient.Response, error) { return nil, tt.err }}
		s := newSession(sender, up())

		reply, err := s.Ask("q")
		require.NoError(t, err)
		assert.Equal(t, tt.want, reply.Content)

		msgs := s.Store().Messages()
		require.Len(t, msgs, 2)
		assert.Equal(t, models.RoleAssistant, msgs[1].Role)
		assert.Equal(t, tt.want, msgs[1].Content)
		assert.Empty(t, msgs[1].Sources)
	}
}

func TestAsk_ErrorThenRetryAllowsConsecutiveAssistantMessages(t *testing.T) {
	var n atomic.Int32
	sender := &fakeSender{reply: func(q string) (*chatclient.Response, error) {
		if n.Add(1) == 1 {
			return nil, &chatclient.Error{Kind: chatclient.KindTimeout, Message: chatclient.MsgTimeout}
		}
		return &chatclient.Response{Answer: "ok"}, nil
	}}
	s := newSession(sender, up())

	_, err := s.Ask("q")
	require.NoError(t, err)
	_, err = s.Ask("q")
	require.NoError(t, err)

	roles := []models.Role{}
	for _, m := range s.Store().Messages() {
		roles = append(roles, m.Role)
	}
	assert.Equal(t, []models.Role{models.RoleUser, models.RoleAssistant, models.RoleUser, models.RoleAssistant}, roles)
}

func TestClear_DropsLateAnswer(t *testing.T) {
	sender := &fakeSender{gate: make(chan struct{})}
	s := newSession(sender, up())

	done := make(chan error, 1)
	go func() {
		_, err := s.Ask("slow question")
		done <- err
	}()
	require.Eventually(t, func() bool { return sender.count() == 1 }, time.Second, time.Millisecond)

	s.Clear()
	close(sender.gate)

	assert.ErrorIs(t, <-done, ErrDiscarded)
	assert.Zero(t, s.Store().Len())
	assert.False(t, s.IsSending())

	_, err := s.Ask("next")
	require.NoError(t, err)
	assert.Equal(t, 2, s.Store().Len())
}

func TestClear_RacingAskLeavesNoOrphanQuestion(t *testing.T) {
	for i := 0; i < 200; i++ {
		s := newSession(&fakeSender{}, up())

		var wg sync.WaitGroup
		var askErr error
		wg.Add(2)
		go func() {
			defer wg.Done()
			_, askErr = s.Ask("q")
		}()
		go func() {
			defer wg.Done()
			s.Clear()
		}()
		wg.Wait()

		n := s.Store().Len()
		if errors.Is(askErr, ErrDiscarded) {
			require.Zero(t, n, "iteration %d", i)
			continue
		}
		require.NoError(t, askErr)
		require.Contains(t, []int{0, 2}, n, "iteration %d", i)
	}
}

func TestToggleSources(t *testing.T) {
	s := newSession(&fakeSender{}, up())
	_, err := s.Ask("q")
	require.NoError(t, err)

	assert.True(t, s.ToggleSources(1))
	assert.True(t, s.Store().Messages()[1].SourcesExpanded)
	assert.False(t, s.ToggleSources(99))
}

func TestSetSettings_Validates(t *testing.T) {
	s := newSession(&fakeSender{}, up())
	assert.Error(t, s.SetSettings(Settings{TopK: 0, MinSimilarity: 0.1}))
	assert.Error(t, s.SetSettings(Settings{TopK: 21, MinSimilarity: 0.1}))
	assert.Error(t, s.SetSettings(Settings{TopK: 5, MinSimilarity: 1.1}))
	assert.Equal(t, DefaultSettings(), s.Settings())

	require.NoError(t, s.SetSettings(Settings{TopK: 1, MinSimilarity: 0}))
	assert.Equal(t, Settings{TopK: 1, MinSimilarity: 0}, s.Settings())
}
