package handlers

import (
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/gofiber/fiber/v2"
	"github.com/karthikraju391/rag-chat-client/chatclient"
	"github.com/karthikraju391/rag-chat-client/conversation"
	"github.com/karthikraju391/rag-chat-client/health"
	"github.com/karthikraju391/rag-chat-client/models"
	"github.com/karthikraju391/rag-chat-client/session"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/time/rate"
)

type stateFlag struct{ s atomic.Int32 }

func (f *stateFlag) State() health.State { return health.State(f.s.Load()) }

type echoSender struct {
	calls atomic.Int32
	err   error
}

func (e *echoSender) Send(query string, _ int, _ float64) (*chatclient.Response, error) {
	e.calls.Add(1)
	if e.err != nil {
		return nil, e.err
	}
	return &chatclient.Response{
		Answer:  "echo: " + query,
		Sources: []models.Source{{EntityID: "e1", Label: "Doc", Type: "document"}},
	}, nil
}

type fixture struct {
	app    *fiber.App
	state  *stateFlag
	sender *echoSender
	reg    *Registry
}

func newFixture(t *testing.T, limiter *rate.Limiter) *fixture {
	t.Helper()
	f := &fixture{state: &stateFlag{}, sender: &echoSender{}}
	f.state.s.Store(int32(health.StateUp))
	f.reg = NewRegistry(func(id string) *session.Session {
		return session.New(f.sender, f.state, conversation.NewStore(id), session.DefaultSettings(), nil)
	})
	f.app = NewApp(Deps{Registry: f.reg, Connectivity: f.state, Limiter: limiter})
	return f
}

func (f *fixture) do(t *testing.T, method, path, body string) (int, []byte) {
	t.Helper()
	var r io.Reader
	if body != "" {
		r = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, r)
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	resp, err := f.app.Test(req, -1)
	require.NoError(t, err)
	defer resp.Body.Close()
	data, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return resp.StatusCode, data
}

func TestHealthEndpoint(t *testing.T) {
	f := newFixture(t, nil)
	code, body := f.do(t, http.MethodGet, "/api/health", "")
	assert.Equal(t, http.StatusOK, code)
	assert.JSONEq(t, `{"state":"up"}`, string(body))

	f.state.s.Store(int32(health.StateDown))
	_, body = f.do(t, http.MethodGet, "/api/health", "")
	assert.JSONEq(t, `{"state":"down"}`, string(body))
}

func TestAskAndReadConversation(t *testing.T) {
	f := newFixture(t, nil)

	code, body := f.do(t, http.MethodPost, "/api/conversations/c1/messages", `{"query":"what is rag?"}`)
	require.Equal(t, http.StatusCreated, code, string(body))

	var reply models.Message
	require.NoError(t, json.Unmarshal(body, &reply))
	assert.Equal(t, models.RoleAssistant, reply.Role)
	assert.Equal(t, "echo: what is rag?", reply.Content)
	assert.Equal(t, "c1", reply.ConversationID)

	code, body = f.do(t, http.MethodGet, "/api/conversations/c1", "")
	require.Equal(t, http.StatusOK, code)
	var v conversationView
	require.NoError(t, json.Unmarshal(body, &v))
	assert.Equal(t, "c1", v.ConversationID)
	require.Len(t, v.Messages, 2)
	assert.Equal(t, models.RoleUser, v.Messages[0].Role)
	assert.Equal(t, "what is rag?", v.Messages[0].Content)
	assert.False(t, v.Sending)
	assert.Equal(t, 5, v.Settings.TopK)
}

func TestAskGateStatuses(t *testing.T) {
	f := newFixture(t, nil)

	code, _ := f.do(t, http.MethodPost, "/api/conversations/c1/messages", `{"query":"   "}`)
	assert.Equal(t, http.StatusBadRequest, code)

	code, _ = f.do(t, http.MethodPost, "/api/conversations/c1/messages", `not json`)
	assert.Equal(t, http.StatusBadRequest, code)

	f.state.s.Store(int32(health.StateDown))
	code, body := f.do(t, http.MethodPost, "/api/conversations/c1/messages", `{"query":"hi"}`)
	assert.Equal(t, http.StatusServiceUnavailable, code)
	assert.Contains(t, string(body), session.ErrOffline.Error())

	assert.Zero(t, f.sender.calls.Load())
	assert.Zero(t, f.reg.Get("c1").Store().Len())
}

func TestAskChatFailureIsAnAnswer(t *testing.T) {
	f := newFixture(t, nil)
	f.sender.err = &chatclient.Error{Kind: chatclient.KindTimeout, Message: chatclient.MsgTimeout}

	code, body := f.do(t, http.MethodPost, "/api/conversations/c1/messages", `{"query":"slow"}`)
	require.Equal(t, http.StatusCreated, code)
	var reply models.Message
	require.NoError(t, json.Unmarshal(body, &reply))
	assert.Equal(t, chatclient.MsgTimeout, reply.Content)
	assert.Empty(t, reply.Sources)
}

func TestAskRateLimited(t *testing.T) {
	f := newFixture(t, rate.NewLimiter(rate.Every(1<<62), 1))

	code, _ := f.do(t, http.MethodPost, "/api/conversations/c1/messages", `{"query":"one"}`)
	assert.Equal(t, http.StatusCreated, code)
	code, _ = f.do(t, http.MethodPost, "/api/conversations/c1/messages", `{"query":"two"}`)
	assert.Equal(t, http.StatusTooManyRequests, code)
	assert.EqualValues(t, 1, f.sender.calls.Load())
}

func TestToggleEndpoint(t *testing.T) {
	f := newFixture(t, nil)
	f.do(t, http.MethodPost, "/api/conversations/c1/messages", `{"query":"q"}`)

	code, body := f.do(t, http.MethodPost, "/api/conversations/c1/messages/1/toggle", "")
	require.Equal(t, http.StatusOK, code)
	var msg models.Message
	require.NoError(t, json.Unmarshal(body, &msg))
	assert.True(t, msg.SourcesExpanded)

	code, _ = f.do(t, http.MethodPost, "/api/conversations/c1/messages/9/toggle", "")
	assert.Equal(t, http.StatusNotFound, code)

	code, _ = f.do(t, http.MethodPost, "/api/conversations/c1/messages/x/toggle", "")
	assert.Equal(t, http.StatusBadRequest, code)
}

func TestReadOnlyRoutesDoNotCreateConversations(t *testing.T) {
	f := newFixture(t, nil)

	code, _ := f.do(t, http.MethodGet, "/api/conversations/ghost", "")
	assert.Equal(t, http.StatusNotFound, code)

	code, _ = f.do(t, http.MethodPost, "/api/conversations/ghost/messages/0/toggle", "")
	assert.Equal(t, http.StatusNotFound, code)

	assert.Zero(t, f.reg.Len())
	_, ok := f.reg.Lookup("ghost")
	assert.False(t, ok)
}

func TestClearEndpoint(t *testing.T) {
	f := newFixture(t, nil)
	f.do(t, http.MethodPost, "/api/conversations/c1/messages", `{"query":"q"}`)
	require.Equal(t, 2, f.reg.Get("c1").Store().Len())

	code, _ := f.do(t, http.MethodDelete, "/api/conversations/c1", "")
	assert.Equal(t, http.StatusNoContent, code)
	assert.Zero(t, f.reg.Get("c1").Store().Len())

	// clearing an unknown conversation does not create it
	code, _ = f.do(t, http.MethodDelete, "/api/conversations/nope", "")
	assert.Equal(t, http.StatusNoContent, code)
	_, ok := f.reg.Lookup("nope")
	assert.False(t, ok)
}

func TestSettingsEndpoint(t *testing.T) {
	f := newFixture(t, nil)

	code, body := f.do(t, http.MethodPut, "/api/conversations/c1/settings", `{"top_k":8,"min_similarity":0.2}`)
	require.Equal(t, http.StatusOK, code)
	assert.JSONEq(t, `{"top_k":8,"min_similarity":0.2}`, string(body))
	assert.Equal(t, 8, f.reg.Get("c1").Settings().TopK)

	code, _ = f.do(t, http.MethodPut, "/api/conversations/c1/settings", `{"top_k":0,"min_similarity":0.2}`)
	assert.Equal(t, http.StatusBadRequest, code)
}

func TestConversationsAreIsolated(t *testing.T) {
	f := newFixture(t, nil)
	f.do(t, http.MethodPost, "/api/conversations/a/messages", `{"query":"qa"}`)
	f.do(t, http.MethodPost, "/api/conversations/b/messages", `{"query":"qb"}`)

	assert.Equal(t, 2, f.reg.Len())
	assert.Equal(t, "qa", f.reg.Get("a").Store().Messages()[0].Content)
	assert.Equal(t, "qb", f.reg.Get("b").Store().Messages()[0].Content)
}

func TestChatRouteRequiresUpgrade(t *testing.T) {
	f := newFixture(t, nil)
	code, _ := f.do(t, http.MethodGet, "/chat/c1", "")
	assert.Equal(t, http.StatusUpgradeRequired, code)
}

func TestMetricsRoute(t *testing.T) {
	f := newFixture(t, nil)
	code, body := f.do(t, http.MethodGet, "/metrics", "")
	assert.Equal(t, http.StatusOK, code)
	assert.Contains(t, string(body), "go_goroutines")
}
