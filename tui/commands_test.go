package tui

import (
	"bytes"
	"context"
	"strings"
	"testing"

	"github.com/karthikraju391/rag-chat-client/conversation"
	"github.com/karthikraju391/rag-chat-client/health"
	"github.com/karthikraju391/rag-chat-client/models"
	"github.com/karthikraju391/rag-chat-client/session"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestSession(t *testing.T, state health.State) *session.Session {
	t.Helper()
	st := &stateFlag{}
	st.set(state)
	return session.New(echoSender{}, st, conversation.NewStore("cmd-test"), session.DefaultSettings(), nil)
}

func TestRunCommand(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		notice  string
		wantErr string
	}{
		{"help", "/help", helpText, ""},
		{"topk", "/topk 3", "Number of sources: 3", ""},
		{"topk not a number", "/topk many", "", "top_k must be an integer"},
		{"topk out of range", "/topk 0", "", "top_k must be between"},
		{"topk missing arg", "/topk", "", "usage: /topk N"},
		{"similarity", "/similarity 0.3", "Relevance threshold: 0.30", ""},
		{"similarity out of range", "/similarity 1.5", "", "min_similarity must be between"},
		{"sources unknown message", "/sources 4", "", "no message #4"},
		{"unknown", "/frobnicate", "", "unknown command /frobnicate"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := newTestSession(t, health.StateUp)
			notice, err := runCommand(s, tt.input)
			if tt.wantErr != "" {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.notice, notice)
		})
	}
}

func TestRunCommand_ClearAndSources(t *testing.T) {
	s := newTestSession(t, health.StateUp)
	_, err := s.Ask("q")
	require.NoError(t, err)

	_, err = runCommand(s, "/sources 2")
	require.NoError(t, err)
	msg, _ := s.Store().Get(1)
	assert.True(t, msg.SourcesExpanded)

	notice, err := runCommand(s, "/clear")
	require.NoError(t, err)
	assert.Equal(t, "Started a new conversation", notice)
	assert.Zero(t, s.Store().Len())

	_, err = runCommand(s, "/quit")
	assert.ErrorIs(t, err, errQuit)
}

func TestExampleQuestion(t *testing.T) {
	q, ok := exampleQuestion(" 1 ", 0)
	assert.True(t, ok)
	assert.Equal(t, ExampleQuestions[0], q)

	_, ok = exampleQuestion("1", 2)
	assert.False(t, ok, "examples only apply to an empty conversation")
	_, ok = exampleQuestion("0", 0)
	assert.False(t, ok)
	_, ok = exampleQuestion("hello", 0)
	assert.False(t, ok)
}

func TestLatestWithSources(t *testing.T) {
	msgs := []models.Message{
		models.NewUserMessage("a"),
		models.NewAssistantMessage("b", []models.Source{{EntityID: "x"}}),
		models.NewUserMessage("c"),
		models.NewAssistantMessage("d", nil),
	}
	assert.Equal(t, 1, latestWithSources(msgs))
	assert.Equal(t, -1, latestWithSources(msgs[:1]))
}

func TestRunPlain(t *testing.T) {
	s := newTestSession(t, health.StateUp)
	in := strings.NewReader("hello\n\n/sources 2\n/topk 7\n/quit\nnever asked\n")
	var out bytes.Buffer

	require.NoError(t, RunPlain(context.Background(), in, &out, s))

	text := out.String()
	assert.Contains(t, text, "Ready when you are.")
	assert.Contains(t, text, "echo: hello")
	assert.Contains(t, text, "(1 sources)")
	assert.Contains(t, text, "Sources:")
	assert.Contains(t, text, "Market report")
	assert.Contains(t, text, "Number of sources: 7")
	assert.NotContains(t, text, "never asked")
	assert.Equal(t, 2, s.Store().Len())
}

func TestRunPlain_Offline(t *testing.T) {
	s := newTestSession(t, health.StateDown)
	var out bytes.Buffer
	require.NoError(t, RunPlain(context.Background(), strings.NewReader("hello\n"), &out, s))
	assert.Contains(t, out.String(), "error: The backend is offline")
	assert.Zero(t, s.Store().Len())
}

func TestRunPlain_ExampleNumber(t *testing.T) {
	s := newTestSession(t, health.StateUp)
	var out bytes.Buffer
	require.NoError(t, RunPlain(context.Background(), strings.NewReader("3\n"), &out, s))
	assert.Contains(t, out.String(), "echo: "+ExampleQuestions[2])
}

func TestRunPlain_SendsQuestionAsTyped(t *testing.T) {
	s := newTestSession(t, health.StateUp)
	var out bytes.Buffer
	require.NoError(t, RunPlain(context.Background(), strings.NewReader("  padded question  \n"), &out, s))

	assert.Contains(t, out.String(), "echo:   padded question  ")
	msgs := s.Store().Messages()
	require.Len(t, msgs, 2)
	assert.Equal(t, "  padded question  ", msgs[0].Content)
}

func TestWriteAnswer_ShowSources(t *testing.T) {
	msg := models.NewAssistantMessage("answer", []models.Source{
		{Label: "Report", Type: "document", Description: "A report", SourceURLs: "https://example.com"},
		{EntityID: "ent-2"},
	})
	var out bytes.Buffer
	WriteAnswer(&out, msg, true)

	text := out.String()
	assert.Contains(t, text, "1. Report [document]")
	assert.Contains(t, text, "A report")
	assert.Contains(t, text, "2. ent-2")
}
