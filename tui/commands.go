package tui

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/karthikraju391/rag-chat-client/models"
	"github.com/karthikraju391/rag-chat-client/session"
)

// ExampleQuestions are offered while a conversation is empty. Entering the
// number of one sends it.
var ExampleQuestions = []string{
	"What is driving growth in the Asia Pacific toys market?",
	"Tell me about the kidults consumer segment",
	"What trends are affecting traditional toys and games?",
	"How is China's toys and games market performing?",
}

const helpText = "/clear new conversation · /sources N toggle sources of message N · " +
	"/topk N · /similarity X · /quit"

var errQuit = errors.New("quit")

// exampleQuestion returns the example selected by input on an empty
// conversation.
func exampleQuestion(input string, conversationLen int) (string, bool) {
	if conversationLen != 0 {
		return "", false
	}
	n, err := strconv.Atoi(strings.TrimSpace(input))
	if err != nil || n < 1 || n > len(ExampleQuestions) {
		return "", false
	}
	return ExampleQuestions[n-1], true
}

// isCommand reports whether input is a slash command rather than a question.
func isCommand(input string) bool {
	return strings.HasPrefix(strings.TrimSpace(input), "/")
}

// runCommand applies a slash command to s and returns the feedback line.
// errQuit asks the caller to exit.
func runCommand(s *session.Session, input string) (string, error) {
	fields := strings.Fields(strings.TrimSpace(input))
	if len(fields) == 0 {
		return "", nil
	}
	name, args := fields[0], fields[1:]

	switch name {
	case "/quit", "/exit":
		return "", errQuit

	case "/help":
		return helpText, nil

	case "/clear", "/new":
		s.Clear()
		return "Started a new conversation", nil

	case "/sources":
		if len(args) != 1 {
			return "", fmt.Errorf("usage: /sources N")
		}
		n, err := strconv.Atoi(args[0])
		if err != nil {
			return "", fmt.Errorf("message number must be an integer: %q", args[0])
		}
		if !s.ToggleSources(n - 1) {
			return "", fmt.Errorf("no message #%d", n)
		}
		return "", nil

	case "/topk":
		if len(args) != 1 {
			return "", fmt.Errorf("usage: /topk N")
		}
		n, err := strconv.Atoi(args[0])
		if err != nil {
			return "", fmt.Errorf("top_k must be an integer: %q", args[0])
		}
		next := s.Settings()
		next.TopK = n
		if err := s.SetSettings(next); err != nil {
			return "", err
		}
		return fmt.Sprintf("Number of sources: %d", n), nil

	case "/similarity":
		if len(args) != 1 {
			return "", fmt.Errorf("usage: /similarity X")
		}
		x, err := strconv.ParseFloat(args[0], 64)
		if err != nil {
			return "", fmt.Errorf("min_similarity must be a number: %q", args[0])
		}
		next := s.Settings()
		next.MinSimilarity = x
		if err := s.SetSettings(next); err != nil {
			return "", err
		}
		return fmt.Sprintf("Relevance threshold: %.2f", x), nil

	default:
		return "", fmt.Errorf("unknown command %s (try /help)", name)
	}
}

// latestWithSources returns the index of the newest message carrying
// sources, or -1.
func latestWithSources(msgs []models.Message) int {
	for i := len(msgs) - 1; i >= 0; i-- {
		if msgs[i].HasSources() {
			return i
		}
	}
	return -1
}

// gateNotice turns a session gate error into a status line.
func gateNotice(err error) string {
	switch {
	case errors.Is(err, session.ErrEmptyQuery):
		return ""
	case errors.Is(err, session.ErrOffline):
		return "The backend is offline, waiting for it to come back"
	case errors.Is(err, session.ErrBusy):
		return "Still waiting for the previous answer"
	default:
		return err.Error()
	}
}
