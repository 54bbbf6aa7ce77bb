package tui

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/karthikraju391/rag-chat-client/models"
	"github.com/karthikraju391/rag-chat-client/session"
	"golang.org/x/term"
)

// IsTerminal reports whether f is attached to a terminal.
func IsTerminal(f *os.File) bool {
	return term.IsTerminal(int(f.Fd()))
}

// WriteAnswer prints an assistant message and, when showSources is set or
// the message has them expanded, its sources.
func WriteAnswer(w io.Writer, msg models.Message, showSources bool) {
	var b strings.Builder
	b.WriteString(msg.Content)
	b.WriteString("\n")
	if msg.HasSources() {
		if showSources || msg.SourcesExpanded {
			b.WriteString("\nSources:\n")
			writeSources(&b, msg.Sources, Styles{})
		} else {
			fmt.Fprintf(&b, "(%d sources)\n", len(msg.Sources))
		}
	}
	io.WriteString(w, b.String())
}

// RunPlain reads one question or command per line from in and writes the
// answers to out. It is used when stdin is not a terminal.
func RunPlain(ctx context.Context, in io.Reader, out io.Writer, s *session.Session) error {
	fmt.Fprintln(out, "Ready when you are. Type a question, /help for commands, /quit to exit.")
	for i, q := range ExampleQuestions {
		fmt.Fprintf(out, "  %d. %s\n", i+1, q)
	}

	scanner := bufio.NewScanner(in)
	for scanner.Scan() {
		if err := ctx.Err(); err != nil {
			return nil
		}
		raw := scanner.Text()
		line := strings.TrimSpace(raw)
		if line == "" {
			continue
		}

		if isCommand(line) {
			notice, err := runCommand(s, line)
			switch {
			case errors.Is(err, errQuit):
				return nil
			case err != nil:
				fmt.Fprintf(out, "error: %v\n", err)
			case notice != "":
				fmt.Fprintln(out, notice)
			}
			if strings.HasPrefix(line, "/sources") && err == nil {
				var n int
				fmt.Sscanf(line, "/sources %d", &n)
				if msg, ok := s.Store().Get(n - 1); ok {
					WriteAnswer(out, msg, false)
				}
			}
			continue
		}

		// the question goes out as typed; trimming is only for recognition
		query := raw
		if q, ok := exampleQuestion(line, s.Store().Len()); ok {
			query = q
			fmt.Fprintf(out, "> %s\n", q)
		}

		reply, err := s.Ask(query)
		if err != nil {
			if notice := gateNotice(err); notice != "" {
				fmt.Fprintf(out, "error: %s\n", notice)
			}
			continue
		}
		WriteAnswer(out, reply, false)
	}
	return scanner.Err()
}
