package tui

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/dustin/go-humanize"
	"github.com/karthikraju391/rag-chat-client/health"
	"github.com/karthikraju391/rag-chat-client/models"
)

func (m Model) View() string {
	if !m.ready {
		return "\n  Initializing..."
	}

	var b strings.Builder
	b.WriteString(m.renderHeader())
	b.WriteString("\n")
	b.WriteString(m.viewport.View())
	b.WriteString("\n")
	b.WriteString(m.styles.InputBox.Render(m.textarea.View()))
	b.WriteString("\n")
	b.WriteString(m.renderStatus())
	b.WriteString("\n")
	b.WriteString(m.styles.Hint.Render("enter send · ctrl+n new chat · ctrl+o sources · pgup/pgdn scroll · /help · ctrl+c quit"))
	return b.String()
}

func (m Model) renderHeader() string {
	title := m.styles.Title.Render("RAG Chat")
	return lipgloss.JoinHorizontal(lipgloss.Top, title, "  ", m.renderIndicator())
}

func (m Model) renderIndicator() string {
	switch m.state {
	case health.StateUp:
		return m.styles.Up.Render("● Connected")
	case health.StateDown:
		return m.styles.Down.Render("● Offline")
	default:
		return m.styles.Unknown.Render("● Checking...")
	}
}

func (m Model) renderStatus() string {
	st := m.sess.Settings()
	settings := m.styles.Hint.Render(fmt.Sprintf("top_k %d · min_similarity %.2f", st.TopK, st.MinSimilarity))

	var left string
	switch {
	case m.waiting:
		left = m.spinner.View() + " Thinking..."
	case m.notice != "":
		left = m.styles.Notice.Render(m.notice)
	}
	return m.styles.StatusBar.Render(strings.TrimSpace(left + "  " + settings))
}

func (m Model) renderHistory() string {
	msgs := m.sess.Store().Messages()
	if len(msgs) == 0 {
		return m.renderWelcome()
	}

	var b strings.Builder
	for i, msg := range msgs {
		if i > 0 {
			b.WriteString("\n")
		}
		b.WriteString(m.renderMessage(i, msg))
		b.WriteString("\n")
	}
	return b.String()
}

func (m Model) renderWelcome() string {
	var b strings.Builder
	b.WriteString(m.styles.Title.Render("Ready when you are."))
	b.WriteString("\n\n")
	b.WriteString(m.styles.Hint.Render("Type a question, or the number of an example:"))
	b.WriteString("\n")
	for i, q := range ExampleQuestions {
		fmt.Fprintf(&b, "  %d. %s\n", i+1, q)
	}
	return b.String()
}

func (m Model) renderMessage(i int, msg models.Message) string {
	var b strings.Builder

	who := m.styles.User.Render("You")
	if msg.Role == models.RoleAssistant {
		who = m.styles.Assistant.Render("Assistant")
	}
	fmt.Fprintf(&b, "#%d %s %s\n", i+1, who, m.styles.Timestamp.Render(humanize.Time(msg.CreatedAt)))

	if msg.Role == models.RoleAssistant {
		b.WriteString(m.renderMarkdown(msg))
	} else {
		b.WriteString(msg.Content)
	}
	b.WriteString("\n")

	if msg.HasSources() {
		b.WriteString(m.renderSources(i, msg))
	}
	return b.String()
}

func (m Model) renderMarkdown(msg models.Message) string {
	if m.renderer == nil {
		return msg.Content
	}
	if out, ok := m.renderedCache[msg.ID]; ok {
		return out
	}
	out, err := m.renderer.Render(msg.Content)
	if err != nil {
		return msg.Content
	}
	out = strings.Trim(out, "\n")
	m.renderedCache[msg.ID] = out
	return out
}

func (m Model) renderSources(i int, msg models.Message) string {
	n := len(msg.Sources)
	noun := "source"
	if n != 1 {
		noun = "sources"
	}
	if !msg.SourcesExpanded {
		return m.styles.Hint.Render(fmt.Sprintf("▸ View %d %s (/sources %d)", n, noun, i+1)) + "\n"
	}

	var b strings.Builder
	b.WriteString(m.styles.Hint.Render(fmt.Sprintf("▾ Hide %d %s", n, noun)))
	b.WriteString("\n")
	writeSources(&b, msg.Sources, m.styles)
	return b.String()
}

func writeSources(b *strings.Builder, sources []models.Source, styles Styles) {
	for j, src := range sources {
		label := src.Label
		if label == "" {
			label = src.EntityID
		}
		fmt.Fprintf(b, "  %d. %s", j+1, styles.Source.Render(label))
		if src.Type != "" {
			fmt.Fprintf(b, " %s", styles.SourceMeta.Render("["+src.Type+"]"))
		}
		b.WriteString("\n")
		if src.Description != "" {
			fmt.Fprintf(b, "     %s\n", src.Description)
		}
		if src.SourceURLs != "" {
			fmt.Fprintf(b, "     %s\n", styles.SourceMeta.Render(src.SourceURLs))
		}
	}
}
