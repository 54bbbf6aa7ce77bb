// Package tui is the terminal front end: a bubbletea program over one
// Session, plus a plain line mode for non-interactive stdin.
package tui

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/textarea"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/glamour"
	"github.com/karthikraju391/rag-chat-client/health"
	"github.com/karthikraju391/rag-chat-client/models"
	"github.com/karthikraju391/rag-chat-client/session"
	"go.uber.org/zap"
)

const (
	headerHeight = 1
	inputHeight  = 5 // textarea plus border
	footerHeight = 2 // status and help lines
	stateRefresh = time.Second
)

type Options struct {
	Session      *session.Session
	Connectivity session.Connectivity
	// Markdown renders assistant answers with glamour.
	Markdown bool
	Logger   *zap.Logger
}

// answerMsg carries the outcome of one Session.Ask.
type answerMsg struct {
	reply models.Message
	err   error
}

// storeChangedMsg is delivered after the conversation changed.
type storeChangedMsg struct{}

// stateTickMsg polls the connectivity state and refreshes timestamps.
type stateTickMsg time.Time

type Model struct {
	sess *session.Session
	conn session.Connectivity
	log  *zap.Logger

	textarea textarea.Model
	viewport viewport.Model
	spinner  spinner.Model
	renderer *glamour.TermRenderer
	markdown bool
	styles   Styles

	// rendered answers keyed by message id, reset on resize
	renderedCache map[string]string

	changes     chan struct{}
	unsubscribe func()

	width   int
	height  int
	ready   bool
	waiting bool
	state   health.State
	notice  string
}

func New(opts Options) Model {
	log := opts.Logger
	if log == nil {
		log = zap.NewNop()
	}

	ta := textarea.New()
	ta.Placeholder = "Ask anything... (Enter to send, Ctrl+C to exit)"
	ta.Focus()
	ta.Prompt = "┃ "
	ta.CharLimit = 4096
	ta.SetWidth(80)
	ta.SetHeight(3)
	ta.ShowLineNumbers = false

	sp := spinner.New()
	sp.Spinner = spinner.Dot

	styles := DefaultStyles()
	sp.Style = styles.Assistant

	vp := viewport.New(80, 20)

	m := Model{
		sess:          opts.Session,
		conn:          opts.Connectivity,
		log:           log.Named("tui"),
		textarea:      ta,
		viewport:      vp,
		spinner:       sp,
		markdown:      opts.Markdown,
		styles:        styles,
		renderedCache: make(map[string]string),
		changes:       make(chan struct{}, 1),
		state:         opts.Connectivity.State(),
	}
	if m.markdown {
		m.renderer, _ = glamour.NewTermRenderer(
			glamour.WithAutoStyle(),
			glamour.WithWordWrap(76),
		)
	}

	changes := m.changes
	m.unsubscribe = m.sess.Store().Subscribe(func(models.Event) {
		// coalesce: one pending signal is enough to trigger a redraw
		select {
		case changes <- struct{}{}:
		default:
		}
	})
	m.refresh()
	return m
}

// Close detaches the model from the conversation store.
func (m Model) Close() {
	if m.unsubscribe != nil {
		m.unsubscribe()
	}
}

func (m Model) Init() tea.Cmd {
	return tea.Batch(textarea.Blink, tickState(), waitForChange(m.changes))
}

func tickState() tea.Cmd {
	return tea.Tick(stateRefresh, func(t time.Time) tea.Msg { return stateTickMsg(t) })
}

func waitForChange(ch <-chan struct{}) tea.Cmd {
	return func() tea.Msg {
		<-ch
		return storeChangedMsg{}
	}
}

func (m Model) ask(query string) tea.Cmd {
	s := m.sess
	return func() tea.Msg {
		reply, err := s.Ask(query)
		return answerMsg{reply: reply, err: err}
	}
}

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	var cmds []tea.Cmd

	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.resize(msg.Width, msg.Height)
		return m, nil

	case tea.KeyMsg:
		return m.handleKey(msg)

	case answerMsg:
		m.waiting = false
		if msg.err != nil && !errors.Is(msg.err, session.ErrDiscarded) {
			m.notice = gateNotice(msg.err)
		}
		m.refresh()
		return m, nil

	case storeChangedMsg:
		m.refresh()
		return m, waitForChange(m.changes)

	case stateTickMsg:
		next := m.conn.State()
		if next != m.state {
			m.log.Debug("connectivity changed", zap.Stringer("state", next))
		}
		m.state = next
		m.refresh()
		return m, tickState()

	case spinner.TickMsg:
		if m.waiting {
			var cmd tea.Cmd
			m.spinner, cmd = m.spinner.Update(msg)
			return m, cmd
		}
		return m, nil
	}

	var cmd tea.Cmd
	m.textarea, cmd = m.textarea.Update(msg)
	cmds = append(cmds, cmd)
	m.viewport, cmd = m.viewport.Update(msg)
	cmds = append(cmds, cmd)
	return m, tea.Batch(cmds...)
}

func (m Model) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.Type {
	case tea.KeyCtrlC, tea.KeyEsc:
		return m, tea.Quit

	case tea.KeyCtrlN:
		m.sess.Clear()
		m.waiting = false
		m.notice = "Started a new conversation"
		m.refresh()
		return m, nil

	case tea.KeyCtrlO:
		idx := latestWithSources(m.sess.Store().Messages())
		if idx < 0 {
			m.notice = "No sources to show"
		} else {
			m.sess.ToggleSources(idx)
			m.notice = ""
		}
		m.refresh()
		return m, nil

	case tea.KeyEnter:
		return m.submit()

	case tea.KeyPgUp, tea.KeyPgDown:
		var cmd tea.Cmd
		m.viewport, cmd = m.viewport.Update(msg)
		return m, cmd
	}

	var cmd tea.Cmd
	m.textarea, cmd = m.textarea.Update(msg)
	return m, cmd
}

func (m Model) submit() (tea.Model, tea.Cmd) {
	input := m.textarea.Value()
	if strings.TrimSpace(input) == "" {
		return m, nil
	}

	if isCommand(input) {
		m.textarea.Reset()
		notice, err := runCommand(m.sess, input)
		if errors.Is(err, errQuit) {
			return m, tea.Quit
		}
		if err != nil {
			notice = err.Error()
		}
		m.notice = notice
		m.refresh()
		return m, nil
	}

	if q, ok := exampleQuestion(input, m.sess.Store().Len()); ok {
		input = q
	}

	// keep the draft when the question cannot be sent yet
	if m.conn.State() != health.StateUp {
		m.notice = gateNotice(session.ErrOffline)
		return m, nil
	}
	if m.waiting || m.sess.IsSending() {
		m.notice = gateNotice(session.ErrBusy)
		return m, nil
	}

	m.textarea.Reset()
	m.waiting = true
	m.notice = ""
	m.log.Debug("submitting question", zap.Int("length", len(input)))
	return m, tea.Batch(m.ask(input), m.spinner.Tick)
}

func (m *Model) resize(width, height int) {
	m.width, m.height = width, height

	w := width - 2
	if w < 1 {
		w = 1
	}
	h := height - headerHeight - inputHeight - footerHeight
	if h < 1 {
		h = 1
	}

	if !m.ready {
		m.viewport = viewport.New(w, h)
		m.ready = true
	} else {
		m.viewport.Width = w
		m.viewport.Height = h
	}

	inputWidth := width - 4
	if inputWidth < 1 {
		inputWidth = 1
	}
	m.textarea.SetWidth(inputWidth)

	if m.markdown {
		wrap := w - 4
		if wrap < 10 {
			wrap = 10
		}
		m.renderer, _ = glamour.NewTermRenderer(
			glamour.WithAutoStyle(),
			glamour.WithWordWrap(wrap),
		)
		m.renderedCache = make(map[string]string)
	}
	m.refresh()
}

// refresh re-renders the history into the viewport and scrolls to the end.
func (m *Model) refresh() {
	m.viewport.SetContent(m.renderHistory())
	m.viewport.GotoBottom()
}

// Run starts the terminal UI and blocks until the user quits or ctx ends.
func Run(ctx context.Context, opts Options) error {
	m := New(opts)
	defer m.Close()

	p := tea.NewProgram(m, tea.WithAltScreen(), tea.WithContext(ctx))
	if _, err := p.Run(); err != nil {
		if errors.Is(err, tea.ErrProgramKilled) || errors.Is(err, context.Canceled) {
			return nil
		}
		return err
	}
	return nil
}
