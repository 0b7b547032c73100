package main

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/textinput"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/woxQAQ/wasm-analyzer/internal/console"
)

var (
	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("#FAFAFA")).
			Background(lipgloss.Color("#7D56F4")).
			Padding(0, 1)

	readyStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#90EE90"))

	pendingStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#87CEEB"))

	errorStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#FF6B6B"))

	helpStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#666666"))
)

// chromeHeight is the number of lines around the viewport.
const chromeHeight = 5

func newConsoleCommand(root *rootOptions) *cobra.Command {
	var history int

	cmd := &cobra.Command{
		Use:   "console",
		Short: "Interactive console for calling engine operations",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			lvl, err := zapcore.ParseLevel(root.logLevel)
			if err != nil {
				return err
			}

			// Logs go to the console pane rather than the terminal.
			store := console.New(history)
			logger := zap.New(zapcore.NewCore(
				zapcore.NewConsoleEncoder(zap.NewDevelopmentEncoderConfig()),
				store,
				lvl,
			))

			target := root.target
			m := newConsoleModel(store, logger, func(ctx context.Context) (*session, error) {
				return connect(ctx, target, logger)
			})
			defer m.close()

			_, err = tea.NewProgram(m, tea.WithAltScreen(), tea.WithContext(cmd.Context())).Run()
			return err
		},
	}

	cmd.Flags().IntVar(&history, "history", console.DefaultLimit, "Number of console lines to keep")
	return cmd
}

type connState int

const (
	stateConnecting connState = iota
	stateReady
	stateFailed
)

func (s connState) String() string {
	switch s {
	case stateConnecting:
		return "connecting"
	case stateReady:
		return "ready"
	case stateFailed:
		return "failed"
	default:
		return "unknown"
	}
}

type connectedMsg struct {
	session *session
	err     error
}

type readyMsg struct{ err error }

type terminatedMsg struct{ err error }

type resultMsg struct {
	op     string
	result json.RawMessage
	err    error
}

type consoleModel struct {
	ctx     context.Context
	cancel  context.CancelFunc
	dial    func(context.Context) (*session, error)
	store   *console.Store
	logger  *zap.Logger
	session *session
	input   textinput.Model
	view    viewport.Model
	state   connState
	err     error
	pending int
}

func newConsoleModel(store *console.Store, logger *zap.Logger, dial func(context.Context) (*session, error)) *consoleModel {
	ti := textinput.New()
	ti.Placeholder = `diagnostics "query.sql"`
	ti.Prompt = "> "
	ti.Focus()

	ctx, cancel := context.WithCancel(context.Background())
	return &consoleModel{
		ctx:    ctx,
		cancel: cancel,
		dial:   dial,
		store:  store,
		logger: logger,
		input:  ti,
		view:   viewport.New(80, 20),
	}
}

func (m *consoleModel) Init() tea.Cmd {
	return tea.Batch(textinput.Blink, m.connect)
}

func (m *consoleModel) connect() tea.Msg {
	s, err := m.dial(m.ctx)
	return connectedMsg{session: s, err: err}
}

func (m *consoleModel) waitReady() tea.Msg {
	return readyMsg{err: m.session.client.WaitReady(m.ctx)}
}

func (m *consoleModel) watch() tea.Msg {
	<-m.session.client.Done()
	return terminatedMsg{err: m.session.client.Err()}
}

func (m *consoleModel) call(op string, args []any) tea.Cmd {
	client := m.session.client
	return func() tea.Msg {
		result, err := client.Call(m.ctx, op, args...)
		return resultMsg{op: op, result: result, err: err}
	}
}

func (m *consoleModel) close() {
	m.cancel()
	if m.session != nil {
		m.session.Close()
		m.session = nil
	}
}

func (m *consoleModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	var cmd tea.Cmd

	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.Type {
		case tea.KeyCtrlC, tea.KeyEsc:
			m.close()
			return m, tea.Quit
		case tea.KeyCtrlT:
			m.store.Toggle()
		case tea.KeyCtrlL:
			m.store.Clear()
		case tea.KeyEnter:
			cmd = m.submit()
		default:
			m.input, cmd = m.input.Update(msg)
		}

	case tea.WindowSizeMsg:
		m.view.Width = msg.Width
		m.view.Height = max(msg.Height-chromeHeight, 1)
		m.input.Width = max(msg.Width-len(m.input.Prompt)-1, 10)

	case connectedMsg:
		if msg.err != nil {
			m.fail(msg.err)
			break
		}
		m.session = msg.session
		m.store.Add("connected, waiting for engine")
		cmd = m.waitReady

	case readyMsg:
		if msg.err != nil {
			m.fail(msg.err)
			break
		}
		m.state = stateReady
		m.store.Add("engine ready")
		cmd = m.watch

	case terminatedMsg:
		m.fail(msg.err)

	case resultMsg:
		m.pending--
		if msg.err != nil {
			m.store.Add(fmt.Sprintf("%s: error: %v", msg.op, msg.err))
		} else {
			m.store.Add(fmt.Sprintf("%s: %s", msg.op, msg.result))
		}

	default:
		m.input, cmd = m.input.Update(msg)
	}

	m.view.SetContent(m.store.String())
	m.view.GotoBottom()
	return m, cmd
}

// submit sends the input line as a call.
func (m *consoleModel) submit() tea.Cmd {
	line := strings.TrimSpace(m.input.Value())
	if line == "" {
		return nil
	}
	m.input.Reset()
	m.store.Add("> " + line)

	if m.state != stateReady {
		m.store.Add(fmt.Sprintf("engine is %s", m.state))
		return nil
	}

	op, args, err := parseLine(line)
	if err != nil {
		m.store.Add("invalid input: " + err.Error())
		return nil
	}
	m.pending++
	return m.call(op, args)
}

func (m *consoleModel) fail(err error) {
	m.state = stateFailed
	m.err = err
	m.store.Add(fmt.Sprintf("engine unavailable: %v", err))
	m.logger.Warn("Engine unavailable", zap.Error(err))
}

func (m *consoleModel) status() string {
	switch m.state {
	case stateReady:
		s := readyStyle.Render("ready")
		if m.pending > 0 {
			s += pendingStyle.Render(fmt.Sprintf(" (%d pending)", m.pending))
		}
		return s
	case stateFailed:
		if m.err == nil {
			return errorStyle.Render("failed")
		}
		return errorStyle.Render("failed: " + m.err.Error())
	default:
		return pendingStyle.Render(m.state.String() + "...")
	}
}

func (m *consoleModel) View() string {
	var b strings.Builder

	b.WriteString(titleStyle.Render("Engine Console"))
	b.WriteString(" ")
	b.WriteString(m.status())
	b.WriteString("\n\n")

	if m.store.Visible() {
		b.WriteString(m.view.View())
	} else {
		b.WriteString(helpStyle.Render("(log hidden)"))
	}
	b.WriteString("\n")
	b.WriteString(m.input.View())
	b.WriteString("\n")
	b.WriteString(helpStyle.Render("enter call • ctrl+t toggle log • ctrl+l clear • esc quit"))

	return b.String()
}
