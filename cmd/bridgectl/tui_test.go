package main

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"go.uber.org/zap/zaptest"

	"github.com/woxQAQ/wasm-analyzer/internal/bridge"
	"github.com/woxQAQ/wasm-analyzer/internal/console"
	"github.com/woxQAQ/wasm-analyzer/internal/engine"
	"github.com/woxQAQ/wasm-analyzer/internal/engine/enginetest"
	"github.com/woxQAQ/wasm-analyzer/internal/transport"
	"github.com/woxQAQ/wasm-analyzer/internal/worker"
)

// fakeSession runs a worker over a pipe with the fake engine.
func fakeSession(t *testing.T) func(context.Context) (*session, error) {
	t.Helper()
	logger := zaptest.NewLogger(t)

	return func(context.Context) (*session, error) {
		fake := &enginetest.Fake{Handlers: map[engine.Operation]enginetest.Handler{
			engine.OpDiagnostics: enginetest.Static(`[]`),
			engine.OpHover: func(context.Context, []json.RawMessage) (json.RawMessage, error) {
				return nil, errors.New("bad position")
			},
		}}
		clientPort, workerPort := transport.Pipe()
		w := worker.New(fake, workerPort, worker.Config{Threads: 1}, logger)
		go w.Run(context.Background())

		return &session{
			client: bridge.NewClient(clientPort, logger),
			cleanup: func() {
				w.Terminate()
				<-w.Done()
			},
		}, nil
	}
}

func update(t *testing.T, m *consoleModel, msg tea.Msg) tea.Cmd {
	t.Helper()
	_, cmd := m.Update(msg)
	return cmd
}

// readyModel drives a model through connect and readiness.
func readyModel(t *testing.T) *consoleModel {
	t.Helper()

	m := newConsoleModel(console.New(100), zaptest.NewLogger(t), fakeSession(t))
	t.Cleanup(m.close)

	cmd := update(t, m, m.connect())
	if cmd == nil {
		t.Fatal("expected a readiness command after connecting")
	}
	update(t, m, cmd())
	if m.state != stateReady {
		t.Fatalf("state = %v, want ready", m.state)
	}
	return m
}

func typeLine(t *testing.T, m *consoleModel, line string) tea.Msg {
	t.Helper()
	m.input.SetValue(line)
	cmd := update(t, m, tea.KeyMsg{Type: tea.KeyEnter})
	if cmd == nil {
		return nil
	}
	done := make(chan tea.Msg, 1)
	go func() { done <- cmd() }()
	select {
	case msg := <-done:
		return msg
	case <-time.After(5 * time.Second):
		t.Fatal("call did not complete")
		return nil
	}
}

func TestConsoleModel_Call(t *testing.T) {
	m := readyModel(t)

	msg := typeLine(t, m, `diagnostics "query.sql"`)
	if m.pending != 1 {
		t.Errorf("pending = %d, want 1", m.pending)
	}
	update(t, m, msg)
	if m.pending != 0 {
		t.Errorf("pending = %d, want 0", m.pending)
	}

	text := m.store.String()
	if !strings.Contains(text, `> diagnostics "query.sql"`) || !strings.Contains(text, "diagnostics: []") {
		t.Errorf("console = %q", text)
	}
	if m.input.Value() != "" {
		t.Error("input should be cleared after submit")
	}
}

func TestConsoleModel_RemoteError(t *testing.T) {
	m := readyModel(t)

	update(t, m, typeLine(t, m, `hover "query.sql" {"line":0,"character":0}`))
	if !strings.Contains(m.store.String(), "hover: error:") {
		t.Errorf("console = %q", m.store.String())
	}

	// Still usable.
	update(t, m, typeLine(t, m, `diagnostics "query.sql"`))
	if !strings.Contains(m.store.String(), "diagnostics: []") {
		t.Errorf("console = %q", m.store.String())
	}
}

func TestConsoleModel_InvalidInput(t *testing.T) {
	m := readyModel(t)

	if msg := typeLine(t, m, "hover query.sql"); msg != nil {
		t.Fatalf("invalid input should not start a call, got %T", msg)
	}
	if !strings.Contains(m.store.String(), "invalid input") {
		t.Errorf("console = %q", m.store.String())
	}
}

func TestConsoleModel_NotReady(t *testing.T) {
	m := newConsoleModel(console.New(10), zaptest.NewLogger(t), fakeSession(t))
	t.Cleanup(m.close)

	if msg := typeLine(t, m, `diagnostics "a"`); msg != nil {
		t.Fatalf("no call should start before readiness, got %T", msg)
	}
	if !strings.Contains(m.store.String(), "engine is connecting") {
		t.Errorf("console = %q", m.store.String())
	}
}

func TestConsoleModel_ConnectFailure(t *testing.T) {
	m := newConsoleModel(console.New(10), zaptest.NewLogger(t), func(context.Context) (*session, error) {
		return nil, errors.New("connection refused")
	})
	t.Cleanup(m.close)

	update(t, m, m.connect())
	if m.state != stateFailed {
		t.Errorf("state = %v, want failed", m.state)
	}
	if !strings.Contains(m.View(), "failed: connection refused") {
		t.Errorf("status line should show the failure:\n%s", m.View())
	}
}

func TestConsoleModel_Keys(t *testing.T) {
	m := newConsoleModel(console.New(10), zaptest.NewLogger(t), fakeSession(t))
	t.Cleanup(m.close)

	m.store.Add("hello")

	update(t, m, tea.KeyMsg{Type: tea.KeyCtrlT})
	if m.store.Visible() {
		t.Error("ctrl+t should hide the log")
	}
	if !strings.Contains(m.View(), "(log hidden)") {
		t.Error("view should show the hidden placeholder")
	}
	update(t, m, tea.KeyMsg{Type: tea.KeyCtrlT})
	if !m.store.Visible() {
		t.Error("second ctrl+t should show the log")
	}

	update(t, m, tea.KeyMsg{Type: tea.KeyCtrlL})
	if m.store.Len() != 0 {
		t.Error("ctrl+l should clear the log")
	}

	update(t, m, tea.WindowSizeMsg{Width: 100, Height: 30})
	if m.view.Height != 30-chromeHeight || m.view.Width != 100 {
		t.Errorf("viewport = %dx%d", m.view.Width, m.view.Height)
	}
}

func TestConsoleModel_Termination(t *testing.T) {
	m := readyModel(t)

	m.session.cleanup()
	update(t, m, m.watch())

	if m.state != stateFailed {
		t.Errorf("state = %v, want failed", m.state)
	}
	if !bridge.IsTerminated(m.err) {
		t.Errorf("err = %v, want terminated", m.err)
	}
}
