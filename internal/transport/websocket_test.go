package transport

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"go.uber.org/zap/zaptest"
)

// echoServer upgrades every request and echoes frames back until the client
// goes away.
func echoServer(t *testing.T) *httptest.Server {
	t.Helper()
	logger := zaptest.NewLogger(t)

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		port, err := Accept(w, r, nil, logger)
		if err != nil {
			t.Errorf("Accept failed: %v", err)
			return
		}
		defer port.Close()

		for {
			msg, err := port.Receive(r.Context())
			if err != nil {
				return
			}
			if err := port.Send(r.Context(), msg); err != nil {
				return
			}
		}
	}))
	t.Cleanup(srv.Close)
	return srv
}

func wsURL(srv *httptest.Server) string {
	return "ws" + strings.TrimPrefix(srv.URL, "http")
}

func TestWebSocketRoundTrip(t *testing.T) {
	srv := echoServer(t)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	port, err := Dial(ctx, wsURL(srv), zaptest.NewLogger(t))
	if err != nil {
		t.Fatalf("Dial failed: %v", err)
	}
	defer port.Close()

	for i := 0; i < 50; i++ {
		if err := port.Send(ctx, []byte(fmt.Sprintf(`{"n":%d}`, i))); err != nil {
			t.Fatalf("Send %d failed: %v", i, err)
		}
	}
	for i := 0; i < 50; i++ {
		msg, err := port.Receive(ctx)
		if err != nil {
			t.Fatalf("Receive %d failed: %v", i, err)
		}
		if want := fmt.Sprintf(`{"n":%d}`, i); string(msg) != want {
			t.Fatalf("Receive %d = %s, want %s", i, msg, want)
		}
	}
}

func TestWebSocketPeerClose(t *testing.T) {
	logger := zaptest.NewLogger(t)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		port, err := Accept(w, r, nil, logger)
		if err != nil {
			return
		}
		port.Send(r.Context(), []byte("bye"))
		port.Close()
	}))
	defer srv.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	port, err := Dial(ctx, wsURL(srv), logger)
	if err != nil {
		t.Fatalf("Dial failed: %v", err)
	}
	defer port.Close()

	msg, err := port.Receive(ctx)
	if err != nil || string(msg) != "bye" {
		t.Fatalf("Receive = %q, %v; want bye", msg, err)
	}

	select {
	case <-port.Done():
	case <-ctx.Done():
		t.Fatal("Port did not observe the peer closing")
	}
	if _, err := port.Receive(ctx); !errors.Is(err, ErrClosed) {
		t.Errorf("Expected ErrClosed, got %v", err)
	}
}

func TestWebSocketLocalClose(t *testing.T) {
	srv := echoServer(t)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	port, err := Dial(ctx, wsURL(srv), zaptest.NewLogger(t))
	if err != nil {
		t.Fatal(err)
	}

	if err := port.Close(); err != nil {
		t.Errorf("Close failed: %v", err)
	}
	if err := port.Close(); err != nil {
		t.Errorf("Second close failed: %v", err)
	}
	if err := port.Send(ctx, []byte("x")); !errors.Is(err, ErrClosed) {
		t.Errorf("Send after close: expected ErrClosed, got %v", err)
	}
}
