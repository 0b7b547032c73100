package transport

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"
)

func TestPipeOrdered(t *testing.T) {
	a, b := Pipe()
	defer a.Close()
	ctx := context.Background()

	// Sends never block, even with nobody receiving.
	for i := 0; i < 1000; i++ {
		if err := a.Send(ctx, []byte(fmt.Sprintf("m%d", i))); err != nil {
			t.Fatalf("Send %d failed: %v", i, err)
		}
	}

	for i := 0; i < 1000; i++ {
		msg, err := b.Receive(ctx)
		if err != nil {
			t.Fatalf("Receive %d failed: %v", i, err)
		}
		if want := fmt.Sprintf("m%d", i); string(msg) != want {
			t.Fatalf("Receive %d = %s, want %s", i, msg, want)
		}
	}
}

func TestPipeBidirectional(t *testing.T) {
	a, b := Pipe()
	defer a.Close()
	ctx := context.Background()

	if err := a.Send(ctx, []byte("ping")); err != nil {
		t.Fatal(err)
	}
	if err := b.Send(ctx, []byte("pong")); err != nil {
		t.Fatal(err)
	}

	if msg, _ := b.Receive(ctx); string(msg) != "ping" {
		t.Errorf("b received %s, want ping", msg)
	}
	if msg, _ := a.Receive(ctx); string(msg) != "pong" {
		t.Errorf("a received %s, want pong", msg)
	}
}

func TestPipeSendCopies(t *testing.T) {
	a, b := Pipe()
	defer a.Close()
	ctx := context.Background()

	buf := []byte("original")
	if err := a.Send(ctx, buf); err != nil {
		t.Fatal(err)
	}
	copy(buf, "mutated!")

	msg, err := b.Receive(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if string(msg) != "original" {
		t.Errorf("Receive = %s, want original", msg)
	}
}

func TestPipeCloseDrainsThenFails(t *testing.T) {
	a, b := Pipe()
	ctx := context.Background()

	a.Send(ctx, []byte("last words"))
	if err := a.Close(); err != nil {
		t.Fatal(err)
	}

	select {
	case <-b.Done():
	default:
		t.Fatal("Closing one end should close the other")
	}

	msg, err := b.Receive(ctx)
	if err != nil || string(msg) != "last words" {
		t.Fatalf("Receive = %q, %v; want queued message first", msg, err)
	}

	if _, err := b.Receive(ctx); !errors.Is(err, ErrClosed) {
		t.Errorf("Expected ErrClosed, got %v", err)
	}
	if err := b.Send(ctx, []byte("x")); !errors.Is(err, ErrClosed) {
		t.Errorf("Send after close: expected ErrClosed, got %v", err)
	}
	if !errors.Is(b.Err(), ErrClosed) {
		t.Errorf("Err() = %v, want ErrClosed", b.Err())
	}

	// Idempotent.
	if err := b.Close(); err != nil {
		t.Errorf("Second close failed: %v", err)
	}
}

func TestPipeReceiveContext(t *testing.T) {
	a, b := Pipe()
	defer a.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	if _, err := b.Receive(ctx); !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("Expected DeadlineExceeded, got %v", err)
	}
	if b.Err() != nil {
		t.Errorf("Err() = %v, want nil while open", b.Err())
	}
}

func TestPipeReceiveWakesOnSend(t *testing.T) {
	a, b := Pipe()
	defer a.Close()
	ctx := context.Background()

	got := make(chan string, 1)
	go func() {
		msg, _ := b.Receive(ctx)
		got <- string(msg)
	}()

	time.Sleep(10 * time.Millisecond)
	a.Send(ctx, []byte("wake"))

	select {
	case msg := <-got:
		if msg != "wake" {
			t.Errorf("Receive = %s, want wake", msg)
		}
	case <-time.After(time.Second):
		t.Fatal("Receive did not wake up")
	}
}
