package console

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"testing"
	"time"

	"github.com/gorilla/websocket"
)

func startRemote(t *testing.T, pin string) (string, <-chan Line) {
	t.Helper()

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)

	lines := make(chan Line, 4)
	addr, err := NewRemote(pin, lines).Start(ctx, "127.0.0.1:0")
	if err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	return fmt.Sprintf("ws://%s/console", addr), lines
}

func dial(t *testing.T, url string) *websocket.Conn {
	t.Helper()
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial %s failed: %v", url, err)
	}
	t.Cleanup(func() { conn.Close() })
	return conn
}

func TestRemoteRejectsBadPIN(t *testing.T) {
	url, _ := startRemote(t, "1234")

	_, resp, err := websocket.DefaultDialer.Dial(url+"?pin=0000", nil)
	if err == nil {
		t.Fatal("dial with wrong PIN succeeded")
	}
	if resp == nil || resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("got response %v, want 401", resp)
	}
}

func TestRemoteLineRoundTrip(t *testing.T) {
	url, lines := startRemote(t, "1234")
	conn := dial(t, url+"?pin=1234")

	if err := conn.WriteMessage(websocket.TextMessage, []byte("state 0\n")); err != nil {
		t.Fatalf("write failed: %v", err)
	}

	var line Line
	select {
	case line = <-lines:
	case <-time.After(2 * time.Second):
		t.Fatal("no line delivered")
	}
	if line.Text != "state 0" {
		t.Errorf("Text = %q, want %q", line.Text, "state 0")
	}

	fmt.Fprintf(line.Out, "Client: none\n")

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, msg, err := conn.ReadMessage()
	if err != nil {
		t.Fatalf("read failed: %v", err)
	}
	if string(msg) != "Client: none\n" {
		t.Errorf("got %q", msg)
	}
}

func TestRemoteSingleOperator(t *testing.T) {
	url, lines := startRemote(t, "1234")
	first := dial(t, url+"?pin=1234")

	// Wait until the first operator holds the slot.
	first.WriteMessage(websocket.TextMessage, []byte("exit"))
	select {
	case <-lines:
	case <-time.After(2 * time.Second):
		t.Fatal("first operator not served")
	}

	second := dial(t, url+"?pin=1234")
	second.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, _, err := second.ReadMessage()

	var closeErr *websocket.CloseError
	if !errors.As(err, &closeErr) || closeErr.Code != websocket.ClosePolicyViolation {
		t.Fatalf("second operator got %v, want policy violation close", err)
	}
}

func TestGeneratePIN(t *testing.T) {
	pin := GeneratePIN(6)
	if len(pin) != 6 {
		t.Fatalf("len = %d", len(pin))
	}
	for _, c := range pin {
		if c < '0' || c > '9' {
			t.Fatalf("non-digit in %q", pin)
		}
	}
}
