package console

import (
	"context"
	"crypto/rand"
	"fmt"
	"math/big"
	"net"
	"net/http"
	"strings"
	"sync"

	"github.com/gorilla/websocket"

	"github.com/1ureka/scrapnet/internal/util"
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

// Remote is a WebSocket console endpoint at /console. Clients authenticate
// with a ?pin= query parameter; one operator is served at a time. Every text
// message is one console line and command output is sent back as text
// messages.
type Remote struct {
	pin      string
	out      chan<- Line
	ctx      context.Context
	listener net.Listener
	slot     chan struct{}
}

// NewRemote creates a remote console that feeds lines into out.
func NewRemote(pin string, out chan<- Line) *Remote {
	return &Remote{
		pin:  pin,
		out:  out,
		slot: make(chan struct{}, 1),
	}
}

// Start begins listening on addr. The endpoint shuts down when ctx is done.
// Returns the bound address.
func (r *Remote) Start(ctx context.Context, addr string) (net.Addr, error) {
	listener, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("failed to start WS console: %w", err)
	}
	r.listener = listener
	r.ctx = ctx

	mux := http.NewServeMux()
	mux.HandleFunc("/console", r.handleWS)

	go func() {
		_ = http.Serve(listener, mux)
	}()
	context.AfterFunc(ctx, func() { listener.Close() })

	return listener.Addr(), nil
}

func (r *Remote) handleWS(w http.ResponseWriter, req *http.Request) {
	pin := req.URL.Query().Get("pin")
	if pin != r.pin {
		http.Error(w, "Invalid PIN", http.StatusUnauthorized)
		return
	}

	conn, err := upgrader.Upgrade(w, req, nil)
	if err != nil {
		return
	}
	defer conn.Close()

	// Only one operator at a time.
	select {
	case r.slot <- struct{}{}:
		defer func() { <-r.slot }()
	default:
		conn.WriteMessage(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.ClosePolicyViolation, "already connected"))
		return
	}

	stop := context.AfterFunc(r.ctx, func() { conn.Close() })
	defer stop()

	util.LogInfo("remote console connected from %s", conn.RemoteAddr())
	defer util.LogInfo("remote console %s disconnected", conn.RemoteAddr())

	out := &wsWriter{conn: conn}
	for {
		msgType, msg, err := conn.ReadMessage()
		if err != nil {
			return
		}
		if msgType != websocket.TextMessage {
			continue
		}

		line := Line{Text: strings.TrimRight(string(msg), "\r\n"), Out: out}
		select {
		case r.out <- line:
		case <-r.ctx.Done():
			return
		}
	}
}

// wsWriter sends every Write as one text message.
type wsWriter struct {
	mu   sync.Mutex
	conn *websocket.Conn
}

func (w *wsWriter) Write(p []byte) (int, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if err := w.conn.WriteMessage(websocket.TextMessage, p); err != nil {
		return 0, err
	}
	return len(p), nil
}

// GeneratePIN returns a random numeric PIN of the specified length.
func GeneratePIN(length int) string {
	digits := make([]byte, length)
	for i := range digits {
		n, _ := rand.Int(rand.Reader, big.NewInt(10))
		digits[i] = byte('0') + byte(n.Int64())
	}
	return string(digits)
}
