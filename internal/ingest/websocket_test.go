package ingest

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
)

// newStreamServer serves one socket that writes frames, pings, then waits
// for the client to hang up.
func newStreamServer(t *testing.T, frames []string, gotQuery chan<- string) *httptest.Server {
	t.Helper()
	upgrader := websocket.Upgrader{}

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotQuery <- r.URL.Query().Get("streams")

		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()

		pong := make(chan string, 1)
		conn.SetPongHandler(func(data string) error {
			pong <- data
			return nil
		})

		for _, f := range frames {
			if err := conn.WriteMessage(websocket.TextMessage, []byte(f)); err != nil {
				return
			}
		}
		conn.WriteControl(websocket.PingMessage, []byte("keepalive"), time.Now().Add(time.Second))

		// Reading drives the pong handler and returns once the client closes
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestWSDialerReadsFrames(t *testing.T) {
	gotQuery := make(chan string, 1)
	srv := newStreamServer(t, []string{`{"a":1}`, `{"a":2}`}, gotQuery)
	wsURL := "ws" + strings.TrimPrefix(srv.URL, "http")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	dialer := NewWSDialer(time.Second, 5*time.Second)
	conn, err := dialer.Dial(ctx, StreamURL(wsURL, []string{"btcusdt@kline_5m", "ethusdt@kline_5m"}))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if q := <-gotQuery; q != "btcusdt@kline_5m/ethusdt@kline_5m" {
		t.Errorf("Unexpected streams query %q", q)
	}

	received := make(chan string, 2)
	done := make(chan error, 1)
	go func() {
		done <- ReadLoop(ctx, conn, func(data []byte) {
			received <- string(data)
			if len(received) == 2 {
				cancel()
			}
		})
	}()

	select {
	case err := <-done:
		if !errors.Is(err, ErrSocketClosed) {
			t.Errorf("Expected ErrSocketClosed, got %v", err)
		}
	case <-time.After(3 * time.Second):
		t.Fatal("read loop did not stop")
	}

	if first := <-received; first != `{"a":1}` {
		t.Errorf("Expected frames in order, got %s first", first)
	}
}

func TestWSDialerHandshakeFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "too many streams", http.StatusBadRequest)
	}))
	defer srv.Close()

	dialer := NewWSDialer(time.Second, time.Second)
	_, err := dialer.Dial(context.Background(), "ws"+strings.TrimPrefix(srv.URL, "http"))
	if err == nil {
		t.Fatal("Expected a dial error")
	}
	if !strings.Contains(err.Error(), "status 400") {
		t.Errorf("Expected the handshake status in the error, got %v", err)
	}
}
