package ingest

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
)

func TestStreamNames(t *testing.T) {
	names := StreamNames([]string{"BTCUSDT", "EthUsdt"}, []string{"5m", "1h"})
	want := []string{"btcusdt@kline_5m", "btcusdt@kline_1h", "ethusdt@kline_5m", "ethusdt@kline_1h"}

	if len(names) != len(want) {
		t.Fatalf("Expected %d names, got %d", len(want), len(names))
	}
	for i := range want {
		if names[i] != want[i] {
			t.Errorf("names[%d] = %s, want %s", i, names[i], want[i])
		}
	}
}

func TestStreamURL(t *testing.T) {
	streams := []string{"btcusdt@kline_5m", "ethusdt@kline_5m"}

	got := StreamURL("wss://fstream.binance.com/stream", streams)
	if got != "wss://fstream.binance.com/stream?streams=btcusdt@kline_5m/ethusdt@kline_5m" {
		t.Errorf("Unexpected URL %s", got)
	}

	got = StreamURL("wss://example.com/stream?timeUnit=MICROSECOND", streams[:1])
	if !strings.HasSuffix(got, "?timeUnit=MICROSECOND&streams=btcusdt@kline_5m") {
		t.Errorf("Unexpected URL %s", got)
	}
}

// scriptedConn replays frames and then fails.
type scriptedConn struct {
	mu     sync.Mutex
	frames [][]byte
	err    error
	closed int
}

func (c *scriptedConn) ReadMessage() (int, []byte, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if len(c.frames) == 0 {
		return 0, nil, c.err
	}
	frame := c.frames[0]
	c.frames = c.frames[1:]
	return 1, frame, nil
}

func (c *scriptedConn) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed++
	return nil
}

func TestReadLoopDeliversInOrderThenCloses(t *testing.T) {
	readErr := errors.New("connection reset")
	conn := &scriptedConn{
		frames: [][]byte{[]byte("a"), []byte("b"), []byte("c")},
		err:    readErr,
	}

	var got []string
	err := ReadLoop(context.Background(), conn, func(b []byte) {
		got = append(got, string(b))
	})

	if !errors.Is(err, readErr) {
		t.Errorf("Expected read error, got %v", err)
	}
	if strings.Join(got, "") != "abc" {
		t.Errorf("Expected frames in order, got %v", got)
	}
	if conn.closed == 0 {
		t.Error("Expected the socket to be closed")
	}
}

func TestReadLoopCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	conn := &scriptedConn{err: errors.New("use of closed network connection")}
	err := ReadLoop(ctx, conn, func([]byte) {})
	if !errors.Is(err, ErrSocketClosed) {
		t.Errorf("Expected ErrSocketClosed, got %v", err)
	}
}
