package ingest

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
)

const (
	// HandshakeTimeout bounds the websocket upgrade
	HandshakeTimeout = 10 * time.Second

	// ReadTimeout is the liveness window: the exchange pushes kline updates
	// every few hundred ms and pings every few minutes.
	ReadTimeout = 70 * time.Second

	// WriteTimeout bounds control frames
	WriteTimeout = 10 * time.Second
)

// ErrSocketClosed is returned by ReadLoop when the socket was closed locally.
var ErrSocketClosed = errors.New("socket closed")

// Conn is one multiplexed market-data socket.
type Conn interface {
	ReadMessage() (messageType int, p []byte, err error)
	Close() error
}

// Dialer opens market-data sockets.
type Dialer interface {
	Dial(ctx context.Context, url string) (Conn, error)
}

// WSDialer dials sockets with gorilla/websocket.
type WSDialer struct {
	HandshakeTimeout time.Duration
	ReadTimeout      time.Duration
}

// NewWSDialer creates a new WSDialer.
func NewWSDialer(handshakeTimeout, readTimeout time.Duration) *WSDialer {
	if handshakeTimeout <= 0 {
		handshakeTimeout = HandshakeTimeout
	}
	if readTimeout <= 0 {
		readTimeout = ReadTimeout
	}
	return &WSDialer{
		HandshakeTimeout: handshakeTimeout,
		ReadTimeout:      readTimeout,
	}
}

// Dial establishes a websocket connection.
func (d *WSDialer) Dial(ctx context.Context, url string) (Conn, error) {
	dialer := websocket.Dialer{
		HandshakeTimeout: d.HandshakeTimeout,
		Proxy:            http.ProxyFromEnvironment,
	}

	conn, resp, err := dialer.DialContext(ctx, url, nil)
	if err != nil {
		if resp != nil {
			return nil, fmt.Errorf("dial failed with status %d: %w", resp.StatusCode, err)
		}
		return nil, fmt.Errorf("dial failed: %w", err)
	}

	// Answer exchange pings and extend the liveness window on each one
	conn.SetPingHandler(func(appData string) error {
		conn.SetReadDeadline(time.Now().Add(d.ReadTimeout))
		err := conn.WriteControl(websocket.PongMessage, []byte(appData), time.Now().Add(WriteTimeout))
		if errors.Is(err, websocket.ErrCloseSent) {
			return nil
		}
		return err
	})

	return &wsConn{conn: conn, readTimeout: d.ReadTimeout}, nil
}

// wsConn refreshes the read deadline before every read.
type wsConn struct {
	conn        *websocket.Conn
	readTimeout time.Duration
}

func (c *wsConn) ReadMessage() (int, []byte, error) {
	c.conn.SetReadDeadline(time.Now().Add(c.readTimeout))
	return c.conn.ReadMessage()
}

func (c *wsConn) Close() error {
	return c.conn.Close()
}

// ReadLoop reads frames until the socket fails or ctx is cancelled, handing
// each payload to handle. The socket is always closed on return and the
// returned error is never nil.
func ReadLoop(ctx context.Context, conn Conn, handle func([]byte)) error {
	defer conn.Close()

	// Unblock the pending read when ctx ends
	stop := context.AfterFunc(ctx, func() { conn.Close() })
	defer stop()

	for {
		_, message, err := conn.ReadMessage()
		if err != nil {
			if ctx.Err() != nil {
				return fmt.Errorf("%w: %w", ErrSocketClosed, ctx.Err())
			}
			return fmt.Errorf("read error: %w", err)
		}
		handle(message)
	}
}
