// Package pool owns the sharded market-data sockets, their reconnect
// lifecycle and the event loop that feeds candle updates to the detector.
package pool

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/candlewatch/engine/internal/alert"
	"github.com/candlewatch/engine/internal/detector"
	"github.com/candlewatch/engine/internal/ingest"
	"github.com/candlewatch/engine/internal/metrics"
	"github.com/candlewatch/engine/internal/store"
)

const (
	// DefaultReconnectDelay is the wait before a closed shard redials
	DefaultReconnectDelay = 5 * time.Second
	// DefaultDiscoveryRetryDelay is the wait before a failed start is retried
	DefaultDiscoveryRetryDelay = 5 * time.Second

	// EventBuffer is the size of the loop's event channel
	EventBuffer = 1024
)

// ErrStopped is returned by queries once the event loop has exited.
var ErrStopped = errors.New("pool stopped")

// Discoverer fetches the instrument universe.
type Discoverer interface {
	FetchInstruments(ctx context.Context) ([]store.Instrument, error)
}

// Timer is a scheduled callback that can be cancelled.
type Timer interface {
	Stop() bool
}

// AfterFunc schedules f to run after d.
type AfterFunc func(d time.Duration, f func()) Timer

func timeAfterFunc(d time.Duration, f func()) Timer {
	return time.AfterFunc(d, f)
}

// Options configures a Pool.
type Options struct {
	StreamURL           string
	Timeframes          []string
	ShardSize           int
	ReconnectDelay      time.Duration
	DiscoveryRetryDelay time.Duration

	// AfterFunc replaces time.AfterFunc, for tests
	AfterFunc AfterFunc
}

// Status is a snapshot of the pool.
type Status struct {
	Initialized  bool          `json:"initialized"`
	LiveShards   int           `json:"live_shards"`
	Shards       []ShardStatus `json:"shards"`
	RetryPending bool          `json:"retry_pending"`
	DedupEntries int           `json:"dedup_entries"`
}

// Pool multiplexes the instrument universe over one socket per shard.
//
// All socket callbacks, timer expiries and requests are delivered as events
// to a single loop (Run). The shard registry and the detector's dedup table
// are only touched from that loop.
type Pool struct {
	opts      Options
	discovery Discoverer
	dialer    ingest.Dialer
	engine    *detector.Engine
	sink      alert.Sink
	tracker   *metrics.Tracker

	events chan event
	done   chan struct{}

	// Loop-owned state
	loopCtx    context.Context
	genCtx     context.Context
	cancelGen  context.CancelFunc
	generation uint64
	shards     []*shardState
	live       int
	retry      Timer
}

// New creates a new Pool. Run must be started for any request to take effect.
func New(opts Options, discovery Discoverer, dialer ingest.Dialer, engine *detector.Engine,
	sink alert.Sink, tracker *metrics.Tracker) *Pool {

	if opts.ShardSize <= 0 {
		opts.ShardSize = DefaultShardSize
	}
	if opts.ReconnectDelay <= 0 {
		opts.ReconnectDelay = DefaultReconnectDelay
	}
	if opts.DiscoveryRetryDelay <= 0 {
		opts.DiscoveryRetryDelay = DefaultDiscoveryRetryDelay
	}
	if opts.AfterFunc == nil {
		opts.AfterFunc = timeAfterFunc
	}
	if tracker == nil {
		tracker = metrics.NewTracker()
	}

	return &Pool{
		opts:      opts,
		discovery: discovery,
		dialer:    dialer,
		engine:    engine,
		sink:      sink,
		tracker:   tracker,
		events:    make(chan event, EventBuffer),
		done:      make(chan struct{}),
	}
}

// Run processes events until ctx is cancelled, then closes every socket.
// It must be called exactly once.
func (p *Pool) Run(ctx context.Context) error {
	defer close(p.done)

	p.loopCtx = ctx
	p.genCtx, p.cancelGen = context.WithCancel(ctx)
	slog.Info("pool_loop_started",
		"shard_size", p.opts.ShardSize,
		"timeframes", p.opts.Timeframes,
		"reconnect_delay", p.opts.ReconnectDelay,
	)

	for {
		select {
		case <-ctx.Done():
			p.closeAll("shutdown")
			slog.Info("pool_loop_stopped")
			return ctx.Err()
		case ev := <-p.events:
			p.handle(ev)
		}
	}
}

// Start discovers the instrument universe and opens one socket per shard.
// Anything already open is closed first.
func (p *Pool) Start() {
	p.post(startEvent{})
}

// Close closes every socket, cancels pending reconnects and leaves the pool
// not initialized. It returns once the loop has applied it.
func (p *Pool) Close() {
	done := make(chan struct{})
	p.post(closeEvent{done: done})

	select {
	case <-done:
	case <-p.done:
	}
}

// ResetDedup clears the detector's dedup table.
func (p *Pool) ResetDedup() {
	p.post(resetEvent{})
}

// Status returns a snapshot of the pool.
func (p *Pool) Status(ctx context.Context) (Status, error) {
	reply := make(chan Status, 1)

	select {
	case p.events <- statusEvent{reply: reply}:
	case <-ctx.Done():
		return Status{}, ctx.Err()
	case <-p.done:
		return Status{}, ErrStopped
	}

	select {
	case st := <-reply:
		return st, nil
	case <-ctx.Done():
		return Status{}, ctx.Err()
	case <-p.done:
		return Status{}, ErrStopped
	}
}

// post delivers an event to the loop, dropping it once the loop has exited.
func (p *Pool) post(ev event) {
	select {
	case p.events <- ev:
	case <-p.done:
	}
}

func (p *Pool) handle(ev event) {
	switch ev := ev.(type) {
	case startEvent:
		p.start()
	case retryEvent:
		if ev.generation != p.generation {
			return
		}
		p.retry = nil
		slog.Info("discovery_retry")
		p.start()
	case discoveredEvent:
		p.onDiscovered(ev)
	case openedEvent:
		p.onOpen(ev)
	case messageEvent:
		p.onMessage(ev)
	case closedEvent:
		p.onClose(ev)
	case reconnectEvent:
		p.onReconnect(ev)
	case closeEvent:
		p.closeAll("close")
		close(ev.done)
	case resetEvent:
		n := p.engine.Reset()
		p.tracker.IncrementDedupResets()
		slog.Info("dedup_table_reset", "entries", n)
	case statusEvent:
		ev.reply <- p.status()
	default:
		slog.Error("pool_unknown_event", "type", fmt.Sprintf("%T", ev))
	}
}

// start closes the current generation and runs discovery for a new one.
func (p *Pool) start() {
	p.closeAll("restart")

	gen := p.generation
	ctx := p.genCtx
	go func() {
		instruments, err := p.discovery.FetchInstruments(ctx)
		p.post(discoveredEvent{generation: gen, instruments: instruments, err: err})
	}()
}

func (p *Pool) onDiscovered(ev discoveredEvent) {
	if ev.generation != p.generation {
		return
	}

	if ev.err != nil {
		p.tracker.IncrementDiscoveryFailures()
		slog.Warn("discovery_failed", "error", ev.err, "retry_in", p.opts.DiscoveryRetryDelay)

		gen := p.generation
		p.retry = p.opts.AfterFunc(p.opts.DiscoveryRetryDelay, func() {
			p.post(retryEvent{generation: gen})
		})
		return
	}

	groups := Partition(ingest.Symbols(ev.instruments), p.opts.ShardSize)
	p.shards = make([]*shardState, len(groups))
	for i, symbols := range groups {
		streams := ingest.StreamNames(symbols, p.opts.Timeframes)
		p.shards[i] = &shardState{
			index:       i,
			instruments: symbols,
			streams:     len(streams),
			url:         ingest.StreamURL(p.opts.StreamURL, streams),
		}
	}

	slog.Info("pool_partitioned",
		"instruments", len(ev.instruments),
		"shards", len(p.shards),
		"shard_size", p.opts.ShardSize,
	)

	for _, s := range p.shards {
		p.connect(s)
	}
}

// connect starts a new connection attempt for s.
func (p *Pool) connect(s *shardState) {
	s.epoch++
	ref := shardRef{generation: p.generation, index: s.index, epoch: s.epoch}

	slog.Debug("shard_dialing", "shard", s.index+1, "streams", s.streams, "attempt", s.epoch)
	go p.runSocket(p.genCtx, ref, s.url)
}

// runSocket dials and reads one socket. It posts exactly one closedEvent per
// attempt, whether the dial or a later read fails.
func (p *Pool) runSocket(ctx context.Context, ref shardRef, url string) {
	conn, err := p.dialer.Dial(ctx, url)
	if err != nil {
		p.post(closedEvent{ref: ref, err: err})
		return
	}

	p.post(openedEvent{ref: ref, conn: conn})

	err = ingest.ReadLoop(ctx, conn, func(data []byte) {
		p.post(messageEvent{ref: ref, data: data})
	})
	p.post(closedEvent{ref: ref, err: err})
}

// lookup returns the shard an event belongs to, or nil when it is stale.
func (p *Pool) lookup(ref shardRef) *shardState {
	if ref.generation != p.generation || ref.index < 0 || ref.index >= len(p.shards) {
		return nil
	}
	s := p.shards[ref.index]
	if s.epoch != ref.epoch {
		return nil
	}
	return s
}

func (p *Pool) onOpen(ev openedEvent) {
	s := p.lookup(ev.ref)
	if s == nil {
		ev.conn.Close()
		return
	}

	s.conn = ev.conn
	s.connected = true
	s.connectedAt = time.Now()
	p.live++
	p.tracker.IncrementShardConnects()

	slog.Info("shard_connected",
		"shard", s.index+1,
		"instruments", len(s.instruments),
		"streams", s.streams,
		"live", p.live,
	)
	if p.live == 1 {
		slog.Info("pool_initialized", "shards", len(p.shards))
	}

	text := fmt.Sprintf("Shard %d connected", s.index+1)
	p.sink.Send(text)
	p.tracker.RecordStatusAlert(text)
}

func (p *Pool) onMessage(ev messageEvent) {
	s := p.lookup(ev.ref)
	if s == nil || !s.connected {
		return
	}

	s.messages++
	p.tracker.IncrementMessages()

	candle, msgType, err := ingest.ParseMessage(ev.data)
	if err != nil {
		p.tracker.IncrementParseErrors()
		slog.Debug("ws_parse_error", "shard", s.index+1, "error", err, "raw", truncate(string(ev.data), 256))
		return
	}
	if candle == nil {
		if msgType != "" {
			slog.Debug("ws_message", "shard", s.index+1, "type", msgType)
		}
		return
	}

	p.tracker.RecordCandle(*candle)

	crossing, ok := p.engine.Evaluate(*candle)
	if !ok {
		return
	}

	slog.Info("threshold_crossed",
		"symbol", candle.Symbol,
		"timeframe", candle.Timeframe,
		"direction", crossing.Direction,
		"percent", crossing.Percent.StringFixed(2),
		"threshold", crossing.Threshold.String(),
		"open_time", candle.OpenTime.UnixMilli(),
	)
	p.sink.Send(crossing.Message())
	p.tracker.RecordCrossing(crossing)
}

func (p *Pool) onClose(ev closedEvent) {
	s := p.lookup(ev.ref)
	if s == nil {
		return
	}

	if s.connected {
		s.connected = false
		p.live--
		p.tracker.IncrementShardDisconnects()
		slog.Warn("shard_disconnected", "shard", s.index+1, "error", ev.err, "live", p.live)
		if p.live == 0 {
			slog.Warn("pool_not_initialized", "reason", "no live shards")
		}
	} else {
		slog.Warn("shard_dial_failed", "shard", s.index+1, "error", ev.err)
	}
	s.conn = nil

	ref := ev.ref
	s.reconnect = p.opts.AfterFunc(p.opts.ReconnectDelay, func() {
		p.post(reconnectEvent{ref: ref})
	})
	slog.Info("shard_reconnect_scheduled", "shard", s.index+1, "delay", p.opts.ReconnectDelay)
}

func (p *Pool) onReconnect(ev reconnectEvent) {
	s := p.lookup(ev.ref)
	if s == nil || s.connected {
		return
	}

	s.reconnect = nil
	s.reconnects++
	slog.Info("shard_reconnecting", "shard", s.index+1, "reconnects", s.reconnects)
	p.connect(s)
}

// closeAll tears down the current generation: pending timers are stopped,
// sockets closed and in-flight dials cancelled. Late events from the old
// generation are discarded by lookup.
func (p *Pool) closeAll(reason string) {
	if p.retry != nil {
		p.retry.Stop()
		p.retry = nil
	}

	for _, s := range p.shards {
		if s.reconnect != nil {
			s.reconnect.Stop()
			s.reconnect = nil
		}
		if s.conn != nil {
			s.conn.Close()
			s.conn = nil
		}
	}

	if len(p.shards) > 0 {
		slog.Info("pool_closed", "reason", reason, "shards", len(p.shards), "live", p.live)
	}

	if p.cancelGen != nil {
		p.cancelGen()
	}
	p.shards = nil
	p.live = 0
	p.generation++
	p.genCtx, p.cancelGen = context.WithCancel(p.loopCtx)
}

func (p *Pool) status() Status {
	st := Status{
		Initialized:  p.live > 0,
		LiveShards:   p.live,
		Shards:       make([]ShardStatus, 0, len(p.shards)),
		RetryPending: p.retry != nil,
		DedupEntries: p.engine.Len(),
	}
	for _, s := range p.shards {
		st.Shards = append(st.Shards, s.status())
	}
	return st
}

// truncate shortens a string for logging.
func truncate(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen] + "..."
}
