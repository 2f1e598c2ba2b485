package pool

import (
	"github.com/candlewatch/engine/internal/ingest"
	"github.com/candlewatch/engine/internal/store"
)

// event is anything the pool loop handles.
type event interface{}

type startEvent struct{}

type retryEvent struct {
	generation uint64
}

type discoveredEvent struct {
	generation  uint64
	instruments []store.Instrument
	err         error
}

type openedEvent struct {
	ref  shardRef
	conn ingest.Conn
}

type messageEvent struct {
	ref  shardRef
	data []byte
}

type closedEvent struct {
	ref shardRef
	err error
}

type reconnectEvent struct {
	ref shardRef
}

type closeEvent struct {
	done chan struct{}
}

type resetEvent struct{}

type statusEvent struct {
	reply chan Status
}
