package pool

import (
	"slices"
	"time"

	"github.com/candlewatch/engine/internal/ingest"
)

// DefaultShardSize is the maximum number of instruments per socket.
const DefaultShardSize = 20

// Partition splits symbols into consecutive shards of at most size symbols.
// Order is preserved and only the last shard may be smaller.
func Partition(symbols []string, size int) [][]string {
	if size <= 0 {
		size = DefaultShardSize
	}

	shards := make([][]string, 0, (len(symbols)+size-1)/size)
	for i := 0; i < len(symbols); i += size {
		end := min(i+size, len(symbols))
		shards = append(shards, slices.Clone(symbols[i:end]))
	}
	return shards
}

// shardRef addresses one connection attempt of one shard.
// Events carrying a ref that no longer matches the registry are stale.
type shardRef struct {
	generation uint64
	index      int
	epoch      uint64
}

// shardState is the registry record of one shard. Only the pool loop reads
// or writes it.
type shardState struct {
	index       int
	instruments []string
	streams     int
	url         string

	// epoch counts connection attempts
	epoch       uint64
	conn        ingest.Conn
	connected   bool
	connectedAt time.Time
	reconnect   Timer
	reconnects  int
	messages    int64
}

// ShardStatus is a read-only view of one shard.
type ShardStatus struct {
	Index            int       `json:"index"`
	Instruments      []string  `json:"instruments"`
	Streams          int       `json:"streams"`
	Connected        bool      `json:"connected"`
	ConnectedAt      time.Time `json:"connected_at,omitzero"`
	Reconnects       int       `json:"reconnects"`
	ReconnectPending bool      `json:"reconnect_pending"`
	Messages         int64     `json:"messages"`
}

func (s *shardState) status() ShardStatus {
	st := ShardStatus{
		Index:            s.index,
		Instruments:      slices.Clone(s.instruments),
		Streams:          s.streams,
		Connected:        s.connected,
		Reconnects:       s.reconnects,
		ReconnectPending: s.reconnect != nil,
		Messages:         s.messages,
	}
	if s.connected {
		st.ConnectedAt = s.connectedAt
	}
	return st
}
