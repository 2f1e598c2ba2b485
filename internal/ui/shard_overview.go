package ui

import (
	"fmt"

	"github.com/gdamore/tcell/v2"
	"github.com/rivo/tview"

	"github.com/candlewatch/engine/internal/pool"
)

var shardHeaders = []string{"Shard", "Symbols", "Streams", "State", "Msgs", "Reconn", "Since"}

// ShardOverviewView displays one row per shard socket.
type ShardOverviewView struct {
	table *tview.Table
}

// NewShardOverviewView creates a new shard overview view.
func NewShardOverviewView() *ShardOverviewView {
	table := tview.NewTable().
		SetBorders(false).
		SetFixed(1, 0)

	table.SetTitle(" Shards ").SetBorder(true)

	v := &ShardOverviewView{table: table}
	v.setHeader()
	return v
}

// Widget returns the tview primitive.
func (v *ShardOverviewView) Widget() tview.Primitive {
	return v.table
}

func (v *ShardOverviewView) setHeader() {
	for col, header := range shardHeaders {
		cell := tview.NewTableCell(header).
			SetTextColor(tview.Styles.SecondaryTextColor).
			SetAlign(tview.AlignLeft).
			SetSelectable(false).
			SetExpansion(1)
		v.table.SetCell(0, col, cell)
	}
}

// Update refreshes the view with the pool status.
func (v *ShardOverviewView) Update(status pool.Status) {
	v.table.Clear()
	v.setHeader()

	if len(status.Shards) == 0 {
		text := "Discovering instruments..."
		if status.RetryPending {
			text = "Discovery failed, retrying..."
		}
		v.table.SetCell(1, 0, tview.NewTableCell(text).SetExpansion(1))
	}

	for i, shard := range status.Shards {
		row := i + 1

		state, color := "down", tcell.ColorRed
		switch {
		case shard.Connected:
			state, color = "live", tcell.ColorGreen
		case shard.ReconnectPending:
			state, color = "retry", tcell.ColorYellow
		}

		since := "-"
		if shard.Connected {
			since = formatTimeAgo(shard.ConnectedAt)
		}

		cells := []string{
			fmt.Sprintf("#%d", shard.Index+1),
			firstSymbols(shard.Instruments),
			fmt.Sprintf("%d", shard.Streams),
			state,
			fmt.Sprintf("%d", shard.Messages),
			fmt.Sprintf("%d", shard.Reconnects),
			since,
		}

		for col, text := range cells {
			cell := tview.NewTableCell(text).
				SetAlign(tview.AlignLeft).
				SetExpansion(1)
			if col == 3 {
				cell.SetTextColor(color)
			}
			v.table.SetCell(row, col, cell)
		}
	}

	v.table.SetTitle(fmt.Sprintf(" Shards (%d/%d live) ", status.LiveShards, len(status.Shards)))
}

// firstSymbols summarizes a shard's instruments as "BTCUSDT +19".
func firstSymbols(symbols []string) string {
	switch len(symbols) {
	case 0:
		return "-"
	case 1:
		return symbols[0]
	default:
		return fmt.Sprintf("%s +%d", symbols[0], len(symbols)-1)
	}
}
