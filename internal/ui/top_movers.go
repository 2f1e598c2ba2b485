package ui

import (
	"fmt"

	"github.com/gdamore/tcell/v2"
	"github.com/rivo/tview"

	"github.com/candlewatch/engine/internal/metrics"
)

var moverHeaders = []string{"Symbol", "TF", "Change", "Close"}

// TopMoversView displays the largest intra-candle moves.
type TopMoversView struct {
	table *tview.Table
}

// NewTopMoversView creates a new top movers view.
func NewTopMoversView() *TopMoversView {
	table := tview.NewTable().
		SetBorders(false).
		SetFixed(1, 0)

	table.SetTitle(" Top Movers ").SetBorder(true)

	v := &TopMoversView{table: table}
	v.setHeader()
	return v
}

// Widget returns the tview primitive.
func (v *TopMoversView) Widget() tview.Primitive {
	return v.table
}

func (v *TopMoversView) setHeader() {
	for col, header := range moverHeaders {
		cell := tview.NewTableCell(header).
			SetTextColor(tview.Styles.SecondaryTextColor).
			SetAlign(tview.AlignLeft).
			SetSelectable(false)
		v.table.SetCell(0, col, cell)
	}
}

// Update refreshes the top movers display. Movers arrive sorted by
// absolute change.
func (v *TopMoversView) Update(movers []metrics.Mover) {
	v.table.Clear()
	v.setHeader()

	if len(movers) == 0 {
		cell := tview.NewTableCell("No data yet...").
			SetAlign(tview.AlignCenter).
			SetExpansion(1)
		v.table.SetCell(1, 0, cell)
		return
	}

	for i, mover := range movers {
		row := i + 1

		changeColor := tcell.ColorWhite
		if mover.PercentChange > 0 {
			changeColor = tcell.ColorGreen
		} else if mover.PercentChange < 0 {
			changeColor = tcell.ColorRed
		}

		v.table.SetCell(row, 0, tview.NewTableCell(mover.Symbol).SetAlign(tview.AlignLeft))
		v.table.SetCell(row, 1, tview.NewTableCell(mover.Timeframe).SetAlign(tview.AlignLeft))
		v.table.SetCell(row, 2, tview.NewTableCell(fmt.Sprintf("%+.2f%%", mover.PercentChange)).
			SetAlign(tview.AlignRight).
			SetTextColor(changeColor))
		v.table.SetCell(row, 3, tview.NewTableCell(fmt.Sprintf("%g", mover.Close)).
			SetAlign(tview.AlignRight))
	}
}
