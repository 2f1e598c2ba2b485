package ui

import (
	"fmt"
	"html"

	"github.com/gdamore/tcell/v2"
	"github.com/rivo/tview"

	"github.com/candlewatch/engine/internal/store"
)

// AlertFeedView displays the most recent alerts, newest first.
type AlertFeedView struct {
	list *tview.List
}

// NewAlertFeedView creates a new alert feed view.
func NewAlertFeedView() *AlertFeedView {
	list := tview.NewList().
		ShowSecondaryText(true)

	list.SetTitle(" 🚨 Alerts ").SetBorder(true)
	list.SetMainTextColor(tcell.ColorWhite)

	v := &AlertFeedView{list: list}
	v.Update(nil)
	return v
}

// Widget returns the tview primitive.
func (v *AlertFeedView) Widget() tview.Primitive {
	return v.list
}

// Update rebuilds the list from alerts.
func (v *AlertFeedView) Update(alerts []store.Alert) {
	v.list.Clear()

	if len(alerts) == 0 {
		v.list.AddItem("No alerts yet", "", 0, nil)
		v.list.SetTitle(" 🚨 Alerts ")
		return
	}

	crossings := 0
	for _, a := range alerts {
		mainText, secondaryText := formatAlert(a)
		v.list.AddItem(mainText, secondaryText, 0, nil)
		if a.Kind == store.AlertCrossing {
			crossings++
		}
	}

	v.list.SetTitle(fmt.Sprintf(" 🚨 Alerts (%d crossings) ", crossings))
}

// formatAlert formats an alert for display.
func formatAlert(a store.Alert) (string, string) {
	// Alert texts are HTML for delivery and may contain tview tag brackets
	text := tview.Escape(html.UnescapeString(a.Text))

	secondary := a.SentAt.Format("15:04:05")
	if a.Kind == store.AlertStatus {
		secondary += " | status"
	} else {
		secondary += " | " + a.Symbol
	}
	return text, secondary
}
