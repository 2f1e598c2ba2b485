// Package ui provides terminal user interface components.
package ui

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/gdamore/tcell/v2"
	"github.com/rivo/tview"

	"github.com/candlewatch/engine/internal/metrics"
	"github.com/candlewatch/engine/internal/pool"
)

const (
	// DefaultRefreshRate is how often panels are redrawn
	DefaultRefreshRate = 500 * time.Millisecond

	topMoversLimit = 10
	statusTimeout  = time.Second
)

// StatusProvider reports the pool state.
type StatusProvider interface {
	Status(ctx context.Context) (pool.Status, error)
}

// App is the main TUI application.
type App struct {
	app    *tview.Application
	layout *tview.Flex

	// Views
	shardOverview  *ShardOverviewView
	alertFeed      *AlertFeedView
	statsDashboard *StatsDashboardView
	topMovers      *TopMoversView

	pool           StatusProvider
	metricsTracker *metrics.Tracker
	refreshRate    time.Duration

	ctx    context.Context
	cancel context.CancelFunc
}

// NewApp creates a new TUI application.
func NewApp(provider StatusProvider, tracker *metrics.Tracker, refreshRate time.Duration) *App {
	if refreshRate <= 0 {
		refreshRate = DefaultRefreshRate
	}
	ctx, cancel := context.WithCancel(context.Background())

	app := &App{
		app:            tview.NewApplication(),
		pool:           provider,
		metricsTracker: tracker,
		refreshRate:    refreshRate,
		ctx:            ctx,
		cancel:         cancel,
	}

	app.shardOverview = NewShardOverviewView()
	app.alertFeed = NewAlertFeedView()
	app.statsDashboard = NewStatsDashboardView()
	app.topMovers = NewTopMoversView()

	app.setupLayout()
	app.setupKeyboard()

	return app
}

// setupLayout creates the 4-panel layout.
func (a *App) setupLayout() {
	// Top row: Shard Overview (left) | Alert Feed (right)
	topRow := tview.NewFlex().
		AddItem(a.shardOverview.Widget(), 0, 1, false).
		AddItem(a.alertFeed.Widget(), 0, 2, false)

	// Bottom row: Stats Dashboard (left) | Top Movers (right)
	bottomRow := tview.NewFlex().
		AddItem(a.statsDashboard.Widget(), 0, 1, false).
		AddItem(a.topMovers.Widget(), 0, 1, false)

	a.layout = tview.NewFlex().SetDirection(tview.FlexRow).
		AddItem(topRow, 0, 3, false).
		AddItem(bottomRow, 0, 2, false)

	a.app.SetRoot(a.layout, true)
}

// setupKeyboard configures keyboard shortcuts.
func (a *App) setupKeyboard() {
	a.app.SetInputCapture(func(event *tcell.EventKey) *tcell.EventKey {
		switch event.Key() {
		case tcell.KeyCtrlC:
			a.Stop()
			return nil
		case tcell.KeyRune:
			switch event.Rune() {
			case 'q', 'Q':
				a.Stop()
				return nil
			case 'r', 'R':
				go a.refresh()
				return nil
			}
		}
		return event
	})
}

// Run starts the TUI application (blocking). It returns when the user quits
// or Stop is called.
func (a *App) Run() error {
	go a.updateLoop()

	if err := a.app.Run(); err != nil {
		return fmt.Errorf("app run failed: %w", err)
	}
	return nil
}

// Stop gracefully stops the application.
func (a *App) Stop() {
	a.cancel()
	a.app.Stop()
}

// updateLoop periodically refreshes views with pool and metrics data.
func (a *App) updateLoop() {
	ticker := time.NewTicker(a.refreshRate)
	defer ticker.Stop()

	for {
		select {
		case <-a.ctx.Done():
			return
		case <-ticker.C:
			a.refresh()
		}
	}
}

// refresh collects fresh data off the UI goroutine, then redraws.
func (a *App) refresh() {
	snapshot := a.metricsTracker.Snapshot(topMoversLimit)

	ctx, cancel := context.WithTimeout(a.ctx, statusTimeout)
	status, err := a.pool.Status(ctx)
	cancel()
	if err != nil && a.ctx.Err() == nil {
		slog.Debug("ui_status_unavailable", "error", err)
	}

	a.app.QueueUpdateDraw(func() {
		if err == nil {
			a.shardOverview.Update(status)
		}
		a.alertFeed.Update(snapshot.RecentAlerts)
		a.statsDashboard.Update(snapshot, status)
		a.topMovers.Update(snapshot.TopMovers)
	})
}
