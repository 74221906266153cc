package panel

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/comigor/taxassist-go/internal/chat"
	"github.com/comigor/taxassist-go/internal/config"
	"github.com/comigor/taxassist-go/internal/feed"
	"github.com/comigor/taxassist-go/internal/history"
	"github.com/comigor/taxassist-go/internal/logger"
)

// Options are the dependencies shared by every panel.
type Options struct {
	Store     history.Store
	Completer Completer
	Config    config.PanelConfig
	Now       func() time.Time
}

// State is a full snapshot of a panel.
type State struct {
	PanelID   string      `json:"panel_id"`
	Open      bool        `json:"open"`
	Location  string      `json:"location"`
	Milestone string      `json:"milestone"`
	Session   SessionView `json:"session"`
	History   HistoryView `json:"history"`
}

// Panel is one assistant side panel attached to a host page.
type Panel struct {
	ID string

	updates    *feed.Broadcaster[Update]
	history    *HistoryAggregator
	sync       *RealtimeSync
	controller *Controller

	mu       sync.RWMutex
	location string
	open     bool
}

// New builds a closed panel positioned at location.
func New(opts Options, location string) *Panel {
	if opts.Now == nil {
		opts.Now = time.Now
	}
	p := &Panel{
		ID:       uuid.NewString(),
		location: location,
	}
	p.updates = feed.New[Update]("panel", feed.DefaultBuffer, logger.With("panel").With("panel_id", p.ID))
	p.history = NewHistoryAggregator(opts.Store, opts.Now, opts.Config.HistoryPerBucket, opts.Config.TitleMaxChars)
	p.sync = NewRealtimeSync(opts.Store, p.history, p.publishHistory)
	p.controller = NewController(ControllerOptions{
		Completer:           opts.Completer,
		Store:               opts.Store,
		History:             p.history,
		Context:             p.Milestone,
		Emit:                p.updates.Publish,
		DiscardStaleReplies: opts.Config.DiscardStaleReplies,
		RequestTimeout:      opts.Config.RequestTimeout,
		Now:                 opts.Now,
	})
	return p
}

func (p *Panel) publishHistory(v HistoryView) {
	p.updates.Publish(Update{Kind: UpdateHistory, History: &v})
}

// Open shows the panel: the history view is refreshed and the realtime
// subscription is started. Opening an open panel only refreshes history.
func (p *Panel) Open(ctx context.Context) State {
	p.mu.Lock()
	p.open = true
	p.mu.Unlock()

	if v, err := p.history.Refresh(ctx); err == nil {
		p.publishHistory(v)
	}
	p.sync.Start(ctx)
	logger.L.Info("panel opened", "panel_id", p.ID)
	return p.State()
}

// Close hides the panel and drops the realtime subscription. The active
// session and its messages are kept.
func (p *Panel) Close() {
	p.sync.Stop()
	p.mu.Lock()
	p.open = false
	p.mu.Unlock()
	logger.L.Info("panel closed", "panel_id", p.ID)
}

// IsOpen reports whether the panel is shown.
func (p *Panel) IsOpen() bool {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.open
}

// SetLocation records the host navigation path.
func (p *Panel) SetLocation(path string) {
	p.mu.Lock()
	p.location = path
	p.mu.Unlock()
}

// Milestone is the context label for the current location.
func (p *Panel) Milestone() string {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return Milestone(p.location)
}

// Controller exposes the session controller.
func (p *Panel) Controller() *Controller {
	return p.controller
}

// History returns the current session picker content.
func (p *Panel) History() HistoryView {
	return p.history.View()
}

// Subscribe streams panel updates until ctx is done.
func (p *Panel) Subscribe(ctx context.Context) (<-chan Update, string) {
	return p.updates.Subscribe(ctx)
}

// HandleQuickAction applies a quick action. Route actions move the panel
// to the target path.
func (p *Panel) HandleQuickAction(qa chat.QuickAction) Outcome {
	out := ResolveQuickAction(qa)
	if out.Navigate != "" {
		p.SetLocation(out.Navigate)
		p.updates.Publish(Update{Kind: UpdateNavigate, Navigate: out.Navigate})
	}
	if out.Notice != nil {
		p.updates.Publish(Update{Kind: UpdateNotice, Notice: out.Notice})
	}
	return out
}

// State snapshots the panel.
func (p *Panel) State() State {
	p.mu.RLock()
	open, location := p.open, p.location
	p.mu.RUnlock()
	return State{
		PanelID:   p.ID,
		Open:      open,
		Location:  location,
		Milestone: Milestone(location),
		Session:   p.controller.Active(),
		History:   p.history.View(),
	}
}

// shutdown closes the panel and its update feed once exchanges finish.
func (p *Panel) shutdown() {
	p.Close()
	p.controller.Wait()
	p.updates.Close()
}
