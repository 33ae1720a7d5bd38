package progress

import (
	"context"
	"io"
	"sync/atomic"
	"time"

	"github.com/schollz/progressbar/v3"

	"github.com/jobson/jobson-cli/internal/events"
)

const spinnerTick = 100 * time.Millisecond

// Spinner shows a loading indicator while the pending request count published
// on the event bus is above zero.
type Spinner struct {
	w      io.Writer
	bus    *events.EventBus
	ch     <-chan events.Event
	active atomic.Bool
}

// NewSpinner subscribes to pending-request events on bus. Call Run to start
// rendering.
func NewSpinner(bus *events.EventBus, w io.Writer) *Spinner {
	return &Spinner{
		w:   w,
		bus: bus,
		ch:  bus.Subscribe(events.EventPendingRequests),
	}
}

// Active reports whether the spinner is currently shown.
func (s *Spinner) Active() bool {
	return s.active.Load()
}

// Run renders the spinner until ctx ends or the bus closes.
func (s *Spinner) Run(ctx context.Context) {
	defer s.bus.Unsubscribe(events.EventPendingRequests, s.ch)

	var bar *progressbar.ProgressBar
	ticker := time.NewTicker(spinnerTick)
	defer ticker.Stop()

	hide := func() {
		if bar != nil {
			_ = bar.Clear()
			bar = nil
		}
		s.active.Store(false)
	}
	defer hide()

	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-s.ch:
			if !ok {
				return
			}
			pending, ok := ev.(*events.PendingRequestsEvent)
			if !ok {
				continue
			}
			switch {
			case pending.Count > 0 && bar == nil:
				bar = progressbar.NewOptions(-1,
					progressbar.OptionSetWriter(s.w),
					progressbar.OptionSetDescription("Loading"),
					progressbar.OptionSpinnerType(14),
					progressbar.OptionClearOnFinish(),
				)
				s.active.Store(true)
			case pending.Count == 0:
				hide()
			}
		case <-ticker.C:
			if bar != nil {
				_ = bar.Add(1)
			}
		}
	}
}
