package cli

import (
	"context"

	"github.com/jobson/jobson-cli/internal/events"
	"github.com/jobson/jobson-cli/internal/logging"
)

// logEvents writes bus events to log until ctx ends or the bus closes. The
// returned channel is closed once it has stopped.
func logEvents(ctx context.Context, bus *events.EventBus, log *logging.Logger) <-chan struct{} {
	ch := bus.SubscribeAll()
	done := make(chan struct{})

	go func() {
		defer close(done)
		defer func() {
			bus.UnsubscribeAll(ch)
			if n := bus.DroppedEventCount(); n > 0 {
				log.Debug().Int64("dropped", n).Msg("Event bus dropped events")
			}
		}()

		for {
			select {
			case <-ctx.Done():
				return
			case ev, ok := <-ch:
				if !ok {
					return
				}
				logEvent(log, ev)
			}
		}
	}()
	return done
}

func logEvent(log *logging.Logger, ev events.Event) {
	switch e := ev.(type) {
	case *events.LogEvent:
		entry := log.Debug()
		switch e.Level {
		case events.InfoLevel:
			entry = log.Info()
		case events.WarnLevel:
			entry = log.Warn()
		case events.ErrorLevel:
			entry = log.Error()
		}
		entry.Err(e.Error).Msg(e.Message)
	case *events.InputWarningEvent:
		log.Debug().Str("input", e.InputID).Msg(e.Message)
	case *events.PendingRequestsEvent:
		log.Debug().Int("pending", e.Count).Msg("Requests in flight")
	}
}
