package cli

import (
	"sync"

	"github.com/rescale/brocoli/internal/events"
	"github.com/rescale/brocoli/internal/http"
	"github.com/rescale/brocoli/internal/logging"
)

// startEventLog writes the events of bus to log until the returned stop
// function is called. stop closes the bus and waits for pending events.
func startEventLog(bus *events.EventBus, log *logging.Logger) (stop func()) {
	ch := bus.SubscribeAll()
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		for ev := range ch {
			logEvent(log, ev)
		}
	}()

	var once sync.Once
	return func() {
		once.Do(func() {
			bus.Close()
			wg.Wait()
			if n := bus.DroppedEvents(); n > 0 {
				log.Warn().Int64("dropped", n).Msg("Event log fell behind")
			}
		})
	}
}

func logEvent(log *logging.Logger, ev events.Event) {
	switch e := ev.(type) {
	case *events.StartedEvent:
		log.Debug().Str("op", e.Operation).Str("label", e.Label).Int("total", e.Total).Msg("Operation started")
	case *events.ProgressEvent:
		log.Debug().Str("op", e.Operation).Int("done", e.Done).Int("total", e.Total).
			Float64("fraction", e.Fraction()).Msg("Progress")
	case *events.ErrorEvent:
		log.Debug().Str("op", e.Operation).Str("label", e.Label).Int("done", e.Done).
			Bool("retryable", e.Retryable).Str("class", http.ErrorTypeName(http.ClassifyError(e.Error))).
			Err(e.Error).Msg("Operation failed")
	case *events.CompleteEvent:
		log.Debug().Str("op", e.Operation).Str("label", e.Label).Int("items", e.Items).
			Dur("duration", e.Duration).Msg("Operation complete")
	case *events.ConfigChangedEvent:
		log.Debug().Str("path", e.Path).Str("default", e.DefaultConnection).
			Strs("connections", e.Connections).Msg("Profile changed")
	}
}
