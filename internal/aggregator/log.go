package aggregator

import "codeberg.org/mutker/anemone/internal/logger"

func (a *Aggregator) logSession(msg string) {
	counters := a.queue.Counters()

	logger.Debug().
		Int("reports", a.session.Len()).
		Int("points", a.session.Points()).
		Int("queue_depth", a.queue.Len()).
		Uint64("queued", counters.Pushed).
		Uint64("dropped", counters.Dropped).
		Msg(msg)
}
