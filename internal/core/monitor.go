package core

import (
	"log/slog"
	"time"
)

// monitor logs pipeline progress periodically until stopped, so long
// runs stay observable between start and summary. It only reads the
// shared counters through their snapshot.
func (p *Processor) monitor(stop <-chan struct{}) {
	ticker := time.NewTicker(p.monitorEvery)
	defer ticker.Stop()

	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			st := p.Stats()
			slog.Info("core: progress",
				"trace_id", p.traceID,
				"blocks", st.Blocks,
				"images", st.Images,
				"samples", st.Samples,
			)
		}
	}
}
