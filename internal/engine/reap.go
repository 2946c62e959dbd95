package engine

import (
	"time"

	"github.com/conveyr/conveyr/internal/store"
)

// ReleaseExpiredClaims returns tasks whose claim lock expired before now to
// the queued status so other agents can pick them up. Each release is its own
// version CAS, so a submit racing the reaper keeps its result.
func (e *Engine) ReleaseExpiredClaims(now time.Time) ([]string, error) {
	queuedID, err := e.store.RequireStatus(store.StatusQueued)
	if err != nil {
		return nil, err
	}
	released, err := e.store.ReleaseExpiredClaims(now, queuedID)
	if err != nil {
		return released, err
	}
	for _, id := range released {
		if err := e.store.AppendState(&store.ItemState{
			ItemID:        id,
			StatusValueID: queuedID,
			StatusCode:    store.StatusQueued,
			Note:          "claim expired, returned to queue",
		}); err != nil {
			return released, err
		}
		e.activity.Record("", id, "task.claim_expired", "")
	}
	if len(released) > 0 {
		if e.metrics != nil {
			e.metrics.ClaimsReleased(len(released))
		}
		e.logger.Info("expired claims released", "count", len(released))
	}
	return released, nil
}
