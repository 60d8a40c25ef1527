package state

import (
	"fmt"
	"log"

	"github.com/robfig/cron/v3"
)

// Sweeper periodically clears stale text from a Store.
type Sweeper struct {
	store *Store
	cron  *cron.Cron
}

// NewSweeper schedules store.Sweep on spec (for example "@every 1s").
func NewSweeper(store *Store, spec string) (*Sweeper, error) {
	c := cron.New()
	if _, err := c.AddFunc(spec, func() {
		if cleared := store.Sweep(); len(cleared) > 0 {
			log.Printf("state: cleared stale text for %d user(s)", len(cleared))
		}
	}); err != nil {
		return nil, fmt.Errorf("state: schedule sweep %q: %w", spec, err)
	}
	return &Sweeper{store: store, cron: c}, nil
}

// Start begins running the sweep in the background.
func (w *Sweeper) Start() { w.cron.Start() }

// Stop halts the schedule and waits for a running sweep to finish.
func (w *Sweeper) Stop() { <-w.cron.Stop().Done() }
