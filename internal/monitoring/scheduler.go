package monitoring

import (
	"fmt"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog/log"
)

// Purger drops expired cache entries and reports how many it removed.
type Purger interface {
	PurgeExpired() int
}

// CacheJanitor periodically sweeps expired entries out of the post cache so
// owners who stop reading do not hold capacity until they are evicted.
type CacheJanitor struct {
	purger Purger
	cron   *cron.Cron
}

// NewCacheJanitor creates a janitor that runs on schedule, a standard cron
// expression or descriptor such as "@every 1m".
func NewCacheJanitor(purger Purger, schedule string) (*CacheJanitor, error) {
	j := &CacheJanitor{purger: purger, cron: cron.New()}
	if _, err := j.cron.AddFunc(schedule, j.Sweep); err != nil {
		return nil, fmt.Errorf("invalid janitor schedule %q: %w", schedule, err)
	}
	return j, nil
}

// Run starts the cron loop in its own goroutine.
func (j *CacheJanitor) Run() {
	log.Info().Msg("Starting cache janitor...")
	j.cron.Start()
}

// Stop halts the janitor and waits for a running sweep to finish.
func (j *CacheJanitor) Stop() {
	<-j.cron.Stop().Done()
	log.Info().Msg("Stopped cache janitor.")
}

// Sweep purges once.
func (j *CacheJanitor) Sweep() {
	if purged := j.purger.PurgeExpired(); purged > 0 {
		log.Debug().Int("purged", purged).Msg("Cache janitor removed expired entries")
	}
}
