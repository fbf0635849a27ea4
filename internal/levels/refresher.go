package levels

import (
	"context"
	"time"

	"github.com/go-co-op/gocron"
	"github.com/rs/zerolog"

	"kcu-coach-engine/internal/coach"
)

// ContextUpdater pushes refreshed level snapshots into live coaching
// contexts. Satisfied by coach.Engine.
type ContextUpdater interface {
	ActiveSymbols() []string
	UpdateLevels(symbol string, levels coach.KeyLevels)
}

// Refresher periodically re-fetches key levels for every symbol under
// active coaching, updating both the cache and the live contexts.
type Refresher struct {
	cron     *gocron.Scheduler
	source   Source
	cache    *Cache
	updater  ContextUpdater
	interval time.Duration
	logger   zerolog.Logger
}

// NewRefresher creates a refresher. It does nothing until Start is called.
func NewRefresher(source Source, cache *Cache, updater ContextUpdater, interval time.Duration, logger zerolog.Logger) *Refresher {
	return &Refresher{
		cron:     gocron.NewScheduler(time.UTC),
		source:   source,
		cache:    cache,
		updater:  updater,
		interval: interval,
		logger:   logger.With().Str("component", "LevelsRefresher").Logger(),
	}
}

// Start schedules the refresh job and runs the scheduler in the background.
func (r *Refresher) Start() {
	r.cron.Every(r.interval).Do(func() {
		r.refreshAll()
	})
	r.cron.StartAsync()
	r.logger.Info().Dur("interval", r.interval).Msg("Levels refresher started")
}

// Stop halts the scheduler.
func (r *Refresher) Stop() {
	r.cron.Stop()
	r.logger.Info().Msg("Levels refresher stopped")
}

// refreshAll fetches a fresh snapshot per active symbol. A failed fetch
// leaves the previous snapshot in place.
func (r *Refresher) refreshAll() {
	symbols := r.updater.ActiveSymbols()
	if len(symbols) == 0 {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), r.interval)
	defer cancel()

	for _, symbol := range symbols {
		levels, err := r.source.Fetch(ctx, symbol)
		if err != nil {
			r.logger.Warn().Err(err).Str("symbol", symbol).Msg("Levels refresh failed, keeping previous snapshot")
			continue
		}

		r.cache.Set(ctx, symbol, levels)
		r.updater.UpdateLevels(symbol, levels)
		r.logger.Debug().Str("symbol", symbol).Float64("vwap", levels.VWAP).Msg("Levels refreshed")
	}
}
