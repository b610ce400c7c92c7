// Package monitor drives the periodic refresh of all registered zones. A
// fast cadence revisits high-priority zones, a slower one sweeps everything;
// each cycle fans zones out over a bounded worker pool.
package monitor

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/satwatch/satwatch-go/internal/conf"
	"github.com/satwatch/satwatch-go/internal/datastore"
	"github.com/satwatch/satwatch-go/internal/imagecache"
	"github.com/satwatch/satwatch-go/internal/logging"
	"github.com/satwatch/satwatch-go/internal/observability/metrics"
	"github.com/satwatch/satwatch-go/internal/provider"
)

// Sweep kinds, also used as metric labels.
const (
	SweepPriority = "priority"
	SweepFull     = "full"
)

// Scheduler owns the sweep timers, the worker pool and the per-zone backoff
// state.
type Scheduler struct {
	settings *conf.Settings
	store    datastore.Interface
	searcher provider.Searcher
	fetcher  provider.Fetcher
	cache    *imagecache.Cache
	metrics  *metrics.MonitorMetrics
	status   *StatusRegistry
	logger   *slog.Logger

	inFlight sync.Map // zone id -> struct{}, guards against overlapping sweeps

	mu       sync.Mutex
	deferred map[string]int // zone id -> cycles left to skip after failures

	now func() time.Time
}

// New wires a scheduler from its collaborators. The metrics argument may be
// nil.
func New(settings *conf.Settings, store datastore.Interface, searcher provider.Searcher,
	fetcher provider.Fetcher, cache *imagecache.Cache, monitorMetrics *metrics.MonitorMetrics) *Scheduler {
	return &Scheduler{
		settings: settings,
		store:    store,
		searcher: searcher,
		fetcher:  fetcher,
		cache:    cache,
		metrics:  monitorMetrics,
		status:   NewStatusRegistry(),
		logger:   logging.ForService("monitor"),
		deferred: make(map[string]int),
		now:      time.Now,
	}
}

// Status exposes the per-zone health registry, consumed by the HTTP API.
func (s *Scheduler) Status() *StatusRegistry {
	return s.status
}

// Run blocks until the context is cancelled, executing a full sweep
// immediately and then alternating between the two cadences. The priority
// cadence must be shorter than the full one; validation enforces that before
// the scheduler is built.
func (s *Scheduler) Run(ctx context.Context) error {
	if removed, err := s.cache.PruneOrphans(); err != nil {
		s.logger.Warn("Artifact pruning failed", "error", err)
	} else if removed > 0 {
		s.logger.Info("Removed stale artifacts at startup", "count", removed)
	}

	priorityInterval := time.Duration(s.settings.Monitor.PrioritySweep) * time.Minute
	fullInterval := time.Duration(s.settings.Monitor.FullSweep) * time.Minute

	s.logger.Info("Scheduler started",
		"priority_sweep", priorityInterval.String(),
		"full_sweep", fullInterval.String(),
		"workers", s.settings.Monitor.Workers)

	s.RunCycle(ctx, SweepFull)

	priorityTicker := time.NewTicker(priorityInterval)
	defer priorityTicker.Stop()
	fullTicker := time.NewTicker(fullInterval)
	defer fullTicker.Stop()

	for {
		select {
		case <-ctx.Done():
			s.logger.Info("Scheduler stopped")
			return ctx.Err()
		case <-fullTicker.C:
			s.RunCycle(ctx, SweepFull)
		case <-priorityTicker.C:
			s.RunCycle(ctx, SweepPriority)
		}
	}
}

// cadenceFor returns the sweep interval serving a zone of the given priority.
func (s *Scheduler) cadenceFor(priority string) time.Duration {
	if priority == datastore.PriorityHigh {
		return time.Duration(s.settings.Monitor.PrioritySweep) * time.Minute
	}
	return time.Duration(s.settings.Monitor.FullSweep) * time.Minute
}

// deferralTicket consumes one skip credit for a zone if it has any, reporting
// whether the zone should sit this cycle out.
func (s *Scheduler) deferralTicket(zoneID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	remaining, ok := s.deferred[zoneID]
	if !ok || remaining <= 0 {
		return false
	}
	if remaining == 1 {
		delete(s.deferred, zoneID)
	} else {
		s.deferred[zoneID] = remaining - 1
	}
	return true
}

// applyBackoff schedules skip cycles after a failure: 1, 2, 4, ... doubling
// per consecutive failure. Once the failure count reaches the configured
// ceiling the counter resets so the zone gets a clean retry.
func (s *Scheduler) applyBackoff(zoneID string, failures int) {
	if failures >= s.settings.Monitor.MaxZoneFailures {
		s.status.ResetFailures(zoneID)
		s.mu.Lock()
		delete(s.deferred, zoneID)
		s.mu.Unlock()
		s.logger.Warn("Zone failure ceiling reached, resetting backoff", "zone_id", zoneID)
		return
	}

	skip := 1 << (failures - 1)
	s.mu.Lock()
	s.deferred[zoneID] = skip
	s.mu.Unlock()
	s.logger.Debug("Zone backoff applied", "zone_id", zoneID, "skip_cycles", skip)
}
