package monitor

import (
	"context"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/satwatch/satwatch-go/internal/datastore"
	"github.com/satwatch/satwatch-go/internal/errors"
	"github.com/satwatch/satwatch-go/internal/imagecache"
	"github.com/satwatch/satwatch-go/internal/provider"
)

// Zone refresh outcomes within one cycle.
const (
	ResultSuccess = "success"
	ResultSkipped = "skipped"
	ResultError   = "error"
)

// ZoneResult is the outcome of one zone refresh attempt.
type ZoneResult struct {
	ZoneID string
	Status string
	Reason string
	Err    error
}

// CycleSummary aggregates the results of one sweep.
type CycleSummary struct {
	Kind      string
	Started   time.Time
	Duration  time.Duration
	Zones     int
	Succeeded int
	Skipped   int
	Failed    int
	// AuthFailed is set when credentials were rejected; remaining zones were
	// abandoned since they would all fail identically.
	AuthFailed bool
}

// RunCycle sweeps either the high-priority zones or all zones once. Zones are
// processed stalest-first by a bounded worker pool under a soft deadline; one
// zone failing never blocks the others, but a credential rejection aborts the
// rest of the cycle.
func (s *Scheduler) RunCycle(ctx context.Context, kind string) CycleSummary {
	started := s.now()
	summary := CycleSummary{Kind: kind, Started: started}

	priority := ""
	if kind == SweepPriority {
		priority = datastore.PriorityHigh
	}

	zones, err := s.store.GetZones(priority)
	if err != nil {
		s.logger.Error("Failed to load zones for sweep", "kind", kind, "error", err)
		return summary
	}
	summary.Zones = len(zones)
	if s.metrics != nil {
		s.metrics.RecordCycle(kind)
		s.metrics.SetZonesMonitored(float64(len(zones)))
	}
	if len(zones) == 0 {
		return summary
	}
	for i := range zones {
		s.status.SetCadence(zones[i].ID, s.cadenceFor(zones[i].Priority))
	}

	cycleCtx := ctx
	var cancel context.CancelFunc
	if s.settings.Monitor.CycleTimeout > 0 {
		cycleCtx, cancel = context.WithTimeout(ctx, time.Duration(s.settings.Monitor.CycleTimeout)*time.Minute)
		defer cancel()
	}

	group, groupCtx := errgroup.WithContext(cycleCtx)
	group.SetLimit(s.settings.Monitor.Workers)

	var authFailed atomic.Bool
	results := make([]ZoneResult, len(zones))

	for i := range zones {
		zone := zones[i]
		index := i
		group.Go(func() error {
			if authFailed.Load() {
				results[index] = ZoneResult{ZoneID: zone.ID, Status: ResultSkipped, Reason: "auth_failed"}
				return nil
			}
			if groupCtx.Err() != nil {
				results[index] = ZoneResult{ZoneID: zone.ID, Status: ResultSkipped, Reason: "deadline"}
				return nil
			}

			result := s.refreshZone(groupCtx, &zone)
			results[index] = result

			if result.Err != nil && errors.Is(result.Err, provider.ErrAuthRejected) {
				authFailed.Store(true)
			}
			return nil
		})
	}
	_ = group.Wait()

	for i := range results {
		switch results[i].Status {
		case ResultSuccess:
			summary.Succeeded++
		case ResultError:
			summary.Failed++
		default:
			summary.Skipped++
		}
		if s.metrics != nil {
			s.metrics.RecordZoneResult(results[i].Status)
		}
	}
	summary.AuthFailed = authFailed.Load()
	summary.Duration = s.now().Sub(started)
	if s.metrics != nil {
		s.metrics.RecordCycleDuration(kind, summary.Duration.Seconds())
	}

	s.logger.Info("Sweep finished",
		"kind", kind,
		"zones", summary.Zones,
		"succeeded", summary.Succeeded,
		"skipped", summary.Skipped,
		"failed", summary.Failed,
		"duration", summary.Duration.Round(time.Millisecond).String(),
		"auth_failed", summary.AuthFailed)
	return summary
}

// refreshZone runs the search-fetch-cache pipeline for one zone and reports
// the outcome. All skip conditions are checked before any network traffic.
func (s *Scheduler) refreshZone(ctx context.Context, zone *datastore.Zone) ZoneResult {
	if _, busy := s.inFlight.LoadOrStore(zone.ID, struct{}{}); busy {
		return ZoneResult{ZoneID: zone.ID, Status: ResultSkipped, Reason: "in_flight"}
	}
	defer s.inFlight.Delete(zone.ID)

	if s.deferralTicket(zone.ID) {
		if s.metrics != nil {
			s.metrics.RecordZoneDeferred()
		}
		return ZoneResult{ZoneID: zone.ID, Status: ResultSkipped, Reason: "backoff"}
	}

	minInterval := time.Duration(s.settings.Monitor.MinRefreshInterval) * time.Minute
	if zone.LastRefreshedAt != nil && s.now().Sub(*zone.LastRefreshedAt) < minInterval {
		return ZoneResult{ZoneID: zone.ID, Status: ResultSkipped, Reason: "recently_refreshed"}
	}

	if s.cache.HasRecentNoImagery(zone.ID) {
		return ZoneResult{ZoneID: zone.ID, Status: ResultSkipped, Reason: "no_imagery_cached"}
	}

	candidates, err := s.searcher.SearchCatalog(ctx, provider.SearchRequest{
		BBox:          zone.BBox(),
		LookbackDays:  s.settings.Monitor.LookbackDays,
		MaxCloudCover: s.settings.Monitor.MaxCloudCover,
	})
	if err != nil {
		return s.zoneFailed(zone.ID, err)
	}

	checked := s.now()
	if len(candidates) == 0 {
		// Nothing usable in the lookback window. Not a zone failure; remember
		// the empty result so the next few cycles skip the search.
		s.cache.MarkNoImagery(zone.ID)
		s.zoneChecked(zone.ID, checked)
		s.logger.Debug("No acceptable imagery", "zone_id", zone.ID)
		return ZoneResult{ZoneID: zone.ID, Status: ResultSuccess, Reason: "no_imagery"}
	}

	best := candidates[0]

	// Freshness pre-check saves the fetch when the catalog has nothing newer
	// than what is already cached.
	if cached, err := s.cache.Get(zone.ID); err == nil && !best.AcquisitionTime.After(cached.AcquisitionDate) {
		s.logger.Info("no fresher imagery",
			"zone_id", zone.ID,
			"cached_acquisition", cached.AcquisitionDate.Format(time.RFC3339),
			"candidate_acquisition", best.AcquisitionTime.Format(time.RFC3339))
		s.zoneChecked(zone.ID, checked)
		return ZoneResult{ZoneID: zone.ID, Status: ResultSuccess, Reason: "up_to_date"}
	}

	day := best.AcquisitionTime.UTC().Truncate(24 * time.Hour)
	image, err := s.fetcher.FetchImage(ctx, provider.FetchRequest{
		BBox:          zone.BBox(),
		From:          day,
		To:            day.Add(24 * time.Hour),
		Width:         s.settings.Imagery.Width,
		Height:        s.settings.Imagery.Height,
		Format:        s.settings.Imagery.Format,
		Script:        s.settings.Imagery.Script,
		MaxCloudCover: s.settings.Monitor.MaxCloudCover,
	})
	if err != nil {
		return s.zoneFailed(zone.ID, err)
	}

	_, err = s.cache.Upsert(zone.ID, image.Bytes, imagecache.Metadata{
		Width:           s.settings.Imagery.Width,
		Height:          s.settings.Imagery.Height,
		Format:          s.settings.Imagery.Format,
		AcquisitionDate: best.AcquisitionTime,
		CloudCover:      best.CloudCover,
		Provider:        s.settings.Provider.Name,
		Collection:      best.Collection,
	})
	switch {
	case errors.Is(err, imagecache.ErrNotFresher):
		s.zoneChecked(zone.ID, checked)
		return ZoneResult{ZoneID: zone.ID, Status: ResultSuccess, Reason: "up_to_date"}
	case err != nil:
		return s.zoneFailed(zone.ID, err)
	}

	s.zoneChecked(zone.ID, checked)
	s.logger.Info("Zone refreshed",
		"zone_id", zone.ID,
		"zone", zone.Name,
		"acquisition", best.AcquisitionTime.Format(time.RFC3339),
		"cloud_cover", best.CloudCover)
	return ZoneResult{ZoneID: zone.ID, Status: ResultSuccess, Reason: "refreshed"}
}

// zoneChecked records a healthy pass and advances the zone's refresh stamp so
// the staleness ordering and the min-interval skip both see it.
func (s *Scheduler) zoneChecked(zoneID string, at time.Time) {
	s.status.RecordSuccess(zoneID, at)
	if err := s.store.UpdateZoneRefreshedAt(zoneID, at); err != nil {
		s.logger.Warn("Failed to update zone refresh stamp", "zone_id", zoneID, "error", err)
	}
}

func (s *Scheduler) zoneFailed(zoneID string, cause error) ZoneResult {
	failures := s.status.RecordFailure(zoneID, s.now(), cause)
	s.applyBackoff(zoneID, failures)
	reason := string(errors.CategoryGeneric)
	var enhanced *errors.EnhancedError
	if errors.As(cause, &enhanced) {
		reason = enhanced.GetCategory()
	}
	s.logger.Error("Zone refresh failed",
		"zone_id", zoneID,
		"consecutive_failures", failures,
		"reason", reason,
		"error", cause)
	return ZoneResult{ZoneID: zoneID, Status: ResultError, Reason: reason, Err: cause}
}
