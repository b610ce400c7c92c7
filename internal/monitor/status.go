package monitor

import (
	"sync"
	"time"
)

// Zone health states reported by the status registry.
const (
	StateOK    = "ok"
	StateStale = "stale"
	StateError = "error"
)

// ZoneStatus is the last known health of one monitored zone.
type ZoneStatus struct {
	ZoneID              string     `json:"zone_id"`
	State               string     `json:"state"`
	ConsecutiveFailures int        `json:"consecutive_failures"`
	LastChecked         *time.Time `json:"last_checked,omitempty"`
	LastSuccess         *time.Time `json:"last_success,omitempty"`
	LastError           string     `json:"last_error,omitempty"`

	// cadence is the sweep interval serving this zone; a healthy zone whose
	// last success is older than twice this reads back as stale.
	cadence time.Duration
}

// StatusRegistry tracks per-zone health across cycles. It is safe for
// concurrent use by the worker pool and the status API.
type StatusRegistry struct {
	mu    sync.RWMutex
	zones map[string]*ZoneStatus

	now func() time.Time
}

func NewStatusRegistry() *StatusRegistry {
	return &StatusRegistry{zones: make(map[string]*ZoneStatus), now: time.Now}
}

func (r *StatusRegistry) get(zoneID string) *ZoneStatus {
	status, ok := r.zones[zoneID]
	if !ok {
		status = &ZoneStatus{ZoneID: zoneID, State: StateStale}
		r.zones[zoneID] = status
	}
	return status
}

// RecordSuccess marks a zone healthy and clears its failure counter.
func (r *StatusRegistry) RecordSuccess(zoneID string, at time.Time) {
	r.mu.Lock()
	defer r.mu.Unlock()

	status := r.get(zoneID)
	status.State = StateOK
	status.ConsecutiveFailures = 0
	status.LastChecked = &at
	status.LastSuccess = &at
	status.LastError = ""
}

// RecordFailure marks a zone failed and returns the new consecutive failure
// count.
func (r *StatusRegistry) RecordFailure(zoneID string, at time.Time, cause error) int {
	r.mu.Lock()
	defer r.mu.Unlock()

	status := r.get(zoneID)
	status.State = StateError
	status.ConsecutiveFailures++
	status.LastChecked = &at
	if cause != nil {
		status.LastError = cause.Error()
	}
	return status.ConsecutiveFailures
}

// SetCadence records the sweep interval serving a zone so staleness can be
// judged against it at read time.
func (r *StatusRegistry) SetCadence(zoneID string, cadence time.Duration) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.get(zoneID).cadence = cadence
}

// ResetFailures clears a zone's failure counter without changing its state,
// used when the backoff window has been fully served.
func (r *StatusRegistry) ResetFailures(zoneID string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.get(zoneID).ConsecutiveFailures = 0
}

// Failures returns the current consecutive failure count for a zone.
func (r *StatusRegistry) Failures(zoneID string) int {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if status, ok := r.zones[zoneID]; ok {
		return status.ConsecutiveFailures
	}
	return 0
}

// snapshot copies one entry, downgrading a healthy zone to stale when its
// last success has aged past twice the sweep cadence serving it.
func (r *StatusRegistry) snapshot(status *ZoneStatus) ZoneStatus {
	out := *status
	if out.State == StateOK && out.LastSuccess != nil && out.cadence > 0 &&
		r.now().Sub(*out.LastSuccess) > 2*out.cadence {
		out.State = StateStale
	}
	return out
}

// Get returns the status for one zone.
func (r *StatusRegistry) Get(zoneID string) (ZoneStatus, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	status, ok := r.zones[zoneID]
	if !ok {
		return ZoneStatus{}, false
	}
	return r.snapshot(status), true
}

// All returns a snapshot of every tracked zone.
func (r *StatusRegistry) All() []ZoneStatus {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]ZoneStatus, 0, len(r.zones))
	for _, status := range r.zones {
		out = append(out, r.snapshot(status))
	}
	return out
}
