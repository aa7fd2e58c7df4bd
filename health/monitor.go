package health

import (
	"encoding/json"
	"net/http"
	"sort"
	"sync"
)

// CheckFunc produces a component's current status on demand. Checks must be
// cheap: they run on every probe request.
type CheckFunc func() Status

// Monitor aggregates component health. Components either push statuses with
// Update or register a CheckFunc evaluated per probe.
type Monitor struct {
	mu       sync.RWMutex
	statuses map[string]Status
	checks   map[string]CheckFunc
}

// NewMonitor creates an empty monitor.
func NewMonitor() *Monitor {
	return &Monitor{
		statuses: make(map[string]Status),
		checks:   make(map[string]CheckFunc),
	}
}

// Update records a pushed status for a component.
func (m *Monitor) Update(name string, status Status) {
	m.mu.Lock()
	defer m.mu.Unlock()
	status.Component = name
	m.statuses[name] = status
}

// RegisterCheck registers a live check for a component. A registered check
// shadows any pushed status under the same name.
func (m *Monitor) RegisterCheck(name string, check CheckFunc) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.checks[name] = check
}

// Get returns the current status of one component.
func (m *Monitor) Get(name string) (Status, bool) {
	m.mu.RLock()
	check, hasCheck := m.checks[name]
	status, hasStatus := m.statuses[name]
	m.mu.RUnlock()

	if hasCheck {
		s := check()
		s.Component = name
		return s, true
	}
	return status, hasStatus
}

// Aggregate evaluates every component and folds the results into a single
// system status: unhealthy if any component is unhealthy, degraded if any is
// degraded, healthy otherwise.
func (m *Monitor) Aggregate(systemName string) Status {
	m.mu.RLock()
	names := make([]string, 0, len(m.statuses)+len(m.checks))
	for name := range m.statuses {
		if _, shadowed := m.checks[name]; !shadowed {
			names = append(names, name)
		}
	}
	for name := range m.checks {
		names = append(names, name)
	}
	m.mu.RUnlock()
	sort.Strings(names)

	agg := Healthy(systemName, "")
	for _, name := range names {
		s, ok := m.Get(name)
		if !ok {
			continue
		}
		agg.SubStatuses = append(agg.SubStatuses, s)
		switch s.Status {
		case StatusUnhealthy:
			agg.Status = StatusUnhealthy
			agg.Healthy = false
		case StatusDegraded:
			if agg.Status != StatusUnhealthy {
				agg.Status = StatusDegraded
				agg.Healthy = false
			}
		}
	}
	return agg
}

// Handler serves the aggregate as JSON: 200 when healthy or degraded, 503
// when unhealthy. Degraded keeps traffic flowing so a cold cache never
// drops an instance out of rotation.
func (m *Monitor) Handler(systemName string) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		agg := m.Aggregate(systemName)

		w.Header().Set("Content-Type", "application/json")
		if agg.Status == StatusUnhealthy {
			w.WriteHeader(http.StatusServiceUnavailable)
		}
		if err := json.NewEncoder(w).Encode(agg); err != nil {
			http.Error(w, "encode health status", http.StatusInternalServerError)
		}
	})
}
