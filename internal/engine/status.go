package engine

import (
	"autotrader/internal/oms"
	"autotrader/internal/resiliency"
)

// VenueStatus is one adapter's connectivity in the status surface.
type VenueStatus struct {
	Name      string
	Connected bool
}

// Status is the operator-facing snapshot of the whole execution core.
type Status struct {
	Running bool
	Killed  bool

	Venues   []VenueStatus
	Circuits []resiliency.CircuitSnapshot
	DLQSize  int

	Metrics oms.PerformanceMetrics
}

// Status assembles the current snapshot. Safe to call from any goroutine.
func (e *Engine) Status() Status {
	e.mu.Lock()
	venues := make([]VenueStatus, 0, len(e.adapters))
	for _, a := range e.adapters {
		venues = append(venues, VenueStatus{Name: a.Name(), Connected: a.IsConnected()})
	}
	e.mu.Unlock()

	return Status{
		Running:  e.running.Load(),
		Killed:   e.killed.Load(),
		Venues:   venues,
		Circuits: e.res.CircuitStates(),
		DLQSize:  e.res.DLQ().Size(),
		Metrics:  e.oms.Metrics(),
	}
}
