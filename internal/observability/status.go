package observability

import (
	"sync"
	"time"
)

type Phase string

const (
	PhaseIdle        Phase = "IDLE"
	PhaseDecomposing Phase = "DECOMPOSING"
)

type SystemStatus struct {
	mu            sync.RWMutex
	Active        int
	LastNeuroType string
	LastHeartbeat time.Time
}

var globalStatus = &SystemStatus{
	LastHeartbeat: time.Now(),
}

// BeginDecomposition marks one request in flight. Call the returned func when it ends.
func BeginDecomposition(neuroType string) func() {
	globalStatus.mu.Lock()
	globalStatus.Active++
	globalStatus.LastNeuroType = neuroType
	globalStatus.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			globalStatus.mu.Lock()
			globalStatus.Active--
			globalStatus.mu.Unlock()
		})
	}
}

// GetStatus retrieves a copy of the global system status.
func GetStatus() (Phase, int, time.Time) {
	globalStatus.mu.RLock()
	defer globalStatus.mu.RUnlock()
	phase := PhaseIdle
	if globalStatus.Active > 0 {
		phase = PhaseDecomposing
	}
	return phase, globalStatus.Active, globalStatus.LastHeartbeat
}

// Heartbeat updates the last heartbeat time.
func Heartbeat() {
	globalStatus.mu.Lock()
	defer globalStatus.mu.Unlock()
	globalStatus.LastHeartbeat = time.Now()
}
