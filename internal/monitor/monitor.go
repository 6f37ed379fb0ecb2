// Package monitor periodically writes a human readable status file.
package monitor

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/trainmap/trainmap/internal/sim"
)

// StatusFileName is written into the logs directory.
const StatusFileName = "status.json"

// Dependencies holds all dependencies for the monitor service
type Dependencies struct {
	Stats  func() sim.Stats
	Logger *slog.Logger
	Dir    string

	// Pending, when set, reports queued work per component
	// (staged commands, journal rows).
	Pending func() map[string]int
}

// Status is the content of the status file.
type Status struct {
	Time      time.Time      `json:"time"`
	Tick      uint64         `json:"tick"`
	TickAt    time.Time      `json:"tickAt"`
	Sensed    int            `json:"sensed"`
	Simulated int            `json:"simulated"`
	Snapshots uint64         `json:"snapshots"`
	Arrivals  uint64         `json:"arrivals"`
	Evictions uint64         `json:"evictions"`
	Rejected  uint64         `json:"rejectedSpawns"`
	Pending   map[string]int `json:"pending,omitempty"`
}

// Service manages status monitoring
type Service struct {
	deps      Dependencies
	isRunning bool
	mu        sync.RWMutex
	stopChan  chan struct{}
	done      chan struct{}
}

// NewService creates a new monitor service
func NewService(deps Dependencies) *Service {
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}
	return &Service{deps: deps}
}

// IsRunning returns whether the status monitor is running
func (s *Service) IsRunning() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.isRunning
}

// Path returns the status file path.
func (s *Service) Path() string {
	return filepath.Join(s.deps.Dir, StatusFileName)
}

// GetStatus collects the current status.
func (s *Service) GetStatus() Status {
	st := s.deps.Stats()
	out := Status{
		Time:      time.Now(),
		Tick:      st.Tick,
		TickAt:    st.At,
		Sensed:    st.Sensed,
		Simulated: st.Simulated,
		Snapshots: st.Snapshots,
		Arrivals:  st.Arrivals,
		Evictions: st.Evictions,
		Rejected:  st.Rejected,
	}
	if s.deps.Pending != nil {
		out.Pending = s.deps.Pending()
	}
	return out
}

// WriteStatus replaces the status file with the current status.
func (s *Service) WriteStatus() error {
	data, err := json.MarshalIndent(s.GetStatus(), "", "  ")
	if err != nil {
		return fmt.Errorf("encoding status: %w", err)
	}
	tmp := s.Path() + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("writing status: %w", err)
	}
	return os.Rename(tmp, s.Path())
}

// Start starts the status monitor goroutine
func (s *Service) Start(interval time.Duration) error {
	if interval <= 0 {
		return fmt.Errorf("monitor interval must be positive, got %s", interval)
	}

	s.mu.Lock()
	if s.isRunning {
		s.mu.Unlock()
		return nil
	}
	s.isRunning = true
	s.stopChan = make(chan struct{})
	s.done = make(chan struct{})
	stop, done := s.stopChan, s.done
	s.mu.Unlock()

	go func() {
		defer close(done)
		defer func() {
			s.mu.Lock()
			s.isRunning = false
			s.mu.Unlock()
		}()

		s.deps.Logger.Debug("Starting status monitor", "path", s.Path(), "interval", interval)

		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		for {
			select {
			case <-stop:
				return
			case <-ticker.C:
				if err := s.WriteStatus(); err != nil {
					s.deps.Logger.Error("Error writing status file", "error", err)
				}
			}
		}
	}()

	return nil
}

// Stop stops the status monitor and waits for it to exit.
func (s *Service) Stop() {
	s.mu.Lock()
	if !s.isRunning {
		s.mu.Unlock()
		return
	}
	close(s.stopChan)
	done := s.done
	s.mu.Unlock()
	<-done
}
