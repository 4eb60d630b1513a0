package monitor

import (
	"errors"
	"log/slog"
	"runtime"
	"sync"
	"time"

	"github.com/OCAP2/tickbridge/pkg/bridge"
)

// Status is a snapshot of the process runtime.
type Status struct {
	Time       time.Time `json:"time"`
	Goroutines int       `json:"goroutines"`
	HeapAlloc  uint64    `json:"heapAlloc"`
	NumGC      uint32    `json:"numGC"`
}

// Dependencies holds all dependencies for the monitor service
type Dependencies struct {
	Sender   *bridge.Sender[Status]
	Logger   *slog.Logger
	Interval time.Duration
}

// Service samples runtime statistics on its own goroutine and hands each
// Status to the tick loop through a bridge sender.
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
	if deps.Interval <= 0 {
		deps.Interval = time.Second
	}
	return &Service{deps: deps}
}

// IsRunning returns whether the status monitor is running
func (s *Service) IsRunning() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.isRunning
}

// Sample reads the current runtime statistics.
func Sample() Status {
	var ms runtime.MemStats
	runtime.ReadMemStats(&ms)
	return Status{
		Time:       time.Now(),
		Goroutines: runtime.NumGoroutine(),
		HeapAlloc:  ms.HeapAlloc,
		NumGC:      ms.NumGC,
	}
}

// Start starts the status monitor goroutine. The goroutine owns a clone of
// the sender and releases it when it exits.
func (s *Service) Start() error {
	if s.deps.Sender == nil {
		return errors.New("monitor: no status sender")
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

	tx := s.deps.Sender.Clone()

	go func() {
		defer close(done)
		defer tx.Close()

		logger := s.deps.Logger
		logger.Debug("Starting status monitor goroutine", "interval", s.deps.Interval)

		ticker := time.NewTicker(s.deps.Interval)
		defer ticker.Stop()

		for {
			select {
			case <-stop:
				logger.Debug("Status monitor stopped")
				return
			case <-ticker.C:
				tx.Send(Sample())
			}
		}
	}()

	return nil
}

// Stop stops the status monitor and waits for its goroutine to exit.
func (s *Service) Stop() {
	s.mu.Lock()
	if !s.isRunning {
		s.mu.Unlock()
		return
	}
	s.isRunning = false
	close(s.stopChan)
	done := s.done
	s.mu.Unlock()

	<-done
}
