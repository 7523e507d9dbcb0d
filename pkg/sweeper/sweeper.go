package sweeper

import (
	"context"
	"sync"
	"time"

	"github.com/ItsMariusBC/TrainStats/pkg/config"
	"github.com/ItsMariusBC/TrainStats/pkg/journeys"
	"github.com/ItsMariusBC/TrainStats/pkg/log"
)

// Settings are the runtime-adjustable knobs of the sweep loop.
type Settings struct {
	Enabled         bool `json:"auto_update_enabled"`
	IntervalSeconds int  `json:"check_interval_seconds"`
}

// Manager drives periodic status sweeps so journeys start and complete on
// schedule even when nobody is looking at the dashboard.
type Manager struct {
	journeys *journeys.Service
	logger   *log.Logger
	stopCh   chan struct{}
	reload   chan time.Duration
	wg       sync.WaitGroup

	mu       sync.Mutex
	settings Settings
}

// NewManager creates a new sweep manager
func NewManager(cfg *config.Config, svc *journeys.Service, logger *log.Logger) *Manager {
	return &Manager{
		journeys: svc,
		logger:   logger,
		stopCh:   make(chan struct{}),
		reload:   make(chan time.Duration, 1),
		settings: Settings{
			Enabled:         cfg.Sweeper.Enabled,
			IntervalSeconds: cfg.Sweeper.IntervalSeconds,
		},
	}
}

// Settings returns the current sweep settings.
func (m *Manager) Settings() Settings {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.settings
}

// UpdateSettings changes the sweep settings at runtime. A new interval takes
// effect on the running loop without a restart.
func (m *Manager) UpdateSettings(enabled *bool, intervalSeconds *int) Settings {
	m.mu.Lock()
	if enabled != nil {
		m.settings.Enabled = *enabled
	}
	if intervalSeconds != nil {
		m.settings.IntervalSeconds = *intervalSeconds
	}
	updated := m.settings
	m.mu.Unlock()

	if intervalSeconds != nil {
		select {
		case m.reload <- m.interval():
		default:
		}
	}

	m.logger.WithField("enabled", updated.Enabled).
		WithField("interval_seconds", updated.IntervalSeconds).
		Info("Sweeper settings updated")
	return updated
}

func (m *Manager) interval() time.Duration {
	m.mu.Lock()
	defer m.mu.Unlock()
	interval := time.Duration(m.settings.IntervalSeconds) * time.Second
	if interval <= 0 {
		interval = time.Minute
	}
	return interval
}

func (m *Manager) enabled() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.settings.Enabled
}

// Start launches the background sweep loop. The loop runs even when sweeping
// is disabled so a runtime settings change can switch it on.
func (m *Manager) Start(ctx context.Context) {
	if m.enabled() {
		m.logger.WithField("interval", m.interval().String()).Info("Starting status sweeper")
	} else {
		m.logger.Info("Status sweeper disabled")
	}

	m.wg.Add(1)
	go m.run(ctx)
}

// Stop stops the sweep loop and waits for an in-flight sweep to finish.
func (m *Manager) Stop() {
	close(m.stopCh)
	m.wg.Wait()
	m.logger.Info("Status sweeper stopped")
}

func (m *Manager) run(ctx context.Context) {
	defer m.wg.Done()

	ticker := time.NewTicker(m.interval())
	defer ticker.Stop()

	// Sweep once at startup to catch transitions missed while down.
	m.sweep()

	for {
		select {
		case <-ctx.Done():
			m.logger.Info("Status sweeper stopped by context")
			return
		case <-m.stopCh:
			return
		case interval := <-m.reload:
			ticker.Reset(interval)
		case <-ticker.C:
			m.sweep()
		}
	}
}

func (m *Manager) sweep() {
	if !m.enabled() {
		return
	}

	start := time.Now()

	result, err := m.journeys.Sweep(start)
	if err != nil {
		m.logger.WithError(err).Error("Status sweep failed")
		return
	}

	if result.Started > 0 || result.Completed > 0 {
		m.logger.LogSweep(result.Started, result.Completed, time.Since(start).Milliseconds())
	}
}
