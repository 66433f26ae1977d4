package worker

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/Klasique-art/cafa-tickets-backend/internal/metrics"
	"github.com/Klasique-art/cafa-tickets-backend/pkg/logger"
)

// Expirer expires reservations whose deadline has passed
type Expirer interface {
	ExpireStale(ctx context.Context, now time.Time, batchSize int) (int, error)
}

// ExpiryWorkerConfig contains configuration for the expiry worker
type ExpiryWorkerConfig struct {
	// ScanInterval is the interval between scans for overdue reservations
	ScanInterval time.Duration
	// BatchSize is the number of reservations expired per call
	BatchSize int
	// MaxBatchesPerScan bounds how many full batches one scan drains
	MaxBatchesPerScan int
}

// DefaultExpiryWorkerConfig returns default configuration
func DefaultExpiryWorkerConfig() *ExpiryWorkerConfig {
	return &ExpiryWorkerConfig{
		ScanInterval:      30 * time.Second,
		BatchSize:         100,
		MaxBatchesPerScan: 10,
	}
}

// ExpiryWorker periodically returns inventory held by unpaid reservations
type ExpiryWorker struct {
	expirer Expirer
	config  *ExpiryWorkerConfig
	log     *logger.Logger
	now     func() time.Time

	stopCh  chan struct{}
	wg      sync.WaitGroup
	mu      sync.Mutex
	running bool

	totalExpired     int64
	lastScanTime     time.Time
	lastExpiredCount int
}

// NewExpiryWorker creates a new expiry worker
func NewExpiryWorker(expirer Expirer, config *ExpiryWorkerConfig, log *logger.Logger) *ExpiryWorker {
	defaults := DefaultExpiryWorkerConfig()
	if config == nil {
		config = defaults
	}
	if config.ScanInterval <= 0 {
		config.ScanInterval = defaults.ScanInterval
	}
	if config.BatchSize <= 0 {
		config.BatchSize = defaults.BatchSize
	}
	if config.MaxBatchesPerScan <= 0 {
		config.MaxBatchesPerScan = defaults.MaxBatchesPerScan
	}
	if log == nil {
		log = logger.Get()
	}

	return &ExpiryWorker{
		expirer: expirer,
		config:  config,
		log:     log,
		now:     time.Now,
		stopCh:  make(chan struct{}),
	}
}

// Start starts the expiry worker
func (w *ExpiryWorker) Start(ctx context.Context) error {
	w.mu.Lock()
	if w.running {
		w.mu.Unlock()
		return fmt.Errorf("expiry worker already running")
	}
	w.running = true
	w.mu.Unlock()

	w.log.Info("starting expiry worker",
		zap.Duration("scan_interval", w.config.ScanInterval),
		zap.Int("batch_size", w.config.BatchSize),
	)

	w.wg.Add(1)
	go w.loop(ctx)

	return nil
}

// Stop stops the worker and waits for the current scan to finish
func (w *ExpiryWorker) Stop() {
	w.mu.Lock()
	if !w.running {
		w.mu.Unlock()
		return
	}
	w.running = false
	w.mu.Unlock()

	close(w.stopCh)
	w.wg.Wait()
	w.log.Info("expiry worker stopped")
}

func (w *ExpiryWorker) loop(ctx context.Context) {
	defer w.wg.Done()

	ticker := time.NewTicker(w.config.ScanInterval)
	defer ticker.Stop()

	// Run immediately on start
	w.Scan(ctx)

	for {
		select {
		case <-ctx.Done():
			return
		case <-w.stopCh:
			return
		case <-ticker.C:
			w.Scan(ctx)
		}
	}
}

// Scan expires overdue reservations, draining full batches until the backlog is gone
func (w *ExpiryWorker) Scan(ctx context.Context) int {
	now := w.now()
	total := 0
	outcome := "success"
	for i := 0; i < w.config.MaxBatchesPerScan; i++ {
		n, err := w.expirer.ExpireStale(ctx, now, w.config.BatchSize)
		total += n
		if err != nil {
			w.log.Error("failed to expire reservations", zap.Error(err))
			outcome = "error"
			break
		}
		if n < w.config.BatchSize {
			break
		}
	}

	w.mu.Lock()
	w.lastScanTime = now
	w.lastExpiredCount = total
	w.totalExpired += int64(total)
	w.mu.Unlock()

	if total > 0 {
		w.log.Info("expired reservations", zap.Int("count", total))
	}
	metrics.JobRuns.WithLabelValues("expire_reservations", outcome).Inc()
	return total
}

// GetStats returns worker statistics
func (w *ExpiryWorker) GetStats() *ExpiryWorkerStats {
	w.mu.Lock()
	defer w.mu.Unlock()

	return &ExpiryWorkerStats{
		IsRunning:        w.running,
		TotalExpired:     w.totalExpired,
		LastScanTime:     w.lastScanTime,
		LastExpiredCount: w.lastExpiredCount,
	}
}

// ExpiryWorkerStats contains worker statistics
type ExpiryWorkerStats struct {
	IsRunning        bool      `json:"is_running"`
	TotalExpired     int64     `json:"total_expired"`
	LastScanTime     time.Time `json:"last_scan_time"`
	LastExpiredCount int       `json:"last_expired_count"`
}
