package services

import (
	"context"
	"time"

	"github.com/casilisto/sync/internal/models"
	"github.com/casilisto/sync/internal/observability"
	"github.com/casilisto/sync/internal/repository"
)

// DeviceService lists and unlinks devices and sweeps stale ones in the
// background.
type DeviceService struct {
	accounts repository.AccountRepo
	devices  repository.DeviceRepo
	metrics  *observability.SyncMetrics

	sweepInterval time.Duration
	maxAge        time.Duration
	stopChan      chan struct{}
	doneChan      chan struct{}
}

func NewDeviceService(accounts repository.AccountRepo, devices repository.DeviceRepo, metrics *observability.SyncMetrics, sweepInterval, maxAge time.Duration) *DeviceService {
	return &DeviceService{
		accounts:      accounts,
		devices:       devices,
		metrics:       metrics,
		sweepInterval: sweepInterval,
		maxAge:        maxAge,
		stopChan:      make(chan struct{}),
		doneChan:      make(chan struct{}),
	}
}

// List returns all devices linked to the account, most recently seen
// first.
func (s *DeviceService) List(ctx context.Context, code string) ([]*models.Device, error) {
	code = models.NormalizeCode(code)

	exists, err := s.accounts.Exists(ctx, code)
	if err != nil {
		return nil, err
	}
	if !exists {
		return nil, models.ErrAccountNotFound
	}

	return s.devices.ListForAccount(ctx, code)
}

// Unlink removes the device from the account. Returns false when no
// such device is linked.
func (s *DeviceService) Unlink(ctx context.Context, code, deviceID string) (bool, error) {
	code = models.NormalizeCode(code)

	exists, err := s.accounts.Exists(ctx, code)
	if err != nil {
		return false, err
	}
	if !exists {
		return false, models.ErrAccountNotFound
	}

	return s.devices.Delete(ctx, code, deviceID)
}

// StartSweeper runs the periodic stale-device sweep until StopSweeper
// is called. One sweep runs immediately on start.
func (s *DeviceService) StartSweeper() {
	go func() {
		defer close(s.doneChan)

		s.sweep()

		ticker := time.NewTicker(s.sweepInterval)
		defer ticker.Stop()

		for {
			select {
			case <-ticker.C:
				s.sweep()
			case <-s.stopChan:
				return
			}
		}
	}()
	observability.Infof("device sweeper started (interval %s, max age %s)", s.sweepInterval, s.maxAge)
}

// StopSweeper stops the background sweep and waits for it to exit.
func (s *DeviceService) StopSweeper() {
	close(s.stopChan)
	<-s.doneChan
}

func (s *DeviceService) sweep() {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	cutoff := time.Now().Add(-s.maxAge).UnixMilli()
	removed, err := s.devices.DeleteStale(ctx, cutoff)
	if err != nil {
		observability.Errorf("device sweep failed: %v", err)
		return
	}
	if removed > 0 {
		s.metrics.RecordSweep(ctx, removed)
		observability.Infof("device sweep removed %d stale devices", removed)
	}
}
