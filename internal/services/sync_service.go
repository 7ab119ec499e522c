package services

import (
	"context"

	"go.opentelemetry.io/otel/attribute"

	"github.com/casilisto/sync/internal/merge"
	"github.com/casilisto/sync/internal/models"
	"github.com/casilisto/sync/internal/observability"
	"github.com/casilisto/sync/internal/repository"
)

// SyncService applies client pushes against authoritative server state
// and serves pulls.
type SyncService struct {
	accounts repository.AccountRepo
	devices  repository.DeviceRepo
	state    repository.SyncStateRepo
	metrics  *observability.SyncMetrics
}

func NewSyncService(accounts repository.AccountRepo, devices repository.DeviceRepo, state repository.SyncStateRepo, metrics *observability.SyncMetrics) *SyncService {
	return &SyncService{
		accounts: accounts,
		devices:  devices,
		state:    state,
		metrics:  metrics,
	}
}

// PushResult is the outcome of applying a client push.
type PushResult struct {
	ServerUpdatedAt int64
	Merged          bool
	MergedData      *models.SyncData
}

// PullResult is the outcome of a pull against the since cursor.
type PullResult struct {
	HasChanges      bool
	Data            *models.SyncData
	ServerUpdatedAt int64
}

// Push merges the candidate snapshot into server state inside a single
// transaction. When the server holds items the result is always a
// merge, regardless of whose timestamp is newer. An empty server list
// accepts the candidate wholesale, which lets a first device seed the
// account without phantom merges.
func (s *SyncService) Push(ctx context.Context, code, deviceID, deviceName string, candidate *models.SyncData) (*PushResult, error) {
	ctx, span := observability.StartSpan(ctx, "sync.push")
	defer span.End()

	code = models.NormalizeCode(code)

	exists, err := s.accounts.Exists(ctx, code)
	if err != nil {
		observability.RecordError(span, err)
		return nil, err
	}
	if !exists {
		return nil, models.ErrAccountNotFound
	}

	if err := s.devices.Register(ctx, code, deviceID, deviceName); err != nil {
		observability.RecordError(span, err)
		return nil, err
	}

	result := &PushResult{}
	persisted, err := s.state.Reconcile(ctx, code, func(server *models.SyncData) *models.SyncData {
		if !server.HasItems() {
			result.Merged = false
			return candidate
		}

		result.Merged = true
		return merge.Data(server, candidate)
	})
	if err != nil {
		observability.RecordError(span, err)
		return nil, err
	}

	result.MergedData = persisted
	result.ServerUpdatedAt = persisted.UpdatedAt
	span.SetAttributes(attribute.Bool("sync.merged", result.Merged))
	s.metrics.RecordPush(ctx, result.Merged)

	return result, nil
}

// Pull returns server state when it changed after the since cursor.
// since is the millisecond timestamp of the client's last known server
// state; zero always fetches. A non-empty deviceID refreshes that
// device's registration, so polling alone keeps a device alive.
func (s *SyncService) Pull(ctx context.Context, code, deviceID, deviceName string, since int64) (*PullResult, error) {
	ctx, span := observability.StartSpan(ctx, "sync.pull")
	defer span.End()

	code = models.NormalizeCode(code)

	// best effort; a cap rejection must not break the pull
	if deviceID != "" {
		if err := s.devices.Register(ctx, code, deviceID, deviceName); err != nil {
			observability.Warnf("device refresh on pull failed: %v", err)
		}
	}

	updatedAt, err := s.state.UpdatedAt(ctx, code)
	if err != nil {
		observability.RecordError(span, err)
		return nil, err
	}

	if updatedAt <= since {
		s.metrics.RecordPull(ctx, false)
		return &PullResult{HasChanges: false, ServerUpdatedAt: updatedAt}, nil
	}

	data, err := s.state.Get(ctx, code)
	if err != nil {
		observability.RecordError(span, err)
		return nil, err
	}

	s.metrics.RecordPull(ctx, true)
	return &PullResult{HasChanges: true, Data: data, ServerUpdatedAt: updatedAt}, nil
}
