package observability

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// SyncMetrics counts domain-level sync activity.
type SyncMetrics struct {
	pushTotal      metric.Int64Counter
	pushMerged     metric.Int64Counter
	pullTotal      metric.Int64Counter
	devicesSwept   metric.Int64Counter
	accountsIssued metric.Int64Counter
}

// NewSyncMetrics creates the sync instrument set on the global meter.
func NewSyncMetrics() (*SyncMetrics, error) {
	meter := otel.Meter("casilisto-sync/sync")

	pushTotal, err := meter.Int64Counter("sync.push.total",
		metric.WithDescription("Push operations received"),
		metric.WithUnit("{push}"))
	if err != nil {
		return nil, err
	}

	pushMerged, err := meter.Int64Counter("sync.push.merged",
		metric.WithDescription("Push operations that merged with server state"),
		metric.WithUnit("{push}"))
	if err != nil {
		return nil, err
	}

	pullTotal, err := meter.Int64Counter("sync.pull.total",
		metric.WithDescription("Pull operations received"),
		metric.WithUnit("{pull}"))
	if err != nil {
		return nil, err
	}

	devicesSwept, err := meter.Int64Counter("sync.devices.swept",
		metric.WithDescription("Stale devices removed by the sweeper"),
		metric.WithUnit("{device}"))
	if err != nil {
		return nil, err
	}

	accountsIssued, err := meter.Int64Counter("sync.accounts.issued",
		metric.WithDescription("Share codes issued"),
		metric.WithUnit("{account}"))
	if err != nil {
		return nil, err
	}

	return &SyncMetrics{
		pushTotal:      pushTotal,
		pushMerged:     pushMerged,
		pullTotal:      pullTotal,
		devicesSwept:   devicesSwept,
		accountsIssued: accountsIssued,
	}, nil
}

func (m *SyncMetrics) RecordPush(ctx context.Context, merged bool) {
	if m == nil {
		return
	}
	m.pushTotal.Add(ctx, 1)
	if merged {
		m.pushMerged.Add(ctx, 1)
	}
}

func (m *SyncMetrics) RecordPull(ctx context.Context, hasChanges bool) {
	if m == nil {
		return
	}
	m.pullTotal.Add(ctx, 1, metric.WithAttributes(
		attribute.Bool("sync.pull.has_changes", hasChanges)))
}

func (m *SyncMetrics) RecordSweep(ctx context.Context, removed int64) {
	if m == nil {
		return
	}
	m.devicesSwept.Add(ctx, removed)
}

func (m *SyncMetrics) RecordAccountIssued(ctx context.Context) {
	if m == nil {
		return
	}
	m.accountsIssued.Add(ctx, 1)
}
