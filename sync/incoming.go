package sync

import (
	"context"
	"fmt"
	"time"
)

const (
	StateKeyLastSyncAt = "last_sync_at"
	// SafetyInterval is subtracted from the last sync time to cover clock skew.
	SafetyInterval = 6 * time.Second
	// DefaultLookback is how far back the first run fetches.
	DefaultLookback = 48 * time.Hour
)

// EpochFloor is the earliest watermark ever used.
var EpochFloor = time.Unix(0, 0).UTC()

// Watermark returns the time from which changes are fetched.
func Watermark(lastSyncAt, now time.Time) time.Time {
	if lastSyncAt.IsZero() {
		lastSyncAt = now.Add(-DefaultLookback)
	} else {
		lastSyncAt = lastSyncAt.Add(-SafetyInterval)
	}
	if lastSyncAt.Before(EpochFloor) {
		return EpochFloor
	}
	return lastSyncAt
}

// IncomingResult counts what a fetch wrote to the platform.
type IncomingResult struct {
	Accounts int
	Users    int
	Failed   int
}

// FetchUpdatedLeads writes every lead changed since the watermark, and its
// contacts, onto the platform. The watermark only moves when the whole stream
// was read; failed platform writes are logged and counted.
func (a *SyncAgent) FetchUpdatedLeads(ctx context.Context) (IncomingResult, error) {
	var result IncomingResult
	if err := a.Initialize(ctx); err != nil {
		a.logger.Error("incoming.job.error", "error", err)
		return result, err
	}
	startedAt := a.now()
	lastSyncAt, err := a.LastSyncAt(ctx)
	if err != nil {
		a.logger.Error("incoming.job.error", "error", err)
		return result, err
	}
	since := Watermark(lastSyncAt, startedAt)
	a.logger.Info("incoming.job.start", "since", since)

	err = a.client.StreamChangedSince(ctx, since, func(page []Record) error {
		for _, lead := range page {
			a.upsertLead(ctx, lead, &result)
		}
		return nil
	})
	if err != nil {
		a.logger.Error("incoming.job.error", "since", since, "error", err)
		return result, fmt.Errorf("failed to fetch updated leads: %w", err)
	}

	if err := a.state.Set(ctx, StateKeyLastSyncAt, startedAt.UTC().Format(time.RFC3339Nano)); err != nil {
		a.logger.Error("incoming.job.error", "error", err)
		return result, fmt.Errorf("failed to store last sync time: %w", err)
	}
	a.logger.Info("incoming.job.success", "since", since, "accounts", result.Accounts, "users", result.Users, "failed", result.Failed)
	return result, nil
}

// LastSyncAt returns the time of the last successful fetch, zero if none.
func (a *SyncAgent) LastSyncAt(ctx context.Context) (time.Time, error) {
	raw, err := a.state.Get(ctx, StateKeyLastSyncAt)
	if err != nil || raw == "" {
		return time.Time{}, err
	}
	t, err := time.Parse(time.RFC3339Nano, raw)
	if err != nil {
		a.logger.Warn("ignoring unreadable last sync time", "value", raw, "error", err)
		return time.Time{}, nil
	}
	return t, nil
}

func (a *SyncAgent) upsertLead(ctx context.Context, lead Record, result *IncomingResult) {
	ident := a.mapping.MapToHullIdentity(ResourceLead, lead)
	attrs := a.mapping.MapToHullAttributes(ResourceLead, lead)
	if err := a.platform.UpsertAccount(ctx, ident, attrs); err != nil {
		a.logger.Error("incoming.account.error", "remote_id", lead.ID(), "error", err)
		result.Failed++
		return
	}
	a.logger.Info("incoming.account.success", "remote_id", lead.ID())
	result.Accounts++

	for _, contact := range lead.Contacts() {
		cident := a.mapping.MapToHullIdentity(ResourceContact, contact)
		cattrs := a.mapping.MapToHullAttributes(ResourceContact, contact)
		if err := a.platform.UpsertUser(ctx, cident, cattrs, &ident); err != nil {
			a.logger.Error("incoming.user.error", "remote_id", contact.ID(), "lead_id", lead.ID(), "error", err)
			result.Failed++
			continue
		}
		a.logger.Info("incoming.user.success", "remote_id", contact.ID(), "lead_id", lead.ID())
		result.Users++
	}
}
