package sync

import (
	"context"
	"errors"
	"fmt"
	gosync "sync"
	"time"
)

// ImportKind names a bulk import stream.
type ImportKind string

const (
	ImportAccounts ImportKind = "accounts"
	ImportUsers    ImportKind = "users"
)

// ImportRecord is one entity handed to the bulk loader.
type ImportRecord struct {
	Identity   Identity   `json:"identity"`
	Attributes Attributes `json:"attributes"`
	Account    *Identity  `json:"account,omitempty"`
}

// ImportJob describes one chunk stored by the bulk loader.
type ImportJob struct {
	ID    string     `json:"id"`
	Kind  ImportKind `json:"kind"`
	URL   string     `json:"url"`
	Count int        `json:"count"`
}

// BulkLoader stores a stream of import records. Load must drain records until it
// is closed or return early with an error.
type BulkLoader interface {
	Load(ctx context.Context, kind ImportKind, records <-chan ImportRecord) ([]ImportJob, error)
}

const (
	StateKeyLeadsExportID           = "leads_export_id"
	StateKeyLeadsExportPollInterval = "leads_export_poll_interval"

	// ExportPollIntervalActive is the handle cadence while an export is pending.
	ExportPollIntervalActive = time.Minute
	// ExportPollIntervalSteady is the handle cadence with no export pending.
	ExportPollIntervalSteady = time.Hour
)

// AccountImport projects an exported lead onto an account import record.
// Leads without a domain or external id cannot be imported.
func (m *MappingUtil) AccountImport(lead Record) (ImportRecord, bool) {
	ident := m.MapToHullIdentity(ResourceLead, lead)
	if ident.Domain == "" && ident.ExternalID == "" {
		return ImportRecord{}, false
	}
	return ImportRecord{Identity: ident, Attributes: m.MapToHullAttributes(ResourceLead, lead)}, true
}

// UserImport projects an exported contact onto a user import record linked to account.
// Contacts without an email cannot be imported.
func (m *MappingUtil) UserImport(contact Record, account Identity) (ImportRecord, bool) {
	ident := m.MapToHullIdentity(ResourceContact, contact)
	if ident.Email == "" {
		return ImportRecord{}, false
	}
	linked := account
	return ImportRecord{Identity: ident, Attributes: m.MapToHullAttributes(ResourceContact, contact), Account: &linked}, true
}

// TriggerLeadsExport starts a full lead export and records its id so that
// HandleLeadsExport picks it up.
func (a *SyncAgent) TriggerLeadsExport(ctx context.Context) error {
	export, err := a.client.ExportLeads(ctx)
	if err != nil {
		a.logger.Error("export.job.error", "error", err)
		return err
	}
	if err := a.state.Set(ctx, StateKeyLeadsExportID, export.ID); err != nil {
		return fmt.Errorf("failed to store export id: %w", err)
	}
	if err := a.state.Set(ctx, StateKeyLeadsExportPollInterval, ExportPollIntervalActive.String()); err != nil {
		return fmt.Errorf("failed to store export poll interval: %w", err)
	}
	a.logger.Info("export.job.start", "export_id", export.ID)
	return nil
}

// ExportPollInterval returns how often the host should call HandleLeadsExport.
func (a *SyncAgent) ExportPollInterval(ctx context.Context) time.Duration {
	raw, err := a.state.Get(ctx, StateKeyLeadsExportPollInterval)
	if err != nil || raw == "" {
		return ExportPollIntervalSteady
	}
	d, err := time.ParseDuration(raw)
	if err != nil {
		return ExportPollIntervalSteady
	}
	return d
}

// HandleLeadsExport imports the pending export, if any, through the bulk loader.
// Accounts and users are loaded as two independent streams. The export id is
// only cleared once both streams were stored.
func (a *SyncAgent) HandleLeadsExport(ctx context.Context) ([]ImportJob, error) {
	id, err := a.state.Get(ctx, StateKeyLeadsExportID)
	if err != nil {
		return nil, fmt.Errorf("failed to read export id: %w", err)
	}
	if id == "" {
		a.logger.Debug("export.job.skip", "reason", "no pending export")
		return nil, nil
	}
	if a.loader == nil {
		return nil, &ConfigurationError{Message: "no bulk loader configured"}
	}
	if err := a.Initialize(ctx); err != nil {
		a.logger.Error("export.job.error", "export_id", id, "error", err)
		return nil, err
	}

	accounts := make(chan ImportRecord)
	users := make(chan ImportRecord)
	accountsDone := make(chan struct{})
	usersDone := make(chan struct{})
	var accountJobs, userJobs []ImportJob
	var accountErr, userErr error
	var wg gosync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		defer close(accountsDone)
		accountJobs, accountErr = a.loader.Load(ctx, ImportAccounts, accounts)
	}()
	go func() {
		defer wg.Done()
		defer close(usersDone)
		userJobs, userErr = a.loader.Load(ctx, ImportUsers, users)
	}()

	// a loader that returned early must not block the other stream
	send := func(ch chan<- ImportRecord, done <-chan struct{}, rec ImportRecord) {
		select {
		case ch <- rec:
		case <-done:
		case <-ctx.Done():
		}
	}

	var leads, skipped int
	streamErr := a.client.StreamExport(ctx, id, func(lead Record) error {
		leads++
		lead = a.mapping.WithCustomFieldIDs(lead)
		account, ok := a.mapping.AccountImport(lead)
		if !ok {
			skipped++
			return nil
		}
		send(accounts, accountsDone, account)
		for _, contact := range lead.Contacts() {
			if user, ok := a.mapping.UserImport(contact, account.Identity); ok {
				send(users, usersDone, user)
			}
		}
		return nil
	})
	close(accounts)
	close(users)
	wg.Wait()

	jobs := append(accountJobs, userJobs...)
	if err := errors.Join(streamErr, accountErr, userErr); err != nil {
		a.logger.Error("export.job.error", "export_id", id, "error", err)
		return jobs, fmt.Errorf("failed to import export %s: %w", id, err)
	}

	if err := a.state.Set(ctx, StateKeyLeadsExportID, ""); err != nil {
		return jobs, fmt.Errorf("failed to clear export id: %w", err)
	}
	if err := a.state.Set(ctx, StateKeyLeadsExportPollInterval, ExportPollIntervalSteady.String()); err != nil {
		return jobs, fmt.Errorf("failed to reset export poll interval: %w", err)
	}
	a.logger.Info("export.job.success", "export_id", id, "leads", leads, "skipped", skipped, "jobs", len(jobs))
	return jobs, nil
}
