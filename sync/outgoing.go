package sync

import (
	"context"
	"fmt"

	"golang.org/x/sync/errgroup"
)

// BatchResult counts the outcomes of an outgoing batch.
type BatchResult struct {
	Skipped  int
	Inserted int
	Updated  int
	Failed   int
}

// SendAccountMessages creates or updates a lead for each account message.
// Failures are logged per message and never abort the batch.
func (a *SyncAgent) SendAccountMessages(ctx context.Context, messages []Message) BatchResult {
	return a.sendMessages(ctx, ResourceLead, messages)
}

// SendUserMessages creates or updates a contact for each user message.
func (a *SyncAgent) SendUserMessages(ctx context.Context, messages []Message) BatchResult {
	return a.sendMessages(ctx, ResourceContact, messages)
}

func logPrefix(resource Resource) string {
	if resource == ResourceContact {
		return "outgoing.user"
	}
	return "outgoing.account"
}

func (a *SyncAgent) sendMessages(ctx context.Context, resource Resource, messages []Message) BatchResult {
	var result BatchResult
	prefix := logPrefix(resource)
	if len(messages) == 0 {
		return result
	}
	if err := a.Initialize(ctx); err != nil {
		a.logger.Error(prefix+".error", "error", err, "messages", len(messages))
		result.Failed = len(messages)
		return result
	}

	messages = DeduplicateMessages(messages)
	envelopes := make([]*Envelope, 0, len(messages))
	for _, msg := range messages {
		env := a.buildEnvelope(ctx, resource, msg)
		if env.State() == StateErrored {
			a.logger.Error(prefix+".error", "entity_id", msg.EntityID(), "error", env.Err())
			result.Failed++
			continue
		}
		envelopes = append(envelopes, env)
	}

	var classified ClassificationResult
	if resource == ResourceContact {
		classified = a.filter.FilterUsers(envelopes)
	} else {
		classified = a.filter.FilterAccounts(envelopes)
	}
	for _, env := range classified.ToSkip {
		reason, _ := env.SkipReason()
		a.logger.Info(prefix+".skip", "entity_id", env.Message.EntityID(), "reason_id", reason.ID, "reason", reason.Message)
		result.Skipped++
	}

	a.execute(ctx, classified.ToUpdate, false)
	a.execute(ctx, classified.ToInsert, true)

	for _, env := range classified.ToUpdate {
		if env.State() == StateResolved {
			result.Updated++
		} else {
			result.Failed++
		}
	}
	for _, env := range classified.ToInsert {
		if env.State() == StateResolved {
			result.Inserted++
		} else {
			result.Failed++
		}
	}
	return result
}

func (a *SyncAgent) buildEnvelope(ctx context.Context, resource Resource, msg Message) *Envelope {
	env := NewEnvelope(resource, msg)
	env.CachedRemoteID = a.cachedRemoteID(ctx, resource, msg.EntityID())
	var obj *WriteObject
	var err error
	if resource == ResourceContact {
		env.CachedLeadID = a.cachedRemoteID(ctx, ResourceLead, msg.Account.ID())
		obj, err = a.mapping.MapToContact(env)
	} else {
		obj, err = a.mapping.MapToLead(env)
	}
	if err != nil {
		env.Fail(err)
		return env
	}
	env.WriteObject = obj
	return env
}

func (a *SyncAgent) execute(ctx context.Context, envelopes []*Envelope, insert bool) {
	var g errgroup.Group
	g.SetLimit(OutgoingConcurrency)
	for _, env := range envelopes {
		g.Go(func() error {
			a.executeEnvelope(ctx, env, insert)
			return nil
		})
	}
	_ = g.Wait()
}

func (a *SyncAgent) executeEnvelope(ctx context.Context, env *Envelope, insert bool) {
	prefix := logPrefix(env.Resource)
	entityID := env.Message.EntityID()
	operation := "update"
	var record Record
	var err error
	if insert {
		operation = "insert"
		record, err = a.client.Create(ctx, env.Resource, env.WriteObject)
	} else {
		record, err = a.client.Update(ctx, env.Resource, env.WriteObject.ID(), env.WriteObject)
	}
	if err != nil {
		env.Fail(err)
		a.logger.Error(prefix+".error", "entity_id", entityID, "operation", operation, "error", err)
		return
	}
	env.Resolve(record)

	if insert && record.ID() != "" && entityID != "" {
		if err := a.cache.Set(ctx, RemoteIDCacheKey(env.Resource, entityID), record.ID()); err != nil {
			a.logger.Warn("remote id cache write failed", "entity_id", entityID, "remote_id", record.ID(), "error", err)
		}
	}

	attrs := a.mapping.MapToHullAttributes(env.Resource, record)
	ident := platformIdentity(env)
	if env.Resource == ResourceContact {
		err = a.platform.UpsertUser(ctx, ident, attrs, nil)
	} else {
		err = a.platform.UpsertAccount(ctx, ident, attrs)
	}
	if err != nil {
		env.Fail(fmt.Errorf("failed to write attributes back: %w", err))
		a.logger.Error(prefix+".error", "entity_id", entityID, "operation", operation, "remote_id", record.ID(), "error", err)
		return
	}
	a.logger.Info(prefix+".success", "entity_id", entityID, "operation", operation, "remote_id", record.ID())
}

// platformIdentity identifies the entity an envelope was built from.
func platformIdentity(env *Envelope) Identity {
	ident := Identity{
		ID:         env.Snapshot.ID(),
		ExternalID: snapshotString(env.Snapshot, "external_id"),
	}
	if env.Resource == ResourceContact {
		ident.Email = snapshotString(env.Snapshot, "email")
	} else {
		ident.Domain = snapshotString(env.Snapshot, "domain")
	}
	return ident
}
