package sync

import (
	"context"
	"fmt"
	"log/slog"
	gosync "sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"
)

// AgentState is the lifecycle state of a SyncAgent.
type AgentState int32

const (
	AgentUninitialized AgentState = iota
	AgentInitializing
	AgentReady
)

func (s AgentState) String() string {
	switch s {
	case AgentInitializing:
		return "initializing"
	case AgentReady:
		return "ready"
	default:
		return "uninitialized"
	}
}

const (
	cacheKeyLeadStatuses     = "lead_statuses"
	cacheKeyLeadCustomFields = "lead_custom_fields"
)

// OutgoingConcurrency bounds the create/update calls in flight per batch.
const OutgoingConcurrency = 10

// Platform receives the attributes the agent writes back onto platform entities.
type Platform interface {
	UpsertAccount(ctx context.Context, ident Identity, attrs Attributes) error
	// UpsertUser writes attrs on the user and links it to account when not nil.
	UpsertUser(ctx context.Context, ident Identity, attrs Attributes, account *Identity) error
}

// SyncAgent runs the incoming, outgoing and export flows of one connector.
// Every flow initializes the agent on first use.
type SyncAgent struct {
	sc       SyncContext
	client   *ServiceClient
	platform Platform
	cache    Cache
	state    StateStore
	loader   BulkLoader
	logger   *slog.Logger
	now      func() time.Time
	filter   FilterUtil

	// remote metadata lives for the agent's lifetime only
	metadata *MemoryCache

	initMu    gosync.Mutex
	lifecycle atomic.Int32
	mapping   *MappingUtil
}

// AgentOption configures a SyncAgent.
type AgentOption func(*SyncAgent)

// WithServiceClient replaces the client built from the SyncContext.
func WithServiceClient(c *ServiceClient) AgentOption {
	return func(a *SyncAgent) { a.client = c }
}

// WithCache sets the cache holding remote ids. Defaults to a MemoryCache.
func WithCache(c Cache) AgentOption {
	return func(a *SyncAgent) { a.cache = c }
}

// WithStateStore sets where watermarks and export jobs are kept. Defaults to memory.
func WithStateStore(s StateStore) AgentOption {
	return func(a *SyncAgent) { a.state = s }
}

func WithBulkLoader(l BulkLoader) AgentOption {
	return func(a *SyncAgent) { a.loader = l }
}

func WithAgentLogger(logger *slog.Logger) AgentOption {
	return func(a *SyncAgent) { a.logger = logger }
}

func WithClock(now func() time.Time) AgentOption {
	return func(a *SyncAgent) { a.now = now }
}

// NewSyncAgent builds an agent writing to platform.
func NewSyncAgent(sc SyncContext, platform Platform, opts ...AgentOption) *SyncAgent {
	a := &SyncAgent{
		sc:       sc,
		platform: platform,
		now:      time.Now,
		filter:   NewFilterUtil(sc.Settings),
		metadata: NewMemoryCache(),
	}
	for _, opt := range opts {
		opt(a)
	}
	if a.logger == nil {
		a.logger = slog.Default()
	}
	if a.connector() != "" {
		a.logger = a.logger.With("connector", a.connector())
	}
	if a.client == nil {
		clientOpts := append(sc.ClientOptions(), WithLogger(a.logger))
		a.client = NewServiceClient(sc.Settings.APIKey, clientOpts...)
	}
	if a.cache == nil {
		a.cache = NewMemoryCache()
	}
	if a.state == nil {
		a.state = NewMemoryStateStore()
	}
	return a
}

func (a *SyncAgent) connector() string {
	return a.sc.Connector
}

func (a *SyncAgent) State() AgentState {
	return AgentState(a.lifecycle.Load())
}

// Settings returns the settings the agent was built with.
func (a *SyncAgent) Settings() ConnectorSettings {
	return a.sc.Settings
}

// Client returns the service client used by the agent.
func (a *SyncAgent) Client() *ServiceClient {
	return a.client
}

// Initialize loads the lead statuses and custom fields. It is safe to call
// concurrently and more than once; a failed attempt leaves the agent uninitialized.
func (a *SyncAgent) Initialize(ctx context.Context) error {
	if a.State() == AgentReady {
		return nil
	}
	a.initMu.Lock()
	defer a.initMu.Unlock()
	if a.State() == AgentReady {
		return nil
	}
	a.lifecycle.Store(int32(AgentInitializing))

	var statuses []LeadStatus
	var customFields []CustomField
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		statuses, err = Wrap(gctx, a.metadata, cacheKeyLeadStatuses, a.client.LeadStatuses)
		return err
	})
	g.Go(func() error {
		var err error
		customFields, err = Wrap(gctx, a.metadata, cacheKeyLeadCustomFields, a.client.LeadCustomFields)
		return err
	})
	if err := g.Wait(); err != nil {
		a.lifecycle.Store(int32(AgentUninitialized))
		return fmt.Errorf("failed to initialize sync agent: %w", err)
	}

	a.mapping = NewMappingUtil(a.sc.Settings, statuses, customFields)
	a.lifecycle.Store(int32(AgentReady))
	a.logger.Debug("sync agent ready", "statuses", len(statuses), "custom_fields", len(customFields))
	return nil
}

// Mapping returns the mapping util, or nil before the agent is ready.
func (a *SyncAgent) Mapping() *MappingUtil {
	if a.State() != AgentReady {
		return nil
	}
	return a.mapping
}

func (a *SyncAgent) cachedRemoteID(ctx context.Context, resource Resource, entityID string) string {
	if entityID == "" {
		return ""
	}
	id, found, err := a.cache.Get(ctx, RemoteIDCacheKey(resource, entityID))
	if err != nil {
		a.logger.Warn("remote id cache lookup failed", "resource", resource, "entity_id", entityID, "error", err)
		return ""
	}
	if !found {
		return ""
	}
	return id
}
