package sync

import (
	"time"
)

// Segment is a platform segment an entity belongs to.
type Segment struct {
	ID   string `json:"id"`
	Name string `json:"name,omitempty"`
}

// Event is a platform event attached to a change message.
type Event struct {
	ID         string         `json:"event_id"`
	Name       string         `json:"event"`
	CreatedAt  string         `json:"created_at,omitempty"`
	Properties map[string]any `json:"properties,omitempty"`
}

// Message is one platform change notification for an account or a user.
// For user messages Account is the linked account and AccountSegments its segments.
type Message struct {
	ID              string    `json:"message_id"`
	Entity          Snapshot  `json:"entity"`
	Account         Snapshot  `json:"account"`
	Segments        []Segment `json:"segments"`
	AccountSegments []Segment `json:"account_segments"`
	Events          []Event   `json:"events"`
}

// EntityID returns the platform id of the changed entity.
func (m Message) EntityID() string {
	return m.Entity.ID()
}

// IndexedAt returns when the entity snapshot was indexed, zero if unknown.
func (m Message) IndexedAt() time.Time {
	raw, ok := m.Entity.StringForPath("indexed_at")
	if !ok {
		return time.Time{}
	}
	t, err := time.Parse(time.RFC3339Nano, raw)
	if err != nil {
		return time.Time{}
	}
	return t
}

// EnvelopeState tags the outcome of an envelope.
type EnvelopeState int

const (
	StatePending EnvelopeState = iota
	StateSkipped
	StateResolved
	StateErrored
)

func (s EnvelopeState) String() string {
	switch s {
	case StateSkipped:
		return "skipped"
	case StateResolved:
		return "resolved"
	case StateErrored:
		return "errored"
	default:
		return "pending"
	}
}

// Envelope carries one change message through a batch.
type Envelope struct {
	Resource Resource
	Message  Message
	Snapshot Snapshot
	// Account is the linked account snapshot of a user envelope.
	Account Snapshot

	// CachedRemoteID and CachedLeadID come from the remote-id cache at build time.
	CachedRemoteID string
	CachedLeadID   string

	WriteObject *WriteObject
	ReadObject  Record

	state      EnvelopeState
	skipReason OperationMessage
	err        error
}

// NewEnvelope builds a pending envelope for msg.
func NewEnvelope(resource Resource, msg Message) *Envelope {
	return &Envelope{
		Resource: resource,
		Message:  msg,
		Snapshot: msg.Entity,
		Account:  msg.Account,
	}
}

func (e *Envelope) State() EnvelopeState {
	return e.state
}

func (e *Envelope) Skip(reason OperationMessage) {
	e.state = StateSkipped
	e.skipReason = reason
}

func (e *Envelope) Resolve(record Record) {
	e.state = StateResolved
	e.ReadObject = record
	e.err = nil
}

func (e *Envelope) Fail(err error) {
	e.state = StateErrored
	e.err = err
}

// SkipReason is set when the envelope was skipped.
func (e *Envelope) SkipReason() (OperationMessage, bool) {
	return e.skipReason, e.state == StateSkipped
}

func (e *Envelope) Err() error {
	return e.err
}

// ClassificationResult partitions a batch of envelopes.
type ClassificationResult struct {
	ToSkip   []*Envelope
	ToInsert []*Envelope
	ToUpdate []*Envelope
}

func (r ClassificationResult) Len() int {
	return len(r.ToSkip) + len(r.ToInsert) + len(r.ToUpdate)
}

// Identity identifies an entity on the platform.
type Identity struct {
	ID          string `json:"id,omitempty"`
	Domain      string `json:"domain,omitempty"`
	ExternalID  string `json:"external_id,omitempty"`
	Email       string `json:"email,omitempty"`
	AnonymousID string `json:"anonymous_id,omitempty"`
}

func (i Identity) IsZero() bool {
	return i == Identity{}
}

// Attribute operations.
const (
	OperationSet       = "set"
	OperationSetIfNull = "setIfNull"
)

// Attribute is a value to write on the platform with its write operation.
type Attribute struct {
	Value     any    `json:"value"`
	Operation string `json:"operation"`
}

// Attributes maps platform attribute names to the values to write.
type Attributes map[string]Attribute
