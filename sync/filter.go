package sync

import (
	"slices"
)

// FilterUtil classifies envelopes into inserts, updates and skips.
type FilterUtil struct {
	settings ConnectorSettings
}

func NewFilterUtil(settings ConnectorSettings) FilterUtil {
	return FilterUtil{settings: settings}
}

// FilterAccounts checks, in order: the identifier attribute has a value, the
// account is in a whitelisted segment, then inserts when the write object has
// no id and updates otherwise.
func (f FilterUtil) FilterAccounts(envelopes []*Envelope) ClassificationResult {
	var result ClassificationResult
	for _, env := range envelopes {
		switch {
		case !env.Snapshot.Has(f.settings.LeadIdentifierHull):
			env.Skip(MessageSkipAccountNoIdentifier(f.settings.LeadIdentifierHull))
			result.ToSkip = append(result.ToSkip, env)
		case !f.MatchesSegments(env.Message.Segments):
			env.Skip(MessageSkipAccountNotMatchingSegments)
			result.ToSkip = append(result.ToSkip, env)
		case env.WriteObject == nil || env.WriteObject.ID() == "":
			result.ToInsert = append(result.ToInsert, env)
		default:
			result.ToUpdate = append(result.ToUpdate, env)
		}
	}
	return result
}

// FilterUsers checks, in order: the user is linked to a known lead, the linked
// account is in a whitelisted segment, then insert or update by contact id.
func (f FilterUtil) FilterUsers(envelopes []*Envelope) ClassificationResult {
	var result ClassificationResult
	for _, env := range envelopes {
		leadID := ""
		if env.WriteObject != nil {
			leadID, _ = env.WriteObject.StringField("lead_id")
		}
		switch {
		case leadID == "":
			env.Skip(MessageSkipUserNotLinkedToAccount)
			result.ToSkip = append(result.ToSkip, env)
		case !f.MatchesSegments(env.Message.AccountSegments):
			env.Skip(MessageSkipAccountNotMatchingSegmentsUser)
			result.ToSkip = append(result.ToSkip, env)
		case env.WriteObject.ID() == "":
			result.ToInsert = append(result.ToInsert, env)
		default:
			result.ToUpdate = append(result.ToUpdate, env)
		}
	}
	return result
}

// MatchesSegments reports whether any of segments is whitelisted.
// An empty whitelist matches nothing.
func (f FilterUtil) MatchesSegments(segments []Segment) bool {
	if len(f.settings.SynchronizedSegments) == 0 {
		return false
	}
	for _, s := range segments {
		if slices.Contains(f.settings.SynchronizedSegments, s.ID) {
			return true
		}
	}
	return false
}

// DeduplicateMessages keeps the most recently indexed message per entity id and
// merges the events of the dropped messages into it, keyed by event id. Groups
// keep the order in which their entity first appeared. Messages without an
// entity id are kept as they are.
func DeduplicateMessages(messages []Message) []Message {
	var groups [][]Message
	byID := make(map[string]int)
	for _, msg := range messages {
		id := msg.EntityID()
		if id == "" {
			// nothing to group on
			groups = append(groups, []Message{msg})
			continue
		}
		if i, seen := byID[id]; seen {
			groups[i] = append(groups[i], msg)
			continue
		}
		byID[id] = len(groups)
		groups = append(groups, []Message{msg})
	}

	result := make([]Message, 0, len(groups))
	for _, group := range groups {
		latest := 0
		for i := 1; i < len(group); i++ {
			// ties go to the later delivery
			if !group[i].IndexedAt().Before(group[latest].IndexedAt()) {
				latest = i
			}
		}
		survivor := group[latest]
		if len(group) > 1 {
			survivor.Events = mergeEvents(survivor.Events, group, latest)
		}
		result = append(result, survivor)
	}
	return result
}

func mergeEvents(base []Event, group []Message, skip int) []Event {
	merged := slices.Clone(base)
	seen := make(map[string]bool, len(base))
	for _, e := range base {
		if e.ID != "" {
			seen[e.ID] = true
		}
	}
	for i, msg := range group {
		if i == skip {
			continue
		}
		for _, e := range msg.Events {
			if e.ID != "" && seen[e.ID] {
				continue
			}
			if e.ID != "" {
				seen[e.ID] = true
			}
			merged = append(merged, e)
		}
	}
	return merged
}
