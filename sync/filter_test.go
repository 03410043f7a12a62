// go test github.com/homemade/crmsync/sync -v
package sync

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func accountEnvelope(t *testing.T, entity map[string]any, remoteID string, segments ...string) *Envelope {
	env := NewEnvelope(ResourceLead, accountMessage(t, entity, segments...))
	env.WriteObject = NewWriteObject()
	if remoteID != "" {
		require.NoError(t, env.WriteObject.SetString("id", remoteID))
	}
	return env
}

func userEnvelope(t *testing.T, leadID, remoteID string, accountSegments ...string) *Envelope {
	env := NewEnvelope(ResourceContact, userMessage(t, map[string]any{"id": "usr1"}, map[string]any{"id": "acc1"}, accountSegments...))
	env.WriteObject = NewWriteObject()
	if leadID != "" {
		require.NoError(t, env.WriteObject.SetString("lead_id", leadID))
	}
	if remoteID != "" {
		require.NoError(t, env.WriteObject.SetString("id", remoteID))
	}
	return env
}

func TestFilterAccounts(t *testing.T) {
	filter := NewFilterUtil(testSettings())
	noIdent := accountEnvelope(t, map[string]any{"id": "a1"}, "", "seg_1")
	wrongSegment := accountEnvelope(t, map[string]any{"id": "a2", "domain": "b.com"}, "", "seg_other")
	insert := accountEnvelope(t, map[string]any{"id": "a3", "domain": "c.com"}, "", "seg_1")
	update := accountEnvelope(t, map[string]any{"id": "a4", "domain": "d.com"}, "lead_abcde", "seg_other", "seg_1")

	result := filter.FilterAccounts([]*Envelope{noIdent, wrongSegment, insert, update})
	assert.Equal(t, 4, result.Len())
	assert.Equal(t, []*Envelope{noIdent, wrongSegment}, result.ToSkip)
	assert.Equal(t, []*Envelope{insert}, result.ToInsert)
	assert.Equal(t, []*Envelope{update}, result.ToUpdate)

	reason, skipped := noIdent.SkipReason()
	assert.True(t, skipped)
	assert.Equal(t, "OperationSkipAccountNoServiceIdentValue", reason.ID)
	assert.Contains(t, reason.Message, "'domain'")
	reason, _ = wrongSegment.SkipReason()
	assert.Equal(t, MessageSkipAccountNotMatchingSegments.ID, reason.ID)
	assert.Equal(t, StatePending, insert.State())
}

func TestFilterAccounts_IdentifierCheckedFirst(t *testing.T) {
	env := accountEnvelope(t, map[string]any{"id": "a1", "domain": nil}, "")
	NewFilterUtil(testSettings()).FilterAccounts([]*Envelope{env})

	reason, skipped := env.SkipReason()
	require.True(t, skipped)
	assert.Equal(t, "OperationSkipAccountNoServiceIdentValue", reason.ID)
}

func TestFilterAccounts_EmptyWhitelistSkipsEverything(t *testing.T) {
	settings := testSettings()
	settings.SynchronizedSegments = nil
	filter := NewFilterUtil(settings)

	result := filter.FilterAccounts([]*Envelope{
		accountEnvelope(t, map[string]any{"id": "a1", "domain": "a.com"}, "", "seg_1"),
		accountEnvelope(t, map[string]any{"id": "a2", "domain": "b.com"}, "lead_abcde", "seg_1"),
	})
	assert.Len(t, result.ToSkip, 2)
	assert.Empty(t, result.ToInsert)
	assert.Empty(t, result.ToUpdate)
	assert.False(t, filter.MatchesSegments([]Segment{{ID: "seg_1"}}))
}

func TestFilterUsers(t *testing.T) {
	filter := NewFilterUtil(testSettings())
	unlinked := userEnvelope(t, "", "", "seg_1")
	wrongSegment := userEnvelope(t, "lead_abcde", "", "seg_other")
	insert := userEnvelope(t, "lead_abcde", "", "seg_1")
	update := userEnvelope(t, "lead_abcde", "cont_abcde", "seg_1")

	result := filter.FilterUsers([]*Envelope{unlinked, wrongSegment, insert, update})
	assert.Equal(t, 4, result.Len())
	assert.Equal(t, []*Envelope{insert}, result.ToInsert)
	assert.Equal(t, []*Envelope{update}, result.ToUpdate)

	reason, _ := unlinked.SkipReason()
	assert.Equal(t, MessageSkipUserNotLinkedToAccount.ID, reason.ID)
	reason, _ = wrongSegment.SkipReason()
	assert.Equal(t, MessageSkipAccountNotMatchingSegmentsUser.ID, reason.ID)
}

func TestFilterUsers_UserSegmentsAreIgnored(t *testing.T) {
	env := userEnvelope(t, "lead_abcde", "")
	env.Message.Segments = []Segment{{ID: "seg_1"}}

	result := NewFilterUtil(testSettings()).FilterUsers([]*Envelope{env})
	assert.Len(t, result.ToSkip, 1)
}

func TestDeduplicateMessages(t *testing.T) {
	older := accountMessage(t, map[string]any{"id": "a1", "name": "Old", "indexed_at": "2024-01-01T10:00:00Z"}, "seg_1")
	older.Events = []Event{{ID: "e1", Name: "Signed Up"}, {ID: "e2", Name: "Logged In"}}
	other := accountMessage(t, map[string]any{"id": "a2", "indexed_at": "2024-01-01T09:00:00Z"})
	newer := accountMessage(t, map[string]any{"id": "a1", "name": "New", "indexed_at": "2024-01-01T11:00:00Z"})
	newer.Events = []Event{{ID: "e2", Name: "Logged In"}, {ID: "e3", Name: "Upgraded"}}

	result := DeduplicateMessages([]Message{older, other, newer})
	require.Len(t, result, 2)
	assert.Equal(t, "a1", result[0].EntityID())
	assert.Equal(t, "a2", result[1].EntityID())

	name, _ := result[0].Entity.StringForPath("name")
	assert.Equal(t, "New", name)
	var ids []string
	for _, e := range result[0].Events {
		ids = append(ids, e.ID)
	}
	assert.ElementsMatch(t, []string{"e1", "e2", "e3"}, ids)
	assert.Len(t, newer.Events, 2, "input messages are not modified")
}

func TestDeduplicateMessages_TieGoesToLater(t *testing.T) {
	first := accountMessage(t, map[string]any{"id": "a1", "name": "First"})
	second := accountMessage(t, map[string]any{"id": "a1", "name": "Second"})

	result := DeduplicateMessages([]Message{first, second})
	require.Len(t, result, 1)
	name, _ := result[0].Entity.StringForPath("name")
	assert.Equal(t, "Second", name)
}

func TestDeduplicateMessages_WithoutEntityIDPassThrough(t *testing.T) {
	first := accountMessage(t, map[string]any{"name": "No Id One"})
	second := accountMessage(t, map[string]any{"name": "No Id Two"})
	keyed := accountMessage(t, map[string]any{"id": "a1"})

	result := DeduplicateMessages([]Message{first, keyed, second})
	require.Len(t, result, 3)
	firstName, _ := result[0].Entity.StringForPath("name")
	secondName, _ := result[2].Entity.StringForPath("name")
	assert.Equal(t, "No Id One", firstName)
	assert.Equal(t, "a1", result[1].EntityID())
	assert.Equal(t, "No Id Two", secondName)
}
