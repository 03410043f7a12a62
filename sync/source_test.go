// go test github.com/homemade/crmsync/sync -v
package sync

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSource_Lookup(t *testing.T) {
	s := NewSource(`{"custom.cf_1":"literal","custom":{"cf_1":"nested"},"traits":{"plan":"gold"},"empty":null}`)

	assert.Equal(t, "literal", s.Lookup("custom.cf_1").String())
	assert.Equal(t, "gold", s.Lookup("traits.plan").String())
	assert.False(t, s.Lookup("").Exists())
	assert.False(t, s.Has("empty"))
	assert.False(t, s.Has("missing"))

	_, ok := s.StringForPath("empty")
	assert.False(t, ok)
}

func TestSource_InvalidJSON(t *testing.T) {
	s := NewSource("{not json")
	assert.True(t, s.IsEmpty())
	assert.Equal(t, "{}", s.Raw())
}

func TestMessage_UnmarshalJSON(t *testing.T) {
	var msg Message
	require.NoError(t, json.Unmarshal([]byte(`{
		"message_id": "m1",
		"entity": {"id":"usr1","email":"jane@acme.com","indexed_at":"2024-05-20T10:00:00Z"},
		"account": {"id":"acc1"},
		"account_segments": [{"id":"seg_1","name":"Customers"}],
		"events": [{"event_id":"e1","event":"Signed Up"}]
	}`), &msg))

	assert.Equal(t, "usr1", msg.EntityID())
	assert.Equal(t, "acc1", msg.Account.ID())
	assert.Equal(t, "seg_1", msg.AccountSegments[0].ID)
	assert.Equal(t, "Signed Up", msg.Events[0].Name)
	assert.Equal(t, 2024, msg.IndexedAt().Year())

	out, err := json.Marshal(msg)
	require.NoError(t, err)
	assert.Contains(t, string(out), `"email":"jane@acme.com"`)
}

func TestWriteObject(t *testing.T) {
	obj := NewWriteObject()
	require.NoError(t, obj.SetString("id", "lead_abcde"))
	require.NoError(t, obj.SetString("custom.cf_1", "gold"))
	require.NoError(t, obj.SetField("score", NewSource(`{"v":12.5}`).Lookup("v")))
	require.NoError(t, obj.AppendToFamily("urls", "url", "url", NewSource(`{"v":"https://acme.com"}`).Lookup("v")))

	assert.Equal(t, "lead_abcde", obj.ID())
	assert.JSONEq(t, `{"custom.cf_1":"gold","score":12.5,"urls":[{"type":"url","url":"https://acme.com"}]}`, string(obj.Body()))

	require.NoError(t, obj.DeleteField("custom.cf_1"))
	assert.False(t, obj.Get("custom.cf_1").Exists())
	_, ok := obj.StringField("lead_id")
	assert.False(t, ok)
}

func TestEnvelope_States(t *testing.T) {
	env := NewEnvelope(ResourceLead, Message{Entity: NewSnapshot(`{"id":"acc1"}`)})
	assert.Equal(t, StatePending, env.State())

	env.Skip(MessageSkipAccountNotMatchingSegments)
	reason, skipped := env.SkipReason()
	assert.True(t, skipped)
	assert.Equal(t, MessageSkipAccountNotMatchingSegments, reason)

	env.Resolve(NewRecord(`{"id":"lead_abcde"}`))
	assert.Equal(t, StateResolved, env.State())
	assert.Equal(t, "lead_abcde", env.ReadObject.ID())
	_, skipped = env.SkipReason()
	assert.False(t, skipped)
}
