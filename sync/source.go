package sync

import (
	"encoding/json"
	"strings"

	"github.com/tidwall/gjson"
)

// Source wraps a JSON object for read-only lookups by attribute name.
type Source struct {
	data gjson.Result
}

// NewSource parses raw JSON. Invalid input yields an empty Source.
func NewSource(raw string) Source {
	if !gjson.Valid(raw) {
		return Source{}
	}
	return Source{data: gjson.Parse(raw)}
}

// Lookup resolves field first as a literal key (service custom fields use dotted
// keys such as "custom.cf_abc") and falls back to a nested path.
func (s Source) Lookup(field string) gjson.Result {
	if field == "" {
		return gjson.Result{}
	}
	if result := s.data.Get(escapePath(field)); result.Exists() {
		return result
	}
	return s.data.Get(field)
}

// Has reports whether field is present and not null.
func (s Source) Has(field string) bool {
	result := s.Lookup(field)
	return result.Exists() && result.Type != gjson.Null
}

func (s Source) StringForPath(path string) (string, bool) {
	result := s.Lookup(path)
	return result.String(), result.Exists() && (result.Value() != nil)
}

func (s Source) IntForPath(path string) (int64, bool) {
	result := s.Lookup(path)
	return result.Int(), result.Exists() && (result.Value() != nil)
}

func (s Source) BoolForPath(path string) (bool, bool) {
	result := s.Lookup(path)
	return result.Bool(), result.Exists() && (result.Value() != nil)
}

// Raw returns the underlying JSON text.
func (s Source) Raw() string {
	if s.data.Raw == "" {
		return "{}"
	}
	return s.data.Raw
}

func (s Source) IsEmpty() bool {
	return !s.data.IsObject()
}

func (s Source) MarshalJSON() ([]byte, error) {
	return []byte(s.Raw()), nil
}

func (s *Source) UnmarshalJSON(b []byte) error {
	if string(b) == "null" {
		*s = Source{}
		return nil
	}
	var raw json.RawMessage
	if err := json.Unmarshal(b, &raw); err != nil {
		return err
	}
	s.data = gjson.ParseBytes(raw)
	return nil
}

// Snapshot is the platform-side view of an account or user.
type Snapshot struct {
	Source
}

func NewSnapshot(raw string) Snapshot {
	return Snapshot{Source: NewSource(raw)}
}

// ID returns the platform-side entity id.
func (s Snapshot) ID() string {
	id, _ := s.StringForPath("id")
	return id
}

// Record is an object returned by the service: a lead, contact, status or export row.
type Record struct {
	Source
}

func NewRecord(raw string) Record {
	return Record{Source: NewSource(raw)}
}

func recordFromResult(result gjson.Result) Record {
	return Record{Source: Source{data: result}}
}

// ID returns the service-side id.
func (r Record) ID() string {
	id, _ := r.StringForPath("id")
	return id
}

// Contacts returns the contacts nested in a lead record.
func (r Record) Contacts() []Record {
	var result []Record
	r.Lookup("contacts").ForEach(func(_, value gjson.Result) bool {
		if value.IsObject() {
			result = append(result, recordFromResult(value))
		}
		return true
	})
	return result
}

// escapePath escapes the gjson/sjson path syntax so that key is read as a single literal key.
func escapePath(key string) string {
	if !strings.ContainsAny(key, `.*?|#@!\:`) {
		return key
	}
	var b strings.Builder
	for _, r := range key {
		switch r {
		case '.', '*', '?', '|', '#', '@', '!', '\\', ':':
			b.WriteByte('\\')
		}
		b.WriteRune(r)
	}
	return b.String()
}
