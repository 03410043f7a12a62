package sync

import (
	"github.com/tidwall/gjson"
	"github.com/tidwall/sjson"
)

// Mappable is implemented by objects that outbound field mappings write into.
type Mappable interface {
	SetField(key string, value gjson.Result) error
	AppendToFamily(family, entryType, valueKey string, value gjson.Result) error
	DeleteField(key string) error
}

// WriteObject is a JSON object sent to the service on create or update.
type WriteObject struct {
	raw string
}

func NewWriteObject() *WriteObject {
	return &WriteObject{raw: "{}"}
}

// SetField sets key as a literal top-level key, keeping the value's JSON type.
func (w *WriteObject) SetField(key string, value gjson.Result) error {
	raw := value.Raw
	if raw == "" {
		raw = "null"
	}
	updated, err := sjson.SetRaw(w.raw, escapePath(key), raw)
	if err != nil {
		return err
	}
	w.raw = updated
	return nil
}

// SetString sets key to a string value.
func (w *WriteObject) SetString(key, value string) error {
	updated, err := sjson.Set(w.raw, escapePath(key), value)
	if err != nil {
		return err
	}
	w.raw = updated
	return nil
}

// AppendToFamily appends {"type": entryType, valueKey: value} to the family array.
func (w *WriteObject) AppendToFamily(family, entryType, valueKey string, value gjson.Result) error {
	entry, err := sjson.Set("{}", "type", entryType)
	if err != nil {
		return err
	}
	raw := value.Raw
	if raw == "" {
		raw = "null"
	}
	entry, err = sjson.SetRaw(entry, escapePath(valueKey), raw)
	if err != nil {
		return err
	}
	current := w.raw
	if !gjson.Get(current, escapePath(family)).IsArray() {
		if current, err = sjson.SetRaw(current, escapePath(family), "[]"); err != nil {
			return err
		}
	}
	updated, err := sjson.SetRaw(current, escapePath(family)+".-1", entry)
	if err != nil {
		return err
	}
	w.raw = updated
	return nil
}

func (w *WriteObject) DeleteField(key string) error {
	updated, err := sjson.Delete(w.raw, escapePath(key))
	if err != nil {
		return err
	}
	w.raw = updated
	return nil
}

// Get reads a literal top-level key.
func (w *WriteObject) Get(key string) gjson.Result {
	return gjson.Get(w.raw, escapePath(key))
}

// StringField returns the string value of key and whether it is set and non-empty.
func (w *WriteObject) StringField(key string) (string, bool) {
	result := w.Get(key)
	if !result.Exists() || result.Type == gjson.Null {
		return "", false
	}
	return result.String(), result.String() != ""
}

// ID returns the remote id carried by the object, if any.
func (w *WriteObject) ID() string {
	id, _ := w.StringField("id")
	return id
}

// Body returns the object without its id, as sent in update and create requests.
func (w *WriteObject) Body() []byte {
	body, err := sjson.Delete(w.raw, "id")
	if err != nil {
		return []byte(w.raw)
	}
	return []byte(body)
}

func (w *WriteObject) String() string {
	return w.raw
}

func (w *WriteObject) MarshalJSON() ([]byte, error) {
	return []byte(w.raw), nil
}
