package sync

import (
	"net/url"
	"strings"

	"github.com/tidwall/gjson"
	"github.com/tidwall/sjson"
)

const (
	// AttributePrefix namespaces every platform attribute owned by the connector.
	AttributePrefix = "service"
	// AnonymousIDPrefix prefixes remote ids used as platform anonymous ids.
	AnonymousIDPrefix = "service:"

	AttributeRemoteID  = AttributePrefix + "/id"
	AttributeName      = AttributePrefix + "/name"
	AttributeCreatedAt = AttributePrefix + "/created_at"
	AttributeUpdatedAt = AttributePrefix + "/updated_at"
	AttributeLeadID    = AttributePrefix + "/lead_id"
	AttributeStatus    = AttributePrefix + "/status"

	// DisplayNameAttribute is the platform's own display name.
	DisplayNameAttribute = "name"
)

// typed multi-valued families and the key holding each entry's value
var familyValueKeys = map[string]string{
	"emails": "email",
	"phones": "phone",
	"urls":   "url",
}

// MappingUtil translates between platform snapshots and service objects.
// It holds the remote metadata it needs and performs no I/O.
type MappingUtil struct {
	settings     ConnectorSettings
	statuses     []LeadStatus
	customFields []CustomField
}

func NewMappingUtil(settings ConnectorSettings, statuses []LeadStatus, customFields []CustomField) *MappingUtil {
	return &MappingUtil{
		settings:     settings,
		statuses:     statuses,
		customFields: customFields,
	}
}

// MapToLead builds the lead write object for an account envelope. The object
// carries an id when the lead already exists on the service.
func (m *MappingUtil) MapToLead(env *Envelope) (*WriteObject, error) {
	if len(m.settings.LeadOutbound) == 0 {
		return nil, &MappingConfigurationError{Resource: ResourceLead}
	}
	obj := NewWriteObject()
	if name := env.Snapshot.Lookup("name"); present(name) {
		if err := obj.SetField("name", name); err != nil {
			return nil, err
		}
	}
	if domain := env.Snapshot.Lookup("domain"); present(domain) {
		if err := obj.SetField("url", domain); err != nil {
			return nil, err
		}
	}

	id := firstNonEmpty(snapshotString(env.Snapshot, AttributeRemoteID), env.CachedRemoteID)
	if id != "" {
		if err := obj.SetString("id", id); err != nil {
			return nil, err
		}
	} else if statusID, ok := m.settings.LeadStatus.StatusID(); ok {
		if err := obj.SetString("status_id", statusID); err != nil {
			return nil, err
		}
	}

	if err := MapOutbound(m.settings.LeadOutbound, env.Snapshot, obj); err != nil {
		return nil, err
	}
	return obj, nil
}

// MapToContact builds the contact write object for a user envelope. lead_id is
// only set when the linked account has a known lead.
func (m *MappingUtil) MapToContact(env *Envelope) (*WriteObject, error) {
	if len(m.settings.ContactOutbound) == 0 {
		return nil, &MappingConfigurationError{Resource: ResourceContact}
	}
	obj := NewWriteObject()
	if name := env.Snapshot.Lookup("name"); present(name) {
		if err := obj.SetField("name", name); err != nil {
			return nil, err
		}
	}
	if leadID := firstNonEmpty(snapshotString(env.Account, AttributeRemoteID), env.CachedLeadID); leadID != "" {
		if err := obj.SetString("lead_id", leadID); err != nil {
			return nil, err
		}
	}
	if id := firstNonEmpty(snapshotString(env.Snapshot, AttributeRemoteID), env.CachedRemoteID); id != "" {
		if err := obj.SetString("id", id); err != nil {
			return nil, err
		}
	}
	if err := MapOutbound(m.settings.ContactOutbound, env.Snapshot, obj); err != nil {
		return nil, err
	}
	return obj, nil
}

// MapOutbound applies mappings from source onto destination. Missing source
// attributes are skipped; family targets such as "emails.office" append an entry.
func MapOutbound(mappings []FieldMapping, source Snapshot, destination Mappable) error {
	for _, mapping := range mappings {
		value := source.Lookup(mapping.HullField)
		if !present(value) {
			continue
		}
		if family, entryType, ok := splitFamily(mapping.ServiceField); ok {
			if err := destination.AppendToFamily(family, entryType, familyValueKeys[family], value); err != nil {
				return err
			}
			continue
		}
		if err := destination.SetField(mapping.ServiceField, value); err != nil {
			return err
		}
	}
	return nil
}

func splitFamily(field string) (family, entryType string, ok bool) {
	family, entryType, found := strings.Cut(field, ".")
	if !found || entryType == "" {
		return "", "", false
	}
	if _, known := familyValueKeys[family]; !known {
		return "", "", false
	}
	return family, entryType, true
}

// MapToHullAttributes converts a lead or contact into platform attributes.
func (m *MappingUtil) MapToHullAttributes(resource Resource, record Record) Attributes {
	attrs := Attributes{}
	for _, field := range m.settings.Inbound(resource) {
		m.mapInbound(attrs, record, field)
	}

	if id := record.ID(); id != "" {
		attrs[AttributeRemoteID] = Attribute{Value: id, Operation: OperationSet}
	}
	if name := record.Lookup("name"); name.Type == gjson.String && name.Str != "" {
		attrs[DisplayNameAttribute] = Attribute{Value: name.Str, Operation: OperationSetIfNull}
	}
	if created := record.Lookup("date_created"); present(created) {
		attrs[AttributeCreatedAt] = Attribute{Value: created.Value(), Operation: OperationSetIfNull}
	}
	if updated := record.Lookup("date_updated"); present(updated) {
		attrs[AttributeUpdatedAt] = Attribute{Value: updated.Value(), Operation: OperationSet}
	}
	if resource == ResourceContact {
		if leadID, ok := record.StringForPath("lead_id"); ok && leadID != "" {
			attrs[AttributeLeadID] = Attribute{Value: leadID, Operation: OperationSet}
		}
	}
	return attrs
}

func (m *MappingUtil) mapInbound(attrs Attributes, record Record, field string) {
	value := record.Lookup(field)
	if !value.Exists() {
		return
	}
	switch {
	case field == "opportunities":
		// not representable as attributes
	case field == "addresses":
		first := value.Get("0")
		if !first.IsObject() {
			return
		}
		label := first.Get("label").String()
		if label == "" {
			label = "office"
		}
		first.ForEach(func(key, v gjson.Result) bool {
			if key.String() != "label" {
				attrs[AttributePrefix+"/address_"+label+"_"+key.String()] = Attribute{Value: v.Value(), Operation: OperationSet}
			}
			return true
		})
	case familyValueKeys[field] != "":
		valueKey := familyValueKeys[field]
		value.ForEach(func(_, entry gjson.Result) bool {
			entryType := entry.Get("type").String()
			if entryType == "" {
				entryType = "other"
			}
			if v := entry.Get(valueKey); v.Exists() {
				attrs[AttributePrefix+"/"+valueKey+"_"+entryType] = Attribute{Value: v.Value(), Operation: OperationSet}
			}
			return true
		})
	case field == "status_id":
		if label, ok := m.statusLabel(value.String()); ok {
			attrs[AttributeStatus] = Attribute{Value: label, Operation: OperationSet}
		}
	default:
		// custom fields are named after their definition
		attrs[m.inboundAttributeName(field)] = Attribute{Value: value.Value(), Operation: OperationSet}
	}
}

// MapToHullIdentity derives the platform identity of a lead or contact.
func (m *MappingUtil) MapToHullIdentity(resource Resource, record Record) Identity {
	var ident Identity
	if id := record.ID(); id != "" {
		ident.AnonymousID = AnonymousIDPrefix + id
	}
	if resource == ResourceContact {
		record.Lookup("emails").ForEach(func(_, entry gjson.Result) bool {
			if email := entry.Get("email").String(); email != "" {
				ident.Email = email
				return false
			}
			return true
		})
		return ident
	}

	switch m.settings.LeadIdentifierHull {
	case "domain":
		if v, ok := record.StringForPath(m.settings.LeadIdentifierService); ok && v != "" {
			ident.Domain = NormalizeURL(v)
		}
	case "external_id":
		if v, ok := record.StringForPath(m.settings.LeadIdentifierService); ok && v != "" {
			ident.ExternalID = v
		}
		if v, ok := record.StringForPath("url"); ok && v != "" {
			ident.Domain = NormalizeURL(v)
		}
	}
	return ident
}

// NormalizeURL returns the hostname of raw, or raw itself when it has none.
func NormalizeURL(raw string) string {
	u, err := url.Parse(raw)
	if err != nil || u.Hostname() == "" {
		return raw
	}
	return u.Hostname()
}

// WithCustomFieldIDs re-keys the custom values of an exported lead, which the
// export keys by field name, to the "custom.<id>" keys the API uses.
func (m *MappingUtil) WithCustomFieldIDs(lead Record) Record {
	raw := lead.Raw()
	lead.Lookup("custom").ForEach(func(key, value gjson.Result) bool {
		def, ok := m.customFieldByName(key.String())
		if !ok {
			return true
		}
		if updated, err := sjson.SetRaw(raw, escapePath("custom."+def.ID), value.Raw); err == nil {
			raw = updated
		}
		return true
	})
	return NewRecord(raw)
}

func (m *MappingUtil) statusLabel(id string) (string, bool) {
	for _, s := range m.statuses {
		if s.ID == id {
			return s.Label, true
		}
	}
	return "", false
}

func (m *MappingUtil) customFieldByID(id string) (CustomField, bool) {
	for _, f := range m.customFields {
		if f.ID == id {
			return f, true
		}
	}
	return CustomField{}, false
}

func (m *MappingUtil) customFieldByName(name string) (CustomField, bool) {
	for _, f := range m.customFields {
		if f.Name == name {
			return f, true
		}
	}
	return CustomField{}, false
}

func present(result gjson.Result) bool {
	return result.Exists() && result.Type != gjson.Null
}

func snapshotString(s Snapshot, field string) string {
	v, ok := s.StringForPath(field)
	if !ok {
		return ""
	}
	return v
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
