package sync

import (
	"bytes"
	"encoding/csv"
	"fmt"
	"sort"
	"strings"

	"github.com/iancoleman/strcase"
)

// FieldDocRow represents a single row in the field mapping documentation.
type FieldDocRow struct {
	Resource      Resource
	Direction     Direction
	ServiceField  string // e.g. "emails.office", "custom.cf_abc"
	ServiceLabel  string // custom field name or built-in label
	PlatformField string // platform attribute read or written
	Notes         string
}

// FieldDocumentation lists every field a connector synchronizes.
type FieldDocumentation struct {
	Label string
	Rows  []FieldDocRow
}

// GenerateFieldDocumentation documents settings, resolving custom field names
// from customFields when they are known.
func GenerateFieldDocumentation(settings ConnectorSettings, label string, customFields []CustomField) FieldDocumentation {
	doc := FieldDocumentation{Label: label, Rows: []FieldDocRow{}}
	mapping := NewMappingUtil(settings, nil, customFields)

	for _, resource := range []Resource{ResourceLead, ResourceContact} {
		for _, m := range settings.Outbound(resource) {
			row := FieldDocRow{
				Resource:      resource,
				Direction:     Outbound,
				ServiceField:  m.ServiceField,
				ServiceLabel:  mapping.serviceLabel(resource, m.ServiceField),
				PlatformField: m.HullField,
			}
			var notes []string
			if _, _, ok := splitFamily(m.ServiceField); ok {
				notes = append(notes, "Appended to "+strings.SplitN(m.ServiceField, ".", 2)[0])
			}
			if resource == ResourceLead && m.ServiceField == settings.LeadIdentifierService {
				notes = append(notes, "Lead identifier")
			}
			row.Notes = strings.Join(notes, " | ")
			doc.Rows = append(doc.Rows, row)
		}
		for _, field := range settings.Inbound(resource) {
			doc.Rows = append(doc.Rows, FieldDocRow{
				Resource:      resource,
				Direction:     Inbound,
				ServiceField:  field,
				ServiceLabel:  mapping.serviceLabel(resource, field),
				PlatformField: mapping.inboundAttributeName(field),
				Notes:         inboundNote(field),
			})
		}
	}

	sort.SliceStable(doc.Rows, func(i, j int) bool {
		if doc.Rows[i].Resource != doc.Rows[j].Resource {
			return doc.Rows[i].Resource == ResourceLead
		}
		if doc.Rows[i].Direction != doc.Rows[j].Direction {
			return doc.Rows[i].Direction == Outbound
		}
		return doc.Rows[i].ServiceField < doc.Rows[j].ServiceField
	})
	return doc
}

func (m *MappingUtil) serviceLabel(resource Resource, field string) string {
	if id, ok := strings.CutPrefix(field, "custom."); ok {
		if def, found := m.customFieldByID(id); found {
			return def.Name
		}
		return "(unknown custom field)"
	}
	defs := leadFieldDefinitions
	if resource == ResourceContact {
		defs = contactFieldDefinitions
	}
	for _, d := range defs {
		if d.ID == field {
			return d.Label
		}
	}
	return field
}

// inboundAttributeName is the platform attribute written for a scalar inbound field.
func (m *MappingUtil) inboundAttributeName(field string) string {
	switch {
	case field == "status_id":
		return AttributeStatus
	case field == "addresses":
		return AttributePrefix + "/address_<label>_<key>"
	case familyValueKeys[field] != "":
		return AttributePrefix + "/" + familyValueKeys[field] + "_<type>"
	}
	if id, ok := strings.CutPrefix(field, "custom."); ok {
		name := id
		if def, found := m.customFieldByID(id); found {
			name = def.Name
		}
		return AttributePrefix + "/" + strcase.ToSnake(name)
	}
	return AttributePrefix + "/" + strcase.ToSnake(field)
}

func inboundNote(field string) string {
	switch {
	case field == "name":
		return "Also fills the display name when empty"
	case field == "addresses":
		return "First address only"
	case field == "opportunities":
		return "Not synchronized"
	case field == "status_id":
		return "Resolved to status label"
	case familyValueKeys[field] != "":
		return "One attribute per type"
	}
	return ""
}

func (d Direction) String() string {
	if d == Outbound {
		return "outbound"
	}
	return "inbound"
}

// FormatCSV formats the field documentation as CSV.
func (d FieldDocumentation) FormatCSV() (string, error) {
	var buf bytes.Buffer
	writer := csv.NewWriter(&buf)

	if err := writer.Write([]string{fmt.Sprintf("# Connector: %s", d.Label)}); err != nil {
		return "", err
	}
	headers := []string{"Resource", "Direction", "Service Field", "Service Label", "Platform Attribute", "Mapping Notes"}
	if err := writer.Write(headers); err != nil {
		return "", err
	}
	for _, row := range d.Rows {
		record := []string{string(row.Resource), row.Direction.String(), row.ServiceField, row.ServiceLabel, row.PlatformField, row.Notes}
		if err := writer.Write(record); err != nil {
			return "", err
		}
	}

	writer.Flush()
	if err := writer.Error(); err != nil {
		return "", err
	}
	return buf.String(), nil
}
