package sync

// Direction selects inbound or outbound field options.
type Direction int

const (
	Inbound Direction = iota
	Outbound
)

// FieldDefinition describes a service field and the directions it can be synchronized in.
type FieldDefinition struct {
	ID    string
	Label string
	In    bool
	Out   bool
}

// FieldOption is a selectable value for a settings field.
type FieldOption struct {
	Value string `json:"value"`
	Label string `json:"label"`
}

var contactFieldDefinitions = []FieldDefinition{
	{ID: "name", Label: "Name", In: true, Out: true},
	{ID: "title", Label: "Title", In: true, Out: true},
	{ID: "phones.mobile", Label: "Phones > Mobile", Out: true},
	{ID: "phones.office", Label: "Phones > Office", Out: true},
	{ID: "phones.direct", Label: "Phones > Direct", Out: true},
	{ID: "phones.home", Label: "Phones > Home", Out: true},
	{ID: "phones.fax", Label: "Phones > Fax", Out: true},
	{ID: "phones.other", Label: "Phones > Other", Out: true},
	{ID: "emails.office", Label: "Emails > Office", Out: true},
	{ID: "emails.home", Label: "Emails > Home", Out: true},
	{ID: "emails.other", Label: "Emails > Other", Out: true},
	{ID: "urls.url", Label: "Urls > Website", Out: true},
	{ID: "phones", Label: "Phones", In: true},
	{ID: "emails", Label: "Emails", In: true},
	{ID: "urls", Label: "Urls", In: true},
}

var leadFieldDefinitions = []FieldDefinition{
	{ID: "name", Label: "Name", In: true, Out: true},
	{ID: "url", Label: "Url", In: true, Out: true},
	{ID: "description", Label: "Description", In: true, Out: true},
	{ID: "status_id", Label: "Status", In: true},
	{ID: "addresses", Label: "Addresses", In: true},
}

// ContactFieldOptions lists the contact fields usable in direction.
func ContactFieldOptions(direction Direction) []FieldOption {
	return fieldOptions(contactFieldDefinitions, direction)
}

// LeadFieldOptions lists the built-in lead fields usable in direction followed
// by every custom lead field.
func LeadFieldOptions(direction Direction, customFields []CustomField) []FieldOption {
	options := fieldOptions(leadFieldDefinitions, direction)
	for _, f := range customFields {
		options = append(options, FieldOption{Value: "custom." + f.ID, Label: f.Name})
	}
	return options
}

// LeadStatusOptions lists the choices for the status of created leads.
func LeadStatusOptions(statuses []LeadStatus) []FieldOption {
	options := []FieldOption{
		{Value: LeadStatusValueNone, Label: "(Do not set)"},
		{Value: LeadStatusValueUseDefault, Label: "(Use default)"},
	}
	for _, s := range statuses {
		options = append(options, FieldOption{Value: s.ID, Label: s.Label})
	}
	return options
}

// AccountIdentifierOptions lists the platform attributes usable as lead identifier.
func AccountIdentifierOptions() []FieldOption {
	return []FieldOption{
		{Value: "domain", Label: "Domain"},
		{Value: "external_id", Label: "External ID"},
	}
}

func fieldOptions(defs []FieldDefinition, direction Direction) []FieldOption {
	var options []FieldOption
	for _, d := range defs {
		if (direction == Inbound && d.In) || (direction == Outbound && d.Out) {
			options = append(options, FieldOption{Value: d.ID, Label: d.Label})
		}
	}
	return options
}
