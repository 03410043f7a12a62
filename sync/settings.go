package sync

import (
	"slices"
	"strings"
)

const (
	DefaultLeadIdentifierHull    = "domain"
	DefaultLeadIdentifierService = "url"
)

// Raw lead status values.
const (
	LeadStatusValueNone       = "N/A"
	LeadStatusValueUseDefault = "default"
)

// RawSettings are the connector settings as persisted by the host, before normalization.
type RawSettings struct {
	APIKey                    string         `yaml:"api_key" json:"api_key"`
	SynchronizedSegments      []string       `yaml:"synchronized_account_segments" json:"synchronized_account_segments"`
	LeadStatus                string         `yaml:"lead_status" json:"lead_status"`
	LeadIdentifierHull        string         `yaml:"lead_identifier_hull" json:"lead_identifier_hull"`
	LeadIdentifierService     string         `yaml:"lead_identifier_service" json:"lead_identifier_service"`
	LeadAttributesOutbound    []FieldMapping `yaml:"lead_attributes_outbound" json:"lead_attributes_outbound"`
	LeadAttributesInbound     []string       `yaml:"lead_attributes_inbound" json:"lead_attributes_inbound"`
	ContactAttributesOutbound []FieldMapping `yaml:"contact_attributes_outbound" json:"contact_attributes_outbound"`
	ContactAttributesInbound  []string       `yaml:"contact_attributes_inbound" json:"contact_attributes_inbound"`
}

// FieldMapping maps a platform attribute onto a service field.
type FieldMapping struct {
	HullField    string `yaml:"hull_field_name" json:"hull_field_name"`
	ServiceField string `yaml:"service_field_name" json:"service_field_name"`
}

type LeadStatusKind int

const (
	LeadStatusNone LeadStatusKind = iota
	LeadStatusUseDefault
	LeadStatusID
)

// LeadStatusPolicy decides the status a newly created lead receives.
type LeadStatusPolicy struct {
	Kind LeadStatusKind
	ID   string
}

// ParseLeadStatusPolicy interprets the raw lead_status setting.
func ParseLeadStatusPolicy(raw string) LeadStatusPolicy {
	switch strings.TrimSpace(raw) {
	case "", LeadStatusValueNone:
		return LeadStatusPolicy{Kind: LeadStatusNone}
	case LeadStatusValueUseDefault:
		return LeadStatusPolicy{Kind: LeadStatusUseDefault}
	default:
		return LeadStatusPolicy{Kind: LeadStatusID, ID: strings.TrimSpace(raw)}
	}
}

// StatusID returns the status to send on create, if the policy names one.
func (p LeadStatusPolicy) StatusID() (string, bool) {
	if p.Kind == LeadStatusID && p.ID != "" {
		return p.ID, true
	}
	return "", false
}

func (p LeadStatusPolicy) String() string {
	switch p.Kind {
	case LeadStatusUseDefault:
		return LeadStatusValueUseDefault
	case LeadStatusID:
		return p.ID
	default:
		return LeadStatusValueNone
	}
}

// ConnectorSettings is the normalized, read-only configuration the engine works with.
type ConnectorSettings struct {
	APIKey                string
	SynchronizedSegments  []string
	LeadStatus            LeadStatusPolicy
	LeadIdentifierHull    string
	LeadIdentifierService string
	LeadOutbound          []FieldMapping
	LeadInbound           []string
	ContactOutbound       []FieldMapping
	ContactInbound        []string
}

// NormalizeSettings returns settings in which the lead identifier pair is always
// part of the outbound lead mapping and the service identifier is always part of
// the inbound lead mapping. raw is left untouched.
func NormalizeSettings(raw RawSettings) ConnectorSettings {
	identHull := strings.TrimSpace(raw.LeadIdentifierHull)
	if identHull == "" {
		identHull = DefaultLeadIdentifierHull
	}
	identService := strings.TrimSpace(raw.LeadIdentifierService)
	if identService == "" {
		identService = DefaultLeadIdentifierService
	}

	leadOutbound := cleanMappings(raw.LeadAttributesOutbound)
	hasIdentMapping := slices.ContainsFunc(leadOutbound, func(m FieldMapping) bool {
		return m.HullField == identHull && m.ServiceField == identService
	})
	if !hasIdentMapping {
		leadOutbound = append(leadOutbound, FieldMapping{HullField: identHull, ServiceField: identService})
	}

	leadInbound := cleanFields(raw.LeadAttributesInbound)
	if !slices.Contains(leadInbound, identService) {
		leadInbound = append(leadInbound, identService)
	}

	return ConnectorSettings{
		APIKey:                strings.TrimSpace(raw.APIKey),
		SynchronizedSegments:  cleanFields(raw.SynchronizedSegments),
		LeadStatus:            ParseLeadStatusPolicy(raw.LeadStatus),
		LeadIdentifierHull:    identHull,
		LeadIdentifierService: identService,
		LeadOutbound:          leadOutbound,
		LeadInbound:           leadInbound,
		ContactOutbound:       cleanMappings(raw.ContactAttributesOutbound),
		ContactInbound:        cleanFields(raw.ContactAttributesInbound),
	}
}

// Raw converts normalized settings back into their persisted form.
func (s ConnectorSettings) Raw() RawSettings {
	return RawSettings{
		APIKey:                    s.APIKey,
		SynchronizedSegments:      slices.Clone(s.SynchronizedSegments),
		LeadStatus:                s.LeadStatus.String(),
		LeadIdentifierHull:        s.LeadIdentifierHull,
		LeadIdentifierService:     s.LeadIdentifierService,
		LeadAttributesOutbound:    slices.Clone(s.LeadOutbound),
		LeadAttributesInbound:     slices.Clone(s.LeadInbound),
		ContactAttributesOutbound: slices.Clone(s.ContactOutbound),
		ContactAttributesInbound:  slices.Clone(s.ContactInbound),
	}
}

// Outbound returns the outbound mapping list for resource.
func (s ConnectorSettings) Outbound(resource Resource) []FieldMapping {
	if resource == ResourceContact {
		return s.ContactOutbound
	}
	return s.LeadOutbound
}

// Inbound returns the inbound field list for resource.
func (s ConnectorSettings) Inbound(resource Resource) []string {
	if resource == ResourceContact {
		return s.ContactInbound
	}
	return s.LeadInbound
}

// cleanMappings drops incomplete entries and returns a fresh slice.
func cleanMappings(mappings []FieldMapping) []FieldMapping {
	result := make([]FieldMapping, 0, len(mappings)+1)
	for _, m := range mappings {
		if m.HullField == "" || m.ServiceField == "" {
			continue
		}
		result = append(result, m)
	}
	return result
}

func cleanFields(fields []string) []string {
	result := make([]string, 0, len(fields)+1)
	for _, f := range fields {
		f = strings.TrimSpace(f)
		if f == "" || slices.Contains(result, f) {
			continue
		}
		result = append(result, f)
	}
	return result
}
