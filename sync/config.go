package sync

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"os"

	"go.uber.org/config"
)

// MappingFile is a settings source, e.g. a YAML file on disk or embedded.
type MappingFile struct {
	Name   string
	Reader io.Reader
	Length int
}

// MappingFileFromPath reads the file at path.
func MappingFileFromPath(path string) (MappingFile, error) {
	var result MappingFile
	b, err := os.ReadFile(path)
	if err == nil {
		result.Name = path
		result.Reader = bytes.NewReader(b)
		result.Length = len(b)
	}
	return result, err
}

// MappingFileFromBytes wraps in-memory settings.
func MappingFileFromBytes(name string, b []byte) MappingFile {
	return MappingFile{Name: name, Reader: bytes.NewReader(b), Length: len(b)}
}

type SettingsUnmarshaler interface {
	Unmarshal(compev CompositeEnvVar, sources ...MappingFile) (RawSettings, error)
}

// CompositeEnvVar resolves ${VAR} references found in settings files.
type CompositeEnvVar interface {
	LookupEnv(child string) (string, bool)
}

// JSONCompositeEnvVar resolves variables from a JSON object held in the
// environment variable Parent, e.g. CRMSYNC={"API_KEY":"..."}.
type JSONCompositeEnvVar struct {
	Parent string
}

func (c JSONCompositeEnvVar) LookupEnv(child string) (string, bool) {
	if c.Parent != "" {
		s := os.Getenv(c.Parent)
		if s != "" {
			m := make(map[string]string)
			err := json.Unmarshal([]byte(s), &m)
			if err == nil {
				v, exists := m[child]
				return v, exists
			}
		}
	}
	return "", false
}

// OSEnv resolves variables from the process environment.
type OSEnv struct{}

func (OSEnv) LookupEnv(child string) (string, bool) {
	return os.LookupEnv(child)
}

// YAMLSettingsUnmarshaler merges YAML sources in order, later sources winning.
type YAMLSettingsUnmarshaler struct{}

func (u YAMLSettingsUnmarshaler) Unmarshal(compev CompositeEnvVar, sources ...MappingFile) (RawSettings, error) {
	var result RawSettings
	var options []config.YAMLOption
	for _, s := range sources {
		if s.Length > 0 {
			options = append(options, config.Source(s.Reader))
		}
	}
	if len(options) == 0 {
		return result, fmt.Errorf("no settings sources to read")
	}
	options = append(options, config.Expand(compev.LookupEnv))
	yaml, err := config.NewYAML(options...)
	if err != nil {
		return result, fmt.Errorf("failed to read yaml settings %w", err)
	}
	readError := func(key string, cause error) error {
		return fmt.Errorf("failed to read '%s' from yaml settings %w", key, cause)
	}

	populate := []struct {
		key    string
		target any
	}{
		{"api_key", &result.APIKey},
		{"synchronized_account_segments", &result.SynchronizedSegments},
		{"lead_status", &result.LeadStatus},
		{"lead_identifier_hull", &result.LeadIdentifierHull},
		{"lead_identifier_service", &result.LeadIdentifierService},
		{"lead_attributes_outbound", &result.LeadAttributesOutbound},
		{"lead_attributes_inbound", &result.LeadAttributesInbound},
		{"contact_attributes_outbound", &result.ContactAttributesOutbound},
		{"contact_attributes_inbound", &result.ContactAttributesInbound},
	}
	for _, p := range populate {
		if !yaml.Get(p.key).HasValue() {
			continue
		}
		if err := yaml.Get(p.key).Populate(p.target); err != nil {
			return result, readError(p.key, err)
		}
	}
	return result, nil
}

// ParseJSONSettings reads settings persisted by the host as JSON.
func ParseJSONSettings(b []byte) (RawSettings, error) {
	var result RawSettings
	if err := json.Unmarshal(b, &result); err != nil {
		return result, fmt.Errorf("failed to read json settings %w", err)
	}
	return result, nil
}
