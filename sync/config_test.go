// go test github.com/homemade/crmsync/sync -v
package sync

import (
	"os"
	"path/filepath"
	"testing"
	"testing/fstest"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testSettingsYAML = `
api_key: ${API_KEY}
synchronized_account_segments:
  - seg_1
  - seg_2
lead_status: stat_1
lead_attributes_outbound:
  - hull_field_name: name
    service_field_name: name
  - hull_field_name: description
    service_field_name: description
lead_attributes_inbound:
  - name
  - status_id
contact_attributes_outbound:
  - hull_field_name: email
    service_field_name: emails.office
contact_attributes_inbound:
  - emails
`

func writeSettingsFile(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "crmsync.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestLoadSettings_CompositeEnvVar(t *testing.T) {
	t.Setenv("CRMSYNC_TEST", `{"API_KEY":"secret-key-123"}`)
	path := writeSettingsFile(t, testSettingsYAML)

	settings, err := LoadSettings(path, ConfigWithEnvVar("CRMSYNC_TEST"))
	require.NoError(t, err)
	assert.Equal(t, "secret-key-123", settings.APIKey)
	assert.Equal(t, []string{"seg_1", "seg_2"}, settings.SynchronizedSegments)
	assert.Equal(t, "stat_1", settings.LeadStatus.ID)
	assert.Equal(t, []FieldMapping{
		{HullField: "name", ServiceField: "name"},
		{HullField: "description", ServiceField: "description"},
		{HullField: "domain", ServiceField: "url"},
	}, settings.LeadOutbound)
	assert.Equal(t, []string{"name", "status_id", "url"}, settings.LeadInbound)
	assert.Equal(t, []FieldMapping{{HullField: "email", ServiceField: "emails.office"}}, settings.ContactOutbound)
}

func TestLoadSettings_ProcessEnv(t *testing.T) {
	t.Setenv("API_KEY", "process-key-456")
	settings, err := LoadSettings(writeSettingsFile(t, testSettingsYAML))
	require.NoError(t, err)
	assert.Equal(t, "process-key-456", settings.APIKey)
}

func TestLoadSettings_Overrides(t *testing.T) {
	t.Setenv("API_KEY", "process-key-456")
	override := MappingFileFromBytes("override.yaml", []byte("lead_status: default\nlead_identifier_hull: external_id\n"))

	settings, err := LoadSettings(writeSettingsFile(t, testSettingsYAML), ConfigWithOverrides(override))
	require.NoError(t, err)
	assert.Equal(t, LeadStatusUseDefault, settings.LeadStatus.Kind)
	assert.Equal(t, "external_id", settings.LeadIdentifierHull)
	assert.Equal(t, []string{"seg_1", "seg_2"}, settings.SynchronizedSegments)
}

func TestLoadSettings_Errors(t *testing.T) {
	_, err := LoadSettings(filepath.Join(t.TempDir(), "missing.yaml"))
	require.Error(t, err)

	os.Unsetenv("CRMSYNC_UNSET")
	_, err = LoadSettings(writeSettingsFile(t, testSettingsYAML), ConfigWithEnvVar("CRMSYNC_UNSET"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "CRMSYNC_UNSET")
}

func TestParseJSONSettings(t *testing.T) {
	raw, err := ParseJSONSettings([]byte(`{
		"api_key": "json-key-789",
		"lead_identifier_hull": "external_id",
		"lead_attributes_outbound": [{"hull_field_name":"name","service_field_name":"name"}]
	}`))
	require.NoError(t, err)
	settings := NormalizeSettings(raw)
	assert.Equal(t, "json-key-789", settings.APIKey)
	assert.Equal(t, []FieldMapping{
		{HullField: "name", ServiceField: "name"},
		{HullField: "external_id", ServiceField: "url"},
	}, settings.LeadOutbound)

	_, err = ParseJSONSettings([]byte("{"))
	assert.Error(t, err)
}

func TestLoadConnectorSettings(t *testing.T) {
	t.Setenv("API_KEY", "process-key-456")
	files := fstest.MapFS{
		"settings/defaults.yaml":              {Data: []byte(testSettingsYAML)},
		"settings/connectors/acme.prod.yaml":  {Data: []byte("lead_status: default\n")},
		"settings/connectors/acme2.yaml":      {Data: []byte("lead_status: stat_9\n")},
		"settings/connectors/globex.yaml":     {Data: []byte("lead_status: stat_2\n")},
		"settings/connectors/globex.old.yaml": {Data: []byte("lead_status: stat_3\n")},
		"settings/connectors/README.md":       {Data: []byte("docs")},
	}
	sd := SettingsDir{Root: "settings", Files: files}

	settings, err := LoadConnectorSettings(sd, "acme")
	require.NoError(t, err)
	assert.Equal(t, "process-key-456", settings.APIKey)
	assert.Equal(t, LeadStatusUseDefault, settings.LeadStatus.Kind)

	_, err = LoadConnectorSettings(sd, "globex")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "multiple")

	_, err = LoadConnectorSettings(sd, "initech")
	require.Error(t, err)
}

func TestLoadConnectorSettings_WithoutDefaults(t *testing.T) {
	files := fstest.MapFS{
		"connectors/acme.yaml": {Data: []byte("api_key: inline-key-1\n")},
	}
	settings, err := LoadConnectorSettings(SettingsDir{Root: ".", Files: files}, "acme")
	require.NoError(t, err)
	assert.Equal(t, "inline-key-1", settings.APIKey)
}
