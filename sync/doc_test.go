// go test github.com/homemade/crmsync/sync -v
package sync

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGenerateFieldDocumentation(t *testing.T) {
	doc := GenerateFieldDocumentation(testSettings(), "acme-connector", testCustomFields)

	var custom, ident, email *FieldDocRow
	for i := range doc.Rows {
		row := &doc.Rows[i]
		switch {
		case row.Resource == ResourceLead && row.Direction == Inbound && row.ServiceField == "custom.cf_1":
			custom = row
		case row.Resource == ResourceLead && row.Direction == Outbound && row.ServiceField == "url":
			ident = row
		case row.Resource == ResourceContact && row.ServiceField == "emails.office":
			email = row
		}
	}
	require.NotNil(t, custom)
	assert.Equal(t, "Plan Tier", custom.ServiceLabel)
	assert.Equal(t, "service/plan_tier", custom.PlatformField)

	require.NotNil(t, ident)
	assert.Equal(t, "domain", ident.PlatformField)
	assert.Contains(t, ident.Notes, "Lead identifier")

	require.NotNil(t, email)
	assert.Equal(t, "Emails > Office", email.ServiceLabel)
	assert.Equal(t, "Appended to emails", email.Notes)

	assert.Equal(t, ResourceLead, doc.Rows[0].Resource)
	assert.Equal(t, Outbound, doc.Rows[0].Direction)
}

func TestFieldDocumentation_FormatCSV(t *testing.T) {
	doc := GenerateFieldDocumentation(testSettings(), "acme-connector", nil)
	out, err := doc.FormatCSV()
	require.NoError(t, err)

	lines := strings.Split(strings.TrimSpace(out), "\n")
	assert.Equal(t, "# Connector: acme-connector", lines[0])
	assert.Equal(t, "Resource,Direction,Service Field,Service Label,Platform Attribute,Mapping Notes", lines[1])
	assert.Len(t, lines, len(doc.Rows)+2)
	assert.Contains(t, out, "lead,inbound,custom.cf_1,(unknown custom field),service/cf_1,")
}
