package browser

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ternarybob/peto/internal/models"
)

const sampleSnapshot = `uid=1_0 RootWebArea "Apply - Software Engineer"
  uid=1_1 form "Application form"
    uid=1_2 textbox "First name" required=true
    uid=1_3 textbox "Last name" required=true
    uid=1_4 textbox "Email address" required=true value=jane@example.com
    uid=1_5 combobox "Country"
    uid=1_6 checkbox "Subscribe to updates"
    uid=1_7 button "Submit application"
  uid=1_8 link "Privacy policy"`

func TestParseSnapshot(t *testing.T) {
	snap := ParseSnapshot(sampleSnapshot)
	require.Len(t, snap.Nodes, 9)

	root := snap.Nodes[0]
	assert.Equal(t, "1_0", root.UID)
	assert.Equal(t, "RootWebArea", root.Role)
	assert.Equal(t, "Apply - Software Engineer", root.Name)
	assert.Equal(t, 0, root.Depth)

	email := snap.FindByUID("1_4")
	require.NotNil(t, email)
	assert.Equal(t, "textbox", email.Role)
	assert.Equal(t, "Email address", email.Name)
	assert.Equal(t, "true", email.Attrs["required"])
	assert.Equal(t, "jane@example.com", email.Attrs["value"])
	assert.Equal(t, 2, email.Depth)
}

func TestParseSnapshotSkipsNonNodeLines(t *testing.T) {
	snap := ParseSnapshot("# Page snapshot\n\nuid=2_1 button \"OK\"\nsome prose line")
	require.Len(t, snap.Nodes, 1)
	assert.Equal(t, "2_1", snap.Nodes[0].UID)
}

func TestFindByRoleAndName(t *testing.T) {
	snap := ParseSnapshot(sampleSnapshot)

	node := snap.FindByRoleAndName("textbox", "email")
	require.NotNil(t, node)
	assert.Equal(t, "1_4", node.UID)

	// No hint match falls back to the first element of the role
	node = snap.FindByRoleAndName("textbox", "salary expectations")
	require.NotNil(t, node)
	assert.Equal(t, "1_2", node.UID)

	assert.Nil(t, snap.FindByRoleAndName("slider", ""))
}

func TestFormFields(t *testing.T) {
	snap := ParseSnapshot(sampleSnapshot)
	fields := snap.FormFields()
	require.Len(t, fields, 6)

	assert.Equal(t, "1_2", fields[0].Locator)
	assert.Equal(t, models.FieldText, fields[0].Type)
	assert.True(t, fields[0].Required)

	assert.Equal(t, models.FieldSelect, fields[3].Type)
	assert.Equal(t, models.FieldCheckbox, fields[4].Type)
	assert.Equal(t, models.FieldSubmit, fields[5].Type)
	assert.Equal(t, "jane@example.com", fields[2].Value)
}

func TestGuessRole(t *testing.T) {
	tests := []struct {
		selector string
		role     string
	}{
		{`input[type="email"]`, "textbox"},
		{`input[type=checkbox]`, "checkbox"},
		{`input[type="radio"]`, "radio"},
		{`input[type="search"]`, "searchbox"},
		{`input[type="number"]`, "spinbutton"},
		{`textarea[name="cover_letter"]`, "textbox"},
		{`select#country`, "combobox"},
		{`button[type="submit"]`, "button"},
		{`a.apply-link`, "link"},
		{`#first_name`, "textbox"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.role, GuessRole(tt.selector), "selector %s", tt.selector)
	}
}

func TestNameHint(t *testing.T) {
	assert.Equal(t, "first name", NameHint(`input[name="first_name"]`))
	assert.Equal(t, "cover letter", NameHint(`#cover-letter`))
	assert.Equal(t, "email", NameHint(`input[id="email"]`))
	assert.Equal(t, "", NameHint(`div > input`))
}

func TestLooksLikeUID(t *testing.T) {
	assert.True(t, looksLikeUID("1_4"))
	assert.True(t, looksLikeUID("12_345"))
	assert.False(t, looksLikeUID("#email"))
	assert.False(t, looksLikeUID("input[name=email]"))
}
