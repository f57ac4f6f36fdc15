package browser

import (
	"regexp"
	"strings"

	"github.com/ternarybob/peto/internal/models"
)

// SnapshotNode is one element in a devtools-mcp accessibility snapshot
type SnapshotNode struct {
	UID   string
	Role  string
	Name  string
	Attrs map[string]string
	Depth int
}

// Snapshot is a parsed accessibility-tree dump in document order
type Snapshot struct {
	Nodes []SnapshotNode
}

// snapshotLineRe matches the devtools-mcp snapshot line format:
//
//	uid=1_4 textbox "Email address" required=true
//
// with two-space indentation per tree level.
var snapshotLineRe = regexp.MustCompile(`^(\s*)uid=(\d+_\d+)\s+(\S+)(?:\s+"((?:[^"\\]|\\.)*)")?(.*)$`)

// attrRe matches trailing key=value attribute pairs on a snapshot line
var attrRe = regexp.MustCompile(`(\w[\w-]*)=("[^"]*"|\S+)`)

// ParseSnapshot parses the text emitted by the take_snapshot tool
func ParseSnapshot(text string) *Snapshot {
	snap := &Snapshot{}
	for _, line := range strings.Split(text, "\n") {
		m := snapshotLineRe.FindStringSubmatch(line)
		if m == nil {
			continue
		}
		node := SnapshotNode{
			UID:   m[2],
			Role:  m[3],
			Name:  strings.ReplaceAll(m[4], `\"`, `"`),
			Depth: len(m[1]) / 2,
			Attrs: make(map[string]string),
		}
		for _, kv := range attrRe.FindAllStringSubmatch(m[5], -1) {
			node.Attrs[kv[1]] = strings.Trim(kv[2], `"`)
		}
		snap.Nodes = append(snap.Nodes, node)
	}
	return snap
}

// FindByRoleAndName returns the best match for a role and name hint:
// exact role + name substring first, then first element of the role.
// Returns nil when no candidate exists.
func (s *Snapshot) FindByRoleAndName(role, nameHint string) *SnapshotNode {
	if nameHint != "" {
		hint := strings.ToLower(nameHint)
		for i := range s.Nodes {
			if s.Nodes[i].Role == role && strings.Contains(strings.ToLower(s.Nodes[i].Name), hint) {
				return &s.Nodes[i]
			}
		}
	}
	for i := range s.Nodes {
		if s.Nodes[i].Role == role {
			return &s.Nodes[i]
		}
	}
	return nil
}

// FindByUID returns the node with the given UID, or nil
func (s *Snapshot) FindByUID(uid string) *SnapshotNode {
	for i := range s.Nodes {
		if s.Nodes[i].UID == uid {
			return &s.Nodes[i]
		}
	}
	return nil
}

// roleFieldTypes maps accessibility roles to form field types
var roleFieldTypes = map[string]models.FieldType{
	"textbox":       models.FieldText,
	"searchbox":     models.FieldSearch,
	"textarea":      models.FieldTextarea,
	"combobox":      models.FieldSelect,
	"listbox":       models.FieldSelect,
	"checkbox":      models.FieldCheckbox,
	"switch":        models.FieldCheckbox,
	"radio":         models.FieldRadio,
	"menuitemradio": models.FieldRadio,
	"button":        models.FieldSubmit,
	"spinbutton":    models.FieldNumber,
	"slider":        models.FieldNumber,
}

// FieldTypeForRole translates an accessibility role into a field type.
// Unknown roles report ok=false and are excluded from form extraction.
func FieldTypeForRole(role string) (models.FieldType, bool) {
	t, ok := roleFieldTypes[role]
	return t, ok
}

// FormFields converts form-relevant snapshot nodes into the adapter's
// field vocabulary, preserving document order.
func (s *Snapshot) FormFields() []models.FormField {
	var fields []models.FormField
	for _, node := range s.Nodes {
		fieldType, ok := FieldTypeForRole(node.Role)
		if !ok {
			continue
		}
		field := models.FormField{
			Locator:  node.UID,
			Name:     node.Name,
			Type:     fieldType,
			Label:    node.Name,
			Visible:  true,
			Enabled:  node.Attrs["disabled"] != "true",
			Required: node.Attrs["required"] == "true",
			Value:    node.Attrs["value"],
		}
		fields = append(fields, field)
	}
	return fields
}

// inputTypeRoles maps input[type=...] values to accessibility roles
var inputTypeRoles = map[string]string{
	"email":    "textbox",
	"text":     "textbox",
	"tel":      "textbox",
	"url":      "textbox",
	"password": "textbox",
	"search":   "searchbox",
	"number":   "spinbutton",
	"checkbox": "checkbox",
	"radio":    "radio",
	"submit":   "button",
	"button":   "button",
	"file":     "button", // File inputs surface as buttons in the tree
	"range":    "slider",
}

var (
	inputTypeRe = regexp.MustCompile(`input\[type=["']?([a-z]+)["']?\]`)
	nameAttrRe  = regexp.MustCompile(`\[(?:name|id)[\^$*]?=["']?([^"'\]]+)["']?\]`)
	idShortRe   = regexp.MustCompile(`#([\w-]+)`)
)

// GuessRole infers an accessibility role from a CSS-like selector, for
// example input[type="email"] -> textbox. Defaults to textbox.
func GuessRole(selector string) string {
	s := strings.ToLower(selector)
	if m := inputTypeRe.FindStringSubmatch(s); m != nil {
		if role, ok := inputTypeRoles[m[1]]; ok {
			return role
		}
	}
	switch {
	case strings.Contains(s, "textarea"):
		return "textbox"
	case strings.Contains(s, "select"):
		return "combobox"
	case strings.Contains(s, "button") || strings.Contains(s, "[type=submit]") || strings.Contains(s, `[type="submit"]`):
		return "button"
	case strings.HasPrefix(s, "a") && (len(s) == 1 || s[1] == '.' || s[1] == '[' || s[1] == '#'):
		return "link"
	}
	return "textbox"
}

// NameHint extracts a human-name hint from name=/id= attributes or an
// #id fragment of a CSS-like selector. Underscores and dashes become
// spaces so the hint matches accessible names.
func NameHint(selector string) string {
	var raw string
	if m := nameAttrRe.FindStringSubmatch(selector); m != nil {
		raw = m[1]
	} else if m := idShortRe.FindStringSubmatch(selector); m != nil {
		raw = m[1]
	}
	if raw == "" {
		return ""
	}
	raw = strings.NewReplacer("_", " ", "-", " ").Replace(raw)
	return strings.TrimSpace(raw)
}

// looksLikeUID reports whether a locator is already a snapshot UID
var looksLikeUID = regexp.MustCompile(`^\d+_\d+$`).MatchString
