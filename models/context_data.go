package models

import (
	"encoding/json"
	"strings"
)

// Typed views over UserAction.ContextData, one per routed (type, scope) variant.
// Decoding is best effort: missing or mistyped fields are left at their zero value.

// LoginContext is carried by authentication/login actions
type LoginContext struct {
	Provider string `json:"provider"`
	Username string `json:"username"`
}

// ReadContext is carried by read/read actions
type ReadContext struct {
	ID         string `json:"id"`
	EntityType string `json:"entity_type"`
	EntityName string `json:"entity_name"`
}

// FileInput is the input block of file/create actions
type FileInput struct {
	IsUpsert bool `json:"is_upsert"`
}

// FileContext is carried by file/read, file/download, file/create and file/delete actions
type FileContext struct {
	FileName   string    `json:"file_name"`
	EntityName string    `json:"entity_name"`
	EntityType string    `json:"entity_type"`
	Path       string    `json:"path"`
	Input      FileInput `json:"input"`
}

// IsWorkbench reports whether the file lives in the pending analyst workbench location
func (c FileContext) IsWorkbench() bool {
	return strings.Contains(c.Path, "import/pending")
}

// DisseminatedFile is a single file of a dissemination
type DisseminatedFile struct {
	Name string `json:"name"`
}

// DisseminateInput is the input block of file/disseminate actions
type DisseminateInput struct {
	Files         []DisseminatedFile `json:"files"`
	Dissemination string             `json:"dissemination"`
}

// DisseminateContext is carried by file/disseminate actions
type DisseminateContext struct {
	EntityName string           `json:"entity_name"`
	EntityType string           `json:"entity_type"`
	Input      DisseminateInput `json:"input"`
}

// FileNames returns the disseminated file names in order
func (c DisseminateContext) FileNames() []string {
	names := make([]string, 0, len(c.Input.Files))
	for _, f := range c.Input.Files {
		names = append(names, f.Name)
	}
	return names
}

// ExportContext is carried by command/export actions
type ExportContext struct {
	Format     string `json:"format"`
	EntityName string `json:"entity_name"`
}

// ImportContext is carried by command/import actions
type ImportContext struct {
	FileName   string `json:"file_name"`
	FileMime   string `json:"file_mime"`
	EntityName string `json:"entity_name"`
}

// ConnectorContext is carried by command/enrich and command/analyze actions
type ConnectorContext struct {
	EntityName    string `json:"entity_name"`
	ConnectorName string `json:"connector_name"`
}

// DecodeContext decodes the action context data into the typed view T.
// Fields that cannot be decoded keep their zero value; a key whose value has no
// JSON form is skipped without affecting its siblings.
func DecodeContext[T any](data map[string]any) T {
	var out T
	if len(data) == 0 {
		return out
	}
	encodable := make(map[string]json.RawMessage, len(data))
	for key, value := range data {
		raw, err := json.Marshal(value)
		if err != nil {
			continue
		}
		encodable[key] = raw
	}
	raw, err := json.Marshal(encodable)
	if err != nil {
		return out
	}
	// Unmarshal keeps going past type mismatches and fills what it can.
	_ = json.Unmarshal(raw, &out)
	return out
}
