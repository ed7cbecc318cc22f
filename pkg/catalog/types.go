// Package catalog provides the client for the dataset metadata catalog API.
package catalog

import "fmt"

// Well-known metadata keys.
const (
	KeyDatasetName    = "dataset_name"
	KeyID             = "id"
	KeyTitle          = "title"
	KeyStorageService = "storage_service"
	KeyStorageFormat  = "storage_format"
	KeyRepository     = "repository"
	KeyStructure      = "structure"
	KeyTags           = "tags"
)

// Metadata is a dataset description as returned by the catalog. Apart from
// the well-known keys its shape is defined by the storage backend.
type Metadata map[string]any

// DatasetName returns the dataset identifier, falling back to id.
func (m Metadata) DatasetName() string {
	if name := m.String(KeyDatasetName); name != "" {
		return name
	}
	return m.String(KeyID)
}

// StorageService returns the backend discriminator.
func (m Metadata) StorageService() string {
	return m.String(KeyStorageService)
}

// Title returns the human readable title.
func (m Metadata) Title() string {
	return m.String(KeyTitle)
}

// String returns the value at key when it is a string, or a formatted number.
func (m Metadata) String(key string) string {
	switch v := m[key].(type) {
	case string:
		return v
	case float64, int, int64:
		return fmt.Sprint(v)
	default:
		return ""
	}
}

// Map returns the nested object at key, or nil.
func (m Metadata) Map(key string) Metadata {
	if v, ok := m[key].(map[string]any); ok {
		return Metadata(v)
	}
	if v, ok := m[key].(Metadata); ok {
		return v
	}
	return nil
}

// Strings returns the string elements of the list at key.
func (m Metadata) Strings(key string) []string {
	raw, ok := m[key].([]any)
	if !ok {
		return nil
	}
	out := make([]string, 0, len(raw))
	for _, v := range raw {
		if s, ok := v.(string); ok {
			out = append(out, s)
		}
	}
	return out
}

// SearchParams filters a catalog search. Empty fields are not sent.
type SearchParams struct {
	Name string
	Tag  string
}
