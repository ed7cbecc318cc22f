package dataset

import (
	"encoding/json"
	"fmt"
	"path"
	"strings"
	"time"
)

// File identifies one file of a dataset.
type File struct {
	Name        string `json:"name"`
	ContentType string `json:"content_type,omitempty"`
	Size        int64  `json:"size,omitempty"`
}

// Ext returns the lower-cased extension of the file name, including the dot.
func (f File) Ext() string {
	return strings.ToLower(path.Ext(f.Name))
}

// UnmarshalJSON accepts either a bare file name or an object
// {name, type|content_type, size}.
func (f *File) UnmarshalJSON(data []byte) error {
	var name string
	if err := json.Unmarshal(data, &name); err == nil {
		*f = File{Name: name}
		return nil
	}
	var obj struct {
		Name        string `json:"name"`
		FileName    string `json:"file_name"`
		Type        string `json:"type"`
		ContentType string `json:"content_type"`
		Size        int64  `json:"size"`
	}
	if err := json.Unmarshal(data, &obj); err != nil {
		return fmt.Errorf("file entry must be a name or an object: %w", err)
	}
	f.Name = obj.Name
	if f.Name == "" {
		f.Name = obj.FileName
	}
	f.ContentType = obj.ContentType
	if f.ContentType == "" {
		f.ContentType = obj.Type
	}
	f.Size = obj.Size
	return nil
}

// DownloadLink is a direct locator for one file.
type DownloadLink struct {
	File      string     `json:"file"`
	URL       string     `json:"url"`
	ExpiresAt *time.Time `json:"expires_at,omitempty"`
}

// Access is a short-lived credential scoped to one file.
type Access struct {
	File string
	URL  string

	// ExpiresAt is zero when the issuer does not say.
	ExpiresAt time.Time
}

// Link converts the access into a DownloadLink.
func (a Access) Link() DownloadLink {
	l := DownloadLink{File: a.File, URL: a.URL}
	if !a.ExpiresAt.IsZero() {
		exp := a.ExpiresAt
		l.ExpiresAt = &exp
	}
	return l
}
