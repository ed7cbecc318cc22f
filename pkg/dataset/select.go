package dataset

import (
	"fmt"
	"slices"
	"strings"
)

// File extensions each materialization picks up when no file is named.
var (
	TableExtensions = []string{".csv", ".parquet"}
	ArrayExtensions = []string{".tif", ".tiff"}
)

// Select returns the file called name when name is set, otherwise every file
// whose extension is in exts. Listing order is kept. An empty result is
// ErrNoMatchingFiles.
func Select(files []File, name string, exts []string) ([]File, error) {
	var out []File
	for _, f := range files {
		switch {
		case name != "":
			if f.Name == name {
				out = append(out, f)
			}
		case slices.Contains(exts, f.Ext()):
			out = append(out, f)
		}
	}
	if len(out) == 0 {
		if name != "" {
			return nil, fmt.Errorf("%w: no file named %q", ErrNoMatchingFiles, name)
		}
		return nil, fmt.Errorf("%w: no %s files", ErrNoMatchingFiles, strings.Join(exts, "/"))
	}
	return out, nil
}

// Targets resolves the files a DownloadLinks call covers: the named file, or
// every file when name is empty.
func Targets(files []File, name string) ([]File, error) {
	if name == "" {
		return files, nil
	}
	return Select(files, name, nil)
}
