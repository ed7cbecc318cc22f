package dataverse

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/DHI/gwc-datalib/pkg/catalog"
	"github.com/DHI/gwc-datalib/pkg/dataset"
	apihttp "github.com/DHI/gwc-datalib/pkg/http"
)

const (
	dvTestDOI   = "10.7910/DVN/ABC123"
	dvTestToken = "dv-token"
)

const dvDatasetJSON = `{
  "status": "OK",
  "data": {
    "latestVersion": {
      "files": [
        {"label": "stations.csv", "dataFile": {"id": 42, "filename": "stations.csv", "contentType": "text/csv", "filesize": 2048}},
        {"label": "dem.tif", "dataFile": {"id": 43, "contentType": "image/tiff", "filesize": 10}}
      ]
    }
  }
}`

const dvFoldersJSON = `{
  "status": "OK",
  "data": {
    "latestVersion": {
      "files": [
        {"label": "readme.txt", "directoryLabel": "2023", "dataFile": {"id": 50, "filename": "readme.txt", "contentType": "text/plain", "filesize": 5}},
        {"label": "readme.txt", "directoryLabel": "2024/", "dataFile": {"id": 51, "filename": "readme.txt", "contentType": "text/plain", "filesize": 6}},
        {"label": "readme.txt", "dataFile": {"id": 52, "filename": "readme.txt", "contentType": "text/plain", "filesize": 7}}
      ]
    }
  }
}`

type fakeDataverse struct {
	// body replaces the default dataset listing when set.
	body   string
	listN  atomic.Int32
	gotKey atomic.Value
	status int
	srvURL string
}

func (f *fakeDataverse) start(t *testing.T) {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		f.gotKey.Store(r.Header.Get(APIKeyHeader))
		switch r.URL.Path {
		case "/api/datasets/:persistentId/":
			f.listN.Add(1)
			if got := r.URL.Query().Get("persistentId"); got != "doi:"+dvTestDOI {
				t.Errorf("persistentId = %q", got)
			}
			if f.status != 0 {
				w.WriteHeader(f.status)
				_, _ = io.WriteString(w, `{"status":"ERROR","message":"Dataset not found"}`)
				return
			}
			w.Header().Set("Content-Type", "application/json")
			if f.body != "" {
				_, _ = io.WriteString(w, f.body)
				return
			}
			_, _ = io.WriteString(w, dvDatasetJSON)
		case "/api/access/datafile/42":
			_, _ = io.WriteString(w, "id,name\n1,a\n")
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	t.Cleanup(srv.Close)
	f.srvURL = srv.URL
}

func newTestAdapter(t *testing.T, f *fakeDataverse, cfg Config) *Adapter {
	t.Helper()
	f.start(t)
	a, err := New(catalog.Metadata{
		"dataset_name":    "harvard_soil",
		"storage_service": Kind,
		KeyDOI:            "doi:" + dvTestDOI,
		KeyServerURL:      f.srvURL + "/",
	}, cfg)
	require.NoError(t, err)
	return a
}

func TestListFiles(t *testing.T) {
	f := &fakeDataverse{}
	a := newTestAdapter(t, f, Config{})

	assert.Zero(t, f.listN.Load(), "listing is lazy")
	files, err := a.ListFiles(context.Background())
	require.NoError(t, err)
	_, _ = a.ListFiles(context.Background())

	assert.Equal(t, []dataset.File{
		{Name: "stations.csv", ContentType: "text/csv", Size: 2048},
		{Name: "dem.tif", ContentType: "image/tiff", Size: 10},
	}, files)
	assert.Equal(t, int32(1), f.listN.Load())
	assert.Equal(t, Kind, a.Kind())
}

func TestListFiles_Error(t *testing.T) {
	f := &fakeDataverse{status: http.StatusNotFound}
	a := newTestAdapter(t, f, Config{})

	_, err := a.ListFiles(context.Background())
	assert.True(t, apihttp.IsStatus(err, http.StatusNotFound))
}

func TestDownloadLinks(t *testing.T) {
	f := &fakeDataverse{}
	a := newTestAdapter(t, f, Config{})

	links, err := a.DownloadLinks(context.Background(), "")
	require.NoError(t, err)
	assert.Equal(t, []dataset.DownloadLink{
		{File: "stations.csv", URL: f.srvURL + "/api/access/datafile/42"},
		{File: "dem.tif", URL: f.srvURL + "/api/access/datafile/43"},
	}, links)

	_, err = a.DownloadLinks(context.Background(), "other.csv")
	assert.ErrorIs(t, err, dataset.ErrNoMatchingFiles)
}

func TestListFiles_SameNameInFolders(t *testing.T) {
	f := &fakeDataverse{body: dvFoldersJSON}
	a := newTestAdapter(t, f, Config{})

	files, err := a.ListFiles(context.Background())
	require.NoError(t, err)
	names := make([]string, len(files))
	for i, file := range files {
		names[i] = file.Name
	}
	assert.Equal(t, []string{"2023/readme.txt", "2024/readme.txt", "readme.txt"}, names)

	links, err := a.DownloadLinks(context.Background(), "2024/readme.txt")
	require.NoError(t, err)
	assert.Equal(t, []dataset.DownloadLink{
		{File: "2024/readme.txt", URL: f.srvURL + "/api/access/datafile/51"},
	}, links)

	links, err = a.DownloadLinks(context.Background(), "")
	require.NoError(t, err)
	require.Len(t, links, 3)
	assert.Equal(t, f.srvURL+"/api/access/datafile/50", links[0].URL)
	assert.Equal(t, f.srvURL+"/api/access/datafile/52", links[2].URL)
}

func TestDownload_SendsAPIToken(t *testing.T) {
	f := &fakeDataverse{}
	a := newTestAdapter(t, f, Config{APIToken: dvTestToken})

	data, err := a.Download(context.Background(), dataset.File{Name: "stations.csv"})
	require.NoError(t, err)
	assert.Equal(t, "id,name\n1,a\n", string(data))
	assert.Equal(t, dvTestToken, f.gotKey.Load())
}

func TestNoMaterialization(t *testing.T) {
	f := &fakeDataverse{}
	a := newTestAdapter(t, f, Config{})

	_, err := dataset.ToTable(context.Background(), a, "")
	assert.ErrorIs(t, err, dataset.ErrNotSupported)
	_, err = dataset.ToArray(context.Background(), a, "")
	assert.ErrorIs(t, err, dataset.ErrNotSupported)
	assert.Zero(t, f.listN.Load(), "capability check needs no network call")
}

func TestNew_RequiresDOI(t *testing.T) {
	_, err := New(catalog.Metadata{"storage_service": Kind}, Config{})
	assert.ErrorIs(t, err, dataset.ErrInvalidMetadata)
}

func TestNew_ServerFallback(t *testing.T) {
	a, err := New(catalog.Metadata{KeyPersistentID: dvTestDOI}, Config{})
	require.NoError(t, err)
	assert.Equal(t, DefaultServerURL, a.server)

	a, err = New(catalog.Metadata{KeyDOI: dvTestDOI}, Config{ServerURL: "https://data.example.org/"})
	require.NoError(t, err)
	assert.Equal(t, "https://data.example.org", a.server)
}

func TestPersistentID(t *testing.T) {
	tests := map[string]string{
		dvTestDOI:                      "doi:" + dvTestDOI,
		"doi:" + dvTestDOI:             "doi:" + dvTestDOI,
		"https://doi.org/" + dvTestDOI: "doi:" + dvTestDOI,
		"  DOI:" + dvTestDOI + "  ":    "doi:" + dvTestDOI,
		"":                             "",
	}
	for in, want := range tests {
		if got := PersistentID(in); got != want {
			t.Errorf("PersistentID(%q) = %q, want %q", in, got, want)
		}
	}
}
