package webui

import (
	"bytes"
	"compress/gzip"
	"encoding/json"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jgarman/flopview/internal/catalog"
	"github.com/jgarman/flopview/internal/diskmanager"
	"github.com/jgarman/flopview/internal/formats/all"
	"github.com/jgarman/flopview/internal/formats/fat"
)

type fixture struct {
	handler *Handler
	server  *httptest.Server
	root    string
	image   []byte
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	path := filepath.Join(t.TempDir(), "disk.img")
	require.NoError(t, fat.BuildFloppy(path, "WEBUI", map[string][]byte{
		"README.TXT":      []byte("hello"),
		"DOCS/MANUAL.TXT": bytes.Repeat([]byte("m"), 3000),
	}))
	data, err := os.ReadFile(path)
	require.NoError(t, err)

	root := t.TempDir()
	h, err := New(diskmanager.New(catalog.New(all.Library{})), Options{
		MaxUploadBytes:  4 << 20,
		ExtractRoot:     root,
		IncludeRootName: true,
	})
	require.NoError(t, err)
	srv := httptest.NewServer(h.Router())
	t.Cleanup(func() {
		srv.Close()
		h.Close()
	})
	return &fixture{handler: h, server: srv, root: root, image: data}
}

func (f *fixture) upload(t *testing.T, name string, data []byte) (*http.Response, map[string]any) {
	t.Helper()
	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	fw, err := mw.CreateFormFile("file", name)
	require.NoError(t, err)
	_, err = fw.Write(data)
	require.NoError(t, err)
	require.NoError(t, mw.Close())

	resp, err := http.Post(f.server.URL+"/api/images", mw.FormDataContentType(), &body)
	require.NoError(t, err)
	defer resp.Body.Close()
	var out map[string]any
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
	return resp, out
}

func (f *fixture) call(t *testing.T, method, path string, body any, out any) int {
	t.Helper()
	var r io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		require.NoError(t, err)
		r = bytes.NewReader(data)
	}
	req, err := http.NewRequest(method, f.server.URL+path, r)
	require.NoError(t, err)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	if out != nil {
		require.NoError(t, json.NewDecoder(resp.Body).Decode(out))
	}
	return resp.StatusCode
}

func (f *fixture) mounted(t *testing.T) string {
	t.Helper()
	resp, up := f.upload(t, "disk.img", f.image)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	id := up["id"].(string)
	require.Equal(t, http.StatusOK, f.call(t, "POST", "/api/images/"+id+"/mount", map[string]string{}, nil))
	return id
}

func find(entries []entryJSON, name string) (entryJSON, bool) {
	for _, e := range entries {
		if e.Name == name {
			return e, true
		}
	}
	return entryJSON{}, false
}

func TestHealthAndIndex(t *testing.T) {
	f := newFixture(t)

	var health map[string]string
	assert.Equal(t, http.StatusOK, f.call(t, "GET", "/api/health", nil, &health))
	assert.Equal(t, "ok", health["status"])

	resp, err := http.Get(f.server.URL + "/")
	require.NoError(t, err)
	defer resp.Body.Close()
	page, _ := io.ReadAll(resp.Body)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, string(page), "Flopview")
}

func TestFormats(t *testing.T) {
	f := newFixture(t)
	var resp formatsResponse
	require.Equal(t, http.StatusOK, f.call(t, "GET", "/api/formats", nil, &resp))
	require.NotEmpty(t, resp.Formats)
	assert.Equal(t, "PC", resp.Formats[0].Name)
	var names []string
	for _, fs := range resp.FileSystems[0].FileSystems {
		names = append(names, fs.Name)
	}
	assert.Contains(t, names, "fat")
	assert.Contains(t, names, "fat32")
	assert.NotEmpty(t, resp.NameFilters)
}

func TestUploadIdentifies(t *testing.T) {
	f := newFixture(t)
	resp, up := f.upload(t, "disk.img", f.image)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.NotEmpty(t, up["id"])
	assert.Equal(t, "", up["compression"])
	assert.Equal(t, float64(fat.FloppySize), up["size"])
	def := up["default"].(map[string]any)
	assert.Equal(t, "fat", def["filesystem"])
	assert.Equal(t, 1, f.handler.SessionCount())
}

func TestUploadCompressed(t *testing.T) {
	f := newFixture(t)
	var gz bytes.Buffer
	zw := gzip.NewWriter(&gz)
	_, err := zw.Write(f.image)
	require.NoError(t, err)
	require.NoError(t, zw.Close())

	resp, up := f.upload(t, "disk.img.gz", gz.Bytes())
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "gzip", up["compression"])
	assert.Equal(t, float64(fat.FloppySize), up["size"])
}

func TestUploadTooLarge(t *testing.T) {
	f := newFixture(t)
	f.handler.opts.MaxUploadBytes = 1024

	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	fw, err := mw.CreateFormFile("file", "disk.img")
	require.NoError(t, err)
	_, err = fw.Write(f.image)
	require.NoError(t, err)
	require.NoError(t, mw.Close())

	req := httptest.NewRequest("POST", "/api/images", &body)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	rec := httptest.NewRecorder()
	f.handler.Router().ServeHTTP(rec, req)

	assert.Equal(t, http.StatusRequestEntityTooLarge, rec.Code)
	assert.Contains(t, rec.Body.String(), `"success":false`)
	assert.Equal(t, 0, f.handler.SessionCount())
}

func TestUploadRequiresFile(t *testing.T) {
	f := newFixture(t)
	resp, err := http.Post(f.server.URL+"/api/images", "text/plain", strings.NewReader("nope"))
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestMountAndBrowse(t *testing.T) {
	f := newFixture(t)
	resp, up := f.upload(t, "disk.img", f.image)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	id := up["id"].(string)

	// browsing before mounting is a conflict
	assert.Equal(t, http.StatusConflict, f.call(t, "GET", "/api/images/"+id+"/tree", nil, nil))

	var m mountResponse
	require.Equal(t, http.StatusOK, f.call(t, "POST", "/api/images/"+id+"/mount", map[string]string{}, &m))
	assert.Equal(t, "fat", m.FileSystem)
	assert.Equal(t, "1.44M", m.Geometry)
	assert.Contains(t, m.Fields, "name")

	var root treeResponse
	require.Equal(t, http.StatusOK, f.call(t, "GET", "/api/images/"+id+"/tree", nil, &root))
	assert.True(t, root.Resolved)
	assert.Empty(t, root.Path)
	readme, ok := find(root.Entries, "README.TXT")
	require.True(t, ok)
	assert.Equal(t, "5", readme.Meta["length"])
	docs, ok := find(root.Entries, "DOCS")
	require.True(t, ok)
	assert.True(t, docs.Dir)
	assert.False(t, docs.Resolved)

	var sub treeResponse
	require.Equal(t, http.StatusOK, f.call(t, "POST", "/api/images/"+id+"/expand",
		map[string]int{"slot": docs.Slot, "row": docs.Row}, &sub))
	assert.True(t, sub.Resolved)
	assert.Equal(t, []string{"DOCS"}, sub.Path)
	manual, ok := find(sub.Entries, "MANUAL.TXT")
	require.True(t, ok)
	assert.Equal(t, "3000", manual.Meta["length"])

	var expanded map[string]any
	require.Equal(t, http.StatusOK, f.call(t, "POST", "/api/images/"+id+"/expanded",
		map[string]any{"slot": docs.Slot, "row": docs.Row, "expanded": true}, &expanded))
	assert.Equal(t, true, expanded["expanded"])

	require.Equal(t, http.StatusOK, f.call(t, "GET", "/api/images/"+id+"/tree", nil, &root))
	docs, _ = find(root.Entries, "DOCS")
	assert.True(t, docs.Resolved)
	assert.True(t, docs.Expanded)
}

func TestMountUnknownFormat(t *testing.T) {
	f := newFixture(t)
	_, up := f.upload(t, "disk.img", f.image)
	id := up["id"].(string)
	var out map[string]any
	assert.Equal(t, http.StatusBadRequest, f.call(t, "POST", "/api/images/"+id+"/mount",
		map[string]string{"format": "amiga_adf"}, &out))
	assert.Contains(t, out["error"], "unknown format")
}

func TestMountExplicitNames(t *testing.T) {
	f := newFixture(t)
	_, up := f.upload(t, "disk.img", f.image)
	id := up["id"].(string)

	var m mountResponse
	require.Equal(t, http.StatusOK, f.call(t, "POST", "/api/images/"+id+"/mount",
		map[string]string{"format": "pc_raw", "filesystem": "fat"}, &m))
	assert.Equal(t, "pc_raw", m.Format)
	assert.Equal(t, "fat", m.FileSystem)
	assert.Equal(t, "1.44M", m.Geometry)

	var out map[string]any
	assert.Equal(t, http.StatusBadRequest, f.call(t, "POST", "/api/images/"+id+"/mount",
		map[string]string{"format": "pc_raw", "filesystem": "hfs"}, &out))
	assert.Contains(t, out["error"], "unknown filesystem")
}

func TestFileDownload(t *testing.T) {
	f := newFixture(t)
	id := f.mounted(t)

	var root treeResponse
	require.Equal(t, http.StatusOK, f.call(t, "GET", "/api/images/"+id+"/tree", nil, &root))
	readme, ok := find(root.Entries, "README.TXT")
	require.True(t, ok)

	resp, err := http.Get(f.server.URL + "/api/images/" + id + "/file?slot=0&row=" + strconv.Itoa(readme.Row))
	require.NoError(t, err)
	defer resp.Body.Close()
	body, _ := io.ReadAll(resp.Body)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "hello", string(body))
	assert.Contains(t, resp.Header.Get("Content-Disposition"), "README.TXT")

	docs, _ := find(root.Entries, "DOCS")
	assert.Equal(t, http.StatusBadRequest,
		f.call(t, "GET", "/api/images/"+id+"/file?slot=0&row="+strconv.Itoa(docs.Row), nil, nil))
	assert.Equal(t, http.StatusBadRequest,
		f.call(t, "GET", "/api/images/"+id+"/file?slot=0&row=99", nil, nil))
	assert.Equal(t, http.StatusBadRequest,
		f.call(t, "GET", "/api/images/"+id+"/file?slot=x&row=0", nil, nil))
}

func TestExtract(t *testing.T) {
	f := newFixture(t)
	id := f.mounted(t)

	var report reportResponse
	require.Equal(t, http.StatusOK, f.call(t, "POST", "/api/images/"+id+"/extract",
		map[string]any{"dest": "all"}, &report))
	assert.True(t, report.OK)
	assert.Equal(t, 2, report.Files)
	assert.Equal(t, int64(3005), report.Bytes)

	data, err := os.ReadFile(filepath.Join(f.root, "all", "DOCS", "MANUAL.TXT"))
	require.NoError(t, err)
	assert.Len(t, data, 3000)
	data, err = os.ReadFile(filepath.Join(f.root, "all", "README.TXT"))
	require.NoError(t, err)
	assert.Equal(t, "hello", string(data))

	for _, o := range report.Outcomes {
		if o.Path == "README.TXT" {
			assert.Len(t, o.Digest, 64)
		}
	}
}

func TestExtractConfined(t *testing.T) {
	f := newFixture(t)
	id := f.mounted(t)
	assert.Equal(t, http.StatusBadRequest, f.call(t, "POST", "/api/images/"+id+"/extract",
		map[string]any{"dest": "../escape"}, nil))
	_, err := os.Stat(filepath.Join(filepath.Dir(f.root), "escape"))
	assert.True(t, os.IsNotExist(err))
}

func TestDeleteAndUnknownSession(t *testing.T) {
	f := newFixture(t)
	id := f.mounted(t)

	assert.Equal(t, http.StatusOK, f.call(t, "DELETE", "/api/images/"+id, nil, nil))
	assert.Equal(t, 0, f.handler.SessionCount())
	assert.Equal(t, http.StatusNotFound, f.call(t, "DELETE", "/api/images/"+id, nil, nil))
	assert.Equal(t, http.StatusNotFound, f.call(t, "GET", "/api/images/"+id+"/tree", nil, nil))
}

func TestReap(t *testing.T) {
	f := newFixture(t)
	f.mounted(t)
	f.mounted(t)
	require.Equal(t, 2, f.handler.SessionCount())

	assert.Equal(t, 0, f.handler.Reap(time.Hour))
	assert.Equal(t, 2, f.handler.Reap(-time.Second))
	assert.Equal(t, 0, f.handler.SessionCount())
}

func TestReapedSessionIsUnknown(t *testing.T) {
	f := newFixture(t)
	id := f.mounted(t)

	// a request that looked the session up just before it was reaped
	f.handler.mu.Lock()
	s := f.handler.sessions[id]
	f.handler.mu.Unlock()
	require.NotNil(t, s)
	require.Equal(t, 1, f.handler.Reap(-time.Second))

	err := acquire(s)
	assert.ErrorIs(t, err, ErrUnknownSession)
	assert.Nil(t, s.tree)
	assert.Equal(t, http.StatusNotFound, f.call(t, "POST", "/api/images/"+id+"/mount", map[string]string{}, nil))
}

func TestMetricsEndpoint(t *testing.T) {
	f := newFixture(t)
	f.call(t, "GET", "/api/health", nil, nil)

	resp, err := http.Get(f.server.URL + "/metrics")
	require.NoError(t, err)
	defer resp.Body.Close()
	body, _ := io.ReadAll(resp.Body)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, string(body), "flopview_")
}
