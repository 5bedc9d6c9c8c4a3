package webui

import (
	"encoding/json"
	"errors"
	"fmt"
	"html/template"
	"io"
	"net/http"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"go.uber.org/zap"

	"github.com/jgarman/flopview/internal/diskmanager"
	"github.com/jgarman/flopview/internal/format"
	"github.com/jgarman/flopview/internal/imagetree"
	"github.com/jgarman/flopview/internal/logging"
	"github.com/jgarman/flopview/internal/metrics"
	"github.com/jgarman/flopview/internal/source"
)

var (
	ErrUnknownSession = errors.New("unknown session")
	ErrBadDestination = errors.New("destination escapes the extraction root")
)

// Options configures a Handler.
type Options struct {
	// Maximum decompressed upload size in bytes
	MaxUploadBytes int64

	// Extraction destinations are resolved inside this directory
	ExtractRoot string

	// Default for extract requests that do not say
	IncludeRootName bool
}

// session is one uploaded image and, once mounted, its tree. All access to
// the tree goes through mu.
type session struct {
	mu       sync.Mutex
	id       string
	image    *source.Image
	results  []diskmanager.ResultCategory
	tree     *imagetree.Tree
	lastUsed time.Time
	// ended is set once the session leaves the table
	ended bool
}

func (s *session) close() {
	if s.tree != nil {
		s.tree.Close()
		s.tree = nil
	}
}

// end closes s for good. Callers hold s.mu.
func (s *session) end() {
	s.close()
	s.ended = true
}

// Handler manages HTTP requests for the web UI
type Handler struct {
	manager   *diskmanager.Manager
	opts      Options
	templates *template.Template

	mu       sync.Mutex
	sessions map[string]*session
}

// New creates a new web UI handler
func New(manager *diskmanager.Manager, opts Options) (*Handler, error) {
	// Parse embedded templates
	tmpl, err := template.New("index").Parse(indexTemplate)
	if err != nil {
		return nil, fmt.Errorf("failed to parse template: %w", err)
	}
	if opts.MaxUploadBytes <= 0 {
		opts.MaxUploadBytes = source.DefaultLimit
	}

	return &Handler{
		manager:   manager,
		opts:      opts,
		templates: tmpl,
		sessions:  make(map[string]*session),
	}, nil
}

// Router returns the routes of the web UI and API, wrapped in request
// logging and metrics.
func (h *Handler) Router() *mux.Router {
	r := mux.NewRouter()
	r.Use(logging.Middleware, metrics.Middleware)

	r.HandleFunc("/", h.IndexHandler).Methods("GET")
	r.HandleFunc("/api/health", h.HealthHandler).Methods("GET")
	r.HandleFunc("/api/formats", h.FormatsHandler).Methods("GET")
	r.HandleFunc("/api/images", h.UploadHandler).Methods("POST")
	r.HandleFunc("/api/images/{id}", h.DeleteHandler).Methods("DELETE")
	r.HandleFunc("/api/images/{id}/mount", h.MountHandler).Methods("POST")
	r.HandleFunc("/api/images/{id}/tree", h.TreeHandler).Methods("GET")
	r.HandleFunc("/api/images/{id}/expand", h.ExpandHandler).Methods("POST")
	r.HandleFunc("/api/images/{id}/expanded", h.ExpandedHandler).Methods("POST")
	r.HandleFunc("/api/images/{id}/file", h.FileHandler).Methods("GET")
	r.HandleFunc("/api/images/{id}/extract", h.ExtractHandler).Methods("POST")
	r.Handle("/metrics", metrics.Handler()).Methods("GET")
	return r
}

// IndexHandler serves the main upload page
func (h *Handler) IndexHandler(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")

	if err := h.templates.ExecuteTemplate(w, "index", nil); err != nil {
		logging.WithContext(r.Context()).Error("Error rendering template", zap.Error(err))
		http.Error(w, "Internal server error", http.StatusInternalServerError)
	}
}

// HealthHandler provides a health check endpoint
func (h *Handler) HealthHandler(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	io.WriteString(w, `{"status": "ok"}`)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, r *http.Request, err error) {
	status := statusFor(err)
	if status >= 500 {
		logging.WithContext(r.Context()).Error("request failed", zap.Error(err))
	} else {
		logging.WithContext(r.Context()).Debug("request rejected", zap.Int("status", status), zap.Error(err))
	}
	writeJSON(w, status, map[string]any{"success": false, "error": err.Error()})
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, ErrUnknownSession), errors.Is(err, format.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, diskmanager.ErrNotMounted):
		return http.StatusConflict
	case errors.Is(err, source.ErrTooLarge):
		return http.StatusRequestEntityTooLarge
	case errors.Is(err, diskmanager.ErrDecode),
		errors.Is(err, diskmanager.ErrGeometryMismatch),
		errors.Is(err, diskmanager.ErrCannotRead),
		errors.Is(err, diskmanager.ErrMountFailed),
		errors.Is(err, diskmanager.ErrUnrecognized):
		return http.StatusUnprocessableEntity
	case errors.Is(err, diskmanager.ErrUnknownFormat),
		errors.Is(err, diskmanager.ErrUnknownFileSystem),
		errors.Is(err, imagetree.ErrInvalidAddress),
		errors.Is(err, imagetree.ErrNotFile),
		errors.Is(err, ErrBadDestination),
		errors.Is(err, errBadRequest):
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

var errBadRequest = errors.New("bad request")

// lookup returns the session named in the route and marks it used. The
// session is returned locked.
func (h *Handler) lookup(r *http.Request) (*session, error) {
	id := mux.Vars(r)["id"]
	h.mu.Lock()
	s, ok := h.sessions[id]
	h.mu.Unlock()
	if !ok {
		return nil, fmt.Errorf("%s: %w", id, ErrUnknownSession)
	}
	if err := acquire(s); err != nil {
		return nil, err
	}
	return s, nil
}

// acquire locks s and marks it used. A session reaped or deleted after it
// was looked up is reported as unknown.
func acquire(s *session) error {
	s.mu.Lock()
	if s.ended {
		s.mu.Unlock()
		return fmt.Errorf("%s: %w", s.id, ErrUnknownSession)
	}
	s.lastUsed = time.Now()
	return nil
}

// mounted is lookup for routes that need a tree.
func (h *Handler) mounted(r *http.Request) (*session, error) {
	s, err := h.lookup(r)
	if err != nil {
		return nil, err
	}
	if s.tree == nil {
		s.mu.Unlock()
		return nil, diskmanager.ErrNotMounted
	}
	return s, nil
}

// SessionCount returns the number of open sessions.
func (h *Handler) SessionCount() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.sessions)
}

// Reap closes sessions unused for longer than maxIdle and returns how many
// were closed.
func (h *Handler) Reap(maxIdle time.Duration) int {
	cutoff := time.Now().Add(-maxIdle)
	h.mu.Lock()
	var stale []*session
	for id, s := range h.sessions {
		s.mu.Lock()
		if s.lastUsed.Before(cutoff) {
			stale = append(stale, s)
			delete(h.sessions, id)
		}
		s.mu.Unlock()
	}
	metrics.SetActiveSessions(len(h.sessions))
	h.mu.Unlock()

	for _, s := range stale {
		s.mu.Lock()
		s.end()
		s.mu.Unlock()
		logging.L().Info("Closed idle session", zap.String("session", s.id))
	}
	return len(stale)
}

// Close closes every session.
func (h *Handler) Close() {
	h.Reap(-time.Hour)
}

// UploadHandler reads a multipart "file" part into a new session and
// identifies it
func (h *Handler) UploadHandler(w http.ResponseWriter, r *http.Request) {
	log := logging.WithContext(r.Context())

	// compressed uploads never exceed their decompressed limit
	r.Body = http.MaxBytesReader(w, r.Body, h.opts.MaxUploadBytes+1<<20)
	reader, err := r.MultipartReader()
	if err != nil {
		writeError(w, r, fmt.Errorf("%w: invalid multipart request: %v", errBadRequest, err))
		return
	}

	var image *source.Image
	for {
		part, err := reader.NextPart()
		if err == io.EOF {
			break
		}
		if err != nil {
			writeError(w, r, fmt.Errorf("%w: error reading upload: %v", errBadRequest, err))
			return
		}
		// Only process file parts
		if part.FormName() != "file" {
			part.Close()
			continue
		}

		// Sanitize the filename to prevent path traversal
		name := filepath.Base(part.FileName())
		image, err = source.Read(part, name, h.opts.MaxUploadBytes)
		part.Close()
		if err != nil {
			var maxErr *http.MaxBytesError
			if errors.As(err, &maxErr) {
				err = fmt.Errorf("%w: %v", source.ErrTooLarge, err)
			}
			writeError(w, r, err)
			return
		}
		break
	}
	if image == nil {
		writeError(w, r, fmt.Errorf("%w: no file provided", errBadRequest))
		return
	}

	s := &session{
		id:       uuid.NewString(),
		image:    image,
		lastUsed: time.Now(),
	}
	s.results = h.manager.Identify(image.Reader(), image.Hint())

	h.mu.Lock()
	h.sessions[s.id] = s
	metrics.SetActiveSessions(len(h.sessions))
	h.mu.Unlock()

	log.Info("Uploaded image",
		zap.String("session", s.id),
		zap.String("name", image.Name),
		zap.String("compression", string(image.Compression)),
		zap.Int("size", len(image.Data)),
	)

	resp := uploadResponse{
		ID:          s.id,
		Name:        image.Name,
		Compression: string(image.Compression),
		Size:        len(image.Data),
		Results:     resultsJSON(s.results),
	}
	if sel, ok := h.manager.DefaultSelection(s.results); ok {
		resp.Default = selectionJSON(sel)
	}
	writeJSON(w, http.StatusOK, resp)
}

// DeleteHandler closes a session
func (h *Handler) DeleteHandler(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	h.mu.Lock()
	s, ok := h.sessions[id]
	delete(h.sessions, id)
	metrics.SetActiveSessions(len(h.sessions))
	h.mu.Unlock()
	if !ok {
		writeError(w, r, fmt.Errorf("%s: %w", id, ErrUnknownSession))
		return
	}

	s.mu.Lock()
	s.end()
	s.mu.Unlock()
	writeJSON(w, http.StatusOK, map[string]any{"success": true})
}

// FormatsHandler lists the catalog
func (h *Handler) FormatsHandler(w http.ResponseWriter, r *http.Request) {
	cat := h.manager.Catalog()
	var resp formatsResponse
	for _, c := range cat.Formats() {
		fc := formatCategoryJSON{Name: c.Name}
		for _, f := range c.Items {
			fc.Formats = append(fc.Formats, formatJSON{Name: f.Name(), Description: f.Description(), Extensions: f.Extensions()})
		}
		resp.Formats = append(resp.Formats, fc)
	}
	for _, c := range cat.FileSystems() {
		fc := fileSystemCategoryJSON{Name: c.Name}
		for _, fs := range c.Items {
			fc.FileSystems = append(fc.FileSystems, fileSystemJSON{Name: fs.Name(), Description: fs.Description(), CanRead: fs.CanRead()})
		}
		resp.FileSystems = append(resp.FileSystems, fc)
	}
	resp.NameFilters = cat.NameFilters()
	writeJSON(w, http.StatusOK, resp)
}

// MountHandler mounts a session's image with the requested format and
// filesystem, or the default selection for names left empty
func (h *Handler) MountHandler(w http.ResponseWriter, r *http.Request) {
	var req mountRequest
	if r.ContentLength != 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, r, fmt.Errorf("%w: %v", errBadRequest, err))
			return
		}
	}

	s, err := h.lookup(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	defer s.mu.Unlock()

	var img *diskmanager.Image
	if req.Format != "" && req.FileSystem != "" {
		img, err = h.manager.MountByName(s.image.Reader(), req.Format, req.FileSystem)
	} else {
		var sel diskmanager.Selection
		if sel, err = h.manager.Select(s.image.Reader(), s.image.Hint(), req.Format, req.FileSystem); err == nil {
			img, err = h.manager.Mount(s.image.Reader(), sel.Format, sel.FileSystem)
		}
	}
	if err != nil {
		writeError(w, r, err)
		return
	}
	tree, err := imagetree.New(img)
	if err != nil {
		img.Close()
		writeError(w, r, err)
		return
	}

	// remounting replaces the previous tree
	s.close()
	s.tree = tree

	resp := mountResponse{
		Format:     img.Format().Name(),
		FileSystem: img.FileSystem().Name(),
		Geometry:   img.Geometry().Name,
		Volume:     img.VolumeName(),
	}
	for _, f := range tree.Fields() {
		resp.Fields = append(resp.Fields, string(f))
	}
	writeJSON(w, http.StatusOK, resp)
}

// addressFromQuery reads slot and row; both absent means the root.
func addressFromQuery(r *http.Request) (imagetree.Address, error) {
	q := r.URL.Query()
	if q.Get("slot") == "" && q.Get("row") == "" {
		return imagetree.Root(), nil
	}
	slot, err := strconv.Atoi(q.Get("slot"))
	if err != nil {
		return imagetree.Address{}, fmt.Errorf("%w: slot %q", imagetree.ErrInvalidAddress, q.Get("slot"))
	}
	row, err := strconv.Atoi(q.Get("row"))
	if err != nil {
		return imagetree.Address{}, fmt.Errorf("%w: row %q", imagetree.ErrInvalidAddress, q.Get("row"))
	}
	return imagetree.At(slot, row, 0), nil
}

func (a addressJSON) address() imagetree.Address {
	if a.Slot == nil || a.Row == nil {
		return imagetree.Root()
	}
	return imagetree.At(*a.Slot, *a.Row, 0)
}

// TreeHandler lists the loaded children of an address. Directories not yet
// expanded report resolved false and no entries
func (h *Handler) TreeHandler(w http.ResponseWriter, r *http.Request) {
	a, err := addressFromQuery(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	s, err := h.mounted(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	defer s.mu.Unlock()

	resp, err := listing(s.tree, a)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

// ExpandHandler loads a directory's children and lists them
func (h *Handler) ExpandHandler(w http.ResponseWriter, r *http.Request) {
	var req addressJSON
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil && err != io.EOF {
		writeError(w, r, fmt.Errorf("%w: %v", errBadRequest, err))
		return
	}
	s, err := h.mounted(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	defer s.mu.Unlock()

	a := req.address()
	if err := s.tree.RequestExpand(a); err != nil {
		writeError(w, r, err)
		return
	}
	resp, err := listing(s.tree, a)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

// ExpandedHandler records whether the client shows a directory as open
func (h *Handler) ExpandedHandler(w http.ResponseWriter, r *http.Request) {
	var req expandedRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, r, fmt.Errorf("%w: %v", errBadRequest, err))
		return
	}
	s, err := h.mounted(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	defer s.mu.Unlock()

	a := req.address()
	if err := s.tree.SetExpanded(a, req.Expanded); err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"success": true, "expanded": s.tree.IsExpanded(a)})
}

// FileHandler streams a file's contents
func (h *Handler) FileHandler(w http.ResponseWriter, r *http.Request) {
	a, err := addressFromQuery(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	s, err := h.mounted(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	defer s.mu.Unlock()

	data, err := s.tree.ReadFile(a)
	if err != nil {
		writeError(w, r, err)
		return
	}
	name := s.tree.FileName(a)
	w.Header().Set("Content-Type", "application/octet-stream")
	w.Header().Set("Content-Length", strconv.Itoa(len(data)))
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", name))
	w.WriteHeader(http.StatusOK)
	w.Write(data)
}

// destination resolves a client supplied path inside the extraction root.
func (h *Handler) destination(rel string) (string, error) {
	if h.opts.ExtractRoot == "" {
		return "", fmt.Errorf("%w: extraction is disabled", ErrBadDestination)
	}
	root := filepath.Clean(h.opts.ExtractRoot)
	dest := filepath.Join(root, filepath.FromSlash(rel))
	if dest != root && !strings.HasPrefix(dest, root+string(filepath.Separator)) {
		return "", fmt.Errorf("%w: %s", ErrBadDestination, rel)
	}
	return dest, nil
}

// ExtractHandler copies an entry, recursively for directories, under the
// extraction root and returns the outcome report
func (h *Handler) ExtractHandler(w http.ResponseWriter, r *http.Request) {
	var req extractRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, r, fmt.Errorf("%w: %v", errBadRequest, err))
		return
	}
	dest, err := h.destination(req.Dest)
	if err != nil {
		writeError(w, r, err)
		return
	}
	includeRoot := h.opts.IncludeRootName
	if req.IncludeRootName != nil {
		includeRoot = *req.IncludeRootName
	}

	s, err := h.mounted(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	defer s.mu.Unlock()

	report, err := s.tree.Extract(req.address(), dest, includeRoot)
	if err != nil {
		writeError(w, r, err)
		return
	}
	logging.WithContext(r.Context()).Info("Extracted",
		zap.String("session", s.id),
		zap.String("dest", dest),
		zap.Int("files", report.Files()),
		zap.Int("failures", len(report.Failures())),
	)
	writeJSON(w, http.StatusOK, reportJSON(report))
}
