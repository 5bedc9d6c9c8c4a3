package diskmanager

import (
	"errors"
	"fmt"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/jgarman/flopview/internal/catalog"
	"github.com/jgarman/flopview/internal/format"
	"github.com/jgarman/flopview/internal/logging"
	"github.com/jgarman/flopview/internal/metrics"
)

var (
	ErrDecode            = errors.New("decode failed")
	ErrGeometryMismatch  = errors.New("filesystem cannot represent this image layout")
	ErrCannotRead        = errors.New("filesystem cannot be read")
	ErrMountFailed       = errors.New("mount failed")
	ErrUnknownFormat     = errors.New("unknown format")
	ErrUnknownFileSystem = errors.New("unknown filesystem")
	ErrNotMounted        = errors.New("no image mounted")
	ErrUnrecognized      = errors.New("no format recognized the image")
)

// IdentifyResult is one format that recognized an image.
type IdentifyResult struct {
	Score  format.Score
	Format *catalog.FloppyFormat
}

// ResultCategory groups the results of one catalog category, best first.
type ResultCategory struct {
	Name    string
	Results []IdentifyResult
}

// Best returns the score of the first result.
func (c ResultCategory) Best() format.Score {
	if len(c.Results) == 0 {
		return format.ScoreFail
	}
	return c.Results[0].Score
}

// Selection is a format and filesystem pair ready to be mounted.
type Selection struct {
	Format     *catalog.FloppyFormat
	FileSystem *catalog.FileSystem
}

// Manager identifies and mounts images against one catalog.
type Manager struct {
	catalog *catalog.Catalog
}

// New creates a manager over cat. The catalog is shared, not copied.
//
// Example usage:
//
//	cat := catalog.New(all.Library())
//	manager := diskmanager.New(cat)
//	results := manager.Identify(src, "disk.img")
//	sel, ok := manager.DefaultSelection(results)
//	if !ok {
//	    return errors.New("unrecognized image")
//	}
//	img, err := manager.Mount(src, sel.Format, sel.FileSystem)
//	if err != nil {
//	    return err
//	}
//	defer img.Close()
func New(cat *catalog.Catalog) *Manager {
	return &Manager{catalog: cat}
}

// Catalog returns the catalog the manager was built with.
func (m *Manager) Catalog() *catalog.Catalog {
	return m.catalog
}

// Identify scores src against every known format. hint is the image's file
// name, used only for its extension; it may be empty.
//
// Matches are grouped by category. Each category is sorted by descending
// score and categories by their best score; equal scores keep discovery
// order. An image nothing recognizes yields an empty slice.
func (m *Manager) Identify(src format.Source, hint string) []ResultCategory {
	start := time.Now()
	ext := strings.TrimPrefix(filepath.Ext(hint), ".")

	var results []ResultCategory
	matches := 0
	for _, cat := range m.catalog.Formats() {
		for _, f := range cat.Items {
			score := f.Format().Identify(src)
			if !score.Matched() {
				continue
			}
			if format.HasExtension(f.Extensions(), ext) {
				score = score.WithExtension()
			}
			results = appendResult(results, cat.Name, IdentifyResult{Score: score, Format: f})
			matches++
		}
	}

	for i := range results {
		r := results[i].Results
		sort.SliceStable(r, func(a, b int) bool {
			return r[a].Score > r[b].Score
		})
	}
	sort.SliceStable(results, func(a, b int) bool {
		return results[a].Best() > results[b].Best()
	})

	metrics.RecordIdentify(matches, time.Since(start))
	logging.L().Debug("identified image",
		zap.String("hint", hint),
		zap.Int("matches", matches),
		zap.Int("categories", len(results)),
	)
	return results
}

func appendResult(results []ResultCategory, category string, r IdentifyResult) []ResultCategory {
	for i := range results {
		if results[i].Name == category {
			results[i].Results = append(results[i].Results, r)
			return results
		}
	}
	return append(results, ResultCategory{Name: category, Results: []IdentifyResult{r}})
}

// DefaultSelection picks the best identify result and the first readable
// filesystem of the catalog category sharing its category name. ok is false
// when results is empty. The filesystem may be nil when that category has no
// readable filesystem.
func (m *Manager) DefaultSelection(results []ResultCategory) (sel Selection, ok bool) {
	if len(results) == 0 || len(results[0].Results) == 0 {
		return Selection{}, false
	}
	sel.Format = results[0].Results[0].Format
	sel.FileSystem = m.catalog.FirstReadableFileSystem(results[0].Name)
	return sel, true
}

// Mount decodes src as f and reinterprets it as fs.
//
// Each of the filesystem's geometries is tried in order; a converter is run
// at most once even when several geometries share it. The first geometry
// whose serialized size matches exactly is mounted. src is not modified.
func (m *Manager) Mount(src format.Source, f *catalog.FloppyFormat, fs *catalog.FileSystem) (*Image, error) {
	start := time.Now()
	img, err := m.mount(src, f, fs)

	status := "success"
	switch {
	case err == nil:
	case errors.Is(err, ErrGeometryMismatch):
		status = "geometry_mismatch"
	case errors.Is(err, ErrDecode):
		status = "decode_error"
	default:
		status = "error"
	}
	fsName := ""
	if fs != nil {
		fsName = fs.Name()
	}
	metrics.RecordMount(fsName, status, time.Since(start))

	if err != nil {
		logging.L().Debug("mount failed", zap.String("filesystem", fsName), zap.Error(err))
		return nil, err
	}
	logging.L().Info("mounted image",
		zap.String("format", f.Name()),
		zap.String("filesystem", fsName),
		zap.String("geometry", img.geometry.Name),
		zap.Int("bytes", len(img.data)),
	)
	return img, nil
}

func (m *Manager) mount(src format.Source, f *catalog.FloppyFormat, fs *catalog.FileSystem) (*Image, error) {
	if f == nil {
		return nil, ErrUnknownFormat
	}
	if fs == nil {
		return nil, ErrUnknownFileSystem
	}
	if !fs.CanRead() {
		return nil, fmt.Errorf("%s: %w", fs.Name(), ErrCannotRead)
	}

	structural, err := f.Format().Decode(src)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrDecode, f.Name(), err)
	}

	geometry, data, ok := matchGeometry(structural, fs.FileSystem().Geometries())
	if !ok {
		return nil, fmt.Errorf("%s as %s: %w", f.Name(), fs.Name(), ErrGeometryMismatch)
	}

	handle, err := fs.FileSystem().Mount(data)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrMountFailed, fs.Name(), err)
	}

	return &Image{
		format:     f,
		fileSystem: fs,
		geometry:   geometry,
		data:       data,
		handle:     handle,
	}, nil
}

// matchGeometry serializes structural once per distinct converter and
// returns the first geometry whose output length equals its size.
func matchGeometry(structural *format.Image, geometries []format.Geometry) (format.Geometry, []byte, bool) {
	type serialized struct {
		data []byte
		err  error
	}
	cache := make(map[string]serialized)

	for _, g := range geometries {
		if g.Converter == nil {
			continue
		}
		name := g.Converter.Name()
		s, ok := cache[name]
		if !ok {
			s.data, s.err = g.Converter.Serialize(structural)
			cache[name] = s
		}
		if s.err != nil {
			continue
		}
		if int64(len(s.data)) == g.Size {
			return g, s.data, true
		}
	}
	return format.Geometry{}, nil, false
}

// MountByName resolves the format and filesystem by name and mounts src.
func (m *Manager) MountByName(src format.Source, formatName, fsName string) (*Image, error) {
	f := m.catalog.FindFormat(formatName)
	if f == nil {
		return nil, fmt.Errorf("%q: %w", formatName, ErrUnknownFormat)
	}
	fs := m.catalog.FindFileSystem(fsName)
	if fs == nil {
		return nil, fmt.Errorf("%q: %w", fsName, ErrUnknownFileSystem)
	}
	return m.Mount(src, f, fs)
}

// Select picks the format and filesystem for src. Empty names fall back to
// the identify results: the best format, then the first readable filesystem
// of that format's category.
func (m *Manager) Select(src format.Source, hint, formatName, fsName string) (Selection, error) {
	var sel Selection
	if formatName != "" {
		if sel.Format = m.catalog.FindFormat(formatName); sel.Format == nil {
			return Selection{}, fmt.Errorf("%q: %w", formatName, ErrUnknownFormat)
		}
	} else {
		def, ok := m.DefaultSelection(m.Identify(src, hint))
		if !ok {
			return Selection{}, ErrUnrecognized
		}
		sel.Format = def.Format
	}

	if fsName != "" {
		sel.FileSystem = m.catalog.FindFileSystem(fsName)
	} else {
		sel.FileSystem = m.catalog.FirstReadableFileSystem(sel.Format.Category())
	}
	if sel.FileSystem == nil {
		return Selection{}, fmt.Errorf("%q: %w", fsName, ErrUnknownFileSystem)
	}
	return sel, nil
}
