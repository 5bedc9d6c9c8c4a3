package diskmanager

import (
	"bytes"
	"errors"
	"reflect"
	"testing"

	"github.com/jgarman/flopview/internal/catalog"
	"github.com/jgarman/flopview/internal/format"
	"github.com/jgarman/flopview/internal/format/formattest"
)

func newManager(lib formattest.Library) *Manager {
	return New(catalog.New(lib))
}

func source(n int) *bytes.Reader {
	return bytes.NewReader(bytes.Repeat([]byte{0x5a}, n))
}

// names flattens results into "category/format" strings for comparison.
func names(results []ResultCategory) []string {
	var out []string
	for _, cat := range results {
		for _, r := range cat.Results {
			out = append(out, cat.Name+"/"+r.Format.Name())
		}
	}
	return out
}

// TestIdentifyNoMatches tests that an image nothing recognizes yields an empty result
func TestIdentifyNoMatches(t *testing.T) {
	fs := &formattest.FileSystem{ID: "fat", Readable: true}
	m := newManager(formattest.Library{
		{Category: "PC", Format: &formattest.Format{ID: "a", Exts: []string{"img"}}},
		{Category: "PC", Format: &formattest.Format{ID: "b", Exts: []string{"img"}}},
		{Category: "PC", FileSystem: fs},
	})

	results := m.Identify(source(512), "disk.img")
	if len(results) != 0 {
		t.Fatalf("Expected no results, got %v", names(results))
	}

	if _, ok := m.DefaultSelection(results); ok {
		t.Error("Expected no default selection for an empty result")
	}
	if len(fs.Handles) != 0 {
		t.Error("Filesystem should never have been mounted")
	}
}

// TestIdentifyOrdering tests sorting within and across categories
func TestIdentifyOrdering(t *testing.T) {
	m := newManager(formattest.Library{
		{Category: "Apple", Format: &formattest.Format{ID: "a_size", Fixed: format.ScoreSize}},
		{Category: "Apple", Format: &formattest.Format{ID: "a_struct", Fixed: format.ScoreStruct}},
		{Category: "PC", Format: &formattest.Format{ID: "p_sign", Fixed: format.ScoreSign}},
		{Category: "PC", Format: &formattest.Format{ID: "p_none"}},
		{Category: "PC", Format: &formattest.Format{ID: "p_struct_sign", Fixed: format.ScoreStruct | format.ScoreSign}},
		{Category: "Amiga", Format: &formattest.Format{ID: "m_size", Fixed: format.ScoreSize}},
	})

	results := m.Identify(source(512), "")

	want := []string{
		"PC/p_struct_sign",
		"PC/p_sign",
		"Apple/a_struct",
		"Apple/a_size",
		"Amiga/m_size",
	}
	if got := names(results); !reflect.DeepEqual(got, want) {
		t.Fatalf("Expected %v, got %v", want, got)
	}

	for _, cat := range results {
		for i := 1; i < len(cat.Results); i++ {
			if cat.Results[i].Score > cat.Results[i-1].Score {
				t.Errorf("Category %s is not sorted by score", cat.Name)
			}
		}
	}
	for i := 1; i < len(results); i++ {
		if results[i].Best() > results[i-1].Best() {
			t.Errorf("Categories are not sorted by best score")
		}
	}
}

// TestIdentifyTiesKeepDiscoveryOrder tests that equal scores stay in catalog order
func TestIdentifyTiesKeepDiscoveryOrder(t *testing.T) {
	m := newManager(formattest.Library{
		{Category: "B", Format: &formattest.Format{ID: "b1", Fixed: format.ScoreSize}},
		{Category: "A", Format: &formattest.Format{ID: "a1", Fixed: format.ScoreSize}},
		{Category: "A", Format: &formattest.Format{ID: "a2", Fixed: format.ScoreSize}},
	})

	first := names(m.Identify(source(512), ""))
	want := []string{"A/a1", "A/a2", "B/b1"}
	if !reflect.DeepEqual(first, want) {
		t.Fatalf("Expected %v, got %v", want, first)
	}

	for i := 0; i < 5; i++ {
		if got := names(m.Identify(source(512), "")); !reflect.DeepEqual(got, first) {
			t.Fatalf("Run %d produced %v, expected %v", i, got, first)
		}
	}
}

// TestIdentifyExtensionBit tests the extension bonus
func TestIdentifyExtensionBit(t *testing.T) {
	m := newManager(formattest.Library{
		{Category: "PC", Format: &formattest.Format{ID: "stronger", Fixed: format.ScoreStruct, Exts: []string{"dsk"}}},
		{Category: "PC", Format: &formattest.Format{ID: "peer", Fixed: format.ScoreSign, Exts: []string{"dsk"}}},
		{Category: "PC", Format: &formattest.Format{ID: "f", Fixed: format.ScoreSign, Exts: []string{"img"}}},
		{Category: "PC", Format: &formattest.Format{ID: "zero", Exts: []string{"img"}}},
	})

	results := m.Identify(source(512), "/tmp/Disk.IMG")
	if len(results) != 1 {
		t.Fatalf("Expected 1 category, got %d", len(results))
	}

	want := []string{"PC/stronger", "PC/f", "PC/peer"}
	if got := names(results); !reflect.DeepEqual(got, want) {
		t.Fatalf("Expected %v, got %v", want, got)
	}

	f := results[0].Results[1]
	if f.Score != format.ScoreSign|format.ScoreExt {
		t.Errorf("Expected score %v, got %v", format.ScoreSign|format.ScoreExt, f.Score)
	}
	if results[0].Results[0].Score&format.ScoreExt != 0 {
		t.Error("Extension bit set on a format that does not claim the extension")
	}
}

// TestDefaultSelection tests picking a format and filesystem from results
func TestDefaultSelection(t *testing.T) {
	m := newManager(formattest.Library{
		{Category: "PC", Format: &formattest.Format{ID: "raw", Fixed: format.ScoreSize}},
		{Category: "PC", FileSystem: &formattest.FileSystem{ID: "blank", Readable: false}},
		{Category: "PC", FileSystem: &formattest.FileSystem{ID: "fat", Readable: true}},
		{Category: "Other", Format: &formattest.Format{ID: "other", Fixed: format.ScoreHint}},
	})

	sel, ok := m.DefaultSelection(m.Identify(source(512), ""))
	if !ok {
		t.Fatal("Expected a default selection")
	}
	if sel.Format.Name() != "raw" {
		t.Errorf("Expected format raw, got %s", sel.Format.Name())
	}
	if sel.FileSystem == nil || sel.FileSystem.Name() != "fat" {
		t.Errorf("Expected filesystem fat, got %v", sel.FileSystem)
	}

	sel, ok = m.DefaultSelection([]ResultCategory{{Name: "Other", Results: []IdentifyResult{{Score: 1, Format: m.Catalog().FindFormat("other")}}}})
	if !ok {
		t.Fatal("Expected a default selection")
	}
	if sel.FileSystem != nil {
		t.Errorf("Expected no filesystem for a category without one, got %s", sel.FileSystem.Name())
	}
}

// TestMountExactSize tests that only an exact size match mounts
func TestMountExactSize(t *testing.T) {
	conv := &formattest.Converter{ID: "flat"}
	fs := &formattest.FileSystem{
		ID:       "fat",
		Readable: true,
		Geoms: []format.Geometry{
			{Name: "small", Converter: conv, Size: 1024},
			{Name: "exact", Converter: conv, Size: 2048},
			{Name: "large", Converter: conv, Size: 4096},
		},
		Volume: format.Metadata{format.MetaNameName: format.StringValue("FLOPPY")},
	}
	m := newManager(formattest.Library{
		{Category: "PC", Format: &formattest.Format{ID: "raw", Fixed: format.ScoreSize}},
		{Category: "PC", FileSystem: fs},
	})

	src := source(2048)
	img, err := m.MountByName(src, "raw", "fat")
	if err != nil {
		t.Fatalf("Failed to mount: %v", err)
	}
	defer img.Close()

	if img.Geometry().Name != "exact" {
		t.Errorf("Expected geometry exact, got %s", img.Geometry().Name)
	}
	if int64(len(img.Bytes())) != img.Geometry().Size {
		t.Errorf("Expected %d bytes, got %d", img.Geometry().Size, len(img.Bytes()))
	}
	if !bytes.Equal(fs.LastMount, img.Bytes()) {
		t.Error("Filesystem was not mounted with the matched buffer")
	}
	if conv.Calls != 1 {
		t.Errorf("Expected the shared converter to run once, ran %d times", conv.Calls)
	}
	if img.VolumeName() != "FLOPPY" {
		t.Errorf("Expected volume name FLOPPY, got %q", img.VolumeName())
	}
}

// TestMountTriesEachConverter tests that distinct converters are each tried
func TestMountTriesEachConverter(t *testing.T) {
	wrong := &formattest.Converter{ID: "wrong", Out: make([]byte, 100)}
	right := &formattest.Converter{ID: "right", Out: make([]byte, 300)}
	fs := &formattest.FileSystem{
		ID:       "fat",
		Readable: true,
		Geoms: []format.Geometry{
			{Name: "a", Converter: wrong, Size: 300},
			{Name: "b", Converter: wrong, Size: 200},
			{Name: "c", Converter: right, Size: 300},
		},
	}
	m := newManager(formattest.Library{
		{Category: "PC", Format: &formattest.Format{ID: "raw", Fixed: format.ScoreSize}},
		{Category: "PC", FileSystem: fs},
	})

	img, err := m.MountByName(source(512), "raw", "fat")
	if err != nil {
		t.Fatalf("Failed to mount: %v", err)
	}
	if img.Geometry().Name != "c" {
		t.Errorf("Expected geometry c, got %s", img.Geometry().Name)
	}
	if wrong.Calls != 1 || right.Calls != 1 {
		t.Errorf("Expected one call per converter, got wrong=%d right=%d", wrong.Calls, right.Calls)
	}
}

// TestMountGeometryMismatch tests the failure when no geometry fits
func TestMountGeometryMismatch(t *testing.T) {
	fs := &formattest.FileSystem{
		ID:       "fat",
		Readable: true,
		Geoms: []format.Geometry{
			{Name: "720K", Converter: &formattest.Converter{ID: "flat"}, Size: 737280},
		},
	}
	m := newManager(formattest.Library{
		{Category: "PC", Format: &formattest.Format{ID: "raw", Fixed: format.ScoreSize}},
		{Category: "PC", FileSystem: fs},
	})

	img, err := m.MountByName(source(512), "raw", "fat")
	if !errors.Is(err, ErrGeometryMismatch) {
		t.Fatalf("Expected ErrGeometryMismatch, got %v", err)
	}
	if img != nil {
		t.Error("Expected no image on failure")
	}
	if len(fs.Handles) != 0 {
		t.Error("Filesystem should not have been mounted")
	}
}

// TestMountErrors tests the remaining failure paths
func TestMountErrors(t *testing.T) {
	geoms := []format.Geometry{{Name: "g", Converter: &formattest.Converter{ID: "flat"}, Size: 512}}
	m := newManager(formattest.Library{
		{Category: "PC", Format: &formattest.Format{ID: "raw", Fixed: format.ScoreSize}},
		{Category: "PC", Format: &formattest.Format{ID: "broken", DecodeErr: errors.New("bad header")}},
		{Category: "PC", FileSystem: &formattest.FileSystem{ID: "blank", Readable: false, Geoms: geoms}},
		{Category: "PC", FileSystem: &formattest.FileSystem{ID: "fails", Readable: true, Geoms: geoms, MountErr: errors.New("bad boot sector")}},
		{Category: "PC", FileSystem: &formattest.FileSystem{ID: "fat", Readable: true, Geoms: geoms}},
	})

	tests := []struct {
		name    string
		format  string
		fs      string
		wantErr error
	}{
		{"decode", "broken", "fat", ErrDecode},
		{"not readable", "raw", "blank", ErrCannotRead},
		{"mount", "raw", "fails", ErrMountFailed},
		{"unknown format", "nope", "fat", ErrUnknownFormat},
		{"unknown filesystem", "raw", "nope", ErrUnknownFileSystem},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := m.MountByName(source(512), tt.format, tt.fs)
			if !errors.Is(err, tt.wantErr) {
				t.Errorf("Expected %v, got %v", tt.wantErr, err)
			}
		})
	}
}

// TestMountLeavesSourceUntouched tests that mounting does not modify the source
func TestMountLeavesSourceUntouched(t *testing.T) {
	raw := bytes.Repeat([]byte{1, 2, 3, 4}, 128)
	orig := append([]byte(nil), raw...)
	m := newManager(formattest.Library{
		{Category: "PC", Format: &formattest.Format{ID: "raw", Fixed: format.ScoreSize}},
		{Category: "PC", FileSystem: &formattest.FileSystem{ID: "fat", Readable: true, Geoms: []format.Geometry{
			{Name: "g", Converter: format.InterleavedConverter, Size: 512},
		}}},
	})

	img, err := m.MountByName(bytes.NewReader(raw), "raw", "fat")
	if err != nil {
		t.Fatalf("Failed to mount: %v", err)
	}
	img.Bytes()[0] = 0xff
	if !bytes.Equal(raw, orig) {
		t.Error("Source bytes changed")
	}
}

// TestImageCloseTwice tests that Close releases the handle once
func TestImageCloseTwice(t *testing.T) {
	fs := &formattest.FileSystem{ID: "fat", Readable: true, Geoms: []format.Geometry{
		{Name: "g", Converter: &formattest.Converter{ID: "flat"}, Size: 512},
	}}
	m := newManager(formattest.Library{
		{Category: "PC", Format: &formattest.Format{ID: "raw", Fixed: format.ScoreSize}},
		{Category: "PC", FileSystem: fs},
	})

	img, err := m.MountByName(source(512), "raw", "fat")
	if err != nil {
		t.Fatalf("Failed to mount: %v", err)
	}
	if err := img.Close(); err != nil {
		t.Fatalf("First close failed: %v", err)
	}
	if err := img.Close(); err != nil {
		t.Fatalf("Second close failed: %v", err)
	}
	if !fs.Handles[0].Closed {
		t.Error("Handle was not closed")
	}
	if img.Handle() != nil {
		t.Error("Handle should be nil after Close")
	}
}

// TestSelect tests explicit names and fallbacks to the identify results
func TestSelect(t *testing.T) {
	locked := &formattest.FileSystem{ID: "locked"}
	fat := &formattest.FileSystem{ID: "fat", Readable: true}
	m := newManager(formattest.Library{
		{Category: "PC", Format: &formattest.Format{ID: "raw", Fixed: format.ScoreSize}},
		{Category: "PC", Format: &formattest.Format{ID: "imd"}},
		{Category: "PC", FileSystem: locked},
		{Category: "PC", FileSystem: fat},
	})

	sel, err := m.Select(source(512), "disk.img", "", "")
	if err != nil {
		t.Fatalf("Failed to select: %v", err)
	}
	if sel.Format.Name() != "raw" || sel.FileSystem.Name() != "fat" {
		t.Errorf("Expected raw/fat, got %s/%s", sel.Format.Name(), sel.FileSystem.Name())
	}

	sel, err = m.Select(source(512), "", "imd", "locked")
	if err != nil {
		t.Fatalf("Failed to select by name: %v", err)
	}
	if sel.Format.Name() != "imd" || sel.FileSystem.Name() != "locked" {
		t.Errorf("Expected imd/locked, got %s/%s", sel.Format.Name(), sel.FileSystem.Name())
	}

	if _, err := m.Select(source(512), "", "nope", ""); !errors.Is(err, ErrUnknownFormat) {
		t.Errorf("Expected ErrUnknownFormat, got %v", err)
	}
	if _, err := m.Select(source(512), "", "raw", "nope"); !errors.Is(err, ErrUnknownFileSystem) {
		t.Errorf("Expected ErrUnknownFileSystem, got %v", err)
	}

	empty := newManager(formattest.Library{
		{Category: "PC", Format: &formattest.Format{ID: "raw"}},
	})
	if _, err := empty.Select(source(512), "", "", ""); !errors.Is(err, ErrUnrecognized) {
		t.Errorf("Expected ErrUnrecognized, got %v", err)
	}
}
