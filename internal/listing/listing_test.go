package listing

import (
	"bytes"
	"errors"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jgarman/flopview/internal/catalog"
	"github.com/jgarman/flopview/internal/config"
	"github.com/jgarman/flopview/internal/diskmanager"
	"github.com/jgarman/flopview/internal/formats/all"
	"github.com/jgarman/flopview/internal/formats/fat"
	"github.com/jgarman/flopview/internal/imagetree"
	"github.com/jgarman/flopview/internal/source"
)

func floppyTree(t *testing.T) *imagetree.Tree {
	t.Helper()
	path := filepath.Join(t.TempDir(), "disk.img")
	require.NoError(t, fat.BuildFloppy(path, "LISTING", map[string][]byte{
		"README.TXT":       []byte("hello"),
		"DOCS/MANUAL.TXT":  bytes.Repeat([]byte("m"), 3000),
		"DOCS/SUB/END.TXT": []byte("end"),
	}))
	im, err := source.Open(path)
	require.NoError(t, err)

	mgr := diskmanager.New(catalog.New(all.Library{}))
	sel, err := mgr.Select(im.Reader(), im.Hint(), "", "")
	require.NoError(t, err)
	img, err := mgr.Mount(im.Reader(), sel.Format, sel.FileSystem)
	require.NoError(t, err)

	tree, err := imagetree.New(img)
	require.NoError(t, err)
	t.Cleanup(func() { tree.Close() })
	return tree
}

func TestTreeFull(t *testing.T) {
	var buf bytes.Buffer
	New(&buf).Tree(floppyTree(t), imagetree.Root(), -1)

	out := buf.String()
	assert.Contains(t, out, "README.TXT")
	assert.Contains(t, out, "5 B")
	assert.Contains(t, out, "DOCS/")
	assert.Contains(t, out, "  MANUAL.TXT")
	assert.Contains(t, out, "2.9 KiB")
	assert.Contains(t, out, "    END.TXT")
}

func TestTreeDepthLimit(t *testing.T) {
	tree := floppyTree(t)
	var buf bytes.Buffer
	New(&buf).Tree(tree, imagetree.Root(), 1)

	out := buf.String()
	assert.Contains(t, out, "DOCS/")
	assert.NotContains(t, out, "MANUAL.TXT")

	docs, err := tree.Find([]string{"DOCS"})
	require.NoError(t, err)
	buf.Reset()
	New(&buf).Tree(tree, docs, 1)
	assert.Contains(t, buf.String(), "MANUAL.TXT")
	assert.NotContains(t, buf.String(), "END.TXT")
}

func TestIdentify(t *testing.T) {
	mgr := diskmanager.New(catalog.New(all.Library{}))
	var buf bytes.Buffer
	p := New(&buf)

	p.Identify(nil, diskmanager.Selection{}, false)
	assert.Contains(t, buf.String(), "no format recognized")

	buf.Reset()
	img := make([]byte, fat.FloppySize)
	results := mgr.Identify(bytes.NewReader(img), "blank.img")
	sel, ok := mgr.DefaultSelection(results)
	p.Identify(results, sel, ok)
	assert.Contains(t, buf.String(), "pc_raw")
	assert.Contains(t, buf.String(), "default: pc_raw / fat")
}

func TestFormats(t *testing.T) {
	var buf bytes.Buffer
	New(&buf).Formats(catalog.New(all.Library{}))
	out := buf.String()
	assert.Contains(t, out, "PC formats")
	assert.Contains(t, out, "imd")
	assert.Contains(t, out, "(not readable)")
}

func TestReport(t *testing.T) {
	var buf bytes.Buffer
	r := &imagetree.Report{Outcomes: []imagetree.Outcome{
		{Path: []string{"A.TXT"}, Kind: imagetree.OutcomeOK, Bytes: 2048},
		{Path: []string{"B.TXT"}, Kind: imagetree.OutcomeReadError, Err: errors.New("bad sector")},
	}}
	New(&buf).Report(r)
	assert.Contains(t, buf.String(), "1 files, 2.0 KiB extracted")
	assert.Contains(t, buf.String(), "1 failed")
	assert.Contains(t, buf.String(), "bad sector")
}

func TestRecent(t *testing.T) {
	var buf bytes.Buffer
	New(&buf).Recent([]config.Recent{{Format: "imd", FileSystem: "fat", Path: "/a.imd"}})
	assert.Contains(t, buf.String(), " 1. /a.imd [imd, fat]")
}
