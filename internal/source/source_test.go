package source

import (
	"bytes"
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/klauspost/compress/gzip"
	"github.com/klauspost/compress/zstd"
	"github.com/pierrec/lz4/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/ulikunitz/xz"
)

func payload() []byte {
	data := make([]byte, 368640)
	for i := range data {
		data[i] = byte(i / 512)
	}
	return data
}

func compress(t *testing.T, c Compression, data []byte) []byte {
	t.Helper()
	var buf bytes.Buffer
	var w io.WriteCloser
	switch c {
	case Gzip:
		w = gzip.NewWriter(&buf)
	case Zstd:
		zw, err := zstd.NewWriter(&buf)
		require.NoError(t, err)
		w = zw
	case XZ:
		xw, err := xz.NewWriter(&buf)
		require.NoError(t, err)
		w = xw
	case LZ4:
		w = lz4.NewWriter(&buf)
	}
	_, err := w.Write(data)
	require.NoError(t, err)
	require.NoError(t, w.Close())
	return buf.Bytes()
}

func TestReadDecompresses(t *testing.T) {
	want := payload()
	for _, c := range []Compression{Gzip, Zstd, XZ, LZ4} {
		t.Run(string(c), func(t *testing.T) {
			packed := compress(t, c, want)
			im, err := Read(bytes.NewReader(packed), "disk.img", DefaultLimit)
			require.NoError(t, err)
			assert.Equal(t, c, im.Compression)
			assert.Equal(t, want, im.Data)
		})
	}
}

func TestReadPlain(t *testing.T) {
	im, err := Read(bytes.NewReader(payload()), "disk.img", DefaultLimit)
	require.NoError(t, err)
	assert.Equal(t, None, im.Compression)
	assert.Equal(t, payload(), im.Data)
	assert.Equal(t, int64(len(im.Data)), im.Reader().Size())

	im, err = Read(bytes.NewReader(nil), "empty.img", DefaultLimit)
	require.NoError(t, err)
	assert.Empty(t, im.Data)
}

func TestReadLimit(t *testing.T) {
	_, err := Read(bytes.NewReader(make([]byte, 1025)), "big.img", 1024)
	assert.ErrorIs(t, err, ErrTooLarge)

	// the limit applies to the decompressed size
	packed := compress(t, Gzip, make([]byte, 1<<20))
	_, err = Read(bytes.NewReader(packed), "bomb.img.gz", 4096)
	assert.ErrorIs(t, err, ErrTooLarge)
}

func TestHint(t *testing.T) {
	tests := map[string]string{
		"/disks/game.img":    "game.img",
		"/disks/game.img.gz": "game.img",
		"game.IMD.XZ":        "game.IMD",
		"backup.ima.zst":     "backup.ima",
		"archive.dsk.lz4":    "archive.dsk",
		"plain":              "plain",
		"odd.gz.img":         "odd.gz.img",
	}
	for in, want := range tests {
		assert.Equal(t, want, Hint(in), in)
	}
}

func TestOpen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "floppy.img.gz")
	require.NoError(t, os.WriteFile(path, compress(t, Gzip, payload()), 0644))

	im, err := Open(path)
	require.NoError(t, err)
	assert.Equal(t, "floppy.img", im.Hint())
	assert.Equal(t, payload(), im.Data)

	_, err = Open(filepath.Join(t.TempDir(), "missing.img"))
	assert.ErrorIs(t, err, os.ErrNotExist)
}
