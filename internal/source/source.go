// Package source loads disk image files into memory, unwrapping gzip, zstd,
// xz and lz4 compression.
package source

import (
	"bufio"
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/klauspost/compress/gzip"
	"github.com/klauspost/compress/zstd"
	"github.com/pierrec/lz4/v4"
	"github.com/ulikunitz/xz"
)

var ErrTooLarge = errors.New("image exceeds size limit")

// DefaultLimit bounds the decompressed size of an image.
const DefaultLimit = 512 << 20

// Compression identifies a wrapper around the image bytes.
type Compression string

const (
	None Compression = ""
	Gzip Compression = "gzip"
	Zstd Compression = "zstd"
	XZ   Compression = "xz"
	LZ4  Compression = "lz4"
)

var magics = []struct {
	c     Compression
	magic []byte
}{
	{Gzip, []byte{0x1f, 0x8b}},
	{Zstd, []byte{0x28, 0xb5, 0x2f, 0xfd}},
	{XZ, []byte{0xfd, '7', 'z', 'X', 'Z', 0x00}},
	{LZ4, []byte{0x04, 0x22, 0x4d, 0x18}},
}

var compressedExts = map[string]bool{
	".gz": true, ".gzip": true, ".zst": true, ".zstd": true, ".xz": true, ".lz4": true,
}

// Image is a fully loaded disk image.
type Image struct {
	Data        []byte
	Name        string
	Compression Compression
}

// Hint returns the name used for extension matching: the base name with any
// compression suffix removed, so "disk.img.gz" hints "disk.img".
func (im *Image) Hint() string {
	return Hint(im.Name)
}

// Reader returns a fresh reader over the image bytes.
func (im *Image) Reader() *bytes.Reader {
	return bytes.NewReader(im.Data)
}

// Hint strips directories and one compression suffix from name.
func Hint(name string) string {
	base := filepath.Base(name)
	if ext := filepath.Ext(base); compressedExts[strings.ToLower(ext)] {
		return strings.TrimSuffix(base, ext)
	}
	return base
}

// Open reads the file at path with DefaultLimit.
func Open(path string) (*Image, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open image: %w", err)
	}
	defer f.Close()
	return Read(f, path, DefaultLimit)
}

// Read loads r, named name, decompressing it if it starts with a known
// compression signature. At most limit decompressed bytes are accepted.
func Read(r io.Reader, name string, limit int64) (*Image, error) {
	br := bufio.NewReaderSize(r, 64*1024)
	head, _ := br.Peek(8)

	c := detect(head)
	dr, closer, err := decompressor(c, br)
	if err != nil {
		return nil, fmt.Errorf("failed to open %s stream: %w", c, err)
	}
	if closer != nil {
		defer closer()
	}

	data, err := io.ReadAll(io.LimitReader(dr, limit+1))
	if err != nil {
		return nil, fmt.Errorf("failed to read image: %w", err)
	}
	if int64(len(data)) > limit {
		return nil, fmt.Errorf("%w: more than %d bytes", ErrTooLarge, limit)
	}
	return &Image{Data: data, Name: name, Compression: c}, nil
}

func detect(head []byte) Compression {
	for _, m := range magics {
		if bytes.HasPrefix(head, m.magic) {
			return m.c
		}
	}
	return None
}

func decompressor(c Compression, r io.Reader) (io.Reader, func(), error) {
	switch c {
	case Gzip:
		zr, err := gzip.NewReader(r)
		if err != nil {
			return nil, nil, err
		}
		return zr, func() { zr.Close() }, nil
	case Zstd:
		zr, err := zstd.NewReader(r)
		if err != nil {
			return nil, nil, err
		}
		return zr, zr.Close, nil
	case XZ:
		zr, err := xz.NewReader(r)
		if err != nil {
			return nil, nil, err
		}
		return zr, nil, nil
	case LZ4:
		return lz4.NewReader(r), nil, nil
	default:
		return r, nil, nil
	}
}
