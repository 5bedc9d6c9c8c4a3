package pc

import (
	"bytes"
	"errors"
	"fmt"
	"io"

	"github.com/jgarman/flopview/internal/format"
)

var ErrBadIMD = errors.New("malformed ImageDisk image")

const (
	imdSignature  = "IMD "
	imdCommentEnd = 0x1a

	imdCylinderMap = 0x80
	imdHeadMap     = 0x40
)

// IMD is Dave Dunfield's ImageDisk format: an ASCII header and comment
// followed by self-describing track records.
type IMD struct{}

func (IMD) Name() string         { return "imd" }
func (IMD) Description() string  { return "IMD ImageDisk image" }
func (IMD) Extensions() []string { return []string{"imd"} }

func (f IMD) Identify(src format.Source) format.Score {
	head := make([]byte, len(imdSignature))
	if _, err := src.ReadAt(head, 0); err != nil || string(head) != imdSignature {
		return format.ScoreFail
	}
	if _, err := f.Decode(src); err != nil {
		return format.ScoreSign
	}
	return format.ScoreSign | format.ScoreStruct
}

func (IMD) Decode(src format.Source) (*format.Image, error) {
	raw, err := io.ReadAll(io.NewSectionReader(src, 0, src.Size()))
	if err != nil {
		return nil, err
	}
	if !bytes.HasPrefix(raw, []byte(imdSignature)) {
		return nil, fmt.Errorf("%w: missing signature", ErrBadIMD)
	}
	end := bytes.IndexByte(raw, imdCommentEnd)
	if end < 0 {
		return nil, fmt.Errorf("%w: unterminated comment", ErrBadIMD)
	}

	r := &imdReader{data: raw, pos: end + 1}
	img := format.NewImage(0, 0)
	for !r.done() {
		t, err := r.track()
		if err != nil {
			return nil, err
		}
		img.SetTrack(t)
	}
	if img.TrackCount() == 0 {
		return nil, fmt.Errorf("%w: no tracks", ErrBadIMD)
	}
	img.SortSectors()
	return img, nil
}

type imdReader struct {
	data []byte
	pos  int
}

func (r *imdReader) done() bool {
	return r.pos >= len(r.data)
}

func (r *imdReader) next(n int) ([]byte, error) {
	if n < 0 || r.pos+n > len(r.data) {
		return nil, fmt.Errorf("%w: truncated at offset %d", ErrBadIMD, r.pos)
	}
	b := r.data[r.pos : r.pos+n]
	r.pos += n
	return b, nil
}

func (r *imdReader) track() (format.Track, error) {
	hdr, err := r.next(5)
	if err != nil {
		return format.Track{}, err
	}
	mode, cylinder, head, count, sizeCode := hdr[0], int(hdr[1]), hdr[2], int(hdr[3]), hdr[4]
	if mode > 5 {
		return format.Track{}, fmt.Errorf("%w: mode %d", ErrBadIMD, mode)
	}
	if sizeCode > 6 {
		return format.Track{}, fmt.Errorf("%w: sector size code %d", ErrBadIMD, sizeCode)
	}
	sectorSize := 128 << sizeCode

	ids, err := r.next(count)
	if err != nil {
		return format.Track{}, err
	}
	if head&imdCylinderMap != 0 {
		if _, err := r.next(count); err != nil {
			return format.Track{}, err
		}
	}
	if head&imdHeadMap != 0 {
		if _, err := r.next(count); err != nil {
			return format.Track{}, err
		}
	}

	t := format.Track{Cylinder: cylinder, Head: int(head & 0x0f)}
	for i := 0; i < count; i++ {
		kind, err := r.next(1)
		if err != nil {
			return format.Track{}, err
		}
		switch {
		case kind[0] == 0:
			// data unavailable; serialized as filler
			continue
		case kind[0] > 8:
			return format.Track{}, fmt.Errorf("%w: sector record type %d", ErrBadIMD, kind[0])
		case kind[0]%2 == 1:
			data, err := r.next(sectorSize)
			if err != nil {
				return format.Track{}, err
			}
			t.Sectors = append(t.Sectors, format.Sector{ID: int(ids[i]), Data: append([]byte(nil), data...)})
		default:
			fill, err := r.next(1)
			if err != nil {
				return format.Track{}, err
			}
			t.Sectors = append(t.Sectors, format.Sector{ID: int(ids[i]), Data: bytes.Repeat(fill, sectorSize)})
		}
	}
	return t, nil
}
