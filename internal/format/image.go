package format

import (
	"bytes"
	"fmt"
	"sort"
)

// FillByte is written for sectors missing from a structural image.
const FillByte = 0xf6

// Sector is one addressable sector of a track.
type Sector struct {
	ID   int
	Data []byte
}

// Track holds the sectors recorded on one cylinder/head pair.
type Track struct {
	Cylinder int
	Head     int
	Sectors  []Sector
}

// Sector returns the sector with the given id, or nil.
func (t *Track) Sector(id int) *Sector {
	for i := range t.Sectors {
		if t.Sectors[i].ID == id {
			return &t.Sectors[i]
		}
	}
	return nil
}

type trackKey struct {
	cylinder, head int
}

// Image is the structural, decoded form of a disk: a set of tracks addressed
// by cylinder and head.
type Image struct {
	Cylinders int
	Heads     int

	tracks map[trackKey]*Track
}

// NewImage returns an empty image with the given outer geometry.
func NewImage(cylinders, heads int) *Image {
	return &Image{
		Cylinders: cylinders,
		Heads:     heads,
		tracks:    make(map[trackKey]*Track),
	}
}

// SetTrack stores t, replacing any track at the same position. The image
// grows to include the track's cylinder and head.
func (im *Image) SetTrack(t Track) {
	if t.Cylinder >= im.Cylinders {
		im.Cylinders = t.Cylinder + 1
	}
	if t.Head >= im.Heads {
		im.Heads = t.Head + 1
	}
	copied := t
	im.tracks[trackKey{t.Cylinder, t.Head}] = &copied
}

// Track returns the track at cylinder/head, or nil.
func (im *Image) Track(cylinder, head int) *Track {
	return im.tracks[trackKey{cylinder, head}]
}

// TrackCount returns the number of recorded tracks.
func (im *Image) TrackCount() int {
	return len(im.tracks)
}

// sectorRange returns the lowest and highest sector id and the sector size
// seen anywhere in the image.
func (im *Image) sectorRange() (lo, hi, size int) {
	lo, hi = -1, -1
	for _, t := range im.tracks {
		for _, s := range t.Sectors {
			if lo < 0 || s.ID < lo {
				lo = s.ID
			}
			if s.ID > hi {
				hi = s.ID
			}
			if len(s.Data) > size {
				size = len(s.Data)
			}
		}
	}
	return lo, hi, size
}

// Layout orders tracks when flattening an image.
type Layout int

const (
	// LayoutInterleaved emits c0h0, c0h1, c1h0, c1h1, ...
	LayoutInterleaved Layout = iota
	// LayoutSequential emits every cylinder of head 0, then head 1, ...
	LayoutSequential
)

type layoutConverter struct {
	name   string
	layout Layout
}

// NewLayoutConverter returns a converter that flattens tracks in the given
// order, sectors ascending by id, filling gaps with FillByte.
func NewLayoutConverter(name string, layout Layout) Converter {
	return layoutConverter{name: name, layout: layout}
}

// InterleavedConverter is the layout every PC geometry uses.
var InterleavedConverter = NewLayoutConverter("interleaved", LayoutInterleaved)

func (c layoutConverter) Name() string {
	return c.name
}

func (c layoutConverter) Serialize(img *Image) ([]byte, error) {
	if img == nil || len(img.tracks) == 0 {
		return nil, fmt.Errorf("%s: empty image", c.name)
	}
	lo, hi, size := img.sectorRange()
	if lo < 0 || size == 0 {
		return nil, fmt.Errorf("%s: image has no sectors", c.name)
	}

	var buf bytes.Buffer
	buf.Grow(img.Cylinders * img.Heads * (hi - lo + 1) * size)
	emit := func(cylinder, head int) {
		t := img.Track(cylinder, head)
		for id := lo; id <= hi; id++ {
			var s *Sector
			if t != nil {
				s = t.Sector(id)
			}
			writeSector(&buf, s, size)
		}
	}

	switch c.layout {
	case LayoutSequential:
		for head := 0; head < img.Heads; head++ {
			for cylinder := 0; cylinder < img.Cylinders; cylinder++ {
				emit(cylinder, head)
			}
		}
	default:
		for cylinder := 0; cylinder < img.Cylinders; cylinder++ {
			for head := 0; head < img.Heads; head++ {
				emit(cylinder, head)
			}
		}
	}
	return buf.Bytes(), nil
}

func writeSector(buf *bytes.Buffer, s *Sector, size int) {
	n := 0
	if s != nil {
		n, _ = buf.Write(s.Data)
	}
	for ; n < size; n++ {
		buf.WriteByte(FillByte)
	}
}

// SortSectors orders every track's sectors by id.
func (im *Image) SortSectors() {
	for _, t := range im.tracks {
		sort.SliceStable(t.Sectors, func(i, j int) bool {
			return t.Sectors[i].ID < t.Sectors[j].ID
		})
	}
}
