package pc

import (
	"fmt"

	"github.com/jgarman/flopview/internal/format"
)

// Raw is a flat dump of every sector, cylinder by cylinder and head by head.
type Raw struct{}

func (Raw) Name() string         { return "pc_raw" }
func (Raw) Description() string  { return "PC raw sector image" }
func (Raw) Extensions() []string { return []string{"img", "ima", "dsk", "vfd", "flp"} }

// Identify recognizes standard floppy sizes and, for larger media, a
// consistent boot sector.
func (Raw) Identify(src format.Source) format.Score {
	size := src.Size()
	boot := make([]byte, 512)
	if size < 512 {
		return format.ScoreFail
	}
	if _, err := src.ReadAt(boot, 0); err != nil {
		return format.ScoreFail
	}

	score := format.ScoreFail
	geometry, known := GeometryForSize(size)
	if known {
		score |= format.ScoreSize
	}
	if HasBootSignature(boot) {
		if !known && size%512 != 0 {
			return format.ScoreFail
		}
		score |= format.ScoreSign
	}
	if bpb, err := ParseBPB(boot); err == nil && bpb.TotalSectors*int64(bpb.BytesPerSector) <= size {
		if known {
			if bpb.SectorsPerTrack == geometry.Sectors && bpb.Heads == geometry.Heads {
				score |= format.ScoreStruct
			}
		} else if size%int64(bpb.BytesPerSector) == 0 {
			score |= format.ScoreStruct
		}
	}
	if !known && score&format.ScoreStruct == 0 {
		return format.ScoreFail
	}
	return score
}

// trackLayouts are tried, in order, for media with no standard geometry.
var trackLayouts = []int{63, 36, 32, 18, 16, 9, 8, 1}

// Decode splits the source into tracks of its floppy geometry, or of the
// geometry its boot sector declares.
func (Raw) Decode(src format.Source) (*format.Image, error) {
	size := src.Size()
	g, ok := GeometryForSize(size)
	if !ok {
		var err error
		if g, err = guessGeometry(src); err != nil {
			return nil, err
		}
	}

	img := format.NewImage(g.Cylinders, g.Heads)
	trackBytes := int64(g.Sectors * g.SectorSize)
	buf := make([]byte, trackBytes)
	for c := 0; c < g.Cylinders; c++ {
		for h := 0; h < g.Heads; h++ {
			off := (int64(c)*int64(g.Heads) + int64(h)) * trackBytes
			if _, err := src.ReadAt(buf, off); err != nil {
				return nil, fmt.Errorf("failed to read track %d/%d: %w", c, h, err)
			}
			t := format.Track{Cylinder: c, Head: h, Sectors: make([]format.Sector, g.Sectors)}
			for s := 0; s < g.Sectors; s++ {
				data := make([]byte, g.SectorSize)
				copy(data, buf[s*g.SectorSize:])
				t.Sectors[s] = format.Sector{ID: s + 1, Data: data}
			}
			img.SetTrack(t)
		}
	}
	return img, nil
}

func guessGeometry(src format.Source) (Geometry, error) {
	size := src.Size()
	boot := make([]byte, 512)
	if _, err := src.ReadAt(boot, 0); err != nil {
		return Geometry{}, err
	}
	sectorSize := 512
	heads := 1
	if bpb, err := ParseBPB(boot); err == nil {
		sectorSize = bpb.BytesPerSector
		if bpb.Heads > 0 && bpb.SectorsPerTrack > 0 {
			track := int64(bpb.Heads * bpb.SectorsPerTrack * sectorSize)
			if size%track == 0 {
				return Geometry{
					Name:       "bpb",
					Cylinders:  int(size / track),
					Heads:      bpb.Heads,
					Sectors:    bpb.SectorsPerTrack,
					SectorSize: sectorSize,
				}, nil
			}
		}
	}
	if size == 0 || size%int64(sectorSize) != 0 {
		return Geometry{}, fmt.Errorf("size %d is not a whole number of %d byte sectors", size, sectorSize)
	}
	total := size / int64(sectorSize)
	for _, spt := range trackLayouts {
		if total%int64(spt) == 0 {
			return Geometry{
				Name:       "linear",
				Cylinders:  int(total / int64(spt)),
				Heads:      heads,
				Sectors:    spt,
				SectorSize: sectorSize,
			}, nil
		}
	}
	return Geometry{}, fmt.Errorf("no track layout fits %d sectors", total)
}
