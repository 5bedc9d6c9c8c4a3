// Package pc implements PC floppy image formats: raw sector dumps and
// ImageDisk (.imd) archives.
package pc

import (
	"encoding/binary"
	"errors"
	"fmt"
)

// Geometry is a standard PC floppy layout.
type Geometry struct {
	Name       string
	Cylinders  int
	Heads      int
	Sectors    int
	SectorSize int
}

// Size returns the flat image size in bytes.
func (g Geometry) Size() int64 {
	return int64(g.Cylinders) * int64(g.Heads) * int64(g.Sectors) * int64(g.SectorSize)
}

// Geometries lists the PC floppy layouts, smallest first.
var Geometries = []Geometry{
	{Name: "160K", Cylinders: 40, Heads: 1, Sectors: 8, SectorSize: 512},
	{Name: "180K", Cylinders: 40, Heads: 1, Sectors: 9, SectorSize: 512},
	{Name: "320K", Cylinders: 40, Heads: 2, Sectors: 8, SectorSize: 512},
	{Name: "360K", Cylinders: 40, Heads: 2, Sectors: 9, SectorSize: 512},
	{Name: "720K", Cylinders: 80, Heads: 2, Sectors: 9, SectorSize: 512},
	{Name: "1.2M", Cylinders: 80, Heads: 2, Sectors: 15, SectorSize: 512},
	{Name: "1.44M", Cylinders: 80, Heads: 2, Sectors: 18, SectorSize: 512},
	{Name: "2.88M", Cylinders: 80, Heads: 2, Sectors: 36, SectorSize: 512},
}

// GeometryForSize returns the floppy layout of exactly size bytes.
func GeometryForSize(size int64) (Geometry, bool) {
	for _, g := range Geometries {
		if g.Size() == size {
			return g, true
		}
	}
	return Geometry{}, false
}

var ErrNoBootSector = errors.New("no valid BIOS parameter block")

// BPB is the BIOS parameter block of a DOS boot sector.
type BPB struct {
	OEMName           string
	BytesPerSector    int
	SectorsPerCluster int
	ReservedSectors   int
	NumFATs           int
	RootEntries       int
	TotalSectors      int64
	Media             byte
	SectorsPerFAT     int
	SectorsPerTrack   int
	Heads             int
	HiddenSectors     int64
	// FAT32 only
	RootCluster uint32
	// Extended boot record, when present.
	Serial uint32
	Label  string
}

// ParseBPB decodes the parameter block of a boot sector.
func ParseBPB(sector []byte) (BPB, error) {
	if len(sector) < 512 {
		return BPB{}, fmt.Errorf("%w: short sector", ErrNoBootSector)
	}
	b := BPB{
		OEMName:           trimName(sector[3:11]),
		BytesPerSector:    int(binary.LittleEndian.Uint16(sector[11:13])),
		SectorsPerCluster: int(sector[13]),
		ReservedSectors:   int(binary.LittleEndian.Uint16(sector[14:16])),
		NumFATs:           int(sector[16]),
		RootEntries:       int(binary.LittleEndian.Uint16(sector[17:19])),
		TotalSectors:      int64(binary.LittleEndian.Uint16(sector[19:21])),
		Media:             sector[21],
		SectorsPerFAT:     int(binary.LittleEndian.Uint16(sector[22:24])),
		SectorsPerTrack:   int(binary.LittleEndian.Uint16(sector[24:26])),
		Heads:             int(binary.LittleEndian.Uint16(sector[26:28])),
		HiddenSectors:     int64(binary.LittleEndian.Uint32(sector[28:32])),
	}
	if b.TotalSectors == 0 {
		b.TotalSectors = int64(binary.LittleEndian.Uint32(sector[32:36]))
	}

	switch b.BytesPerSector {
	case 128, 256, 512, 1024, 2048, 4096:
	default:
		return BPB{}, fmt.Errorf("%w: %d bytes per sector", ErrNoBootSector, b.BytesPerSector)
	}
	if b.SectorsPerCluster == 0 || b.SectorsPerCluster&(b.SectorsPerCluster-1) != 0 {
		return BPB{}, fmt.Errorf("%w: %d sectors per cluster", ErrNoBootSector, b.SectorsPerCluster)
	}
	if b.NumFATs == 0 || b.ReservedSectors == 0 || b.TotalSectors == 0 {
		return BPB{}, fmt.Errorf("%w: empty layout", ErrNoBootSector)
	}
	if b.Media != 0xf0 && b.Media < 0xf8 {
		return BPB{}, fmt.Errorf("%w: media byte %#x", ErrNoBootSector, b.Media)
	}

	// extended boot record: FAT12/16 at 0x24, FAT32 at 0x40
	ebr := 0x24
	if b.SectorsPerFAT == 0 {
		b.SectorsPerFAT = int(binary.LittleEndian.Uint32(sector[36:40]))
		b.RootCluster = binary.LittleEndian.Uint32(sector[44:48])
		ebr = 0x40
	}
	if sector[ebr+2] == 0x29 {
		b.Serial = binary.LittleEndian.Uint32(sector[ebr+3 : ebr+7])
		b.Label = trimName(sector[ebr+7 : ebr+18])
	}
	return b, nil
}

// IsFAT32 reports whether the block describes a FAT32 volume.
func (b BPB) IsFAT32() bool {
	return b.RootEntries == 0 && b.RootCluster != 0
}

// HasBootSignature reports whether sector ends in 0x55 0xAA.
func HasBootSignature(sector []byte) bool {
	return len(sector) >= 512 && sector[510] == 0x55 && sector[511] == 0xaa
}

func trimName(b []byte) string {
	end := len(b)
	for end > 0 && (b[end-1] == ' ' || b[end-1] == 0) {
		end--
	}
	return string(b[:end])
}
