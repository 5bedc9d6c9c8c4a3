package fat

import (
	"encoding/binary"
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode/utf16"

	"github.com/jgarman/flopview/internal/format"
	"github.com/jgarman/flopview/internal/formats/pc"
)

var (
	ErrNotFAT       = errors.New("not a FAT12/16 volume")
	ErrCorruptChain = errors.New("corrupt cluster chain")
)

const (
	attrReadOnly = 0x01
	attrHidden   = 0x02
	attrSystem   = 0x04
	attrVolumeID = 0x08
	attrDir      = 0x10
	attrArchive  = 0x20
	attrLFN      = 0x0f

	direntSize = 32
)

// Volume reads a FAT12 or FAT16 filesystem from an in-memory image.
type Volume struct {
	data []byte
	bpb  pc.BPB

	fat12       bool
	fatOffset   int64
	rootOffset  int64
	rootSize    int64
	dataOffset  int64
	clusterSize int64
	clusters    uint32

	label string
}

// Open parses the boot sector and root directory of data. The volume keeps
// a reference to data.
func Open(data []byte) (*Volume, error) {
	if len(data) < 512 {
		return nil, fmt.Errorf("%w: image too small", ErrNotFAT)
	}
	bpb, err := pc.ParseBPB(data[:512])
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrNotFAT, err)
	}
	if bpb.IsFAT32() || bpb.RootEntries == 0 {
		return nil, fmt.Errorf("%w: volume is FAT32", ErrNotFAT)
	}

	bps := int64(bpb.BytesPerSector)
	rootSectors := (int64(bpb.RootEntries)*direntSize + bps - 1) / bps
	firstData := int64(bpb.ReservedSectors) + int64(bpb.NumFATs)*int64(bpb.SectorsPerFAT) + rootSectors
	if firstData >= bpb.TotalSectors {
		return nil, fmt.Errorf("%w: no data region", ErrNotFAT)
	}
	if bpb.TotalSectors*bps > int64(len(data)) {
		return nil, fmt.Errorf("%w: %d sectors declared, image holds %d", ErrNotFAT, bpb.TotalSectors, int64(len(data))/bps)
	}

	v := &Volume{
		data:        data,
		bpb:         bpb,
		fatOffset:   int64(bpb.ReservedSectors) * bps,
		rootOffset:  (int64(bpb.ReservedSectors) + int64(bpb.NumFATs)*int64(bpb.SectorsPerFAT)) * bps,
		rootSize:    int64(bpb.RootEntries) * direntSize,
		dataOffset:  firstData * bps,
		clusterSize: int64(bpb.SectorsPerCluster) * bps,
		clusters:    uint32((bpb.TotalSectors - firstData) / int64(bpb.SectorsPerCluster)),
	}
	switch {
	case v.clusters < 4085:
		v.fat12 = true
	case v.clusters >= 65525:
		return nil, fmt.Errorf("%w: %d clusters", ErrNotFAT, v.clusters)
	}

	// the root listing carries the volume label
	v.parseDir(v.data[v.rootOffset : v.rootOffset+v.rootSize])
	return v, nil
}

// FATType returns 12 or 16.
func (v *Volume) FATType() int {
	if v.fat12 {
		return 12
	}
	return 16
}

// next returns the FAT entry for cluster.
func (v *Volume) next(cluster uint32) uint32 {
	if v.fat12 {
		off := v.fatOffset + int64(cluster) + int64(cluster/2)
		val := uint32(binary.LittleEndian.Uint16(v.data[off:]))
		if cluster&1 == 1 {
			return val >> 4
		}
		return val & 0x0fff
	}
	off := v.fatOffset + int64(cluster)*2
	return uint32(binary.LittleEndian.Uint16(v.data[off:]))
}

func (v *Volume) endOfChain(val uint32) bool {
	if v.fat12 {
		return val >= 0x0ff8
	}
	return val >= 0xfff8
}

// chain returns the clusters of the chain starting at start.
func (v *Volume) chain(start uint32) ([]uint32, error) {
	var out []uint32
	for c := start; ; {
		if c < 2 || c >= v.clusters+2 {
			return nil, fmt.Errorf("%w: cluster %d out of range", ErrCorruptChain, c)
		}
		if uint32(len(out)) > v.clusters {
			return nil, fmt.Errorf("%w: loop at cluster %d", ErrCorruptChain, c)
		}
		out = append(out, c)
		n := v.next(c)
		if v.endOfChain(n) {
			return out, nil
		}
		c = n
	}
}

func (v *Volume) cluster(c uint32) []byte {
	off := v.dataOffset + int64(c-2)*v.clusterSize
	return v.data[off : off+v.clusterSize]
}

// readChain concatenates a chain's clusters, truncated to limit bytes when
// limit is not negative.
func (v *Volume) readChain(start uint32, limit int64) ([]byte, error) {
	if limit == 0 {
		return []byte{}, nil
	}
	clusters, err := v.chain(start)
	if err != nil {
		return nil, err
	}
	out := make([]byte, 0, int64(len(clusters))*v.clusterSize)
	for _, c := range clusters {
		out = append(out, v.cluster(c)...)
	}
	if limit >= 0 {
		if int64(len(out)) < limit {
			return nil, fmt.Errorf("%w: chain holds %d of %d bytes", ErrCorruptChain, len(out), limit)
		}
		out = out[:limit]
	}
	return out, nil
}

type dirent struct {
	name      string
	shortName string
	attr      byte
	cluster   uint32
	size      uint32
	created   time.Time
	modified  time.Time
}

func (d *dirent) isDir() bool {
	return d.attr&attrDir != 0
}

// parseDir decodes raw directory records, joining long file names to the
// short entry that follows them. The volume label, if found, is recorded.
func (v *Volume) parseDir(raw []byte) []dirent {
	var (
		entries []dirent
		lfn     []string
		lfnSum  byte
	)
	for off := 0; off+direntSize <= len(raw); off += direntSize {
		b := raw[off : off+direntSize]
		switch {
		case b[0] == 0x00:
			return entries
		case b[0] == 0xe5:
			lfn = nil
			continue
		case b[11] == attrLFN:
			seq := int(b[0] & 0x1f)
			if b[0]&0x40 != 0 {
				lfn = make([]string, seq)
				lfnSum = b[13]
			}
			if seq == 0 || seq > len(lfn) || b[13] != lfnSum {
				lfn = nil
				continue
			}
			lfn[seq-1] = lfnChars(b)
			continue
		case b[11]&attrVolumeID != 0:
			if v.label == "" {
				v.label = strings.TrimRight(string(b[0:11]), " ")
			}
			lfn = nil
			continue
		}

		short := shortName(b)
		d := dirent{
			name:      short,
			shortName: short,
			attr:      b[11],
			cluster:   uint32(binary.LittleEndian.Uint16(b[26:28])),
			size:      binary.LittleEndian.Uint32(b[28:32]),
			created:   fatTime(binary.LittleEndian.Uint16(b[16:18]), binary.LittleEndian.Uint16(b[14:16])),
			modified:  fatTime(binary.LittleEndian.Uint16(b[24:26]), binary.LittleEndian.Uint16(b[22:24])),
		}
		if complete(lfn) && lfnSum == checksum(b[0:11]) {
			if long := strings.Join(lfn, ""); safeName(long) {
				d.name = long
			}
		}
		lfn = nil
		if short == "." || short == ".." {
			continue
		}
		entries = append(entries, d)
	}
	return entries
}

func complete(parts []string) bool {
	for _, p := range parts {
		if p == "" {
			return false
		}
	}
	return len(parts) > 0
}

func shortName(b []byte) string {
	base := []byte(strings.TrimRight(string(b[0:8]), " "))
	if len(base) > 0 && base[0] == 0x05 {
		base[0] = 0xe5
	}
	ext := strings.TrimRight(string(b[8:11]), " ")
	if ext == "" {
		return string(base)
	}
	return string(base) + "." + ext
}

// lfnChars returns the up to 13 UTF-16 characters of a long name record.
func lfnChars(b []byte) string {
	var units []uint16
	for _, r := range [][2]int{{1, 11}, {14, 26}, {28, 32}} {
		for i := r[0]; i < r[1]; i += 2 {
			u := binary.LittleEndian.Uint16(b[i:])
			if u == 0x0000 || u == 0xffff {
				return string(utf16.Decode(units))
			}
			units = append(units, u)
		}
	}
	return string(utf16.Decode(units))
}

// safeName reports whether a long name can stand as a single path element.
func safeName(name string) bool {
	if name == "" || name == "." || name == ".." {
		return false
	}
	return !strings.ContainsAny(name, "/\\\x00")
}

func checksum(short []byte) byte {
	var sum byte
	for _, c := range short {
		sum = (sum >> 1) | (sum << 7)
		sum += c
	}
	return sum
}

func fatTime(date, clock uint16) time.Time {
	if date == 0 {
		return time.Time{}
	}
	return time.Date(
		1980+int(date>>9), time.Month((date>>5)&0x0f), int(date&0x1f),
		int(clock>>11), int((clock>>5)&0x3f), int(clock&0x1f)*2, 0, time.UTC,
	)
}

func attrString(attr byte) string {
	var sb strings.Builder
	for _, a := range []struct {
		bit  byte
		name byte
	}{
		{attrReadOnly, 'R'},
		{attrHidden, 'H'},
		{attrSystem, 'S'},
		{attrArchive, 'A'},
	} {
		if attr&a.bit != 0 {
			sb.WriteByte(a.name)
		}
	}
	return sb.String()
}

// readDir lists the directory at path.
func (v *Volume) readDir(path []string) ([]dirent, error) {
	entries := v.parseDir(v.data[v.rootOffset : v.rootOffset+v.rootSize])
	for i, name := range path {
		d := find(entries, name)
		if d == nil {
			return nil, fmt.Errorf("%s: %w", strings.Join(path[:i+1], "/"), format.ErrNotFound)
		}
		if !d.isDir() {
			return nil, fmt.Errorf("%s: %w", strings.Join(path[:i+1], "/"), format.ErrNotDir)
		}
		raw, err := v.readChain(d.cluster, -1)
		if err != nil {
			return nil, err
		}
		entries = v.parseDir(raw)
	}
	return entries, nil
}

// lookup returns the entry at path, which must not be empty.
func (v *Volume) lookup(path []string) (*dirent, error) {
	entries, err := v.readDir(path[:len(path)-1])
	if err != nil {
		return nil, err
	}
	d := find(entries, path[len(path)-1])
	if d == nil {
		return nil, fmt.Errorf("%s: %w", strings.Join(path, "/"), format.ErrNotFound)
	}
	return d, nil
}

func find(entries []dirent, name string) *dirent {
	for i := range entries {
		if entries[i].name == name || entries[i].shortName == name {
			return &entries[i]
		}
	}
	for i := range entries {
		if strings.EqualFold(entries[i].name, name) || strings.EqualFold(entries[i].shortName, name) {
			return &entries[i]
		}
	}
	return nil
}

// freeBytes counts unallocated clusters.
func (v *Volume) freeBytes() uint64 {
	var free uint64
	for c := uint32(2); c < v.clusters+2; c++ {
		if v.next(c) == 0 {
			free++
		}
	}
	return free * uint64(v.clusterSize)
}
