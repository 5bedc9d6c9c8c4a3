package format

import (
	"strconv"
	"time"
)

// MetaName identifies a metadata field.
type MetaName string

const (
	MetaNameName     MetaName = "name"
	MetaShortName    MetaName = "short_name"
	MetaLength       MetaName = "length"
	MetaSizeInBlocks MetaName = "size_in_blocks"
	MetaCreationDate MetaName = "creation_date"
	MetaModifiedDate MetaName = "modification_date"
	MetaAttributes   MetaName = "attributes"
	MetaLocked       MetaName = "locked"
	MetaFileType     MetaName = "file_type"
	MetaVolumeSerial MetaName = "volume_serial"
	MetaOEMName      MetaName = "oem_name"
	MetaFreeBytes    MetaName = "free_bytes"
)

// MetaType is the kind of value a field carries.
type MetaType int

const (
	MetaString MetaType = iota
	MetaNumber
	MetaDate
	MetaFlag
)

// Value is a typed metadata value.
type Value struct {
	Type MetaType
	str  string
	num  uint64
	date time.Time
	flag bool
}

func StringValue(s string) Value  { return Value{Type: MetaString, str: s} }
func NumberValue(n uint64) Value  { return Value{Type: MetaNumber, num: n} }
func DateValue(t time.Time) Value { return Value{Type: MetaDate, date: t} }
func FlagValue(b bool) Value      { return Value{Type: MetaFlag, flag: b} }

func (v Value) AsNumber() uint64  { return v.num }
func (v Value) AsDate() time.Time { return v.date }
func (v Value) AsFlag() bool      { return v.flag }

// String renders the value for display.
func (v Value) String() string {
	switch v.Type {
	case MetaNumber:
		return strconv.FormatUint(v.num, 10)
	case MetaDate:
		if v.date.IsZero() {
			return ""
		}
		return v.date.Format("2006-01-02 15:04:05")
	case MetaFlag:
		if v.flag {
			return "t"
		}
		return "f"
	default:
		return v.str
	}
}

// Metadata maps field names to values.
type Metadata map[MetaName]Value

// Has reports whether name is present.
func (m Metadata) Has(name MetaName) bool {
	_, ok := m[name]
	return ok
}

// GetString returns the display form of name, or "" when absent.
func (m Metadata) GetString(name MetaName) string {
	if v, ok := m[name]; ok {
		return v.String()
	}
	return ""
}
