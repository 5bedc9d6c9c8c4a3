package format

import "strings"

// Score is an identification confidence built from evidence bits. Higher
// values are stronger matches; zero is no match.
type Score uint8

const (
	ScoreFail   Score = 0x00
	ScoreHint   Score = 0x01 // caller supplied a hint
	ScoreExt    Score = 0x02 // file extension matches
	ScoreSize   Score = 0x04 // file size matches a known layout
	ScoreSign   Score = 0x08 // signature bytes match
	ScoreStruct Score = 0x10 // internal structure is consistent
)

// Matched reports whether the score is a positive identification.
func (s Score) Matched() bool {
	return s != ScoreFail
}

// WithExtension ORs in the extension bit. A zero score stays zero.
func (s Score) WithExtension() Score {
	if s == ScoreFail {
		return s
	}
	return s | ScoreExt
}

func (s Score) String() string {
	if s == ScoreFail {
		return "fail"
	}
	var parts []string
	for _, b := range []struct {
		bit  Score
		name string
	}{
		{ScoreStruct, "struct"},
		{ScoreSign, "sign"},
		{ScoreSize, "size"},
		{ScoreExt, "ext"},
		{ScoreHint, "hint"},
	} {
		if s&b.bit != 0 {
			parts = append(parts, b.name)
		}
	}
	if len(parts) == 0 {
		return "unknown"
	}
	return strings.Join(parts, "|")
}

// HasExtension reports whether ext (with or without a leading dot, any case)
// is one of extensions.
func HasExtension(extensions []string, ext string) bool {
	ext = strings.ToLower(strings.TrimPrefix(ext, "."))
	if ext == "" {
		return false
	}
	for _, e := range extensions {
		if strings.ToLower(e) == ext {
			return true
		}
	}
	return false
}
