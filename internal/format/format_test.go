package format

import (
	"bytes"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sectorData(b byte, n int) []byte {
	return bytes.Repeat([]byte{b}, n)
}

// twoSided builds a 2 cylinder, 2 head image with 2 sectors per track, each
// sector filled with a byte encoding its position.
func twoSided() *Image {
	img := NewImage(2, 2)
	for c := 0; c < 2; c++ {
		for h := 0; h < 2; h++ {
			img.SetTrack(Track{
				Cylinder: c,
				Head:     h,
				Sectors: []Sector{
					{ID: 2, Data: sectorData(byte(c<<4|h<<2|2), 4)},
					{ID: 1, Data: sectorData(byte(c<<4|h<<2|1), 4)},
				},
			})
		}
	}
	return img
}

func TestInterleavedConverter(t *testing.T) {
	out, err := InterleavedConverter.Serialize(twoSided())
	require.NoError(t, err)
	require.Len(t, out, 2*2*2*4)

	// c0h0 s1, c0h0 s2, c0h1 s1, ...
	assert.Equal(t, byte(0x01), out[0])
	assert.Equal(t, byte(0x02), out[4])
	assert.Equal(t, byte(0x05), out[8])
	assert.Equal(t, byte(0x11), out[16])
}

func TestSequentialLayout(t *testing.T) {
	out, err := NewLayoutConverter("sequential", LayoutSequential).Serialize(twoSided())
	require.NoError(t, err)
	require.Len(t, out, 32)

	// all of head 0 first: c0h0, c1h0, then c0h1
	assert.Equal(t, byte(0x01), out[0])
	assert.Equal(t, byte(0x11), out[8])
	assert.Equal(t, byte(0x05), out[16])
}

func TestSerializeFillsMissingSectors(t *testing.T) {
	img := NewImage(1, 1)
	img.SetTrack(Track{Sectors: []Sector{
		{ID: 1, Data: sectorData(0xaa, 2)},
		{ID: 3, Data: sectorData(0xbb, 2)},
	}})
	out, err := InterleavedConverter.Serialize(img)
	require.NoError(t, err)
	assert.Equal(t, []byte{0xaa, 0xaa, FillByte, FillByte, 0xbb, 0xbb}, out)
}

func TestSerializeEmptyImage(t *testing.T) {
	_, err := InterleavedConverter.Serialize(NewImage(0, 0))
	assert.Error(t, err)
}

func TestSetTrackGrowsGeometry(t *testing.T) {
	img := NewImage(0, 0)
	img.SetTrack(Track{Cylinder: 39, Head: 1})
	assert.Equal(t, 40, img.Cylinders)
	assert.Equal(t, 2, img.Heads)
	assert.NotNil(t, img.Track(39, 1))
	assert.Nil(t, img.Track(0, 0))
}

func TestScoreWithExtension(t *testing.T) {
	assert.Equal(t, ScoreFail, ScoreFail.WithExtension())
	assert.Equal(t, Score(10), (ScoreSign | ScoreExt).WithExtension())
	assert.Equal(t, ScoreSize|ScoreExt, ScoreSize.WithExtension())
	assert.Equal(t, "sign|size|ext", (ScoreSign | ScoreSize | ScoreExt).String())
	assert.Equal(t, "fail", ScoreFail.String())
}

func TestHasExtension(t *testing.T) {
	exts := []string{"img", "IMA"}
	assert.True(t, HasExtension(exts, "img"))
	assert.True(t, HasExtension(exts, ".IMG"))
	assert.True(t, HasExtension(exts, "ima"))
	assert.False(t, HasExtension(exts, "dsk"))
	assert.False(t, HasExtension(exts, ""))
}

func TestValueString(t *testing.T) {
	assert.Equal(t, "42", NumberValue(42).String())
	assert.Equal(t, "t", FlagValue(true).String())
	assert.Equal(t, "hello", StringValue("hello").String())
	assert.Equal(t, "", DateValue(time.Time{}).String())
	assert.Equal(t, "1994-03-01 12:30:00", DateValue(time.Date(1994, 3, 1, 12, 30, 0, 0, time.UTC)).String())

	m := Metadata{MetaLength: NumberValue(7)}
	assert.True(t, m.Has(MetaLength))
	assert.Equal(t, "7", m.GetString(MetaLength))
	assert.Equal(t, "", m.GetString(MetaNameName))
}
