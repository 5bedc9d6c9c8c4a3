package pc

import "github.com/jgarman/flopview/internal/format"

// Unformatted stands for a disk with no filesystem. It lists the PC
// geometries so a blank disk can be recognized, but cannot be read.
type Unformatted struct{}

func (Unformatted) Name() string                       { return "unformatted" }
func (Unformatted) Description() string                { return "Unformatted floppy" }
func (Unformatted) CanRead() bool                      { return false }
func (Unformatted) FileFields() []format.MetaName      { return nil }
func (Unformatted) DirectoryFields() []format.MetaName { return nil }

func (Unformatted) Geometries() []format.Geometry {
	return FloppyGeometries(format.InterleavedConverter)
}

func (Unformatted) Mount([]byte) (format.Handle, error) {
	return nil, format.ErrUnsupported
}

// FloppyGeometries returns every PC floppy layout flattened by conv.
func FloppyGeometries(conv format.Converter) []format.Geometry {
	out := make([]format.Geometry, 0, len(Geometries))
	for _, g := range Geometries {
		out = append(out, format.Geometry{
			Name:        g.Name,
			Description: g.Name + " PC floppy",
			Converter:   conv,
			Size:        g.Size(),
		})
	}
	return out
}
