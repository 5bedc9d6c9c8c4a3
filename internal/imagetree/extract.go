package imagetree

import (
	"encoding/hex"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/zeebo/blake3"
	"go.uber.org/zap"

	"github.com/jgarman/flopview/internal/format"
	"github.com/jgarman/flopview/internal/logging"
	"github.com/jgarman/flopview/internal/metrics"
)

// OutcomeKind classifies the result of extracting one node.
type OutcomeKind int

const (
	OutcomeOK OutcomeKind = iota
	OutcomeReadError
	OutcomeWriteError
	OutcomeDirectoryCreateError
	OutcomeInvalidName
)

func (k OutcomeKind) String() string {
	switch k {
	case OutcomeOK:
		return "ok"
	case OutcomeReadError:
		return "read_error"
	case OutcomeWriteError:
		return "write_error"
	case OutcomeDirectoryCreateError:
		return "directory_create_error"
	case OutcomeInvalidName:
		return "invalid_name"
	default:
		return "unknown"
	}
}

// Outcome is the result of extracting one file or directory.
type Outcome struct {
	Path  []string
	Dest  string
	Kind  OutcomeKind
	IsDir bool
	Bytes int64
	// Digest is the hex BLAKE3 hash of an extracted file's contents.
	Digest string
	Err    error
}

// Report collects the outcomes of one extraction in visiting order.
type Report struct {
	Outcomes []Outcome
}

// OK reports whether every node extracted cleanly.
func (r *Report) OK() bool {
	return len(r.Failures()) == 0
}

// Failures returns the outcomes that did not succeed.
func (r *Report) Failures() []Outcome {
	var failed []Outcome
	for _, o := range r.Outcomes {
		if o.Kind != OutcomeOK {
			failed = append(failed, o)
		}
	}
	return failed
}

// Files returns the number of files written.
func (r *Report) Files() int {
	n := 0
	for _, o := range r.Outcomes {
		if !o.IsDir && o.Kind == OutcomeOK {
			n++
		}
	}
	return n
}

// Bytes returns the number of bytes written.
func (r *Report) Bytes() int64 {
	var n int64
	for _, o := range r.Outcomes {
		n += o.Bytes
	}
	return n
}

func (r *Report) add(o Outcome) {
	metrics.RecordExtract(o.Kind.String(), o.Bytes)
	if o.Err != nil {
		logging.L().Warn("extract failed",
			zap.Strings("path", o.Path),
			zap.String("dest", o.Dest),
			zap.Stringer("outcome", o.Kind),
			zap.Error(o.Err),
		)
	}
	r.Outcomes = append(r.Outcomes, o)
}

// Extract copies the node at a to dest on the host filesystem. With
// includeRootName the node's own name is appended to dest, so dest names
// the directory to extract into; otherwise dest is the target path itself.
// Extracting the root copies every top-level entry into dest.
//
// Failures are recorded per node and do not stop siblings. A directory that
// cannot be created or listed is skipped with its subtree. The returned error
// is non-nil only when nothing could be attempted.
func (t *Tree) Extract(a Address, dest string, includeRootName bool) (*Report, error) {
	return t.ExtractTo(DirSink{}, a, dest, includeRootName)
}

// ExtractTo is Extract writing through sink.
func (t *Tree) ExtractTo(sink Sink, a Address, dest string, includeRootName bool) (*Report, error) {
	if _, err := t.handle(); err != nil {
		return nil, err
	}
	e, err := t.lookup(a)
	if err != nil {
		return nil, err
	}

	x := &extractor{tree: t, sink: sink, report: &Report{}}
	if e == nil {
		x.extractRoot(dest)
		return x.report, nil
	}

	x.path = t.pathOf(a.slot, a.row)
	if includeRootName {
		if err := checkName(e.name); err != nil {
			x.report.add(Outcome{Path: x.path, Dest: dest, IsDir: e.kind == format.KindDir, Kind: OutcomeInvalidName, Err: err})
			return x.report, nil
		}
		dest = filepath.Join(dest, e.name)
	}
	x.extract(a.slot, a.row, dest)
	return x.report, nil
}

// extractor carries the image path stack through the recursion.
type extractor struct {
	tree   *Tree
	sink   Sink
	report *Report
	path   []string
}

func (x *extractor) extractRoot(dest string) {
	if err := x.sink.Mkdir(dest); err != nil {
		x.report.add(Outcome{Path: []string{}, Dest: dest, IsDir: true, Kind: OutcomeDirectoryCreateError, Err: err})
		return
	}
	x.report.add(Outcome{Path: []string{}, Dest: dest, IsDir: true, Kind: OutcomeOK})
	x.children(0, dest)
}

func (x *extractor) extract(slot, row int, dest string) {
	e := x.tree.dirs[slot].entries[row]
	path := append([]string(nil), x.path...)

	if e.kind != format.KindDir {
		x.extractFile(path, dest)
		return
	}

	if err := x.sink.Mkdir(dest); err != nil {
		x.report.add(Outcome{Path: path, Dest: dest, IsDir: true, Kind: OutcomeDirectoryCreateError, Err: err})
		return
	}
	if err := x.tree.RequestExpand(At(slot, row, 0)); err != nil {
		x.report.add(Outcome{Path: path, Dest: dest, IsDir: true, Kind: OutcomeReadError, Err: err})
		return
	}
	x.report.add(Outcome{Path: path, Dest: dest, IsDir: true, Kind: OutcomeOK})
	x.children(x.tree.dirs[slot].entries[row].child, dest)
}

func (x *extractor) children(slot int, dest string) {
	for row := range x.tree.dirs[slot].entries {
		e := x.tree.dirs[slot].entries[row]
		x.path = append(x.path, e.name)
		if err := checkName(e.name); err != nil {
			x.report.add(Outcome{
				Path:  append([]string(nil), x.path...),
				Dest:  dest,
				IsDir: e.kind == format.KindDir,
				Kind:  OutcomeInvalidName,
				Err:   err,
			})
		} else {
			x.extract(slot, row, filepath.Join(dest, e.name))
		}
		x.path = x.path[:len(x.path)-1]
	}
}

// checkName rejects names that would not land directly inside their parent
// on the host.
func checkName(name string) error {
	if name == "" || name == "." || name == ".." ||
		strings.ContainsAny(name, "/\\\x00") || filepath.Base(name) != name {
		return fmt.Errorf("%q: %w", name, ErrInvalidName)
	}
	return nil
}

func (x *extractor) extractFile(path []string, dest string) {
	h, err := x.tree.handle()
	if err != nil {
		x.report.add(Outcome{Path: path, Dest: dest, Kind: OutcomeReadError, Err: err})
		return
	}
	data, err := h.ReadFile(path)
	if err != nil {
		x.report.add(Outcome{Path: path, Dest: dest, Kind: OutcomeReadError, Err: err})
		return
	}
	if err := x.sink.WriteFile(dest, data); err != nil {
		x.report.add(Outcome{Path: path, Dest: dest, Kind: OutcomeWriteError, Err: err})
		return
	}
	x.report.add(Outcome{
		Path:   path,
		Dest:   dest,
		Kind:   OutcomeOK,
		Bytes:  int64(len(data)),
		Digest: Digest(data),
	})
}

// Digest returns the hex BLAKE3 hash used in extraction reports.
func Digest(data []byte) string {
	sum := blake3.Sum256(data)
	return hex.EncodeToString(sum[:])
}

func (o Outcome) String() string {
	if o.Err != nil {
		return fmt.Sprintf("%s -> %s: %s: %v", filepath.Join(o.Path...), o.Dest, o.Kind, o.Err)
	}
	return fmt.Sprintf("%s -> %s: %s", filepath.Join(o.Path...), o.Dest, o.Kind)
}
