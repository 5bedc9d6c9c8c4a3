package webui

import (
	"strings"

	"github.com/jgarman/flopview/internal/diskmanager"
	"github.com/jgarman/flopview/internal/imagetree"
)

type selectionResponse struct {
	Format     string `json:"format"`
	FileSystem string `json:"filesystem"`
}

type scoreJSON struct {
	Format      string `json:"format"`
	Description string `json:"description"`
	Score       uint8  `json:"score"`
	Evidence    string `json:"evidence"`
}

type resultCategoryJSON struct {
	Category string      `json:"category"`
	Results  []scoreJSON `json:"results"`
}

type uploadResponse struct {
	ID          string               `json:"id"`
	Name        string               `json:"name"`
	Compression string               `json:"compression"`
	Size        int                  `json:"size"`
	Results     []resultCategoryJSON `json:"results"`
	Default     *selectionResponse   `json:"default,omitempty"`
}

type formatJSON struct {
	Name        string   `json:"name"`
	Description string   `json:"description"`
	Extensions  []string `json:"extensions"`
}

type formatCategoryJSON struct {
	Name    string       `json:"name"`
	Formats []formatJSON `json:"formats"`
}

type fileSystemJSON struct {
	Name        string `json:"name"`
	Description string `json:"description"`
	CanRead     bool   `json:"can_read"`
}

type fileSystemCategoryJSON struct {
	Name        string           `json:"name"`
	FileSystems []fileSystemJSON `json:"filesystems"`
}

type formatsResponse struct {
	Formats     []formatCategoryJSON     `json:"formats"`
	FileSystems []fileSystemCategoryJSON `json:"filesystems"`
	NameFilters []string                 `json:"name_filters"`
}

type mountRequest struct {
	Format     string `json:"format"`
	FileSystem string `json:"filesystem"`
}

type mountResponse struct {
	Format     string   `json:"format"`
	FileSystem string   `json:"filesystem"`
	Geometry   string   `json:"geometry"`
	Volume     string   `json:"volume"`
	Fields     []string `json:"fields"`
}

// addressJSON names a tree node. Omitting slot or row addresses the root.
type addressJSON struct {
	Slot *int `json:"slot,omitempty"`
	Row  *int `json:"row,omitempty"`
}

type expandedRequest struct {
	addressJSON
	Expanded bool `json:"expanded"`
}

type extractRequest struct {
	addressJSON
	// Destination relative to the extraction root
	Dest            string `json:"dest"`
	IncludeRootName *bool  `json:"include_root_name,omitempty"`
}

type entryJSON struct {
	Slot     int               `json:"slot"`
	Row      int               `json:"row"`
	Name     string            `json:"name"`
	Dir      bool              `json:"dir"`
	Resolved bool              `json:"resolved"`
	Expanded bool              `json:"expanded"`
	Meta     map[string]string `json:"meta"`
}

type treeResponse struct {
	Path     []string    `json:"path"`
	Resolved bool        `json:"resolved"`
	Entries  []entryJSON `json:"entries"`
}

type outcomeJSON struct {
	Path   string `json:"path"`
	Dir    bool   `json:"dir"`
	Kind   string `json:"kind"`
	Bytes  int64  `json:"bytes"`
	Digest string `json:"digest,omitempty"`
	Error  string `json:"error,omitempty"`
}

type reportResponse struct {
	OK       bool          `json:"ok"`
	Files    int           `json:"files"`
	Bytes    int64         `json:"bytes"`
	Outcomes []outcomeJSON `json:"outcomes"`
}

func selectionJSON(sel diskmanager.Selection) *selectionResponse {
	resp := &selectionResponse{Format: sel.Format.Name()}
	if sel.FileSystem != nil {
		resp.FileSystem = sel.FileSystem.Name()
	}
	return resp
}

func resultsJSON(results []diskmanager.ResultCategory) []resultCategoryJSON {
	out := make([]resultCategoryJSON, 0, len(results))
	for _, c := range results {
		rc := resultCategoryJSON{Category: c.Name}
		for _, r := range c.Results {
			rc.Results = append(rc.Results, scoreJSON{
				Format:      r.Format.Name(),
				Description: r.Format.Description(),
				Score:       uint8(r.Score),
				Evidence:    r.Score.String(),
			})
		}
		out = append(out, rc)
	}
	return out
}

// listing describes the loaded children of a.
func listing(t *imagetree.Tree, a imagetree.Address) (treeResponse, error) {
	path, err := t.ResolvePath(a)
	if err != nil {
		return treeResponse{}, err
	}
	resp := treeResponse{
		Path:     path,
		Resolved: t.IsResolved(a),
		Entries:  []entryJSON{},
	}
	fields := t.Fields()
	for row := 0; row < t.RowCount(a); row++ {
		child, err := t.Index(row, 0, a)
		if err != nil {
			return treeResponse{}, err
		}
		meta, err := t.Metadata(child)
		if err != nil {
			return treeResponse{}, err
		}
		e := entryJSON{
			Slot:     child.Slot(),
			Row:      child.Row(),
			Name:     t.FileName(child),
			Dir:      t.IsDirectory(child),
			Resolved: t.IsResolved(child),
			Expanded: t.IsExpanded(child),
			Meta:     make(map[string]string, len(fields)),
		}
		for _, f := range fields {
			if v, ok := meta[f]; ok {
				e.Meta[string(f)] = v.String()
			}
		}
		resp.Entries = append(resp.Entries, e)
	}
	return resp, nil
}

func reportJSON(r *imagetree.Report) reportResponse {
	resp := reportResponse{
		OK:       r.OK(),
		Files:    r.Files(),
		Bytes:    r.Bytes(),
		Outcomes: make([]outcomeJSON, 0, len(r.Outcomes)),
	}
	for _, o := range r.Outcomes {
		oj := outcomeJSON{
			Path:   strings.Join(o.Path, "/"),
			Dir:    o.IsDir,
			Kind:   o.Kind.String(),
			Bytes:  o.Bytes,
			Digest: o.Digest,
		}
		if o.Err != nil {
			oj.Error = o.Err.Error()
		}
		resp.Outcomes = append(resp.Outcomes, oj)
	}
	return resp
}
