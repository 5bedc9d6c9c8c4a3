// Package listing renders catalogs, identify results, trees and extract
// reports for the terminal.
package listing

import (
	"fmt"
	"io"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/dustin/go-humanize"

	"github.com/jgarman/flopview/internal/catalog"
	"github.com/jgarman/flopview/internal/config"
	"github.com/jgarman/flopview/internal/diskmanager"
	"github.com/jgarman/flopview/internal/format"
	"github.com/jgarman/flopview/internal/imagetree"
)

const dateLayout = "2006-01-02 15:04"

// Printer writes styled listings to w. Styling degrades to plain text when w
// is not a terminal.
type Printer struct {
	w io.Writer

	heading lipgloss.Style
	name    lipgloss.Style
	dir     lipgloss.Style
	dim     lipgloss.Style
	bad     lipgloss.Style
	size    lipgloss.Style
}

func New(w io.Writer) *Printer {
	r := lipgloss.NewRenderer(w)
	return &Printer{
		w:       w,
		heading: r.NewStyle().Bold(true).Underline(true),
		name:    r.NewStyle().Bold(true),
		dir:     r.NewStyle().Foreground(lipgloss.Color("12")).Bold(true),
		dim:     r.NewStyle().Foreground(lipgloss.Color("8")),
		bad:     r.NewStyle().Foreground(lipgloss.Color("9")),
		size:    r.NewStyle().Width(10).Align(lipgloss.Right),
	}
}

// Formats lists every category with its formats and filesystems.
func (p *Printer) Formats(cat *catalog.Catalog) {
	for _, c := range cat.Formats() {
		fmt.Fprintln(p.w, p.heading.Render(c.Name+" formats"))
		for _, f := range c.Items {
			exts := ""
			if len(f.Extensions()) > 0 {
				exts = p.dim.Render(" (." + strings.Join(f.Extensions(), " .") + ")")
			}
			fmt.Fprintf(p.w, "  %-14s %s%s\n", p.name.Render(f.Name()), f.Description(), exts)
		}
	}
	for _, c := range cat.FileSystems() {
		fmt.Fprintln(p.w, p.heading.Render(c.Name+" filesystems"))
		for _, fs := range c.Items {
			note := ""
			if !fs.CanRead() {
				note = p.dim.Render(" (not readable)")
			}
			fmt.Fprintf(p.w, "  %-14s %s%s\n", p.name.Render(fs.Name()), fs.Description(), note)
		}
	}
}

// Identify prints the scored candidates, best category first, and the
// default selection.
func (p *Printer) Identify(results []diskmanager.ResultCategory, sel diskmanager.Selection, ok bool) {
	if len(results) == 0 {
		fmt.Fprintln(p.w, p.bad.Render("no format recognized this image"))
		return
	}
	for _, c := range results {
		fmt.Fprintln(p.w, p.heading.Render(c.Name))
		for _, r := range c.Results {
			fmt.Fprintf(p.w, "  %-14s %-28s %s\n", p.name.Render(r.Format.Name()), r.Format.Description(), p.dim.Render(r.Score.String()))
		}
	}
	if !ok {
		return
	}
	fs := "none"
	if sel.FileSystem != nil {
		fs = sel.FileSystem.Name()
	}
	fmt.Fprintf(p.w, "default: %s / %s\n", sel.Format.Name(), fs)
}

// Tree prints the children of a, descending depth levels. A negative depth
// prints the whole subtree. Directories are expanded as needed; ones that
// fail to load are reported inline.
func (p *Printer) Tree(t *imagetree.Tree, a imagetree.Address, depth int) {
	p.tree(t, a, depth, 0)
}

func (p *Printer) tree(t *imagetree.Tree, a imagetree.Address, depth, level int) {
	indent := strings.Repeat("  ", level)
	if err := t.RequestExpand(a); err != nil {
		fmt.Fprintf(p.w, "%s%s\n", indent, p.bad.Render("! "+err.Error()))
		return
	}
	for row := 0; row < t.RowCount(a); row++ {
		child, err := t.Index(row, 0, a)
		if err != nil {
			continue
		}
		meta, _ := t.Metadata(child)
		if t.IsDirectory(child) {
			fmt.Fprintf(p.w, "%s %s  %s%s\n", p.size.Render(""), p.date(meta), indent, p.dir.Render(t.FileName(child)+"/"))
			if depth < 0 || level+1 < depth {
				p.tree(t, child, depth, level+1)
			}
			continue
		}
		size := ""
		if meta.Has(format.MetaLength) {
			size = humanize.IBytes(meta[format.MetaLength].AsNumber())
		}
		fmt.Fprintf(p.w, "%s %s  %s%s\n", p.size.Render(size), p.date(meta), indent, t.FileName(child))
	}
}

func (p *Printer) date(meta format.Metadata) string {
	if meta.Has(format.MetaModifiedDate) {
		if d := meta[format.MetaModifiedDate].AsDate(); !d.IsZero() {
			return d.Format(dateLayout)
		}
	}
	return strings.Repeat(" ", len(dateLayout))
}

// Report prints failures and a summary line.
func (p *Printer) Report(r *imagetree.Report) {
	for _, o := range r.Failures() {
		fmt.Fprintln(p.w, p.bad.Render(o.String()))
	}
	summary := fmt.Sprintf("%d files, %s extracted", r.Files(), humanize.IBytes(uint64(r.Bytes())))
	if n := len(r.Failures()); n > 0 {
		summary += p.bad.Render(fmt.Sprintf(", %d failed", n))
	}
	fmt.Fprintln(p.w, summary)
}

// Recent prints the recent file list, newest first.
func (p *Printer) Recent(list []config.Recent) {
	if len(list) == 0 {
		fmt.Fprintln(p.w, p.dim.Render("no recent files"))
		return
	}
	for i, r := range list {
		fmt.Fprintf(p.w, "%2d. %s %s\n", i+1, r.Path, p.dim.Render("["+r.Format+", "+r.FileSystem+"]"))
	}
}
