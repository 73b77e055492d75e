// Package render turns a summarized manifest into a Markdown or HTML notes
// document.
package render

import (
	"bytes"
	_ "embed"
	"fmt"
	"html/template"
	"net/url"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/heimdex/heimdex-notes/internal/manifest"
	"github.com/heimdex/heimdex-notes/internal/services"
)

const (
	FormatHTML     = "html"
	FormatMarkdown = "md"
)

// Options controls frame URL resolution.
type Options struct {
	// FrameBaseURL prefixes relative frame paths, e.g.
	// https://acct.blob.core.windows.net, so frames/{jobId}/{ms}.jpg lands
	// in the frames container.
	FrameBaseURL string
	// FrameLocalDir resolves relative frame paths to file:// URLs when no
	// base URL is set.
	FrameLocalDir string
}

// ContentType returns the MIME type for a render format.
func ContentType(format string) string {
	if format == FormatMarkdown {
		return "text/markdown; charset=utf-8"
	}
	return "text/html; charset=utf-8"
}

// ValidFormat reports whether format is supported.
func ValidFormat(format string) bool {
	return format == FormatHTML || format == FormatMarkdown
}

// Render absolutizes frame references and renders m in format.
func Render(m *manifest.Manifest, format string, opts Options) ([]byte, error) {
	resolved := Absolutize(m, opts)
	switch format {
	case FormatMarkdown:
		return []byte(Markdown(resolved)), nil
	case FormatHTML, "":
		return HTML(resolved)
	default:
		return nil, services.Validation("render", fmt.Sprintf("unsupported format %q", format))
	}
}

// Absolutize returns a copy of m whose segments carry a FrameURL for every
// relative or local frame path. Absolute http, https and file URLs are left
// alone.
func Absolutize(m *manifest.Manifest, opts Options) *manifest.Manifest {
	out := &manifest.Manifest{JobID: m.JobID, Segments: make([]manifest.Segment, len(m.Segments))}
	for i, seg := range m.Segments {
		if u := frameURL(seg.Frame(), opts); u != "" {
			seg.FrameURL = u
		}
		out.Segments[i] = seg
	}
	return out
}

func frameURL(frame string, opts Options) string {
	if frame == "" || hasURLScheme(frame) {
		return ""
	}
	if filepath.IsAbs(frame) {
		return fileURL(frame)
	}
	if opts.FrameBaseURL != "" {
		return strings.TrimRight(opts.FrameBaseURL, "/") + "/" + strings.TrimLeft(filepath.ToSlash(frame), "/")
	}
	if opts.FrameLocalDir != "" {
		abs, err := filepath.Abs(filepath.Join(opts.FrameLocalDir, frame))
		if err != nil {
			return ""
		}
		return fileURL(abs)
	}
	return ""
}

func hasURLScheme(s string) bool {
	lower := strings.ToLower(s)
	return strings.HasPrefix(lower, "http://") || strings.HasPrefix(lower, "https://") || strings.HasPrefix(lower, "file://")
}

func fileURL(p string) string {
	return (&url.URL{Scheme: "file", Path: filepath.ToSlash(p)}).String()
}

type view struct {
	Frame   string
	Meta    string
	Summary string
}

func views(m *manifest.Manifest) []view {
	out := make([]view, 0, len(m.Segments))
	for _, seg := range m.Segments {
		frame := seg.FrameURL
		if frame == "" {
			frame = seg.Frame()
		}
		meta := "t=" + strconv.FormatInt(seg.StartMs, 10) + "ms"
		if seg.Speaker != nil {
			meta += " | speaker=" + *seg.Speaker
		}
		summary := seg.Text
		if seg.Summary != nil && *seg.Summary != "" {
			summary = *seg.Summary
		}
		out = append(out, view{Frame: frame, Meta: meta, Summary: summary})
	}
	return out
}

func title(m *manifest.Manifest) string {
	if m.JobID == "" {
		return "Video Notes"
	}
	return m.JobID
}

// Markdown renders one block per segment: frame image, meta line, summary.
func Markdown(m *manifest.Manifest) string {
	lines := []string{"# " + title(m)}
	for _, v := range views(m) {
		if v.Frame != "" {
			lines = append(lines, "![frame]("+v.Frame+")")
		}
		lines = append(lines, "*"+v.Meta+"*", "", v.Summary, "")
	}
	return strings.Join(lines, "\n")
}

//go:embed notes.html.tmpl
var htmlTemplate string

var notesTemplate = template.Must(template.New("notes").Parse(htmlTemplate))

type htmlSegment struct {
	Frame   template.URL
	Meta    string
	Summary string
}

// HTML renders the notes page with all text escaped.
func HTML(m *manifest.Manifest) ([]byte, error) {
	vs := views(m)
	segs := make([]htmlSegment, 0, len(vs))
	for _, v := range vs {
		seg := htmlSegment{Meta: v.Meta, Summary: v.Summary}
		if v.Frame != "" {
			if hasURLScheme(v.Frame) {
				seg.Frame = template.URL(v.Frame)
			} else {
				seg.Frame = template.URL((&url.URL{Path: v.Frame}).String())
			}
		}
		segs = append(segs, seg)
	}
	var buf bytes.Buffer
	if err := notesTemplate.Execute(&buf, struct {
		Title    string
		Segments []htmlSegment
	}{title(m), segs}); err != nil {
		return nil, fmt.Errorf("render html: %w", err)
	}
	return buf.Bytes(), nil
}
