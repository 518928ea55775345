// Package highlight renders the document with the chunk being read marked.
package highlight

import (
	"fmt"
	"html"
	"strings"
	"sync"

	"github.com/readaloud/readaloud/pkg/chunker"
)

// Mark classifies a segment relative to the playback position.
type Mark string

const (
	MarkNone   Mark = "none"
	MarkRead   Mark = "read"
	MarkActive Mark = "active"
)

// Segment is one chunk of the rendered view.
type Segment struct {
	Index int    `json:"index"`
	Text  string `json:"text"`
	Mark  Mark   `json:"mark"`
}

// View is a rendered document. Active is the index of the active segment
// or -1.
type View struct {
	Segments []Segment `json:"segments"`
	Active   int       `json:"active"`
}

// HTML renders the view as escaped spans. The active segment carries the
// id "active-chunk" so a page can scroll it into view.
func (v View) HTML() string {
	var b strings.Builder
	for i, s := range v.Segments {
		if i > 0 {
			b.WriteByte(' ')
		}
		fmt.Fprintf(&b, `<span class="chunk chunk-%s" data-chunk="%d"`, s.Mark, s.Index)
		if s.Mark == MarkActive {
			b.WriteString(` id="active-chunk"`)
		}
		b.WriteByte('>')
		b.WriteString(html.EscapeString(s.Text))
		b.WriteString("</span>")
	}
	return b.String()
}

// Highlighter keeps the original document so highlighting can always be
// undone exactly.
type Highlighter struct {
	mu       sync.Mutex
	original string
	disabled bool
}

// New saves original as the content to restore.
func New(original string) *Highlighter {
	return &Highlighter{original: original}
}

// Render marks chunks before current as read and current as active. With
// no current chunk, or when disabled, the view is the saved original as a
// single unmarked segment.
func (h *Highlighter) Render(chunks []chunker.Chunk, current int) View {
	h.mu.Lock()
	disabled := h.disabled
	h.mu.Unlock()

	if disabled || current < 0 || len(chunks) == 0 {
		return View{Segments: []Segment{{Index: 0, Text: h.Restore(), Mark: MarkNone}}, Active: -1}
	}

	v := View{Segments: make([]Segment, 0, len(chunks)), Active: -1}
	for _, c := range chunks {
		mark := MarkNone
		switch {
		case c.Index < current:
			mark = MarkRead
		case c.Index == current:
			mark = MarkActive
			v.Active = c.Index
		}
		v.Segments = append(v.Segments, Segment{Index: c.Index, Text: c.Text, Mark: mark})
	}
	return v
}

// Restore returns the original content.
func (h *Highlighter) Restore() string {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.original
}

// Disable stops highlighting and returns the original content.
func (h *Highlighter) Disable() string {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.disabled = true
	return h.original
}

// Enable turns highlighting back on.
func (h *Highlighter) Enable() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.disabled = false
}

// Enabled reports whether Render marks chunks.
func (h *Highlighter) Enabled() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return !h.disabled
}
