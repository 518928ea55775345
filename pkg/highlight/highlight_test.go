package highlight

import (
	"strings"
	"testing"

	"github.com/readaloud/readaloud/pkg/chunker"
)

func TestRenderMarks(t *testing.T) {
	original := "First bit.\n\nSecond <b>bit</b>.   Third bit."
	chunks := chunker.Split(original, 12)
	h := New(original)

	tests := []struct {
		current int
		want    []Mark
		active  int
	}{
		{0, []Mark{MarkActive, MarkNone, MarkNone}, 0},
		{1, []Mark{MarkRead, MarkActive, MarkNone}, 1},
		{2, []Mark{MarkRead, MarkRead, MarkActive}, 2},
	}
	for _, tt := range tests {
		v := h.Render(chunks, tt.current)
		if v.Active != tt.active {
			t.Errorf("current %d: active = %d", tt.current, v.Active)
		}
		if len(v.Segments) != len(tt.want) {
			t.Fatalf("current %d: %d segments", tt.current, len(v.Segments))
		}
		for i, s := range v.Segments {
			if s.Mark != tt.want[i] {
				t.Errorf("current %d: segment %d mark = %s, want %s", tt.current, i, s.Mark, tt.want[i])
			}
		}
	}
}

func TestRenderAfterStopShowsExactOriginal(t *testing.T) {
	original := "Title line.\n\nFirst paragraph here.\n\nSecond paragraph."
	chunks := chunker.Split(original, 20)
	h := New(original)

	if v := h.Render(chunks, 1); len(v.Segments) != 3 || v.Active != 1 {
		t.Fatalf("playing view = %+v", v)
	}

	v := h.Render(chunks, -1)
	if len(v.Segments) != 1 || v.Active != -1 {
		t.Fatalf("stopped view = %+v", v)
	}
	if v.Segments[0].Text != original || v.Segments[0].Mark != MarkNone {
		t.Errorf("stopped segment = %+v, want the original text unmarked", v.Segments[0])
	}
	if !strings.Contains(v.HTML(), "Title line.\n\nFirst paragraph here.") {
		t.Errorf("html lost the original layout: %s", v.HTML())
	}
}

func TestRestoreReturnsExactOriginal(t *testing.T) {
	original := "  Odd   spacing.\tTabs too.\n"
	h := New(original)
	h.Render(chunker.Split(original, 5), 1)

	if got := h.Restore(); got != original {
		t.Errorf("Restore = %q", got)
	}
	if got := h.Disable(); got != original {
		t.Errorf("Disable = %q", got)
	}
}

func TestDisabledRenderShowsOriginal(t *testing.T) {
	original := "One. Two."
	h := New(original)
	h.Disable()

	v := h.Render(chunker.Split(original, 3), 1)
	if len(v.Segments) != 1 || v.Segments[0].Text != original || v.Active != -1 {
		t.Errorf("view = %+v", v)
	}

	h.Enable()
	if !h.Enabled() || len(h.Render(chunker.Split(original, 3), 1).Segments) != 2 {
		t.Error("Enable did not restore highlighting")
	}
}

func TestHTMLEscapesAndMarksActive(t *testing.T) {
	v := View{
		Segments: []Segment{
			{Index: 0, Text: "a < b.", Mark: MarkRead},
			{Index: 1, Text: `"quoted" & more.`, Mark: MarkActive},
		},
		Active: 1,
	}
	out := v.HTML()
	if strings.Contains(out, "a < b") || !strings.Contains(out, "a &lt; b.") {
		t.Errorf("text not escaped: %s", out)
	}
	if !strings.Contains(out, `data-chunk="1" id="active-chunk"`) {
		t.Errorf("active marker missing: %s", out)
	}
	if strings.Count(out, "<span") != 2 {
		t.Errorf("unexpected span count: %s", out)
	}
}
