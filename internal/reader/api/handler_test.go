package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/readaloud/readaloud/internal/download"
	"github.com/readaloud/readaloud/internal/playback"
	"github.com/readaloud/readaloud/internal/translate"
	"github.com/readaloud/readaloud/pkg/chunker"
	"github.com/readaloud/readaloud/pkg/events"
	"github.com/readaloud/readaloud/pkg/highlight"
	"github.com/readaloud/readaloud/pkg/voices"
)

type fakeDocument struct {
	mu      sync.Mutex
	text    string
	source  string
	snap    playback.Snapshot
	visible bool
}

func (d *fakeDocument) SetText(text, source string) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.text, d.source = text, source
	return nil
}

func (d *fakeDocument) Text() string {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.text
}

func (d *fakeDocument) Chunks() []chunker.Chunk {
	return chunker.Split(d.Text(), 20)
}

func (d *fakeDocument) Snapshot() playback.Snapshot {
	d.mu.Lock()
	defer d.mu.Unlock()
	s := d.snap
	s.Visible = d.visible
	return s
}

func (d *fakeDocument) SetVisible(v bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.visible = v
}

type fakeDownloader struct {
	res   *download.Result
	err   error
	text  string
	voice string
}

func (f *fakeDownloader) DownloadAll(_ context.Context, text, voice string) (*download.Result, error) {
	f.text, f.voice = text, voice
	return f.res, f.err
}

func (f *fakeDownloader) Progress() float64 { return 45 }
func (f *fakeDownloader) Busy() bool        { return true }

type fakeTranslator struct{}

func (fakeTranslator) Configured() bool { return true }

func (fakeTranslator) Translate(_ context.Context, text, target string) (*translate.Result, error) {
	if target == "" {
		return nil, translate.ErrNoLanguage
	}
	return &translate.Result{Text: strings.ToUpper(text), LanguageName: "Shouting"}, nil
}

type fakeCatalog struct{}

func (fakeCatalog) All() map[string]*voices.Catalog {
	return map[string]*voices.Catalog{"remote": {Backend: "remote", Voices: []voices.Entry{{ID: "alloy"}}}}
}

func (fakeCatalog) Resolve(_, voice string) (string, error) {
	if voice != "alloy" {
		return "", voices.ErrUnknownVoice
	}
	return voice, nil
}

func setup(t *testing.T) (*httptest.Server, *fakeDocument, *fakeDownloader) {
	t.Helper()
	doc := &fakeDocument{snap: playback.Snapshot{State: playback.StateIdle, CurrentChunk: -1, Voice: "nova"}}
	dl := &fakeDownloader{}
	history := events.NewHistory(10)
	raw, _ := json.Marshal(events.Envelope{ID: "evt-1", Type: events.DocumentChanged})
	history.Handle(t.Context(), nil, raw)
	h := NewHandler(Deps{
		Document:   doc,
		Downloader: dl,
		Translator: fakeTranslator{},
		Voices:     fakeCatalog{},
		Events:     history,
		Backend:    "remote",
		MaxUpload:  1 << 20,
	})

	mux := http.NewServeMux()
	h.RegisterRoutes(mux)
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv, doc, dl
}

func doJSON(t *testing.T, method, url string, body any) *http.Response {
	t.Helper()
	var r io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshal: %v", err)
		}
		r = bytes.NewReader(raw)
	}
	req, err := http.NewRequestWithContext(t.Context(), method, url, r)
	if err != nil {
		t.Fatalf("new request: %v", err)
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("%s %s: %v", method, url, err)
	}
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func decode[T any](t *testing.T, resp *http.Response) T {
	t.Helper()
	var v T
	if err := json.NewDecoder(resp.Body).Decode(&v); err != nil {
		t.Fatalf("decode: %v", err)
	}
	return v
}

func upload(t *testing.T, url, name, content string) *http.Response {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	fw, err := mw.CreateFormFile("file", name)
	if err != nil {
		t.Fatalf("create form file: %v", err)
	}
	io.WriteString(fw, content)
	mw.Close()

	req, _ := http.NewRequestWithContext(t.Context(), http.MethodPost, url+"/api/v1/document", &buf)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("upload: %v", err)
	}
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func TestUploadText(t *testing.T) {
	srv, doc, _ := setup(t)

	resp := upload(t, srv.URL, "notes.txt", "First sentence here. Second one follows.")
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("status = %d, want 201", resp.StatusCode)
	}
	got := decode[DocumentResponse](t, resp)
	if got.Source != "notes.txt" || got.Chunks != 2 {
		t.Errorf("document = %+v", got)
	}
	if doc.source != "notes.txt" {
		t.Errorf("controller source = %q", doc.source)
	}
}

func TestUploadRejects(t *testing.T) {
	srv, _, _ := setup(t)

	tests := []struct {
		name, file, content string
		status              int
	}{
		{"unsupported", "image.png", "data", http.StatusUnsupportedMediaType},
		{"blank", "empty.txt", "  \n ", http.StatusUnprocessableEntity},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if resp := upload(t, srv.URL, tt.file, tt.content); resp.StatusCode != tt.status {
				t.Errorf("status = %d, want %d", resp.StatusCode, tt.status)
			}
		})
	}
}

func TestSetTextAndTranslate(t *testing.T) {
	srv, doc, _ := setup(t)

	resp := doJSON(t, http.MethodPut, srv.URL+"/api/v1/document/text", SetTextRequest{Text: "hello there."})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("set text status = %d", resp.StatusCode)
	}

	resp = doJSON(t, http.MethodPost, srv.URL+"/api/v1/document/translate", TranslateRequest{})
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("missing language status = %d, want 400", resp.StatusCode)
	}

	resp = doJSON(t, http.MethodPost, srv.URL+"/api/v1/document/translate", TranslateRequest{TargetLanguage: "xx"})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("translate status = %d", resp.StatusCode)
	}
	got := decode[DocumentResponse](t, resp)
	if got.LanguageName != "Shouting" || doc.Text() != "HELLO THERE." {
		t.Errorf("translated document = %+v", got)
	}
}

func TestViewHighlightsActiveChunk(t *testing.T) {
	srv, doc, _ := setup(t)
	doJSON(t, http.MethodPut, srv.URL+"/api/v1/document/text", SetTextRequest{Text: "One short line. Two short lines. Three <b>lines."})
	doc.mu.Lock()
	doc.snap.State = playback.StatePlaying
	doc.snap.CurrentChunk = 1
	doc.mu.Unlock()

	view := decode[ViewResponse](t, doJSON(t, http.MethodGet, srv.URL+"/api/v1/document/view", nil))
	if view.Active != 1 || len(view.Segments) != 3 {
		t.Fatalf("view = %+v", view)
	}
	if view.Segments[0].Mark != highlight.MarkRead || view.Segments[2].Mark != highlight.MarkNone {
		t.Errorf("marks = %v %v", view.Segments[0].Mark, view.Segments[2].Mark)
	}

	resp := doJSON(t, http.MethodGet, srv.URL+"/api/v1/document/view?format=html", nil)
	body, _ := io.ReadAll(resp.Body)
	if !strings.Contains(string(body), `id="active-chunk"`) || strings.Contains(string(body), "<b>") {
		t.Errorf("html = %s", body)
	}

	off := decode[ViewResponse](t, doJSON(t, http.MethodPut, srv.URL+"/api/v1/document/highlight", HighlightRequest{Enabled: false}))
	if off.Highlighting || len(off.Segments) != 1 || off.Segments[0].Text != doc.Text() {
		t.Errorf("disabled view = %+v", off)
	}
}

func TestDownload(t *testing.T) {
	srv, _, dl := setup(t)
	doJSON(t, http.MethodPut, srv.URL+"/api/v1/document/text", SetTextRequest{Text: "Read me."})
	dl.res = &download.Result{Data: []byte("ID3audio"), MimeType: "audio/mpeg", Chunks: 1, FileName: "readaloud-x.mp3"}

	resp := doJSON(t, http.MethodPost, srv.URL+"/api/v1/download", nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d", resp.StatusCode)
	}
	if ct := resp.Header.Get("Content-Type"); ct != "audio/mpeg" {
		t.Errorf("content type = %q", ct)
	}
	if cd := resp.Header.Get("Content-Disposition"); !strings.Contains(cd, "readaloud-x.mp3") {
		t.Errorf("content disposition = %q", cd)
	}
	if dl.voice != "nova" || dl.text != "Read me." {
		t.Errorf("downloader got text %q voice %q", dl.text, dl.voice)
	}
}

func TestDownloadErrors(t *testing.T) {
	tests := []struct {
		name   string
		voice  string
		err    error
		status int
	}{
		{"busy", "", download.ErrBusy, http.StatusConflict},
		{"no text", "", download.ErrNoText, http.StatusBadRequest},
		{"chunk failure", "", &download.AggregationError{ChunkIndex: 2, Total: 4, Err: errors.New("HTTP 500")}, http.StatusBadGateway},
		{"unknown voice", "robot", nil, http.StatusBadRequest},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv, _, dl := setup(t)
			dl.err = tt.err
			resp := doJSON(t, http.MethodPost, srv.URL+"/api/v1/download", DownloadRequest{Voice: tt.voice})
			if resp.StatusCode != tt.status {
				t.Errorf("status = %d, want %d", resp.StatusCode, tt.status)
			}
			if e := decode[ErrorResponse](t, resp); e.Error == "" {
				t.Error("expected an error message")
			}
		})
	}
}

func TestProgressVoicesVisibility(t *testing.T) {
	srv, doc, _ := setup(t)

	p := decode[ProgressResponse](t, doJSON(t, http.MethodGet, srv.URL+"/api/v1/download/progress", nil))
	if !p.Busy || p.Progress != 45 {
		t.Errorf("progress = %+v", p)
	}

	v := decode[VoicesResponse](t, doJSON(t, http.MethodGet, srv.URL+"/api/v1/voices", nil))
	if v.Backend != "remote" || len(v.Catalogs["remote"].Voices) != 1 {
		t.Errorf("voices = %+v", v)
	}

	doJSON(t, http.MethodPut, srv.URL+"/api/v1/visibility", VisibilityRequest{Visible: true})
	if !doc.Snapshot().Visible {
		t.Error("visibility was not applied")
	}
}

func TestEvents(t *testing.T) {
	srv, _, _ := setup(t)

	got := decode[[]events.Envelope](t, doJSON(t, http.MethodGet, srv.URL+"/api/v1/events?limit=5", nil))
	if len(got) != 1 || got[0].Type != events.DocumentChanged {
		t.Errorf("events = %+v", got)
	}
	if resp := doJSON(t, http.MethodGet, srv.URL+"/api/v1/events?limit=x", nil); resp.StatusCode != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", resp.StatusCode)
	}
}

func TestViewAfterStopRestoresOriginal(t *testing.T) {
	srv, doc, _ := setup(t)
	original := "Title line.\n\nFirst paragraph here.\n\n  Second paragraph."
	doJSON(t, http.MethodPut, srv.URL+"/api/v1/document/text", SetTextRequest{Text: original})

	doc.mu.Lock()
	doc.snap.State = playback.StatePlaying
	doc.snap.CurrentChunk = 1
	doc.mu.Unlock()
	if v := decode[ViewResponse](t, doJSON(t, http.MethodGet, srv.URL+"/api/v1/document/view", nil)); v.Active != 1 {
		t.Fatalf("playing view = %+v", v)
	}

	doc.mu.Lock()
	doc.snap.State = playback.StateIdle
	doc.snap.CurrentChunk = -1
	doc.mu.Unlock()
	v := decode[ViewResponse](t, doJSON(t, http.MethodGet, srv.URL+"/api/v1/document/view", nil))
	if len(v.Segments) != 1 || v.Segments[0].Text != original || v.Active != -1 {
		t.Errorf("stopped view = %+v, want the original text", v)
	}
}
