package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"unicode/utf8"

	"github.com/pitabwire/util"

	"github.com/readaloud/readaloud/internal/download"
	"github.com/readaloud/readaloud/internal/extract"
	"github.com/readaloud/readaloud/internal/playback"
	"github.com/readaloud/readaloud/internal/translate"
	"github.com/readaloud/readaloud/pkg/chunker"
	"github.com/readaloud/readaloud/pkg/events"
	"github.com/readaloud/readaloud/pkg/highlight"
	"github.com/readaloud/readaloud/pkg/voices"
)

const maxRequestBodySize = 1 << 20 // 1 MiB

// Document is the playback state the API reads and replaces.
type Document interface {
	SetText(text, source string) error
	Text() string
	Chunks() []chunker.Chunk
	Snapshot() playback.Snapshot
	SetVisible(visible bool)
}

// Downloader renders the whole document to one audio file.
type Downloader interface {
	DownloadAll(ctx context.Context, text, voice string) (*download.Result, error)
	Progress() float64
	Busy() bool
}

// Translator replaces the document with a translation.
type Translator interface {
	Configured() bool
	Translate(ctx context.Context, text, target string) (*translate.Result, error)
}

// VoiceCatalog lists and validates voices.
type VoiceCatalog interface {
	All() map[string]*voices.Catalog
	Resolve(backend, voice string) (string, error)
}

// EventHistory lists recent bus events.
type EventHistory interface {
	Recent(n int) []events.Envelope
}

// Deps are the collaborators of a Handler. Translator, Voices and Events
// may be nil.
type Deps struct {
	Document   Document
	Downloader Downloader
	Translator Translator
	Voices     VoiceCatalog
	Events     EventHistory
	Backend    string
	MaxUpload  int64
}

// Handler provides REST endpoints for the document and its downloads.
type Handler struct {
	doc        Document
	downloader Downloader
	translator Translator
	voices     VoiceCatalog
	events     EventHistory
	backend    string
	maxUpload  int64

	mu          sync.Mutex
	source      string
	language    string
	highlighter *highlight.Highlighter
}

// NewHandler creates a document API handler.
func NewHandler(deps Deps) *Handler {
	maxUpload := deps.MaxUpload
	if maxUpload <= 0 {
		maxUpload = 25 << 20
	}
	return &Handler{
		doc:         deps.Document,
		downloader:  deps.Downloader,
		translator:  deps.Translator,
		voices:      deps.Voices,
		events:      deps.Events,
		backend:     deps.Backend,
		maxUpload:   maxUpload,
		highlighter: highlight.New(deps.Document.Text()),
	}
}

// RegisterRoutes registers all document API routes on the given mux.
func (h *Handler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("POST /api/v1/document", h.Upload)
	mux.HandleFunc("GET /api/v1/document", h.Get)
	mux.HandleFunc("PUT /api/v1/document/text", h.SetText)
	mux.HandleFunc("POST /api/v1/document/translate", h.Translate)
	mux.HandleFunc("GET /api/v1/document/view", h.View)
	mux.HandleFunc("PUT /api/v1/document/highlight", h.SetHighlight)
	mux.HandleFunc("POST /api/v1/download", h.Download)
	mux.HandleFunc("GET /api/v1/download/progress", h.DownloadProgress)
	mux.HandleFunc("GET /api/v1/voices", h.Voices)
	mux.HandleFunc("PUT /api/v1/visibility", h.SetVisibility)
	mux.HandleFunc("GET /api/v1/events", h.Events)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, ErrorResponse{Error: msg})
}

// replace swaps the document text and starts a fresh highlighter over it.
func (h *Handler) replace(text, source, language string) error {
	if err := h.doc.SetText(text, source); err != nil {
		return err
	}
	h.mu.Lock()
	h.source = source
	h.language = language
	h.highlighter = highlight.New(text)
	h.mu.Unlock()
	return nil
}

func (h *Handler) document() DocumentResponse {
	h.mu.Lock()
	source, language := h.source, h.language
	h.mu.Unlock()

	text := h.doc.Text()
	return DocumentResponse{
		Text:         text,
		Source:       source,
		Characters:   utf8.RuneCountInString(text),
		Chunks:       len(h.doc.Chunks()),
		LanguageName: language,
		Playback:     h.doc.Snapshot(),
	}
}

// Upload handles POST /api/v1/document (multipart field "file").
func (h *Handler) Upload(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, h.maxUpload)
	file, header, err := r.FormFile("file")
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeError(w, http.StatusRequestEntityTooLarge, "document too large")
			return
		}
		writeError(w, http.StatusBadRequest, "multipart field \"file\" is required")
		return
	}
	defer file.Close()

	text, err := extract.File(r.Context(), header.Filename, file, header.Size)
	if err != nil {
		if errors.Is(err, extract.ErrUnsupported) {
			writeError(w, http.StatusUnsupportedMediaType,
				fmt.Sprintf("unsupported document type, expected one of %s", strings.Join(extract.Supported(), ", ")))
			return
		}
		util.Log(r.Context()).WithError(err).Error("document api: extract " + header.Filename)
		writeError(w, http.StatusUnprocessableEntity, "could not read document text")
		return
	}
	if strings.TrimSpace(text) == "" {
		writeError(w, http.StatusUnprocessableEntity, "document contains no text")
		return
	}

	if err := h.replace(text, header.Filename, ""); err != nil {
		writeError(w, http.StatusServiceUnavailable, err.Error())
		return
	}
	writeJSON(w, http.StatusCreated, h.document())
}

// Get handles GET /api/v1/document
func (h *Handler) Get(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, h.document())
}

// SetText handles PUT /api/v1/document/text
func (h *Handler) SetText(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, h.maxUpload)
	var req SetTextRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if err := h.replace(req.Text, "text", ""); err != nil {
		writeError(w, http.StatusServiceUnavailable, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, h.document())
}

// Translate handles POST /api/v1/document/translate
func (h *Handler) Translate(w http.ResponseWriter, r *http.Request) {
	if h.translator == nil || !h.translator.Configured() {
		writeError(w, http.StatusNotImplemented, translate.ErrNotConfigured.Error())
		return
	}
	r.Body = http.MaxBytesReader(w, r.Body, maxRequestBodySize)
	var req TranslateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	res, err := h.translator.Translate(r.Context(), h.doc.Text(), req.TargetLanguage)
	switch {
	case errors.Is(err, translate.ErrEmptyText), errors.Is(err, translate.ErrNoLanguage):
		writeError(w, http.StatusBadRequest, err.Error())
		return
	case err != nil:
		util.Log(r.Context()).WithError(err).Error("document api: translate")
		writeError(w, http.StatusBadGateway, err.Error())
		return
	}

	h.mu.Lock()
	source := h.source
	h.mu.Unlock()
	if err := h.replace(res.Text, source, res.LanguageName); err != nil {
		writeError(w, http.StatusServiceUnavailable, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, h.document())
}

// View handles GET /api/v1/document/view. ?format=html returns markup.
func (h *Handler) View(w http.ResponseWriter, r *http.Request) {
	h.mu.Lock()
	hl := h.highlighter
	h.mu.Unlock()

	snap := h.doc.Snapshot()
	current := -1
	switch snap.State {
	case playback.StateLoading, playback.StatePlaying, playback.StatePaused:
		current = snap.CurrentChunk
	}
	view := hl.Render(h.doc.Chunks(), current)

	if r.URL.Query().Get("format") == "html" {
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		w.WriteHeader(http.StatusOK)
		io.WriteString(w, view.HTML())
		return
	}
	writeJSON(w, http.StatusOK, ViewResponse{View: view, Highlighting: hl.Enabled()})
}

// SetHighlight handles PUT /api/v1/document/highlight
func (h *Handler) SetHighlight(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxRequestBodySize)
	var req HighlightRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	h.mu.Lock()
	hl := h.highlighter
	h.mu.Unlock()
	if req.Enabled {
		hl.Enable()
	} else {
		hl.Disable()
	}
	writeJSON(w, http.StatusOK, ViewResponse{View: hl.Render(h.doc.Chunks(), -1), Highlighting: hl.Enabled()})
}

// Download handles POST /api/v1/download and returns the audio file.
func (h *Handler) Download(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxRequestBodySize)
	var req DownloadRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	voice := req.Voice
	if voice == "" {
		voice = h.doc.Snapshot().Voice
	} else if h.voices != nil {
		resolved, err := h.voices.Resolve(h.backend, voice)
		if err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		voice = resolved
	}

	res, err := h.downloader.DownloadAll(r.Context(), h.doc.Text(), voice)
	if err != nil {
		var aggErr *download.AggregationError
		switch {
		case errors.Is(err, download.ErrBusy):
			writeError(w, http.StatusConflict, err.Error())
		case errors.Is(err, download.ErrNoText):
			writeError(w, http.StatusBadRequest, err.Error())
		case errors.As(err, &aggErr):
			writeError(w, http.StatusBadGateway, err.Error())
		default:
			util.Log(r.Context()).WithError(err).Error("document api: download")
			writeError(w, http.StatusInternalServerError, "download failed")
		}
		return
	}

	w.Header().Set("Content-Type", res.MimeType)
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", res.FileName))
	w.Header().Set("Content-Length", fmt.Sprintf("%d", len(res.Data)))
	w.WriteHeader(http.StatusOK)
	w.Write(res.Data)
}

// DownloadProgress handles GET /api/v1/download/progress
func (h *Handler) DownloadProgress(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, ProgressResponse{
		Busy:     h.downloader.Busy(),
		Progress: h.downloader.Progress(),
	})
}

// Voices handles GET /api/v1/voices
func (h *Handler) Voices(w http.ResponseWriter, _ *http.Request) {
	resp := VoicesResponse{Backend: h.backend, Catalogs: map[string]*voices.Catalog{}}
	if h.voices != nil {
		resp.Catalogs = h.voices.All()
	}
	writeJSON(w, http.StatusOK, resp)
}

// SetVisibility handles PUT /api/v1/visibility
func (h *Handler) SetVisibility(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxRequestBodySize)
	var req VisibilityRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	h.doc.SetVisible(req.Visible)
	writeJSON(w, http.StatusOK, h.doc.Snapshot())
}

// Events handles GET /api/v1/events?limit=N
func (h *Handler) Events(w http.ResponseWriter, r *http.Request) {
	limit := 50
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			writeError(w, http.StatusBadRequest, "limit must be a non-negative integer")
			return
		}
		limit = n
	}
	if h.events == nil {
		writeJSON(w, http.StatusOK, []events.Envelope{})
		return
	}
	writeJSON(w, http.StatusOK, h.events.Recent(limit))
}
