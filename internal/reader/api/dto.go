package api

import (
	"github.com/readaloud/readaloud/internal/playback"
	"github.com/readaloud/readaloud/pkg/highlight"
	"github.com/readaloud/readaloud/pkg/voices"
)

// ErrorResponse is the body of every failed request.
type ErrorResponse struct {
	Error string `json:"error"`
}

// SetTextRequest is the request body for replacing the document text.
type SetTextRequest struct {
	Text string `json:"text"`
}

// TranslateRequest is the request body for translating the document.
type TranslateRequest struct {
	TargetLanguage string `json:"target_language"`
}

// DownloadRequest is the request body for downloading the whole document.
type DownloadRequest struct {
	Voice string `json:"voice,omitempty"`
}

// VisibilityRequest is the request body for reporting view visibility.
type VisibilityRequest struct {
	Visible bool `json:"visible"`
}

// HighlightRequest is the request body for toggling highlighting.
type HighlightRequest struct {
	Enabled bool `json:"enabled"`
}

// DocumentResponse describes the loaded document.
type DocumentResponse struct {
	Text         string            `json:"text"`
	Source       string            `json:"source,omitempty"`
	Characters   int               `json:"characters"`
	Chunks       int               `json:"chunks"`
	LanguageName string            `json:"language_name,omitempty"`
	Playback     playback.Snapshot `json:"playback"`
}

// ViewResponse is the highlighted document.
type ViewResponse struct {
	highlight.View
	Highlighting bool `json:"highlighting"`
}

// ProgressResponse reports the running download.
type ProgressResponse struct {
	Busy     bool    `json:"busy"`
	Progress float64 `json:"progress"`
}

// VoicesResponse lists the voice catalogs.
type VoicesResponse struct {
	Backend  string                     `json:"backend"`
	Catalogs map[string]*voices.Catalog `json:"catalogs"`
}
