package playback

import (
	"sync"

	"github.com/rs/xid"

	"github.com/readaloud/readaloud/internal/speech/engine"
)

// Handle owns one chunk's decoded audio. Whoever holds it must Release it
// exactly once; further Release calls are no-ops.
type Handle struct {
	ChunkIndex int

	id       string
	mu       sync.Mutex
	audio    *engine.Audio
	released bool
}

// NewHandle wraps audio synthesized for chunk index.
func NewHandle(index int, audio *engine.Audio) *Handle {
	return &Handle{ChunkIndex: index, id: xid.New().String(), audio: audio}
}

// ID identifies the handle for logs and device bookkeeping.
func (h *Handle) ID() string { return h.id }

// Data returns the audio bytes, or nil once released.
func (h *Handle) Data() []byte {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.released || h.audio == nil {
		return nil
	}
	return h.audio.Data
}

// MimeType returns the payload's content type.
func (h *Handle) MimeType() string {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.audio == nil {
		return ""
	}
	return h.audio.MimeType
}

// Release drops the payload.
func (h *Handle) Release() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.released = true
	h.audio = nil
}

// Released reports whether Release has been called.
func (h *Handle) Released() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.released
}
