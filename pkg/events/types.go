package events

import (
	"encoding/json"
	"time"
)

// EventType identifies the kind of event flowing through the system.
type EventType string

const (
	PlaybackStarted   EventType = "playback.started"
	ChunkStarted      EventType = "chunk.started"
	PlaybackPaused    EventType = "playback.paused"
	PlaybackResumed   EventType = "playback.resumed"
	PlaybackFinished  EventType = "playback.finished"
	PlaybackStopped   EventType = "playback.stopped"
	PlaybackError     EventType = "playback.error"
	DownloadCompleted EventType = "download.completed"
	DownloadFailed    EventType = "download.failed"
	DocumentChanged   EventType = "document.changed"
)

// Envelope is the standard event wrapper published to the event bus.
type Envelope struct {
	ID        string            `json:"id"`
	Type      EventType         `json:"type"`
	Source    string            `json:"source"`
	SessionID string            `json:"session_id"`
	Timestamp time.Time         `json:"timestamp"`
	Data      json.RawMessage   `json:"data"`
	Metadata  map[string]string `json:"metadata,omitempty"`
}

// PlaybackStartedData is the payload for playback.started events.
type PlaybackStartedData struct {
	TotalChunks int    `json:"total_chunks"`
	Voice       string `json:"voice,omitempty"`
}

// ChunkStartedData is the payload for chunk.started events.
type ChunkStartedData struct {
	ChunkIndex  int    `json:"chunk_index"`
	TotalChunks int    `json:"total_chunks"`
	MimeType    string `json:"mime_type"`
}

// PlaybackPositionData is the payload for playback.paused, playback.resumed
// and playback.stopped events.
type PlaybackPositionData struct {
	ChunkIndex int     `json:"chunk_index"`
	Progress   float64 `json:"progress"`
}

// PlaybackFinishedData is the payload for playback.finished events.
type PlaybackFinishedData struct {
	TotalChunks int `json:"total_chunks"`
}

// PlaybackErrorData is the payload for playback.error events.
type PlaybackErrorData struct {
	ChunkIndex int    `json:"chunk_index"`
	Kind       string `json:"kind"`
	Error      string `json:"error"`
}

// DownloadCompletedData is the payload for download.completed events.
type DownloadCompletedData struct {
	FileName  string `json:"file_name"`
	MimeType  string `json:"mime_type"`
	Chunks    int    `json:"chunks"`
	SizeBytes int    `json:"size_bytes"`
}

// DownloadFailedData is the payload for download.failed events.
type DownloadFailedData struct {
	ChunkIndex int    `json:"chunk_index"`
	Error      string `json:"error"`
}

// DocumentChangedData is the payload for document.changed events.
type DocumentChangedData struct {
	Characters int    `json:"characters"`
	Source     string `json:"source"`
}
