package events

import (
	"encoding/json"
	"testing"
)

func TestEmitFansOutLocally(t *testing.T) {
	p := NewPublisher(nil, "readaloud", "")
	ch := p.Subscribe("watcher", 4)
	defer p.Unsubscribe("watcher")

	err := p.Emit(t.Context(), ChunkStarted, "session-1", ChunkStartedData{
		ChunkIndex:  2,
		TotalChunks: 5,
		MimeType:    "audio/mpeg",
	})
	if err != nil {
		t.Fatalf("Emit: %v", err)
	}

	env := <-ch
	if env.Type != ChunkStarted || env.SessionID != "session-1" || env.Source != "readaloud" {
		t.Errorf("envelope = %+v", env)
	}
	if env.ID == "" || env.Timestamp.IsZero() {
		t.Error("envelope should carry an id and timestamp")
	}

	var payload ChunkStartedData
	if err := json.Unmarshal(env.Data, &payload); err != nil {
		t.Fatalf("unmarshal payload: %v", err)
	}
	if payload.ChunkIndex != 2 || payload.TotalChunks != 5 {
		t.Errorf("payload = %+v", payload)
	}
}

func TestEmitDropsWhenSubscriberFull(t *testing.T) {
	p := NewPublisher(nil, "readaloud", "")
	ch := p.Subscribe("slow", 1)
	defer p.Unsubscribe("slow")

	for range 3 {
		if err := p.Emit(t.Context(), PlaybackPaused, "s", PlaybackPositionData{}); err != nil {
			t.Fatalf("Emit: %v", err)
		}
	}
	if len(ch) != 1 {
		t.Errorf("buffered = %d, want 1", len(ch))
	}
}

func TestUnsubscribeClosesChannel(t *testing.T) {
	p := NewPublisher(nil, "readaloud", "")
	ch := p.Subscribe("gone", 1)
	p.Unsubscribe("gone")

	if _, ok := <-ch; ok {
		t.Error("channel should be closed")
	}
}

func TestEventTypeConstants(t *testing.T) {
	types := []EventType{
		PlaybackStarted, ChunkStarted,
		PlaybackPaused, PlaybackResumed,
		PlaybackFinished, PlaybackStopped, PlaybackError,
		DownloadCompleted, DownloadFailed,
		DocumentChanged,
	}

	seen := make(map[EventType]bool)
	for _, et := range types {
		if et == "" {
			t.Error("empty event type constant")
		}
		if seen[et] {
			t.Errorf("duplicate event type: %q", et)
		}
		seen[et] = true
	}
}
