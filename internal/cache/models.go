package cache

import (
	"github.com/pitabwire/frame/data"

	"github.com/readaloud/readaloud/internal/speech/engine"
)

// CachedAudio is one synthesized chunk stored by content hash.
type CachedAudio struct {
	data.BaseModel

	ContentHash string `gorm:"type:varchar(64);not null;uniqueIndex:idx_ca_hash" json:"content_hash"`
	MimeType    string `gorm:"type:varchar(100);not null"                         json:"mime_type"`
	Payload     []byte `gorm:"type:bytea;not null"                                json:"-"`
	SizeBytes   int    `gorm:"default:0"                                          json:"size_bytes"`
	HitCount    int    `gorm:"default:0"                                          json:"hit_count"`
}

func (CachedAudio) TableName() string { return "cached_audio" }

func newEntry(key string, audio *engine.Audio) *CachedAudio {
	return &CachedAudio{
		ContentHash: key,
		MimeType:    audio.MimeType,
		Payload:     audio.Data,
		SizeBytes:   len(audio.Data),
	}
}

// Audio returns the stored payload.
func (c *CachedAudio) Audio() *engine.Audio {
	return &engine.Audio{Data: c.Payload, MimeType: c.MimeType}
}
