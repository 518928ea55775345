package audio

import (
	"mime"
	"strings"
	"time"
)

// Nominal bitrates used when a container carries no usable timing.
const (
	mp3BitsPerSecond  = 128_000
	opusBitsPerSecond = 64_000
	flacBitsPerSecond = 800_000
)

// Family reduces a MIME type to the container family used to decide whether
// two payloads can be joined: "mp3", "wav", "ogg", "flac" or the bare media
// type for anything else.
func Family(mimeType string) string {
	mediaType, _, err := mime.ParseMediaType(mimeType)
	if err != nil {
		mediaType = strings.ToLower(strings.TrimSpace(mimeType))
	}
	switch mediaType {
	case "audio/mpeg", "audio/mp3", "audio/mpeg3":
		return "mp3"
	case "audio/wav", "audio/wave", "audio/x-wav", "audio/vnd.wave":
		return "wav"
	case "audio/ogg", "audio/opus":
		return "ogg"
	case "audio/flac", "audio/x-flac":
		return "flac"
	default:
		return mediaType
	}
}

// Extension returns a file extension, without the dot, for a MIME type.
func Extension(mimeType string) string {
	switch f := Family(mimeType); f {
	case "mp3", "wav", "ogg", "flac":
		return f
	default:
		return "bin"
	}
}

// EstimateDuration guesses the playing time of a payload. WAV headers give
// an exact figure; compressed formats fall back to a nominal bitrate.
func EstimateDuration(data []byte, mimeType string) time.Duration {
	if len(data) == 0 {
		return 0
	}

	var bitsPerSecond int
	switch Family(mimeType) {
	case "wav":
		if w, err := ParseWAV(data); err == nil && w.Format.ByteRate > 0 {
			return time.Duration(float64(len(w.PCM)) / float64(w.Format.ByteRate) * float64(time.Second))
		}
		return 0
	case "ogg":
		bitsPerSecond = opusBitsPerSecond
	case "flac":
		bitsPerSecond = flacBitsPerSecond
	default:
		bitsPerSecond = mp3BitsPerSecond
	}
	return time.Duration(float64(len(data)*8) / float64(bitsPerSecond) * float64(time.Second))
}
