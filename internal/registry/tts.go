package registry

import "github.com/readaloud/readaloud/internal/speech/engine"

// TTS is the global TTS engine registry.
var TTS = New[engine.TTSEngine]()
