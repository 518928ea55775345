package playback

import (
	"errors"
	"fmt"
)

// ErrClosed is returned by controller operations after Close.
var ErrClosed = errors.New("playback controller closed")

// ChunkingError reports text that could not be split into speakable chunks.
type ChunkingError struct {
	Err error
}

func (e *ChunkingError) Error() string {
	return fmt.Sprintf("chunking: %v", e.Err)
}

func (e *ChunkingError) Unwrap() error { return e.Err }

// PlaybackDeviceError reports the output device rejecting or failing to
// play a chunk.
type PlaybackDeviceError struct {
	ChunkIndex int
	Err        error
}

func (e *PlaybackDeviceError) Error() string {
	return fmt.Sprintf("playback device: chunk %d: %v", e.ChunkIndex, e.Err)
}

func (e *PlaybackDeviceError) Unwrap() error { return e.Err }

// TransitionError reports an operation that is not valid in the current state.
type TransitionError struct {
	From State
	Op   string
}

func (e *TransitionError) Error() string {
	return fmt.Sprintf("cannot %s while %s", e.Op, e.From)
}
