package engine

import (
	"errors"
	"fmt"
)

// TTSError reports a failed synthesis: transport failure, non-2xx status, or
// a body that is neither audio nor a well-formed success envelope. Message is
// safe to show to users; it carries the provider's own error string when
// there is one.
type TTSError struct {
	Op         string
	Message    string
	StatusCode int
	Err        error
}

func (e *TTSError) Error() string {
	switch {
	case e.StatusCode != 0:
		return fmt.Sprintf("tts %s: HTTP %d: %s", e.Op, e.StatusCode, e.Message)
	case e.Err != nil && e.Message == "":
		return fmt.Sprintf("tts %s: %v", e.Op, e.Err)
	default:
		return fmt.Sprintf("tts %s: %s", e.Op, e.Message)
	}
}

func (e *TTSError) Unwrap() error { return e.Err }

// UserMessage returns the human-readable part of err when it is a TTSError,
// and a generic message otherwise.
func UserMessage(err error) string {
	var te *TTSError
	if errors.As(err, &te) {
		if te.Message != "" {
			return te.Message
		}
		if te.StatusCode != 0 {
			return fmt.Sprintf("speech provider returned HTTP %d", te.StatusCode)
		}
		return "speech provider unreachable"
	}
	return "speech synthesis failed"
}
