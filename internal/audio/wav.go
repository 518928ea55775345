// Package audio holds container-level helpers for synthesized payloads.
package audio

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
)

// ErrNotWAV is returned for data without a RIFF/WAVE header.
var ErrNotWAV = errors.New("not a RIFF/WAVE payload")

// WAVFormat is the fmt sub-chunk of a PCM WAV file.
type WAVFormat struct {
	AudioFormat   uint16
	Channels      uint16
	SampleRate    uint32
	ByteRate      uint32
	BlockAlign    uint16
	BitsPerSample uint16
}

// WAV is a parsed WAV payload. PCM aliases the input.
type WAV struct {
	Format WAVFormat
	PCM    []byte
}

// ParseWAV walks the RIFF chunks of data and returns the format and the
// sample data.
func ParseWAV(data []byte) (*WAV, error) {
	if len(data) < 12 || string(data[0:4]) != "RIFF" || string(data[8:12]) != "WAVE" {
		return nil, ErrNotWAV
	}

	var (
		w       WAV
		haveFmt bool
	)
	for pos := 12; pos+8 <= len(data); {
		id := string(data[pos : pos+4])
		size := int(binary.LittleEndian.Uint32(data[pos+4 : pos+8]))
		body := pos + 8
		end := body + size
		if end > len(data) {
			// Streaming encoders often leave the data size unset.
			end = len(data)
		}

		switch id {
		case "fmt ":
			if end-body < 16 {
				return nil, fmt.Errorf("wav fmt chunk too short (%d bytes)", end-body)
			}
			if err := binary.Read(bytes.NewReader(data[body:end]), binary.LittleEndian, &w.Format); err != nil {
				return nil, fmt.Errorf("wav fmt chunk: %w", err)
			}
			haveFmt = true
		case "data":
			if !haveFmt {
				return nil, errors.New("wav data chunk before fmt chunk")
			}
			w.PCM = data[body:end]
			return &w, nil
		}

		pos = end + size%2
	}
	return nil, errors.New("wav payload has no data chunk")
}

// WriteWAVHeader writes a canonical 44-byte header for dataSize bytes of PCM.
func WriteWAVHeader(w io.Writer, f WAVFormat, dataSize int) error {
	header := struct {
		Riff      [4]byte
		TotalSize uint32
		Wave      [4]byte
		Fmt       [4]byte
		FmtSize   uint32
		Format    WAVFormat
		Data      [4]byte
		DataSize  uint32
	}{
		Riff:      [4]byte{'R', 'I', 'F', 'F'},
		TotalSize: uint32(36 + dataSize),
		Wave:      [4]byte{'W', 'A', 'V', 'E'},
		Fmt:       [4]byte{'f', 'm', 't', ' '},
		FmtSize:   16,
		Format:    f,
		Data:      [4]byte{'d', 'a', 't', 'a'},
		DataSize:  uint32(dataSize),
	}
	return binary.Write(w, binary.LittleEndian, header)
}

// ConcatWAV joins WAV payloads that share one PCM format into a single file.
func ConcatWAV(parts [][]byte) ([]byte, error) {
	if len(parts) == 0 {
		return nil, errors.New("no wav payloads to join")
	}

	var (
		format WAVFormat
		pcm    [][]byte
		total  int
	)
	for i, p := range parts {
		w, err := ParseWAV(p)
		if err != nil {
			return nil, fmt.Errorf("payload %d: %w", i, err)
		}
		if i == 0 {
			format = w.Format
		} else if w.Format != format {
			return nil, fmt.Errorf("payload %d: wav format %+v differs from %+v", i, w.Format, format)
		}
		pcm = append(pcm, w.PCM)
		total += len(w.PCM)
	}

	var buf bytes.Buffer
	buf.Grow(44 + total)
	if err := WriteWAVHeader(&buf, format, total); err != nil {
		return nil, err
	}
	for _, p := range pcm {
		buf.Write(p)
	}
	return buf.Bytes(), nil
}
