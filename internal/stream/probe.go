package stream

import (
	"errors"
	"fmt"
	"io"
)

// StreamInfo is the geometry read from the first header of a stream.
type StreamInfo struct {
	Rows          int
	Columns       int
	ImagesInBlock int
	Version       uint32
	// FirstNumber is the first image number; 0 when the stream opens
	// with the sentinel
	FirstNumber uint32
	// EndOfStream is true when the stream opens with the sentinel or
	// holds no blocks at all
	EndOfStream bool
}

// Probe opens the named files and decodes only the first block header,
// so a run's geometry can be checked against the configuration without
// consuming the stream.
func Probe(paths []string, compression string) (*StreamInfo, error) {
	r, err := Open(paths, compression)
	if err != nil {
		return nil, err
	}
	defer r.Close()

	if _, err := r.br.Peek(1); err != nil {
		if errors.Is(err, io.EOF) {
			return &StreamInfo{EndOfStream: true}, nil
		}
		return nil, fmt.Errorf("failed to peek stream: %w", err)
	}

	h, err := r.readHeader()
	if err != nil {
		return nil, err
	}

	info := &StreamInfo{
		Rows:          int(h.Rows),
		Columns:       int(h.Columns),
		ImagesInBlock: int(h.ImagesInBlock),
		Version:       h.Version,
		EndOfStream:   h.Version == 0,
	}
	if len(h.ImageNumbers) > 0 {
		info.FirstNumber = h.ImageNumbers[0]
	}
	return info, nil
}
