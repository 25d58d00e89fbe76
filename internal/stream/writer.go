package stream

import (
	"encoding/binary"
	"fmt"
	"io"

	"github.com/visiona/stemd/internal/types"
)

// WriteBlock encodes b in the wire layout: the 1024-word header region
// followed by the little-endian uint16 samples.
func WriteBlock(w io.Writer, b types.Block) error {
	if len(b.Header.ImageNumbers) > maxImagesInBlock {
		return fmt.Errorf("%d image numbers do not fit the header region", len(b.Header.ImageNumbers))
	}
	if want := b.Header.PixelsPerImage() * int(b.Header.ImagesInBlock); len(b.Data) != want {
		return fmt.Errorf("block data holds %d samples, header declares %d", len(b.Data), want)
	}

	var buf [headerBytes]byte
	le := binary.LittleEndian
	le.PutUint32(buf[wordImages*4:], b.Header.ImagesInBlock)
	le.PutUint32(buf[wordRows*4:], b.Header.Rows)
	le.PutUint32(buf[wordColumns*4:], b.Header.Columns)
	le.PutUint32(buf[wordVersion*4:], b.Header.Version)
	le.PutUint32(buf[wordTimestamp*4:], b.Header.Timestamp)
	for i, n := range b.Header.ImageNumbers {
		le.PutUint32(buf[(wordNumbers+i)*4:], n)
	}
	if _, err := w.Write(buf[:]); err != nil {
		return fmt.Errorf("failed to write block header: %w", err)
	}

	payload := make([]byte, len(b.Data)*2)
	for i, s := range b.Data {
		le.PutUint16(payload[2*i:], s)
	}
	if _, err := w.Write(payload); err != nil {
		return fmt.Errorf("failed to write block payload: %w", err)
	}

	return nil
}

// WriteSentinel writes an explicit end-of-stream block: an all-zero
// header region and no payload.
func WriteSentinel(w io.Writer) error {
	var buf [headerBytes]byte
	if _, err := w.Write(buf[:]); err != nil {
		return fmt.Errorf("failed to write sentinel block: %w", err)
	}
	return nil
}
