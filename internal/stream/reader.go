// Package stream decodes and encodes the detector's binary block
// format: a fixed header region of 1024 little-endian 4-byte words
// followed by the raw uint16 samples of every image in the block.
package stream

import (
	"bufio"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/klauspost/compress/zstd"

	"github.com/visiona/stemd/internal/types"
)

const (
	headerWords = 1024
	headerBytes = headerWords * 4

	// fixed word offsets within the header region
	wordImages    = 0
	wordRows      = 1
	wordColumns   = 2
	wordVersion   = 3
	wordTimestamp = 4
	// words 5-9 are reserved; image numbers follow
	wordNumbers = 10

	// maximum images a block may declare and still fit its image
	// numbers inside the header region
	maxImagesInBlock = headerWords - wordNumbers

	// maximum samples a single block may declare; a header demanding
	// more is malformed, not a stream to allocate for
	maxBlockSamples = 1 << 31
)

// ErrTruncated reports a source that ended in the middle of a record
// (header or payload), as opposed to clean end of stream at a block
// boundary.
var ErrTruncated = errors.New("unexpected end of stream inside record")

// Stats counts what a Reader has consumed so far.
type Stats struct {
	Blocks uint64
	Bytes  uint64
}

// Reader decodes detector blocks from a byte stream. A Reader is not
// safe for concurrent use; the pipeline's decode loop owns it.
type Reader struct {
	br       *bufio.Reader
	files    []*os.File
	decoders []*zstd.Decoder

	header [headerBytes]byte
	stats  Stats
}

// NewReader decodes blocks from r.
func NewReader(r io.Reader) *Reader {
	return &Reader{br: bufio.NewReaderSize(r, 1<<16)}
}

// Open opens the named files as one logical stream, in order: a run
// split across sector files decodes exactly like a single concatenated
// file. A file ending in .zst, or every file when compression is
// "zstd", is decompressed transparently. Open fails on the first file
// that cannot be opened; nothing is retried.
func Open(paths []string, compression string) (*Reader, error) {
	if len(paths) == 0 {
		return nil, errors.New("no input files")
	}

	r := &Reader{}
	readers := make([]io.Reader, 0, len(paths))
	for _, path := range paths {
		f, err := os.Open(path)
		if err != nil {
			r.Close()
			return nil, fmt.Errorf("failed to open %s: %w", path, err)
		}
		r.files = append(r.files, f)

		var src io.Reader = f
		if compressed(path, compression) {
			dec, err := zstd.NewReader(f)
			if err != nil {
				r.Close()
				return nil, fmt.Errorf("failed to open zstd stream %s: %w", path, err)
			}
			r.decoders = append(r.decoders, dec)
			src = dec
		}
		readers = append(readers, src)
	}

	r.br = bufio.NewReaderSize(io.MultiReader(readers...), 1<<16)
	return r, nil
}

func compressed(path, compression string) bool {
	switch compression {
	case "zstd":
		return true
	case "none":
		return false
	default: // auto
		return strings.HasSuffix(path, ".zst")
	}
}

// Next decodes the next block. Clean end of stream at a block boundary
// returns the zero Block, which reads as a version-0 sentinel; the
// dispatch loop treats both the same way. A source that ends inside a
// header or payload yields ErrTruncated, never a silently short buffer.
func (r *Reader) Next() (types.Block, error) {
	if _, err := r.br.Peek(1); err != nil {
		if errors.Is(err, io.EOF) {
			return types.Block{}, nil
		}
		return types.Block{}, fmt.Errorf("failed to peek stream: %w", err)
	}

	header, err := r.readHeader()
	if err != nil {
		return types.Block{}, err
	}

	block := types.Block{Header: header}
	samples := header.PixelsPerImage() * int(header.ImagesInBlock)
	if samples > 0 {
		payload := make([]byte, samples*2)
		if _, err := io.ReadFull(r.br, payload); err != nil {
			if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
				return types.Block{}, fmt.Errorf("block payload: %w", ErrTruncated)
			}
			return types.Block{}, fmt.Errorf("failed to read block payload: %w", err)
		}
		r.stats.Bytes += uint64(len(payload))

		block.Data = make([]uint16, samples)
		for i := range block.Data {
			block.Data[i] = binary.LittleEndian.Uint16(payload[2*i:])
		}
	}

	r.stats.Blocks++
	return block, nil
}

// readHeader reads the fixed header region and maps its word offsets.
func (r *Reader) readHeader() (types.Header, error) {
	buf := r.header[:]
	if _, err := io.ReadFull(r.br, buf); err != nil {
		if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
			return types.Header{}, fmt.Errorf("block header: %w", ErrTruncated)
		}
		return types.Header{}, fmt.Errorf("failed to read block header: %w", err)
	}
	r.stats.Bytes += headerBytes

	word := func(i int) uint32 {
		return binary.LittleEndian.Uint32(buf[i*4:])
	}

	h := types.Header{
		ImagesInBlock: word(wordImages),
		Rows:          word(wordRows),
		Columns:       word(wordColumns),
		Version:       word(wordVersion),
		Timestamp:     word(wordTimestamp),
	}

	if h.ImagesInBlock > maxImagesInBlock {
		return types.Header{}, fmt.Errorf("header declares %d images, header region holds at most %d",
			h.ImagesInBlock, maxImagesInBlock)
	}
	// Two steps so the sample product cannot wrap 64 bits: rows and
	// columns are 32-bit words, and images is capped above.
	pixels := uint64(h.Rows) * uint64(h.Columns)
	if pixels > maxBlockSamples {
		return types.Header{}, fmt.Errorf("header declares %d pixels per image, limit is %d", pixels, uint64(maxBlockSamples))
	}
	if total := pixels * uint64(h.ImagesInBlock); total > maxBlockSamples {
		return types.Header{}, fmt.Errorf("header declares %d samples, limit is %d", total, uint64(maxBlockSamples))
	}

	h.ImageNumbers = make([]uint32, h.ImagesInBlock)
	for i := range h.ImageNumbers {
		h.ImageNumbers[i] = word(wordNumbers + i)
	}

	return h, nil
}

// Stats returns consumption counters for the stream so far.
func (r *Reader) Stats() Stats {
	return r.stats
}

// Close releases the underlying files, if the Reader owns any.
func (r *Reader) Close() error {
	for _, dec := range r.decoders {
		dec.Close()
	}
	var firstErr error
	for _, f := range r.files {
		if err := f.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	r.decoders = nil
	r.files = nil
	return firstErr
}
