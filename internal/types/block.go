package types

// Header describes one block of the detector stream. On the wire it
// occupies a fixed region of 1024 little-endian 4-byte words; version 0
// is reserved as the end-of-stream sentinel.
type Header struct {
	// ImagesInBlock is the number of raw images bundled in the block
	ImagesInBlock uint32
	// Rows and Columns are the detector grid dimensions, shared by
	// every image in the block
	Rows    uint32
	Columns uint32
	// Version is the stream protocol tag; 0 marks end of stream
	Version uint32
	// Timestamp is the instrument timestamp word
	Timestamp uint32
	// ImageNumbers holds the global 1-based image identifiers, one per
	// image in block order (len == ImagesInBlock)
	ImageNumbers []uint32
}

// PixelsPerImage returns the per-image sample count, rows*columns.
func (h Header) PixelsPerImage() int {
	return int(h.Rows) * int(h.Columns)
}

// Block is one decoded unit of the stream: a header plus the raw uint16
// samples of every image, image-major then row-major. A block's buffer
// is owned by exactly one pipeline task after dispatch.
type Block struct {
	Header Header
	Data   []uint16
}

// EndOfStream reports whether the block terminates the stream. Both the
// zero Block returned at clean EOF and an explicit sentinel block carry
// version 0.
func (b Block) EndOfStream() bool {
	return b.Header.Version == 0
}

// ImageIntensity is the pair of integrated intensities computed for one
// image, keyed by its global 1-based image number.
type ImageIntensity struct {
	ImageNumber uint32
	Bright      uint64
	Dark        uint64
}

// Fields holds the two aggregated output images of a run: per scan
// position (imageNumber-1), the integrated bright-field and dark-field
// intensity. Both arrays are width*height and written only by the
// single-threaded scatter phase.
type Fields struct {
	Width  int
	Height int
	Bright []uint64
	Dark   []uint64
	// TraceID tags the run that produced the fields, for log and
	// message correlation
	TraceID string
}

// NewFields allocates zeroed bright/dark arrays for a width x height
// scan grid.
func NewFields(width, height int) *Fields {
	n := width * height
	return &Fields{
		Width:  width,
		Height: height,
		Bright: make([]uint64, n),
		Dark:   make([]uint64, n),
	}
}
