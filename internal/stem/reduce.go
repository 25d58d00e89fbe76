package stem

import "github.com/visiona/stemd/internal/types"

// CalculateIntensity integrates one image's samples over the bright and
// dark masks. data is the block's full sample buffer; the image occupies
// pixels samples starting at offset. Safe for concurrent use from
// independent tasks: it only reads data and the shared masks.
func CalculateIntensity(data []uint16, offset, pixels int, bright, dark *Mask, imageNumber uint32) types.ImageIntensity {
	out := types.ImageIntensity{ImageNumber: imageNumber}
	for i := 0; i < pixels; i++ {
		v := uint64(data[offset+i])
		if bright.Selected(i) {
			out.Bright += v
		}
		if dark.Selected(i) {
			out.Dark += v
		}
	}
	return out
}
