package stem

import "testing"

func TestCalculateIntensityAllSelected(t *testing.T) {
	bright := NewAnnularMask(2, 2, 0, 288)
	dark := NewAnnularMask(2, 2, 40, 288)
	data := []uint16{100, 100, 100, 100}

	got := CalculateIntensity(data, 0, 4, bright, dark, 1)
	if got.ImageNumber != 1 {
		t.Errorf("image number = %d, want 1", got.ImageNumber)
	}
	if got.Bright != 400 {
		t.Errorf("bright = %d, want 400", got.Bright)
	}
	if got.Dark != 0 {
		t.Errorf("dark = %d, want 0", got.Dark)
	}
}

func TestCalculateIntensityOffset(t *testing.T) {
	bright := NewAnnularMask(2, 2, 0, 288)
	dark := NewAnnularMask(2, 2, 40, 288)
	// Two images share one buffer; the second starts at offset 4 and
	// must not see the first image's samples.
	data := []uint16{9, 9, 9, 9, 1, 2, 3, 4}

	got := CalculateIntensity(data, 4, 4, bright, dark, 7)
	if got.ImageNumber != 7 {
		t.Errorf("image number = %d, want 7", got.ImageNumber)
	}
	if got.Bright != 10 {
		t.Errorf("bright = %d, want 10", got.Bright)
	}
}

func TestCalculateIntensityPartialMasks(t *testing.T) {
	bright := NewAnnularMask(4, 4, 0, 1) // center pixel, index 10
	dark := NewAnnularMask(4, 4, 1, 2)   // the eight pixels at d2 1 and 2

	data := make([]uint16, 16)
	for i := range data {
		data[i] = uint16(i)
	}

	got := CalculateIntensity(data, 0, 16, bright, dark, 3)
	if got.Bright != 10 {
		t.Errorf("bright = %d, want 10", got.Bright)
	}
	// indices 5, 6, 7, 9, 11, 13, 14, 15 sum to 80
	if got.Dark != 80 {
		t.Errorf("dark = %d, want 80", got.Dark)
	}
}

func TestCalculateIntensityDoesNotOverflow16Bits(t *testing.T) {
	bright := NewAnnularMask(2, 2, 0, 288)
	dark := NewAnnularMask(2, 2, 40, 288)
	data := []uint16{65535, 65535, 65535, 65535}

	got := CalculateIntensity(data, 0, 4, bright, dark, 1)
	if want := uint64(4 * 65535); got.Bright != want {
		t.Errorf("bright = %d, want %d", got.Bright, want)
	}
}
