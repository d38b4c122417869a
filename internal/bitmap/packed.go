// Packing of boolean pixel rows into the 1bpp buffer the MXW01 streams
// over its bulk data characteristic.

package bitmap

import "fmt"

const (
	// WidthPixels is the fixed print head width.
	WidthPixels = 384
	// WidthBytes is one packed row: 384 pixels at 1 bit per pixel.
	WidthBytes = WidthPixels / 8
	// MinDataBytes is the smallest buffer the device accepts; shorter
	// images are zero-padded up to 90 rows.
	MinDataBytes = 90 * WidthBytes
)

// ValidationError rejects rows of the wrong width before any encoding.
type ValidationError struct {
	Reason string
}

func (e *ValidationError) Error() string {
	return "validation: " + e.Reason
}

// EncodeRow packs 384 boolean pixels (true = printed/black) into 48 bytes.
// Bit 0 of each byte is the leftmost pixel of its 8-pixel group.
func EncodeRow(row []bool) ([]byte, error) {
	if len(row) != WidthPixels {
		return nil, &ValidationError{
			Reason: fmt.Sprintf("row must be %d pixels wide, got %d", WidthPixels, len(row)),
		}
	}

	packed := make([]byte, WidthBytes)
	for i, on := range row {
		if on {
			packed[i/8] |= 1 << (i % 8)
		}
	}
	return packed, nil
}

// BuildBuffer encodes rows in order and zero-pads the result to at least
// MinDataBytes. Padding is whole trailing bytes, never inserted mid-row.
func BuildBuffer(rows [][]bool) ([]byte, error) {
	size := len(rows) * WidthBytes
	if size < MinDataBytes {
		size = MinDataBytes
	}

	for y, row := range rows {
		if len(row) != WidthPixels {
			return nil, &ValidationError{
				Reason: fmt.Sprintf("row %d must be %d pixels wide, got %d", y, WidthPixels, len(row)),
			}
		}
	}

	buf := make([]byte, 0, size)
	for _, row := range rows {
		packed, _ := EncodeRow(row)
		buf = append(buf, packed...)
	}

	if pad := MinDataBytes - len(buf); pad > 0 {
		buf = append(buf, make([]byte, pad)...)
	}
	return buf, nil
}
