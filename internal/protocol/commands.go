package protocol

import "encoding/binary"

// MXW01 command ids. The device replies to a command write with a
// notification carrying the same id; PRINT_COMPLETE is notify-only.
const (
	CmdGetStatus     = 0xA1
	CmdSetIntensity  = 0xA2
	CmdPrint         = 0xA9
	CmdPrintComplete = 0xAA
	CmdBatteryLevel  = 0xAB
	CmdFlush         = 0xAD
	CmdGetVersion    = 0xB1
)

// Print modes for the PRINT command.
const (
	ModeMonochrome = 0x00 // 1 bit per pixel
	ModeGrayscale  = 0x02 // 4 bits per pixel, unused here
)

func StatusRequest() ([]byte, error) {
	return Encode(CmdGetStatus, []byte{0x00})
}

func SetIntensity(intensity byte) ([]byte, error) {
	return Encode(CmdSetIntensity, []byte{intensity})
}

// PrintRequest announces lineCount rows of image data in the given mode.
// The 0x30 byte is fixed in the A9 payload format.
func PrintRequest(lineCount uint16, mode byte) ([]byte, error) {
	payload := binary.LittleEndian.AppendUint16(nil, lineCount)
	payload = append(payload, 0x30, mode)
	return Encode(CmdPrint, payload)
}

func Flush() ([]byte, error) {
	return Encode(CmdFlush, []byte{0x00})
}

func VersionRequest() ([]byte, error) {
	return Encode(CmdGetVersion, []byte{0x00})
}
