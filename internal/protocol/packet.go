package protocol

import (
	"encoding/binary"
	"errors"
	"fmt"
)

// Packet layout (all integers little-endian):
//
//	0x22 0x21 | command id | 0x00 | length u16 | payload | crc8(payload) | 0xFF
//
// The firmware has been observed to omit or corrupt the trailing CRC and
// footer bytes while the payload remains usable, so Decode treats trailer
// problems as diagnostics rather than failures.

const (
	preamble0 = 0x22
	preamble1 = 0x21
	footer    = 0xFF

	headerLen  = 6 // preamble(2) + command(1) + reserved(1) + length(2)
	trailerLen = 2 // crc(1) + footer(1)

	// MaxPayload is the largest payload the u16 length field can declare.
	MaxPayload = 0xFFFF
)

var (
	ErrTooShort    = errors.New("frame too short for header")
	ErrBadPreamble = errors.New("frame does not start with 0x22 0x21")
)

// TruncatedError reports a frame whose declared payload did not fully
// arrive. The payload cannot be extracted.
type TruncatedError struct {
	Command  byte
	Declared int
	Got      int
}

func (e *TruncatedError) Error() string {
	return fmt.Sprintf("frame for command 0x%02X truncated: declared %d payload bytes, frame carries %d",
		e.Command, e.Declared, e.Got)
}

// Diag flags a non-fatal problem found while decoding a frame. The payload
// is still delivered; callers that need strict framing inspect these.
type Diag uint8

const (
	// DiagCRCMismatch: trailer present but the CRC byte does not match the payload.
	DiagCRCMismatch Diag = iota
	// DiagBadFooter: trailer present but the final byte is not 0xFF.
	DiagBadFooter
	// DiagShortTrailer: payload complete but CRC/footer bytes missing; no CRC check attempted.
	DiagShortTrailer
)

func (d Diag) String() string {
	switch d {
	case DiagCRCMismatch:
		return "crc mismatch"
	case DiagBadFooter:
		return "bad footer"
	case DiagShortTrailer:
		return "short trailer"
	default:
		return fmt.Sprintf("diag(%d)", uint8(d))
	}
}

// Frame is a decoded notification frame.
type Frame struct {
	Command byte
	Payload []byte
	Diags   []Diag
}

// ValidationError rejects malformed input before any I/O happens.
type ValidationError struct {
	Reason string
}

func (e *ValidationError) Error() string {
	return "validation: " + e.Reason
}

// Encode builds a complete command packet around payload.
func Encode(command byte, payload []byte) ([]byte, error) {
	if len(payload) > MaxPayload {
		return nil, &ValidationError{
			Reason: fmt.Sprintf("payload length %d exceeds %d bytes", len(payload), MaxPayload),
		}
	}

	pkt := make([]byte, 0, headerLen+len(payload)+trailerLen)
	pkt = append(pkt, preamble0, preamble1, command, 0x00)
	pkt = binary.LittleEndian.AppendUint16(pkt, uint16(len(payload)))
	pkt = append(pkt, payload...)
	pkt = append(pkt, CRC8(payload), footer)
	return pkt, nil
}

// Decode parses a notification frame. A fully-declared payload is always
// returned, even when the trailing CRC/footer bytes are missing or wrong;
// such problems are reported through Frame.Diags. Decode fails only when
// the header is unreadable or the payload itself is incomplete.
func Decode(data []byte) (*Frame, error) {
	if len(data) < headerLen {
		return nil, ErrTooShort
	}
	if data[0] != preamble0 || data[1] != preamble1 {
		return nil, ErrBadPreamble
	}

	command := data[2]
	length := int(binary.LittleEndian.Uint16(data[4:6]))
	payloadEnd := headerLen + length

	if len(data) < payloadEnd {
		return nil, &TruncatedError{
			Command:  command,
			Declared: length,
			Got:      len(data) - headerLen,
		}
	}

	f := &Frame{
		Command: command,
		Payload: data[headerLen:payloadEnd],
	}

	if len(data) >= payloadEnd+trailerLen {
		if data[payloadEnd] != CRC8(f.Payload) {
			f.Diags = append(f.Diags, DiagCRCMismatch)
		}
		if data[payloadEnd+1] != footer {
			f.Diags = append(f.Diags, DiagBadFooter)
		}
	} else {
		f.Diags = append(f.Diags, DiagShortTrailer)
	}

	return f, nil
}
