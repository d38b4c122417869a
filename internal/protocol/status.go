package protocol

import "fmt"

// StatusReport is the parsed GET_STATUS (A1) reply.
//
// Known payload offsets: byte 6 device state, byte 9 battery percent,
// byte 12 ok flag (0 = ok), byte 13 error code (meaningful only when the
// ok flag is non-zero and the payload is long enough to carry it).
type StatusReport struct {
	OK             bool
	State          byte
	BatteryPercent byte
	ErrorCode      byte
}

const statusMinLen = 13

// ShortStatusError reports an A1 payload too short to parse fully. It is a
// warning condition: the session logs it and carries on.
type ShortStatusError struct {
	Len int
}

func (e *ShortStatusError) Error() string {
	return fmt.Sprintf("status payload too short to parse: %d bytes, need %d", e.Len, statusMinLen)
}

// ParseStatus decodes an A1 reply payload.
func ParseStatus(payload []byte) (*StatusReport, error) {
	if len(payload) < statusMinLen {
		return nil, &ShortStatusError{Len: len(payload)}
	}

	r := &StatusReport{
		OK:             payload[12] == 0,
		State:          payload[6],
		BatteryPercent: payload[9],
	}
	if !r.OK && len(payload) >= 14 {
		r.ErrorCode = payload[13]
	}
	return r, nil
}
