// Package session drives one complete print attempt against an MXW01
// printer: discovery, connection, configuration, status check, print
// request, paced data streaming, flush and completion wait, with teardown
// guaranteed regardless of where the attempt stops.
package session

import (
	"fmt"
	"time"

	"go.uber.org/zap"
	"tinygo.org/x/bluetooth"

	"mxwprint/internal/ble"
	"mxwprint/internal/bitmap"
	"mxwprint/internal/protocol"
)

// Transport is the session's view of an established printer link. It is
// satisfied by *ble.Connection; tests substitute a fake.
type Transport interface {
	StartNotifications(handler func(data []byte)) error
	StopNotifications() error
	WriteControl(data []byte) error
	WriteData(data []byte) error
	Disconnect() error
}

// Connector establishes a Transport. Discovery and characteristic
// resolution failures surface as ble.DiscoveryError / ble.ConnectionError.
type Connector interface {
	Connect() (Transport, error)
}

// BluetoothConnector resolves an identifier and dials the device over the
// local adapter.
type BluetoothConnector struct {
	Adapter          *bluetooth.Adapter
	Identifier       string
	DiscoveryTimeout time.Duration
	Logger           *zap.Logger
}

func (c *BluetoothConnector) Connect() (Transport, error) {
	log := c.Logger
	if log == nil {
		log = zap.NewNop()
	}
	address, err := ble.Resolve(c.Adapter, c.Identifier, c.DiscoveryTimeout, log)
	if err != nil {
		return nil, err
	}
	conn, err := ble.Connect(c.Adapter, address, log)
	if err != nil {
		return nil, err
	}
	return conn, nil
}

// RejectedError: the device explicitly declined the print request. No
// image data has been streamed.
type RejectedError struct {
	Payload []byte
}

func (e *RejectedError) Error() string {
	return fmt.Sprintf("printer rejected print request, reply payload %x", e.Payload)
}

// Options carry the session's tuning knobs. Zero values fall back to the
// device's known-good defaults.
type Options struct {
	Intensity                byte
	NotificationTimeout      time.Duration
	CompletionBaseTimeout    time.Duration
	CompletionLinesPerSecond float64
	PacingDelay              time.Duration
	SettleDelay              time.Duration
	Logger                   *zap.Logger
}

const (
	DefaultIntensity                = 0x5D
	DefaultNotificationTimeout      = 7 * time.Second
	DefaultCompletionBaseTimeout    = 15 * time.Second
	DefaultCompletionLinesPerSecond = 15.0
	DefaultPacingDelay              = 15 * time.Millisecond
	DefaultSettleDelay              = 100 * time.Millisecond
	DefaultDiscoveryTimeout         = 10 * time.Second
)

// withDefaults fills unset durations and the logger. Intensity is left
// alone: zero is a valid (lightest) setting, so its default lives in the
// config layer.
func (o Options) withDefaults() Options {
	if o.NotificationTimeout == 0 {
		o.NotificationTimeout = DefaultNotificationTimeout
	}
	if o.CompletionBaseTimeout == 0 {
		o.CompletionBaseTimeout = DefaultCompletionBaseTimeout
	}
	if o.CompletionLinesPerSecond == 0 {
		o.CompletionLinesPerSecond = DefaultCompletionLinesPerSecond
	}
	if o.PacingDelay == 0 {
		o.PacingDelay = DefaultPacingDelay
	}
	if o.SettleDelay == 0 {
		o.SettleDelay = DefaultSettleDelay
	}
	if o.Logger == nil {
		o.Logger = zap.NewNop()
	}
	return o
}

// Job is one prepared print: an encoded 1bpp buffer plus mode.
type Job struct {
	Buffer []byte
	Mode   byte
}

// NewJob validates an encoded image buffer. The buffer must be whole
// 48-byte rows, at least the device minimum, and short enough for the
// print request's u16 line count.
func NewJob(buffer []byte) (*Job, error) {
	if len(buffer)%bitmap.WidthBytes != 0 {
		return nil, &bitmap.ValidationError{
			Reason: fmt.Sprintf("buffer length %d is not a multiple of %d-byte rows", len(buffer), bitmap.WidthBytes),
		}
	}
	if len(buffer) < bitmap.MinDataBytes {
		return nil, &bitmap.ValidationError{
			Reason: fmt.Sprintf("buffer length %d below device minimum %d", len(buffer), bitmap.MinDataBytes),
		}
	}
	if lines := len(buffer) / bitmap.WidthBytes; lines > protocol.MaxPayload {
		return nil, &bitmap.ValidationError{
			Reason: fmt.Sprintf("image is %d lines tall, print request carries at most %d", lines, protocol.MaxPayload),
		}
	}
	return &Job{Buffer: buffer, Mode: protocol.ModeMonochrome}, nil
}

// LineCount is the number of printed rows the buffer encodes.
func (j *Job) LineCount() int {
	return len(j.Buffer) / bitmap.WidthBytes
}

// Result reports how far a session got and what the device said.
type Result struct {
	Stage    Stage // StageDone or StageFailed
	FailedAt Stage // meaningful only when Stage == StageFailed

	// Status is the parsed GET_STATUS reply, nil when it couldn't be
	// parsed. A not-OK status does not abort the session.
	Status *protocol.StatusReport

	// CompletionConfirmed distinguishes "device reported the job
	// physically finished" from "job accepted and fully transmitted but
	// the completion notification never arrived".
	CompletionConfirmed bool

	LineCount int
}

// Session owns a Connector and runs at most one operation at a time over
// a connection built fresh per call.
type Session struct {
	connector Connector
	opts      Options
	log       *zap.Logger
}

func New(connector Connector, opts Options) *Session {
	opts = opts.withDefaults()
	return &Session{
		connector: connector,
		opts:      opts,
		log:       opts.Logger,
	}
}
