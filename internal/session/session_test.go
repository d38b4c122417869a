package session

import (
	"bytes"
	"errors"
	"sync"
	"testing"
	"time"

	"mxwprint/internal/ble"
	"mxwprint/internal/bitmap"
	"mxwprint/internal/notify"
	"mxwprint/internal/protocol"
)

// fakeTransport plays the printer: control writes are decoded and answered
// with canned notification frames on a separate goroutine, the way a BLE
// stack delivers them.
type fakeTransport struct {
	mu            sync.Mutex
	handler       func([]byte)
	controlWrites [][]byte
	dataWrites    [][]byte

	// replies maps command id to the reply payload; commands without an
	// entry go unanswered.
	replies map[byte][]byte
	// completion, when set, is sent as PRINT_COMPLETE after flush.
	completion []byte

	stopped      bool
	disconnected bool
}

func (f *fakeTransport) StartNotifications(handler func(data []byte)) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.handler = handler
	return nil
}

func (f *fakeTransport) StopNotifications() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.stopped = true
	return nil
}

func (f *fakeTransport) Disconnect() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.disconnected = true
	return nil
}

func (f *fakeTransport) WriteControl(pkt []byte) error {
	frame, err := protocol.Decode(pkt)
	if err != nil {
		return err
	}

	f.mu.Lock()
	f.controlWrites = append(f.controlWrites, pkt)
	f.mu.Unlock()

	switch frame.Command {
	case protocol.CmdFlush:
		if f.completion != nil {
			// The session sleeps a settle delay after flush before it
			// starts waiting; deliver well after that.
			f.reply(protocol.CmdPrintComplete, f.completion, 30*time.Millisecond)
		}
	default:
		if payload, ok := f.replies[frame.Command]; ok {
			f.reply(frame.Command, payload, 5*time.Millisecond)
		}
	}
	return nil
}

func (f *fakeTransport) WriteData(chunk []byte) error {
	c := make([]byte, len(chunk))
	copy(c, chunk)
	f.mu.Lock()
	f.dataWrites = append(f.dataWrites, c)
	f.mu.Unlock()
	return nil
}

func (f *fakeTransport) reply(command byte, payload []byte, delay time.Duration) {
	f.mu.Lock()
	handler := f.handler
	f.mu.Unlock()
	go func() {
		time.Sleep(delay)
		pkt, _ := protocol.Encode(command, payload)
		handler(pkt)
	}()
}

func (f *fakeTransport) dataWriteCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.dataWrites)
}

type fakeConnector struct {
	transport *fakeTransport
	err       error
}

func (c *fakeConnector) Connect() (Transport, error) {
	if c.err != nil {
		return nil, c.err
	}
	return c.transport, nil
}

func okStatusPayload() []byte {
	p := make([]byte, 13)
	p[6] = 0x00  // idle
	p[9] = 75    // battery
	p[12] = 0x00 // ok
	return p
}

func fastOptions() Options {
	return Options{
		Intensity:                0x5D,
		NotificationTimeout:      200 * time.Millisecond,
		CompletionBaseTimeout:    200 * time.Millisecond,
		CompletionLinesPerSecond: 1e6,
		PacingDelay:              time.Microsecond,
		SettleDelay:              time.Millisecond,
	}
}

func whiteJob(t *testing.T) *Job {
	t.Helper()
	rows := make([][]bool, 90)
	for i := range rows {
		rows[i] = make([]bool, bitmap.WidthPixels)
	}
	buf, err := bitmap.BuildBuffer(rows)
	if err != nil {
		t.Fatalf("BuildBuffer: %v", err)
	}
	job, err := NewJob(buf)
	if err != nil {
		t.Fatalf("NewJob: %v", err)
	}
	return job
}

func TestPrintHappyPath(t *testing.T) {
	ft := &fakeTransport{
		replies: map[byte][]byte{
			protocol.CmdGetStatus: okStatusPayload(),
			protocol.CmdPrint:     {0x00},
		},
		completion: []byte{0x00},
	}
	s := New(&fakeConnector{transport: ft}, fastOptions())

	job := whiteJob(t)
	result, err := s.Print(job)
	if err != nil {
		t.Fatalf("Print: %v", err)
	}

	if result.Stage != StageDone {
		t.Errorf("stage = %s, want done", result.Stage)
	}
	if !result.CompletionConfirmed {
		t.Error("completion should be confirmed")
	}
	if result.Status == nil || !result.Status.OK || result.Status.BatteryPercent != 75 {
		t.Errorf("status = %+v, want ok with battery 75", result.Status)
	}
	if result.LineCount != 90 {
		t.Errorf("line count = %d, want 90", result.LineCount)
	}

	// a 90-row all-white image streams as 90 zero chunks of 48 bytes
	if got := ft.dataWriteCount(); got != 90 {
		t.Errorf("data writes = %d, want 90", got)
	}
	for i, chunk := range ft.dataWrites {
		if !bytes.Equal(chunk, make([]byte, bitmap.WidthBytes)) {
			t.Fatalf("chunk %d = %x, want 48 zero bytes", i, chunk)
		}
	}

	if !ft.stopped || !ft.disconnected {
		t.Error("teardown did not run")
	}
}

func TestPrintRejected(t *testing.T) {
	ft := &fakeTransport{
		replies: map[byte][]byte{
			protocol.CmdGetStatus: okStatusPayload(),
			protocol.CmdPrint:     {0x01}, // declined
		},
	}
	s := New(&fakeConnector{transport: ft}, fastOptions())

	result, err := s.Print(whiteJob(t))

	var rerr *RejectedError
	if !errors.As(err, &rerr) {
		t.Fatalf("err = %v, want RejectedError", err)
	}
	if result.Stage != StageFailed || result.FailedAt != StagePrintRequest {
		t.Errorf("result = %+v, want failure at print request", result)
	}
	if got := ft.dataWriteCount(); got != 0 {
		t.Errorf("data writes = %d, want 0 (nothing streamed after rejection)", got)
	}
	if !ft.stopped || !ft.disconnected {
		t.Error("teardown did not run after rejection")
	}
}

func TestPrintEmptyRejectionPayload(t *testing.T) {
	ft := &fakeTransport{
		replies: map[byte][]byte{
			protocol.CmdGetStatus: okStatusPayload(),
			protocol.CmdPrint:     {},
		},
	}
	s := New(&fakeConnector{transport: ft}, fastOptions())

	_, err := s.Print(whiteJob(t))
	var rerr *RejectedError
	if !errors.As(err, &rerr) {
		t.Fatalf("err = %v, want RejectedError for empty reply", err)
	}
}

func TestPrintStatusTimeoutIsFatal(t *testing.T) {
	ft := &fakeTransport{
		replies: map[byte][]byte{
			protocol.CmdPrint: {0x00}, // GET_STATUS goes unanswered
		},
	}
	s := New(&fakeConnector{transport: ft}, fastOptions())

	result, err := s.Print(whiteJob(t))

	var terr *notify.TimeoutError
	if !errors.As(err, &terr) {
		t.Fatalf("err = %v, want TimeoutError", err)
	}
	if terr.Command != protocol.CmdGetStatus {
		t.Errorf("timed-out command = 0x%02X, want GET_STATUS", terr.Command)
	}
	if result.FailedAt != StageStatusCheck {
		t.Errorf("failed at %s, want status check", result.FailedAt)
	}
	if !ft.disconnected {
		t.Error("teardown did not run")
	}
}

func TestPrintBadStatusDoesNotAbort(t *testing.T) {
	errorStatus := make([]byte, 14)
	errorStatus[12] = 0x01
	errorStatus[13] = 0x09

	ft := &fakeTransport{
		replies: map[byte][]byte{
			protocol.CmdGetStatus: errorStatus,
			protocol.CmdPrint:     {0x00},
		},
		completion: []byte{0x00},
	}
	s := New(&fakeConnector{transport: ft}, fastOptions())

	result, err := s.Print(whiteJob(t))
	if err != nil {
		t.Fatalf("Print: %v", err)
	}
	if result.Stage != StageDone {
		t.Errorf("stage = %s, want done despite status error", result.Stage)
	}
	if result.Status == nil || result.Status.OK || result.Status.ErrorCode != 0x09 {
		t.Errorf("status = %+v, want error code 0x09", result.Status)
	}
}

func TestPrintShortStatusDoesNotAbort(t *testing.T) {
	ft := &fakeTransport{
		replies: map[byte][]byte{
			protocol.CmdGetStatus: {0x01, 0x02}, // too short to parse
			protocol.CmdPrint:     {0x00},
		},
		completion: []byte{0x00},
	}
	s := New(&fakeConnector{transport: ft}, fastOptions())

	result, err := s.Print(whiteJob(t))
	if err != nil {
		t.Fatalf("Print: %v", err)
	}
	if result.Status != nil {
		t.Errorf("status = %+v, want nil for unparseable payload", result.Status)
	}
	if result.Stage != StageDone {
		t.Errorf("stage = %s, want done", result.Stage)
	}
}

func TestPrintCompletionTimeoutIsSoft(t *testing.T) {
	ft := &fakeTransport{
		replies: map[byte][]byte{
			protocol.CmdGetStatus: okStatusPayload(),
			protocol.CmdPrint:     {0x00},
		},
		// no completion notification
	}
	s := New(&fakeConnector{transport: ft}, fastOptions())

	result, err := s.Print(whiteJob(t))
	if err != nil {
		t.Fatalf("Print: %v", err)
	}
	if result.Stage != StageDone {
		t.Errorf("stage = %s, want done", result.Stage)
	}
	if result.CompletionConfirmed {
		t.Error("completion should be unconfirmed")
	}
}

func TestPrintRequestTimeoutIsFatal(t *testing.T) {
	ft := &fakeTransport{
		replies: map[byte][]byte{
			protocol.CmdGetStatus: okStatusPayload(), // PRINT goes unanswered
		},
	}
	s := New(&fakeConnector{transport: ft}, fastOptions())

	result, err := s.Print(whiteJob(t))

	var terr *notify.TimeoutError
	if !errors.As(err, &terr) {
		t.Fatalf("err = %v, want TimeoutError", err)
	}
	if result.FailedAt != StagePrintRequest {
		t.Errorf("failed at %s, want print request", result.FailedAt)
	}
	if ft.dataWriteCount() != 0 {
		t.Error("no data should stream when the print request gets no reply")
	}
}

func TestPrintDiscoveryFailure(t *testing.T) {
	derr := &ble.DiscoveryError{Timeout: time.Second}
	s := New(&fakeConnector{err: derr}, fastOptions())

	result, err := s.Print(whiteJob(t))
	if !errors.Is(err, derr) {
		t.Fatalf("err = %v, want the discovery error", err)
	}
	if result.FailedAt != StageDiscovering {
		t.Errorf("failed at %s, want discovering", result.FailedAt)
	}
}

func TestStatusQuery(t *testing.T) {
	ft := &fakeTransport{
		replies: map[byte][]byte{
			protocol.CmdGetStatus: okStatusPayload(),
		},
	}
	s := New(&fakeConnector{transport: ft}, fastOptions())

	report, err := s.Status()
	if err != nil {
		t.Fatalf("Status: %v", err)
	}
	if !report.OK || report.BatteryPercent != 75 {
		t.Errorf("report = %+v, want ok with battery 75", report)
	}
	if !ft.stopped || !ft.disconnected {
		t.Error("teardown did not run")
	}
}

func TestFirmwareVersionQuery(t *testing.T) {
	ft := &fakeTransport{
		replies: map[byte][]byte{
			protocol.CmdGetVersion: []byte("1.0.7"),
		},
	}
	s := New(&fakeConnector{transport: ft}, fastOptions())

	version, err := s.FirmwareVersion()
	if err != nil {
		t.Fatalf("FirmwareVersion: %v", err)
	}
	if string(version) != "1.0.7" {
		t.Errorf("version = %q, want 1.0.7", version)
	}
}

func TestNewJobValidation(t *testing.T) {
	tests := []struct {
		name    string
		size    int
		wantErr bool
	}{
		{"minimum buffer", bitmap.MinDataBytes, false},
		{"larger buffer", 200 * bitmap.WidthBytes, false},
		{"not a row multiple", bitmap.MinDataBytes + 1, true},
		{"below device minimum", bitmap.WidthBytes, true},
		{"too many lines for u16", (protocol.MaxPayload + 1) * bitmap.WidthBytes, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewJob(make([]byte, tt.size))
			if tt.wantErr {
				var verr *bitmap.ValidationError
				if !errors.As(err, &verr) {
					t.Errorf("err = %v, want ValidationError", err)
				}
			} else if err != nil {
				t.Errorf("NewJob: %v", err)
			}
		})
	}
}
