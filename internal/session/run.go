package session

import (
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"mxwprint/internal/ble"
	"mxwprint/internal/bitmap"
	"mxwprint/internal/notify"
	"mxwprint/internal/protocol"
)

// Print runs the full state machine for one job. The returned Result is
// always non-nil and reports the stage reached; teardown has already run
// by the time any error surfaces.
func (s *Session) Print(job *Job) (*Result, error) {
	result := &Result{Stage: StageFailed, LineCount: job.LineCount()}

	r, err := s.open(result)
	if err != nil {
		return result, err
	}
	defer r.teardown()
	r.job = job

	steps := []struct {
		stage Stage
		fn    func() error
	}{
		{StageConfiguring, r.configure},
		{StageStatusCheck, r.checkStatus},
		{StagePrintRequest, r.requestPrint},
		{StageStreaming, r.stream},
		{StageFlushing, r.flush},
		{StageAwaitingCompletion, r.awaitCompletion},
	}
	for _, step := range steps {
		if err := step.fn(); err != nil {
			result.FailedAt = step.stage
			return result, err
		}
	}

	result.Stage = StageDone
	return result, nil
}

// Status connects, queries GET_STATUS and tears down without printing.
func (s *Session) Status() (*protocol.StatusReport, error) {
	result := &Result{Stage: StageFailed}
	r, err := s.open(result)
	if err != nil {
		return nil, err
	}
	defer r.teardown()

	payload, err := r.command(protocol.CmdGetStatus, protocol.StatusRequest)
	if err != nil {
		return nil, err
	}
	return protocol.ParseStatus(payload)
}

// FirmwareVersion connects, queries GET_VERSION and tears down. The reply
// payload is returned as the device sends it.
func (s *Session) FirmwareVersion() ([]byte, error) {
	result := &Result{Stage: StageFailed}
	r, err := s.open(result)
	if err != nil {
		return nil, err
	}
	defer r.teardown()

	return r.command(protocol.CmdGetVersion, protocol.VersionRequest)
}

// run holds the state of one connected attempt. The registry is built
// fresh here so no notification state leaks between sessions.
type run struct {
	s        *Session
	log      *zap.Logger
	t        Transport
	registry *notify.Registry
	job      *Job
	result   *Result
}

// open performs the Discovering, Connecting, ResolvingCharacteristics and
// NotifyingEnabled stages, tagging the result with the stage that failed.
func (s *Session) open(result *Result) (*run, error) {
	transport, err := s.connector.Connect()
	if err != nil {
		result.FailedAt = connectStage(err)
		s.log.Error("couldn't establish printer link",
			zap.Stringer("stage", result.FailedAt),
			zap.Error(err),
		)
		return nil, err
	}

	r := &run{
		s:        s,
		log:      s.log,
		t:        transport,
		registry: notify.NewRegistry(),
		result:   result,
	}

	if err := transport.StartNotifications(r.receive); err != nil {
		result.FailedAt = StageNotifyingEnabled
		r.teardown()
		return nil, err
	}
	return r, nil
}

// connectStage maps a Connector error to the state-machine stage it
// belongs to.
func connectStage(err error) Stage {
	var derr *ble.DiscoveryError
	if errors.As(err, &derr) {
		return StageDiscovering
	}
	var cerr *ble.ConnectionError
	if errors.As(err, &cerr) && cerr.Op != "connect" {
		return StageResolvingCharacteristics
	}
	return StageConnecting
}

// receive runs on the transport's notification goroutine. It only decodes
// and records; anything blocking here would deadlock the delivery path.
func (r *run) receive(data []byte) {
	frame, err := protocol.Decode(data)
	if err != nil {
		var terr *protocol.TruncatedError
		if errors.As(err, &terr) {
			r.log.Warn("notification frame truncated", zap.Error(err))
		} else {
			// Not an MXW01 frame at all; some stacks deliver stray data.
			r.log.Debug("ignoring unrecognised notification", zap.String("data", fmt.Sprintf("%x", data)))
		}
		return
	}

	for _, d := range frame.Diags {
		r.log.Warn("notification frame diagnostic",
			zap.Stringer("diag", d),
			zap.String("command", fmt.Sprintf("0x%02X", frame.Command)),
			zap.String("payload", fmt.Sprintf("%x", frame.Payload)),
		)
	}

	// The BLE stack may reuse the buffer after the callback returns.
	payload := make([]byte, len(frame.Payload))
	copy(payload, frame.Payload)
	r.registry.Record(frame.Command, payload)
}

// command writes a control packet and waits for its reply notification.
func (r *run) command(id byte, build func() ([]byte, error)) ([]byte, error) {
	pkt, err := build()
	if err != nil {
		return nil, err
	}
	if err := r.t.WriteControl(pkt); err != nil {
		return nil, err
	}
	return r.registry.AwaitOne(id, r.s.opts.NotificationTimeout)
}

// configure sets print intensity. Fire and forget; the device sends no
// reply for A2.
func (r *run) configure() error {
	pkt, err := protocol.SetIntensity(r.s.opts.Intensity)
	if err != nil {
		return err
	}
	if err := r.t.WriteControl(pkt); err != nil {
		return err
	}
	r.log.Debug("intensity set", zap.Uint8("intensity", r.s.opts.Intensity))
	time.Sleep(r.s.opts.SettleDelay)
	return nil
}

// checkStatus queries GET_STATUS. A missing reply is fatal; a reply that
// reports a device error or cannot be parsed is logged and the session
// continues, since the device may still accept the print.
func (r *run) checkStatus() error {
	payload, err := r.command(protocol.CmdGetStatus, protocol.StatusRequest)
	if err != nil {
		return err
	}

	report, err := protocol.ParseStatus(payload)
	if err != nil {
		r.log.Warn("status reply not fully parseable", zap.Error(err))
		return nil
	}
	r.result.Status = report

	if report.OK {
		r.log.Info("printer status ok",
			zap.String("state", fmt.Sprintf("0x%02X", report.State)),
			zap.Uint8("battery", report.BatteryPercent),
		)
	} else {
		r.log.Error("printer reports an error state, attempting print anyway",
			zap.String("errorCode", fmt.Sprintf("0x%02X", report.ErrorCode)),
		)
	}
	return nil
}

// requestPrint announces the job. A rejection or a missing reply aborts
// the session before any image data is streamed.
func (r *run) requestPrint() error {
	lineCount := r.job.LineCount()
	r.log.Info("requesting print", zap.Int("lines", lineCount))

	payload, err := r.command(protocol.CmdPrint, func() ([]byte, error) {
		return protocol.PrintRequest(uint16(lineCount), r.job.Mode)
	})
	if err != nil {
		return err
	}

	if len(payload) == 0 || payload[0] != 0 {
		return &RejectedError{Payload: payload}
	}
	r.log.Debug("print request accepted")
	return nil
}

// stream writes the buffer one 48-byte row at a time with a pacing delay
// after each write. The device offers no flow control; the delay is the
// only backpressure, and ordering must hold.
func (r *run) stream() error {
	buf := r.job.Buffer
	total := len(buf) / bitmap.WidthBytes
	r.log.Info("streaming image data", zap.Int("bytes", len(buf)), zap.Int("chunks", total))

	for i := 0; i < len(buf); i += bitmap.WidthBytes {
		if err := r.t.WriteData(buf[i : i+bitmap.WidthBytes]); err != nil {
			return err
		}
		time.Sleep(r.s.opts.PacingDelay)

		if n := i/bitmap.WidthBytes + 1; n%50 == 0 || n == total {
			r.log.Debug("sent chunk", zap.Int("chunk", n), zap.Int("of", total))
		}
	}
	return nil
}

func (r *run) flush() error {
	pkt, err := protocol.Flush()
	if err != nil {
		return err
	}
	if err := r.t.WriteControl(pkt); err != nil {
		return err
	}
	time.Sleep(r.s.opts.SettleDelay)
	return nil
}

// awaitCompletion waits for PRINT_COMPLETE with an allowance that scales
// with job size, since physical printing time is proportional to line
// count. A timeout here is soft: the job was accepted and fully
// transmitted, so the session still counts as done, just unconfirmed.
func (r *run) awaitCompletion() error {
	lineCount := r.job.LineCount()
	allowance := time.Duration(float64(lineCount) / r.s.opts.CompletionLinesPerSecond * float64(time.Second))
	timeout := r.s.opts.CompletionBaseTimeout + allowance

	r.log.Info("waiting for print completion", zap.Duration("timeout", timeout))
	payload, err := r.registry.AwaitOne(protocol.CmdPrintComplete, timeout)
	if err != nil {
		var terr *notify.TimeoutError
		if errors.As(err, &terr) {
			r.log.Warn("completion unconfirmed: no PRINT_COMPLETE within timeout, job was accepted and fully transmitted")
			r.result.CompletionConfirmed = false
			return nil
		}
		return err
	}

	r.log.Info("print complete", zap.String("payload", fmt.Sprintf("%x", payload)))
	r.result.CompletionConfirmed = true
	return nil
}

// teardown always runs, whatever stage the session reached. Failures here
// are logged, never raised over a pending session error.
func (r *run) teardown() {
	if err := r.t.StopNotifications(); err != nil {
		r.log.Warn("couldn't stop notifications during teardown", zap.Error(err))
	}
	if err := r.t.Disconnect(); err != nil {
		r.log.Warn("couldn't disconnect during teardown", zap.Error(err))
	}
}
