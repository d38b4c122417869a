package session

// Stage identifies one step of the print session's state machine. Every
// stage can transition to StageFailed; the happy path runs them in order.
type Stage int

const (
	StageDiscovering Stage = iota
	StageConnecting
	StageResolvingCharacteristics
	StageNotifyingEnabled
	StageConfiguring
	StageStatusCheck
	StagePrintRequest
	StageStreaming
	StageFlushing
	StageAwaitingCompletion
	StageDone
	StageFailed
)

func (s Stage) String() string {
	switch s {
	case StageDiscovering:
		return "discovering"
	case StageConnecting:
		return "connecting"
	case StageResolvingCharacteristics:
		return "resolving characteristics"
	case StageNotifyingEnabled:
		return "enabling notifications"
	case StageConfiguring:
		return "configuring"
	case StageStatusCheck:
		return "status check"
	case StagePrintRequest:
		return "print request"
	case StageStreaming:
		return "streaming"
	case StageFlushing:
		return "flushing"
	case StageAwaitingCompletion:
		return "awaiting completion"
	case StageDone:
		return "done"
	case StageFailed:
		return "failed"
	default:
		return "unknown"
	}
}
