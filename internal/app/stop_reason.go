package app

// StopReason is used for structured shutdown tracing.
type StopReason string

const (
	StopUnknown     StopReason = "unknown"
	StopSignal      StopReason = "signal"
	StopFatalError  StopReason = "fatal_error"
	StopStartFailed StopReason = "start_failed"
)
