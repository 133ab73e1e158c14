package predict

import "fmt"

// ErrorCode 预测管线的稳定错误码，API层据此映射HTTP状态
type ErrorCode string

const (
	CodeEmptyDataset              ErrorCode = "EmptyDataset"
	CodeProcessExecutionFailed    ErrorCode = "ProcessExecutionFailed"
	CodeProcessTimeout            ErrorCode = "ProcessTimeout"
	CodeUnrecoverableOutput       ErrorCode = "UnrecoverableOutput"
	CodeMalformedPredictionResult ErrorCode = "MalformedPredictionResult"
	CodePersistenceFailed         ErrorCode = "PersistenceFailed"
)

// Error is the single failure type emitted by a pipeline run.
// Detail carries diagnostics (stderr, raw output excerpt); EntryIndex is the
// 1-based index of the first failing entry for PersistenceFailed.
type Error struct {
	Code       ErrorCode
	Message    string
	Detail     string
	EntryIndex int
	Err        error
}

func (e *Error) Error() string {
	if e.Detail != "" {
		return fmt.Sprintf("%s: %s: %s", e.Code, e.Message, e.Detail)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *Error) Unwrap() error { return e.Err }

// AsError returns err as a pipeline *Error, or nil if it is not one
func AsError(err error) *Error {
	if pe, ok := err.(*Error); ok {
		return pe
	}
	return nil
}
