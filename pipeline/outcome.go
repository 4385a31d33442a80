package pipeline

import (
	"fmt"

	"github.com/pithecene-io/dbviz/types"
)

// Exit codes of the converter contract.
const (
	ExitCodeCompleted    = 0 // conversion finished (possibly partial)
	ExitCodeError        = 1 // conversion error reported in the result frame
	ExitCodeCrash        = 2 // converter crash
	ExitCodeInvalidInput = 3 // invalid request
)

// classifyExit maps a converter exit to a transfer result.
//
// The exit code is authoritative for the outcome category. The result
// frame only supplies detail (message, error type, causes) and upgrades a
// clean exit to partial when it says so.
func classifyExit(exitCode int, frame *types.ConversionResultFrame, stderr string) (Result, error) {
	var message string
	var errType string
	var causes []string
	if frame != nil {
		if frame.Outcome.Message != nil {
			message = *frame.Outcome.Message
		}
		if frame.Outcome.ErrorType != nil {
			errType = *frame.Outcome.ErrorType
		}
		causes = frame.Outcome.Causes
	}

	switch exitCode {
	case ExitCodeCompleted:
		res := Result{Message: message}
		if frame != nil && frame.Outcome.Status == types.ConversionPartial {
			res.Partial = true
		}
		return res, nil

	case ExitCodeError:
		if frame == nil {
			return Result{}, &TransferError{
				Kind:    KindCrash,
				Message: "converter exited with error without result frame",
				Stderr:  stderr,
			}
		}
		if message == "" {
			message = "conversion error"
		}
		return Result{}, &TransferError{
			Kind:    errorKind(errType),
			Message: message,
			Causes:  causes,
		}

	case ExitCodeCrash:
		return Result{}, &TransferError{
			Kind:    KindCrash,
			Message: "converter crashed",
			Causes:  causes,
			Stderr:  stderr,
		}

	case ExitCodeInvalidInput:
		if message == "" {
			message = "converter rejected invalid input"
		}
		return Result{}, &TransferError{
			Kind:    KindInvalidInput,
			Message: message,
			Stderr:  stderr,
		}

	default:
		return Result{}, &TransferError{
			Kind:    KindCrash,
			Message: fmt.Sprintf("converter exited with unexpected code %d", exitCode),
			Stderr:  stderr,
		}
	}
}

func errorKind(errType string) TransferErrorKind {
	switch errType {
	case types.ErrorTypeUnknownType:
		return KindUnknownType
	case types.ErrorTypeInvalidData:
		return KindInvalidData
	default:
		return KindModule
	}
}
