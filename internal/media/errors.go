package media

import "errors"

var (
	// ErrPermissionDenied indicates the device permission for a capture was not granted.
	ErrPermissionDenied = errors.New("device permission denied")
	// ErrCapture indicates the camera or microphone failed while capturing.
	ErrCapture = errors.New("capture failed")
	// ErrEmptyCapture indicates capture finished without producing a sample.
	ErrEmptyCapture = errors.New("capture produced no sample")
	// ErrNetwork indicates the upload could not complete (timeout, transport, or HTTP status).
	ErrNetwork = errors.New("upload request failed")
	// ErrResponseParse indicates a structured response carried no usable message.
	ErrResponseParse = errors.New("response could not be parsed")
	// ErrPlayback indicates an audio response could not be played.
	ErrPlayback = errors.New("audio playback failed")
)

// Failure names one entry of the pipeline error taxonomy.
type Failure string

const (
	FailureNone             Failure = ""
	FailurePermissionDenied Failure = "permission_denied"
	FailureCapture          Failure = "capture_error"
	FailureEmptyCapture     Failure = "empty_capture"
	FailureNetwork          Failure = "network_error"
	FailureResponseParse    Failure = "response_parse_error"
	FailurePlayback         Failure = "playback_error"
	FailureUnknown          Failure = "unknown"
)

// FailureOf maps an error onto the taxonomy. Nil maps to FailureNone.
func FailureOf(err error) Failure {
	switch {
	case err == nil:
		return FailureNone
	case errors.Is(err, ErrPermissionDenied):
		return FailurePermissionDenied
	case errors.Is(err, ErrEmptyCapture):
		return FailureEmptyCapture
	case errors.Is(err, ErrCapture):
		return FailureCapture
	case errors.Is(err, ErrNetwork):
		return FailureNetwork
	case errors.Is(err, ErrResponseParse):
		return FailureResponseParse
	case errors.Is(err, ErrPlayback):
		return FailurePlayback
	default:
		return FailureUnknown
	}
}
