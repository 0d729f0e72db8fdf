// Package ingesterr classifies the error kinds named in the core's
// error handling design: which are fatal at startup, which are
// per-camera and recoverable, and which are per-frame and recoverable.
package ingesterr

import "errors"

// Kind classifies an error for logging severity and propagation
// policy. It does not replace Go's error wrapping — errors still wrap
// with %w and are tested with errors.Is/errors.As; Kind is attached
// for routing decisions (fatal-at-startup vs. logged-and-continue).
type Kind int

const (
	// KindConfig: missing/invalid camera config, zero cameras. Fatal
	// at startup.
	KindConfig Kind = iota
	// KindResource: buffer allocation failure, goroutine/thread spawn
	// failure, CPU affinity failure. Fatal.
	KindResource
	// KindNetwork: per-camera, recoverable (retry with backoff) or
	// fatal (marks the worker failed) depending on persistence.
	KindNetwork
	// KindDecode: per-frame, recoverable — recycle the buffer and
	// continue.
	KindDecode
	// KindProtocol: unexpected timestamp regression within one
	// camera's stream, or a buffer size mismatch. Fatal.
	KindProtocol
)

func (k Kind) String() string {
	switch k {
	case KindConfig:
		return "config"
	case KindResource:
		return "resource"
	case KindNetwork:
		return "network"
	case KindDecode:
		return "decode"
	case KindProtocol:
		return "protocol"
	default:
		return "unknown"
	}
}

// Error wraps an underlying error with a Kind and the camera it
// pertains to, if any.
type Error struct {
	Kind     Kind
	CameraID string // empty for non-per-camera errors
	Err      error
}

func (e *Error) Error() string {
	if e.CameraID != "" {
		return e.Kind.String() + " error (camera " + e.CameraID + "): " + e.Err.Error()
	}
	return e.Kind.String() + " error: " + e.Err.Error()
}

func (e *Error) Unwrap() error { return e.Err }

// New wraps err with kind and no camera association.
func New(kind Kind, err error) error {
	return &Error{Kind: kind, Err: err}
}

// NewForCamera wraps err with kind and the camera it pertains to.
func NewForCamera(kind Kind, cameraID string, err error) error {
	return &Error{Kind: kind, CameraID: cameraID, Err: err}
}

// Fatal reports whether errors of this kind must abort the run
// (config, resource, protocol) rather than be logged and continued
// (network retries, per-frame decode failures).
func (k Kind) Fatal() bool {
	switch k {
	case KindConfig, KindResource, KindProtocol:
		return true
	default:
		return false
	}
}

// As is a thin re-export so callers classifying an error don't need a
// second import of "errors" alongside this package.
func As(err error, target any) bool { return errors.As(err, target) }
