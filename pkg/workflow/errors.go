package workflow

import "errors"

var (
	// ErrExternalService wraps failures reported by the generation or submission services.
	ErrExternalService = errors.New("external service failure")

	// ErrInvalidCheckpoint indicates a verification confirmed while the application is not
	// waiting for it.
	ErrInvalidCheckpoint = errors.New("application is not waiting for this verification")

	// ErrUnknownVerification indicates a verification kind other than cv or message.
	ErrUnknownVerification = errors.New("unknown verification kind")

	// errRunMoved aborts a commit whose run changed status concurrently, usually a rollback.
	errRunMoved = errors.New("workflow run moved concurrently")
)

// IsValidationError reports whether err was caused by a request the caller can fix.
func IsValidationError(err error) bool {
	return errors.Is(err, ErrInvalidCheckpoint) || errors.Is(err, ErrUnknownVerification)
}
