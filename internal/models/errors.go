package models

// SyncError is a domain error whose message is safe to return to
// clients.
type SyncError struct {
	Message string
}

func (e SyncError) Error() string {
	return e.Message
}

var (
	ErrAccountNotFound       = SyncError{"account code not found"}
	ErrDeviceNotFound        = SyncError{"device not found"}
	ErrDeviceLimitExceeded   = SyncError{"device limit reached (max 10 devices per account)"}
	ErrAccountCreationFailed = SyncError{"could not generate a unique account code"}
)

// ValidationError marks a malformed or incomplete request. Never
// retried automatically.
type ValidationError struct {
	Message string
}

func (e ValidationError) Error() string {
	return e.Message
}

// NewValidationError builds a ValidationError with the given message.
func NewValidationError(msg string) ValidationError {
	return ValidationError{Message: msg}
}
