package errors

import "fmt"

// ErrorCode represents a sync error code.
type ErrorCode string

const (
	ErrInvalidRequest     ErrorCode = "INVALID_REQUEST"     // 400
	ErrAuthFailed         ErrorCode = "AUTH_FAILED"         // 401
	ErrPermissionDenied   ErrorCode = "PERMISSION_DENIED"   // 403
	ErrNotFound           ErrorCode = "NOT_FOUND"           // 404
	ErrSyncBusy           ErrorCode = "SYNC_BUSY"           // 409
	ErrInternal           ErrorCode = "INTERNAL"            // 500
	ErrPersistFailed      ErrorCode = "PERSIST_FAILED"      // 500
	ErrChannelUnreachable ErrorCode = "CHANNEL_UNREACHABLE" // 502
)

// SyncError represents a structured error with code, status, and details.
type SyncError struct {
	Code    ErrorCode
	Status  int
	Message string
	Details map[string]any
}

// Error implements the error interface.
func (e *SyncError) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// NewInvalidRequest creates a 400 error for invalid request parameters.
func NewInvalidRequest(msg string) *SyncError {
	return &SyncError{
		Code:    ErrInvalidRequest,
		Status:  400,
		Message: msg,
	}
}

// NewAuthFailed creates a 401 error for rejected credentials.
func NewAuthFailed(service string) *SyncError {
	return &SyncError{
		Code:    ErrAuthFailed,
		Status:  401,
		Message: fmt.Sprintf("%s rejected the configured credentials", service),
		Details: map[string]any{"service": service},
	}
}

// NewPermissionDenied creates a 403 error for valid credentials that lack a
// required scope or role.
func NewPermissionDenied(service, detail string) *SyncError {
	return &SyncError{
		Code:    ErrPermissionDenied,
		Status:  403,
		Message: fmt.Sprintf("%s denied the operation: %s", service, detail),
		Details: map[string]any{"service": service},
	}
}

// NewNotFound creates a 404 error for a missing mapping or document.
func NewNotFound(identifier string) *SyncError {
	return &SyncError{
		Code:    ErrNotFound,
		Status:  404,
		Message: fmt.Sprintf("not found: %s", identifier),
		Details: map[string]any{"identifier": identifier},
	}
}

// NewSyncBusy creates a 409 error for when a sync run is already live.
func NewSyncBusy(runID string) *SyncError {
	return &SyncError{
		Code:    ErrSyncBusy,
		Status:  409,
		Message: "a sync run is already in progress",
		Details: map[string]any{"run_id": runID},
	}
}

// NewPersistFailed creates a 500 error for a failed state write. The in-memory
// mapping is ahead of disk when this is returned.
func NewPersistFailed(err error) *SyncError {
	return &SyncError{
		Code:    ErrPersistFailed,
		Status:  500,
		Message: fmt.Sprintf("mapping not durably committed: %v", err),
	}
}

// NewChannelUnreachable creates a 502 error for an unreachable source channel.
func NewChannelUnreachable(channelID string, err error) *SyncError {
	return &SyncError{
		Code:    ErrChannelUnreachable,
		Status:  502,
		Message: fmt.Sprintf("channel %s is not reachable: %v", channelID, err),
		Details: map[string]any{"channel_id": channelID},
	}
}

// NewInternal creates a 500 error for unexpected internal errors.
func NewInternal(err error) *SyncError {
	msg := "internal error"
	if err != nil {
		msg = err.Error()
	}
	return &SyncError{
		Code:    ErrInternal,
		Status:  500,
		Message: msg,
	}
}

// Is checks if an error is a SyncError with the given code.
func Is(err error, code ErrorCode) bool {
	if sErr, ok := err.(*SyncError); ok {
		return sErr.Code == code
	}
	return false
}
