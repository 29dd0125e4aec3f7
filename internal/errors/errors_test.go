package errors

import (
	"fmt"
	"testing"
)

func TestSyncError_Error(t *testing.T) {
	err := &SyncError{
		Code:    ErrNotFound,
		Status:  404,
		Message: "mapping not found",
	}

	expected := "NOT_FOUND: mapping not found"
	if err.Error() != expected {
		t.Errorf("Error() = %q, want %q", err.Error(), expected)
	}
}

func TestNewInvalidRequest(t *testing.T) {
	err := NewInvalidRequest("fingerprint is required")

	if err.Code != ErrInvalidRequest {
		t.Errorf("Code = %q, want %q", err.Code, ErrInvalidRequest)
	}
	if err.Status != 400 {
		t.Errorf("Status = %d, want 400", err.Status)
	}
	if err.Message != "fingerprint is required" {
		t.Errorf("Message = %q, want %q", err.Message, "fingerprint is required")
	}
}

func TestNewSyncBusy(t *testing.T) {
	err := NewSyncBusy("01RUN")

	if err.Code != ErrSyncBusy {
		t.Errorf("Code = %q, want %q", err.Code, ErrSyncBusy)
	}
	if err.Status != 409 {
		t.Errorf("Status = %d, want 409", err.Status)
	}
	if err.Details["run_id"] != "01RUN" {
		t.Errorf("Details[run_id] = %v, want %q", err.Details["run_id"], "01RUN")
	}
}

func TestNewChannelUnreachable(t *testing.T) {
	err := NewChannelUnreachable("C123", fmt.Errorf("channel_not_found"))

	if err.Code != ErrChannelUnreachable {
		t.Errorf("Code = %q, want %q", err.Code, ErrChannelUnreachable)
	}
	if err.Status != 502 {
		t.Errorf("Status = %d, want 502", err.Status)
	}
	if err.Details["channel_id"] != "C123" {
		t.Errorf("Details[channel_id] = %v, want %q", err.Details["channel_id"], "C123")
	}
}

func TestNewPersistFailed(t *testing.T) {
	err := NewPersistFailed(fmt.Errorf("disk full"))

	if err.Code != ErrPersistFailed {
		t.Errorf("Code = %q, want %q", err.Code, ErrPersistFailed)
	}
	if err.Status != 500 {
		t.Errorf("Status = %d, want 500", err.Status)
	}
}

func TestNewInternal_NilError(t *testing.T) {
	err := NewInternal(nil)

	if err.Code != ErrInternal {
		t.Errorf("Code = %q, want %q", err.Code, ErrInternal)
	}
	if err.Message != "internal error" {
		t.Errorf("Message = %q, want %q", err.Message, "internal error")
	}
}

func TestIs(t *testing.T) {
	err := NewNotFound("100.1")

	if !Is(err, ErrNotFound) {
		t.Error("Is(err, ErrNotFound) = false, want true")
	}
	if Is(err, ErrInternal) {
		t.Error("Is(err, ErrInternal) = true, want false")
	}
	if Is(fmt.Errorf("plain"), ErrNotFound) {
		t.Error("Is(plain error, ErrNotFound) = true, want false")
	}
}
