package errors

import (
	"errors"
	"fmt"
	"net/http"
	"testing"
)

func TestMotionError(t *testing.T) {
	err := New(ErrorTypeState, "generate", ErrBusy)
	if err.Type != ErrorTypeState {
		t.Errorf("expected type %s, got %s", ErrorTypeState, err.Type)
	}

	err = err.WithSession("session-123").WithDetail("progress", 42)
	if err.Details["progress"] != 42 {
		t.Errorf("expected progress detail 42, got %v", err.Details["progress"])
	}

	expected := "state error in generate for session session-123: generation in progress"
	if err.Error() != expected {
		t.Errorf("expected error string '%s', got '%s'", expected, err.Error())
	}

	plain := ValidationError("upload", ErrInvalidSlot)
	if plain.Error() != "validation error in upload: invalid slot" {
		t.Errorf("unexpected error string '%s'", plain.Error())
	}
}

func TestErrorWrapping(t *testing.T) {
	err := fmt.Errorf("handler: %w", SessionError("get_session", ErrSessionNotFound))

	if !errors.Is(err, ErrSessionNotFound) {
		t.Error("expected error to match ErrSessionNotFound")
	}
	if GetType(err) != ErrorTypeSession {
		t.Errorf("expected type %s, got %s", ErrorTypeSession, GetType(err))
	}
	if GetOperation(err) != "get_session" {
		t.Errorf("expected operation 'get_session', got %s", GetOperation(err))
	}
	if GetType(errors.New("plain")) != ErrorTypeInternal {
		t.Error("expected plain errors to classify as internal")
	}
}

func TestHTTPStatus(t *testing.T) {
	tests := []struct {
		name   string
		err    error
		status int
	}{
		{name: "nil", err: nil, status: http.StatusOK},
		{name: "not found", err: SessionError("get", ErrSessionNotFound), status: http.StatusNotFound},
		{name: "closed", err: SessionError("upload", ErrClosed), status: http.StatusNotFound},
		{name: "busy", err: StateError("remove", ErrBusy), status: http.StatusConflict},
		{name: "not ready", err: StateError("generate", ErrNotReady), status: http.StatusConflict},
		{name: "no result", err: StateError("download", ErrNoResult), status: http.StatusConflict},
		{name: "too large", err: ValidationError("upload", ErrUploadTooLarge), status: http.StatusRequestEntityTooLarge},
		{name: "wrong media", err: ValidationError("upload", ErrUnsupportedMedia), status: http.StatusUnsupportedMediaType},
		{name: "bad slot", err: ValidationError("upload", ErrInvalidSlot), status: http.StatusBadRequest},
		{name: "read failure", err: ValidationError("upload", ErrReadFailed), status: http.StatusBadRequest},
		{name: "limit", err: ResourceError("create", ErrResourceLimitExceeded), status: http.StatusServiceUnavailable},
		{name: "typed validation", err: ValidationError("upload", errors.New("x")), status: http.StatusBadRequest},
		{name: "internal", err: errors.New("boom"), status: http.StatusInternalServerError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := HTTPStatus(tt.err); got != tt.status {
				t.Errorf("expected status %d, got %d", tt.status, got)
			}
		})
	}
}
