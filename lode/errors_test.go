package lode

import (
	"errors"
	"fmt"
	"testing"
)

func TestClassifyError(t *testing.T) {
	tests := []struct {
		name     string
		errMsg   string
		wantKind error
	}{
		{"deadline", "context deadline exceeded", ErrTimeout},
		{"timed out", "operation timed out", ErrTimeout},
		{"AccessDenied", "AccessDenied: you do not have access", ErrAccessDenied},
		{"403", "received status 403", ErrAccessDenied},
		{"permission denied", "permission denied for /data/output", ErrPermissionDenied},
		{"EACCES", "open /tmp/file: EACCES", ErrPermissionDenied},
		{"ENOSPC", "ENOSPC: write failed", ErrDiskFull},
		{"quota", "quota exceeded for user", ErrDiskFull},
		{"NoSuchKey", "NoSuchKey: key missing", ErrNotFound},
		{"no such file", "open x: no such file or directory", ErrNotFound},
		{"SlowDown", "SlowDown: reduce request rate", ErrThrottled},
		{"credentials", "NoCredentialProviders: no valid providers", ErrAuth},
		{"connection refused", "dial tcp 127.0.0.1:9000: connection refused", ErrNetwork},
		{"other", "something odd happened", ErrUnclassified},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := classifyError(errors.New(tt.errMsg))
			if got != tt.wantKind {
				t.Errorf("classifyError(%q) = %v, want %v", tt.errMsg, got, tt.wantKind)
			}
		})
	}
}

type timeoutErr struct{}

func (timeoutErr) Error() string { return "boom" }
func (timeoutErr) Timeout() bool { return true }

func TestClassifyError_TypedTimeout(t *testing.T) {
	if got := classifyError(fmt.Errorf("wrapped: %w", timeoutErr{})); got != ErrTimeout {
		t.Errorf("got %v, want ErrTimeout", got)
	}
}

func TestStorageError_Chain(t *testing.T) {
	base := errors.New("write x: no space left on device")
	err := WrapWriteError(base, "dbviz/job_id=j1")

	if !errors.Is(err, ErrDiskFull) {
		t.Error("expected errors.Is(err, ErrDiskFull)")
	}
	if !errors.Is(err, base) {
		t.Error("expected underlying error in chain")
	}
	var se *StorageError
	if !errors.As(err, &se) {
		t.Fatal("expected *StorageError")
	}
	if se.Op != "write" || se.Path != "dbviz/job_id=j1" {
		t.Errorf("Op=%q Path=%q", se.Op, se.Path)
	}
	if WrapWriteError(nil, "x") != nil {
		t.Error("nil must stay nil")
	}
	if again := WrapReadError(err, "y"); again != err {
		t.Error("already classified errors must not be re-wrapped")
	}
}
