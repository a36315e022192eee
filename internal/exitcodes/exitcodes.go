// Package exitcodes defines standard exit codes for CLI operations so
// schedulers and shell scripts can tell failure classes apart.
package exitcodes

import (
	"context"
	"errors"
	"os"

	"github.com/valtiodata/eduskunta-fetch/internal/api"
)

const (
	// Success - download completed without errors
	Success = 0

	// ConfigError - configuration or flag errors (non-recoverable, don't retry)
	ConfigError = 1

	// NetworkError - API unreachable or persistent transport failures (recoverable)
	NetworkError = 2

	// DownloadError - one or more tables failed to download (partially recoverable via resume)
	DownloadError = 3

	// ValidationError - metadata validation failed or a malformed API response
	ValidationError = 4

	// Cancelled - user cancelled via SIGINT/SIGTERM (recoverable via resume)
	Cancelled = 5

	// StateError - checkpoint database errors (non-recoverable)
	StateError = 6

	// IOError - file I/O errors (recoverable)
	IOError = 7
)

// ExitError wraps an error with an exit code.
type ExitError struct {
	Err  error
	Code int
}

func (e *ExitError) Error() string {
	return e.Err.Error()
}

func (e *ExitError) Unwrap() error {
	return e.Err
}

// NewExitError creates a new ExitError with the given code.
func NewExitError(err error, code int) *ExitError {
	return &ExitError{Err: err, Code: code}
}

// FromError determines the appropriate exit code for an error.
func FromError(err error) int {
	if err == nil {
		return Success
	}

	var exitErr *ExitError
	if errors.As(err, &exitErr) {
		return exitErr.Code
	}

	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return Cancelled
	}

	var pathErr *os.PathError
	if errors.As(err, &pathErr) {
		return IOError
	}

	var apiErr *api.Error
	if errors.As(err, &apiErr) {
		switch apiErr.Kind {
		case api.KindCancelled:
			return Cancelled
		case api.KindDecode, api.KindClient:
			return ValidationError
		default:
			return NetworkError
		}
	}

	return DownloadError
}
