package uploadsvc

import (
	"errors"
	"net/http"
)

var (
	// ErrUnsupportedKind is returned for a provisioning request whose kind is
	// neither Scene nor Video.
	ErrUnsupportedKind = errors.New("unsupported resource kind")
	// ErrInvalidTarget rejects target names that are not a single path element.
	ErrInvalidTarget = errors.New("invalid target name")
	// ErrConflict means the destination already exists on the host.
	ErrConflict = errors.New("target already exists")
	// ErrDuplicateUpload means an upload for the same kind and target is in flight.
	ErrDuplicateUpload = errors.New("upload already in progress")
	// ErrAuthorizationTimeout marks an instance that closed without ever
	// receiving an authorized request.
	ErrAuthorizationTimeout = errors.New("no authorized upload before deadline")
	ErrMalformedBody        = errors.New("malformed upload body")
	ErrPolicyViolation      = errors.New("upload rejected by policy")
	// ErrPersist wraps the first failed file write of an attempt. Files that
	// were written before or alongside the failure stay on disk.
	ErrPersist = errors.New("persist upload")
	// ErrStopped is recorded when the host shuts the instance down.
	ErrStopped = errors.New("upload service stopped")
)

func statusFor(err error) int {
	switch {
	case err == nil:
		return http.StatusOK
	case errors.Is(err, ErrMalformedBody):
		return http.StatusBadRequest
	case errors.Is(err, ErrPolicyViolation):
		return http.StatusForbidden
	default:
		return http.StatusInternalServerError
	}
}
