package ws

import (
	"errors"
	"net/http"

	"github.com/KasunDA/fc-admin/internal/bridge"
	"github.com/KasunDA/fc-admin/internal/changes"
	"github.com/KasunDA/fc-admin/internal/directory"
	"github.com/KasunDA/fc-admin/internal/profile"
	"github.com/KasunDA/fc-admin/internal/session"
)

// statusFor maps an error to the HTTP status and the "status" string of the
// reply body.
func statusFor(err error) (int, string) {
	var se *bridge.StatusError
	switch {
	case errors.Is(err, session.ErrAlreadyActive):
		return http.StatusForbidden, "already_started"
	case errors.Is(err, session.ErrNotActive):
		return http.StatusForbidden, "session_not_started"
	case errors.As(err, &se):
		// Agent replies are passed through verbatim.
		return http.StatusForbidden, se.Message
	case errors.Is(err, bridge.ErrUnreachable), errors.Is(err, session.ErrBridgeUnreachable):
		return http.StatusForbidden, "could not connect to host"
	case errors.Is(err, session.ErrUnknownDeploy):
		return http.StatusForbidden, "nonexistinguid"
	case errors.Is(err, changes.ErrUnknownNamespace):
		return http.StatusForbidden, "unknown_namespace"
	case errors.Is(err, changes.ErrInvalidChange):
		return http.StatusBadRequest, "invalid_change"
	case errors.Is(err, profile.ErrInvalidMetadata):
		return http.StatusBadRequest, err.Error()
	case errors.Is(err, profile.ErrInvalidID):
		return http.StatusBadRequest, "invalid_id"
	case errors.Is(err, profile.ErrNotFound):
		return http.StatusNotFound, "not_found"
	case errors.Is(err, directory.ErrDuplicateEntry):
		return http.StatusConflict, "duplicate_entry"
	case errors.Is(err, profile.ErrStorageWrite):
		return http.StatusInternalServerError, "storage_error"
	default:
		return http.StatusInternalServerError, "internal_error"
	}
}
