// Package acerrors defines the access-control error taxonomy
//
// All errors are LayeredError instances under module "accessctl":
//   - ErrAccessControl: base of the taxonomy
//   - ErrPermissionDenied: the resolved effective permission is deny
//   - ErrRateLimited: token acquisition failed (see ratelimit.LimitedError for the full result)
//   - ErrBadRequest: malformed control-command input
//   - ErrQuery: referenced entity does not exist or an invariant would be violated
package acerrors

import (
	"errors"

	"github.com/KOMKZ/go-accessctl-framework/errcode"
)

// Module code 10 is reserved for the access-control core
const moduleCode = 10

var (
	// ErrAccessControl base error of the taxonomy
	ErrAccessControl = errcode.Register(errcode.New(
		moduleCode, 0, "accessctl", "error.accessctl", "access control error"))

	// ErrPermissionDenied resolved effective permission is deny
	ErrPermissionDenied = errcode.Register(errcode.New(
		moduleCode, 1, "accessctl", "error.accessctl.permission_denied", "permission denied"))

	// ErrRateLimited rate limit token acquisition failed
	ErrRateLimited = errcode.Register(errcode.New(
		moduleCode, 2, "accessctl", "error.accessctl.rate_limited", "rate limited"))

	// ErrBadRequest malformed control-command input
	ErrBadRequest = errcode.Register(errcode.New(
		moduleCode, 3, "accessctl", "error.accessctl.bad_request", "bad request"))

	// ErrQuery referenced entity does not exist or an invariant would be violated
	ErrQuery = errcode.Register(errcode.New(
		moduleCode, 4, "accessctl", "error.accessctl.query", "query error"))
)

// IsAccessControlError reports whether err belongs to the access-control taxonomy
func IsAccessControlError(err error) bool {
	var layered *errcode.LayeredError
	if !errors.As(err, &layered) {
		return false
	}
	return layered.Module() == "accessctl"
}
