// Package permission stores and resolves allow/deny decisions over the
// service tree
//
// Resolution is subject-major, ancestor-minor: for the first subject
// the whole ancestor chain is searched before the second subject is
// considered at all. A highly specific subject's rule on a distant
// ancestor therefore outranks a less specific subject's rule on the
// node itself.
package permission

import (
	"fmt"

	"github.com/KOMKZ/go-accessctl-framework/acerrors"
	"github.com/KOMKZ/go-accessctl-framework/service"
)

// Permission one resolved or stored allow/deny decision
type Permission struct {
	Service *service.Service
	Subject string
	Allow   bool
}

// DeniedError resolved effective permission is deny
type DeniedError struct {
	Service string
	Subject string
}

// Error implements the error interface
func (e *DeniedError) Error() string {
	if e.Subject == "" {
		return fmt.Sprintf("permission denied (service: %s, by default)", e.Service)
	}
	return fmt.Sprintf("permission denied (service: %s, subject: %s)", e.Service, e.Subject)
}

// Unwrap ties the error into the access-control taxonomy
func (e *DeniedError) Unwrap() error {
	return acerrors.ErrPermissionDenied
}
