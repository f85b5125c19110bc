// internal/errors/errors.go
package appErrors

import (
	"errors"
	"fmt"
	"net/http"
)

// NotFoundError is returned when a resource does not exist or is not visible to the caller.
type NotFoundError struct {
	Resource string
	ID       any
}

func (e *NotFoundError) Error() string {
	if e.ID == nil {
		return fmt.Sprintf("%s not found", e.Resource)
	}
	return fmt.Sprintf("%s with ID %v not found", e.Resource, e.ID)
}

type BadRequestError struct {
	Message string
}

func (e *BadRequestError) Error() string { return e.Message }

// ForbiddenError is used for plan ceilings and other policy rejections.
type ForbiddenError struct {
	Message string
}

func (e *ForbiddenError) Error() string { return e.Message }

func NewNotFound(resource string, id any) error {
	return &NotFoundError{Resource: resource, ID: id}
}

func NewCampaignNotFound(id int) error {
	return NewNotFound("campaign", id)
}

func NewBadRequest(format string, args ...any) error {
	return &BadRequestError{Message: fmt.Sprintf(format, args...)}
}

func NewForbidden(format string, args ...any) error {
	return &ForbiddenError{Message: fmt.Sprintf(format, args...)}
}

func IsNotFound(err error) bool {
	var nf *NotFoundError
	return errors.As(err, &nf)
}

// StatusCode maps typed errors to HTTP status codes. Anything untyped is a 500.
func StatusCode(err error) int {
	var (
		nf *NotFoundError
		br *BadRequestError
		fb *ForbiddenError
	)
	switch {
	case err == nil:
		return http.StatusOK
	case errors.As(err, &nf):
		return http.StatusNotFound
	case errors.As(err, &br):
		return http.StatusBadRequest
	case errors.As(err, &fb):
		return http.StatusForbidden
	default:
		return http.StatusInternalServerError
	}
}

// Public reports whether the error message is safe to show to a client.
func Public(err error) bool {
	return StatusCode(err) != http.StatusInternalServerError
}
