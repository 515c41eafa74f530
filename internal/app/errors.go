package app

import (
	"database/sql"
	"errors"
	"fmt"
	"net/http"

	"lattice/api/internal/docsource"
	"lattice/api/internal/export"
	"lattice/api/internal/gitrepo"
	"lattice/api/internal/index"
	"lattice/api/internal/model"
	"lattice/api/internal/store"
	"lattice/api/internal/tree"
)

// Codes carried in the "code" field of API error bodies.
const (
	CodeInvalidBody      = "INVALID_BODY"
	CodeValidation       = "VALIDATION_FAILED"
	CodeNotFound         = "NOT_FOUND"
	CodeMethodNotAllowed = "METHOD_NOT_ALLOWED"
	CodePDFUnavailable   = "PDF_UNAVAILABLE"
	CodeUnavailable      = "UNAVAILABLE"
	CodeServerError      = "SERVER_ERROR"
)

// DomainError is an error whose HTTP status and code are decided where it is
// raised. Cause stays reachable through errors.Is and errors.As.
type DomainError struct {
	Status  int
	Code    string
	Message string
	Details any
	Cause   error
}

func (e *DomainError) Error() string {
	if e == nil {
		return ""
	}
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *DomainError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Cause
}

// sentinelErrors gives package sentinels their API shape. The first match wins.
var sentinelErrors = []struct {
	target  error
	status  int
	code    string
	message string
}{
	{sql.ErrNoRows, http.StatusNotFound, CodeNotFound, "Not found"},
	{store.ErrNotFound, http.StatusNotFound, CodeNotFound, "Not found"},
	{tree.ErrNodeNotFound, http.StatusNotFound, CodeNotFound, "Not found"},
	{docsource.ErrNotFound, http.StatusNotFound, CodeNotFound, "Not found"},
	{gitrepo.ErrNoHistory, http.StatusNotFound, CodeNotFound, "Not found"},
	{docsource.ErrInvalidPath, http.StatusUnprocessableEntity, CodeValidation, "Invalid document path"},
	{export.ErrPDFDependencyMissing, http.StatusServiceUnavailable, CodePDFUnavailable, "PDF export is not available"},
	{index.ErrCoordinatorClosed, http.StatusServiceUnavailable, CodeUnavailable, "Index queue is shut down"},
}

// mapError turns any service error into the status, code, message and details
// written by writeError. Unknown errors become a 500 without leaking text.
func mapError(err error) (status int, code, message string, details any) {
	var domainErr *DomainError
	if errors.As(err, &domainErr) {
		return domainErr.Status, domainErr.Code, domainErr.Message, domainErr.Details
	}
	var validation *model.ValidationError
	if errors.As(err, &validation) {
		return http.StatusUnprocessableEntity, CodeValidation, validation.Message, map[string]any{"field": validation.Field}
	}
	for _, s := range sentinelErrors {
		if errors.Is(err, s.target) {
			return s.status, s.code, s.message, nil
		}
	}
	return http.StatusInternalServerError, CodeServerError, "Server error", nil
}
