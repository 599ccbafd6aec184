package app

import (
	"database/sql"
	"errors"
	"fmt"
	"net/http"

	"docuport/api/internal/guest"
	"docuport/api/internal/invite"
	"docuport/api/internal/vault"
)

type DomainError struct {
	Status  int
	Code    string
	Message string
	Details any
}

func (e *DomainError) Error() string {
	if e == nil {
		return ""
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func domainError(status int, code, message string, details any) *DomainError {
	return &DomainError{
		Status:  status,
		Code:    code,
		Message: message,
		Details: details,
	}
}

func validationError(message string) *DomainError {
	return domainError(http.StatusBadRequest, "VALIDATION", message, nil)
}

func notFoundError(message string) *DomainError {
	return domainError(http.StatusNotFound, "NOT_FOUND", message, nil)
}

func forbiddenError() *DomainError {
	return domainError(http.StatusForbidden, "FORBIDDEN", "Forbidden", nil)
}

// toDomainError maps package-level errors onto the HTTP taxonomy. Crypto and
// storage failures come through as a generic 500: the detail is logged
// server-side and never put on the wire.
func toDomainError(err error) *DomainError {
	var de *DomainError
	switch {
	case errors.As(err, &de):
		return de
	case errors.Is(err, guest.ErrInvalidCredentials):
		return domainError(http.StatusUnauthorized, "INVALID_CREDENTIALS", "Invalid email or login token", nil)
	case errors.Is(err, invite.ErrInvalidToken):
		return domainError(http.StatusBadRequest, "INVALID_INVITATION", "Invitation token is not valid", nil)
	case errors.Is(err, invite.ErrExpiredToken):
		return domainError(http.StatusGone, "EXPIRED_INVITATION", "Invitation has expired, request a new one", nil)
	case errors.Is(err, vault.ErrNotFound), errors.Is(err, sql.ErrNoRows):
		return notFoundError("Not found")
	case errors.Is(err, vault.ErrDecryption), errors.Is(err, vault.ErrStorage):
		return domainError(http.StatusInternalServerError, "FILE_FAILURE", "File operation failed", nil)
	default:
		return domainError(http.StatusInternalServerError, "INTERNAL", "Internal error", nil)
	}
}
