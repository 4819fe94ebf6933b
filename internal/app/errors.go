package app

import (
	"fmt"
	"net/http"
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

func errInvalidCredentials() *DomainError {
	return domainError(http.StatusUnauthorized, "INVALID_CREDENTIALS", "Invalid credentials", nil)
}

func errEditingLocked() *DomainError {
	return domainError(http.StatusConflict, "EDITING_LOCKED", "Editing is locked by the chair", nil)
}

func errNoActiveBloc() *DomainError {
	return domainError(http.StatusConflict, "NO_ACTIVE_BLOC", "No active bloc selected", nil)
}

func errNoActiveCommittee() *DomainError {
	return domainError(http.StatusConflict, "NO_ACTIVE_COMMITTEE", "No active committee", nil)
}

func errNameTaken(name string) *DomainError {
	return domainError(http.StatusConflict, "NAME_TAKEN", "Bloc name already exists", map[string]string{"name": name})
}

func errStoreUnavailable() *DomainError {
	return domainError(http.StatusServiceUnavailable, "STORE_UNAVAILABLE", "Document store unavailable", nil)
}

func errInvalidInput(message string) *DomainError {
	return domainError(http.StatusUnprocessableEntity, "INVALID_INPUT", message, nil)
}

func errAlreadyRunning() *DomainError {
	return domainError(http.StatusConflict, "ALREADY_RUNNING", "Timer is already running", nil)
}

func errNoDurationSet() *DomainError {
	return domainError(http.StatusConflict, "NO_DURATION_SET", "No timer duration set", nil)
}

func errForbidden() *DomainError {
	return domainError(http.StatusForbidden, "FORBIDDEN", "Forbidden", nil)
}

func errUnauthorized() *DomainError {
	return domainError(http.StatusUnauthorized, "UNAUTHORIZED", "Unauthorized", nil)
}
