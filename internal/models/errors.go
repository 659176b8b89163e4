package models

import (
	"net/http"

	"github.com/CzarSimon/httputil"
)

// ValidationError creates an error for a bad or missing request field.
func ValidationError(message string) *httputil.Error {
	return httputil.NewError(message, http.StatusBadRequest, nil)
}

// NotFoundError creates an error for a missing resource.
func NotFoundError(message string, err error) *httputil.Error {
	return httputil.NewError(message, http.StatusNotFound, err)
}

// ConfigurationError creates an error for missing server side configuration.
func ConfigurationError(message string) *httputil.Error {
	return httputil.NewError(message, http.StatusInternalServerError, nil)
}

// StorageError creates an error for a failed store operation.
func StorageError(err error) *httputil.Error {
	return httputil.NewError("failed to access session store", http.StatusInternalServerError, err)
}
