package web

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"
)

// Errors the upload route maps to 4xx responses
var (
	ErrInvalidClass   = errors.New("invalid class")
	ErrMissingVideo   = errors.New("missing video")
	ErrUploadTooLarge = errors.New("upload too large")
)

// Server-side failures whose cause carries local paths
var (
	errWorkspaceUnavailable = errors.New("no se pudo preparar el espacio de trabajo")
	errVideoNotSaved        = errors.New("no se pudo guardar el video")
)

// APIError is an error with the HTTP status it should be answered with
type APIError struct {
	Status  int
	Message string
	Err     error
}

func (e *APIError) Error() string {
	return e.Message
}

func (e *APIError) Unwrap() error {
	return e.Err
}

func invalidClassError(label string) *APIError {
	return &APIError{
		Status:  http.StatusBadRequest,
		Message: fmt.Sprintf("Clase no válida: %s", label),
		Err:     ErrInvalidClass,
	}
}

func processingError(err error) *APIError {
	return &APIError{
		Status:  http.StatusInternalServerError,
		Message: fmt.Sprintf("Error al procesar el video: %v", err),
		Err:     err,
	}
}

// internalError answers with public and keeps cause for the logs only
func internalError(public, cause error) *APIError {
	return &APIError{
		Status:  http.StatusInternalServerError,
		Message: fmt.Sprintf("Error al procesar el video: %v", public),
		Err:     fmt.Errorf("%w: %w", public, cause),
	}
}

// respondError writes {"message": ...} and aborts the handler chain.
// Errors that are not an *APIError become a 500.
func respondError(c *gin.Context, err error) {
	var apiErr *APIError
	if !errors.As(err, &apiErr) {
		apiErr = &APIError{Status: http.StatusInternalServerError, Message: err.Error(), Err: err}
	}
	if apiErr.Err != nil {
		_ = c.Error(apiErr.Err)
	} else {
		_ = c.Error(err)
	}
	c.AbortWithStatusJSON(apiErr.Status, gin.H{"message": apiErr.Message})
}
