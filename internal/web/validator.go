package web

import (
	"errors"
	"mime/multipart"
	"net/http"
	"strings"
	"sync"

	"github.com/gin-gonic/gin/binding"
	"github.com/go-playground/validator/v10"

	"github.com/GabrielValdiviaGaboloso/videoyolo/internal/classes"
)

// uploadForm is the multipart body of an upload
type uploadForm struct {
	ClassName string                `form:"class_name" binding:"required,coco_class"`
	Video     *multipart.FileHeader `form:"video" binding:"required"`
}

var registerOnce sync.Once

// registerValidators adds the coco_class tag to gin's validator engine
func registerValidators() {
	registerOnce.Do(func() {
		if v, ok := binding.Validator.Engine().(*validator.Validate); ok {
			_ = v.RegisterValidation("coco_class", func(fl validator.FieldLevel) bool {
				return classes.Valid(fl.Field().String())
			})
		}
	})
}

// bindError maps a binding failure of uploadForm to an APIError
func bindError(err error, form *uploadForm) *APIError {
	if isTooLarge(err) {
		return tooLargeError()
	}

	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return &APIError{Status: http.StatusBadRequest, Message: "Formulario inválido: " + err.Error(), Err: err}
	}

	var classErr bool
	for _, fe := range verrs {
		switch {
		case fe.Field() == "Video":
			return &APIError{Status: http.StatusBadRequest, Message: "Falta el archivo de video", Err: ErrMissingVideo}
		case fe.Field() == "ClassName" && fe.Tag() == "required":
			return &APIError{Status: http.StatusBadRequest, Message: "Falta el campo class_name", Err: ErrInvalidClass}
		case fe.Field() == "ClassName":
			classErr = true
		}
	}
	if classErr {
		return invalidClassError(form.ClassName)
	}
	return &APIError{Status: http.StatusBadRequest, Message: "Formulario inválido: " + verrs.Error(), Err: err}
}

func tooLargeError() *APIError {
	return &APIError{
		Status:  http.StatusRequestEntityTooLarge,
		Message: "El video excede el tamaño máximo permitido",
		Err:     ErrUploadTooLarge,
	}
}

func isTooLarge(err error) bool {
	var maxErr *http.MaxBytesError
	if errors.As(err, &maxErr) {
		return true
	}
	// multipart does not always wrap the reader error
	return strings.Contains(err.Error(), "request body too large")
}
