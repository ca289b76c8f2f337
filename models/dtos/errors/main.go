package errors

import (
	"net/http"
	"time"

	"gohan/variantstore/models/dtos"
	gerrors "gohan/variantstore/models/errors"
)

/*
	Utility functions to facillitate returning error responses to HTTP clients
*/

// -- Simplest: 1 error with message
func CreateSimpleBadRequest(message string) dtos.GeneralErrorResponseDto {
	return create(http.StatusBadRequest, message)
}
func CreateSimpleNotFound(message string) dtos.GeneralErrorResponseDto {
	return create(http.StatusNotFound, message)
}
func CreateSimpleConflict(message string) dtos.GeneralErrorResponseDto {
	return create(http.StatusConflict, message)
}
func CreateSimpleInternalServerError(message string) dtos.GeneralErrorResponseDto {
	return create(http.StatusInternalServerError, message)
}

// FromError picks the response matching the kind of err
func FromError(err error) dtos.GeneralErrorResponseDto {
	switch gerrors.KindOf(err) {
	case gerrors.FatalPrecondition:
		return CreateSimpleConflict(err.Error())
	case gerrors.Codec:
		return CreateSimpleBadRequest(err.Error())
	default:
		return CreateSimpleInternalServerError(err.Error())
	}
}

func create(code int, message string) dtos.GeneralErrorResponseDto {
	return dtos.GeneralErrorResponseDto{
		Code:      code,
		Message:   http.StatusText(code),
		Timestamp: time.Now(),
		Errors: []dtos.GeneralError{
			{
				Message: message,
			},
		},
	}
}

// --
