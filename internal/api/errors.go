package api

import (
	"errors"
	"net/http"

	"mongo-bridge/internal/domain"
)

// httpStatusFromDomainError maps domain errors to HTTP status codes.
func httpStatusFromDomainError(err error) int {
	var parse *domain.ParseError
	var validation *domain.ValidationError
	var connection *domain.ConnectionError

	switch {
	case errors.As(err, &parse), errors.As(err, &validation):
		return http.StatusBadRequest
	case errors.As(err, &connection):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

// errorBody is the payload of every failed request.
type errorBody struct {
	Message string `json:"message"`
}
