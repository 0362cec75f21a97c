package api

import (
	"context"
	"errors"
	"log/slog"
	"receiptagent/app/client/gsheets"
	"receiptagent/app/service/agent"
	"receiptagent/app/service/auth"
	"receiptagent/app/service/receipt"
	"receiptagent/app/service/registry"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
)

const (
	msgAccountNotLinked  = "Google account not linked or token is missing. Please reconnect your Google account."
	msgAccessDenied      = "Access denied. This spreadsheet is not registered to your account."
	msgSpreadsheetAbsent = "The requested spreadsheet could not be found."
	msgWorksheetAbsent   = "The requested worksheet was not found."
	msgSheetsAPI         = "An error occurred with the Google Sheets API, likely due to rate limiting. Please try again later."
	msgSheetsAuth        = "Authentication with Google Sheets failed. Please reconnect your Google account."
	msgValidation        = "Invalid data provided."
	msgUnauthorized      = "Could not validate credentials."
	msgTimeout           = "The request took too long to process."
	msgInternal          = "An unexpected internal server error occurred."
)

type errorResponse struct {
	Status  string   `json:"status"`
	Message string   `json:"message"`
	Details []string `json:"details,omitempty"`
}

// ValidationError is a request body or form that failed validation.
type ValidationError struct {
	Details []string
}

func (e *ValidationError) Error() string {
	return msgValidation
}

func newValidationError(err error) *ValidationError {
	var fieldErrs validator.ValidationErrors
	if !errors.As(err, &fieldErrs) {
		return &ValidationError{Details: []string{err.Error()}}
	}

	details := make([]string, 0, len(fieldErrs))
	for _, fieldErr := range fieldErrs {
		details = append(details, fieldErr.Field()+": failed on "+fieldErr.Tag())
	}

	return &ValidationError{Details: details}
}

func classify(err error) (int, errorResponse) {
	resp := errorResponse{Status: "error"}

	var (
		businessErr   *agent.BusinessLogicFailure
		inputErr      *receipt.InvalidInputError
		validationErr *ValidationError
		sheetErr      *gsheets.SpreadsheetNotFoundError
		worksheetErr  *gsheets.WorksheetNotFoundError
		apiErr        *gsheets.APIError
		sheetsAuthErr *gsheets.AuthenticationError
		fiberErr      *fiber.Error
	)

	switch {
	case errors.As(err, &businessErr):
		resp.Message = businessErr.Message
		return fiber.StatusBadRequest, resp

	case errors.As(err, &inputErr):
		resp.Message = inputErr.Message
		return fiber.StatusBadRequest, resp

	case errors.Is(err, registry.ErrAccountNotLinked), errors.Is(err, gsheets.ErrMissingRefreshToken):
		resp.Message = msgAccountNotLinked
		return fiber.StatusBadRequest, resp

	case errors.As(err, &sheetsAuthErr):
		resp.Message = msgSheetsAuth
		return fiber.StatusBadRequest, resp

	case errors.Is(err, registry.ErrAccessDenied):
		resp.Message = msgAccessDenied
		return fiber.StatusForbidden, resp

	case errors.As(err, &sheetErr):
		resp.Message = msgSpreadsheetAbsent
		return fiber.StatusNotFound, resp

	case errors.As(err, &worksheetErr):
		resp.Message = msgWorksheetAbsent
		return fiber.StatusNotFound, resp

	case errors.As(err, &apiErr):
		resp.Message = msgSheetsAPI
		return fiber.StatusTooManyRequests, resp

	case errors.As(err, &validationErr):
		resp.Message = msgValidation
		resp.Details = validationErr.Details
		return fiber.StatusUnprocessableEntity, resp

	case errors.Is(err, auth.ErrMissingToken), errors.Is(err, auth.ErrInvalidToken):
		resp.Message = msgUnauthorized
		return fiber.StatusUnauthorized, resp

	case errors.Is(err, context.DeadlineExceeded):
		resp.Message = msgTimeout
		return fiber.StatusGatewayTimeout, resp

	case errors.As(err, &fiberErr):
		resp.Message = fiberErr.Message
		return fiberErr.Code, resp
	}

	resp.Message = msgInternal
	return fiber.StatusInternalServerError, resp
}

func errorHandler(c *fiber.Ctx, err error) error {
	status, resp := classify(err)

	logger := slog.With(
		"method", c.Method(),
		"path", c.Path(),
		"status", status,
		"error", err,
	)

	switch {
	case status >= fiber.StatusInternalServerError:
		logger.Error("Request failed")
	case status != fiber.StatusNotFound && status != fiber.StatusUnauthorized:
		logger.Warn("Request rejected")
	}

	return c.Status(status).JSON(resp)
}
