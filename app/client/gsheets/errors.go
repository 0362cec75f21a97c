package gsheets

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/samber/oops"
	"google.golang.org/api/googleapi"
)

var ErrMissingRefreshToken = errors.New("refresh token is missing")

// AuthenticationError is returned when the refresh token exchange is rejected
// or the token endpoint cannot be reached.
type AuthenticationError struct {
	Err error
}

func (e *AuthenticationError) Error() string {
	return fmt.Sprintf("authorization exchange failed: %v", e.Err)
}

func (e *AuthenticationError) Unwrap() error {
	return e.Err
}

type SpreadsheetNotFoundError struct {
	SpreadsheetID string
}

func (e *SpreadsheetNotFoundError) Error() string {
	return fmt.Sprintf("spreadsheet %q not found", e.SpreadsheetID)
}

type WorksheetNotFoundError struct {
	Worksheet string
}

func (e *WorksheetNotFoundError) Error() string {
	return fmt.Sprintf("worksheet %q not found", e.Worksheet)
}

// APIError is any other rejection by the Sheets API, quota errors included.
type APIError struct {
	Code    int
	Message string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("sheets api error %d: %s", e.Code, e.Message)
}

func (e *APIError) RateLimited() bool {
	return e.Code == http.StatusTooManyRequests
}

func mapError(err error, spreadsheetID, op string) error {
	var apiErr *googleapi.Error
	if !errors.As(err, &apiErr) {
		return oops.
			In("gsheets").
			With("spreadsheet_id", spreadsheetID).
			Wrapf(err, "%s", op)
	}

	if apiErr.Code == http.StatusNotFound {
		return &SpreadsheetNotFoundError{SpreadsheetID: spreadsheetID}
	}

	code := apiErr.Code
	for _, item := range apiErr.Errors {
		if item.Reason == "rateLimitExceeded" || item.Reason == "userRateLimitExceeded" {
			code = http.StatusTooManyRequests
		}
	}

	return &APIError{Code: code, Message: apiErr.Message}
}
