package registry

import (
	"errors"
	"time"
)

var ErrNotFound = errors.New("not found")

// Spreadsheet is a Google spreadsheet registered by a user.
type Spreadsheet struct {
	ID            string    `json:"id"`
	UserID        string    `json:"user_id"`
	SpreadsheetID string    `json:"spreadsheet_id"`
	Name          string    `json:"name"`
	SchemaSummary string    `json:"schema_summary,omitempty"`
	CreatedAt     time.Time `json:"created_at"`
}

// User holds the refresh token in sealed form only.
type User struct {
	ID                 string `json:"id"`
	SealedRefreshToken string `json:"sealed_refresh_token,omitempty"`
}

type jsonLineItem struct {
	Spreadsheet *Spreadsheet `json:"spreadsheet,omitempty"`
	User        *User        `json:"user,omitempty"`
}
