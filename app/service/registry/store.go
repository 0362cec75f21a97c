package registry

import "context"

// Store persists registrations. Implementations are safe for concurrent use.
type Store interface {
	// UpsertSpreadsheet inserts a registration or renames the existing one of
	// the same user and spreadsheet id.
	UpsertSpreadsheet(ctx context.Context, sheet *Spreadsheet) (*Spreadsheet, error)
	FindSpreadsheet(ctx context.Context, userID, spreadsheetID string) (*Spreadsheet, error)
	// ListSpreadsheets returns the registrations of a user, newest first.
	ListSpreadsheets(ctx context.Context, userID string) ([]*Spreadsheet, error)
	// UpdateSchemaSummary sets the summary of every registration of the spreadsheet id.
	UpdateSchemaSummary(ctx context.Context, spreadsheetID, summary string) error
	PutUser(ctx context.Context, user *User) error
	GetUser(ctx context.Context, userID string) (*User, error)
	Close() error
}
