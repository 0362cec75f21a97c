package gsheets

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/elliotchance/pie/v2"
	"golang.org/x/time/rate"
	"google.golang.org/api/sheets/v4"
)

const (
	valueInputUserEntered = "USER_ENTERED"
	insertRows            = "INSERT_ROWS"
	renderFormatted       = "FORMATTED_VALUE"
)

// Session is an authorized Sheets API handle scoped to one refresh token.
// It lives for a single act step and is then dropped.
type Session struct {
	svc   *sheets.Service
	pacer *rate.Limiter
}

type Spreadsheet struct {
	session    *Session
	ID         string
	Title      string
	worksheets []*Worksheet
}

type Worksheet struct {
	spreadsheet *Spreadsheet
	ID          int64
	Title       string
}

type Dropdown struct {
	Column  string   `json:"column"`
	Options []string `json:"options"`
}

func (s *Session) wait(ctx context.Context) error {
	if s.pacer == nil {
		return nil
	}

	return s.pacer.Wait(ctx)
}

// Open fetches spreadsheet metadata by id.
func (s *Session) Open(ctx context.Context, spreadsheetID string) (*Spreadsheet, error) {
	if err := s.wait(ctx); err != nil {
		return nil, err
	}

	resp, err := s.svc.Spreadsheets.Get(spreadsheetID).
		Fields("spreadsheetId,properties.title,sheets.properties(sheetId,title)").
		Context(ctx).
		Do()
	if err != nil {
		return nil, mapError(err, spreadsheetID, "open spreadsheet")
	}

	doc := &Spreadsheet{
		session: s,
		ID:      spreadsheetID,
	}
	if resp.Properties != nil {
		doc.Title = resp.Properties.Title
	}

	for _, sheet := range resp.Sheets {
		if sheet.Properties == nil {
			continue
		}

		doc.worksheets = append(doc.worksheets, &Worksheet{
			spreadsheet: doc,
			ID:          sheet.Properties.SheetId,
			Title:       sheet.Properties.Title,
		})
	}

	return doc, nil
}

// AppendRows opens the spreadsheet, resolves the worksheet by exact title and
// appends all rows with one batched call.
func (s *Session) AppendRows(ctx context.Context, spreadsheetID, worksheet string, rows [][]string) (int, error) {
	doc, err := s.Open(ctx, spreadsheetID)
	if err != nil {
		return 0, err
	}

	ws, err := doc.Worksheet(worksheet)
	if err != nil {
		return 0, err
	}

	return ws.AppendRows(ctx, rows)
}

func (d *Spreadsheet) Worksheets() []*Worksheet {
	return d.worksheets
}

func (d *Spreadsheet) Titles() []string {
	return pie.Map(d.worksheets, func(w *Worksheet) string {
		return w.Title
	})
}

func (d *Spreadsheet) Worksheet(title string) (*Worksheet, error) {
	idx := pie.FindFirstUsing(d.worksheets, func(w *Worksheet) bool {
		return w.Title == title
	})
	if idx < 0 {
		return nil, &WorksheetNotFoundError{Worksheet: title}
	}

	return d.worksheets[idx], nil
}

// Dropdowns returns list-style data validation rules found in the given
// A1 cell range of every worksheet, keyed by worksheet title.
func (d *Spreadsheet) Dropdowns(ctx context.Context, cells string) (map[string][]Dropdown, error) {
	if err := d.session.wait(ctx); err != nil {
		return nil, err
	}

	ranges := pie.Map(d.worksheets, func(w *Worksheet) string {
		return w.rangeOf(cells)
	})

	resp, err := d.session.svc.Spreadsheets.Get(d.ID).
		Ranges(ranges...).
		IncludeGridData(true).
		Fields("sheets(properties.title,data(startColumn,rowData.values.dataValidation))").
		Context(ctx).
		Do()
	if err != nil {
		return nil, mapError(err, d.ID, "fetch validation rules")
	}

	result := make(map[string][]Dropdown)

	for _, sheet := range resp.Sheets {
		if sheet.Properties == nil {
			continue
		}

		byColumn := make(map[int64][]string)
		var order []int64

		for _, grid := range sheet.Data {
			for _, row := range grid.RowData {
				for i, cell := range row.Values {
					options := listOptions(cell)
					if len(options) == 0 {
						continue
					}

					col := grid.StartColumn + int64(i)
					if _, seen := byColumn[col]; !seen {
						order = append(order, col)
					}
					for _, option := range options {
						if !pie.Contains(byColumn[col], option) {
							byColumn[col] = append(byColumn[col], option)
						}
					}
				}
			}
		}

		for _, col := range order {
			result[sheet.Properties.Title] = append(result[sheet.Properties.Title], Dropdown{
				Column:  columnName(col),
				Options: byColumn[col],
			})
		}
	}

	return result, nil
}

func (w *Worksheet) AppendRows(ctx context.Context, rows [][]string) (int, error) {
	if err := w.spreadsheet.session.wait(ctx); err != nil {
		return 0, err
	}

	values := pie.Map(rows, func(row []string) []any {
		return pie.Map(row, func(cell string) any {
			return cell
		})
	})

	resp, err := w.spreadsheet.session.svc.Spreadsheets.Values.
		Append(w.spreadsheet.ID, quoteTitle(w.Title), &sheets.ValueRange{Values: values}).
		ValueInputOption(valueInputUserEntered).
		InsertDataOption(insertRows).
		Context(ctx).
		Do()
	if err != nil {
		return 0, mapError(err, w.spreadsheet.ID, "append rows")
	}

	// blank rows are sent but not counted by the API
	if resp.Updates != nil && int(resp.Updates.UpdatedRows) != len(rows) {
		slog.Debug("Append row count differs",
			"spreadsheet_id", w.spreadsheet.ID,
			"worksheet", w.Title,
			"sent_rows", len(rows),
			"updated_rows", resp.Updates.UpdatedRows,
		)
	}

	return len(rows), nil
}

// Read returns formatted cell values of an A1 range inside the worksheet.
func (w *Worksheet) Read(ctx context.Context, cells string) ([][]string, error) {
	if err := w.spreadsheet.session.wait(ctx); err != nil {
		return nil, err
	}

	resp, err := w.spreadsheet.session.svc.Spreadsheets.Values.
		Get(w.spreadsheet.ID, w.rangeOf(cells)).
		ValueRenderOption(renderFormatted).
		Context(ctx).
		Do()
	if err != nil {
		return nil, mapError(err, w.spreadsheet.ID, "read values")
	}

	return pie.Map(resp.Values, func(row []any) []string {
		return pie.Map(row, func(cell any) string {
			return fmt.Sprint(cell)
		})
	}), nil
}

func (w *Worksheet) rangeOf(cells string) string {
	return quoteTitle(w.Title) + "!" + cells
}

func listOptions(cell *sheets.CellData) []string {
	if cell == nil || cell.DataValidation == nil || cell.DataValidation.Condition == nil {
		return nil
	}

	cond := cell.DataValidation.Condition
	if cond.Type != "ONE_OF_LIST" && cond.Type != "ONE_OF_RANGE" {
		return nil
	}

	return pie.Map(cond.Values, func(v *sheets.ConditionValue) string {
		return v.UserEnteredValue
	})
}

func quoteTitle(title string) string {
	return "'" + strings.ReplaceAll(title, "'", "''") + "'"
}

func columnName(index int64) string {
	name := ""
	for n := index + 1; n > 0; n = (n - 1) / 26 {
		name = string(rune('A'+(n-1)%26)) + name
	}

	return name
}
