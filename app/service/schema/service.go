package schema

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"receiptagent/app/client/gsheets"
	"receiptagent/app/config"
	"receiptagent/app/service/registry"
	"strings"
	"time"

	_ "embed"

	"github.com/samber/do"
	"github.com/samber/oops"
	"github.com/tmc/langchaingo/llms"
)

//go:embed summary_prompt.txt
var summaryPromptTemplate string

const (
	previewRange       = "A1:Z50"
	maxSummaryDuration = 2 * time.Minute
)

type Registry interface {
	Access(ctx context.Context, userID, spreadsheetID string) (*registry.Spreadsheet, string, error)
	UpdateSchemaSummary(ctx context.Context, spreadsheetID, summary string) error
}

type SheetsClient interface {
	Authorize(ctx context.Context, refreshToken string) (*gsheets.Session, error)
}

type worksheetDetails struct {
	Name      string             `json:"name"`
	Preview   [][]string         `json:"preview"`
	Dropdowns []gsheets.Dropdown `json:"dropdowns,omitempty"`
}

// Service reads spreadsheet structure on behalf of a user and keeps the
// schema summary consumed by receipt runs up to date.
type Service struct {
	registry    Registry
	sheets      SheetsClient
	model       llms.Model
	temperature float64
}

func New(di *do.Injector) (*Service, error) {
	cfg := do.MustInvoke[*config.Config](di)

	return NewService(
		do.MustInvoke[*registry.Service](di),
		do.MustInvoke[*gsheets.Client](di),
		do.MustInvoke[llms.Model](di),
		cfg.LLM.Temperature,
	), nil
}

func NewService(registry Registry, sheets SheetsClient, model llms.Model, temperature float64) *Service {
	return &Service{
		registry:    registry,
		sheets:      sheets,
		model:       model,
		temperature: temperature,
	}
}

func (s *Service) open(ctx context.Context, userID, spreadsheetID string) (*gsheets.Spreadsheet, error) {
	_, refreshToken, err := s.registry.Access(ctx, userID, spreadsheetID)
	if err != nil {
		return nil, err
	}

	session, err := s.sheets.Authorize(ctx, refreshToken)
	if err != nil {
		return nil, err
	}

	return session.Open(ctx, spreadsheetID)
}

// Check verifies the user may refresh the spreadsheet without calling Google.
func (s *Service) Check(ctx context.Context, userID, spreadsheetID string) error {
	_, _, err := s.registry.Access(ctx, userID, spreadsheetID)
	return err
}

func (s *Service) Worksheets(ctx context.Context, userID, spreadsheetID string) ([]string, error) {
	doc, err := s.open(ctx, userID, spreadsheetID)
	if err != nil {
		return nil, err
	}

	return doc.Titles(), nil
}

// Refresh builds a new schema summary from a preview of every worksheet and
// its dropdown rules, and stores it.
func (s *Service) Refresh(ctx context.Context, userID, spreadsheetID string) (string, error) {
	doc, err := s.open(ctx, userID, spreadsheetID)
	if err != nil {
		return "", err
	}

	dropdowns, err := doc.Dropdowns(ctx, previewRange)
	if err != nil {
		return "", err
	}

	details := make([]worksheetDetails, 0, len(doc.Worksheets()))
	for _, ws := range doc.Worksheets() {
		preview, err := ws.Read(ctx, previewRange)
		if err != nil {
			return "", err
		}

		details = append(details, worksheetDetails{
			Name:      ws.Title,
			Preview:   preview,
			Dropdowns: dropdowns[ws.Title],
		})
	}

	structure, err := json.Marshal(details)
	if err != nil {
		return "", fmt.Errorf("failed to marshal structure: %w", err)
	}

	prompt := strings.ReplaceAll(summaryPromptTemplate, "{title}", doc.Title)
	prompt = strings.ReplaceAll(prompt, "{structure}", string(structure))

	ctx, cancel := context.WithTimeout(ctx, maxSummaryDuration)
	defer cancel()

	summary, err := llms.GenerateFromSinglePrompt(ctx, s.model, prompt, llms.WithTemperature(s.temperature))
	if err != nil {
		return "", oops.
			In("schema").
			With("spreadsheet_id", spreadsheetID).
			Wrapf(err, "failed to generate summary")
	}

	summary = strings.TrimSpace(summary)
	if summary == "" {
		return "", oops.In("schema").With("spreadsheet_id", spreadsheetID).Errorf("model returned an empty summary")
	}

	if err = s.registry.UpdateSchemaSummary(ctx, spreadsheetID, summary); err != nil {
		return "", err
	}

	slog.Info("Schema summary refreshed",
		"spreadsheet_id", spreadsheetID,
		"worksheets", len(details),
		"summary_length", len(summary),
	)

	return summary, nil
}
