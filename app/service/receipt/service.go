package receipt

import (
	"context"
	"encoding/base64"
	"fmt"
	"log/slog"
	"receiptagent/app/service/agent"
	"receiptagent/app/service/checkpoint"
	"receiptagent/app/service/registry"
	"regexp"
	"strings"
	"time"

	_ "embed"

	"github.com/google/uuid"
	"github.com/samber/do"
	"github.com/samber/oops"
	"github.com/tmc/langchaingo/llms"
)

//go:embed seed_prompt.txt
var seedPromptTemplate string

const defaultSchemaSummary = "No summary available. Please refresh the canvas schema."

var spreadsheetIDPattern = regexp.MustCompile(`^[a-zA-Z0-9-_]{40,}$`)

type Registry interface {
	Access(ctx context.Context, userID, spreadsheetID string) (*registry.Spreadsheet, string, error)
}

type Runner interface {
	Run(ctx context.Context, runID string, state *agent.State) (*agent.State, error)
}

type Checkpoints interface {
	Delete(runID string)
}

type Request struct {
	UserID        string
	SpreadsheetID string
	WorksheetHint string
	// Image must already be sanitized
	Image    []byte
	MimeType string
}

type Service struct {
	registry    Registry
	runner      Runner
	checkpoints Checkpoints
}

func New(di *do.Injector) (*Service, error) {
	return NewService(
		do.MustInvoke[*registry.Service](di),
		do.MustInvoke[*agent.Orchestrator](di),
		do.MustInvoke[*checkpoint.MemorySaver[*agent.State]](di),
	), nil
}

func NewService(registry Registry, runner Runner, checkpoints Checkpoints) *Service {
	return &Service{
		registry:    registry,
		runner:      runner,
		checkpoints: checkpoints,
	}
}

func ValidateSpreadsheetID(spreadsheetID string) error {
	if !spreadsheetIDPattern.MatchString(spreadsheetID) {
		return &InvalidInputError{Message: "Invalid spreadsheet_id format."}
	}

	return nil
}

// Process runs the agent on one receipt and classifies its outcome. A run that
// finished without achieving the goal yields *agent.BusinessLogicFailure.
func (s *Service) Process(ctx context.Context, req Request) (*agent.Response, error) {
	if err := ValidateSpreadsheetID(req.SpreadsheetID); err != nil {
		return nil, err
	}

	sheet, refreshToken, err := s.registry.Access(ctx, req.UserID, req.SpreadsheetID)
	if err != nil {
		return nil, err
	}

	summary := sheet.SchemaSummary
	if strings.TrimSpace(summary) == "" {
		summary = defaultSchemaSummary
	}

	mimeType := req.MimeType
	if mimeType == "" {
		mimeType = sanitizedMimeType
	}

	seed := llms.MessageContent{
		Role: llms.ChatMessageTypeHuman,
		Parts: []llms.ContentPart{
			llms.TextContent{Text: renderSeedPrompt(req.SpreadsheetID, req.WorksheetHint, summary)},
			llms.ImageURLPart(fmt.Sprintf("data:%s;base64,%s", mimeType, base64.StdEncoding.EncodeToString(req.Image))),
		},
	}

	runID := uuid.NewString()
	defer s.checkpoints.Delete(runID)

	logger := slog.With("run_id", runID, "user_id", req.UserID, "spreadsheet_id", req.SpreadsheetID)
	logger.Info("Processing receipt", "image_size", len(req.Image), "worksheet_hint", req.WorksheetHint)

	start := time.Now()

	state := agent.NewState(req.SpreadsheetID, req.WorksheetHint, refreshToken, seed)

	final, err := s.runner.Run(ctx, runID, state)
	if err != nil {
		return nil, oops.
			In("receipt").
			With("run_id", runID).
			Wrapf(err, "agent run failed")
	}

	resp, err := agent.Interpret(final)
	if err != nil {
		logger.Warn("Agent completed with a business logic failure",
			"agent_response", err.Error(),
			"duration", time.Since(start),
		)
		return nil, err
	}

	logger.Info("Receipt processing finished successfully", "duration", time.Since(start))

	return resp, nil
}

func renderSeedPrompt(spreadsheetID, worksheetHint, summary string) string {
	hint := ""
	if worksheetHint != "" {
		hint = fmt.Sprintf("The user suggested the worksheet %q. Prefer it unless the receipt clearly belongs elsewhere.\n", worksheetHint)
	}

	templateValues := map[string]any{
		"spreadsheet_id": spreadsheetID,
		"worksheet_hint": hint,
		"schema_summary": summary,
	}

	prompt := seedPromptTemplate
	for key, value := range templateValues {
		prompt = strings.ReplaceAll(prompt, "{"+key+"}", fmt.Sprint(value))
	}

	return prompt
}
