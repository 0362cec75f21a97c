package receipt

import (
	"context"
	"errors"
	"strings"
	"testing"

	"receiptagent/app/service/agent"
	"receiptagent/app/service/checkpoint"
	"receiptagent/app/service/registry"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tmc/langchaingo/llms"
)

var validID = strings.Repeat("a1B2-_", 7)

type stubRegistry struct {
	sheet *registry.Spreadsheet
	token string
	err   error
}

func (r *stubRegistry) Access(context.Context, string, string) (*registry.Spreadsheet, string, error) {
	return r.sheet, r.token, r.err
}

type stubRunner struct {
	run   func(ctx context.Context, runID string, state *agent.State) (*agent.State, error)
	state *agent.State
	runID string
}

func (r *stubRunner) Run(ctx context.Context, runID string, state *agent.State) (*agent.State, error) {
	r.state = state
	r.runID = runID
	return r.run(ctx, runID, state)
}

type finalText string

func (f finalText) run(_ context.Context, _ string, state *agent.State) (*agent.State, error) {
	state.Result = string(f)
	state.Finished = true
	return state, nil
}

type scriptedModel struct {
	responses []*llms.ContentResponse
	calls     int
}

func (m *scriptedModel) GenerateContent(context.Context, []llms.MessageContent, ...llms.CallOption) (*llms.ContentResponse, error) {
	resp := m.responses[min(m.calls, len(m.responses)-1)]
	m.calls++
	return resp, nil
}

func (m *scriptedModel) Call(ctx context.Context, prompt string, options ...llms.CallOption) (string, error) {
	return llms.GenerateFromSinglePrompt(ctx, m, prompt, options...)
}

type countingSession struct {
	rows int
}

func (s *countingSession) AppendRows(_ context.Context, _, _ string, rows [][]string) (int, error) {
	s.rows += len(rows)
	return len(rows), nil
}

func TestProcess_Success(t *testing.T) {
	reg := &stubRegistry{
		sheet: &registry.Spreadsheet{SpreadsheetID: validID, SchemaSummary: "Groceries: Date | Item | Price"},
		token: "1//refresh",
	}
	runner := &stubRunner{run: finalText("Added the grocery item.").run}
	saver := checkpoint.NewMemorySaver[*agent.State]()

	svc := NewService(reg, runner, saver)

	resp, err := svc.Process(context.Background(), Request{
		UserID:        "u1",
		SpreadsheetID: validID,
		WorksheetHint: "Groceries",
		Image:         []byte("png-bytes"),
		MimeType:      "image/png",
	})
	require.NoError(t, err)
	assert.Equal(t, &agent.Response{Status: agent.StatusSuccess, Message: "Added the grocery item."}, resp)

	state := runner.state
	require.Len(t, state.Messages, 1)
	assert.Equal(t, "1//refresh", state.RefreshToken)
	assert.Equal(t, validID, state.SpreadsheetID)
	assert.Equal(t, "Groceries", state.WorksheetHint)

	parts := state.Messages[0].Parts
	require.Len(t, parts, 2)

	text := parts[0].(llms.TextContent).Text
	assert.Contains(t, text, "You are working with the Google Sheet that has the ID: "+validID)
	assert.Contains(t, text, "Groceries: Date | Item | Price")
	assert.Contains(t, text, `The user suggested the worksheet "Groceries"`)

	image := parts[1].(llms.ImageURLContent)
	assert.Equal(t, "data:image/png;base64,cG5nLWJ5dGVz", image.URL)

	assert.NotEmpty(t, runner.runID)
}

func TestProcess_DefaultSummary(t *testing.T) {
	reg := &stubRegistry{sheet: &registry.Spreadsheet{}, token: "1//refresh"}
	runner := &stubRunner{run: finalText("Added.").run}

	_, err := NewService(reg, runner, checkpoint.NewMemorySaver[*agent.State]()).Process(context.Background(), Request{
		SpreadsheetID: validID,
		Image:         []byte("x"),
	})
	require.NoError(t, err)

	text := runner.state.Messages[0].Parts[0].(llms.TextContent).Text
	assert.Contains(t, text, defaultSchemaSummary)
	assert.NotContains(t, text, "The user suggested")
}

func TestProcess_BusinessFailure(t *testing.T) {
	reg := &stubRegistry{sheet: &registry.Spreadsheet{}, token: "1//refresh"}
	runner := &stubRunner{run: finalText("I was unable to determine the correct worksheet.").run}

	_, err := NewService(reg, runner, checkpoint.NewMemorySaver[*agent.State]()).Process(context.Background(), Request{
		SpreadsheetID: validID,
		Image:         []byte("x"),
	})

	var failure *agent.BusinessLogicFailure
	require.ErrorAs(t, err, &failure)
	assert.Equal(t, "I was unable to determine the correct worksheet.", failure.Message)
}

func TestProcess_Preconditions(t *testing.T) {
	runner := &stubRunner{run: finalText("Added.").run}

	_, err := NewService(&stubRegistry{}, runner, checkpoint.NewMemorySaver[*agent.State]()).Process(context.Background(), Request{
		SpreadsheetID: "short",
	})
	var invalid *InvalidInputError
	require.ErrorAs(t, err, &invalid)
	assert.Equal(t, "Invalid spreadsheet_id format.", invalid.Message)

	_, err = NewService(&stubRegistry{err: registry.ErrAccessDenied}, runner, checkpoint.NewMemorySaver[*agent.State]()).Process(context.Background(), Request{
		SpreadsheetID: validID,
	})
	assert.ErrorIs(t, err, registry.ErrAccessDenied)

	_, err = NewService(&stubRegistry{err: registry.ErrAccountNotLinked}, runner, checkpoint.NewMemorySaver[*agent.State]()).Process(context.Background(), Request{
		SpreadsheetID: validID,
	})
	assert.ErrorIs(t, err, registry.ErrAccountNotLinked)

	assert.Nil(t, runner.state)
}

func TestProcess_RunError(t *testing.T) {
	reg := &stubRegistry{sheet: &registry.Spreadsheet{}, token: "1//refresh"}
	runner := &stubRunner{run: func(context.Context, string, *agent.State) (*agent.State, error) {
		return nil, errors.New("model unavailable")
	}}

	_, err := NewService(reg, runner, checkpoint.NewMemorySaver[*agent.State]()).Process(context.Background(), Request{
		SpreadsheetID: validID,
		Image:         []byte("x"),
	})
	require.Error(t, err)

	var failure *agent.BusinessLogicFailure
	assert.False(t, errors.As(err, &failure))
}

func TestProcess_WithOrchestratorDropsCheckpoints(t *testing.T) {
	args := `{"spreadsheet_id":"` + validID + `","worksheet_name":"Groceries","data_rows":[["2024-01-01","Milk","3.50"]]}`
	model := &scriptedModel{responses: []*llms.ContentResponse{
		{Choices: []*llms.ContentChoice{{ToolCalls: []llms.ToolCall{{
			ID:           "call-1",
			Type:         "function",
			FunctionCall: &llms.FunctionCall{Name: agent.AppendRowsToolName, Arguments: args},
		}}}}},
		{Choices: []*llms.ContentChoice{{Content: "Added the grocery item."}}},
	}}

	session := &countingSession{}
	auth := agent.AuthorizerFunc(func(context.Context, string) (agent.Session, error) {
		return session, nil
	})

	saver := checkpoint.NewMemorySaver[*agent.State]()
	orchestrator := agent.NewOrchestrator(model, auth, agent.DefaultToolSet(), saver, agent.Options{})

	reg := &stubRegistry{sheet: &registry.Spreadsheet{}, token: "1//refresh"}

	resp, err := NewService(reg, orchestrator, saver).Process(context.Background(), Request{
		SpreadsheetID: validID,
		Image:         []byte("x"),
	})
	require.NoError(t, err)
	assert.Equal(t, "Added the grocery item.", resp.Message)
	assert.Equal(t, 1, session.rows)
	assert.Zero(t, saver.Runs())
}
