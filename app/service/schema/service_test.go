package schema

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"receiptagent/app/client/gsheets"
	"receiptagent/app/service/registry"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tmc/langchaingo/llms"
)

type stubRegistry struct {
	err       error
	summaries map[string]string
}

func (r *stubRegistry) Access(context.Context, string, string) (*registry.Spreadsheet, string, error) {
	if r.err != nil {
		return nil, "", r.err
	}
	return &registry.Spreadsheet{}, "1//refresh", nil
}

func (r *stubRegistry) UpdateSchemaSummary(_ context.Context, spreadsheetID, summary string) error {
	if r.summaries == nil {
		r.summaries = make(map[string]string)
	}
	r.summaries[spreadsheetID] = summary
	return nil
}

type promptModel struct {
	prompt string
	answer string
}

func (m *promptModel) GenerateContent(_ context.Context, messages []llms.MessageContent, _ ...llms.CallOption) (*llms.ContentResponse, error) {
	for _, part := range messages[0].Parts {
		if text, ok := part.(llms.TextContent); ok {
			m.prompt += text.Text
		}
	}
	return &llms.ContentResponse{Choices: []*llms.ContentChoice{{Content: m.answer}}}, nil
}

func (m *promptModel) Call(ctx context.Context, prompt string, options ...llms.CallOption) (string, error) {
	return llms.GenerateFromSinglePrompt(ctx, m, prompt, options...)
}

func fakeSheets(t *testing.T) *gsheets.Client {
	t.Helper()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")

		switch {
		case r.URL.Path == "/token":
			_, _ = io.WriteString(w, `{"access_token":"at-1","token_type":"Bearer","expires_in":3600}`)

		case strings.Contains(r.URL.Path, "/values/"):
			if strings.Contains(r.URL.Path, "Groceries") {
				_, _ = io.WriteString(w, `{"values":[["Date","Category","Price"],["01.05.2024","Food","3,50 €"]]}`)
			} else {
				_, _ = io.WriteString(w, `{"values":[["Date","Destination"]]}`)
			}

		case r.URL.Query().Get("includeGridData") == "true":
			assert.ElementsMatch(t, []string{"'Groceries'!A1:Z50", "'Travel'!A1:Z50"}, r.URL.Query()["ranges"])
			_, _ = io.WriteString(w, `{"sheets":[
				{"properties":{"title":"Groceries"},"data":[{"startColumn":0,"rowData":[
					{"values":[{},{"dataValidation":{"condition":{"type":"ONE_OF_LIST","values":[{"userEnteredValue":"Food"},{"userEnteredValue":"Drinks"}]}}}]},
					{"values":[{},{"dataValidation":{"condition":{"type":"ONE_OF_LIST","values":[{"userEnteredValue":"Food"},{"userEnteredValue":"Drinks"}]}}}]}
				]}]},
				{"properties":{"title":"Travel"},"data":[{"startColumn":0,"rowData":[{"values":[{}]}]}]}
			]}`)

		case strings.HasPrefix(r.URL.Path, "/v4/spreadsheets/"):
			_, _ = io.WriteString(w, `{"spreadsheetId":"sheet-1","properties":{"title":"Budget"},"sheets":[
				{"properties":{"sheetId":0,"title":"Groceries"}},
				{"properties":{"sheetId":1,"title":"Travel"}}
			]}`)

		default:
			t.Errorf("unexpected request %s", r.URL.String())
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	t.Cleanup(srv.Close)

	return gsheets.NewWithCredentials(gsheets.NewCredentials("id", "secret", srv.URL+"/token"), srv.URL+"/", 0)
}

func TestService_Worksheets(t *testing.T) {
	svc := NewService(&stubRegistry{}, fakeSheets(t), &promptModel{}, 0)

	titles, err := svc.Worksheets(context.Background(), "u1", "sheet-1")
	require.NoError(t, err)
	assert.Equal(t, []string{"Groceries", "Travel"}, titles)
}

func TestService_Refresh(t *testing.T) {
	reg := &stubRegistry{}
	model := &promptModel{answer: "  Groceries: table at A1 with Date, Category (Food|Drinks), Price.  "}
	svc := NewService(reg, fakeSheets(t), model, 0)

	summary, err := svc.Refresh(context.Background(), "u1", "sheet-1")
	require.NoError(t, err)
	assert.Equal(t, "Groceries: table at A1 with Date, Category (Food|Drinks), Price.", summary)
	assert.Equal(t, summary, reg.summaries["sheet-1"])

	assert.Contains(t, model.prompt, "Spreadsheet title: Budget")
	assert.Contains(t, model.prompt, `"name":"Groceries"`)
	assert.Contains(t, model.prompt, `"3,50 €"`)
	assert.Contains(t, model.prompt, `"dropdowns":[{"column":"B","options":["Food","Drinks"]}]`)
	assert.Contains(t, model.prompt, `"name":"Travel"`)
}

func TestService_AccessDenied(t *testing.T) {
	svc := NewService(&stubRegistry{err: registry.ErrAccessDenied}, fakeSheets(t), &promptModel{}, 0)

	_, err := svc.Refresh(context.Background(), "u1", "sheet-1")
	assert.ErrorIs(t, err, registry.ErrAccessDenied)

	assert.ErrorIs(t, svc.Check(context.Background(), "u1", "sheet-1"), registry.ErrAccessDenied)
}

func TestService_EmptySummary(t *testing.T) {
	reg := &stubRegistry{}
	svc := NewService(reg, fakeSheets(t), &promptModel{answer: "  "}, 0)

	_, err := svc.Refresh(context.Background(), "u1", "sheet-1")
	assert.Error(t, err)
	assert.Empty(t, reg.summaries)
}
