package agent

import (
	"context"
	"encoding/json"
	"fmt"

	_ "embed"

	"github.com/santhosh-tekuri/jsonschema/v6"
	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/tools"
)

const (
	AppendRowsToolName = "append_rows"
	FinishTaskToolName = "finish_task"
)

//go:embed schema/append_rows.json
var appendRowsSchema []byte

//go:embed schema/finish_task.json
var finishTaskSchema []byte

// Env is what the orchestrator injects into a tool call. The model never sees it.
type Env struct {
	Session       Session
	SpreadsheetID string
}

type ToolSpec struct {
	Name        string
	Description string
	Schema      []byte
	Run         func(ctx context.Context, env Env, args []byte) (string, error)
}

type compiledTool struct {
	spec       ToolSpec
	schema     *jsonschema.Schema
	parameters any
}

// ToolSet is the immutable table of side-effecting tools offered to the model.
type ToolSet struct {
	tools  []*compiledTool
	byName map[string]*compiledTool
}

func NewToolSet(specs ...ToolSpec) (*ToolSet, error) {
	set := &ToolSet{
		byName: make(map[string]*compiledTool, len(specs)),
	}

	for _, spec := range specs {
		if _, ok := set.byName[spec.Name]; ok {
			return nil, fmt.Errorf("duplicate tool %q", spec.Name)
		}

		schema, parameters, err := compileSchema(spec.Name, spec.Schema)
		if err != nil {
			return nil, err
		}

		tool := &compiledTool{
			spec:       spec,
			schema:     schema,
			parameters: parameters,
		}
		set.tools = append(set.tools, tool)
		set.byName[spec.Name] = tool
	}

	return set, nil
}

// DefaultToolSet holds append_rows only.
func DefaultToolSet() *ToolSet {
	set, err := NewToolSet(AppendRowsTool())
	if err != nil {
		panic(err)
	}

	return set
}

func (t *ToolSet) Specs() []ToolSpec {
	result := make([]ToolSpec, 0, len(t.tools))
	for _, tool := range t.tools {
		result = append(result, tool.spec)
	}

	return result
}

// Definitions returns the declarations passed to the model.
func (t *ToolSet) Definitions() []llms.Tool {
	result := make([]llms.Tool, 0, len(t.tools))
	for _, tool := range t.tools {
		result = append(result, llms.Tool{
			Type: "function",
			Function: &llms.FunctionDefinition{
				Name:        tool.spec.Name,
				Description: tool.spec.Description,
				Parameters:  tool.parameters,
			},
		})
	}

	return result
}

// Bind returns the named tool with env attached. Arguments are checked against
// the tool schema before the implementation runs.
func (t *ToolSet) Bind(name string, env Env) (tools.Tool, error) {
	tool, ok := t.byName[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownTool, name)
	}

	return &agentTool{
		name:        tool.spec.Name,
		description: tool.spec.Description,
		call: func(ctx context.Context, input string) (string, error) {
			if err := validateArgs(tool.schema, input); err != nil {
				return "", err
			}

			return tool.spec.Run(ctx, env, []byte(input))
		},
	}, nil
}

type agentTool struct {
	name        string
	description string
	call        func(ctx context.Context, input string) (string, error)
}

func (m *agentTool) Name() string {
	return m.name
}

func (m *agentTool) Description() string {
	return m.description
}

func (m *agentTool) Call(ctx context.Context, input string) (string, error) {
	return m.call(ctx, input)
}

type appendRowsArgs struct {
	SpreadsheetID string     `json:"spreadsheet_id"`
	WorksheetName string     `json:"worksheet_name"`
	DataRows      [][]string `json:"data_rows"`
}

func AppendRowsTool() ToolSpec {
	return ToolSpec{
		Name:        AppendRowsToolName,
		Description: "Appends MULTIPLE rows of data to a Google Sheet in a single batch. This should be the final step.",
		Schema:      appendRowsSchema,
		Run: func(ctx context.Context, env Env, input []byte) (string, error) {
			var args appendRowsArgs
			if err := json.Unmarshal(input, &args); err != nil {
				return "", fmt.Errorf("%w: %v", ErrInvalidArguments, err)
			}

			if args.SpreadsheetID != env.SpreadsheetID {
				return "", fmt.Errorf("spreadsheet %q is not the target of this request", args.SpreadsheetID)
			}

			if env.Session == nil {
				return "", ErrAccountNotLinked
			}

			n, err := env.Session.AppendRows(ctx, args.SpreadsheetID, args.WorksheetName, args.DataRows)
			if err != nil {
				return "", err
			}

			result, _ := json.Marshal(map[string]string{
				"message": fmt.Sprintf("Successfully appended %d rows to '%s'.", n, args.WorksheetName),
			})

			return string(result), nil
		},
	}
}

var finishTask = func() *compiledTool {
	schema, parameters, err := compileSchema(FinishTaskToolName, finishTaskSchema)
	if err != nil {
		panic(err)
	}

	return &compiledTool{
		spec: ToolSpec{
			Name:        FinishTaskToolName,
			Description: "Report the final outcome of the task. Call it alone, after all other tools have completed.",
			Schema:      finishTaskSchema,
		},
		schema:     schema,
		parameters: parameters,
	}
}()

func finishTaskDefinition() llms.Tool {
	return llms.Tool{
		Type: "function",
		Function: &llms.FunctionDefinition{
			Name:        finishTask.spec.Name,
			Description: finishTask.spec.Description,
			Parameters:  finishTask.parameters,
		},
	}
}

func parseOutcome(input string) (*Outcome, error) {
	if err := validateArgs(finishTask.schema, input); err != nil {
		return nil, err
	}

	var outcome Outcome
	if err := json.Unmarshal([]byte(input), &outcome); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidArguments, err)
	}

	return &outcome, nil
}

func compileSchema(name string, raw []byte) (*jsonschema.Schema, any, error) {
	var doc any
	if err := json.Unmarshal(raw, &doc); err != nil {
		return nil, nil, fmt.Errorf("unmarshal %s schema: %w", name, err)
	}

	url := name + ".json"

	c := jsonschema.NewCompiler()
	if err := c.AddResource(url, doc); err != nil {
		return nil, nil, fmt.Errorf("add %s schema resource: %w", name, err)
	}

	schema, err := c.Compile(url)
	if err != nil {
		return nil, nil, fmt.Errorf("compile %s schema: %w", name, err)
	}

	return schema, doc, nil
}

func validateArgs(schema *jsonschema.Schema, input string) error {
	var doc any
	if err := json.Unmarshal([]byte(input), &doc); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidArguments, err)
	}

	if err := schema.Validate(doc); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidArguments, err)
	}

	return nil
}
