package mcpserver

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"receiptagent/app/service/agent"
	"receiptagent/app/service/auth"
	"receiptagent/app/service/registry"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
	"github.com/samber/do"
)

const (
	serverName    = "receiptagent"
	serverVersion = "1.0.0"
)

type userKey struct{}

func WithUser(ctx context.Context, userID string) context.Context {
	return context.WithValue(ctx, userKey{}, userID)
}

func userFromContext(ctx context.Context) (string, bool) {
	userID, ok := ctx.Value(userKey{}).(string)
	return userID, ok && userID != ""
}

type Authenticator interface {
	Authenticate(header string) (*auth.User, error)
}

type Registry interface {
	Access(ctx context.Context, userID, spreadsheetID string) (*registry.Spreadsheet, string, error)
}

// Service exposes the side-effecting agent tools over MCP. Every call is
// scoped to the bearer of the request the same way an act step is.
type Service struct {
	authn    Authenticator
	registry Registry
	authz    agent.Authorizer
	tools    *agent.ToolSet

	mcp  *server.MCPServer
	http *server.StreamableHTTPServer
}

func New(di *do.Injector) (*Service, error) {
	orchestrator := do.MustInvoke[*agent.Orchestrator](di)

	return NewService(
		do.MustInvoke[*auth.Service](di),
		do.MustInvoke[*registry.Service](di),
		orchestrator.Authorizer(),
		orchestrator.Tools(),
	), nil
}

func NewService(authn Authenticator, registry Registry, authz agent.Authorizer, tools *agent.ToolSet) *Service {
	s := &Service{
		authn:    authn,
		registry: registry,
		authz:    authz,
		tools:    tools,
		mcp:      server.NewMCPServer(serverName, serverVersion, server.WithToolCapabilities(false)),
	}

	for _, spec := range tools.Specs() {
		s.mcp.AddTool(
			mcp.NewToolWithRawSchema(spec.Name, spec.Description, json.RawMessage(spec.Schema)),
			s.handler(spec.Name),
		)
	}

	s.http = server.NewStreamableHTTPServer(s.mcp,
		server.WithStateLess(true),
		server.WithHTTPContextFunc(s.httpContext),
	)

	return s
}

func (s *Service) MCPServer() *server.MCPServer {
	return s.mcp
}

func (s *Service) Handler() http.Handler {
	return s.http
}

func (s *Service) httpContext(ctx context.Context, r *http.Request) context.Context {
	user, err := s.authn.Authenticate(r.Header.Get("Authorization"))
	if err != nil {
		return ctx
	}

	return WithUser(ctx, user.ID)
}

func (s *Service) handler(name string) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		userID, ok := userFromContext(ctx)
		if !ok {
			return mcp.NewToolResultError("Unauthenticated request."), nil
		}

		spreadsheetID, _ := req.GetArguments()["spreadsheet_id"].(string)

		_, refreshToken, err := s.registry.Access(ctx, userID, spreadsheetID)
		if err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("Error executing tool %s: %v", name, err)), nil
		}

		session, err := s.authz.Authorize(ctx, refreshToken)
		if err != nil {
			return mcp.NewToolResultError(fmt.Sprintf(
				"Authentication error with Google Sheets: %v. Please ensure your Google account is properly linked and has access.", err)), nil
		}

		tool, err := s.tools.Bind(name, agent.Env{
			Session:       session,
			SpreadsheetID: spreadsheetID,
		})
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}

		input, err := json.Marshal(req.GetArguments())
		if err != nil {
			return nil, fmt.Errorf("failed to marshal arguments: %w", err)
		}

		output, err := tool.Call(ctx, string(input))
		if err != nil {
			slog.Warn("MCP tool call failed", "tool", name, "user_id", userID, "error", err)
			dispatchErr := &agent.ToolDispatchError{Tool: name, Err: err}
			return mcp.NewToolResultError(dispatchErr.Error()), nil
		}

		slog.Info("MCP tool call finished", "tool", name, "user_id", userID, "spreadsheet_id", spreadsheetID)

		return mcp.NewToolResultText(output), nil
	}
}
