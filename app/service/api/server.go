package api

import (
	"context"
	"net/http"
	"receiptagent/app/config"
	"receiptagent/app/service/agent"
	"receiptagent/app/service/auth"
	"receiptagent/app/service/mcpserver"
	"receiptagent/app/service/queue"
	"receiptagent/app/service/receipt"
	"receiptagent/app/service/registry"
	"receiptagent/app/service/schema"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/limiter"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/samber/do"
)

const shutdownTimeout = 10 * time.Second

var _ do.Shutdownable = (*Server)(nil)

type Authenticator interface {
	Authenticate(header string) (*auth.User, error)
}

type Registry interface {
	Register(ctx context.Context, userID, spreadsheetID, name string) (*registry.Spreadsheet, error)
	List(ctx context.Context, userID string) ([]*registry.Spreadsheet, error)
	SetRefreshToken(ctx context.Context, userID, refreshToken string) error
}

type Schemas interface {
	Check(ctx context.Context, userID, spreadsheetID string) error
	Worksheets(ctx context.Context, userID, spreadsheetID string) ([]string, error)
}

type Receipts interface {
	Process(ctx context.Context, req receipt.Request) (*agent.Response, error)
}

type Queue interface {
	Add(job queue.Job) bool
}

type Deps struct {
	Auth     Authenticator
	Registry Registry
	Schemas  Schemas
	Receipts Receipts
	Queue    Queue
	// MCP is mounted at /mcp when set
	MCP http.Handler
}

type Server struct {
	cfg      config.Server
	deps     Deps
	app      *fiber.App
	validate *validator.Validate
}

func New(di *do.Injector) (*Server, error) {
	cfg := do.MustInvoke[*config.Config](di)

	deps := Deps{
		Auth:     do.MustInvoke[*auth.Service](di),
		Registry: do.MustInvoke[*registry.Service](di),
		Schemas:  do.MustInvoke[*schema.Service](di),
		Receipts: do.MustInvoke[*receipt.Service](di),
		Queue:    do.MustInvoke[*queue.Service](di),
	}
	if cfg.MCP.Enabled {
		deps.MCP = do.MustInvoke[*mcpserver.Service](di).Handler()
	}

	return NewServer(cfg.Server, deps), nil
}

func NewServer(cfg config.Server, deps Deps) *Server {
	s := &Server{
		cfg:      cfg,
		deps:     deps,
		validate: validator.New(),
	}

	s.app = fiber.New(fiber.Config{
		AppName:               "receiptagent",
		BodyLimit:             max(cfg.BodyLimitMB, 1) * 1024 * 1024,
		ErrorHandler:          errorHandler,
		DisableStartupMessage: true,
	})

	s.routes()

	return s
}

func (s *Server) routes() {
	s.app.Use(recover.New())
	s.app.Use(cors.New(cors.Config{
		AllowOrigins:     s.cfg.FrontendURL,
		AllowHeaders:     "Origin, Content-Type, Accept, Authorization",
		AllowCredentials: true,
	}))

	receiptLimiter := limiter.New(limiter.Config{
		Max:        max(s.cfg.ReceiptsPerMinute, 1),
		Expiration: time.Minute,
		KeyGenerator: func(c *fiber.Ctx) string {
			return currentUser(c).ID
		},
		LimitReached: func(c *fiber.Ctx) error {
			return fiber.NewError(fiber.StatusTooManyRequests, "Too many receipts uploaded. Please wait a minute and try again.")
		},
	})

	s.app.Get("/", s.health)

	s.app.Post("/spreadsheets", s.authenticate, s.registerSpreadsheet)
	s.app.Get("/spreadsheets/:id/worksheets", s.authenticate, s.listWorksheets)
	s.app.Get("/canvases", s.authenticate, s.listCanvases)
	s.app.Post("/canvases/:id/refresh-schema", s.authenticate, s.refreshSchema)
	s.app.Post("/process-receipt", s.authenticate, receiptLimiter, s.processReceipt)
	s.app.Post("/users/me/google-token", s.authenticate, s.linkGoogleAccount)

	if s.deps.MCP != nil {
		s.app.All("/mcp", s.authenticate, adaptor.HTTPHandler(s.deps.MCP))
	}
}

func (s *Server) Listen() error {
	return s.app.Listen(s.cfg.Listen)
}

func (s *Server) Shutdown() error {
	return s.app.ShutdownWithTimeout(shutdownTimeout)
}

func (s *Server) withTimeout(c *fiber.Ctx) (context.Context, context.CancelFunc) {
	if s.cfg.RequestTimeout <= 0 {
		return context.WithCancel(c.UserContext())
	}

	return context.WithTimeout(c.UserContext(), s.cfg.RequestTimeout)
}
