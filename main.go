package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"receiptagent/app/client/gsheets"
	"receiptagent/app/client/llm"
	"receiptagent/app/config"
	"receiptagent/app/service/agent"
	"receiptagent/app/service/api"
	"receiptagent/app/service/auth"
	"receiptagent/app/service/checkpoint"
	"receiptagent/app/service/engine"
	"receiptagent/app/service/mcpserver"
	"receiptagent/app/service/queue"
	"receiptagent/app/service/receipt"
	"receiptagent/app/service/registry"
	"receiptagent/app/service/schema"
	"receiptagent/app/util/mylog"
	"syscall"

	"github.com/gofiber/fiber/v2/log"
	"github.com/samber/do"
)

func main() {
	di := do.New()
	defer di.Shutdown()
	defer log.Info("Waiting for services to finish...")

	mylog.Preinit()

	appCtx, cancel := context.WithCancel(context.Background())
	defer cancel()
	do.ProvideValue(di, appCtx)

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config load failed: %v", err)
	}
	do.ProvideValue(di, cfg)

	if err = mylog.Init(cfg); err != nil {
		log.Fatalf("logging init failed: %v", err)
	}

	do.Provide(di, gsheets.NewClient)
	do.Provide(di, llm.New)
	do.ProvideValue(di, checkpoint.NewMemorySaver[*agent.State]())
	do.Provide(di, registry.New)
	do.Provide(di, auth.New)
	do.Provide(di, agent.New)
	do.Provide(di, receipt.New)
	do.Provide(di, schema.New)
	do.Provide(di, queue.New)
	do.Provide(di, engine.New)
	do.Provide(di, mcpserver.New)
	do.Provide(di, api.New)

	server := do.MustInvoke[*api.Server](di)

	go func() {
		sigint := make(chan os.Signal, 1)
		signal.Notify(sigint, os.Interrupt, syscall.SIGTERM)
		<-sigint

		log.Info("Shutting down...")

		cancel()
	}()

	go do.MustInvoke[*engine.Service](di).Run(appCtx)

	go func() {
		slog.Info("Service started", "listen", cfg.Server.Listen, "mcp", cfg.MCP.Enabled)

		if err := server.Listen(); err != nil {
			slog.Error("HTTP server failed", "error", err)
			cancel()
		}
	}()

	<-appCtx.Done()
}
