package main

import (
	"context"
	"errors"
	"flag"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/mark3labs/mcp-go/server"

	"github.com/queryproxy/queryproxy/config"
	"github.com/queryproxy/queryproxy/databases"
	"github.com/queryproxy/queryproxy/handlers"
	proxymcp "github.com/queryproxy/queryproxy/mcp"
	"github.com/queryproxy/queryproxy/validator"
)

func main() {
	configPath := flag.String("config", "", "path to config file (optional, env vars apply on top)")
	mcpMode := flag.Bool("mcp", false, "serve MCP over stdio instead of HTTP")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: logLevel(cfg.LogLevel),
	}))
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	connector, err := databases.Open(ctx, cfg)
	if err != nil {
		logger.Error("failed to connect to database", "type", cfg.Database.Type, "error", err)
		os.Exit(1)
	}
	defer connector.Close()
	logger.Info("connected to database", "type", cfg.Database.Type)

	v := validator.New(cfg.Query.ForbiddenKeywords...)

	if *mcpMode {
		runMCP(connector, v, logger)
		return
	}
	runHTTP(ctx, cfg, connector, v, logger)
}

func runMCP(connector databases.Connector, v *validator.Validator, logger *slog.Logger) {
	s := server.NewMCPServer(
		"sql-query-proxy",
		"1.0.0",
		server.WithToolCapabilities(false),
		server.WithLogging(),
	)
	proxymcp.RegisterTools(s, connector, v)

	logger.Info("serving MCP over stdio")
	if err := server.ServeStdio(s); err != nil {
		logger.Error("mcp server stopped", "error", err)
		os.Exit(1)
	}
}

func runHTTP(ctx context.Context, cfg *config.Config, connector databases.Connector, v *validator.Validator, logger *slog.Logger) {
	srv := &http.Server{
		Addr:    cfg.Server.Addr(),
		Handler: handlers.NewRouter(connector, v, logger),
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			logger.Error("shutdown error", "error", err)
		}
	}()

	logger.Info("serving HTTP", "addr", srv.Addr)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Error("http server stopped", "error", err)
		os.Exit(1)
	}
	logger.Info("shut down")
}

func logLevel(name string) slog.Level {
	switch name {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
