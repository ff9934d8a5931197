package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	"go.uber.org/zap"

	"adekit/internal/ade"
	"adekit/internal/cache"
	"adekit/internal/config"
	"adekit/internal/logger"
	"adekit/internal/validate"
)

const (
	version    = "0.1.0"
	serverName = "ade-mcp"
)

func main() {
	if len(os.Args) > 1 && os.Args[1] == "--version" {
		fmt.Printf("%s version %s\n", serverName, version)
		os.Exit(0)
	}

	cfg, err := config.LoadFile(os.Getenv("ADE_CONFIG_FILE"))
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}
	// stdout carries the protocol; the logger writes to stderr.
	log, err := logger.Init(cfg.Log.Level, "json")
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer func() { _ = log.Sync() }()

	client, err := ade.NewClient(&cfg.Client)
	if err != nil {
		log.Fatal("failed to initialize API client", zap.Error(err))
	}

	server := newServer(&toolset{
		processor: cache.NewCachedProcessor(client, cfg.Cache.Size, cfg.Cache.TTL),
		schemas:   validate.NewSchemaValidator(cfg.Cache.Size),
	})
	log.Info("server ready", zap.String("name", serverName), zap.String("version", version))

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	if err := server.Run(logger.WithContext(ctx, log), &mcp.StdioTransport{}); err != nil {
		log.Fatal("server error", zap.Error(err))
	}
}

func newServer(t *toolset) *mcp.Server {
	server := mcp.NewServer(&mcp.Implementation{Name: serverName, Version: version}, nil)
	t.register(server)
	return server
}
