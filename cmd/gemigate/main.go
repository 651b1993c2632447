package main

import (
	"context"
	"flag"
	"fmt"
	"os"

	"go.uber.org/zap"

	"github.com/basuigw/gemigate/config"
	"github.com/basuigw/gemigate/gateway"
	"github.com/basuigw/gemigate/sinks/gormsink"
)

var (
	Version   = "dev"
	BuildTime = "unknown"
	GitCommit = "unknown"
)

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	switch os.Args[1] {
	case "assemble":
		runAssemble(os.Args[2:])
	case "migrate":
		runMigrate(os.Args[2:])
	case "version":
		printVersion()
	case "help", "-h", "--help":
		printUsage()
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n", os.Args[1])
		printUsage()
		os.Exit(1)
	}
}

func runAssemble(args []string) {
	fs := flag.NewFlagSet("assemble", flag.ExitOnError)
	configPath := fs.String("config", "", "Path to config file")
	fs.Parse(args)

	cfg := loadConfig(*configPath)
	logger := gateway.InitLogger(cfg.Log)
	defer logger.Sync() //nolint:errcheck // best-effort flush on exit

	logger.Info("gemigate starting",
		zap.String("version", Version),
		zap.String("build_time", BuildTime),
		zap.String("git_commit", GitCommit),
	)

	gw, shutdown, err := gateway.New(cfg, logger)
	if err != nil {
		logger.Fatal("failed to assemble gateway", zap.Error(err))
	}
	defer shutdown(context.Background()) //nolint:errcheck // best-effort on exit

	logger.Info("gateway assembled",
		zap.Int("key_pool_size", gw.Orchestrator.Pool.Len()),
		zap.Bool("fake_stream_enabled", gw.Orchestrator.FakeStreamEnabled),
	)
}

func runMigrate(args []string) {
	fs := flag.NewFlagSet("migrate", flag.ExitOnError)
	configPath := fs.String("config", "", "Path to config file")
	fs.Parse(args)

	cfg := loadConfig(*configPath)
	if cfg.Sink.Driver != "sqlite" {
		fmt.Fprintf(os.Stderr, "migrate only applies to the sqlite sink driver (configured: %q)\n", cfg.Sink.Driver)
		os.Exit(1)
	}
	if err := gormsink.Migrate(cfg.Sink.DSN); err != nil {
		fmt.Fprintf(os.Stderr, "migration failed: %v\n", err)
		os.Exit(1)
	}
	fmt.Println("migrations applied")
}

func loadConfig(configPath string) *config.Config {
	loader := config.NewLoader()
	if configPath != "" {
		loader = loader.WithConfigPath(configPath)
	}
	cfg, err := loader.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}
	return cfg
}

func printVersion() {
	fmt.Printf("gemigate %s\n", Version)
	fmt.Printf("  Build Time: %s\n", BuildTime)
	fmt.Printf("  Git Commit: %s\n", GitCommit)
}

func printUsage() {
	fmt.Println(`gemigate - multi-tenant generative-AI gateway core

Usage:
  gemigate <command> [options]

Commands:
  assemble   Build every collaborator from config and report success
  migrate    Apply the gormsink reference sink's SQLite schema
  version    Show version information
  help       Show this help message

Options for 'assemble' and 'migrate':
  --config <path>   Path to configuration file (YAML)`)
}
