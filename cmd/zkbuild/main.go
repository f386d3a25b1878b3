package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/alecthomas/kong"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"zkbuild/internal/infra"
	"zkbuild/internal/services"
)

// Overridden at build time via -ldflags "-X main.version=...".
var version = "dev"

var cli struct {
	Build   BuildCmd   `cmd:"" help:"Reproducibly build a guest package and print its image IDs."`
	Version VersionCmd `cmd:"" help:"Show version information."`
}

// BuildCmd represents the 'zkbuild build' command.
type BuildCmd struct {
	ManifestPath string   `arg:"" help:"Path to the guest package manifest (Cargo.toml)." type:"path"`
	SrcDir       string   `help:"Source root sent to the engine as the build context." default:"." type:"path"`
	Features     []string `help:"Feature names forwarded to the compile step." sep:","`
}

// Run executes the build command.
func (c *BuildCmd) Run(logger *zap.Logger, cfg *infra.Config) error {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	orchestrator := services.NewBuildOrchestrator(logger, cfg)

	report, err := orchestrator.Run(ctx, services.BuildRequest{
		ManifestPath: c.ManifestPath,
		SrcDir:       c.SrcDir,
		Features:     c.Features,
	})
	if err != nil {
		return err
	}

	report.Print(os.Stdout)
	return nil
}

// VersionCmd represents the 'zkbuild version' command.
type VersionCmd struct{}

// Run executes the version command.
func (c *VersionCmd) Run() error {
	fmt.Println(version)
	return nil
}

func main() {
	cfg, err := infra.LoadConfig()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	logger, err := initLogger(cfg.LogLevel)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	kctx := kong.Parse(&cli,
		kong.Name("zkbuild"),
		kong.Description("Reproducible guest builds with deterministic image IDs."),
		kong.UsageOnError(),
		kong.Bind(logger),
		kong.Bind(cfg),
	)

	if err := kctx.Run(); err != nil {
		logger.Error("Run failed", zap.Error(err))
		os.Exit(1)
	}
}

func initLogger(level string) (*zap.Logger, error) {
	parsed, err := zapcore.ParseLevel(level)
	if err != nil {
		return nil, fmt.Errorf("invalid log level %q: %w", level, err)
	}
	config := zap.NewProductionConfig()
	config.Level = zap.NewAtomicLevelAt(parsed)
	return config.Build()
}
