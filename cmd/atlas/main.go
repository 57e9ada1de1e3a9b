package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/atlas-health/atlas/internal/app"
	"github.com/atlas-health/atlas/internal/atlaserrors"
	"github.com/atlas-health/atlas/internal/config"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: loading config: %v\n", err)
		os.Exit(2)
	}
	if err := cfg.Validate(); err != nil {
		fmt.Fprintf(os.Stderr, "error: invalid config: %v\n", err)
		os.Exit(2)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	summary, err := app.Run(ctx, cfg)
	if err != nil {
		slog.Error("fatal", "error", err)
		os.Exit(exitCodeForFatalError(err))
	}

	os.Exit(summary.ExitCode())
}

// exitCodeForFatalError maps an error returned before a Summary could even
// be produced to the process exit codes §6 assigns the CLI collaborator:
// 2 configuration error, 4 connection/auth error at init, 5 any other
// fatal runtime error.
func exitCodeForFatalError(err error) int {
	switch atlaserrors.KindOf(err) {
	case atlaserrors.Configuration, atlaserrors.Validation:
		return 2
	case atlaserrors.SourceAuth, atlaserrors.SourceConnection, atlaserrors.TargetConnection, atlaserrors.TargetAuth:
		return 4
	default:
		return 5
	}
}
