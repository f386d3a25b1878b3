package services

import (
	"context"
	"fmt"
	"os/exec"
	"time"

	"github.com/cenkalti/backoff/v4"
	"go.uber.org/zap"

	"zkbuild/internal/domain"
)

// engineGuidance is shown whenever the container engine cannot be reached.
// Reproducible builds rely on the engine to provide the pinned toolchain, so
// there is nothing useful to do until the user fixes their environment.
const engineGuidance = "container engine is not available. Reproducible builds rely on Docker " +
	"to build the guest binaries; install Docker and make sure the daemon is running, then retry"

// EngineProbeService waits for the container engine daemon to become ready.
type EngineProbeService struct {
	logger *zap.Logger
	binary string
}

// NewEngineProbeService creates a new engine probe service
func NewEngineProbeService(logger *zap.Logger, binary string) *EngineProbeService {
	return &EngineProbeService{
		logger: logger,
		binary: binary,
	}
}

// EnsureRunning verifies the engine is installed and its daemon is ready.
//
// A missing engine binary fails immediately; engines are often installed but
// still booting (e.g. a desktop daemon), so the liveness probe is retried
// under exponential backoff until maxWait of total elapsed time is spent.
func (s *EngineProbeService) EnsureRunning(ctx context.Context, maxWait time.Duration) error {
	path, err := exec.LookPath(s.binary)
	if err != nil {
		return domain.NewErrorWithCause(domain.ErrCodeEngineUnavailable, engineGuidance, err)
	}

	// Availability check: the binary must at least run. Not retried.
	if err := exec.CommandContext(ctx, path, "--version").Run(); err != nil {
		return domain.NewErrorWithCause(domain.ErrCodeEngineUnavailable, engineGuidance,
			fmt.Errorf("%s --version failed: %w", s.binary, err))
	}

	s.logger.Info("Waiting for container engine to become ready",
		zap.String("binary", path),
		zap.Duration("max_wait", maxWait),
	)

	policy := backoff.NewExponentialBackOff()
	policy.InitialInterval = 250 * time.Millisecond
	policy.MaxElapsedTime = maxWait
	// Cap single sleeps so the final retry cannot overshoot the budget.
	policy.MaxInterval = maxWait / 4
	if policy.MaxInterval < policy.InitialInterval {
		policy.MaxInterval = policy.InitialInterval
	}

	probe := func() error {
		// Liveness probe; stdout/stderr are discarded.
		if err := exec.CommandContext(ctx, path, "version").Run(); err != nil {
			return fmt.Errorf("engine is not ready: %w", err)
		}
		return nil
	}

	if err := backoff.Retry(probe, backoff.WithContext(policy, ctx)); err != nil {
		return domain.NewErrorWithCause(domain.ErrCodeEngineUnavailable, engineGuidance, err)
	}

	s.logger.Info("Container engine is ready", zap.String("binary", path))
	return nil
}
