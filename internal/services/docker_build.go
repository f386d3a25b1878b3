package services

import (
	"context"
	"os"
	"os/exec"

	"go.uber.org/zap"

	"zkbuild/internal/domain"
)

// DockerBuildService runs the container engine against a synthesized build
// description, exporting the final stage directly onto the host filesystem.
type DockerBuildService struct {
	logger *zap.Logger
	binary string
}

// NewDockerBuildService creates a new Docker build service
func NewDockerBuildService(logger *zap.Logger, binary string) *DockerBuildService {
	return &DockerBuildService{
		logger: logger,
		binary: binary,
	}
}

// Build invokes the engine build with srcDir as the context and directs the
// exported stage into outputDir, overwriting any prior contents. The engine's
// exit status is the sole success signal; output is streamed through, never
// parsed. Failures are not retried here: transient daemon unavailability is
// handled upstream by the readiness probe, and a non-zero exit is almost
// always a source error.
func (s *DockerBuildService) Build(ctx context.Context, srcDir, dockerfilePath, outputDir string) error {
	s.logger.Info("Running engine build",
		zap.String("context", srcDir),
		zap.String("dockerfile", dockerfilePath),
		zap.String("output", outputDir),
	)

	cmd := exec.CommandContext(ctx, s.binary, "build", "--output="+outputDir, "-f", dockerfilePath, srcDir)
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr

	if err := cmd.Run(); err != nil {
		return domain.NewErrorWithCause(domain.ErrCodeBuildFailed, "container engine build failed", err)
	}

	return nil
}
